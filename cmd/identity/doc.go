// Package identity implements user registration and caller resolution.
//
// It owns the users table and the opaque API tokens that resolve an
// authenticated caller for every core operation. Token issuance here is
// deliberately minimal glue: opaque random tokens, hashed server-side,
// no refresh machinery.
package identity
