// Package access implements time-boxed project access sessions.
//
// A session records that a user has proven knowledge of a project's access
// key. Sessions renew on a sliding window: a check only writes when the
// remaining validity drops below the renewal threshold, so hot read paths
// stay write-free while active use never runs into a silent expiry.
package access
