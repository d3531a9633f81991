package membership

import "errors"

// Sentinel errors returned by the membership service and stores. Callers
// classify with errors.Is to choose their transport mapping.
var (
	// ErrInvalidInput reports a request that fails validation before any
	// state is consulted.
	ErrInvalidInput = errors.New("membership: invalid input")

	// ErrNotFound reports an unknown membership ID.
	ErrNotFound = errors.New("membership: not found")

	// ErrProjectNotFound reports an unknown project referenced by the
	// operation.
	ErrProjectNotFound = errors.New("membership: project not found")

	// ErrUserNotFound reports an unknown invitation target.
	ErrUserNotFound = errors.New("membership: user not found")

	// ErrForbidden reports that the requester's effective role does not
	// permit the operation.
	ErrForbidden = errors.New("membership: forbidden")

	// ErrAlreadyMember reports an invitation targeting a user who already
	// has an accepted membership, or the root owner.
	ErrAlreadyMember = errors.New("membership: already a member")

	// ErrInvitationPending reports an invitation targeting a user who
	// already has an undecided invitation for the project.
	ErrInvitationPending = errors.New("membership: invitation already pending")

	// ErrNotPending reports an accept or reject against a membership that
	// is not in the pending state.
	ErrNotPending = errors.New("membership: invitation not pending")

	// ErrNotAccepted reports a role change against a membership that is
	// not in the accepted state.
	ErrNotAccepted = errors.New("membership: not accepted")

	// ErrInvalidCredential reports an accept attempt with a wrong project
	// access key.
	ErrInvalidCredential = errors.New("membership: invalid credential")

	// ErrLastAdmin reports a demotion or revocation that would leave a
	// project with admin-role members but zero accepted admins.
	ErrLastAdmin = errors.New("membership: cannot remove last admin")

	// ErrCannotRemoveOwner reports an attempt to revoke or demote the
	// project's root owner.
	ErrCannotRemoveOwner = errors.New("membership: cannot remove root owner")
)
