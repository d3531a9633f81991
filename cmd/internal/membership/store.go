package membership

import (
	"context"
	"time"

	"apseq/cmd/internal/pagination"
)

// Membership is one (user, project) relationship row.
type Membership struct {
	ID        string
	ProjectID string
	UserID    string
	Role      Role
	Status    Status
	InvitedBy *string
	InvitedAt time.Time
	JoinedAt  *time.Time
}

// Invitation is a pending membership joined with the project fields a user
// needs to decide on it.
type Invitation struct {
	Membership
	ProjectName      string
	ProjectCode      string
	ProjectCreatedAt time.Time
}

// AcceptRecord carries the state transition applied when an invitee accepts:
// the status flip and the access session granted in the same atomic step.
type AcceptRecord struct {
	MembershipID string
	JoinedAt     time.Time

	// SessionID is used only if no access session exists yet for the
	// (user, project) pair.
	SessionID string
}

// ProjectInfo is the slice of a project the membership layer needs.
type ProjectInfo struct {
	ID            string
	Name          string
	PublicCode    string
	RootOwnerID   string
	AccessKeyHash string
	CreatedAt     time.Time
}

// ProjectDirectory resolves projects for authorization and access key
// checks. Implementations must return ErrProjectNotFound for unknown IDs.
type ProjectDirectory interface {
	ProjectInfo(ctx context.Context, projectID string) (ProjectInfo, error)
}

// UserRef identifies an invitation target.
type UserRef struct {
	ID    string
	Email string
}

// UserDirectory resolves invitation targets. Implementations must return
// ErrUserNotFound for unknown users.
type UserDirectory interface {
	UserRefByID(ctx context.Context, id string) (UserRef, error)
	UserRefByEmail(ctx context.Context, email string) (UserRef, error)
}

// Verifier checks a raw secret against a stored hash.
type Verifier interface {
	Verify(encodedHash, secret string) (bool, error)
}

// Store persists membership rows.
//
// Implementations must enforce a uniqueness constraint on
// (project_id, user_id) and report violations of it as ErrAlreadyMember or
// ErrInvitationPending according to the existing row's status.
type Store interface {
	// Create inserts a new pending membership.
	Create(ctx context.Context, m Membership) (Membership, error)

	// Get returns a membership by ID.
	Get(ctx context.Context, id string) (Membership, error)

	// GetByUserProject returns the membership for a (user, project) pair.
	GetByUserProject(ctx context.Context, userID, projectID string) (Membership, error)

	// Accept flips a pending membership to accepted and grants (or renews)
	// the invitee's access session in the same atomic step.
	Accept(ctx context.Context, rec AcceptRecord) (Membership, error)

	// Delete removes a membership row. Unknown IDs are a no-op.
	Delete(ctx context.Context, id string) error

	// UpdateRole sets the stored role of an accepted membership.
	UpdateRole(ctx context.Context, id string, role Role) (Membership, error)

	// CountAcceptedAdmins returns the number of accepted admin-role rows
	// for a project. The implicit root owner is never counted.
	CountAcceptedAdmins(ctx context.Context, projectID string) (int, error)

	// ListByProject pages a project's memberships, newest invitation
	// first.
	ListByProject(ctx context.Context, projectID string, req pagination.Request) (pagination.Page[Membership], error)

	// ListPendingForUser pages a user's undecided invitations, newest
	// project first.
	ListPendingForUser(ctx context.Context, userID string, req pagination.Request) (pagination.Page[Invitation], error)

	// DeleteByProject removes all membership rows of a project.
	DeleteByProject(ctx context.Context, projectID string) error
}
