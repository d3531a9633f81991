package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"apseq/cmd/identity/ids"
	"apseq/cmd/internal/pagination"
)

// Service enforces the membership state machine on top of a Store.
type Service struct {
	store    Store
	projects ProjectDirectory
	users    UserDirectory
	verifier Verifier
}

// NewService wires a membership service. The verifier checks project access
// keys during invitation acceptance.
func NewService(store Store, projects ProjectDirectory, users UserDirectory, verifier Verifier) *Service {
	return &Service{store: store, projects: projects, users: users, verifier: verifier}
}

// EffectiveRole computes a user's standing in a project. The root owner is
// always EffectiveRootAdmin regardless of membership rows; otherwise only an
// accepted membership confers a role.
func (s *Service) EffectiveRole(ctx context.Context, userID, projectID string) (EffectiveRole, error) {
	proj, err := s.projects.ProjectInfo(ctx, projectID)
	if err != nil {
		return EffectiveNone, err
	}
	if proj.RootOwnerID == userID {
		return EffectiveRootAdmin, nil
	}
	m, err := s.store.GetByUserProject(ctx, userID, projectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return EffectiveNone, nil
		}
		return EffectiveNone, err
	}
	if m.Status != StatusAccepted {
		return EffectiveNone, nil
	}
	switch m.Role {
	case RoleAdmin:
		return EffectiveAdmin, nil
	default:
		return EffectiveUser, nil
	}
}

// InviteInput describes an invitation request. Exactly one of TargetUserID
// and TargetEmail must be set.
type InviteInput struct {
	ProjectID    string
	InviterID    string
	TargetUserID string
	TargetEmail  string
	Role         Role
	Now          time.Time
}

// Invite creates a pending membership for the target user. The inviter must
// be the root owner or an accepted admin of the project.
func (s *Service) Invite(ctx context.Context, in InviteInput) (Membership, error) {
	if in.Role == "" {
		in.Role = RoleUser
	}
	if !in.Role.Valid() {
		return Membership{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, in.Role)
	}
	if (in.TargetUserID == "") == (in.TargetEmail == "") {
		return Membership{}, fmt.Errorf("%w: exactly one of user id and email required", ErrInvalidInput)
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	proj, err := s.projects.ProjectInfo(ctx, in.ProjectID)
	if err != nil {
		return Membership{}, err
	}
	role, err := s.EffectiveRole(ctx, in.InviterID, in.ProjectID)
	if err != nil {
		return Membership{}, err
	}
	if !role.CanInvite() {
		return Membership{}, ErrForbidden
	}

	target, err := s.resolveTarget(ctx, in)
	if err != nil {
		return Membership{}, err
	}
	if target.ID == proj.RootOwnerID {
		return Membership{}, ErrAlreadyMember
	}
	if existing, err := s.store.GetByUserProject(ctx, target.ID, in.ProjectID); err == nil {
		return Membership{}, statusConflict(existing.Status)
	} else if !errors.Is(err, ErrNotFound) {
		return Membership{}, err
	}

	id, err := ids.NewULID(in.Now)
	if err != nil {
		return Membership{}, err
	}
	inviter := in.InviterID
	m := Membership{
		ID:        id,
		ProjectID: in.ProjectID,
		UserID:    target.ID,
		Role:      in.Role,
		Status:    StatusPending,
		InvitedBy: &inviter,
		InvitedAt: in.Now,
	}
	// A concurrent invite can still win the (project, user) uniqueness race
	// between the lookup above and the insert; the store reports it as
	// ErrAlreadyMember or ErrInvitationPending.
	return s.store.Create(ctx, m)
}

func (s *Service) resolveTarget(ctx context.Context, in InviteInput) (UserRef, error) {
	if in.TargetUserID != "" {
		return s.users.UserRefByID(ctx, in.TargetUserID)
	}
	email := strings.TrimSpace(in.TargetEmail)
	if email == "" {
		return UserRef{}, fmt.Errorf("%w: empty email", ErrInvalidInput)
	}
	return s.users.UserRefByEmail(ctx, email)
}

func statusConflict(st Status) error {
	if st == StatusAccepted {
		return ErrAlreadyMember
	}
	return ErrInvitationPending
}

// AcceptInput describes an invitation acceptance.
type AcceptInput struct {
	MembershipID string
	InviteeID    string
	AccessKey    string
	Now          time.Time
}

// Accept verifies the project access key and, on success, atomically flips
// the membership to accepted and grants the invitee a 24h access session.
// A wrong key leaves the invitation pending.
func (s *Service) Accept(ctx context.Context, in AcceptInput) (Membership, error) {
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	m, err := s.store.Get(ctx, in.MembershipID)
	if err != nil {
		return Membership{}, err
	}
	if m.UserID != in.InviteeID {
		return Membership{}, ErrForbidden
	}
	if m.Status != StatusPending {
		return Membership{}, ErrNotPending
	}
	proj, err := s.projects.ProjectInfo(ctx, m.ProjectID)
	if err != nil {
		return Membership{}, err
	}
	ok, err := s.verifier.Verify(proj.AccessKeyHash, in.AccessKey)
	if err != nil {
		return Membership{}, fmt.Errorf("verify access key: %w", err)
	}
	if !ok {
		return Membership{}, ErrInvalidCredential
	}
	sessionID, err := ids.NewULID(in.Now)
	if err != nil {
		return Membership{}, err
	}
	return s.store.Accept(ctx, AcceptRecord{
		MembershipID: m.ID,
		JoinedAt:     in.Now,
		SessionID:    sessionID,
	})
}

// Reject declines a pending invitation. The row is removed outright, so the
// user can be invited again later.
func (s *Service) Reject(ctx context.Context, membershipID, inviteeID string) error {
	m, err := s.store.Get(ctx, membershipID)
	if err != nil {
		return err
	}
	if m.UserID != inviteeID {
		return ErrForbidden
	}
	if m.Status != StatusPending {
		return ErrNotPending
	}
	return s.store.Delete(ctx, m.ID)
}

// ChangeRole sets a member's stored role. Only the root owner may do this,
// and demoting the last accepted admin is refused.
func (s *Service) ChangeRole(ctx context.Context, membershipID, requesterID string, newRole Role) (Membership, error) {
	if !newRole.Valid() {
		return Membership{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, newRole)
	}
	m, err := s.store.Get(ctx, membershipID)
	if err != nil {
		return Membership{}, err
	}
	role, err := s.EffectiveRole(ctx, requesterID, m.ProjectID)
	if err != nil {
		return Membership{}, err
	}
	if !role.CanManageMembers() {
		return Membership{}, ErrForbidden
	}
	if m.Status != StatusAccepted {
		return Membership{}, ErrNotAccepted
	}
	if m.Role == newRole {
		return m, nil
	}
	if m.Role == RoleAdmin && newRole == RoleUser {
		n, err := s.store.CountAcceptedAdmins(ctx, m.ProjectID)
		if err != nil {
			return Membership{}, err
		}
		if n <= 1 {
			return Membership{}, ErrLastAdmin
		}
	}
	return s.store.UpdateRole(ctx, m.ID, newRole)
}

// Revoke removes a membership. Only the root owner may do this, and removing
// the last accepted admin is refused.
func (s *Service) Revoke(ctx context.Context, membershipID, requesterID string) error {
	m, err := s.store.Get(ctx, membershipID)
	if err != nil {
		return err
	}
	proj, err := s.projects.ProjectInfo(ctx, m.ProjectID)
	if err != nil {
		return err
	}
	role, err := s.EffectiveRole(ctx, requesterID, m.ProjectID)
	if err != nil {
		return err
	}
	if !role.CanManageMembers() {
		return ErrForbidden
	}
	if m.UserID == proj.RootOwnerID {
		return ErrCannotRemoveOwner
	}
	if m.Role == RoleAdmin && m.Status == StatusAccepted {
		n, err := s.store.CountAcceptedAdmins(ctx, m.ProjectID)
		if err != nil {
			return err
		}
		if n <= 1 {
			return ErrLastAdmin
		}
	}
	return s.store.Delete(ctx, m.ID)
}

// ListMembers pages a project's memberships. Any member of the project may
// list them.
func (s *Service) ListMembers(ctx context.Context, projectID, requesterID string, req pagination.Request) (pagination.Page[Membership], error) {
	role, err := s.EffectiveRole(ctx, requesterID, projectID)
	if err != nil {
		return pagination.Page[Membership]{}, err
	}
	if !role.Member() {
		return pagination.Page[Membership]{}, ErrForbidden
	}
	return s.store.ListByProject(ctx, projectID, req)
}

// ListPendingForUser pages the caller's undecided invitations.
func (s *Service) ListPendingForUser(ctx context.Context, userID string, req pagination.Request) (pagination.Page[Invitation], error) {
	return s.store.ListPendingForUser(ctx, userID, req)
}
