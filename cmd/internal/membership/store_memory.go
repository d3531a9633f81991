package membership

import (
	"context"
	"errors"
	"sync"
	"time"

	"apseq/cmd/internal/access"
	"apseq/cmd/internal/pagination"
)

// SessionGranter grants or renews an access session during acceptance.
// access.Service satisfies it.
type SessionGranter interface {
	Ensure(ctx context.Context, userID, projectID string, now time.Time) (access.Session, error)
}

// MemoryStore is an in-memory Store for tests and DB-less development.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[string]Membership
	byPair map[memberKey]string

	projects ProjectDirectory
	granter  SessionGranter
}

type memberKey struct {
	projectID string
	userID    string
}

// NewMemoryStore constructs an empty MemoryStore. The project directory
// backs the pending-invitation listing; the granter backs acceptance.
func NewMemoryStore(projects ProjectDirectory, granter SessionGranter) *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]Membership),
		byPair:   make(map[memberKey]string),
		projects: projects,
		granter:  granter,
	}
}

// SetProjectDirectory late-binds the directory. The in-memory project and
// membership stores reference each other, so one side is wired after
// construction.
func (s *MemoryStore) SetProjectDirectory(projects ProjectDirectory) {
	s.projects = projects
}

// Create inserts a new pending membership.
func (s *MemoryStore) Create(ctx context.Context, m Membership) (Membership, error) {
	if err := ctx.Err(); err != nil {
		return Membership{}, err
	}
	if m.ID == "" || m.ProjectID == "" || m.UserID == "" {
		return Membership{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := memberKey{m.ProjectID, m.UserID}
	if existingID, ok := s.byPair[key]; ok {
		return Membership{}, statusConflict(s.byID[existingID].Status)
	}
	s.byID[m.ID] = m
	s.byPair[key] = m.ID
	return m, nil
}

// Get returns a membership by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (Membership, error) {
	if err := ctx.Err(); err != nil {
		return Membership{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return Membership{}, ErrNotFound
	}
	return m, nil
}

// GetByUserProject returns the membership for a (user, project) pair.
func (s *MemoryStore) GetByUserProject(ctx context.Context, userID, projectID string) (Membership, error) {
	if err := ctx.Err(); err != nil {
		return Membership{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byPair[memberKey{projectID, userID}]
	if !ok {
		return Membership{}, ErrNotFound
	}
	return s.byID[id], nil
}

// Accept flips a pending membership to accepted and grants the invitee's
// access session. The mutex stands in for the transaction the SQL store
// uses.
func (s *MemoryStore) Accept(ctx context.Context, rec AcceptRecord) (Membership, error) {
	if err := ctx.Err(); err != nil {
		return Membership{}, err
	}

	s.mu.Lock()
	m, ok := s.byID[rec.MembershipID]
	if !ok {
		s.mu.Unlock()
		return Membership{}, ErrNotFound
	}
	if m.Status != StatusPending {
		s.mu.Unlock()
		return Membership{}, ErrNotPending
	}
	joined := rec.JoinedAt
	m.Status = StatusAccepted
	m.JoinedAt = &joined
	s.byID[m.ID] = m
	s.mu.Unlock()

	if s.granter != nil {
		if _, err := s.granter.Ensure(ctx, m.UserID, m.ProjectID, rec.JoinedAt); err != nil {
			return Membership{}, err
		}
	}
	return m, nil
}

// Delete removes a membership row. Unknown IDs are a no-op.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return nil
	}
	delete(s.byID, id)
	delete(s.byPair, memberKey{m.ProjectID, m.UserID})
	return nil
}

// UpdateRole sets the stored role of a membership.
func (s *MemoryStore) UpdateRole(ctx context.Context, id string, role Role) (Membership, error) {
	if err := ctx.Err(); err != nil {
		return Membership{}, err
	}
	if !role.Valid() {
		return Membership{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return Membership{}, ErrNotFound
	}
	m.Role = role
	s.byID[id] = m
	return m, nil
}

// CountAcceptedAdmins returns the number of accepted admin rows of a project.
func (s *MemoryStore) CountAcceptedAdmins(ctx context.Context, projectID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.byID {
		if m.ProjectID == projectID && m.Role == RoleAdmin && m.Status == StatusAccepted {
			n++
		}
	}
	return n, nil
}

// ListByProject pages a project's memberships, newest invitation first.
func (s *MemoryStore) ListByProject(ctx context.Context, projectID string, req pagination.Request) (pagination.Page[Membership], error) {
	if err := ctx.Err(); err != nil {
		return pagination.Page[Membership]{}, err
	}

	s.mu.Lock()
	var all []Membership
	for _, m := range s.byID {
		if m.ProjectID == projectID {
			all = append(all, m)
		}
	}
	s.mu.Unlock()

	page := pagination.Apply(all, req,
		func(m Membership) time.Time { return m.InvitedAt },
		func(m Membership) string { return m.ID },
	)
	return page, nil
}

// ListPendingForUser pages a user's undecided invitations, newest project
// first.
func (s *MemoryStore) ListPendingForUser(ctx context.Context, userID string, req pagination.Request) (pagination.Page[Invitation], error) {
	if err := ctx.Err(); err != nil {
		return pagination.Page[Invitation]{}, err
	}

	s.mu.Lock()
	var pending []Membership
	for _, m := range s.byID {
		if m.UserID == userID && m.Status == StatusPending {
			pending = append(pending, m)
		}
	}
	s.mu.Unlock()

	invitations := make([]Invitation, 0, len(pending))
	for _, m := range pending {
		proj, err := s.projects.ProjectInfo(ctx, m.ProjectID)
		if err != nil {
			if errors.Is(err, ErrProjectNotFound) {
				continue
			}
			return pagination.Page[Invitation]{}, err
		}
		invitations = append(invitations, Invitation{
			Membership:       m,
			ProjectName:      proj.Name,
			ProjectCode:      proj.PublicCode,
			ProjectCreatedAt: proj.CreatedAt,
		})
	}

	page := pagination.Apply(invitations, req,
		func(inv Invitation) time.Time { return inv.ProjectCreatedAt },
		func(inv Invitation) string { return inv.Membership.ID },
	)
	return page, nil
}

// AcceptedProjectIDs returns the IDs of every project where the user holds
// an accepted membership (helper for the in-memory project store).
func (s *MemoryStore) AcceptedProjectIDs(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for _, m := range s.byID {
		if m.UserID == userID && m.Status == StatusAccepted {
			out = append(out, m.ProjectID)
		}
	}
	return out, nil
}

// DeleteByProject removes all membership rows of a project.
func (s *MemoryStore) DeleteByProject(ctx context.Context, projectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, m := range s.byID {
		if m.ProjectID == projectID {
			delete(s.byID, id)
			delete(s.byPair, memberKey{m.ProjectID, m.UserID})
		}
	}
	return nil
}
