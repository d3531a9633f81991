package project

import (
	"context"
	"strings"
	"sync"
	"time"

	"apseq/cmd/internal/membership"
	"apseq/cmd/internal/pagination"
)

// MembershipSink is the slice of the membership store the in-memory project
// store needs. membership.MemoryStore satisfies it.
type MembershipSink interface {
	Create(ctx context.Context, m membership.Membership) (membership.Membership, error)
	AcceptedProjectIDs(ctx context.Context, userID string) ([]string, error)
	DeleteByProject(ctx context.Context, projectID string) error
}

// Cascader removes project-owned rows when the project goes away.
type Cascader interface {
	DeleteByProject(ctx context.Context, projectID string) error
}

// MemoryStore is an in-memory Store for tests and DB-less development.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[string]Project
	byName map[string]string // name_norm -> id
	byCode map[string]string // public_code -> id

	members  MembershipSink
	cascades []Cascader
}

// NewMemoryStore constructs an empty MemoryStore. Cascades run on Delete,
// after the membership rows are dropped.
func NewMemoryStore(members MembershipSink, cascades ...Cascader) *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]Project),
		byName:   make(map[string]string),
		byCode:   make(map[string]string),
		members:  members,
		cascades: cascades,
	}
}

// Create inserts the project and its initial pending memberships. The mutex
// stands in for the transaction the SQL store uses.
func (s *MemoryStore) Create(ctx context.Context, p Project, members []membership.Membership) (Project, error) {
	if err := ctx.Err(); err != nil {
		return Project{}, err
	}
	if p.ID == "" || p.NameNorm == "" || p.PublicCode == "" {
		return Project{}, ErrInvalidInput
	}

	s.mu.Lock()
	if _, ok := s.byName[p.NameNorm]; ok {
		s.mu.Unlock()
		return Project{}, ErrNameTaken
	}
	if _, ok := s.byCode[p.PublicCode]; ok {
		s.mu.Unlock()
		return Project{}, errCodeTaken
	}
	s.byID[p.ID] = p
	s.byName[p.NameNorm] = p.ID
	s.byCode[p.PublicCode] = p.ID
	s.mu.Unlock()

	for _, m := range members {
		if _, err := s.members.Create(ctx, m); err != nil {
			return Project{}, err
		}
	}
	return p, nil
}

// Get returns a project by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (Project, error) {
	if err := ctx.Err(); err != nil {
		return Project{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	return p, nil
}

// GetByPublicCode returns a project by its public code.
func (s *MemoryStore) GetByPublicCode(ctx context.Context, code string) (Project, error) {
	if err := ctx.Err(); err != nil {
		return Project{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byCode[code]
	if !ok {
		return Project{}, ErrNotFound
	}
	return s.byID[id], nil
}

// ProjectInfo adapts the store to the membership layer's project view.
func (s *MemoryStore) ProjectInfo(ctx context.Context, projectID string) (membership.ProjectInfo, error) {
	p, err := s.Get(ctx, projectID)
	if err != nil {
		return membership.ProjectInfo{}, membership.ErrProjectNotFound
	}
	return membership.ProjectInfo{
		ID:            p.ID,
		Name:          p.Name,
		PublicCode:    p.PublicCode,
		RootOwnerID:   p.RootOwnerID,
		AccessKeyHash: p.AccessKeyHash,
		CreatedAt:     p.CreatedAt,
	}, nil
}

// ListForUser pages the user's projects, newest first.
func (s *MemoryStore) ListForUser(ctx context.Context, userID string, req pagination.Request) (pagination.Page[Project], error) {
	return s.list(ctx, userID, "", req)
}

// Search pages the user's projects matching the query, newest first.
func (s *MemoryStore) Search(ctx context.Context, userID, query string, req pagination.Request) (pagination.Page[Project], error) {
	return s.list(ctx, userID, query, req)
}

func (s *MemoryStore) list(ctx context.Context, userID, query string, req pagination.Request) (pagination.Page[Project], error) {
	if err := ctx.Err(); err != nil {
		return pagination.Page[Project]{}, err
	}

	acceptedIDs, err := s.members.AcceptedProjectIDs(ctx, userID)
	if err != nil {
		return pagination.Page[Project]{}, err
	}
	accepted := make(map[string]bool, len(acceptedIDs))
	for _, id := range acceptedIDs {
		accepted[id] = true
	}

	q := strings.ToLower(strings.TrimSpace(query))

	s.mu.Lock()
	var mine []Project
	for _, p := range s.byID {
		if p.RootOwnerID != userID && !accepted[p.ID] {
			continue
		}
		if q != "" &&
			!strings.Contains(p.NameNorm, q) &&
			!strings.Contains(strings.ToLower(p.PublicCode), q) {
			continue
		}
		mine = append(mine, p)
	}
	s.mu.Unlock()

	page := pagination.Apply(mine, req,
		func(p Project) time.Time { return p.CreatedAt },
		func(p Project) string { return p.ID },
	)
	return page, nil
}

// UpdateSecrets replaces the stored credential hashes.
func (s *MemoryStore) UpdateSecrets(ctx context.Context, id string, accessKeyHash, pinHash *string, now time.Time) (Project, error) {
	if err := ctx.Err(); err != nil {
		return Project{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	if accessKeyHash != nil {
		p.AccessKeyHash = *accessKeyHash
	}
	if pinHash != nil {
		p.PINHash = *pinHash
	}
	p.UpdatedAt = now
	s.byID[id] = p
	return p, nil
}

// Delete removes the project, its memberships, and every cascading row.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	p, ok := s.byID[id]
	if ok {
		delete(s.byID, id)
		delete(s.byName, p.NameNorm)
		delete(s.byCode, p.PublicCode)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if err := s.members.DeleteByProject(ctx, id); err != nil {
		return err
	}
	for _, c := range s.cascades {
		if err := c.DeleteByProject(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
