package project

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"apseq/cmd/identity/ids"
	"apseq/cmd/internal/membership"
	"apseq/cmd/internal/pagination"
	"apseq/cmd/security/secret"
)

const (
	maxNameLen        = 100
	maxInitialMembers = 3

	// codeAttempts bounds the retry loop on public code collisions. With 4
	// random bytes a handful of attempts is already vanishingly unlikely to
	// run out.
	codeAttempts = 5
)

// SecretPolicy covers the credential operations the registry needs.
// secret.Config satisfies it.
type SecretPolicy interface {
	Hash(raw string) (string, error)
	Verify(encodedHash, raw string) (bool, error)
	GeneratePIN() (string, error)
	ValidateAccessKey(raw string) error
}

// RoleSource computes a user's standing in a project. membership.Service
// satisfies it.
type RoleSource interface {
	EffectiveRole(ctx context.Context, userID, projectID string) (membership.EffectiveRole, error)
}

// Service is the project registry.
type Service struct {
	store   Store
	secrets SecretPolicy
	users   membership.UserDirectory
	roles   RoleSource
}

// NewService wires a project service.
func NewService(store Store, secrets SecretPolicy, users membership.UserDirectory, roles RoleSource) *Service {
	return &Service{store: store, secrets: secrets, users: users, roles: roles}
}

// InitialMember names a user invited at project creation. Exactly one of
// UserID and Email must be set.
type InitialMember struct {
	UserID string
	Email  string
	Role   membership.Role
}

// CreateInput describes a project creation request.
type CreateInput struct {
	Name           string
	AccessKey      string
	OwnerID        string
	InitialMembers []InitialMember
	Now            time.Time
}

// Created is the creation result. PIN is the only time the PIN is available
// in plaintext; it is never stored or shown again. AccessKey is set only
// when the service generated the key on the caller's behalf.
type Created struct {
	Project   Project
	PIN       string
	AccessKey string
}

// Create registers a project: hashes the access key, mints the one-time PIN
// and the public code, and writes the project together with its initial
// pending invitations in one atomic step.
func (s *Service) Create(ctx context.Context, in CreateInput) (Created, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLen {
		return Created{}, fmt.Errorf("%w: name must be 1..%d characters", ErrInvalidInput, maxNameLen)
	}
	if in.OwnerID == "" {
		return Created{}, fmt.Errorf("%w: owner required", ErrInvalidInput)
	}
	generatedKey := ""
	if in.AccessKey == "" {
		key, err := secret.NewAccessKey()
		if err != nil {
			return Created{}, fmt.Errorf("generate access key: %w", err)
		}
		in.AccessKey = key
		generatedKey = key
	}
	if err := s.secrets.ValidateAccessKey(in.AccessKey); err != nil {
		return Created{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if len(in.InitialMembers) > maxInitialMembers {
		return Created{}, ErrTooManyMembers
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	members, err := s.resolveInitialMembers(ctx, in)
	if err != nil {
		return Created{}, err
	}

	keyHash, err := s.secrets.Hash(in.AccessKey)
	if err != nil {
		return Created{}, fmt.Errorf("hash access key: %w", err)
	}
	pin, err := s.secrets.GeneratePIN()
	if err != nil {
		return Created{}, fmt.Errorf("generate pin: %w", err)
	}
	pinHash, err := s.secrets.Hash(pin)
	if err != nil {
		return Created{}, fmt.Errorf("hash pin: %w", err)
	}
	id, err := ids.NewULID(in.Now)
	if err != nil {
		return Created{}, err
	}
	for i := range members {
		members[i].ProjectID = id
	}

	p := Project{
		ID:            id,
		Name:          name,
		NameNorm:      NormalizeName(name),
		RootOwnerID:   in.OwnerID,
		AccessKeyHash: keyHash,
		PINHash:       pinHash,
		CreatedAt:     in.Now,
		UpdatedAt:     in.Now,
	}

	for attempt := 0; attempt < codeAttempts; attempt++ {
		p.PublicCode, err = NewPublicCode()
		if err != nil {
			return Created{}, err
		}
		created, err := s.store.Create(ctx, p, members)
		if errors.Is(err, errCodeTaken) {
			continue
		}
		if err != nil {
			return Created{}, err
		}
		return Created{Project: created, PIN: pin, AccessKey: generatedKey}, nil
	}
	return Created{}, fmt.Errorf("project: could not allocate a unique public code")
}

func (s *Service) resolveInitialMembers(ctx context.Context, in CreateInput) ([]membership.Membership, error) {
	if len(in.InitialMembers) == 0 {
		return nil, nil
	}

	owner := in.OwnerID
	seen := make(map[string]bool, len(in.InitialMembers))
	members := make([]membership.Membership, 0, len(in.InitialMembers))
	for _, im := range in.InitialMembers {
		role := im.Role
		if role == "" {
			role = membership.RoleUser
		}
		if !role.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, im.Role)
		}
		if (im.UserID == "") == (im.Email == "") {
			return nil, fmt.Errorf("%w: member needs exactly one of user id and email", ErrInvalidInput)
		}

		var (
			ref membership.UserRef
			err error
		)
		if im.UserID != "" {
			ref, err = s.users.UserRefByID(ctx, im.UserID)
		} else {
			ref, err = s.users.UserRefByEmail(ctx, im.Email)
		}
		if err != nil {
			return nil, err
		}
		if ref.ID == in.OwnerID {
			return nil, fmt.Errorf("%w: owner cannot be an initial member", ErrInvalidInput)
		}
		if seen[ref.ID] {
			return nil, fmt.Errorf("%w: duplicate initial member", ErrInvalidInput)
		}
		seen[ref.ID] = true

		id, err := ids.NewULID(in.Now)
		if err != nil {
			return nil, err
		}
		members = append(members, membership.Membership{
			ID:        id,
			UserID:    ref.ID,
			Role:      role,
			Status:    membership.StatusPending,
			InvitedBy: &owner,
			InvitedAt: in.Now,
		})
	}
	return members, nil
}

// Get returns a project to one of its members.
func (s *Service) Get(ctx context.Context, projectID, requesterID string) (Project, error) {
	p, err := s.store.Get(ctx, projectID)
	if err != nil {
		return Project{}, err
	}
	role, err := s.roles.EffectiveRole(ctx, requesterID, projectID)
	if err != nil {
		return Project{}, err
	}
	if !role.Member() {
		return Project{}, ErrForbidden
	}
	return p, nil
}

// GetByPublicCode resolves a project by its shareable code.
func (s *Service) GetByPublicCode(ctx context.Context, code string) (Project, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !ValidPublicCode(code) {
		return Project{}, fmt.Errorf("%w: malformed public code", ErrInvalidInput)
	}
	return s.store.GetByPublicCode(ctx, code)
}

// List pages the requester's projects, newest first.
func (s *Service) List(ctx context.Context, userID string, req pagination.Request) (pagination.Page[Project], error) {
	return s.store.ListForUser(ctx, userID, req)
}

// Search pages the requester's projects matching the query by name or public
// code. An empty query degenerates to List.
func (s *Service) Search(ctx context.Context, userID, query string, req pagination.Request) (pagination.Page[Project], error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.store.ListForUser(ctx, userID, req)
	}
	return s.store.Search(ctx, userID, query, req)
}

// RotateAccessKey replaces the project access key. Root owner only.
func (s *Service) RotateAccessKey(ctx context.Context, projectID, requesterID, newKey string, now time.Time) (Project, error) {
	p, err := s.store.Get(ctx, projectID)
	if err != nil {
		return Project{}, err
	}
	if p.RootOwnerID != requesterID {
		return Project{}, ErrForbidden
	}
	if err := s.secrets.ValidateAccessKey(newKey); err != nil {
		return Project{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	hash, err := s.secrets.Hash(newKey)
	if err != nil {
		return Project{}, fmt.Errorf("hash access key: %w", err)
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return s.store.UpdateSecrets(ctx, p.ID, &hash, nil, now)
}

// RotatePIN mints a fresh PIN for the project and returns it in plaintext,
// the only time it is visible. Root owner only.
func (s *Service) RotatePIN(ctx context.Context, projectID, requesterID string, now time.Time) (Created, error) {
	p, err := s.store.Get(ctx, projectID)
	if err != nil {
		return Created{}, err
	}
	if p.RootOwnerID != requesterID {
		return Created{}, ErrForbidden
	}
	pin, err := s.secrets.GeneratePIN()
	if err != nil {
		return Created{}, fmt.Errorf("generate pin: %w", err)
	}
	hash, err := s.secrets.Hash(pin)
	if err != nil {
		return Created{}, fmt.Errorf("hash pin: %w", err)
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	updated, err := s.store.UpdateSecrets(ctx, p.ID, nil, &hash, now)
	if err != nil {
		return Created{}, err
	}
	return Created{Project: updated, PIN: pin}, nil
}

// VerifyAccessKey checks the project access key on behalf of a member,
// typically to re-establish an access session. A wrong key yields
// ErrInvalidCredential.
func (s *Service) VerifyAccessKey(ctx context.Context, projectID, requesterID, key string) error {
	p, err := s.store.Get(ctx, projectID)
	if err != nil {
		return err
	}
	role, err := s.roles.EffectiveRole(ctx, requesterID, projectID)
	if err != nil {
		return err
	}
	if !role.Member() {
		return ErrForbidden
	}
	ok, err := s.secrets.Verify(p.AccessKeyHash, key)
	if err != nil {
		return fmt.Errorf("verify access key: %w", err)
	}
	if !ok {
		return ErrInvalidCredential
	}
	return nil
}

// Delete removes a project and everything under it. Root owner only, gated
// on the project PIN.
func (s *Service) Delete(ctx context.Context, projectID, requesterID, pin string) error {
	p, err := s.store.Get(ctx, projectID)
	if err != nil {
		return err
	}
	if p.RootOwnerID != requesterID {
		return ErrForbidden
	}
	ok, err := s.secrets.Verify(p.PINHash, pin)
	if err != nil {
		return fmt.Errorf("verify pin: %w", err)
	}
	if !ok {
		return ErrInvalidCredential
	}
	return s.store.Delete(ctx, p.ID)
}
