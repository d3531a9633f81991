package recipe

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"apseq/cmd/identity/ids"
	"apseq/cmd/internal/membership"
	"apseq/cmd/internal/pagination"
)

const maxNameLen = 50

// RoleChecker answers what a user may do to a project. membership.Service
// satisfies it.
type RoleChecker interface {
	EffectiveRole(ctx context.Context, userID, projectID string) (membership.EffectiveRole, error)
}

// Service enforces authorization and composition rules on top of a Store.
// Reads are open to any project member; mutations require admin standing.
type Service struct {
	store Store
	roles RoleChecker
}

// NewService wires a recipe service.
func NewService(store Store, roles RoleChecker) *Service {
	return &Service{store: store, roles: roles}
}

func (s *Service) requireMember(ctx context.Context, userID, projectID string) error {
	role, err := s.roles.EffectiveRole(ctx, userID, projectID)
	if err != nil {
		return err
	}
	if !role.Member() {
		return ErrForbidden
	}
	return nil
}

func (s *Service) requireComposer(ctx context.Context, userID, projectID string) error {
	role, err := s.roles.EffectiveRole(ctx, userID, projectID)
	if err != nil {
		return err
	}
	if !role.CanCompose() {
		return ErrForbidden
	}
	return nil
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLen {
		return "", fmt.Errorf("%w: name must be 1..%d characters", ErrInvalidInput, maxNameLen)
	}
	return name, nil
}

// TagInput describes a tag creation request.
type TagInput struct {
	ProjectID    string
	RequesterID  string
	Name         string
	DefaultValue float64
	Now          time.Time
}

// CreateTag registers a measurable unit in the project.
func (s *Service) CreateTag(ctx context.Context, in TagInput) (Tag, error) {
	name, err := validName(in.Name)
	if err != nil {
		return Tag{}, err
	}
	if err := s.requireComposer(ctx, in.RequesterID, in.ProjectID); err != nil {
		return Tag{}, err
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	id, err := ids.NewULID(in.Now)
	if err != nil {
		return Tag{}, err
	}
	return s.store.CreateTag(ctx, Tag{
		ID:           id,
		ProjectID:    in.ProjectID,
		Name:         name,
		DefaultValue: in.DefaultValue,
		CreatedAt:    in.Now,
	})
}

// ListTags pages the project's tags.
func (s *Service) ListTags(ctx context.Context, projectID, requesterID string, req pagination.Request) (pagination.Page[Tag], error) {
	if err := s.requireMember(ctx, requesterID, projectID); err != nil {
		return pagination.Page[Tag]{}, err
	}
	return s.store.ListTags(ctx, projectID, req)
}

// TagValueInput pins one tag's value.
type TagValueInput struct {
	TagID string
	Value float64
}

// CombinationInput describes a combination creation request.
type CombinationInput struct {
	ProjectID   string
	RequesterID string
	Name        string
	Values      []TagValueInput
	Now         time.Time
}

// CreateCombination registers a combination together with its tag values.
// Every referenced tag must belong to the same project.
func (s *Service) CreateCombination(ctx context.Context, in CombinationInput) (Combination, error) {
	name, err := validName(in.Name)
	if err != nil {
		return Combination{}, err
	}
	if len(in.Values) == 0 {
		return Combination{}, fmt.Errorf("%w: a combination needs at least one tag value", ErrInvalidInput)
	}
	if err := s.requireComposer(ctx, in.RequesterID, in.ProjectID); err != nil {
		return Combination{}, err
	}

	tagIDs := make([]string, 0, len(in.Values))
	seen := make(map[string]bool, len(in.Values))
	for _, v := range in.Values {
		if v.TagID == "" {
			return Combination{}, fmt.Errorf("%w: empty tag id", ErrInvalidInput)
		}
		if seen[v.TagID] {
			return Combination{}, fmt.Errorf("%w: duplicate tag in combination", ErrInvalidInput)
		}
		seen[v.TagID] = true
		tagIDs = append(tagIDs, v.TagID)
	}
	if _, err := s.store.GetTags(ctx, in.ProjectID, tagIDs); err != nil {
		return Combination{}, err
	}

	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	id, err := ids.NewULID(in.Now)
	if err != nil {
		return Combination{}, err
	}

	values := make([]CombinationTag, 0, len(in.Values))
	for _, v := range in.Values {
		values = append(values, CombinationTag{CombinationID: id, TagID: v.TagID, Value: v.Value})
	}
	return s.store.CreateCombination(ctx, Combination{
		ID:        id,
		ProjectID: in.ProjectID,
		Name:      name,
		CreatedAt: in.Now,
	}, values)
}

// GetCombination returns a combination with its tag values resolved against
// the tag catalog.
func (s *Service) GetCombination(ctx context.Context, combinationID, requesterID string) (ResolvedCombination, error) {
	c, values, err := s.store.GetCombination(ctx, combinationID)
	if err != nil {
		return ResolvedCombination{}, err
	}
	if err := s.requireMember(ctx, requesterID, c.ProjectID); err != nil {
		return ResolvedCombination{}, err
	}
	resolved, err := s.resolveValues(ctx, c.ProjectID, values, nil)
	if err != nil {
		return ResolvedCombination{}, err
	}
	return ResolvedCombination{Combination: c, TagValues: resolved}, nil
}

// ListCombinations pages the project's combinations.
func (s *Service) ListCombinations(ctx context.Context, projectID, requesterID string, req pagination.Request) (pagination.Page[Combination], error) {
	if err := s.requireMember(ctx, requesterID, projectID); err != nil {
		return pagination.Page[Combination]{}, err
	}
	return s.store.ListCombinations(ctx, projectID, req)
}

// StepInput is one positioned combination use within a recipe, with optional
// tag overrides. Overrides may only touch tags the combination pins.
type StepInput struct {
	CombinationID string
	Overrides     []TagValueInput
}

// RecipeInput describes a recipe creation request.
type RecipeInput struct {
	ProjectID   string
	RequesterID string
	Name        string
	Steps       []StepInput
	Now         time.Time
}

// CreateRecipe registers a recipe with its full composition in one atomic
// step: on any failure nothing is persisted.
func (s *Service) CreateRecipe(ctx context.Context, in RecipeInput) (Recipe, error) {
	name, err := validName(in.Name)
	if err != nil {
		return Recipe{}, err
	}
	if err := s.requireComposer(ctx, in.RequesterID, in.ProjectID); err != nil {
		return Recipe{}, err
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	id, err := ids.NewULID(in.Now)
	if err != nil {
		return Recipe{}, err
	}
	uses, overrides, err := s.buildComposition(ctx, in.ProjectID, id, in.Steps, in.Now)
	if err != nil {
		return Recipe{}, err
	}
	return s.store.CreateRecipe(ctx, Recipe{
		ID:        id,
		ProjectID: in.ProjectID,
		Name:      name,
		Version:   1,
		CreatedAt: in.Now,
		UpdatedAt: in.Now,
	}, uses, overrides)
}

// buildComposition validates the steps against the project's combinations
// and flattens them into rows.
func (s *Service) buildComposition(ctx context.Context, projectID, recipeID string, steps []StepInput, now time.Time) ([]RecipeCombination, []TagOverride, error) {
	if len(steps) == 0 {
		return nil, nil, fmt.Errorf("%w: a recipe needs at least one combination", ErrInvalidInput)
	}

	var (
		uses      []RecipeCombination
		overrides []TagOverride
	)
	seen := make(map[string]bool, len(steps))
	for pos, step := range steps {
		if step.CombinationID == "" {
			return nil, nil, fmt.Errorf("%w: empty combination id", ErrInvalidInput)
		}
		if seen[step.CombinationID] {
			return nil, nil, fmt.Errorf("%w: duplicate combination in recipe", ErrInvalidInput)
		}
		seen[step.CombinationID] = true

		c, values, err := s.store.GetCombination(ctx, step.CombinationID)
		if err != nil {
			return nil, nil, err
		}
		if c.ProjectID != projectID {
			return nil, nil, ErrNotFound
		}

		pinned := make(map[string]bool, len(values))
		for _, v := range values {
			pinned[v.TagID] = true
		}

		useID, err := ids.NewULID(now)
		if err != nil {
			return nil, nil, err
		}
		uses = append(uses, RecipeCombination{
			ID:            useID,
			RecipeID:      recipeID,
			CombinationID: step.CombinationID,
			Position:      pos,
		})

		seenTags := make(map[string]bool, len(step.Overrides))
		for _, o := range step.Overrides {
			if !pinned[o.TagID] {
				return nil, nil, fmt.Errorf("%w: override targets a tag the combination does not pin", ErrInvalidInput)
			}
			if seenTags[o.TagID] {
				return nil, nil, fmt.Errorf("%w: duplicate override for tag", ErrInvalidInput)
			}
			seenTags[o.TagID] = true
			overrides = append(overrides, TagOverride{
				RecipeCombinationID: useID,
				TagID:               o.TagID,
				Value:               o.Value,
			})
		}
	}
	return uses, overrides, nil
}

// GetRecipe returns the fully resolved read model: ordered combinations with
// effective tag values, overrides applied over the combination's own values.
func (s *Service) GetRecipe(ctx context.Context, recipeID, requesterID string) (ResolvedRecipe, error) {
	r, err := s.store.GetRecipe(ctx, recipeID)
	if err != nil {
		return ResolvedRecipe{}, err
	}
	if err := s.requireMember(ctx, requesterID, r.ProjectID); err != nil {
		return ResolvedRecipe{}, err
	}

	uses, overrides, err := s.store.GetRecipeParts(ctx, r.ID)
	if err != nil {
		return ResolvedRecipe{}, err
	}

	byUse := make(map[string][]TagOverride)
	for _, o := range overrides {
		byUse[o.RecipeCombinationID] = append(byUse[o.RecipeCombinationID], o)
	}

	out := ResolvedRecipe{Recipe: r}
	for _, use := range uses {
		c, values, err := s.store.GetCombination(ctx, use.CombinationID)
		if err != nil {
			return ResolvedRecipe{}, err
		}
		resolved, err := s.resolveValues(ctx, r.ProjectID, values, byUse[use.ID])
		if err != nil {
			return ResolvedRecipe{}, err
		}
		out.Combinations = append(out.Combinations, ResolvedCombination{
			Combination: c,
			Position:    use.Position,
			TagValues:   resolved,
		})
	}
	return out, nil
}

// resolveValues joins combination tag values with their tags and applies
// overrides. The result is ordered by tag name for stable output.
func (s *Service) resolveValues(ctx context.Context, projectID string, values []CombinationTag, overrides []TagOverride) ([]ResolvedTagValue, error) {
	if len(values) == 0 {
		return nil, nil
	}

	tagIDs := make([]string, 0, len(values))
	for _, v := range values {
		tagIDs = append(tagIDs, v.TagID)
	}
	tags, err := s.store.GetTags(ctx, projectID, tagIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Tag, len(tags))
	for _, t := range tags {
		byID[t.ID] = t
	}

	over := make(map[string]float64, len(overrides))
	for _, o := range overrides {
		over[o.TagID] = o.Value
	}

	out := make([]ResolvedTagValue, 0, len(values))
	for _, v := range values {
		rv := ResolvedTagValue{Tag: byID[v.TagID], Value: v.Value}
		if ov, ok := over[v.TagID]; ok {
			rv.Value = ov
			rv.Override = true
		}
		out = append(out, rv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag.Name < out[j].Tag.Name })
	return out, nil
}

// ListRecipes pages the project's recipes.
func (s *Service) ListRecipes(ctx context.Context, projectID, requesterID string, req pagination.Request) (pagination.Page[Recipe], error) {
	if err := s.requireMember(ctx, requesterID, projectID); err != nil {
		return pagination.Page[Recipe]{}, err
	}
	return s.store.ListRecipes(ctx, projectID, req)
}

// UpdateInput describes a composition replacement.
type UpdateInput struct {
	RecipeID    string
	RequesterID string
	Name        string
	Steps       []StepInput
	Now         time.Time
}

// UpdateRecipe replaces a recipe's name and composition atomically, bumping
// its version. Archived recipes are read-only.
func (s *Service) UpdateRecipe(ctx context.Context, in UpdateInput) (Recipe, error) {
	name, err := validName(in.Name)
	if err != nil {
		return Recipe{}, err
	}
	r, err := s.store.GetRecipe(ctx, in.RecipeID)
	if err != nil {
		return Recipe{}, err
	}
	if err := s.requireComposer(ctx, in.RequesterID, r.ProjectID); err != nil {
		return Recipe{}, err
	}
	if r.Archived {
		return Recipe{}, ErrArchived
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	uses, overrides, err := s.buildComposition(ctx, r.ProjectID, r.ID, in.Steps, in.Now)
	if err != nil {
		return Recipe{}, err
	}
	r.Name = name
	r.Version++
	r.UpdatedAt = in.Now
	return s.store.ReplaceRecipe(ctx, r, uses, overrides)
}

// SetArchived flips a recipe's archived flag.
func (s *Service) SetArchived(ctx context.Context, recipeID, requesterID string, archived bool, now time.Time) (Recipe, error) {
	r, err := s.store.GetRecipe(ctx, recipeID)
	if err != nil {
		return Recipe{}, err
	}
	if err := s.requireComposer(ctx, requesterID, r.ProjectID); err != nil {
		return Recipe{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return s.store.SetArchived(ctx, r.ID, archived, now)
}

// DeleteRecipe removes a recipe and its composition rows.
func (s *Service) DeleteRecipe(ctx context.Context, recipeID, requesterID string) error {
	r, err := s.store.GetRecipe(ctx, recipeID)
	if err != nil {
		return err
	}
	if err := s.requireComposer(ctx, requesterID, r.ProjectID); err != nil {
		return err
	}
	return s.store.DeleteRecipe(ctx, r.ID)
}
