package recipe

import (
	"context"
	"sort"
	"sync"
	"time"

	"apseq/cmd/internal/pagination"
)

// MemoryStore is an in-memory Store for tests and DB-less development.
type MemoryStore struct {
	mu           sync.Mutex
	tags         map[string]Tag
	combinations map[string]Combination
	combTags     map[string][]CombinationTag // combination id -> values
	recipes      map[string]Recipe
	uses         map[string][]RecipeCombination // recipe id -> ordered uses
	overrides    map[string][]TagOverride       // recipe combination id -> overrides
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tags:         make(map[string]Tag),
		combinations: make(map[string]Combination),
		combTags:     make(map[string][]CombinationTag),
		recipes:      make(map[string]Recipe),
		uses:         make(map[string][]RecipeCombination),
		overrides:    make(map[string][]TagOverride),
	}
}

// CreateTag inserts a tag.
func (s *MemoryStore) CreateTag(ctx context.Context, t Tag) (Tag, error) {
	if err := ctx.Err(); err != nil {
		return Tag{}, err
	}
	if t.ID == "" || t.ProjectID == "" || t.Name == "" {
		return Tag{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.tags {
		if existing.ProjectID == t.ProjectID && existing.Name == t.Name {
			return Tag{}, ErrNameTaken
		}
	}
	s.tags[t.ID] = t
	return t, nil
}

// GetTags returns the named tags of one project.
func (s *MemoryStore) GetTags(ctx context.Context, projectID string, ids []string) ([]Tag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Tag, 0, len(ids))
	for _, id := range ids {
		t, ok := s.tags[id]
		if !ok || t.ProjectID != projectID {
			return nil, ErrNotFound
		}
		out = append(out, t)
	}
	return out, nil
}

// ListTags pages a project's tags, newest first.
func (s *MemoryStore) ListTags(ctx context.Context, projectID string, req pagination.Request) (pagination.Page[Tag], error) {
	if err := ctx.Err(); err != nil {
		return pagination.Page[Tag]{}, err
	}

	s.mu.Lock()
	var all []Tag
	for _, t := range s.tags {
		if t.ProjectID == projectID {
			all = append(all, t)
		}
	}
	s.mu.Unlock()

	return pagination.Apply(all, req,
		func(t Tag) time.Time { return t.CreatedAt },
		func(t Tag) string { return t.ID },
	), nil
}

// CreateCombination inserts a combination and its tag values.
func (s *MemoryStore) CreateCombination(ctx context.Context, c Combination, values []CombinationTag) (Combination, error) {
	if err := ctx.Err(); err != nil {
		return Combination{}, err
	}
	if c.ID == "" || c.ProjectID == "" || c.Name == "" {
		return Combination{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.combinations {
		if existing.ProjectID == c.ProjectID && existing.Name == c.Name {
			return Combination{}, ErrNameTaken
		}
	}
	s.combinations[c.ID] = c
	s.combTags[c.ID] = append([]CombinationTag(nil), values...)
	return c, nil
}

// GetCombination returns a combination and its tag values.
func (s *MemoryStore) GetCombination(ctx context.Context, id string) (Combination, []CombinationTag, error) {
	if err := ctx.Err(); err != nil {
		return Combination{}, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.combinations[id]
	if !ok {
		return Combination{}, nil, ErrNotFound
	}
	return c, append([]CombinationTag(nil), s.combTags[id]...), nil
}

// ListCombinations pages a project's combinations, newest first.
func (s *MemoryStore) ListCombinations(ctx context.Context, projectID string, req pagination.Request) (pagination.Page[Combination], error) {
	if err := ctx.Err(); err != nil {
		return pagination.Page[Combination]{}, err
	}

	s.mu.Lock()
	var all []Combination
	for _, c := range s.combinations {
		if c.ProjectID == projectID {
			all = append(all, c)
		}
	}
	s.mu.Unlock()

	return pagination.Apply(all, req,
		func(c Combination) time.Time { return c.CreatedAt },
		func(c Combination) string { return c.ID },
	), nil
}

// CreateRecipe inserts a recipe with its composition. The mutex stands in
// for the transaction the SQL store uses.
func (s *MemoryStore) CreateRecipe(ctx context.Context, r Recipe, uses []RecipeCombination, overrides []TagOverride) (Recipe, error) {
	if err := ctx.Err(); err != nil {
		return Recipe{}, err
	}
	if r.ID == "" || r.ProjectID == "" || r.Name == "" {
		return Recipe{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.recipes {
		if existing.ProjectID == r.ProjectID && existing.Name == r.Name {
			return Recipe{}, ErrNameTaken
		}
	}
	s.recipes[r.ID] = r
	s.storeComposition(r.ID, uses, overrides)
	return r, nil
}

// storeComposition replaces a recipe's children. Caller holds the mutex.
func (s *MemoryStore) storeComposition(recipeID string, uses []RecipeCombination, overrides []TagOverride) {
	for _, old := range s.uses[recipeID] {
		delete(s.overrides, old.ID)
	}
	ordered := append([]RecipeCombination(nil), uses...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })
	s.uses[recipeID] = ordered
	for _, o := range overrides {
		s.overrides[o.RecipeCombinationID] = append(s.overrides[o.RecipeCombinationID], o)
	}
}

// GetRecipe returns a recipe row.
func (s *MemoryStore) GetRecipe(ctx context.Context, id string) (Recipe, error) {
	if err := ctx.Err(); err != nil {
		return Recipe{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recipes[id]
	if !ok {
		return Recipe{}, ErrNotFound
	}
	return r, nil
}

// GetRecipeParts returns a recipe's ordered uses and overrides.
func (s *MemoryStore) GetRecipeParts(ctx context.Context, recipeID string) ([]RecipeCombination, []TagOverride, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	uses := append([]RecipeCombination(nil), s.uses[recipeID]...)
	var overrides []TagOverride
	for _, use := range uses {
		overrides = append(overrides, s.overrides[use.ID]...)
	}
	return uses, overrides, nil
}

// ListRecipes pages a project's recipes, newest first.
func (s *MemoryStore) ListRecipes(ctx context.Context, projectID string, req pagination.Request) (pagination.Page[Recipe], error) {
	if err := ctx.Err(); err != nil {
		return pagination.Page[Recipe]{}, err
	}

	s.mu.Lock()
	var all []Recipe
	for _, r := range s.recipes {
		if r.ProjectID == projectID {
			all = append(all, r)
		}
	}
	s.mu.Unlock()

	return pagination.Apply(all, req,
		func(r Recipe) time.Time { return r.CreatedAt },
		func(r Recipe) string { return r.ID },
	), nil
}

// ReplaceRecipe swaps a recipe's composition atomically.
func (s *MemoryStore) ReplaceRecipe(ctx context.Context, r Recipe, uses []RecipeCombination, overrides []TagOverride) (Recipe, error) {
	if err := ctx.Err(); err != nil {
		return Recipe{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recipes[r.ID]; !ok {
		return Recipe{}, ErrNotFound
	}
	for _, existing := range s.recipes {
		if existing.ID != r.ID && existing.ProjectID == r.ProjectID && existing.Name == r.Name {
			return Recipe{}, ErrNameTaken
		}
	}
	s.recipes[r.ID] = r
	s.storeComposition(r.ID, uses, overrides)
	return r, nil
}

// SetArchived flips the recipe's archived flag.
func (s *MemoryStore) SetArchived(ctx context.Context, recipeID string, archived bool, now time.Time) (Recipe, error) {
	if err := ctx.Err(); err != nil {
		return Recipe{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recipes[recipeID]
	if !ok {
		return Recipe{}, ErrNotFound
	}
	r.Archived = archived
	r.UpdatedAt = now
	s.recipes[recipeID] = r
	return r, nil
}

// DeleteRecipe removes a recipe and its children.
func (s *MemoryStore) DeleteRecipe(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteRecipeLocked(id)
	return nil
}

func (s *MemoryStore) deleteRecipeLocked(id string) {
	for _, use := range s.uses[id] {
		delete(s.overrides, use.ID)
	}
	delete(s.uses, id)
	delete(s.recipes, id)
}

// DeleteByProject removes every tag, combination, and recipe of a project.
func (s *MemoryStore) DeleteByProject(ctx context.Context, projectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range s.recipes {
		if r.ProjectID == projectID {
			s.deleteRecipeLocked(id)
		}
	}
	for id, c := range s.combinations {
		if c.ProjectID == projectID {
			delete(s.combinations, id)
			delete(s.combTags, id)
		}
	}
	for id, t := range s.tags {
		if t.ProjectID == projectID {
			delete(s.tags, id)
		}
	}
	return nil
}
