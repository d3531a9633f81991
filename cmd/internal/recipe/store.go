package recipe

import (
	"context"
	"time"

	"apseq/cmd/internal/pagination"
)

// Store persists the recipe composition graph.
//
// Implementations enforce uniqueness on tag, combination, and recipe names
// within their project (ErrNameTaken) and keep nested creates atomic: a
// failed child write must leave no partial parent behind.
type Store interface {
	// CreateTag inserts a tag.
	CreateTag(ctx context.Context, t Tag) (Tag, error)

	// GetTags returns the named tags, restricted to one project. Missing
	// IDs yield ErrNotFound.
	GetTags(ctx context.Context, projectID string, ids []string) ([]Tag, error)

	// ListTags pages a project's tags, newest first.
	ListTags(ctx context.Context, projectID string, req pagination.Request) (pagination.Page[Tag], error)

	// CreateCombination inserts a combination and its tag values in one
	// atomic step.
	CreateCombination(ctx context.Context, c Combination, values []CombinationTag) (Combination, error)

	// GetCombination returns a combination and its tag values.
	GetCombination(ctx context.Context, id string) (Combination, []CombinationTag, error)

	// ListCombinations pages a project's combinations, newest first.
	ListCombinations(ctx context.Context, projectID string, req pagination.Request) (pagination.Page[Combination], error)

	// CreateRecipe inserts a recipe, its positioned combinations, and its
	// tag overrides in one atomic step.
	CreateRecipe(ctx context.Context, r Recipe, uses []RecipeCombination, overrides []TagOverride) (Recipe, error)

	// GetRecipe returns a recipe row.
	GetRecipe(ctx context.Context, id string) (Recipe, error)

	// GetRecipeParts returns a recipe's positioned combinations (ordered by
	// position) and its tag overrides.
	GetRecipeParts(ctx context.Context, recipeID string) ([]RecipeCombination, []TagOverride, error)

	// ListRecipes pages a project's recipes, newest first.
	ListRecipes(ctx context.Context, projectID string, req pagination.Request) (pagination.Page[Recipe], error)

	// ReplaceRecipe swaps a recipe's composition for a new one in one
	// atomic step, bumping its version.
	ReplaceRecipe(ctx context.Context, r Recipe, uses []RecipeCombination, overrides []TagOverride) (Recipe, error)

	// SetArchived flips the recipe's archived flag.
	SetArchived(ctx context.Context, recipeID string, archived bool, now time.Time) (Recipe, error)

	// DeleteRecipe removes a recipe and its children. Unknown IDs are a
	// no-op.
	DeleteRecipe(ctx context.Context, id string) error

	// DeleteByProject removes every tag, combination, and recipe of a
	// project.
	DeleteByProject(ctx context.Context, projectID string) error
}
