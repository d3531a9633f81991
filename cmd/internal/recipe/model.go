package recipe

import "time"

// Tag is the atomic measurable unit of a project. DefaultValue applies when
// neither the combination nor a recipe override pins a value.
type Tag struct {
	ID           string
	ProjectID    string
	Name         string
	DefaultValue float64
	CreatedAt    time.Time
}

// Combination is a named, reusable bundle of tag values.
type Combination struct {
	ID        string
	ProjectID string
	Name      string
	CreatedAt time.Time
}

// CombinationTag pins one tag's value within a combination.
// Unique per (combination, tag).
type CombinationTag struct {
	CombinationID string
	TagID         string
	Value         float64
}

// Recipe is an ordered composition of combinations. Version counts the
// replacements of its composition; archived recipes are read-only.
type Recipe struct {
	ID        string
	ProjectID string
	Name      string
	Version   int
	Archived  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecipeCombination is one positioned use of a combination inside a recipe.
// Unique per (recipe, combination).
type RecipeCombination struct {
	ID            string
	RecipeID      string
	CombinationID string
	Position      int
}

// TagOverride replaces one tag's value for a specific combination-within-
// recipe use, leaving the shared combination untouched.
// Unique per (recipe combination, tag).
type TagOverride struct {
	RecipeCombinationID string
	TagID               string
	Value               float64
}

// ResolvedTagValue is one tag's effective value in a resolved view, with its
// provenance.
type ResolvedTagValue struct {
	Tag      Tag
	Value    float64
	Override bool
}

// ResolvedCombination is one recipe step with its effective tag values.
type ResolvedCombination struct {
	Combination Combination
	Position    int
	TagValues   []ResolvedTagValue
}

// ResolvedRecipe is the full read model of a recipe.
type ResolvedRecipe struct {
	Recipe       Recipe
	Combinations []ResolvedCombination
}
