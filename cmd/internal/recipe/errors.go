package recipe

import "errors"

var (
	// ErrInvalidInput reports a request that fails validation.
	ErrInvalidInput = errors.New("recipe: invalid input")

	// ErrNotFound reports an unknown tag, combination, or recipe.
	ErrNotFound = errors.New("recipe: not found")

	// ErrNameTaken reports a name collision within the project scope.
	ErrNameTaken = errors.New("recipe: name already taken")

	// ErrForbidden reports a caller without the required project role.
	ErrForbidden = errors.New("recipe: forbidden")

	// ErrArchived reports a mutation against an archived recipe.
	ErrArchived = errors.New("recipe: archived")
)
