package project

import "errors"

var (
	// ErrInvalidInput reports a request that fails validation.
	ErrInvalidInput = errors.New("project: invalid input")

	// ErrNotFound reports an unknown project.
	ErrNotFound = errors.New("project: not found")

	// ErrNameTaken reports a name collision under case-insensitive
	// comparison.
	ErrNameTaken = errors.New("project: name already taken")

	// ErrForbidden reports an operation reserved for the root owner.
	ErrForbidden = errors.New("project: forbidden")

	// ErrInvalidCredential reports a wrong PIN or access key.
	ErrInvalidCredential = errors.New("project: invalid credential")

	// ErrTooManyMembers reports more initial members than allowed.
	ErrTooManyMembers = errors.New("project: too many initial members")

	// errCodeTaken reports a public code collision; creation retries with a
	// fresh code.
	errCodeTaken = errors.New("project: public code already taken")
)
