package api

import (
	"errors"
	"net/http"

	"apseq/cmd/identity"
	"apseq/cmd/internal/access"
	"apseq/cmd/internal/membership"
	"apseq/cmd/internal/pagination"
	"apseq/cmd/internal/project"
	"apseq/cmd/internal/recipe"
)

// Stable error codes exposed to clients.
const (
	codeInvalidRequest    = "invalid_request"
	codeInvalidCredential = "invalid_credential"
	codeUnauthorized      = "unauthorized"
	codeForbidden         = "forbidden"
	codeLastAdmin         = "last_admin"
	codeRootOwner         = "root_owner"
	codeNotFound          = "not_found"
	codeConflict          = "conflict"
	codeArchived          = "archived"
	codeInternal          = "internal_error"
)

// writeDomainError maps a service error onto its transport shape. Unknown
// errors become opaque 500s; the caller is expected to log them.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidInput),
		errors.Is(err, membership.ErrInvalidInput),
		errors.Is(err, project.ErrInvalidInput),
		errors.Is(err, recipe.ErrInvalidInput),
		errors.Is(err, access.ErrInvalidInput),
		errors.Is(err, project.ErrTooManyMembers),
		errors.Is(err, pagination.ErrInvalidCursor):
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, err.Error())

	case errors.Is(err, identity.ErrInvalidCredential),
		errors.Is(err, membership.ErrInvalidCredential),
		errors.Is(err, project.ErrInvalidCredential):
		writeErrorCode(w, http.StatusUnauthorized, codeInvalidCredential, "invalid credential")

	case errors.Is(err, membership.ErrLastAdmin):
		writeErrorCode(w, http.StatusForbidden, codeLastAdmin, err.Error())

	case errors.Is(err, membership.ErrCannotRemoveOwner):
		writeErrorCode(w, http.StatusForbidden, codeRootOwner, err.Error())

	case errors.Is(err, membership.ErrForbidden),
		errors.Is(err, project.ErrForbidden),
		errors.Is(err, recipe.ErrForbidden):
		writeErrorCode(w, http.StatusForbidden, codeForbidden, "insufficient role")

	case identity.IsNotFound(err),
		errors.Is(err, membership.ErrNotFound),
		errors.Is(err, membership.ErrProjectNotFound),
		errors.Is(err, membership.ErrUserNotFound),
		errors.Is(err, project.ErrNotFound),
		errors.Is(err, recipe.ErrNotFound),
		errors.Is(err, access.ErrNotFound):
		writeErrorCode(w, http.StatusNotFound, codeNotFound, "resource not found")

	case errors.Is(err, recipe.ErrArchived):
		writeErrorCode(w, http.StatusConflict, codeArchived, err.Error())

	case identity.IsConflict(err),
		errors.Is(err, identity.ErrConflict),
		errors.Is(err, project.ErrNameTaken),
		errors.Is(err, recipe.ErrNameTaken),
		errors.Is(err, membership.ErrAlreadyMember),
		errors.Is(err, membership.ErrInvitationPending),
		errors.Is(err, membership.ErrNotPending),
		errors.Is(err, membership.ErrNotAccepted):
		writeErrorCode(w, http.StatusConflict, codeConflict, err.Error())

	default:
		writeErrorCode(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
