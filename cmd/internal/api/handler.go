package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"apseq/cmd/identity"
	"apseq/cmd/internal/access"
	"apseq/cmd/internal/membership"
	"apseq/cmd/internal/pagination"
	"apseq/cmd/internal/project"
	"apseq/cmd/internal/recipe"
)

// Config tunes transport-level behaviour.
type Config struct {
	// MaxBodyBytes caps request bodies. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// DefaultMaxBodyBytes bounds JSON request bodies.
const DefaultMaxBodyBytes int64 = 1 << 20

func (c Config) maxBody() int64 {
	if c.MaxBodyBytes <= 0 {
		return DefaultMaxBodyBytes
	}
	return c.MaxBodyBytes
}

// Handler wires HTTP endpoints to the domain services.
type Handler struct {
	log *slog.Logger
	cfg Config

	users    *identity.Service
	projects *project.Service
	members  *membership.Service
	sessions *access.Service
	recipes  *recipe.Service

	now func() time.Time
}

// HandlerOption configures optional Handler dependencies.
type HandlerOption func(*Handler)

// WithClock overrides the handler's time source.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if h == nil || now == nil {
			return
		}
		h.now = now
	}
}

// NewHandler constructs the API handler. All services are required.
func NewHandler(
	log *slog.Logger,
	cfg Config,
	users *identity.Service,
	projects *project.Service,
	members *membership.Service,
	sessions *access.Service,
	recipes *recipe.Service,
	opts ...HandlerOption,
) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if users == nil || projects == nil || members == nil || sessions == nil || recipes == nil {
		return nil, errors.New("api: nil service")
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		users:    users,
		projects: projects,
		members:  members,
		sessions: sessions,
		recipes:  recipes,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires all routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}

	mux.HandleFunc("POST /auth/register", h.handleRegister)
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.HandleFunc("GET /me", h.withUser(h.handleMe))
	mux.HandleFunc("GET /users/search", h.withUser(h.handleUserSearch))

	mux.HandleFunc("POST /projects", h.withUser(h.handleProjectCreate))
	mux.HandleFunc("GET /projects", h.withUser(h.handleProjectList))
	mux.HandleFunc("GET /projects/{id}", h.withUser(h.handleProjectGet))
	mux.HandleFunc("DELETE /projects/{id}", h.withUser(h.handleProjectDelete))
	mux.HandleFunc("GET /projects/code/{code}", h.withUser(h.handleProjectByCode))
	mux.HandleFunc("POST /projects/{id}/rotate-key", h.withUser(h.handleRotateKey))
	mux.HandleFunc("POST /projects/{id}/rotate-pin", h.withUser(h.handleRotatePIN))

	mux.HandleFunc("POST /projects/{id}/access/verify", h.withUser(h.handleAccessVerify))
	mux.HandleFunc("GET /projects/{id}/access", h.withUser(h.handleAccessStatus))

	mux.HandleFunc("GET /projects/{id}/members", h.withUser(h.handleMemberList))
	mux.HandleFunc("POST /projects/{id}/invitations", h.withUser(h.handleInvite))
	mux.HandleFunc("GET /invitations", h.withUser(h.handleInvitationList))
	mux.HandleFunc("POST /invitations/{id}/accept", h.withUser(h.handleInviteAccept))
	mux.HandleFunc("POST /invitations/{id}/reject", h.withUser(h.handleInviteReject))
	mux.HandleFunc("PATCH /memberships/{id}/role", h.withUser(h.handleChangeRole))
	mux.HandleFunc("DELETE /memberships/{id}", h.withUser(h.handleRevoke))

	mux.HandleFunc("POST /projects/{id}/tags", h.withUser(h.handleTagCreate))
	mux.HandleFunc("GET /projects/{id}/tags", h.withUser(h.handleTagList))
	mux.HandleFunc("POST /projects/{id}/combinations", h.withUser(h.handleCombinationCreate))
	mux.HandleFunc("GET /projects/{id}/combinations", h.withUser(h.handleCombinationList))
	mux.HandleFunc("GET /combinations/{id}", h.withUser(h.handleCombinationGet))
	mux.HandleFunc("POST /projects/{id}/recipes", h.withUser(h.handleRecipeCreate))
	mux.HandleFunc("GET /projects/{id}/recipes", h.withUser(h.handleRecipeList))
	mux.HandleFunc("GET /recipes/{id}", h.withUser(h.handleRecipeGet))
	mux.HandleFunc("PUT /recipes/{id}", h.withUser(h.handleRecipeUpdate))
	mux.HandleFunc("POST /recipes/{id}/archive", h.withUser(h.handleRecipeArchive))
	mux.HandleFunc("POST /recipes/{id}/unarchive", h.withUser(h.handleRecipeUnarchive))
	mux.HandleFunc("DELETE /recipes/{id}", h.withUser(h.handleRecipeDelete))
}

// bearerToken extracts the Authorization bearer credential.
func bearerToken(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	token, ok := strings.CutPrefix(raw, "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

// withUser resolves the bearer token before invoking next. Unauthenticated
// requests never reach the wrapped handler.
func (h *Handler) withUser(next func(http.ResponseWriter, *http.Request, identity.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeErrorCode(w, http.StatusUnauthorized, codeUnauthorized, "missing bearer token")
			return
		}
		u, err := h.users.Resolve(r.Context(), token, h.now())
		if err != nil {
			writeErrorCode(w, http.StatusUnauthorized, codeUnauthorized, "invalid or expired token")
			return
		}
		next(w, r, u)
	}
}

// pageRequest reads cursor/limit query params.
func pageRequest(r *http.Request) (pagination.Request, error) {
	var req pagination.Request
	q := r.URL.Query()
	if raw := q.Get("cursor"); raw != "" {
		c, err := pagination.Decode(raw)
		if err != nil {
			return pagination.Request{}, err
		}
		req.Cursor = &c
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return pagination.Request{}, errors.New("limit must be a non-negative integer")
		}
		req.Limit = n
	}
	return req, nil
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.maxBody(), &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}

	u, err := h.users.Register(r.Context(), identity.RegisterInput{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Password:    req.Password,
		Now:         h.now(),
	})
	if err != nil {
		h.serviceError(w, r, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, meResponse{User: toUser(u)})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.maxBody(), &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}

	issued, err := h.users.Login(r.Context(), identity.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Now:      h.now(),
	})
	if err != nil {
		h.serviceError(w, r, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		User:      toUser(issued.User),
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, codeUnauthorized, "missing bearer token")
		return
	}
	if err := h.users.Logout(r.Context(), token); err != nil && !identity.IsNotFound(err) {
		h.serviceError(w, r, "logout", err)
		return
	}
	// Logout is idempotent: an unknown token is already logged out.
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, _ *http.Request, u identity.User) {
	writeJSON(w, http.StatusOK, meResponse{User: toUser(u)})
}

func (h *Handler) handleUserSearch(w http.ResponseWriter, r *http.Request, _ identity.User) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	users, err := h.users.Search(r.Context(), q.Get("q"), limit)
	if err != nil {
		h.serviceError(w, r, "user search", err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUser(u))
	}
	writeJSON(w, http.StatusOK, userSearchResponse{Users: out})
}

// serviceError logs unexpected failures and writes the mapped response.
func (h *Handler) serviceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if isInternal(err) {
		h.log.Error("api: "+op, "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeDomainError(w, err)
}

func isInternal(err error) bool {
	for _, known := range []error{
		identity.ErrInvalidInput, identity.ErrNotFound, identity.ErrConflict, identity.ErrInvalidCredential,
		membership.ErrInvalidInput, membership.ErrNotFound, membership.ErrProjectNotFound,
		membership.ErrUserNotFound, membership.ErrForbidden, membership.ErrAlreadyMember,
		membership.ErrInvitationPending, membership.ErrNotPending, membership.ErrNotAccepted,
		membership.ErrInvalidCredential, membership.ErrLastAdmin, membership.ErrCannotRemoveOwner,
		project.ErrInvalidInput, project.ErrNotFound, project.ErrNameTaken, project.ErrForbidden,
		project.ErrInvalidCredential, project.ErrTooManyMembers,
		recipe.ErrInvalidInput, recipe.ErrNotFound, recipe.ErrNameTaken, recipe.ErrForbidden, recipe.ErrArchived,
		access.ErrInvalidInput, access.ErrNotFound,
		pagination.ErrInvalidCursor,
	} {
		if errors.Is(err, known) {
			return false
		}
	}
	return true
}
