package api

import (
	"time"

	"apseq/cmd/identity"
	"apseq/cmd/internal/access"
	"apseq/cmd/internal/membership"
	"apseq/cmd/internal/pagination"
	"apseq/cmd/internal/project"
	"apseq/cmd/internal/recipe"
)

type registerRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

func toUser(u identity.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName, CreatedAt: u.CreatedAt}
}

type loginResponse struct {
	User      userResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

type meResponse struct {
	User userResponse `json:"user"`
}

type userSearchResponse struct {
	Users []userResponse `json:"users"`
}

type initialMemberRequest struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
}

type createProjectRequest struct {
	Name      string                 `json:"name"`
	AccessKey string                 `json:"access_key,omitempty"`
	Members   []initialMemberRequest `json:"members,omitempty"`
}

type projectResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	PublicCode  string    `json:"public_code"`
	RootOwnerID string    `json:"root_owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toProject(p project.Project) projectResponse {
	return projectResponse{
		ID:          p.ID,
		Name:        p.Name,
		PublicCode:  p.PublicCode,
		RootOwnerID: p.RootOwnerID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// createdProjectResponse carries the one-time credentials. The PIN is never
// retrievable again; the access key only appears when the server generated it.
type createdProjectResponse struct {
	Project   projectResponse `json:"project"`
	PIN       string          `json:"pin"`
	AccessKey string          `json:"access_key,omitempty"`
}

type rotateKeyRequest struct {
	AccessKey string `json:"access_key"`
}

type rotatePINResponse struct {
	Project projectResponse `json:"project"`
	PIN     string          `json:"pin"`
}

type deleteProjectRequest struct {
	PIN string `json:"pin"`
}

type pageResponse[T any] struct {
	Items      []T    `json:"items"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}

type inviteRequest struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
}

type membershipResponse struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	UserID    string     `json:"user_id"`
	Role      string     `json:"role"`
	Status    string     `json:"status"`
	InvitedBy *string    `json:"invited_by,omitempty"`
	InvitedAt time.Time  `json:"invited_at"`
	JoinedAt  *time.Time `json:"joined_at,omitempty"`
}

func toMembership(m membership.Membership) membershipResponse {
	return membershipResponse{
		ID:        m.ID,
		ProjectID: m.ProjectID,
		UserID:    m.UserID,
		Role:      string(m.Role),
		Status:    string(m.Status),
		InvitedBy: m.InvitedBy,
		InvitedAt: m.InvitedAt,
		JoinedAt:  m.JoinedAt,
	}
}

type invitationResponse struct {
	Membership  membershipResponse `json:"membership"`
	ProjectName string             `json:"project_name"`
	ProjectCode string             `json:"project_code"`
}

func toInvitation(inv membership.Invitation) invitationResponse {
	return invitationResponse{
		Membership:  toMembership(inv.Membership),
		ProjectName: inv.ProjectName,
		ProjectCode: inv.ProjectCode,
	}
}

type acceptInviteRequest struct {
	AccessKey string `json:"access_key"`
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

type verifyAccessRequest struct {
	AccessKey string `json:"access_key"`
}

type sessionResponse struct {
	SessionID string    `json:"session_id"`
	ProjectID string    `json:"project_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toSession(s access.Session) sessionResponse {
	return sessionResponse{SessionID: s.ID, ProjectID: s.ProjectID, ExpiresAt: s.ExpiresAt}
}

type accessStatusResponse struct {
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type createTagRequest struct {
	Name         string  `json:"name"`
	DefaultValue float64 `json:"default_value"`
}

type tagResponse struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	Name         string    `json:"name"`
	DefaultValue float64   `json:"default_value"`
	CreatedAt    time.Time `json:"created_at"`
}

func toTag(t recipe.Tag) tagResponse {
	return tagResponse{ID: t.ID, ProjectID: t.ProjectID, Name: t.Name, DefaultValue: t.DefaultValue, CreatedAt: t.CreatedAt}
}

type tagValueRequest struct {
	TagID string  `json:"tag_id"`
	Value float64 `json:"value"`
}

type createCombinationRequest struct {
	Name   string            `json:"name"`
	Values []tagValueRequest `json:"values"`
}

type combinationResponse struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func toCombination(c recipe.Combination) combinationResponse {
	return combinationResponse{ID: c.ID, ProjectID: c.ProjectID, Name: c.Name, CreatedAt: c.CreatedAt}
}

type resolvedValueResponse struct {
	Tag      tagResponse `json:"tag"`
	Value    float64     `json:"value"`
	Override bool        `json:"override"`
}

func toResolvedValues(values []recipe.ResolvedTagValue) []resolvedValueResponse {
	out := make([]resolvedValueResponse, 0, len(values))
	for _, v := range values {
		out = append(out, resolvedValueResponse{Tag: toTag(v.Tag), Value: v.Value, Override: v.Override})
	}
	return out
}

type resolvedCombinationResponse struct {
	Combination combinationResponse     `json:"combination"`
	Position    int                     `json:"position"`
	TagValues   []resolvedValueResponse `json:"tag_values"`
}

type stepRequest struct {
	CombinationID string            `json:"combination_id"`
	Overrides     []tagValueRequest `json:"overrides,omitempty"`
}

type recipeRequest struct {
	Name  string        `json:"name"`
	Steps []stepRequest `json:"steps"`
}

type recipeResponse struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toRecipe(rc recipe.Recipe) recipeResponse {
	return recipeResponse{
		ID:        rc.ID,
		ProjectID: rc.ProjectID,
		Name:      rc.Name,
		Version:   rc.Version,
		Archived:  rc.Archived,
		CreatedAt: rc.CreatedAt,
		UpdatedAt: rc.UpdatedAt,
	}
}

type resolvedRecipeResponse struct {
	Recipe       recipeResponse                `json:"recipe"`
	Combinations []resolvedCombinationResponse `json:"combinations"`
}

func toResolvedRecipe(rr recipe.ResolvedRecipe) resolvedRecipeResponse {
	combos := make([]resolvedCombinationResponse, 0, len(rr.Combinations))
	for _, rc := range rr.Combinations {
		combos = append(combos, resolvedCombinationResponse{
			Combination: toCombination(rc.Combination),
			Position:    rc.Position,
			TagValues:   toResolvedValues(rc.TagValues),
		})
	}
	return resolvedRecipeResponse{Recipe: toRecipe(rr.Recipe), Combinations: combos}
}

func toPage[T, U any](p pagination.Page[T], convert func(T) U) pageResponse[U] {
	items := make([]U, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, convert(it))
	}
	return pageResponse[U]{Items: items, HasMore: p.HasMore, NextCursor: p.NextCursor}
}
