package api

import (
	"errors"
	"net/http"

	"apseq/cmd/identity"
	"apseq/cmd/internal/access"
	"apseq/cmd/internal/membership"
	"apseq/cmd/internal/project"
)

func (h *Handler) handleProjectCreate(w http.ResponseWriter, r *http.Request, u identity.User) {
	var req createProjectRequest
	if err := decodeJSON(w, r, h.cfg.maxBody(), &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}

	in := project.CreateInput{
		Name:      req.Name,
		AccessKey: req.AccessKey,
		OwnerID:   u.ID,
		Now:       h.now(),
	}
	for _, m := range req.Members {
		in.InitialMembers = append(in.InitialMembers, project.InitialMember{
			UserID: m.UserID,
			Email:  m.Email,
			Role:   membership.Role(m.Role),
		})
	}

	created, err := h.projects.Create(r.Context(), in)
	if err != nil {
		h.serviceError(w, r, "project create", err)
		return
	}
	writeJSON(w, http.StatusCreated, createdProjectResponse{
		Project:   toProject(created.Project),
		PIN:       created.PIN,
		AccessKey: created.AccessKey,
	})
}

func (h *Handler) handleProjectList(w http.ResponseWriter, r *http.Request, u identity.User) {
	req, err := pageRequest(r)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	query := r.URL.Query().Get("q")
	page, err := h.projects.Search(r.Context(), u.ID, query, req)
	if err != nil {
		h.serviceError(w, r, "project list", err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(page, toProject))
}

func (h *Handler) handleProjectGet(w http.ResponseWriter, r *http.Request, u identity.User) {
	p, err := h.projects.Get(r.Context(), r.PathValue("id"), u.ID)
	if err != nil {
		h.serviceError(w, r, "project get", err)
		return
	}
	writeJSON(w, http.StatusOK, toProject(p))
}

func (h *Handler) handleProjectByCode(w http.ResponseWriter, r *http.Request, _ identity.User) {
	p, err := h.projects.GetByPublicCode(r.Context(), r.PathValue("code"))
	if err != nil {
		h.serviceError(w, r, "project by code", err)
		return
	}
	writeJSON(w, http.StatusOK, toProject(p))
}

func (h *Handler) handleProjectDelete(w http.ResponseWriter, r *http.Request, u identity.User) {
	var req deleteProjectRequest
	if err := decodeJSON(w, r, h.cfg.maxBody(), &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}
	if err := h.projects.Delete(r.Context(), r.PathValue("id"), u.ID, req.PIN); err != nil {
		h.serviceError(w, r, "project delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRotateKey(w http.ResponseWriter, r *http.Request, u identity.User) {
	var req rotateKeyRequest
	if err := decodeJSON(w, r, h.cfg.maxBody(), &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}
	p, err := h.projects.RotateAccessKey(r.Context(), r.PathValue("id"), u.ID, req.AccessKey, h.now())
	if err != nil {
		h.serviceError(w, r, "rotate key", err)
		return
	}
	writeJSON(w, http.StatusOK, toProject(p))
}

func (h *Handler) handleRotatePIN(w http.ResponseWriter, r *http.Request, u identity.User) {
	created, err := h.projects.RotatePIN(r.Context(), r.PathValue("id"), u.ID, h.now())
	if err != nil {
		h.serviceError(w, r, "rotate pin", err)
		return
	}
	writeJSON(w, http.StatusOK, rotatePINResponse{
		Project: toProject(created.Project),
		PIN:     created.PIN,
	})
}

func (h *Handler) handleAccessVerify(w http.ResponseWriter, r *http.Request, u identity.User) {
	var req verifyAccessRequest
	if err := decodeJSON(w, r, h.cfg.maxBody(), &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}

	projectID := r.PathValue("id")
	if err := h.projects.VerifyAccessKey(r.Context(), projectID, u.ID, req.AccessKey); err != nil {
		h.serviceError(w, r, "access verify", err)
		return
	}
	sess, err := h.sessions.Ensure(r.Context(), u.ID, projectID, h.now())
	if err != nil {
		h.serviceError(w, r, "access verify", err)
		return
	}
	writeJSON(w, http.StatusOK, toSession(sess))
}

func (h *Handler) handleAccessStatus(w http.ResponseWriter, r *http.Request, u identity.User) {
	projectID := r.PathValue("id")

	// Membership gate first so strangers cannot probe session state.
	if _, err := h.projects.Get(r.Context(), projectID, u.ID); err != nil {
		h.serviceError(w, r, "access status", err)
		return
	}

	sess, err := h.sessions.Current(r.Context(), u.ID, projectID)
	if errors.Is(err, access.ErrNotFound) {
		writeJSON(w, http.StatusOK, accessStatusResponse{Active: false})
		return
	}
	if err != nil {
		h.serviceError(w, r, "access status", err)
		return
	}
	expires := sess.ExpiresAt
	writeJSON(w, http.StatusOK, accessStatusResponse{
		Active:    sess.Active(h.now()),
		ExpiresAt: &expires,
	})
}

func (h *Handler) handleMemberList(w http.ResponseWriter, r *http.Request, u identity.User) {
	req, err := pageRequest(r)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	page, err := h.members.ListMembers(r.Context(), r.PathValue("id"), u.ID, req)
	if err != nil {
		h.serviceError(w, r, "member list", err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(page, toMembership))
}

func (h *Handler) handleInvite(w http.ResponseWriter, r *http.Request, u identity.User) {
	var req inviteRequest
	if err := decodeJSON(w, r, h.cfg.maxBody(), &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}

	m, err := h.members.Invite(r.Context(), membership.InviteInput{
		ProjectID:    r.PathValue("id"),
		InviterID:    u.ID,
		TargetUserID: req.UserID,
		TargetEmail:  req.Email,
		Role:         membership.Role(req.Role),
		Now:          h.now(),
	})
	if err != nil {
		h.serviceError(w, r, "invite", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMembership(m))
}

func (h *Handler) handleInvitationList(w http.ResponseWriter, r *http.Request, u identity.User) {
	req, err := pageRequest(r)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	page, err := h.members.ListPendingForUser(r.Context(), u.ID, req)
	if err != nil {
		h.serviceError(w, r, "invitation list", err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(page, toInvitation))
}

func (h *Handler) handleInviteAccept(w http.ResponseWriter, r *http.Request, u identity.User) {
	var req acceptInviteRequest
	if err := decodeJSON(w, r, h.cfg.maxBody(), &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}

	m, err := h.members.Accept(r.Context(), membership.AcceptInput{
		MembershipID: r.PathValue("id"),
		InviteeID:    u.ID,
		AccessKey:    req.AccessKey,
		Now:          h.now(),
	})
	if err != nil {
		h.serviceError(w, r, "invite accept", err)
		return
	}
	writeJSON(w, http.StatusOK, toMembership(m))
}

func (h *Handler) handleInviteReject(w http.ResponseWriter, r *http.Request, u identity.User) {
	if err := h.members.Reject(r.Context(), r.PathValue("id"), u.ID); err != nil {
		h.serviceError(w, r, "invite reject", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleChangeRole(w http.ResponseWriter, r *http.Request, u identity.User) {
	var req changeRoleRequest
	if err := decodeJSON(w, r, h.cfg.maxBody(), &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}
	m, err := h.members.ChangeRole(r.Context(), r.PathValue("id"), u.ID, membership.Role(req.Role))
	if err != nil {
		h.serviceError(w, r, "change role", err)
		return
	}
	writeJSON(w, http.StatusOK, toMembership(m))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request, u identity.User) {
	if err := h.members.Revoke(r.Context(), r.PathValue("id"), u.ID); err != nil {
		h.serviceError(w, r, "revoke", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
