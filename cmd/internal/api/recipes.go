package api

import (
	"net/http"

	"apseq/cmd/identity"
	"apseq/cmd/internal/recipe"
)

func (h *Handler) handleTagCreate(w http.ResponseWriter, r *http.Request, u identity.User) {
	var req createTagRequest
	if err := decodeJSON(w, r, h.cfg.maxBody(), &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}

	t, err := h.recipes.CreateTag(r.Context(), recipe.TagInput{
		ProjectID:    r.PathValue("id"),
		RequesterID:  u.ID,
		Name:         req.Name,
		DefaultValue: req.DefaultValue,
		Now:          h.now(),
	})
	if err != nil {
		h.serviceError(w, r, "tag create", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTag(t))
}

func (h *Handler) handleTagList(w http.ResponseWriter, r *http.Request, u identity.User) {
	req, err := pageRequest(r)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	page, err := h.recipes.ListTags(r.Context(), r.PathValue("id"), u.ID, req)
	if err != nil {
		h.serviceError(w, r, "tag list", err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(page, toTag))
}

func tagValues(in []tagValueRequest) []recipe.TagValueInput {
	out := make([]recipe.TagValueInput, 0, len(in))
	for _, v := range in {
		out = append(out, recipe.TagValueInput{TagID: v.TagID, Value: v.Value})
	}
	return out
}

func (h *Handler) handleCombinationCreate(w http.ResponseWriter, r *http.Request, u identity.User) {
	var req createCombinationRequest
	if err := decodeJSON(w, r, h.cfg.maxBody(), &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}

	c, err := h.recipes.CreateCombination(r.Context(), recipe.CombinationInput{
		ProjectID:   r.PathValue("id"),
		RequesterID: u.ID,
		Name:        req.Name,
		Values:      tagValues(req.Values),
		Now:         h.now(),
	})
	if err != nil {
		h.serviceError(w, r, "combination create", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCombination(c))
}

func (h *Handler) handleCombinationList(w http.ResponseWriter, r *http.Request, u identity.User) {
	req, err := pageRequest(r)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	page, err := h.recipes.ListCombinations(r.Context(), r.PathValue("id"), u.ID, req)
	if err != nil {
		h.serviceError(w, r, "combination list", err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(page, toCombination))
}

func (h *Handler) handleCombinationGet(w http.ResponseWriter, r *http.Request, u identity.User) {
	rc, err := h.recipes.GetCombination(r.Context(), r.PathValue("id"), u.ID)
	if err != nil {
		h.serviceError(w, r, "combination get", err)
		return
	}
	writeJSON(w, http.StatusOK, resolvedCombinationResponse{
		Combination: toCombination(rc.Combination),
		Position:    rc.Position,
		TagValues:   toResolvedValues(rc.TagValues),
	})
}

func recipeSteps(in []stepRequest) []recipe.StepInput {
	out := make([]recipe.StepInput, 0, len(in))
	for _, s := range in {
		out = append(out, recipe.StepInput{
			CombinationID: s.CombinationID,
			Overrides:     tagValues(s.Overrides),
		})
	}
	return out
}

func (h *Handler) handleRecipeCreate(w http.ResponseWriter, r *http.Request, u identity.User) {
	var req recipeRequest
	if err := decodeJSON(w, r, h.cfg.maxBody(), &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}

	rc, err := h.recipes.CreateRecipe(r.Context(), recipe.RecipeInput{
		ProjectID:   r.PathValue("id"),
		RequesterID: u.ID,
		Name:        req.Name,
		Steps:       recipeSteps(req.Steps),
		Now:         h.now(),
	})
	if err != nil {
		h.serviceError(w, r, "recipe create", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecipe(rc))
}

func (h *Handler) handleRecipeList(w http.ResponseWriter, r *http.Request, u identity.User) {
	req, err := pageRequest(r)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	page, err := h.recipes.ListRecipes(r.Context(), r.PathValue("id"), u.ID, req)
	if err != nil {
		h.serviceError(w, r, "recipe list", err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(page, toRecipe))
}

func (h *Handler) handleRecipeGet(w http.ResponseWriter, r *http.Request, u identity.User) {
	rr, err := h.recipes.GetRecipe(r.Context(), r.PathValue("id"), u.ID)
	if err != nil {
		h.serviceError(w, r, "recipe get", err)
		return
	}
	writeJSON(w, http.StatusOK, toResolvedRecipe(rr))
}

func (h *Handler) handleRecipeUpdate(w http.ResponseWriter, r *http.Request, u identity.User) {
	var req recipeRequest
	if err := decodeJSON(w, r, h.cfg.maxBody(), &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}

	rc, err := h.recipes.UpdateRecipe(r.Context(), recipe.UpdateInput{
		RecipeID:    r.PathValue("id"),
		RequesterID: u.ID,
		Name:        req.Name,
		Steps:       recipeSteps(req.Steps),
		Now:         h.now(),
	})
	if err != nil {
		h.serviceError(w, r, "recipe update", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecipe(rc))
}

func (h *Handler) handleRecipeArchive(w http.ResponseWriter, r *http.Request, u identity.User) {
	h.setArchived(w, r, u, true)
}

func (h *Handler) handleRecipeUnarchive(w http.ResponseWriter, r *http.Request, u identity.User) {
	h.setArchived(w, r, u, false)
}

func (h *Handler) setArchived(w http.ResponseWriter, r *http.Request, u identity.User, archived bool) {
	rc, err := h.recipes.SetArchived(r.Context(), r.PathValue("id"), u.ID, archived, h.now())
	if err != nil {
		h.serviceError(w, r, "recipe archive", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecipe(rc))
}

func (h *Handler) handleRecipeDelete(w http.ResponseWriter, r *http.Request, u identity.User) {
	if err := h.recipes.DeleteRecipe(r.Context(), r.PathValue("id"), u.ID); err != nil {
		h.serviceError(w, r, "recipe delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
