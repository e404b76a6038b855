package api

import (
	"encoding/json"
	"net/http"

	"github.com/Priya8975/minutes-live-sync/internal/domain"
	"github.com/Priya8975/minutes-live-sync/internal/drafts"
	"github.com/go-chi/chi/v5"
)

type DraftHandler struct {
	store *drafts.Store
}

func NewDraftHandler(s *drafts.Store) *DraftHandler {
	return &DraftHandler{store: s}
}

func (h *DraftHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.List(r.Context()))
}

func (h *DraftHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	draft := h.store.Get(r.Context(), id)
	if draft == nil {
		respondError(w, http.StatusNotFound, "draft not found")
		return
	}

	respondJSON(w, http.StatusOK, draft)
}

// Create saves a draft from the body; the id is generated when omitted.
func (h *DraftHandler) Create(w http.ResponseWriter, r *http.Request) {
	var draft domain.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	respondJSON(w, http.StatusOK, h.store.Save(r.Context(), draft))
}

// Update saves the body under the id in the path.
func (h *DraftHandler) Update(w http.ResponseWriter, r *http.Request) {
	var draft domain.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	draft.ID = chi.URLParam(r, "id")

	respondJSON(w, http.StatusOK, h.store.Save(r.Context(), draft))
}

func (h *DraftHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.store.Remove(r.Context(), chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}
