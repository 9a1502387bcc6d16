package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/tally/internal/auth"
	"github.com/dukerupert/tally/internal/store"
)

type FamilyHandler struct {
	familyStore *store.FamilyStore
	logger      *slog.Logger
}

func NewFamilyHandler(fs *store.FamilyStore, logger *slog.Logger) *FamilyHandler {
	return &FamilyHandler{familyStore: fs, logger: logger}
}

// Get returns the actor's family record, counters included.
func (h *FamilyHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	family, err := h.familyStore.GetByID(actor.FamilyID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get family"})
		return
	}
	if family == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "family not found"})
		return
	}
	writeJSON(w, http.StatusOK, family)
}
