package handler

import (
	"net/http"
	"strconv"

	"github.com/dukerupert/tally/internal/auth"
	"github.com/dukerupert/tally/internal/model"
	"github.com/dukerupert/tally/internal/store"
)

const defaultAuditLimit = 100

type AuditHandler struct {
	auditStore  *store.AuditStore
	memberStore *store.MemberStore
}

func NewAuditHandler(as *store.AuditStore, ms *store.MemberStore) *AuditHandler {
	return &AuditHandler{auditStore: as, memberStore: ms}
}

func auditLimit(r *http.Request) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return defaultAuditLimit
}

func (h *AuditHandler) ListByFamily(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	entries, err := h.auditStore.ListByFamily(actor.FamilyID, auditLimit(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list audit entries"})
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *AuditHandler) ListByMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	memberID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	member, err := h.memberStore.GetByID(memberID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get member"})
		return
	}
	if member == nil || member.FamilyID != actor.FamilyID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "member not found"})
		return
	}

	entries, err := h.auditStore.ListByMember(memberID, auditLimit(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list audit entries"})
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
