package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/tally/internal/backup"
	"github.com/dukerupert/tally/internal/model"
	"github.com/dukerupert/tally/internal/reconcile"
	"github.com/dukerupert/tally/internal/store"
)

// AdminHandler serves the operational endpoints: backups and counter
// reconciliation. All routes are parent-only.
type AdminHandler struct {
	manager     *backup.Manager
	backupStore *store.BackupStore
	reconciler  *reconcile.Reconciler
	logger      *slog.Logger
}

func NewAdminHandler(m *backup.Manager, bs *store.BackupStore, rec *reconcile.Reconciler, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{manager: m, backupStore: bs, reconciler: rec, logger: logger}
}

func (h *AdminHandler) BackupStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Status())
}

func (h *AdminHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.backupStore.List(50)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list backups"})
		return
	}
	if backups == nil {
		backups = []model.Backup{}
	}
	writeJSON(w, http.StatusOK, backups)
}

func (h *AdminHandler) RunBackup(w http.ResponseWriter, r *http.Request) {
	if !h.manager.Enabled() {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "backups are not configured"})
		return
	}

	recent, err := h.backupStore.List(1)
	if err == nil && len(recent) == 1 && !recent[0].Status.Terminal() {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a backup is already in progress"})
		return
	}

	id, err := h.manager.RunNow(r.Context())
	if err != nil {
		h.logger.Error("manual backup failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "backup failed"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]int64{"backup_id": id})
}

// Reconcile recomputes the derived counters. Pass ?repair=true to also
// reset any drifted counters to the recomputed values.
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	repair := r.URL.Query().Get("repair") == "true"

	report, err := h.reconciler.Run(r.Context(), repair)
	if err != nil {
		h.logger.Error("reconciliation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "reconciliation failed"})
		return
	}

	writeJSON(w, http.StatusOK, report)
}
