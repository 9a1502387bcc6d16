package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/tally/internal/auth"
	"github.com/dukerupert/tally/internal/ledger"
	"github.com/dukerupert/tally/internal/model"
	"github.com/dukerupert/tally/internal/store"
	"github.com/dukerupert/tally/internal/websocket"
)

// TaskEventHandler receives task state transitions from the task service.
// Deliveries are at-least-once: the same transition may arrive more than
// once, and redelivered approvals must not double-award.
type TaskEventHandler struct {
	taskStore *store.TaskStore
	trigger   *ledger.Trigger
	hub       *websocket.Hub
	logger    *slog.Logger
}

func NewTaskEventHandler(ts *store.TaskStore, trigger *ledger.Trigger, hub *websocket.Hub, logger *slog.Logger) *TaskEventHandler {
	return &TaskEventHandler{taskStore: ts, trigger: trigger, hub: hub, logger: logger}
}

type taskSnapshot struct {
	TaskID           int64  `json:"task_id"`
	FamilyID         int64  `json:"family_id"`
	AssignedTo       int64  `json:"assigned_to"`
	Title            string `json:"title"`
	Status           string `json:"status"`
	ValidationStatus string `json:"validation_status"`
	ValidatedBy      *int64 `json:"validated_by"`
	RewardPoints     int    `json:"reward_points"`
}

// taskEventRequest is one transition from the feed: the task before and
// after the change. Before is null when the task is new.
type taskEventRequest struct {
	Before *taskSnapshot `json:"before"`
	After  *taskSnapshot `json:"after"`
}

func (s *taskSnapshot) validate() string {
	if s.TaskID <= 0 || s.FamilyID <= 0 || s.AssignedTo <= 0 {
		return "task_id, family_id, and assigned_to are required"
	}
	if !validTaskStatuses[model.TaskStatus(s.Status)] {
		return "invalid status"
	}
	if !validValidationStatuses[model.ValidationStatus(s.ValidationStatus)] {
		return "invalid validation_status"
	}
	return ""
}

func (s *taskSnapshot) task() model.Task {
	return model.Task{
		ID:               s.TaskID,
		FamilyID:         s.FamilyID,
		AssignedTo:       s.AssignedTo,
		Title:            strings.TrimSpace(s.Title),
		Status:           model.TaskStatus(s.Status),
		ValidationStatus: model.ValidationStatus(s.ValidationStatus),
		ValidatedBy:      s.ValidatedBy,
		RewardPoints:     s.RewardPoints,
	}
}

var validTaskStatuses = map[model.TaskStatus]bool{
	model.TaskPending:           true,
	model.TaskInProgress:        true,
	model.TaskPendingValidation: true,
	model.TaskCompleted:         true,
	model.TaskRejected:          true,
}

var validValidationStatuses = map[model.ValidationStatus]bool{
	model.ValidationNone:     true,
	model.ValidationApproved: true,
	model.ValidationRejected: true,
}

// Receive stores the delivered after snapshot and routes the transition into
// the ledger trigger. The feed's own before snapshot travels with the event;
// the award decision never depends on what this service stored previously,
// so a delivery whose award failed mid-flight can be retried verbatim.
func (h *TaskEventHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var req taskEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if req.After == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "after snapshot is required"})
		return
	}
	if msg := req.After.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}
	var before *model.Task
	if req.Before != nil {
		if req.Before.TaskID != req.After.TaskID {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "before and after describe different tasks"})
			return
		}
		if msg := req.Before.validate(); msg != "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
			return
		}
		b := req.Before.task()
		before = &b
	}

	after := req.After.task()
	if err := h.taskStore.Sync(after); err != nil {
		h.logger.Error("sync task", "task_id", after.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to sync task"})
		return
	}

	result, err := h.trigger.HandleTransition(r.Context(), before, &after)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if result == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
		return
	}

	if h.hub != nil && !result.Duplicate {
		h.hub.Broadcast(websocket.PointsAwarded(result.FamilyID, result.MemberID, result.TaskID, result.Points))
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *TaskEventHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	tasks, err := h.taskStore.ListByFamily(actor.FamilyID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list tasks"})
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskEventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	task, err := h.taskStore.GetByID(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get task"})
		return
	}
	if task == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, task)
}
