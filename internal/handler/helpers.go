package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dukerupert/tally/internal/ledger"
)

func parseIDParam(r *http.Request) (int64, error) {
	idStr := r.PathValue("id")
	return strconv.ParseInt(idStr, 10, 64)
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeLedgerError maps ledger errors onto HTTP statuses. Transient conflicts
// get a Retry-After so well-behaved clients back off before resubmitting.
func writeLedgerError(w http.ResponseWriter, err error) {
	var insufficient *ledger.InsufficientBalanceError
	var mismatch *ledger.CostMismatchError

	switch {
	case errors.Is(err, ledger.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, ledger.ErrPermissionDenied):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "permission denied"})
	case errors.Is(err, ledger.ErrRewardInactive):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "reward is not active"})
	case errors.Is(err, ledger.ErrInvalidPoints):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "task carries invalid reward points"})
	case errors.Is(err, ledger.ErrNotAwardable):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "task is not an approved completion"})
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":    "insufficient balance",
			"current":  insufficient.Current,
			"required": insufficient.Required,
		})
	case errors.As(err, &mismatch):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "point cost mismatch",
			"supplied":   mismatch.Supplied,
			"point_cost": mismatch.Actual,
		})
	case ledger.IsTransient(err):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "busy, retry the same request"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
