package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/tally/internal/auth"
	"github.com/dukerupert/tally/internal/ledger"
	"github.com/dukerupert/tally/internal/model"
	"github.com/dukerupert/tally/internal/store"
	"github.com/dukerupert/tally/internal/websocket"
)

type RedemptionHandler struct {
	redemptions *ledger.RedemptionService
	rewardStore *store.RewardStore
	hub         *websocket.Hub
	logger      *slog.Logger
}

func NewRedemptionHandler(rs *ledger.RedemptionService, rewards *store.RewardStore, hub *websocket.Hub, logger *slog.Logger) *RedemptionHandler {
	return &RedemptionHandler{redemptions: rs, rewardStore: rewards, hub: hub, logger: logger}
}

type redeemRequest struct {
	MemberID  int64 `json:"member_id"`
	PointCost int   `json:"point_cost"`
}

// Redeem spends points on a catalog reward. The member defaults to the
// acting member; redeeming on another member's behalf is parent-only and
// enforced inside the ledger transaction.
func (h *RedemptionHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	rewardID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.MemberID == 0 {
		req.MemberID = actor.MemberID
	}
	if req.PointCost <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "point_cost must be > 0"})
		return
	}

	result, err := h.redemptions.Redeem(r.Context(), ledger.RedeemRequest{
		FamilyID:    actor.FamilyID,
		MemberID:    req.MemberID,
		RewardID:    rewardID,
		PointCost:   req.PointCost,
		RequesterID: actor.MemberID,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	if h.hub != nil {
		h.hub.Broadcast(websocket.RewardRedeemed(
			actor.FamilyID, req.MemberID, result.RedemptionID, req.PointCost, result.RemainingPoints))
	}

	writeJSON(w, http.StatusCreated, result)
}

func (h *RedemptionHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	redemptions, err := h.rewardStore.ListRedemptionsByFamily(actor.FamilyID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list redemptions"})
		return
	}
	if redemptions == nil {
		redemptions = []model.Redemption{}
	}
	writeJSON(w, http.StatusOK, redemptions)
}

func (h *RedemptionHandler) ListByMember(w http.ResponseWriter, r *http.Request) {
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

	redemptions, err := h.rewardStore.ListRedemptionsByMember(memberID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list redemptions"})
		return
	}

	filtered := make([]model.Redemption, 0, len(redemptions))
	for _, rd := range redemptions {
		if rd.FamilyID == actor.FamilyID {
			filtered = append(filtered, rd)
		}
	}
	writeJSON(w, http.StatusOK, filtered)
}

func (h *RedemptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	id := r.PathValue("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	redemption, err := h.rewardStore.GetRedemption(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get redemption"})
		return
	}
	if redemption == nil || redemption.FamilyID != actor.FamilyID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "redemption not found"})
		return
	}
	writeJSON(w, http.StatusOK, redemption)
}
