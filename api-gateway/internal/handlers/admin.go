package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/aaronwang/lot-auction/shared/models"
	"github.com/gorilla/mux"
)

// UpdateIncrement sets a new minimum bid step
func (h *Handler) UpdateIncrement(w http.ResponseWriter, r *http.Request) {
	var req models.IncrementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "Invalid request body")
		return
	}

	snap, err := h.auctionService.SetIncrement(r.Context(), mux.Vars(r)["id"], req.Increment)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.auctionService.View(snap))
}

// ExtendTime pushes the end time by a number of minutes
func (h *Handler) ExtendTime(w http.ResponseWriter, r *http.Request) {
	var req models.ExtendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "Invalid request body")
		return
	}

	snap, err := h.auctionService.ExtendTime(r.Context(), mux.Vars(r)["id"], req.Minutes)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.auctionService.View(snap))
}

// ActivateLot opens a scheduled lot
func (h *Handler) ActivateLot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.auctionService.Activate(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.auctionService.View(snap))
}

// FinishLot closes a lot now
func (h *Handler) FinishLot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.auctionService.Finish(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.auctionService.View(snap))
}
