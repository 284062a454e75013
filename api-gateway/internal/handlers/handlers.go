package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/aaronwang/lot-auction/api-gateway/internal/auction"
	"github.com/aaronwang/lot-auction/api-gateway/internal/service"
	"github.com/aaronwang/lot-auction/shared/models"
	"github.com/gorilla/mux"
)

// Dependency is a backing service reported by /health
type Dependency interface {
	Name() string
	Ping(ctx context.Context) error
}

// Handler contains HTTP request handlers
type Handler struct {
	auctionService *service.AuctionService
	dependencies   []Dependency
	logger         *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(auctionService *service.AuctionService, logger *slog.Logger, deps ...Dependency) *Handler {
	return &Handler{
		auctionService: auctionService,
		dependencies:   deps,
		logger:         logger,
	}
}

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/lots", h.ListLots).Methods("GET")
	api.HandleFunc("/lots", h.CreateLot).Methods("POST")
	api.HandleFunc("/lots/{id}", h.GetLot).Methods("GET")
	api.HandleFunc("/lots/{id}/bids", h.PlaceBid).Methods("POST")

	// One route per operator action.
	admin := api.PathPrefix("/admin/lots/{id}").Subrouter()
	admin.HandleFunc("/increment", h.UpdateIncrement).Methods("POST")
	admin.HandleFunc("/extend", h.ExtendTime).Methods("POST")
	admin.HandleFunc("/activate", h.ActivateLot).Methods("POST")
	admin.HandleFunc("/finish", h.FinishLot).Methods("POST")

	router.Use(loggingMiddleware(h.logger))
	router.Use(corsMiddleware)

	return router
}

// HealthCheck returns service health status. Bidding keeps working while a
// dependency is down, so an unreachable one degrades the report to 503
// without failing the process.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	checks := make(map[string]string, len(h.dependencies))
	for _, dep := range h.dependencies {
		if err := dep.Ping(ctx); err != nil {
			h.logger.Warn("Health check failed", slog.String("dependency", dep.Name()), slog.Any("error", err))
			checks[dep.Name()] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[dep.Name()] = "ok"
	}

	respondJSON(w, code, map[string]any{
		"status":       status,
		"service":      "api-gateway",
		"dependencies": checks,
		"time":         time.Now().UTC().Format(time.RFC3339),
	})
}

// ListLots returns lots, optionally filtered by ?status=
func (h *Handler) ListLots(w http.ResponseWriter, r *http.Request) {
	status := models.LotStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		respondError(w, http.StatusBadRequest, "validation", "Unknown status filter")
		return
	}

	snaps := h.auctionService.ListLots(status)
	views := make([]models.LotView, 0, len(snaps))
	for _, snap := range snaps {
		// Bid history is only returned by the detail endpoint.
		summary := *snap
		summary.Bids = nil
		views = append(views, h.auctionService.View(&summary))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"lots":  views,
		"count": len(views),
	})
}

// CreateLot registers a new scheduled lot
func (h *Handler) CreateLot(w http.ResponseWriter, r *http.Request) {
	var draft models.LotDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "Invalid request body")
		return
	}

	snap, err := h.auctionService.CreateLot(r.Context(), draft)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, h.auctionService.View(snap))
}

// GetLot returns a lot with its full bid history. ?order=desc lists the
// newest (winning) bid first.
func (h *Handler) GetLot(w http.ResponseWriter, r *http.Request) {
	lotID := mux.Vars(r)["id"]

	snap, err := h.auctionService.GetLot(lotID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	if r.URL.Query().Get("order") == "desc" {
		detail := *snap
		detail.Bids = slices.Clone(snap.Bids)
		slices.Reverse(detail.Bids)
		snap = &detail
	}

	respondJSON(w, http.StatusOK, h.auctionService.View(snap))
}

// PlaceBid handles bid placement requests
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	lotID := mux.Vars(r)["id"]

	var bidReq models.BidRequest
	if err := json.NewDecoder(r.Body).Decode(&bidReq); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "Invalid request body")
		return
	}

	response, err := h.auctionService.PlaceBid(r.Context(), lotID, &bidReq, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	statusCode := http.StatusCreated
	if response.Replayed {
		statusCode = http.StatusOK
	}
	respondJSON(w, statusCode, response)
}

// respondDomainError maps engine errors onto HTTP statuses and passes the
// rejection reason through unchanged.
func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	var (
		validationErr *auction.ValidationError
		stateErr      *auction.InvalidStateError
		transitionErr *auction.InvalidTransitionError
		tooLowErr     *auction.BidTooLowError
		closedErr     *auction.AuctionClosedError
		conflictErr   *auction.ConflictError
	)

	switch {
	case errors.As(err, &validationErr):
		respondError(w, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, auction.ErrLotNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, auction.ErrLotExists):
		respondError(w, http.StatusConflict, "exists", err.Error())
	case errors.As(err, &tooLowErr):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":       err.Error(),
			"code":        "bid_too_low",
			"minimum_bid": tooLowErr.Minimum,
		})
	case errors.As(err, &closedErr):
		respondError(w, http.StatusConflict, "auction_closed", err.Error())
	case errors.As(err, &conflictErr):
		respondError(w, http.StatusConflict, "conflict", err.Error())
	case errors.As(err, &stateErr):
		respondError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.As(err, &transitionErr):
		respondError(w, http.StatusConflict, "invalid_transition", err.Error())
	default:
		h.logger.Error("Request failed", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "internal", "Internal server error")
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, code, message string) {
	respondJSON(w, statusCode, map[string]string{
		"error": message,
		"code":  code,
	})
}
