package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for development (use proper CORS in production)
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SnapshotSource returns the latest stored state of a lot, nil if unknown
type SnapshotSource interface {
	Snapshot(ctx context.Context, lotID string) (json.RawMessage, error)
}

// Handler handles WebSocket connections
type Handler struct {
	manager   *Manager
	snapshots SnapshotSource
	logger    *slog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(manager *Manager, snapshots SnapshotSource, logger *slog.Logger) *Handler {
	return &Handler{
		manager:   manager,
		snapshots: snapshots,
		logger:    logger,
	}
}

// SetupRoutes configures WebSocket routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/ws/lots/{id}", h.HandleWebSocket)
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/stats/lots/{id}", h.GetStats).Methods("GET")

	return router
}

type welcomeMessage struct {
	Type     string          `json:"type"`
	LotID    string          `json:"lot_id"`
	ClientID string          `json:"client_id"`
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
}

// HandleWebSocket upgrades the connection and subscribes it to one lot. The
// first frame carries the lot's latest snapshot so viewers start from
// current state rather than waiting for the next event.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	lotID := mux.Vars(r)["id"]

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	snapshot, err := h.snapshots.Snapshot(ctx, lotID)
	cancel()
	if err != nil {
		h.logger.Warn("Snapshot unavailable", slog.String("lot_id", lotID), slog.Any("error", err))
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade connection", slog.Any("error", err))
		return
	}

	client := &Client{
		ID:    uuid.New().String(),
		LotID: lotID,
		Conn:  conn,
		Send:  make(chan []byte, sendBuffer),
	}

	welcome, _ := json.Marshal(welcomeMessage{
		Type:     "connected",
		LotID:    lotID,
		ClientID: client.ID,
		Snapshot: snapshot,
	})
	// Queued before registration so it is the first frame written.
	client.Send <- welcome

	if !h.manager.RegisterClient(client) {
		conn.Close()
		return
	}
	go client.readPump(h.manager)
}

// HealthCheck returns service health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "healthy", "service": "broadcast-service"})
}

// GetStats returns the number of viewers of a lot
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	lotID := mux.Vars(r)["id"]
	writeJSON(w, map[string]any{
		"lot_id":      lotID,
		"subscribers": h.manager.GetSubscriberCount(lotID),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}
