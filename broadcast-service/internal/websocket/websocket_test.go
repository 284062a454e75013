package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSnapshots map[string]json.RawMessage

func (s staticSnapshots) Snapshot(_ context.Context, lotID string) (json.RawMessage, error) {
	return s[lotID], nil
}

func startServer(t *testing.T) (*Manager, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := NewManager(logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go manager.Run(ctx)

	snapshots := staticSnapshots{"L1": json.RawMessage(`{"id":"L1","current_price":1500,"version":4}`)}
	server := httptest.NewServer(NewHandler(manager, snapshots, logger).SetupRoutes())
	t.Cleanup(server.Close)
	return manager, server
}

func dial(t *testing.T, server *httptest.Server, lotID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/lots/" + lotID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestWelcomeCarriesSnapshot(t *testing.T) {
	_, server := startServer(t)
	conn := dial(t, server, "L1")

	msg := readJSON(t, conn)
	assert.Equal(t, "connected", msg["type"])
	assert.Equal(t, "L1", msg["lot_id"])
	assert.NotEmpty(t, msg["client_id"])
	snapshot := msg["snapshot"].(map[string]any)
	assert.Equal(t, float64(1500), snapshot["current_price"])

	other := dial(t, server, "unknown")
	msg = readJSON(t, other)
	_, hasSnapshot := msg["snapshot"]
	assert.False(t, hasSnapshot)
}

func TestBroadcastReachesOnlyLotViewers(t *testing.T) {
	manager, server := startServer(t)
	viewer := dial(t, server, "L1")
	bystander := dial(t, server, "L2")
	readJSON(t, viewer)
	readJSON(t, bystander)

	require.Eventually(t, func() bool {
		return manager.GetSubscriberCount("L1") == 1 && manager.GetSubscriberCount("L2") == 1
	}, time.Second, 10*time.Millisecond)

	manager.Broadcast("L1", []byte(`{"type":"bid.placed","lot_id":"L1","version":5}`))

	msg := readJSON(t, viewer)
	assert.Equal(t, "bid.placed", msg["type"])

	require.NoError(t, bystander.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := bystander.ReadMessage()
	require.Error(t, err)
}

func TestDisconnectUnregisters(t *testing.T) {
	manager, server := startServer(t)
	conn := dial(t, server, "L1")
	readJSON(t, conn)

	require.Eventually(t, func() bool { return manager.GetSubscriberCount("L1") == 1 }, time.Second, 10*time.Millisecond)
	conn.Close()
	require.Eventually(t, func() bool { return manager.GetSubscriberCount("L1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestStatsEndpoint(t *testing.T) {
	_, server := startServer(t)

	resp, err := http.Get(server.URL + "/stats/lots/L9")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "L9", body["lot_id"])
	assert.Equal(t, float64(0), body["subscribers"])
}
