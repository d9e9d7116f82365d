package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/appprecos/scan-gateway/models"
	"github.com/appprecos/scan-gateway/queue"
)

func dialTestHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial hub: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	var envelope Envelope
	if err := json.Unmarshal(message, &envelope); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	return envelope
}

func TestHubDeliversSnapshotFirst(t *testing.T) {
	store := queue.NewStore()
	store.Append(models.QueueEntry{TraceID: "trace-1", URL: "http://nfce/a", Status: models.StatusProcessing})
	hub := NewHub(store)
	go hub.Run()

	conn := dialTestHub(t, hub)

	first := readEnvelope(t, conn)
	if first.Type != "queue.snapshot" {
		t.Fatalf("first frame must be the snapshot, got %q", first.Type)
	}
	entries, ok := first.Data.([]interface{})
	if !ok || len(entries) != 1 {
		t.Errorf("snapshot should carry the current queue contents, got %v", first.Data)
	}
}

func TestHubBroadcastsStoreMutations(t *testing.T) {
	store := queue.NewStore()
	hub := NewHub(store)
	go hub.Run()

	conn := dialTestHub(t, hub)

	// The snapshot frame arrives only after the client is registered, so
	// mutations made from here on reach the live feed.
	if first := readEnvelope(t, conn); first.Type != "queue.snapshot" {
		t.Fatalf("first frame must be the snapshot, got %q", first.Type)
	}

	store.Append(models.QueueEntry{TraceID: "trace-2", URL: "http://nfce/b", Status: models.StatusQueued})
	updated := readEnvelope(t, conn)
	if updated.Type != "queue.updated" {
		t.Errorf("expected queue.updated, got %q", updated.Type)
	}

	store.Remove("http://nfce/b")
	removed := readEnvelope(t, conn)
	if removed.Type != "queue.removed" {
		t.Errorf("expected queue.removed, got %q", removed.Type)
	}
}
