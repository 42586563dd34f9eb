package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func TestHub_BroadcastReachesClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleWebSocket(hub, w, r)
	}))
	defer srv.Close()

	conn, _, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("Expected 1 client, got %d", hub.ClientCount())
	}

	hub.BroadcastChange("bill", "refreshed", "P-100", "MAIN")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var evt Event
	if err := json.Unmarshal(msg, &evt); err != nil {
		t.Fatalf("Failed to decode event: %v", err)
	}
	if evt.Type != "bill_refreshed" || evt.ID != "P-100" || evt.Subinventory != "MAIN" {
		t.Errorf("Unexpected event %+v", evt)
	}
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hub.Broadcast(Event{Type: "noop"})
	if hub.ClientCount() != 0 {
		t.Error("Expected no clients")
	}
}
