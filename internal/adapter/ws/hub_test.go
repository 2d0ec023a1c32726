package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.CloseNow() })
	return c
}

func waitConnections(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d connections, got %d", n, hub.ConnectionCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNotifyFiltersByProject(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	all := dial(t, srv, "")
	onlyB := dial(t, srv, "?project_id=PROJ_b")
	waitConnections(t, hub, 2)

	hub.Notify(context.Background(), "hierarchy.epic.added", []byte(`{"project_id":"PROJ_a","entity_id":"EPIC_1"}`))
	hub.Notify(context.Background(), "hierarchy.testcase.added", []byte(`{"project_id":"PROJ_b","entity_id":"TC_1"}`))

	read := func(c *websocket.Conn) Message {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, data, err := c.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatal(err)
		}
		return m
	}

	if m := read(all); m.Type != "hierarchy.epic.added" {
		t.Errorf("expected epic event first, got %s", m.Type)
	}
	if m := read(all); m.Type != "hierarchy.testcase.added" {
		t.Errorf("expected test case event second, got %s", m.Type)
	}
	m := read(onlyB)
	if m.Type != "hierarchy.testcase.added" {
		t.Errorf("filtered client got %s", m.Type)
	}
	if !strings.Contains(string(m.Payload), "TC_1") {
		t.Errorf("unexpected payload %s", m.Payload)
	}
}

func TestDisconnectRemovesConnection(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	c := dial(t, srv, "")
	waitConnections(t, hub, 1)
	_ = c.Close(websocket.StatusNormalClosure, "")
	waitConnections(t, hub, 0)
}

func TestNotifyWithoutConnections(t *testing.T) {
	hub := NewHub()
	hub.Notify(context.Background(), "hierarchy.project.deleted", []byte(`not json`))
	if hub.ConnectionCount() != 0 {
		t.Fatal("expected no connections")
	}
}
