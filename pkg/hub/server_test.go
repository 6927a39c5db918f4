package hub

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	sserrors "github.com/vango-dev/sharedstate/internal/errors"
	"github.com/vango-dev/sharedstate/pkg/storage"
)

func startHub(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(Config{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server, origin string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, OriginURL(ts.URL, origin))
	if err != nil {
		t.Fatalf("Dial(%s) error: %v", origin, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func receive(t *testing.T, c *Client) storage.Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		if !ok {
			t.Fatal("events channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return storage.Event{}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServer_ForwardsWithinOrigin(t *testing.T) {
	srv, ts := startHub(t)
	a := dial(t, ts, "app")
	b := dial(t, ts, "app")
	other := dial(t, ts, "other")
	waitFor(t, func() bool { return srv.Connections() == 3 })

	if a.ID() == "" || a.ID() == b.ID() {
		t.Fatalf("ids not unique: %q %q", a.ID(), b.ID())
	}

	ctx := context.Background()
	if err := a.Publish(ctx, storage.Event{Key: "sharedstate:user", Value: `"ann"`}); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	ev := receive(t, b)
	if ev.Key != "sharedstate:user" || ev.Value != `"ann"` {
		t.Errorf("b received %+v", ev)
	}
	if ev.Source != a.ID() {
		t.Errorf("Source = %q, want publisher id %q", ev.Source, a.ID())
	}

	if err := b.Publish(ctx, storage.Event{Key: "sharedstate:user", Removed: true}); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	// a's first event must be b's removal: its own publish is never echoed.
	ev = receive(t, a)
	if !ev.Removed || ev.Source != b.ID() {
		t.Errorf("a received %+v, want removal from b", ev)
	}

	select {
	case ev := <-other.Events():
		t.Errorf("other origin received %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestServer_InvalidFramesAreCountedAndSkipped(t *testing.T) {
	srv, ts := startHub(t)
	b := dial(t, ts, "app")

	url := OriginURL(ts.URL, "app")
	raw, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer raw.Close()
	if _, _, err := raw.ReadMessage(); err != nil {
		t.Fatalf("reading hello: %v", err)
	}
	waitFor(t, func() bool { return srv.Connections() == 2 })

	raw.WriteMessage(websocket.TextMessage, []byte("garbage"))
	raw.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello","id":"spoof"}`))
	raw.WriteMessage(websocket.TextMessage, []byte(`{"type":"event","event":{"key":"k","value":"v"}}`))

	ev := receive(t, b)
	if ev.Key != "k" {
		t.Errorf("b received %+v, want key k", ev)
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`sharedstate_hub_messages_total{result="invalid"} 2`,
		`sharedstate_hub_messages_total{result="forwarded"} 1`,
		`sharedstate_hub_connections 2`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestServer_Health(t *testing.T) {
	_, ts := startHub(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"status":"ok"`) {
		t.Errorf("body = %s", body)
	}
}

func TestServer_CloseDropsConnections(t *testing.T) {
	srv, ts := startHub(t)
	c := dial(t, ts, "app")
	waitFor(t, func() bool { return srv.Connections() == 1 })

	srv.Close()

	select {
	case _, ok := <-c.Events():
		if ok {
			t.Fatal("unexpected event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client events not closed after server Close")
	}
	waitFor(t, func() bool { return srv.Connections() == 0 })

	if _, err := Dial(context.Background(), OriginURL(ts.URL, "app")); err == nil {
		t.Error("Dial() after Close should fail")
	}
}

func TestClient_PublishAfterClose(t *testing.T) {
	_, ts := startHub(t)
	c := dial(t, ts, "app")

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}

	err := c.Publish(context.Background(), storage.Event{Key: "k"})
	if !errors.Is(err, sserrors.New("E202")) {
		t.Errorf("Publish() after Close error = %v, want E202", err)
	}
}

func TestClient_SatisfiesStorageInterfaces(t *testing.T) {
	var _ storage.Notifier = (*Client)(nil)
	var _ storage.Publisher = (*Client)(nil)
}

func TestClient_BroadcastingStorageReachesPeers(t *testing.T) {
	_, ts := startHub(t)
	a := dial(t, ts, "app")
	b := dial(t, ts, "app")

	origin := storage.NewOrigin()
	s := storage.Broadcasting(origin.Open(), a, a.ID())
	if err := s.SetItem(context.Background(), "sharedstate:n", "1"); err != nil {
		t.Fatalf("SetItem() error: %v", err)
	}

	ev := receive(t, b)
	if ev.Key != "sharedstate:n" || ev.Value != "1" {
		t.Errorf("b received %+v", ev)
	}
}
