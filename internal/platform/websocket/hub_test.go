package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/neuroreach/intake/internal/platform/events"
)

func scored(tier string) events.LeadScored {
	return events.LeadScored{Type: events.TypeLeadScored, LeadID: "lead-" + tier, Tier: tier, Score: 150}
}

func drain(c *Client) []events.LeadScored {
	var out []events.LeadScored
	for {
		select {
		case raw, ok := <-c.Send:
			if !ok {
				return out
			}
			var e events.LeadScored
			_ = json.Unmarshal(raw, &e)
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestHub_FiltersByTier(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hot := newClient([]string{"hot"})
	all := newClient(nil)
	hub.Register(hot)
	hub.Register(all)

	for _, tier := range []string{"HOT", "LOW"} {
		if err := hub.PublishLeadScored(context.Background(), scored(tier)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := drain(hot); len(got) != 1 || got[0].Tier != "HOT" {
		t.Errorf("expected only the HOT notice, got %+v", got)
	}
	if got := drain(all); len(got) != 2 {
		t.Errorf("expected 2 notices for an unfiltered client, got %d", len(got))
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newClient([]string{"HOT"})
	hub.Register(c)

	hub.ProcessMessage(c, ClientMessage{Action: "subscribe", Tiers: []string{"medium"}})
	hub.ProcessMessage(c, ClientMessage{Action: "unsubscribe", Tiers: []string{"HOT"}})
	hub.ProcessMessage(c, ClientMessage{Action: "bogus", Tiers: []string{"LOW"}})

	_ = hub.PublishLeadScored(context.Background(), scored("HOT"))
	_ = hub.PublishLeadScored(context.Background(), scored("MEDIUM"))
	_ = hub.PublishLeadScored(context.Background(), scored("LOW"))

	if got := drain(c); len(got) != 1 || got[0].Tier != "MEDIUM" {
		t.Errorf("expected only MEDIUM, got %+v", got)
	}
}

func TestHub_SlowClientDoesNotBlock(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newClient(nil)
	hub.Register(c)

	done := make(chan struct{})
	go func() {
		for i := 0; i < sendBuffer*2; i++ {
			_ = hub.PublishLeadScored(context.Background(), scored("HOT"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full client buffer")
	}
	if n := len(c.Send); n != sendBuffer {
		t.Errorf("expected a full buffer of %d, got %d", sendBuffer, n)
	}
}

func TestHub_UnregisterAndClose(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	a, b := newClient(nil), newClient(nil)
	hub.Register(a)
	hub.Register(b)

	hub.Unregister(a)
	hub.Unregister(a)
	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if _, ok := <-a.Send; ok {
		t.Error("expected closed channel")
	}

	if err := hub.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("expected no clients after close, got %d", hub.ClientCount())
	}
	hub.Unregister(b)
}

func newStreamServer(t *testing.T, origins []string) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	e.GET("/leads/stream", NewHandler(hub, origins).Stream)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return hub, srv
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandler_StreamDeliversNotices(t *testing.T) {
	hub, srv := newStreamServer(t, []string{"http://localhost:3000"})
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/leads/stream?tier=HOT"

	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	_ = hub.PublishLeadScored(context.Background(), scored("LOW"))
	_ = hub.PublishLeadScored(context.Background(), scored("HOT"))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got events.LeadScored
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Tier != "HOT" || got.LeadID != "lead-HOT" {
		t.Errorf("expected the HOT notice first, got %+v", got)
	}

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func TestHandler_RejectsUnknownOrigin(t *testing.T) {
	_, srv := newStreamServer(t, []string{"http://localhost:3000"})
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/leads/stream"

	header := http.Header{"Origin": {"https://evil.example"}}
	_, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %v", resp)
	}
}

func TestHandler_PlainHTTPRequest(t *testing.T) {
	_, srv := newStreamServer(t, nil)
	resp, err := http.Get(srv.URL + "/leads/stream")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for a non-upgrade request, got %d", resp.StatusCode)
	}
}
