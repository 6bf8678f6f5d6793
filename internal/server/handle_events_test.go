package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

// readFirstSSEData scans the stream until the first data: line.
func readFirstSSEData(t *testing.T, body *bufio.Scanner) string {
	t.Helper()
	for body.Scan() {
		line := body.Text()
		if data, found := strings.CutPrefix(line, "data: "); found {
			return data
		}
	}
	t.Fatal("stream ended without a data line")
	return ""
}

func TestTimerEventsImmediateResync(t *testing.T) {
	ts := newTestServer(t)
	ts.start(t, "kiosk1", "TRIVIA", "Abel", 120)

	srv := httptest.NewServer(ts.mux)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/kiosk1/session/events", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}

	data := readFirstSSEData(t, bufio.NewScanner(resp.Body))
	var upd TimerUpdate
	if err := json.Unmarshal([]byte(data), &upd); err != nil {
		t.Fatalf("decoding %q: %v", data, err)
	}
	if upd.Type != "TIMER_UPDATE" {
		t.Errorf("type = %q", upd.Type)
	}
	if upd.RemainingSeconds != 120 || upd.IsExpired {
		t.Errorf("update = %+v", upd)
	}
}

func TestTimerEventsRequireSession(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/kiosk1/session/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestTimerWSImmediateResync(t *testing.T) {
	ts := newTestServer(t)
	ts.start(t, "kiosk1", "TRIVIA", "Abel", 90)

	srv := httptest.NewServer(ts.mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + srv.URL[len("http"):] + "/api/kiosk1/session/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	_, msg, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var upd TimerUpdate
	if err := json.Unmarshal(msg, &upd); err != nil {
		t.Fatalf("decoding %q: %v", msg, err)
	}
	if upd.Type != "TIMER_UPDATE" || upd.RemainingSeconds != 90 {
		t.Errorf("update = %+v", upd)
	}

	conn.Close(websocket.StatusNormalClosure, "done")
}
