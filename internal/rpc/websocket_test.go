package rpc

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketHandler(t *testing.T) {
	r := newFakeReader()
	srv := httptest.NewServer(NewWebSocketHandler(NewDispatcher(r, nil)))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	requests := []string{
		`{"id":"a","type":"start","speed":2}`,
		`{"id":"b","type":"pause"}`,
		`{"id":"c","type":"jump","index":4}`,
	}
	for _, req := range requests {
		if err := conn.Write(ctx, websocket.MessageText, []byte(req)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	for _, wantID := range []string{"a", "b", "c"} {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
		if resp.ID != wantID || !resp.OK {
			t.Errorf("resp = %+v, want ok %s", resp, wantID)
		}
	}

	if got := strings.Join(r.Calls(), ","); got != "start,pause,jump" {
		t.Errorf("calls = %s", got)
	}
	if r.Jumped() != 4 || r.Settings().Speed != 2 {
		t.Errorf("jumped %d speed %v", r.Jumped(), r.Settings().Speed)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestWebSocketRejectsBinary(t *testing.T) {
	srv := httptest.NewServer(NewWebSocketHandler(NewDispatcher(newFakeReader(), nil)))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	if err := conn.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, _, err = conn.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusUnsupportedData {
		t.Errorf("read err = %v, want unsupported data close", err)
	}
}
