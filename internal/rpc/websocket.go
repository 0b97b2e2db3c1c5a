package rpc

import (
	"context"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/coder/websocket"
)

// WebSocketHandler serves the dispatcher over WebSocket: one JSON request
// per text frame, answered in order with one JSON response per frame.
type WebSocketHandler struct {
	d *Dispatcher

	// OriginPatterns are passed to websocket.Accept. Empty allows only
	// same-origin browsers.
	OriginPatterns []string
}

// NewWebSocketHandler returns a handler for d.
func NewWebSocketHandler(d *Dispatcher) *WebSocketHandler {
	return &WebSocketHandler{d: d}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.OriginPatterns,
	})
	if err != nil {
		log.Warn("rpc: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	if err := h.serve(r.Context(), conn); err != nil {
		log.Debug("rpc: websocket closed", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *WebSocketHandler) serve(ctx context.Context, conn *websocket.Conn) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			if err := conn.Close(websocket.StatusUnsupportedData, "text frames only"); err != nil {
				return err
			}
			return nil
		}
		if err := conn.Write(ctx, websocket.MessageText, h.d.HandleJSON(ctx, data)); err != nil {
			return err
		}
	}
}
