package server

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// handleWatch streams change notifications for the bots collection over a
// WebSocket. One subscription is held per connection and released when the
// request context ends.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("accept watch websocket", "err", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "watch ended")

	ctx := r.Context()
	sub, err := s.app.WatchBots(ctx)
	if err != nil {
		slog.Error("subscribe to change bus", "err", err)
		conn.Close(websocket.StatusInternalError, "subscription failed")
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, e); err != nil {
				return
			}
		}
	}
}
