package websocket

import (
	"net/http"

	"github.com/coder/websocket"

	"github.com/dukerupert/tally/internal/auth"
)

// Handler upgrades the request and streams ledger events until the client
// disconnects. The actor must already be on the request context.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.FromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			h.logger.Warn("websocket accept", "error", err)
			return
		}

		client := newClient(h, conn, actor.FamilyID)
		h.register(client)
		defer func() {
			h.unregister(client)
			conn.Close(websocket.StatusNormalClosure, "")
		}()

		ctx := r.Context()
		go client.readPump(ctx)
		client.writePump(ctx)
	}
}
