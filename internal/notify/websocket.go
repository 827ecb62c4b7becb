package notify

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// AccountResolver returns the authenticated account for the request.
type AccountResolver func(r *http.Request) (uuid.UUID, bool)

// WebSocketHandler subscribes the caller to its own account's events and
// writes them as JSON text frames.
type WebSocketHandler struct {
	hub     *Hub
	resolve AccountResolver
	log     zerolog.Logger
}

func NewWebSocketHandler(hub *Hub, resolve AccountResolver, log zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, resolve: resolve, log: log}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.resolve(r)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sub := h.hub.Subscribe(accountID)
	h.log.Debug().Str("account_id", accountID.String()).Msg("notification subscriber connected")

	go h.readPump(ws, sub)
	h.writePump(ws, sub)
}

// readPump drains client frames so pongs and close frames are processed.
func (h *WebSocketHandler) readPump(ws *websocket.Conn, sub *Subscription) {
	defer sub.Close()

	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) writePump(ws *websocket.Conn, sub *Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		ws.Close()
	}()

	for {
		select {
		case event, ok := <-sub.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
