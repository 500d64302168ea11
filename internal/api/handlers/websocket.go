package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	ws "github.com/turnover-cleaning/backend/internal/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxMessage = 65536
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The dashboard may be served from a different origin in development.
		return true
	},
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteMessage(messageType, data)
}

// WebSocketUpgrade returns a handler that upgrades HTTP connections to WebSocket.
func WebSocketUpgrade(hub *ws.Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		conn := &wsConn{Conn: raw}

		client := ws.NewClient(hub)
		hub.Register(client)

		go writePump(conn, client)
		go readPump(conn, client, hub, logger)
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func writePump(conn *wsConn, client *ws.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send():
			if !ok {
				// Hub closed the channel
				conn.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.write(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := conn.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps messages from the WebSocket connection to the hub.
func readPump(conn *wsConn, client *ws.Client, hub *ws.Hub, logger *slog.Logger) {
	defer func() {
		hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessage)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		if err := handleClientMessage(conn, message); err != nil {
			return
		}
	}
}

// handleClientMessage answers client commands. Only ping is supported; the
// stream itself is server to client.
func handleClientMessage(conn *wsConn, message []byte) error {
	var msg ws.Message
	if err := json.Unmarshal(message, &msg); err != nil {
		return replyError(conn, "invalid_message", "Message is not valid JSON", "")
	}

	switch msg.Type {
	case ws.TypePing:
		out, err := ws.NewMessage(ws.TypePong, nil).JSON()
		if err != nil {
			return err
		}
		return conn.write(websocket.TextMessage, out)
	default:
		return replyError(conn, "unsupported_type", "Unsupported message type", string(msg.Type))
	}
}

func replyError(conn *wsConn, code, message, originalType string) error {
	out, err := ws.NewMessage(ws.TypeError, ws.ErrorPayload{
		Code:         code,
		Message:      message,
		OriginalType: originalType,
	}).JSON()
	if err != nil {
		return err
	}
	return conn.write(websocket.TextMessage, out)
}
