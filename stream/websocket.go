package stream

import (
	"net/http"
	"sync"
	"time"

	"chat-relay-service/models"

	"github.com/gorilla/websocket"
)

const wsWriteWait = 10 * time.Second

// WSWriter sends each event as a JSON text frame
type WSWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWSWriter(conn *websocket.Conn) *WSWriter {
	return &WSWriter{conn: conn}
}

func (w *WSWriter) Emit(event models.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteJSON(event)
}

// Close sends a normal closure frame and closes the connection
func (w *WSWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended")
	w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
	return w.conn.Close()
}

// NewUpgrader accepts connections from the allowed origins. "*" or a request
// without an Origin header is always accepted.
func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowAll || origin == "" || allowed[origin]
		},
	}
}
