package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaronLay10/StrideQuest/internal/events"
)

const (
	// backlog replayed to a new client
	wsBacklog = 50

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The run screen is served from the device itself or a companion app.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsClient is one connected run screen or dashboard.
type wsClient struct {
	conn *websocket.Conn
	sub  events.Subscriber
	gone chan struct{} // closed when the peer stops reading
}

// wsEventsHandler streams events to a client: the recent backlog first, then
// every new event until either side closes. Repeated ?category= parameters
// narrow the stream, e.g. ?category=choice&category=charge for the run screen.
func wsEventsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}
	categories := r.URL.Query()["category"]
	c := &wsClient{
		conn: conn,
		sub:  events.Subscribe(categories...),
		gone: make(chan struct{}),
	}
	defer conn.Close()
	defer events.Unsubscribe(c.sub)

	for _, e := range events.RecentEvents(wsBacklog, categories...) {
		if err := c.send(e); err != nil {
			return
		}
	}
	go c.readPump()
	c.writePump()
}

func (c *wsClient) send(e events.Event) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(e); err != nil {
		slog.Debug("ws write failed", "error", err)
		return err
	}
	return nil
}

// readPump discards client frames; it exists to process pongs and notice
// a closed peer.
func (c *wsClient) readPump() {
	defer close(c.gone)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump returns when the peer leaves, a write fails, or shutdown closes
// the subscription.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.gone:
			return
		case e, ok := <-c.sub:
			if !ok {
				return
			}
			if c.send(e) != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
