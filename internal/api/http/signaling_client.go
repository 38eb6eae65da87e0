package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skillsphere/meetings/internal/domain"
	"github.com/skillsphere/meetings/lib/logger/sl"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// signalingClient is one websocket connection. Outbound events go through a
// bounded queue drained by writePump; a client whose queue is full is
// disconnected instead of slowing down everyone else.
type signalingClient struct {
	id       string
	identity domain.Identity
	conn     *websocket.Conn
	send     chan domain.SignalMessage
	log      *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func newSignalingClient(id string, identity domain.Identity, conn *websocket.Conn, buffer int, log *slog.Logger) *signalingClient {
	return &signalingClient{
		id:       id,
		identity: identity,
		conn:     conn,
		send:     make(chan domain.SignalMessage, buffer),
		log:      log,
		done:     make(chan struct{}),
	}
}

func (c *signalingClient) ID() string { return c.id }

// Send queues msg without blocking.
func (c *signalingClient) Send(msg domain.SignalMessage) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		c.log.Warn("send queue full, dropping connection", slog.String("type", msg.Type))
		c.close()
		return false
	}
}

func (c *signalingClient) sendError(err error, code string) {
	message := err.Error()
	if code == "internal" {
		message = "internal error"
	}
	c.Send(domain.NewEvent(domain.TypeError, "", domain.ErrorPayload{Code: code, Message: message}))
}

func (c *signalingClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump decodes inbound events and hands them to handle in arrival order.
// It returns when the connection fails or is closed.
func (c *signalingClient) readPump(maxMessageSize int64, handle func(msg domain.SignalMessage)) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Info("websocket read failed", sl.Err(err))
			}
			return
		}

		var msg domain.SignalMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
			c.sendError(errMalformedEvent, "invalid_message")
			continue
		}
		handle(msg)
	}
}

// writePump is the only writer on the connection.
func (c *signalingClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Debug("websocket write failed", sl.Err(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
