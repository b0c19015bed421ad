package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"poker-table/internal/middleware"
	"poker-table/internal/protocol"
)

const (
	maxMessageSize = 8 * 1024
	maxCloseReason = 120
)

// Client is one websocket connection bound to a (table, player) pair. The
// read and write pumps each own one direction of the socket.
type Client struct {
	id       string
	tableID  string
	playerID string
	conn     *websocket.Conn
	send     chan []byte
	cfg      Config
	registry Registry
	limiter  *middleware.RateLimiter
	log      *zap.Logger

	closeOnce  sync.Once
	closing    chan struct{}
	closeFrame []byte
}

func (c *Client) ID() string {
	return c.id
}

// Send queues data for the write pump. A client whose buffer is full is
// too slow to follow the table and gets disconnected.
func (c *Client) Send(data []byte) bool {
	select {
	case <-c.closing:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		c.log.Warn("send buffer full, closing connection")
		c.Close(websocket.CloseTryAgainLater, "send buffer full")
		return false
	}
}

// Close sends a close frame with code and reason, then drops the socket.
// Only the first call has an effect.
func (c *Client) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		if len(reason) > maxCloseReason {
			reason = reason[:maxCloseReason]
		}
		c.closeFrame = websocket.FormatCloseMessage(code, reason)
		close(c.closing)
	})
}

func (c *Client) sendError(message string) {
	c.Send(protocol.MustEncode(protocol.TypeError, protocol.ErrorMessage{Message: message}))
}

// ReadPump decodes inbound frames and hands them to the registry. It returns
// when the socket fails or the peer stops answering pings, and then
// unregisters the connection.
func (c *Client) ReadPump() {
	defer func() {
		c.registry.Leave(c.tableID, c.id)
		c.limiter.Forget(c.id)
		c.Close(websocket.CloseNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.extendDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.extendDeadline()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Info("connection lost", zap.Error(err))
			} else {
				c.log.Debug("connection closed", zap.Error(err))
			}
			return
		}
		c.extendDeadline()

		if !c.limiter.Allow(c.id) {
			c.sendError("rate limit exceeded")
			continue
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			c.log.Debug("rejected message", zap.Error(err))
			c.sendError(err.Error())
			continue
		}
		c.registry.Dispatch(c.tableID, c.id, msg)
	}
}

func (c *Client) extendDeadline() {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
}

// WritePump writes queued messages and pings the peer every PingInterval.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				c.log.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.log.Debug("ping failed", zap.Error(err))
				return
			}
		case <-c.closing:
			c.flushQueued()
			_ = c.conn.WriteControl(websocket.CloseMessage, c.closeFrame, time.Now().Add(c.cfg.WriteWait))
			return
		}
	}
}

// flushQueued writes whatever is already buffered before the close frame,
// so a rejected client still sees why.
func (c *Client) flushQueued() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	return c.conn.WriteMessage(messageType, data)
}
