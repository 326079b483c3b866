package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/park285/maths-nerds-server/internal/protocol"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// client is the per-connection outbox. Deliver is called with the session
// lock held, so it never blocks: a full queue closes the connection instead.
type client struct {
	id   string
	conn *websocket.Conn
	send chan protocol.Outbound

	done      chan struct{}
	closeOnce sync.Once
	closeCode websocket.StatusCode
	closeMsg  string

	logger *zap.Logger
}

func newClient(id string, conn *websocket.Conn, size int, logger *zap.Logger) *client {
	if size <= 0 {
		size = 1
	}
	return &client{
		id:     id,
		conn:   conn,
		send:   make(chan protocol.Outbound, size),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (c *client) Deliver(ev protocol.Outbound) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		c.logger.Warn("ws_outbox_full", zap.String("conn_id", c.id), zap.String("event", ev.Event))
		c.shutdown(websocket.StatusPolicyViolation, "outbox full")
		return false
	}
}

// shutdown asks the write pump to close the socket. Safe to call repeatedly.
func (c *client) shutdown(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeMsg = reason
		close(c.done)
	})
}

func (c *client) closing() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// writePump is the only writer on conn. Events leave in queue order.
func (c *client) writePump(ctx context.Context, pingEvery, writeTimeout time.Duration) {
	t := time.NewTicker(pingEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			_ = c.conn.Close(c.closeCode, c.closeMsg)
			return
		case ev := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.conn, ev)
			cancel()
			if err != nil {
				c.logger.Debug("ws_write_error", zap.String("conn_id", c.id), zap.String("event", ev.Event), zap.Error(err))
				c.shutdown(websocket.StatusInternalError, "write failed")
			}
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				c.logger.Debug("ws_ping_error", zap.String("conn_id", c.id), zap.Error(err))
				c.shutdown(websocket.StatusGoingAway, "ping failure")
			}
		}
	}
}
