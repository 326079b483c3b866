package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/maths-nerds-server/internal/protocol"
	"github.com/park285/maths-nerds-server/internal/session"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

var ErrClosed = errors.New("gateway closed")

// Gateway accepts websocket connections on one HTTP route and feeds their
// frames into the session service.
type Gateway struct {
	svc    *session.Service
	logger *zap.Logger

	origins      []string
	readLimit    int64
	outboxSize   int
	pingInterval time.Duration
	writeTimeout time.Duration
	newID        func() string

	mu      sync.Mutex
	clients map[string]*client
	closed  bool
	wg      sync.WaitGroup
}

type Option func(*Gateway)

// WithOrigins sets the accepted Origin host patterns. "*" accepts any origin.
func WithOrigins(patterns []string) Option {
	return func(g *Gateway) { g.origins = append([]string(nil), patterns...) }
}

func WithReadLimit(n int64) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.readLimit = n
		}
	}
}

func WithOutboxSize(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.outboxSize = n
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.pingInterval = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

func WithIDSource(fn func() string) Option {
	return func(g *Gateway) {
		if fn != nil {
			g.newID = fn
		}
	}
}

func New(svc *session.Service, opts ...Option) *Gateway {
	g := &Gateway{
		svc:          svc,
		logger:       zap.NewNop(),
		readLimit:    64 << 10,
		outboxSize:   64,
		pingInterval: 30 * time.Second,
		writeTimeout: 5 * time.Second,
		newID:        uuid.NewString,
		clients:      make(map[string]*client),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) acceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{CompressionMode: websocket.CompressionNoContextTakeover}
	for _, o := range g.origins {
		if o == "*" {
			opts.InsecureSkipVerify = true
			return opts
		}
	}
	opts.OriginPatterns = g.origins
	return opts
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	g.wg.Add(1)
	g.mu.Unlock()
	defer g.wg.Done()

	conn, err := websocket.Accept(w, r, g.acceptOptions())
	if err != nil {
		// Accept has already written the HTTP error response
		g.logger.Info("ws_accept_rejected", zap.String("remote", r.RemoteAddr), zap.String("origin", r.Header.Get("Origin")), zap.Error(err))
		return
	}
	conn.SetReadLimit(g.readLimit)

	c := newClient(g.newID(), conn, g.outboxSize, g.logger)
	if err := g.track(c); err != nil {
		_ = conn.Close(websocket.StatusGoingAway, "server shutdown")
		return
	}
	defer g.untrack(c)

	if err := g.svc.Connect(c.id, c); err != nil {
		g.logger.Error("ws_register_error", zap.String("conn_id", c.id), zap.Error(err))
		_ = conn.Close(websocket.StatusInternalError, "register failed")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		c.writePump(ctx, g.pingInterval, g.writeTimeout)
	}()

	g.readLoop(ctx, c)

	g.svc.Disconnect(c.id)
	c.shutdown(websocket.StatusNormalClosure, "")
	<-pumpDone
	cancel()
}

func (g *Gateway) readLoop(ctx context.Context, c *client) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if !c.closing() {
				g.logger.Debug("ws_read_end", zap.String("conn_id", c.id), zap.Int("status", int(websocket.CloseStatus(err))), zap.Error(err))
			}
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			g.logger.Debug("ws_bad_frame", zap.String("conn_id", c.id), zap.Error(err))
			g.svc.Reject(c.id, session.ErrInvalidArgs)
			continue
		}
		g.dispatch(c.id, env)
	}
}

func (g *Gateway) track(c *client) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	g.clients[c.id] = c
	return nil
}

func (g *Gateway) untrack(c *client) {
	g.mu.Lock()
	delete(g.clients, c.id)
	g.mu.Unlock()
}

// Connections is the number of sockets currently open on this gateway.
func (g *Gateway) Connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

// Close stops accepting sockets, closes the open ones and waits for their
// handlers to return.
func (g *Gateway) Close(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	for _, c := range g.clients {
		c.shutdown(websocket.StatusGoingAway, "server shutdown")
	}
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
