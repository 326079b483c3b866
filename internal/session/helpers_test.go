package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/park285/maths-nerds-server/internal/protocol"
)

type recorder struct {
	mu     sync.Mutex
	events []protocol.Outbound
}

func (r *recorder) Deliver(ev protocol.Outbound) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return true
}

func (r *recorder) all() []protocol.Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Outbound(nil), r.events...)
}

func (r *recorder) named(name string) []protocol.Outbound {
	var out []protocol.Outbound
	for _, ev := range r.all() {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) count(name string) int { return len(r.named(name)) }

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

type assistantFunc func(ctx context.Context, prompt string) (string, error)

func (f assistantFunc) Reply(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type observerLog struct {
	mu      sync.Mutex
	updated []RoomInfo
	closed  []RoomSummary
}

func (o *observerLog) RoomUpdated(info RoomInfo) {
	o.mu.Lock()
	o.updated = append(o.updated, info)
	o.mu.Unlock()
}

func (o *observerLog) RoomClosed(sum RoomSummary) {
	o.mu.Lock()
	o.closed = append(o.closed, sum)
	o.mu.Unlock()
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	base := []Option{WithClock(func() time.Time { return time.Unix(1700000000, 0) })}
	return NewService(append(base, opts...)...)
}

func connect(t *testing.T, s *Service, id string) *recorder {
	t.Helper()
	rec := &recorder{}
	if err := s.Connect(id, rec); err != nil {
		t.Fatalf("Connect(%s): %v", id, err)
	}
	rec.reset()
	return rec
}

// fullRoom creates a room owned by a and joined by b, then clears both recorders.
func fullRoom(t *testing.T, s *Service, a, b string) (string, *recorder, *recorder) {
	t.Helper()
	ra := connect(t, s, a)
	rb := connect(t, s, b)
	code, err := s.CreateRoom(a, "Alice")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, err := s.JoinRoom(b, code, "Bob"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	ra.reset()
	rb.reset()
	return code, ra, rb
}

func errorCode(t *testing.T, ev protocol.Outbound) string {
	t.Helper()
	p, ok := ev.Data.(protocol.ErrorPayload)
	if !ok {
		t.Fatalf("error event carries %T", ev.Data)
	}
	return p.Code
}
