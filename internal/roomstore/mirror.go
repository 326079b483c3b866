package roomstore

import (
	"context"
	"sync"
	"time"

	"github.com/park285/maths-nerds-server/internal/session"
	"go.uber.org/zap"
)

type mirrorOp struct {
	snap   Snapshot
	delete bool
}

// Mirror copies room lifecycle changes into the Store from a single worker
// goroutine. Its observer methods only enqueue; a full queue drops the
// change with a warning.
type Mirror struct {
	store   *Store
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	queue  chan mirrorOp
	closed bool
	wg     sync.WaitGroup
}

func NewMirror(store *Store, size int, logger *zap.Logger) *Mirror {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{
		store:   store,
		logger:  logger,
		timeout: 2 * time.Second,
		now:     time.Now,
		queue:   make(chan mirrorOp, size),
	}
}

func (m *Mirror) Start() {
	m.wg.Add(1)
	go m.run()
}

func (m *Mirror) run() {
	defer m.wg.Done()
	for op := range m.queue {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		var err error
		if op.delete {
			err = m.store.Delete(ctx, op.snap.Code)
		} else {
			err = m.store.Save(ctx, op.snap)
		}
		cancel()
		if err != nil {
			m.logger.Warn("room_mirror_error", zap.String("code", op.snap.Code), zap.Bool("delete", op.delete), zap.Error(err))
		}
	}
}

func (m *Mirror) enqueue(op mirrorOp) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- op:
	default:
		m.logger.Warn("room_mirror_drop", zap.String("code", op.snap.Code))
	}
}

func (m *Mirror) RoomUpdated(info session.RoomInfo) {
	m.enqueue(mirrorOp{snap: snapshotOf(info, m.now())})
}

func (m *Mirror) RoomClosed(sum session.RoomSummary) {
	m.enqueue(mirrorOp{snap: Snapshot{Code: sum.Code}, delete: true})
}

// Close stops accepting changes and waits for the queue to drain.
func (m *Mirror) Close(ctx context.Context) error {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func snapshotOf(info session.RoomInfo, now time.Time) Snapshot {
	players := make([]Player, 0, len(info.Players))
	for _, p := range info.Players {
		players = append(players, Player{ID: p.ID, Name: p.Name, Seat: p.PlayerNumber.String()})
	}
	return Snapshot{
		Code:          info.Code,
		Players:       players,
		Started:       info.Started,
		CurrentPlayer: info.CurrentPlayer.String(),
		TurnCount:     info.TurnCount,
		CreatedAt:     info.CreatedAt,
		UpdatedAt:     now,
	}
}
