package matchlog

import (
	"context"
	"sync"
	"time"

	"github.com/park285/maths-nerds-server/internal/session"
	"go.uber.org/zap"
)

type Saver interface {
	SaveRoom(ctx context.Context, sum session.RoomSummary) error
}

// Recorder persists closed rooms off the session lock. Rooms where nobody
// but the creator ever sat down are skipped.
type Recorder struct {
	saver   Saver
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	queue  chan session.RoomSummary
	closed bool
	wg     sync.WaitGroup
}

func NewRecorder(saver Saver, size int, logger *zap.Logger) *Recorder {
	if size <= 0 {
		size = 128
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		saver:   saver,
		logger:  logger,
		timeout: 5 * time.Second,
		queue:   make(chan session.RoomSummary, size),
	}
}

func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.run()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for sum := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err := r.saver.SaveRoom(ctx, sum)
		cancel()
		if err != nil {
			r.logger.Error("match_save_error", zap.String("code", sum.Code), zap.Error(err))
			continue
		}
		r.logger.Info("match_saved", zap.String("code", sum.Code), zap.Bool("started", sum.Started), zap.Int("turns", sum.TurnCount))
	}
}

// RoomUpdated is a no-op; only closed rooms are recorded.
func (r *Recorder) RoomUpdated(session.RoomInfo) {}

func (r *Recorder) RoomClosed(sum session.RoomSummary) {
	if len(sum.Players) < 2 {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- sum:
	default:
		r.logger.Warn("match_record_drop", zap.String("code", sum.Code))
	}
}

// Close stops accepting rooms and waits for pending saves.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
