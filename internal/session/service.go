package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBotTimeout = 20 * time.Second
	defaultCreator    = "Player1"
	defaultJoiner     = "Player2"
	defaultChatter    = "Player"
)

// Assistant produces a free-text answer for a prompt.
type Assistant interface {
	Reply(ctx context.Context, prompt string) (string, error)
}

// Texts supplies the fixed strings of the chat relay.
type Texts interface {
	BotName() string
	BotFallback() string
	Prompt(message string) (string, error)
	// ErrorText returns the wording for a rejection code, or fallback.
	ErrorText(code, fallback string) string
}

// Service owns the connection and room registries. Every exported method
// runs to completion under mu; only the assistant leg of Chat runs outside it.
type Service struct {
	mu    sync.Mutex
	conns map[string]*Connection
	names map[string]string
	rooms map[string]*Room
	gen   uint64

	assistant  Assistant
	texts      Texts
	observers  []Observer
	codes      func() string
	now        func() time.Time
	botTimeout time.Duration
	logger     *zap.Logger

	bots sync.WaitGroup
}

type Option func(*Service)

func WithAssistant(a Assistant) Option {
	return func(s *Service) { s.assistant = a }
}

func WithTexts(t Texts) Option {
	return func(s *Service) {
		if t != nil {
			s.texts = t
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithCodeSource replaces the random room-code generator.
func WithCodeSource(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.codes = fn
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithBotTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.botTimeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(opts ...Option) *Service {
	s := &Service{
		conns:      make(map[string]*Connection),
		names:      make(map[string]string),
		rooms:      make(map[string]*Room),
		texts:      builtinTexts{},
		codes:      randomCode,
		now:        time.Now,
		botTimeout: defaultBotTimeout,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wait blocks until every in-flight assistant reply has been delivered or dropped.
func (s *Service) Wait() { s.bots.Wait() }

// WaitContext is Wait bounded by ctx.
func (s *Service) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.bots.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

type builtinTexts struct{}

func (builtinTexts) BotName() string { return "Maths Nerds Bot" }

func (builtinTexts) BotFallback() string {
	return "Sorry, I can't answer right now. Please try again in a moment."
}

func (builtinTexts) ErrorText(_, fallback string) string { return fallback }

func (builtinTexts) Prompt(message string) (string, error) {
	return "You are the rules assistant of the Maths Nerds card game. Answer briefly.\n\nQuestion: " + message, nil
}
