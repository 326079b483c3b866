package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/maths-nerds-server/internal/protocol"
)

// Seat identifies one of the two places at a table. Seats are assigned by
// arrival order and never by request content.
type Seat int

const (
	Player1 Seat = iota
	Player2
)

const maxMembers = 2

func (s Seat) String() string {
	if s == Player2 {
		return "player2"
	}
	return "player1"
}

// Other returns the opposing seat.
func (s Seat) Other() Seat {
	if s == Player1 {
		return Player2
	}
	return Player1
}

func (s Seat) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Seat) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "player1", "0":
		*s = Player1
	case "player2", "1":
		*s = Player2
	default:
		return fmt.Errorf("unknown seat %q", string(b))
	}
	return nil
}

func seatAt(i int) Seat {
	if i == 1 {
		return Player2
	}
	return Player1
}

// Outbox receives events for one live connection. Deliver must not block;
// it reports false when the event was dropped.
type Outbox interface {
	Deliver(ev protocol.Outbound) bool
}

// Connection is the registry's record of one transport session.
type Connection struct {
	ID       string
	Name     string
	RoomCode string
	Ready    bool

	out Outbox
}

// Room is a bounded two-seat game session keyed by a 6-digit code.
type Room struct {
	Code      string
	Members   []string // connection ids in arrival order
	State     map[string]any
	Started   bool
	Turn      Seat
	TurnCount int
	CreatedAt time.Time

	gen         uint64
	everStarted bool
	history     []PlayerView
}

func (r *Room) indexOf(connID string) int {
	for i, id := range r.Members {
		if id == connID {
			return i
		}
	}
	return -1
}

func (r *Room) full() bool { return len(r.Members) >= maxMembers }

// RoomInfo is a read-only snapshot of a room.
type RoomInfo struct {
	Code          string
	Players       []PlayerView
	Started       bool
	CurrentPlayer Seat
	TurnCount     int
	CreatedAt     time.Time
}

// RoomSummary describes a room that has just been deleted.
type RoomSummary struct {
	Code      string
	Players   []PlayerView // everyone who ever held a seat, in join order
	Started   bool
	TurnCount int
	CreatedAt time.Time
	ClosedAt  time.Time
}

// JoinResult is the outcome of an accepted join.
type JoinResult struct {
	RoomCode string
	Seat     Seat
	Full     bool
}

// Observer is told about room lifecycle changes. Calls happen while the
// service lock is held, so implementations must only enqueue.
type Observer interface {
	RoomUpdated(info RoomInfo)
	RoomClosed(summary RoomSummary)
}
