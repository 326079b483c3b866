package matchlog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/park285/maths-nerds-server/internal/protocol"
	"github.com/park285/maths-nerds-server/internal/session"
)

type fakeSaver struct {
	mu    sync.Mutex
	saved []session.RoomSummary
	err   error
}

func (f *fakeSaver) SaveRoom(_ context.Context, sum session.RoomSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, sum)
	return nil
}

type discard struct{}

func (discard) Deliver(protocol.Outbound) bool { return true }

func closeRecorder(t *testing.T, r *Recorder) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestRecorderSavesPlayedRooms(t *testing.T) {
	saver := &fakeSaver{}
	rec := NewRecorder(saver, 8, nil)
	rec.Start()

	svc := session.NewService(session.WithObserver(rec))
	for _, id := range []string{"a", "b", "c"} {
		svc.Connect(id, discard{})
	}
	code, _ := svc.CreateRoom("a", "Ann")
	svc.JoinRoom("b", code, "Ben")
	svc.StartGame("a", code, nil)
	svc.GameAction("a", code, json.RawMessage(`{"type":"TURN_END"}`), "")
	svc.Disconnect("a")
	svc.Disconnect("b")

	// solo room: never recorded
	svc.CreateRoom("c", "Cat")
	svc.Disconnect("c")

	closeRecorder(t, rec)
	if len(saver.saved) != 1 {
		t.Fatalf("expected one saved match, got %d", len(saver.saved))
	}
	sum := saver.saved[0]
	if sum.Code != code || !sum.Started || sum.TurnCount != 1 || len(sum.Players) != 2 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestRecorderSurvivesSaveErrors(t *testing.T) {
	saver := &fakeSaver{err: errors.New("db down")}
	rec := NewRecorder(saver, 8, nil)
	rec.Start()
	rec.RoomClosed(session.RoomSummary{Code: "111111", Players: make([]session.PlayerView, 2)})
	closeRecorder(t, rec)
	// closed recorder ignores late rooms
	rec.RoomClosed(session.RoomSummary{Code: "222222", Players: make([]session.PlayerView, 2)})
}

func TestRowOf(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sum := session.RoomSummary{
		Code: "123456",
		Players: []session.PlayerView{
			{ID: "a", Name: "Ann", PlayerNumber: session.Player1},
			{ID: "b", Name: "Ben", PlayerNumber: session.Player2},
			{ID: "c", Name: "Cat", PlayerNumber: session.Player2},
		},
		Started:   true,
		TurnCount: 7,
		CreatedAt: created,
		ClosedAt:  created.Add(90 * time.Second),
	}
	row, err := rowOf(sum)
	if err != nil {
		t.Fatalf("rowOf: %v", err)
	}
	if _, err := uuid.Parse(row.id); err != nil {
		t.Fatalf("match id is not a uuid: %q", row.id)
	}
	if row.p1ID != "a" || row.p2ID != "b" || row.p2Name != "Ben" {
		t.Fatalf("seat columns should hold first occupants: %+v", row)
	}
	if row.durationMs != 90000 || row.turns != 7 || !row.started {
		t.Fatalf("unexpected row %+v", row)
	}
	var players []map[string]any
	if err := json.Unmarshal([]byte(row.players), &players); err != nil || len(players) != 3 {
		t.Fatalf("players column: %v %s", err, row.players)
	}
	if players[2]["playerNumber"] != "player2" {
		t.Fatalf("seat not encoded as label: %v", players[2])
	}
	if n := len(row.args()); n != 12 {
		t.Fatalf("expected 12 query args, got %d", n)
	}

	sum.ClosedAt = created.Add(-time.Second)
	if row, _ := rowOf(sum); row.durationMs != 0 {
		t.Fatalf("negative duration should clamp to zero")
	}
}

func TestNewRepositoryRequiresURL(t *testing.T) {
	if _, err := NewRepository("  "); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
