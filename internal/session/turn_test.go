package session

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/park285/maths-nerds-server/internal/protocol"
)

var turnEnd = json.RawMessage(`{"type":"TURN_END"}`)

func TestStartGameNeedsTwoMembers(t *testing.T) {
	s := newTestService(t)
	ra := connect(t, s, "a")
	code, _ := s.CreateRoom("a", "Alice")
	ra.reset()

	started, err := s.StartGame("a", code, nil)
	if err != nil || started {
		t.Fatalf("expected silent no-op, got started=%v err=%v", started, err)
	}
	if len(ra.all()) != 0 {
		t.Fatalf("no events expected, got %+v", ra.all())
	}
	if info, _ := s.Lookup(code); info.Started {
		t.Fatalf("room must stay not started")
	}
}

func TestStartGameAnnouncesToWholeRoom(t *testing.T) {
	s := newTestService(t)
	code, ra, rb := fullRoom(t, s, "a", "b")

	started, err := s.StartGame("b", code, json.RawMessage(`[[1,2],[3]]`))
	if err != nil || !started {
		t.Fatalf("StartGame: started=%v err=%v", started, err)
	}
	for _, rec := range []*recorder{ra, rb} {
		evs := rec.named(protocol.EvGameStarted)
		if len(evs) != 1 {
			t.Fatalf("expected one gameStarted, got %d", len(evs))
		}
		p := evs[0].Data.(gameStartedPayload)
		if p.CurrentPlayer != Player1 || len(p.Players) != 2 {
			t.Fatalf("unexpected payload %+v", p)
		}
		if p.GameState["currentPlayer"] != "player1" || p.GameState["gamePhase"] != "draw" {
			t.Fatalf("unexpected seeded state %+v", p.GameState)
		}
	}
	info, _ := s.Lookup(code)
	if !info.Started || info.CurrentPlayer != Player1 || info.TurnCount != 0 {
		t.Fatalf("unexpected room after start %+v", info)
	}
}

func TestStartGameTwiceIsNoop(t *testing.T) {
	s := newTestService(t)
	code, ra, _ := fullRoom(t, s, "a", "b")
	if _, err := s.StartGame("a", code, nil); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	if err := s.GameAction("a", code, turnEnd, ""); err != nil {
		t.Fatalf("GameAction: %v", err)
	}
	ra.reset()

	started, err := s.StartGame("b", code, nil)
	if err != nil || started {
		t.Fatalf("second start must be ignored: %v %v", started, err)
	}
	if len(ra.all()) != 0 {
		t.Fatalf("second start leaked events")
	}
	if info, _ := s.Lookup(code); info.CurrentPlayer != Player2 {
		t.Fatalf("second start must not reset the turn, got %s", info.CurrentPlayer)
	}
}

func TestStartGameByOutsiderIgnored(t *testing.T) {
	s := newTestService(t)
	code, ra, _ := fullRoom(t, s, "a", "b")
	connect(t, s, "c")
	started, err := s.StartGame("c", code, nil)
	if err != nil || started {
		t.Fatalf("outsider start must be ignored: %v %v", started, err)
	}
	if ra.count(protocol.EvGameStarted) != 0 {
		t.Fatalf("room must not start")
	}
}

func TestTurnEndAlternatesSeats(t *testing.T) {
	s := newTestService(t)
	code, ra, rb := fullRoom(t, s, "a", "b")
	if _, err := s.StartGame("a", code, nil); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	ra.reset()
	rb.reset()

	actors := []string{"a", "b", "a", "b"}
	want := []Seat{Player2, Player1, Player2, Player1}
	for i, actor := range actors {
		if err := s.GameAction(actor, code, turnEnd, ""); err != nil {
			t.Fatalf("GameAction %d: %v", i, err)
		}
		info, _ := s.Lookup(code)
		if info.CurrentPlayer != want[i] {
			t.Fatalf("after %d turn ends: got %s want %s", i+1, info.CurrentPlayer, want[i])
		}
	}
	if info, _ := s.Lookup(code); info.TurnCount != 4 {
		t.Fatalf("expected turn count 4, got %d", info.TurnCount)
	}

	for _, rec := range []*recorder{ra, rb} {
		changes := rec.named(protocol.EvTurnChanged)
		if len(changes) != 4 {
			t.Fatalf("expected 4 turnChanged, got %d", len(changes))
		}
		for i, ev := range changes {
			if got := ev.Data.(turnChangedPayload).CurrentPlayer; got != want[i] {
				t.Fatalf("turnChanged %d: got %s want %s", i, got, want[i])
			}
		}
	}
	// each side only sees the opponent's actions
	if ra.count(protocol.EvOpponentAction) != 2 || rb.count(protocol.EvOpponentAction) != 2 {
		t.Fatalf("unexpected relay counts a=%d b=%d",
			ra.count(protocol.EvOpponentAction), rb.count(protocol.EvOpponentAction))
	}
}

func TestRelayPrecedesTurnChange(t *testing.T) {
	s := newTestService(t)
	code, _, rb := fullRoom(t, s, "a", "b")
	s.StartGame("a", code, nil)
	rb.reset()

	if err := s.GameAction("a", code, turnEnd, ""); err != nil {
		t.Fatalf("GameAction: %v", err)
	}
	evs := rb.all()
	if len(evs) != 2 || evs[0].Event != protocol.EvOpponentAction || evs[1].Event != protocol.EvTurnChanged {
		t.Fatalf("unexpected order %+v", evs)
	}
}

func TestActionWithoutTurnEndKeepsTurn(t *testing.T) {
	s := newTestService(t)
	code, ra, rb := fullRoom(t, s, "a", "b")
	s.StartGame("a", code, nil)
	ra.reset()
	rb.reset()

	action := json.RawMessage(`{"type":"PLAY_CARD","card":7}`)
	if err := s.GameAction("a", code, action, "custom-actor"); err != nil {
		t.Fatalf("GameAction: %v", err)
	}
	relayed := rb.named(protocol.EvOpponentAction)
	if len(relayed) != 1 {
		t.Fatalf("expected one relay, got %+v", rb.all())
	}
	p := relayed[0].Data.(opponentActionPayload)
	if string(p.Action) != string(action) || p.PlayerID != "custom-actor" {
		t.Fatalf("relay altered the action: %+v", p)
	}
	if len(ra.all()) != 0 {
		t.Fatalf("sender must not receive its own action")
	}
	if info, _ := s.Lookup(code); info.CurrentPlayer != Player1 || info.TurnCount != 0 {
		t.Fatalf("turn moved without TURN_END: %+v", info)
	}
}

func TestActionDefaultsActorToConnection(t *testing.T) {
	s := newTestService(t)
	code, _, rb := fullRoom(t, s, "a", "b")
	s.StartGame("a", code, nil)
	rb.reset()

	s.GameAction("a", code, json.RawMessage(`{"type":"DRAW"}`), "")
	if got := rb.named(protocol.EvOpponentAction)[0].Data.(opponentActionPayload).PlayerID; got != "a" {
		t.Fatalf("expected actor a, got %q", got)
	}
}

func TestActionBeforeStartDropped(t *testing.T) {
	s := newTestService(t)
	code, ra, rb := fullRoom(t, s, "a", "b")
	if err := s.GameAction("a", code, turnEnd, ""); err != nil {
		t.Fatalf("expected silent drop, got %v", err)
	}
	if len(ra.all()) != 0 || len(rb.all()) != 0 {
		t.Fatalf("dropped action produced events")
	}
	if err := s.GameAction("a", "999999", turnEnd, ""); err != nil {
		t.Fatalf("unknown room must be a silent drop, got %v", err)
	}
}

func TestActionByOutsiderRejected(t *testing.T) {
	s := newTestService(t)
	code, ra, rb := fullRoom(t, s, "a", "b")
	s.StartGame("a", code, nil)
	ra.reset()
	rb.reset()
	rc := connect(t, s, "c")

	if err := s.GameAction("c", code, turnEnd, ""); !errors.Is(err, ErrNotInRoom) {
		t.Fatalf("expected ErrNotInRoom, got %v", err)
	}
	if errorCode(t, rc.named(protocol.EvError)[0]) != protocol.CodeNotInRoom {
		t.Fatalf("expected NOT_IN_ROOM")
	}
	if len(ra.all())+len(rb.all()) != 0 {
		t.Fatalf("outsider action reached the room")
	}
	if info, _ := s.Lookup(code); info.CurrentPlayer != Player1 {
		t.Fatalf("outsider moved the turn")
	}
}

func TestStartedSurvivesDeparture(t *testing.T) {
	s := newTestService(t)
	code, ra, _ := fullRoom(t, s, "a", "b")
	s.StartGame("a", code, nil)
	s.Disconnect("b")
	ra.reset()

	info, _ := s.Lookup(code)
	if !info.Started {
		t.Fatalf("started flag must not reset when a member leaves")
	}
	if err := s.GameAction("a", code, turnEnd, ""); err != nil {
		t.Fatalf("GameAction: %v", err)
	}
	if ra.count(protocol.EvTurnChanged) != 1 {
		t.Fatalf("turn change should still reach the remaining member")
	}
}

func TestSeatText(t *testing.T) {
	var s Seat
	if err := s.UnmarshalText([]byte("player2")); err != nil || s != Player2 {
		t.Fatalf("UnmarshalText: %v %v", s, err)
	}
	if err := s.UnmarshalText([]byte("bench")); err == nil {
		t.Fatalf("expected error for unknown seat")
	}
	b, _ := json.Marshal(map[string]Seat{"currentPlayer": Player2})
	if string(b) != `{"currentPlayer":"player2"}` {
		t.Fatalf("unexpected encoding %s", b)
	}
}

func TestTurnEndUpdatesStoredState(t *testing.T) {
	s := newTestService(t)
	code, _, _ := fullRoom(t, s, "a", "b")
	s.StartGame("a", code, nil)
	before, _ := s.State(code)

	s.GameAction("a", code, turnEnd, "")
	st, err := s.State(code)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st["currentPlayer"] != "player2" {
		t.Fatalf("stored state not following the turn: %v", st["currentPlayer"])
	}
	if before["currentPlayer"] != "player1" {
		t.Fatalf("earlier copy was mutated: %v", before["currentPlayer"])
	}

	s.GameAction("b", code, turnEnd, "")
	if st, _ := s.State(code); st["currentPlayer"] != "player1" {
		t.Fatalf("expected player1 after second turn end, got %v", st["currentPlayer"])
	}
}

func TestTurnEndLeavesClearedStateAlone(t *testing.T) {
	s := newTestService(t)
	code, _, _ := fullRoom(t, s, "a", "b")
	s.StartGame("a", code, nil)
	if err := s.SyncState("a", code, json.RawMessage(`null`)); err != nil {
		t.Fatalf("SyncState: %v", err)
	}
	s.GameAction("a", code, turnEnd, "")
	if st, _ := s.State(code); st != nil {
		t.Fatalf("cleared state should stay nil, got %v", st)
	}
}
