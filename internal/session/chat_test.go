package session

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/maths-nerds-server/internal/protocol"
)

func chatMessages(rec *recorder, bot bool) []chatMessagePayload {
	var out []chatMessagePayload
	for _, ev := range rec.named(protocol.EvChatMessage) {
		p := ev.Data.(chatMessagePayload)
		if p.Bot == bot {
			out = append(out, p)
		}
	}
	return out
}

func TestChatReachesEachMemberOnce(t *testing.T) {
	s := newTestService(t)
	code, ra, rb := fullRoom(t, s, "a", "b")
	_, rc, rd := fullRoom(t, s, "c", "d")
	rx := connect(t, s, "x")

	if err := s.Chat("a", code, "  hi there ", ""); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	for _, rec := range []*recorder{ra, rb} {
		msgs := chatMessages(rec, false)
		if len(msgs) != 1 {
			t.Fatalf("expected exactly one delivery, got %d", len(msgs))
		}
		if msgs[0].Message != "hi there" || msgs[0].PlayerName != "Alice" {
			t.Fatalf("unexpected message %+v", msgs[0])
		}
		if msgs[0].Timestamp != time.Unix(1700000000, 0).UnixMilli() {
			t.Fatalf("unexpected timestamp %d", msgs[0].Timestamp)
		}
	}
	for _, rec := range []*recorder{rc, rd, rx} {
		if n := len(rec.all()); n != 0 {
			t.Fatalf("room chat leaked to an outsider (%d events)", n)
		}
	}
}

func TestChatWithoutRoomGoesToLobby(t *testing.T) {
	s := newTestService(t)
	_, ra, _ := fullRoom(t, s, "a", "b")
	rx := connect(t, s, "x")
	ry := connect(t, s, "y")

	if err := s.Chat("x", "", "anyone?", "Xavier"); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	for _, rec := range []*recorder{rx, ry} {
		if msgs := chatMessages(rec, false); len(msgs) != 1 || msgs[0].PlayerName != "Xavier" {
			t.Fatalf("lobby delivery wrong: %+v", rec.all())
		}
	}
	if len(ra.all()) != 0 {
		t.Fatalf("lobby chat reached a seated player")
	}
}

func TestChatRejections(t *testing.T) {
	s := newTestService(t)
	code, ra, _ := fullRoom(t, s, "a", "b")
	rx := connect(t, s, "x")

	if err := s.Chat("x", code, "let me in", ""); !errors.Is(err, ErrNotInRoom) {
		t.Fatalf("expected ErrNotInRoom, got %v", err)
	}
	if errorCode(t, rx.named(protocol.EvError)[0]) != protocol.CodeNotInRoom {
		t.Fatalf("expected NOT_IN_ROOM")
	}
	if err := s.Chat("a", code, "   ", ""); !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("expected ErrInvalidArgs, got %v", err)
	}
	if ra.count(protocol.EvChatMessage) != 0 {
		t.Fatalf("rejected chat was delivered")
	}
}

func TestChatBotReplyFollowsHumanMessage(t *testing.T) {
	var prompts atomic.Value
	s := newTestService(t, WithAssistant(assistantFunc(func(ctx context.Context, prompt string) (string, error) {
		prompts.Store(prompt)
		return " Twelve. ", nil
	})))
	code, ra, rb := fullRoom(t, s, "a", "b")

	if err := s.Chat("b", code, "what is 3*4?", ""); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	s.Wait()

	for _, rec := range []*recorder{ra, rb} {
		evs := rec.named(protocol.EvChatMessage)
		if len(evs) != 2 {
			t.Fatalf("expected human then bot message, got %d", len(evs))
		}
		if evs[0].Data.(chatMessagePayload).Bot {
			t.Fatalf("bot reply arrived before the human message")
		}
		bot := evs[1].Data.(chatMessagePayload)
		if !bot.Bot || bot.Message != "Twelve." || bot.PlayerName != "Maths Nerds Bot" {
			t.Fatalf("unexpected bot message %+v", bot)
		}
	}
	if p, _ := prompts.Load().(string); !strings.Contains(p, "what is 3*4?") {
		t.Fatalf("prompt does not carry the question: %q", p)
	}
}

func TestChatBotFailureSendsFallback(t *testing.T) {
	s := newTestService(t, WithAssistant(assistantFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("upstream 503")
	})))
	code, ra, _ := fullRoom(t, s, "a", "b")

	s.Chat("a", code, "rules?", "")
	s.Wait()

	bots := chatMessages(ra, true)
	if len(bots) != 1 || bots[0].Message != (builtinTexts{}).BotFallback() {
		t.Fatalf("expected fallback, got %+v", bots)
	}
}

func TestChatBotTimeoutSendsFallback(t *testing.T) {
	s := newTestService(t,
		WithBotTimeout(20*time.Millisecond),
		WithAssistant(assistantFunc(func(ctx context.Context, prompt string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})))
	code, ra, _ := fullRoom(t, s, "a", "b")

	s.Chat("a", code, "slow?", "")
	s.Wait()
	if bots := chatMessages(ra, true); len(bots) != 1 {
		t.Fatalf("expected one fallback after timeout, got %+v", bots)
	}
}

func TestChatBotDoesNotBlockRoom(t *testing.T) {
	release := make(chan struct{})
	s := newTestService(t, WithAssistant(assistantFunc(func(ctx context.Context, prompt string) (string, error) {
		<-release
		return "done", nil
	})))
	code, ra, rb := fullRoom(t, s, "a", "b")
	s.StartGame("a", code, nil)

	if err := s.Chat("a", code, "thinking...", ""); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	// the room keeps working while the assistant is pending
	if err := s.GameAction("a", code, turnEnd, ""); err != nil {
		t.Fatalf("GameAction: %v", err)
	}
	if rb.count(protocol.EvTurnChanged) != 1 {
		t.Fatalf("turn change should not wait for the assistant")
	}
	if len(chatMessages(ra, false)) != 1 {
		t.Fatalf("human message should be delivered before the assistant answers")
	}
	close(release)
	s.Wait()
	if len(chatMessages(rb, true)) != 1 {
		t.Fatalf("expected bot reply after release")
	}
}

func TestChatBotDroppedWhenRoomGone(t *testing.T) {
	release := make(chan struct{})
	s := newTestService(t,
		WithCodeSource(func() string { return "424242" }),
		WithAssistant(assistantFunc(func(ctx context.Context, prompt string) (string, error) {
			<-release
			return "late answer", nil
		})))
	code, ra, rb := fullRoom(t, s, "a", "b")
	s.Chat("a", code, "hello?", "")

	s.Disconnect("a")
	s.Disconnect("b")
	if _, err := s.Lookup(code); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("room should be gone")
	}
	// same code, new room
	recycled, rc, rd := fullRoom(t, s, "c", "d")
	if recycled != code {
		t.Fatalf("expected recycled code %s, got %s", code, recycled)
	}

	close(release)
	s.Wait()
	for _, rec := range []*recorder{ra, rb, rc, rd} {
		if bots := chatMessages(rec, true); len(bots) != 0 {
			t.Fatalf("stale bot reply delivered: %+v", bots)
		}
	}
}

func TestChatWithoutAssistantHasNoBotLeg(t *testing.T) {
	s := newTestService(t)
	code, ra, _ := fullRoom(t, s, "a", "b")
	s.Chat("a", code, "solo", "")
	s.Wait()
	if len(chatMessages(ra, true)) != 0 {
		t.Fatalf("unexpected bot reply")
	}
}

func TestWaitContextHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := newTestService(t, WithAssistant(assistantFunc(func(ctx context.Context, prompt string) (string, error) {
		<-release
		return "ok", nil
	})))
	code, _, _ := fullRoom(t, s, "a", "b")
	s.Chat("a", code, "wait", "")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.WaitContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestChatSeatedSenderWithoutCodeTalksToOwnRoom(t *testing.T) {
	s := newTestService(t, WithAssistant(assistantFunc(func(ctx context.Context, prompt string) (string, error) {
		return "seven", nil
	})))
	_, ra, rb := fullRoom(t, s, "a", "b")
	rx := connect(t, s, "x")

	if err := s.Chat("a", "", "3+4?", ""); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	s.Wait()
	for _, rec := range []*recorder{ra, rb} {
		if len(chatMessages(rec, false)) != 1 || len(chatMessages(rec, true)) != 1 {
			t.Fatalf("room should see the message and the bot reply: %+v", rec.all())
		}
	}
	if n := len(rx.all()); n != 0 {
		t.Fatalf("room chat reached the lobby (%d events)", n)
	}
}

func TestChatSeatedSenderUnknownCodeRejected(t *testing.T) {
	s := newTestService(t)
	_, ra, rb := fullRoom(t, s, "a", "b")
	rx := connect(t, s, "x")

	if err := s.Chat("a", "999999", "hello?", ""); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	errs := ra.named(protocol.EvError)
	if len(errs) != 1 || errorCode(t, errs[0]) != protocol.CodeRoomNotFound {
		t.Fatalf("expected one ROOM_NOT_FOUND, got %+v", ra.all())
	}
	if rb.count(protocol.EvChatMessage) != 0 || rx.count(protocol.EvChatMessage) != 0 {
		t.Fatalf("rejected chat was delivered")
	}
}
