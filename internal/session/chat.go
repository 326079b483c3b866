package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/park285/maths-nerds-server/internal/protocol"
	"go.uber.org/zap"
)

// chatTarget is what the assistant leg keeps across its suspension: the
// code and generation of the room, never the room itself.
type chatTarget struct {
	code string
	gen  uint64
}

// Chat relays a player message and, when an assistant is configured,
// schedules the bot reply. A code that resolves to a live room delivers to
// the whole room (the sender must be seated there). A seated sender with no
// code talks to their own room; an unknown code from a seated sender is
// rejected. Everyone else goes to the lobby: connections not seated anywhere.
func (s *Service) Chat(connID, code, message, playerName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return s.reject(c, ErrInvalidArgs)
	}
	name := strings.TrimSpace(playerName)
	if name == "" {
		name = displayName(s.names[c.ID], defaultChatter)
	}

	var target chatTarget
	ev := event(protocol.EvChatMessage, chatMessagePayload{
		Message:    message,
		PlayerName: name,
		Timestamp:  s.now().UnixMilli(),
	})
	code = strings.TrimSpace(code)
	if code == "" {
		code = c.RoomCode
	}
	r, ok := s.rooms[code]
	switch {
	case ok:
		if r.indexOf(c.ID) < 0 {
			return s.reject(c, ErrNotInRoom)
		}
		target = chatTarget{code: r.Code, gen: r.gen}
		s.toRoom(r, ev, "")
	case c.RoomCode != "":
		return s.reject(c, ErrRoomNotFound)
	default:
		s.toLobby(ev)
	}
	s.logger.Debug("chat_relay", zap.String("code", target.code), zap.String("conn_id", c.ID))

	if s.assistant != nil {
		s.bots.Add(1)
		go s.botReply(target, message)
	}
	return nil
}

// botReply is the suspending leg. It holds no lock while the assistant
// runs and re-resolves the room before delivering.
func (s *Service) botReply(target chatTarget, message string) {
	defer s.bots.Done()

	text, err := s.ask(message)
	if err != nil {
		s.logger.Warn("chat_bot_fallback", zap.String("code", target.code), zap.Error(err))
		text = s.texts.BotFallback()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ev := event(protocol.EvChatMessage, chatMessagePayload{
		Message:    text,
		PlayerName: s.texts.BotName(),
		Timestamp:  s.now().UnixMilli(),
		Bot:        true,
	})
	if target.code == "" {
		s.toLobby(ev)
		return
	}
	r, ok := s.rooms[target.code]
	if !ok || r.gen != target.gen {
		s.logger.Info("chat_bot_room_gone", zap.String("code", target.code))
		return
	}
	s.toRoom(r, ev, "")
	s.logger.Info("chat_bot_reply", zap.String("code", target.code), zap.Bool("fallback", err != nil))
}

func (s *Service) ask(message string) (string, error) {
	prompt, err := s.texts.Prompt(message)
	if err != nil {
		return "", fmt.Errorf("%w: build prompt: %v", ErrAssistantUnavailable, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.botTimeout)
	defer cancel()
	reply, err := s.assistant.Reply(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAssistantUnavailable, err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("%w: empty reply", ErrAssistantUnavailable)
	}
	return reply, nil
}
