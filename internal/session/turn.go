package session

import (
	"encoding/json"
	"strings"

	"github.com/park285/maths-nerds-server/internal/protocol"
	"go.uber.org/zap"
)

// TurnEndAction is the action type that hands the turn to the other seat.
const TurnEndAction = "TURN_END"

// StartGame moves a full room from NotStarted to InProgress with player1 to
// act first. It reports whether the transition happened; every other case
// (already started, fewer than two members, caller not seated, unknown room)
// is a silent no-op.
func (s *Service) StartGame(connID, code string, branches json.RawMessage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[connID]
	if !ok {
		return false, ErrUnknownConnection
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return false, s.reject(c, ErrInvalidArgs)
	}
	r, ok := s.rooms[code]
	if !ok || r.indexOf(c.ID) < 0 || r.Started || len(r.Members) != maxMembers {
		s.logger.Debug("game_start_ignored", zap.String("code", code), zap.String("conn_id", c.ID))
		return false, nil
	}

	r.Started = true
	r.everStarted = true
	r.Turn = Player1
	r.State = map[string]any{
		"currentPlayer": Player1.String(),
		"branches":      decodeAny(branches),
		"gamePhase":     "draw",
	}
	s.toRoom(r, event(protocol.EvGameStarted, gameStartedPayload{
		Players:       s.players(r),
		GameState:     copyState(r.State),
		CurrentPlayer: r.Turn,
	}), "")
	s.notifyUpdated(r)
	s.logger.Info("game_start", zap.String("code", code), zap.String("conn_id", c.ID))
	return true, nil
}

// GameAction relays an opaque action to the opponent. A TURN_END action also
// flips the turn and announces it to the whole room. Actions for unknown or
// not-yet-started rooms are dropped.
func (s *Service) GameAction(connID, code string, action json.RawMessage, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	code = strings.TrimSpace(code)
	if code == "" || len(action) == 0 {
		return s.reject(c, ErrInvalidArgs)
	}
	r, ok := s.rooms[code]
	if !ok || !r.Started {
		s.logger.Debug("game_action_dropped", zap.String("code", code), zap.String("conn_id", c.ID))
		return nil
	}
	if r.indexOf(c.ID) < 0 {
		return s.reject(c, ErrNotInRoom)
	}
	if strings.TrimSpace(actorID) == "" {
		actorID = c.ID
	}

	kind := actionType(action)
	s.toRoom(r, event(protocol.EvOpponentAction, opponentActionPayload{Action: action, PlayerID: actorID}), c.ID)
	if kind == TurnEndAction {
		r.Turn = r.Turn.Other()
		r.TurnCount++
		if r.State != nil {
			// earlier snapshots share the old map
			r.State = copyState(r.State)
			r.State["currentPlayer"] = r.Turn.String()
		}
		s.toRoom(r, event(protocol.EvTurnChanged, turnChangedPayload{CurrentPlayer: r.Turn}), "")
		s.notifyUpdated(r)
		s.logger.Info("turn_changed", zap.String("code", code), zap.Stringer("current", r.Turn), zap.Int("turns", r.TurnCount))
	}
	s.logger.Debug("game_action", zap.String("code", code), zap.String("conn_id", c.ID), zap.String("type", kind))
	return nil
}

func actionType(raw json.RawMessage) string {
	var a struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return ""
	}
	return strings.TrimSpace(a.Type)
}

func decodeAny(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
