package session

import (
	"bytes"
	"encoding/json"
	"maps"
	"strings"

	"github.com/park285/maths-nerds-server/internal/protocol"
	"go.uber.org/zap"
)

// SyncState stores state as the room's complete shared blob and relays the
// literal payload to the rest of the room. gameUpdate and syncGameState
// both land here: the server never merges and never derives deltas, so
// senders must always push full snapshots. A JSON null clears the blob.
func (s *Service) SyncState(connID, code string, state json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	code = strings.TrimSpace(code)
	blob, err := parseState(state)
	if code == "" || err != nil {
		return s.reject(c, ErrInvalidArgs)
	}
	r, ok := s.rooms[code]
	if !ok {
		return s.reject(c, ErrRoomNotFound)
	}
	if r.indexOf(c.ID) < 0 {
		return s.reject(c, ErrNotInRoom)
	}

	r.State = blob
	s.toRoom(r, event(protocol.EvGameStateUpdate, state), c.ID)
	s.logger.Debug("state_sync", zap.String("code", code), zap.String("conn_id", c.ID), zap.Int("keys", len(blob)))
	return nil
}

// State returns a copy of the room's stored blob.
func (s *Service) State(code string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[strings.TrimSpace(code)]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return copyState(r.State), nil
}

func parseState(raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, ErrInvalidArgs
	}
	if bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] != '{' {
		return nil, ErrInvalidArgs
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, ErrInvalidArgs
	}
	return m, nil
}

func copyState(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}
