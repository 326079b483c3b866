package session

import (
	"strings"

	"github.com/park285/maths-nerds-server/internal/protocol"
	"go.uber.org/zap"
)

// Connect registers a live connection and greets it with its id.
func (s *Service) Connect(id string, out Outbox) error {
	id = strings.TrimSpace(id)
	if id == "" || out == nil {
		return ErrInvalidArgs
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.conns[id]; exists {
		return ErrDuplicateConnection
	}
	c := &Connection{ID: id, out: out}
	s.conns[id] = c
	s.sendTo(c, event(protocol.EvConnected, connectedPayload{ID: id}))
	s.logger.Info("conn_open", zap.String("conn_id", id), zap.Int("conns", len(s.conns)))
	return nil
}

// Disconnect leaves the connection's room (if any) and forgets the connection.
func (s *Service) Disconnect(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[id]
	if !ok {
		return
	}
	s.leaveLocked(c)
	delete(s.conns, id)
	delete(s.names, id)
	s.logger.Info("conn_close", zap.String("conn_id", id), zap.Int("conns", len(s.conns)))
}

// CreateRoom opens a room with the caller as its only member and replies
// roomCreated to the caller alone.
func (s *Service) CreateRoom(connID, playerName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[connID]
	if !ok {
		return "", ErrUnknownConnection
	}
	name := displayName(playerName, defaultCreator)

	if c.RoomCode != "" {
		s.leaveLocked(c)
	}
	code, err := s.allocateCode()
	if err != nil {
		s.logger.Error("room_code_alloc_error", zap.String("conn_id", c.ID), zap.Error(err))
		return "", s.reject(c, err)
	}

	s.gen++
	r := &Room{
		Code:      code,
		Members:   []string{c.ID},
		Turn:      Player1,
		CreatedAt: s.now(),
		gen:       s.gen,
	}
	s.rooms[code] = r
	s.bind(c, r, name)
	r.history = append(r.history, PlayerView{ID: c.ID, Name: name, PlayerNumber: Player1})

	s.sendTo(c, event(protocol.EvRoomCreated, roomCreatedPayload{RoomCode: code, PlayerName: name}))
	s.notifyUpdated(r)
	s.logger.Info("room_create", zap.String("code", code), zap.String("conn_id", c.ID), zap.String("player", name))
	return code, nil
}

// JoinRoom seats the caller in an existing room. Rejections go to the caller
// only and never change membership.
func (s *Service) JoinRoom(connID, code, playerName string) (JoinResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[connID]
	if !ok {
		return JoinResult{}, ErrUnknownConnection
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return JoinResult{}, s.reject(c, ErrInvalidArgs)
	}
	r, ok := s.rooms[code]
	if !ok {
		s.logger.Info("room_join_rejected", zap.String("code", code), zap.String("conn_id", c.ID), zap.String("reason", "not_found"))
		return JoinResult{}, s.reject(c, ErrRoomNotFound)
	}
	if r.indexOf(c.ID) >= 0 {
		return JoinResult{}, s.reject(c, ErrAlreadyInRoom)
	}
	if r.full() {
		s.logger.Info("room_join_rejected", zap.String("code", code), zap.String("conn_id", c.ID), zap.String("reason", "full"))
		return JoinResult{}, s.reject(c, ErrRoomFull)
	}

	if c.RoomCode != "" {
		s.leaveLocked(c)
	}
	name := displayName(playerName, defaultJoiner)
	r.Members = append(r.Members, c.ID)
	seat := seatAt(len(r.Members) - 1)
	s.bind(c, r, name)
	r.history = append(r.history, PlayerView{ID: c.ID, Name: name, PlayerNumber: seat})

	s.sendTo(c, event(protocol.EvJoinedRoom, joinedRoomPayload{RoomCode: code, PlayerName: name, PlayerNumber: seat}))
	s.toRoom(r, event(protocol.EvOpponentJoined, opponentJoinedPayload{PlayerID: c.ID, PlayerName: name}), c.ID)

	res := JoinResult{RoomCode: code, Seat: seat, Full: r.full()}
	if res.Full {
		for _, id := range r.Members {
			if m := s.conns[id]; m != nil {
				m.Ready = true
			}
		}
		s.toRoom(r, event(protocol.EvGameReady, gameReadyPayload{Players: s.players(r)}), "")
		s.logger.Info("room_ready", zap.String("code", code))
	}
	s.notifyUpdated(r)
	s.logger.Info("room_join", zap.String("code", code), zap.String("conn_id", c.ID), zap.String("player", name), zap.Stringer("seat", seat))
	return res, nil
}

// Leave removes the connection from its room. Calling it for a connection
// that is in no room is a no-op.
func (s *Service) Leave(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conns[connID]; ok {
		s.leaveLocked(c)
	}
}

// Lookup returns a snapshot of the room with the given code.
func (s *Service) Lookup(code string) (RoomInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[strings.TrimSpace(code)]
	if !ok {
		return RoomInfo{}, ErrRoomNotFound
	}
	return s.snapshot(r), nil
}

// SendRoomInfo answers a room-info query to the asking connection only.
func (s *Service) SendRoomInfo(connID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	r, ok := s.rooms[strings.TrimSpace(code)]
	if !ok {
		return s.reject(c, ErrRoomNotFound)
	}
	p := roomInfoPayload{
		RoomCode:      r.Code,
		Players:       s.players(r),
		IsGameStarted: r.Started,
	}
	if r.Started {
		turn := r.Turn
		p.CurrentPlayer = &turn
	}
	s.sendTo(c, event(protocol.EvRoomInfo, p))
	return nil
}

// RoomCount is the number of live rooms.
func (s *Service) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// ConnectionCount is the number of live connections.
func (s *Service) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Service) bind(c *Connection, r *Room, name string) {
	c.Name = name
	c.RoomCode = r.Code
	c.Ready = false
	s.names[c.ID] = name
}

func (s *Service) leaveLocked(c *Connection) {
	code := c.RoomCode
	if code == "" {
		return
	}
	c.RoomCode = ""
	c.Ready = false
	r, ok := s.rooms[code]
	if !ok {
		return
	}
	idx := r.indexOf(c.ID)
	if idx < 0 {
		return
	}
	r.Members = append(r.Members[:idx], r.Members[idx+1:]...)

	name := s.names[c.ID]
	if name == "" {
		name = c.Name
	}
	if len(r.Members) == 0 {
		delete(s.rooms, code)
		s.notifyClosed(r)
		s.logger.Info("room_delete", zap.String("code", code), zap.String("reason", "empty"))
		return
	}
	for _, id := range r.Members {
		if m := s.conns[id]; m != nil {
			m.Ready = false
		}
	}
	s.toRoom(r, event(protocol.EvOpponentDisconnected, opponentDisconnectedPayload{PlayerName: name}), "")
	s.notifyUpdated(r)
	s.logger.Info("room_leave", zap.String("code", code), zap.String("conn_id", c.ID), zap.String("player", name))
}

func (s *Service) players(r *Room) []PlayerView {
	out := make([]PlayerView, 0, len(r.Members))
	for i, id := range r.Members {
		v := PlayerView{ID: id, Name: s.names[id], PlayerNumber: seatAt(i)}
		if c := s.conns[id]; c != nil {
			v.Ready = c.Ready
		}
		out = append(out, v)
	}
	return out
}

func (s *Service) snapshot(r *Room) RoomInfo {
	return RoomInfo{
		Code:          r.Code,
		Players:       s.players(r),
		Started:       r.Started,
		CurrentPlayer: r.Turn,
		TurnCount:     r.TurnCount,
		CreatedAt:     r.CreatedAt,
	}
}

func displayName(requested, fallback string) string {
	if n := strings.TrimSpace(requested); n != "" {
		return n
	}
	return fallback
}
