package session

import (
	"github.com/park285/maths-nerds-server/internal/protocol"
	"go.uber.org/zap"
)

// All router helpers expect s.mu to be held. Delivery order per connection
// is therefore the order in which the service processed the triggers.

func (s *Service) sendTo(c *Connection, ev protocol.Outbound) {
	if c == nil || c.out == nil {
		return
	}
	if !c.out.Deliver(ev) {
		s.logger.Warn("outbox_drop", zap.String("conn_id", c.ID), zap.String("event", ev.Event))
	}
}

// toRoom delivers ev to every member of r except the connection id in except
// (pass "" for the whole room).
func (s *Service) toRoom(r *Room, ev protocol.Outbound, except string) {
	for _, id := range r.Members {
		if id == except {
			continue
		}
		s.sendTo(s.conns[id], ev)
	}
}

// toLobby delivers ev to every connection that is not seated in a room.
func (s *Service) toLobby(ev protocol.Outbound) {
	for _, c := range s.conns {
		if c.RoomCode == "" {
			s.sendTo(c, ev)
		}
	}
}

func (s *Service) reject(c *Connection, err error) error {
	p := Rejection(err)
	p.Message = s.texts.ErrorText(p.Code, p.Message)
	s.sendTo(c, event(protocol.EvError, p))
	return err
}

// Reject reports err to the connection as a structured rejection.
func (s *Service) Reject(connID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conns[connID]; ok {
		s.reject(c, err)
	}
}

func (s *Service) notifyUpdated(r *Room) {
	if len(s.observers) == 0 {
		return
	}
	info := s.snapshot(r)
	for _, o := range s.observers {
		o.RoomUpdated(info)
	}
}

func (s *Service) notifyClosed(r *Room) {
	if len(s.observers) == 0 {
		return
	}
	sum := RoomSummary{
		Code:      r.Code,
		Players:   append([]PlayerView(nil), r.history...),
		Started:   r.everStarted,
		TurnCount: r.TurnCount,
		CreatedAt: r.CreatedAt,
		ClosedAt:  s.now(),
	}
	for _, o := range s.observers {
		o.RoomClosed(sum)
	}
}
