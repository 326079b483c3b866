package gateway

import (
	"encoding/json"

	"github.com/park285/maths-nerds-server/internal/protocol"
	"github.com/park285/maths-nerds-server/internal/session"
	"go.uber.org/zap"
)

// decode unmarshals an event payload; on failure the sender gets an
// INVALID_REQUEST rejection and ok is false.
func decode[T any](g *Gateway, connID, event string, raw json.RawMessage) (T, bool) {
	var v T
	if err := protocol.Decode(raw, &v); err != nil {
		g.logger.Debug("ws_bad_payload", zap.String("conn_id", connID), zap.String("event", event), zap.Error(err))
		g.svc.Reject(connID, session.ErrInvalidArgs)
		return v, false
	}
	return v, true
}

func (g *Gateway) dispatch(connID string, env protocol.Envelope) {
	var err error
	switch env.Event {
	case protocol.EvCreateRoom:
		req, ok := decode[protocol.CreateRoomRequest](g, connID, env.Event, env.Data)
		if !ok {
			return
		}
		_, err = g.svc.CreateRoom(connID, req.PlayerName)

	case protocol.EvJoinRoom:
		req, ok := decode[protocol.JoinRoomRequest](g, connID, env.Event, env.Data)
		if !ok {
			return
		}
		_, err = g.svc.JoinRoom(connID, req.RoomCode.String(), req.PlayerName)

	case protocol.EvStartGame:
		req, ok := decode[protocol.StartGameRequest](g, connID, env.Event, env.Data)
		if !ok {
			return
		}
		_, err = g.svc.StartGame(connID, req.RoomCode.String(), req.Branches)

	case protocol.EvGameAction:
		req, ok := decode[protocol.GameActionRequest](g, connID, env.Event, env.Data)
		if !ok {
			return
		}
		err = g.svc.GameAction(connID, req.RoomCode.String(), req.Action, req.PlayerID)

	case protocol.EvSyncGameState, protocol.EvGameUpdate:
		req, ok := decode[protocol.SyncStateRequest](g, connID, env.Event, env.Data)
		if !ok {
			return
		}
		err = g.svc.SyncState(connID, req.RoomCode.String(), req.Payload())

	case protocol.EvChatMessage:
		req, ok := decode[protocol.ChatMessageRequest](g, connID, env.Event, env.Data)
		if !ok {
			return
		}
		err = g.svc.Chat(connID, req.RoomCode.String(), req.Message, req.PlayerName)

	case protocol.EvGetRoomInfo:
		req, ok := decode[protocol.RoomInfoRequest](g, connID, env.Event, env.Data)
		if !ok {
			return
		}
		err = g.svc.SendRoomInfo(connID, req.RoomCode.String())

	case protocol.EvLeaveRoom:
		g.svc.Leave(connID)

	default:
		g.logger.Debug("ws_unknown_event", zap.String("conn_id", connID), zap.String("event", env.Event))
		g.svc.Reject(connID, session.ErrUnknownEvent)
		return
	}

	// rejections have already been sent to the client
	if err != nil {
		g.logger.Debug("ws_event_rejected", zap.String("conn_id", connID), zap.String("event", env.Event), zap.Error(err))
	}
}
