package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Inbound event names (client -> server).
const (
	EvCreateRoom    = "createRoom"
	EvJoinRoom      = "joinRoom"
	EvStartGame     = "startGame"
	EvGameAction    = "gameAction"
	EvSyncGameState = "syncGameState"
	EvGameUpdate    = "gameUpdate"
	EvChatMessage   = "chatMessage"
	EvGetRoomInfo   = "getRoomInfo"
	EvLeaveRoom     = "leaveRoom"
)

// Outbound event names (server -> client).
const (
	EvConnected            = "connected"
	EvRoomCreated          = "roomCreated"
	EvJoinedRoom           = "joinedRoom"
	EvOpponentJoined       = "opponentJoined"
	EvGameReady            = "gameReady"
	EvGameStarted          = "gameStarted"
	EvOpponentAction       = "opponentAction"
	EvTurnChanged          = "turnChanged"
	EvGameStateUpdate      = "gameStateUpdate"
	EvRoomInfo             = "roomInfo"
	EvOpponentDisconnected = "opponentDisconnected"
	EvError                = "error"
)

// Envelope is one inbound text frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is one event queued for a connection. Data is marshalled as-is.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// RoomCode accepts both "123456" and 123456 on the wire.
type RoomCode string

func (c *RoomCode) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = RoomCode(strings.TrimSpace(s))
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("room code: %w", err)
	}
	*c = RoomCode(strconv.FormatInt(n, 10))
	return nil
}

func (c RoomCode) String() string { return string(c) }

type CreateRoomRequest struct {
	PlayerName string `json:"playerName"`
}

type JoinRoomRequest struct {
	RoomCode   RoomCode `json:"roomCode"`
	PlayerName string   `json:"playerName"`
}

type StartGameRequest struct {
	RoomCode RoomCode        `json:"roomCode"`
	Branches json.RawMessage `json:"branches,omitempty"`
}

type GameActionRequest struct {
	RoomCode RoomCode        `json:"roomCode"`
	Action   json.RawMessage `json:"action"`
	PlayerID string          `json:"playerId"`
}

// SyncStateRequest serves both syncGameState and gameUpdate.
// "state" is accepted as an alias of "gameState".
type SyncStateRequest struct {
	RoomCode  RoomCode        `json:"roomCode"`
	GameState json.RawMessage `json:"gameState"`
	State     json.RawMessage `json:"state"`
}

// Payload returns whichever state field the client filled.
func (r SyncStateRequest) Payload() json.RawMessage {
	if len(r.GameState) > 0 {
		return r.GameState
	}
	return r.State
}

type ChatMessageRequest struct {
	RoomCode   RoomCode `json:"roomCode"`
	Message    string   `json:"message"`
	PlayerName string   `json:"playerName"`
}

// RoomInfoRequest is either a bare code or {"roomCode": ...}.
type RoomInfoRequest struct {
	RoomCode RoomCode `json:"roomCode"`
}

func (r *RoomInfoRequest) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var obj struct {
			RoomCode RoomCode `json:"roomCode"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		r.RoomCode = obj.RoomCode
		return nil
	}
	return r.RoomCode.UnmarshalJSON(b)
}

// Error codes carried by the "error" event.
const (
	CodeRoomNotFound   = "ROOM_NOT_FOUND"
	CodeRoomFull       = "ROOM_FULL"
	CodeNotInRoom      = "NOT_IN_ROOM"
	CodeAlreadyInRoom  = "ALREADY_IN_ROOM"
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeUnknownEvent   = "UNKNOWN_EVENT"
	CodeInternal       = "INTERNAL"
)

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Decode unmarshals data into v; an empty payload leaves v at its zero value.
func Decode(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	return json.Unmarshal(data, v)
}
