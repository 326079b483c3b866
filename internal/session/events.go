package session

import (
	"encoding/json"

	"github.com/park285/maths-nerds-server/internal/protocol"
)

// PlayerView is how a seated player appears on the wire.
type PlayerView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	PlayerNumber Seat   `json:"playerNumber"`
	Ready        bool   `json:"ready"`
}

type connectedPayload struct {
	ID string `json:"id"`
}

type roomCreatedPayload struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
}

type joinedRoomPayload struct {
	RoomCode     string `json:"roomCode"`
	PlayerName   string `json:"playerName"`
	PlayerNumber Seat   `json:"playerNumber"`
}

type opponentJoinedPayload struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

type gameReadyPayload struct {
	Players []PlayerView `json:"players"`
}

type gameStartedPayload struct {
	Players       []PlayerView   `json:"players"`
	GameState     map[string]any `json:"gameState"`
	CurrentPlayer Seat           `json:"currentPlayer"`
}

type opponentActionPayload struct {
	Action   json.RawMessage `json:"action"`
	PlayerID string          `json:"playerId"`
}

type turnChangedPayload struct {
	CurrentPlayer Seat `json:"currentPlayer"`
}

type chatMessagePayload struct {
	Message    string `json:"message"`
	PlayerName string `json:"playerName"`
	Timestamp  int64  `json:"timestamp"`
	Bot        bool   `json:"bot,omitempty"`
}

type roomInfoPayload struct {
	RoomCode      string       `json:"roomCode"`
	Players       []PlayerView `json:"players"`
	IsGameStarted bool         `json:"isGameStarted"`
	CurrentPlayer *Seat        `json:"currentPlayer,omitempty"`
}

type opponentDisconnectedPayload struct {
	PlayerName string `json:"playerName"`
}

func event(name string, data any) protocol.Outbound {
	return protocol.Outbound{Event: name, Data: data}
}
