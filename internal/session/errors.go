package session

import (
	"errors"

	"github.com/park285/maths-nerds-server/internal/protocol"
)

var (
	ErrRoomNotFound         = errf("room not found")
	ErrRoomFull             = errf("room is full")
	ErrAssistantUnavailable = errf("assistant unavailable")
	ErrNotInRoom            = errf("connection is not a member of the room")
	ErrAlreadyInRoom        = errf("connection already sits in this room")
	ErrInvalidArgs          = errf("invalid arguments")
	ErrUnknownEvent         = errf("unknown event")
	ErrUnknownConnection    = errf("unknown connection")
	ErrDuplicateConnection  = errf("connection id already registered")
	ErrCodeExhausted        = errf("could not allocate a free room code")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error        { return staticErr(s) }

// Rejection maps an error to the structured payload sent to the requester.
func Rejection(err error) protocol.ErrorPayload {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return protocol.ErrorPayload{Code: protocol.CodeRoomNotFound, Message: "Room does not exist"}
	case errors.Is(err, ErrRoomFull):
		return protocol.ErrorPayload{Code: protocol.CodeRoomFull, Message: "Room is full"}
	case errors.Is(err, ErrNotInRoom):
		return protocol.ErrorPayload{Code: protocol.CodeNotInRoom, Message: "You are not in this room"}
	case errors.Is(err, ErrAlreadyInRoom):
		return protocol.ErrorPayload{Code: protocol.CodeAlreadyInRoom, Message: "You are already in this room"}
	case errors.Is(err, ErrInvalidArgs):
		return protocol.ErrorPayload{Code: protocol.CodeInvalidRequest, Message: "Invalid request"}
	case errors.Is(err, ErrUnknownEvent):
		return protocol.ErrorPayload{Code: protocol.CodeUnknownEvent, Message: "Unknown event"}
	default:
		return protocol.ErrorPayload{Code: protocol.CodeInternal, Message: "Internal error"}
	}
}
