package service

import (
	"errors"

	"github.com/skillsphere/meetings/internal/directory"
	"github.com/skillsphere/meetings/internal/repository"
)

var (
	ErrRoomNotFound      = repository.ErrRoomNotFound
	ErrRecordingNotFound = repository.ErrRecordingNotFound
	ErrNotInRoom         = directory.ErrNotMember

	ErrInvalidCredentials     = errors.New("invalid room credentials")
	ErrRoomFull               = errors.New("room is full")
	ErrNotAuthorized          = errors.New("not authorized")
	ErrParticipantNotFound    = errors.New("participant not found")
	ErrAlreadyInRoom          = errors.New("connection already joined another room")
	ErrChatDisabled           = errors.New("chat is disabled in this room")
	ErrReactionsDisabled      = errors.New("reactions are disabled in this room")
	ErrRecordingDisabled      = errors.New("recording is disabled in this room")
	ErrNoPendingRequest       = errors.New("no pending screen-share request")
	ErrScreenShareActive      = errors.New("another participant is already sharing")
	ErrInvalidMessage         = errors.New("invalid message")
	ErrUploadTooLarge         = errors.New("upload too large")
	ErrUnsupportedMediaFormat = errors.New("unsupported media format")
)

// ErrorCode maps an error to the stable code sent to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrRecordingNotFound):
		return "recording_not_found"
	case errors.Is(err, ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrRoomFull):
		return "room_full"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrParticipantNotFound):
		return "participant_not_found"
	case errors.Is(err, ErrAlreadyInRoom):
		return "already_in_room"
	case errors.Is(err, ErrChatDisabled):
		return "chat_disabled"
	case errors.Is(err, ErrReactionsDisabled):
		return "reactions_disabled"
	case errors.Is(err, ErrRecordingDisabled):
		return "recording_disabled"
	case errors.Is(err, ErrNoPendingRequest):
		return "no_pending_request"
	case errors.Is(err, ErrScreenShareActive):
		return "screen_share_active"
	case errors.Is(err, ErrInvalidMessage):
		return "invalid_message"
	case errors.Is(err, ErrUploadTooLarge):
		return "upload_too_large"
	case errors.Is(err, ErrUnsupportedMediaFormat):
		return "unsupported_media_format"
	default:
		return "internal"
	}
}
