package service

import (
	"context"
	"encoding/json"
	"io"

	"github.com/google/uuid"

	"github.com/skillsphere/meetings/internal/directory"
	"github.com/skillsphere/meetings/internal/domain"
)

type RoomInteractor interface {
	CreateRoom(ctx context.Context, host domain.Identity, params CreateRoomParams) (*domain.Room, error)
	GetRoom(ctx context.Context, code string) (*domain.Room, error)
	UpdateRoom(ctx context.Context, caller domain.Identity, code string, params UpdateRoomParams) (*domain.Room, error)
	ListHostedRooms(ctx context.Context, hostID string) ([]*domain.Room, error)
}

// MeetingCoordinator is the live side of a room: membership, relay and host
// arbitration for connected participants.
type MeetingCoordinator interface {
	Join(ctx context.Context, conn directory.Conn, id domain.Identity, req domain.JoinRequest) (*domain.JoinedPayload, error)
	Leave(connID string, reason string) bool
	Relay(fromConn, toConn string, payload json.RawMessage) error
	Chat(fromConn string, req domain.ChatRequest) (*domain.ChatMessage, error)
	React(fromConn string, req domain.ReactionRequest) error
	UpdateMediaState(fromConn string, req domain.MediaStateRequest) error
	RaiseHand(fromConn string, raised bool) error
	HostAction(fromConn, action, targetConn string) error
	RequestScreenShare(fromConn string) error
	ApproveScreenShare(hostConn, targetConn string) error
	RejectScreenShare(hostConn, targetConn, reason string) error
	ScreenShareStarted(fromConn string) error
	ScreenShareStopped(fromConn string) error
	RecordingStarted(fromConn string) error
	RecordingStopped(fromConn string) error
	Participants(code string) []domain.Participant
}

type RecordingInteractor interface {
	Upload(ctx context.Context, owner domain.Identity, roomCode string, body io.Reader, size int64) (*domain.Recording, error)
	List(ctx context.Context, ownerID string) ([]*domain.Recording, error)
	Open(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Recording, io.ReadSeekCloser, error)
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
}

// RoomObserver is told when a room's registry configuration changes.
type RoomObserver interface {
	RoomUpdated(room *domain.Room)
}

type CreateRoomParams struct {
	Name            string
	Secret          string
	Capacity        int
	DurationMinutes int
	Settings        *domain.RoomSettings
}

// UpdateRoomParams changes only the fields that are set.
type UpdateRoomParams struct {
	Name     *string
	Secret   *string
	Capacity *int
	Settings *domain.RoomSettings
}
