package domain

import (
	"time"

	"github.com/google/uuid"
)

// Recording is the metadata of an uploaded meeting capture. The bytes live in
// the blob store under ID.
type Recording struct {
	ID          uuid.UUID `json:"id"`
	RoomCode    string    `json:"room_code"`
	RoomName    string    `json:"room_name"`
	OwnerID     string    `json:"owner_id"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewRecording(roomCode, roomName, ownerID string) *Recording {
	return &Recording{
		ID:        uuid.New(),
		RoomCode:  roomCode,
		RoomName:  roomName,
		OwnerID:   ownerID,
		CreatedAt: time.Now().UTC(),
	}
}
