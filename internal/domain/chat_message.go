package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is a room-scoped, unpersisted chat line. Receivers de-duplicate on ID.
type ChatMessage struct {
	ID            uuid.UUID `json:"id"`
	Room          string    `json:"room"`
	UserID        string    `json:"user_id"`
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"sender"`
	Content       string    `json:"message"`
	CreatedAt     time.Time `json:"timestamp"`
}

func NewChatMessage(room string, p *Participant, content string) *ChatMessage {
	msg := &ChatMessage{
		ID:        uuid.New(),
		Room:      room,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if p != nil {
		msg.UserID = p.UserID
		msg.ParticipantID = p.ID
		msg.DisplayName = p.DisplayName
	}
	return msg
}
