package domain

import "time"

// Participant is a connected client's live membership in a room. It is keyed by
// the connection id, so one user may hold several participants through several
// connections.
type Participant struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	DisplayName   string    `json:"display_name"`
	IsHost        bool      `json:"is_host"`
	Muted         bool      `json:"muted"`
	VideoOff      bool      `json:"video_off"`
	HandRaised    bool      `json:"hand_raised"`
	ScreenSharing bool      `json:"screen_sharing"`
	JoinedAt      time.Time `json:"joined_at"`
	// Seq orders participants by join time within a room.
	Seq uint64 `json:"-"`
}

func NewParticipant(connID string, id Identity) Participant {
	return Participant{
		ID:          connID,
		UserID:      id.UserID,
		DisplayName: id.DisplayName,
		JoinedAt:    time.Now().UTC(),
	}
}
