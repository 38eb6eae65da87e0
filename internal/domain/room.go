package domain

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const codeLength = 6

// codeAlphabet leaves out characters that are easy to mistype (0/O, 1/I/L).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// RoomSettings are the feature toggles a host configures for a meeting.
type RoomSettings struct {
	WaitingRoom     bool `json:"waiting_room"`
	MuteOnEntry     bool `json:"mute_on_entry"`
	AllowRecording  bool `json:"allow_recording"`
	EnableChat      bool `json:"enable_chat"`
	EnableReactions bool `json:"enable_reactions"`
	Private         bool `json:"private"`
}

// DefaultRoomSettings is what a room gets when the creator sends no toggles.
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		AllowRecording:  true,
		EnableChat:      true,
		EnableReactions: true,
	}
}

// Room is the persisted configuration of a meeting. Live membership is not
// part of it; see the participant directory.
type Room struct {
	ID         uuid.UUID
	Code       string
	Name       string
	SecretHash string
	HostID     string
	Capacity   int
	Duration   time.Duration
	Settings   RoomSettings
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RoomInfo is the part of a room that is safe to hand to any participant.
type RoomInfo struct {
	Code            string       `json:"code"`
	Name            string       `json:"name"`
	HostID          string       `json:"host_id"`
	Capacity        int          `json:"capacity"`
	DurationMinutes int          `json:"duration_minutes"`
	HasPassword     bool         `json:"has_password"`
	Settings        RoomSettings `json:"settings"`
	CreatedAt       time.Time    `json:"created_at"`
}

// NewRoom constructs a room with a fresh id and meeting code.
func NewRoom(name string, hostID string, capacity int, duration time.Duration, settings RoomSettings) *Room {
	now := time.Now().UTC()
	return &Room{
		ID:        uuid.New(),
		Code:      GenerateCode(),
		Name:      name,
		HostID:    hostID,
		Capacity:  capacity,
		Duration:  duration,
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetSecret stores a bcrypt hash of secret. An empty secret makes the room open.
func (r *Room) SetSecret(secret string) error {
	if secret == "" {
		r.SecretHash = ""
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	r.SecretHash = string(hash)
	return nil
}

func (r *Room) HasSecret() bool {
	return r.SecretHash != ""
}

// CheckSecret reports whether secret grants access to the room.
func (r *Room) CheckSecret(secret string) bool {
	if !r.HasSecret() {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(r.SecretHash), []byte(secret)) == nil
}

func (r *Room) IsHost(userID string) bool {
	return userID != "" && r.HostID == userID
}

func (r *Room) Info() RoomInfo {
	return RoomInfo{
		Code:            r.Code,
		Name:            r.Name,
		HostID:          r.HostID,
		Capacity:        r.Capacity,
		DurationMinutes: int(r.Duration / time.Minute),
		HasPassword:     r.HasSecret(),
		Settings:        r.Settings,
		CreatedAt:       r.CreatedAt,
	}
}

// Clone returns a copy that can be mutated without affecting r.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// GenerateCode returns a short, human-typeable meeting code.
func GenerateCode() string {
	b := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("domain: crypto/rand failed: " + err.Error())
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b)
}
