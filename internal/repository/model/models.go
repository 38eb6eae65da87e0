package model

import (
	"time"

	"github.com/google/uuid"
)

type Room struct {
	ID              uuid.UUID    `gorm:"type:uuid;primaryKey"`
	Code            string       `gorm:"size:16;uniqueIndex;not null"`
	Name            string       `gorm:"size:255;not null"`
	SecretHash      string       `gorm:"size:255"`
	HostID          string       `gorm:"size:255;index;not null"`
	Capacity        int          `gorm:"not null"`
	DurationMinutes int          `gorm:"not null;default:0"`
	Settings        RoomSettings `gorm:"embedded;embeddedPrefix:setting_"`
	CreatedAt       time.Time    `gorm:"not null"`
	UpdatedAt       time.Time    `gorm:"not null"`
}

type RoomSettings struct {
	WaitingRoom     bool `gorm:"not null"`
	MuteOnEntry     bool `gorm:"not null"`
	AllowRecording  bool `gorm:"not null"`
	EnableChat      bool `gorm:"not null"`
	EnableReactions bool `gorm:"not null"`
	Private         bool `gorm:"not null"`
}

type Recording struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoomCode    string    `gorm:"size:16;index;not null"`
	RoomName    string    `gorm:"size:255;not null"`
	OwnerID     string    `gorm:"size:255;index;not null"`
	Size        int64     `gorm:"not null"`
	ContentType string    `gorm:"size:128;not null"`
	CreatedAt   time.Time `gorm:"not null"`
}
