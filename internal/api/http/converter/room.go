package converter

import (
	"time"

	"github.com/google/uuid"

	"github.com/skillsphere/meetings/internal/domain"
)

type RoomResponse struct {
	ID               uuid.UUID           `json:"id"`
	Code             string              `json:"code"`
	Name             string              `json:"name"`
	HostID           string              `json:"host_id"`
	Capacity         int                 `json:"capacity"`
	DurationMinutes  int                 `json:"duration_minutes"`
	HasPassword      bool                `json:"has_password"`
	Settings         domain.RoomSettings `json:"settings"`
	ParticipantCount int                 `json:"participant_count"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// RoomToApi never includes the secret hash.
func RoomToApi(r *domain.Room, participants int) *RoomResponse {
	info := r.Info()
	return &RoomResponse{
		ID:               r.ID,
		Code:             info.Code,
		Name:             info.Name,
		HostID:           info.HostID,
		Capacity:         info.Capacity,
		DurationMinutes:  info.DurationMinutes,
		HasPassword:      info.HasPassword,
		Settings:         info.Settings,
		ParticipantCount: participants,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}
