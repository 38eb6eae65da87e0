package converter

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skillsphere/meetings/internal/domain"
)

type RecordingResponse struct {
	ID          uuid.UUID `json:"id"`
	RoomCode    string    `json:"room_code"`
	RoomName    string    `json:"room_name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	DownloadURL string    `json:"download_url"`
	CreatedAt   time.Time `json:"created_at"`
}

func RecordingToApi(rec *domain.Recording) *RecordingResponse {
	return &RecordingResponse{
		ID:          rec.ID,
		RoomCode:    rec.RoomCode,
		RoomName:    rec.RoomName,
		Size:        rec.Size,
		ContentType: rec.ContentType,
		DownloadURL: fmt.Sprintf("/api/recordings/%s/download", rec.ID),
		CreatedAt:   rec.CreatedAt,
	}
}

func RecordingsToApi(recs []*domain.Recording) []*RecordingResponse {
	out := make([]*RecordingResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, RecordingToApi(rec))
	}
	return out
}
