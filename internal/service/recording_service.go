package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/skillsphere/meetings/internal/domain"
	"github.com/skillsphere/meetings/internal/repository"
	"github.com/skillsphere/meetings/internal/storage"
	"github.com/skillsphere/meetings/lib/logger/sl"
)

// sniffLength matches the default read limit of mimetype detection.
const sniffLength = 3072

// recordingFormats are the containers browsers produce when capturing a
// meeting. Detected types are checked together with their parents.
var recordingFormats = []string{
	"video/webm",
	"audio/webm",
	"video/x-matroska",
	"video/mp4",
	"audio/mp4",
	"video/ogg",
	"audio/ogg",
}

type BlobStore interface {
	Save(ctx context.Context, id uuid.UUID, r io.Reader, limit int64) (int64, error)
	Open(ctx context.Context, id uuid.UUID) (io.ReadSeekCloser, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// RecordingService persists finished meeting captures. It never touches the
// live signaling state, so a failed upload cannot disturb a meeting.
type RecordingService struct {
	blobs      BlobStore
	recordings repository.RecordingRepository
	rooms      repository.RoomRepository
	maxSize    int64
	log        *slog.Logger
}

func NewRecordingService(blobs BlobStore, recordings repository.RecordingRepository, rooms repository.RoomRepository, maxSize int64, log *slog.Logger) *RecordingService {
	if log == nil {
		log = slog.Default()
	}
	return &RecordingService{
		blobs:      blobs,
		recordings: recordings,
		rooms:      rooms,
		maxSize:    maxSize,
		log:        log,
	}
}

// Upload stores body as a recording of the room. size is the declared length,
// or a negative value when unknown; the stored length is enforced either way.
func (s *RecordingService) Upload(ctx context.Context, owner domain.Identity, roomCode string, body io.Reader, size int64) (*domain.Recording, error) {
	const op = "service.recording.upload"
	log := s.log.With(
		slog.String("op", op),
		slog.String("owner_id", owner.UserID),
		slog.String("room", roomCode),
	)

	if owner.UserID == "" {
		return nil, ErrNotAuthorized
	}
	if size > s.maxSize {
		return nil, ErrUploadTooLarge
	}

	room, err := s.rooms.GetByCode(ctx, NormalizeCode(roomCode))
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !room.Settings.AllowRecording {
		return nil, ErrRecordingDisabled
	}

	head := make([]byte, sniffLength)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: read upload: %w", op, err)
	}
	head = head[:n]
	if n == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrInvalidMessage)
	}

	mtype := mimetype.Detect(head)
	if !isRecordingFormat(mtype) {
		log.Info("upload rejected", slog.String("content_type", mtype.String()))
		return nil, ErrUnsupportedMediaFormat
	}

	rec := domain.NewRecording(room.Code, room.Name, owner.UserID)
	rec.ContentType = mtype.String()

	written, err := s.blobs.Save(ctx, rec.ID, io.MultiReader(bytes.NewReader(head), body), s.maxSize)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, ErrUploadTooLarge
		}
		log.Error("failed to store recording", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rec.Size = written

	if err := s.recordings.Create(ctx, rec); err != nil {
		log.Error("failed to save recording metadata", sl.Err(err))
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), rec.ID); delErr != nil {
			log.Warn("orphaned recording blob", slog.String("id", rec.ID.String()), sl.Err(delErr))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("recording stored",
		slog.String("id", rec.ID.String()),
		slog.Int64("size", rec.Size),
		slog.String("content_type", rec.ContentType),
	)
	return rec, nil
}

func (s *RecordingService) List(ctx context.Context, ownerID string) ([]*domain.Recording, error) {
	return s.recordings.ListByOwner(ctx, ownerID)
}

// Open returns the recording and its bytes. The caller closes the reader.
func (s *RecordingService) Open(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Recording, io.ReadSeekCloser, error) {
	rec, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, nil, err
	}

	blob, err := s.blobs.Open(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			s.log.Warn("recording without blob", slog.String("id", id.String()))
			return nil, nil, ErrRecordingNotFound
		}
		return nil, nil, fmt.Errorf("service.recording.open: %w", err)
	}
	return rec, blob, nil
}

func (s *RecordingService) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	const op = "service.recording.delete"
	log := s.log.With(slog.String("op", op), slog.String("id", id.String()))

	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.recordings.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, id); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
		log.Warn("failed to delete recording blob", sl.Err(err))
	}

	log.Info("recording deleted")
	return nil
}

func (s *RecordingService) owned(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Recording, error) {
	rec, err := s.recordings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ownerID == "" || rec.OwnerID != ownerID {
		return nil, ErrNotAuthorized
	}
	return rec, nil
}

func isRecordingFormat(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		for _, t := range recordingFormats {
			if m.Is(t) {
				return true
			}
		}
	}
	return false
}
