package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skillsphere/meetings/internal/domain"
	"github.com/skillsphere/meetings/internal/repository/model"
)

type PostgresRoomRepository struct {
	db *gorm.DB
}

func NewPostgresRoomRepository(db *gorm.DB) *PostgresRoomRepository {
	return &PostgresRoomRepository{db: db}
}

func (r *PostgresRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if room == nil {
		return errors.New("room is nil")
	}

	if err := r.db.WithContext(ctx).Create(toModelRoom(room)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrRoomCodeExists
		}
		return err
	}
	return nil
}

func (r *PostgresRoomRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var room model.Room
	err := r.db.WithContext(ctx).First(&room, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	return toDomainRoom(&room), nil
}

func (r *PostgresRoomRepository) GetByCode(ctx context.Context, code string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var room model.Room
	err := r.db.WithContext(ctx).First(&room, "code = ?", code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	return toDomainRoom(&room), nil
}

func (r *PostgresRoomRepository) Update(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if room == nil {
		return errors.New("room is nil")
	}

	m := toModelRoom(room)
	updates := map[string]any{
		"code":                     m.Code,
		"name":                     m.Name,
		"secret_hash":              m.SecretHash,
		"host_id":                  m.HostID,
		"capacity":                 m.Capacity,
		"duration_minutes":         m.DurationMinutes,
		"setting_waiting_room":     m.Settings.WaitingRoom,
		"setting_mute_on_entry":    m.Settings.MuteOnEntry,
		"setting_allow_recording":  m.Settings.AllowRecording,
		"setting_enable_chat":      m.Settings.EnableChat,
		"setting_enable_reactions": m.Settings.EnableReactions,
		"setting_private":          m.Settings.Private,
		"updated_at":               m.UpdatedAt,
	}

	res := r.db.WithContext(ctx).Model(&model.Room{}).Where("id = ?", m.ID).Updates(updates)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrRoomCodeExists
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (r *PostgresRoomRepository) ListByHost(ctx context.Context, hostID string) ([]*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rooms []model.Room
	if err := r.db.WithContext(ctx).Where("host_id = ?", hostID).Order("created_at DESC").Find(&rooms).Error; err != nil {
		return nil, err
	}

	result := make([]*domain.Room, 0, len(rooms))
	for i := range rooms {
		result = append(result, toDomainRoom(&rooms[i]))
	}
	return result, nil
}

type PostgresRecordingRepository struct {
	db *gorm.DB
}

func NewPostgresRecordingRepository(db *gorm.DB) *PostgresRecordingRepository {
	return &PostgresRecordingRepository{db: db}
}

func (r *PostgresRecordingRepository) Create(ctx context.Context, rec *domain.Recording) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil {
		return errors.New("recording is nil")
	}
	return r.db.WithContext(ctx).Create(toModelRecording(rec)).Error
}

func (r *PostgresRecordingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec model.Recording
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordingNotFound
		}
		return nil, err
	}
	return toDomainRecording(&rec), nil
}

func (r *PostgresRecordingRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var recs []model.Recording
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&recs).Error; err != nil {
		return nil, err
	}

	result := make([]*domain.Recording, 0, len(recs))
	for i := range recs {
		result = append(result, toDomainRecording(&recs[i]))
	}
	return result, nil
}

func (r *PostgresRecordingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Delete(&model.Recording{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordingNotFound
	}
	return nil
}

func toModelRoom(room *domain.Room) *model.Room {
	return &model.Room{
		ID:              room.ID,
		Code:            room.Code,
		Name:            room.Name,
		SecretHash:      room.SecretHash,
		HostID:          room.HostID,
		Capacity:        room.Capacity,
		DurationMinutes: int(room.Duration / time.Minute),
		Settings: model.RoomSettings{
			WaitingRoom:     room.Settings.WaitingRoom,
			MuteOnEntry:     room.Settings.MuteOnEntry,
			AllowRecording:  room.Settings.AllowRecording,
			EnableChat:      room.Settings.EnableChat,
			EnableReactions: room.Settings.EnableReactions,
			Private:         room.Settings.Private,
		},
		CreatedAt: room.CreatedAt.UTC(),
		UpdatedAt: room.UpdatedAt.UTC(),
	}
}

func toDomainRoom(room *model.Room) *domain.Room {
	return &domain.Room{
		ID:         room.ID,
		Code:       room.Code,
		Name:       room.Name,
		SecretHash: room.SecretHash,
		HostID:     room.HostID,
		Capacity:   room.Capacity,
		Duration:   time.Duration(room.DurationMinutes) * time.Minute,
		Settings: domain.RoomSettings{
			WaitingRoom:     room.Settings.WaitingRoom,
			MuteOnEntry:     room.Settings.MuteOnEntry,
			AllowRecording:  room.Settings.AllowRecording,
			EnableChat:      room.Settings.EnableChat,
			EnableReactions: room.Settings.EnableReactions,
			Private:         room.Settings.Private,
		},
		CreatedAt: room.CreatedAt.UTC(),
		UpdatedAt: room.UpdatedAt.UTC(),
	}
}

func toModelRecording(rec *domain.Recording) *model.Recording {
	return &model.Recording{
		ID:          rec.ID,
		RoomCode:    rec.RoomCode,
		RoomName:    rec.RoomName,
		OwnerID:     rec.OwnerID,
		Size:        rec.Size,
		ContentType: rec.ContentType,
		CreatedAt:   rec.CreatedAt.UTC(),
	}
}

func toDomainRecording(rec *model.Recording) *domain.Recording {
	return &domain.Recording{
		ID:          rec.ID,
		RoomCode:    rec.RoomCode,
		RoomName:    rec.RoomName,
		OwnerID:     rec.OwnerID,
		Size:        rec.Size,
		ContentType: rec.ContentType,
		CreatedAt:   rec.CreatedAt.UTC(),
	}
}
