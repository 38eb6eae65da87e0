package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/skillsphere/meetings/internal/domain"
)

//go:generate mockgen -source=repository.go -destination=mocks/mock_repository.go -package=mocks

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomCodeExists    = errors.New("room code already exists")
	ErrRecordingNotFound = errors.New("recording not found")
)

type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error)
	GetByCode(ctx context.Context, code string) (*domain.Room, error)
	Update(ctx context.Context, room *domain.Room) error
	ListByHost(ctx context.Context, hostID string) ([]*domain.Room, error)
}

type RecordingRepository interface {
	Create(ctx context.Context, rec *domain.Recording) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Recording, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Recording, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
