package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/skillsphere/meetings/internal/domain"
	"github.com/skillsphere/meetings/internal/repository"
	"github.com/skillsphere/meetings/lib/logger/sl"
)

const (
	maxRoomNameLength = 255
	maxCodeAttempts   = 8
)

// RoomService is the request/response side of the room registry.
type RoomService struct {
	rooms           repository.RoomRepository
	log             *slog.Logger
	defaultCapacity int
	maxCapacity     int
	observer        RoomObserver
}

func NewRoomService(rooms repository.RoomRepository, log *slog.Logger, defaultCapacity, maxCapacity int) *RoomService {
	if log == nil {
		log = slog.Default()
	}
	return &RoomService{
		rooms:           rooms,
		log:             log,
		defaultCapacity: defaultCapacity,
		maxCapacity:     maxCapacity,
	}
}

// SetObserver registers who gets told about configuration changes, normally
// the coordinator so live rosters see new toggles.
func (s *RoomService) SetObserver(o RoomObserver) {
	s.observer = o
}

// NormalizeCode makes user-typed meeting codes comparable.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *RoomService) CreateRoom(ctx context.Context, host domain.Identity, params CreateRoomParams) (*domain.Room, error) {
	const op = "service.room.create"
	log := s.log.With(slog.String("op", op), slog.String("host_id", host.UserID))

	if host.UserID == "" {
		return nil, ErrNotAuthorized
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: room name is required", ErrInvalidMessage)
	}
	if utf8.RuneCountInString(name) > maxRoomNameLength {
		return nil, fmt.Errorf("%w: room name is too long", ErrInvalidMessage)
	}
	if params.DurationMinutes < 0 {
		return nil, fmt.Errorf("%w: duration cannot be negative", ErrInvalidMessage)
	}

	settings := domain.DefaultRoomSettings()
	if params.Settings != nil {
		settings = *params.Settings
	}
	capacity := s.clampCapacity(params.Capacity)
	duration := time.Duration(params.DurationMinutes) * time.Minute

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		room := domain.NewRoom(name, host.UserID, capacity, duration, settings)
		if err := room.SetSecret(params.Secret); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := s.rooms.Create(ctx, room); err != nil {
			if errors.Is(err, repository.ErrRoomCodeExists) {
				log.Debug("meeting code collision, retrying", slog.String("code", room.Code))
				continue
			}
			log.Error("failed to create room", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		log.Info("room created",
			slog.String("room_id", room.ID.String()),
			slog.String("code", room.Code),
			slog.Int("capacity", room.Capacity),
		)
		return room, nil
	}

	return nil, fmt.Errorf("%s: %w", op, repository.ErrRoomCodeExists)
}

func (s *RoomService) GetRoom(ctx context.Context, code string) (*domain.Room, error) {
	return s.rooms.GetByCode(ctx, NormalizeCode(code))
}

func (s *RoomService) UpdateRoom(ctx context.Context, caller domain.Identity, code string, params UpdateRoomParams) (*domain.Room, error) {
	const op = "service.room.update"
	log := s.log.With(slog.String("op", op), slog.String("code", code))

	room, err := s.rooms.GetByCode(ctx, NormalizeCode(code))
	if err != nil {
		return nil, err
	}
	if !room.IsHost(caller.UserID) {
		log.Info("non-host tried to update room", slog.String("user_id", caller.UserID))
		return nil, ErrNotAuthorized
	}

	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" || utf8.RuneCountInString(name) > maxRoomNameLength {
			return nil, fmt.Errorf("%w: invalid room name", ErrInvalidMessage)
		}
		room.Name = name
	}
	if params.Secret != nil {
		if err := room.SetSecret(*params.Secret); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if params.Capacity != nil {
		room.Capacity = s.clampCapacity(*params.Capacity)
	}
	if params.Settings != nil {
		room.Settings = *params.Settings
	}
	room.UpdatedAt = time.Now().UTC()

	if err := s.rooms.Update(ctx, room); err != nil {
		log.Error("failed to update room", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.observer != nil {
		s.observer.RoomUpdated(room.Clone())
	}

	log.Info("room updated")
	return room, nil
}

func (s *RoomService) ListHostedRooms(ctx context.Context, hostID string) ([]*domain.Room, error) {
	return s.rooms.ListByHost(ctx, hostID)
}

func (s *RoomService) clampCapacity(capacity int) int {
	if capacity <= 0 {
		capacity = s.defaultCapacity
	}
	if s.maxCapacity > 0 && capacity > s.maxCapacity {
		capacity = s.maxCapacity
	}
	if capacity <= 0 {
		capacity = 1
	}
	return capacity
}
