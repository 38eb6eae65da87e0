package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/skillsphere/meetings/internal/domain"
)

type InMemoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]*domain.Room
	codes map[string]uuid.UUID
}

func NewInMemoryRoomRepository() *InMemoryRoomRepository {
	return &InMemoryRoomRepository{
		rooms: make(map[uuid.UUID]*domain.Room),
		codes: make(map[string]uuid.UUID),
	}
}

func (r *InMemoryRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.codes[room.Code]; ok {
		return ErrRoomCodeExists
	}

	r.rooms[room.ID] = room.Clone()
	r.codes[room.Code] = room.ID
	return nil
}

func (r *InMemoryRoomRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}

	return room.Clone(), nil
}

func (r *InMemoryRoomRepository) GetByCode(ctx context.Context, code string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	roomID, ok := r.codes[code]
	if !ok {
		return nil, ErrRoomNotFound
	}

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	return room.Clone(), nil
}

func (r *InMemoryRoomRepository) Update(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.rooms[room.ID]
	if !ok {
		return ErrRoomNotFound
	}
	if existing.Code != room.Code {
		if _, taken := r.codes[room.Code]; taken {
			return ErrRoomCodeExists
		}
		delete(r.codes, existing.Code)
	}

	r.rooms[room.ID] = room.Clone()
	r.codes[room.Code] = room.ID
	return nil
}

func (r *InMemoryRoomRepository) ListByHost(ctx context.Context, hostID string) ([]*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Room, 0)
	for _, room := range r.rooms {
		if room.HostID == hostID {
			result = append(result, room.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

type InMemoryRecordingRepository struct {
	mu         sync.RWMutex
	recordings map[uuid.UUID]domain.Recording
}

func NewInMemoryRecordingRepository() *InMemoryRecordingRepository {
	return &InMemoryRecordingRepository{
		recordings: make(map[uuid.UUID]domain.Recording),
	}
}

func (r *InMemoryRecordingRepository) Create(ctx context.Context, rec *domain.Recording) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.recordings[rec.ID] = *rec
	return nil
}

func (r *InMemoryRecordingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.recordings[id]
	if !ok {
		return nil, ErrRecordingNotFound
	}
	return &rec, nil
}

func (r *InMemoryRecordingRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Recording, 0)
	for _, rec := range r.recordings {
		if rec.OwnerID == ownerID {
			rec := rec
			result = append(result, &rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (r *InMemoryRecordingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.recordings[id]; !ok {
		return ErrRecordingNotFound
	}
	delete(r.recordings, id)
	return nil
}
