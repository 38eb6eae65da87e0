package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/skillsphere/meetings/internal/domain"
	"github.com/skillsphere/meetings/internal/repository"
	"github.com/skillsphere/meetings/internal/repository/mocks"
)

func TestCreateRoomDefaults(t *testing.T) {
	svc := NewRoomService(repository.NewInMemoryRoomRepository(), discardLogger(), 8, 16)

	room, err := svc.CreateRoom(context.Background(), identity("alice"), CreateRoomParams{Name: " Weekly sync ", DurationMinutes: 45})
	require.NoError(t, err)
	assert.Len(t, room.Code, 6)
	assert.Equal(t, "Weekly sync", room.Name)
	assert.Equal(t, "alice", room.HostID)
	assert.Equal(t, 8, room.Capacity)
	assert.Equal(t, 45, room.Info().DurationMinutes)
	assert.Equal(t, domain.DefaultRoomSettings(), room.Settings)
	assert.False(t, room.HasSecret())

	big, err := svc.CreateRoom(context.Background(), identity("alice"), CreateRoomParams{Name: "all hands", Capacity: 500})
	require.NoError(t, err)
	assert.Equal(t, 16, big.Capacity)

	fetched, err := svc.GetRoom(context.Background(), " "+room.Code)
	require.NoError(t, err)
	assert.Equal(t, room.ID, fetched.ID)
}

func TestCreateRoomValidation(t *testing.T) {
	svc := NewRoomService(repository.NewInMemoryRoomRepository(), discardLogger(), 8, 16)

	_, err := svc.CreateRoom(context.Background(), identity("alice"), CreateRoomParams{Name: "  "})
	require.ErrorIs(t, err, ErrInvalidMessage)

	_, err = svc.CreateRoom(context.Background(), domain.Identity{}, CreateRoomParams{Name: "x"})
	require.ErrorIs(t, err, ErrNotAuthorized)

	_, err = svc.CreateRoom(context.Background(), identity("alice"), CreateRoomParams{Name: "x", DurationMinutes: -5})
	require.ErrorIs(t, err, ErrInvalidMessage)
}

func TestCreateRoomRetriesOnCodeCollision(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRoomRepository(ctrl)

	gomock.InOrder(
		repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(repository.ErrRoomCodeExists),
		repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil),
	)

	svc := NewRoomService(repo, discardLogger(), 8, 16)
	room, err := svc.CreateRoom(context.Background(), identity("alice"), CreateRoomParams{Name: "retro"})
	require.NoError(t, err)
	assert.NotEmpty(t, room.Code)
}

func TestCreateRoomGivesUpAfterRepeatedCollisions(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRoomRepository(ctrl)
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(repository.ErrRoomCodeExists).Times(maxCodeAttempts)

	svc := NewRoomService(repo, discardLogger(), 8, 16)
	_, err := svc.CreateRoom(context.Background(), identity("alice"), CreateRoomParams{Name: "retro"})
	require.ErrorIs(t, err, repository.ErrRoomCodeExists)
}

func TestUpdateRoom(t *testing.T) {
	svc := NewRoomService(repository.NewInMemoryRoomRepository(), discardLogger(), 8, 16)
	room, err := svc.CreateRoom(context.Background(), identity("alice"), CreateRoomParams{Name: "retro"})
	require.NoError(t, err)

	capacity := 4
	secret := "s3cret"
	_, err = svc.UpdateRoom(context.Background(), identity("bob"), room.Code, UpdateRoomParams{Capacity: &capacity})
	require.ErrorIs(t, err, ErrNotAuthorized)

	settings := domain.RoomSettings{Private: true}
	updated, err := svc.UpdateRoom(context.Background(), identity("alice"), room.Code, UpdateRoomParams{
		Capacity: &capacity,
		Secret:   &secret,
		Settings: &settings,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Capacity)
	assert.True(t, updated.Settings.Private)
	assert.False(t, updated.Settings.EnableChat)

	stored, err := svc.GetRoom(context.Background(), room.Code)
	require.NoError(t, err)
	assert.True(t, stored.CheckSecret("s3cret"))
	assert.False(t, stored.CheckSecret("guess"))

	_, err = svc.UpdateRoom(context.Background(), identity("alice"), "ZZZZZZ", UpdateRoomParams{})
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestListHostedRooms(t *testing.T) {
	svc := NewRoomService(repository.NewInMemoryRoomRepository(), discardLogger(), 8, 16)
	for _, name := range []string{"one", "two"} {
		_, err := svc.CreateRoom(context.Background(), identity("alice"), CreateRoomParams{Name: name})
		require.NoError(t, err)
	}
	_, err := svc.CreateRoom(context.Background(), identity("bob"), CreateRoomParams{Name: "three"})
	require.NoError(t, err)

	rooms, err := svc.ListHostedRooms(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, rooms, 2)
}
