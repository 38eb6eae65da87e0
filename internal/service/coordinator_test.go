package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/skillsphere/meetings/internal/directory"
	"github.com/skillsphere/meetings/internal/domain"
	"github.com/skillsphere/meetings/internal/repository"
	"github.com/skillsphere/meetings/internal/repository/mocks"
)

type testConn struct {
	id string

	mu     sync.Mutex
	events []domain.SignalMessage
}

func newConn(id string) *testConn { return &testConn{id: id} }

func (c *testConn) ID() string { return c.id }

func (c *testConn) Send(msg domain.SignalMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, msg)
	return true
}

func (c *testConn) all() []domain.SignalMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.SignalMessage(nil), c.events...)
}

func (c *testConn) ofType(eventType string) []domain.SignalMessage {
	var out []domain.SignalMessage
	for _, msg := range c.all() {
		if msg.Type == eventType {
			out = append(out, msg)
		}
	}
	return out
}

func (c *testConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

type fixture struct {
	rooms *RoomService
	coord *Coordinator
	dir   *directory.Directory
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, opts CoordinatorOptions) *fixture {
	t.Helper()
	repo := repository.NewInMemoryRoomRepository()
	dir := directory.New()
	log := discardLogger()

	rooms := NewRoomService(repo, log, 8, 16)
	coord := NewCoordinator(repo, dir, log, opts)
	rooms.SetObserver(coord)
	return &fixture{rooms: rooms, coord: coord, dir: dir}
}

func (f *fixture) createRoom(t *testing.T, host string, params CreateRoomParams) *domain.Room {
	t.Helper()
	if params.Name == "" {
		params.Name = "standup"
	}
	room, err := f.rooms.CreateRoom(context.Background(), identity(host), params)
	require.NoError(t, err)
	return room
}

func (f *fixture) join(t *testing.T, conn *testConn, user string, code, secret string) *domain.JoinedPayload {
	t.Helper()
	joined, err := f.coord.Join(context.Background(), conn, identity(user), domain.JoinRequest{Code: code, Secret: secret})
	require.NoError(t, err)
	return joined
}

func identity(user string) domain.Identity {
	return domain.Identity{UserID: user, DisplayName: "User " + user}
}

func hosts(participants []domain.Participant) []string {
	var out []string
	for _, p := range participants {
		if p.IsHost {
			out = append(out, p.ID)
		}
	}
	return out
}

func TestMeetingLifecycleScenario(t *testing.T) {
	f := newFixture(t, CoordinatorOptions{})
	room := f.createRoom(t, "alice", CreateRoomParams{Capacity: 2, Secret: "pw"})

	a, b, c := newConn("conn-a"), newConn("conn-b"), newConn("conn-c")

	joinedA := f.join(t, a, "alice", room.Code, "pw")
	assert.True(t, joinedA.Participant.IsHost)
	require.Len(t, a.ofType(domain.TypeJoined), 1)

	joinedB := f.join(t, b, "bob", room.Code, "pw")
	assert.False(t, joinedB.Participant.IsHost)
	require.Len(t, joinedB.Participants, 2)
	assert.Equal(t, []string{"conn-a"}, hosts(joinedB.Participants))
	require.Len(t, a.ofType(domain.TypeParticipantJoined), 1)
	assert.Empty(t, b.ofType(domain.TypeParticipantJoined), "the joiner is not told about itself")

	_, err := f.coord.Join(context.Background(), c, identity("carol"), domain.JoinRequest{Code: room.Code, Secret: "pw"})
	require.ErrorIs(t, err, ErrRoomFull)
	assert.Len(t, f.coord.Participants(room.Code), 2)
	assert.Empty(t, c.all(), "a rejected join is never broadcast")

	require.True(t, f.coord.Leave("conn-a", ""))
	roster := f.coord.Participants(room.Code)
	require.Len(t, roster, 1)
	assert.Equal(t, []string{"conn-b"}, hosts(roster))
	require.Len(t, b.ofType(domain.TypeHostChanged), 1)

	require.NoError(t, f.coord.HostAction("conn-b", domain.ActionEndMeeting, ""))
	assert.Len(t, b.ofType(domain.TypeMeetingEnded), 1)
	assert.Empty(t, f.coord.Participants(room.Code))
	assert.Equal(t, 0, f.dir.Rooms())
}

func TestJoinValidation(t *testing.T) {
	f := newFixture(t, CoordinatorOptions{})
	room := f.createRoom(t, "alice", CreateRoomParams{Secret: "pw"})

	_, err := f.coord.Join(context.Background(), newConn("x"), identity("bob"), domain.JoinRequest{Code: "NOPE99"})
	require.ErrorIs(t, err, ErrRoomNotFound)

	_, err = f.coord.Join(context.Background(), newConn("x"), identity("bob"), domain.JoinRequest{Code: room.Code, Secret: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	assert.Empty(t, f.coord.Participants(room.Code))
	assert.Equal(t, 0, f.dir.Rooms())
}

func TestJoinAcceptsLowercaseCode(t *testing.T) {
	f := newFixture(t, CoordinatorOptions{})
	room := f.createRoom(t, "alice", CreateRoomParams{})

	joined := f.join(t, newConn("a"), "alice", "  "+strings.ToLower(room.Code), "")
	assert.Equal(t, room.Code, joined.Room.Code)
}

func TestDuplicateJoinIsIdempotent(t *testing.T) {
	f := newFixture(t, CoordinatorOptions{})
	room := f.createRoom(t, "alice", CreateRoomParams{})
	other := f.createRoom(t, "alice", CreateRoomParams{Name: "retro"})

	a, b := newConn("a"), newConn("b")
	f.join(t, a, "alice", room.Code, "")
	f.join(t, b, "bob", room.Code, "")
	a.reset()

	again := f.join(t, b, "bob", room.Code, "")
	assert.Equal(t, "b", again.Participant.ID)
	assert.Len(t, f.coord.Participants(room.Code), 2)
	assert.Empty(t, a.ofType(domain.TypeParticipantJoined), "no second announcement")

	_, err := f.coord.Join(context.Background(), b, identity("bob"), domain.JoinRequest{Code: other.Code})
	require.ErrorIs(t, err, ErrAlreadyInRoom)
}

func TestSameUserMayHoldTwoConnections(t *testing.T) {
	f := newFixture(t, CoordinatorOptions{})
	room := f.createRoom(t, "alice", CreateRoomParams{})

	f.join(t, newConn("tab-1"), "bob", room.Code, "")
	f.join(t, newConn("tab-2"), "bob", room.Code, "")

	roster := f.coord.Participants(room.Code)
	require.Len(t, roster, 2)
	assert.Len(t, hosts(roster), 1)
}

func TestRecordedHostReclaimsAuthority(t *testing.T) {
	f := newFixture(t, CoordinatorOptions{})
	room := f.createRoom(t, "alice", CreateRoomParams{})

	b := newConn("b")
	f.join(t, b, "bob", room.Code, "")
	assert.Equal(t, []string{"b"}, hosts(f.coord.Participants(room.Code)))

	joined := f.join(t, newConn("a"), "alice", room.Code, "")
	assert.True(t, joined.Participant.IsHost)
	assert.Equal(t, []string{"a"}, hosts(f.coord.Participants(room.Code)))

	changed := b.ofType(domain.TypeHostChanged)
	require.Len(t, changed, 1)
	var payload domain.HostChanged
	require.NoError(t, changed[0].Decode(&payload))
	assert.Equal(t, "a", payload.ParticipantID)
}

func TestMuteOnEntry(t *testing.T) {
	f := newFixture(t, CoordinatorOptions{})
	settings := domain.DefaultRoomSettings()
	settings.MuteOnEntry = true
	room := f.createRoom(t, "alice", CreateRoomParams{Settings: &settings})

	host := f.join(t, newConn("a"), "alice", room.Code, "")
	guest := f.join(t, newConn("b"), "bob", room.Code, "")
	assert.False(t, host.Participant.Muted)
	assert.True(t, guest.Participant.Muted)
}

func TestCapacityIsClampedToMaximum(t *testing.T) {
	f := newFixture(t, CoordinatorOptions{MaxCapacity: 2})
	room := f.createRoom(t, "alice", CreateRoomParams{Capacity: 10})

	f.join(t, newConn("a"), "alice", room.Code, "")
	f.join(t, newConn("b"), "bob", room.Code, "")
	_, err := f.coord.Join(context.Background(), newConn("c"), identity("carol"), domain.JoinRequest{Code: room.Code})
	require.ErrorIs(t, err, ErrRoomFull)
}

func TestConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	f := newFixture(t, CoordinatorOptions{})
	room := f.createRoom(t, "alice", CreateRoomParams{Capacity: 5})

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		full int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("conn-%d", i)
			_, err := f.coord.Join(context.Background(), newConn(id), identity(fmt.Sprintf("user-%d", i)), domain.JoinRequest{Code: room.Code})
			if errors.Is(err, ErrRoomFull) {
				mu.Lock()
				full++
				mu.Unlock()
				return
			}
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	roster := f.coord.Participants(room.Code)
	assert.Len(t, roster, 5)
	assert.Equal(t, 15, full)
	assert.Len(t, hosts(roster), 1)

	seen := make(map[string]bool)
	for _, p := range roster {
		assert.False(t, seen[p.ID], "participant %s listed twice", p.ID)
		seen[p.ID] = true
	}
}

func TestHostTransferKeepsExactlyOneHost(t *testing.T) {
	f := newFixture(t, CoordinatorOptions{})
	room := f.createRoom(t, "alice", CreateRoomParams{})

	f.join(t, newConn("a"), "alice", room.Code, "")
	b, c := newConn("b"), newConn("c")
	f.join(t, b, "bob", room.Code, "")
	f.join(t, c, "carol", room.Code, "")

	f.coord.Leave("a", "")
	roster := f.coord.Participants(room.Code)
	require.Len(t, roster, 2)
	assert.Equal(t, []string{"b"}, hosts(roster), "earliest remaining joiner succeeds")
	assert.Len(t, c.ofType(domain.TypeHostChanged), 1)

	f.coord.Leave("b", "")
	assert.Equal(t, []string{"c"}, hosts(f.coord.Participants(room.Code)))
}

func TestLeaveIsIdempotent(t *testing.T) {
	f := newFixture(t, CoordinatorOptions{})
	room := f.createRoom(t, "alice", CreateRoomParams{})

	a := newConn("a")
	f.join(t, a, "alice", room.Code, "")
	f.join(t, newConn("b"), "bob", room.Code, "")

	assert.True(t, f.coord.Leave("b", ""))
	assert.False(t, f.coord.Leave("b", ""))
	assert.Len(t, a.ofType(domain.TypeParticipantLeft), 1)
	assert.Len(t, f.coord.Participants(room.Code), 1)
}

func TestNonHostActionIsRejectedWithoutSideEffects(t *testing.T) {
	f := newFixture(t, CoordinatorOptions{})
	room := f.createRoom(t, "alice", CreateRoomParams{})

	a, b, c := newConn("a"), newConn("b"), newConn("c")
	f.join(t, a, "alice", room.Code, "")
	f.join(t, b, "bob", room.Code, "")
	f.join(t, c, "carol", room.Code, "")
	before := f.coord.Participants(room.Code)
	a.reset()
	b.reset()
	c.reset()

	for _, action := range []string{domain.ActionMute, domain.ActionRemove, domain.ActionEndMeeting, domain.ActionMakeHost} {
		err := f.coord.HostAction("b", action, "c")
		require.ErrorIs(t, err, ErrNotAuthorized, action)
	}

	assert.Equal(t, before, f.coord.Participants(room.Code))
	assert.Empty(t, a.all())
	assert.Empty(t, b.all())
	assert.Empty(t, c.all())
}

func TestHostActions(t *testing.T) {
	f := newFixture(t, CoordinatorOptions{})
	room := f.createRoom(t, "alice", CreateRoomParams{})

	a, b, c := newConn("a"), newConn("b"), newConn("c")
	f.join(t, a, "alice", room.Code, "")
	f.join(t, b, "bob", room.Code, "")
	f.join(t, c, "carol", room.Code, "")
	a.reset()
	b.reset()
	c.reset()

	t.Run("mute reaches only the target", func(t *testing.T) {
		require.NoError(t, f.coord.HostAction("a", domain.ActionMute, "b"))
		assert.Len(t, b.ofType(domain.TypeMuteRequested), 1)
		assert.Empty(t, c.ofType(domain.TypeMuteRequested))
	})

	t.Run("unknown target", func(t *testing.T) {
		require.ErrorIs(t, f.coord.HostAction("a", domain.ActionMute, "ghost"), ErrParticipantNotFound)
	})

	t.Run("unknown action", func(t *testing.T) {
		require.ErrorIs(t, f.coord.HostAction("a", "dance", "b"), ErrInvalidMessage)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, f.coord.HostAction("a", domain.ActionRemove, "c"))
		assert.Len(t, c.ofType(domain.TypeRemoved), 1)
		assert.Len(t, b.ofType(domain.TypeParticipantLeft), 1)
		_, ok := f.dir.RoomOf("c")
		assert.False(t, ok)
		assert.False(t, f.coord.Leave("c", ""), "removed connection is already gone")
	})

	t.Run("make host", func(t *testing.T) {
		require.NoError(t, f.coord.HostAction("a", domain.ActionMakeHost, "b"))
		assert.Equal(t, []string{"b"}, hosts(f.coord.Participants(room.Code)))
		require.ErrorIs(t, f.coord.HostAction("a", domain.ActionMute, "b"), ErrNotAuthorized)
	})
}

func TestRelay(t *testing.T) {
	f := newFixture(t, CoordinatorOptions{})
	room := f.createRoom(t, "alice", CreateRoomParams{})

	a, b, c := newConn("a"), newConn("b"), newConn("c")
	f.join(t, a, "alice", room.Code, "")
	f.join(t, b, "bob", room.Code, "")
	f.join(t, c, "carol", room.Code, "")
	a.reset()
	b.reset()
	c.reset()

	offer := json.RawMessage(`{"sdp":"v=0","type":"offer"}`)
	require.NoError(t, f.coord.Relay("a", "b", offer))

	got := b.ofType(domain.TypeSignal)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].SenderID)
	var relayed domain.RelayedSignal
	require.NoError(t, got[0].Decode(&relayed))
	assert.Equal(t, "alice", relayed.UserID)
	assert.True(t, relayed.IsHost)
	assert.JSONEq(t, string(offer), string(relayed.Payload))
	assert.Empty(t, a.all())
	assert.Empty(t, c.all())

	f.coord.Leave("c", "")
	b.reset()
	require.NoError(t, f.coord.Relay("a", "c", offer), "a target that left is dropped silently")
	require.NoError(t, f.coord.Relay("b", "a", offer))
	assert.Len(t, a.ofType(domain.TypeSignal), 1)

	require.ErrorIs(t, f.coord.Relay("stranger", "a", offer), ErrNotInRoom)
}

func TestChat(t *testing.T) {
	f := newFixture(t, CoordinatorOptions{})
	room := f.createRoom(t, "alice", CreateRoomParams{})

	a, b, c := newConn("a"), newConn("b"), newConn("c")
	f.join(t, a, "alice", room.Code, "")
	f.join(t, b, "bob", room.Code, "")
	f.join(t, c, "carol", room.Code, "")

	clientID := "3f0f6d4e-8b9a-4c67-9d55-3e2c8f1a7b10"
	msg, err := f.coord.Chat("a", domain.ChatRequest{Message: "  hello  ", ID: clientID})
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, clientID, msg.ID.String())

	assert.Empty(t, a.ofType(domain.TypeChat))
	for _, conn := range []*testConn{b, c} {
		got := conn.ofType(domain.TypeChat)
		require.Len(t, got, 1)
		var received domain.ChatMessage
		require.NoError(t, got[0].Decode(&received))
		assert.Equal(t, msg.ID, received.ID)
		assert.Equal(t, "User alice", received.DisplayName)
	}

	_, err = f.coord.Chat("a", domain.ChatRequest{Message: "   "})
	require.ErrorIs(t, err, ErrInvalidMessage)
	_, err = f.coord.Chat("a", domain.ChatRequest{Message: "hi", ID: "not-a-uuid"})
	require.ErrorIs(t, err, ErrInvalidMessage)
}

func TestFeatureTogglesAreEnforced(t *testing.T) {
	f := newFixture(t, CoordinatorOptions{})
	room := f.createRoom(t, "alice", CreateRoomParams{Settings: &domain.RoomSettings{}})

	b := newConn("b")
	f.join(t, newConn("a"), "alice", room.Code, "")
	f.join(t, b, "bob", room.Code, "")
	b.reset()

	_, err := f.coord.Chat("a", domain.ChatRequest{Message: "hi"})
	require.ErrorIs(t, err, ErrChatDisabled)
	require.ErrorIs(t, f.coord.React("a", domain.ReactionRequest{Emoji: "👍"}), ErrReactionsDisabled)
	require.ErrorIs(t, f.coord.RecordingStarted("a"), ErrRecordingDisabled)
	assert.Empty(t, b.all())

	enabled := domain.DefaultRoomSettings()
	_, err = f.rooms.UpdateRoom(context.Background(), identity("alice"), room.Code, UpdateRoomParams{Settings: &enabled})
	require.NoError(t, err)
	assert.Len(t, b.ofType(domain.TypeRoomUpdated), 1)

	_, err = f.coord.Chat("a", domain.ChatRequest{Message: "hi"})
	require.NoError(t, err)
	require.NoError(t, f.coord.React("a", domain.ReactionRequest{Emoji: "👍"}))
	require.NoError(t, f.coord.RecordingStarted("a"))
	assert.Len(t, b.ofType(domain.TypeChat), 1)
	assert.Len(t, b.ofType(domain.TypeReaction), 1)
	assert.Len(t, b.ofType(domain.TypeRecordingStarted), 1)
}

func TestMediaStateAndRaisedHand(t *testing.T) {
	f := newFixture(t, CoordinatorOptions{})
	room := f.createRoom(t, "alice", CreateRoomParams{})

	a, b, c := newConn("a"), newConn("b"), newConn("c")
	f.join(t, a, "alice", room.Code, "")
	f.join(t, b, "bob", room.Code, "")
	f.join(t, c, "carol", room.Code, "")
	a.reset()
	c.reset()

	require.NoError(t, f.coord.UpdateMediaState("b", domain.MediaStateRequest{Muted: true, VideoOff: true}))
	assert.Len(t, a.ofType(domain.TypeParticipantUpdated), 1)
	assert.Len(t, c.ofType(domain.TypeParticipantUpdated), 1)

	c.reset()
	require.NoError(t, f.coord.RaiseHand("b", true))
	assert.Len(t, a.ofType(domain.TypeHandRaised), 1)
	assert.Empty(t, c.ofType(domain.TypeHandRaised))
	updates := c.ofType(domain.TypeParticipantUpdated)
	require.Len(t, updates, 1)
	var updated domain.Participant
	require.NoError(t, updates[0].Decode(&updated))
	assert.Equal(t, "b", updated.ID)
	assert.True(t, updated.HandRaised)
	assert.Empty(t, b.ofType(domain.TypeParticipantUpdated))

	for _, p := range f.coord.Participants(room.Code) {
		if p.ID == "b" {
			assert.True(t, p.Muted)
			assert.True(t, p.VideoOff)
			assert.True(t, p.HandRaised)
		}
	}
}

func TestScreenShareRejectScenario(t *testing.T) {
	f := newFixture(t, CoordinatorOptions{})
	room := f.createRoom(t, "alice", CreateRoomParams{})

	a, b, c := newConn("a"), newConn("b"), newConn("c")
	f.join(t, a, "alice", room.Code, "")
	f.join(t, b, "bob", room.Code, "")
	f.join(t, c, "carol", room.Code, "")
	a.reset()
	b.reset()
	c.reset()

	require.NoError(t, f.coord.RequestScreenShare("b"))
	requests := a.ofType(domain.TypeScreenShareRequest)
	require.Len(t, requests, 1)
	assert.Equal(t, "b", requests[0].SenderID)
	assert.Empty(t, c.all())

	require.ErrorIs(t, f.coord.RejectScreenShare("c", "b", "no"), ErrNotAuthorized)
	require.NoError(t, f.coord.RejectScreenShare("a", "b", "not now"))

	rejected := b.ofType(domain.TypeScreenShareRejected)
	require.Len(t, rejected, 1)
	var payload domain.ScreenShareEvent
	require.NoError(t, rejected[0].Decode(&payload))
	assert.Equal(t, "not now", payload.Reason)
	assert.Empty(t, c.all())

	require.ErrorIs(t, f.coord.ApproveScreenShare("a", "b"), ErrNoPendingRequest)
	require.ErrorIs(t, f.coord.ScreenShareStarted("b"), ErrNotAuthorized)
}

func TestScreenShareApproveAndSingleSharer(t *testing.T) {
	f := newFixture(t, CoordinatorOptions{})
	room := f.createRoom(t, "alice", CreateRoomParams{})

	a, b := newConn("a"), newConn("b")
	f.join(t, a, "alice", room.Code, "")
	f.join(t, b, "bob", room.Code, "")

	require.NoError(t, f.coord.RequestScreenShare("b"))
	require.NoError(t, f.coord.ApproveScreenShare("a", "b"))
	assert.Len(t, b.ofType(domain.TypeScreenShareApproved), 1)

	require.NoError(t, f.coord.ScreenShareStarted("b"))
	assert.Len(t, a.ofType(domain.TypeScreenShareStarted), 1)

	require.NoError(t, f.coord.RequestScreenShare("a"))
	assert.Len(t, a.ofType(domain.TypeScreenShareApproved), 1, "host is approved at once")
	require.ErrorIs(t, f.coord.ScreenShareStarted("a"), ErrScreenShareActive)

	f.coord.Leave("b", "")
	assert.Len(t, a.ofType(domain.TypeScreenShareStopped), 1)
	require.NoError(t, f.coord.ScreenShareStarted("a"))
}

func TestScreenShareRequestTimesOut(t *testing.T) {
	f := newFixture(t, CoordinatorOptions{ScreenShareTimeout: 30 * time.Millisecond})
	room := f.createRoom(t, "alice", CreateRoomParams{})

	b := newConn("b")
	f.join(t, newConn("a"), "alice", room.Code, "")
	f.join(t, b, "bob", room.Code, "")

	require.NoError(t, f.coord.RequestScreenShare("b"))
	require.Eventually(t, func() bool {
		return len(b.ofType(domain.TypeScreenShareRejected)) == 1
	}, time.Second, 10*time.Millisecond)

	var payload domain.ScreenShareEvent
	require.NoError(t, b.ofType(domain.TypeScreenShareRejected)[0].Decode(&payload))
	assert.Equal(t, ReasonTimedOut, payload.Reason)
	require.ErrorIs(t, f.coord.ApproveScreenShare("a", "b"), ErrNoPendingRequest)
}

func TestAnsweredScreenShareDoesNotTimeOut(t *testing.T) {
	f := newFixture(t, CoordinatorOptions{ScreenShareTimeout: 30 * time.Millisecond})
	room := f.createRoom(t, "alice", CreateRoomParams{})

	b := newConn("b")
	f.join(t, newConn("a"), "alice", room.Code, "")
	f.join(t, b, "bob", room.Code, "")

	require.NoError(t, f.coord.RequestScreenShare("b"))
	require.NoError(t, f.coord.ApproveScreenShare("a", "b"))
	time.Sleep(90 * time.Millisecond)
	assert.Empty(t, b.ofType(domain.TypeScreenShareRejected))
}

func TestJoinSurfacesRepositoryFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRoomRepository(ctrl)
	boom := errors.New("connection reset")

	repo.EXPECT().GetByCode(gomock.Any(), "ABC123").Return(nil, boom)
	repo.EXPECT().GetByCode(gomock.Any(), "GONE42").Return(nil, repository.ErrRoomNotFound)

	coord := NewCoordinator(repo, directory.New(), discardLogger(), CoordinatorOptions{})

	_, err := coord.Join(context.Background(), newConn("a"), identity("alice"), domain.JoinRequest{Code: "abc123"})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "internal", ErrorCode(err))

	_, err = coord.Join(context.Background(), newConn("a"), identity("alice"), domain.JoinRequest{Code: "GONE42"})
	require.ErrorIs(t, err, ErrRoomNotFound)
	assert.Equal(t, "room_not_found", ErrorCode(err))
}

// stallingRooms pauses the next GetByCode after it has loaded the room until
// released.
type stallingRooms struct {
	repository.RoomRepository

	mu      sync.Mutex
	loaded  chan struct{}
	release chan struct{}
}

func (s *stallingRooms) stallNext() (loaded, release chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded, s.release = make(chan struct{}), make(chan struct{})
	return s.loaded, s.release
}

func (s *stallingRooms) GetByCode(ctx context.Context, code string) (*domain.Room, error) {
	room, err := s.RoomRepository.GetByCode(ctx, code)

	s.mu.Lock()
	loaded, release := s.loaded, s.release
	s.loaded, s.release = nil, nil
	s.mu.Unlock()

	if loaded != nil {
		close(loaded)
		<-release
	}
	return room, err
}

func TestJoinKeepsNewerRoomSettings(t *testing.T) {
	repo := &stallingRooms{RoomRepository: repository.NewInMemoryRoomRepository()}
	log := discardLogger()
	rooms := NewRoomService(repo, log, 8, 16)
	coord := NewCoordinator(repo, directory.New(), log, CoordinatorOptions{})
	rooms.SetObserver(coord)

	ctx := context.Background()
	room, err := rooms.CreateRoom(ctx, identity("alice"), CreateRoomParams{Name: "retro"})
	require.NoError(t, err)
	_, err = coord.Join(ctx, newConn("a"), identity("alice"), domain.JoinRequest{Code: room.Code})
	require.NoError(t, err)

	loaded, release := repo.stallNext()
	type result struct {
		joined *domain.JoinedPayload
		err    error
	}
	done := make(chan result, 1)
	go func() {
		joined, err := coord.Join(ctx, newConn("b"), identity("bob"), domain.JoinRequest{Code: room.Code})
		done <- result{joined, err}
	}()
	<-loaded

	settings := room.Settings
	settings.EnableChat = false
	_, err = rooms.UpdateRoom(ctx, identity("alice"), room.Code, UpdateRoomParams{Settings: &settings})
	require.NoError(t, err)
	_, err = coord.Chat("a", domain.ChatRequest{Message: "hi"})
	require.ErrorIs(t, err, ErrChatDisabled)

	close(release)
	res := <-done
	require.NoError(t, res.err)
	assert.False(t, res.joined.Room.Settings.EnableChat)

	_, err = coord.Chat("a", domain.ChatRequest{Message: "hi"})
	require.ErrorIs(t, err, ErrChatDisabled)
	_, err = coord.Chat("b", domain.ChatRequest{Message: "hi"})
	require.ErrorIs(t, err, ErrChatDisabled)
}

func TestJoinRechecksSecretChangedWhileLoading(t *testing.T) {
	repo := &stallingRooms{RoomRepository: repository.NewInMemoryRoomRepository()}
	log := discardLogger()
	rooms := NewRoomService(repo, log, 8, 16)
	coord := NewCoordinator(repo, directory.New(), log, CoordinatorOptions{})
	rooms.SetObserver(coord)

	ctx := context.Background()
	room, err := rooms.CreateRoom(ctx, identity("alice"), CreateRoomParams{Name: "retro"})
	require.NoError(t, err)
	_, err = coord.Join(ctx, newConn("a"), identity("alice"), domain.JoinRequest{Code: room.Code})
	require.NoError(t, err)

	loaded, release := repo.stallNext()
	done := make(chan error, 1)
	go func() {
		_, err := coord.Join(ctx, newConn("b"), identity("bob"), domain.JoinRequest{Code: room.Code})
		done <- err
	}()
	<-loaded

	secret := "locked"
	_, err = rooms.UpdateRoom(ctx, identity("alice"), room.Code, UpdateRoomParams{Secret: &secret})
	require.NoError(t, err)

	close(release)
	require.ErrorIs(t, <-done, ErrInvalidCredentials)
	assert.Len(t, coord.Participants(room.Code), 1)
}

func TestStaleRoomUpdateIsIgnored(t *testing.T) {
	f := newFixture(t, CoordinatorOptions{})
	room := f.createRoom(t, "alice", CreateRoomParams{})
	a := newConn("a")
	f.join(t, a, "alice", room.Code, "")

	settings := room.Settings
	settings.EnableReactions = false
	_, err := f.rooms.UpdateRoom(context.Background(), identity("alice"), room.Code, UpdateRoomParams{Settings: &settings})
	require.NoError(t, err)
	a.reset()

	f.coord.RoomUpdated(room)
	assert.Empty(t, a.ofType(domain.TypeRoomUpdated))
	require.ErrorIs(t, f.coord.React("a", domain.ReactionRequest{Emoji: "👍"}), ErrReactionsDisabled)
}

func TestPendingScreenShareFollowsHostTransfer(t *testing.T) {
	f := newFixture(t, CoordinatorOptions{})
	room := f.createRoom(t, "alice", CreateRoomParams{})

	a, b, c, d := newConn("a"), newConn("b"), newConn("c"), newConn("d")
	f.join(t, a, "alice", room.Code, "")
	f.join(t, b, "bob", room.Code, "")
	f.join(t, c, "carol", room.Code, "")
	f.join(t, d, "dave", room.Code, "")

	require.NoError(t, f.coord.RequestScreenShare("c"))
	require.Len(t, a.ofType(domain.TypeScreenShareRequest), 1)

	f.coord.Leave("a", "")
	requests := b.ofType(domain.TypeScreenShareRequest)
	require.Len(t, requests, 1, "new host hears about the waiting request")
	assert.Equal(t, "c", requests[0].SenderID)

	require.NoError(t, f.coord.RequestScreenShare("d"))
	require.NoError(t, f.coord.HostAction("b", domain.ActionMakeHost, "d"))
	assert.Len(t, d.ofType(domain.TypeScreenShareApproved), 1, "own request is approved on becoming host")
	forwarded := d.ofType(domain.TypeScreenShareRequest)
	require.Len(t, forwarded, 1)
	assert.Equal(t, "c", forwarded[0].SenderID)

	require.NoError(t, f.coord.ApproveScreenShare("d", "c"))
	assert.Len(t, c.ofType(domain.TypeScreenShareApproved), 1)
	require.ErrorIs(t, f.coord.ApproveScreenShare("d", "d"), ErrNoPendingRequest)
}

func TestReclaimingHostReceivesPendingScreenShare(t *testing.T) {
	f := newFixture(t, CoordinatorOptions{})
	room := f.createRoom(t, "alice", CreateRoomParams{})

	b, c := newConn("b"), newConn("c")
	f.join(t, b, "bob", room.Code, "")
	f.join(t, c, "carol", room.Code, "")
	require.NoError(t, f.coord.RequestScreenShare("c"))
	require.Len(t, b.ofType(domain.TypeScreenShareRequest), 1)

	a := newConn("a")
	joined := f.join(t, a, "alice", room.Code, "")
	require.True(t, joined.Participant.IsHost)
	requests := a.ofType(domain.TypeScreenShareRequest)
	require.Len(t, requests, 1)
	assert.Equal(t, "c", requests[0].SenderID)
	require.NoError(t, f.coord.ApproveScreenShare("a", "c"))
}
