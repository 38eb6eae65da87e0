package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"github.com/skillsphere/meetings/internal/directory"
	"github.com/skillsphere/meetings/internal/domain"
	"github.com/skillsphere/meetings/internal/repository"
	"github.com/skillsphere/meetings/lib/logger/sl"
)

const (
	maxChatMessageLength = 4000
	maxEmojiLength       = 16

	defaultScreenShareTimeout = 30 * time.Second

	ReasonLeft     = "left"
	ReasonRemoved  = "removed"
	ReasonTimedOut = "timed out"
)

type CoordinatorOptions struct {
	ICEServers         []webrtc.ICEServer
	MaxCapacity        int
	ScreenShareTimeout time.Duration
}

// Coordinator runs the meeting state machine on top of the participant
// directory. Every roster mutation goes through a directory Update callback,
// so host checks see the state current at the time of the request.
type Coordinator struct {
	rooms repository.RoomRepository
	dir   *directory.Directory
	log   *slog.Logger
	opts  CoordinatorOptions

	shareTokens atomic.Uint64
}

func NewCoordinator(rooms repository.RoomRepository, dir *directory.Directory, log *slog.Logger, opts CoordinatorOptions) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if opts.ScreenShareTimeout <= 0 {
		opts.ScreenShareTimeout = defaultScreenShareTimeout
	}
	return &Coordinator{
		rooms: rooms,
		dir:   dir,
		log:   log,
		opts:  opts,
	}
}

// Join validates req against the registry and registers conn in the room. The
// joined acknowledgement is delivered to conn before anyone else hears about
// the new participant. A repeated join on the same connection returns the
// existing registration.
func (c *Coordinator) Join(ctx context.Context, conn directory.Conn, id domain.Identity, req domain.JoinRequest) (*domain.JoinedPayload, error) {
	const op = "service.coordinator.join"
	code := NormalizeCode(req.Code)
	log := c.log.With(
		slog.String("op", op),
		slog.String("room", code),
		slog.String("conn_id", conn.ID()),
		slog.String("user_id", id.UserID),
	)

	if current, ok := c.dir.RoomOf(conn.ID()); ok {
		if current != code {
			return nil, ErrAlreadyInRoom
		}
		var joined *domain.JoinedPayload
		if c.dir.ViewByConn(conn.ID(), func(r *directory.Roster, m *directory.Member) {
			joined = c.joinedPayload(r, m)
			c.sendTo(r, m.ID, domain.NewEvent(domain.TypeJoined, "", joined))
		}) {
			log.Debug("duplicate join ignored")
			return joined, nil
		}
	}

	room, err := c.rooms.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		log.Error("failed to load room", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !room.CheckSecret(req.Secret) {
		log.Info("join rejected: wrong secret")
		return nil, ErrInvalidCredentials
	}

	var joined *domain.JoinedPayload
	err = c.dir.Update(code, func(r *directory.Roster) error {
		if current := syncRoom(r, room); current != room {
			if !current.CheckSecret(req.Secret) {
				return ErrInvalidCredentials
			}
			room = current
		}

		if existing, ok := r.Get(conn.ID()); ok {
			joined = c.joinedPayload(r, existing)
			c.sendTo(r, existing.ID, domain.NewEvent(domain.TypeJoined, "", joined))
			return nil
		}
		if limit := c.capacity(room); limit > 0 && r.Len() >= limit {
			return ErrRoomFull
		}

		p := domain.NewParticipant(conn.ID(), id)
		var demoted *directory.Member
		host, hasHost := r.Host()
		switch {
		case !hasHost:
			p.IsHost = true
		case room.IsHost(id.UserID) && !room.IsHost(host.UserID):
			host.IsHost = false
			demoted = host
			p.IsHost = true
		}
		if room.Settings.MuteOnEntry && !p.IsHost {
			p.Muted = true
		}

		m, _ := r.Add(p, conn)
		joined = c.joinedPayload(r, m)
		c.sendTo(r, m.ID, domain.NewEvent(domain.TypeJoined, "", joined))
		c.fanOut(r, domain.NewEvent(domain.TypeParticipantJoined, "", m.Participant), m.ID)
		if demoted != nil {
			c.fanOut(r, hostChangedEvent(m), m.ID)
			c.offerPendingShares(r, m)
			log.Info("recorded host reclaimed authority", slog.String("from", demoted.ID))
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrRoomFull):
			log.Info("join rejected: room full", slog.Int("capacity", c.capacity(room)))
		case errors.Is(err, ErrInvalidCredentials):
			log.Info("join rejected: secret changed")
		}
		return nil, err
	}

	log.Info("participant joined",
		slog.Bool("host", joined.Participant.IsHost),
		slog.Int("participants", len(joined.Participants)),
	)
	return joined, nil
}

// Leave removes the connection from its room. It reports false when the
// connection was not registered, which makes repeated calls harmless.
func (c *Coordinator) Leave(connID string, reason string) bool {
	const op = "service.coordinator.leave"
	log := c.log.With(slog.String("op", op), slog.String("conn_id", connID))

	if reason == "" {
		reason = ReasonLeft
	}

	left := false
	err := c.dir.UpdateByConn(connID, func(r *directory.Roster, m *directory.Member) error {
		c.removeMember(r, m, reason)
		left = true
		log.Info("participant left",
			slog.String("room", r.Code()),
			slog.String("reason", reason),
			slog.Int("remaining", r.Len()),
		)
		return nil
	})
	if err != nil && !errors.Is(err, directory.ErrNotMember) {
		log.Error("cleanup failed", sl.Err(err))
	}
	return left
}

// Relay forwards a negotiation payload to exactly one other participant. A
// target that is gone is not an error.
func (c *Coordinator) Relay(fromConn, toConn string, payload json.RawMessage) error {
	delivered := false
	found := c.dir.ViewByConn(fromConn, func(r *directory.Roster, m *directory.Member) {
		if toConn == "" || toConn == m.ID {
			return
		}
		if _, ok := r.Get(toConn); !ok {
			return
		}
		msg := domain.NewEvent(domain.TypeSignal, "", domain.RelayedSignal{
			From:        m.ID,
			UserID:      m.UserID,
			DisplayName: m.DisplayName,
			IsHost:      m.IsHost,
			Payload:     payload,
		})
		msg.SenderID = m.ID
		msg.TargetID = toConn
		delivered = r.Send(toConn, msg)
	})
	if !found {
		return ErrNotInRoom
	}
	if !delivered {
		c.log.Debug("signal dropped", slog.String("from", fromConn), slog.String("to", toConn))
	}
	return nil
}

// Chat fans a message out to every other participant. The sender renders its
// own copy, so it is returned rather than echoed.
func (c *Coordinator) Chat(fromConn string, req domain.ChatRequest) (*domain.ChatMessage, error) {
	content := strings.TrimSpace(req.Message)
	if content == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidMessage)
	}
	if utf8.RuneCountInString(content) > maxChatMessageLength {
		return nil, fmt.Errorf("%w: message is too long", ErrInvalidMessage)
	}
	var msgID uuid.UUID
	if req.ID != "" {
		parsed, err := uuid.Parse(req.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid message id", ErrInvalidMessage)
		}
		msgID = parsed
	}

	var (
		msg *domain.ChatMessage
		err error
	)
	found := c.dir.ViewByConn(fromConn, func(r *directory.Roster, m *directory.Member) {
		if room := r.Room(); room != nil && !room.Settings.EnableChat {
			err = ErrChatDisabled
			return
		}
		msg = domain.NewChatMessage(r.Code(), &m.Participant, content)
		if msgID != uuid.Nil {
			msg.ID = msgID
		}
		c.fanOut(r, c.from(m, domain.NewEvent(domain.TypeChat, "", msg)), m.ID)
	})
	if !found {
		return nil, ErrNotInRoom
	}
	return msg, err
}

func (c *Coordinator) React(fromConn string, req domain.ReactionRequest) error {
	emoji := strings.TrimSpace(req.Emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > maxEmojiLength {
		return fmt.Errorf("%w: invalid reaction", ErrInvalidMessage)
	}

	var err error
	found := c.dir.ViewByConn(fromConn, func(r *directory.Roster, m *directory.Member) {
		if room := r.Room(); room != nil && !room.Settings.EnableReactions {
			err = ErrReactionsDisabled
			return
		}
		c.fanOut(r, c.from(m, domain.NewEvent(domain.TypeReaction, "", domain.Reaction{
			ID:            uuid.New(),
			ParticipantID: m.ID,
			DisplayName:   m.DisplayName,
			Emoji:         emoji,
		})), m.ID)
	})
	if !found {
		return ErrNotInRoom
	}
	return err
}

func (c *Coordinator) UpdateMediaState(fromConn string, req domain.MediaStateRequest) error {
	return c.dir.UpdateByConn(fromConn, func(r *directory.Roster, m *directory.Member) error {
		m.Muted = req.Muted
		m.VideoOff = req.VideoOff
		c.fanOut(r, domain.NewEvent(domain.TypeParticipantUpdated, "", m.Participant), m.ID)
		return nil
	})
}

// RaiseHand records the flag and tells the current host. The rest of the room
// sees it as a participant update.
func (c *Coordinator) RaiseHand(fromConn string, raised bool) error {
	return c.dir.UpdateByConn(fromConn, func(r *directory.Roster, m *directory.Member) error {
		m.HandRaised = raised
		c.fanOut(r, domain.NewEvent(domain.TypeParticipantUpdated, "", m.Participant), m.ID)
		if host, ok := r.Host(); ok && host.ID != m.ID {
			c.sendTo(r, host.ID, c.from(m, domain.NewEvent(domain.TypeHandRaised, "", domain.HandRaised{
				ParticipantID: m.ID,
				DisplayName:   m.DisplayName,
				Raised:        raised,
			})))
		}
		return nil
	})
}

// HostAction applies a privileged action. A caller that is not the host at the
// moment the roster lock is taken gets ErrNotAuthorized and nothing changes.
func (c *Coordinator) HostAction(fromConn, action, targetConn string) error {
	const op = "service.coordinator.host_action"
	log := c.log.With(
		slog.String("op", op),
		slog.String("conn_id", fromConn),
		slog.String("action", action),
		slog.String("target", targetConn),
	)

	err := c.dir.UpdateByConn(fromConn, func(r *directory.Roster, m *directory.Member) error {
		if !m.IsHost {
			return ErrNotAuthorized
		}

		switch action {
		case domain.ActionMute:
			target, ok := r.Get(targetConn)
			if !ok {
				return ErrParticipantNotFound
			}
			c.sendTo(r, target.ID, c.from(m, domain.NewEvent(domain.TypeMuteRequested, "", domain.HostInstruction{By: m.ID})))

		case domain.ActionRemove:
			if targetConn == m.ID {
				return fmt.Errorf("%w: host cannot remove itself", ErrInvalidMessage)
			}
			target, ok := r.Get(targetConn)
			if !ok {
				return ErrParticipantNotFound
			}
			c.sendTo(r, target.ID, c.from(m, domain.NewEvent(domain.TypeRemoved, "", domain.HostInstruction{By: m.ID, Reason: ReasonRemoved})))
			c.removeMember(r, target, ReasonRemoved)

		case domain.ActionEndMeeting:
			c.fanOut(r, c.from(m, domain.NewEvent(domain.TypeMeetingEnded, "", domain.HostInstruction{By: m.ID})))
			r.Clear()

		case domain.ActionMakeHost:
			target, ok := r.Get(targetConn)
			if !ok {
				return ErrParticipantNotFound
			}
			if target.ID == m.ID {
				return nil
			}
			m.IsHost = false
			target.IsHost = true
			c.fanOut(r, hostChangedEvent(target))
			c.offerPendingShares(r, target)

		default:
			return fmt.Errorf("%w: unknown host action %q", ErrInvalidMessage, action)
		}
		return nil
	})
	if err != nil {
		log.Info("host action rejected", sl.Err(err))
		return err
	}

	log.Info("host action applied")
	return nil
}

// RequestScreenShare asks the host for permission to share. The host is
// approved at once. A pending request that nobody answers is rejected after
// the configured timeout.
func (c *Coordinator) RequestScreenShare(fromConn string) error {
	return c.dir.UpdateByConn(fromConn, func(r *directory.Roster, m *directory.Member) error {
		if m.ScreenSharing {
			return nil
		}
		if m.IsHost {
			m.ShareApproved = true
			c.sendTo(r, m.ID, domain.NewEvent(domain.TypeScreenShareApproved, "", shareEvent(m, "")))
			return nil
		}
		if _, pending := m.PendingShare(); pending {
			return nil
		}

		token := c.shareTokens.Add(1)
		code, id := r.Code(), m.ID
		m.SetPendingShare(token, time.AfterFunc(c.opts.ScreenShareTimeout, func() {
			c.expireShareRequest(code, id, token)
		}))

		if host, ok := r.Host(); ok {
			c.sendTo(r, host.ID, c.from(m, domain.NewEvent(domain.TypeScreenShareRequest, "", shareEvent(m, ""))))
		}
		return nil
	})
}

func (c *Coordinator) expireShareRequest(code, connID string, token uint64) {
	_ = c.dir.Update(code, func(r *directory.Roster) error {
		m, ok := r.Get(connID)
		if !ok {
			return nil
		}
		if current, pending := m.PendingShare(); !pending || current != token {
			return nil
		}
		m.ClearPendingShare()
		c.sendTo(r, m.ID, domain.NewEvent(domain.TypeScreenShareRejected, "", shareEvent(m, ReasonTimedOut)))
		c.log.Info("screen-share request timed out", slog.String("room", code), slog.String("conn_id", connID))
		return nil
	})
}

func (c *Coordinator) ApproveScreenShare(hostConn, targetConn string) error {
	return c.decideScreenShare(hostConn, targetConn, true, "")
}

func (c *Coordinator) RejectScreenShare(hostConn, targetConn, reason string) error {
	return c.decideScreenShare(hostConn, targetConn, false, reason)
}

// decideScreenShare routes the host's answer back to the requester only.
func (c *Coordinator) decideScreenShare(hostConn, targetConn string, approve bool, reason string) error {
	return c.dir.UpdateByConn(hostConn, func(r *directory.Roster, m *directory.Member) error {
		if !m.IsHost {
			return ErrNotAuthorized
		}
		target, ok := r.Get(targetConn)
		if !ok {
			return ErrParticipantNotFound
		}
		if !target.ClearPendingShare() {
			return ErrNoPendingRequest
		}

		eventType := domain.TypeScreenShareRejected
		if approve {
			eventType = domain.TypeScreenShareApproved
		}
		target.ShareApproved = approve
		c.sendTo(r, target.ID, c.from(m, domain.NewEvent(eventType, "", shareEvent(target, reason))))
		return nil
	})
}

func (c *Coordinator) ScreenShareStarted(fromConn string) error {
	return c.dir.UpdateByConn(fromConn, func(r *directory.Roster, m *directory.Member) error {
		if !m.IsHost && !m.ShareApproved {
			return ErrNotAuthorized
		}
		for _, other := range r.Members() {
			if other.ID != m.ID && other.ScreenSharing {
				return ErrScreenShareActive
			}
		}
		m.ScreenSharing = true
		c.fanOut(r, c.from(m, domain.NewEvent(domain.TypeScreenShareStarted, "", shareEvent(m, ""))), m.ID)
		return nil
	})
}

func (c *Coordinator) ScreenShareStopped(fromConn string) error {
	return c.dir.UpdateByConn(fromConn, func(r *directory.Roster, m *directory.Member) error {
		m.ShareApproved = false
		if !m.ScreenSharing {
			return nil
		}
		m.ScreenSharing = false
		c.fanOut(r, c.from(m, domain.NewEvent(domain.TypeScreenShareStopped, "", shareEvent(m, ""))), m.ID)
		return nil
	})
}

func (c *Coordinator) RecordingStarted(fromConn string) error {
	return c.announceRecording(fromConn, domain.TypeRecordingStarted)
}

func (c *Coordinator) RecordingStopped(fromConn string) error {
	return c.announceRecording(fromConn, domain.TypeRecordingStopped)
}

func (c *Coordinator) announceRecording(fromConn, eventType string) error {
	var err error
	found := c.dir.ViewByConn(fromConn, func(r *directory.Roster, m *directory.Member) {
		if room := r.Room(); room != nil && !room.Settings.AllowRecording {
			err = ErrRecordingDisabled
			return
		}
		c.fanOut(r, c.from(m, domain.NewEvent(eventType, "", m.Participant)), m.ID)
	})
	if !found {
		return ErrNotInRoom
	}
	return err
}

func (c *Coordinator) Participants(code string) []domain.Participant {
	return c.dir.Participants(NormalizeCode(code))
}

// RoomUpdated pushes new registry configuration to a live room.
func (c *Coordinator) RoomUpdated(room *domain.Room) {
	_ = c.dir.Update(room.Code, func(r *directory.Roster) error {
		if r.Len() == 0 || syncRoom(r, room) != room {
			return nil
		}
		c.fanOut(r, domain.NewEvent(domain.TypeRoomUpdated, "", room.Info()))
		return nil
	})
}

// removeMember takes m out of the roster, tells the rest and hands host
// authority on when m held it.
func (c *Coordinator) removeMember(r *directory.Roster, m *directory.Member, reason string) {
	r.Remove(m.ID)
	c.fanOut(r, domain.NewEvent(domain.TypeParticipantLeft, "", domain.ParticipantLeft{
		ParticipantID: m.ID,
		UserID:        m.UserID,
		Reason:        reason,
	}))
	if m.ScreenSharing {
		c.fanOut(r, c.from(m, domain.NewEvent(domain.TypeScreenShareStopped, "", shareEvent(m, reason))))
	}
	if !m.IsHost || r.Len() == 0 {
		return
	}

	successor := c.successor(r)
	successor.IsHost = true
	c.fanOut(r, hostChangedEvent(successor))
	c.offerPendingShares(r, successor)
	c.log.Info("host authority transferred",
		slog.String("room", r.Code()),
		slog.String("from", m.ID),
		slog.String("to", successor.ID),
	)
}

// offerPendingShares routes screen-share requests that are still waiting to a
// new host. A request of the new host itself is approved at once.
func (c *Coordinator) offerPendingShares(r *directory.Roster, host *directory.Member) {
	for _, m := range r.Members() {
		if _, pending := m.PendingShare(); !pending {
			continue
		}
		if m.ID == host.ID {
			m.ClearPendingShare()
			m.ShareApproved = true
			c.sendTo(r, m.ID, domain.NewEvent(domain.TypeScreenShareApproved, "", shareEvent(m, "")))
			continue
		}
		c.sendTo(r, host.ID, c.from(m, domain.NewEvent(domain.TypeScreenShareRequest, "", shareEvent(m, ""))))
	}
}

// syncRoom installs room on the roster unless the roster already carries a
// newer configuration, and returns the configuration in effect.
func syncRoom(r *directory.Roster, room *domain.Room) *domain.Room {
	if current := r.Room(); current != nil && room.UpdatedAt.Before(current.UpdatedAt) {
		return current
	}
	r.SetRoom(room)
	return room
}

// successor prefers another connection of the recorded host, then the
// earliest joiner.
func (c *Coordinator) successor(r *directory.Roster) *directory.Member {
	members := r.Members()
	if room := r.Room(); room != nil {
		for _, m := range members {
			if room.IsHost(m.UserID) {
				return m
			}
		}
	}
	return members[0]
}

func (c *Coordinator) capacity(room *domain.Room) int {
	limit := room.Capacity
	if c.opts.MaxCapacity > 0 && (limit <= 0 || limit > c.opts.MaxCapacity) {
		limit = c.opts.MaxCapacity
	}
	return limit
}

func (c *Coordinator) joinedPayload(r *directory.Roster, m *directory.Member) *domain.JoinedPayload {
	payload := &domain.JoinedPayload{
		Participant:  m.Participant,
		Participants: r.Snapshot(),
		ICEServers:   c.opts.ICEServers,
	}
	if room := r.Room(); room != nil {
		payload.Room = room.Info()
	}
	return payload
}

func (c *Coordinator) from(m *directory.Member, msg domain.SignalMessage) domain.SignalMessage {
	msg.SenderID = m.ID
	return msg
}

func (c *Coordinator) sendTo(r *directory.Roster, connID string, msg domain.SignalMessage) {
	if !r.Send(connID, msg) {
		c.log.Debug("event dropped",
			slog.String("room", r.Code()),
			slog.String("conn_id", connID),
			slog.String("type", msg.Type),
		)
	}
}

func (c *Coordinator) fanOut(r *directory.Roster, msg domain.SignalMessage, exclude ...string) {
	for _, id := range r.Broadcast(msg, exclude...) {
		c.log.Debug("event dropped",
			slog.String("room", r.Code()),
			slog.String("conn_id", id),
			slog.String("type", msg.Type),
		)
	}
}

func hostChangedEvent(m *directory.Member) domain.SignalMessage {
	return domain.NewEvent(domain.TypeHostChanged, "", domain.HostChanged{
		ParticipantID: m.ID,
		UserID:        m.UserID,
		DisplayName:   m.DisplayName,
	})
}

func shareEvent(m *directory.Member, reason string) domain.ScreenShareEvent {
	return domain.ScreenShareEvent{
		ParticipantID: m.ID,
		DisplayName:   m.DisplayName,
		Reason:        reason,
	}
}
