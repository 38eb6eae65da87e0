package domain

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
)

// SignalMessage is the envelope for every event on the signaling channel.
type SignalMessage struct {
	Type     string          `json:"type"`
	Room     string          `json:"room,omitempty"`
	SenderID string          `json:"sender_id,omitempty"`
	TargetID string          `json:"target_id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Client to server.
const (
	TypeJoinRoom           = "join-room"
	TypeLeaveRoom          = "leave-room"
	TypeSignal             = "signal"
	TypeChat               = "chat"
	TypeReaction           = "reaction"
	TypeMediaState         = "media-state"
	TypeRaiseHand          = "raise-hand"
	TypeHostAction         = "host-action"
	TypeScreenShareRequest = "screen-share-request"
	TypeScreenShareApprove = "screen-share-approve"
	TypeScreenShareReject  = "screen-share-reject"
	TypeScreenShareStarted = "screen-share-started"
	TypeScreenShareStopped = "screen-share-stopped"
	TypeRecordingStarted   = "recording-started"
	TypeRecordingStopped   = "recording-stopped"
)

// Server to client. Relayed types (signal, chat, reaction, screen-share-*,
// recording-*) reuse the names above.
const (
	TypeJoined              = "joined"
	TypeParticipantJoined   = "participant-joined"
	TypeParticipantLeft     = "participant-left"
	TypeParticipantUpdated  = "participant-updated"
	TypeHostChanged         = "host-changed"
	TypeHandRaised          = "hand-raised"
	TypeMuteRequested       = "mute-requested"
	TypeRemoved             = "removed"
	TypeMeetingEnded        = "meeting-ended"
	TypeScreenShareApproved = "screen-share-approved"
	TypeScreenShareRejected = "screen-share-rejected"
	TypeRoomUpdated         = "room-updated"
	TypeError               = "error"
)

// Host actions carried by TypeHostAction.
const (
	ActionMute       = "mute"
	ActionRemove     = "remove"
	ActionEndMeeting = "end-meeting"
	ActionMakeHost   = "make-host"
)

// NewEvent builds an envelope with payload encoded as JSON.
func NewEvent(eventType, room string, payload any) SignalMessage {
	msg := SignalMessage{Type: eventType, Room: room}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			msg.Payload = raw
		}
	}
	return msg
}

// Decode unmarshals the payload into v. A missing payload leaves v untouched.
func (m SignalMessage) Decode(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

type JoinRequest struct {
	Code   string `json:"code"`
	Secret string `json:"secret"`
}

type ChatRequest struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

type MediaStateRequest struct {
	Muted    bool `json:"muted"`
	VideoOff bool `json:"video_off"`
}

type RaiseHandRequest struct {
	Raised bool `json:"raised"`
}

type HostActionRequest struct {
	Action string `json:"action"`
}

type ScreenShareDecision struct {
	Reason string `json:"reason,omitempty"`
}

// JoinedPayload acknowledges a successful join to the joiner only.
type JoinedPayload struct {
	Participant  Participant        `json:"participant"`
	Participants []Participant      `json:"participants"`
	Room         RoomInfo           `json:"room"`
	ICEServers   []webrtc.ICEServer `json:"ice_servers"`
}

// RelayedSignal is a negotiation payload delivered to its addressee together
// with who sent it.
type RelayedSignal struct {
	From        string          `json:"from"`
	UserID      string          `json:"user_id"`
	DisplayName string          `json:"display_name"`
	IsHost      bool            `json:"is_host"`
	Payload     json.RawMessage `json:"payload"`
}

type ParticipantLeft struct {
	ParticipantID string `json:"participant_id"`
	UserID        string `json:"user_id"`
	Reason        string `json:"reason,omitempty"`
}

type HostChanged struct {
	ParticipantID string `json:"participant_id"`
	UserID        string `json:"user_id"`
	DisplayName   string `json:"display_name"`
}

type Reaction struct {
	ID            uuid.UUID `json:"id"`
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	Emoji         string    `json:"emoji"`
}

type HandRaised struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	Raised        bool   `json:"raised"`
}

type HostInstruction struct {
	By     string `json:"by"`
	Reason string `json:"reason,omitempty"`
}

type ScreenShareEvent struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	Reason        string `json:"reason,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
