package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/skillsphere/meetings/internal/domain"
	"github.com/skillsphere/meetings/internal/service"
	"github.com/skillsphere/meetings/lib/logger/sl"
)

const reasonDisconnected = "disconnected"

var errMalformedEvent = fmt.Errorf("%w: malformed event", service.ErrInvalidMessage)

type signalHandler func(ctx context.Context, c *signalingClient, msg domain.SignalMessage) error

type SignalingOptions struct {
	AllowedOrigins []string
	SendBuffer     int
	MaxMessageSize int64
}

// SignalingController serves the meeting websocket. Each connection gets its
// own read and write goroutine; all meeting state lives in the coordinator.
type SignalingController struct {
	meetings service.MeetingCoordinator
	log      *slog.Logger
	opts     SignalingOptions
	upgrader websocket.Upgrader
	handlers map[string]signalHandler
}

func NewSignalingController(meetings service.MeetingCoordinator, log *slog.Logger, opts SignalingOptions) *SignalingController {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 64 * 1024
	}
	c := &SignalingController{
		meetings: meetings,
		log:      log,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
	}
	c.handlers = map[string]signalHandler{
		domain.TypeJoinRoom:           c.handleJoin,
		domain.TypeLeaveRoom:          c.handleLeave,
		domain.TypeSignal:             c.handleSignal,
		domain.TypeChat:               c.handleChat,
		domain.TypeReaction:           c.handleReaction,
		domain.TypeMediaState:         c.handleMediaState,
		domain.TypeRaiseHand:          c.handleRaiseHand,
		domain.TypeHostAction:         c.handleHostAction,
		domain.TypeScreenShareRequest: c.handleScreenShareRequest,
		domain.TypeScreenShareApprove: c.handleScreenShareApprove,
		domain.TypeScreenShareReject:  c.handleScreenShareReject,
		domain.TypeScreenShareStarted: c.handleScreenShareStarted,
		domain.TypeScreenShareStopped: c.handleScreenShareStopped,
		domain.TypeRecordingStarted:   c.handleRecordingStarted,
		domain.TypeRecordingStopped:   c.handleRecordingStopped,
	}
	return c
}

// Serve upgrades the request and runs the connection until it drops. A drop
// goes through the same cleanup as an explicit leave.
func (c *SignalingController) Serve(ctx *gin.Context) {
	identity := identityFrom(ctx)

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.log.Info("websocket upgrade failed", sl.Err(err))
		return
	}

	connID := uuid.NewString()
	log := c.log.With(slog.String("conn_id", connID), slog.String("user_id", identity.UserID))
	client := newSignalingClient(connID, identity, conn, c.opts.SendBuffer, log)
	log.Debug("websocket connected")

	go client.writePump()
	defer func() {
		c.meetings.Leave(client.id, reasonDisconnected)
		client.close()
		log.Debug("websocket disconnected")
	}()

	reqCtx := context.WithoutCancel(ctx.Request.Context())
	client.readPump(c.opts.MaxMessageSize, func(msg domain.SignalMessage) {
		c.dispatch(reqCtx, client, msg)
	})
}

func (c *SignalingController) dispatch(ctx context.Context, client *signalingClient, msg domain.SignalMessage) {
	handler, ok := c.handlers[msg.Type]
	if !ok {
		client.sendError(fmt.Errorf("%w: unknown event %q", service.ErrInvalidMessage, msg.Type), "invalid_message")
		return
	}
	if err := handler(ctx, client, msg); err != nil {
		code := service.ErrorCode(err)
		if code == "internal" {
			client.log.Error("event failed", slog.String("type", msg.Type), sl.Err(err))
		}
		client.sendError(err, code)
	}
}

func decode(msg domain.SignalMessage, v any) error {
	if err := msg.Decode(v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", service.ErrInvalidMessage, msg.Type, err)
	}
	return nil
}

func (c *SignalingController) handleJoin(ctx context.Context, client *signalingClient, msg domain.SignalMessage) error {
	var req domain.JoinRequest
	if err := decode(msg, &req); err != nil {
		return err
	}
	if req.Code == "" {
		req.Code = msg.Room
	}
	_, err := c.meetings.Join(ctx, client, client.identity, req)
	return err
}

func (c *SignalingController) handleLeave(_ context.Context, client *signalingClient, _ domain.SignalMessage) error {
	c.meetings.Leave(client.id, service.ReasonLeft)
	return nil
}

func (c *SignalingController) handleSignal(_ context.Context, client *signalingClient, msg domain.SignalMessage) error {
	if msg.TargetID == "" {
		return fmt.Errorf("%w: signal needs a target", service.ErrInvalidMessage)
	}
	return c.meetings.Relay(client.id, msg.TargetID, msg.Payload)
}

func (c *SignalingController) handleChat(_ context.Context, client *signalingClient, msg domain.SignalMessage) error {
	var req domain.ChatRequest
	if err := decode(msg, &req); err != nil {
		return err
	}
	_, err := c.meetings.Chat(client.id, req)
	return err
}

func (c *SignalingController) handleReaction(_ context.Context, client *signalingClient, msg domain.SignalMessage) error {
	var req domain.ReactionRequest
	if err := decode(msg, &req); err != nil {
		return err
	}
	return c.meetings.React(client.id, req)
}

func (c *SignalingController) handleMediaState(_ context.Context, client *signalingClient, msg domain.SignalMessage) error {
	var req domain.MediaStateRequest
	if err := decode(msg, &req); err != nil {
		return err
	}
	return c.meetings.UpdateMediaState(client.id, req)
}

func (c *SignalingController) handleRaiseHand(_ context.Context, client *signalingClient, msg domain.SignalMessage) error {
	req := domain.RaiseHandRequest{Raised: true}
	if err := decode(msg, &req); err != nil {
		return err
	}
	return c.meetings.RaiseHand(client.id, req.Raised)
}

func (c *SignalingController) handleHostAction(_ context.Context, client *signalingClient, msg domain.SignalMessage) error {
	var req domain.HostActionRequest
	if err := decode(msg, &req); err != nil {
		return err
	}
	return c.meetings.HostAction(client.id, req.Action, msg.TargetID)
}

func (c *SignalingController) handleScreenShareRequest(_ context.Context, client *signalingClient, _ domain.SignalMessage) error {
	return c.meetings.RequestScreenShare(client.id)
}

func (c *SignalingController) handleScreenShareApprove(_ context.Context, client *signalingClient, msg domain.SignalMessage) error {
	return c.meetings.ApproveScreenShare(client.id, msg.TargetID)
}

func (c *SignalingController) handleScreenShareReject(_ context.Context, client *signalingClient, msg domain.SignalMessage) error {
	var req domain.ScreenShareDecision
	if err := decode(msg, &req); err != nil {
		return err
	}
	return c.meetings.RejectScreenShare(client.id, msg.TargetID, req.Reason)
}

func (c *SignalingController) handleScreenShareStarted(_ context.Context, client *signalingClient, _ domain.SignalMessage) error {
	return c.meetings.ScreenShareStarted(client.id)
}

func (c *SignalingController) handleScreenShareStopped(_ context.Context, client *signalingClient, _ domain.SignalMessage) error {
	return c.meetings.ScreenShareStopped(client.id)
}

func (c *SignalingController) handleRecordingStarted(_ context.Context, client *signalingClient, _ domain.SignalMessage) error {
	return c.meetings.RecordingStarted(client.id)
}

func (c *SignalingController) handleRecordingStopped(_ context.Context, client *signalingClient, _ domain.SignalMessage) error {
	return c.meetings.RecordingStopped(client.id)
}

// originChecker accepts requests without an Origin header (non-browser
// clients) and browser requests from the configured origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") {
			return true
		}
		return slices.Contains(allowed, origin)
	}
}

