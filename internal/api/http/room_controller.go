package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillsphere/meetings/internal/api/http/converter"
	"github.com/skillsphere/meetings/internal/domain"
	"github.com/skillsphere/meetings/internal/service"
)

type RoomController struct {
	rooms    service.RoomInteractor
	meetings service.MeetingCoordinator
	log      *slog.Logger
}

func NewRoomController(rooms service.RoomInteractor, meetings service.MeetingCoordinator, log *slog.Logger) *RoomController {
	return &RoomController{
		rooms:    rooms,
		meetings: meetings,
		log:      log,
	}
}

func (c *RoomController) CreateRoom(ctx *gin.Context) {
	type CreateRoomRequest struct {
		Name            string               `json:"name" binding:"required"`
		Password        string               `json:"password"`
		Capacity        int                  `json:"capacity" binding:"gte=0"`
		DurationMinutes int                  `json:"duration_minutes" binding:"gte=0"`
		Settings        *domain.RoomSettings `json:"settings"`
	}
	var req CreateRoomRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	room, err := c.rooms.CreateRoom(ctx.Request.Context(), identityFrom(ctx), service.CreateRoomParams{
		Name:            req.Name,
		Secret:          req.Password,
		Capacity:        req.Capacity,
		DurationMinutes: req.DurationMinutes,
		Settings:        req.Settings,
	})
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"room": converter.RoomToApi(room, 0)})
}

func (c *RoomController) ListRooms(ctx *gin.Context) {
	rooms, err := c.rooms.ListHostedRooms(ctx.Request.Context(), identityFrom(ctx).UserID)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	out := make([]*converter.RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, converter.RoomToApi(room, len(c.meetings.Participants(room.Code))))
	}
	ctx.JSON(http.StatusOK, gin.H{"rooms": out})
}

func (c *RoomController) GetRoom(ctx *gin.Context) {
	room, err := c.rooms.GetRoom(ctx.Request.Context(), ctx.Param("code"))
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"room": converter.RoomToApi(room, len(c.meetings.Participants(room.Code)))})
}

func (c *RoomController) UpdateSettings(ctx *gin.Context) {
	type UpdateRoomRequest struct {
		Name     *string              `json:"name"`
		Password *string              `json:"password"`
		Capacity *int                 `json:"capacity" binding:"omitempty,gte=0"`
		Settings *domain.RoomSettings `json:"settings"`
	}
	var req UpdateRoomRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	room, err := c.rooms.UpdateRoom(ctx.Request.Context(), identityFrom(ctx), ctx.Param("code"), service.UpdateRoomParams{
		Name:     req.Name,
		Secret:   req.Password,
		Capacity: req.Capacity,
		Settings: req.Settings,
	})
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"room": converter.RoomToApi(room, len(c.meetings.Participants(room.Code)))})
}

// ListParticipants returns the live roster. It is empty for a room nobody is in.
func (c *RoomController) ListParticipants(ctx *gin.Context) {
	room, err := c.rooms.GetRoom(ctx.Request.Context(), ctx.Param("code"))
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"participants": c.meetings.Participants(room.Code)})
}
