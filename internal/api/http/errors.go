package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillsphere/meetings/internal/service"
	"github.com/skillsphere/meetings/lib/logger/sl"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrRoomNotFound), errors.Is(err, service.ErrRecordingNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotAuthorized), errors.Is(err, service.ErrRecordingDisabled):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidMessage):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrUnsupportedMediaFormat):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the status and machine code for err. Internal
// failures are logged and not described to the caller.
func writeError(ctx *gin.Context, log *slog.Logger, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed", slog.String("path", ctx.FullPath()), sl.Err(err))
		message = "internal error"
	}
	ctx.JSON(status, gin.H{"error": message, "code": service.ErrorCode(err)})
}
