package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/skillsphere/meetings/internal/api/http/converter"
	"github.com/skillsphere/meetings/internal/domain"
	"github.com/skillsphere/meetings/internal/service"
)

// multipartOverhead leaves room for form fields and part headers on top of
// the recording itself.
const multipartOverhead = 1 << 20

type RecordingController struct {
	recordings service.RecordingInteractor
	maxSize    int64
	log        *slog.Logger
}

func NewRecordingController(recordings service.RecordingInteractor, maxSize int64, log *slog.Logger) *RecordingController {
	return &RecordingController{
		recordings: recordings,
		maxSize:    maxSize,
		log:        log,
	}
}

func (c *RecordingController) Upload(ctx *gin.Context) {
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, c.maxSize+multipartOverhead)

	header, err := ctx.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(ctx, c.log, service.ErrUploadTooLarge)
			return
		}
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "file is required", "details": err.Error()})
		return
	}
	roomCode := ctx.PostForm("room_code")
	if roomCode == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "room_code is required"})
		return
	}

	file, err := header.Open()
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	defer file.Close()

	rec, err := c.recordings.Upload(ctx.Request.Context(), identityFrom(ctx), roomCode, file, header.Size)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"recording": converter.RecordingToApi(rec)})
}

func (c *RecordingController) List(ctx *gin.Context) {
	recs, err := c.recordings.List(ctx.Request.Context(), identityFrom(ctx).UserID)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"recordings": converter.RecordingsToApi(recs)})
}

func (c *RecordingController) Download(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid recording id"})
		return
	}

	rec, blob, err := c.recordings.Open(ctx.Request.Context(), identityFrom(ctx).UserID, id)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	defer blob.Close()

	name := downloadName(rec)
	ctx.Header("Content-Type", rec.ContentType)
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(ctx.Writer, ctx.Request, name, rec.CreatedAt, blob)
}

func (c *RecordingController) Delete(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid recording id"})
		return
	}

	if err := c.recordings.Delete(ctx.Request.Context(), identityFrom(ctx).UserID, id); err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func downloadName(rec *domain.Recording) string {
	ext := ".bin"
	if m := mimetype.Lookup(rec.ContentType); m != nil {
		ext = m.Extension()
	}
	return fmt.Sprintf("%s-%s%s", rec.RoomCode, rec.CreatedAt.Format("20060102-150405"), ext)
}
