package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRouter(
	allowedOrigins []string,
	auth *Authenticator,
	roomController *RoomController,
	signalingController *SignalingController,
	recordingController *RecordingController,
) *gin.Engine {
	router := gin.Default()
	config := cors.DefaultConfig()
	config.AllowOrigins = allowedOrigins
	config.AllowCredentials = true
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
		"X-User-ID",
		"X-User-Name",
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	config.ExposeHeaders = []string{"Content-Disposition"}
	router.Use(cors.New(config))
	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(auth.Middleware())

	if signalingController != nil {
		api.GET("/ws", signalingController.Serve)
	}

	if roomController != nil {
		rooms := api.Group("/rooms")
		rooms.POST("", roomController.CreateRoom)
		rooms.GET("", roomController.ListRooms)
		rooms.GET("/:code", roomController.GetRoom)
		rooms.PATCH("/:code/settings", roomController.UpdateSettings)
		rooms.GET("/:code/participants", roomController.ListParticipants)
	}

	if recordingController != nil {
		recordings := api.Group("/recordings")
		recordings.POST("", recordingController.Upload)
		recordings.GET("", recordingController.List)
		recordings.GET("/:id/download", recordingController.Download)
		recordings.DELETE("/:id", recordingController.Delete)
	}

	return router
}
