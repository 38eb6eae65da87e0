package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pion/webrtc/v3"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	httpapi "github.com/skillsphere/meetings/internal/api/http"
	"github.com/skillsphere/meetings/internal/config"
	"github.com/skillsphere/meetings/internal/directory"
	"github.com/skillsphere/meetings/internal/repository"
	"github.com/skillsphere/meetings/internal/repository/model"
	"github.com/skillsphere/meetings/internal/service"
	"github.com/skillsphere/meetings/internal/storage"
	"github.com/skillsphere/meetings/lib/logger/sl"
	"github.com/skillsphere/meetings/lib/logger/slogpretty"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	roomRepo, recordingRepo, err := setupRepositories(cfg.Database, log)
	if err != nil {
		log.Error("failed to connect database", sl.Err(err))
		os.Exit(1)
	}

	blobs, err := storage.NewFileStore(cfg.Recordings.Dir)
	if err != nil {
		log.Error("failed to open recording store", sl.Err(err))
		os.Exit(1)
	}

	roomService := service.NewRoomService(roomRepo, log, cfg.Rooms.DefaultCapacity, cfg.Rooms.MaxCapacity)
	coordinator := service.NewCoordinator(roomRepo, directory.New(), log, service.CoordinatorOptions{
		ICEServers:         iceServers(cfg.WebRTC),
		MaxCapacity:        cfg.Rooms.MaxCapacity,
		ScreenShareTimeout: cfg.Rooms.ScreenShareTimeout,
	})
	roomService.SetObserver(coordinator)
	recordingService := service.NewRecordingService(blobs, recordingRepo, roomRepo, cfg.Recordings.MaxUploadSize, log)

	if cfg.Auth.JWTSecret == "" {
		log.Warn("auth.jwt_secret is empty, trusting identity headers")
	}

	router := httpapi.SetupRouter(
		cfg.HTTP.AllowedOrigins,
		httpapi.NewAuthenticator(cfg.Auth.JWTSecret),
		httpapi.NewRoomController(roomService, coordinator, log),
		httpapi.NewSignalingController(coordinator, log, httpapi.SignalingOptions{
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			SendBuffer:     cfg.Signaling.SendBuffer,
			MaxMessageSize: cfg.Signaling.MaxMessageSize,
		}),
		httpapi.NewRecordingController(recordingService, cfg.Recordings.MaxUploadSize, log),
	)

	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting application", slog.String("addr", cfg.HTTP.Address), slog.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("http server stopped", sl.Err(err))
		os.Exit(1)
	}
	log.Info("application stopped")
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

// setupRepositories uses postgres when a DSN is configured and process memory
// otherwise.
func setupRepositories(cfg config.DatabaseConfig, log *slog.Logger) (repository.RoomRepository, repository.RecordingRepository, error) {
	if cfg.DSN == "" {
		log.Warn("database dsn is empty, rooms and recordings are kept in memory")
		return repository.NewInMemoryRoomRepository(), repository.NewInMemoryRecordingRepository(), nil
	}

	db, err := connectDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewPostgresRoomRepository(db), repository.NewPostgresRecordingRepository(db), nil
}

func connectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&model.Room{}, &model.Recording{}); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

func iceServers(cfg config.WebRTCConfig) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, 2)
	if len(cfg.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: cfg.STUNServers})
	}
	if len(cfg.TURNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:           cfg.TURNServers,
			Username:       cfg.TURNUsername,
			Credential:     cfg.TURNCredential,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}
	return servers
}
