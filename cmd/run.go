package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"arenaserver/config"
	"arenaserver/database"
	"arenaserver/events"
	"arenaserver/infrastructure"
	"arenaserver/realtime"
	"arenaserver/repository"
	"arenaserver/service"
	"arenaserver/session"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const reasonShutdown = "server shutting down"

// Run initializes and starts the application
func Run(ctx context.Context) error {
	cfg := config.Get()
	cfg.ConfigureLogging()
	log.WithField("environment", cfg.Environment).Info("Starting arena server")

	databaseURL := database.ConstructDatabaseURL(cfg.DatabaseURL, cfg.DatabaseName)

	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := database.RunMigrationsWithURL(databaseURL); err != nil {
		return err
	}
	log.Info("Database ready")

	eventBus := events.NewBus()
	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)

	// Services
	bettingService := service.NewBettingService(uowFactory, cfg.DefaultBettingAmount, cfg.PlatformFeeRate)
	roomService := service.NewRoomService(uowFactory, bettingService, cfg.DefaultBettingAmount)
	authService := service.NewAuthService(uowFactory, cfg.JWTSecret, cfg.AllowRawUserIDs)
	chatService := service.NewChatService(uowFactory, cfg.ChatHistoryLimit)
	moderationService := service.NewModerationService(uowFactory, cfg.ReportBanThreshold)

	registry := session.NewRegistry(authService)
	dispatcher := realtime.NewDispatcher(registry, authService, roomService, bettingService, chatService, moderationService, realtime.NewHub())
	dispatcher.Attach(eventBus)

	if err := roomService.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore rooms: %w", err)
	}

	var natsClient *infrastructure.NATSClient
	var publisher infrastructure.MessagePublisher = infrastructure.NoopPublisher{}
	mapper := infrastructure.NewEventSubjectMapper()
	if cfg.NATSURL != "" {
		natsClient = infrastructure.NewNATSClient(cfg.NATSURL)
		if err := natsClient.Connect(ctx); err != nil {
			return err
		}
		if err := natsClient.EnsureStream(infrastructure.EventStreamName, mapper.GetAllSubjects()); err != nil {
			natsClient.Close()
			return err
		}
		publisher = natsClient
	} else {
		log.Info("NATS_URL not set, domain events stay in process")
	}
	infrastructure.NewNATSEventForwarder(publisher, mapper).Attach(eventBus)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           realtime.NewRouter(dispatcher),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("Listening for websocket clients")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("failed to serve: %w", err)
		}
	}

	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// hijacked websocket connections are not tracked by Shutdown
	dispatcher.Close(reasonShutdown)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server did not shut down cleanly")
	}

	eventBus.Wait()
	if natsClient != nil {
		if err := natsClient.Close(); err != nil {
			log.WithError(err).Warn("Error closing NATS connection")
		}
	}

	log.Info("Shutdown completed")
	return nil
}
