package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/auth"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/config"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/contents"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/database"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/logging"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/messaging"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/profiles"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/realtime"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/server"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/storage"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/users"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	tokenIssuer     = "soulmatch-auth"
	tokenAudience   = "soulmatch-api"
	shutdownTimeout = 10 * time.Second
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(parent context.Context) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(cfg.SigningSecret),
		Issuer:        tokenIssuer,
		Audience:      tokenAudience,
		TokenTTL:      cfg.TokenTTL,
	})
	if err != nil {
		return err
	}

	profileService, err := profiles.NewService(profiles.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	userService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Profiles: profileService,
		Tokens:   issuer,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		Tokens:     issuer,
		Revocation: userService,
	})
	if err != nil {
		return err
	}

	dispatcher := realtime.NewDispatcher()
	publisher, err := buildPublisher(ctx, cfg, dispatcher, logger)
	if err != nil {
		return err
	}

	store, err := messaging.NewGormStore(messaging.GormStoreConfig{Database: db})
	if err != nil {
		return err
	}
	messagingService, err := messaging.NewService(messaging.ServiceConfig{
		Store:     store,
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	contentService, err := contents.NewService(contents.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}

	bucket, err := buildBucket(cfg, logger)
	if err != nil {
		return err
	}

	if cfg.BootstrapAdminEmail != "" {
		if err := userService.EnsureBootstrapAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
			return err
		}
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:  sessionValidator,
		Users:     userService,
		Profiles:  profileService,
		Messaging: messagingService,
		Contents:  contentService,
		Bucket:    bucket,
		Realtime:  dispatcher,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddress,
		Handler: handler,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", zap.String("address", cfg.HTTPAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}

	logger.Info("server stopped")
	return nil
}

// buildPublisher returns the local dispatcher, or a Redis bridge in front of it when a
// Redis address is configured so that every instance sees every inserted message.
func buildPublisher(ctx context.Context, cfg config.AppConfig, dispatcher *realtime.Dispatcher, logger *zap.Logger) (realtime.Publisher, error) {
	if cfg.RedisAddress == "" {
		return dispatcher, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
	bridge, err := realtime.NewRedisBridge(realtime.RedisBridgeConfig{
		Client:  client,
		Channel: cfg.RedisChannel,
		Local:   dispatcher,
		Origin:  uuid.NewString(),
		Logger:  logger,
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	go func() {
		defer client.Close()
		if err := bridge.Run(ctx); err != nil {
			logger.Error("realtime redis bridge stopped", zap.String("address", cfg.RedisAddress), zap.Error(err))
		}
	}()
	return bridge, nil
}

func buildBucket(cfg config.AppConfig, logger *zap.Logger) (*storage.Bucket, error) {
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(cfg.StorageRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return storage.NewBucket(storage.BucketConfig{
		Filesystem:    afero.NewBasePathFs(osFs, cfg.StorageRoot),
		PublicBaseURL: cfg.StoragePublicBaseURL,
		Logger:        logger,
	})
}
