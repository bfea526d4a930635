package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"dmchat/internal/config"
	"dmchat/internal/devserver"
	"dmchat/internal/storage"
	"dmchat/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	mode := logger.DevelopmentMode
	if cfg.Devserver.Mode == devserver.ReleaseMode {
		mode = logger.ProductionMode
	}
	log := logger.New(mode)
	defer log.Sync()
	logger.SetGlobalLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := devserver.Options{
		Mode:        cfg.Devserver.Mode,
		JWTSecret:   cfg.Devserver.JWTSecret,
		TokenExpiry: cfg.Devserver.TokenExpiry,
		Logger:      log,
	}

	s3cfg := storage.S3Config{
		Region:     cfg.S3.Region,
		Bucket:     cfg.S3.Bucket,
		AccessKey:  cfg.S3.AccessKey,
		SecretKey:  cfg.S3.SecretKey,
		Endpoint:   cfg.S3.Endpoint,
		PublicBase: cfg.S3.PublicBase,
		PresignTTL: 15 * time.Minute,
	}
	if s3cfg.Enabled() {
		uploads, err := storage.NewS3Store(ctx, s3cfg)
		if err != nil {
			log.Logger.Fatal("failed to configure S3 uploads", zap.Error(err))
		}
		opts.Uploads = uploads
		log.Infof("storing uploads in bucket %s", s3cfg.Bucket)
	}

	if err := devserver.New(opts).ListenAndServe(ctx, ":"+cfg.Devserver.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Logger.Fatal("devserver stopped", zap.Error(err))
	}
}
