package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"dmchat/internal/cli"
	"dmchat/internal/config"
	"dmchat/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load config: %v\n", err)
		return 1
	}

	// The terminal belongs to the UI, so logs go to a file.
	if dir := filepath.Dir(cfg.Client.LogFile); dir != "" {
		_ = os.MkdirAll(dir, 0o700)
	}
	log := logger.NewWithOutput(cfg.Client.Mode, cfg.Client.LogFile)
	defer log.Sync()
	logger.SetGlobalLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, release, err := cli.OpenSessionStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: open session store: %v\n", err)
		return 1
	}
	defer release()

	app := cli.NewApp(cfg.Client.APIURL, cfg.Client.WSURL, store, cli.Options{
		HTTPTimeout: cfg.Client.HTTPTimeout,
		NotifyTTL:   cfg.Client.NotifyTTL,
		Logger:      log,
	})
	log.Infof("dmchat starting, api %s, live %s", cfg.Client.APIURL, cfg.Client.WSURL)
	return cli.Execute(ctx, app, os.Args[1:])
}
