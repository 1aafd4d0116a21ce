package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/config"
	"github.com/oggyb/muzz-matching/internal/httpapi"
	"github.com/oggyb/muzz-matching/internal/logger"
	"github.com/oggyb/muzz-matching/internal/seed"
	"github.com/oggyb/muzz-matching/internal/server"
	"github.com/oggyb/muzz-matching/internal/service/matching"
	"github.com/oggyb/muzz-matching/internal/worker"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "err", err)
		return 1
	}

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCtx, closeApp, err := app.Bootstrap(ctx, cfg, log)
	if err != nil {
		log.Error("failed to bootstrap", "err", err)
		return 1
	}
	defer closeApp()

	core := matching.NewCore(appCtx)

	if cfg.IsDevelopment() {
		sum, err := seed.Run(ctx, core, seed.Options{Reset: true})
		if err != nil {
			log.Error("failed to seed", "err", err)
		} else {
			log.Info("seeded demo data", "users", sum.Users, "matches", sum.Matches, "messages", sum.Messages)
		}
	}

	svc := matching.NewService(appCtx, core)
	grpcServer := server.NewGRPCServer(cfg, log, matching.NewRegistrar(appCtx, core))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return grpcServer.Run(ctx) })
	if cfg.HTTP.Enabled {
		g.Go(func() error { return httpapi.NewServer(cfg.HTTP, svc, log).Run(ctx) })
	}
	g.Go(func() error { return worker.NewDispatcher(appCtx, core).Run(ctx) })
	g.Go(func() error { return worker.NewScheduler(appCtx, core).Run(ctx) })

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "err", err)
		return 1
	}
	log.Info("server stopped")
	return 0
}
