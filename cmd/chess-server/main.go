package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/park285/cheese-chess-server/internal/config"
	"github.com/park285/cheese-chess-server/internal/lobby"
	"github.com/park285/cheese-chess-server/internal/msgcat"
	"github.com/park285/cheese-chess-server/internal/obslog"
	"github.com/park285/cheese-chess-server/internal/protocol"
	"github.com/park285/cheese-chess-server/internal/server"
	"github.com/park285/cheese-chess-server/internal/sockets"
	"go.uber.org/zap"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Printf("logger init error: %v", err)
	}
	defer obslog.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	texts, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		log.Fatalf("messages error: %v", err)
	}

	reg := sockets.NewRegistry()
	hub := protocol.NewHub(reg, texts, lobby.WithMonitorInterval(cfg.MonitorInterval))
	srv := server.New(cfg, hub, reg, texts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen(cfg.ListenAddr) }()

	select {
	case err := <-errCh:
		if err != nil {
			obslog.L().Error("listen_failed", zap.Error(err))
			log.Fatalf("listen error: %v", err)
		}
		return
	case <-ctx.Done():
	}

	obslog.L().Info("shutdown_requested", zap.Int("lobbies", hub.Lobbies().Len()))
	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		obslog.L().Warn("shutdown_incomplete", zap.Error(err))
	}
}
