package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"dutch_auction/internal/app"
	"dutch_auction/internal/engine"
	"dutch_auction/internal/event"
	"dutch_auction/internal/gateway"
	"dutch_auction/internal/infra"
	"dutch_auction/internal/registry"
	"dutch_auction/internal/settlement"
)

func main() {
	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	infra.PrintBanner(bootstrap.Config)

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := bootstrap.Config

	// 3. Wire the registry boundary. The handler does not exist yet, so
	// reply delivery and outbound replies close over late-bound pointers.
	var h *engine.Handler
	var gw *gateway.Gateway
	deliver := func(m event.Message) { h.Inbox() <- m }
	onReply := func(r event.Reply) {
		if gw != nil {
			gw.Deliver(r)
		}
	}

	var reg registry.Registry
	var remote *registry.RemoteRegistry
	switch cfg.Node.RegistryMode {
	case "remote":
		remote = registry.NewRemoteRegistry(cfg.ProgramID(), cfg.Node.RegistryWSURL, deliver)
		reg = remote
	case "inproc":
		auctionCfg := bootstrap.Auction.Config
		inproc := registry.NewInProcRegistry(auctionCfg.Registry, deliver)
		inproc.Mint(auctionCfg.TokenID, bootstrap.Owner)
		inproc.Approve(auctionCfg.TokenID, cfg.ProgramID())
		reg = inproc
		slog.Info("✅ In-process registry ready", "token_id", uint64(auctionCfg.TokenID))
	default:
		reg = &registry.MockRegistry{}
		slog.Warn("Mock registry in use: transfer calls never resolve")
	}

	// 4. Settlement coordinator + handler (the single-thread message loop)
	coord := settlement.NewCoordinator(cfg.ProgramID(), bootstrap.Auction, bootstrap.Ledger, reg)
	h = engine.NewHandler(cfg.Node.InboxSize, bootstrap.Auction, coord, bootstrap.Store, onReply)

	if err := h.RecoverFromWAL(ctx); err != nil {
		slog.Error("❌ WAL recovery failed", slog.Any("error", err))
		os.Exit(1)
	}

	go h.Run(ctx)
	slog.InfoContext(ctx, "✅ Handler (message loop) started")

	// The remote link starts only once the handler can accept deliveries.
	if remote != nil {
		remote.Start(ctx)
		defer remote.Stop()
		slog.Info("✅ Remote registry link started", "url", cfg.Node.RegistryWSURL)
	}

	// 5. Gateway
	gw = gateway.NewGateway(cfg.Node.ListenAddr, h.Inbox(), cfg.Node.RateLimitPerSec, cfg.Node.RateBurst)
	go func() {
		if err := gw.Run(ctx); err != nil {
			slog.Error("Gateway failed", slog.Any("error", err))
			stop()
		}
	}()

	slog.InfoContext(ctx, "✨ Auction node fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.InfoContext(ctx, "👋 Shutting down gracefully...")
}
