package app

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"dutch_auction/internal/domain"
	"dutch_auction/internal/infra"
	"dutch_auction/internal/ledger"
	"dutch_auction/internal/storage"
	"dutch_auction/pkg/chain"
)

// Bootstrap orchestrates the node startup sequence.
type Bootstrap struct {
	Config  *infra.Config
	Store   *storage.Store
	Auction *domain.Auction
	Ledger  *ledger.Ledger
	Owner   chain.ActorID

	unlock func()
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, logger, WAL store,
// auction record).
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping auction node...")

	// 1. Load Config (Dynamic Path Resolution)
	cfg, err := infra.LoadConfig(infra.ResolveConfigPath())
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	// 3. Workspace layout: _workspace/data/events.db
	workDir := infra.WorkspaceDir()
	dataDir := filepath.Join(workDir, "data")
	if err := infra.EnsureDir(dataDir); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	// 3.1 Singleton instance lock: a second writer on the same WAL would
	// corrupt it.
	unlock, err := infra.CreateLockFile(workDir)
	if err != nil {
		return err
	}
	b.unlock = unlock

	dbPath := filepath.Join(dataDir, "events.db")
	store, err := storage.NewStore(dbPath)
	if err != nil {
		return err
	}
	b.Store = store
	slog.Info("✅ Store initialized (WAL-mode)", "path", dbPath)

	// 4. Auction record and value ledger. Replay rebuilds both from the WAL.
	auctionCfg, owner, err := cfg.AuctionConfig()
	if err != nil {
		return err
	}
	auction, err := domain.NewAuction(owner, auctionCfg)
	if err != nil {
		return err
	}
	b.Auction = auction
	b.Owner = owner
	b.Ledger = ledger.NewLedger()
	slog.Info("✅ Auction record created",
		"owner", string(owner),
		"token_id", uint64(auctionCfg.TokenID),
		"starting_price", auctionCfg.StartingPrice.String(),
	)

	return nil
}

// Close releases the instance lock and the store.
func (b *Bootstrap) Close() {
	if b.Store != nil {
		b.Store.Close()
	}
	if b.unlock != nil {
		b.unlock()
	}
}
