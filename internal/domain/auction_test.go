package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"dutch_auction/pkg/chain"
)

const (
	testOwner    = chain.ActorID("owner-1")
	testBuyer    = chain.ActorID("buyer-1")
	testStranger = chain.ActorID("stranger-1")
)

func newTestAuction(t *testing.T, cfg AuctionConfig) *Auction {
	t.Helper()
	a, err := NewAuction(testOwner, cfg)
	if err != nil {
		t.Fatalf("NewAuction failed: %v", err)
	}
	return a
}

func TestAuctionConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AuctionConfig)
		wantErr bool
	}{
		{"valid", func(c *AuctionConfig) {}, false},
		{"no registry", func(c *AuctionConfig) { c.Registry = "" }, true},
		{"zero duration", func(c *AuctionConfig) { c.DurationSec = 0 }, true},
		{"zero rate", func(c *AuctionConfig) { c.DiscountRate = 0 }, true},
		{"starting below floor", func(c *AuctionConfig) { c.StartingPrice = 50 }, true},
		{"starting equals floor", func(c *AuctionConfig) { c.StartingPrice = c.FloorPrice }, true},
		{"rate too slow for window", func(c *AuctionConfig) { c.DiscountRate = 1; c.DurationSec = 10 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := curveConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v; wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAuction_StartTransitions(t *testing.T) {
	a := newTestAuction(t, curveConfig())
	now := chain.Timestamp(1_000_000)

	if err := a.Start(testStranger, now); !errors.Is(err, Errf(KindUnauthorized, "")) {
		t.Errorf("stranger start: got %v; want UNAUTHORIZED", err)
	}
	if a.Phase != PhaseCreated {
		t.Errorf("phase changed on rejected start: %s", a.Phase)
	}

	if err := a.Start(testOwner, now); err != nil {
		t.Fatalf("owner start failed: %v", err)
	}
	if a.Phase != PhaseStarted || a.StartedAt != now {
		t.Errorf("after start: phase=%s startedAt=%d", a.Phase, a.StartedAt)
	}
	wantExpiry := now + chain.Timestamp(a.Config.DurationSec*1000)
	if a.ExpiresAt != wantExpiry {
		t.Errorf("ExpiresAt = %d; want %d", a.ExpiresAt, wantExpiry)
	}

	// Start is not idempotent.
	if err := a.Start(testOwner, now+1); !errors.Is(err, Errf(KindAlreadyStarted, "")) {
		t.Errorf("second start: got %v; want ALREADY_STARTED", err)
	}
}

func TestAuction_CanBuy(t *testing.T) {
	startedAt := chain.Timestamp(1_000_000)

	tests := []struct {
		name     string
		setup    func(*Auction)
		paid     chain.Value
		now      chain.Timestamp
		wantKind ErrKind
		want     chain.Value
	}{
		{
			name:     "before start",
			setup:    func(a *Auction) {},
			paid:     1000,
			now:      startedAt,
			wantKind: KindNotStarted,
		},
		{
			name:  "exact payment at start",
			setup: func(a *Auction) { a.Start(testOwner, startedAt) },
			paid:  1000,
			now:   startedAt,
			want:  1000,
		},
		{
			name:  "overpayment mid-decay",
			setup: func(a *Auction) { a.Start(testOwner, startedAt) },
			paid:  2000,
			now:   startedAt + 50_000,
			want:  750,
		},
		{
			name:     "underpayment",
			setup:    func(a *Auction) { a.Start(testOwner, startedAt) },
			paid:     749,
			now:      startedAt + 50_000,
			wantKind: KindInsufficientPayment,
		},
		{
			name: "pending settlement blocks",
			setup: func(a *Auction) {
				a.Start(testOwner, startedAt)
				a.BeginSettlement(&PendingSettlement{CallID: "c1", Buyer: testBuyer, Paid: 1000, Price: 1000})
			},
			paid:     5000,
			now:      startedAt,
			wantKind: KindSettlementInProgress,
		},
		{
			name:  "floor hold after window",
			setup: func(a *Auction) { a.Start(testOwner, startedAt) },
			paid:  100,
			now:   startedAt + 500_000, // past the 300s window, floor holds
			want:  100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAuction(t, curveConfig())
			tt.setup(a)
			price, err := a.CanBuy(tt.paid, tt.now)
			if tt.wantKind != "" {
				if KindOf(err) != tt.wantKind {
					t.Errorf("CanBuy error = %v; want kind %s", err, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("CanBuy failed: %v", err)
			}
			if price != tt.want {
				t.Errorf("accepted price = %s; want %d", price, tt.want)
			}
		})
	}
}

func TestAuction_HardExpiryWithZeroFloor(t *testing.T) {
	cfg := curveConfig()
	cfg.FloorPrice = 0
	cfg.DiscountRate = 4 // 1000 - 4*300 = -200, reaches zero within the window

	a := newTestAuction(t, cfg)
	startedAt := chain.Timestamp(1_000_000)
	a.Start(testOwner, startedAt)

	deadline := startedAt + chain.Timestamp(cfg.DurationSec*1000)

	if _, err := a.CanBuy(1000, deadline-1); err != nil {
		t.Errorf("buy just before deadline rejected: %v", err)
	}
	if _, err := a.CanBuy(1000, deadline); KindOf(err) != KindExpired {
		t.Errorf("buy at deadline: got %v; want EXPIRED", err)
	}
	if _, err := a.CanBuy(1000, deadline+60_000); KindOf(err) != KindExpired {
		t.Errorf("buy past deadline: got %v; want EXPIRED", err)
	}
}

func TestAuction_SettlementLifecycle(t *testing.T) {
	a := newTestAuction(t, curveConfig())
	startedAt := chain.Timestamp(1_000_000)
	a.Start(testOwner, startedAt)

	ps := &PendingSettlement{CallID: "c1", Buyer: testBuyer, Paid: 1200, Price: 1000}
	a.BeginSettlement(ps)

	// A second settlement while one is pending is a programming error.
	func() {
		defer func() {
			if recover() == nil {
				t.Error("BeginSettlement with a pending marker did not panic")
			}
		}()
		a.BeginSettlement(&PendingSettlement{CallID: "c2"})
	}()

	// Revert keeps the auction open.
	a.RevertSale()
	if a.Pending != nil || a.Phase != PhaseStarted {
		t.Errorf("after revert: pending=%v phase=%s", a.Pending, a.Phase)
	}
	if _, err := a.CanBuy(1000, startedAt); err != nil {
		t.Errorf("buy after revert rejected: %v", err)
	}

	// Finalize ends the auction.
	a.BeginSettlement(ps)
	a.FinalizeSale()
	if a.Phase != PhasePurchased || a.Buyer != testBuyer || a.SalePrice != 1000 {
		t.Errorf("after finalize: phase=%s buyer=%s price=%s", a.Phase, a.Buyer, a.SalePrice)
	}
	if a.Pending != nil {
		t.Error("pending marker survived finalize")
	}
	if _, err := a.CanBuy(5000, startedAt); KindOf(err) != KindNotStarted {
		t.Errorf("buy after purchase: got %v; want NOT_STARTED", err)
	}
}

func TestAuction_Stop(t *testing.T) {
	startedAt := chain.Timestamp(1_000_000)

	t.Run("before start", func(t *testing.T) {
		a := newTestAuction(t, curveConfig())
		if err := a.Stop(testOwner, startedAt); KindOf(err) != KindNotStarted {
			t.Errorf("got %v; want NOT_STARTED", err)
		}
	})

	t.Run("unauthorized", func(t *testing.T) {
		a := newTestAuction(t, curveConfig())
		a.Start(testOwner, startedAt)
		if err := a.Stop(testStranger, startedAt); KindOf(err) != KindUnauthorized {
			t.Errorf("got %v; want UNAUTHORIZED", err)
		}
	})

	t.Run("during settlement", func(t *testing.T) {
		a := newTestAuction(t, curveConfig())
		a.Start(testOwner, startedAt)
		a.BeginSettlement(&PendingSettlement{CallID: "c1", Buyer: testBuyer})
		if err := a.Stop(testOwner, startedAt); KindOf(err) != KindSettlementInProgress {
			t.Errorf("got %v; want SETTLEMENT_IN_PROGRESS", err)
		}
		if a.Phase != PhaseStarted {
			t.Errorf("phase changed on rejected stop: %s", a.Phase)
		}
	})

	t.Run("started", func(t *testing.T) {
		a := newTestAuction(t, curveConfig())
		a.Start(testOwner, startedAt)
		if err := a.Stop(testOwner, startedAt+5000); err != nil {
			t.Fatalf("stop failed: %v", err)
		}
		if a.Phase != PhaseStopped {
			t.Errorf("phase = %s; want STOPPED", a.Phase)
		}
		// Terminal: no restart.
		if err := a.Start(testOwner, startedAt+6000); KindOf(err) != KindAlreadyStarted {
			t.Errorf("start after stop: got %v; want ALREADY_STARTED", err)
		}
	})
}

func TestAuction_JSONRoundTrip(t *testing.T) {
	a := newTestAuction(t, curveConfig())
	a.Start(testOwner, 1_000_000)
	a.BeginSettlement(&PendingSettlement{CallID: "c1", Buyer: testBuyer, Paid: 1200, Price: 1000, ReplyID: "r1"})

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var back Auction
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if back.Phase != a.Phase || back.StartedAt != a.StartedAt || back.Pending == nil || back.Pending.CallID != "c1" {
		t.Errorf("round trip lost state: %+v", back)
	}
}
