package ledger

import (
	"fmt"
	"sync"

	"dutch_auction/pkg/chain"
	"dutch_auction/pkg/safe"
)

// Ledger models the host runtime's value-transfer mechanism: per-actor coin
// balances moved atomically within one handled message. The auction program
// only ever moves value through it, the way it only ever requests asset
// transfers from the registry.
type Ledger struct {
	mu       sync.Mutex
	accounts map[chain.ActorID]chain.Value
	minted   chain.Value
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		accounts: make(map[chain.ActorID]chain.Value),
	}
}

// Deposit mints value onto an account. Used when an envelope carrying value
// enters the modeled system: the runtime already moved the coins, the ledger
// records where they landed.
func (l *Ledger) Deposit(to chain.ActorID, amount chain.Value) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sum, ok := safe.CheckedAdd(uint64(l.accounts[to]), uint64(amount))
	if !ok {
		panic("LEDGER_DEPOSIT_OVERFLOW")
	}
	minted, ok := safe.CheckedAdd(uint64(l.minted), uint64(amount))
	if !ok {
		panic("LEDGER_MINT_OVERFLOW")
	}
	l.accounts[to] = chain.Value(sum)
	l.minted = chain.Value(minted)
}

// Transfer moves value between accounts. Fails when the source balance is
// insufficient; never partially applies.
func (l *Ledger) Transfer(from, to chain.ActorID, amount chain.Value) error {
	if amount == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.accounts[from] < amount {
		return fmt.Errorf("insufficient balance on %s: need %s, have %s",
			from, amount, l.accounts[from])
	}
	sum, ok := safe.CheckedAdd(uint64(l.accounts[to]), uint64(amount))
	if !ok {
		panic("LEDGER_TRANSFER_OVERFLOW")
	}
	l.accounts[from] -= amount
	l.accounts[to] = chain.Value(sum)
	return nil
}

// BalanceOf returns the current balance of an account.
func (l *Ledger) BalanceOf(id chain.ActorID) chain.Value {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[id]
}

// TotalMinted returns the sum of all value deposited so far.
func (l *Ledger) TotalMinted() chain.Value {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.minted
}

// VerifyConservation panics if balances no longer sum to the minted total.
// Transfers conserve value; only Deposit mints. A mismatch means a settlement
// path lost or duplicated payment.
func (l *Ledger) VerifyConservation() {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total chain.Value
	for _, v := range l.accounts {
		sum, ok := safe.CheckedAdd(uint64(total), uint64(v))
		if !ok {
			panic("LEDGER_CONSERVATION_OVERFLOW")
		}
		total = chain.Value(sum)
	}
	if total != l.minted {
		panic(fmt.Sprintf("LEDGER_CONSERVATION_VIOLATED: accounts sum %s, minted %s",
			total, l.minted))
	}
}

// Snapshot returns a copy of all balances for inspection.
func (l *Ledger) Snapshot() map[chain.ActorID]chain.Value {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[chain.ActorID]chain.Value, len(l.accounts))
	for k, v := range l.accounts {
		out[k] = v
	}
	return out
}
