package chain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ActorID identifies a program or user on the chain (hex-encoded address).
type ActorID string

// TokenID identifies a single non-fungible token inside a registry program.
type TokenID uint64

// Value represents on-chain value in the smallest denomination.
// E.g., 1.0 coin = 1,000,000,000,000 Value.
type Value uint64

// Timestamp represents block time in Unix Milliseconds, as provided by the
// host runtime on message delivery.
type Timestamp int64

const (
	// ValueDecimals is the number of decimal places of the native coin.
	ValueDecimals = 12
)

// ZeroActor is the unset address.
const ZeroActor ActorID = ""

// IsZero reports whether the address is unset.
func (a ActorID) IsZero() bool {
	return a == ZeroActor
}

// ParseValue converts a decimal coin string (from config or wire) to Value.
// Note: Only used at the boundary. Internal logic uses Value directly.
func ParseValue(s string) (Value, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("invalid value %q: must not be negative", s)
	}
	shifted := d.Shift(ValueDecimals)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("invalid value %q: more than %d decimal places", s, ValueDecimals)
	}
	bi := shifted.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("invalid value %q: exceeds maximum representable value", s)
	}
	return Value(bi.Uint64()), nil
}

// Decimal returns the value expressed in whole coins.
func (v Value) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(v)), -ValueDecimals)
}

func (v Value) String() string {
	return v.Decimal().String()
}

// ElapsedSeconds returns whole seconds between two timestamps, clamped at 0
// when to precedes from.
func ElapsedSeconds(from, to Timestamp) uint64 {
	if to <= from {
		return 0
	}
	return uint64(to-from) / 1000
}
