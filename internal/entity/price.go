package entity

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// LamportsPerSol is the fixed scale between a human price and the ledger's smallest unit.
const (
	LamportsPerSol  uint64 = 1_000_000_000
	lamportDecimals int32 = 9
)

var (
	ErrNegativeAmount   = errors.New("amount must not be negative")
	ErrSubLamportAmount = errors.New("amount is more precise than one lamport")
	ErrAmountOutOfRange = errors.New("amount does not fit in a ledger amount")

	maxLedgerAmount = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)
)

// ToLamports converts a SOL denominated price into lamports. The conversion is exact or fails.
func ToLamports(sol decimal.Decimal) (uint64, error) {
	if sol.IsNegative() {
		return 0, ErrNegativeAmount
	}

	lamports := sol.Shift(lamportDecimals)
	if !lamports.Equal(lamports.Truncate(0)) {
		return 0, ErrSubLamportAmount
	}
	if lamports.GreaterThan(maxLedgerAmount) {
		return 0, ErrAmountOutOfRange
	}

	return lamports.BigInt().Uint64(), nil
}

func FromLamports(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -lamportDecimals)
}

// ParseSol parses a human price such as "2.5" into lamports.
func ParseSol(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", s, err)
	}

	return ToLamports(d)
}
