package entity

import (
	"errors"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

var ErrUnknownStatus = errors.New("unknown listing status")

// ListingStatus mirrors the program's enum; the numeric values are the on-chain tags.
type ListingStatus uint8

const (
	ListingActive ListingStatus = iota
	ListingSold
	ListingUnlisted
)

func (s ListingStatus) String() string {
	switch s {
	case ListingActive:
		return "Active"
	case ListingSold:
		return "Sold"
	case ListingUnlisted:
		return "Unlisted"
	default:
		return "Unknown"
	}
}

func ParseListingStatus(s string) (ListingStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return ListingActive, nil
	case "sold":
		return ListingSold, nil
	case "unlisted":
		return ListingUnlisted, nil
	}

	return 0, ErrUnknownStatus
}

type Listing struct {
	Address   solana.PublicKey `json:"address"`
	Owner     solana.PublicKey `json:"owner"`
	NftMint   solana.PublicKey `json:"nftMint"`
	Price     uint64           `json:"price"`
	Status    ListingStatus    `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
}

func (Listing) Kind() RecordKind          { return ListingRecord }
func (l Listing) Addr() solana.PublicKey { return l.Address }
func (Listing) record()                   {}

func (l Listing) IsActive() bool {
	return l.Status == ListingActive
}

func (l Listing) PriceSol() decimal.Decimal {
	return FromLamports(l.Price)
}

// Holding is a token balance held directly by a wallet.
type Holding struct {
	Mint         solana.PublicKey `json:"mint"`
	TokenAccount solana.PublicKey `json:"tokenAccount"`
	Amount       uint64           `json:"amount"`
}
