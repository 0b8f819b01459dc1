package entity

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

type RecordKind uint8

const (
	MarketplaceRecord RecordKind = iota + 1
	UserAccountRecord
	ListingRecord
	EscrowRecord
)

func (k RecordKind) String() string {
	switch k {
	case MarketplaceRecord:
		return "Marketplace"
	case UserAccountRecord:
		return "UserAccount"
	case ListingRecord:
		return "Listing"
	case EscrowRecord:
		return "Escrow"
	default:
		return "Unknown"
	}
}

// Record is one of the four account kinds owned by the marketplace program.
// The set is closed: only the types in this package implement it.
type Record interface {
	Kind() RecordKind
	Addr() solana.PublicKey
	record()
}

// Marketplace is created once by the administrator. Read only here.
type Marketplace struct {
	Address   solana.PublicKey `json:"address"`
	Authority solana.PublicKey `json:"authority"`
	Treasury  solana.PublicKey `json:"treasury"`
	FeeBps    uint16           `json:"feeBps"`
}

func (Marketplace) Kind() RecordKind          { return MarketplaceRecord }
func (m Marketplace) Addr() solana.PublicKey { return m.Address }
func (Marketplace) record()                   {}

type UserAccount struct {
	Address solana.PublicKey `json:"address"`
	Wallet  solana.PublicKey `json:"wallet"`
	Listed  uint64           `json:"listed"`
	Sold    uint64           `json:"sold"`
	Bought  uint64           `json:"bought"`
}

func (UserAccount) Kind() RecordKind          { return UserAccountRecord }
func (u UserAccount) Addr() solana.PublicKey { return u.Address }
func (UserAccount) record()                   {}

type Escrow struct {
	Address   solana.PublicKey `json:"address"`
	Listing   solana.PublicKey `json:"listing"`
	Buyer     solana.PublicKey `json:"buyer"`
	Amount    uint64           `json:"amount"`
	CreatedAt time.Time        `json:"createdAt"`
}

func (Escrow) Kind() RecordKind          { return EscrowRecord }
func (e Escrow) Addr() solana.PublicKey { return e.Address }
func (Escrow) record()                   {}

// EscrowState is the purchase state machine as seen by the orchestrator. Released and
// Refunded are terminal.
type EscrowState uint8

const (
	EscrowActive EscrowState = iota
	EscrowSold
	EscrowReleased
	EscrowRefunded
)

func (s EscrowState) String() string {
	switch s {
	case EscrowActive:
		return "Active"
	case EscrowSold:
		return "Sold"
	case EscrowReleased:
		return "Released"
	case EscrowRefunded:
		return "Refunded"
	default:
		return "Unknown"
	}
}

func (s EscrowState) Terminal() bool {
	return s == EscrowReleased || s == EscrowRefunded
}
