package ledger

import (
	"context"
	"errors"

	"github.com/ZilDuck/solana-card-market/internal/entity"
	"github.com/gagliardetto/solana-go"
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountMismatch      = errors.New("account discriminator mismatch")
	ErrConfirmationTimeout  = errors.New("transaction confirmation timed out")
	ErrMetadataUnavailable  = errors.New("metadata account unavailable")
	ErrTransactionNotSigned = errors.New("transaction not signed")
)

// Reader exposes the four program record kinds plus the token and metadata reads the
// marketplace needs. Every address passed in comes from address.Deriver.
type Reader interface {
	Marketplace(ctx context.Context, addr solana.PublicKey) (*entity.Marketplace, error)
	UserAccount(ctx context.Context, addr solana.PublicKey) (*entity.UserAccount, error)
	Listing(ctx context.Context, addr solana.PublicKey) (*entity.Listing, error)
	Escrow(ctx context.Context, addr solana.PublicKey) (*entity.Escrow, error)
	Listings(ctx context.Context) ([]entity.Listing, error)

	AccountExists(ctx context.Context, addr solana.PublicKey) (bool, error)
	Holdings(ctx context.Context, owner solana.PublicKey) ([]entity.Holding, error)
	MetadataUri(ctx context.Context, mint solana.PublicKey) (string, error)
}

// Writer is the complete mutating surface of the marketplace program.
type Writer interface {
	InitializeMarketplace(ctx context.Context, w Wallet, accounts InitializeAccounts, feeBps uint16) (solana.Signature, error)
	RegisterUser(ctx context.Context, w Wallet, accounts RegisterAccounts) (solana.Signature, error)
	List(ctx context.Context, w Wallet, accounts ListAccounts, price uint64) (solana.Signature, error)
	Delist(ctx context.Context, w Wallet, accounts DelistAccounts) (solana.Signature, error)
	Purchase(ctx context.Context, w Wallet, accounts PurchaseAccounts) (solana.Signature, error)
	ReleaseEscrow(ctx context.Context, w Wallet, accounts ReleaseAccounts) (solana.Signature, error)
	Refund(ctx context.Context, w Wallet, accounts RefundAccounts) (solana.Signature, error)
}

type Program interface {
	Reader
	Writer
}

type InitializeAccounts struct {
	Authority   solana.PublicKey
	Marketplace solana.PublicKey
	Treasury    solana.PublicKey
}

type RegisterAccounts struct {
	Wallet      solana.PublicKey
	UserAccount solana.PublicKey
}

type ListAccounts struct {
	Owner             solana.PublicKey
	Marketplace       solana.PublicKey
	Listing           solana.PublicKey
	Vault             solana.PublicKey
	OwnerTokenAccount solana.PublicKey
	Mint              solana.PublicKey
	UserAccount       solana.PublicKey
}

type DelistAccounts struct {
	Owner             solana.PublicKey
	Marketplace       solana.PublicKey
	Listing           solana.PublicKey
	Vault             solana.PublicKey
	OwnerTokenAccount solana.PublicKey
	Mint              solana.PublicKey
}

type PurchaseAccounts struct {
	Buyer       solana.PublicKey
	Seller      solana.PublicKey
	Marketplace solana.PublicKey
	Listing     solana.PublicKey
	Escrow      solana.PublicKey
	UserAccount solana.PublicKey
}

type ReleaseAccounts struct {
	Seller            solana.PublicKey
	Buyer             solana.PublicKey
	Marketplace       solana.PublicKey
	Treasury          solana.PublicKey
	Listing           solana.PublicKey
	Escrow            solana.PublicKey
	Vault             solana.PublicKey
	BuyerTokenAccount solana.PublicKey
	Mint              solana.PublicKey
	SellerAccount     solana.PublicKey
	BuyerAccount      solana.PublicKey

	// CreateBuyerTokenAccount prepends creation of the buyer's token account, paid by the seller.
	CreateBuyerTokenAccount bool
}

type RefundAccounts struct {
	Caller      solana.PublicKey
	Buyer       solana.PublicKey
	Seller      solana.PublicKey
	Marketplace solana.PublicKey
	Listing     solana.PublicKey
	Escrow      solana.PublicKey
}
