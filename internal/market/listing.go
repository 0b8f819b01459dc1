package market

import (
	"context"
	"fmt"

	"github.com/ZilDuck/solana-card-market/internal/address"
	"github.com/ZilDuck/solana-card-market/internal/entity"
	"github.com/ZilDuck/solana-card-market/internal/ledger"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

type ListingManager interface {
	List(ctx context.Context, w ledger.Wallet, mint solana.PublicKey, price uint64) (*ListResult, error)
	Delist(ctx context.Context, w ledger.Wallet, listing entity.Listing) (solana.Signature, error)
	Marketplace() solana.PublicKey
}

type ListResult struct {
	Signature solana.Signature
	Listing   solana.PublicKey
	Vault     solana.PublicKey
}

type listingManager struct {
	program     ledger.Program
	deriver     address.Deriver
	marketplace solana.PublicKey
}

func NewListingManager(program ledger.Program, deriver address.Deriver, authority solana.PublicKey) ListingManager {
	return listingManager{
		program:     program,
		deriver:     deriver,
		marketplace: deriver.Marketplace(authority),
	}
}

func (m listingManager) Marketplace() solana.PublicKey {
	return m.marketplace
}

// List moves the asset into the listing's vault at price lamports.
func (m listingManager) List(ctx context.Context, w ledger.Wallet, mint solana.PublicKey, price uint64) (*ListResult, error) {
	if price == 0 {
		return nil, precondition(ErrNonPositivePrice, mint.String())
	}

	owner := w.PublicKey()
	if err := m.checkHolder(ctx, owner, mint); err != nil {
		return nil, err
	}

	userAddr, err := ensureUser(ctx, m.program, m.deriver, w)
	if err != nil {
		return nil, err
	}

	listingAddr := m.deriver.Listing(m.marketplace, mint)
	vault := m.deriver.Vault(listingAddr, mint)

	sig, err := m.program.List(ctx, w, ledger.ListAccounts{
		Owner:             owner,
		Marketplace:       m.marketplace,
		Listing:           listingAddr,
		Vault:             vault,
		OwnerTokenAccount: m.deriver.TokenAccount(owner, mint),
		Mint:              mint,
		UserAccount:       userAddr,
	}, price)
	if err != nil {
		zap.L().With(zap.Error(err), zap.String("mint", mint.String())).Warn("ListingManager: List failed")
		return nil, err
	}

	zap.L().With(
		zap.String("listing", listingAddr.String()),
		zap.Uint64("price", price),
		zap.String("signature", sig.String()),
	).Info("ListingManager: Listed")

	return &ListResult{Signature: sig, Listing: listingAddr, Vault: vault}, nil
}

// Delist checks the caller's view of the listing before submitting. The ledger repeats the
// same checks, so a listing that moved since the last sync is rejected there.
func (m listingManager) Delist(ctx context.Context, w ledger.Wallet, listing entity.Listing) (solana.Signature, error) {
	owner := w.PublicKey()

	if !listing.IsActive() {
		return solana.Signature{}, precondition(ErrListingNotActive, listing.Status.String())
	}
	if !listing.Owner.Equals(owner) {
		return solana.Signature{}, precondition(ErrNotOwner, listing.Address.String())
	}

	listingAddr := m.deriver.Listing(m.marketplace, listing.NftMint)

	sig, err := m.program.Delist(ctx, w, ledger.DelistAccounts{
		Owner:             owner,
		Marketplace:       m.marketplace,
		Listing:           listingAddr,
		Vault:             m.deriver.Vault(listingAddr, listing.NftMint),
		OwnerTokenAccount: m.deriver.TokenAccount(owner, listing.NftMint),
		Mint:              listing.NftMint,
	})
	if err != nil {
		zap.L().With(zap.Error(err), zap.String("listing", listingAddr.String())).Warn("ListingManager: Delist failed")
		return solana.Signature{}, err
	}

	zap.L().With(zap.String("listing", listingAddr.String())).Info("ListingManager: Delisted")

	return sig, nil
}

func (m listingManager) checkHolder(ctx context.Context, owner, mint solana.PublicKey) error {
	holdings, err := m.program.Holdings(ctx, owner)
	if err != nil {
		return fmt.Errorf("fetch holdings: %w", err)
	}
	for _, h := range holdings {
		if h.Mint.Equals(mint) && h.Amount > 0 {
			return nil
		}
	}

	return precondition(ErrNotHolder, mint.String())
}
