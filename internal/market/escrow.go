package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZilDuck/solana-card-market/internal/address"
	"github.com/ZilDuck/solana-card-market/internal/entity"
	"github.com/ZilDuck/solana-card-market/internal/ledger"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// OrderWriter is the off-ledger side of a purchase. Its failures never undo a ledger write.
type OrderWriter interface {
	Create(ctx context.Context, order entity.Order) (*entity.Order, error)
	UpdateStatus(ctx context.Context, listing string, status entity.OrderStatus) (*entity.Order, error)
}

type EscrowOrchestrator interface {
	Purchase(ctx context.Context, w ledger.Wallet, listing entity.Listing, contact entity.Contact) (*PurchaseResult, error)
	ReleaseEscrow(ctx context.Context, w ledger.Wallet, listing solana.PublicKey) (*ReleaseResult, error)
	Refund(ctx context.Context, w ledger.Wallet, listing solana.PublicKey) (*RefundResult, error)
}

type PurchaseResult struct {
	Signature solana.Signature
	Escrow    solana.PublicKey
	State     entity.EscrowState
	Order     *entity.Order
	OrderErr  error
}

type ReleaseResult struct {
	Signature                solana.Signature
	Buyer                    solana.PublicKey
	CreatedBuyerTokenAccount bool
	State                    entity.EscrowState
	Order                    *entity.Order
	OrderErr                 error
}

type RefundResult struct {
	Signature solana.Signature
	Buyer     solana.PublicKey
	Amount    uint64
	State     entity.EscrowState
}

type escrowOrchestrator struct {
	program     ledger.Program
	deriver     address.Deriver
	orders      OrderWriter
	authority   solana.PublicKey
	marketplace solana.PublicKey
	now         func() time.Time
}

func NewEscrowOrchestrator(program ledger.Program, deriver address.Deriver, orders OrderWriter, authority solana.PublicKey) EscrowOrchestrator {
	return escrowOrchestrator{
		program:     program,
		deriver:     deriver,
		orders:      orders,
		authority:   authority,
		marketplace: deriver.Marketplace(authority),
		now:         time.Now,
	}
}

// Purchase moves the buyer's funds into escrow. Preconditions are checked before any ledger
// call. The Order write follows a confirmed purchase and reports its own failure in OrderErr.
func (o escrowOrchestrator) Purchase(ctx context.Context, w ledger.Wallet, listing entity.Listing, contact entity.Contact) (*PurchaseResult, error) {
	contact, err := ValidateContact(contact)
	if err != nil {
		return nil, err
	}

	buyer := w.PublicKey()
	if !listing.IsActive() {
		return nil, precondition(ErrListingNotActive, listing.Status.String())
	}
	if listing.Owner.Equals(buyer) {
		return nil, precondition(ErrSelfPurchase, listing.Address.String())
	}

	userAddr, err := ensureUser(ctx, o.program, o.deriver, w)
	if err != nil {
		return nil, err
	}

	listingAddr := o.deriver.Listing(o.marketplace, listing.NftMint)
	escrowAddr := o.deriver.Escrow(listingAddr)

	sig, err := o.program.Purchase(ctx, w, ledger.PurchaseAccounts{
		Buyer:       buyer,
		Seller:      listing.Owner,
		Marketplace: o.marketplace,
		Listing:     listingAddr,
		Escrow:      escrowAddr,
		UserAccount: userAddr,
	})
	if err != nil {
		zap.L().With(zap.Error(err), zap.String("listing", listingAddr.String())).Warn("EscrowOrchestrator: Purchase failed")
		return nil, err
	}

	zap.L().With(
		zap.String("listing", listingAddr.String()),
		zap.String("buyer", buyer.String()),
		zap.String("signature", sig.String()),
	).Info("EscrowOrchestrator: Purchase confirmed")

	result := &PurchaseResult{Signature: sig, Escrow: escrowAddr, State: entity.EscrowSold}
	if o.orders == nil {
		return result, nil
	}

	now := o.now().UTC()
	result.Order, result.OrderErr = o.orders.Create(ctx, entity.Order{
		ListingAddress: listingAddr.String(),
		BuyerWallet:    buyer.String(),
		SellerWallet:   listing.Owner.String(),
		Price:          listing.Price,
		BuyerContact:   &contact,
		Status:         entity.OrderPendingShipment,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if result.OrderErr != nil {
		zap.L().With(zap.Error(result.OrderErr), zap.String("listing", listingAddr.String())).
			Error("EscrowOrchestrator: Failed to create order")
	}

	return result, nil
}

// ReleaseEscrow settles a sold listing. The escrow is fetched first so that an escrow that
// is already gone is reported as ErrAlreadyReleased instead of a transfer failure.
func (o escrowOrchestrator) ReleaseEscrow(ctx context.Context, w ledger.Wallet, listingAddr solana.PublicKey) (*ReleaseResult, error) {
	seller := w.PublicKey()
	escrowAddr := o.deriver.Escrow(listingAddr)

	escrow, err := o.program.Escrow(ctx, escrowAddr)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return nil, precondition(ErrAlreadyReleased, listingAddr.String())
		}
		return nil, fmt.Errorf("fetch escrow: %w", err)
	}

	listing, err := o.program.Listing(ctx, listingAddr)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return nil, precondition(ErrAlreadyReleased, listingAddr.String())
		}
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	if !listing.Owner.Equals(seller) {
		return nil, precondition(ErrNotOwner, listingAddr.String())
	}

	buyerTokenAccount := o.deriver.TokenAccount(escrow.Buyer, listing.NftMint)
	exists, err := o.program.AccountExists(ctx, buyerTokenAccount)
	if err != nil {
		return nil, fmt.Errorf("check buyer token account: %w", err)
	}

	sig, err := o.program.ReleaseEscrow(ctx, w, ledger.ReleaseAccounts{
		Seller:                  seller,
		Buyer:                   escrow.Buyer,
		Marketplace:             o.marketplace,
		Treasury:                o.deriver.Treasury(o.marketplace),
		Listing:                 listingAddr,
		Escrow:                  escrowAddr,
		Vault:                   o.deriver.Vault(listingAddr, listing.NftMint),
		BuyerTokenAccount:       buyerTokenAccount,
		Mint:                    listing.NftMint,
		SellerAccount:           o.deriver.UserAccount(seller),
		BuyerAccount:            o.deriver.UserAccount(escrow.Buyer),
		CreateBuyerTokenAccount: !exists,
	})
	if err != nil {
		zap.L().With(zap.Error(err), zap.String("listing", listingAddr.String())).Warn("EscrowOrchestrator: Release failed")
		return nil, err
	}

	zap.L().With(
		zap.String("listing", listingAddr.String()),
		zap.String("buyer", escrow.Buyer.String()),
		zap.Bool("createdTokenAccount", !exists),
	).Info("EscrowOrchestrator: Escrow released")

	result := &ReleaseResult{
		Signature:                sig,
		Buyer:                    escrow.Buyer,
		CreatedBuyerTokenAccount: !exists,
		State:                    entity.EscrowReleased,
	}
	if o.orders == nil {
		return result, nil
	}

	result.Order, result.OrderErr = o.orders.UpdateStatus(ctx, listingAddr.String(), entity.OrderEscrowReleased)
	if result.OrderErr != nil {
		zap.L().With(zap.Error(result.OrderErr), zap.String("listing", listingAddr.String())).
			Error("EscrowOrchestrator: Failed to update order")
	}

	return result, nil
}

// Refund returns the escrowed funds to the buyer and puts the listing back on sale. Either
// the seller or the marketplace authority may call it.
func (o escrowOrchestrator) Refund(ctx context.Context, w ledger.Wallet, listingAddr solana.PublicKey) (*RefundResult, error) {
	caller := w.PublicKey()
	escrowAddr := o.deriver.Escrow(listingAddr)

	escrow, err := o.program.Escrow(ctx, escrowAddr)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return nil, precondition(ErrEscrowNotFound, listingAddr.String())
		}
		return nil, fmt.Errorf("fetch escrow: %w", err)
	}

	listing, err := o.program.Listing(ctx, listingAddr)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return nil, precondition(ErrEscrowNotFound, listingAddr.String())
		}
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	if !listing.Owner.Equals(caller) && !o.authority.Equals(caller) {
		return nil, precondition(ErrNotOwner, listingAddr.String())
	}

	sig, err := o.program.Refund(ctx, w, ledger.RefundAccounts{
		Caller:      caller,
		Buyer:       escrow.Buyer,
		Seller:      listing.Owner,
		Marketplace: o.marketplace,
		Listing:     listingAddr,
		Escrow:      escrowAddr,
	})
	if err != nil {
		zap.L().With(zap.Error(err), zap.String("listing", listingAddr.String())).Warn("EscrowOrchestrator: Refund failed")
		return nil, err
	}

	zap.L().With(
		zap.String("listing", listingAddr.String()),
		zap.String("buyer", escrow.Buyer.String()),
		zap.Uint64("amount", escrow.Amount),
	).Info("EscrowOrchestrator: Escrow refunded")

	return &RefundResult{Signature: sig, Buyer: escrow.Buyer, Amount: escrow.Amount, State: entity.EscrowRefunded}, nil
}
