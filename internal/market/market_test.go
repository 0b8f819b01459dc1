package market

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ZilDuck/solana-card-market/internal/address"
	"github.com/ZilDuck/solana-card-market/internal/entity"
	"github.com/ZilDuck/solana-card-market/internal/failure"
	"github.com/ZilDuck/solana-card-market/internal/ledger"
	"github.com/ZilDuck/solana-card-market/internal/ledger/ledgertest"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderStub struct {
	mu        sync.Mutex
	created   []entity.Order
	updates   map[string]entity.OrderStatus
	createErr error
	updateErr error
}

func (s *orderStub) Create(_ context.Context, order entity.Order) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	order.Id = "order-1"
	s.created = append(s.created, order)
	return &order, nil
}

func (s *orderStub) UpdateStatus(_ context.Context, listing string, status entity.OrderStatus) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	if s.updates == nil {
		s.updates = map[string]entity.OrderStatus{}
	}
	s.updates[listing] = status
	return &entity.Order{ListingAddress: listing, Status: status}, nil
}

type fixture struct {
	ctx       context.Context
	deriver   address.Deriver
	ledger    *ledgertest.Ledger
	orders    *orderStub
	listings  ListingManager
	escrows   EscrowOrchestrator
	authority *ledgertest.Wallet
	seller    *ledgertest.Wallet
	buyer     *ledgertest.Wallet
	mint      solana.PublicKey
}

var contact = entity.Contact{Email: "buyer@example.com"}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	deriver := address.NewDeriver(
		solana.PublicKeyFromBytes(bytes.Repeat([]byte{7}, 32)),
		solana.TokenMetadataProgramID,
	)
	l := ledgertest.New(deriver)
	f := &fixture{
		ctx:       context.Background(),
		deriver:   deriver,
		ledger:    l,
		orders:    &orderStub{},
		authority: ledgertest.NewWallet("authority"),
		seller:    ledgertest.NewWallet("seller"),
		buyer:     ledgertest.NewWallet("buyer"),
		mint:      ledgertest.Key("mint-m"),
	}
	f.listings = NewListingManager(l, deriver, f.authority.Key)
	f.escrows = NewEscrowOrchestrator(l, deriver, f.orders, f.authority.Key)

	_, err := InitializeMarketplace(f.ctx, l, deriver, f.authority, 250)
	require.NoError(t, err)

	l.MintTo(f.seller.Key, f.mint)
	l.Fund(f.buyer.Key, 10*entity.LamportsPerSol)

	return f
}

func (f *fixture) list(t *testing.T, sol string) entity.Listing {
	t.Helper()
	price, err := entity.ParseSol(sol)
	require.NoError(t, err)

	res, err := f.listings.List(f.ctx, f.seller, f.mint, price)
	require.NoError(t, err)

	listing, err := f.ledger.Listing(f.ctx, res.Listing)
	require.NoError(t, err)
	return *listing
}

func TestListPurchaseRelease(t *testing.T) {
	f := newFixture(t)

	listing := f.list(t, "2.0")
	assert.Equal(t, entity.ListingActive, listing.Status)
	assert.Equal(t, uint64(2*entity.LamportsPerSol), listing.Price)
	assert.Equal(t, uint64(0), f.ledger.TokenBalance(f.seller.Key, f.mint))

	purchase, err := f.escrows.Purchase(f.ctx, f.buyer, listing, contact)
	require.NoError(t, err)
	require.NoError(t, purchase.OrderErr)
	assert.Equal(t, entity.EscrowSold, purchase.State)
	assert.Equal(t, f.deriver.Escrow(listing.Address), purchase.Escrow)

	sold, err := f.ledger.Listing(f.ctx, listing.Address)
	require.NoError(t, err)
	assert.Equal(t, entity.ListingSold, sold.Status)
	_, err = f.ledger.Escrow(f.ctx, purchase.Escrow)
	require.NoError(t, err)

	require.Len(t, f.orders.created, 1)
	order := f.orders.created[0]
	assert.Equal(t, entity.OrderPendingShipment, order.Status)
	assert.Equal(t, listing.Address.String(), order.ListingAddress)
	assert.Equal(t, "buyer@example.com", order.BuyerContact.Email)

	release, err := f.escrows.ReleaseEscrow(f.ctx, f.seller, listing.Address)
	require.NoError(t, err)
	require.NoError(t, release.OrderErr)
	assert.True(t, release.CreatedBuyerTokenAccount)
	assert.Equal(t, f.buyer.Key, release.Buyer)

	_, err = f.ledger.Escrow(f.ctx, purchase.Escrow)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	assert.Equal(t, uint64(1), f.ledger.TokenBalance(f.buyer.Key, f.mint))
	assert.Equal(t, uint64(1_950_000_000), f.ledger.Lamports(f.seller.Key))
	assert.Equal(t, entity.OrderEscrowReleased, f.orders.updates[listing.Address.String()])
}

func TestPurchaseRace(t *testing.T) {
	f := newFixture(t)
	listing := f.list(t, "1")

	other := ledgertest.NewWallet("other-buyer")
	f.ledger.Fund(other.Key, 10*entity.LamportsPerSol)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, w := range []*ledgertest.Wallet{f.buyer, other} {
		wg.Add(1)
		go func(i int, w *ledgertest.Wallet) {
			defer wg.Done()
			_, errs[i] = f.escrows.Purchase(f.ctx, w, listing, contact)
		}(i, w)
	}
	wg.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	require.Len(t, failed, 1)

	classified := failure.Classify(failed[0])
	assert.Equal(t, failure.StaleState, classified.Kind)
	assert.True(t, classified.NeedsResync())
	assert.Equal(t, 2, f.ledger.Calls(ledgertest.OpPurchase))
}

func TestPurchaseRequiresContact(t *testing.T) {
	f := newFixture(t)
	listing := f.list(t, "1")
	calls, reads := f.ledger.TotalCalls(), f.ledger.Reads()

	_, err := f.escrows.Purchase(f.ctx, f.buyer, listing, entity.Contact{Email: "  ", Handle: ""})

	require.ErrorIs(t, err, ErrMissingContact)
	assert.True(t, IsPrecondition(err))
	assert.Equal(t, calls, f.ledger.TotalCalls())
	assert.Equal(t, reads, f.ledger.Reads())
}

func TestPurchaseRejectsInvalidContact(t *testing.T) {
	f := newFixture(t)
	listing := f.list(t, "1")

	_, err := f.escrows.Purchase(f.ctx, f.buyer, listing, entity.Contact{Email: "not-an-email"})
	assert.ErrorIs(t, err, ErrInvalidContact)

	_, err = f.escrows.Purchase(f.ctx, f.buyer, listing, entity.Contact{Handle: "a b"})
	assert.ErrorIs(t, err, ErrInvalidContact)

	assert.Equal(t, 0, f.ledger.Calls(ledgertest.OpPurchase))
}

func TestPurchaseRejectsSelfPurchase(t *testing.T) {
	f := newFixture(t)
	listing := f.list(t, "1")

	_, err := f.escrows.Purchase(f.ctx, f.seller, listing, contact)

	assert.ErrorIs(t, err, ErrSelfPurchase)
	assert.Equal(t, 0, f.ledger.Calls(ledgertest.OpPurchase))
}

func TestPurchaseOrderFailureIsSeparate(t *testing.T) {
	f := newFixture(t)
	listing := f.list(t, "1")
	f.orders.createErr = errors.New("order api: 503")

	res, err := f.escrows.Purchase(f.ctx, f.buyer, listing, contact)

	require.NoError(t, err)
	require.Error(t, res.OrderErr)
	assert.Nil(t, res.Order)

	sold, err := f.ledger.Listing(f.ctx, listing.Address)
	require.NoError(t, err)
	assert.Equal(t, entity.ListingSold, sold.Status)
}

func TestReleaseTwiceIsAlreadyReleased(t *testing.T) {
	f := newFixture(t)
	listing := f.list(t, "1")
	_, err := f.escrows.Purchase(f.ctx, f.buyer, listing, contact)
	require.NoError(t, err)
	_, err = f.escrows.ReleaseEscrow(f.ctx, f.seller, listing.Address)
	require.NoError(t, err)

	_, err = f.escrows.ReleaseEscrow(f.ctx, f.seller, listing.Address)

	assert.ErrorIs(t, err, ErrAlreadyReleased)
	assert.Equal(t, 1, f.ledger.Calls(ledgertest.OpRelease))
}

func TestReleaseSkipsExistingTokenAccount(t *testing.T) {
	f := newFixture(t)
	listing := f.list(t, "1")
	f.ledger.MintTo(f.buyer.Key, ledgertest.Key("unrelated"))
	f.ledger.MintTo(f.buyer.Key, f.mint)
	_, err := f.escrows.Purchase(f.ctx, f.buyer, listing, contact)
	require.NoError(t, err)

	res, err := f.escrows.ReleaseEscrow(f.ctx, f.seller, listing.Address)

	require.NoError(t, err)
	assert.False(t, res.CreatedBuyerTokenAccount)
}

func TestReleaseRequiresSeller(t *testing.T) {
	f := newFixture(t)
	listing := f.list(t, "1")
	_, err := f.escrows.Purchase(f.ctx, f.buyer, listing, contact)
	require.NoError(t, err)

	_, err = f.escrows.ReleaseEscrow(f.ctx, f.buyer, listing.Address)

	assert.ErrorIs(t, err, ErrNotOwner)
	assert.Equal(t, 0, f.ledger.Calls(ledgertest.OpRelease))
}

func TestRefundByAuthority(t *testing.T) {
	f := newFixture(t)
	listing := f.list(t, "1")
	_, err := f.escrows.Purchase(f.ctx, f.buyer, listing, contact)
	require.NoError(t, err)
	require.Equal(t, uint64(9*entity.LamportsPerSol), f.ledger.Lamports(f.buyer.Key))

	res, err := f.escrows.Refund(f.ctx, f.authority, listing.Address)

	require.NoError(t, err)
	assert.Equal(t, entity.EscrowRefunded, res.State)
	assert.Equal(t, uint64(10*entity.LamportsPerSol), f.ledger.Lamports(f.buyer.Key))

	restored, err := f.ledger.Listing(f.ctx, listing.Address)
	require.NoError(t, err)
	assert.Equal(t, entity.ListingActive, restored.Status)

	_, err = f.escrows.Refund(f.ctx, f.authority, listing.Address)
	assert.ErrorIs(t, err, ErrEscrowNotFound)
}

func TestRefundRejectsStranger(t *testing.T) {
	f := newFixture(t)
	listing := f.list(t, "1")
	_, err := f.escrows.Purchase(f.ctx, f.buyer, listing, contact)
	require.NoError(t, err)

	_, err = f.escrows.Refund(f.ctx, f.buyer, listing.Address)

	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestListPreconditions(t *testing.T) {
	f := newFixture(t)

	_, err := f.listings.List(f.ctx, f.seller, f.mint, 0)
	assert.ErrorIs(t, err, ErrNonPositivePrice)

	_, err = f.listings.List(f.ctx, f.buyer, f.mint, 1)
	assert.ErrorIs(t, err, ErrNotHolder)

	assert.Equal(t, 0, f.ledger.Calls(ledgertest.OpList))
}

func TestListRegistersUserOnce(t *testing.T) {
	f := newFixture(t)
	second := ledgertest.Key("mint-n")
	f.ledger.MintTo(f.seller.Key, second)

	f.list(t, "1")
	_, err := f.listings.List(f.ctx, f.seller, second, 5)
	require.NoError(t, err)

	assert.Equal(t, 1, f.ledger.Calls(ledgertest.OpRegister))
	user, err := f.ledger.UserAccount(f.ctx, f.deriver.UserAccount(f.seller.Key))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), user.Listed)
}

func TestDelist(t *testing.T) {
	f := newFixture(t)
	listing := f.list(t, "1")

	_, err := f.listings.Delist(f.ctx, f.buyer, listing)
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = f.listings.Delist(f.ctx, f.seller, listing)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.ledger.TokenBalance(f.seller.Key, f.mint))

	_, err = f.ledger.Listing(f.ctx, listing.Address)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestDelistAfterConcurrentPurchaseIsStale(t *testing.T) {
	f := newFixture(t)
	listing := f.list(t, "1")
	_, err := f.escrows.Purchase(f.ctx, f.buyer, listing, contact)
	require.NoError(t, err)

	// listing is the view from before the purchase
	_, err = f.listings.Delist(f.ctx, f.seller, listing)

	require.Error(t, err)
	assert.False(t, IsPrecondition(err))
	assert.Equal(t, failure.StaleState, failure.Classify(err).Kind)
}
