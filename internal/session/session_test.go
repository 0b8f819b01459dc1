package session

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ZilDuck/solana-card-market/internal/address"
	"github.com/ZilDuck/solana-card-market/internal/catalog"
	"github.com/ZilDuck/solana-card-market/internal/collection"
	"github.com/ZilDuck/solana-card-market/internal/entity"
	"github.com/ZilDuck/solana-card-market/internal/event"
	"github.com/ZilDuck/solana-card-market/internal/failure"
	"github.com/ZilDuck/solana-card-market/internal/ledger/ledgertest"
	"github.com/ZilDuck/solana-card-market/internal/market"
	"github.com/ZilDuck/solana-card-market/internal/metadata"
	"github.com/gagliardetto/solana-go"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type failingOrders struct{}

func (failingOrders) Create(context.Context, entity.Order) (*entity.Order, error) {
	return nil, errors.New("order api: 503 service unavailable")
}

func (failingOrders) UpdateStatus(context.Context, string, entity.OrderStatus) (*entity.Order, error) {
	return nil, errors.New("order api: 503 service unavailable")
}

type stack struct {
	ctx       context.Context
	deriver   address.Deriver
	ledger    *ledgertest.Ledger
	authority *ledgertest.Wallet
	mint      solana.PublicKey
}

var contact = entity.Contact{Email: "buyer@example.com"}

func newStack(t *testing.T) *stack {
	t.Helper()
	deriver := address.NewDeriver(solana.PublicKeyFromBytes(bytes.Repeat([]byte{7}, 32)), solana.TokenMetadataProgramID)
	s := &stack{
		ctx:       context.Background(),
		deriver:   deriver,
		ledger:    ledgertest.New(deriver),
		authority: ledgertest.NewWallet("authority"),
		mint:      ledgertest.Key("mint-m"),
	}
	_, err := market.InitializeMarketplace(s.ctx, s.ledger, deriver, s.authority, 100)
	require.NoError(t, err)
	return s
}

func (s *stack) session(t *testing.T, w *ledgertest.Wallet, orders market.OrderWriter) *Session {
	t.Helper()
	client := retryablehttp.NewClient()
	client.Logger = nil
	resolver := metadata.NewResolver(s.ledger, client, cache.New(time.Minute, time.Minute), rate.NewLimiter(rate.Inf, 1), metadata.Options{Concurrency: 2})

	listings := market.NewListingManager(s.ledger, s.deriver, s.authority.Key)
	events := event.NewManager()
	t.Cleanup(events.Close)

	sess := New(w, NewStore(), Deps{
		Listings:   listings,
		Escrows:    market.NewEscrowOrchestrator(s.ledger, s.deriver, orders, s.authority.Key),
		Catalog:    catalog.NewSyncer(s.ledger, s.deriver, resolver, 2),
		Collection: collection.NewSyncer(s.ledger, s.deriver, resolver, listings, collection.RetryPolicy{Attempts: 2, Backoff: time.Millisecond}),
		Events:     events,
	})
	require.NoError(t, sess.Sync(s.ctx))
	return sess
}

func (s *stack) listed(t *testing.T, seller *Session) solana.PublicKey {
	t.Helper()
	res, err := seller.List(s.ctx, s.mint, 2*entity.LamportsPerSol)
	require.NoError(t, err)
	return res.Listing
}

func TestActionsRebuildSnapshots(t *testing.T) {
	s := newStack(t)
	sellerWallet, buyerWallet := ledgertest.NewWallet("seller"), ledgertest.NewWallet("buyer")
	s.ledger.MintTo(sellerWallet.Key, s.mint)
	s.ledger.Fund(buyerWallet.Key, 5*entity.LamportsPerSol)
	seller, buyer := s.session(t, sellerWallet, nil), s.session(t, buyerWallet, nil)

	listing := s.listed(t, seller)
	card, ok := seller.Store().Catalog().Find(listing.String())
	require.True(t, ok)
	assert.Equal(t, entity.ListingActive, card.Listing.Status)
	item, ok := seller.Store().Collection().Find(s.mint)
	require.True(t, ok)
	assert.Equal(t, entity.ListingActive, item.Status)

	require.NoError(t, buyer.Sync(s.ctx))
	_, err := buyer.Purchase(s.ctx, listing, contact)
	require.NoError(t, err)
	card, ok = buyer.Store().Catalog().Find(listing.String())
	require.True(t, ok)
	assert.Equal(t, entity.ListingSold, card.Listing.Status)

	_, err = seller.Release(s.ctx, listing)
	require.NoError(t, err)
	_, ok = seller.Store().Catalog().Find(listing.String())
	assert.False(t, ok)

	require.NoError(t, buyer.Sync(s.ctx))
	item, ok = buyer.Store().Collection().Find(s.mint)
	require.True(t, ok)
	assert.Equal(t, entity.ListingUnlisted, item.Status)
}

func TestDuplicateSubmissionIsRejected(t *testing.T) {
	s := newStack(t)
	sellerWallet, buyerWallet := ledgertest.NewWallet("seller"), ledgertest.NewWallet("buyer")
	s.ledger.MintTo(sellerWallet.Key, s.mint)
	s.ledger.Fund(buyerWallet.Key, 5*entity.LamportsPerSol)
	seller := s.session(t, sellerWallet, nil)
	listing := s.listed(t, seller)
	buyer := s.session(t, buyerWallet, nil)

	var dupErr error
	s.ledger.BeforeCommit(ledgertest.OpPurchase, func() {
		_, dupErr = buyer.Purchase(s.ctx, listing, contact)
	})

	_, err := buyer.Purchase(s.ctx, listing, contact)

	require.NoError(t, err)
	assert.ErrorIs(t, dupErr, ErrActionInFlight)
	assert.Equal(t, 1, s.ledger.Calls(ledgertest.OpPurchase))
}

func TestLosingRacerGetsStaleStateAndResyncs(t *testing.T) {
	s := newStack(t)
	sellerWallet := ledgertest.NewWallet("seller")
	s.ledger.MintTo(sellerWallet.Key, s.mint)
	seller := s.session(t, sellerWallet, nil)
	listing := s.listed(t, seller)

	first, second := ledgertest.NewWallet("first"), ledgertest.NewWallet("second")
	s.ledger.Fund(first.Key, 5*entity.LamportsPerSol)
	s.ledger.Fund(second.Key, 5*entity.LamportsPerSol)
	a, b := s.session(t, first, nil), s.session(t, second, nil)

	_, err := a.Purchase(s.ctx, listing, contact)
	require.NoError(t, err)

	_, err = b.Purchase(s.ctx, listing, contact)

	var f *failure.Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, failure.StaleState, f.Kind)
	assert.False(t, b.Store().Stale())
	card, ok := b.Store().Catalog().Find(listing.String())
	require.True(t, ok)
	assert.Equal(t, entity.ListingSold, card.Listing.Status)

	_, err = b.Purchase(s.ctx, listing, contact)
	assert.ErrorIs(t, err, market.ErrListingNotActive)
	assert.True(t, market.IsPrecondition(err))
}

func TestPreconditionsSkipTheLedger(t *testing.T) {
	s := newStack(t)
	sellerWallet, buyerWallet := ledgertest.NewWallet("seller"), ledgertest.NewWallet("buyer")
	s.ledger.MintTo(sellerWallet.Key, s.mint)
	seller := s.session(t, sellerWallet, nil)
	listing := s.listed(t, seller)
	buyer := s.session(t, buyerWallet, nil)
	calls := s.ledger.TotalCalls()

	_, err := buyer.Purchase(s.ctx, listing, entity.Contact{})

	assert.ErrorIs(t, err, market.ErrMissingContact)
	var f *failure.Failure
	assert.False(t, errors.As(err, &f))
	assert.Equal(t, calls, s.ledger.TotalCalls())
}

func TestOrderFailureIsReportedSeparately(t *testing.T) {
	s := newStack(t)
	sellerWallet, buyerWallet := ledgertest.NewWallet("seller"), ledgertest.NewWallet("buyer")
	s.ledger.MintTo(sellerWallet.Key, s.mint)
	s.ledger.Fund(buyerWallet.Key, 5*entity.LamportsPerSol)
	seller := s.session(t, sellerWallet, nil)
	listing := s.listed(t, seller)
	buyer := s.session(t, buyerWallet, failingOrders{})

	failures := make(chan interface{}, 1)
	buyer.Events().AddEventListener(event.OrderWriteFailed, func(msg interface{}) { failures <- msg })

	res, err := buyer.Purchase(s.ctx, listing, contact)

	require.NoError(t, err)
	require.Error(t, res.OrderErr)
	select {
	case msg := <-failures:
		assert.Equal(t, listing.String(), msg.(event.OrderFailure).Listing)
		assert.Equal(t, "purchase", msg.(event.OrderFailure).Action)
	case <-time.After(time.Second):
		t.Fatal("no OrderWriteFailed event")
	}
}

func TestStaleStoreRefusesActions(t *testing.T) {
	s := newStack(t)
	sellerWallet := ledgertest.NewWallet("seller")
	s.ledger.MintTo(sellerWallet.Key, s.mint)
	seller := s.session(t, sellerWallet, nil)

	seller.Store().MarkStale()
	_, err := seller.List(s.ctx, s.mint, 1)
	assert.ErrorIs(t, err, ErrResyncRequired)
	assert.Equal(t, 0, s.ledger.Calls(ledgertest.OpList))

	require.NoError(t, seller.Sync(s.ctx))
	_, err = seller.List(s.ctx, s.mint, 1)
	assert.NoError(t, err)
}

func TestStoreCardsApplyFilter(t *testing.T) {
	s := newStack(t)
	sellerWallet := ledgertest.NewWallet("seller")
	s.ledger.MintTo(sellerWallet.Key, s.mint)
	seller := s.session(t, sellerWallet, nil)
	s.listed(t, seller)

	assert.Len(t, seller.Store().Cards(), 1)

	seller.Store().SetFilter(catalog.Filter{Statuses: []entity.ListingStatus{entity.ListingSold}})
	assert.Empty(t, seller.Store().Cards())
}
