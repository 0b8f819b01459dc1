package collection

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZilDuck/solana-card-market/internal/address"
	"github.com/ZilDuck/solana-card-market/internal/entity"
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

type fixture struct {
	ctx      context.Context
	deriver  address.Deriver
	ledger   *ledgertest.Ledger
	resolver metadata.Resolver
	listings market.ListingManager
	escrows  market.EscrowOrchestrator
	seller   *ledgertest.Wallet
	buyer    *ledgertest.Wallet
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	deriver := address.NewDeriver(solana.PublicKeyFromBytes(bytes.Repeat([]byte{7}, 32)), solana.TokenMetadataProgramID)
	l := ledgertest.New(deriver)
	authority := ledgertest.NewWallet("authority")

	client := retryablehttp.NewClient()
	client.Logger = nil

	f := &fixture{
		ctx:      context.Background(),
		deriver:  deriver,
		ledger:   l,
		resolver: metadata.NewResolver(l, client, cache.New(time.Minute, time.Minute), rate.NewLimiter(rate.Inf, 1), metadata.Options{Concurrency: 2}),
		listings: market.NewListingManager(l, deriver, authority.Key),
		escrows:  market.NewEscrowOrchestrator(l, deriver, nil, authority.Key),
		seller:   ledgertest.NewWallet("seller"),
		buyer:    ledgertest.NewWallet("buyer"),
	}

	_, err := market.InitializeMarketplace(f.ctx, l, deriver, authority, 0)
	require.NoError(t, err)
	l.Fund(f.buyer.Key, 100*entity.LamportsPerSol)

	return f
}

func (f *fixture) syncer() Syncer {
	return NewSyncer(f.ledger, f.deriver, f.resolver, f.listings, RetryPolicy{Attempts: 3, Backoff: time.Millisecond})
}

func (f *fixture) mint(names ...string) []solana.PublicKey {
	mints := make([]solana.PublicKey, len(names))
	for i, name := range names {
		mints[i] = ledgertest.Key(name)
		f.ledger.MintTo(f.seller.Key, mints[i])
	}
	return mints
}

func TestListManyStopsAtFirstFailure(t *testing.T) {
	f := newFixture(t)
	mints := f.mint("a", "b", "c")
	boom := errors.New("Transaction simulation failed")
	f.ledger.FailCall(ledgertest.OpList, 2, boom)

	sigs, err := f.syncer().ListMany(f.ctx, f.seller, mints, entity.LamportsPerSol)

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 1, batchErr.Index)
	assert.Equal(t, mints[1], batchErr.Mint)
	assert.Contains(t, err.Error(), mints[1].String())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, sigs, 1)
	assert.Equal(t, sigs, batchErr.Committed)

	assert.Equal(t, 2, f.ledger.Calls(ledgertest.OpList))

	a, err := f.ledger.Listing(f.ctx, f.deriver.Listing(f.listings.Marketplace(), mints[0]))
	require.NoError(t, err)
	assert.Equal(t, entity.ListingActive, a.Status)
	assert.Equal(t, uint64(1), f.ledger.TokenBalance(f.seller.Key, mints[1]))
	assert.Equal(t, uint64(1), f.ledger.TokenBalance(f.seller.Key, mints[2]))
}

func TestDelistMany(t *testing.T) {
	f := newFixture(t)
	mints := f.mint("a", "b")
	s := f.syncer()
	_, err := s.ListMany(f.ctx, f.seller, mints, 5)
	require.NoError(t, err)

	sigs, err := s.DelistMany(f.ctx, f.seller, mints)

	require.NoError(t, err)
	assert.Len(t, sigs, 2)
	for _, mint := range mints {
		assert.Equal(t, uint64(1), f.ledger.TokenBalance(f.seller.Key, mint))
	}

	_, err = s.DelistMany(f.ctx, f.seller, mints[:1])
	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 0, batchErr.Index)
	assert.ErrorIs(t, err, market.ErrListingNotActive)
}

func TestRefreshAggregatesStatuses(t *testing.T) {
	f := newFixture(t)
	mints := f.mint("held", "listed", "sold", "released")
	s := f.syncer()
	_, err := s.ListMany(f.ctx, f.seller, mints[1:], 5)
	require.NoError(t, err)

	for _, mint := range mints[2:] {
		listing, err := f.ledger.Listing(f.ctx, f.deriver.Listing(f.listings.Marketplace(), mint))
		require.NoError(t, err)
		_, err = f.escrows.Purchase(f.ctx, f.buyer, *listing, entity.Contact{Email: "b@example.com"})
		require.NoError(t, err)
	}
	_, err = f.escrows.ReleaseEscrow(f.ctx, f.seller, f.deriver.Listing(f.listings.Marketplace(), mints[3]))
	require.NoError(t, err)

	snapshot, err := s.Refresh(f.ctx, f.seller.Key)
	require.NoError(t, err)

	require.Len(t, snapshot.Items, 3)
	want := map[solana.PublicKey]entity.ListingStatus{
		mints[0]: entity.ListingUnlisted,
		mints[1]: entity.ListingActive,
		mints[2]: entity.ListingSold,
	}
	for mint, status := range want {
		item, ok := snapshot.Find(mint)
		require.True(t, ok)
		assert.Equal(t, status, item.Status)
		assert.True(t, item.Metadata.Placeholder)
	}
	_, ok := snapshot.Find(mints[3])
	assert.False(t, ok)

	bought, err := s.Refresh(f.ctx, f.buyer.Key)
	require.NoError(t, err)
	item, ok := bought.Find(mints[3])
	require.True(t, ok)
	assert.Equal(t, entity.ListingUnlisted, item.Status)
}

type flakyReader struct {
	*ledgertest.Ledger
	fails int32
	calls int32
}

func (r *flakyReader) Holdings(ctx context.Context, owner solana.PublicKey) ([]entity.Holding, error) {
	if atomic.AddInt32(&r.calls, 1) <= r.fails {
		return nil, errors.New("connection reset by peer")
	}
	return r.Ledger.Holdings(ctx, owner)
}

func TestRefreshRetries(t *testing.T) {
	f := newFixture(t)
	f.mint("a")

	reader := &flakyReader{Ledger: f.ledger, fails: 2}
	s := NewSyncer(reader, f.deriver, f.resolver, f.listings, RetryPolicy{Attempts: 3, Backoff: time.Millisecond})

	snapshot, err := s.Refresh(f.ctx, f.seller.Key)

	require.NoError(t, err)
	assert.Len(t, snapshot.Items, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&reader.calls))
}

func TestRefreshGivesUp(t *testing.T) {
	f := newFixture(t)

	reader := &flakyReader{Ledger: f.ledger, fails: 10}
	s := NewSyncer(reader, f.deriver, f.resolver, f.listings, RetryPolicy{Attempts: 3, Backoff: time.Millisecond})

	_, err := s.Refresh(f.ctx, f.seller.Key)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), atomic.LoadInt32(&reader.calls))
}
