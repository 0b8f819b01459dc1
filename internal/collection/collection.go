// Package collection aggregates what one wallet owns or has on sale and runs batch list and
// delist operations for it.
package collection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ZilDuck/solana-card-market/internal/address"
	"github.com/ZilDuck/solana-card-market/internal/entity"
	"github.com/ZilDuck/solana-card-market/internal/ledger"
	"github.com/ZilDuck/solana-card-market/internal/market"
	"github.com/ZilDuck/solana-card-market/internal/metadata"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// Item is one asset of the wallet. Listing is nil while the asset is Unlisted.
type Item struct {
	Mint     solana.PublicKey
	Status   entity.ListingStatus
	Listing  *entity.Listing
	Metadata entity.Metadata
}

type Snapshot struct {
	Wallet   solana.PublicKey
	Items    []Item
	SyncedAt time.Time
}

func (s *Snapshot) Find(mint solana.PublicKey) (Item, bool) {
	if s == nil {
		return Item{}, false
	}
	for _, item := range s.Items {
		if item.Mint.Equals(mint) {
			return item, true
		}
	}
	return Item{}, false
}

// BatchError names the item that stopped a batch. Items before Index are committed.
type BatchError struct {
	Index     int
	Mint      solana.PublicKey
	Committed []solana.Signature
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("item %d (%s) failed after %d committed: %s", e.Index, e.Mint, len(e.Committed), e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

type Syncer interface {
	Refresh(ctx context.Context, wallet solana.PublicKey) (*Snapshot, error)
	ListMany(ctx context.Context, w ledger.Wallet, mints []solana.PublicKey, price uint64) ([]solana.Signature, error)
	DelistMany(ctx context.Context, w ledger.Wallet, mints []solana.PublicKey) ([]solana.Signature, error)
}

type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

type syncer struct {
	reader   ledger.Reader
	deriver  address.Deriver
	resolver metadata.Resolver
	listings market.ListingManager
	retry    RetryPolicy
	now      func() time.Time
}

func NewSyncer(reader ledger.Reader, deriver address.Deriver, resolver metadata.Resolver, listings market.ListingManager, retry RetryPolicy) Syncer {
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}
	return syncer{reader, deriver, resolver, listings, retry, time.Now}
}

// Refresh retries the whole aggregation with a fixed backoff, independent of any
// transaction's own failure handling. Cancellation stops it.
func (s syncer) Refresh(ctx context.Context, wallet solana.PublicKey) (*Snapshot, error) {
	var err error
	for attempt := 1; attempt <= s.retry.Attempts; attempt++ {
		var snapshot *Snapshot
		snapshot, err = s.aggregate(ctx, wallet)
		if err == nil {
			return snapshot, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		zap.L().With(
			zap.Error(err),
			zap.String("wallet", wallet.String()),
			zap.Int("attempt", attempt),
		).Warn("CollectionSync: Refresh failed")

		if attempt == s.retry.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.retry.Backoff):
		}
	}

	return nil, fmt.Errorf("refresh collection after %d attempts: %w", s.retry.Attempts, err)
}

func (s syncer) aggregate(ctx context.Context, wallet solana.PublicKey) (*Snapshot, error) {
	holdings, err := s.reader.Holdings(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("fetch holdings: %w", err)
	}
	listings, err := s.reader.Listings(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch listings: %w", err)
	}

	items := make([]Item, 0, len(holdings))
	for _, h := range holdings {
		if h.Amount == 0 {
			continue
		}
		items = append(items, Item{Mint: h.Mint, Status: entity.ListingUnlisted})
	}

	for i := range listings {
		listing := listings[i]
		if !listing.Owner.Equals(wallet) {
			continue
		}
		if listing.Status == entity.ListingSold {
			exists, err := s.reader.AccountExists(ctx, s.deriver.Escrow(listing.Address))
			if err != nil {
				return nil, fmt.Errorf("check escrow of %s: %w", listing.Address, err)
			}
			if !exists {
				continue
			}
		}
		items = append(items, Item{Mint: listing.NftMint, Status: listing.Status, Listing: &listing})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Mint.String() < items[j].Mint.String()
	})

	targets := make([]metadata.Target, len(items))
	for i, item := range items {
		targets[i] = metadata.Target{Key: item.Mint, Mint: item.Mint}
	}
	for i, md := range s.resolver.ResolveAll(ctx, targets) {
		items[i].Metadata = md
	}

	return &Snapshot{Wallet: wallet, Items: items, SyncedAt: s.now().UTC()}, nil
}

// ListMany lists each mint in order, one transaction at a time, and stops at the first
// failure.
func (s syncer) ListMany(ctx context.Context, w ledger.Wallet, mints []solana.PublicKey, price uint64) ([]solana.Signature, error) {
	return s.batch(ctx, "ListMany", mints, func(mint solana.PublicKey) (solana.Signature, error) {
		res, err := s.listings.List(ctx, w, mint, price)
		if err != nil {
			return solana.Signature{}, err
		}
		return res.Signature, nil
	})
}

// DelistMany delists each mint in order and stops at the first failure.
func (s syncer) DelistMany(ctx context.Context, w ledger.Wallet, mints []solana.PublicKey) ([]solana.Signature, error) {
	return s.batch(ctx, "DelistMany", mints, func(mint solana.PublicKey) (solana.Signature, error) {
		listing, err := s.reader.Listing(ctx, s.deriver.Listing(s.listings.Marketplace(), mint))
		if err != nil {
			if errors.Is(err, ledger.ErrAccountNotFound) {
				return solana.Signature{}, &market.PreconditionError{Reason: mint.String(), Err: market.ErrListingNotActive}
			}
			return solana.Signature{}, err
		}
		return s.listings.Delist(ctx, w, *listing)
	})
}

func (s syncer) batch(ctx context.Context, name string, mints []solana.PublicKey, submit func(solana.PublicKey) (solana.Signature, error)) ([]solana.Signature, error) {
	committed := make([]solana.Signature, 0, len(mints))

	for i, mint := range mints {
		if err := ctx.Err(); err != nil {
			return committed, &BatchError{Index: i, Mint: mint, Committed: committed, Err: err}
		}

		sig, err := submit(mint)
		if err != nil {
			zap.L().With(
				zap.Error(err),
				zap.Int("index", i),
				zap.String("mint", mint.String()),
				zap.Int("committed", len(committed)),
			).Warn("CollectionSync: " + name + " stopped")
			return committed, &BatchError{Index: i, Mint: mint, Committed: committed, Err: err}
		}

		committed = append(committed, sig)
	}

	zap.L().With(zap.Int("count", len(committed))).Info("CollectionSync: " + name + " complete")

	return committed, nil
}
