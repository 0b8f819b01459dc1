// Package catalog builds the marketplace snapshot: every live listing reconciled against its
// escrow, with resolved metadata and derived display attributes.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ZilDuck/solana-card-market/internal/address"
	"github.com/ZilDuck/solana-card-market/internal/entity"
	"github.com/ZilDuck/solana-card-market/internal/ledger"
	"github.com/ZilDuck/solana-card-market/internal/metadata"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Snapshot replaces the previous one wholesale; it is never patched.
type Snapshot struct {
	Cards    []entity.CardView
	Released int
	SyncedAt time.Time
}

func (s *Snapshot) Filter(f Filter) []entity.CardView {
	if s == nil {
		return nil
	}
	return f.Apply(s.Cards)
}

// Find returns the card for a listing address.
func (s *Snapshot) Find(listing string) (entity.CardView, bool) {
	if s == nil {
		return entity.CardView{}, false
	}
	for _, card := range s.Cards {
		if card.Listing.Address.String() == listing {
			return card, true
		}
	}
	return entity.CardView{}, false
}

type Syncer interface {
	Sync(ctx context.Context) (*Snapshot, error)
}

type syncer struct {
	reader      ledger.Reader
	deriver     address.Deriver
	resolver    metadata.Resolver
	concurrency int
	now         func() time.Time
}

func NewSyncer(reader ledger.Reader, deriver address.Deriver, resolver metadata.Resolver, concurrency int) Syncer {
	if concurrency < 1 {
		concurrency = 1
	}
	return syncer{reader, deriver, resolver, concurrency, time.Now}
}

func (s syncer) Sync(ctx context.Context) (*Snapshot, error) {
	listings, err := s.reader.Listings(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch listings: %w", err)
	}

	live, err := s.reconcile(ctx, listings)
	if err != nil {
		return nil, err
	}

	targets := make([]metadata.Target, len(live))
	for i, listing := range live {
		targets[i] = metadata.Target{Key: listing.Address, Mint: listing.NftMint}
	}
	docs := s.resolver.ResolveAll(ctx, targets)

	cards := make([]entity.CardView, len(live))
	for i, listing := range live {
		cards[i] = cardView(listing, docs[i])
	}
	sort.SliceStable(cards, func(i, j int) bool {
		return cards[i].Listing.CreatedAt.After(cards[j].Listing.CreatedAt)
	})

	snapshot := &Snapshot{
		Cards:    cards,
		Released: len(listings) - len(live),
		SyncedAt: s.now().UTC(),
	}

	zap.L().With(
		zap.Int("listings", len(listings)),
		zap.Int("cards", len(cards)),
		zap.Int("released", snapshot.Released),
	).Info("CatalogSync: Snapshot built")

	return snapshot, nil
}

// reconcile drops Sold listings whose escrow is gone. Their status lags the release.
func (s syncer) reconcile(ctx context.Context, listings []entity.Listing) ([]entity.Listing, error) {
	var (
		mu       sync.Mutex
		released = map[int]bool{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, listing := range listings {
		if listing.Status != entity.ListingSold {
			continue
		}
		i, listing := i, listing
		g.Go(func() error {
			exists, err := s.reader.AccountExists(gctx, s.deriver.Escrow(listing.Address))
			if err != nil {
				return fmt.Errorf("check escrow of %s: %w", listing.Address, err)
			}
			if !exists {
				mu.Lock()
				released[i] = true
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	live := make([]entity.Listing, 0, len(listings))
	for i, listing := range listings {
		if released[i] {
			zap.L().With(zap.String("listing", listing.Address.String())).Debug("CatalogSync: Dropping released listing")
			continue
		}
		live = append(live, listing)
	}

	return live, nil
}
