// Package session wires a wallet to the marketplace actions. Every action is guarded
// against duplicate submission, classified on failure, and followed by a fresh sync.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ZilDuck/solana-card-market/internal/catalog"
	"github.com/ZilDuck/solana-card-market/internal/collection"
	"github.com/ZilDuck/solana-card-market/internal/entity"
	"github.com/ZilDuck/solana-card-market/internal/event"
	"github.com/ZilDuck/solana-card-market/internal/failure"
	"github.com/ZilDuck/solana-card-market/internal/ledger"
	"github.com/ZilDuck/solana-card-market/internal/market"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

var (
	ErrActionInFlight = errors.New("action already in flight")
	ErrResyncRequired = errors.New("state is stale, sync before retrying")
	ErrNoOrders       = errors.New("order api not configured")
)

type OrderLister interface {
	ListByWallet(ctx context.Context, wallet string, role entity.OrderRole) ([]entity.Order, error)
}

type Deps struct {
	Listings   market.ListingManager
	Escrows    market.EscrowOrchestrator
	Catalog    catalog.Syncer
	Collection collection.Syncer
	Orders     OrderLister
	Events     *event.Manager
}

type Session struct {
	wallet ledger.Wallet
	store  *Store
	deps   Deps

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(wallet ledger.Wallet, store *Store, deps Deps) *Session {
	if deps.Events == nil {
		deps.Events = event.NewManager()
	}
	return &Session{
		wallet:   wallet,
		store:    store,
		deps:     deps,
		inflight: map[string]struct{}{},
	}
}

func (s *Session) Store() *Store {
	return s.store
}

func (s *Session) Events() *event.Manager {
	return s.deps.Events
}

func (s *Session) Wallet() solana.PublicKey {
	return s.wallet.PublicKey()
}

// Sync rebuilds both snapshots and replaces them in the store.
func (s *Session) Sync(ctx context.Context) error {
	snapshot, err := s.deps.Catalog.Sync(ctx)
	if err != nil {
		return failure.Classify(fmt.Errorf("sync catalog: %w", err))
	}
	owned, err := s.deps.Collection.Refresh(ctx, s.Wallet())
	if err != nil {
		return failure.Classify(fmt.Errorf("sync collection: %w", err))
	}

	s.store.Replace(snapshot, owned)
	s.deps.Events.EmitEvent(event.SnapshotReplaced, snapshot)

	return nil
}

func (s *Session) List(ctx context.Context, mint solana.PublicKey, price uint64) (*market.ListResult, error) {
	var res *market.ListResult
	err := s.run(ctx, "list", mint.String(), func() (err error) {
		res, err = s.deps.Listings.List(ctx, s.wallet, mint, price)
		return err
	})
	return res, err
}

// Delist only accepts a listing the current snapshot shows as Active and owned by the wallet.
func (s *Session) Delist(ctx context.Context, listing solana.PublicKey) (solana.Signature, error) {
	var sig solana.Signature
	err := s.run(ctx, "delist", listing.String(), func() error {
		card, ok := s.store.Catalog().Find(listing.String())
		if !ok || !card.Listing.IsActive() {
			return &market.PreconditionError{Reason: listing.String(), Err: market.ErrListingNotActive}
		}

		var err error
		sig, err = s.deps.Listings.Delist(ctx, s.wallet, card.Listing)
		return err
	})
	return sig, err
}

func (s *Session) Purchase(ctx context.Context, listing solana.PublicKey, contact entity.Contact) (*market.PurchaseResult, error) {
	var res *market.PurchaseResult
	err := s.run(ctx, "purchase", listing.String(), func() error {
		card, ok := s.store.Catalog().Find(listing.String())
		if !ok {
			return &market.PreconditionError{Reason: listing.String(), Err: market.ErrListingNotActive}
		}

		var err error
		res, err = s.deps.Escrows.Purchase(ctx, s.wallet, card.Listing, contact)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.deps.Events.EmitEvent(event.PurchaseConfirmed, *res)
	s.orderFailed(listing, "purchase", res.OrderErr)

	return res, nil
}

func (s *Session) Release(ctx context.Context, listing solana.PublicKey) (*market.ReleaseResult, error) {
	var res *market.ReleaseResult
	err := s.run(ctx, "release", listing.String(), func() (err error) {
		res, err = s.deps.Escrows.ReleaseEscrow(ctx, s.wallet, listing)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.deps.Events.EmitEvent(event.EscrowReleased, *res)
	s.orderFailed(listing, "release", res.OrderErr)

	return res, nil
}

func (s *Session) Refund(ctx context.Context, listing solana.PublicKey) (*market.RefundResult, error) {
	var res *market.RefundResult
	err := s.run(ctx, "refund", listing.String(), func() (err error) {
		res, err = s.deps.Escrows.Refund(ctx, s.wallet, listing)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.deps.Events.EmitEvent(event.EscrowRefunded, *res)

	return res, nil
}

// ListMany and DelistMany resync even after a partial failure; the committed items are real.
func (s *Session) ListMany(ctx context.Context, mints []solana.PublicKey, price uint64) ([]solana.Signature, error) {
	var sigs []solana.Signature
	err := s.run(ctx, "list", batchKey(mints), func() (err error) {
		sigs, err = s.deps.Collection.ListMany(ctx, s.wallet, mints, price)
		return err
	})
	return sigs, err
}

func (s *Session) DelistMany(ctx context.Context, mints []solana.PublicKey) ([]solana.Signature, error) {
	var sigs []solana.Signature
	err := s.run(ctx, "delist", batchKey(mints), func() (err error) {
		sigs, err = s.deps.Collection.DelistMany(ctx, s.wallet, mints)
		return err
	})
	return sigs, err
}

func (s *Session) Orders(ctx context.Context, role entity.OrderRole) ([]entity.Order, error) {
	if s.deps.Orders == nil {
		return nil, ErrNoOrders
	}
	return s.deps.Orders.ListByWallet(ctx, s.Wallet().String(), role)
}

// run guards, submits and resyncs. Preconditions come back unclassified; everything else
// is a *failure.Failure.
func (s *Session) run(ctx context.Context, action, target string, submit func() error) error {
	release, err := s.acquire(action, target)
	if err != nil {
		return err
	}
	defer release()

	if s.store.Stale() {
		return ErrResyncRequired
	}

	err = submit()
	if err != nil && market.IsPrecondition(err) {
		var batchErr *collection.BatchError
		if !errors.As(err, &batchErr) || batchErr.Index == 0 {
			return err
		}
	}

	var classified *failure.Failure
	if err != nil {
		classified = failure.Classify(err)
		if classified.NeedsResync() {
			s.store.MarkStale()
		}
	}

	if ctx.Err() != nil {
		// the caller is gone; whatever was submitted stands, the result is discarded
		s.store.MarkStale()
		if classified != nil {
			return classified
		}
		return ctx.Err()
	}

	if syncErr := s.Sync(ctx); syncErr != nil {
		s.store.MarkStale()
		zap.L().With(zap.Error(syncErr), zap.String("action", action)).Warn("Session: Resync failed")
	}

	if classified != nil {
		return classified
	}
	return nil
}

func (s *Session) acquire(action, target string) (func(), error) {
	key := action + ":" + target

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inflight[key]; ok {
		return nil, fmt.Errorf("%w: %s %s", ErrActionInFlight, action, target)
	}
	s.inflight[key] = struct{}{}

	return func() {
		s.mu.Lock()
		delete(s.inflight, key)
		s.mu.Unlock()
	}, nil
}

func (s *Session) orderFailed(listing solana.PublicKey, action string, err error) {
	if err == nil {
		return
	}
	s.deps.Events.EmitEvent(event.OrderWriteFailed, event.OrderFailure{
		Listing: listing.String(),
		Action:  action,
		Err:     err,
	})
}

func batchKey(mints []solana.PublicKey) string {
	key := "batch"
	for _, m := range mints {
		key += ":" + m.String()
	}
	return key
}
