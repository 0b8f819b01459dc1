package session

import (
	"sync"

	"github.com/ZilDuck/solana-card-market/internal/catalog"
	"github.com/ZilDuck/solana-card-market/internal/collection"
	"github.com/ZilDuck/solana-card-market/internal/entity"
)

// Store holds the latest snapshots of one session. Snapshots are replaced wholesale and
// never edited in place.
type Store struct {
	mu         sync.RWMutex
	catalog    *catalog.Snapshot
	collection *collection.Snapshot
	filter     catalog.Filter
	stale      bool
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Catalog() *catalog.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

func (s *Store) Collection() *collection.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection
}

func (s *Store) Replace(c *catalog.Snapshot, col *collection.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog = c
	s.collection = col
	s.stale = false
}

func (s *Store) MarkStale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale = true
}

// Stale reports that the snapshots are known to be wrong and must be rebuilt before the
// next action.
func (s *Store) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

func (s *Store) SetFilter(f catalog.Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = f
}

func (s *Store) Filter() catalog.Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

// Cards is the catalog with the active filter applied.
func (s *Store) Cards() []entity.CardView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog.Filter(s.filter)
}
