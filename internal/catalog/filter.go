package catalog

import (
	"github.com/ZilDuck/solana-card-market/internal/entity"
)

// Filter selects cards. Options within a group are OR'ed, groups are AND'ed, and an empty
// group matches every card.
type Filter struct {
	Rarities    []entity.Rarity
	Collections []entity.Collection
	Statuses    []entity.ListingStatus
}

func (f Filter) Empty() bool {
	return len(f.Rarities) == 0 && len(f.Collections) == 0 && len(f.Statuses) == 0
}

func (f Filter) Match(card entity.CardView) bool {
	return anyOf(f.Rarities, card.Rarity) &&
		anyOf(f.Collections, card.Collection) &&
		anyOf(f.Statuses, card.Listing.Status)
}

// Apply keeps the order of cards.
func (f Filter) Apply(cards []entity.CardView) []entity.CardView {
	filtered := make([]entity.CardView, 0, len(cards))
	for _, card := range cards {
		if f.Match(card) {
			filtered = append(filtered, card)
		}
	}

	return filtered
}

func anyOf[T comparable](selected []T, value T) bool {
	if len(selected) == 0 {
		return true
	}
	for _, s := range selected {
		if s == value {
			return true
		}
	}

	return false
}
