package entity

import (
	"fmt"

	"github.com/gosimple/slug"
)

type Rarity string

const (
	RarityCommon    Rarity = "Common"
	RarityUncommon  Rarity = "Uncommon"
	RarityRare      Rarity = "Rare"
	RarityEpic      Rarity = "Epic"
	RarityLegendary Rarity = "Legendary"

	DefaultRarity = RarityCommon
)

// Collection is one of four display buckets.
type Collection uint8

const (
	CollectionAlpha Collection = iota
	CollectionBeta
	CollectionGamma
	CollectionDelta
)

const CollectionCount = 4

func (c Collection) String() string {
	switch c {
	case CollectionAlpha:
		return "Alpha"
	case CollectionBeta:
		return "Beta"
	case CollectionGamma:
		return "Gamma"
	case CollectionDelta:
		return "Delta"
	default:
		return "Unknown"
	}
}

// Layout is a small, stable visual offset for a card.
type Layout struct {
	Rotation int `json:"rotation"`
	OffsetX  int `json:"offsetX"`
	OffsetY  int `json:"offsetY"`
}

// CardView is rebuilt on every sync and never persisted.
type CardView struct {
	Listing    Listing    `json:"listing"`
	Metadata   Metadata   `json:"metadata"`
	Rarity     Rarity     `json:"rarity"`
	Collection Collection `json:"collection"`
	Layout     Layout     `json:"layout"`
}

func (c CardView) Slug() string {
	return CreateCardSlug(c.Metadata.Name, c.Listing.Address.String())
}

func CreateCardSlug(name, listing string) string {
	if len(listing) > 8 {
		listing = listing[:8]
	}
	return slug.Make(fmt.Sprintf("card-%s-%s", name, listing))
}
