package catalog

import (
	"encoding/binary"
	"hash/fnv"
	"strings"

	"github.com/ZilDuck/solana-card-market/internal/entity"
	"github.com/gagliardetto/solana-go"
)

var rarities = []entity.Rarity{
	entity.RarityCommon,
	entity.RarityUncommon,
	entity.RarityRare,
	entity.RarityEpic,
	entity.RarityLegendary,
}

// RarityOf reads the rarity trait. Price is never used as a proxy.
func RarityOf(md entity.Metadata) entity.Rarity {
	attr, ok := md.GetAttribute("rarity")
	if !ok {
		return entity.DefaultRarity
	}

	value := strings.TrimSpace(attr.String())
	for _, r := range rarities {
		if strings.EqualFold(value, string(r)) {
			return r
		}
	}

	return entity.DefaultRarity
}

// CollectionOf buckets a mint by a hash of its trailing four bytes.
func CollectionOf(mint solana.PublicKey) entity.Collection {
	h := fnv.New32a()
	_, _ = h.Write(mint[len(mint)-4:])

	return entity.Collection(h.Sum32() % entity.CollectionCount)
}

// LayoutOf is a small offset that is stable for a listing across syncs.
func LayoutOf(listing solana.PublicKey) entity.Layout {
	h := fnv.New64a()
	_, _ = h.Write(listing[:])
	sum := h.Sum64()

	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], sum)

	return entity.Layout{
		Rotation: int(b[0]%7) - 3,
		OffsetX:  int(b[1]%9) - 4,
		OffsetY:  int(b[2]%9) - 4,
	}
}

func cardView(listing entity.Listing, md entity.Metadata) entity.CardView {
	return entity.CardView{
		Listing:    listing,
		Metadata:   md,
		Rarity:     RarityOf(md),
		Collection: CollectionOf(listing.NftMint),
		Layout:     LayoutOf(listing.Address),
	}
}
