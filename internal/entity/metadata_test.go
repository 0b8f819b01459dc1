package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetAttributeIgnoresCase(t *testing.T) {
	md := Metadata{Attributes: []Attribute{
		{TraitType: "Power", Value: 9.0},
		{TraitType: " Rarity ", Value: "rare"},
	}}

	attr, ok := md.GetAttribute("rarity")
	assert.True(t, ok)
	assert.Equal(t, "rare", attr.String())

	attr, ok = md.GetAttribute("power")
	assert.True(t, ok)
	assert.Equal(t, "9", attr.String())

	_, ok = md.GetAttribute("missing")
	assert.False(t, ok)
}

func TestCardSlug(t *testing.T) {
	assert.Equal(t, "card-fire-drake-9xqewvg8", CreateCardSlug("Fire Drake", "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"))
}

func TestParseListingStatus(t *testing.T) {
	s, err := ParseListingStatus(" Sold ")
	assert.NoError(t, err)
	assert.Equal(t, ListingSold, s)

	_, err = ParseListingStatus("gone")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}
