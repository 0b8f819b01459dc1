package entity

import (
	"fmt"
	"strings"
)

// Metadata is the off-ledger JSON document describing an asset.
type Metadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Attributes  []Attribute `json:"attributes"`

	Placeholder bool `json:"-"`
}

type Attribute struct {
	TraitType string      `json:"trait_type"`
	Value     interface{} `json:"value"`
}

func (a Attribute) String() string {
	if a.Value == nil {
		return ""
	}
	return fmt.Sprintf("%v", a.Value)
}

// GetAttribute looks a trait up by name, ignoring case.
func (m Metadata) GetAttribute(traitType string) (Attribute, bool) {
	for _, attr := range m.Attributes {
		if strings.EqualFold(strings.TrimSpace(attr.TraitType), traitType) {
			return attr, true
		}
	}

	return Attribute{}, false
}
