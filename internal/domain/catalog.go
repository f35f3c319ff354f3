package domain

import "context"

// Rarity is an item rarity tier
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityVeryRare  Rarity = "very_rare"
	RarityLegendary Rarity = "legendary"
	RarityArtifact  Rarity = "artifact"
)

// Rarities lists every tier from most to least common
var Rarities = []Rarity{RarityCommon, RarityUncommon, RarityRare, RarityVeryRare, RarityLegendary, RarityArtifact}

// IsValid checks if the rarity is a known tier
func (r Rarity) IsValid() bool {
	for _, known := range Rarities {
		if r == known {
			return true
		}
	}
	return false
}

// CatalogItem is an item definition the shop can stock
type CatalogItem struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Category    string `json:"category" yaml:"category"`
	Rarity      Rarity `json:"rarity" yaml:"rarity"`
	Price       Amount `json:"price" yaml:"price"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// CatalogLookup resolves item definitions
type CatalogLookup interface {
	// GetCatalogItem returns ErrItemNotFound when id is unknown
	GetCatalogItem(ctx context.Context, id string) (*CatalogItem, error)

	// ListCatalogItems returns items matching category and rarity; empty values match everything
	ListCatalogItems(ctx context.Context, category string, rarity Rarity) ([]CatalogItem, error)

	// Categories returns every category present in the catalog
	Categories(ctx context.Context) ([]string, error)
}

// SellableItem is an item a character holds and may sell
type SellableItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    Amount `json:"price"`
	Category string `json:"category,omitempty"`
	Rarity   Rarity `json:"rarity,omitempty"`
}

// InventoryExtractor discovers what a character can sell
type InventoryExtractor interface {
	ExtractSellableItems(ctx context.Context, characterID string) ([]SellableItem, error)
}
