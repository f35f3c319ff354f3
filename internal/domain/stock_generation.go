package domain

import (
	"context"
	"fmt"
)

// DefaultQuantityDice is used when generation options leave the roll empty
const DefaultQuantityDice = "1d4"

// GenerationOptions controls random stock generation
type GenerationOptions struct {
	Count         int                `json:"count" yaml:"count"`
	Categories    []string           `json:"categories,omitempty" yaml:"categories"`
	RarityWeights map[Rarity]float64 `json:"rarityWeights" yaml:"rarityWeights"`
	QuantityDice  string             `json:"quantityDice,omitempty" yaml:"quantityDice"`
}

// GeneratedItem is one coalesced generation result
type GeneratedItem struct {
	Item     CatalogItem `json:"item"`
	Quantity int         `json:"quantity"`
	MaxStock int         `json:"maxStock"`
}

// StockGenerator draws random stock from a catalog
type StockGenerator struct {
	catalog CatalogLookup
	rng     Rand
}

// NewStockGenerator creates a generator over catalog using rng
func NewStockGenerator(catalog CatalogLookup, rng Rand) *StockGenerator {
	return &StockGenerator{catalog: catalog, rng: rng}
}

type weightedRarity struct {
	rarity Rarity
	weight float64
}

func normalizeWeights(weights map[Rarity]float64) ([]weightedRarity, float64) {
	var table []weightedRarity
	total := 0.0
	for _, r := range Rarities {
		if w := weights[r]; w > 0 {
			table = append(table, weightedRarity{rarity: r, weight: w})
			total += w
		}
	}
	return table, total
}

// pickRarity selects a rarity with probability proportional to its weight
func pickRarity(table []weightedRarity, total float64, rng Rand) Rarity {
	target := rng.Float64() * total
	for _, entry := range table {
		if target < entry.weight {
			return entry.rarity
		}
		target -= entry.weight
	}
	return table[len(table)-1].rarity
}

// Generate performs opts.Count draws. Each draw picks a rarity by weight, a
// category uniformly and then a matching catalog item uniformly; quantity
// comes from opts.QuantityDice. Repeated items are coalesced in first-draw
// order. When draws were requested but nothing in the catalog matched,
// the empty result is returned together with ErrCatalogEmpty.
func (g *StockGenerator) Generate(ctx context.Context, opts GenerationOptions) ([]GeneratedItem, error) {
	if opts.Count <= 0 {
		return []GeneratedItem{}, nil
	}

	dice := opts.QuantityDice
	if dice == "" {
		dice = DefaultQuantityDice
	}
	roll, err := ParseDice(dice)
	if err != nil {
		return nil, err
	}

	table, total := normalizeWeights(opts.RarityWeights)
	if len(table) == 0 {
		return []GeneratedItem{}, fmt.Errorf("%w: no rarity has a positive weight", ErrCatalogEmpty)
	}

	categories := opts.Categories
	if len(categories) == 0 {
		categories, err = g.catalog.Categories(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list catalog categories: %w", err)
		}
	}
	if len(categories) == 0 {
		return []GeneratedItem{}, ErrCatalogEmpty
	}

	type poolKey struct {
		category string
		rarity   Rarity
	}
	pools := make(map[poolKey][]CatalogItem)

	var results []GeneratedItem
	index := make(map[string]int)
	matched := false

	for draw := 0; draw < opts.Count; draw++ {
		rarity := pickRarity(table, total, g.rng)
		category := categories[g.rng.IntN(len(categories))]

		key := poolKey{category: category, rarity: rarity}
		pool, cached := pools[key]
		if !cached {
			pool, err = g.catalog.ListCatalogItems(ctx, category, rarity)
			if err != nil {
				return nil, fmt.Errorf("failed to list catalog items: %w", err)
			}
			pools[key] = pool
		}
		if len(pool) == 0 {
			continue
		}
		matched = true

		item := pool[g.rng.IntN(len(pool))]
		quantity := roll.Roll(g.rng)
		if quantity == 0 {
			continue
		}

		if i, ok := index[item.ID]; ok {
			results[i].Quantity += quantity
			results[i].MaxStock += quantity
			continue
		}
		index[item.ID] = len(results)
		results = append(results, GeneratedItem{Item: item, Quantity: quantity, MaxStock: quantity})
	}

	if !matched {
		return []GeneratedItem{}, ErrCatalogEmpty
	}
	if results == nil {
		results = []GeneratedItem{}
	}
	return results, nil
}
