// Package catalog loads the item catalog and stock generation presets from YAML.
package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/tabletop-shop/shop-engine/internal/domain"
)

//go:embed schema.json
var schemaJSON []byte

//go:embed data/catalog.yaml
var defaultCatalog []byte

const schemaURL = "catalog.schema.json"

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func catalogSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			compileErr = fmt.Errorf("failed to parse catalog schema: %w", err)
			return
		}

		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, doc); err != nil {
			compileErr = fmt.Errorf("failed to add catalog schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile(schemaURL)
	})
	return compiled, compileErr
}

type fileItem struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Category    string        `yaml:"category"`
	Rarity      domain.Rarity `yaml:"rarity"`
	Price       string        `yaml:"price"`
	Description string        `yaml:"description"`
}

type fileDocument struct {
	Version string                              `yaml:"version"`
	Items   []fileItem                          `yaml:"items"`
	Presets map[string]domain.GenerationOptions `yaml:"presets"`
}

// Store is an in-memory catalog. It implements domain.CatalogLookup and
// the application's preset source.
type Store struct {
	items      []domain.CatalogItem
	byID       map[string]int
	categories []string
	presets    map[string]domain.GenerationOptions
}

// Default returns the catalog bundled with the service
func Default() (*Store, error) {
	return Parse(defaultCatalog)
}

// Load reads the catalog at path, or the bundled catalog when path is empty
func Load(path string) (*Store, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates a YAML catalog document against the catalog schema and builds a Store
func Parse(data []byte) (*Store, error) {
	if err := validate(data); err != nil {
		return nil, err
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	store := &Store{
		items:   make([]domain.CatalogItem, 0, len(doc.Items)),
		byID:    make(map[string]int, len(doc.Items)),
		presets: make(map[string]domain.GenerationOptions, len(doc.Presets)),
	}

	seenCategory := make(map[string]bool)
	for _, fi := range doc.Items {
		if _, dup := store.byID[fi.ID]; dup {
			return nil, fmt.Errorf("duplicate catalog item %q", fi.ID)
		}

		price, err := domain.ParseAmount(fi.Price)
		if err != nil {
			return nil, fmt.Errorf("catalog item %q: %w", fi.ID, err)
		}

		store.byID[fi.ID] = len(store.items)
		store.items = append(store.items, domain.CatalogItem{
			ID:          fi.ID,
			Name:        fi.Name,
			Category:    fi.Category,
			Rarity:      fi.Rarity,
			Price:       price,
			Description: fi.Description,
		})

		if !seenCategory[fi.Category] {
			seenCategory[fi.Category] = true
			store.categories = append(store.categories, fi.Category)
		}
	}

	for name, opts := range doc.Presets {
		if opts.QuantityDice != "" {
			if _, err := domain.ParseDice(opts.QuantityDice); err != nil {
				return nil, fmt.Errorf("preset %q: %w", name, err)
			}
		}
		store.presets[strings.ToLower(name)] = opts
	}

	return store, nil
}

// validate checks the YAML document against the embedded JSON schema.
// YAML is round-tripped through JSON so the validator sees plain JSON values.
func validate(data []byte) error {
	schema, err := catalogSchema()
	if err != nil {
		return err
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse catalog: %w", err)
	}
	asJSON, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to convert catalog: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(asJSON))
	if err != nil {
		return fmt.Errorf("failed to convert catalog: %w", err)
	}

	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("catalog does not match schema: %w", err)
	}
	return nil
}

// GetCatalogItem returns domain.ErrItemNotFound when id is unknown
func (s *Store) GetCatalogItem(ctx context.Context, id string) (*domain.CatalogItem, error) {
	idx, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrItemNotFound, id)
	}
	item := s.items[idx]
	return &item, nil
}

// ListCatalogItems returns items matching category and rarity. Empty values match everything.
func (s *Store) ListCatalogItems(ctx context.Context, category string, rarity domain.Rarity) ([]domain.CatalogItem, error) {
	var out []domain.CatalogItem
	for _, item := range s.items {
		if category != "" && !strings.EqualFold(item.Category, category) {
			continue
		}
		if rarity != "" && item.Rarity != rarity {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

// Categories returns categories in the order they first appear in the file
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	return append([]string(nil), s.categories...), nil
}

// Preset returns the named generation preset; names are case-insensitive
func (s *Store) Preset(name string) (domain.GenerationOptions, bool) {
	opts, ok := s.presets[strings.ToLower(name)]
	if !ok {
		return domain.GenerationOptions{}, false
	}

	opts.Categories = append([]string(nil), opts.Categories...)
	weights := make(map[domain.Rarity]float64, len(opts.RarityWeights))
	for r, w := range opts.RarityWeights {
		weights[r] = w
	}
	opts.RarityWeights = weights
	return opts, true
}

// PresetNames lists the configured presets alphabetically
func (s *Store) PresetNames() []string {
	names := make([]string, 0, len(s.presets))
	for name := range s.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of catalog items
func (s *Store) Len() int {
	return len(s.items)
}
