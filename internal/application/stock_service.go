package application

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/tabletop-shop/shop-engine/internal/domain"
	apperrors "github.com/tabletop-shop/shop-engine/pkg/errors"
	"github.com/tabletop-shop/shop-engine/pkg/logging"
	"github.com/tabletop-shop/shop-engine/pkg/metrics"
)

// PresetSource resolves named stock generation presets
type PresetSource interface {
	Preset(name string) (domain.GenerationOptions, bool)
}

// StockService handles shop inventory use cases
type StockService struct {
	shops   domain.ShopRepository
	catalog domain.CatalogLookup
	presets PresetSource
	newRand func() domain.Rand
	locks   *keyedLocker
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewStockService creates a new StockService. presets may be nil.
func NewStockService(
	shops domain.ShopRepository,
	catalog domain.CatalogLookup,
	presets PresetSource,
	logger *logging.Logger,
	m *metrics.Metrics,
) *StockService {
	return &StockService{
		shops:   shops,
		catalog: catalog,
		presets: presets,
		newRand: func() domain.Rand { return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) },
		locks:   newKeyedLocker(),
		logger:  logger.WithComponent("stock-service"),
		metrics: m,
	}
}

func (s *StockService) load(ctx context.Context, shopID string) (*domain.Shop, error) {
	if shopID == "" {
		return nil, domain.ErrShopNotConfigured
	}
	shop, err := s.shops.FindByID(ctx, shopID)
	if err != nil {
		s.logger.Error("Failed to load shop", "shopId", shopID, "error", err)
		return nil, persistenceError(err)
	}
	if shop == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrShopNotConfigured, shopID)
	}
	return shop, nil
}

func (s *StockService) save(ctx context.Context, shop *domain.Shop) error {
	if err := s.shops.Save(ctx, shop); err != nil {
		s.logger.Error("Failed to save shop", "shopId", shop.ShopID, "error", err)
		return persistenceError(err)
	}
	return nil
}

// CreateShop opens a new shop
func (s *StockService) CreateShop(ctx context.Context, cmd CreateShopCommand) (*ShopDTO, error) {
	unlock := s.locks.Lock(shopKey(cmd.ShopID))
	defer unlock()

	existing, err := s.shops.FindByID(ctx, cmd.ShopID)
	if err != nil {
		return nil, persistenceError(err)
	}
	if existing != nil {
		return nil, apperrors.ErrConflict(fmt.Sprintf("shop %s already exists", cmd.ShopID))
	}

	shop, err := domain.NewShop(cmd.ShopID, cmd.Name, cmd.OwnerID, cmd.SellModifier)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, shop); err != nil {
		return nil, err
	}

	s.logger.Audit(ctx, "create", "shop", shop.ShopID, cmd.OwnerID, map[string]any{"name": shop.Name})
	return ToShopDTO(shop), nil
}

// GetShop returns a shop with its stock
func (s *StockService) GetShop(ctx context.Context, shopID string) (*ShopDTO, error) {
	shop, err := s.load(ctx, shopID)
	if err != nil {
		return nil, err
	}
	return ToShopDTO(shop), nil
}

// ListShops returns every shop
func (s *StockService) ListShops(ctx context.Context) ([]*ShopDTO, error) {
	shops, err := s.shops.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list shops", "error", err)
		return nil, persistenceError(err)
	}
	out := make([]*ShopDTO, 0, len(shops))
	for _, shop := range shops {
		out = append(out, ToShopDTO(shop))
	}
	return out, nil
}

// AddItem resolves a catalog item and stocks it
func (s *StockService) AddItem(ctx context.Context, cmd AddItemCommand) (*StockItemDTO, error) {
	unlock := s.locks.Lock(shopKey(cmd.ShopID))
	defer unlock()

	var shop *domain.Shop
	var entry domain.StockItem
	err := retryOnConflict(ctx, func() error {
		var err error
		if shop, err = s.load(ctx, cmd.ShopID); err != nil {
			return err
		}
		item, err := s.catalog.GetCatalogItem(ctx, cmd.ItemID)
		if err != nil {
			return err
		}
		if item == nil {
			return fmt.Errorf("%w: %s", domain.ErrItemNotFound, cmd.ItemID)
		}
		if entry, err = shop.AddItem(*item, cmd.Quantity, cmd.CustomPrice); err != nil {
			return err
		}
		return s.save(ctx, shop)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordStockChange("add", cmd.Quantity)
	s.logger.Audit(ctx, "add_item", "shop", shop.ShopID, cmd.UserID, map[string]any{
		"itemId":   entry.ItemID,
		"quantity": cmd.Quantity,
		"price":    entry.Price.String(),
	})

	dto := ToStockItemDTO(entry)
	return &dto, nil
}

// mutate applies fn to a freshly loaded shop and persists it when fn reports a hit.
// fn runs again if another writer changed the shop in between.
func (s *StockService) mutate(ctx context.Context, shopID, itemID string, fn func(shop *domain.Shop) bool) (*StockChangeDTO, error) {
	unlock := s.locks.Lock(shopKey(shopID))
	defer unlock()

	var shop *domain.Shop
	var result *StockChangeDTO
	err := retryOnConflict(ctx, func() error {
		var err error
		if shop, err = s.load(ctx, shopID); err != nil {
			return err
		}
		result = &StockChangeDTO{ShopID: shopID, ItemID: itemID}
		if !fn(shop) {
			return nil
		}
		result.Found = true
		return s.save(ctx, shop)
	})
	if err != nil {
		return nil, err
	}
	if !result.Found {
		return result, nil
	}

	if entry, ok := shop.FindItem(itemID); ok {
		dto := ToStockItemDTO(entry)
		result.Item = &dto
	} else {
		result.Deleted = true
	}
	return result, nil
}

// RemoveItem decrements stock; quantity 0 deletes the entry. Found is false when absent.
func (s *StockService) RemoveItem(ctx context.Context, cmd RemoveItemCommand) (*StockChangeDTO, error) {
	var removed int
	result, err := s.mutate(ctx, cmd.ShopID, cmd.ItemID, func(shop *domain.Shop) bool {
		before, ok := shop.FindItem(cmd.ItemID)
		if !ok || !shop.RemoveItem(cmd.ItemID, cmd.Quantity) {
			return false
		}
		removed = before.Quantity
		if after, ok := shop.FindItem(cmd.ItemID); ok {
			removed -= after.Quantity
		}
		return true
	})
	if err != nil || !result.Found {
		return result, err
	}
	s.metrics.RecordStockChange("remove", removed)
	s.logger.Audit(ctx, "remove_item", "shop", cmd.ShopID, cmd.UserID, map[string]any{"itemId": cmd.ItemID, "quantity": cmd.Quantity, "removed": removed})
	return result, nil
}

// SetMaxStock sets an item's cap; 0 deletes the entry
func (s *StockService) SetMaxStock(ctx context.Context, cmd SetMaxStockCommand) (*StockChangeDTO, error) {
	result, err := s.mutate(ctx, cmd.ShopID, cmd.ItemID, func(shop *domain.Shop) bool {
		return shop.SetMaxStock(cmd.ItemID, cmd.MaxStock)
	})
	if err != nil || !result.Found {
		return result, err
	}
	s.metrics.RecordStockChange("set_max_stock", 1)
	s.logger.Audit(ctx, "set_max_stock", "shop", cmd.ShopID, cmd.UserID, map[string]any{"itemId": cmd.ItemID, "maxStock": cmd.MaxStock})
	return result, nil
}

// SetQuantity sets an item's stock, clamped to its cap
func (s *StockService) SetQuantity(ctx context.Context, cmd SetQuantityCommand) (*StockChangeDTO, error) {
	result, err := s.mutate(ctx, cmd.ShopID, cmd.ItemID, func(shop *domain.Shop) bool {
		return shop.SetQuantity(cmd.ItemID, cmd.Quantity)
	})
	if err != nil || !result.Found {
		return result, err
	}
	s.metrics.RecordStockChange("set_quantity", 1)
	s.logger.Audit(ctx, "set_quantity", "shop", cmd.ShopID, cmd.UserID, map[string]any{"itemId": cmd.ItemID, "quantity": cmd.Quantity})
	return result, nil
}

// SetPrice overwrites an item's price
func (s *StockService) SetPrice(ctx context.Context, cmd SetPriceCommand) (*StockChangeDTO, error) {
	result, err := s.mutate(ctx, cmd.ShopID, cmd.ItemID, func(shop *domain.Shop) bool {
		return shop.SetPrice(cmd.ItemID, cmd.Price)
	})
	if err != nil || !result.Found {
		return result, err
	}
	s.metrics.RecordStockChange("set_price", 1)
	s.logger.Audit(ctx, "set_price", "shop", cmd.ShopID, cmd.UserID, map[string]any{"itemId": cmd.ItemID, "price": cmd.Price.String()})
	return result, nil
}

func (s *StockService) resolveOptions(cmd GenerateStockCommand) (domain.GenerationOptions, error) {
	opts := cmd.Options
	if cmd.Preset == "" {
		return opts, nil
	}
	if s.presets == nil {
		return opts, apperrors.ErrNotFoundWithID("preset", cmd.Preset)
	}
	preset, ok := s.presets.Preset(cmd.Preset)
	if !ok {
		return opts, apperrors.ErrNotFoundWithID("preset", cmd.Preset)
	}

	if opts.Count > 0 {
		preset.Count = opts.Count
	}
	if len(opts.Categories) > 0 {
		preset.Categories = opts.Categories
	}
	if len(opts.RarityWeights) > 0 {
		preset.RarityWeights = opts.RarityWeights
	}
	if opts.QuantityDice != "" {
		preset.QuantityDice = opts.QuantityDice
	}
	return preset, nil
}

// GenerateStock draws random stock and adds it to the shop. An empty draw
// returns the empty result together with domain.ErrCatalogEmpty.
func (s *StockService) GenerateStock(ctx context.Context, cmd GenerateStockCommand) (*GenerationResultDTO, error) {
	opts, err := s.resolveOptions(cmd)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(shopKey(cmd.ShopID))
	defer unlock()

	if _, err := s.load(ctx, cmd.ShopID); err != nil {
		return nil, err
	}

	generated, genErr := domain.NewStockGenerator(s.catalog, s.newRand()).Generate(ctx, opts)
	if genErr != nil && !errors.Is(genErr, domain.ErrCatalogEmpty) {
		return nil, genErr
	}

	result := &GenerationResultDTO{ShopID: cmd.ShopID, Items: make([]GeneratedItemDTO, 0, len(generated))}
	for _, g := range generated {
		result.Items = append(result.Items, ToGeneratedItemDTO(g))
	}
	result.Empty = len(result.Items) == 0

	if !result.Empty {
		err := retryOnConflict(ctx, func() error {
			shop, err := s.load(ctx, cmd.ShopID)
			if err != nil {
				return err
			}
			for _, g := range generated {
				if _, err := shop.AddItem(g.Item, g.Quantity, nil); err != nil {
					return err
				}
			}
			return s.save(ctx, shop)
		})
		if err != nil {
			return nil, err
		}

		for _, g := range generated {
			s.metrics.RecordItemGenerated(string(g.Item.Rarity))
		}
		s.metrics.RecordStockChange("generate", len(result.Items))
		s.logger.Audit(ctx, "generate", "shop", cmd.ShopID, cmd.UserID, map[string]any{
			"count":  opts.Count,
			"items":  len(result.Items),
			"preset": cmd.Preset,
		})
	}

	if genErr != nil {
		s.logger.Warn("Stock generation matched no catalog items", "shopId", cmd.ShopID, "count", opts.Count)
		return result, genErr
	}
	return result, nil
}

// Restock raises every item to its cap, persisting only when something changed
func (s *StockService) Restock(ctx context.Context, shopID, userID string) (*CountDTO, error) {
	unlock := s.locks.Lock(shopKey(shopID))
	defer unlock()

	var touched int
	err := retryOnConflict(ctx, func() error {
		shop, err := s.load(ctx, shopID)
		if err != nil {
			return err
		}
		if touched = shop.Restock(); touched == 0 {
			return nil
		}
		return s.save(ctx, shop)
	})
	if err != nil {
		return nil, err
	}

	if touched > 0 {
		s.metrics.RecordStockChange("restock", touched)
		s.logger.Audit(ctx, "restock", "shop", shopID, userID, map[string]any{"restocked": touched})
	}
	return &CountDTO{ShopID: shopID, Count: touched}, nil
}

// ClearAll removes every stocked item
func (s *StockService) ClearAll(ctx context.Context, shopID, userID string) (*CountDTO, error) {
	unlock := s.locks.Lock(shopKey(shopID))
	defer unlock()

	var removed int
	err := retryOnConflict(ctx, func() error {
		shop, err := s.load(ctx, shopID)
		if err != nil {
			return err
		}
		removed = shop.ClearAll()
		return s.save(ctx, shop)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordStockChange("clear", removed)
	s.logger.Audit(ctx, "clear", "shop", shopID, userID, map[string]any{"removed": removed})
	return &CountDTO{ShopID: shopID, Count: removed}, nil
}

// FormatInventory renders the shop's stock and consumes its highlight set
func (s *StockService) FormatInventory(ctx context.Context, shopID string) (*InventoryDTO, error) {
	unlock := s.locks.Lock(shopKey(shopID))
	defer unlock()

	var rendered string
	err := retryOnConflict(ctx, func() error {
		shop, err := s.load(ctx, shopID)
		if err != nil {
			return err
		}
		hadHighlights := len(shop.Highlights) > 0
		rendered = domain.FormatInventory(shop)
		if !hadHighlights {
			return nil
		}
		return s.save(ctx, shop)
	})
	if err != nil {
		return nil, err
	}
	return &InventoryDTO{ShopID: shopID, Rendered: rendered}, nil
}

// CommitPurchase takes purchased units out of stock. Every line is checked
// before any is applied; stale baskets fail with ErrInsufficientStock.
// Entries stay listed at zero so a restock can refill them.
func (s *StockService) CommitPurchase(ctx context.Context, shopID string, lines []domain.LineItem) error {
	unlock := s.locks.Lock(shopKey(shopID))
	defer unlock()

	units := 0
	err := retryOnConflict(ctx, func() error {
		shop, err := s.load(ctx, shopID)
		if err != nil {
			return err
		}

		for _, line := range lines {
			entry, ok := shop.FindItem(line.ItemID)
			if !ok {
				return fmt.Errorf("%w: %s is no longer stocked", domain.ErrItemNotFound, line.Name)
			}
			if entry.Quantity < line.Quantity {
				return fmt.Errorf("%w: %s has %d left, %d staged", domain.ErrInsufficientStock, line.Name, entry.Quantity, line.Quantity)
			}
		}

		units = 0
		for _, line := range lines {
			entry, _ := shop.FindItem(line.ItemID)
			shop.SetQuantity(line.ItemID, entry.Quantity-line.Quantity)
			units += line.Quantity
		}
		return s.save(ctx, shop)
	})
	if err != nil {
		return err
	}

	s.metrics.RecordStockChange("sell_out", units)
	return nil
}

// RestorePurchase puts units taken by CommitPurchase back, within each cap
func (s *StockService) RestorePurchase(ctx context.Context, shopID string, lines []domain.LineItem) error {
	unlock := s.locks.Lock(shopKey(shopID))
	defer unlock()

	return retryOnConflict(ctx, func() error {
		shop, err := s.load(ctx, shopID)
		if err != nil {
			return err
		}

		for _, line := range lines {
			entry, ok := shop.FindItem(line.ItemID)
			if !ok {
				s.logger.Warn("Cannot restore stock for removed item", "shopId", shopID, "itemId", line.ItemID)
				continue
			}
			shop.SetQuantity(line.ItemID, entry.Quantity+line.Quantity)
		}
		return s.save(ctx, shop)
	})
}
