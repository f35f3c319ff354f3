package application

import (
	"context"
	"strings"
	"sync"

	"go.temporal.io/sdk/client"

	"github.com/tabletop-shop/shop-engine/internal/domain"
	"github.com/tabletop-shop/shop-engine/pkg/logging"
	"github.com/tabletop-shop/shop-engine/pkg/metrics"
)

func testLogger() *logging.Logger {
	return logging.Discard()
}

func testMetrics() *metrics.Metrics {
	return metrics.New(metrics.DefaultConfig("test"))
}

// fakeShopRepo stores copies and checks versions the way the Mongo
// repository does. interfere, when set, plays another writer landing a change
// just before each save and is cleared after firing once.
type fakeShopRepo struct {
	mu        sync.Mutex
	shops     map[string]*domain.Shop
	saves     int
	conflicts int
	saveErr   error
	findErr   error
	interfere func(stored *domain.Shop)
}

func cloneShop(shop *domain.Shop) *domain.Shop {
	c := *shop
	c.Categories = make([]domain.StockCategory, len(shop.Categories))
	for i, cat := range shop.Categories {
		cat.Items = append([]domain.StockItem(nil), cat.Items...)
		c.Categories[i] = cat
	}
	c.Highlights = append([]string(nil), shop.Highlights...)
	c.ClearDomainEvents()
	return &c
}

func (f *fakeShopRepo) Save(ctx context.Context, shop *domain.Shop) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	if f.shops == nil {
		f.shops = make(map[string]*domain.Shop)
	}
	if stored, ok := f.shops[shop.ShopID]; ok && f.interfere != nil {
		f.interfere(stored)
		stored.Version++
		f.interfere = nil
	}
	stored, ok := f.shops[shop.ShopID]
	if ok && stored.Version != shop.Version || !ok && shop.Version != 0 {
		f.conflicts++
		return domain.ErrConcurrentModification
	}
	f.saves++
	shop.Version++
	f.shops[shop.ShopID] = cloneShop(shop)
	shop.ClearDomainEvents()
	return nil
}

func (f *fakeShopRepo) FindByID(ctx context.Context, shopID string) (*domain.Shop, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	if shop, ok := f.shops[shopID]; ok {
		return cloneShop(shop), nil
	}
	return nil, nil
}

func (f *fakeShopRepo) List(ctx context.Context) ([]*domain.Shop, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	out := make([]*domain.Shop, 0, len(f.shops))
	for _, shop := range f.shops {
		out = append(out, cloneShop(shop))
	}
	return out, nil
}

// fakeBasketRepo mirrors fakeShopRepo for basket states
type fakeBasketRepo struct {
	mu        sync.Mutex
	states    map[string]*domain.BasketState
	conflicts int
	saveErr   error
	interfere func(stored *domain.BasketState)
}

func cloneBasketState(state *domain.BasketState) *domain.BasketState {
	c := *state
	if state.Buy != nil {
		c.Buy = append([]domain.LineItem{}, state.Buy...)
	}
	if state.Sell != nil {
		c.Sell = append([]domain.SellLineItem{}, state.Sell...)
	}
	if state.Haggle != nil {
		haggle := *state.Haggle
		c.Haggle = &haggle
	}
	if state.Checkout != nil {
		hold := *state.Checkout
		c.Checkout = &hold
	}
	c.ClearDomainEvents()
	return &c
}

func (f *fakeBasketRepo) Save(ctx context.Context, state *domain.BasketState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	if f.states == nil {
		f.states = make(map[string]*domain.BasketState)
	}
	if stored, ok := f.states[state.UserID]; ok && f.interfere != nil {
		f.interfere(stored)
		stored.Version++
		f.interfere = nil
	}
	stored, ok := f.states[state.UserID]
	if ok && stored.Version != state.Version || !ok && state.Version != 0 {
		f.conflicts++
		return domain.ErrConcurrentModification
	}
	state.Version++
	f.states[state.UserID] = cloneBasketState(state)
	state.ClearDomainEvents()
	return nil
}

func (f *fakeBasketRepo) FindByUserID(ctx context.Context, userID string) (*domain.BasketState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if state, ok := f.states[userID]; ok {
		return cloneBasketState(state), nil
	}
	return nil, nil
}

type fakeReceiptRepo struct {
	receipts  []*domain.Receipt
	createErr error
}

func (f *fakeReceiptRepo) Create(ctx context.Context, receipt *domain.Receipt) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.receipts = append(f.receipts, receipt)
	return nil
}

func (f *fakeReceiptRepo) FindNames(ctx context.Context, ownerID, prefix string) ([]string, error) {
	var names []string
	for _, r := range f.receipts {
		if r.OwnerID == ownerID && strings.HasPrefix(r.Name, prefix) {
			names = append(names, r.Name)
		}
	}
	return names, nil
}

func (f *fakeReceiptRepo) FindByID(ctx context.Context, receiptID string) (*domain.Receipt, error) {
	for _, r := range f.receipts {
		if r.ReceiptID == receiptID {
			return r, nil
		}
	}
	return nil, nil
}

type fakeLedgerRepo struct {
	ledger  *domain.Ledger
	saves   int
	saveErr error
}

func (f *fakeLedgerRepo) Get(ctx context.Context) (*domain.Ledger, error) {
	return f.ledger, nil
}

func (f *fakeLedgerRepo) Save(ctx context.Context, ledger *domain.Ledger) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.ledger = ledger
	return nil
}

type fakeCatalog struct {
	items []domain.CatalogItem
}

func (f *fakeCatalog) GetCatalogItem(ctx context.Context, id string) (*domain.CatalogItem, error) {
	for i := range f.items {
		if f.items[i].ID == id {
			item := f.items[i]
			return &item, nil
		}
	}
	return nil, domain.ErrItemNotFound
}

func (f *fakeCatalog) ListCatalogItems(ctx context.Context, category string, rarity domain.Rarity) ([]domain.CatalogItem, error) {
	var out []domain.CatalogItem
	for _, item := range f.items {
		if (category == "" || item.Category == category) && (rarity == "" || item.Rarity == rarity) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeCatalog) Categories(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, item := range f.items {
		if !seen[item.Category] {
			seen[item.Category] = true
			out = append(out, item.Category)
		}
	}
	return out, nil
}

type fakeExtractor struct {
	items map[string][]domain.SellableItem
	err   error
}

func (f *fakeExtractor) ExtractSellableItems(ctx context.Context, characterID string) ([]domain.SellableItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.items[characterID], nil
}

type fakePresets map[string]domain.GenerationOptions

func (f fakePresets) Preset(name string) (domain.GenerationOptions, bool) {
	opts, ok := f[name]
	return opts, ok
}

type fakeRun struct {
	client.WorkflowRun
	id, runID string
}

func (r fakeRun) GetID() string    { return r.id }
func (r fakeRun) GetRunID() string { return r.runID }

type fakeStarter struct {
	started []CheckoutInput
	ids     []string
	err     error
}

func (f *fakeStarter) StartWorkflow(ctx context.Context, workflowID, taskQueue, workflowName string, args ...interface{}) (client.WorkflowRun, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.ids = append(f.ids, workflowID)
	if len(args) > 0 {
		if input, ok := args[0].(CheckoutInput); ok {
			f.started = append(f.started, input)
		}
	}
	return fakeRun{id: workflowID, runID: "run-1"}, nil
}

func testCatalog() *fakeCatalog {
	return &fakeCatalog{items: []domain.CatalogItem{
		{ID: "longsword", Name: "Longsword", Category: "Weapons", Rarity: domain.RarityCommon, Price: domain.Amount{GP: 15}},
		{ID: "dagger", Name: "Dagger", Category: "Weapons", Rarity: domain.RarityCommon, Price: domain.Amount{GP: 2}},
		{ID: "healing", Name: "Potion of Healing", Category: "Potions", Rarity: domain.RarityCommon, Price: domain.Amount{GP: 50}},
		{ID: "flame-tongue", Name: "Flame Tongue", Category: "Weapons", Rarity: domain.RarityRare, Price: domain.Amount{GP: 5000}},
	}}
}

// seededShop stores a shop stocked with the given catalog items at quantity each
// and returns the stored copy
func seededShop(repo *fakeShopRepo, shopID string, quantity int, items ...domain.CatalogItem) *domain.Shop {
	shop, err := domain.NewShop(shopID, "The Gilded Anvil", "gm", 0)
	if err != nil {
		panic(err)
	}
	for _, item := range items {
		if _, err := shop.AddItem(item, quantity, nil); err != nil {
			panic(err)
		}
	}
	shop.ConsumeHighlights()
	_ = repo.Save(context.Background(), shop)
	repo.saves = 0
	return repo.shops[shopID]
}
