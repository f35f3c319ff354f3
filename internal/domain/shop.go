package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultSellModifier is the share of base value a shop pays for sold items
const DefaultSellModifier = 0.5

// StockItem is one stocked entry. Quantity never exceeds MaxStock.
type StockItem struct {
	ItemID   string `bson:"itemId" json:"itemId"`
	Name     string `bson:"name" json:"name"`
	Category string `bson:"category" json:"category"`
	Rarity   Rarity `bson:"rarity" json:"rarity"`
	Price    Amount `bson:"price" json:"price"`
	Quantity int    `bson:"quantity" json:"quantity"`
	MaxStock int    `bson:"maxStock" json:"maxStock"`
}

// InStock reports whether at least one unit is available
func (i *StockItem) InStock() bool {
	return i.Quantity > 0
}

// StockCategory keeps a category's items in insertion order
type StockCategory struct {
	Name  string      `bson:"name" json:"name"`
	Items []StockItem `bson:"items" json:"items"`
}

// Shop is the aggregate root for a shop's inventory
type Shop struct {
	ShopID       string          `bson:"shopId" json:"shopId"`
	Name         string          `bson:"name" json:"name"`
	OwnerID      string          `bson:"ownerId" json:"ownerId"`
	SellModifier float64         `bson:"sellModifier" json:"sellModifier"`
	Categories   []StockCategory `bson:"categories" json:"categories"`
	Highlights   []string        `bson:"highlights,omitempty" json:"-"`
	Version      int64           `bson:"version" json:"-"`
	CreatedAt    time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time       `bson:"updatedAt" json:"updatedAt"`

	domainEvents []DomainEvent `bson:"-" json:"-"`
}

// NewShop creates an empty shop. A zero sell modifier selects the default.
func NewShop(shopID, name, ownerID string, sellModifier float64) (*Shop, error) {
	if strings.TrimSpace(shopID) == "" {
		return nil, ErrShopNotConfigured
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidShop)
	}
	if sellModifier == 0 {
		sellModifier = DefaultSellModifier
	}
	if sellModifier < 0 || sellModifier > 1 {
		return nil, fmt.Errorf("%w: sell modifier must be within (0, 1]", ErrInvalidShop)
	}

	now := time.Now().UTC()
	shop := &Shop{
		ShopID:       shopID,
		Name:         name,
		OwnerID:      ownerID,
		SellModifier: sellModifier,
		Categories:   []StockCategory{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	shop.addDomainEvent(&ShopCreatedEvent{
		ShopID:       shopID,
		Name:         name,
		OwnerID:      ownerID,
		SellModifier: sellModifier,
		CreatedAt:    now,
	})
	return shop, nil
}

// EffectiveSellModifier returns the configured modifier or the default
func (s *Shop) EffectiveSellModifier() float64 {
	if s.SellModifier <= 0 {
		return DefaultSellModifier
	}
	return s.SellModifier
}

func (s *Shop) locate(itemID string) (cat, idx int, ok bool) {
	for c := range s.Categories {
		for i := range s.Categories[c].Items {
			if s.Categories[c].Items[i].ItemID == itemID {
				return c, i, true
			}
		}
	}
	return 0, 0, false
}

// FindItem returns a copy of the stocked entry for itemID
func (s *Shop) FindItem(itemID string) (StockItem, bool) {
	c, i, ok := s.locate(itemID)
	if !ok {
		return StockItem{}, false
	}
	return s.Categories[c].Items[i], true
}

// Items returns every stocked entry in category order
func (s *Shop) Items() []StockItem {
	var items []StockItem
	for _, cat := range s.Categories {
		items = append(items, cat.Items...)
	}
	return items
}

// ItemCount returns the number of stocked entries
func (s *Shop) ItemCount() int {
	n := 0
	for _, cat := range s.Categories {
		n += len(cat.Items)
	}
	return n
}

func (s *Shop) deleteAt(c, i int) {
	items := s.Categories[c].Items
	s.Categories[c].Items = append(items[:i], items[i+1:]...)
}

func (s *Shop) highlight(itemID string) {
	for _, id := range s.Highlights {
		if id == itemID {
			return
		}
	}
	s.Highlights = append(s.Highlights, itemID)
}

// AddItem stocks quantity units of a catalog item. A new entry starts with
// Quantity and MaxStock equal to quantity; an existing entry has both raised
// by quantity and its price replaced when customPrice is given.
func (s *Shop) AddItem(item CatalogItem, quantity int, customPrice *Amount) (StockItem, error) {
	if s.ShopID == "" {
		return StockItem{}, ErrShopNotConfigured
	}
	if quantity <= 0 {
		return StockItem{}, ErrInvalidQuantity
	}
	if customPrice != nil {
		if err := customPrice.Validate(); err != nil {
			return StockItem{}, err
		}
	}

	var entry *StockItem
	if c, i, ok := s.locate(item.ID); ok {
		entry = &s.Categories[c].Items[i]
		entry.Quantity += quantity
		entry.MaxStock += quantity
		if customPrice != nil {
			entry.Price = *customPrice
		}
	} else {
		price := item.Price
		if customPrice != nil {
			price = *customPrice
		}
		entry = s.appendItem(StockItem{
			ItemID:   item.ID,
			Name:     item.Name,
			Category: item.Category,
			Rarity:   item.Rarity,
			Price:    price,
			Quantity: quantity,
			MaxStock: quantity,
		})
	}

	s.highlight(item.ID)
	s.touch()
	s.addDomainEvent(&StockItemAddedEvent{
		ShopID:   s.ShopID,
		ItemID:   entry.ItemID,
		Name:     entry.Name,
		Added:    quantity,
		Quantity: entry.Quantity,
		MaxStock: entry.MaxStock,
		Price:    entry.Price.String(),
		AddedAt:  s.UpdatedAt,
	})
	return *entry, nil
}

func (s *Shop) appendItem(item StockItem) *StockItem {
	category := item.Category
	if category == "" {
		category = "Miscellaneous"
		item.Category = category
	}
	for c := range s.Categories {
		if s.Categories[c].Name == category {
			s.Categories[c].Items = append(s.Categories[c].Items, item)
			return &s.Categories[c].Items[len(s.Categories[c].Items)-1]
		}
	}
	s.Categories = append(s.Categories, StockCategory{Name: category, Items: []StockItem{item}})
	last := len(s.Categories) - 1
	return &s.Categories[last].Items[0]
}

// RemoveItem decrements stock by quantity. A quantity of zero, or one that
// reaches the current stock, deletes the entry. Returns false if absent.
func (s *Shop) RemoveItem(itemID string, quantity int) bool {
	c, i, ok := s.locate(itemID)
	if !ok {
		return false
	}

	entry := &s.Categories[c].Items[i]
	event := &StockItemRemovedEvent{ShopID: s.ShopID, ItemID: itemID}

	if quantity <= 0 || quantity >= entry.Quantity {
		event.Removed = entry.Quantity
		event.Deleted = true
		s.deleteAt(c, i)
	} else {
		entry.Quantity -= quantity
		event.Removed = quantity
		event.Remaining = entry.Quantity
	}

	s.touch()
	event.RemovedAt = s.UpdatedAt
	s.addDomainEvent(event)
	return true
}

// SetMaxStock sets the cap and clamps quantity down to it. A cap of zero deletes the entry.
func (s *Shop) SetMaxStock(itemID string, newMax int) bool {
	c, i, ok := s.locate(itemID)
	if !ok {
		return false
	}

	event := &StockItemAdjustedEvent{ShopID: s.ShopID, ItemID: itemID, Field: "maxStock"}
	if newMax <= 0 {
		s.deleteAt(c, i)
		event.Deleted = true
	} else {
		entry := &s.Categories[c].Items[i]
		entry.MaxStock = newMax
		if entry.Quantity > newMax {
			entry.Quantity = newMax
		}
		event.Quantity, event.MaxStock, event.Price = entry.Quantity, entry.MaxStock, entry.Price.String()
	}

	s.touch()
	event.AdjustedAt = s.UpdatedAt
	s.addDomainEvent(event)
	return true
}

// SetQuantity sets the current stock, clamped to the cap. An entry without a
// cap takes the new quantity as its cap.
func (s *Shop) SetQuantity(itemID string, quantity int) bool {
	c, i, ok := s.locate(itemID)
	if !ok {
		return false
	}
	if quantity < 0 {
		quantity = 0
	}

	entry := &s.Categories[c].Items[i]
	switch {
	case entry.MaxStock <= 0:
		entry.Quantity = quantity
		entry.MaxStock = quantity
	case quantity > entry.MaxStock:
		entry.Quantity = entry.MaxStock
	default:
		entry.Quantity = quantity
	}

	s.touch()
	s.addDomainEvent(&StockItemAdjustedEvent{
		ShopID:     s.ShopID,
		ItemID:     itemID,
		Field:      "quantity",
		Quantity:   entry.Quantity,
		MaxStock:   entry.MaxStock,
		Price:      entry.Price.String(),
		AdjustedAt: s.UpdatedAt,
	})
	return true
}

// SetPrice overwrites an entry's price as given
func (s *Shop) SetPrice(itemID string, price Amount) bool {
	c, i, ok := s.locate(itemID)
	if !ok {
		return false
	}

	entry := &s.Categories[c].Items[i]
	entry.Price = price

	s.touch()
	s.addDomainEvent(&StockItemAdjustedEvent{
		ShopID:     s.ShopID,
		ItemID:     itemID,
		Field:      "price",
		Quantity:   entry.Quantity,
		MaxStock:   entry.MaxStock,
		Price:      price.String(),
		AdjustedAt: s.UpdatedAt,
	})
	return true
}

// Restock raises every entry below its cap to the cap and returns how many changed
func (s *Shop) Restock() int {
	touched := 0
	for c := range s.Categories {
		for i := range s.Categories[c].Items {
			entry := &s.Categories[c].Items[i]
			if entry.Quantity < entry.MaxStock {
				entry.Quantity = entry.MaxStock
				touched++
			}
		}
	}

	if touched > 0 {
		s.touch()
		s.addDomainEvent(&ShopRestockedEvent{ShopID: s.ShopID, Restocked: touched, RestockedAt: s.UpdatedAt})
	}
	return touched
}

// ClearAll empties every category and returns how many entries were removed
func (s *Shop) ClearAll() int {
	removed := s.ItemCount()
	for c := range s.Categories {
		s.Categories[c].Items = []StockItem{}
	}
	s.Highlights = nil

	s.touch()
	s.addDomainEvent(&ShopClearedEvent{ShopID: s.ShopID, Removed: removed, ClearedAt: s.UpdatedAt})
	return removed
}

// ConsumeHighlights returns the recently modified item ids and clears them
func (s *Shop) ConsumeHighlights() map[string]bool {
	set := make(map[string]bool, len(s.Highlights))
	for _, id := range s.Highlights {
		set[id] = true
	}
	s.Highlights = nil
	return set
}

func (s *Shop) touch() {
	s.UpdatedAt = time.Now().UTC()
}

func (s *Shop) addDomainEvent(event DomainEvent) {
	s.domainEvents = append(s.domainEvents, event)
}

// GetDomainEvents returns pending domain events
func (s *Shop) GetDomainEvents() []DomainEvent {
	return s.domainEvents
}

// ClearDomainEvents drops pending domain events once they are recorded
func (s *Shop) ClearDomainEvents() {
	s.domainEvents = nil
}
