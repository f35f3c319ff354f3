package domain

import "time"

// DomainEvent is the base interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// ShopCreatedEvent is emitted when a shop is opened
type ShopCreatedEvent struct {
	ShopID       string    `json:"shopId"`
	Name         string    `json:"name"`
	OwnerID      string    `json:"ownerId"`
	SellModifier float64   `json:"sellModifier"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (e *ShopCreatedEvent) EventType() string     { return "shop.stock.shop_created" }
func (e *ShopCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }

// StockItemAddedEvent is emitted when an item is stocked or topped up
type StockItemAddedEvent struct {
	ShopID   string    `json:"shopId"`
	ItemID   string    `json:"itemId"`
	Name     string    `json:"name"`
	Added    int       `json:"added"`
	Quantity int       `json:"quantity"`
	MaxStock int       `json:"maxStock"`
	Price    string    `json:"price"`
	AddedAt  time.Time `json:"addedAt"`
}

func (e *StockItemAddedEvent) EventType() string     { return "shop.stock.item_added" }
func (e *StockItemAddedEvent) OccurredAt() time.Time { return e.AddedAt }

// StockItemRemovedEvent is emitted when stock is decremented or an entry deleted
type StockItemRemovedEvent struct {
	ShopID    string    `json:"shopId"`
	ItemID    string    `json:"itemId"`
	Removed   int       `json:"removed"`
	Remaining int       `json:"remaining"`
	Deleted   bool      `json:"deleted"`
	RemovedAt time.Time `json:"removedAt"`
}

func (e *StockItemRemovedEvent) EventType() string     { return "shop.stock.item_removed" }
func (e *StockItemRemovedEvent) OccurredAt() time.Time { return e.RemovedAt }

// StockItemAdjustedEvent is emitted when cap, quantity or price is set directly
type StockItemAdjustedEvent struct {
	ShopID     string    `json:"shopId"`
	ItemID     string    `json:"itemId"`
	Field      string    `json:"field"`
	Quantity   int       `json:"quantity"`
	MaxStock   int       `json:"maxStock"`
	Price      string    `json:"price"`
	Deleted    bool      `json:"deleted"`
	AdjustedAt time.Time `json:"adjustedAt"`
}

func (e *StockItemAdjustedEvent) EventType() string     { return "shop.stock.item_adjusted" }
func (e *StockItemAdjustedEvent) OccurredAt() time.Time { return e.AdjustedAt }

// ShopRestockedEvent is emitted when items are refilled to their caps
type ShopRestockedEvent struct {
	ShopID      string    `json:"shopId"`
	Restocked   int       `json:"restocked"`
	RestockedAt time.Time `json:"restockedAt"`
}

func (e *ShopRestockedEvent) EventType() string     { return "shop.stock.restocked" }
func (e *ShopRestockedEvent) OccurredAt() time.Time { return e.RestockedAt }

// ShopClearedEvent is emitted when every category is emptied
type ShopClearedEvent struct {
	ShopID    string    `json:"shopId"`
	Removed   int       `json:"removed"`
	ClearedAt time.Time `json:"clearedAt"`
}

func (e *ShopClearedEvent) EventType() string     { return "shop.stock.cleared" }
func (e *ShopClearedEvent) OccurredAt() time.Time { return e.ClearedAt }

// BasketsMergedEvent is emitted when a user merges buy and sell baskets
type BasketsMergedEvent struct {
	UserID    string    `json:"userId"`
	ShopID    string    `json:"shopId"`
	NetCopper int       `json:"netCopper"`
	MergedAt  time.Time `json:"mergedAt"`
}

func (e *BasketsMergedEvent) EventType() string     { return "shop.basket.merged" }
func (e *BasketsMergedEvent) OccurredAt() time.Time { return e.MergedAt }

// BasketsUnmergedEvent is emitted when a merge is undone
type BasketsUnmergedEvent struct {
	UserID     string    `json:"userId"`
	UnmergedAt time.Time `json:"unmergedAt"`
}

func (e *BasketsUnmergedEvent) EventType() string     { return "shop.basket.unmerged" }
func (e *BasketsUnmergedEvent) OccurredAt() time.Time { return e.UnmergedAt }

// BasketsSettledEvent is emitted when a checkout resets the baskets
type BasketsSettledEvent struct {
	UserID    string    `json:"userId"`
	ShopID    string    `json:"shopId"`
	ReceiptID string    `json:"receiptId"`
	SettledAt time.Time `json:"settledAt"`
}

func (e *BasketsSettledEvent) EventType() string     { return "shop.basket.settled" }
func (e *BasketsSettledEvent) OccurredAt() time.Time { return e.SettledAt }

// ReceiptIssuedEvent is emitted when a receipt document is persisted
type ReceiptIssuedEvent struct {
	ReceiptID    string    `json:"receiptId"`
	Name         string    `json:"name"`
	OwnerID      string    `json:"ownerId"`
	CustomerName string    `json:"customerName"`
	ShopName     string    `json:"shopName"`
	NetCopper    int       `json:"netCopper"`
	Direction    string    `json:"direction"`
	IssuedAt     time.Time `json:"issuedAt"`
}

func (e *ReceiptIssuedEvent) EventType() string     { return "shop.receipt.issued" }
func (e *ReceiptIssuedEvent) OccurredAt() time.Time { return e.IssuedAt }

// LedgerEntryAppendedEvent is emitted for each ledger line
type LedgerEntryAppendedEvent struct {
	EntryID    string    `json:"entryId"`
	Actor      string    `json:"actor"`
	ShopName   string    `json:"shopName"`
	Type       string    `json:"type"`
	Amount     string    `json:"amount"`
	AppendedAt time.Time `json:"appendedAt"`
}

func (e *LedgerEntryAppendedEvent) EventType() string     { return "shop.ledger.appended" }
func (e *LedgerEntryAppendedEvent) OccurredAt() time.Time { return e.AppendedAt }
