package application

import (
	"time"

	"github.com/tabletop-shop/shop-engine/internal/domain"
)

// ShopDTO represents a shop in responses
type ShopDTO struct {
	ShopID       string             `json:"shopId"`
	Name         string             `json:"name"`
	OwnerID      string             `json:"ownerId"`
	SellModifier float64            `json:"sellModifier"`
	Categories   []StockCategoryDTO `json:"categories"`
	ItemCount    int                `json:"itemCount"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// StockCategoryDTO represents one category of stock
type StockCategoryDTO struct {
	Name  string         `json:"name"`
	Items []StockItemDTO `json:"items"`
}

// StockItemDTO represents a stocked item
type StockItemDTO struct {
	ItemID   string        `json:"itemId"`
	Name     string        `json:"name"`
	Category string        `json:"category"`
	Rarity   string        `json:"rarity"`
	Price    domain.Amount `json:"price"`
	PriceStr string        `json:"priceDisplay"`
	Quantity int           `json:"quantity"`
	MaxStock int           `json:"maxStock"`
	InStock  bool          `json:"inStock"`
}

// InventoryDTO is the rendered inventory view
type InventoryDTO struct {
	ShopID   string `json:"shopId"`
	Rendered string `json:"rendered"`
}

// StockChangeDTO reports a stock mutation that may have found nothing
type StockChangeDTO struct {
	ShopID  string        `json:"shopId"`
	ItemID  string        `json:"itemId,omitempty"`
	Found   bool          `json:"found"`
	Item    *StockItemDTO `json:"item,omitempty"`
	Deleted bool          `json:"deleted"`
}

// CountDTO reports how many entries an operation touched
type CountDTO struct {
	ShopID string `json:"shopId,omitempty"`
	Count  int    `json:"count"`
}

// GeneratedItemDTO is one generated stock entry
type GeneratedItemDTO struct {
	ItemID   string `json:"itemId"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Rarity   string `json:"rarity"`
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
	MaxStock int    `json:"maxStock"`
}

// GenerationResultDTO reports the outcome of random stock generation
type GenerationResultDTO struct {
	ShopID string             `json:"shopId"`
	Items  []GeneratedItemDTO `json:"items"`
	Empty  bool               `json:"empty"`
}

// LineItemDTO represents a staged line
type LineItemDTO struct {
	Index       int           `json:"index"`
	ItemID      string        `json:"itemId"`
	Name        string        `json:"name"`
	Quantity    int           `json:"quantity"`
	Price       domain.Amount `json:"price"`
	Total       string        `json:"total"`
	CharacterID string        `json:"characterId,omitempty"`
	BaseValue   string        `json:"baseValue,omitempty"`
}

// HaggleDTO represents a pending haggle annotation
type HaggleDTO struct {
	Percent    int       `json:"percent"`
	Note       string    `json:"note,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

// QuoteDTO represents priced baskets
type QuoteDTO struct {
	BuySubtotal    string `json:"buySubtotal"`
	BuyAdjustment  string `json:"buyAdjustment"`
	BuyTotal       string `json:"buyTotal"`
	SellSubtotal   string `json:"sellSubtotal"`
	SellAdjustment string `json:"sellAdjustment"`
	SellTotal      string `json:"sellTotal"`
	HagglePercent  int    `json:"hagglePercent"`
	NetCopper      int    `json:"netCopper"`
	Net            string `json:"net"`
	Direction      string `json:"direction"`
}

// BasketDTO represents a user's basket state
type BasketDTO struct {
	UserID                string        `json:"userId"`
	ShopID                string        `json:"shopId,omitempty"`
	Buy                   []LineItemDTO `json:"buy"`
	Sell                  []LineItemDTO `json:"sell"`
	SellSourceCharacterID string        `json:"sellSourceCharacterId,omitempty"`
	Merged                bool          `json:"merged"`
	MergedSince           *time.Time    `json:"mergedSince,omitempty"`
	Haggle                *HaggleDTO    `json:"haggle,omitempty"`
	CheckingOut           bool          `json:"checkingOut"`
	Quote                 QuoteDTO      `json:"quote"`
	UpdatedAt             time.Time     `json:"updatedAt"`
}

// BasketViewDTO is a rendered basket view
type BasketViewDTO struct {
	UserID   string        `json:"userId"`
	Lines    []LineItemDTO `json:"lines"`
	Total    string        `json:"total"`
	Merged   bool          `json:"merged"`
	Quote    *QuoteDTO     `json:"quote,omitempty"`
	Rendered string        `json:"rendered"`
}

// CanMergeDTO answers whether the baskets can be merged
type CanMergeDTO struct {
	UserID   string `json:"userId"`
	CanMerge bool   `json:"canMerge"`
}

// SellableItemDTO is an item the session's character can sell
type SellableItemDTO struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Quantity   int           `json:"quantity"`
	BaseValue  domain.Amount `json:"baseValue"`
	OfferPrice domain.Amount `json:"offerPrice"`
	Category   string        `json:"category,omitempty"`
	Rarity     string        `json:"rarity,omitempty"`
}

// SellSessionDTO describes an opened sell session
type SellSessionDTO struct {
	UserID      string            `json:"userId"`
	CharacterID string            `json:"characterId"`
	Items       []SellableItemDTO `json:"items"`
}

// ReceiptDTO represents a persisted receipt
type ReceiptDTO struct {
	ReceiptID    string    `json:"receiptId"`
	Name         string    `json:"name"`
	OwnerID      string    `json:"ownerId"`
	ShopName     string    `json:"shopName"`
	CustomerName string    `json:"customerName"`
	Quote        QuoteDTO  `json:"quote"`
	Before       string    `json:"before"`
	After        string    `json:"after"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"createdAt"`
}

// LedgerEntryDTO represents one ledger line
type LedgerEntryDTO struct {
	EntryID     string    `json:"entryId"`
	Timestamp   time.Time `json:"timestamp"`
	Actor       string    `json:"actor"`
	ShopName    string    `json:"shopName"`
	Type        string    `json:"type"`
	Amount      string    `json:"amount"`
	Direction   string    `json:"direction,omitempty"`
	Items       []string  `json:"items,omitempty"`
	ReceiptName string    `json:"receiptName,omitempty"`
	Line        string    `json:"line"`
}

// LedgerDTO represents the ledger document
type LedgerDTO struct {
	LedgerID  string           `json:"ledgerId"`
	Name      string           `json:"name"`
	Entries   []LedgerEntryDTO `json:"entries"`
	Body      string           `json:"body"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// CheckoutDTO reports a started checkout
type CheckoutDTO struct {
	UserID     string `json:"userId"`
	WorkflowID string `json:"workflowId"`
	RunID      string `json:"runId"`
}
