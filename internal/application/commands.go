package application

import "github.com/tabletop-shop/shop-engine/internal/domain"

// CreateShopCommand opens a new shop
type CreateShopCommand struct {
	ShopID       string
	Name         string
	OwnerID      string
	SellModifier float64
}

// AddItemCommand stocks a catalog item
type AddItemCommand struct {
	ShopID      string
	ItemID      string
	Quantity    int
	CustomPrice *domain.Amount
	UserID      string
}

// RemoveItemCommand decrements or deletes a stocked item. Quantity 0 deletes.
type RemoveItemCommand struct {
	ShopID   string
	ItemID   string
	Quantity int
	UserID   string
}

// SetMaxStockCommand sets an item's cap. MaxStock 0 deletes.
type SetMaxStockCommand struct {
	ShopID   string
	ItemID   string
	MaxStock int
	UserID   string
}

// SetQuantityCommand sets an item's current stock
type SetQuantityCommand struct {
	ShopID   string
	ItemID   string
	Quantity int
	UserID   string
}

// SetPriceCommand overwrites an item's price
type SetPriceCommand struct {
	ShopID string
	ItemID string
	Price  domain.Amount
	UserID string
}

// GenerateStockCommand draws random stock and stocks it. When Preset is set
// the named preset supplies any option the command leaves empty.
type GenerateStockCommand struct {
	ShopID  string
	Preset  string
	Options domain.GenerationOptions
	UserID  string
}

// AddToBuyCommand stages a purchase
type AddToBuyCommand struct {
	UserID   string
	ShopID   string
	ItemID   string
	Quantity int
}

// BeginSellSessionCommand selects the character whose items will be sold
type BeginSellSessionCommand struct {
	UserID      string
	CharacterID string
}

// AddToSellCommand stages a sale from the session's character
type AddToSellCommand struct {
	UserID   string
	ShopID   string
	ItemID   string
	Quantity int
}

// RecordHaggleCommand stores a haggle outcome for the next settlement
type RecordHaggleCommand struct {
	UserID  string
	Percent int
	Note    string
}

// BuildReceiptCommand builds and persists a receipt outside checkout
type BuildReceiptCommand struct {
	OwnerID      string
	ShopName     string
	CustomerName string
	CharacterID  string
	Buy          []domain.LineItem
	Sell         []domain.SellLineItem
	Haggle       *domain.HaggleResult
	Before       domain.Amount
	After        domain.Amount
}

// AppendLedgerEntryCommand appends one audit line
type AppendLedgerEntryCommand struct {
	Actor       string
	ShopName    string
	Type        domain.LedgerEntryType
	Amount      domain.Amount
	Direction   domain.Direction
	Items       []string
	ReceiptName string
}

// CheckoutCommand settles a user's baskets
type CheckoutCommand struct {
	UserID       string
	Reference    string
	ShopID       string
	CharacterID  string
	OwnerID      string
	CustomerName string
}
