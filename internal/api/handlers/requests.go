package handlers

import (
	"github.com/tabletop-shop/shop-engine/internal/application"
	"github.com/tabletop-shop/shop-engine/internal/domain"
	apperrors "github.com/tabletop-shop/shop-engine/pkg/errors"
	"github.com/tabletop-shop/shop-engine/pkg/middleware"
)

// UserHeader carries the acting user for shop mutations
const UserHeader = middleware.HeaderUserID

// CreateShopRequest represents the create shop request body
type CreateShopRequest struct {
	ShopID       string  `json:"shopId" binding:"required,max=64,safe_string"`
	Name         string  `json:"name" binding:"required,max=100,safe_string"`
	OwnerID      string  `json:"ownerId" binding:"omitempty,max=64"`
	SellModifier float64 `json:"sellModifier" binding:"gte=0,lte=1"`
}

// AddItemRequest represents the add item request body
type AddItemRequest struct {
	ItemID   string `json:"itemId" binding:"required,max=64"`
	Quantity int    `json:"quantity" binding:"required,min=1"`
	Price    string `json:"price" binding:"omitempty,amount"`
}

// SetMaxStockRequest represents the set max stock request body
type SetMaxStockRequest struct {
	MaxStock *int `json:"maxStock" binding:"required,gte=0"`
}

// SetQuantityRequest represents the set quantity request body
type SetQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required,gte=0"`
}

// SetPriceRequest represents the set price request body
type SetPriceRequest struct {
	Price string `json:"price" binding:"required,amount"`
}

// GenerateStockRequest represents the random stock request body
type GenerateStockRequest struct {
	Preset        string             `json:"preset" binding:"omitempty,max=64"`
	Count         int                `json:"count" binding:"gte=0,lte=100"`
	Categories    []string           `json:"categories" binding:"omitempty,dive,safe_string"`
	RarityWeights map[string]float64 `json:"rarityWeights" binding:"omitempty,dive,gte=0"`
	QuantityDice  string             `json:"quantityDice" binding:"omitempty,dice"`
}

// AddToBuyRequest represents the add to buy basket request body
type AddToBuyRequest struct {
	ShopID   string `json:"shopId" binding:"required"`
	ItemID   string `json:"itemId" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1"`
}

// SellSessionRequest represents the begin sell session request body
type SellSessionRequest struct {
	CharacterID string `json:"characterId" binding:"required,max=64"`
}

// AddToSellRequest represents the add to sell basket request body
type AddToSellRequest struct {
	ShopID   string `json:"shopId"`
	ItemID   string `json:"itemId" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1"`
}

// HaggleRequest represents a haggle outcome
type HaggleRequest struct {
	Percent int    `json:"percent"`
	Note    string `json:"note" binding:"omitempty,max=200,safe_string"`
}

// CheckoutRequest represents the checkout request body
type CheckoutRequest struct {
	ShopID       string `json:"shopId"`
	CharacterID  string `json:"characterId"`
	OwnerID      string `json:"ownerId"`
	CustomerName string `json:"customerName" binding:"omitempty,max=100,safe_string"`
}

// LineRequest is one receipt line
type LineRequest struct {
	ItemID      string `json:"itemId" binding:"required"`
	Name        string `json:"name" binding:"required,safe_string"`
	Quantity    int    `json:"quantity" binding:"required,min=1"`
	Price       string `json:"price" binding:"required,amount"`
	BaseValue   string `json:"baseValue" binding:"omitempty,amount"`
	CharacterID string `json:"characterId"`
}

// CreateReceiptRequest represents a standalone receipt
type CreateReceiptRequest struct {
	OwnerID      string         `json:"ownerId" binding:"required"`
	ShopName     string         `json:"shopName" binding:"required,safe_string"`
	CustomerName string         `json:"customerName" binding:"required,safe_string"`
	CharacterID  string         `json:"characterId"`
	Buy          []LineRequest  `json:"buy" binding:"omitempty,dive"`
	Sell         []LineRequest  `json:"sell" binding:"omitempty,dive"`
	Haggle       *HaggleRequest `json:"haggle"`
	Before       string         `json:"before" binding:"omitempty,amount"`
	After        string         `json:"after" binding:"omitempty,amount"`
}

// AppendLedgerEntryRequest represents a ledger line
type AppendLedgerEntryRequest struct {
	EntryID     string   `json:"entryId" binding:"omitempty,max=64"`
	Actor       string   `json:"actor" binding:"required,safe_string"`
	ShopName    string   `json:"shopName" binding:"omitempty,safe_string"`
	Type        string   `json:"type" binding:"omitempty,oneof=purchase sale trade adjustment"`
	Amount      string   `json:"amount" binding:"required,amount"`
	Direction   string   `json:"direction" binding:"omitempty,oneof=pay receive"`
	Items       []string `json:"items"`
	ReceiptName string   `json:"receiptName"`
}

func parseAmount(field, value string) (domain.Amount, error) {
	if value == "" {
		return domain.Amount{}, nil
	}
	a, err := domain.ParseAmount(value)
	if err != nil {
		return domain.Amount{}, apperrors.ErrValidationWithFields("validation failed", map[string]string{field: err.Error()})
	}
	return a, nil
}

func (r LineRequest) toLineItem() (domain.LineItem, error) {
	price, err := parseAmount("price", r.Price)
	if err != nil {
		return domain.LineItem{}, err
	}
	return domain.LineItem{ItemID: r.ItemID, Name: r.Name, Quantity: r.Quantity, Price: price}, nil
}

func (r LineRequest) toSellLineItem() (domain.SellLineItem, error) {
	line, err := r.toLineItem()
	if err != nil {
		return domain.SellLineItem{}, err
	}
	base, err := parseAmount("baseValue", r.BaseValue)
	if err != nil {
		return domain.SellLineItem{}, err
	}
	return domain.SellLineItem{LineItem: line, CharacterID: r.CharacterID, BaseValue: base}, nil
}

func (r CreateReceiptRequest) toCommand() (application.BuildReceiptCommand, error) {
	cmd := application.BuildReceiptCommand{
		OwnerID:      r.OwnerID,
		ShopName:     r.ShopName,
		CustomerName: r.CustomerName,
		CharacterID:  r.CharacterID,
	}
	for _, l := range r.Buy {
		line, err := l.toLineItem()
		if err != nil {
			return cmd, err
		}
		cmd.Buy = append(cmd.Buy, line)
	}
	for _, l := range r.Sell {
		line, err := l.toSellLineItem()
		if err != nil {
			return cmd, err
		}
		if line.CharacterID == "" {
			line.CharacterID = r.CharacterID
		}
		cmd.Sell = append(cmd.Sell, line)
	}
	if r.Haggle != nil {
		cmd.Haggle = &domain.HaggleResult{Percent: r.Haggle.Percent, Note: r.Haggle.Note}
	}

	var err error
	if cmd.Before, err = parseAmount("before", r.Before); err != nil {
		return cmd, err
	}
	if cmd.After, err = parseAmount("after", r.After); err != nil {
		return cmd, err
	}
	return cmd, nil
}
