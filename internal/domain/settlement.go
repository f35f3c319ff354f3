package domain

import "context"

// Settlement is the net currency and item movement applied to a character at checkout
type Settlement struct {
	Reference   string         `json:"reference"`
	CharacterID string         `json:"characterId"`
	NetCopper   int            `json:"netCopper"`
	Bought      []LineItem     `json:"bought,omitempty"`
	Sold        []SellLineItem `json:"sold,omitempty"`
}

// SettlementResult reports the character's purse around a settlement
type SettlementResult struct {
	Before Amount `json:"before"`
	After  Amount `json:"after"`
}

// CurrencySettler commits a settlement onto a character sheet.
// Reference makes the call idempotent.
type CurrencySettler interface {
	ApplySettlement(ctx context.Context, settlement Settlement) (SettlementResult, error)
}
