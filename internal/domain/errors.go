package domain

import "errors"

// Errors for the shop domain
var (
	ErrItemNotFound        = errors.New("item not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrBasketsLocked       = errors.New("baskets are merged and locked")
	ErrCannotMerge         = errors.New("cannot merge: both baskets must be non-empty and not already merged")
	ErrNotMerged           = errors.New("baskets are not merged")
	ErrShopNotConfigured   = errors.New("shop is not configured")
	ErrPersistence         = errors.New("persistence failed")
	ErrItemNotInBasket     = errors.New("item not in basket")
	ErrNoSellSource        = errors.New("no sell source character; begin a sell session first")
	ErrCatalogEmpty        = errors.New("no catalog items matched the generation options")
	ErrInvalidDiceNotation = errors.New("invalid dice notation")
	ErrInvalidAmount       = errors.New("invalid currency amount")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrInvalidShop         = errors.New("invalid shop")
	ErrShopMismatch        = errors.New("buy basket holds items from another shop")
	ErrInvalidHaggle       = errors.New("haggle percent out of range")
	ErrEmptyBaskets        = errors.New("nothing to settle: both baskets are empty")
	ErrNoCharacter         = errors.New("no character to settle against")
	ErrCharacterNotFound   = errors.New("character not found")
	ErrInsufficientFunds   = errors.New("character cannot afford the transaction")
	ErrCheckoutInProgress  = errors.New("baskets are held by a checkout in progress")

	// ErrConcurrentModification is returned by repositories when the stored
	// document changed since it was read
	ErrConcurrentModification = errors.New("document was modified concurrently")
)
