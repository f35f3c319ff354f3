package domain

import "context"

// ShopRepository defines the interface for shop persistence
type ShopRepository interface {
	// Save writes the whole shop document and records its pending events.
	// It fails with ErrConcurrentModification when the stored shop is no
	// longer at shop.Version, and bumps shop.Version on success.
	Save(ctx context.Context, shop *Shop) error

	// FindByID returns nil when the shop does not exist
	FindByID(ctx context.Context, shopID string) (*Shop, error)

	// List returns every shop ordered by name
	List(ctx context.Context) ([]*Shop, error)
}

// BasketStateRepository defines the interface for per-user basket state
type BasketStateRepository interface {
	// Save writes the whole basket state and records its pending events.
	// Versioned like ShopRepository.Save.
	Save(ctx context.Context, state *BasketState) error

	// FindByUserID returns nil when the user has no basket state yet
	FindByUserID(ctx context.Context, userID string) (*BasketState, error)
}

// ReceiptRepository defines the interface for receipt documents
type ReceiptRepository interface {
	// Create inserts a new receipt; names are unique per owner
	Create(ctx context.Context, receipt *Receipt) error

	// FindNames returns the names of the owner's receipts that start with prefix
	FindNames(ctx context.Context, ownerID, prefix string) ([]string, error)

	// FindByID returns nil when the receipt does not exist
	FindByID(ctx context.Context, receiptID string) (*Receipt, error)
}

// LedgerRepository defines the interface for the singleton ledger
type LedgerRepository interface {
	// Get returns nil when the ledger has not been created yet
	Get(ctx context.Context) (*Ledger, error)

	// Save writes the whole ledger document and records its pending events.
	// Versioned like ShopRepository.Save.
	Save(ctx context.Context, ledger *Ledger) error
}
