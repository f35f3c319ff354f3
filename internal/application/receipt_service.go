package application

import (
	"context"
	"time"

	"github.com/tabletop-shop/shop-engine/internal/domain"
	apperrors "github.com/tabletop-shop/shop-engine/pkg/errors"
	"github.com/tabletop-shop/shop-engine/pkg/logging"
	"github.com/tabletop-shop/shop-engine/pkg/metrics"
)

// ReceiptService persists receipts and maintains the transaction ledger
type ReceiptService struct {
	receipts domain.ReceiptRepository
	ledgers  domain.LedgerRepository
	locks    *keyedLocker
	now      func() time.Time
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

// NewReceiptService creates a new ReceiptService
func NewReceiptService(
	receipts domain.ReceiptRepository,
	ledgers domain.LedgerRepository,
	logger *logging.Logger,
	m *metrics.Metrics,
) *ReceiptService {
	return &ReceiptService{
		receipts: receipts,
		ledgers:  ledgers,
		locks:    newKeyedLocker(),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.WithComponent("receipt-service"),
		metrics:  m,
	}
}

// BuildReceipt renders a receipt without persisting it
func (s *ReceiptService) BuildReceipt(cmd BuildReceiptCommand) *domain.Receipt {
	header := domain.ReceiptHeader{
		ShopName:     cmd.ShopName,
		CustomerName: cmd.CustomerName,
		CharacterID:  cmd.CharacterID,
		Timestamp:    s.now(),
	}
	return domain.BuildReceipt(header, cmd.Buy, cmd.Sell, cmd.Haggle, cmd.Before, cmd.After)
}

// PersistReceipt names the receipt after its customer, shop and today's date
// and stores it for ownerID. A receipt whose id is already stored is returned
// unchanged. Store failures are logged and returned as ErrPersistence.
func (s *ReceiptService) PersistReceipt(ctx context.Context, ownerID string, receipt *domain.Receipt) (*ReceiptDTO, error) {
	unlock := s.locks.Lock(receiptKey(ownerID))
	defer unlock()

	existing, err := s.receipts.FindByID(ctx, receipt.ReceiptID)
	if err != nil {
		s.logger.Error("Failed to look up receipt", "receiptId", receipt.ReceiptID, "error", err)
		return nil, persistenceError(err)
	}
	if existing != nil {
		return ToReceiptDTO(existing), nil
	}

	base := domain.ReceiptBaseName(receipt.Header.CustomerName, receipt.Header.ShopName, s.now())
	names, err := s.receipts.FindNames(ctx, ownerID, base)
	if err != nil {
		s.logger.Error("Failed to list receipt names", "ownerId", ownerID, "error", err)
		return nil, persistenceError(err)
	}

	receipt.Issue(ownerID, domain.NextReceiptName(base, names))
	if err := s.receipts.Create(ctx, receipt); err != nil {
		s.logger.Error("Failed to create receipt", "ownerId", ownerID, "name", receipt.Name, "error", err)
		return nil, persistenceError(err)
	}

	s.metrics.RecordReceiptIssued(string(receipt.Quote.Direction))
	s.logger.Audit(ctx, "issue", "receipt", receipt.ReceiptID, ownerID, map[string]any{
		"name":      receipt.Name,
		"netCopper": receipt.Quote.NetCopper,
	})
	return ToReceiptDTO(receipt), nil
}

// CreateReceipt builds and persists a receipt in one step
func (s *ReceiptService) CreateReceipt(ctx context.Context, cmd BuildReceiptCommand) (*ReceiptDTO, error) {
	return s.PersistReceipt(ctx, cmd.OwnerID, s.BuildReceipt(cmd))
}

// GetReceipt returns a stored receipt
func (s *ReceiptService) GetReceipt(ctx context.Context, receiptID string) (*ReceiptDTO, error) {
	receipt, err := s.receipts.FindByID(ctx, receiptID)
	if err != nil {
		return nil, persistenceError(err)
	}
	if receipt == nil {
		return nil, apperrors.ErrNotFoundWithID("receipt", receiptID)
	}
	return ToReceiptDTO(receipt), nil
}

func (s *ReceiptService) loadLedger(ctx context.Context) (*domain.Ledger, error) {
	ledger, err := s.ledgers.Get(ctx)
	if err != nil {
		s.logger.Error("Failed to load ledger", "error", err)
		return nil, persistenceError(err)
	}
	if ledger == nil {
		ledger = domain.NewLedger()
	}
	return ledger, nil
}

// AppendLedgerEntry finds or creates the ledger and appends one entry.
// Appending an entry id that is already present is a no-op.
func (s *ReceiptService) AppendLedgerEntry(ctx context.Context, entryID string, cmd AppendLedgerEntryCommand) (*LedgerEntryDTO, error) {
	if cmd.Actor == "" {
		return nil, apperrors.ErrValidation("actor is required")
	}

	entryType := cmd.Type
	if entryType == "" {
		entryType = domain.LedgerAdjustment
	}

	unlock := s.locks.Lock(ledgerKey)
	defer unlock()

	var entry domain.LedgerEntry
	appended := false
	err := retryOnConflict(ctx, func() error {
		ledger, err := s.loadLedger(ctx)
		if err != nil {
			return err
		}

		if entryID != "" {
			for _, e := range ledger.Entries {
				if e.EntryID == entryID {
					entry, appended = e, false
					return nil
				}
			}
		}

		entry = ledger.Append(domain.LedgerEntry{
			EntryID:     entryID,
			Timestamp:   s.now(),
			Actor:       cmd.Actor,
			ShopName:    cmd.ShopName,
			Type:        entryType,
			Amount:      cmd.Amount,
			Direction:   cmd.Direction,
			Items:       cmd.Items,
			ReceiptName: cmd.ReceiptName,
		})
		appended = true

		if err := s.ledgers.Save(ctx, ledger); err != nil {
			s.logger.Error("Failed to save ledger", "entryId", entry.EntryID, "error", err)
			return persistenceError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if appended {
		s.metrics.RecordLedgerEntry(string(entry.Type))
	}
	dto := ToLedgerEntryDTO(entry)
	return &dto, nil
}

// GetLedger returns the ledger; an empty one when nothing was recorded yet
func (s *ReceiptService) GetLedger(ctx context.Context) (*LedgerDTO, error) {
	ledger, err := s.loadLedger(ctx)
	if err != nil {
		return nil, err
	}
	return ToLedgerDTO(ledger), nil
}
