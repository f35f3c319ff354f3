package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletop-shop/shop-engine/internal/domain"
)

func newTestReceiptService(receipts *fakeReceiptRepo, ledgers *fakeLedgerRepo) *ReceiptService {
	svc := NewReceiptService(receipts, ledgers, testLogger(), testMetrics())
	svc.now = func() time.Time { return time.Date(2024, 3, 9, 18, 30, 0, 0, time.UTC) }
	return svc
}

func receiptCommand() BuildReceiptCommand {
	return BuildReceiptCommand{
		OwnerID:      "u1",
		ShopName:     "Anvil",
		CustomerName: "Thorin",
		Buy:          []domain.LineItem{{ItemID: "x", Name: "Item X", Quantity: 2, Price: domain.Amount{GP: 5}}},
		Before:       domain.Amount{GP: 100},
		After:        domain.Amount{GP: 90},
	}
}

func TestReceiptService_DuplicateNames(t *testing.T) {
	ctx := context.Background()
	repo := &fakeReceiptRepo{}
	svc := newTestReceiptService(repo, &fakeLedgerRepo{})

	first, err := svc.CreateReceipt(ctx, receiptCommand())
	require.NoError(t, err)
	second, err := svc.CreateReceipt(ctx, receiptCommand())
	require.NoError(t, err)

	assert.Equal(t, "Receipt: Thorin - Anvil - 2024-03-09", first.Name)
	assert.Equal(t, "Receipt: Thorin - Anvil - 2024-03-09 (2)", second.Name)
	assert.Contains(t, first.Body, "Net: 10gp (pay)")
	assert.Len(t, repo.receipts, 2)
}

func TestReceiptService_NamesAreScopedToOwner(t *testing.T) {
	ctx := context.Background()
	svc := newTestReceiptService(&fakeReceiptRepo{}, &fakeLedgerRepo{})

	_, err := svc.CreateReceipt(ctx, receiptCommand())
	require.NoError(t, err)

	cmd := receiptCommand()
	cmd.OwnerID = "u2"
	other, err := svc.CreateReceipt(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, "Receipt: Thorin - Anvil - 2024-03-09", other.Name)
}

func TestReceiptService_PersistIsIdempotentByID(t *testing.T) {
	ctx := context.Background()
	repo := &fakeReceiptRepo{}
	svc := newTestReceiptService(repo, &fakeLedgerRepo{})

	receipt := svc.BuildReceipt(receiptCommand())
	first, err := svc.PersistReceipt(ctx, "u1", receipt)
	require.NoError(t, err)
	again, err := svc.PersistReceipt(ctx, "u1", receipt)
	require.NoError(t, err)

	assert.Equal(t, first.Name, again.Name)
	assert.Len(t, repo.receipts, 1)
}

func TestReceiptService_PersistenceError(t *testing.T) {
	repo := &fakeReceiptRepo{createErr: errors.New("duplicate key")}
	svc := newTestReceiptService(repo, &fakeLedgerRepo{})

	_, err := svc.CreateReceipt(context.Background(), receiptCommand())
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestReceiptService_Ledger(t *testing.T) {
	ctx := context.Background()
	ledgers := &fakeLedgerRepo{}
	svc := newTestReceiptService(&fakeReceiptRepo{}, ledgers)

	empty, err := svc.GetLedger(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.Entries)
	assert.Zero(t, ledgers.saves, "reading must not create the ledger")

	entry, err := svc.AppendLedgerEntry(ctx, "", AppendLedgerEntryCommand{
		Actor:     "Thorin",
		ShopName:  "Anvil",
		Type:      domain.LedgerPurchase,
		Amount:    domain.Amount{GP: 10},
		Direction: domain.DirectionPay,
		Items:     []string{"Item X x2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "[2024-03-09 18:30] Thorin @ Anvil | purchase | 10gp pay | Item X x2", entry.Line)

	_, err = svc.AppendLedgerEntry(ctx, "entry-2", AppendLedgerEntryCommand{Actor: "Balin", Amount: domain.Amount{SP: 5}})
	require.NoError(t, err)
	_, err = svc.AppendLedgerEntry(ctx, "entry-2", AppendLedgerEntryCommand{Actor: "Balin", Amount: domain.Amount{SP: 5}})
	require.NoError(t, err)

	ledger, err := svc.GetLedger(ctx)
	require.NoError(t, err)
	require.Len(t, ledger.Entries, 2)
	assert.Equal(t, "adjustment", ledger.Entries[1].Type)
	assert.Equal(t, domain.LedgerID, ledger.LedgerID)
	assert.Equal(t, 2, ledgers.saves)

	_, err = svc.AppendLedgerEntry(ctx, "", AppendLedgerEntryCommand{})
	assert.Error(t, err)
}
