package activities

import (
	"context"
	"errors"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/tabletop-shop/shop-engine/internal/application"
	"github.com/tabletop-shop/shop-engine/internal/domain"
	"github.com/tabletop-shop/shop-engine/pkg/logging"
	"github.com/tabletop-shop/shop-engine/pkg/metrics"
)

// CheckoutRejectedErrorType marks checkout failures that retrying cannot fix
const CheckoutRejectedErrorType = "CheckoutRejected"

// BasketSettler holds, releases and resets a user's baskets
type BasketSettler interface {
	PrepareCheckout(ctx context.Context, cmd application.CheckoutCommand) (*application.CheckoutPlan, error)
	ReleaseCheckout(ctx context.Context, userID, reference string) error
	Settle(ctx context.Context, userID, reference, receiptID string, netCopper int) error
}

// StockCommitter moves purchased units out of, and back into, shop stock
type StockCommitter interface {
	CommitPurchase(ctx context.Context, shopID string, lines []domain.LineItem) error
	RestorePurchase(ctx context.Context, shopID string, lines []domain.LineItem) error
}

// ReceiptIssuer builds and stores receipts and ledger lines
type ReceiptIssuer interface {
	BuildReceipt(cmd application.BuildReceiptCommand) *domain.Receipt
	PersistReceipt(ctx context.Context, ownerID string, receipt *domain.Receipt) (*application.ReceiptDTO, error)
	AppendLedgerEntry(ctx context.Context, entryID string, cmd application.AppendLedgerEntryCommand) (*application.LedgerEntryDTO, error)
}

// PrepareCheckoutInput names the checkout that takes hold of the baskets
type PrepareCheckoutInput struct {
	Checkout  application.CheckoutInput `json:"checkout"`
	Reference string                    `json:"reference"`
}

// ReleaseBasketsInput lifts the hold of a checkout that moved no money
type ReleaseBasketsInput struct {
	UserID    string `json:"userId"`
	Reference string `json:"reference"`
}

// StockInput names the purchased lines of one shop
type StockInput struct {
	ShopID string            `json:"shopId"`
	Lines  []domain.LineItem `json:"lines"`
}

// IssueReceiptInput carries a prepared plan and the purse around settlement
type IssueReceiptInput struct {
	ReceiptID string                   `json:"receiptId"`
	Plan      application.CheckoutPlan `json:"plan"`
	Before    domain.Amount            `json:"before"`
	After     domain.Amount            `json:"after"`
}

// AppendLedgerInput carries one ledger line keyed by its entry id
type AppendLedgerInput struct {
	EntryID string                               `json:"entryId"`
	Command application.AppendLedgerEntryCommand `json:"command"`
}

// SettleBasketsInput resets a user's baskets after checkout
type SettleBasketsInput struct {
	UserID    string `json:"userId"`
	Reference string `json:"reference"`
	ReceiptID string `json:"receiptId"`
	NetCopper int    `json:"netCopper"`
}

// CheckoutActivities contains the checkout settlement activities
type CheckoutActivities struct {
	baskets  BasketSettler
	stock    StockCommitter
	receipts ReceiptIssuer
	settler  domain.CurrencySettler
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

// NewCheckoutActivities creates a new CheckoutActivities instance
func NewCheckoutActivities(
	baskets BasketSettler,
	stock StockCommitter,
	receipts ReceiptIssuer,
	settler domain.CurrencySettler,
	logger *logging.Logger,
	m *metrics.Metrics,
) *CheckoutActivities {
	return &CheckoutActivities{
		baskets:  baskets,
		stock:    stock,
		receipts: receipts,
		settler:  settler,
		logger:   logger.WithComponent("checkout-activities"),
		metrics:  m,
	}
}

// classify turns rejections that a retry cannot fix into non-retryable errors
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range application.NonRetryableCheckoutErrors {
		if errors.Is(err, target) {
			return temporal.NewNonRetryableApplicationError(err.Error(), CheckoutRejectedErrorType, err)
		}
	}
	return err
}

func (a *CheckoutActivities) record(name string, start time.Time, err error) {
	if a.metrics != nil {
		a.metrics.RecordActivityCompleted(name, err == nil, time.Since(start))
	}
}

// PrepareCheckout holds the user's baskets for the checkout and snapshots them with the quote
func (a *CheckoutActivities) PrepareCheckout(ctx context.Context, in PrepareCheckoutInput) (plan *application.CheckoutPlan, err error) {
	defer func(start time.Time) { a.record("PrepareCheckout", start, err) }(time.Now())

	input := in.Checkout
	activity.GetLogger(ctx).Info("Preparing checkout", "userId", input.UserID, "reference", in.Reference)

	plan, err = a.baskets.PrepareCheckout(ctx, application.CheckoutCommand{
		UserID:       input.UserID,
		Reference:    in.Reference,
		ShopID:       input.ShopID,
		CharacterID:  input.CharacterID,
		OwnerID:      input.OwnerID,
		CustomerName: input.CustomerName,
	})
	if err != nil {
		a.logger.Warn("Checkout preparation failed", "userId", input.UserID, "error", err)
		return nil, classify(err)
	}
	return plan, nil
}

// ReleaseBaskets lifts the checkout hold so the user can edit the baskets again
func (a *CheckoutActivities) ReleaseBaskets(ctx context.Context, input ReleaseBasketsInput) (err error) {
	defer func(start time.Time) { a.record("ReleaseBaskets", start, err) }(time.Now())

	if err = a.baskets.ReleaseCheckout(ctx, input.UserID, input.Reference); err != nil {
		a.logger.Error("Failed to release baskets", "userId", input.UserID, "reference", input.Reference, "error", err)
		return err
	}
	return nil
}

// CommitStock takes purchased units out of the shop. Stale baskets are rejected.
func (a *CheckoutActivities) CommitStock(ctx context.Context, input StockInput) (err error) {
	defer func(start time.Time) { a.record("CommitStock", start, err) }(time.Now())

	activity.GetLogger(ctx).Info("Committing stock", "shopId", input.ShopID, "lines", len(input.Lines))

	if err = a.stock.CommitPurchase(ctx, input.ShopID, input.Lines); err != nil {
		a.logger.Warn("Stock commit failed", "shopId", input.ShopID, "error", err)
		return classify(err)
	}
	return nil
}

// RestoreStock returns committed units to the shop
func (a *CheckoutActivities) RestoreStock(ctx context.Context, input StockInput) (err error) {
	defer func(start time.Time) { a.record("RestoreStock", start, err) }(time.Now())

	activity.GetLogger(ctx).Info("Restoring stock", "shopId", input.ShopID, "lines", len(input.Lines))

	if err = a.stock.RestorePurchase(ctx, input.ShopID, input.Lines); err != nil {
		a.logger.Error("Stock restore failed", "shopId", input.ShopID, "error", err)
		return err
	}
	return nil
}

// ApplyCurrencyDelta commits the net amount and moved items onto the character sheet
func (a *CheckoutActivities) ApplyCurrencyDelta(ctx context.Context, settlement domain.Settlement) (result *domain.SettlementResult, err error) {
	defer func(start time.Time) { a.record("ApplyCurrencyDelta", start, err) }(time.Now())

	activity.GetLogger(ctx).Info("Applying currency delta",
		"characterId", settlement.CharacterID,
		"netCopper", settlement.NetCopper,
		"reference", settlement.Reference,
	)

	res, err := a.settler.ApplySettlement(ctx, settlement)
	if err != nil {
		a.logger.Warn("Currency settlement failed", "characterId", settlement.CharacterID, "error", err)
		return nil, classify(err)
	}
	return &res, nil
}

// IssueReceipt renders and stores the receipt under the given id
func (a *CheckoutActivities) IssueReceipt(ctx context.Context, input IssueReceiptInput) (dto *application.ReceiptDTO, err error) {
	defer func(start time.Time) { a.record("IssueReceipt", start, err) }(time.Now())

	plan := input.Plan
	receipt := a.receipts.BuildReceipt(application.BuildReceiptCommand{
		OwnerID:      plan.OwnerID,
		ShopName:     plan.ShopName,
		CustomerName: plan.CustomerName,
		CharacterID:  plan.CharacterID,
		Buy:          plan.Buy,
		Sell:         plan.Sell,
		Haggle:       plan.Haggle,
		Before:       input.Before,
		After:        input.After,
	})
	receipt.ReceiptID = input.ReceiptID

	dto, err = a.receipts.PersistReceipt(ctx, plan.OwnerID, receipt)
	if err != nil {
		a.logger.Error("Failed to issue receipt", "receiptId", input.ReceiptID, "error", err)
		return nil, err
	}
	a.logger.Info("Issued receipt", "receiptId", dto.ReceiptID, "name", dto.Name)
	return dto, nil
}

// AppendLedger appends the checkout's ledger line; replays of the same entry id are no-ops
func (a *CheckoutActivities) AppendLedger(ctx context.Context, input AppendLedgerInput) (entry *application.LedgerEntryDTO, err error) {
	defer func(start time.Time) { a.record("AppendLedger", start, err) }(time.Now())

	entry, err = a.receipts.AppendLedgerEntry(ctx, input.EntryID, input.Command)
	if err != nil {
		a.logger.Error("Failed to append ledger entry", "entryId", input.EntryID, "error", err)
		return nil, err
	}
	return entry, nil
}

// SettleBaskets clears the baskets held by the checkout, with their merge lock
func (a *CheckoutActivities) SettleBaskets(ctx context.Context, input SettleBasketsInput) (err error) {
	defer func(start time.Time) { a.record("SettleBaskets", start, err) }(time.Now())

	if err = a.baskets.Settle(ctx, input.UserID, input.Reference, input.ReceiptID, input.NetCopper); err != nil {
		a.logger.Error("Failed to settle baskets", "userId", input.UserID, "error", err)
		return err
	}
	return nil
}
