package workflows

import (
	"fmt"

	"go.temporal.io/sdk/workflow"

	"github.com/tabletop-shop/shop-engine/internal/activities"
	"github.com/tabletop-shop/shop-engine/internal/application"
	"github.com/tabletop-shop/shop-engine/internal/domain"
)

// Checkout statuses
const (
	StatusCompleted         = "completed"
	StatusPrepareFailed     = "prepare_failed"
	StatusStockFailed       = "stock_failed"
	StatusSettlementFailed  = "settlement_failed"
	StatusReceiptFailed     = "receipt_failed"
	StatusBasketResetFailed = "basket_reset_failed"
)

// CheckoutResult represents the outcome of a checkout
type CheckoutResult struct {
	UserID      string `json:"userId"`
	Status      string `json:"status"`
	ReceiptID   string `json:"receiptId,omitempty"`
	ReceiptName string `json:"receiptName,omitempty"`
	NetCopper   int    `json:"netCopper"`
	Direction   string `json:"direction,omitempty"`
	Before      string `json:"before,omitempty"`
	After       string `json:"after,omitempty"`
	Compensated bool   `json:"compensated,omitempty"`
	Error       string `json:"error,omitempty"`
}

// CheckoutWorkflow settles a user's baskets:
// prepare -> commit stock -> apply currency -> issue receipt -> append ledger -> reset baskets.
// Prepare holds the baskets for this run. Until money moves, any failure restores
// committed stock and releases the hold. Once money has moved the baskets are
// always reset, even when the receipt could not be stored.
func CheckoutWorkflow(ctx workflow.Context, input application.CheckoutInput) (*CheckoutResult, error) {
	logger := workflow.GetLogger(ctx)
	execution := workflow.GetInfo(ctx).WorkflowExecution
	// one key per run; activity retries reuse it, later checkouts of the same user do not
	reference := execution.ID + "-" + execution.RunID
	logger.Info("Starting checkout workflow", "userId", input.UserID, "reference", reference)

	result := &CheckoutResult{UserID: input.UserID, Status: "in_progress"}
	hold := activities.ReleaseBasketsInput{UserID: input.UserID, Reference: reference}

	standardCtx := workflow.WithActivityOptions(ctx, GetStandardActivityOptions())
	criticalCtx := workflow.WithActivityOptions(ctx, GetCriticalActivityOptions())
	singleCtx := workflow.WithActivityOptions(ctx, GetSingleAttemptActivityOptions())

	// Step 1: hold the baskets and snapshot them with the quote
	var plan application.CheckoutPlan
	prepare := activities.PrepareCheckoutInput{Checkout: input, Reference: reference}
	if err := workflow.ExecuteActivity(standardCtx, "PrepareCheckout", prepare).Get(ctx, &plan); err != nil {
		// a timed out attempt may still have taken the hold
		releaseBaskets(ctx, hold)
		return failed(result, StatusPrepareFailed, err)
	}
	result.NetCopper = plan.Quote.NetCopper
	result.Direction = string(plan.Quote.Direction)

	// Step 2: take purchased units out of stock
	stock := activities.StockInput{ShopID: plan.ShopID, Lines: plan.Buy}
	stockCommitted := false
	if len(plan.Buy) > 0 {
		if err := workflow.ExecuteActivity(singleCtx, "CommitStock", stock).Get(ctx, nil); err != nil {
			releaseBaskets(ctx, hold)
			return failed(result, StatusStockFailed, err)
		}
		stockCommitted = true
	}

	// Step 3: move money and items on the character sheet
	settlement := domain.Settlement{
		Reference:   reference,
		CharacterID: plan.CharacterID,
		NetCopper:   plan.Quote.NetCopper,
		Bought:      plan.Buy,
		Sold:        plan.Sell,
	}
	var purse domain.SettlementResult
	if err := workflow.ExecuteActivity(standardCtx, "ApplyCurrencyDelta", settlement).Get(ctx, &purse); err != nil {
		if stockCommitted {
			result.Compensated = compensateStock(ctx, stock)
		}
		releaseBaskets(ctx, hold)
		return failed(result, StatusSettlementFailed, err)
	}
	result.Before = purse.Before.String()
	result.After = purse.After.String()

	// Step 4: receipt, keyed by the run so retries find the same document.
	// The money has moved, so a failure is reported only after the baskets are reset.
	var receipt application.ReceiptDTO
	receiptErr := workflow.ExecuteActivity(criticalCtx, "IssueReceipt", activities.IssueReceiptInput{
		ReceiptID: "receipt-" + reference,
		Plan:      plan,
		Before:    purse.Before,
		After:     purse.After,
	}).Get(ctx, &receipt)
	if receiptErr != nil {
		logger.Error("Failed to issue receipt", "userId", input.UserID, "reference", reference, "error", receiptErr)
	} else {
		result.ReceiptID = receipt.ReceiptID
		result.ReceiptName = receipt.Name
	}

	// Step 5: ledger line; the transaction already happened so a failure here is logged only
	ledger := activities.AppendLedgerInput{
		EntryID: "ledger-" + reference,
		Command: ledgerCommand(plan, receipt.Name),
	}
	if err := workflow.ExecuteActivity(criticalCtx, "AppendLedger", ledger).Get(ctx, nil); err != nil {
		logger.Warn("Failed to append ledger entry", "userId", input.UserID, "error", err)
	}

	// Step 6: clear the held baskets and the merge lock. Retried until it lands,
	// even through cancellation, so a retry by the user cannot pay twice.
	disconnected, cancel := workflow.NewDisconnectedContext(ctx)
	defer cancel()
	settleCtx := workflow.WithActivityOptions(disconnected, GetUntilDoneActivityOptions())
	err := workflow.ExecuteActivity(settleCtx, "SettleBaskets", activities.SettleBasketsInput{
		UserID:    plan.UserID,
		Reference: reference,
		ReceiptID: result.ReceiptID,
		NetCopper: plan.Quote.NetCopper,
	}).Get(settleCtx, nil)
	if err != nil {
		return failed(result, StatusBasketResetFailed, err)
	}

	if receiptErr != nil {
		return failed(result, StatusReceiptFailed, receiptErr)
	}

	result.Status = StatusCompleted
	logger.Info("Checkout completed", "userId", input.UserID, "receiptId", result.ReceiptID, "netCopper", result.NetCopper)
	return result, nil
}

func failed(result *CheckoutResult, status string, err error) (*CheckoutResult, error) {
	result.Status = status
	result.Error = err.Error()
	return result, fmt.Errorf("checkout %s: %w", status, err)
}

// compensateStock puts committed units back, even when the workflow is being cancelled
func compensateStock(ctx workflow.Context, stock activities.StockInput) bool {
	logger := workflow.GetLogger(ctx)
	logger.Info("Restoring committed stock", "shopId", stock.ShopID)

	disconnected, cancel := workflow.NewDisconnectedContext(ctx)
	defer cancel()
	restoreCtx := workflow.WithActivityOptions(disconnected, GetCriticalActivityOptions())

	if err := workflow.ExecuteActivity(restoreCtx, "RestoreStock", stock).Get(restoreCtx, nil); err != nil {
		logger.Error("Stock compensation failed", "shopId", stock.ShopID, "error", err)
		return false
	}
	return true
}

// releaseBaskets lifts this run's hold after a failure that moved no money
func releaseBaskets(ctx workflow.Context, hold activities.ReleaseBasketsInput) {
	disconnected, cancel := workflow.NewDisconnectedContext(ctx)
	defer cancel()
	releaseCtx := workflow.WithActivityOptions(disconnected, GetCriticalActivityOptions())

	if err := workflow.ExecuteActivity(releaseCtx, "ReleaseBaskets", hold).Get(releaseCtx, nil); err != nil {
		workflow.GetLogger(ctx).Error("Failed to release baskets", "userId", hold.UserID, "reference", hold.Reference, "error", err)
	}
}

func ledgerCommand(plan application.CheckoutPlan, receiptName string) application.AppendLedgerEntryCommand {
	items := make([]string, 0, len(plan.Buy)+len(plan.Sell))
	for _, l := range plan.Buy {
		items = append(items, fmt.Sprintf("%s x%d", l.Name, l.Quantity))
	}
	for _, l := range plan.Sell {
		items = append(items, fmt.Sprintf("%s x%d (sold)", l.Name, l.Quantity))
	}

	net := plan.Quote.NetCopper
	if net < 0 {
		net = -net
	}
	return application.AppendLedgerEntryCommand{
		Actor:       plan.CustomerName,
		ShopName:    plan.ShopName,
		Type:        domain.EntryTypeFor(len(plan.Buy) > 0, len(plan.Sell) > 0),
		Amount:      domain.FromBaseUnits(net),
		Direction:   plan.Quote.Direction,
		Items:       items,
		ReceiptName: receiptName,
	}
}
