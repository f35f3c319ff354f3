package application

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/tabletop-shop/shop-engine/internal/domain"
	"github.com/tabletop-shop/shop-engine/pkg/logging"
	"github.com/tabletop-shop/shop-engine/pkg/metrics"
	"github.com/tabletop-shop/shop-engine/pkg/temporal"
)

// WorkflowStarter starts workflow executions
type WorkflowStarter interface {
	StartWorkflow(ctx context.Context, workflowID, taskQueue, workflowName string, args ...interface{}) (client.WorkflowRun, error)
}

// CheckoutInput is the settlement workflow input
type CheckoutInput struct {
	UserID       string    `json:"userId"`
	ShopID       string    `json:"shopId,omitempty"`
	CharacterID  string    `json:"characterId,omitempty"`
	OwnerID      string    `json:"ownerId"`
	CustomerName string    `json:"customerName"`
	RequestedAt  time.Time `json:"requestedAt"`
}

// CheckoutService starts checkout settlement workflows
type CheckoutService struct {
	baskets *BasketService
	starter WorkflowStarter
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewCheckoutService creates a new CheckoutService
func NewCheckoutService(baskets *BasketService, starter WorkflowStarter, logger *logging.Logger, m *metrics.Metrics) *CheckoutService {
	return &CheckoutService{
		baskets: baskets,
		starter: starter,
		logger:  logger.WithComponent("checkout-service"),
		metrics: m,
	}
}

// CheckoutWorkflowID returns the workflow id for a user's checkout.
// At most one checkout per user runs at a time; a second start joins the running one.
func CheckoutWorkflowID(userID string) string {
	return "checkout-" + userID
}

// StartCheckout validates that there is something to settle and starts the workflow
func (s *CheckoutService) StartCheckout(ctx context.Context, cmd CheckoutCommand) (*CheckoutDTO, error) {
	if _, err := s.baskets.PrepareCheckout(ctx, cmd); err != nil {
		return nil, err
	}

	input := CheckoutInput{
		UserID:       cmd.UserID,
		ShopID:       cmd.ShopID,
		CharacterID:  cmd.CharacterID,
		OwnerID:      cmd.OwnerID,
		CustomerName: cmd.CustomerName,
		RequestedAt:  s.baskets.now(),
	}
	workflowID := CheckoutWorkflowID(cmd.UserID)

	run, err := s.starter.StartWorkflow(ctx, workflowID, temporal.TaskQueues.Checkout, temporal.WorkflowNames.Checkout, input)
	if err != nil {
		s.logger.Error("Failed to start checkout workflow", "userId", cmd.UserID, "error", err)
		return nil, fmt.Errorf("failed to start checkout: %w", err)
	}

	s.metrics.RecordWorkflowStarted(temporal.WorkflowNames.Checkout)
	s.logger.Info("Started checkout workflow", "workflowId", run.GetID(), "runId", run.GetRunID(), "userId", cmd.UserID)
	return &CheckoutDTO{UserID: cmd.UserID, WorkflowID: run.GetID(), RunID: run.GetRunID()}, nil
}

// NonRetryableCheckoutErrors fail a checkout without retry
var NonRetryableCheckoutErrors = []error{
	domain.ErrEmptyBaskets,
	domain.ErrInsufficientStock,
	domain.ErrItemNotFound,
	domain.ErrShopNotConfigured,
	domain.ErrShopMismatch,
	domain.ErrNoCharacter,
	domain.ErrCharacterNotFound,
	domain.ErrInsufficientFunds,
	domain.ErrCheckoutInProgress,
}
