package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tabletop-shop/shop-engine/internal/application"
	"github.com/tabletop-shop/shop-engine/internal/domain"
	"github.com/tabletop-shop/shop-engine/pkg/logging"
	"github.com/tabletop-shop/shop-engine/pkg/middleware"
)

// ReceiptService is the receipt and ledger use case surface
type ReceiptService interface {
	CreateReceipt(ctx context.Context, cmd application.BuildReceiptCommand) (*application.ReceiptDTO, error)
	GetReceipt(ctx context.Context, receiptID string) (*application.ReceiptDTO, error)
	AppendLedgerEntry(ctx context.Context, entryID string, cmd application.AppendLedgerEntryCommand) (*application.LedgerEntryDTO, error)
	GetLedger(ctx context.Context) (*application.LedgerDTO, error)
}

// ReceiptHandlers contains handlers for receipts and the transaction ledger
type ReceiptHandlers struct {
	service ReceiptService
	logger  *logging.Logger
}

// NewReceiptHandlers creates a new ReceiptHandlers
func NewReceiptHandlers(service ReceiptService, logger *logging.Logger) *ReceiptHandlers {
	return &ReceiptHandlers{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers receipt and ledger routes on the router
func (h *ReceiptHandlers) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/receipts", h.CreateReceipt)
	router.GET("/receipts/:receiptId", h.GetReceipt)
	router.GET("/ledger", h.GetLedger)
	router.POST("/ledger/entries", h.AppendLedgerEntry)
}

// CreateReceipt builds and stores a receipt outside of checkout
func (h *ReceiptHandlers) CreateReceipt(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req CreateReceiptRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	cmd, err := req.toCommand()
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	receipt, err := h.service.CreateReceipt(c.Request.Context(), cmd)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusCreated, receipt)
}

// GetReceipt returns a stored receipt
func (h *ReceiptHandlers) GetReceipt(c *gin.Context) {
	receipt, err := h.service.GetReceipt(c.Request.Context(), c.Param("receiptId"))
	if err != nil {
		middleware.NewErrorResponder(c, h.logger.Logger).RespondWithError(err)
		return
	}

	if c.NegotiateFormat(gin.MIMEJSON, gin.MIMEPlain) == gin.MIMEPlain {
		c.String(http.StatusOK, receipt.Body)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// AppendLedgerEntry appends one line to the transaction ledger
func (h *ReceiptHandlers) AppendLedgerEntry(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req AppendLedgerEntryRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	entryType := domain.LedgerEntryType(req.Type)
	if entryType == "" {
		entryType = domain.LedgerAdjustment
	}
	entryID := req.EntryID
	if entryID == "" {
		entryID = uuid.New().String()
	}

	entry, err := h.service.AppendLedgerEntry(c.Request.Context(), entryID, application.AppendLedgerEntryCommand{
		Actor:       req.Actor,
		ShopName:    req.ShopName,
		Type:        entryType,
		Amount:      amount,
		Direction:   domain.Direction(req.Direction),
		Items:       req.Items,
		ReceiptName: req.ReceiptName,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// GetLedger returns the whole ledger document
func (h *ReceiptHandlers) GetLedger(c *gin.Context) {
	ledger, err := h.service.GetLedger(c.Request.Context())
	if err != nil {
		middleware.NewErrorResponder(c, h.logger.Logger).RespondWithError(err)
		return
	}

	if c.NegotiateFormat(gin.MIMEJSON, gin.MIMEPlain) == gin.MIMEPlain {
		c.String(http.StatusOK, ledger.Body)
		return
	}
	c.JSON(http.StatusOK, ledger)
}
