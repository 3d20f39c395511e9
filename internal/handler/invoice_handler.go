package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"payment-ledger/internal/models"
	"payment-ledger/internal/service"
)

type InvoiceHandler struct {
	store    service.Datastore
	payments *service.PaymentService
	logger   *zap.Logger
}

func NewInvoiceHandler(store service.Datastore, payments *service.PaymentService, logger *zap.Logger) *InvoiceHandler {
	return &InvoiceHandler{store: store, payments: payments, logger: logger}
}

// CreateInvoice handles POST /api/v1/invoices
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	var req models.InvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.TotalAmount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "total_amount must be positive"})
		return
	}

	now := time.Now().UTC()
	inv := &models.Invoice{
		ID:          uuid.New().String(),
		Number:      req.Number,
		TotalAmount: req.TotalAmount,
		DueAmount:   req.TotalAmount,
		Status:      models.InvoiceUnpaid,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.store.Invoices().Create(c.Request.Context(), inv); err != nil {
		h.logger.Error("failed to create invoice", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create invoice"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"invoice": inv})
}

// GetInvoice handles GET /api/v1/invoices/:id. The due amount is clamped only
// here, in the presentation of available_to_pay; the stored value stays raw.
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	inv, err := h.store.Invoices().GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("failed to load invoice", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load invoice"})
		return
	}
	if inv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"invoice":          inv,
		"available_to_pay": inv.AvailableToPay(),
	})
}

// ListInvoicePayments handles GET /api/v1/invoices/:id/payments
func (h *InvoiceHandler) ListInvoicePayments(c *gin.Context) {
	payments, err := h.payments.ListPayments(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("failed to list payments", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list payments"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments})
}
