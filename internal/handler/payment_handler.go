package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"payment-ledger/internal/models"
	"payment-ledger/internal/service"
)

type PaymentHandler struct {
	payments *service.PaymentService
	engine   *service.TransitionEngine
	logger   *zap.Logger
}

func NewPaymentHandler(payments *service.PaymentService, engine *service.TransitionEngine, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		engine:   engine,
		logger:   logger,
	}
}

// CreatePayment handles POST /api/v1/payments
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req models.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.payments.CreatePayment(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrInvoiceNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
		default:
			h.logger.Error("failed to create payment", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process payment"})
		}
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetPayment handles GET /api/v1/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	paymentID := c.Param("id")

	payment, err := h.payments.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

// RequestTransition handles POST /api/v1/payments/:id/transition. The actor
// class arrives in the X-Actor-Class header from the external permission
// layer; the engine validates it against the transition table.
func (h *PaymentHandler) RequestTransition(c *gin.Context) {
	paymentID := c.Param("id")

	var req models.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor := models.ActorClass(c.GetHeader("X-Actor-Class"))
	if actor == "" {
		actor = models.ActorPrivilegedManual
	}

	payment, err := h.engine.RequestTransition(c.Request.Context(), paymentID, req.TargetStatus, actor)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPaymentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		case errors.Is(err, service.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrIllegalTransition):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrConcurrencyTimeout):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Payment busy, retry later"})
		default:
			h.logger.Error("failed to apply transition", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply transition"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}
