package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payment-ledger/internal/models"
	"payment-ledger/internal/service"
)

type WebhookHandler struct {
	pipeline *service.WebhookPipeline
	payments *service.PaymentService
	logger   *zap.Logger
}

func NewWebhookHandler(pipeline *service.WebhookPipeline, payments *service.PaymentService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{pipeline: pipeline, payments: payments, logger: logger}
}

// StripeWebhook handles POST /api/v1/webhooks/stripe. Accepted outcomes
// (applied, duplicate, ignored) return 2xx so the processor stops retrying;
// retryable rejections return 503 to request redelivery.
func (h *WebhookHandler) StripeWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
		return
	}

	outcome := h.pipeline.HandleWebhook(
		c.Request.Context(),
		payload,
		c.GetHeader("Stripe-Signature"),
		c.ClientIP(),
	)

	switch outcome.Status {
	case models.OutcomeApplied, models.OutcomeDuplicate, models.OutcomeIgnored:
		c.JSON(http.StatusOK, gin.H{"received": true, "status": outcome.Status, "payment_id": outcome.PaymentID})
	default:
		switch {
		case outcome.Retryable:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, retry"})
		case errors.Is(outcome.Err, service.ErrSignatureInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		case errors.Is(outcome.Err, service.ErrUnknownPaymentReference),
			errors.Is(outcome.Err, service.ErrAmbiguousReference):
			c.JSON(http.StatusBadRequest, gin.H{"error": outcome.Err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook processing failed"})
		}
	}
}

type testEventRequest struct {
	EventType models.EventType `json:"event_type" binding:"required"`
	PaymentID string           `json:"payment_id" binding:"required"`
	EventID   string           `json:"event_id"`
}

// InjectTestEvent handles POST /api/v1/webhooks/test. Registered only when
// webhook test mode is on: it builds a synthetic processor event for a
// payment and feeds it through the real pipeline, so dedup, resolution and
// the transition engine are exercised with only the signature gate bypassed.
func (h *WebhookHandler) InjectTestEvent(c *gin.Context) {
	var req testEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payment, err := h.payments.GetPayment(c.Request.Context(), req.PaymentID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		return
	}
	if payment.ExternalReference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment has no external reference"})
		return
	}

	if req.EventID == "" {
		req.EventID = "evt_test_" + uuid.New().String()
	}

	payload := buildTestPayload(req.EventID, req.EventType, payment.ExternalReference, payment.Amount)
	outcome := h.pipeline.HandleWebhook(c.Request.Context(), payload, "", c.ClientIP())

	h.logger.Info("test webhook event injected",
		zap.String("event_id", req.EventID),
		zap.String("payment_id", req.PaymentID),
		zap.String("outcome", string(outcome.Status)))

	status := http.StatusOK
	if outcome.Status == models.OutcomeRejected {
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"status": outcome.Status, "event_id": req.EventID, "payment_id": outcome.PaymentID})
}

func buildTestPayload(eventID string, eventType models.EventType, reference string, amount decimal.Decimal) []byte {
	cents := amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if eventType == models.EventChargeRefunded {
		return []byte(fmt.Sprintf(
			`{"id":%q,"type":%q,"data":{"object":{"id":"ch_test","payment_intent":%q,"amount_refunded":%d}}}`,
			eventID, eventType, reference, cents))
	}
	return []byte(fmt.Sprintf(
		`{"id":%q,"type":%q,"data":{"object":{"id":%q,"amount":%d}}}`,
		eventID, eventType, reference, cents))
}
