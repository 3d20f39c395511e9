// Webhook ingestion pipeline: RECEIVED -> VERIFIED -> DEDUPED -> APPLIED

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"payment-ledger/internal/metrics"
	"payment-ledger/internal/models"
)

// DedupWindow must cover the processor's retry period.
const DedupWindow = 24 * time.Hour

// WebhookPipeline verifies, deduplicates and applies processor events. Dedup
// runs before the per-payment lock as a cheap fast path; the lock inside the
// transition engine remains the correctness boundary because dedup storage
// and payment storage are separate resources.
type WebhookPipeline struct {
	signingSecret string
	testMode      bool
	dedup         DedupStore
	store         Datastore
	engine        *TransitionEngine
	logger        *zap.Logger
}

func NewWebhookPipeline(signingSecret string, testMode bool, environment string, dedup DedupStore, store Datastore, engine *TransitionEngine, logger *zap.Logger) *WebhookPipeline {
	if testMode {
		if environment == "production" {
			logger.Error("webhook test mode is enabled in a production deployment; signature verification is bypassed",
				zap.String("environment", environment))
		} else {
			logger.Warn("webhook test mode enabled, bypassing signature verification",
				zap.String("environment", environment))
		}
	}
	return &WebhookPipeline{
		signingSecret: signingSecret,
		testMode:      testMode,
		dedup:         dedup,
		store:         store,
		engine:        engine,
		logger:        logger,
	}
}

// HandleWebhook runs one delivery through the pipeline and reports the
// outcome. Retryable tells the HTTP layer whether to ask the processor to
// redeliver.
func (p *WebhookPipeline) HandleWebhook(ctx context.Context, payload []byte, sigHeader, sourceIP string) models.WebhookOutcome {
	var ev stripe.Event
	if p.testMode {
		if err := json.Unmarshal(payload, &ev); err != nil {
			return p.reject(models.WebhookOutcome{Retryable: false, Err: fmt.Errorf("failed to parse payload in test mode: %w", err)}, sourceIP)
		}
	} else {
		var err error
		ev, err = webhook.ConstructEvent(payload, sigHeader, p.signingSecret)
		if err != nil {
			return p.reject(models.WebhookOutcome{Retryable: false, Err: fmt.Errorf("%w: %v", ErrSignatureInvalid, err)}, sourceIP)
		}
	}

	event, handled := parseEvent(&ev, sourceIP)
	if !handled {
		p.logger.Info("webhook event type ignored",
			zap.String("ip", sourceIP),
			zap.String("event_id", ev.ID),
			zap.String("event_type", string(ev.Type)))
		metrics.WebhookEventsTotal.WithLabelValues(string(models.OutcomeIgnored)).Inc()
		return models.WebhookOutcome{Status: models.OutcomeIgnored, EventID: ev.ID}
	}

	first, err := p.dedup.MarkProcessed(ctx, event.EventID, DedupWindow)
	if err != nil {
		return p.reject(models.WebhookOutcome{EventID: event.EventID, Retryable: true, Err: fmt.Errorf("dedup store unavailable: %w", err)}, sourceIP)
	}
	if !first {
		p.logger.Info("webhook event DUPLICATE, already processed",
			zap.String("ip", sourceIP),
			zap.String("event_id", event.EventID),
			zap.String("target_reference", event.TargetReference))
		metrics.WebhookEventsTotal.WithLabelValues(string(models.OutcomeDuplicate)).Inc()
		return models.WebhookOutcome{Status: models.OutcomeDuplicate, EventID: event.EventID}
	}

	matches, err := p.store.Payments().FindByExternalReference(ctx, event.TargetReference)
	if err != nil {
		p.release(ctx, event.EventID)
		return p.reject(models.WebhookOutcome{EventID: event.EventID, Retryable: true, Err: fmt.Errorf("payment lookup failed: %w", err)}, sourceIP)
	}
	switch {
	case len(matches) == 0:
		p.release(ctx, event.EventID)
		return p.reject(models.WebhookOutcome{EventID: event.EventID, Retryable: false,
			Err: fmt.Errorf("%w: %s", ErrUnknownPaymentReference, event.TargetReference)}, sourceIP)
	case len(matches) > 1:
		p.logger.Error("multiple payments share one external reference, manual investigation required",
			zap.String("ip", sourceIP),
			zap.String("event_id", event.EventID),
			zap.String("target_reference", event.TargetReference),
			zap.Int("matches", len(matches)))
		p.release(ctx, event.EventID)
		metrics.WebhookEventsTotal.WithLabelValues(string(models.OutcomeRejected)).Inc()
		return models.WebhookOutcome{Status: models.OutcomeRejected, EventID: event.EventID, Retryable: false,
			Err: fmt.Errorf("%w: %s", ErrAmbiguousReference, event.TargetReference)}
	}
	payment := matches[0]

	return p.applyEvent(ctx, event, payment, sourceIP)
}

func (p *WebhookPipeline) applyEvent(ctx context.Context, event *models.WebhookEvent, payment *models.Payment, sourceIP string) models.WebhookOutcome {
	var (
		target models.PaymentStatus
		note   string
		amount *decimal.Decimal
	)
	switch event.EventType {
	case models.EventPaymentSucceeded:
		target = models.StatusCompleted
		if event.Amount.IsPositive() {
			amount = &event.Amount
		}
	case models.EventPaymentFailed:
		target = models.StatusFailed
		msg := event.FailureMessage
		if msg == "" {
			msg = "unknown error"
		}
		note = "payment failed: " + msg
	case models.EventChargeRefunded:
		target = models.StatusRefunded
		note = fmt.Sprintf("refunded by processor on %s", time.Now().UTC().Format("2006-01-02"))
	}

	_, err := p.engine.apply(ctx, payment.ID, target, models.ActorWebhook, note, amount)
	switch {
	case err == nil:
		p.logger.Info("webhook event applied",
			zap.String("ip", sourceIP),
			zap.String("event_id", event.EventID),
			zap.String("payment_id", payment.ID),
			zap.String("status", string(target)))
		metrics.WebhookEventsTotal.WithLabelValues(string(models.OutcomeApplied)).Inc()
		return models.WebhookOutcome{Status: models.OutcomeApplied, EventID: event.EventID, PaymentID: payment.ID}

	case errors.Is(err, ErrConcurrencyTimeout):
		p.release(ctx, event.EventID)
		return p.reject(models.WebhookOutcome{EventID: event.EventID, PaymentID: payment.ID, Retryable: true, Err: err}, sourceIP)

	case errors.Is(err, ErrIllegalTransition):
		// A redelivery past the dedup window lands here. If the payment
		// already holds the target status, accept without a second
		// transition; re-read because our snapshot predates the lock.
		if cur, gerr := p.store.Payments().GetByID(ctx, payment.ID); gerr == nil && cur != nil && cur.Status == target {
			p.logger.Info("webhook event already reflected, no-op",
				zap.String("ip", sourceIP),
				zap.String("event_id", event.EventID),
				zap.String("payment_id", payment.ID),
				zap.String("status", string(target)))
			metrics.WebhookEventsTotal.WithLabelValues(string(models.OutcomeIgnored)).Inc()
			return models.WebhookOutcome{Status: models.OutcomeIgnored, EventID: event.EventID, PaymentID: payment.ID}
		}
		p.release(ctx, event.EventID)
		return p.reject(models.WebhookOutcome{EventID: event.EventID, PaymentID: payment.ID, Retryable: false, Err: err}, sourceIP)

	default:
		p.release(ctx, event.EventID)
		return p.reject(models.WebhookOutcome{EventID: event.EventID, PaymentID: payment.ID, Retryable: false, Err: err}, sourceIP)
	}
}

// release drops the dedup mark after a rejection. The mark must only outlive
// the request for applied or already-reflected events; otherwise the
// processor's redelivery would read as a duplicate and the event would be
// lost.
func (p *WebhookPipeline) release(ctx context.Context, eventID string) {
	if err := p.dedup.Unmark(ctx, eventID); err != nil {
		p.logger.Error("failed to release dedup mark, redelivery will read as duplicate",
			zap.String("event_id", eventID), zap.Error(err))
	}
}

func (p *WebhookPipeline) reject(out models.WebhookOutcome, sourceIP string) models.WebhookOutcome {
	out.Status = models.OutcomeRejected
	p.logger.Warn("webhook delivery rejected",
		zap.String("ip", sourceIP),
		zap.String("event_id", out.EventID),
		zap.String("payment_id", out.PaymentID),
		zap.Bool("retryable", out.Retryable),
		zap.Error(out.Err))
	metrics.WebhookEventsTotal.WithLabelValues(string(models.OutcomeRejected)).Inc()
	return out
}

// parseEvent normalizes a processor event into the fields the pipeline needs.
// Returns false for event types outside the handled set.
func parseEvent(ev *stripe.Event, sourceIP string) (*models.WebhookEvent, bool) {
	event := &models.WebhookEvent{
		EventID:    ev.ID,
		EventType:  models.EventType(ev.Type),
		SourceIP:   sourceIP,
		ReceivedAt: time.Now().UTC(),
	}

	var obj map[string]interface{}
	if ev.Data != nil {
		obj = ev.Data.Object
	}

	switch event.EventType {
	case models.EventPaymentSucceeded, models.EventPaymentFailed:
		ref, _ := obj["id"].(string)
		event.TargetReference = ref
		// Processor amounts arrive in the smallest currency unit.
		if cents, ok := obj["amount"].(float64); ok {
			event.Amount = decimal.NewFromInt(int64(cents)).Div(decimal.NewFromInt(100))
		}
		if lpe, ok := obj["last_payment_error"].(map[string]interface{}); ok {
			event.FailureMessage, _ = lpe["message"].(string)
		}
	case models.EventChargeRefunded:
		ref, _ := obj["payment_intent"].(string)
		event.TargetReference = ref
	default:
		return nil, false
	}

	if event.TargetReference == "" {
		return nil, false
	}
	return event, true
}
