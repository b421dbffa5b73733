package service

import (
	"context"
	"errors"
	"time"

	"tripdesk/internal/database"
	"tripdesk/internal/domain"
	"tripdesk/internal/gateway"
	"tripdesk/internal/metrics"
	"tripdesk/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

const webhookDedupTTL = 24 * time.Hour

// Dispatcher routes verified gateway webhooks to reconciliation.
type Dispatcher struct {
	verifier   domain.SignatureVerifier
	reconciler *Reconciler
	repo       domain.ReservationRepository
	cache      domain.CacheStore
	bus        domain.EventPublisher
	logger     *zerolog.Logger
}

func NewDispatcher(
	verifier domain.SignatureVerifier,
	reconciler *Reconciler,
	repo domain.ReservationRepository,
	cache domain.CacheStore,
	bus domain.EventPublisher,
	logger *zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		verifier:   verifier,
		reconciler: reconciler,
		repo:       repo,
		cache:      cache,
		bus:        bus,
		logger:     logger,
	}
}

// Handle verifies and applies one webhook delivery. Only a bad signature or an
// undecodable body is returned as an error; processing failures are logged and
// the delivery is released so the gateway's retry can apply it.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte, signature string) error {
	if d.verifier == nil || !d.verifier.Verify(raw, signature) {
		metrics.IncWebhook("unknown", "rejected")
		d.logger.Warn().Int("bytes", len(raw)).Msg("webhook signature rejected")
		return ErrInvalidSignature
	}

	evt, err := gateway.ParseEvent(raw)
	if err != nil {
		metrics.IncWebhook("unknown", "malformed")
		return invalid("payload", err.Error())
	}

	deliveryID := evt.ID
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}
	log := d.logger.With().
		Str("delivery_id", deliveryID).
		Str("event_type", evt.Type).
		Str("object_id", evt.Data.ID).
		Logger()

	dedupKey := ""
	if evt.ID != "" && d.cache != nil {
		dedupKey = "webhook:" + evt.ID
		fresh, err := d.cache.SetNX(ctx, dedupKey, []byte(evt.Type), webhookDedupTTL)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("webhook de-duplication unavailable")
			dedupKey = ""
		case !fresh:
			metrics.IncWebhook(evt.Type, "duplicate")
			log.Info().Msg("duplicate webhook delivery ignored")
			return nil
		}
	}

	result, err := d.dispatch(ctx, evt, &log)
	if err != nil {
		metrics.IncWebhook(evt.Type, "error")
		log.Error().Err(err).Msg("webhook processing failed")
		if dedupKey != "" {
			if delErr := d.cache.Del(ctx, dedupKey); delErr != nil {
				log.Warn().Err(delErr).Msg("release webhook de-dup key failed")
			}
		}
		return nil
	}
	metrics.IncWebhook(evt.Type, result)
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, evt *gateway.Event, log *zerolog.Logger) (string, error) {
	paymentType := evt.Data.Metadata[models.MetaPaymentType]
	kind, ok := models.KindByPaymentType(paymentType)
	if !ok {
		log.Warn().Str("payment_type", paymentType).Msg("webhook for unknown payment type ignored")
		return "ignored", nil
	}
	sub := log.With().
		Str("kind", string(kind)).
		Str("booking_id", evt.Data.Metadata[models.MetaBookingID]).
		Str("service_id", evt.Data.Metadata[models.MetaServiceID]).
		Str("status", evt.Data.Status).
		Logger()

	switch evt.Type {
	case gateway.EventChargeCaptured, gateway.EventChargeFailed:
		res, err := d.reconciler.Reconcile(ctx, kind, evt.Data.ID)
		if errors.Is(err, ErrReservationNotFound) {
			sub.Warn().Msg("webhook for unknown reservation ignored")
			return "ignored", nil
		}
		if err != nil {
			return "", err
		}
		sub.Info().Bool("changed", res.Changed).Str("reservation_status", string(res.Status)).Msg("charge webhook reconciled")
		return "processed", nil

	case gateway.EventRefundCreated, gateway.EventRefundUpdated:
		if !models.RefundStatusCompleted(evt.Data.Status) {
			sub.Info().Msg("refund webhook recorded")
			return "logged", nil
		}
		res, err := d.repo.GetReservationByPaymentID(ctx, kind, evt.Data.ChargeID)
		if errors.Is(err, database.ErrNotFound) {
			sub.Warn().Str("charge_id", evt.Data.ChargeID).Msg("refund webhook for unknown reservation ignored")
			return "ignored", nil
		}
		if err != nil {
			return "", err
		}
		if res.Status != models.ReservationCaptured {
			sub.Info().Str("reservation_status", string(res.Status)).Msg("refund webhook left reservation unchanged")
			return "processed", nil
		}
		if evt.Data.Amount.IsPositive() && evt.Data.Amount.LessThan(res.Price) {
			sub.Info().Str("amount", evt.Data.Amount.StringFixed(2)).Msg("partial refund recorded")
			return "logged", nil
		}
		if err := markRefunded(ctx, d.repo, d.bus, d.logger, res); err != nil {
			return "", err
		}
		return "processed", nil

	case gateway.EventChargeCreated:
		sub.Info().Msg("charge created webhook recorded")
		return "logged", nil
	}

	sub.Info().Msg("unhandled webhook type")
	return "ignored", nil
}
