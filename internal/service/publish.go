package service

import (
	"time"

	"tripdesk/internal/domain"
	"tripdesk/internal/models"

	"github.com/rs/zerolog"
)

func paymentEvent(eventType string, r *models.Reservation, status models.ReservationStatus) models.PaymentEvent {
	return models.PaymentEvent{
		Type:       eventType,
		Kind:       r.Kind,
		PaymentID:  r.PaymentID,
		ProgressID: r.ProgressID,
		Status:     status,
		Amount:     r.Price.StringFixed(2),
		Currency:   r.CurrencyCode,
		UserID:     r.CreatedBy,
		OccurredAt: time.Now().UTC(),
	}
}

// publish never fails the caller; subscribers own their delivery.
func publish(bus domain.EventPublisher, logger *zerolog.Logger, eventType string, r *models.Reservation, status models.ReservationStatus) {
	if bus == nil {
		return
	}
	if err := bus.PublishJSON(eventType, paymentEvent(eventType, r, status)); err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Str("payment_id", r.PaymentID).Msg("publish event failed")
	}
}
