package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tripdesk/internal/database"
	"tripdesk/internal/domain"
	"tripdesk/internal/events"
	"tripdesk/internal/gateway"
	"tripdesk/internal/metrics"
	"tripdesk/internal/models"

	"github.com/rs/zerolog"
)

// ReconcileResult is the charge as the gateway sees it plus the reservation
// state after reconciliation. Changed is true only for the call that performed
// the transition.
type ReconcileResult struct {
	View    models.ChargeView        `json:"charge"`
	Status  models.ReservationStatus `json:"reservation_status"`
	Changed bool                     `json:"changed"`
}

// Reconciler moves reservations along the payment state machine using the
// gateway's view of the charge. It is shared by status polling and webhooks.
type Reconciler struct {
	repo    domain.ReservationRepository
	gateway domain.PaymentGateway
	bus     domain.EventPublisher
	logger  *zerolog.Logger
}

func NewReconciler(repo domain.ReservationRepository, gw domain.PaymentGateway, bus domain.EventPublisher, logger *zerolog.Logger) *Reconciler {
	return &Reconciler{repo: repo, gateway: gw, bus: bus, logger: logger}
}

// Reconcile applies the gateway's view of chargeID. Webhooks call it directly.
func (r *Reconciler) Reconcile(ctx context.Context, kind models.ProductKind, chargeID string) (*ReconcileResult, error) {
	return r.reconcile(ctx, kind, chargeID, nil)
}

// Status is Reconcile on behalf of a storefront caller, who must own the
// reservation. Unknown charges still report ErrReservationNotFound.
func (r *Reconciler) Status(ctx context.Context, kind models.ProductKind, caller Caller, chargeID string) (*ReconcileResult, error) {
	return r.reconcile(ctx, kind, chargeID, func(res *models.Reservation) error {
		if !caller.owns(res) {
			metrics.IncReconciliation(string(kind), "forbidden")
			return ErrForbidden
		}
		return nil
	})
}

func (r *Reconciler) reconcile(ctx context.Context, kind models.ProductKind, chargeID string, authorize func(*models.Reservation) error) (*ReconcileResult, error) {
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}
	chargeID = strings.TrimSpace(chargeID)
	if chargeID == "" {
		return nil, invalid("charge_id", "is required")
	}

	res, err := r.repo.GetReservationByPaymentID(ctx, kind, chargeID)
	if errors.Is(err, database.ErrNotFound) {
		metrics.IncReconciliation(string(kind), "not_found")
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	if authorize != nil {
		if err := authorize(res); err != nil {
			return nil, err
		}
	}

	charge, err := r.charge(ctx, res)
	if err != nil {
		metrics.IncReconciliation(string(kind), "gateway_error")
		return nil, err
	}

	result := &ReconcileResult{View: charge.View(), Status: res.Status}
	switch {
	case charge.Status == models.ChargeCaptured:
		result.Changed, err = r.transition(ctx, res, models.ReservationCaptured, events.EventPaymentCaptured)
	case models.ChargeStatusFailed(charge.Status):
		result.Changed, err = r.transition(ctx, res, models.ReservationFailed, events.EventPaymentFailed)
	}
	if err != nil {
		metrics.IncReconciliation(string(kind), "error")
		return nil, err
	}

	outcome := "unchanged"
	if result.Changed {
		outcome = "transitioned"
		result.Status = res.Status
	}
	metrics.IncReconciliation(string(kind), outcome)
	return result, nil
}

// charge loads the gateway charge. Degraded-mode charges never reached the
// gateway, so their view comes from the reservation.
func (r *Reconciler) charge(ctx context.Context, res *models.Reservation) (*models.Charge, error) {
	if !gateway.IsMockCharge(res.PaymentID) {
		return r.gateway.GetCharge(ctx, res.PaymentID)
	}
	status := models.ChargeInitiated
	switch res.Status {
	case models.ReservationCaptured, models.ReservationRefunded:
		status = models.ChargeCaptured
	case models.ReservationFailed:
		status = models.ChargeFailed
	}
	return &models.Charge{
		ID:        res.PaymentID,
		Status:    status,
		Amount:    res.Price,
		Currency:  res.CurrencyCode,
		CreatedAt: res.CreatedAt,
		Degraded:  true,
	}, nil
}

func (r *Reconciler) transition(ctx context.Context, res *models.Reservation, to models.ReservationStatus, eventType string) (bool, error) {
	if !res.Status.CanTransition(to) {
		return false, nil
	}
	changed, err := r.repo.TransitionReservation(ctx, res.Kind, res.PaymentID, res.Status, to)
	if err != nil {
		return false, fmt.Errorf("reconcile %s: %w", res.PaymentID, err)
	}
	if !changed {
		return false, nil
	}
	res.Status = to
	res.UpdatedAt = time.Now().UTC()
	publish(r.bus, r.logger, eventType, res, to)
	return true, nil
}
