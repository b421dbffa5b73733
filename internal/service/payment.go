package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tripdesk/internal/config"
	"tripdesk/internal/database"
	"tripdesk/internal/domain"
	"tripdesk/internal/events"
	"tripdesk/internal/gateway"
	"tripdesk/internal/metrics"
	"tripdesk/internal/models"
	"tripdesk/internal/pricing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultCurrency   = "USD"
	intentRateLimit   = 10
	intentRateWindow  = time.Minute
	intentDescription = "%s booking %s"
)

// IntentRequest is the booking payload that opens a charge and records the reservation.
type IntentRequest struct {
	Amount           decimal.Decimal   `json:"amount"`
	Currency         string            `json:"currency,omitempty"`
	Customer         models.Customer   `json:"customer"`
	ProductID        int64             `json:"product_id" validate:"required,gt=0"`
	PackageID        int64             `json:"package_id" validate:"required,gt=0"`
	BookingID        string            `json:"booking_id" validate:"required"`
	Users            []models.Traveler `json:"users" validate:"required,min=1,dive"`
	DifferentInvoice bool              `json:"different_invoice"`
	Discount         string            `json:"discount,omitempty"`
	StartDate        string            `json:"start_date,omitempty"`
	EndDate          string            `json:"end_date,omitempty"`
	Period           string            `json:"period,omitempty"`
	Description      string            `json:"description,omitempty"`
	RedirectURL      string            `json:"redirect_url,omitempty" validate:"omitempty,url"`
}

type IntentResult struct {
	ChargeID    string          `json:"charge_id"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	RedirectURL string          `json:"redirect_url"`
	PaymentURL  string          `json:"payment_url"`
	CreatedAt   string          `json:"created_at"`
	Degraded    bool            `json:"degraded,omitempty"`
	Duplicate   bool            `json:"duplicate,omitempty"`
}

func intentResult(c *models.Charge) *IntentResult {
	return &IntentResult{
		ChargeID:    c.ID,
		Status:      c.Status,
		Amount:      pricing.RoundCents(c.Amount),
		Currency:    c.Currency,
		RedirectURL: c.RedirectURL,
		PaymentURL:  c.TransactionURL,
		CreatedAt:   c.CreatedAt.UTC().Format(time.RFC3339),
		Degraded:    c.Degraded,
	}
}

type RefundInput struct {
	ChargeID    string           `json:"charge_id" validate:"required"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	Description string           `json:"description,omitempty"`
}

// PaymentService runs the booking side of the payment flow.
type PaymentService struct {
	repo    domain.Repository
	gateway domain.PaymentGateway
	cache   domain.CacheStore
	bus     domain.EventPublisher
	cfg     config.GatewayConfig
	now     func() time.Time
	logger  *zerolog.Logger
}

func NewPaymentService(
	repo domain.Repository,
	gw domain.PaymentGateway,
	cache domain.CacheStore,
	bus domain.EventPublisher,
	cfg config.GatewayConfig,
	logger *zerolog.Logger,
) *PaymentService {
	return &PaymentService{
		repo:    repo,
		gateway: gw,
		cache:   cache,
		bus:     bus,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger,
	}
}

// CreateIntent validates the booking, opens a charge and writes the
// reservation aggregate at most once per booking_id. A repeated booking_id
// returns the existing charge without side effects.
func (s *PaymentService) CreateIntent(ctx context.Context, kind models.ProductKind, caller Caller, req IntentRequest) (*IntentResult, error) {
	spec, ok := kind.Spec()
	if !ok {
		return nil, ErrUnknownKind
	}
	dates, err := s.validateIntent(spec, req)
	if err != nil {
		return nil, err
	}
	if err := s.checkRate(ctx, caller); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetReservationByProgressID(ctx, kind, req.BookingID)
	if err == nil {
		metrics.IncReservation(string(kind), "duplicate")
		s.logger.Info().Str("kind", string(kind)).Str("booking_id", req.BookingID).Str("payment_id", existing.PaymentID).Msg("duplicate booking, returning existing charge")
		return s.existingIntent(ctx, caller, existing)
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	pkg, err := s.loadPackage(ctx, kind, req)
	if err != nil {
		return nil, err
	}
	discount, err := s.loadDiscount(ctx, req.Discount)
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = s.packageCurrency(ctx, *pkg, dates.start)
	}

	chargeReq := models.ChargeRequest{
		Amount:      req.Amount,
		Currency:    currency,
		Customer:    req.Customer,
		Description: req.Description,
		RedirectURL: firstNonEmpty(req.RedirectURL, s.cfg.ConfirmationURL),
		PostURL:     s.cfg.PostURL,
		Metadata: map[string]string{
			models.MetaPaymentType: spec.PaymentType,
			models.MetaBookingID:   req.BookingID,
			models.MetaServiceID:   strconv.FormatInt(req.ProductID, 10),
		},
	}
	if chargeReq.Description == "" {
		chargeReq.Description = fmt.Sprintf(intentDescription, kind, req.BookingID)
	}

	charge, err := s.openCharge(ctx, kind, caller, chargeReq)
	if err != nil {
		return nil, err
	}

	draft, err := s.buildDraft(ctx, kind, caller, req, dates, charge, discount)
	if err != nil {
		return nil, err
	}
	res, created, err := s.repo.CreateReservationIfAbsent(ctx, kind, draft)
	if err != nil {
		metrics.IncReservation(string(kind), "error")
		s.logger.Error().Err(err).Str("kind", string(kind)).Str("booking_id", req.BookingID).Str("payment_id", charge.ID).Msg("reservation write failed")
		return nil, fmt.Errorf("write reservation: %w", err)
	}

	if !created {
		// Lost a race with a concurrent request for the same booking: the
		// charge opened here has no reservation and must not reach the client.
		metrics.IncReservation(string(kind), "orphan_charge")
		s.logger.Warn().
			Str("kind", string(kind)).
			Str("booking_id", req.BookingID).
			Str("payment_id", res.PaymentID).
			Str("orphan_charge_id", charge.ID).
			Bool("degraded", charge.Degraded).
			Msg("concurrent booking won, charge left without reservation")
		return s.existingIntent(ctx, caller, res)
	}

	metrics.IncReservation(string(kind), "created")
	s.logger.Info().Str("kind", string(kind)).Str("booking_id", req.BookingID).Str("payment_id", charge.ID).Bool("degraded", charge.Degraded).Msg("reservation created")
	publish(s.bus, s.logger, events.EventReservationCreated, res, res.Status)
	if charge.Degraded {
		publish(s.bus, s.logger, events.EventPaymentDegraded, res, res.Status)
	}
	return intentResult(charge), nil
}

type intentDates struct {
	start *time.Time
	end   *time.Time
}

func (s *PaymentService) validateIntent(spec models.KindSpec, req IntentRequest) (intentDates, error) {
	var dates intentDates
	fields := map[string]string{}
	if err := validateStruct(req); err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			return dates, err
		}
		for k, v := range verr.Fields {
			fields[k] = v
		}
	}
	if !req.Amount.IsPositive() {
		fields["amount"] = "must be greater than 0"
	}

	start, err := parseOptionalDate(req.StartDate)
	if err != nil {
		fields["start_date"] = "must be a YYYY-MM-DD date"
	}
	end, err := parseOptionalDate(req.EndDate)
	if err != nil {
		fields["end_date"] = "must be a YYYY-MM-DD date"
	}
	if start == nil && fields["start_date"] == "" {
		fields["start_date"] = "is required"
	}
	if spec.Dates == models.DatesRange {
		switch {
		case end == nil && fields["end_date"] == "":
			fields["end_date"] = "is required"
		case start != nil && end != nil && end.Before(*start):
			fields["end_date"] = "must not be before start_date"
		}
	}

	if len(fields) > 0 {
		return dates, &ValidationError{Fields: fields}
	}
	dates.start = start
	if spec.Dates == models.DatesRange {
		dates.end = end
	}
	return dates, nil
}

func parseOptionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PaymentService) checkRate(ctx context.Context, caller Caller) error {
	if s.cache == nil {
		return nil
	}
	allowed, err := s.cache.CheckRateLimit(ctx, "intent:"+strconv.FormatInt(caller.UserID, 10), intentRateLimit, intentRateWindow)
	if err != nil {
		s.logger.Warn().Err(err).Int64("user_id", caller.UserID).Msg("intent rate limit check failed")
		return nil
	}
	if !allowed {
		return ErrRateLimited
	}
	return nil
}

// existingIntent answers a repeated booking_id with the charge recorded on the
// reservation. Only the reservation's owner gets it back.
func (s *PaymentService) existingIntent(ctx context.Context, caller Caller, r *models.Reservation) (*IntentResult, error) {
	if !caller.owns(r) {
		s.logger.Warn().Str("kind", string(r.Kind)).Str("booking_id", r.ProgressID).Int64("user_id", caller.UserID).Msg("booking_id belongs to another caller")
		return nil, ErrForbidden
	}
	var result *IntentResult
	if gateway.IsMockCharge(r.PaymentID) {
		result = &IntentResult{
			ChargeID:  r.PaymentID,
			Status:    models.ChargeInitiated,
			Amount:    pricing.RoundCents(r.Price),
			Currency:  r.CurrencyCode,
			CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
			Degraded:  true,
		}
	} else {
		charge, err := s.gateway.GetCharge(ctx, r.PaymentID)
		if err != nil {
			return nil, err
		}
		result = intentResult(charge)
	}
	result.Duplicate = true
	return result, nil
}

func (s *PaymentService) loadPackage(ctx context.Context, kind models.ProductKind, req IntentRequest) (*models.Package, error) {
	product, err := s.repo.GetProduct(ctx, kind, req.ProductID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, invalid("product_id", "not found")
	}
	if err != nil {
		return nil, err
	}
	if !product.Visible() {
		return nil, invalid("product_id", "is not available")
	}

	pkg, err := s.repo.GetPackage(ctx, req.PackageID)
	if errors.Is(err, database.ErrNotFound) || (err == nil && pkg.ProductID != product.ID) {
		return nil, invalid("package_id", "not found for product")
	}
	if err != nil {
		return nil, err
	}
	return pkg, nil
}

func (s *PaymentService) loadDiscount(ctx context.Context, code string) (*models.DiscountCode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	dc, err := s.repo.GetActiveDiscountCode(ctx, code)
	if errors.Is(err, database.ErrNotFound) {
		return nil, invalid("discount", "unknown or inactive code")
	}
	return dc, err
}

// packageCurrency uses the currency of the package price on the start date.
func (s *PaymentService) packageCurrency(ctx context.Context, pkg models.Package, date *time.Time) string {
	prices, err := s.repo.ListProductPrices(ctx, pkg.ProductID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("package_id", pkg.ID).Msg("price lookup for currency failed")
		return defaultCurrency
	}
	if p := pricing.SelectPrice(pkg, prices, date, s.logger); p != nil && p.CurrencyCode != "" {
		return strings.ToUpper(p.CurrencyCode)
	}
	return defaultCurrency
}

// openCharge creates the gateway charge. When the gateway is unavailable and
// the caller's storefront allows it, a local mock charge is issued instead.
func (s *PaymentService) openCharge(ctx context.Context, kind models.ProductKind, caller Caller, req models.ChargeRequest) (*models.Charge, error) {
	charge, err := s.gateway.CreateCharge(ctx, req)
	if err == nil {
		return charge, nil
	}
	if !gateway.IsUnavailable(err) || !s.cfg.DegradedModeAllowed(string(caller.Role)) {
		return nil, err
	}

	mock := gateway.SynthesizeCharge(req, s.now())
	metrics.IncDegradedCharge(string(kind))
	s.logger.Warn().
		Err(err).
		Str("kind", string(kind)).
		Str("role", string(caller.Role)).
		Str("charge_id", mock.ID).
		Str("booking_id", req.Metadata[models.MetaBookingID]).
		Msg("gateway unavailable, issued degraded-mode charge")
	return &mock, nil
}

func (s *PaymentService) buildDraft(
	ctx context.Context,
	kind models.ProductKind,
	caller Caller,
	req IntentRequest,
	dates intentDates,
	charge *models.Charge,
	discount *models.DiscountCode,
) (*models.ReservationDraft, error) {
	createdBy := caller.UserID
	draft := &models.ReservationDraft{
		Reservation: models.Reservation{
			Kind:           kind,
			ProductID:      req.ProductID,
			PackageID:      req.PackageID,
			PaymentID:      charge.ID,
			ProgressID:     req.BookingID,
			Status:         models.ReservationPending,
			Price:          req.Amount,
			CurrencyCode:   charge.Currency,
			SalesPartnerID: caller.SalesPartnerID,
			CreatedBy:      &createdBy,
			DealerID:       caller.DealerID,
			StartDate:      dates.start,
			EndDate:        dates.end,
		},
		Travelers: req.Users,
	}
	if kind.MustSpec().Dates == models.DatesPeriod {
		draft.Reservation.Period = req.Period
	}

	invoice, err := s.invoice(ctx, caller, req)
	if err != nil {
		return nil, err
	}
	draft.Invoice = invoice

	if discount != nil {
		draft.Discount = &models.DiscountUsage{
			DiscountCodeID: discount.ID,
			UserID:         caller.UserID,
			PaymentID:      charge.ID,
		}
	}
	return draft, nil
}

// invoice takes the billing identity from the first traveler when
// different_invoice is set, otherwise from the caller's profile.
func (s *PaymentService) invoice(ctx context.Context, caller Caller, req IntentRequest) (models.Invoice, error) {
	if req.DifferentInvoice {
		first := req.Users[0]
		official := first.InvoiceOfficial
		if official == "" {
			official = models.OfficialIndividual
		}
		return models.Invoice{
			Title:     firstNonEmpty(first.InvoiceTitle, first.Name+" "+first.Surname),
			TaxOffice: first.InvoiceTaxOffice,
			TaxNumber: first.InvoiceTaxNumber,
			Official:  official,
			Address:   first.InvoiceAddress,
		}, nil
	}

	title := strings.TrimSpace(req.Customer.FirstName + " " + req.Customer.LastName)
	user, err := s.repo.GetUserByID(ctx, caller.UserID)
	switch {
	case err == nil:
		title = firstNonEmpty(user.FullName(), title)
	case !errors.Is(err, database.ErrNotFound):
		return models.Invoice{}, err
	}
	return models.Invoice{Title: title, Official: models.OfficialIndividual}, nil
}

// Refund refunds a captured charge. A completed full refund moves the
// reservation to refunded.
func (s *PaymentService) Refund(ctx context.Context, kind models.ProductKind, caller Caller, in RefundInput) (*models.Refund, error) {
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.Amount != nil && !in.Amount.IsPositive() {
		return nil, invalid("amount", "must be greater than 0")
	}

	res, err := s.repo.GetReservationByPaymentID(ctx, kind, in.ChargeID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	if !caller.owns(res) {
		return nil, ErrForbidden
	}
	if res.Status != models.ReservationCaptured {
		return nil, invalid("charge_id", "reservation is "+string(res.Status)+", only captured payments can be refunded")
	}
	if gateway.IsMockCharge(res.PaymentID) {
		return nil, invalid("charge_id", "degraded-mode charges are refunded manually")
	}

	refund, err := s.gateway.CreateRefund(ctx, models.RefundRequest{
		ChargeID:    in.ChargeID,
		Amount:      in.Amount,
		Reason:      in.Reason,
		Description: in.Description,
		Metadata: map[string]string{
			models.MetaPaymentType: kind.MustSpec().PaymentType,
			models.MetaBookingID:   res.ProgressID,
		},
	})
	if err != nil {
		return nil, err
	}

	full := in.Amount == nil || in.Amount.GreaterThanOrEqual(res.Price)
	if full && models.RefundStatusCompleted(refund.Status) {
		if err := markRefunded(ctx, s.repo, s.bus, s.logger, res); err != nil {
			return nil, err
		}
	}
	return refund, nil
}

func (s *PaymentService) GetRefund(ctx context.Context, refundID string) (*models.Refund, error) {
	if strings.TrimSpace(refundID) == "" {
		return nil, invalid("refund_id", "is required")
	}
	return s.gateway.GetRefund(ctx, refundID)
}

// markRefunded applies captured -> refunded and publishes once.
func markRefunded(ctx context.Context, repo domain.ReservationRepository, bus domain.EventPublisher, logger *zerolog.Logger, res *models.Reservation) error {
	changed, err := repo.TransitionReservation(ctx, res.Kind, res.PaymentID, models.ReservationCaptured, models.ReservationRefunded)
	if err != nil {
		return fmt.Errorf("mark refunded: %w", err)
	}
	if changed {
		logger.Info().Str("kind", string(res.Kind)).Str("payment_id", res.PaymentID).Msg("reservation refunded")
		publish(bus, logger, events.EventPaymentRefunded, res, models.ReservationRefunded)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
