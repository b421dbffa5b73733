package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"tripdesk/internal/config"
	"tripdesk/internal/database"
	"tripdesk/internal/events"
	"tripdesk/internal/gateway"
	"tripdesk/internal/models"
	"tripdesk/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func intentRequest(f catalogFixture, bookingID string) IntentRequest {
	return IntentRequest{
		Amount:    dec("200"),
		Customer:  models.Customer{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
		ProductID: f.product.ID,
		PackageID: f.cheap.ID,
		BookingID: bookingID,
		Users: []models.Traveler{
			{Name: "Ada", Surname: "Lovelace", Birthday: "1815-12-10"},
			{Name: "Byron", Surname: "King", Type: "child"},
		},
		StartDate: "2026-06-01",
		EndDate:   "2026-06-03",
	}
}

type paymentHarness struct {
	db  *database.DB
	f   catalogFixture
	gw  *mockGateway
	bus *recordingBus
	svc *PaymentService
}

func newPaymentHarness(t *testing.T, cfg config.GatewayConfig) *paymentHarness {
	db := newTestDB(t)
	h := &paymentHarness{db: db, f: seedCatalog(t, db), gw: new(mockGateway), bus: &recordingBus{}}
	h.svc = NewPaymentService(db, h.gw, repository.NewMemoryCache(), h.bus, cfg, testLogger())
	return h
}

func (h *paymentHarness) caller() Caller {
	return Caller{UserID: h.f.user.ID, Role: models.RoleUser}
}

func TestPaymentService_CreateIntent(t *testing.T) {
	h := newPaymentHarness(t, config.GatewayConfig{ConfirmationURL: "https://shop.example.com/confirm"})
	ctx := context.Background()
	created := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	h.gw.On("CreateCharge", mock.Anything, mock.MatchedBy(func(r models.ChargeRequest) bool {
		return r.Currency == "EUR" &&
			r.Metadata[models.MetaPaymentType] == "hotel_booking" &&
			r.Metadata[models.MetaBookingID] == "BK-1" &&
			r.RedirectURL == "https://shop.example.com/confirm"
	})).Return(&models.Charge{
		ID:             "chg_1",
		Status:         models.ChargeInitiated,
		Amount:         dec("200"),
		Currency:       "EUR",
		TransactionURL: "https://pay.example.com/chg_1",
		CreatedAt:      created,
	}, nil).Once()

	result, err := h.svc.CreateIntent(ctx, models.KindHotel, h.caller(), intentRequest(h.f, "BK-1"))
	require.NoError(t, err)
	assert.Equal(t, "chg_1", result.ChargeID)
	assert.Equal(t, "https://pay.example.com/chg_1", result.PaymentURL)
	assert.Equal(t, "2026-06-01T09:00:00Z", result.CreatedAt)
	assert.False(t, result.Duplicate)

	res, err := h.db.GetReservationByProgressID(ctx, models.KindHotel, "BK-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReservationPending, res.Status)
	assert.Equal(t, "chg_1", res.PaymentID)
	assert.Equal(t, "EUR", res.CurrencyCode)
	assert.Equal(t, "2026-06-03", res.EndDate.Format(time.DateOnly))

	inv, err := h.db.GetInvoice(ctx, models.KindHotel, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", inv.Title)
	assert.Equal(t, models.OfficialIndividual, inv.Official)

	travelers, err := h.db.ListTravelers(ctx, models.KindHotel, res.ID)
	require.NoError(t, err)
	assert.Len(t, travelers, 2)

	assert.Equal(t, []string{events.EventReservationCreated}, h.bus.types())

	t.Run("duplicate booking returns existing charge", func(t *testing.T) {
		h.gw.On("GetCharge", mock.Anything, "chg_1").Return(&models.Charge{
			ID: "chg_1", Status: models.ChargeInitiated, Amount: dec("200"), Currency: "EUR", CreatedAt: created,
		}, nil).Once()

		again, err := h.svc.CreateIntent(ctx, models.KindHotel, h.caller(), intentRequest(h.f, "BK-1"))
		require.NoError(t, err)
		assert.True(t, again.Duplicate)
		assert.Equal(t, "chg_1", again.ChargeID)
		assert.Len(t, h.bus.types(), 1)
		h.gw.AssertNumberOfCalls(t, "CreateCharge", 1)
	})
}

// staleLookupRepo misses every booking_id lookup, so two requests for the same
// booking both get past the duplicate check and race in the writer.
type staleLookupRepo struct {
	*database.DB
}

func (r staleLookupRepo) GetReservationByProgressID(context.Context, models.ProductKind, string) (*models.Reservation, error) {
	return nil, database.ErrNotFound
}

func TestPaymentService_CreateIntentLostRace(t *testing.T) {
	h := newPaymentHarness(t, config.GatewayConfig{})
	h.svc = NewPaymentService(staleLookupRepo{h.db}, h.gw, repository.NewMemoryCache(), h.bus, config.GatewayConfig{}, testLogger())
	ctx := context.Background()

	winner := &models.Charge{
		ID: "chg_A", Status: models.ChargeInitiated, Amount: dec("200"), Currency: "EUR",
		TransactionURL: "https://pay.example.com/chg_A",
	}
	h.gw.On("CreateCharge", mock.Anything, mock.Anything).Return(winner, nil).Once()
	h.gw.On("CreateCharge", mock.Anything, mock.Anything).Return(&models.Charge{
		ID: "chg_B", Status: models.ChargeInitiated, Amount: dec("200"), Currency: "EUR",
		TransactionURL: "https://pay.example.com/chg_B",
	}, nil).Once()
	h.gw.On("GetCharge", mock.Anything, "chg_A").Return(winner, nil).Once()

	first, err := h.svc.CreateIntent(ctx, models.KindHotel, h.caller(), intentRequest(h.f, "BK-RACE"))
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	second, err := h.svc.CreateIntent(ctx, models.KindHotel, h.caller(), intentRequest(h.f, "BK-RACE"))
	require.NoError(t, err)

	stored, err := h.db.GetReservationByProgressID(ctx, models.KindHotel, "BK-RACE")
	require.NoError(t, err)
	assert.Equal(t, "chg_A", stored.PaymentID)
	assert.True(t, second.Duplicate)
	assert.Equal(t, stored.PaymentID, second.ChargeID)
	assert.Equal(t, "https://pay.example.com/chg_A", second.PaymentURL)

	_, err = h.db.GetReservationByPaymentID(ctx, models.KindHotel, second.ChargeID)
	assert.NoError(t, err, "returned charge must have a reservation behind it")
	assert.Equal(t, []string{events.EventReservationCreated}, h.bus.types())
	h.gw.AssertNumberOfCalls(t, "CreateCharge", 2)
}

func TestPaymentService_DuplicateBookingOfAnotherCaller(t *testing.T) {
	h := newPaymentHarness(t, config.GatewayConfig{})
	ctx := context.Background()
	h.gw.On("CreateCharge", mock.Anything, mock.Anything).Return(&models.Charge{
		ID: "chg_own", Status: models.ChargeInitiated, Amount: dec("200"), Currency: "EUR",
		TransactionURL: "https://pay.example.com/chg_own",
	}, nil).Once()

	_, err := h.svc.CreateIntent(ctx, models.KindHotel, h.caller(), intentRequest(h.f, "BK-OWN"))
	require.NoError(t, err)

	stranger := Caller{UserID: h.f.user.ID + 100, Role: models.RoleUser}
	result, err := h.svc.CreateIntent(ctx, models.KindHotel, stranger, intentRequest(h.f, "BK-OWN"))
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Nil(t, result)
	h.gw.AssertNotCalled(t, "GetCharge", mock.Anything, mock.Anything)
	h.gw.AssertNumberOfCalls(t, "CreateCharge", 1)
}

func TestPaymentService_CreateIntentInvoiceOverride(t *testing.T) {
	h := newPaymentHarness(t, config.GatewayConfig{})
	ctx := context.Background()

	h.gw.On("CreateCharge", mock.Anything, mock.Anything).Return(&models.Charge{
		ID: "chg_inv", Status: models.ChargeInitiated, Amount: dec("200"), Currency: "USD",
	}, nil).Once()

	req := intentRequest(h.f, "BK-INV")
	req.Currency = "usd"
	req.DifferentInvoice = true
	req.Users[0].InvoiceTitle = "Analytical Engines Ltd"
	req.Users[0].InvoiceTaxNumber = "1234567890"
	req.Users[0].InvoiceOfficial = "corporate"

	_, err := h.svc.CreateIntent(ctx, models.KindHotel, h.caller(), req)
	require.NoError(t, err)

	res, err := h.db.GetReservationByProgressID(ctx, models.KindHotel, "BK-INV")
	require.NoError(t, err)
	assert.Equal(t, "USD", res.CurrencyCode)
	inv, err := h.db.GetInvoice(ctx, models.KindHotel, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "Analytical Engines Ltd", inv.Title)
	assert.Equal(t, "1234567890", inv.TaxNumber)
	assert.Equal(t, "corporate", inv.Official)
}

func TestPaymentService_CreateIntentDiscount(t *testing.T) {
	h := newPaymentHarness(t, config.GatewayConfig{})
	ctx := context.Background()
	require.NoError(t, h.db.CreateDiscountCode(ctx, &models.DiscountCode{Code: "SUMMER", Active: true}))

	h.gw.On("CreateCharge", mock.Anything, mock.Anything).Return(&models.Charge{
		ID: "chg_disc", Status: models.ChargeInitiated, Amount: dec("200"), Currency: "EUR",
	}, nil).Once()

	req := intentRequest(h.f, "BK-DISC")
	req.Discount = "summer"
	_, err := h.svc.CreateIntent(ctx, models.KindHotel, h.caller(), req)
	require.NoError(t, err)

	usage, err := h.db.GetDiscountUsage(ctx, "chg_disc")
	require.NoError(t, err)
	assert.False(t, usage.Status)

	req = intentRequest(h.f, "BK-DISC-2")
	req.Discount = "WINTER"
	_, err = h.svc.CreateIntent(ctx, models.KindHotel, h.caller(), req)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPaymentService_CreateIntentValidation(t *testing.T) {
	h := newPaymentHarness(t, config.GatewayConfig{})
	ctx := context.Background()

	tests := []struct {
		name   string
		kind   models.ProductKind
		mutate func(*IntentRequest)
		field  string
	}{
		{"zero amount", models.KindHotel, func(r *IntentRequest) { r.Amount = dec("0") }, "amount"},
		{"missing booking id", models.KindHotel, func(r *IntentRequest) { r.BookingID = "" }, "booking_id"},
		{"no travelers", models.KindHotel, func(r *IntentRequest) { r.Users = nil }, "users"},
		{"traveler without surname", models.KindHotel, func(r *IntentRequest) { r.Users[0].Surname = "" }, "users[0].surname"},
		{"bad customer email", models.KindHotel, func(r *IntentRequest) { r.Customer.Email = "nope" }, "customer.email"},
		{"bad date", models.KindHotel, func(r *IntentRequest) { r.StartDate = "01/06/2026" }, "start_date"},
		{"end before start", models.KindHotel, func(r *IntentRequest) { r.EndDate = "2026-05-01" }, "end_date"},
		{"range needs end", models.KindCarRental, func(r *IntentRequest) { r.EndDate = "" }, "end_date"},
		{"package of another product", models.KindHotel, func(r *IntentRequest) { r.PackageID = 9999 }, "package_id"},
		{"unknown product", models.KindHotel, func(r *IntentRequest) { r.ProductID = 9999 }, "product_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := intentRequest(h.f, "BK-VAL")
			req.Users = append([]models.Traveler(nil), req.Users...)
			tt.mutate(&req)

			_, err := h.svc.CreateIntent(ctx, tt.kind, h.caller(), req)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}

	_, err := h.svc.CreateIntent(ctx, "boat", h.caller(), intentRequest(h.f, "BK-VAL"))
	assert.ErrorIs(t, err, ErrUnknownKind)
	h.gw.AssertNotCalled(t, "CreateCharge", mock.Anything, mock.Anything)
}

func TestPaymentService_DegradedMode(t *testing.T) {
	cfg := config.GatewayConfig{
		ConfirmationURL:         "https://shop.example.com/confirm",
		DegradedModeStorefronts: []string{string(models.RoleSalesPartner)},
	}
	h := newPaymentHarness(t, cfg)
	ctx := context.Background()
	unavailable := &gateway.Error{Op: "create_charge", Kind: gateway.KindUnavailable, StatusCode: 503}
	h.gw.On("CreateCharge", mock.Anything, mock.Anything).Return(nil, unavailable)

	partner := int64(5)
	result, err := h.svc.CreateIntent(ctx, models.KindHotel,
		Caller{UserID: h.f.user.ID, Role: models.RoleSalesPartner, SalesPartnerID: &partner},
		intentRequest(h.f, "BK-DEG"))
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.True(t, gateway.IsMockCharge(result.ChargeID))
	assert.Equal(t, "https://shop.example.com/confirm", result.PaymentURL)
	assert.Equal(t, []string{events.EventReservationCreated, events.EventPaymentDegraded}, h.bus.types())

	res, err := h.db.GetReservationByProgressID(ctx, models.KindHotel, "BK-DEG")
	require.NoError(t, err)
	assert.Equal(t, result.ChargeID, res.PaymentID)
	require.NotNil(t, res.SalesPartnerID)
	assert.Equal(t, partner, *res.SalesPartnerID)

	t.Run("storefront without degraded mode gets the error", func(t *testing.T) {
		_, err := h.svc.CreateIntent(ctx, models.KindHotel, h.caller(), intentRequest(h.f, "BK-DEG-2"))
		assert.True(t, gateway.IsUnavailable(err))
		_, err = h.db.GetReservationByProgressID(ctx, models.KindHotel, "BK-DEG-2")
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("duplicate of a degraded booking skips the gateway", func(t *testing.T) {
		again, err := h.svc.CreateIntent(ctx, models.KindHotel,
			Caller{UserID: h.f.user.ID, Role: models.RoleSalesPartner, SalesPartnerID: &partner},
			intentRequest(h.f, "BK-DEG"))
		require.NoError(t, err)
		assert.True(t, again.Duplicate)
		assert.Equal(t, result.ChargeID, again.ChargeID)
		h.gw.AssertNotCalled(t, "GetCharge", mock.Anything, mock.Anything)
	})
}

func TestPaymentService_RateLimit(t *testing.T) {
	h := newPaymentHarness(t, config.GatewayConfig{})
	ctx := context.Background()
	h.gw.On("CreateCharge", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

	var limited int
	for i := 0; i < intentRateLimit+2; i++ {
		_, err := h.svc.CreateIntent(ctx, models.KindHotel, h.caller(), intentRequest(h.f, "BK-RL"))
		if errors.Is(err, ErrRateLimited) {
			limited++
		}
	}
	assert.Equal(t, 2, limited)
}

func TestPaymentService_Refund(t *testing.T) {
	h := newPaymentHarness(t, config.GatewayConfig{})
	ctx := context.Background()
	seedReservation(t, h.db, models.KindHotel, h.f, "chg_r1")

	in := RefundInput{ChargeID: "chg_r1", Reason: "requested_by_customer"}

	_, err := h.svc.Refund(ctx, models.KindHotel, h.caller(), in)
	assert.ErrorIs(t, err, ErrValidation, "pending reservations cannot be refunded")

	changed, err := h.db.TransitionReservation(ctx, models.KindHotel, "chg_r1", models.ReservationPending, models.ReservationCaptured)
	require.NoError(t, err)
	require.True(t, changed)

	_, err = h.svc.Refund(ctx, models.KindHotel, Caller{UserID: 999, Role: models.RoleUser}, in)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = h.svc.Refund(ctx, models.KindHotel, h.caller(), RefundInput{ChargeID: "chg_missing"})
	assert.ErrorIs(t, err, ErrReservationNotFound)

	h.gw.On("CreateRefund", mock.Anything, mock.MatchedBy(func(r models.RefundRequest) bool {
		return r.ChargeID == "chg_r1" && r.Amount == nil
	})).Return(&models.Refund{ID: "re_1", Status: models.RefundRefunded, Amount: dec("200"), Currency: "EUR", ChargeID: "chg_r1"}, nil).Once()

	refund, err := h.svc.Refund(ctx, models.KindHotel, h.caller(), in)
	require.NoError(t, err)
	assert.Equal(t, "re_1", refund.ID)

	res, err := h.db.GetReservationByPaymentID(ctx, models.KindHotel, "chg_r1")
	require.NoError(t, err)
	assert.Equal(t, models.ReservationRefunded, res.Status)
	assert.Equal(t, []string{events.EventPaymentRefunded}, h.bus.types())
}

func TestPaymentService_PartialRefundKeepsCaptured(t *testing.T) {
	h := newPaymentHarness(t, config.GatewayConfig{})
	ctx := context.Background()
	seedReservation(t, h.db, models.KindHotel, h.f, "chg_r2")
	_, err := h.db.TransitionReservation(ctx, models.KindHotel, "chg_r2", models.ReservationPending, models.ReservationCaptured)
	require.NoError(t, err)

	half := dec("100")
	h.gw.On("CreateRefund", mock.Anything, mock.Anything).
		Return(&models.Refund{ID: "re_2", Status: models.RefundRefunded, Amount: half, ChargeID: "chg_r2"}, nil).Once()

	admin := Caller{UserID: 1, Role: models.RoleAdmin}
	_, err = h.svc.Refund(ctx, models.KindHotel, admin, RefundInput{ChargeID: "chg_r2", Amount: &half})
	require.NoError(t, err)

	res, err := h.db.GetReservationByPaymentID(ctx, models.KindHotel, "chg_r2")
	require.NoError(t, err)
	assert.Equal(t, models.ReservationCaptured, res.Status)
	assert.Empty(t, h.bus.types())
}

func TestPaymentService_GetRefund(t *testing.T) {
	h := newPaymentHarness(t, config.GatewayConfig{})
	h.gw.On("GetRefund", mock.Anything, "re_9").Return(&models.Refund{ID: "re_9", Status: models.RefundPending}, nil).Once()

	refund, err := h.svc.GetRefund(context.Background(), "re_9")
	require.NoError(t, err)
	assert.Equal(t, models.RefundPending, refund.Status)

	_, err = h.svc.GetRefund(context.Background(), " ")
	assert.ErrorIs(t, err, ErrValidation)
}
