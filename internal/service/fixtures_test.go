package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"tripdesk/internal/database"
	"tripdesk/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateCharge(ctx context.Context, req models.ChargeRequest) (*models.Charge, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Charge), args.Error(1)
}
func (m *mockGateway) GetCharge(ctx context.Context, id string) (*models.Charge, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Charge), args.Error(1)
}
func (m *mockGateway) CreateRefund(ctx context.Context, req models.RefundRequest) (*models.Refund, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Refund), args.Error(1)
}
func (m *mockGateway) GetRefund(ctx context.Context, id string) (*models.Refund, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Refund), args.Error(1)
}
func (m *mockGateway) VerifyWebhookSignature(payload []byte, sig string) bool {
	return m.Called(payload, sig).Bool(0)
}

type recordingBus struct {
	mu     sync.Mutex
	events []models.PaymentEvent
}

func (b *recordingBus) PublishJSON(eventType string, payload interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, payload.(models.PaymentEvent))
	return nil
}

func (b *recordingBus) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func day(s string) *time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type catalogFixture struct {
	product models.Product
	cheap   models.Package
	premium models.Package
	user    models.User
}

// seedCatalog creates one visible hotel with two dated EUR packages and a user.
func seedCatalog(t *testing.T, db *database.DB) catalogFixture {
	t.Helper()
	ctx := context.Background()

	f := catalogFixture{
		product: models.Product{Kind: models.KindHotel, Name: "Sea View", Location: "Antalya", Status: true, AdminApproval: true, Highlight: true},
	}
	require.NoError(t, db.CreateProduct(ctx, &f.product))

	f.cheap = models.Package{ProductID: f.product.ID, Name: "Standard"}
	require.NoError(t, db.CreatePackage(ctx, &f.cheap))
	f.premium = models.Package{ProductID: f.product.ID, Name: "Suite"}
	require.NoError(t, db.CreatePackage(ctx, &f.premium))

	for _, p := range []models.Price{
		{PackageID: f.cheap.ID, MainPrice: dec("100"), ChildPrice: decimal.NewNullDecimal(dec("50")), CurrencyCode: "eur",
			StartDate: day("2026-01-01"), EndDate: day("2026-12-31")},
		{PackageID: f.premium.ID, MainPrice: dec("250"), CurrencyCode: "EUR",
			Discount: decimal.NewNullDecimal(dec("10")), StartDate: day("2026-01-01"), EndDate: day("2026-12-31")},
	} {
		price := p
		require.NoError(t, db.CreatePrice(ctx, &price))
	}

	f.user = models.User{Name: "Ada", Surname: "Lovelace", Email: "ada@example.com"}
	require.NoError(t, db.CreateUser(ctx, &f.user))
	return f
}

func seedReservation(t *testing.T, db *database.DB, kind models.ProductKind, f catalogFixture, paymentID string) *models.Reservation {
	t.Helper()
	owner := f.user.ID
	res, created, err := db.CreateReservationIfAbsent(context.Background(), kind, &models.ReservationDraft{
		Reservation: models.Reservation{
			ProductID:    f.product.ID,
			PackageID:    f.cheap.ID,
			PaymentID:    paymentID,
			ProgressID:   "BOOK-" + paymentID,
			Price:        dec("200"),
			CurrencyCode: "EUR",
			CreatedBy:    &owner,
			StartDate:    day("2026-06-01"),
			EndDate:      day("2026-06-03"),
		},
		Invoice:   models.Invoice{Title: "Ada Lovelace", Official: models.OfficialIndividual},
		Travelers: []models.Traveler{{Name: "Ada", Surname: "Lovelace"}},
	})
	require.NoError(t, err)
	require.True(t, created)
	return res
}
