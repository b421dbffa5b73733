package export

import (
	"bytes"
	"testing"
	"time"

	"tripdesk/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteReservations(t *testing.T) {
	from := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	start := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)

	rows := []models.ReservationReportRow{
		{
			Reservation: models.Reservation{
				ID: 1, PackageID: 3, ProgressID: "BK-1", PaymentID: "chg_1",
				Status: models.ReservationCaptured, Price: decimal.RequireFromString("149.995"),
				CurrencyCode: "EUR", StartDate: &start, CreatedAt: from.Add(time.Hour),
			},
			ProductName: "Sea View", InvoiceTitle: "Ada Lovelace", Travelers: 2,
		},
		{
			Reservation: models.Reservation{
				ID: 2, PackageID: 4, ProgressID: "BK-2", PaymentID: "mock_1",
				Status: models.ReservationPending, Price: decimal.NewFromInt(80), CurrencyCode: "EUR",
				CreatedAt: from.Add(2 * time.Hour),
			},
			ProductName: "Old Town",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReservations(&buf, models.KindHotel, from, to, rows))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{reservationsSheet}, f.GetSheetList())

	title, err := f.GetCellValue(reservationsSheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "hotel reservations: 2026-06-01 - 2026-07-01", title)

	got, err := f.GetRows(reservationsSheet)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, reservationHeaders, got[1])
	assert.Equal(t, "Sea View", got[2][1])
	assert.Equal(t, "captured", got[2][5])
	assert.Equal(t, "150", got[2][6])
	assert.Equal(t, "2026-06-10", got[2][8])
	assert.Equal(t, "mock_1", got[3][4])
}

func TestReservationsFileName(t *testing.T) {
	from := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "reservations_tour_2026-06-01_to_2026-06-30.xlsx", ReservationsFileName(models.KindTour, from, to))
}
