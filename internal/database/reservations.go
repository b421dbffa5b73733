package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tripdesk/internal/models"
)

// travelers are inserted in chunks to stay under SQLite's bound-parameter limit
const travelerInsertChunk = 100

func reservationColumns(spec models.KindSpec) string {
	return `r.id, r.` + spec.ProductColumn + `, r.package_id, r.payment_id, r.progress_id, r.status, r.price,
        r.currency_code, r.sales_partner_id, r.created_by, r.dealer_id, r.start_date, r.end_date, r.period,
        r.created_at, r.updated_at, r.deleted_at`
}

func scanReservation(row rowScanner, kind models.ProductKind) (*models.Reservation, error) {
	var (
		r                                 models.Reservation
		status                            string
		salesPartner, createdBy, dealerID sql.NullInt64
		start, end                        sql.NullString
		deleted                           sql.NullTime
	)
	err := row.Scan(&r.ID, &r.ProductID, &r.PackageID, &r.PaymentID, &r.ProgressID, &status, &r.Price,
		&r.CurrencyCode, &salesPartner, &createdBy, &dealerID, &start, &end, &r.Period,
		&r.CreatedAt, &r.UpdatedAt, &deleted)
	if err != nil {
		return nil, err
	}
	r.Kind = kind
	r.Status = models.ReservationStatus(status)
	r.SalesPartnerID = int64Ptr(salesPartner)
	r.CreatedBy = int64Ptr(createdBy)
	r.DealerID = int64Ptr(dealerID)
	r.DeletedAt = timePtr(deleted)
	if r.StartDate, err = parseDate(start); err != nil {
		return nil, err
	}
	if r.EndDate, err = parseDate(end); err != nil {
		return nil, err
	}
	return &r, nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getReservation(ctx context.Context, q rowQuerier, spec models.KindSpec, where string, arg any) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns(spec) + ` FROM ` + spec.ReservationTable + ` r
        WHERE r.deleted_at IS NULL AND r.` + where + ` ORDER BY r.id LIMIT 1`
	r, err := scanReservation(q.QueryRowContext(ctx, query, arg), spec.Kind)
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

func specFor(kind models.ProductKind) (models.KindSpec, error) {
	spec, ok := kind.Spec()
	if !ok {
		return models.KindSpec{}, fmt.Errorf("unknown product kind %q", string(kind))
	}
	return spec, nil
}

func (db *DB) GetReservationByPaymentID(ctx context.Context, kind models.ProductKind, paymentID string) (*models.Reservation, error) {
	spec, err := specFor(kind)
	if err != nil {
		return nil, err
	}
	return getReservation(ctx, db, spec, "payment_id = ?", paymentID)
}

func (db *DB) GetReservationByProgressID(ctx context.Context, kind models.ProductKind, progressID string) (*models.Reservation, error) {
	spec, err := specFor(kind)
	if err != nil {
		return nil, err
	}
	return getReservation(ctx, db, spec, "progress_id = ?", progressID)
}

// CreateReservationIfAbsent writes the reservation, its invoice, travelers and
// optional discount usage in one transaction. When a reservation with the same
// progress_id already exists nothing is written and the existing row is
// returned with created=false.
func (db *DB) CreateReservationIfAbsent(
	ctx context.Context,
	kind models.ProductKind,
	draft *models.ReservationDraft,
) (*models.Reservation, bool, error) {
	spec, err := specFor(kind)
	if err != nil {
		return nil, false, err
	}
	res := draft.Reservation

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	existing, err := getReservation(ctx, tx, spec, "progress_id = ?", res.ProgressID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("failed to check existing reservation: %w", err)
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (
				%s, package_id, payment_id, progress_id, status, price, currency_code,
				sales_partner_id, created_by, dealer_id, start_date, end_date, period, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, spec.ReservationTable, spec.ProductColumn),
		res.ProductID, res.PackageID, res.PaymentID, res.ProgressID, string(models.ReservationPending),
		res.Price, res.CurrencyCode, res.SalesPartnerID, res.CreatedBy, res.DealerID,
		dateArg(res.StartDate), dateArg(res.EndDate), res.Period, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			_ = tx.Rollback()
			existing, getErr := db.GetReservationByProgressID(ctx, kind, res.ProgressID)
			if getErr != nil {
				return nil, false, fmt.Errorf("failed to load existing reservation: %w", getErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to insert reservation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get last insert id: %w", err)
	}

	inv := draft.Invoice
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (reservation_id, title, tax_office, tax_number, official, address)
            VALUES (?, ?, ?, ?, ?, ?)`, spec.InvoiceTable),
		id, inv.Title, inv.TaxOffice, inv.TaxNumber, inv.Official, inv.Address)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert invoice: %w", err)
	}

	if err := insertTravelers(ctx, tx, spec, id, draft.Travelers); err != nil {
		return nil, false, err
	}

	if du := draft.Discount; du != nil {
		_, err = tx.ExecContext(ctx, `INSERT INTO discount_usages (discount_code_id, user_id, payment_id, status, created_at)
            VALUES (?, ?, ?, 0, ?)`, du.DiscountCodeID, du.UserID, res.PaymentID, now)
		if err != nil {
			return nil, false, fmt.Errorf("failed to insert discount usage: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit reservation: %w", err)
	}

	res.ID = id
	res.Kind = kind
	res.Status = models.ReservationPending
	res.CreatedAt = now
	res.UpdatedAt = now
	return &res, true, nil
}

func insertTravelers(ctx context.Context, tx *sql.Tx, spec models.KindSpec, reservationID int64, travelers []models.Traveler) error {
	for start := 0; start < len(travelers); start += travelerInsertChunk {
		end := start + travelerInsertChunk
		if end > len(travelers) {
			end = len(travelers)
		}
		chunk := travelers[start:end]

		placeholders := make([]string, 0, len(chunk))
		args := make([]any, 0, len(chunk)*8)
		for _, t := range chunk {
			placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?)")
			travelerType := t.Type
			if travelerType == "" {
				travelerType = "adult"
			}
			var birthday any
			if t.Birthday != "" {
				birthday = t.Birthday
			}
			args = append(args, reservationID, t.Name, t.Surname, birthday, t.Email, t.Phone, travelerType, t.Age)
		}

		query := fmt.Sprintf(`INSERT INTO %s (reservation_id, name, surname, birthday, email, phone, type, age) VALUES %s`,
			spec.TravelerTable, strings.Join(placeholders, ", "))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert travelers: %w", err)
		}
	}
	return nil
}

// TransitionReservation moves the reservation of a payment from one status to
// another with a conditional update. changed is false when the reservation was
// not in the from status, so concurrent callers observe exactly one transition.
// Capturing also consumes the payment's pending discount usage.
func (db *DB) TransitionReservation(
	ctx context.Context,
	kind models.ProductKind,
	paymentID string,
	from, to models.ReservationStatus,
) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	spec, err := specFor(kind)
	if err != nil {
		return false, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET status = ?, updated_at = ?
            WHERE payment_id = ? AND status = ? AND deleted_at IS NULL`, spec.ReservationTable),
		string(to), time.Now().UTC(), paymentID, string(from))
	if err != nil {
		return false, fmt.Errorf("failed to update reservation status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if to == models.ReservationCaptured {
		_, err = tx.ExecContext(ctx, `UPDATE discount_usages SET status = 1 WHERE payment_id = ? AND status = 0`, paymentID)
		if err != nil {
			return false, fmt.Errorf("failed to confirm discount usage: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit status transition: %w", err)
	}

	db.logger.Info().
		Str("kind", string(kind)).
		Str("payment_id", paymentID).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("reservation status changed")
	return true, nil
}

func (db *DB) GetInvoice(ctx context.Context, kind models.ProductKind, reservationID int64) (*models.Invoice, error) {
	spec, err := specFor(kind)
	if err != nil {
		return nil, err
	}
	var inv models.Invoice
	err = db.QueryRowContext(ctx, fmt.Sprintf(`SELECT id, reservation_id, title, tax_office, tax_number, official, address
        FROM %s WHERE reservation_id = ?`, spec.InvoiceTable), reservationID,
	).Scan(&inv.ID, &inv.ReservationID, &inv.Title, &inv.TaxOffice, &inv.TaxNumber, &inv.Official, &inv.Address)
	if err != nil {
		return nil, notFound(err)
	}
	return &inv, nil
}

func (db *DB) ListTravelers(ctx context.Context, kind models.ProductKind, reservationID int64) ([]models.Traveler, error) {
	spec, err := specFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT id, reservation_id, name, surname, birthday, email, phone, type, age
        FROM %s WHERE reservation_id = ? ORDER BY id`, spec.TravelerTable), reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list travelers: %w", err)
	}
	defer rows.Close()

	var travelers []models.Traveler
	for rows.Next() {
		var (
			t        models.Traveler
			birthday sql.NullString
			age      sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.ReservationID, &t.Name, &t.Surname, &birthday, &t.Email, &t.Phone, &t.Type, &age); err != nil {
			return nil, fmt.Errorf("failed to scan traveler: %w", err)
		}
		t.Birthday = birthday.String
		if age.Valid {
			a := int(age.Int64)
			t.Age = &a
		}
		travelers = append(travelers, t)
	}
	return travelers, rows.Err()
}

// ListReservations returns report rows created within [from, to).
func (db *DB) ListReservations(ctx context.Context, kind models.ProductKind, from, to time.Time) ([]models.ReservationReportRow, error) {
	spec, err := specFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s, COALESCE(p.name, ''), COALESCE(i.title, ''),
               (SELECT COUNT(*) FROM %s u WHERE u.reservation_id = r.id)
        FROM %s r
        LEFT JOIN products p ON p.id = r.%s
        LEFT JOIN %s i ON i.reservation_id = r.id
        WHERE r.deleted_at IS NULL AND r.created_at >= ? AND r.created_at < ?
        ORDER BY r.created_at, r.id`,
		reservationColumns(spec), spec.TravelerTable, spec.ReservationTable, spec.ProductColumn, spec.InvoiceTable)

	rows, err := db.QueryContext(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	defer rows.Close()

	var out []models.ReservationReportRow
	for rows.Next() {
		var row models.ReservationReportRow
		scanner := &reportScanner{rows: rows, row: &row}
		r, err := scanReservation(scanner, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		row.Reservation = *r
		out = append(out, row)
	}
	return out, rows.Err()
}

// reportScanner appends the report's extra columns to a reservation scan.
type reportScanner struct {
	rows *sql.Rows
	row  *models.ReservationReportRow
}

func (s *reportScanner) Scan(dest ...any) error {
	dest = append(dest, &s.row.ProductName, &s.row.InvoiceTitle, &s.row.Travelers)
	return s.rows.Scan(dest...)
}
