package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type ReservationStatus string

const (
	ReservationPending  ReservationStatus = "pending"
	ReservationCaptured ReservationStatus = "captured"
	ReservationFailed   ReservationStatus = "failed"
	ReservationRefunded ReservationStatus = "refunded"
)

// Paid mirrors the legacy boolean status flag.
func (s ReservationStatus) Paid() bool {
	return s == ReservationCaptured || s == ReservationRefunded
}

// CanTransition lists the allowed edges of the reservation state machine.
func (s ReservationStatus) CanTransition(to ReservationStatus) bool {
	switch s {
	case ReservationPending:
		return to == ReservationCaptured || to == ReservationFailed
	case ReservationCaptured:
		return to == ReservationRefunded
	}
	return false
}

type Reservation struct {
	ID             int64             `json:"id"`
	Kind           ProductKind       `json:"kind"`
	ProductID      int64             `json:"product_id"`
	PackageID      int64             `json:"package_id"`
	PaymentID      string            `json:"payment_id"`
	ProgressID     string            `json:"progress_id"`
	Status         ReservationStatus `json:"status"`
	Price          decimal.Decimal   `json:"price"`
	CurrencyCode   string            `json:"currency_code"`
	SalesPartnerID *int64            `json:"sales_partner_id,omitempty"`
	CreatedBy      *int64            `json:"created_by,omitempty"`
	DealerID       *int64            `json:"dealer_id,omitempty"`
	StartDate      *time.Time        `json:"start_date,omitempty"`
	EndDate        *time.Time        `json:"end_date,omitempty"`
	Period         string            `json:"period,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	DeletedAt      *time.Time        `json:"deleted_at,omitempty"`
}

func (r Reservation) Paid() bool {
	return r.Status.Paid()
}

const OfficialIndividual = "individual"

// Invoice is the billing identity snapshot taken at booking time.
type Invoice struct {
	ID            int64  `json:"id"`
	ReservationID int64  `json:"reservation_id"`
	Title         string `json:"title"`
	TaxOffice     string `json:"tax_office"`
	TaxNumber     string `json:"tax_number"`
	Official      string `json:"official"`
	Address       string `json:"address"`
}

// Traveler is one guest row of a reservation.
type Traveler struct {
	ID            int64  `json:"id,omitempty"`
	ReservationID int64  `json:"reservation_id,omitempty"`
	Name          string `json:"name" validate:"required"`
	Surname       string `json:"surname" validate:"required"`
	Birthday      string `json:"birthday,omitempty"`
	Email         string `json:"email,omitempty" validate:"omitempty,email"`
	Phone         string `json:"phone,omitempty"`
	Type          string `json:"type,omitempty" validate:"omitempty,oneof=adult child baby infant"`
	Age           *int   `json:"age,omitempty" validate:"omitempty,gte=0"`

	// Invoice override fields, read from the first traveler when different_invoice is set.
	InvoiceTitle     string `json:"invoice_title,omitempty"`
	InvoiceTaxOffice string `json:"invoice_tax_office,omitempty"`
	InvoiceTaxNumber string `json:"invoice_tax_number,omitempty"`
	InvoiceOfficial  string `json:"invoice_official,omitempty"`
	InvoiceAddress   string `json:"invoice_address,omitempty"`
}

// UnmarshalJSON accepts both "birthday" and "birthDate" and keeps one Birthday field.
func (t *Traveler) UnmarshalJSON(data []byte) error {
	type plain Traveler
	aux := struct {
		*plain
		BirthDate string `json:"birthDate"`
	}{plain: (*plain)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if t.Birthday == "" {
		t.Birthday = aux.BirthDate
	}
	return nil
}

type DiscountUsage struct {
	ID             int64     `json:"id"`
	DiscountCodeID int64     `json:"discount_code_id"`
	UserID         int64     `json:"user_id"`
	PaymentID      string    `json:"payment_id"`
	Status         bool      `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// ReservationDraft is the full aggregate written by one booking request.
type ReservationDraft struct {
	Reservation Reservation
	Invoice     Invoice
	Travelers   []Traveler
	Discount    *DiscountUsage
}

// ReservationReportRow is one line of the admin reservation export.
type ReservationReportRow struct {
	Reservation
	ProductName  string `json:"product_name"`
	InvoiceTitle string `json:"invoice_title"`
	Travelers    int    `json:"travelers"`
}
