package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Gateway charge statuses.
const (
	ChargeInitiated  = "INITIATED"
	ChargeInProgress = "IN_PROGRESS"
	ChargeCaptured   = "CAPTURED"
	ChargeAuthorized = "AUTHORIZED"
	ChargeFailed     = "FAILED"
	ChargeDeclined   = "DECLINED"
	ChargeCancelled  = "CANCELLED"
	ChargeAbandoned  = "ABANDONED"
	ChargeVoid       = "VOID"
	ChargeTimedOut   = "TIMEDOUT"
	ChargeRestricted = "RESTRICTED"
)

// Gateway refund statuses that mean the money went back.
const (
	RefundRefunded  = "REFUNDED"
	RefundSucceeded = "SUCCEEDED"
	RefundPending   = "PENDING"
)

// ChargeStatusFailed reports whether a charge status is terminal without capture.
func ChargeStatusFailed(status string) bool {
	switch status {
	case ChargeFailed, ChargeDeclined, ChargeCancelled, ChargeAbandoned, ChargeVoid, ChargeTimedOut, ChargeRestricted:
		return true
	}
	return false
}

func RefundStatusCompleted(status string) bool {
	return status == RefundRefunded || status == RefundSucceeded
}

type Phone struct {
	CountryCode string `json:"country_code,omitempty"`
	Number      string `json:"number,omitempty"`
}

type Customer struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Phone     *Phone `json:"phone,omitempty"`
}

// ChargeRequest is a charge in major units; the gateway client converts to minor units.
type ChargeRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Customer    Customer
	SourceID    string
	Description string
	RedirectURL string
	PostURL     string
	Metadata    map[string]string
}

type Charge struct {
	ID             string            `json:"id"`
	Status         string            `json:"status"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	Customer       Customer          `json:"customer"`
	RedirectURL    string            `json:"redirect_url"`
	TransactionURL string            `json:"transaction_url"`
	CreatedAt      time.Time         `json:"created_at"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Degraded       bool              `json:"degraded,omitempty"`
}

// ChargeView is the normalized charge returned to storefront clients.
type ChargeView struct {
	ChargeID  string          `json:"charge_id"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Customer  Customer        `json:"customer"`
	CreatedAt string          `json:"created_at"`
	URL       string          `json:"url"`
}

func (c Charge) View() ChargeView {
	return ChargeView{
		ChargeID:  c.ID,
		Status:    c.Status,
		Amount:    c.Amount.Round(2),
		Currency:  c.Currency,
		Customer:  c.Customer,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
		URL:       c.TransactionURL,
	}
}

// RefundRequest carries an optional partial amount in major units.
type RefundRequest struct {
	ChargeID    string
	Amount      *decimal.Decimal
	Reason      string
	Description string
	Metadata    map[string]string
}

type Refund struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	ChargeID  string          `json:"charge_id"`
	CreatedAt time.Time       `json:"created_at"`
}

// Metadata keys attached to every charge.
const (
	MetaPaymentType = "payment_type"
	MetaBookingID   = "booking_id"
	MetaServiceID   = "service_id"
)
