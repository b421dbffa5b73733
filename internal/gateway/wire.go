package gateway

import (
	"encoding/json"
	"strings"
	"time"

	"tripdesk/internal/models"

	"github.com/shopspring/decimal"
)

// toMinor converts major units to the integer minor units sent on the wire.
func toMinor(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// fromMinor converts wire minor units back to major units.
func fromMinor(amount decimal.Decimal) decimal.Decimal {
	return amount.Shift(-2)
}

type link struct {
	URL string `json:"url,omitempty"`
}

type source struct {
	ID string `json:"id"`
}

type phone struct {
	CountryCode string `json:"country_code,omitempty"`
	Number      string `json:"number,omitempty"`
}

type customer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     *phone `json:"phone,omitempty"`
}

func customerFromModel(c models.Customer) customer {
	out := customer{FirstName: c.FirstName, LastName: c.LastName, Email: c.Email}
	if c.Phone != nil {
		out.Phone = &phone{CountryCode: c.Phone.CountryCode, Number: c.Phone.Number}
	}
	return out
}

func (c customer) toModel() models.Customer {
	out := models.Customer{FirstName: c.FirstName, LastName: c.LastName, Email: c.Email}
	if c.Phone != nil {
		out.Phone = &models.Phone{CountryCode: c.Phone.CountryCode, Number: c.Phone.Number}
	}
	return out
}

type chargeRequest struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Customer    customer          `json:"customer"`
	Source      source            `json:"source"`
	Description string            `json:"description,omitempty"`
	Redirect    link              `json:"redirect"`
	Post        link              `json:"post"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type chargeResponse struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	Amount      decimal.Decimal   `json:"amount"`
	Currency    string            `json:"currency"`
	Customer    customer          `json:"customer"`
	Redirect    link              `json:"redirect"`
	Transaction link              `json:"transaction"`
	Created     int64             `json:"created"`
	Metadata    map[string]string `json:"metadata"`
}

func (r chargeResponse) toModel() models.Charge {
	return models.Charge{
		ID:             r.ID,
		Status:         strings.ToUpper(r.Status),
		Amount:         fromMinor(r.Amount),
		Currency:       r.Currency,
		Customer:       r.Customer.toModel(),
		RedirectURL:    r.Redirect.URL,
		TransactionURL: r.Transaction.URL,
		CreatedAt:      unixTime(r.Created),
		Metadata:       r.Metadata,
	}
}

type refundRequest struct {
	ChargeID    string            `json:"charge_id"`
	Amount      *int64            `json:"amount,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type refundResponse struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	ChargeID string          `json:"charge_id"`
	Created  int64           `json:"created"`
}

func (r refundResponse) toModel() models.Refund {
	return models.Refund{
		ID:        r.ID,
		Status:    strings.ToUpper(r.Status),
		Amount:    fromMinor(r.Amount),
		Currency:  r.Currency,
		ChargeID:  r.ChargeID,
		CreatedAt: unixTime(r.Created),
	}
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// errorMessage extracts the provider's message from an error body.
func errorMessage(raw []byte, fallback string) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Errors  []struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		switch {
		case len(body.Errors) > 0 && body.Errors[0].Description != "":
			return body.Errors[0].Description
		case body.Message != "":
			return body.Message
		case body.Error != "":
			return body.Error
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" && len(text) < 512 {
		return text
	}
	return fallback
}
