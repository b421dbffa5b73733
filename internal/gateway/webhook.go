package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tripdesk/internal/models"

	"github.com/shopspring/decimal"
)

// Webhook event types.
const (
	EventChargeCreated  = "charge.created"
	EventChargeCaptured = "charge.captured"
	EventChargeFailed   = "charge.failed"
	EventRefundCreated  = "refund.created"
	EventRefundUpdated  = "refund.updated"
)

// Event is a decoded inbound webhook with amounts in major units.
type Event struct {
	ID        string
	Object    string
	Type      string
	CreatedAt time.Time
	Data      EventObject
}

type EventObject struct {
	ID       string
	Status   string
	Amount   decimal.Decimal
	Currency string
	ChargeID string
	Customer models.Customer
	Metadata map[string]string
}

type eventEnvelope struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object struct {
			ID       string            `json:"id"`
			Status   string            `json:"status"`
			Amount   decimal.Decimal   `json:"amount"`
			Currency string            `json:"currency"`
			ChargeID string            `json:"charge_id"`
			Customer customer          `json:"customer"`
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

func ParseEvent(raw []byte) (*Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("decode webhook: missing type")
	}
	obj := env.Data.Object
	return &Event{
		ID:        env.ID,
		Object:    env.Object,
		Type:      strings.ToLower(env.Type),
		CreatedAt: unixTime(env.Created),
		Data: EventObject{
			ID:       obj.ID,
			Status:   strings.ToUpper(obj.Status),
			Amount:   fromMinor(obj.Amount),
			Currency: obj.Currency,
			ChargeID: obj.ChargeID,
			Customer: obj.Customer.toModel(),
			Metadata: obj.Metadata,
		},
	}, nil
}
