package gateway

import (
	"fmt"
	"strings"
	"time"

	"tripdesk/internal/models"
)

const mockPrefix = "mock_"

// IsMockCharge reports whether id was issued by SynthesizeCharge.
func IsMockCharge(id string) bool {
	return strings.HasPrefix(id, mockPrefix)
}

// SynthesizeCharge builds the pending charge handed out while the gateway is
// unavailable. It carries a local mock_ id and points both URLs at the caller's
// confirmation page so the booking can be reconciled by hand later.
func SynthesizeCharge(req models.ChargeRequest, now time.Time) models.Charge {
	return models.Charge{
		ID:             fmt.Sprintf("%s%d", mockPrefix, now.UnixNano()),
		Status:         models.ChargeInitiated,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Customer:       req.Customer,
		RedirectURL:    req.RedirectURL,
		TransactionURL: req.RedirectURL,
		CreatedAt:      now.UTC(),
		Metadata:       req.Metadata,
		Degraded:       true,
	}
}
