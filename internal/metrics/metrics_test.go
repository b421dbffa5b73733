package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint", "200")
		ObserveGateway("create_charge", "ok", 150*time.Millisecond)
	})
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(reservationsCreated.WithLabelValues("hotel", "duplicate"))
	IncReservation("hotel", "duplicate")
	assert.Equal(t, before+1, testutil.ToFloat64(reservationsCreated.WithLabelValues("hotel", "duplicate")))

	before = testutil.ToFloat64(reconciliations.WithLabelValues("tour", "captured"))
	IncReconciliation("tour", "captured")
	assert.Equal(t, before+1, testutil.ToFloat64(reconciliations.WithLabelValues("tour", "captured")))

	before = testutil.ToFloat64(webhookEvents.WithLabelValues("charge.captured", "ok"))
	IncWebhook("charge.captured", "ok")
	assert.Equal(t, before+1, testutil.ToFloat64(webhookEvents.WithLabelValues("charge.captured", "ok")))

	before = testutil.ToFloat64(degradedCharges.WithLabelValues("visa"))
	IncDegradedCharge("visa")
	assert.Equal(t, before+1, testutil.ToFloat64(degradedCharges.WithLabelValues("visa")))
}
