package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint")
	})

	before := testutil.ToFloat64(bookingDecisions.WithLabelValues("rejected", "slot_taken"))
	ObserveDecision("slot_taken")
	assert.Equal(t, before+1, testutil.ToFloat64(bookingDecisions.WithLabelValues("rejected", "slot_taken")))

	before = testutil.ToFloat64(bookingDecisions.WithLabelValues("accepted", "none"))
	ObserveDecision("")
	assert.Equal(t, before+1, testutil.ToFloat64(bookingDecisions.WithLabelValues("accepted", "none")))

	IncCache("hit")
	IncCache("hit")
	assert.GreaterOrEqual(t, testutil.ToFloat64(calendarCache.WithLabelValues("hit")), 2.0)

	IncNotification("sent")
	assert.GreaterOrEqual(t, testutil.ToFloat64(notifications.WithLabelValues("sent")), 1.0)
}
