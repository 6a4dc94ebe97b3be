package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingOutcome(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.BookingOutcome("booked", "redis+postgres")
	m.BookingOutcome("booked", "redis+postgres")
	m.BookingOutcome("slot_full", "")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.bookings.WithLabelValues("booked", "redis+postgres")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bookings.WithLabelValues("slot_full", "none")))
}

func TestAvailabilityDegraded(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.AvailabilityDegraded("appointment_read")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.degraded.WithLabelValues("appointment_read")))
}

func TestObserveHTTP(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveHTTP("/appointments/{id}", "GET", 404, 20*time.Millisecond)

	n, err := testutil.GatherAndCount(reg, "workshop_http_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
