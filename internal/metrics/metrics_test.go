// ABOUTME: Tests for the metrics registry
// ABOUTME: Verifies counters, nil safety and the HTTP exposition
package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.FrameSent()
		m.FrameDropped()
		m.SetUserTalking(true)
		m.Fragment("audio")
		m.Interruption()
		m.CodecError()
		m.SessionOpened()
		m.SessionError("other")
		m.SetActiveSources(3)
		m.StateTransition("active")
		m.CacheLookup(true)
		m.ChatRequest("ask", time.Now(), nil)
		m.MessageStored()
	})
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New()

	m.FrameSent()
	m.FrameSent()
	m.FrameDropped()
	m.Fragment("audio")
	m.Fragment("audio")
	m.Fragment("turn_complete")
	m.CacheLookup(false)
	m.ChatRequest("ask", time.Now(), errors.New("boom"))
	m.SetActiveSources(2)
	m.SetUserTalking(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesDropped))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FragmentsReceived.WithLabelValues("audio")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FragmentsReceived.WithLabelValues("turn_complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChatRequests.WithLabelValues("ask", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveSources))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UserTalking))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Interruption()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "ashama_live_interruptions_total 1"))
}

func TestSeparateRegistries(t *testing.T) {
	// two instances must not collide on registration
	a := New()
	b := New()
	a.FrameSent()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.FramesSent))
}
