package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goAccess "github.com/MrEthical07/goAccess"
	"github.com/MrEthical07/goAccess/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	snapshot goAccess.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goAccess.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestCollectorDisabledMetricsOnlyAuditCounter(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: goAccess.MetricsSnapshot{
			Counters:   map[goAccess.MetricID]uint64{},
			Histograms: map[goAccess.MetricID][]uint64{},
		},
	})

	assert.Equal(t, 1, testutil.CollectAndCount(c))
}

func TestCollectorCounters(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: goAccess.MetricsSnapshot{
			Counters: map[goAccess.MetricID]uint64{
				goAccess.MetricLoginSuccess:        7,
				goAccess.MetricActivationConfirmed: 2,
			},
			Histograms: map[goAccess.MetricID][]uint64{},
		},
		dropped: 3,
	})

	expected := `
# HELP goaccess_login_success_total Successful logins.
# TYPE goaccess_login_success_total counter
goaccess_login_success_total 7
# HELP goaccess_activation_confirmed_total Accounts confirmed by activation.
# TYPE goaccess_activation_confirmed_total counter
goaccess_activation_confirmed_total 2
# HELP goaccess_audit_dropped_total Audit events dropped on a full buffer.
# TYPE goaccess_audit_dropped_total counter
goaccess_audit_dropped_total 3
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"goaccess_login_success_total",
		"goaccess_activation_confirmed_total",
		internaldefs.AuditDroppedName,
	)
	require.NoError(t, err)
}

func TestCollectorHistogram(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: goAccess.MetricsSnapshot{
			Counters: map[goAccess.MetricID]uint64{},
			Histograms: map[goAccess.MetricID][]uint64{
				goAccess.MetricResolveLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
	})

	expected := `
# HELP goaccess_resolve_latency_seconds Principal resolution latency.
# TYPE goaccess_resolve_latency_seconds histogram
goaccess_resolve_latency_seconds_bucket{le="0.005"} 1
goaccess_resolve_latency_seconds_bucket{le="0.01"} 3
goaccess_resolve_latency_seconds_bucket{le="0.025"} 6
goaccess_resolve_latency_seconds_bucket{le="0.05"} 10
goaccess_resolve_latency_seconds_bucket{le="0.1"} 15
goaccess_resolve_latency_seconds_bucket{le="0.25"} 21
goaccess_resolve_latency_seconds_bucket{le="0.5"} 28
goaccess_resolve_latency_seconds_bucket{le="+Inf"} 36
goaccess_resolve_latency_seconds_sum 0
goaccess_resolve_latency_seconds_count 36
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected), "goaccess_resolve_latency_seconds")
	require.NoError(t, err)
}

func TestCollectorHandler(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: goAccess.MetricsSnapshot{
			Counters: map[goAccess.MetricID]uint64{goAccess.MetricLogout: 4},
		},
	})

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "goaccess_logout_total 4")
}

func TestCollectorLint(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: goAccess.MetricsSnapshot{
			Counters: map[goAccess.MetricID]uint64{goAccess.MetricLoginSuccess: 1},
		},
	})
	problems, err := testutil.CollectAndLint(c)
	require.NoError(t, err)
	assert.Empty(t, problems)
}
