package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricingMetrics(t *testing.T) {
	metrics := NewPricingMetrics(nil, "test")
	require.NotNil(t, metrics)

	metrics.PoolReads.Inc()
	metrics.ReadFailures.WithLabelValues("uniswap-v3").Inc()
	metrics.ReadFailures.WithLabelValues("uniswap-v3").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PoolReads))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.ReadFailures.WithLabelValues("uniswap-v3")))

	metrics.CircuitOpen.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CircuitOpen))

	metrics.ReadLatency.Observe(0.02)
	var m dto.Metric
	require.NoError(t, metrics.ReadLatency.Write(&m))
	assert.Equal(t, uint64(1), m.GetHistogram().GetSampleCount())
}

func TestStrategyMetrics(t *testing.T) {
	metrics := NewStrategyMetrics(nil, "test")

	metrics.Opportunities.Add(3)
	metrics.Rejected.WithLabelValues(ReasonSlippage).Inc()
	metrics.BestGross.Set(1.55)

	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.Opportunities))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Rejected.WithLabelValues(ReasonSlippage)))
	assert.Equal(t, 1.55, testutil.ToFloat64(metrics.BestGross))
}

func TestRegistryExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	cycles := NewCycleMetrics(reg, Namespace)
	cycles.Cycles.Inc()
	cycles.GasPrice.Set(21)

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "flasharb_bot_cycles_total 1")
	assert.Contains(t, string(body), "flasharb_bot_gas_price_gwei 21")
}

func TestDoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewStrategyMetrics(reg, Namespace)
	assert.Panics(t, func() { NewStrategyMetrics(reg, Namespace) })
}
