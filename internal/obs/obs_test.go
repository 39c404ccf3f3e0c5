package obs

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNew_RecordsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ValidatorForwarded.WithLabelValues("validator-a").Add(4)
	m.Subscribers.Set(3)

	var metric dto.Metric
	require.NoError(t, m.ValidatorForwarded.WithLabelValues("validator-a").Write(&metric))
	require.Equal(t, float64(4), metric.GetCounter().GetValue())
}
