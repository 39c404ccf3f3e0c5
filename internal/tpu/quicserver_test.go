package tpu

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/jito-foundation/relayer/internal/admission"
	"github.com/jito-foundation/relayer/internal/obs"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRejectionReason(t *testing.T) {
	require.Equal(t, "rate_limited", rejectionReason(admission.ErrRateLimited))
	require.Equal(t, "too_many_connections", rejectionReason(admission.ErrTooManyConnections))
	require.Equal(t, "other", rejectionReason(nil))
}

func TestIncRejectedAndIncAccepted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := obs.New(reg)

	incRejected(m, "direct", "rate_limited")
	incRejected(m, "forwards", "forwards_requires_staked")
	incAccepted(m, "direct", "staked")

	var metric dto.Metric
	require.NoError(t, m.ConnectionsRejected.WithLabelValues("direct", "rate_limited").Write(&metric))
	require.Equal(t, float64(1), metric.GetCounter().GetValue())

	metric = dto.Metric{}
	require.NoError(t, m.ConnectionsRejected.WithLabelValues("forwards", "forwards_requires_staked").Write(&metric))
	require.Equal(t, float64(1), metric.GetCounter().GetValue())

	metric = dto.Metric{}
	require.NoError(t, m.ConnectionsAccepted.WithLabelValues("direct", "staked").Write(&metric))
	require.Equal(t, float64(1), metric.GetCounter().GetValue())

	// Nil metrics must never panic.
	incRejected(nil, "direct", "rate_limited")
	incAccepted(nil, "direct", "staked")
}
