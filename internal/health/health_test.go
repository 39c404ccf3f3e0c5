package health

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAtomicGate(t *testing.T) {
	g := NewAtomicGate()
	require.False(t, g.Healthy())

	g.SetHealthy(true)
	require.True(t, g.Healthy())

	g.SetHealthy(false)
	require.False(t, g.Healthy())
}
