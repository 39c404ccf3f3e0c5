package admission

import (
	"context"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestController_AdmitEnforcesPerIPConcurrentCap(t *testing.T) {
	c := NewController(Config{MaxConnectionsPerIP: 2}, 10, 10, 10, 10)
	ip := netip.MustParseAddr("10.0.0.1")
	ctx := context.Background()

	l1, err := c.Admit(ctx, ip, nil, false, DirectPool)
	require.NoError(t, err)
	l2, err := c.Admit(ctx, ip, nil, false, DirectPool)
	require.NoError(t, err)

	_, err = c.Admit(ctx, ip, nil, false, DirectPool)
	require.ErrorIs(t, err, ErrTooManyConnections)

	l1.Release()
	l3, err := c.Admit(ctx, ip, nil, false, DirectPool)
	require.NoError(t, err)

	l2.Release()
	l3.Release()
}

func TestController_AdmitEnforcesPerMinuteRate(t *testing.T) {
	c := NewController(Config{MaxConnectionsPerIPPerMinute: 1, MaxConnectionsPerIP: 100}, 10, 10, 10, 10)
	ip := netip.MustParseAddr("10.0.0.2")
	ctx := context.Background()

	l1, err := c.Admit(ctx, ip, nil, false, DirectPool)
	require.NoError(t, err)
	defer l1.Release()

	_, err = c.Admit(ctx, ip, nil, false, DirectPool)
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestController_ForwardsPoolRejectsUnstakedWhenCapacityZero(t *testing.T) {
	c := NewController(Config{}, 10, 10, 10, DefaultForwardsPoolUnstakedCapacity)
	ip := netip.MustParseAddr("10.0.0.3")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Admit(ctx, ip, nil, false, ForwardsPool)
	require.Error(t, err)
}

func TestController_ForwardsPoolAdmitsStaked(t *testing.T) {
	c := NewController(Config{}, 10, 10, 10, DefaultForwardsPoolUnstakedCapacity)
	ip := netip.MustParseAddr("10.0.0.4")
	ctx := context.Background()

	l, err := c.Admit(ctx, ip, nil, true, ForwardsPool)
	require.NoError(t, err)
	l.Release()
}

func TestStakeShare(t *testing.T) {
	share := StakeShare(1, 4)
	require.Equal(t, "1/4", share.Value().RatString())

	zero := StakeShare(1, 0)
	require.Equal(t, "0", zero.Value().RatString())
}

func TestStreamBudget(t *testing.T) {
	// Unstaked (no recorded stake) gets the base budget back unchanged.
	require.Equal(t, 128, StreamBudget(128, 0, 1000))

	// No known total stake: can't compute a share, falls back to base.
	require.Equal(t, 128, StreamBudget(128, 500, 0))

	// Full stake share gets the full multiplier.
	require.Equal(t, 128*DefaultStakedStreamPriorityMultiplier, StreamBudget(128, 1000, 1000))

	// A partial share scales linearly between the two.
	half := StreamBudget(128, 500, 1000)
	require.Greater(t, half, 128)
	require.Less(t, half, 128*DefaultStakedStreamPriorityMultiplier)
}
