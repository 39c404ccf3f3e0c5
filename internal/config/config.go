// Package config collects the relayer's enumerated configuration (§6)
// into a single struct, populated by cobra/pflag flags in cmd/relayer and
// validated once at startup rather than looked up ambiently deep in the
// stack.
package config

import (
	"fmt"
	"net/netip"

	"github.com/jito-foundation/relayer/internal/txn"
)

// Config is the full set of operator-supplied settings named in §6.
type Config struct {
	// MaxUnstakedQUICConnections and MaxStakedQUICConnections size the
	// unstaked/staked admission pools for the direct QUIC ingest server.
	MaxUnstakedQUICConnections int
	MaxStakedQUICConnections   int

	// StakedNodesOverrides is a static identity -> stake weight map that
	// always wins over the chain RPC's reported stake for the same
	// identity.
	StakedNodesOverrides map[txn.PublicKey]uint64

	// OFACAddresses is the denylist (may be empty).
	OFACAddresses []txn.PublicKey

	// ValidatorPacketBatchSize is the projected sub-batch size (§4.8).
	ValidatorPacketBatchSize int

	// ForwardAll bypasses leader-schedule selection, forwarding every
	// batch to every connected subscriber.
	ForwardAll bool

	PublicIP               string
	TPUQUICPorts           []int
	TPUForwardsQUICPorts   []int

	// ConsecutiveLeaderSlots is the chain constant K used to derive the
	// look-ahead window [slot, slot+L*K) (§6).
	ConsecutiveLeaderSlots uint64

	// RPCBindAddr is the address the egress gRPC server listens on.
	RPCBindAddr string

	// MetricsBindAddr is the address the Prometheus metrics HTTP endpoint
	// listens on.
	MetricsBindAddr string
}

// LeaderLookahead is the constant L named in §6; always 2.
const LeaderLookahead = 2

// Validate checks the configuration for internal consistency, matching
// the "validated once at startup" ambient-stack convention.
func (c *Config) Validate() error {
	if c.MaxUnstakedQUICConnections < 0 {
		return fmt.Errorf("config: max_unstaked_quic_connections must be >= 0")
	}
	if c.MaxStakedQUICConnections < 0 {
		return fmt.Errorf("config: max_staked_quic_connections must be >= 0")
	}
	if c.MaxStakedQUICConnections+c.MaxUnstakedQUICConnections == 0 {
		return fmt.Errorf("config: at least one of max_staked_quic_connections or max_unstaked_quic_connections must be positive")
	}
	if c.ValidatorPacketBatchSize <= 0 {
		return fmt.Errorf("config: validator_packet_batch_size must be positive")
	}
	if c.PublicIP == "" {
		return fmt.Errorf("config: public_ip is required")
	}
	if _, err := netip.ParseAddr(c.PublicIP); err != nil {
		return fmt.Errorf("config: public_ip: %w", err)
	}
	if len(c.TPUQUICPorts) == 0 {
		return fmt.Errorf("config: tpu_quic_ports must not be empty")
	}
	if len(c.TPUForwardsQUICPorts) == 0 {
		return fmt.Errorf("config: tpu_forwards_quic_ports must not be empty")
	}
	if !c.ForwardAll && c.ConsecutiveLeaderSlots == 0 {
		return fmt.Errorf("config: consecutive_leader_slots must be positive unless forward_all is set")
	}
	if c.RPCBindAddr == "" {
		return fmt.Errorf("config: rpc bind address is required")
	}
	return nil
}
