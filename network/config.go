// Package network implements the peer-to-peer networking core: peer
// lifecycle and admission, address discovery, message dispatch, header
// synchronization, and block-announcement relay, all serialized onto a
// single reactor goroutine. Per-connection I/O is handled by the p2p
// package; chainstate validation is an external collaborator described by
// the chain package.
package network

import "time"

// Config collects every tunable the network core reads at startup. Field
// names match the on-disk TOML keys used by cmd/headernetd (see
// cmd/headernetd/config.go).
type Config struct {
	ListenEnabled bool   `toml:"listen_enabled"`
	ListenAddr    string `toml:"listen_addr"`
	ListenPort    int    `toml:"listen_port"`

	IOThreads int `toml:"io_threads"`

	NetworkMagic uint32 `toml:"network_magic"`

	EnableNAT bool `toml:"enable_nat"`

	DataDir string `toml:"datadir"`

	// TestNonce overrides the process-wide handshake nonce; nil means
	// "generate randomly". Mirrors the original implementation's
	// config.test_nonce escape hatch for deterministic integration tests.
	TestNonce *uint64 `toml:"test_nonce"`

	FeelerMaxDelayMultiplier int `toml:"feeler_max_delay_multiplier"`

	MaxOutbound int `toml:"max_outbound"`
	MaxInbound  int `toml:"max_inbound"`
}

// DefaultConfig returns the configuration used when no TOML file overrides
// a given key.
func DefaultConfig() Config {
	return Config{
		ListenEnabled:            true,
		ListenAddr:               "0.0.0.0",
		ListenPort:               8733,
		IOThreads:                1,
		NetworkMagic:             0xd9b4bef9,
		EnableNAT:                false,
		DataDir:                  ".headernet",
		FeelerMaxDelayMultiplier: 2,
		MaxOutbound:              8,
		MaxInbound:               125,
	}
}

const (
	feelerBaseInterval = 2 * time.Minute
	maintenanceInterval = 60 * time.Second
	connectAttemptInterval = 5 * time.Second
)
