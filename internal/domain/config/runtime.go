package config

import (
	"time"
)

// RuntimeConfig represents the complete runtime configuration
// This is injected into use cases and contains all resolved settings
type RuntimeConfig struct {
	// Core settings
	ProjectRoot string
	DataDir     string

	// Context settings
	Profile string   // Foundry profile
	Network *Network // nil if not specified

	// Execution settings
	Debug           bool
	SkipBuild       bool // use the existing artifacts instead of running forge build
	JSON            bool // Output in JSON format
	Timeout         time.Duration
	PollingInterval time.Duration

	// PrivateKey signs transactions, hex encoded. Empty means read-only.
	PrivateKey string //nolint:gosec // resolved from the environment

	// Resolved configurations
	FoundryConfig *FoundryConfig
	Upgrades      *UpgradesConfig // Profile-specific upgrades config
}

// Network represents network configuration
type Network struct {
	ChainID uint64 `json:"chainId"`
	Name    string `json:"name"`
	RPCURL  string `json:"rpcUrl"`
}

// IsDevChain reports whether the network is a local development chain that may be reset
func (n *Network) IsDevChain() bool {
	return n != nil && IsDevChainID(n.ChainID)
}

// IsDevChainID reports whether the chain id belongs to a local development chain
func IsDevChainID(chainID uint64) bool {
	return chainID == 31337 || chainID == 1337
}
