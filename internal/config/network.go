package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/samber/lo"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/config"
)

const chainIDTimeout = 10 * time.Second

// ChainIDFetcher asks the node behind rpcURL for its chain id
type ChainIDFetcher func(ctx context.Context, rpcURL string) (uint64, error)

// NetworkResolver resolves network names to configurations with caching
type NetworkResolver struct {
	foundryConfig *config.FoundryConfig
	cachePath     string
	fetch         ChainIDFetcher

	mu    sync.RWMutex
	cache *NetworkCache
}

// NetworkCache caches chain ID lookups
type NetworkCache struct {
	Networks  map[string]uint64 `json:"networks"` // name -> chainID
	RPCs      map[string]uint64 `json:"rpcs"`     // rpcURL -> chainID
	UpdatedAt time.Time         `json:"updatedAt"`
}

// NewNetworkResolver creates a resolver caching chain ids under dataDir
func NewNetworkResolver(dataDir string, foundryConfig *config.FoundryConfig, fetch ChainIDFetcher) *NetworkResolver {
	if fetch == nil {
		fetch = FetchChainID
	}
	r := &NetworkResolver{
		foundryConfig: foundryConfig,
		cachePath:     filepath.Join(dataDir, "cache", "chainIds.json"),
		fetch:         fetch,
	}
	r.loadCache()
	return r
}

// Resolve resolves a network name from [rpc_endpoints], or a raw RPC URL, to its configuration
func (r *NetworkResolver) Resolve(ctx context.Context, networkName string) (*config.Network, error) {
	rpcURL := networkName
	if !isURL(networkName) {
		var exists bool
		rpcURL, exists = r.foundryConfig.RpcEndpoints[networkName]
		if !exists {
			available := lo.Keys(r.foundryConfig.RpcEndpoints)
			sort.Strings(available)
			return nil, fmt.Errorf("network '%s' not found in foundry.toml [rpc_endpoints] (available: %s)",
				networkName, strings.Join(available, ", "))
		}
		if strings.Contains(rpcURL, "${") {
			return nil, fmt.Errorf("RPC URL for network '%s' references an unset environment variable: %s", networkName, rpcURL)
		}
	}

	chainID, err := r.chainID(ctx, networkName, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve chain ID for network '%s': %w", networkName, err)
	}

	return &config.Network{
		Name:    networkName,
		RPCURL:  rpcURL,
		ChainID: chainID,
	}, nil
}

func (r *NetworkResolver) chainID(ctx context.Context, networkName, rpcURL string) (uint64, error) {
	r.mu.RLock()
	chainID, cached := r.cache.RPCs[rpcURL]
	r.mu.RUnlock()
	if cached {
		return chainID, nil
	}

	chainID, err := r.fetch(ctx, rpcURL)
	if err != nil {
		return 0, err
	}
	r.updateCache(networkName, rpcURL, chainID)
	return chainID, nil
}

// FetchChainID calls eth_chainId on the node
func FetchChainID(ctx context.Context, rpcURL string) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, chainIDTimeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	defer client.Close()

	id, err := client.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get chain ID: %w", err)
	}
	return id.Uint64(), nil
}

func newNetworkCache() *NetworkCache {
	return &NetworkCache{
		Networks:  make(map[string]uint64),
		RPCs:      make(map[string]uint64),
		UpdatedAt: time.Now(),
	}
}

// loadCache loads the chain ID cache from disk; a missing or unreadable cache starts empty
func (r *NetworkResolver) loadCache() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache = newNetworkCache()
	data, err := os.ReadFile(r.cachePath)
	if err != nil {
		return
	}
	var cache NetworkCache
	if err := json.Unmarshal(data, &cache); err != nil || cache.RPCs == nil || cache.Networks == nil {
		return
	}
	r.cache = &cache
}

func (r *NetworkResolver) updateCache(networkName, rpcURL string, chainID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache.Networks[networkName] = chainID
	r.cache.RPCs[rpcURL] = chainID
	r.cache.UpdatedAt = time.Now()

	// cache is only an optimization
	_ = r.saveCache()
}

func (r *NetworkResolver) saveCache() error {
	if err := os.MkdirAll(filepath.Dir(r.cachePath), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r.cache, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.cachePath, data, 0644)
}
