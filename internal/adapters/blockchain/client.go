package blockchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lmittmann/w3"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/config"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/usecase"
)

// Client reads chain state over JSON-RPC
type Client struct {
	rpc *rpc.Client
	eth *ethclient.Client
	w3  *w3.Client

	chainID uint64
}

var _ usecase.NetworkProvider = (*Client)(nil)

// NewClient dials the configured network and checks its chain id. Without a network an
// offline client is returned whose every call fails with ErrNoNetwork, so commands that
// only read artifacts still run.
func NewClient(ctx context.Context, cfg *config.RuntimeConfig) (*Client, error) {
	if cfg.Network == nil || cfg.Network.RPCURL == "" {
		return &Client{}, nil
	}
	return Dial(ctx, cfg.Network.RPCURL, cfg.Network.ChainID)
}

// Dial connects to rpcURL. A non-zero chainID must match the node's.
func Dial(ctx context.Context, rpcURL string, chainID uint64) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	return newClient(ctx, rpcClient, chainID)
}

func newClient(ctx context.Context, rpcClient *rpc.Client, chainID uint64) (*Client, error) {
	c := &Client{
		rpc: rpcClient,
		eth: ethclient.NewClient(rpcClient),
		w3:  w3.NewClient(rpcClient),
	}

	networkChainID, err := c.eth.ChainID(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	if chainID != 0 && networkChainID.Uint64() != chainID {
		c.Close()
		return nil, fmt.Errorf("chain ID mismatch: expected %d, got %d", chainID, networkChainID.Uint64())
	}
	c.chainID = networkChainID.Uint64()
	return c, nil
}

// Close releases the underlying connection
func (c *Client) Close() {
	if c.rpc != nil {
		c.rpc.Close()
	}
}

// Offline reports whether the client has no network behind it
func (c *Client) Offline() bool {
	return c.rpc == nil
}

// ChainID returns the chain id reported by the node when the client was dialed
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	if c.Offline() {
		return 0, domain.ErrNoNetwork
	}
	return c.chainID, nil
}

func (c *Client) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	if c.Offline() {
		return nil, domain.ErrNoNetwork
	}
	code, err := c.eth.CodeAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get code at %s: %w", address.Hex(), err)
	}
	return code, nil
}

func (c *Client) StorageAt(ctx context.Context, address common.Address, slot common.Hash) ([]byte, error) {
	if c.Offline() {
		return nil, domain.ErrNoNetwork
	}
	value, err := c.eth.StorageAt(ctx, address, slot, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read slot %s of %s: %w", slot.Hex(), address.Hex(), err)
	}
	return value, nil
}

func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if c.Offline() {
		return nil, domain.ErrNoNetwork
	}
	return c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// TransactionReceipt returns nil while the transaction is not mined
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if c.Offline() {
		return nil, domain.ErrNoNetwork
	}
	receipt, err := c.eth.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
	}
	return receipt, nil
}

func (c *Client) TransactionKnown(ctx context.Context, hash common.Hash) (bool, error) {
	if c.Offline() {
		return false, domain.ErrNoNetwork
	}
	_, _, err := c.eth.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up transaction %s: %w", hash.Hex(), err)
	}
	return true, nil
}
