package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/config"
)

const (
	defaultPollingInterval  = 5 * time.Second
	devChainPollingInterval = 500 * time.Millisecond
)

// WaitOptions bound receipt polling. A zero Timeout waits forever.
type WaitOptions struct {
	Timeout         time.Duration
	PollingInterval time.Duration
	// Address names the deployed contract in timeout errors
	Address string
}

// waitOptionsFor resolves the polling interval for the chain when the caller left it unset
func waitOptionsFor(chainID uint64, opts *domain.UpgradeOptions) WaitOptions {
	w := WaitOptions{Timeout: opts.Timeout, PollingInterval: opts.PollingInterval}
	if w.PollingInterval == 0 {
		w.PollingInterval = defaultPollingInterval
		if config.IsDevChainID(chainID) {
			w.PollingInterval = devChainPollingInterval
		}
	}
	return w
}

// TxConfirmer waits for transactions to be mined
type TxConfirmer struct {
	network NetworkProvider
	log     *slog.Logger
}

// NewTxConfirmer creates a new TxConfirmer
func NewTxConfirmer(network NetworkProvider, log *slog.Logger) *TxConfirmer {
	return &TxConfirmer{
		network: network,
		log:     log.With("component", "TxConfirmer"),
	}
}

// Wait polls for the receipt of hash. A reverted transaction is an error; running out of
// time returns a TimedOutError and leaves the transaction alone.
func (c *TxConfirmer) Wait(ctx context.Context, hash common.Hash, opts WaitOptions) (*types.Receipt, error) {
	interval := opts.PollingInterval
	if interval <= 0 {
		interval = defaultPollingInterval
	}
	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := c.network.TransactionReceipt(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("failed to get receipt for %s: %w", hash.Hex(), err)
		}
		if receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: %s reverted in block %v", domain.ErrTransactionFailed, hash.Hex(), receipt.BlockNumber)
			}
			c.log.Debug("transaction mined", "tx", hash.Hex(), "block", receipt.BlockNumber)
			return receipt, nil
		}

		if opts.Timeout > 0 && time.Since(start) >= opts.Timeout {
			return nil, &domain.TimedOutError{TxHash: hash.Hex(), Address: opts.Address, Timeout: opts.Timeout}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
