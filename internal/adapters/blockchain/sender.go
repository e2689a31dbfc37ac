package blockchain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lmittmann/w3/module/eth"
	"github.com/lmittmann/w3/w3types"

	abiadapter "github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/adapters/abi"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/config"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/usecase"
)

// gasMarginPercent is added on top of the node's gas estimate
const gasMarginPercent = 20

// Sender signs EIP-1559 transactions with a local private key
type Sender struct {
	client  *Client
	key     *ecdsa.PrivateKey
	address common.Address
	signer  types.Signer
	log     *slog.Logger

	mu        sync.Mutex
	nextNonce *uint64
}

var _ usecase.TransactionSender = (*Sender)(nil)

// NewSender creates a sender from the configured private key. Without a key the sender
// can still be constructed, but every send fails with ErrNoSigner.
func NewSender(client *Client, cfg *config.RuntimeConfig, log *slog.Logger) (*Sender, error) {
	s := &Sender{
		client: client,
		log:    log.With("component", "Sender"),
	}
	if client.chainID != 0 {
		s.signer = types.LatestSignerForChainID(new(big.Int).SetUint64(client.chainID))
	}
	if cfg.PrivateKey == "" {
		return s, nil
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, &domain.ConfigurationError{Message: fmt.Sprintf("invalid private key: %v", err)}
	}
	s.key = key
	s.address = crypto.PubkeyToAddress(key.PublicKey)
	return s, nil
}

func (s *Sender) Address() common.Address {
	return s.address
}

// SendTransaction estimates, signs and broadcasts a transaction
func (s *Sender) SendTransaction(ctx context.Context, to *common.Address, data []byte) (*usecase.SentTransaction, error) {
	if s.key == nil {
		return nil, domain.ErrNoSigner
	}
	if s.client.Offline() {
		return nil, domain.ErrNoNetwork
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := s.nonce(ctx)
	if err != nil {
		return nil, err
	}

	var (
		tip    *big.Int
		header *types.Header
		gas    uint64
	)
	msg := &w3types.Message{From: s.address, To: to, Input: data}
	if err := s.client.w3.CallCtx(ctx,
		eth.GasTipCap().Returns(&tip),
		eth.HeaderByNumber(nil).Returns(&header),
		eth.EstimateGas(msg, nil).Returns(&gas),
	); err != nil {
		if reason := abiadapter.RevertReason(err); reason != "" {
			return nil, fmt.Errorf("%w: transaction would revert: %s", domain.ErrTransactionFailed, reason)
		}
		return nil, fmt.Errorf("failed to prepare transaction: %w", err)
	}

	feeCap := new(big.Int).Set(tip)
	if header != nil && header.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(header.BaseFee, big.NewInt(2)))
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(s.client.chainID),
		Nonce:     nonce,
		To:        to,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas + gas*gasMarginPercent/100,
		Data:      data,
	})
	signed, err := types.SignTx(tx, s.signer, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	var hash common.Hash
	if err := s.client.w3.CallCtx(ctx, eth.SendTx(signed).Returns(&hash)); err != nil {
		// the node may have seen a transaction we don't know about
		s.nextNonce = nil
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}
	next := nonce + 1
	s.nextNonce = &next

	if hash != signed.Hash() {
		s.log.Warn("node returned an unexpected transaction hash", "expected", signed.Hash().Hex(), "got", hash.Hex())
	}
	sent := &usecase.SentTransaction{Hash: signed.Hash()}
	if to == nil {
		sent.ContractAddress = crypto.CreateAddress(s.address, nonce)
	}
	s.log.Debug("sent transaction", "hash", sent.Hash.Hex(), "nonce", nonce, "gas", tx.Gas())
	return sent, nil
}

func (s *Sender) nonce(ctx context.Context) (uint64, error) {
	if s.nextNonce != nil {
		return *s.nextNonce, nil
	}
	var nonce uint64
	if err := s.client.w3.CallCtx(ctx, eth.Nonce(s.address, nil).Returns(&nonce)); err != nil {
		return 0, fmt.Errorf("failed to get nonce: %w", err)
	}
	return nonce, nil
}
