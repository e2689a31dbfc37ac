package usecase

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
)

// NetworkProvider reads chain state
type NetworkProvider interface {
	ChainID(ctx context.Context) (uint64, error)
	CodeAt(ctx context.Context, address common.Address) ([]byte, error)
	StorageAt(ctx context.Context, address common.Address, slot common.Hash) ([]byte, error)
	// Call executes a read-only call; a revert is returned as an error
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	// TransactionReceipt returns nil and no error while the transaction is pending
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	// TransactionKnown reports whether the node knows the transaction, mined or pending
	TransactionKnown(ctx context.Context, hash common.Hash) (bool, error)
}

// SentTransaction is a broadcast transaction. ContractAddress is set for contract creations.
type SentTransaction struct {
	Hash            common.Hash
	ContractAddress common.Address
}

// TransactionSender signs and broadcasts transactions
type TransactionSender interface {
	Address() common.Address
	// SendTransaction broadcasts a transaction; a nil recipient creates a contract
	SendTransaction(ctx context.Context, to *common.Address, data []byte) (*SentTransaction, error)
}

// ContractRepository provides access to compiled contracts
type ContractRepository interface {
	// GetContract resolves "Name" or "path/File.sol:Name"
	GetContract(ctx context.Context, ref string) (*models.Contract, error)
}

// ValidationDataProvider supplies the storage layout and static findings of a compiled contract
type ValidationDataProvider interface {
	GetValidationData(ctx context.Context, contract *models.Contract, version models.Version) (*models.ValidationData, error)
}

// ManifestRepository persists one manifest per chain
type ManifestRepository interface {
	Path(chainID uint64) string
	// Load returns an empty manifest when none was written yet
	Load(ctx context.Context, chainID uint64) (*models.Manifest, error)
	Save(ctx context.Context, chainID uint64, manifest *models.Manifest) error
	// Lock serializes manifest mutations across goroutines and processes
	Lock(ctx context.Context, chainID uint64) (unlock func(), err error)
}

// ArgumentEncoder converts textual arguments to ABI encoded values
type ArgumentEncoder interface {
	EncodeArgs(args abi.Arguments, values []string) ([]byte, error)
}

// Progress tracking interfaces

// ProgressEvent represents a progress update
type ProgressEvent struct {
	Stage    string
	Message  string
	Spinner  bool
	Metadata interface{}
}

// ProgressSink receives progress events
type ProgressSink interface {
	OnProgress(ctx context.Context, event ProgressEvent)
	Info(message string)
	Error(message string)
}

// NopProgress is a no-op implementation of ProgressSink
type NopProgress struct{}

func (NopProgress) OnProgress(context.Context, ProgressEvent) {}
func (NopProgress) Info(string)                               {}
func (NopProgress) Error(string)                              {}
