package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/config"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/version"
)

// Infrastructure deploys and drives the proxy contracts themselves: proxies, ProxyAdmin
// and beacons.
type Infrastructure struct {
	contracts ContractRepository
	sender    TransactionSender
	confirmer *TxConfirmer
	network   NetworkProvider
	artifacts config.ProxyArtifacts
	log       *slog.Logger
}

// NewInfrastructure creates a new Infrastructure helper
func NewInfrastructure(
	cfg *config.RuntimeConfig,
	contracts ContractRepository,
	sender TransactionSender,
	confirmer *TxConfirmer,
	network NetworkProvider,
	log *slog.Logger,
) *Infrastructure {
	return &Infrastructure{
		contracts: contracts,
		sender:    sender,
		confirmer: confirmer,
		network:   network,
		artifacts: cfg.Upgrades.ProxyArtifacts(),
		log:       log.With("component", "Infrastructure"),
	}
}

// Artifacts returns the names of the proxy contracts in use
func (x *Infrastructure) Artifacts() config.ProxyArtifacts {
	return x.artifacts
}

// Contract loads a proxy infrastructure contract by artifact name
func (x *Infrastructure) Contract(ctx context.Context, name string) (*models.Contract, error) {
	contract, err := x.contracts.GetContract(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s (is the proxy contracts library compiled into the project?): %w", name, err)
	}
	if contract.ABI == nil {
		return nil, fmt.Errorf("%s has no ABI", name)
	}
	return contract, nil
}

// Create sends the creation of contract with the given constructor arguments. It returns
// as soon as the transaction is broadcast.
func (x *Infrastructure) Create(ctx context.Context, contract *models.Contract, args ...interface{}) (*models.Deployment, error) {
	code, err := version.Link(contract.Bytecode, contract.LinkReferences, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to link %s: %w", contract.Name, err)
	}
	encoded, err := contract.ABI.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode constructor arguments of %s: %w", contract.Name, err)
	}
	initCode := append(code, encoded...)

	tx, err := x.sender.SendTransaction(ctx, nil, initCode)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy %s: %w", contract.Name, err)
	}
	x.log.Info("sent deployment", "contract", contract.Name, "address", tx.ContractAddress.Hex(), "tx", tx.Hash.Hex())
	return &models.Deployment{
		Address:      tx.ContractAddress.Hex(),
		TxHash:       tx.Hash.Hex(),
		BytecodeHash: crypto.Keccak256Hash(initCode).Hex(),
	}, nil
}

// WaitDeployed waits for a creation and checks that code was left at its address
func (x *Infrastructure) WaitDeployed(ctx context.Context, d *models.Deployment, opts WaitOptions) error {
	opts.Address = d.Address
	if _, err := x.confirmer.Wait(ctx, common.HexToHash(d.TxHash), opts); err != nil {
		return err
	}
	code, err := x.network.CodeAt(ctx, common.HexToAddress(d.Address))
	if err != nil {
		return fmt.Errorf("failed to get code at %s: %w", d.Address, err)
	}
	if len(code) == 0 {
		return &domain.InvalidDeploymentError{Address: d.Address, TxHash: d.TxHash}
	}
	return nil
}

// Deploy creates a contract and waits for it
func (x *Infrastructure) Deploy(ctx context.Context, contract *models.Contract, opts WaitOptions, args ...interface{}) (*models.Deployment, error) {
	d, err := x.Create(ctx, contract, args...)
	if err != nil {
		return nil, err
	}
	if err := x.WaitDeployed(ctx, d, opts); err != nil {
		return nil, err
	}
	return d, nil
}

// Send sends a call to an existing contract and waits for it to be mined
func (x *Infrastructure) Send(ctx context.Context, to common.Address, data []byte, opts WaitOptions) (common.Hash, error) {
	tx, err := x.sender.SendTransaction(ctx, &to, data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction to %s: %w", to.Hex(), err)
	}
	x.log.Info("sent transaction", "to", to.Hex(), "tx", tx.Hash.Hex())
	if _, err := x.confirmer.Wait(ctx, tx.Hash, opts); err != nil {
		return tx.Hash, err
	}
	return tx.Hash, nil
}

// Owner returns the owner for newly created admin and beacon contracts
func (x *Infrastructure) Owner(opts *domain.UpgradeOptions) common.Address {
	if opts.InitialOwner != nil {
		return *opts.InitialOwner
	}
	return x.sender.Address()
}

// Sender returns the address transactions are sent from
func (x *Infrastructure) Sender() common.Address {
	return x.sender.Address()
}

// TakesOwner reports whether the constructor input at index is an owner rather than an
// admin contract. OpenZeppelin Contracts 5 proxies create their own ProxyAdmin owned by it.
func TakesOwner(contract *models.Contract, index int) bool {
	inputs := contract.ABI.Constructor.Inputs
	if index >= len(inputs) {
		return false
	}
	return inputs[index].Name == "initialOwner" || inputs[index].Name == "owner_" || inputs[index].Name == "_owner"
}
