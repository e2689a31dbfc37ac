package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/layout"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/validation"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/version"
)

// Implementation is a compiled implementation ready to be validated and deployed
type Implementation struct {
	Contract    *models.Contract
	Fingerprint *version.Fingerprint
	Validation  *models.ValidationData
}

// Implementations validates and deploys implementation contracts. It is shared by every
// orchestrated operation.
type Implementations struct {
	contracts   ContractRepository
	validations ValidationDataProvider
	encoder     ArgumentEncoder
	store       *ManifestStore
	sender      TransactionSender
	log         *slog.Logger
}

// NewImplementations creates a new Implementations helper
func NewImplementations(
	contracts ContractRepository,
	validations ValidationDataProvider,
	encoder ArgumentEncoder,
	store *ManifestStore,
	sender TransactionSender,
	log *slog.Logger,
) *Implementations {
	return &Implementations{
		contracts:   contracts,
		validations: validations,
		encoder:     encoder,
		store:       store,
		sender:      sender,
		log:         log.With("component", "Implementations"),
	}
}

// Prepare loads the contract, encodes its constructor arguments and fingerprints it
func (i *Implementations) Prepare(ctx context.Context, ref string, opts *domain.UpgradeOptions) (*Implementation, error) {
	contract, err := i.contracts.GetContract(ctx, ref)
	if err != nil {
		return nil, err
	}

	var args []byte
	if contract.ABI != nil && len(contract.ABI.Constructor.Inputs) > 0 {
		args, err = i.encoder.EncodeArgs(contract.ABI.Constructor.Inputs, opts.ConstructorArgs)
		if err != nil {
			return nil, fmt.Errorf("invalid constructor arguments for %s: %w", contract.Name, err)
		}
	} else if len(opts.ConstructorArgs) > 0 {
		return nil, &domain.ConfigurationError{Message: fmt.Sprintf("%s has no constructor arguments but %d were given", contract.Name, len(opts.ConstructorArgs))}
	}

	return i.load(ctx, contract, opts, args)
}

// PrepareReference loads a contract that is only used for its storage layout, so its
// constructor arguments are irrelevant.
func (i *Implementations) PrepareReference(ctx context.Context, ref string, opts *domain.UpgradeOptions) (*Implementation, error) {
	contract, err := i.contracts.GetContract(ctx, ref)
	if err != nil {
		return nil, err
	}
	return i.load(ctx, contract, opts, nil)
}

func (i *Implementations) load(ctx context.Context, contract *models.Contract, opts *domain.UpgradeOptions, args []byte) (*Implementation, error) {
	fp, err := version.ForContract(contract, opts.Libraries, args)
	if err != nil {
		return nil, err
	}

	data, err := i.validations.GetValidationData(ctx, contract, fp.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to get validation data for %s: %w", contract.Name, err)
	}

	return &Implementation{Contract: contract, Fingerprint: fp, Validation: data}, nil
}

// ValidateNew checks that the implementation may be used behind a proxy of the given kind
func (i *Implementations) ValidateNew(impl *Implementation, kind domain.ProxyKind, opts *domain.UpgradeOptions) error {
	return validation.Check(impl.Contract, impl.Validation, kind, opts)
}

// ValidateUpgrade checks the implementation and compares its storage layout with the one
// recorded for the implementation currently in use.
func (i *Implementations) ValidateUpgrade(ctx context.Context, impl *Implementation, current common.Address, kind domain.ProxyKind, opts *domain.UpgradeOptions) (*layout.Report, error) {
	if err := i.ValidateNew(impl, kind, opts); err != nil {
		return nil, err
	}
	if opts.UnsafeSkipStorageCheck {
		i.log.Warn("skipping storage layout check", "contract", impl.Contract.Name)
		return nil, nil
	}

	currentImpl, err := i.store.GetDeploymentFromAddress(ctx, current)
	if err != nil {
		return nil, err
	}
	if currentImpl.Layout == nil {
		return nil, &domain.DeploymentNotFoundError{
			Address: current.Hex(),
			Hint:    "The manifest has no storage layout for it; register it again with force-import",
		}
	}
	return validation.CheckStorage(impl.Contract.Name, currentImpl.Layout, impl.Validation.Layout, opts)
}

// FetchOrDeploy returns the deployed implementation, deploying it when needed
func (i *Implementations) FetchOrDeploy(ctx context.Context, impl *Implementation, opts *domain.UpgradeOptions) (*models.ImplDeployment, error) {
	chainID, err := i.store.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	return i.store.FetchOrDeploy(ctx, impl.Fingerprint.Version, impl.Validation.Layout,
		func(ctx context.Context) (*models.Deployment, error) {
			i.log.Info("deploying implementation", "contract", impl.Contract.Name, "version", impl.Fingerprint.Version.Key)
			return i.Deploy(ctx, impl.Fingerprint.InitCode())
		},
		FetchOptions{Redeploy: opts.EffectiveRedeploy(), Wait: waitOptionsFor(chainID, opts)},
	)
}

// Deploy broadcasts a contract creation without waiting for it
func (i *Implementations) Deploy(ctx context.Context, initCode []byte) (*models.Deployment, error) {
	tx, err := i.sender.SendTransaction(ctx, nil, initCode)
	if err != nil {
		return nil, fmt.Errorf("failed to send deployment transaction: %w", err)
	}
	return &models.Deployment{
		Address:      tx.ContractAddress.Hex(),
		TxHash:       tx.Hash.Hex(),
		BytecodeHash: crypto.Keccak256Hash(initCode).Hex(),
	}, nil
}

// EncodeCall encodes a call to a function of the contract. An empty function name means
// "initialize"; a contract without one gets no call unless arguments were given.
func (i *Implementations) EncodeCall(contract *models.Contract, call domain.InitializerCall) ([]byte, error) {
	if call.Disabled {
		return []byte{}, nil
	}
	name := call.Function
	if name == "" {
		name = "initialize"
	}
	method, err := findMethod(contract, name)
	if err != nil {
		if call.Function == "" && len(call.Args) == 0 && errors.Is(err, domain.ErrNotFound) {
			return []byte{}, nil
		}
		return nil, err
	}
	args, err := i.encoder.EncodeArgs(method.Inputs, call.Args)
	if err != nil {
		return nil, fmt.Errorf("invalid arguments for %s.%s: %w", contract.Name, method.Sig, err)
	}
	return append(append([]byte{}, method.ID...), args...), nil
}

// findMethod resolves a method by name or full signature. Overloaded names must be given
// by signature.
func findMethod(contract *models.Contract, name string) (*abi.Method, error) {
	if contract.ABI == nil {
		return nil, fmt.Errorf("%w: %s has no ABI", domain.ErrNotFound, contract.Name)
	}
	var matches []abi.Method
	for _, m := range contract.ABI.Methods {
		if m.Sig == name || (!strings.Contains(name, "(") && m.RawName == name) {
			matches = append(matches, m)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: function %s in %s", domain.ErrNotFound, name, contract.Name)
	case 1:
		return &matches[0], nil
	default:
		return nil, &domain.ConfigurationError{Message: fmt.Sprintf("function %s is overloaded in %s; use the full signature", name, contract.Name)}
	}
}

// SimulateDeployment fingerprints an implementation that is already deployed at address
// and records it without sending a transaction.
func (i *Implementations) SimulateDeployment(ctx context.Context, impl *Implementation, address common.Address, network NetworkProvider) (*models.ImplDeployment, error) {
	code, err := network.CodeAt(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get code at %s: %w", address.Hex(), err)
	}
	if len(code) == 0 {
		return nil, &domain.ProxyKindUnknownError{Address: address.Hex(), Reason: "no contract code at address"}
	}
	if !sameRuntime(code, impl.Fingerprint.Runtime) {
		i.log.Warn("deployed bytecode differs from the compiled contract; trusting the compiled storage layout",
			"contract", impl.Contract.Name, "address", address.Hex())
	}
	return i.store.ImportImpl(ctx, impl.Fingerprint.Version, impl.Validation.Layout, models.Deployment{
		Address:      address.Hex(),
		BytecodeHash: impl.Fingerprint.BytecodeHash(),
	})
}

// sameRuntime compares runtime code ignoring metadata. Immutable values make most
// comparisons fail, so a mismatch is only ever a warning.
func sameRuntime(onchain, compiled []byte) bool {
	return string(version.StripMetadata(onchain)) == string(version.StripMetadata(compiled))
}
