package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
)

// DeployBeaconParams contains parameters for deploying a beacon
type DeployBeaconParams struct {
	Contract string
	Options  domain.UpgradeOptions
}

// DeployBeaconResult contains the result of deploying a beacon
type DeployBeaconResult struct {
	Beacon         common.Address `json:"beacon"`
	Implementation common.Address `json:"implementation"`
	Owner          common.Address `json:"owner"`
	TxHash         common.Hash    `json:"txHash"`
	Version        models.Version `json:"version"`
}

// DeployBeacon deploys an UpgradeableBeacon pointing at a validated implementation.
// Beacons are not registered in the manifest; their proxies are.
type DeployBeacon struct {
	impls    *Implementations
	infra    *Infrastructure
	store    *ManifestStore
	progress ProgressSink
	log      *slog.Logger
}

// NewDeployBeacon creates a new DeployBeacon use case
func NewDeployBeacon(impls *Implementations, infra *Infrastructure, store *ManifestStore, progress ProgressSink, log *slog.Logger) *DeployBeacon {
	if progress == nil {
		progress = NopProgress{}
	}
	return &DeployBeacon{
		impls:    impls,
		infra:    infra,
		store:    store,
		progress: progress,
		log:      log.With("component", "DeployBeacon"),
	}
}

// Run executes the deploy beacon use case
func (uc *DeployBeacon) Run(ctx context.Context, params DeployBeaconParams) (*DeployBeaconResult, error) {
	opts := &params.Options
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	uc.progress.OnProgress(ctx, ProgressEvent{
		Stage:   "validate",
		Message: fmt.Sprintf("Validating %s", params.Contract),
		Spinner: true,
	})
	impl, err := uc.impls.Prepare(ctx, params.Contract, opts)
	if err != nil {
		return nil, err
	}
	if err := uc.impls.ValidateNew(impl, domain.ProxyKindBeacon, opts); err != nil {
		return nil, err
	}

	uc.progress.OnProgress(ctx, ProgressEvent{
		Stage:   "implementation",
		Message: fmt.Sprintf("Deploying implementation %s", impl.Contract.Name),
		Spinner: true,
	})
	implRecord, err := uc.impls.FetchOrDeploy(ctx, impl, opts)
	if err != nil {
		return nil, err
	}
	implAddr := common.HexToAddress(implRecord.Address)

	beaconContract, err := uc.infra.Contract(ctx, uc.infra.Artifacts().Beacon)
	if err != nil {
		return nil, err
	}
	chainID, err := uc.store.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	uc.progress.OnProgress(ctx, ProgressEvent{
		Stage:   "beacon",
		Message: "Deploying beacon",
		Spinner: true,
	})
	owner := uc.infra.Owner(opts)
	args := []interface{}{implAddr}
	if len(beaconContract.ABI.Constructor.Inputs) > 1 {
		args = append(args, owner)
	} else {
		// older beacons are owned by their deployer
		owner = uc.infra.Sender()
	}
	d, err := uc.infra.Deploy(ctx, beaconContract, waitOptionsFor(chainID, opts), args...)
	if err != nil {
		return nil, err
	}

	uc.log.Info("beacon deployed", "beacon", d.Address, "implementation", implAddr.Hex())
	return &DeployBeaconResult{
		Beacon:         common.HexToAddress(d.Address),
		Implementation: implAddr,
		Owner:          owner,
		TxHash:         common.HexToHash(d.TxHash),
		Version:        impl.Fingerprint.Version,
	}, nil
}

// DeployBeaconProxyParams contains parameters for deploying a beacon proxy
type DeployBeaconProxyParams struct {
	Beacon common.Address
	// Contract is the implementation used to encode the initializer. It may be empty when
	// the initializer is disabled.
	Contract string
	Options  domain.UpgradeOptions
}

// DeployBeaconProxyResult contains the result of deploying a beacon proxy
type DeployBeaconProxyResult struct {
	Proxy          common.Address `json:"proxy"`
	Beacon         common.Address `json:"beacon"`
	Implementation common.Address `json:"implementation"`
	TxHash         common.Hash    `json:"txHash"`
}

// DeployBeaconProxy deploys a BeaconProxy in front of an existing beacon
type DeployBeaconProxy struct {
	impls    *Implementations
	infra    *Infrastructure
	store    *ManifestStore
	detector *DetectProxy
	progress ProgressSink
	log      *slog.Logger
}

// NewDeployBeaconProxy creates a new DeployBeaconProxy use case
func NewDeployBeaconProxy(impls *Implementations, infra *Infrastructure, store *ManifestStore, detector *DetectProxy, progress ProgressSink, log *slog.Logger) *DeployBeaconProxy {
	if progress == nil {
		progress = NopProgress{}
	}
	return &DeployBeaconProxy{
		impls:    impls,
		infra:    infra,
		store:    store,
		detector: detector,
		progress: progress,
		log:      log.With("component", "DeployBeaconProxy"),
	}
}

// Run executes the deploy beacon proxy use case
func (uc *DeployBeaconProxy) Run(ctx context.Context, params DeployBeaconProxyParams) (*DeployBeaconProxyResult, error) {
	opts := &params.Options
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if params.Contract == "" && !opts.Initializer.Disabled {
		return nil, &domain.ConfigurationError{Message: "the implementation contract is needed to encode the initializer; pass it or disable the initializer"}
	}

	info, err := uc.detector.Run(ctx, params.Beacon)
	if err != nil {
		return nil, err
	}
	if info.Kind != domain.ProxyKindBeacon {
		return nil, &domain.KindMismatchError{Address: params.Beacon.Hex(), Detected: info.Kind, Expected: "a beacon"}
	}

	initData := []byte{}
	if params.Contract != "" {
		impl, err := uc.impls.Prepare(ctx, params.Contract, opts)
		if err != nil {
			return nil, err
		}
		if initData, err = uc.impls.EncodeCall(impl.Contract, opts.Initializer); err != nil {
			return nil, err
		}
	}

	contract, err := uc.infra.Contract(ctx, uc.infra.Artifacts().BeaconProxy)
	if err != nil {
		return nil, err
	}
	chainID, err := uc.store.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	uc.progress.OnProgress(ctx, ProgressEvent{
		Stage:   "proxy",
		Message: fmt.Sprintf("Deploying beacon proxy for %s", params.Beacon.Hex()),
		Spinner: true,
	})
	pending, err := uc.infra.Create(ctx, contract, params.Beacon, initData)
	if err != nil {
		return nil, err
	}
	if err := uc.store.AddProxy(ctx, models.ProxyDeployment{Deployment: *pending, Kind: models.ManifestKindBeacon}); err != nil {
		return nil, err
	}
	if err := uc.infra.WaitDeployed(ctx, pending, waitOptionsFor(chainID, opts)); err != nil {
		return nil, err
	}

	uc.log.Info("beacon proxy deployed", "proxy", pending.Address, "beacon", params.Beacon.Hex())
	return &DeployBeaconProxyResult{
		Proxy:          common.HexToAddress(pending.Address),
		Beacon:         params.Beacon,
		Implementation: info.Implementation,
		TxHash:         common.HexToHash(pending.TxHash),
	}, nil
}
