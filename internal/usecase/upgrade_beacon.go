package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/layout"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/proxy"
)

// UpgradeBeaconParams contains parameters for upgrading a beacon
type UpgradeBeaconParams struct {
	Beacon   common.Address
	Contract string
	Options  domain.UpgradeOptions
}

// UpgradeBeaconResult contains the result of upgrading a beacon
type UpgradeBeaconResult struct {
	Beacon                 common.Address `json:"beacon"`
	PreviousImplementation common.Address `json:"previousImplementation"`
	Implementation         common.Address `json:"implementation"`
	TxHash                 common.Hash    `json:"txHash"`
	Version                models.Version `json:"version"`
	Report                 *layout.Report `json:"-"`
}

// UpgradeBeacon points a beacon, and so every proxy behind it, at a new implementation
type UpgradeBeacon struct {
	impls    *Implementations
	infra    *Infrastructure
	store    *ManifestStore
	detector *DetectProxy
	progress ProgressSink
	log      *slog.Logger
}

// NewUpgradeBeacon creates a new UpgradeBeacon use case
func NewUpgradeBeacon(impls *Implementations, infra *Infrastructure, store *ManifestStore, detector *DetectProxy, progress ProgressSink, log *slog.Logger) *UpgradeBeacon {
	if progress == nil {
		progress = NopProgress{}
	}
	return &UpgradeBeacon{
		impls:    impls,
		infra:    infra,
		store:    store,
		detector: detector,
		progress: progress,
		log:      log.With("component", "UpgradeBeacon"),
	}
}

// Run executes the upgrade beacon use case
func (uc *UpgradeBeacon) Run(ctx context.Context, params UpgradeBeaconParams) (*UpgradeBeaconResult, error) {
	opts := &params.Options
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	info, err := uc.detector.Run(ctx, params.Beacon)
	if err != nil {
		return nil, err
	}
	switch info.Kind {
	case domain.ProxyKindBeacon:
	case domain.ProxyKindBeaconProxy:
		return nil, &domain.KindMismatchError{
			Address:  params.Beacon.Hex(),
			Detected: info.Kind,
			Expected: "a beacon",
			Hint:     fmt.Sprintf("Upgrade its beacon %s instead", info.Beacon.Hex()),
		}
	default:
		return nil, &domain.KindMismatchError{Address: params.Beacon.Hex(), Detected: info.Kind, Expected: "a beacon"}
	}

	uc.progress.OnProgress(ctx, ProgressEvent{
		Stage:   "validate",
		Message: fmt.Sprintf("Validating upgrade to %s", params.Contract),
		Spinner: true,
	})
	impl, err := uc.impls.Prepare(ctx, params.Contract, opts)
	if err != nil {
		return nil, err
	}
	report, err := uc.impls.ValidateUpgrade(ctx, impl, info.Implementation, domain.ProxyKindBeacon, opts)
	if err != nil {
		return nil, err
	}

	implRecord, err := uc.impls.FetchOrDeploy(ctx, impl, opts)
	if err != nil {
		return nil, err
	}
	newImpl := common.HexToAddress(implRecord.Address)

	data, err := proxy.FuncUpgradeTo.EncodeArgs(newImpl)
	if err != nil {
		return nil, err
	}
	chainID, err := uc.store.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	uc.progress.OnProgress(ctx, ProgressEvent{
		Stage:   "upgrade",
		Message: fmt.Sprintf("Upgrading beacon %s to %s", params.Beacon.Hex(), newImpl.Hex()),
		Spinner: true,
	})
	txHash, err := uc.infra.Send(ctx, params.Beacon, data, waitOptionsFor(chainID, opts))
	if err != nil {
		return nil, err
	}

	uc.log.Info("beacon upgraded", "beacon", params.Beacon.Hex(), "from", info.Implementation.Hex(), "to", newImpl.Hex())
	return &UpgradeBeaconResult{
		Beacon:                 params.Beacon,
		PreviousImplementation: info.Implementation,
		Implementation:         newImpl,
		TxHash:                 txHash,
		Version:                impl.Fingerprint.Version,
		Report:                 report,
	}, nil
}
