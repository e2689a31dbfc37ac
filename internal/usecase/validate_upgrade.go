package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/layout"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/validation"
)

// ValidateImplementationParams contains parameters for validating a standalone implementation
type ValidateImplementationParams struct {
	Contract string
	Options  domain.UpgradeOptions
}

// ValidateImplementationResult contains the result of validating an implementation
type ValidateImplementationResult struct {
	Contract string           `json:"contract"`
	Kind     domain.ProxyKind `json:"kind"`
	Version  models.Version   `json:"version"`
}

// ValidateImplementation checks that a contract can be used behind a proxy without
// deploying anything.
type ValidateImplementation struct {
	impls *Implementations
}

// NewValidateImplementation creates a new ValidateImplementation use case
func NewValidateImplementation(impls *Implementations) *ValidateImplementation {
	return &ValidateImplementation{impls: impls}
}

// Run executes the validate implementation use case
func (uc *ValidateImplementation) Run(ctx context.Context, params ValidateImplementationParams) (*ValidateImplementationResult, error) {
	opts := &params.Options
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	impl, err := uc.impls.Prepare(ctx, params.Contract, opts)
	if err != nil {
		return nil, err
	}
	kind := opts.Kind
	if kind != domain.ProxyKindBeacon && kind != domain.ProxyKindBeaconProxy {
		if kind, err = inferProxyKind(impl.Contract, opts.Kind); err != nil {
			return nil, err
		}
	}
	if err := uc.impls.ValidateNew(impl, kind, opts); err != nil {
		return nil, err
	}
	return &ValidateImplementationResult{
		Contract: impl.Contract.Name,
		Kind:     kind,
		Version:  impl.Fingerprint.Version,
	}, nil
}

// ValidateUpgradeParams contains parameters for validating an upgrade. The current
// implementation is either the one behind Address or the compiled Reference contract.
type ValidateUpgradeParams struct {
	Address   *common.Address
	Reference string
	Contract  string
	Options   domain.UpgradeOptions
}

// ValidateUpgradeResult contains the result of validating an upgrade
type ValidateUpgradeResult struct {
	Contract string           `json:"contract"`
	Kind     domain.ProxyKind `json:"kind"`
	// Current is the implementation in use when validating against an address
	Current common.Address `json:"current,omitempty"`
	Report  *layout.Report `json:"-"`
}

// ValidateUpgrade checks an upgrade without deploying anything
type ValidateUpgrade struct {
	impls    *Implementations
	detector *DetectProxy
	log      *slog.Logger
}

// NewValidateUpgrade creates a new ValidateUpgrade use case
func NewValidateUpgrade(impls *Implementations, detector *DetectProxy, log *slog.Logger) *ValidateUpgrade {
	return &ValidateUpgrade{
		impls:    impls,
		detector: detector,
		log:      log.With("component", "ValidateUpgrade"),
	}
}

// Run executes the validate upgrade use case. The layout report is returned along with a
// StorageLayoutConflictError so callers can render it.
func (uc *ValidateUpgrade) Run(ctx context.Context, params ValidateUpgradeParams) (*ValidateUpgradeResult, error) {
	opts := &params.Options
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if (params.Address == nil) == (params.Reference == "") {
		return nil, &domain.ConfigurationError{Message: "validate against either a deployed address or a reference contract"}
	}

	impl, err := uc.impls.Prepare(ctx, params.Contract, opts)
	if err != nil {
		return nil, err
	}

	if params.Address != nil {
		info, err := uc.detector.Run(ctx, *params.Address)
		if err != nil {
			return nil, err
		}
		if !info.Kind.IsProxy() && info.Kind != domain.ProxyKindBeacon {
			return nil, &domain.KindMismatchError{Address: params.Address.Hex(), Detected: info.Kind, Expected: "a proxy or beacon"}
		}
		result := &ValidateUpgradeResult{Contract: impl.Contract.Name, Kind: info.Kind, Current: info.Implementation}
		result.Report, err = uc.impls.ValidateUpgrade(ctx, impl, info.Implementation, info.Kind, opts)
		return result, err
	}

	reference, err := uc.impls.PrepareReference(ctx, params.Reference, opts)
	if err != nil {
		return nil, err
	}
	kind := opts.Kind
	if kind == domain.ProxyKindNone {
		if kind, err = inferProxyKind(reference.Contract, domain.ProxyKindNone); err != nil {
			return nil, err
		}
	}
	if err := uc.impls.ValidateNew(impl, kind, opts); err != nil {
		return nil, err
	}
	result := &ValidateUpgradeResult{Contract: impl.Contract.Name, Kind: kind}
	result.Report, err = validation.CheckStorage(impl.Contract.Name, reference.Validation.Layout, impl.Validation.Layout, opts)
	return result, err
}

// PrepareUpgradeParams contains parameters for preparing an upgrade
type PrepareUpgradeParams struct {
	Address  common.Address
	Contract string
	Options  domain.UpgradeOptions
}

// PrepareUpgradeResult contains the result of preparing an upgrade
type PrepareUpgradeResult struct {
	Address        common.Address   `json:"address"`
	Kind           domain.ProxyKind `json:"kind"`
	Implementation common.Address   `json:"implementation"`
	TxHash         string           `json:"txHash,omitempty"`
	Version        models.Version   `json:"version"`
	Report         *layout.Report   `json:"-"`
}

// PrepareUpgrade validates an upgrade and deploys the new implementation without touching
// the proxy, for upgrades executed by a multisig or governance.
type PrepareUpgrade struct {
	impls    *Implementations
	detector *DetectProxy
	progress ProgressSink
	log      *slog.Logger
}

// NewPrepareUpgrade creates a new PrepareUpgrade use case
func NewPrepareUpgrade(impls *Implementations, detector *DetectProxy, progress ProgressSink, log *slog.Logger) *PrepareUpgrade {
	if progress == nil {
		progress = NopProgress{}
	}
	return &PrepareUpgrade{
		impls:    impls,
		detector: detector,
		progress: progress,
		log:      log.With("component", "PrepareUpgrade"),
	}
}

// Run executes the prepare upgrade use case
func (uc *PrepareUpgrade) Run(ctx context.Context, params PrepareUpgradeParams) (*PrepareUpgradeResult, error) {
	opts := &params.Options
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	info, err := uc.detector.Run(ctx, params.Address)
	if err != nil {
		return nil, err
	}
	if !info.Kind.IsProxy() && info.Kind != domain.ProxyKindBeacon {
		return nil, &domain.KindMismatchError{Address: params.Address.Hex(), Detected: info.Kind, Expected: "a proxy or beacon"}
	}
	if opts.Kind != domain.ProxyKindNone && opts.Kind != info.Kind {
		return nil, &domain.KindMismatchError{Address: params.Address.Hex(), Detected: info.Kind, Expected: opts.Kind.String()}
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
	report, err := uc.impls.ValidateUpgrade(ctx, impl, info.Implementation, info.Kind, opts)
	if err != nil {
		return nil, err
	}

	uc.progress.OnProgress(ctx, ProgressEvent{
		Stage:   "implementation",
		Message: fmt.Sprintf("Deploying implementation %s", impl.Contract.Name),
		Spinner: true,
	})
	rec, err := uc.impls.FetchOrDeploy(ctx, impl, opts)
	if err != nil {
		return nil, err
	}

	uc.log.Info("upgrade prepared", "address", params.Address.Hex(), "implementation", rec.Address)
	return &PrepareUpgradeResult{
		Address:        params.Address,
		Kind:           info.Kind,
		Implementation: common.HexToAddress(rec.Address),
		TxHash:         rec.TxHash,
		Version:        impl.Fingerprint.Version,
		Report:         report,
	}, nil
}
