package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
)

// ForceImportParams contains parameters for importing an existing deployment
type ForceImportParams struct {
	Address common.Address
	// Contract is the implementation currently in use, trusted for its storage layout
	Contract string
	Options  domain.UpgradeOptions
}

// ForceImportResult contains the result of a force import
type ForceImportResult struct {
	Address        common.Address   `json:"address"`
	Kind           domain.ProxyKind `json:"kind"`
	Implementation common.Address   `json:"implementation"`
	Admin          common.Address   `json:"admin,omitempty"`
	Version        models.Version   `json:"version"`
}

// ForceImport registers a proxy, beacon or implementation deployed outside this tool. No
// transaction is sent and the implementation is not validated.
type ForceImport struct {
	impls    *Implementations
	store    *ManifestStore
	detector *DetectProxy
	network  NetworkProvider
	log      *slog.Logger
}

// NewForceImport creates a new ForceImport use case
func NewForceImport(impls *Implementations, store *ManifestStore, detector *DetectProxy, network NetworkProvider, log *slog.Logger) *ForceImport {
	return &ForceImport{
		impls:    impls,
		store:    store,
		detector: detector,
		network:  network,
		log:      log.With("component", "ForceImport"),
	}
}

// Run executes the force import use case
func (uc *ForceImport) Run(ctx context.Context, params ForceImportParams) (*ForceImportResult, error) {
	opts := &params.Options
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	info, err := uc.detector.Run(ctx, params.Address)
	if err != nil {
		return nil, err
	}
	if opts.Kind != domain.ProxyKindNone && info.Kind != domain.ProxyKindNone && opts.Kind != info.Kind {
		return nil, &domain.KindMismatchError{
			Address:  params.Address.Hex(),
			Detected: info.Kind,
			Expected: opts.Kind.String(),
			Hint:     "Requested an import of a different kind than detected on chain",
		}
	}

	impl, err := uc.impls.Prepare(ctx, params.Contract, opts)
	if err != nil {
		return nil, err
	}

	result := &ForceImportResult{
		Address: params.Address,
		Kind:    info.Kind,
		Version: impl.Fingerprint.Version,
	}

	switch info.Kind {
	case domain.ProxyKindNone:
		// a bare implementation
		result.Implementation = params.Address
		if _, err := uc.impls.SimulateDeployment(ctx, impl, params.Address, uc.network); err != nil {
			return nil, err
		}

	case domain.ProxyKindBeacon:
		result.Implementation = info.Implementation
		if _, err := uc.impls.SimulateDeployment(ctx, impl, info.Implementation, uc.network); err != nil {
			return nil, err
		}

	case domain.ProxyKindTransparent, domain.ProxyKindUUPS, domain.ProxyKindBeaconProxy:
		result.Implementation = info.Implementation
		if _, err := uc.impls.SimulateDeployment(ctx, impl, info.Implementation, uc.network); err != nil {
			return nil, err
		}
		manifestKind, _ := info.Kind.ManifestKind()
		if err := uc.store.AddProxy(ctx, models.ProxyDeployment{
			Deployment: models.Deployment{Address: params.Address.Hex()},
			Kind:       manifestKind,
		}); err != nil {
			return nil, err
		}
		if info.Kind == domain.ProxyKindTransparent {
			result.Admin = info.Admin
			if err := uc.importAdmin(ctx, info.Admin); err != nil {
				return nil, err
			}
		}

	default:
		return nil, fmt.Errorf("unexpected proxy kind %s", info.Kind)
	}

	uc.log.Info("imported", "address", params.Address.Hex(), "kind", info.Kind.String(), "implementation", result.Implementation.Hex())
	return result, nil
}

// importAdmin records a ProxyAdmin contract. Accounts acting as admin are not recorded.
func (uc *ForceImport) importAdmin(ctx context.Context, admin common.Address) error {
	code, err := uc.network.CodeAt(ctx, admin)
	if err != nil {
		return fmt.Errorf("failed to get code at %s: %w", admin.Hex(), err)
	}
	if len(code) == 0 {
		return nil
	}
	return uc.store.SetAdmin(ctx, models.Deployment{Address: admin.Hex()})
}
