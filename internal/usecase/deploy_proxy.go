package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/validation"
)

// DeployProxyParams contains parameters for deploying a proxy
type DeployProxyParams struct {
	// Contract is the implementation, "Name" or "path/File.sol:Name"
	Contract string
	Options  domain.UpgradeOptions
}

// DeployProxyResult contains the result of deploying a proxy
type DeployProxyResult struct {
	Proxy          common.Address         `json:"proxy"`
	Kind           domain.ProxyKind       `json:"kind"`
	Implementation common.Address         `json:"implementation"`
	Admin          common.Address         `json:"admin,omitempty"`
	TxHash         common.Hash            `json:"txHash"`
	Version        models.Version         `json:"version"`
	ImplRecord     *models.ImplDeployment `json:"-"`
}

// DeployProxy deploys a transparent or UUPS proxy in front of a validated implementation
type DeployProxy struct {
	impls    *Implementations
	infra    *Infrastructure
	store    *ManifestStore
	detector *DetectProxy
	progress ProgressSink
	log      *slog.Logger
}

// NewDeployProxy creates a new DeployProxy use case
func NewDeployProxy(
	impls *Implementations,
	infra *Infrastructure,
	store *ManifestStore,
	detector *DetectProxy,
	progress ProgressSink,
	log *slog.Logger,
) *DeployProxy {
	if progress == nil {
		progress = NopProgress{}
	}
	return &DeployProxy{
		impls:    impls,
		infra:    infra,
		store:    store,
		detector: detector,
		progress: progress,
		log:      log.With("component", "DeployProxy"),
	}
}

// Run executes the deploy proxy use case. Nothing is deployed when the implementation is
// rejected.
func (uc *DeployProxy) Run(ctx context.Context, params DeployProxyParams) (*DeployProxyResult, error) {
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
	kind, err := inferProxyKind(impl.Contract, opts.Kind)
	if err != nil {
		return nil, err
	}
	if err := uc.impls.ValidateNew(impl, kind, opts); err != nil {
		return nil, err
	}
	initData, err := uc.impls.EncodeCall(impl.Contract, opts.Initializer)
	if err != nil {
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

	chainID, err := uc.store.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	wait := waitOptionsFor(chainID, opts)

	uc.progress.OnProgress(ctx, ProgressEvent{
		Stage:   "proxy",
		Message: fmt.Sprintf("Deploying %s proxy", kind),
		Spinner: true,
	})
	result := &DeployProxyResult{
		Kind:           kind,
		Implementation: implAddr,
		Version:        impl.Fingerprint.Version,
		ImplRecord:     implRecord,
	}
	var pending *models.Deployment
	switch kind {
	case domain.ProxyKindUUPS:
		pending, err = uc.deployUUPS(ctx, implAddr, initData)
	case domain.ProxyKindTransparent:
		pending, err = uc.deployTransparent(ctx, implAddr, initData, opts, wait, result)
	default:
		err = fmt.Errorf("unexpected proxy kind %s", kind)
	}
	if err != nil {
		return nil, err
	}

	manifestKind, _ := kind.ManifestKind()
	if err := uc.store.AddProxy(ctx, models.ProxyDeployment{Deployment: *pending, Kind: manifestKind}); err != nil {
		return nil, err
	}
	if err := uc.infra.WaitDeployed(ctx, pending, wait); err != nil {
		return nil, err
	}

	result.Proxy = common.HexToAddress(pending.Address)
	result.TxHash = common.HexToHash(pending.TxHash)
	if kind == domain.ProxyKindTransparent && result.Admin == (common.Address{}) {
		if result.Admin, err = uc.detector.AdminAddress(ctx, result.Proxy); err != nil {
			return nil, err
		}
	}

	uc.log.Info("proxy deployed", "proxy", result.Proxy.Hex(), "kind", kind.String(), "implementation", implAddr.Hex())
	return result, nil
}

func (uc *DeployProxy) deployUUPS(ctx context.Context, impl common.Address, initData []byte) (*models.Deployment, error) {
	contract, err := uc.infra.Contract(ctx, uc.infra.Artifacts().UUPSProxy)
	if err != nil {
		return nil, err
	}
	return uc.infra.Create(ctx, contract, impl, initData)
}

// deployTransparent creates the proxy. Proxies that take an admin contract share the
// ProxyAdmin recorded in the manifest; proxies that take an owner create their own.
func (uc *DeployProxy) deployTransparent(ctx context.Context, impl common.Address, initData []byte, opts *domain.UpgradeOptions, wait WaitOptions, result *DeployProxyResult) (*models.Deployment, error) {
	contract, err := uc.infra.Contract(ctx, uc.infra.Artifacts().TransparentProxy)
	if err != nil {
		return nil, err
	}
	if TakesOwner(contract, 1) {
		return uc.infra.Create(ctx, contract, impl, uc.infra.Owner(opts), initData)
	}

	admin, err := uc.fetchOrDeployAdmin(ctx, opts, wait)
	if err != nil {
		return nil, err
	}
	result.Admin = admin
	return uc.infra.Create(ctx, contract, impl, admin, initData)
}

func (uc *DeployProxy) fetchOrDeployAdmin(ctx context.Context, opts *domain.UpgradeOptions, wait WaitOptions) (common.Address, error) {
	adminContract, err := uc.infra.Contract(ctx, uc.infra.Artifacts().ProxyAdmin)
	if err != nil {
		return common.Address{}, err
	}
	admin, err := uc.store.FetchOrDeployAdmin(ctx, func(ctx context.Context) (*models.Deployment, error) {
		if len(adminContract.ABI.Constructor.Inputs) > 0 {
			return uc.infra.Create(ctx, adminContract, uc.infra.Owner(opts))
		}
		return uc.infra.Create(ctx, adminContract)
	}, FetchOptions{Wait: wait})
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to deploy ProxyAdmin: %w", err)
	}
	return common.HexToAddress(admin.Address), nil
}

// inferProxyKind picks the kind for a new proxy. Contracts that can upgrade themselves
// get a UUPS proxy unless another kind was requested.
func inferProxyKind(contract *models.Contract, requested domain.ProxyKind) (domain.ProxyKind, error) {
	switch requested {
	case domain.ProxyKindTransparent, domain.ProxyKindUUPS:
		return requested, nil
	case domain.ProxyKindNone:
		if validation.HasUpgradeFunction(contract) {
			return domain.ProxyKindUUPS, nil
		}
		return domain.ProxyKindTransparent, nil
	case domain.ProxyKindBeacon, domain.ProxyKindBeaconProxy:
		return requested, &domain.ConfigurationError{Message: "beacon proxies are deployed with deploy-beacon and deploy-beacon-proxy"}
	default:
		return requested, &domain.ConfigurationError{Message: fmt.Sprintf("unsupported proxy kind %s", requested)}
	}
}
