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

// UpgradeProxyParams contains parameters for upgrading a proxy
type UpgradeProxyParams struct {
	Proxy    common.Address
	Contract string
	Options  domain.UpgradeOptions
}

// UpgradeProxyResult contains the result of upgrading a proxy
type UpgradeProxyResult struct {
	Proxy                  common.Address   `json:"proxy"`
	Kind                   domain.ProxyKind `json:"kind"`
	PreviousImplementation common.Address   `json:"previousImplementation"`
	Implementation         common.Address   `json:"implementation"`
	// UpgradedBy is the ProxyAdmin or proxy the upgrade call was sent to
	UpgradedBy common.Address `json:"upgradedBy"`
	TxHash     common.Hash    `json:"txHash"`
	Version    models.Version `json:"version"`
	Report     *layout.Report `json:"-"`
}

// UpgradeProxy upgrades a registered transparent or UUPS proxy to a new implementation
type UpgradeProxy struct {
	impls    *Implementations
	infra    *Infrastructure
	store    *ManifestStore
	detector *DetectProxy
	network  NetworkProvider
	progress ProgressSink
	log      *slog.Logger
}

// NewUpgradeProxy creates a new UpgradeProxy use case
func NewUpgradeProxy(
	impls *Implementations,
	infra *Infrastructure,
	store *ManifestStore,
	detector *DetectProxy,
	network NetworkProvider,
	progress ProgressSink,
	log *slog.Logger,
) *UpgradeProxy {
	if progress == nil {
		progress = NopProgress{}
	}
	return &UpgradeProxy{
		impls:    impls,
		infra:    infra,
		store:    store,
		detector: detector,
		network:  network,
		progress: progress,
		log:      log.With("component", "UpgradeProxy"),
	}
}

// Run executes the upgrade proxy use case. Kind and safety checks all happen before the
// first transaction.
func (uc *UpgradeProxy) Run(ctx context.Context, params UpgradeProxyParams) (*UpgradeProxyResult, error) {
	opts := &params.Options
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	uc.progress.OnProgress(ctx, ProgressEvent{
		Stage:   "detect",
		Message: fmt.Sprintf("Detecting proxy kind of %s", params.Proxy.Hex()),
		Spinner: true,
	})
	info, err := uc.detector.Run(ctx, params.Proxy)
	if err != nil {
		return nil, err
	}
	if err := checkUpgradableProxy(info, opts.Kind); err != nil {
		return nil, err
	}
	registered, err := uc.store.GetProxyFromAddress(ctx, params.Proxy)
	if err != nil {
		return nil, err
	}
	if err := checkRegisteredKind(info, registered); err != nil {
		return nil, err
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

	var call []byte
	if opts.Call != nil {
		if call, err = uc.impls.EncodeCall(impl.Contract, *opts.Call); err != nil {
			return nil, err
		}
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
	newImpl := common.HexToAddress(implRecord.Address)

	target, data, err := uc.upgradeCall(ctx, info, newImpl, call)
	if err != nil {
		return nil, err
	}

	chainID, err := uc.store.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	uc.progress.OnProgress(ctx, ProgressEvent{
		Stage:   "upgrade",
		Message: fmt.Sprintf("Upgrading %s to %s", params.Proxy.Hex(), newImpl.Hex()),
		Spinner: true,
	})
	txHash, err := uc.infra.Send(ctx, target, data, waitOptionsFor(chainID, opts))
	if err != nil {
		return nil, err
	}

	if err := uc.store.AddProxy(ctx, *registered); err != nil {
		return nil, err
	}

	uc.log.Info("proxy upgraded", "proxy", params.Proxy.Hex(), "from", info.Implementation.Hex(), "to", newImpl.Hex())
	return &UpgradeProxyResult{
		Proxy:                  params.Proxy,
		Kind:                   info.Kind,
		PreviousImplementation: info.Implementation,
		Implementation:         newImpl,
		UpgradedBy:             target,
		TxHash:                 txHash,
		Version:                impl.Fingerprint.Version,
		Report:                 report,
	}, nil
}

// upgradeCall builds the upgrade transaction. Proxies exposing the 5.0.0 upgrade interface
// only have the AndCall variants.
func (uc *UpgradeProxy) upgradeCall(ctx context.Context, info *ProxyInfo, newImpl common.Address, call []byte) (common.Address, []byte, error) {
	andCall := call != nil || info.UpgradeInterfaceVersion == proxy.UpgradeInterfaceV5
	if call == nil {
		call = []byte{}
	}

	switch info.Kind {
	case domain.ProxyKindUUPS:
		data, err := encodeUpgradeTo(newImpl, call, andCall)
		return info.Address, data, err

	case domain.ProxyKindTransparent:
		code, err := uc.network.CodeAt(ctx, info.Admin)
		if err != nil {
			return common.Address{}, nil, fmt.Errorf("failed to get code at %s: %w", info.Admin.Hex(), err)
		}
		if len(code) > 0 {
			var data []byte
			if andCall {
				data, err = proxy.FuncAdminUpgradeAndCall.EncodeArgs(info.Address, newImpl, call)
			} else {
				data, err = proxy.FuncAdminUpgrade.EncodeArgs(info.Address, newImpl)
			}
			return info.Admin, data, err
		}
		// the admin is an account, which may call the proxy directly
		if sender := uc.infra.Sender(); sender != info.Admin {
			return common.Address{}, nil, &domain.ConfigurationError{
				Message: fmt.Sprintf("proxy admin %s is an account and the upgrade is sent from %s", info.Admin.Hex(), sender.Hex()),
			}
		}
		data, err := encodeUpgradeTo(newImpl, call, andCall)
		return info.Address, data, err

	default:
		return common.Address{}, nil, fmt.Errorf("unexpected proxy kind %s", info.Kind)
	}
}

func encodeUpgradeTo(impl common.Address, call []byte, andCall bool) ([]byte, error) {
	if andCall {
		return proxy.FuncUpgradeToAndCall.EncodeArgs(impl, call)
	}
	return proxy.FuncUpgradeTo.EncodeArgs(impl)
}

// checkUpgradableProxy rejects anything but a transparent or UUPS proxy of the requested kind
func checkUpgradableProxy(info *ProxyInfo, requested domain.ProxyKind) error {
	expected := "a transparent or uups proxy"
	switch info.Kind {
	case domain.ProxyKindTransparent, domain.ProxyKindUUPS:
		if requested != domain.ProxyKindNone && requested != info.Kind {
			return &domain.KindMismatchError{Address: info.Address.Hex(), Detected: info.Kind, Expected: requested.String()}
		}
		return nil
	case domain.ProxyKindBeaconProxy:
		return &domain.KindMismatchError{
			Address:  info.Address.Hex(),
			Detected: info.Kind,
			Expected: expected,
			Hint:     fmt.Sprintf("Beacon proxies are upgraded through their beacon %s with upgrade-beacon", info.Beacon.Hex()),
		}
	case domain.ProxyKindBeacon:
		return &domain.KindMismatchError{
			Address:  info.Address.Hex(),
			Detected: info.Kind,
			Expected: expected,
			Hint:     "Use upgrade-beacon to upgrade a beacon",
		}
	case domain.ProxyKindNone:
		return &domain.KindMismatchError{Address: info.Address.Hex(), Detected: info.Kind, Expected: expected}
	default:
		return fmt.Errorf("unexpected proxy kind %s", info.Kind)
	}
}

// checkRegisteredKind fails when the kind detected on chain differs from the manifest
func checkRegisteredKind(info *ProxyInfo, registered *models.ProxyDeployment) error {
	detected, _ := info.Kind.ManifestKind()
	if registered.Kind == detected {
		return nil
	}
	return &domain.KindMismatchError{
		Address:  info.Address.Hex(),
		Detected: info.Kind,
		Expected: string(registered.Kind) + " (as registered in the manifest)",
	}
}
