package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/proxy"
)

// ProxyInfo is what the detector learned about an address
type ProxyInfo struct {
	Address        common.Address   `json:"address"`
	Kind           domain.ProxyKind `json:"kind"`
	Implementation common.Address   `json:"implementation"`
	Admin          common.Address   `json:"admin,omitempty"`
	Beacon         common.Address   `json:"beacon,omitempty"`
	// UpgradeInterfaceVersion is empty when the probe failed
	UpgradeInterfaceVersion string `json:"upgradeInterfaceVersion,omitempty"`
}

// DetectProxy classifies an address as a transparent, UUPS or beacon proxy, a beacon, or
// a plain contract. Only the ERC-1967 slots and the beacon accessor are consulted; the
// bytecode is never matched against known proxies.
type DetectProxy struct {
	network NetworkProvider
	log     *slog.Logger
}

// NewDetectProxy creates a new DetectProxy use case
func NewDetectProxy(network NetworkProvider, log *slog.Logger) *DetectProxy {
	return &DetectProxy{
		network: network,
		log:     log.With("component", "DetectProxy"),
	}
}

// Run detects the kind of the contract at address
func (d *DetectProxy) Run(ctx context.Context, address common.Address) (*ProxyInfo, error) {
	code, err := d.network.CodeAt(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get code at %s: %w", address.Hex(), err)
	}
	if len(code) == 0 {
		return nil, &domain.ProxyKindUnknownError{Address: address.Hex(), Reason: "no contract code at address"}
	}

	info := &ProxyInfo{Address: address}

	impl, err := d.ImplementationAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if impl != (common.Address{}) {
		info.Implementation = impl
		if info.Admin, err = d.AdminAddress(ctx, address); err != nil {
			return nil, err
		}
		if info.Admin != (common.Address{}) {
			info.Kind = domain.ProxyKindTransparent
			info.UpgradeInterfaceVersion = d.UpgradeInterfaceVersion(ctx, info.Admin)
		} else {
			info.Kind = domain.ProxyKindUUPS
			info.UpgradeInterfaceVersion = d.UpgradeInterfaceVersion(ctx, address)
		}
		return info, nil
	}

	beacon, err := d.BeaconAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if beacon != (common.Address{}) {
		info.Kind = domain.ProxyKindBeaconProxy
		info.Beacon = beacon
		if info.Implementation, err = d.BeaconImplementation(ctx, beacon); err != nil {
			return nil, err
		}
		return info, nil
	}

	if impl, err := d.BeaconImplementation(ctx, address); err == nil {
		info.Kind = domain.ProxyKindBeacon
		info.Implementation = impl
		return info, nil
	}

	info.Kind = domain.ProxyKindNone
	return info, nil
}

// ImplementationAddress reads the ERC-1967 implementation slot
func (d *DetectProxy) ImplementationAddress(ctx context.Context, address common.Address) (common.Address, error) {
	return d.slotAddress(ctx, address, proxy.ImplementationSlot)
}

// AdminAddress reads the ERC-1967 admin slot
func (d *DetectProxy) AdminAddress(ctx context.Context, address common.Address) (common.Address, error) {
	return d.slotAddress(ctx, address, proxy.AdminSlot)
}

// BeaconAddress reads the ERC-1967 beacon slot
func (d *DetectProxy) BeaconAddress(ctx context.Context, address common.Address) (common.Address, error) {
	return d.slotAddress(ctx, address, proxy.BeaconSlot)
}

func (d *DetectProxy) slotAddress(ctx context.Context, address common.Address, slot common.Hash) (common.Address, error) {
	word, err := d.network.StorageAt(ctx, address, slot)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to read storage slot %s of %s: %w", slot.Hex(), address.Hex(), err)
	}
	return proxy.AddressFromSlot(word), nil
}

// BeaconImplementation calls implementation() on a beacon
func (d *DetectProxy) BeaconImplementation(ctx context.Context, beacon common.Address) (common.Address, error) {
	data, err := proxy.FuncImplementation.EncodeArgs()
	if err != nil {
		return common.Address{}, err
	}
	out, err := d.network.Call(ctx, beacon, data)
	if err != nil {
		return common.Address{}, &domain.BeaconImplementationUnknownError{Beacon: beacon.Hex(), Cause: err}
	}
	var impl common.Address
	if err := proxy.FuncImplementation.DecodeReturns(out, &impl); err != nil {
		return common.Address{}, &domain.BeaconImplementationUnknownError{Beacon: beacon.Hex(), Cause: err}
	}
	if impl == (common.Address{}) {
		return common.Address{}, &domain.BeaconImplementationUnknownError{Beacon: beacon.Hex(), Cause: fmt.Errorf("zero address returned")}
	}
	return impl, nil
}

// UpgradeInterfaceVersion reads UPGRADE_INTERFACE_VERSION(). Failure only disables the
// checks that depend on it, so it is logged and reported as an empty version.
func (d *DetectProxy) UpgradeInterfaceVersion(ctx context.Context, address common.Address) string {
	data, err := proxy.FuncUpgradeInterfaceVersion.EncodeArgs()
	if err != nil {
		return ""
	}
	out, err := d.network.Call(ctx, address, data)
	if err != nil {
		d.log.Debug("no upgrade interface version", "address", address.Hex(), "error", err)
		return ""
	}
	var version string
	if err := proxy.FuncUpgradeInterfaceVersion.DecodeReturns(out, &version); err != nil {
		d.log.Warn("unrecognized upgrade interface version", "address", address.Hex(), "error", err)
		return ""
	}
	if version != proxy.UpgradeInterfaceV5 {
		d.log.Warn("unknown upgrade interface version", "address", address.Hex(), "version", version)
	}
	return version
}
