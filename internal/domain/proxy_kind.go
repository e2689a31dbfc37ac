package domain

import (
	"fmt"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
)

// ProxyKind is the role of an on-chain address as seen by the detector
type ProxyKind int

const (
	ProxyKindNone ProxyKind = iota
	ProxyKindTransparent
	ProxyKindUUPS
	ProxyKindBeacon
	ProxyKindBeaconProxy
)

func (k ProxyKind) String() string {
	switch k {
	case ProxyKindNone:
		return "none"
	case ProxyKindTransparent:
		return "transparent"
	case ProxyKindUUPS:
		return "uups"
	case ProxyKindBeacon:
		return "beacon"
	case ProxyKindBeaconProxy:
		return "beacon-proxy"
	default:
		return fmt.Sprintf("ProxyKind(%d)", int(k))
	}
}

// IsProxy reports whether the kind is a proxy that delegates to an implementation
func (k ProxyKind) IsProxy() bool {
	switch k {
	case ProxyKindTransparent, ProxyKindUUPS, ProxyKindBeaconProxy:
		return true
	case ProxyKindNone, ProxyKindBeacon:
		return false
	default:
		return false
	}
}

// ManifestKind returns the kind under which a proxy of this kind is registered. Only
// proxies have a manifest kind.
func (k ProxyKind) ManifestKind() (models.ManifestKind, bool) {
	switch k {
	case ProxyKindTransparent:
		return models.ManifestKindTransparent, true
	case ProxyKindUUPS:
		return models.ManifestKindUUPS, true
	case ProxyKindBeaconProxy:
		return models.ManifestKindBeacon, true
	case ProxyKindNone, ProxyKindBeacon:
		return "", false
	default:
		return "", false
	}
}

// MarshalText renders the kind by name
func (k ProxyKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseProxyKind parses a kind name as accepted on the command line
func ParseProxyKind(s string) (ProxyKind, error) {
	switch s {
	case "none", "":
		return ProxyKindNone, nil
	case "transparent":
		return ProxyKindTransparent, nil
	case "uups":
		return ProxyKindUUPS, nil
	case "beacon":
		return ProxyKindBeacon, nil
	case "beacon-proxy":
		return ProxyKindBeaconProxy, nil
	default:
		return ProxyKindNone, fmt.Errorf("unknown proxy kind %q (expected transparent, uups, beacon or beacon-proxy)", s)
	}
}
