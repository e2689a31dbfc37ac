package models

import (
	"github.com/ethereum/go-ethereum/common"
)

// CurrentManifestVersion is the manifest format written by this tool. Files with the same
// major version are read as-is; any other major version is rejected.
const CurrentManifestVersion = "3.2"

// ManifestKind is the kind recorded for a proxy in the manifest. Beacon proxies are stored
// as "beacon" since the beacon itself is never registered as a proxy.
type ManifestKind string

const (
	ManifestKindTransparent ManifestKind = "transparent"
	ManifestKindUUPS        ManifestKind = "uups"
	ManifestKindBeacon      ManifestKind = "beacon"
)

// Deployment represents one concrete on-chain contract
type Deployment struct {
	Address      string `json:"address"`
	TxHash       string `json:"txHash,omitempty"`
	BytecodeHash string `json:"bytecodeHash,omitempty"`
}

// ProxyDeployment is a proxy instance registered in the manifest
type ProxyDeployment struct {
	Deployment
	Kind ManifestKind `json:"kind"`
}

// ImplDeployment is an implementation contract registered under its version key
type ImplDeployment struct {
	Deployment
	// AllAddresses holds every address this version was deployed at, including the current one
	AllAddresses []string       `json:"allAddresses,omitempty"`
	Layout       *StorageLayout `json:"layout,omitempty"`
}

// Manifest is the per-network registry of everything deployed or imported by this tool
type Manifest struct {
	ManifestVersion string                     `json:"manifestVersion"`
	Admin           *Deployment                `json:"admin,omitempty"`
	Proxies         []ProxyDeployment          `json:"proxies"`
	Impls           map[string]*ImplDeployment `json:"impls"`
}

// NewManifest returns an empty manifest in the current format
func NewManifest() *Manifest {
	return &Manifest{
		ManifestVersion: CurrentManifestVersion,
		Proxies:         []ProxyDeployment{},
		Impls:           make(map[string]*ImplDeployment),
	}
}

// Normalize fills nil collections left by decoding older or hand-edited files
func (m *Manifest) Normalize() {
	if m.ManifestVersion == "" {
		m.ManifestVersion = CurrentManifestVersion
	}
	if m.Proxies == nil {
		m.Proxies = []ProxyDeployment{}
	}
	if m.Impls == nil {
		m.Impls = make(map[string]*ImplDeployment)
	}
}

// FindProxy returns the registered proxy at the given address, if any
func (m *Manifest) FindProxy(address string) (*ProxyDeployment, int) {
	for i := range m.Proxies {
		if SameAddress(m.Proxies[i].Address, address) {
			return &m.Proxies[i], i
		}
	}
	return nil, -1
}

// FindImplByAddress returns the version key and record of the implementation deployed at
// address. Previous addresses of a redeployed version are also matched.
func (m *Manifest) FindImplByAddress(address string) (string, *ImplDeployment) {
	for key, impl := range m.Impls {
		if SameAddress(impl.Address, address) {
			return key, impl
		}
		for _, a := range impl.AllAddresses {
			if SameAddress(a, address) {
				return key, impl
			}
		}
	}
	return "", nil
}

// Addresses returns every address recorded for the implementation, current one first
func (d *ImplDeployment) Addresses() []string {
	out := []string{d.Address}
	for _, a := range d.AllAddresses {
		if !SameAddress(a, d.Address) {
			out = append(out, a)
		}
	}
	return out
}

// SameAddress compares two hex addresses case-insensitively
func SameAddress(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return common.HexToAddress(a) == common.HexToAddress(b)
}
