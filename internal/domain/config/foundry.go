package config

// FoundryConfig represents the full foundry.toml configuration
type FoundryConfig struct {
	Profile      map[string]ProfileConfig `toml:"profile"`
	RpcEndpoints map[string]string        `toml:"rpc_endpoints"`
}

// ProfileConfig represents a profile's foundry configuration
type ProfileConfig struct {
	Libraries []string `toml:"libraries,omitempty"`
	// Other foundry settings
	SrcPath     string          `toml:"src,omitempty"`
	OutPath     string          `toml:"out,omitempty"`
	LibPaths    []string        `toml:"libs,omitempty"`
	ExtraOutput []string        `toml:"extra_output,omitempty"`
	SolcVersion string          `toml:"solc_version,omitempty"`
	Upgrades    *UpgradesConfig `toml:"upgrades,omitempty"`
}

// UpgradesConfig is the [profile.<name>.upgrades] section of foundry.toml
type UpgradesConfig struct {
	// Redeploy is the default redeploy mode: onchange, always or never
	Redeploy string `toml:"redeploy,omitempty" json:"redeploy,omitempty"`
	// UnsafeAllow applies to every contract
	UnsafeAllow []string `toml:"unsafe_allow,omitempty" json:"unsafeAllow,omitempty"`
	// Contracts holds per-contract overrides keyed by contract name
	Contracts map[string]ContractUpgradesConfig `toml:"contracts,omitempty" json:"contracts,omitempty"`
	// Proxy artifact names, defaulting to the OpenZeppelin contract names
	TransparentProxy string `toml:"transparent_proxy,omitempty" json:"transparentProxy,omitempty"`
	UUPSProxy        string `toml:"uups_proxy,omitempty" json:"uupsProxy,omitempty"`
	ProxyAdmin       string `toml:"proxy_admin,omitempty" json:"proxyAdmin,omitempty"`
	Beacon           string `toml:"beacon,omitempty" json:"beacon,omitempty"`
	BeaconProxy      string `toml:"beacon_proxy,omitempty" json:"beaconProxy,omitempty"`
}

// ContractUpgradesConfig holds overrides for a single contract
type ContractUpgradesConfig struct {
	UnsafeAllow        []string `toml:"unsafe_allow,omitempty" json:"unsafeAllow,omitempty"`
	UnsafeAllowRenames bool     `toml:"unsafe_allow_renames,omitempty" json:"unsafeAllowRenames,omitempty"`
}

const (
	DefaultTransparentProxy = "TransparentUpgradeableProxy"
	DefaultUUPSProxy        = "ERC1967Proxy"
	DefaultProxyAdmin       = "ProxyAdmin"
	DefaultBeacon           = "UpgradeableBeacon"
	DefaultBeaconProxy      = "BeaconProxy"
)

// ProxyArtifacts returns the artifact names used for proxy infrastructure contracts
func (u *UpgradesConfig) ProxyArtifacts() ProxyArtifacts {
	names := ProxyArtifacts{
		TransparentProxy: DefaultTransparentProxy,
		UUPSProxy:        DefaultUUPSProxy,
		ProxyAdmin:       DefaultProxyAdmin,
		Beacon:           DefaultBeacon,
		BeaconProxy:      DefaultBeaconProxy,
	}
	if u == nil {
		return names
	}
	if u.TransparentProxy != "" {
		names.TransparentProxy = u.TransparentProxy
	}
	if u.UUPSProxy != "" {
		names.UUPSProxy = u.UUPSProxy
	}
	if u.ProxyAdmin != "" {
		names.ProxyAdmin = u.ProxyAdmin
	}
	if u.Beacon != "" {
		names.Beacon = u.Beacon
	}
	if u.BeaconProxy != "" {
		names.BeaconProxy = u.BeaconProxy
	}
	return names
}

// ProxyArtifacts names the compiled proxy contracts to deploy
type ProxyArtifacts struct {
	TransparentProxy string
	UUPSProxy        string
	ProxyAdmin       string
	Beacon           string
	BeaconProxy      string
}
