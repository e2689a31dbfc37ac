package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
)

// RedeployMode controls when an implementation is deployed again
type RedeployMode string

const (
	// RedeployOnChange deploys only when the version is unknown or its code disappeared
	RedeployOnChange RedeployMode = "onchange"
	// RedeployAlways deploys a fresh implementation unconditionally
	RedeployAlways RedeployMode = "always"
	// RedeployNever requires a previously deployed implementation
	RedeployNever RedeployMode = "never"
)

// InitializerCall describes the call made through a freshly deployed proxy
type InitializerCall struct {
	// Function is a name ("initialize") or full signature ("initialize(uint256,address)").
	// An empty name means "initialize" when the ABI has one.
	Function string
	Args     []string
	// Disabled skips the initializer entirely
	Disabled bool
}

// UpgradeOptions are the request options shared by every orchestrated operation
type UpgradeOptions struct {
	// Kind is the requested proxy kind. ProxyKindNone lets the operation infer it.
	Kind ProxyKind

	// UnsafeAllow lists validation error kinds that are accepted for this request
	UnsafeAllow            []models.ValidationErrorKind
	UnsafeAllowRenames     bool
	UnsafeSkipStorageCheck bool

	Redeploy                  RedeployMode
	UseDeployedImplementation bool

	ConstructorArgs []string
	Libraries       map[string]common.Address
	Initializer     InitializerCall

	// Call is an optional function called on the new implementation during an upgrade
	Call *InitializerCall

	// InitialOwner is the owner of newly created ProxyAdmin and beacon contracts.
	// The sender is used when unset.
	InitialOwner *common.Address

	Timeout         time.Duration
	PollingInterval time.Duration
}

// Validate rejects option combinations that can never succeed. It never touches the network.
func (o *UpgradeOptions) Validate() error {
	switch o.Redeploy {
	case "", RedeployOnChange, RedeployAlways, RedeployNever:
	default:
		return &ConfigurationError{Message: fmt.Sprintf("invalid redeploy mode %q (expected onchange, always or never)", o.Redeploy)}
	}
	if o.UseDeployedImplementation && o.Redeploy == RedeployAlways {
		return &ConfigurationError{Message: "the useDeployedImplementation and redeployImplementation=always options cannot both be set"}
	}
	if o.Timeout < 0 {
		return &ConfigurationError{Message: "timeout must not be negative"}
	}
	if o.PollingInterval < 0 {
		return &ConfigurationError{Message: "polling interval must not be negative"}
	}
	for _, kind := range o.UnsafeAllow {
		if !lo.Contains(models.KnownErrorKinds, kind) {
			return &ConfigurationError{Message: fmt.Sprintf("unknown unsafeAllow value %q", kind)}
		}
	}
	return nil
}

// EffectiveRedeploy returns the redeploy mode, folding in UseDeployedImplementation
func (o *UpgradeOptions) EffectiveRedeploy() RedeployMode {
	if o.UseDeployedImplementation {
		return RedeployNever
	}
	if o.Redeploy == "" {
		return RedeployOnChange
	}
	return o.Redeploy
}

// Allows reports whether the given validation error kind was allowed by the caller
func (o *UpgradeOptions) Allows(kind models.ValidationErrorKind) bool {
	return lo.Contains(o.UnsafeAllow, kind)
}
