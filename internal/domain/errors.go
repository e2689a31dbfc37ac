package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
)

// Sentinel errors for domain operations
var (
	// ErrNotFound is returned when a requested resource doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidAddress is returned when an Ethereum address is invalid
	ErrInvalidAddress = errors.New("invalid address")

	// ErrContractNotFound is returned when a contract artifact can't be found
	ErrContractNotFound = errors.New("contract not found")

	// ErrNoNetwork is returned when an operation needs a network and none is configured
	ErrNoNetwork = errors.New("no network configured")

	// ErrNoSigner is returned when a transaction must be sent but no key is configured
	ErrNoSigner = errors.New("no signer configured")

	// ErrTransactionFailed is returned when a mined transaction reverted
	ErrTransactionFailed = errors.New("transaction failed")
)

// NotUpgradeSafeError is returned when an implementation contains patterns that are not
// allowed behind a proxy and the caller did not opt in to them.
type NotUpgradeSafeError struct {
	Contract string
	Errors   []models.ValidationError
}

func (e *NotUpgradeSafeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Contract `%s` is not upgrade safe", e.Contract)
	for _, finding := range e.Errors {
		fmt.Fprintf(&b, "\n\n  %s", finding.String())
	}
	return b.String()
}

// StorageLayoutConflictError is returned when the storage layout of the new implementation is
// incompatible with the one currently deployed behind the proxy.
type StorageLayoutConflictError struct {
	Contract    string
	Changes     []models.LayoutChange
	Explanation string
}

func (e *StorageLayoutConflictError) Error() string {
	return fmt.Sprintf("New storage layout of `%s` is incompatible\n\n%s", e.Contract, e.Explanation)
}

// ProxyKindUnknownError is returned when the proxy kind at an address cannot be determined
type ProxyKindUnknownError struct {
	Address string
	Reason  string
}

func (e *ProxyKindUnknownError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("cannot determine proxy kind of %s", e.Address)
	}
	return fmt.Sprintf("cannot determine proxy kind of %s: %s", e.Address, e.Reason)
}

// BeaconImplementationUnknownError is returned when a beacon does not report its implementation
type BeaconImplementationUnknownError struct {
	Beacon string
	Cause  error
}

func (e *BeaconImplementationUnknownError) Error() string {
	return fmt.Sprintf("could not get implementation address from beacon %s: %v", e.Beacon, e.Cause)
}

func (e *BeaconImplementationUnknownError) Unwrap() error {
	return e.Cause
}

// ManifestCorruptedError is returned when a manifest file exists but cannot be parsed
type ManifestCorruptedError struct {
	Path  string
	Cause error
}

func (e *ManifestCorruptedError) Error() string {
	return fmt.Sprintf("manifest %s is corrupted and must be fixed by hand: %v", e.Path, e.Cause)
}

func (e *ManifestCorruptedError) Unwrap() error {
	return e.Cause
}

// ManifestVersionError is returned when a manifest was written by an incompatible format version
type ManifestVersionError struct {
	Path    string
	Version string
}

func (e *ManifestVersionError) Error() string {
	return fmt.Sprintf("manifest %s has unsupported version %s (expected %s)", e.Path, e.Version, models.CurrentManifestVersion)
}

// DeploymentNotFoundError is returned when the manifest has no record for an address
type DeploymentNotFoundError struct {
	Address string
	Hint    string
}

func (e *DeploymentNotFoundError) Error() string {
	msg := fmt.Sprintf("no deployment found in the manifest for %s", e.Address)
	if e.Hint != "" {
		msg += ". " + e.Hint
	}
	return msg
}

func (e *DeploymentNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// TimedOutError is returned when a transaction was not confirmed within the configured timeout.
// The transaction is not cancelled and may still be mined.
type TimedOutError struct {
	TxHash  string
	Address string
	Timeout time.Duration
}

func (e *TimedOutError) Error() string {
	subject := "transaction " + e.TxHash
	if e.Address != "" {
		subject = fmt.Sprintf("deployment of %s (transaction %s)", e.Address, e.TxHash)
	}
	return fmt.Sprintf("timed out waiting %s for %s. The transaction may still be mined; run the same command again to resume, or raise the timeout", e.Timeout, subject)
}

// InvalidDeploymentError is returned when a cached deployment has no code and its
// transaction is unknown to the node.
type InvalidDeploymentError struct {
	Address string
	TxHash  string
}

func (e *InvalidDeploymentError) Error() string {
	if e.TxHash == "" {
		return fmt.Sprintf("no contract at address %s recorded in the manifest; the network may have been reset", e.Address)
	}
	return fmt.Sprintf("no contract at address %s recorded in the manifest; transaction %s is unknown to the network", e.Address, e.TxHash)
}

// KindMismatchError is returned when the detected proxy kind does not fit the requested
// operation or differs from the kind registered in the manifest.
type KindMismatchError struct {
	Address  string
	Detected ProxyKind
	Expected string
	Hint     string
}

func (e *KindMismatchError) Error() string {
	msg := fmt.Sprintf("contract at %s is a %s proxy, expected %s", e.Address, e.Detected, e.Expected)
	switch e.Detected {
	case ProxyKindNone:
		msg = fmt.Sprintf("contract at %s doesn't look like a supported proxy, expected %s", e.Address, e.Expected)
	case ProxyKindBeacon:
		msg = fmt.Sprintf("contract at %s is a beacon, expected %s", e.Address, e.Expected)
	case ProxyKindBeaconProxy:
		msg = fmt.Sprintf("contract at %s is a beacon proxy, expected %s", e.Address, e.Expected)
	}
	if e.Hint != "" {
		msg += ". " + e.Hint
	}
	return msg
}

// ConfigurationError is returned for invalid or mutually exclusive options. It is always
// raised before any network interaction.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// IsSafetyViolation reports whether err blocks an operation for upgrade safety reasons
func IsSafetyViolation(err error) bool {
	var unsafe *NotUpgradeSafeError
	var conflict *StorageLayoutConflictError
	return errors.As(err, &unsafe) || errors.As(err, &conflict)
}
