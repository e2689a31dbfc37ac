// Package validation decides whether an implementation may sit behind a proxy and whether
// it may replace the implementation currently deployed.
package validation

import (
	"github.com/samber/lo"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/layout"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
)

// Check filters the static findings by the caller's and the contract's own unsafe-allow
// lists and fails with a NotUpgradeSafeError listing what remains. UUPS implementations
// must also expose a public upgrade function.
func Check(contract *models.Contract, data *models.ValidationData, kind domain.ProxyKind, opts *domain.UpgradeOptions) error {
	allowed := func(k models.ValidationErrorKind) bool {
		return opts.Allows(k) || lo.Contains(data.Allowed, k)
	}

	findings := lo.Filter(data.Errors, func(e models.ValidationError, _ int) bool {
		return !allowed(e.Kind)
	})

	if kind == domain.ProxyKindUUPS && !allowed(models.ErrorKindMissingPublicUpgradeTo) && !HasUpgradeFunction(contract) {
		findings = append(findings, models.ValidationError{
			Kind:     models.ErrorKindMissingPublicUpgradeTo,
			Contract: contract.Name,
			Detail:   "UUPS implementations must declare upgradeTo(address) or upgradeToAndCall(address,bytes)",
		})
	}

	if len(findings) == 0 {
		return nil
	}
	return &domain.NotUpgradeSafeError{Contract: contract.Name, Errors: findings}
}

// HasUpgradeFunction reports whether the contract can upgrade the proxy it sits behind
func HasUpgradeFunction(contract *models.Contract) bool {
	return contract.HasMethod("upgradeTo(address)") || contract.HasMethod("upgradeToAndCall(address,bytes)")
}

// CheckStorage compares the layout of the deployed implementation with the new one. The
// report is returned even when the upgrade is rejected.
func CheckStorage(contract string, current, updated *models.StorageLayout, opts *domain.UpgradeOptions) (*layout.Report, error) {
	if opts.UnsafeSkipStorageCheck {
		return nil, nil
	}
	report, err := layout.Compare(current, updated)
	if err != nil {
		return nil, err
	}
	return report, report.Check(contract, layout.Options{UnsafeAllowRenames: opts.UnsafeAllowRenames})
}
