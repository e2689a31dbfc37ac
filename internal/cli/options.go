package cli

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/config"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
)

// upgradeFlags are the request options shared by the deploy, upgrade and validate commands
type upgradeFlags struct {
	kind                      string
	unsafeAllow               []string
	unsafeAllowRenames        bool
	unsafeSkipStorageCheck    bool
	redeploy                  string
	useDeployedImplementation bool
	constructorArgs           []string
	libraries                 []string
	initialOwner              string

	// initializer, set by commands that deploy a proxy
	initializer   string
	initArgs      []string
	noInitializer bool

	// call, set by commands that upgrade a proxy
	call     string
	callArgs []string
}

// flagSet selects which groups of upgrade flags a command accepts
type flagSet int

const (
	withValidation flagSet = 1 << iota
	withDeployment
	withInitializer
	withCall
	withOwner
)

func (f *upgradeFlags) register(cmd *cobra.Command, set flagSet) {
	flags := cmd.Flags()
	flags.StringVar(&f.kind, "kind", "", "Proxy kind: transparent, uups or beacon (inferred when empty)")

	if set&withValidation != 0 {
		flags.StringSliceVar(&f.unsafeAllow, "unsafe-allow", nil, fmt.Sprintf("Validation errors to allow (%s)", strings.Join(kindNames(), ", ")))
		flags.BoolVar(&f.unsafeAllowRenames, "unsafe-allow-renames", false, "Allow renamed state variables")
		flags.BoolVar(&f.unsafeSkipStorageCheck, "unsafe-skip-storage-check", false, "Skip the storage layout compatibility check")
	}
	if set&withDeployment != 0 {
		flags.StringVar(&f.redeploy, "redeploy", "", "When to deploy the implementation again: onchange, always or never")
		flags.BoolVar(&f.useDeployedImplementation, "use-deployed-implementation", false, "Require an implementation already recorded in the manifest")
		flags.StringArrayVar(&f.constructorArgs, "constructor-args", nil, "Constructor argument of the implementation, repeated in order")
		flags.StringSliceVar(&f.libraries, "libraries", nil, "Linked libraries as Name=0xAddress")
	}
	if set&withInitializer != 0 {
		flags.StringVar(&f.initializer, "initializer", "", "Initializer function name or signature (defaults to initialize)")
		flags.StringArrayVar(&f.initArgs, "args", nil, "Initializer argument, repeated in order; arrays and tuples as JSON")
		flags.BoolVar(&f.noInitializer, "no-initializer", false, "Deploy the proxy without calling an initializer")
	}
	if set&withCall != 0 {
		flags.StringVar(&f.call, "call", "", "Function to call on the new implementation during the upgrade")
		flags.StringArrayVar(&f.callArgs, "call-args", nil, "Argument of --call, repeated in order")
	}
	if set&withOwner != 0 {
		flags.StringVar(&f.initialOwner, "initial-owner", "", "Owner of a new ProxyAdmin or beacon (defaults to the sender)")
	}
}

// options merges the flags with the foundry.toml upgrades section for contract. Flags win
// for scalar settings; unsafe-allow lists are combined.
func (f *upgradeFlags) options(cfg *config.RuntimeConfig, contract string) (domain.UpgradeOptions, error) {
	opts := domain.UpgradeOptions{
		UnsafeAllowRenames:        f.unsafeAllowRenames,
		UnsafeSkipStorageCheck:    f.unsafeSkipStorageCheck,
		Redeploy:                  domain.RedeployMode(f.redeploy),
		UseDeployedImplementation: f.useDeployedImplementation,
		ConstructorArgs:           f.constructorArgs,
		Initializer: domain.InitializerCall{
			Function: f.initializer,
			Args:     f.initArgs,
			Disabled: f.noInitializer,
		},
		Timeout:         cfg.Timeout,
		PollingInterval: cfg.PollingInterval,
	}

	if f.kind != "" {
		kind, err := domain.ParseProxyKind(f.kind)
		if err != nil {
			return opts, err
		}
		opts.Kind = kind
	}

	allow := append([]string{}, f.unsafeAllow...)
	if upgrades := cfg.Upgrades; upgrades != nil {
		if opts.Redeploy == "" && !opts.UseDeployedImplementation {
			opts.Redeploy = domain.RedeployMode(upgrades.Redeploy)
		}
		allow = append(allow, upgrades.UnsafeAllow...)
		if override, ok := upgrades.Contracts[contractName(contract)]; ok {
			allow = append(allow, override.UnsafeAllow...)
			opts.UnsafeAllowRenames = opts.UnsafeAllowRenames || override.UnsafeAllowRenames
		}
	}
	opts.UnsafeAllow = lo.Map(lo.Uniq(allow), func(s string, _ int) models.ValidationErrorKind {
		return models.ValidationErrorKind(strings.TrimSpace(s))
	})

	if len(f.libraries) > 0 {
		opts.Libraries = make(map[string]common.Address, len(f.libraries))
		for _, lib := range f.libraries {
			name, addr, ok := strings.Cut(lib, "=")
			if !ok || !common.IsHexAddress(addr) {
				return opts, &domain.ConfigurationError{Message: fmt.Sprintf("invalid library %q (expected Name=0xAddress)", lib)}
			}
			opts.Libraries[name] = common.HexToAddress(addr)
		}
	}

	if f.call != "" {
		opts.Call = &domain.InitializerCall{Function: f.call, Args: f.callArgs}
	}

	if f.initialOwner != "" {
		owner, err := parseAddress(f.initialOwner)
		if err != nil {
			return opts, err
		}
		opts.InitialOwner = &owner
	}

	return opts, opts.Validate()
}

// contractName strips the source path from "path/File.sol:Name"
func contractName(ref string) string {
	if i := strings.LastIndex(ref, ":"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, &domain.ConfigurationError{Message: fmt.Sprintf("invalid address %q", s)}
	}
	return common.HexToAddress(s), nil
}

func kindNames() []string {
	return lo.Map(models.KnownErrorKinds, func(k models.ValidationErrorKind, _ int) string {
		return string(k)
	})
}
