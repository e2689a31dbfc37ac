package cli

import (
	"github.com/spf13/cobra"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/cli/render"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/usecase"
)

// NewDeployProxyCmd creates the deploy-proxy command
func NewDeployProxyCmd() *cobra.Command {
	var flags upgradeFlags

	cmd := &cobra.Command{
		Use:   "deploy-proxy <contract>",
		Short: "Deploy a transparent or UUPS proxy for a contract",
		Long: `Validate a contract, deploy its implementation unless an identical one is already
recorded in the manifest, and deploy a proxy in front of it. The proxy is initialized
with the initializer function, "initialize" by default.

Transparent proxies share one ProxyAdmin per network. The kind is inferred as uups when
the contract has an upgradeToAndCall function, transparent otherwise.

Examples:
  treb-upgrades deploy-proxy Box --network sepolia --args 42
  treb-upgrades deploy-proxy src/Box.sol:Box --kind uups --initializer "initialize(uint256,address)" --args 42 --args 0x...
  treb-upgrades deploy-proxy Box --no-initializer --redeploy always`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			opts, err := flags.options(app.Config, args[0])
			if err != nil {
				return err
			}

			result, err := app.DeployProxy.Run(cmd.Context(), usecase.DeployProxyParams{
				Contract: args[0],
				Options:  opts,
			})
			if err != nil {
				return err
			}
			stopProgress(cmd)

			if app.Config.JSON {
				return render.NewJSONRenderer[*usecase.DeployProxyResult](cmd.OutOrStdout()).Render(result)
			}
			return render.NewOperationRenderer(cmd.OutOrStdout()).RenderDeployProxy(result)
		},
	}

	flags.register(cmd, withValidation|withDeployment|withInitializer|withOwner)
	return cmd
}

// NewUpgradeProxyCmd creates the upgrade-proxy command
func NewUpgradeProxyCmd() *cobra.Command {
	var flags upgradeFlags

	cmd := &cobra.Command{
		Use:   "upgrade-proxy <proxy> <contract>",
		Short: "Upgrade a transparent or UUPS proxy to a new implementation",
		Long: `Check that the new implementation is upgrade safe and that its storage layout is
compatible with the implementation currently behind the proxy, deploy it if needed and
upgrade the proxy. Nothing is sent when a check fails.

Examples:
  treb-upgrades upgrade-proxy 0x1234... BoxV2 --network sepolia
  treb-upgrades upgrade-proxy 0x1234... BoxV2 --call migrate --call-args 2`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			proxy, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			opts, err := flags.options(app.Config, args[1])
			if err != nil {
				return err
			}

			result, err := app.UpgradeProxy.Run(cmd.Context(), usecase.UpgradeProxyParams{
				Proxy:    proxy,
				Contract: args[1],
				Options:  opts,
			})
			if err != nil {
				return err
			}
			stopProgress(cmd)

			if app.Config.JSON {
				return render.NewJSONRenderer[*usecase.UpgradeProxyResult](cmd.OutOrStdout()).Render(result)
			}
			return render.NewOperationRenderer(cmd.OutOrStdout()).RenderUpgradeProxy(result)
		},
	}

	flags.register(cmd, withValidation|withDeployment|withCall)
	return cmd
}

// NewPrepareUpgradeCmd creates the prepare-upgrade command
func NewPrepareUpgradeCmd() *cobra.Command {
	var flags upgradeFlags

	cmd := &cobra.Command{
		Use:   "prepare-upgrade <proxy-or-beacon> <contract>",
		Short: "Validate an upgrade and deploy the new implementation without upgrading",
		Long: `Run every check of upgrade-proxy or upgrade-beacon and deploy the new implementation,
but leave the proxy or beacon untouched. Use it when the upgrade itself is executed by a
multisig or a governance contract.

Examples:
  treb-upgrades prepare-upgrade 0x1234... BoxV2 --network mainnet`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			target, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			opts, err := flags.options(app.Config, args[1])
			if err != nil {
				return err
			}

			result, err := app.PrepareUpgrade.Run(cmd.Context(), usecase.PrepareUpgradeParams{
				Address:  target,
				Contract: args[1],
				Options:  opts,
			})
			if err != nil {
				return err
			}
			stopProgress(cmd)

			if app.Config.JSON {
				return render.NewJSONRenderer[*usecase.PrepareUpgradeResult](cmd.OutOrStdout()).Render(result)
			}
			return render.NewOperationRenderer(cmd.OutOrStdout()).RenderPrepareUpgrade(result)
		},
	}

	flags.register(cmd, withValidation|withDeployment)
	return cmd
}

// NewValidateUpgradeCmd creates the validate-upgrade command
func NewValidateUpgradeCmd() *cobra.Command {
	var flags upgradeFlags
	var reference string
	var address string

	cmd := &cobra.Command{
		Use:   "validate-upgrade <contract>",
		Short: "Check that a contract is upgrade safe without deploying anything",
		Long: `Validate a contract for use behind a proxy. With --reference the storage layout is
compared against another compiled contract; with --address it is compared against the
implementation currently behind a deployed proxy or beacon.

Examples:
  treb-upgrades validate-upgrade Box
  treb-upgrades validate-upgrade BoxV2 --reference Box
  treb-upgrades validate-upgrade BoxV2 --address 0x1234... --network sepolia`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			opts, err := flags.options(app.Config, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if reference == "" && address == "" {
				result, err := app.ValidateImplementation.Run(cmd.Context(), usecase.ValidateImplementationParams{
					Contract: args[0],
					Options:  opts,
				})
				if err != nil {
					return err
				}
				stopProgress(cmd)
				if app.Config.JSON {
					return render.NewJSONRenderer[*usecase.ValidateImplementationResult](out).Render(result)
				}
				return render.NewReportRenderer(out).RenderValidateImplementation(result)
			}

			params := usecase.ValidateUpgradeParams{
				Reference: reference,
				Contract:  args[0],
				Options:   opts,
			}
			if address != "" {
				addr, err := parseAddress(address)
				if err != nil {
					return err
				}
				params.Address = &addr
			}
			result, err := app.ValidateUpgrade.Run(cmd.Context(), params)
			if err != nil {
				return err
			}
			stopProgress(cmd)
			if app.Config.JSON {
				return render.NewJSONRenderer[*usecase.ValidateUpgradeResult](out).Render(result)
			}
			return render.NewReportRenderer(out).RenderValidateUpgrade(result)
		},
	}

	cmd.Flags().StringVar(&reference, "reference", "", "Compiled contract the upgrade starts from")
	cmd.Flags().StringVar(&address, "address", "", "Deployed proxy or beacon the upgrade starts from")
	cmd.MarkFlagsMutuallyExclusive("reference", "address")
	flags.register(cmd, withValidation)
	return cmd
}
