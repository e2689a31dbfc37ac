package cli

import (
	"github.com/spf13/cobra"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/cli/render"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/usecase"
)

// NewDeployBeaconCmd creates the deploy-beacon command
func NewDeployBeaconCmd() *cobra.Command {
	var flags upgradeFlags

	cmd := &cobra.Command{
		Use:   "deploy-beacon <contract>",
		Short: "Deploy an upgradeable beacon for a contract",
		Long: `Validate a contract for beacon proxies, deploy its implementation unless an identical
one is already recorded, and deploy an UpgradeableBeacon pointing at it.

Examples:
  treb-upgrades deploy-beacon Box --network sepolia
  treb-upgrades deploy-beacon Box --initial-owner 0x1234...`,
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

			result, err := app.DeployBeacon.Run(cmd.Context(), usecase.DeployBeaconParams{
				Contract: args[0],
				Options:  opts,
			})
			if err != nil {
				return err
			}
			stopProgress(cmd)

			if app.Config.JSON {
				return render.NewJSONRenderer[*usecase.DeployBeaconResult](cmd.OutOrStdout()).Render(result)
			}
			return render.NewOperationRenderer(cmd.OutOrStdout()).RenderDeployBeacon(result)
		},
	}

	flags.register(cmd, withValidation|withDeployment|withOwner)
	return cmd
}

// NewDeployBeaconProxyCmd creates the deploy-beacon-proxy command
func NewDeployBeaconProxyCmd() *cobra.Command {
	var flags upgradeFlags
	var contract string

	cmd := &cobra.Command{
		Use:   "deploy-beacon-proxy <beacon>",
		Short: "Deploy a beacon proxy in front of an existing beacon",
		Long: `Deploy a BeaconProxy for a beacon and register it in the manifest. The initializer is
encoded with the ABI of --contract, which is required unless --no-initializer is set.

Examples:
  treb-upgrades deploy-beacon-proxy 0x1234... --contract Box --args 42
  treb-upgrades deploy-beacon-proxy 0x1234... --no-initializer`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			beacon, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			opts, err := flags.options(app.Config, contract)
			if err != nil {
				return err
			}

			result, err := app.DeployBeaconProxy.Run(cmd.Context(), usecase.DeployBeaconProxyParams{
				Beacon:   beacon,
				Contract: contract,
				Options:  opts,
			})
			if err != nil {
				return err
			}
			stopProgress(cmd)

			if app.Config.JSON {
				return render.NewJSONRenderer[*usecase.DeployBeaconProxyResult](cmd.OutOrStdout()).Render(result)
			}
			return render.NewOperationRenderer(cmd.OutOrStdout()).RenderDeployBeaconProxy(result)
		},
	}

	cmd.Flags().StringVar(&contract, "contract", "", "Implementation contract whose ABI encodes the initializer")
	flags.register(cmd, withInitializer)
	return cmd
}

// NewUpgradeBeaconCmd creates the upgrade-beacon command
func NewUpgradeBeaconCmd() *cobra.Command {
	var flags upgradeFlags

	cmd := &cobra.Command{
		Use:   "upgrade-beacon <beacon> <contract>",
		Short: "Upgrade a beacon, and every proxy behind it, to a new implementation",
		Long: `Check the new implementation against the one the beacon points at, deploy it if needed
and call upgradeTo on the beacon.

Examples:
  treb-upgrades upgrade-beacon 0x1234... BoxV2 --network sepolia`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			beacon, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			opts, err := flags.options(app.Config, args[1])
			if err != nil {
				return err
			}

			result, err := app.UpgradeBeacon.Run(cmd.Context(), usecase.UpgradeBeaconParams{
				Beacon:   beacon,
				Contract: args[1],
				Options:  opts,
			})
			if err != nil {
				return err
			}
			stopProgress(cmd)

			if app.Config.JSON {
				return render.NewJSONRenderer[*usecase.UpgradeBeaconResult](cmd.OutOrStdout()).Render(result)
			}
			return render.NewOperationRenderer(cmd.OutOrStdout()).RenderUpgradeBeacon(result)
		},
	}

	flags.register(cmd, withValidation|withDeployment)
	return cmd
}
