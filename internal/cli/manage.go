package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/cli/render"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/usecase"
)

// NewForceImportCmd creates the force-import command
func NewForceImportCmd() *cobra.Command {
	var flags upgradeFlags

	cmd := &cobra.Command{
		Use:   "force-import <address> <contract>",
		Short: "Register a proxy, beacon or implementation deployed by other means",
		Long: `Record an existing deployment in the manifest so that later upgrades are checked
against it. <contract> must be the implementation currently in use: its storage layout
is trusted as-is and no transaction is sent.

Examples:
  treb-upgrades force-import 0x1234... Box --network mainnet
  treb-upgrades force-import 0x1234... Box --kind uups`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			opts, err := flags.options(app.Config, args[1])
			if err != nil {
				return err
			}

			result, err := app.ForceImport.Run(cmd.Context(), usecase.ForceImportParams{
				Address:  addr,
				Contract: args[1],
				Options:  opts,
			})
			if err != nil {
				return err
			}
			stopProgress(cmd)

			if app.Config.JSON {
				return render.NewJSONRenderer[*usecase.ForceImportResult](cmd.OutOrStdout()).Render(result)
			}
			return render.NewOperationRenderer(cmd.OutOrStdout()).RenderForceImport(result)
		},
	}

	flags.register(cmd, 0)
	return cmd
}

// NewDetectCmd creates the detect command
func NewDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect <address>",
		Short: "Show what kind of proxy is deployed at an address",
		Long: `Read the ERC-1967 slots of an address and report whether it is a transparent, UUPS or
beacon proxy, a beacon, or a plain contract, together with its implementation.

Examples:
  treb-upgrades detect 0x1234... --network sepolia`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}

			info, err := app.DetectProxy.Run(cmd.Context(), addr)
			if err != nil {
				return err
			}
			stopProgress(cmd)

			if app.Config.JSON {
				return render.NewJSONRenderer[*usecase.ProxyInfo](cmd.OutOrStdout()).Render(info)
			}
			return render.NewOperationRenderer(cmd.OutOrStdout()).RenderDetect(info)
		},
	}
}

// NewManifestCmd creates the manifest command group
func NewManifestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Inspect the deployment manifest of a network",
	}
	cmd.AddCommand(newManifestShowCmd())
	return cmd
}

func newManifestShowCmd() *cobra.Command {
	var yamlOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the proxies and implementations recorded for a network",
		Long: `Print the manifest of the selected network: the shared ProxyAdmin, every registered
proxy and every implementation version with its addresses.

Examples:
  treb-upgrades manifest show --network sepolia
  treb-upgrades manifest show --network sepolia --yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			if app.Config.JSON && yamlOutput {
				return fmt.Errorf("--json and --yaml cannot be used together")
			}

			result, err := app.ShowManifest.Run(cmd.Context())
			if err != nil {
				return err
			}
			stopProgress(cmd)

			out := cmd.OutOrStdout()
			switch {
			case app.Config.JSON:
				return render.NewJSONRenderer[any](out).Render(result.Manifest)
			case yamlOutput:
				return render.NewManifestRenderer(out).RenderYAML(result)
			default:
				return render.NewManifestRenderer(out).Render(result)
			}
		},
	}

	cmd.Flags().BoolVar(&yamlOutput, "yaml", false, "Output the manifest as YAML")
	return cmd
}
