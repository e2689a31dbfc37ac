package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/adapters/progress"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/app"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/cli/render"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/config"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/usecase"
)

// contextKey is the type for context keys
type contextKey string

const (
	// appKey is the context key for the app instance
	appKey contextKey = "app"
	// sessionKey is the context key for the running session
	sessionKey contextKey = "session"
)

// initFunc builds the application for a command. Tests replace it.
type initFunc func(cmd *cobra.Command, sink usecase.ProgressSink) (*app.App, func(), error)

func defaultInit(cmd *cobra.Command, sink usecase.ProgressSink) (*app.App, func(), error) {
	projectRoot, err := config.FindProjectRoot()
	if err != nil {
		return nil, nil, err
	}
	v := config.SetupViper(projectRoot, cmd)
	return app.InitApp(v, sink)
}

// session holds what a command run opened and must release, even when the command fails
type session struct {
	cleanup func()
	spinner *progress.SpinnerProgress
}

func (s *session) close() {
	if s.spinner != nil {
		s.spinner.Stop()
	}
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
}

// Execute runs the command line and reports a failure on stderr
func Execute(ctx context.Context) error {
	s := &session{}
	rootCmd := newRootCmd(defaultInit, s)
	err := rootCmd.ExecuteContext(ctx)
	s.close()
	if err != nil {
		render.NewReportRenderer(rootCmd.ErrOrStderr()).RenderError(err)
	}
	return err
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	return newRootCmd(defaultInit, &session{})
}

func newRootCmd(initApp initFunc, s *session) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "treb-upgrades",
		Short: "Deploy and upgrade proxy contracts safely from a Foundry project",
		Long: `treb-upgrades deploys transparent, UUPS and beacon proxies from a Foundry project,
records every deployment in a per-network manifest under .treb/manifests, and refuses
upgrades whose implementation is not upgrade safe or whose storage layout is incompatible
with the one already deployed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip for help/version commands
			if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			var sink usecase.ProgressSink = usecase.NopProgress{}
			if jsonOutput, _ := cmd.Flags().GetBool("json"); !jsonOutput {
				s.spinner = progress.NewSpinnerProgress()
				sink = s.spinner
			}

			appInstance, closeApp, err := initApp(cmd, sink)
			if err != nil {
				return fmt.Errorf("failed to initialize app: %w", err)
			}
			s.cleanup = closeApp

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			ctx = context.WithValue(ctx, sessionKey, s)
			cmd.SetContext(ctx)
			return nil
		},
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringP("network", "n", "", "Network to use, from foundry.toml [rpc_endpoints] or an RPC URL")
	flags.String("profile", "", "Foundry profile (defaults to FOUNDRY_PROFILE or 'default')")
	flags.Duration("timeout", 0, "How long to wait for each transaction (0 waits forever)")
	flags.Duration("polling-interval", 0, "How often to poll for receipts (defaults to 5s)")
	flags.Bool("skip-build", false, "Use the existing artifacts instead of running forge build")
	flags.Bool("debug", false, "Enable debug output")
	flags.Bool("json", false, "Output in JSON format")

	rootCmd.AddGroup(&cobra.Group{
		ID:    "proxy",
		Title: "Proxy Commands",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "beacon",
		Title: "Beacon Commands",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "management",
		Title: "Management Commands",
	})

	for _, cmd := range []*cobra.Command{
		NewDeployProxyCmd(),
		NewUpgradeProxyCmd(),
		NewPrepareUpgradeCmd(),
		NewValidateUpgradeCmd(),
	} {
		cmd.GroupID = "proxy"
		rootCmd.AddCommand(cmd)
	}

	for _, cmd := range []*cobra.Command{
		NewDeployBeaconCmd(),
		NewDeployBeaconProxyCmd(),
		NewUpgradeBeaconCmd(),
	} {
		cmd.GroupID = "beacon"
		rootCmd.AddCommand(cmd)
	}

	for _, cmd := range []*cobra.Command{
		NewForceImportCmd(),
		NewDetectCmd(),
		NewManifestCmd(),
	} {
		cmd.GroupID = "management"
		rootCmd.AddCommand(cmd)
	}

	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// getApp retrieves the app instance from the command context
func getApp(cmd *cobra.Command) (*app.App, error) {
	appInstance, ok := cmd.Context().Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("app not initialized")
	}
	return appInstance, nil
}

// stopProgress stops the spinner before a command prints its result
func stopProgress(cmd *cobra.Command) {
	if s, ok := cmd.Context().Value(sessionKey).(*session); ok && s.spinner != nil {
		s.spinner.Stop()
	}
}
