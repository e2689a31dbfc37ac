//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"
	"github.com/spf13/viper"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/adapters"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/config"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/logging"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/usecase"
)

// InitApp creates a fully wired App instance
func InitApp(v *viper.Viper, sink usecase.ProgressSink) (*App, func(), error) {
	wire.Build(
		// Configuration
		config.Provider,
		logging.LoggingSet,

		// Adapters
		adapters.AllAdapters,

		// Shared services
		usecase.NewTxConfirmer,
		usecase.NewManifestStore,
		usecase.NewDetectProxy,
		usecase.NewImplementations,
		usecase.NewInfrastructure,

		// Use cases
		usecase.NewDeployProxy,
		usecase.NewUpgradeProxy,
		usecase.NewPrepareUpgrade,
		usecase.NewDeployBeacon,
		usecase.NewDeployBeaconProxy,
		usecase.NewUpgradeBeacon,
		usecase.NewForceImport,
		usecase.NewValidateImplementation,
		usecase.NewValidateUpgrade,
		usecase.NewShowManifest,

		// App
		NewApp,
	)
	return nil, nil, nil
}
