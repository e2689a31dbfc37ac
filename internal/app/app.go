package app

import (
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/config"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/usecase"
)

// App is the main application container that holds all use cases
type App struct {
	// Configuration
	Config *config.RuntimeConfig

	// Use cases
	DeployProxy            *usecase.DeployProxy
	UpgradeProxy           *usecase.UpgradeProxy
	PrepareUpgrade         *usecase.PrepareUpgrade
	DeployBeacon           *usecase.DeployBeacon
	DeployBeaconProxy      *usecase.DeployBeaconProxy
	UpgradeBeacon          *usecase.UpgradeBeacon
	ForceImport            *usecase.ForceImport
	ValidateImplementation *usecase.ValidateImplementation
	ValidateUpgrade        *usecase.ValidateUpgrade
	DetectProxy            *usecase.DetectProxy
	ShowManifest           *usecase.ShowManifest
}

// NewApp creates a new application instance with all use cases
func NewApp(
	cfg *config.RuntimeConfig,
	deployProxy *usecase.DeployProxy,
	upgradeProxy *usecase.UpgradeProxy,
	prepareUpgrade *usecase.PrepareUpgrade,
	deployBeacon *usecase.DeployBeacon,
	deployBeaconProxy *usecase.DeployBeaconProxy,
	upgradeBeacon *usecase.UpgradeBeacon,
	forceImport *usecase.ForceImport,
	validateImplementation *usecase.ValidateImplementation,
	validateUpgrade *usecase.ValidateUpgrade,
	detectProxy *usecase.DetectProxy,
	showManifest *usecase.ShowManifest,
) *App {
	return &App{
		Config:                 cfg,
		DeployProxy:            deployProxy,
		UpgradeProxy:           upgradeProxy,
		PrepareUpgrade:         prepareUpgrade,
		DeployBeacon:           deployBeacon,
		DeployBeaconProxy:      deployBeaconProxy,
		UpgradeBeacon:          upgradeBeacon,
		ForceImport:            forceImport,
		ValidateImplementation: validateImplementation,
		ValidateUpgrade:        validateUpgrade,
		DetectProxy:            detectProxy,
		ShowManifest:           showManifest,
	}
}
