package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/samber/lo"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/config"
)

// DefaultProfile is the foundry profile used when none is selected
const DefaultProfile = "default"

// loadEnvFiles loads .env and .env.local from the project root. Variables already set in
// the process environment win.
func loadEnvFiles(projectRoot string) error {
	for _, name := range []string{".env", ".env.local"} {
		envFile := filepath.Join(projectRoot, name)
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	return nil
}

// LoadFoundryConfig parses foundry.toml and expands ${VAR} references in the values this
// tool reads
func LoadFoundryConfig(projectRoot string) (*config.FoundryConfig, error) {
	if err := loadEnvFiles(projectRoot); err != nil {
		return nil, err
	}

	var cfg config.FoundryConfig
	foundryPath := filepath.Join(projectRoot, "foundry.toml")
	if _, err := toml.DecodeFile(foundryPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse foundry.toml: %w", err)
	}

	if cfg.RpcEndpoints == nil {
		cfg.RpcEndpoints = make(map[string]string)
	}
	for name, url := range cfg.RpcEndpoints {
		cfg.RpcEndpoints[name] = os.ExpandEnv(url)
	}
	if cfg.Profile == nil {
		cfg.Profile = make(map[string]config.ProfileConfig)
	}
	return &cfg, nil
}

// UpgradesConfig returns the upgrades section of a profile, falling back to the default
// profile for the settings the selected profile leaves empty
func UpgradesConfig(foundry *config.FoundryConfig, profile string) *config.UpgradesConfig {
	base := foundry.Profile[DefaultProfile].Upgrades
	selected := foundry.Profile[profile].Upgrades
	if profile == DefaultProfile || selected == nil {
		return base
	}
	if base == nil {
		return selected
	}

	merged := *base
	if selected.Redeploy != "" {
		merged.Redeploy = selected.Redeploy
	}
	merged.UnsafeAllow = append(append([]string{}, base.UnsafeAllow...), selected.UnsafeAllow...)
	merged.Contracts = lo.Assign(base.Contracts, selected.Contracts)
	for _, field := range []struct {
		dst *string
		src string
	}{
		{&merged.TransparentProxy, selected.TransparentProxy},
		{&merged.UUPSProxy, selected.UUPSProxy},
		{&merged.ProxyAdmin, selected.ProxyAdmin},
		{&merged.Beacon, selected.Beacon},
		{&merged.BeaconProxy, selected.BeaconProxy},
	} {
		if field.src != "" {
			*field.dst = field.src
		}
	}
	return &merged
}

// OutDir returns the artifacts directory of a profile
func OutDir(foundry *config.FoundryConfig, profile string) string {
	if out := foundry.Profile[profile].OutPath; out != "" {
		return out
	}
	if out := foundry.Profile[DefaultProfile].OutPath; out != "" {
		return out
	}
	return "out"
}

func isURL(s string) bool {
	for _, prefix := range []string{"http://", "https://", "ws://", "wss://"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
