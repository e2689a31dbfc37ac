package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/config"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/usecase"
)

const lockRetryDelay = 100 * time.Millisecond

// chainNames maps well-known chain ids to their manifest file names
var chainNames = map[uint64]string{
	1:        "mainnet",
	5:        "goerli",
	10:       "optimism",
	56:       "bsc",
	97:       "bsc-testnet",
	100:      "xdai",
	137:      "polygon",
	250:      "fantom",
	324:      "zksync",
	8453:     "base",
	17000:    "holesky",
	42161:    "arbitrum-one",
	43114:    "avalanche",
	59144:    "linea",
	80002:    "polygon-amoy",
	84532:    "base-sepolia",
	421614:   "arbitrum-sepolia",
	11155111: "sepolia",
	11155420: "optimism-sepolia",
}

// FileRepository stores one JSON manifest per chain under <DataDir>/manifests
type FileRepository struct {
	dir string

	mu    sync.Mutex
	locks map[uint64]*sync.Mutex
}

// NewFileRepository creates a manifest repository rooted at the configured data directory
func NewFileRepository(cfg *config.RuntimeConfig) *FileRepository {
	return NewFileRepositoryAt(filepath.Join(cfg.DataDir, "manifests"))
}

// NewFileRepositoryAt creates a manifest repository writing directly into dir
func NewFileRepositoryAt(dir string) *FileRepository {
	return &FileRepository{
		dir:   dir,
		locks: make(map[uint64]*sync.Mutex),
	}
}

var _ usecase.ManifestRepository = (*FileRepository)(nil)

// FileName returns the manifest file name for a chain
func FileName(chainID uint64) string {
	if name, ok := chainNames[chainID]; ok {
		return name + ".json"
	}
	return fmt.Sprintf("unknown-%d.json", chainID)
}

// Path returns the manifest location for a chain
func (r *FileRepository) Path(chainID uint64) string {
	return filepath.Join(r.dir, FileName(chainID))
}

// Load reads the manifest for a chain. A missing file yields an empty manifest.
func (r *FileRepository) Load(ctx context.Context, chainID uint64) (*models.Manifest, error) {
	path := r.Path(chainID)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return models.NewManifest(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m models.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &domain.ManifestCorruptedError{Path: path, Cause: err}
	}
	if m.ManifestVersion != "" && majorVersion(m.ManifestVersion) != majorVersion(models.CurrentManifestVersion) {
		return nil, &domain.ManifestVersionError{Path: path, Version: m.ManifestVersion}
	}
	m.Normalize()
	return &m, nil
}

// Save writes the manifest through a temporary file so readers never see a partial write
func (r *FileRepository) Save(ctx context.Context, chainID uint64, m *models.Manifest) error {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	m.ManifestVersion = models.CurrentManifestVersion
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	data = append(data, '\n')

	path := r.Path(chainID)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Lock takes the in-process lock for the chain and then the lock file next to the manifest
func (r *FileRepository) Lock(ctx context.Context, chainID uint64) (func(), error) {
	local := r.localLock(chainID)
	local.Lock()

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		local.Unlock()
		return nil, fmt.Errorf("failed to create manifest directory: %w", err)
	}

	fl := flock.New(r.Path(chainID) + ".lock")
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		local.Unlock()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("failed to lock manifest %s: %w", r.Path(chainID), err)
	}

	return func() {
		_ = fl.Unlock()
		local.Unlock()
	}, nil
}

func (r *FileRepository) localLock(chainID uint64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[chainID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[chainID] = l
	}
	return l
}

func majorVersion(v string) string {
	major, _, _ := strings.Cut(v, ".")
	return major
}
