package usecase

import (
	"context"
	"sort"

	"github.com/samber/lo"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
)

// ShowManifestResult contains the manifest of the connected network
type ShowManifestResult struct {
	ChainID  uint64
	Path     string
	Manifest *models.Manifest
	// ImplKeys are the version keys of Manifest.Impls in a stable order
	ImplKeys []string
}

// ShowManifest reads the manifest of the connected network
type ShowManifest struct {
	store *ManifestStore
}

// NewShowManifest creates a new ShowManifest use case
func NewShowManifest(store *ManifestStore) *ShowManifest {
	return &ShowManifest{store: store}
}

// Run executes the show manifest use case
func (uc *ShowManifest) Run(ctx context.Context) (*ShowManifestResult, error) {
	chainID, err := uc.store.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	path, err := uc.store.Path(ctx)
	if err != nil {
		return nil, err
	}
	m, err := uc.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	keys := lo.Keys(m.Impls)
	sort.Strings(keys)
	return &ShowManifestResult{ChainID: chainID, Path: path, Manifest: m, ImplKeys: keys}, nil
}
