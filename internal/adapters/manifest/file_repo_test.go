package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
)

func TestFileName(t *testing.T) {
	assert.Equal(t, "mainnet.json", FileName(1))
	assert.Equal(t, "sepolia.json", FileName(11155111))
	assert.Equal(t, "unknown-31337.json", FileName(31337))
}

func TestFileRepository_LoadMissing(t *testing.T) {
	repo := NewFileRepositoryAt(t.TempDir())

	m, err := repo.Load(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.CurrentManifestVersion, m.ManifestVersion)
	assert.Empty(t, m.Proxies)
	assert.NotNil(t, m.Impls)
}

func TestFileRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewFileRepositoryAt(t.TempDir())

	want := models.NewManifest()
	want.Admin = &models.Deployment{Address: "0x00000000000000000000000000000000000000a1", TxHash: "0x01"}
	want.Proxies = append(want.Proxies, models.ProxyDeployment{
		Deployment: models.Deployment{Address: "0x00000000000000000000000000000000000000a2"},
		Kind:       models.ManifestKindTransparent,
	})
	want.Impls["0xabc"] = &models.ImplDeployment{
		Deployment:   models.Deployment{Address: "0x00000000000000000000000000000000000000a3"},
		AllAddresses: []string{"0x00000000000000000000000000000000000000a3"},
		Layout: &models.StorageLayout{
			Storage: []models.StorageItem{{Contract: "Box", Label: "a", Type: "t_uint256", Slot: "0"}},
			Types:   map[string]models.TypeItem{"t_uint256": {Label: "uint256", NumberOfBytes: "32"}},
		},
	}

	require.NoError(t, repo.Save(ctx, 31337, want))
	got, err := repo.Load(ctx, 31337)
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}

	_, err = os.Stat(repo.Path(31337) + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileRepository_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("corrupted", func(t *testing.T) {
		dir := t.TempDir()
		repo := NewFileRepositoryAt(dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, FileName(1)), []byte("{not json"), 0644))

		_, err := repo.Load(ctx, 1)
		var corrupted *domain.ManifestCorruptedError
		require.ErrorAs(t, err, &corrupted)
		assert.Equal(t, repo.Path(1), corrupted.Path)
	})

	t.Run("unsupported version", func(t *testing.T) {
		dir := t.TempDir()
		repo := NewFileRepositoryAt(dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, FileName(1)), []byte(`{"manifestVersion":"2.1","impls":{}}`), 0644))

		_, err := repo.Load(ctx, 1)
		var versionErr *domain.ManifestVersionError
		require.ErrorAs(t, err, &versionErr)
		assert.Equal(t, "2.1", versionErr.Version)
	})

	t.Run("older minor version is accepted", func(t *testing.T) {
		dir := t.TempDir()
		repo := NewFileRepositoryAt(dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, FileName(1)), []byte(`{"manifestVersion":"3.0"}`), 0644))

		m, err := repo.Load(ctx, 1)
		require.NoError(t, err)
		assert.NotNil(t, m.Proxies)
		assert.NotNil(t, m.Impls)
	})
}

func TestFileRepository_Lock(t *testing.T) {
	ctx := context.Background()
	repo := NewFileRepositoryAt(t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unlock, err := repo.Lock(ctx, 1)
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			m, err := repo.Load(ctx, 1)
			if !assert.NoError(t, err) {
				return
			}
			m.Proxies = append(m.Proxies, models.ProxyDeployment{
				Deployment: models.Deployment{Address: fmt.Sprintf("0x%040x", i+1)},
				Kind:       models.ManifestKindUUPS,
			})
			assert.NoError(t, repo.Save(ctx, 1, m))
		}(i)
	}
	wg.Wait()

	m, err := repo.Load(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, m.Proxies, 8, "no update is lost")

	t.Run("cancelled while held", func(t *testing.T) {
		other := NewFileRepositoryAt(filepath.Dir(repo.Path(1)))
		unlock, err := repo.Lock(ctx, 1)
		require.NoError(t, err)
		defer unlock()

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = other.Lock(cctx, 1)
		require.Error(t, err)
	})
}
