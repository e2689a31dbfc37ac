package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/usecase"
)

func testVersion(key string) models.Version {
	return models.Version{Key: key, WithoutMetadata: key}
}

// deployCounter returns a DeployFunc creating Box and counting its invocations
func deployCounter(t *testing.T, h *harness, count *int) usecase.DeployFunc {
	return func(ctx context.Context) (*models.Deployment, error) {
		*count++
		return h.impls.Deploy(ctx, common.FromHex(h.contracts.byName["Box"].Bytecode))
	}
}

func fastWait() usecase.WaitOptions {
	return usecase.WaitOptions{PollingInterval: 5 * time.Millisecond}
}

func TestManifestStore_FetchOrDeploy(t *testing.T) {
	ctx := context.Background()

	t.Run("idempotent", func(t *testing.T) {
		h := newHarness(t)
		var count int
		deploy := deployCounter(t, h, &count)

		first, err := h.store.FetchOrDeploy(ctx, testVersion("v1"), boxLayout("Box", "a"), deploy, usecase.FetchOptions{Wait: fastWait()})
		require.NoError(t, err)
		second, err := h.store.FetchOrDeploy(ctx, testVersion("v1"), boxLayout("Box", "a"), deploy, usecase.FetchOptions{Wait: fastWait()})
		require.NoError(t, err)

		assert.Equal(t, 1, count)
		assert.Equal(t, first.Address, second.Address)
		assert.Equal(t, 1, h.chain.creationCount())
	})

	t.Run("redeploy always keeps previous address resolvable", func(t *testing.T) {
		h := newHarness(t)
		var count int
		deploy := deployCounter(t, h, &count)

		first, err := h.store.FetchOrDeploy(ctx, testVersion("v1"), boxLayout("Box", "a"), deploy, usecase.FetchOptions{Wait: fastWait()})
		require.NoError(t, err)
		second, err := h.store.FetchOrDeploy(ctx, testVersion("v1"), nil, deploy, usecase.FetchOptions{
			Redeploy: domain.RedeployAlways,
			Wait:     fastWait(),
		})
		require.NoError(t, err)

		assert.Equal(t, 2, count)
		assert.NotEqual(t, first.Address, second.Address)
		assert.NotNil(t, second.Layout, "layout of the previous record is kept")

		old, err := h.store.GetDeploymentFromAddress(ctx, common.HexToAddress(first.Address))
		require.NoError(t, err)
		assert.Equal(t, second.Address, old.Address)
		assert.Len(t, old.AllAddresses, 2)
	})

	t.Run("redeploy never without record", func(t *testing.T) {
		h := newHarness(t)
		var count int
		_, err := h.store.FetchOrDeploy(ctx, testVersion("v1"), nil, deployCounter(t, h, &count), usecase.FetchOptions{
			Redeploy: domain.RedeployNever,
			Wait:     fastWait(),
		})
		require.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, 0, count)
	})

	t.Run("timed out deployment is resumed", func(t *testing.T) {
		h := newHarness(t)
		h.chain.holdReceipts = true
		var count int
		deploy := deployCounter(t, h, &count)
		wait := usecase.WaitOptions{PollingInterval: 5 * time.Millisecond, Timeout: 20 * time.Millisecond}

		_, err := h.store.FetchOrDeploy(ctx, testVersion("v1"), nil, deploy, usecase.FetchOptions{Wait: wait})
		var timedOut *domain.TimedOutError
		require.ErrorAs(t, err, &timedOut)
		assert.Contains(t, err.Error(), "may still be mined")

		// the pending record survives the timeout
		m := h.manifest(t)
		require.Contains(t, m.Impls, "v1")
		assert.NotEmpty(t, m.Impls["v1"].TxHash)

		h.chain.mine()
		rec, err := h.store.FetchOrDeploy(ctx, testVersion("v1"), nil, deploy, usecase.FetchOptions{Wait: wait})
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		assert.Equal(t, m.Impls["v1"].Address, rec.Address)
	})

	t.Run("resumed deployment that reverted is replaced", func(t *testing.T) {
		h := newHarnessOnChain(t, 11155111)
		h.chain.holdReceipts = true
		var count int
		deploy := deployCounter(t, h, &count)
		wait := usecase.WaitOptions{PollingInterval: 5 * time.Millisecond, Timeout: 20 * time.Millisecond}

		_, err := h.store.FetchOrDeploy(ctx, testVersion("v1"), nil, deploy, usecase.FetchOptions{Wait: wait})
		var timedOut *domain.TimedOutError
		require.ErrorAs(t, err, &timedOut)
		stuck := h.manifest(t).Impls["v1"]
		require.NotNil(t, stuck)

		h.chain.revertPending()
		h.chain.mine()
		h.chain.holdReceipts = false

		rec, err := h.store.FetchOrDeploy(ctx, testVersion("v1"), nil, deploy, usecase.FetchOptions{Wait: wait})
		require.NoError(t, err)
		assert.Equal(t, 2, count)
		assert.NotEqual(t, stuck.Address, rec.Address)
		assert.NotEqual(t, stuck.TxHash, h.manifest(t).Impls["v1"].TxHash)

		// later runs reuse the replacement
		again, err := h.store.FetchOrDeploy(ctx, testVersion("v1"), nil, deploy, usecase.FetchOptions{Wait: wait})
		require.NoError(t, err)
		assert.Equal(t, 2, count)
		assert.Equal(t, rec.Address, again.Address)
	})

	t.Run("resumed deployment that reverted is dropped when redeploy is disabled", func(t *testing.T) {
		h := newHarness(t)
		h.chain.holdReceipts = true
		var count int
		deploy := deployCounter(t, h, &count)
		wait := usecase.WaitOptions{PollingInterval: 5 * time.Millisecond, Timeout: 20 * time.Millisecond}

		_, err := h.store.FetchOrDeploy(ctx, testVersion("v1"), nil, deploy, usecase.FetchOptions{Wait: wait})
		var timedOut *domain.TimedOutError
		require.ErrorAs(t, err, &timedOut)

		h.chain.revertPending()
		h.chain.mine()

		_, err = h.store.FetchOrDeploy(ctx, testVersion("v1"), nil, deploy, usecase.FetchOptions{Redeploy: domain.RedeployNever, Wait: wait})
		require.ErrorIs(t, err, domain.ErrTransactionFailed)
		assert.Equal(t, 1, count)
		assert.NotContains(t, h.manifest(t).Impls, "v1")
	})

	t.Run("stale record is redeployed on a dev chain", func(t *testing.T) {
		h := newHarness(t)
		var count int
		deploy := deployCounter(t, h, &count)

		first, err := h.store.FetchOrDeploy(ctx, testVersion("v1"), nil, deploy, usecase.FetchOptions{Wait: fastWait()})
		require.NoError(t, err)
		h.chain.forget(common.HexToAddress(first.Address))

		second, err := h.store.FetchOrDeploy(ctx, testVersion("v1"), nil, deploy, usecase.FetchOptions{Wait: fastWait()})
		require.NoError(t, err)
		assert.Equal(t, 2, count)
		assert.NotEqual(t, first.Address, second.Address)
	})

	t.Run("stale record is an error on a real network", func(t *testing.T) {
		h := newHarnessOnChain(t, 11155111)
		var count int
		deploy := deployCounter(t, h, &count)

		first, err := h.store.FetchOrDeploy(ctx, testVersion("v1"), nil, deploy, usecase.FetchOptions{Wait: fastWait()})
		require.NoError(t, err)
		h.chain.forget(common.HexToAddress(first.Address))

		_, err = h.store.FetchOrDeploy(ctx, testVersion("v1"), nil, deploy, usecase.FetchOptions{Wait: fastWait()})
		var invalid *domain.InvalidDeploymentError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, 1, count)
	})

	t.Run("concurrent calls deploy once", func(t *testing.T) {
		h := newHarness(t)
		var mu sync.Mutex
		var count int
		deploy := func(ctx context.Context) (*models.Deployment, error) {
			mu.Lock()
			count++
			mu.Unlock()
			return h.impls.Deploy(ctx, common.FromHex(h.contracts.byName["Box"].Bytecode))
		}

		var wg sync.WaitGroup
		addrs := make([]string, 8)
		for i := range addrs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				rec, err := h.store.FetchOrDeploy(ctx, testVersion("v1"), nil, deploy, usecase.FetchOptions{Wait: fastWait()})
				if assert.NoError(t, err) {
					addrs[i] = rec.Address
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, count)
		for _, a := range addrs {
			assert.Equal(t, addrs[0], a)
		}
	})
}

func TestManifestStore_AddProxy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	addr := "0x00000000000000000000000000000000000000a1"

	require.NoError(t, h.store.AddProxy(ctx, models.ProxyDeployment{
		Deployment: models.Deployment{Address: addr, TxHash: "0x01"},
		Kind:       models.ManifestKindUUPS,
	}))
	// re-registration keeps the creation transaction
	require.NoError(t, h.store.AddProxy(ctx, models.ProxyDeployment{
		Deployment: models.Deployment{Address: addr},
		Kind:       models.ManifestKindUUPS,
	}))

	err := h.store.AddProxy(ctx, models.ProxyDeployment{
		Deployment: models.Deployment{Address: addr},
		Kind:       models.ManifestKindTransparent,
	})
	var mismatch *domain.KindMismatchError
	require.ErrorAs(t, err, &mismatch)

	p, err := h.store.GetProxyFromAddress(ctx, common.HexToAddress(addr))
	require.NoError(t, err)
	assert.Equal(t, models.ManifestKindUUPS, p.Kind)
	assert.Equal(t, "0x01", p.TxHash)
	assert.Len(t, h.manifest(t).Proxies, 1)
}

func TestManifestStore_SetAdmin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	first := h.deployRaw(t, "ProxyAdmin")
	second := h.deployRaw(t, "ProxyAdmin")

	require.NoError(t, h.store.SetAdmin(ctx, models.Deployment{Address: first.Hex()}))
	require.NoError(t, h.store.SetAdmin(ctx, models.Deployment{Address: second.Hex()}))
	assert.True(t, models.SameAddress(h.manifest(t).Admin.Address, first.Hex()))

	h.chain.forget(first)
	require.NoError(t, h.store.SetAdmin(ctx, models.Deployment{Address: second.Hex()}))
	assert.True(t, models.SameAddress(h.manifest(t).Admin.Address, second.Hex()))
}

func TestManifestStore_GetDeploymentFromAddress(t *testing.T) {
	h := newHarness(t)

	_, err := h.store.GetDeploymentFromAddress(context.Background(), common.HexToAddress("0x1"))
	var notFound *domain.DeploymentNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
