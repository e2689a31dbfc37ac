package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/usecase"
)

func deployBox(t *testing.T, h *harness, contract string, kind domain.ProxyKind) *usecase.DeployProxyResult {
	t.Helper()
	res, err := h.deployProxy.Run(context.Background(), usecase.DeployProxyParams{
		Contract: contract,
		Options: domain.UpgradeOptions{
			Kind:        kind,
			Initializer: domain.InitializerCall{Function: "initialize", Args: []string{"42"}},
		},
	})
	require.NoError(t, err)
	return res
}

func TestDeployProxy(t *testing.T) {
	ctx := context.Background()

	t.Run("transparent proxy shares the ProxyAdmin", func(t *testing.T) {
		h := newHarness(t)

		first := deployBox(t, h, "Box", domain.ProxyKindNone)
		assert.Equal(t, domain.ProxyKindTransparent, first.Kind)
		assert.Equal(t, first.Implementation, h.chain.implementationOf(first.Proxy))
		assert.NotEqual(t, common.Address{}, first.Admin)
		// implementation, admin, proxy
		assert.Equal(t, 3, h.chain.creationCount())

		second := deployBox(t, h, "Box", domain.ProxyKindNone)
		assert.Equal(t, first.Implementation, second.Implementation)
		assert.Equal(t, first.Admin, second.Admin)
		assert.NotEqual(t, first.Proxy, second.Proxy)
		// only the second proxy
		assert.Equal(t, 4, h.chain.creationCount())

		m := h.manifest(t)
		require.NotNil(t, m.Admin)
		assert.True(t, models.SameAddress(m.Admin.Address, first.Admin.Hex()))
		require.Len(t, m.Proxies, 2)
		assert.Equal(t, models.ManifestKindTransparent, m.Proxies[0].Kind)
		assert.Len(t, m.Impls, 1)

		assert.Contains(t, h.progress.stages(), "proxy")
	})

	t.Run("uups is inferred from the upgrade function", func(t *testing.T) {
		h := newHarness(t)

		res := deployBox(t, h, "UUPSBox", domain.ProxyKindNone)
		assert.Equal(t, domain.ProxyKindUUPS, res.Kind)
		assert.Equal(t, common.Address{}, res.Admin)

		m := h.manifest(t)
		require.Len(t, m.Proxies, 1)
		assert.Equal(t, models.ManifestKindUUPS, m.Proxies[0].Kind)
	})

	t.Run("uups requires an upgrade function", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.deployProxy.Run(ctx, usecase.DeployProxyParams{
			Contract: "Box",
			Options:  domain.UpgradeOptions{Kind: domain.ProxyKindUUPS},
		})
		var unsafe *domain.NotUpgradeSafeError
		require.ErrorAs(t, err, &unsafe)
		assert.Equal(t, models.ErrorKindMissingPublicUpgradeTo, unsafe.Errors[0].Kind)
		assert.Equal(t, 0, h.chain.creationCount())
	})

	t.Run("unsafe implementation deploys nothing", func(t *testing.T) {
		h := newHarness(t)
		h.contracts.findings["Box"] = []models.ValidationError{
			{Kind: models.ErrorKindConstructor, Contract: "Box", Src: "src/Box.sol:10"},
		}

		_, err := h.deployProxy.Run(ctx, usecase.DeployProxyParams{Contract: "Box"})
		require.True(t, domain.IsSafetyViolation(err))
		assert.Equal(t, 0, h.chain.creationCount())

		res, err := h.deployProxy.Run(ctx, usecase.DeployProxyParams{
			Contract: "Box",
			Options: domain.UpgradeOptions{
				UnsafeAllow: []models.ValidationErrorKind{models.ErrorKindConstructor},
				Initializer: domain.InitializerCall{Args: []string{"42"}},
			},
		})
		require.NoError(t, err)
		assert.NotEqual(t, common.Address{}, res.Proxy)
	})

	t.Run("bad initializer arguments deploy nothing", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.deployProxy.Run(ctx, usecase.DeployProxyParams{
			Contract: "Box",
			Options:  domain.UpgradeOptions{Initializer: domain.InitializerCall{Args: []string{"not-a-number"}}},
		})
		require.Error(t, err)
		assert.Equal(t, 0, h.chain.creationCount())
		assert.Empty(t, h.manifest(t).Impls)
	})

	t.Run("conflicting options fail before any network call", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.deployProxy.Run(ctx, usecase.DeployProxyParams{
			Contract: "Box",
			Options: domain.UpgradeOptions{
				UseDeployedImplementation: true,
				Redeploy:                  domain.RedeployAlways,
			},
		})
		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, 0, h.chain.creationCount())
	})

	t.Run("use deployed implementation requires a record", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.deployProxy.Run(ctx, usecase.DeployProxyParams{
			Contract: "Box",
			Options:  domain.UpgradeOptions{UseDeployedImplementation: true},
		})
		require.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, 0, h.chain.creationCount())
	})

	t.Run("beacon kinds are rejected", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.deployProxy.Run(ctx, usecase.DeployProxyParams{
			Contract: "Box",
			Options:  domain.UpgradeOptions{Kind: domain.ProxyKindBeacon},
		})
		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
	})
}

// Deploying the same implementation twice sends one transaction; upgrading to a layout that
// deletes a variable fails naming it unless the storage check is skipped.
func TestUpgradeProxy_DeletedVariable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	first := deployBox(t, h, "Box", domain.ProxyKindTransparent)
	before := h.chain.creationCount()
	again, err := h.prepareUpgrade.Run(ctx, usecase.PrepareUpgradeParams{Address: first.Proxy, Contract: "Box"})
	require.NoError(t, err)
	assert.Equal(t, first.Implementation, again.Implementation)
	assert.Equal(t, before, h.chain.creationCount())

	_, err = h.upgradeProxy.Run(ctx, usecase.UpgradeProxyParams{Proxy: first.Proxy, Contract: "BoxV2"})
	var conflict *domain.StorageLayoutConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Contains(t, err.Error(), "Deleted `b`")
	require.Len(t, conflict.Changes, 1)
	assert.Equal(t, models.LayoutOpDelete, conflict.Changes[0].Op)
	assert.Equal(t, "b", conflict.Changes[0].Original.Label)
	assert.Equal(t, before, h.chain.creationCount())
	assert.Equal(t, first.Implementation, h.chain.implementationOf(first.Proxy))

	res, err := h.upgradeProxy.Run(ctx, usecase.UpgradeProxyParams{
		Proxy:    first.Proxy,
		Contract: "BoxV2",
		Options:  domain.UpgradeOptions{UnsafeSkipStorageCheck: true},
	})
	require.NoError(t, err)
	assert.Equal(t, first.Implementation, res.PreviousImplementation)
	assert.Equal(t, res.Implementation, h.chain.implementationOf(first.Proxy))
	assert.Equal(t, first.Admin, res.UpgradedBy)
}

func TestUpgradeProxy(t *testing.T) {
	ctx := context.Background()

	t.Run("append is safe", func(t *testing.T) {
		h := newHarness(t)
		proxy := deployBox(t, h, "Box", domain.ProxyKindTransparent)

		res, err := h.upgradeProxy.Run(ctx, usecase.UpgradeProxyParams{Proxy: proxy.Proxy, Contract: "BoxV3"})
		require.NoError(t, err)
		require.NotNil(t, res.Report)
		assert.True(t, res.Report.Pass(layoutOptions()))
		assert.Equal(t, res.Implementation, h.chain.implementationOf(proxy.Proxy))

		// the upgraded implementation is itself a valid base for the next upgrade
		_, err = h.upgradeProxy.Run(ctx, usecase.UpgradeProxyParams{Proxy: proxy.Proxy, Contract: "BoxV3"})
		require.NoError(t, err)
	})

	t.Run("reorder is unsafe", func(t *testing.T) {
		h := newHarness(t)
		proxy := deployBox(t, h, "Box", domain.ProxyKindTransparent)

		_, err := h.upgradeProxy.Run(ctx, usecase.UpgradeProxyParams{Proxy: proxy.Proxy, Contract: "BoxSwapped"})
		var conflict *domain.StorageLayoutConflictError
		require.ErrorAs(t, err, &conflict)
		ops := make([]models.LayoutOp, 0, len(conflict.Changes))
		for _, c := range conflict.Changes {
			ops = append(ops, c.Op)
		}
		assert.Contains(t, ops, models.LayoutOpLayoutChange)
	})

	t.Run("uups upgrade goes through the proxy", func(t *testing.T) {
		h := newHarness(t)
		proxy := deployBox(t, h, "UUPSBox", domain.ProxyKindNone)

		res, err := h.upgradeProxy.Run(ctx, usecase.UpgradeProxyParams{Proxy: proxy.Proxy, Contract: "UUPSBoxV2"})
		require.NoError(t, err)
		assert.Equal(t, proxy.Proxy, res.UpgradedBy)
		assert.Equal(t, res.Implementation, h.chain.implementationOf(proxy.Proxy))
	})

	t.Run("5.0.0 interface uses upgradeToAndCall", func(t *testing.T) {
		h := newHarness(t)
		proxy := deployBox(t, h, "UUPSBox", domain.ProxyKindNone)
		h.chain.versions[proxy.Proxy] = "5.0.0"

		res, err := h.upgradeProxy.Run(ctx, usecase.UpgradeProxyParams{Proxy: proxy.Proxy, Contract: "UUPSBoxV2"})
		require.NoError(t, err)
		last := h.chain.calls[len(h.chain.calls)-1]
		assert.Equal(t, "upgradeToAndCall", selectorName(last.Data))
		assert.Equal(t, res.Implementation, h.chain.implementationOf(proxy.Proxy))
	})

	t.Run("requested kind must match", func(t *testing.T) {
		h := newHarness(t)
		proxy := deployBox(t, h, "Box", domain.ProxyKindTransparent)

		_, err := h.upgradeProxy.Run(ctx, usecase.UpgradeProxyParams{
			Proxy:    proxy.Proxy,
			Contract: "BoxV3",
			Options:  domain.UpgradeOptions{Kind: domain.ProxyKindUUPS},
		})
		var mismatch *domain.KindMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, domain.ProxyKindTransparent, mismatch.Detected)
	})

	t.Run("registered kind must match detected kind", func(t *testing.T) {
		h := newHarness(t)
		proxy := deployBox(t, h, "Box", domain.ProxyKindTransparent)

		// rewrite the registration behind the store's back
		m := h.manifest(t)
		m.Proxies[0].Kind = models.ManifestKindUUPS
		require.NoError(t, h.manifests.Save(ctx, 31337, m))

		_, err := h.upgradeProxy.Run(ctx, usecase.UpgradeProxyParams{Proxy: proxy.Proxy, Contract: "BoxV3"})
		var mismatch *domain.KindMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Contains(t, mismatch.Error(), "registered in the manifest")
	})

	t.Run("unregistered proxy", func(t *testing.T) {
		h := newHarness(t)
		impl := h.deployRaw(t, "Box")
		admin := h.deployRaw(t, "ProxyAdmin")
		proxy := h.deployRaw(t, "TransparentUpgradeableProxy", impl, admin, []byte{})

		_, err := h.upgradeProxy.Run(ctx, usecase.UpgradeProxyParams{Proxy: proxy, Contract: "BoxV3"})
		var notFound *domain.DeploymentNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Contains(t, err.Error(), "force-import")
	})

	t.Run("beacon proxies are upgraded through the beacon", func(t *testing.T) {
		h := newHarness(t)
		beacon, err := h.deployBeacon.Run(ctx, usecase.DeployBeaconParams{Contract: "Box"})
		require.NoError(t, err)
		bp, err := h.deployBeaconProxy.Run(ctx, usecase.DeployBeaconProxyParams{
			Beacon:   beacon.Beacon,
			Contract: "Box",
			Options:  domain.UpgradeOptions{Initializer: domain.InitializerCall{Args: []string{"1"}}},
		})
		require.NoError(t, err)

		creations := h.chain.creationCount()
		_, err = h.upgradeProxy.Run(ctx, usecase.UpgradeProxyParams{Proxy: bp.Proxy, Contract: "BoxV3"})
		var mismatch *domain.KindMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, domain.ProxyKindBeaconProxy, mismatch.Detected)
		assert.Contains(t, err.Error(), beacon.Beacon.Hex())
		assert.Equal(t, creations, h.chain.creationCount())
	})

	t.Run("not a proxy", func(t *testing.T) {
		h := newHarness(t)
		impl := h.deployRaw(t, "Box")

		_, err := h.upgradeProxy.Run(ctx, usecase.UpgradeProxyParams{Proxy: impl, Contract: "BoxV3"})
		var mismatch *domain.KindMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, domain.ProxyKindNone, mismatch.Detected)
	})

	t.Run("account admin must be the sender", func(t *testing.T) {
		h := newHarness(t)
		impl := h.deployRaw(t, "Box")
		stranger := common.HexToAddress("0x0000000000000000000000000000000000000bad")
		proxy := h.deployRaw(t, "TransparentUpgradeableProxy", impl, stranger, []byte{})
		_, err := h.forceImport.Run(ctx, usecase.ForceImportParams{Address: proxy, Contract: "Box"})
		require.NoError(t, err)

		_, err = h.upgradeProxy.Run(ctx, usecase.UpgradeProxyParams{Proxy: proxy, Contract: "BoxV3"})
		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)

		owned := h.deployRaw(t, "TransparentUpgradeableProxy", impl, h.chain.from, []byte{})
		_, err = h.forceImport.Run(ctx, usecase.ForceImportParams{Address: owned, Contract: "Box"})
		require.NoError(t, err)
		res, err := h.upgradeProxy.Run(ctx, usecase.UpgradeProxyParams{Proxy: owned, Contract: "BoxV3"})
		require.NoError(t, err)
		assert.Equal(t, owned, res.UpgradedBy)
	})

	t.Run("initializer arguments are validated", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.deployProxy.Run(ctx, usecase.DeployProxyParams{
			Contract: "Box",
			Options: domain.UpgradeOptions{
				Initializer: domain.InitializerCall{Function: "initialize", Args: []string{"not-a-number"}},
			},
		})
		require.Error(t, err)
		assert.False(t, errors.Is(err, domain.ErrNotFound))
		assert.Contains(t, err.Error(), "initialize(uint256)")
	})
}
