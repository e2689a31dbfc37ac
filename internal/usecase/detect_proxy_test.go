package usecase_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/proxy"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/usecase"
)

func TestDetectProxy(t *testing.T) {
	ctx := context.Background()
	implAddr := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	adminAddr := common.HexToAddress("0x00000000000000000000000000000000000000b2")

	tests := []struct {
		name  string
		setup func(h *harness) common.Address
		want  domain.ProxyKind
		check func(t *testing.T, info *usecase.ProxyInfo)
	}{
		{
			name: "transparent",
			setup: func(h *harness) common.Address {
				return h.deployRaw(t, "TransparentUpgradeableProxy", implAddr, adminAddr, []byte{})
			},
			want: domain.ProxyKindTransparent,
			check: func(t *testing.T, info *usecase.ProxyInfo) {
				assert.Equal(t, implAddr, info.Implementation)
				assert.Equal(t, adminAddr, info.Admin)
			},
		},
		{
			name: "uups",
			setup: func(h *harness) common.Address {
				addr := h.deployRaw(t, "ERC1967Proxy", implAddr, []byte{})
				h.chain.versions[addr] = proxy.UpgradeInterfaceV5
				return addr
			},
			want: domain.ProxyKindUUPS,
			check: func(t *testing.T, info *usecase.ProxyInfo) {
				assert.Equal(t, implAddr, info.Implementation)
				assert.Equal(t, proxy.UpgradeInterfaceV5, info.UpgradeInterfaceVersion)
			},
		},
		{
			name: "beacon proxy",
			setup: func(h *harness) common.Address {
				beacon := h.deployRaw(t, "UpgradeableBeacon", implAddr)
				return h.deployRaw(t, "BeaconProxy", beacon, []byte{})
			},
			want: domain.ProxyKindBeaconProxy,
			check: func(t *testing.T, info *usecase.ProxyInfo) {
				assert.Equal(t, implAddr, info.Implementation)
				assert.NotEqual(t, common.Address{}, info.Beacon)
			},
		},
		{
			name: "beacon",
			setup: func(h *harness) common.Address {
				return h.deployRaw(t, "UpgradeableBeacon", implAddr)
			},
			want: domain.ProxyKindBeacon,
			check: func(t *testing.T, info *usecase.ProxyInfo) {
				assert.Equal(t, implAddr, info.Implementation)
			},
		},
		{
			name: "plain contract",
			setup: func(h *harness) common.Address {
				return h.deployRaw(t, "Box")
			},
			want: domain.ProxyKindNone,
		},
		{
			name: "implementation slot wins over beacon slot",
			setup: func(h *harness) common.Address {
				addr := h.deployRaw(t, "ERC1967Proxy", implAddr, []byte{})
				h.chain.setSlot(addr, proxy.BeaconSlot, adminAddr)
				return addr
			},
			want: domain.ProxyKindUUPS,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			addr := tt.setup(h)

			info, err := h.detector.Run(ctx, addr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, info.Kind)
			assert.Equal(t, addr, info.Address)
			if tt.check != nil {
				tt.check(t, info)
			}
		})
	}

	t.Run("no code", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.detector.Run(ctx, implAddr)
		var unknown *domain.ProxyKindUnknownError
		require.ErrorAs(t, err, &unknown)
	})

	t.Run("beacon without implementation", func(t *testing.T) {
		h := newHarness(t)
		// a beacon slot pointing at a contract without implementation()
		box := h.deployRaw(t, "Box")
		addr := h.deployRaw(t, "BeaconProxy", box, []byte{})

		_, err := h.detector.Run(ctx, addr)
		var unknown *domain.BeaconImplementationUnknownError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, box.Hex(), unknown.Beacon)
	})
}

func TestTxConfirmer_Wait(t *testing.T) {
	ctx := context.Background()

	t.Run("mined", func(t *testing.T) {
		h := newHarness(t)
		tx, err := h.chain.SendTransaction(ctx, nil, common.FromHex(h.contracts.byName["Box"].Bytecode))
		require.NoError(t, err)

		receipt, err := usecase.NewTxConfirmer(h.chain, discardLogger()).Wait(ctx, tx.Hash, fastWait())
		require.NoError(t, err)
		assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	})

	t.Run("reverted", func(t *testing.T) {
		h := newHarness(t)
		hash := common.HexToHash("0xdead")
		h.chain.receipts[hash] = &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(1)}

		_, err := usecase.NewTxConfirmer(h.chain, discardLogger()).Wait(ctx, hash, fastWait())
		require.ErrorIs(t, err, domain.ErrTransactionFailed)
	})

	t.Run("timeout", func(t *testing.T) {
		h := newHarness(t)
		h.chain.holdReceipts = true
		tx, err := h.chain.SendTransaction(ctx, nil, common.FromHex(h.contracts.byName["Box"].Bytecode))
		require.NoError(t, err)

		_, err = usecase.NewTxConfirmer(h.chain, discardLogger()).Wait(ctx, tx.Hash, usecase.WaitOptions{
			Timeout:         15 * time.Millisecond,
			PollingInterval: 5 * time.Millisecond,
			Address:         tx.ContractAddress.Hex(),
		})
		var timedOut *domain.TimedOutError
		require.ErrorAs(t, err, &timedOut)
		assert.Equal(t, tx.Hash.Hex(), timedOut.TxHash)
		assert.Contains(t, err.Error(), tx.ContractAddress.Hex())
	})

	t.Run("cancelled", func(t *testing.T) {
		h := newHarness(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := usecase.NewTxConfirmer(h.chain, discardLogger()).Wait(cctx, common.HexToHash("0xbeef"), fastWait())
		require.ErrorIs(t, err, context.Canceled)
	})
}
