package proxy

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlots(t *testing.T) {
	assert.Equal(t, common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc"), ImplementationSlot)
	assert.Equal(t, common.HexToHash("0xb53127684a568b3173ae13b9f8a6016e243e63b6e8ee1178d6a717850b5d6103"), AdminSlot)
	assert.Equal(t, common.HexToHash("0xa3f0ad74e5423aebfd80d3ef4346578335a9a72aeaee59ff6cb3582b35133d50"), BeaconSlot)
}

func TestAddressFromSlot(t *testing.T) {
	addr := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	assert.Equal(t, addr, AddressFromSlot(common.LeftPadBytes(addr.Bytes(), 32)))
	assert.Equal(t, common.Address{}, AddressFromSlot(nil))
}

func TestFunctions(t *testing.T) {
	addr := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

	data, err := FuncUpgradeTo.EncodeArgs(addr)
	require.NoError(t, err)
	assert.Equal(t, common.FromHex("0x3659cfe6"), data[:4])

	data, err = FuncUpgradeToAndCall.EncodeArgs(addr, []byte{})
	require.NoError(t, err)
	assert.Equal(t, common.FromHex("0x4f1ef286"), data[:4])

	assert.Equal(t, common.FromHex("0x5c60da1b"), FuncImplementation.Selector[:])
}
