// Package proxy holds the ERC-1967 storage slots and the well-known functions used to
// inspect and upgrade proxies, admins and beacons.
package proxy

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/lmittmann/w3"
)

// ERC-1967 slots: keccak256(label) - 1
var (
	ImplementationSlot = erc1967Slot("eip1967.proxy.implementation")
	AdminSlot          = erc1967Slot("eip1967.proxy.admin")
	BeaconSlot         = erc1967Slot("eip1967.proxy.beacon")
)

var (
	// Beacon accessor, also the only non ERC-1967 probe used for detection
	FuncImplementation = w3.MustNewFunc("implementation()", "address")
	// Present on OpenZeppelin 5.x proxies and UUPS implementations
	FuncUpgradeInterfaceVersion = w3.MustNewFunc("UPGRADE_INTERFACE_VERSION()", "string")
	FuncOwner                   = w3.MustNewFunc("owner()", "address")

	// Proxy and beacon upgrade functions
	FuncUpgradeTo        = w3.MustNewFunc("upgradeTo(address)", "")
	FuncUpgradeToAndCall = w3.MustNewFunc("upgradeToAndCall(address,bytes)", "")

	// ProxyAdmin functions
	FuncAdminUpgrade        = w3.MustNewFunc("upgrade(address,address)", "")
	FuncAdminUpgradeAndCall = w3.MustNewFunc("upgradeAndCall(address,address,bytes)", "")
)

// UpgradeInterfaceV5 is the UPGRADE_INTERFACE_VERSION of proxies and admins that only
// accept the *AndCall upgrade functions.
const UpgradeInterfaceV5 = "5.0.0"

func erc1967Slot(label string) common.Hash {
	n := new(uint256.Int).SetBytes(crypto.Keccak256([]byte(label)))
	n.SubUint64(n, 1)
	return common.Hash(n.Bytes32())
}

// AddressFromSlot extracts the address stored right aligned in a storage word
func AddressFromSlot(word []byte) common.Address {
	return common.BytesToAddress(common.LeftPadBytes(word, 32)[12:])
}
