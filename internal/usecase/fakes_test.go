package usecase_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	abiadapter "github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/adapters/abi"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/config"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/layout"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/proxy"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/usecase"
)

var errReverted = errors.New("execution reverted")

// fakeChain is an in-memory chain that understands the proxy contracts used in tests
type fakeChain struct {
	mu sync.Mutex

	chainID   uint64
	from      common.Address
	nonce     uint64
	contracts *fakeContracts

	code     map[common.Address][]byte
	storage  map[common.Address]map[common.Hash]common.Hash
	beacons  map[common.Address]common.Address
	versions map[common.Address]string

	receipts map[common.Hash]*types.Receipt
	known    map[common.Hash]bool
	pending  map[common.Hash]func()
	reverted map[common.Hash]bool

	// holdReceipts keeps sent transactions pending until mine is called
	holdReceipts bool

	creations []common.Address
	calls     []sentCall
}

type sentCall struct {
	To   common.Address
	Data []byte
}

var _ usecase.NetworkProvider = (*fakeChain)(nil)
var _ usecase.TransactionSender = (*fakeChain)(nil)

func newFakeChain(chainID uint64, contracts *fakeContracts) *fakeChain {
	return &fakeChain{
		chainID:   chainID,
		from:      common.HexToAddress("0x00000000000000000000000000000000000000f0"),
		contracts: contracts,
		code:      make(map[common.Address][]byte),
		storage:   make(map[common.Address]map[common.Hash]common.Hash),
		beacons:   make(map[common.Address]common.Address),
		versions:  make(map[common.Address]string),
		receipts:  make(map[common.Hash]*types.Receipt),
		known:     make(map[common.Hash]bool),
		pending:   make(map[common.Hash]func()),
		reverted:  make(map[common.Hash]bool),
	}
}

func (c *fakeChain) ChainID(context.Context) (uint64, error) {
	return c.chainID, nil
}

func (c *fakeChain) CodeAt(_ context.Context, address common.Address) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code[address], nil
}

func (c *fakeChain) StorageAt(_ context.Context, address common.Address, slot common.Hash) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	word := c.storage[address][slot]
	return word.Bytes(), nil
}

func (c *fakeChain) Call(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(data) < 4 {
		return nil, errReverted
	}
	switch string(data[:4]) {
	case string(proxy.FuncImplementation.Selector[:]):
		impl, ok := c.beacons[to]
		if !ok {
			return nil, errReverted
		}
		return common.LeftPadBytes(impl.Bytes(), 32), nil
	case string(proxy.FuncUpgradeInterfaceVersion.Selector[:]):
		v, ok := c.versions[to]
		if !ok {
			return nil, errReverted
		}
		stringType, _ := abi.NewType("string", "", nil)
		return abi.Arguments{{Type: stringType}}.Pack(v)
	default:
		return nil, errReverted
	}
}

func (c *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receipts[hash], nil
}

func (c *fakeChain) TransactionKnown(_ context.Context, hash common.Hash) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.known[hash], nil
}

func (c *fakeChain) Address() common.Address {
	return c.from
}

func (c *fakeChain) SendTransaction(_ context.Context, to *common.Address, data []byte) (*usecase.SentTransaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nonce := make([]byte, 8)
	binary.BigEndian.PutUint64(nonce, c.nonce)
	hash := crypto.Keccak256Hash(c.from.Bytes(), nonce, data)
	sent := &usecase.SentTransaction{Hash: hash}

	var effect func() error
	if to == nil {
		addr := crypto.CreateAddress(c.from, c.nonce)
		sent.ContractAddress = addr
		c.creations = append(c.creations, addr)
		effect = func() error { return c.create(addr, data) }
	} else {
		target := *to
		c.calls = append(c.calls, sentCall{To: target, Data: data})
		effect = func() error { return c.execute(target, data) }
	}
	c.nonce++
	c.known[hash] = true

	block := big.NewInt(int64(c.nonce))
	c.pending[hash] = func() {
		status := types.ReceiptStatusSuccessful
		if c.reverted[hash] {
			status = types.ReceiptStatusFailed
		} else if err := effect(); err != nil {
			status = types.ReceiptStatusFailed
		}
		c.receipts[hash] = &types.Receipt{TxHash: hash, Status: status, BlockNumber: block}
	}
	if !c.holdReceipts {
		c.mineLocked()
	}
	return sent, nil
}

// mine includes every pending transaction
func (c *fakeChain) mine() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mineLocked()
}

func (c *fakeChain) mineLocked() {
	for hash, apply := range c.pending {
		apply()
		delete(c.pending, hash)
	}
}

// revertPending makes every pending transaction revert without effect once mined
func (c *fakeChain) revertPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for hash := range c.pending {
		c.reverted[hash] = true
	}
}

// forget simulates a network reset: code, receipts and known transactions are gone
func (c *fakeChain) forget(address common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.code, address)
	c.receipts = make(map[common.Hash]*types.Receipt)
	c.known = make(map[common.Hash]bool)
}

func (c *fakeChain) setSlot(address common.Address, slot common.Hash, value common.Address) {
	if c.storage[address] == nil {
		c.storage[address] = make(map[common.Hash]common.Hash)
	}
	c.storage[address][slot] = common.BytesToHash(value.Bytes())
}

func (c *fakeChain) create(addr common.Address, initCode []byte) error {
	contract, args, ok := c.contracts.match(initCode)
	if !ok {
		return fmt.Errorf("unknown init code")
	}
	runtime := common.FromHex(contract.DeployedBytecode)
	c.code[addr] = runtime

	var values []interface{}
	if len(contract.ABI.Constructor.Inputs) > 0 {
		var err error
		if values, err = contract.ABI.Constructor.Inputs.Unpack(args); err != nil {
			return err
		}
	}
	switch contract.Name {
	case config.DefaultUUPSProxy:
		c.setSlot(addr, proxy.ImplementationSlot, values[0].(common.Address))
	case config.DefaultTransparentProxy:
		c.setSlot(addr, proxy.ImplementationSlot, values[0].(common.Address))
		c.setSlot(addr, proxy.AdminSlot, values[1].(common.Address))
	case config.DefaultBeacon:
		c.beacons[addr] = values[0].(common.Address)
	case config.DefaultBeaconProxy:
		c.setSlot(addr, proxy.BeaconSlot, values[0].(common.Address))
	}
	return nil
}

func (c *fakeChain) execute(to common.Address, data []byte) error {
	if len(c.code[to]) == 0 {
		return nil
	}
	if len(data) < 4 {
		return errReverted
	}
	var target, impl common.Address
	var call []byte
	switch string(data[:4]) {
	case string(proxy.FuncAdminUpgrade.Selector[:]):
		if err := proxy.FuncAdminUpgrade.DecodeArgs(data, &target, &impl); err != nil {
			return err
		}
	case string(proxy.FuncAdminUpgradeAndCall.Selector[:]):
		if err := proxy.FuncAdminUpgradeAndCall.DecodeArgs(data, &target, &impl, &call); err != nil {
			return err
		}
	case string(proxy.FuncUpgradeTo.Selector[:]):
		if err := proxy.FuncUpgradeTo.DecodeArgs(data, &impl); err != nil {
			return err
		}
		target = to
	case string(proxy.FuncUpgradeToAndCall.Selector[:]):
		if err := proxy.FuncUpgradeToAndCall.DecodeArgs(data, &impl, &call); err != nil {
			return err
		}
		target = to
	default:
		return errReverted
	}
	if _, ok := c.beacons[target]; ok {
		c.beacons[target] = impl
		return nil
	}
	c.setSlot(target, proxy.ImplementationSlot, impl)
	return nil
}

func (c *fakeChain) creationCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.creations)
}

func (c *fakeChain) implementationOf(address common.Address) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return common.BytesToAddress(c.storage[address][proxy.ImplementationSlot].Bytes())
}

// fakeContracts is the compiled project
type fakeContracts struct {
	byName   map[string]*models.Contract
	findings map[string][]models.ValidationError
	nextID   byte
}

var _ usecase.ContractRepository = (*fakeContracts)(nil)
var _ usecase.ValidationDataProvider = (*fakeContracts)(nil)

func newFakeContracts() *fakeContracts {
	return &fakeContracts{
		byName:   make(map[string]*models.Contract),
		findings: make(map[string][]models.ValidationError),
		nextID:   1,
	}
}

// add registers a contract with unique bytecode. Creation codes all have the same length
// so none is a prefix of another.
func (f *fakeContracts) add(name, abiJSON string, layout *models.StorageLayout) *models.Contract {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		panic(err)
	}
	id := f.nextID
	f.nextID++
	contract := &models.Contract{
		Name:             name,
		Path:             "src/" + name + ".sol",
		ABI:              &parsed,
		Bytecode:         fmt.Sprintf("0x60806040%02x0000000000000000", id),
		DeployedBytecode: fmt.Sprintf("0x6080%02xfe", id),
		StorageLayout:    layout,
	}
	f.byName[name] = contract
	return contract
}

func (f *fakeContracts) GetContract(_ context.Context, ref string) (*models.Contract, error) {
	if c, ok := f.byName[ref]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrContractNotFound, ref)
}

func (f *fakeContracts) GetValidationData(_ context.Context, contract *models.Contract, version models.Version) (*models.ValidationData, error) {
	return &models.ValidationData{
		Version: version,
		Layout:  contract.StorageLayout,
		Errors:  f.findings[contract.Name],
	}, nil
}

func (f *fakeContracts) match(initCode []byte) (*models.Contract, []byte, bool) {
	for _, c := range f.byName {
		creation := common.FromHex(c.Bytecode)
		if len(initCode) >= len(creation) && string(initCode[:len(creation)]) == string(creation) {
			return c, initCode[len(creation):], true
		}
	}
	return nil, nil, false
}

// memManifests keeps manifests as JSON, as the file repository does
type memManifests struct {
	mu    sync.Mutex
	lock  sync.Mutex
	data  map[uint64][]byte
	saves int
}

var _ usecase.ManifestRepository = (*memManifests)(nil)

func newMemManifests() *memManifests {
	return &memManifests{data: make(map[uint64][]byte)}
}

func (m *memManifests) Path(chainID uint64) string {
	return fmt.Sprintf(".treb/manifests/unknown-%d.json", chainID)
}

func (m *memManifests) Load(_ context.Context, chainID uint64) (*models.Manifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[chainID]
	if !ok {
		return models.NewManifest(), nil
	}
	var out models.Manifest
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	out.Normalize()
	return &out, nil
}

func (m *memManifests) Save(_ context.Context, chainID uint64, manifest *models.Manifest) error {
	raw, err := json.Marshal(manifest)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[chainID] = raw
	m.saves++
	return nil
}

func (m *memManifests) Lock(context.Context, uint64) (func(), error) {
	m.lock.Lock()
	return m.lock.Unlock, nil
}

// MockProgressSink records progress events
type MockProgressSink struct {
	mu     sync.Mutex
	events []usecase.ProgressEvent
}

func (m *MockProgressSink) OnProgress(_ context.Context, event usecase.ProgressEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *MockProgressSink) Info(string)  {}
func (m *MockProgressSink) Error(string) {}

func (m *MockProgressSink) stages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Stage)
	}
	return out
}

const (
	transparentProxyABI = `[{"type":"constructor","inputs":[{"name":"_logic","type":"address"},{"name":"admin_","type":"address"},{"name":"_data","type":"bytes"}],"stateMutability":"payable"}]`
	uupsProxyABI        = `[{"type":"constructor","inputs":[{"name":"implementation","type":"address"},{"name":"_data","type":"bytes"}],"stateMutability":"payable"}]`
	proxyAdminABI       = `[{"type":"function","name":"upgrade","inputs":[{"name":"proxy","type":"address"},{"name":"implementation","type":"address"}],"outputs":[],"stateMutability":"nonpayable"}]`
	beaconABI           = `[{"type":"constructor","inputs":[{"name":"implementation_","type":"address"}],"stateMutability":"nonpayable"},{"type":"function","name":"implementation","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"}]`
	beaconProxyABI      = `[{"type":"constructor","inputs":[{"name":"beacon","type":"address"},{"name":"data","type":"bytes"}],"stateMutability":"payable"}]`

	boxABI  = `[{"type":"function","name":"initialize","inputs":[{"name":"value","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"}]`
	uupsABI = `[{"type":"function","name":"initialize","inputs":[{"name":"value","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},` +
		`{"type":"function","name":"upgradeTo","inputs":[{"name":"newImplementation","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},` +
		`{"type":"function","name":"upgradeToAndCall","inputs":[{"name":"newImplementation","type":"address"},{"name":"data","type":"bytes"}],"outputs":[],"stateMutability":"payable"}]`
)

// boxLayout lays out uint256 variables in consecutive slots
func boxLayout(contract string, labels ...string) *models.StorageLayout {
	l := &models.StorageLayout{
		Types: map[string]models.TypeItem{
			"t_uint256": {Label: "uint256", NumberOfBytes: "32", Encoding: "inplace"},
		},
	}
	for i, label := range labels {
		l.Storage = append(l.Storage, models.StorageItem{
			Contract: contract,
			Label:    label,
			Type:     "t_uint256",
			Slot:     fmt.Sprintf("%d", i),
		})
	}
	return l
}

// harness wires every use case against the fake chain
type harness struct {
	chain     *fakeChain
	contracts *fakeContracts
	manifests *memManifests
	progress  *MockProgressSink

	store    *usecase.ManifestStore
	impls    *usecase.Implementations
	infra    *usecase.Infrastructure
	detector *usecase.DetectProxy

	deployProxy       *usecase.DeployProxy
	upgradeProxy      *usecase.UpgradeProxy
	deployBeacon      *usecase.DeployBeacon
	deployBeaconProxy *usecase.DeployBeaconProxy
	upgradeBeacon     *usecase.UpgradeBeacon
	forceImport       *usecase.ForceImport
	prepareUpgrade    *usecase.PrepareUpgrade
	validateUpgrade   *usecase.ValidateUpgrade
	validateImpl      *usecase.ValidateImplementation
}

func newHarness(t *testing.T) *harness {
	return newHarnessOnChain(t, 31337)
}

func newHarnessOnChain(t *testing.T, chainID uint64) *harness {
	t.Helper()
	contracts := newFakeContracts()
	contracts.add(config.DefaultTransparentProxy, transparentProxyABI, nil)
	contracts.add(config.DefaultUUPSProxy, uupsProxyABI, nil)
	contracts.add(config.DefaultProxyAdmin, proxyAdminABI, nil)
	contracts.add(config.DefaultBeacon, beaconABI, nil)
	contracts.add(config.DefaultBeaconProxy, beaconProxyABI, nil)
	contracts.add("Box", boxABI, boxLayout("Box", "a", "b"))
	contracts.add("BoxV2", boxABI, boxLayout("BoxV2", "a"))
	contracts.add("BoxV3", boxABI, boxLayout("BoxV3", "a", "b", "c"))
	contracts.add("BoxSwapped", boxABI, boxLayout("BoxSwapped", "b", "a"))
	contracts.add("UUPSBox", uupsABI, boxLayout("UUPSBox", "a"))
	contracts.add("UUPSBoxV2", uupsABI, boxLayout("UUPSBoxV2", "a", "b"))

	chain := newFakeChain(chainID, contracts)
	manifests := newMemManifests()
	progress := &MockProgressSink{}
	log := discardLogger()
	cfg := &config.RuntimeConfig{}

	confirmer := usecase.NewTxConfirmer(chain, log)
	store := usecase.NewManifestStore(manifests, chain, confirmer, log)
	impls := usecase.NewImplementations(contracts, contracts, abiadapter.NewArgEncoder(), store, chain, log)
	infra := usecase.NewInfrastructure(cfg, contracts, chain, confirmer, chain, log)
	detector := usecase.NewDetectProxy(chain, log)

	return &harness{
		chain:             chain,
		contracts:         contracts,
		manifests:         manifests,
		progress:          progress,
		store:             store,
		impls:             impls,
		infra:             infra,
		detector:          detector,
		deployProxy:       usecase.NewDeployProxy(impls, infra, store, detector, progress, log),
		upgradeProxy:      usecase.NewUpgradeProxy(impls, infra, store, detector, chain, progress, log),
		deployBeacon:      usecase.NewDeployBeacon(impls, infra, store, progress, log),
		deployBeaconProxy: usecase.NewDeployBeaconProxy(impls, infra, store, detector, progress, log),
		upgradeBeacon:     usecase.NewUpgradeBeacon(impls, infra, store, detector, progress, log),
		forceImport:       usecase.NewForceImport(impls, store, detector, chain, log),
		prepareUpgrade:    usecase.NewPrepareUpgrade(impls, detector, progress, log),
		validateUpgrade:   usecase.NewValidateUpgrade(impls, detector, log),
		validateImpl:      usecase.NewValidateImplementation(impls),
	}
}

// deployRaw creates a contract outside the manifest, as another tool would
func (h *harness) deployRaw(t *testing.T, name string, args ...interface{}) common.Address {
	t.Helper()
	contract := h.contracts.byName[name]
	encoded, err := contract.ABI.Pack("", args...)
	require.NoError(t, err)
	initCode := append(common.FromHex(contract.Bytecode), encoded...)
	tx, err := h.chain.SendTransaction(context.Background(), nil, initCode)
	require.NoError(t, err)
	return tx.ContractAddress
}

func (h *harness) manifest(t *testing.T) *models.Manifest {
	t.Helper()
	m, err := h.store.Load(context.Background())
	require.NoError(t, err)
	return m
}

func layoutOptions() layout.Options {
	return layout.Options{}
}

func selectorName(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	switch string(data[:4]) {
	case string(proxy.FuncUpgradeTo.Selector[:]):
		return "upgradeTo"
	case string(proxy.FuncUpgradeToAndCall.Selector[:]):
		return "upgradeToAndCall"
	case string(proxy.FuncAdminUpgrade.Selector[:]):
		return "upgrade"
	case string(proxy.FuncAdminUpgradeAndCall.Selector[:]):
		return "upgradeAndCall"
	default:
		return common.Bytes2Hex(data[:4])
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
