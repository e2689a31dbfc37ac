package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/config"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
)

// DeployFunc performs a contract creation and returns the pending deployment. It must not
// wait for the transaction to be mined.
type DeployFunc func(ctx context.Context) (*models.Deployment, error)

// FetchOptions control reuse of a cached deployment
type FetchOptions struct {
	Redeploy domain.RedeployMode
	Wait     WaitOptions
}

// ManifestStore is the network scoped registry of deployments. Every mutation locks the
// manifest, reloads it from disk, merges a single record and writes it back.
type ManifestStore struct {
	repo      ManifestRepository
	network   NetworkProvider
	confirmer *TxConfirmer
	log       *slog.Logger

	mu      sync.Mutex
	chainID uint64
}

// NewManifestStore creates a new ManifestStore
func NewManifestStore(repo ManifestRepository, network NetworkProvider, confirmer *TxConfirmer, log *slog.Logger) *ManifestStore {
	return &ManifestStore{
		repo:      repo,
		network:   network,
		confirmer: confirmer,
		log:       log.With("component", "ManifestStore"),
	}
}

// ChainID returns the chain id of the connected network, queried once
func (s *ManifestStore) ChainID(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chainID != 0 {
		return s.chainID, nil
	}
	id, err := s.network.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get chain id: %w", err)
	}
	s.chainID = id
	return id, nil
}

// Path returns the manifest file of the connected network
func (s *ManifestStore) Path(ctx context.Context) (string, error) {
	chainID, err := s.ChainID(ctx)
	if err != nil {
		return "", err
	}
	return s.repo.Path(chainID), nil
}

// Load reads the manifest of the connected network
func (s *ManifestStore) Load(ctx context.Context) (*models.Manifest, error) {
	chainID, err := s.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.Load(ctx, chainID)
}

// mutate runs fn on a freshly loaded manifest under the manifest lock and saves the result
// when fn reports a change.
func (s *ManifestStore) mutate(ctx context.Context, fn func(m *models.Manifest) (bool, error)) error {
	chainID, err := s.ChainID(ctx)
	if err != nil {
		return err
	}
	unlock, err := s.repo.Lock(ctx, chainID)
	if err != nil {
		return fmt.Errorf("failed to lock manifest: %w", err)
	}
	defer unlock()

	m, err := s.repo.Load(ctx, chainID)
	if err != nil {
		return err
	}
	changed, err := fn(m)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return s.repo.Save(ctx, chainID, m)
}

// recordSlot addresses one deployment record inside a manifest
type recordSlot struct {
	name   string
	get    func(m *models.Manifest) *models.Deployment
	set    func(m *models.Manifest, d models.Deployment)
	remove func(m *models.Manifest)
}

func implSlot(version models.Version, layout *models.StorageLayout) recordSlot {
	return recordSlot{
		name: "implementation " + version.Key,
		get: func(m *models.Manifest) *models.Deployment {
			if impl, ok := m.Impls[version.Key]; ok {
				return &impl.Deployment
			}
			return nil
		},
		set: func(m *models.Manifest, d models.Deployment) {
			rec := &models.ImplDeployment{Deployment: d, Layout: layout}
			if prev, ok := m.Impls[version.Key]; ok {
				if rec.Layout == nil {
					rec.Layout = prev.Layout
				}
				if !models.SameAddress(prev.Address, d.Address) {
					rec.AllAddresses = lo.Uniq(append(prev.Addresses(), d.Address))
				} else {
					rec.AllAddresses = prev.AllAddresses
				}
			}
			m.Impls[version.Key] = rec
		},
		remove: func(m *models.Manifest) {
			delete(m.Impls, version.Key)
		},
	}
}

var adminSlot = recordSlot{
	name: "admin",
	get: func(m *models.Manifest) *models.Deployment {
		return m.Admin
	},
	set: func(m *models.Manifest, d models.Deployment) {
		m.Admin = &d
	},
	remove: func(m *models.Manifest) {
		m.Admin = nil
	},
}

// FetchOrDeploy returns the implementation recorded for version, deploying it first when
// there is no usable record. A cached record whose address still has code is returned
// without sending any transaction.
func (s *ManifestStore) FetchOrDeploy(ctx context.Context, version models.Version, layout *models.StorageLayout, deploy DeployFunc, opts FetchOptions) (*models.ImplDeployment, error) {
	slot := implSlot(version, layout)
	if _, err := s.fetchOrDeploy(ctx, slot, deploy, opts); err != nil {
		return nil, err
	}

	var rec *models.ImplDeployment
	err := s.mutate(ctx, func(m *models.Manifest) (bool, error) {
		impl, ok := m.Impls[version.Key]
		if !ok {
			return false, fmt.Errorf("%w: implementation %s disappeared from the manifest", domain.ErrNotFound, version.Key)
		}
		rec = impl
		// older records may lack the layout
		if impl.Layout == nil && layout != nil {
			impl.Layout = layout
			return true, nil
		}
		return false, nil
	})
	return rec, err
}

// FetchOrDeployAdmin returns the shared ProxyAdmin of the network, deploying it when missing
func (s *ManifestStore) FetchOrDeployAdmin(ctx context.Context, deploy DeployFunc, opts FetchOptions) (*models.Deployment, error) {
	opts.Redeploy = domain.RedeployOnChange
	return s.fetchOrDeploy(ctx, adminSlot, deploy, opts)
}

func (s *ManifestStore) fetchOrDeploy(ctx context.Context, slot recordSlot, deploy DeployFunc, opts FetchOptions) (*models.Deployment, error) {
	chainID, err := s.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	unlock, err := s.repo.Lock(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock manifest: %w", err)
	}
	defer unlock()

	m, err := s.repo.Load(ctx, chainID)
	if err != nil {
		return nil, err
	}

	if cached := slot.get(m); cached != nil && opts.Redeploy != domain.RedeployAlways {
		rec, err := s.resume(ctx, chainID, slot, m, *cached, opts)
		if err != nil || rec != nil {
			return rec, err
		}
	} else if cached == nil && opts.Redeploy == domain.RedeployNever {
		return nil, fmt.Errorf("%w: %s was not previously deployed and redeployment is disabled", domain.ErrNotFound, slot.name)
	}

	pending, err := deploy(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Info("deployed", "record", slot.name, "address", pending.Address, "tx", pending.TxHash)

	// persisted before waiting so an interrupted run resumes instead of deploying again
	slot.set(m, *pending)
	if err := s.repo.Save(ctx, chainID, m); err != nil {
		return nil, err
	}

	if err := s.waitDeployment(ctx, *pending, opts.Wait); err != nil {
		var timedOut *domain.TimedOutError
		if !errors.As(err, &timedOut) {
			s.dropRecord(ctx, chainID, slot, *pending)
		}
		return nil, err
	}
	return pending, nil
}

// resume validates a cached record. It returns the record when it is usable, nil when the
// record was dropped and a fresh deployment is needed.
func (s *ManifestStore) resume(ctx context.Context, chainID uint64, slot recordSlot, m *models.Manifest, cached models.Deployment, opts FetchOptions) (*models.Deployment, error) {
	code, err := s.network.CodeAt(ctx, common.HexToAddress(cached.Address))
	if err != nil {
		return nil, fmt.Errorf("failed to get code at %s: %w", cached.Address, err)
	}
	if len(code) > 0 {
		s.log.Debug("reusing deployment", "record", slot.name, "address", cached.Address)
		return &cached, nil
	}

	if cached.TxHash != "" {
		known, err := s.network.TransactionKnown(ctx, common.HexToHash(cached.TxHash))
		if err != nil {
			return nil, fmt.Errorf("failed to look up transaction %s: %w", cached.TxHash, err)
		}
		if known {
			s.log.Info("resuming deployment", "record", slot.name, "address", cached.Address, "tx", cached.TxHash)
			err := s.waitDeployment(ctx, cached, opts.Wait)
			if err == nil {
				return &cached, nil
			}
			if !deploymentFailed(err) {
				return nil, err
			}
			s.log.Warn("dropping failed deployment from manifest", "record", slot.name, "address", cached.Address, "tx", cached.TxHash, "error", err)
			slot.remove(m)
			if opts.Redeploy == domain.RedeployNever {
				if saveErr := s.repo.Save(ctx, chainID, m); saveErr != nil {
					s.log.Warn("failed to remove failed deployment from manifest", "error", saveErr)
				}
				return nil, err
			}
			return nil, nil
		}
	}

	if !config.IsDevChainID(chainID) {
		return nil, &domain.InvalidDeploymentError{Address: cached.Address, TxHash: cached.TxHash}
	}
	if opts.Redeploy == domain.RedeployNever {
		return nil, fmt.Errorf("%w: %s has no code at %s and redeployment is disabled", domain.ErrNotFound, slot.name, cached.Address)
	}
	s.log.Warn("dropping stale deployment from manifest of development network", "record", slot.name, "address", cached.Address)
	slot.remove(m)
	return nil, nil
}

// deploymentFailed reports whether a wait ended with the deployment mined but unusable
func deploymentFailed(err error) bool {
	var invalid *domain.InvalidDeploymentError
	return errors.Is(err, domain.ErrTransactionFailed) || errors.As(err, &invalid)
}

func (s *ManifestStore) waitDeployment(ctx context.Context, d models.Deployment, opts WaitOptions) error {
	if d.TxHash != "" {
		opts.Address = d.Address
		if _, err := s.confirmer.Wait(ctx, common.HexToHash(d.TxHash), opts); err != nil {
			return err
		}
	}
	code, err := s.network.CodeAt(ctx, common.HexToAddress(d.Address))
	if err != nil {
		return fmt.Errorf("failed to get code at %s: %w", d.Address, err)
	}
	if len(code) == 0 {
		return &domain.InvalidDeploymentError{Address: d.Address, TxHash: d.TxHash}
	}
	return nil
}

// dropRecord removes a record whose deployment failed, unless it was replaced meanwhile
func (s *ManifestStore) dropRecord(ctx context.Context, chainID uint64, slot recordSlot, d models.Deployment) {
	m, err := s.repo.Load(ctx, chainID)
	if err != nil {
		s.log.Warn("failed to reload manifest", "error", err)
		return
	}
	if cur := slot.get(m); cur != nil && cur.TxHash == d.TxHash {
		slot.remove(m)
		if err := s.repo.Save(ctx, chainID, m); err != nil {
			s.log.Warn("failed to remove failed deployment from manifest", "error", err)
		}
	}
}

// ImportImpl records an implementation that was deployed outside this tool. A version
// already known at another address keeps its address and gains this one in AllAddresses.
func (s *ManifestStore) ImportImpl(ctx context.Context, version models.Version, layout *models.StorageLayout, d models.Deployment) (*models.ImplDeployment, error) {
	var rec *models.ImplDeployment
	err := s.mutate(ctx, func(m *models.Manifest) (bool, error) {
		prev, ok := m.Impls[version.Key]
		if !ok {
			rec = &models.ImplDeployment{Deployment: d, Layout: layout}
			m.Impls[version.Key] = rec
			return true, nil
		}
		rec = prev
		changed := false
		if !lo.ContainsBy(prev.Addresses(), func(a string) bool { return models.SameAddress(a, d.Address) }) {
			prev.AllAddresses = lo.Uniq(append(prev.Addresses(), d.Address))
			changed = true
		}
		if prev.Layout == nil && layout != nil {
			prev.Layout = layout
			changed = true
		}
		return changed, nil
	})
	return rec, err
}

// AddProxy registers a proxy. A proxy is never re-registered under another kind.
func (s *ManifestStore) AddProxy(ctx context.Context, proxy models.ProxyDeployment) error {
	return s.mutate(ctx, func(m *models.Manifest) (bool, error) {
		existing, idx := m.FindProxy(proxy.Address)
		if existing == nil {
			m.Proxies = append(m.Proxies, proxy)
			return true, nil
		}
		if existing.Kind != proxy.Kind {
			return false, &domain.KindMismatchError{
				Address:  proxy.Address,
				Detected: kindFromManifest(proxy.Kind),
				Expected: string(existing.Kind) + " (as registered in the manifest)",
			}
		}
		if proxy.TxHash == "" {
			proxy.TxHash = existing.TxHash
		}
		m.Proxies[idx] = proxy
		return true, nil
	})
}

// SetAdmin registers an existing ProxyAdmin. A different admin that still has code is kept.
func (s *ManifestStore) SetAdmin(ctx context.Context, admin models.Deployment) error {
	return s.mutate(ctx, func(m *models.Manifest) (bool, error) {
		if m.Admin != nil {
			if models.SameAddress(m.Admin.Address, admin.Address) {
				return false, nil
			}
			code, err := s.network.CodeAt(ctx, common.HexToAddress(m.Admin.Address))
			if err != nil {
				return false, fmt.Errorf("failed to get code at %s: %w", m.Admin.Address, err)
			}
			if len(code) > 0 {
				s.log.Info("manifest already has an admin, not registering another", "admin", m.Admin.Address, "ignored", admin.Address)
				return false, nil
			}
		}
		m.Admin = &admin
		return true, nil
	})
}

// GetDeploymentFromAddress returns the implementation record deployed at address
func (s *ManifestStore) GetDeploymentFromAddress(ctx context.Context, address common.Address) (*models.ImplDeployment, error) {
	m, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if _, impl := m.FindImplByAddress(address.Hex()); impl != nil {
		return impl, nil
	}
	return nil, &domain.DeploymentNotFoundError{
		Address: address.Hex(),
		Hint:    "If the implementation was deployed outside this tool, register it with force-import",
	}
}

// GetProxyFromAddress returns the registered proxy at address
func (s *ManifestStore) GetProxyFromAddress(ctx context.Context, address common.Address) (*models.ProxyDeployment, error) {
	m, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if proxy, _ := m.FindProxy(address.Hex()); proxy != nil {
		return proxy, nil
	}
	return nil, &domain.DeploymentNotFoundError{
		Address: address.Hex(),
		Hint:    "Register the proxy with force-import before upgrading it",
	}
}

func kindFromManifest(kind models.ManifestKind) domain.ProxyKind {
	switch kind {
	case models.ManifestKindTransparent:
		return domain.ProxyKindTransparent
	case models.ManifestKindUUPS:
		return domain.ProxyKindUUPS
	case models.ManifestKindBeacon:
		return domain.ProxyKindBeaconProxy
	default:
		return domain.ProxyKindNone
	}
}
