package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/config"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/usecase"
)

// artifact is the subset of a Foundry artifact this package reads
type artifact struct {
	ABI              json.RawMessage       `json:"abi"`
	Bytecode         bytecodeObject        `json:"bytecode"`
	DeployedBytecode bytecodeObject        `json:"deployedBytecode"`
	StorageLayout    *models.StorageLayout `json:"storageLayout"`
	AST              json.RawMessage       `json:"ast"`
	Metadata         struct {
		Settings struct {
			CompilationTarget map[string]string `json:"compilationTarget"`
		} `json:"settings"`
		Output struct {
			DevDoc map[string]any `json:"devdoc"`
		} `json:"output"`
	} `json:"metadata"`
}

type bytecodeObject struct {
	Object              string                            `json:"object"`
	LinkReferences      models.LinkReferences             `json:"linkReferences"`
	ImmutableReferences map[string][]models.BytecodeRange `json:"immutableReferences"`
}

// entry is an indexed contract together with the parts of its artifact only validation needs
type entry struct {
	contract *models.Contract
	ast      map[string]any
	devdoc   map[string]any
}

// Repository indexes the compiled contracts of a Foundry project
type Repository struct {
	projectRoot string
	outDir      string
	build       bool
	log         *slog.Logger

	mu      sync.RWMutex
	indexed bool
	byKey   map[string]*entry   // "path:Name"
	byName  map[string][]*entry // "Name"
	runs    models.ValidationRunData
}

var (
	_ usecase.ContractRepository     = (*Repository)(nil)
	_ usecase.ValidationDataProvider = (*Repository)(nil)
)

// NewRepository creates a repository over the artifacts of the configured profile
func NewRepository(cfg *config.RuntimeConfig, log *slog.Logger) *Repository {
	out := "out"
	if cfg.FoundryConfig != nil {
		if p, ok := cfg.FoundryConfig.Profile[cfg.Profile]; ok && p.OutPath != "" {
			out = p.OutPath
		} else if p, ok := cfg.FoundryConfig.Profile["default"]; ok && p.OutPath != "" {
			out = p.OutPath
		}
	}
	r := NewRepositoryAt(filepath.Join(cfg.ProjectRoot, out), log)
	r.projectRoot = cfg.ProjectRoot
	r.build = !cfg.SkipBuild
	return r
}

// NewRepositoryAt indexes an existing artifacts directory without building
func NewRepositoryAt(outDir string, log *slog.Logger) *Repository {
	return &Repository{
		projectRoot: filepath.Dir(outDir),
		outDir:      outDir,
		log:         log.With("component", "ArtifactRepository"),
		byKey:       make(map[string]*entry),
		byName:      make(map[string][]*entry),
	}
}

// Index builds the project if configured to and reads every artifact once
func (r *Repository) Index() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexed {
		return nil
	}

	if r.build {
		if err := r.runForgeBuild(); err != nil {
			return fmt.Errorf("failed to build contracts: %w", err)
		}
	}

	if _, err := os.Stat(r.outDir); os.IsNotExist(err) {
		return &domain.ConfigurationError{Message: fmt.Sprintf("artifacts directory %s not found, run forge build first", r.outDir)}
	}

	err := filepath.Walk(r.outDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".json" {
			return nil
		}
		return r.processArtifact(path)
	})
	if err != nil {
		return err
	}

	r.indexed = true
	r.log.Debug("indexed artifacts", "dir", r.outDir, "contracts", len(r.byKey))
	return nil
}

func (r *Repository) runForgeBuild() error {
	cmd := exec.Command("forge", "build", "--extra-output", "storageLayout")
	cmd.Dir = r.projectRoot

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("forge build failed: %w\nOutput: %s", err, string(output))
	}
	return nil
}

func (r *Repository) processArtifact(artifactPath string) error {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return err
	}

	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		// not every json file under out/ is an artifact
		r.log.Debug("skipping file", "path", artifactPath, "error", err)
		return nil
	}

	var contractName, sourceName string
	for source, name := range a.Metadata.Settings.CompilationTarget {
		sourceName, contractName = source, name
	}
	if contractName == "" {
		return nil
	}

	parsed, err := abi.JSON(bytes.NewReader(a.ABI))
	if err != nil {
		return fmt.Errorf("invalid ABI in %s: %w", artifactPath, err)
	}

	relPath, _ := filepath.Rel(r.projectRoot, artifactPath)
	contract := &models.Contract{
		Name:                   contractName,
		Path:                   sourceName,
		ArtifactPath:           relPath,
		ABI:                    &parsed,
		RawABI:                 a.ABI,
		Bytecode:               a.Bytecode.Object,
		DeployedBytecode:       a.DeployedBytecode.Object,
		LinkReferences:         a.Bytecode.LinkReferences,
		DeployedLinkReferences: a.DeployedBytecode.LinkReferences,
		ImmutableReferences:    a.DeployedBytecode.ImmutableReferences,
		HasConstructor:         declaresConstructor(a.ABI),
		StorageLayout:          a.StorageLayout,
	}

	e := &entry{contract: contract, devdoc: a.Metadata.Output.DevDoc}
	if len(a.AST) > 0 && string(a.AST) != "null" {
		if err := json.Unmarshal(a.AST, &e.ast); err != nil {
			r.log.Warn("ignoring unreadable AST", "path", artifactPath, "error", err)
		}
	}
	contract.UnsafeAllowAnnotations = contractAnnotations(e)

	r.byKey[contract.FullyQualifiedName()] = e
	r.byName[contractName] = append(r.byName[contractName], e)
	return nil
}

// GetContract resolves "Name" or "path/File.sol:Name"
func (r *Repository) GetContract(ctx context.Context, ref string) (*models.Contract, error) {
	e, err := r.lookup(ref)
	if err != nil {
		return nil, err
	}
	return e.contract, nil
}

func (r *Repository) lookup(ref string) (*entry, error) {
	if err := r.Index(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.byKey[ref]; ok {
		return e, nil
	}
	if strings.Contains(ref, ":") {
		return nil, fmt.Errorf("%w: %s", domain.ErrContractNotFound, ref)
	}

	candidates := r.byName[ref]
	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("%w: %s", domain.ErrContractNotFound, ref)
	case 1:
		return candidates[0], nil
	}

	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.contract.FullyQualifiedName())
	}
	sort.Strings(names)
	return nil, &domain.ConfigurationError{
		Message: fmt.Sprintf("contract name %s is ambiguous, use one of: %s", ref, strings.Join(names, ", ")),
	}
}

// GetValidationData returns the storage layout and static findings of a compiled contract.
// Results are cached per version.
func (r *Repository) GetValidationData(ctx context.Context, contract *models.Contract, version models.Version) (*models.ValidationData, error) {
	r.mu.RLock()
	cached, ok := r.runs.Lookup(version)
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	e, err := r.lookup(contract.FullyQualifiedName())
	if err != nil {
		return nil, err
	}
	if e.contract.StorageLayout == nil {
		return nil, &domain.ConfigurationError{
			Message: fmt.Sprintf("artifact of %s has no storage layout, add extra_output = [\"storageLayout\"] to foundry.toml", contract.FullyQualifiedName()),
		}
	}

	r.mu.RLock()
	findings := r.findings(e)
	r.mu.RUnlock()

	data := &models.ValidationData{
		Version: version,
		Layout:  e.contract.StorageLayout,
		Errors:  findings,
		Allowed: allowedKinds(e.contract.UnsafeAllowAnnotations),
	}

	r.mu.Lock()
	r.runs.Add(models.ValidationRun{version.WithoutMetadata: data})
	r.mu.Unlock()
	return data, nil
}

func declaresConstructor(rawABI json.RawMessage) bool {
	var entries []struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(rawABI, &entries); err != nil {
		return false
	}
	for _, e := range entries {
		if e.Type == "constructor" {
			return true
		}
	}
	return false
}
