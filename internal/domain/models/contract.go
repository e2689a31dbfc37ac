package models

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract is a compiled contract as supplied by the build collaborator
type Contract struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	ArtifactPath string `json:"artifactPath,omitempty"`

	ABI    *abi.ABI        `json:"-"`
	RawABI json.RawMessage `json:"abi,omitempty"`

	// Bytecode and DeployedBytecode are hex encoded and may still contain
	// library placeholders described by the link references.
	Bytecode               string                     `json:"bytecode"`
	DeployedBytecode       string                     `json:"deployedBytecode"`
	LinkReferences         LinkReferences             `json:"linkReferences,omitempty"`
	DeployedLinkReferences LinkReferences             `json:"deployedLinkReferences,omitempty"`
	ImmutableReferences    map[string][]BytecodeRange `json:"immutableReferences,omitempty"`
	HasConstructor         bool                       `json:"hasConstructor,omitempty"`
	StorageLayout          *StorageLayout             `json:"storageLayout,omitempty"`
	UnsafeAllowAnnotations []string                   `json:"unsafeAllowAnnotations,omitempty"`
}

// LinkReferences maps source file -> library name -> placeholder locations
type LinkReferences map[string]map[string][]BytecodeRange

// BytecodeRange is a byte range inside a bytecode object
type BytecodeRange struct {
	Start  uint `json:"start"`
	Length uint `json:"length"`
}

// FullyQualifiedName returns "path:Name" when the source path is known
func (c *Contract) FullyQualifiedName() string {
	if c.Path == "" {
		return c.Name
	}
	return fmt.Sprintf("%s:%s", c.Path, c.Name)
}

// Libraries lists the "file:Library" names the contract must be linked against
func (r LinkReferences) Libraries() []string {
	var out []string
	for file, libs := range r {
		for lib := range libs {
			out = append(out, fmt.Sprintf("%s:%s", file, lib))
		}
	}
	sort.Strings(out)
	return out
}

// HasMethod reports whether the contract ABI declares a function with the given signature,
// e.g. "upgradeTo(address)".
func (c *Contract) HasMethod(signature string) bool {
	if c.ABI == nil {
		return false
	}
	for _, m := range c.ABI.Methods {
		if m.Sig == signature {
			return true
		}
	}
	return false
}
