// Package version fingerprints compiled implementations.
//
// A version is keccak256 over the linked runtime bytecode followed by the ABI encoded
// constructor arguments, so a different library address or constructor argument is a
// different version.
package version

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
)

// Fingerprint is the result of fingerprinting a contract for deployment
type Fingerprint struct {
	Version models.Version
	// Creation is the linked creation bytecode without constructor arguments
	Creation []byte
	// Runtime is the linked runtime bytecode
	Runtime []byte
	// ConstructorArgs are the ABI encoded constructor arguments
	ConstructorArgs []byte
}

// InitCode returns the creation bytecode followed by the constructor arguments
func (f *Fingerprint) InitCode() []byte {
	out := make([]byte, 0, len(f.Creation)+len(f.ConstructorArgs))
	out = append(out, f.Creation...)
	return append(out, f.ConstructorArgs...)
}

// BytecodeHash is the hash of the creation code recorded in manifest entries
func (f *Fingerprint) BytecodeHash() string {
	return crypto.Keccak256Hash(f.InitCode()).Hex()
}

// ForContract links the contract against libs and fingerprints it with the encoded
// constructor arguments.
func ForContract(contract *models.Contract, libs map[string]common.Address, constructorArgs []byte) (*Fingerprint, error) {
	creation, err := Link(contract.Bytecode, contract.LinkReferences, libs)
	if err != nil {
		return nil, fmt.Errorf("failed to link creation bytecode of %s: %w", contract.Name, err)
	}
	runtime, err := Link(contract.DeployedBytecode, contract.DeployedLinkReferences, libs)
	if err != nil {
		return nil, fmt.Errorf("failed to link runtime bytecode of %s: %w", contract.Name, err)
	}
	return &Fingerprint{
		Version:         Compute(runtime, constructorArgs),
		Creation:        creation,
		Runtime:         runtime,
		ConstructorArgs: constructorArgs,
	}, nil
}

// Compute derives the version of a linked runtime bytecode and its constructor arguments
func Compute(linkedRuntime []byte, constructorArgs []byte) models.Version {
	return models.Version{
		Key:             hashHex(linkedRuntime, constructorArgs),
		WithoutMetadata: hashHex(StripMetadata(linkedRuntime), constructorArgs),
	}
}

func hashHex(parts ...[]byte) string {
	return hex.EncodeToString(crypto.Keccak256(parts...))
}

// Link replaces library placeholders in a hex bytecode object with concrete addresses.
// Libraries are looked up by "file:Name" first and then by bare name.
func Link(bytecodeHex string, refs models.LinkReferences, libs map[string]common.Address) ([]byte, error) {
	code := strings.TrimPrefix(bytecodeHex, "0x")
	if len(refs) > 0 {
		buf := []byte(code)
		for file, byName := range refs {
			for name, ranges := range byName {
				addr, ok := libs[file+":"+name]
				if !ok {
					addr, ok = libs[name]
				}
				if !ok {
					return nil, fmt.Errorf("missing address for library %s:%s", file, name)
				}
				encoded := hex.EncodeToString(addr.Bytes())
				for _, r := range ranges {
					start, end := int(r.Start)*2, int(r.Start+r.Length)*2
					if end > len(buf) || r.Length != common.AddressLength {
						return nil, fmt.Errorf("invalid link reference for %s:%s at %d", file, name, r.Start)
					}
					copy(buf[start:end], encoded)
				}
			}
		}
		code = string(buf)
	}
	if idx := strings.Index(code, "__"); idx >= 0 {
		return nil, fmt.Errorf("bytecode contains an unresolved library placeholder at offset %d", idx/2)
	}
	out, err := hex.DecodeString(code)
	if err != nil {
		return nil, fmt.Errorf("invalid bytecode: %w", err)
	}
	return out, nil
}

// StripMetadata removes the CBOR encoded compiler metadata appended by solc. The last two
// bytes hold the metadata length; input that does not end in a well formed CBOR map is
// returned unchanged.
func StripMetadata(code []byte) []byte {
	if len(code) < 2 {
		return code
	}
	n := int(code[len(code)-2])<<8 | int(code[len(code)-1])
	start := len(code) - 2 - n
	if n == 0 || start < 0 {
		return code
	}
	// CBOR map header with 1 to 5 entries
	if header := code[start]; header < 0xa1 || header > 0xa5 {
		return code
	}
	return code[:start]
}
