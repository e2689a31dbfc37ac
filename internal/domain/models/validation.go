package models

import "fmt"

// ValidationErrorKind names an unsafe pattern found in an implementation
type ValidationErrorKind string

const (
	ErrorKindConstructor             ValidationErrorKind = "constructor"
	ErrorKindDelegateCall            ValidationErrorKind = "delegatecall"
	ErrorKindSelfDestruct            ValidationErrorKind = "selfdestruct"
	ErrorKindStateVariableAssignment ValidationErrorKind = "state-variable-assignment"
	ErrorKindStateVariableImmutable  ValidationErrorKind = "state-variable-immutable"
	ErrorKindExternalLibraryLinking  ValidationErrorKind = "external-library-linking"
	ErrorKindMissingPublicUpgradeTo  ValidationErrorKind = "missing-public-upgradeto"
)

// KnownErrorKinds lists every kind accepted in unsafe-allow lists
var KnownErrorKinds = []ValidationErrorKind{
	ErrorKindConstructor,
	ErrorKindDelegateCall,
	ErrorKindSelfDestruct,
	ErrorKindStateVariableAssignment,
	ErrorKindStateVariableImmutable,
	ErrorKindExternalLibraryLinking,
	ErrorKindMissingPublicUpgradeTo,
}

// ValidationError is a single unsafe pattern finding
type ValidationError struct {
	Kind     ValidationErrorKind `json:"kind"`
	Contract string              `json:"contract"`
	Src      string              `json:"src,omitempty"`
	Detail   string              `json:"detail,omitempty"`
}

func (e ValidationError) String() string {
	msg := fmt.Sprintf("%s: %s", e.Contract, describeKind(e.Kind))
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func describeKind(kind ValidationErrorKind) string {
	switch kind {
	case ErrorKindConstructor:
		return "Contract has a constructor"
	case ErrorKindDelegateCall:
		return "Use of delegatecall is not allowed"
	case ErrorKindSelfDestruct:
		return "Use of selfdestruct is not allowed"
	case ErrorKindStateVariableAssignment:
		return "Variable is assigned an initial value"
	case ErrorKindStateVariableImmutable:
		return "Variable is immutable"
	case ErrorKindExternalLibraryLinking:
		return "Linking external libraries is not yet supported"
	case ErrorKindMissingPublicUpgradeTo:
		return "Missing public upgradeTo function"
	default:
		return string(kind)
	}
}

// ValidationData is what the build collaborator knows about one compiled implementation
type ValidationData struct {
	Version Version           `json:"version"`
	Layout  *StorageLayout    `json:"layout,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
	// Allowed holds the unsafe patterns the contract itself declares as permitted
	Allowed []ValidationErrorKind `json:"allowed,omitempty"`
}

// ValidationRun is the output of one compiler invocation
type ValidationRun map[string]*ValidationData

// ValidationRunData accumulates validation runs across compiler invocations. Lookups are
// keyed by Version.WithoutMetadata and the most recent run wins.
type ValidationRunData struct {
	Runs []ValidationRun `json:"runs"`
}

// Add appends a run
func (d *ValidationRunData) Add(run ValidationRun) {
	d.Runs = append(d.Runs, run)
}

// Lookup returns the newest validation data recorded for the version
func (d *ValidationRunData) Lookup(version Version) (*ValidationData, bool) {
	for i := len(d.Runs) - 1; i >= 0; i-- {
		if data, ok := d.Runs[i][version.WithoutMetadata]; ok {
			return data, true
		}
	}
	return nil, false
}
