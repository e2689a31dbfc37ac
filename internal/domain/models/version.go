package models

// Version identifies a compiled implementation together with its constructor arguments
type Version struct {
	// Key is the manifest deduplication key: keccak256(linked runtime bytecode || constructor args)
	Key string `json:"key"`
	// WithoutMetadata ignores the trailing compiler metadata so that rebuilds which only
	// change source comments or paths still resolve the same validation data.
	WithoutMetadata string `json:"withoutMetadata"`
}

// String returns the manifest key
func (v Version) String() string {
	return v.Key
}
