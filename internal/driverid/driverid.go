// Package driverid defines the identifier used to route operations to
// either the file-tree CRDT itself or one of its per-file drivers. It is
// split out from internal/cmrdt and internal/filetree so that both can
// depend on it without an import cycle.
package driverid

import (
	"fmt"
)

// Kind distinguishes the file-tree sentinel from a concrete per-file driver.
type Kind int

const (
	KindFileTree Kind = iota
	KindDriver
)

// ID names either the file-tree component itself or a specific driver
// instance, unique within a filesystem.
type ID struct {
	Kind Kind
	N    uint64
}

// FileTree is the sentinel ID for the file-tree component.
var FileTree = ID{Kind: KindFileTree}

// Driver builds a driver ID for the given numeric tag.
func Driver(n uint64) ID { return ID{Kind: KindDriver, N: n} }

func (id ID) String() string {
	if id.Kind == KindFileTree {
		return "FileTree"
	}
	return fmt.Sprintf("Driver(%d)", id.N)
}

// IsFileTree reports whether id is the file-tree sentinel.
func (id ID) IsFileTree() bool { return id.Kind == KindFileTree }

// MarshalText renders id as "kind:n" so it can be used as a JSON object key
// (encoding/json only accepts string-keyed maps unless the key type
// implements TextMarshaler) when persisting Manager.State/Drivers snapshots.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("%d:%d", id.Kind, id.N)), nil
}

// UnmarshalText parses the "kind:n" form written by MarshalText.
func (id *ID) UnmarshalText(text []byte) error {
	var kind Kind
	var n uint64
	if _, err := fmt.Sscanf(string(text), "%d:%d", &kind, &n); err != nil {
		return fmt.Errorf("driverid: malformed ID %q: %w", text, err)
	}
	id.Kind = kind
	id.N = n
	return nil
}
