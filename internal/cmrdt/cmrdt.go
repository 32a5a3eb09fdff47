// Package cmrdt provides the operation-based CRDT framework shared by
// every driver: hash-based operation identity, causal history, and the
// prep/apply/precond contract each concrete CRDT object implements.
//
// Unlike the reference implementation's trait-based design (a single
// generic Object trait parametrized over StateFormat/DiskFormat/Op), this
// package does not force docdoc and filetree through one parametrized Go
// interface: each owns its concrete state and operation types and
// implements the same prep/apply/precond shape directly. Op is the one
// interface genuinely shared across drivers, since the object store and
// sync driver only need Hash()/Driver() to persist and route operations
// without caring about their concrete shape.
package cmrdt

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"crfs/internal/driverid"
)

// Hash is the SHA-256 digest of an operation's canonical JSON encoding. It
// is the sole identity of an operation and doubles as its content address
// in the object store.
type Hash [32]byte

// HashOf computes the canonical hash of v by marshaling it to JSON.
// Encoding/json's struct-field order is stable (declaration order), so
// this is deterministic across calls for a given Go type -- the same
// bijectivity guarantee the source gets from serde_json.
func HashOf(v any) Hash {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("cmrdt: operation does not serialize: %v", err))
	}
	return sha256.Sum256(b)
}

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether h is the zero hash (never a legitimate operation
// hash, since that would require a preimage of 32 zero bytes).
func (h Hash) IsZero() bool { return h == Hash{} }

// MarshalJSON renders h as a hex string rather than the default array of
// 32 numbers, so meta snapshots (.crfs/meta/*.json) stay compact and
// readable. It also applies wherever a Hash is a field of an operation
// (docdoc.DocOp.Dep), so that hex form is part of the operation's
// canonical JSON and therefore of the hash HashOf computes for it.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON parses the hex string produced by MarshalJSON.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("cmrdt: malformed hash %q: %w", s, err)
	}
	if len(b) != len(h) {
		return fmt.Errorf("cmrdt: hash %q has wrong length", s)
	}
	copy(h[:], b)
	return nil
}

// Op is satisfied by every concrete operation type in every driver. It is
// the shared surface the object store and sync driver need to persist and
// route operations without knowing their concrete shape.
type Op interface {
	Hash() Hash
	Driver() driverid.ID
}

// HistoryItem is an entry in an object's causal history: either the hash
// of an applied operation, or nil for the sentinel at index 0.
type HistoryItem = *Hash

// History is a zero-indexed vector of applied-operation hashes. Entry 0
// is always the nil sentinel; K is the current logical clock, equal to
// len(Data)-1.
type History struct {
	Data []HistoryItem
	K    int
}

// NewHistory returns a fresh history containing only the sentinel.
func NewHistory() *History {
	return &History{Data: []HistoryItem{nil}}
}

// Add appends item to the history and returns the new logical clock K.
func (h *History) Add(item HistoryItem) int {
	h.Data = append(h.Data, item)
	h.K++
	if len(h.Data) != h.K+1 {
		panic("cmrdt: History invariant violated")
	}
	return h.K
}

// Contains reports whether hash appears anywhere in the history.
func (h *History) Contains(hash Hash) bool {
	for _, item := range h.Data {
		if item != nil && *item == hash {
			return true
		}
	}
	return false
}

// KContains reports whether hash appears in the history up to and
// including index k. Panics if k exceeds the current clock.
func (h *History) KContains(hash Hash, k int) bool {
	if k > h.K {
		panic("cmrdt: KContains - k exceeds current clock")
	}
	for _, item := range h.Data[:k+1] {
		if item != nil && *item == hash {
			return true
		}
	}
	return false
}

// HappenedBefore reports whether hash1 occupies an earlier index than
// hash2 in this history. Panics if hash2 is not present.
func (h *History) HappenedBefore(hash1, hash2 Hash) bool {
	k2 := -1
	for i, item := range h.Data {
		if item != nil && *item == hash2 {
			k2 = i
			break
		}
	}
	if k2 < 0 {
		panic("cmrdt: HappenedBefore - hash2 not found in history")
	}
	if k2 == 0 {
		return false
	}
	return h.KContains(hash1, k2-1)
}

// GetHashes returns every operation hash recorded in the history.
func (h *History) GetHashes() map[Hash]bool {
	out := make(map[Hash]bool)
	for _, item := range h.Data {
		if item != nil {
			out[*item] = true
		}
	}
	return out
}
