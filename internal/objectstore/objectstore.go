// Package objectstore implements the on-disk storage the engine consumes
// as an external collaborator: a content-addressed object store for
// operations, and a small set of named JSON snapshots for engine-owned
// state (the file-tree and its drivers).
package objectstore

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"crfs/internal/cmrdt"
	"crfs/internal/crfserr"
)

const (
	objectsDir = "objects"
	metaDir    = "meta"
	trashDir   = "trash"
)

// Store is rooted at a working directory's .crfs subdirectory.
type Store struct {
	root string
}

// New returns a Store rooted at crfsRoot, which must be the .crfs directory
// itself (not the working directory that contains it).
func New(crfsRoot string) *Store {
	return &Store{root: crfsRoot}
}

func hashBytes(buf []byte) cmrdt.Hash {
	return cmrdt.Hash(sha256.Sum256(buf))
}

func (s *Store) objectPath(h cmrdt.Hash) string {
	hex := h.String()
	return filepath.Join(s.root, objectsDir, hex[:2], hex[2:])
}

func (s *Store) metaPath(name string) string {
	return filepath.Join(s.root, metaDir, name+".json")
}

// Write stores buf under the SHA-256 of its content and returns that hash.
// Writing the same content twice is a no-op the second time.
func (s *Store) Write(buf []byte) (cmrdt.Hash, error) {
	h := hashBytes(buf)
	path := s.objectPath(h)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cmrdt.Hash{}, crfserr.FromIO(err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return cmrdt.Hash{}, crfserr.FromIO(err)
	}
	return h, nil
}

// WriteOp serializes op to its canonical JSON form and stores it under its
// own Hash(). The two are required to agree: cmrdt.HashOf marshals a value
// the same way json.Marshal does here, so op.Hash() already names the path
// this call writes to.
func (s *Store) WriteOp(op cmrdt.Op) error {
	b, err := json.Marshal(op)
	if err != nil {
		return crfserr.FromJSON(err)
	}
	h, err := s.Write(b)
	if err != nil {
		return err
	}
	if h != op.Hash() {
		return crfserr.New(crfserr.CodeInvalidData, "objectstore: op serialization does not hash to op.Hash()")
	}
	return nil
}

// ReadOp returns the raw JSON bytes stored under h.
func (s *Store) ReadOp(h cmrdt.Hash) ([]byte, error) {
	b, err := os.ReadFile(s.objectPath(h))
	if err != nil {
		return nil, crfserr.FromIO(err)
	}
	return b, nil
}

// HasOp reports whether an operation with hash h is already stored.
func (s *Store) HasOp(h cmrdt.Hash) bool {
	_, err := os.Stat(s.objectPath(h))
	return err == nil
}

// DeleteOp moves the operation's blob into .crfs/trash rather than removing
// it outright, mirroring the trash-based deletion contract spec.md §6
// requires of the object store (no Go trash library exists in the pack, so
// a plain rename into a staging directory stands in for it, same as
// internal/filetree's file-level trash move).
func (s *Store) DeleteOp(h cmrdt.Hash) error {
	src := s.objectPath(h)
	dst := filepath.Join(s.root, trashDir, fmt.Sprintf("%d-%s", time.Now().UnixNano(), h.String()))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return crfserr.FromIO(err)
	}
	if err := os.Rename(src, dst); err != nil {
		return crfserr.FromIO(err)
	}
	return nil
}

// ReadMeta loads and JSON-decodes the named snapshot into v.
func (s *Store) ReadMeta(name string, v any) error {
	b, err := os.ReadFile(s.metaPath(name))
	if err != nil {
		return crfserr.FromIO(err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return crfserr.FromJSON(err)
	}
	return nil
}

// WriteMeta JSON-encodes v and writes it to the named snapshot file.
func (s *Store) WriteMeta(name string, v any) error {
	path := s.metaPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return crfserr.FromIO(err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return crfserr.FromJSON(err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return crfserr.FromIO(err)
	}
	return nil
}

// HasMeta reports whether a named snapshot exists on disk.
func (s *Store) HasMeta(name string) bool {
	_, err := os.Stat(s.metaPath(name))
	return err == nil
}
