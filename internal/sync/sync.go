// Package sync implements the sync driver (C6): merging with a remote
// coordinator by exchanging operation-hash sets, never file content
// itself, then feeding anything newly pulled back through the file-tree
// CRDT to reach convergence.
package sync

import (
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"

	"crfs/internal/cmrdt"
	"crfs/internal/crfserr"
	"crfs/internal/filetree"
	"crfs/internal/objectstore"
)

// Coordinator is the wire-protocol collaborator this driver talks to.
// internal/coordclient provides a concrete HTTP implementation; spec.md §6
// describes the wire shape this interface abstracts over.
type Coordinator interface {
	FetchState(userID, fsID uuid.UUID) (map[cmrdt.Hash]bool, error)
	PushState(userID, fsID uuid.UUID, hashes map[cmrdt.Hash]bool) error
	FetchOp(fsID uuid.UUID, h cmrdt.Hash) ([]byte, error)
	PushOp(fsID uuid.UUID, h cmrdt.Hash, data []byte) error
}

// Result reports the outcome of one sync pass.
type Result struct {
	// Pulled is the set of hashes fetched from the coordinator, verified,
	// and persisted to the object store.
	Pulled map[cmrdt.Hash]bool
	// Unapplied counts operations that could not be used for any reason:
	// download failure, hash mismatch, malformed JSON, or a precondition
	// (dep) that never arrived. Per spec.md §4.6, sync still completes
	// successfully when this is nonzero.
	Unapplied int
}

// Driver performs hash-set exchange against a single Coordinator for one
// user/filesystem pair.
type Driver struct {
	Coord  Coordinator
	Store  *objectstore.Store
	UserID uuid.UUID
	FSID   uuid.UUID
}

// New returns a Driver bound to coord for the given user/filesystem.
func New(coord Coordinator, store *objectstore.Store, userID, fsID uuid.UUID) *Driver {
	return &Driver{Coord: coord, Store: store, UserID: userID, FSID: fsID}
}

// Exchange performs steps 1-3 of the sync contract: fetch the remote hash
// set, push every local-only hash (aborting the whole exchange if an
// upload fails, per spec.md §4.6's "upload failure aborts the push at that
// op"), then pull every remote-only hash, verifying each download's hash
// before persisting it and simply skipping (and counting) anything that
// fails rather than aborting the whole pull.
func (d *Driver) Exchange(localHashes map[cmrdt.Hash]bool) (*Result, error) {
	remoteHashes, err := d.Coord.FetchState(d.UserID, d.FSID)
	if err != nil {
		return nil, fmt.Errorf("sync: fetch remote state: %w", err)
	}

	toPush := setDiff(localHashes, remoteHashes)
	for h := range toPush {
		if err := d.pushOp(h); err != nil {
			return nil, fmt.Errorf("sync: push %s: %w", h, err)
		}
	}
	if len(toPush) > 0 {
		if err := d.Coord.PushState(d.UserID, d.FSID, toPush); err != nil {
			return nil, fmt.Errorf("sync: push state: %w", err)
		}
	}

	toPull := setDiff(remoteHashes, localHashes)
	result := &Result{Pulled: make(map[cmrdt.Hash]bool, len(toPull))}
	for h := range toPull {
		if err := d.pullOp(h); err != nil {
			result.Unapplied++
			continue
		}
		result.Pulled[h] = true
	}

	return result, nil
}

func (d *Driver) pushOp(h cmrdt.Hash) error {
	data, err := d.Store.ReadOp(h)
	if err != nil {
		return err
	}
	return d.Coord.PushOp(d.FSID, h, data)
}

func (d *Driver) pullOp(h cmrdt.Hash) error {
	data, err := d.Coord.FetchOp(d.FSID, h)
	if err != nil {
		return err
	}
	if cmrdt.Hash(sha256.Sum256(data)) != h {
		return crfserr.New(crfserr.CodeInvalidData, "sync: downloaded operation does not match its hash")
	}
	if _, err := d.Store.Write(data); err != nil {
		return err
	}
	return nil
}

func setDiff(a, b map[cmrdt.Hash]bool) map[cmrdt.Hash]bool {
	out := make(map[cmrdt.Hash]bool)
	for h := range a {
		if !b[h] {
			out[h] = true
		}
	}
	return out
}

// Run performs a full sync cycle for mgr: bring local state up to date,
// exchange hash sets with the coordinator, apply anything newly pulled
// through the file tree (which dispatches to the right driver), and
// persist. Mirrors original_source's SystemConfig::sync().
func Run(mgr *filetree.Manager, store *objectstore.Store, driver *Driver) (*Result, error) {
	var emitErr error
	if err := mgr.Update(func(op cmrdt.Op) {
		if emitErr == nil {
			emitErr = store.WriteOp(op)
		}
	}); err != nil {
		return nil, fmt.Errorf("sync: local update: %w", err)
	}
	if emitErr != nil {
		return nil, fmt.Errorf("sync: persist local op: %w", emitErr)
	}

	result, err := driver.Exchange(mgr.AllHashes())
	if err != nil {
		return nil, err
	}

	if len(result.Pulled) > 0 {
		ops := make([]cmrdt.Op, 0, len(result.Pulled))
		for h := range result.Pulled {
			data, err := store.ReadOp(h)
			if err != nil {
				result.Unapplied++
				continue
			}
			op, ok := filetree.DecodeOp(data)
			if !ok {
				result.Unapplied++
				continue
			}
			ops = append(ops, op)
		}

		applied := mgr.ApplyMany(ops)
		result.Unapplied += len(ops) - len(applied)

		for _, id := range mgr.ActiveDrivers() {
			if err := mgr.WriteCanonical(id); err != nil {
				return nil, fmt.Errorf("sync: write canonical form: %w", err)
			}
		}
	}

	if err := mgr.WriteOut(store); err != nil {
		return nil, fmt.Errorf("sync: persist file-tree snapshot: %w", err)
	}

	return result, nil
}
