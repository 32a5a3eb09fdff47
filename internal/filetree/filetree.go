// Package filetree implements the file-tree CRDT (C5): the top-level
// CmRDT whose state tracks which files exist, under which paths, each
// backed by a per-file document driver (internal/docdoc, bridged to
// Markdown by internal/mdbridge).
package filetree

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"crfs/internal/cmrdt"
	"crfs/internal/docdoc"
	"crfs/internal/driverid"
	"crfs/internal/ignore"
	"crfs/internal/mdast"
	"crfs/internal/mdbridge"
	"crfs/internal/yata"
)

// DriverKind names which per-file CRDT a driver instance runs. This
// engine's data model is scoped to Markdown, so there is exactly one.
type DriverKind int

// DriverMarkdown is the only driver kind this engine supports.
const DriverMarkdown DriverKind = 0

// DriverKindForPath returns the driver kind that claims path by
// extension, or ok=false if no driver handles it.
func DriverKindForPath(path string) (kind DriverKind, ok bool) {
	if strings.HasSuffix(path, ".md") {
		return DriverMarkdown, true
	}
	return 0, false
}

// FileInfo is the tracked state of a single file: its history of paths
// (the current path is always the tail) and whether it has been deleted.
// The driver instance itself lives in Manager.Drivers, keyed by the same
// ID, not inline here.
type FileInfo struct {
	Paths   *yata.Array[string]
	Deleted bool
}

// CurrentPath returns the payload of the path list's tail.
func (fi *FileInfo) CurrentPath() string {
	if fi.Paths.Tail == nil {
		panic("filetree: FileInfo has no path history")
	}
	return fi.Paths.Items[*fi.Paths.Tail].Content
}

func (fi *FileInfo) clone() *FileInfo {
	return &FileInfo{Paths: fi.Paths.Clone(), Deleted: fi.Deleted}
}

// FileOpKind distinguishes the three file-tree operation variants.
type FileOpKind int

const (
	OpNewFile FileOpKind = iota
	OpMoveFile
	OpDelFile
)

// FileOp is an operation against the file-tree CRDT. Subject names which
// driver it concerns; the remaining fields are populated according to
// Kind. File ops carry no dep: history containment alone decides whether
// an op is already applied.
type FileOp struct {
	Kind       FileOpKind
	Subject    driverid.ID
	DriverKind DriverKind              // OpNewFile only
	Path       string                  // OpNewFile only: initial path
	Creator    uuid.UUID               // OpNewFile only: path list's creator
	ListIns    yata.Insertion[string]  // OpMoveFile only
	ListID     yata.ID                 // OpMoveFile only
}

// Hash satisfies cmrdt.Op.
func (op FileOp) Hash() cmrdt.Hash { return cmrdt.HashOf(op) }

// Driver satisfies cmrdt.Op. File-tree ops always belong to the sentinel
// FileTree component; Subject (not this) names the driver they act on.
func (op FileOp) Driver() driverid.ID { return driverid.FileTree }

func newDriverID() driverid.ID {
	return driverid.Driver(uint64(yata.NewID()))
}

// Manager is the file-tree CmRDT: state keyed by driver ID, its causal
// history, and the live per-file drivers it dispatches operations to.
type Manager struct {
	State      map[driverid.ID]*FileInfo
	Hist       *cmrdt.History
	Drivers    map[driverid.ID]*docdoc.Object
	WorkingDir string
	Ignore     *ignore.IgnoreList
	ReplicaID  uuid.UUID
}

// New returns a Manager with empty state, rooted at workingDir.
func New(workingDir string, ig *ignore.IgnoreList, replicaID uuid.UUID) *Manager {
	return &Manager{
		State:      make(map[driverid.ID]*FileInfo),
		Hist:       cmrdt.NewHistory(),
		Drivers:    make(map[driverid.ID]*docdoc.Object),
		WorkingDir: workingDir,
		Ignore:     ig,
		ReplicaID:  replicaID,
	}
}

// Query returns a defensive copy of the current file state.
func (m *Manager) Query() map[driverid.ID]*FileInfo {
	out := make(map[driverid.ID]*FileInfo, len(m.State))
	for id, fi := range m.State {
		out[id] = fi.clone()
	}
	return out
}

// ActiveDrivers returns every driver ID whose file has not been deleted.
func (m *Manager) ActiveDrivers() []driverid.ID {
	var out []driverid.ID
	for id, fi := range m.State {
		if !fi.Deleted {
			out = append(out, id)
		}
	}
	return out
}

// AllHashes returns every operation hash known to the tree itself or any
// of its drivers, for the sync driver's hash-set exchange.
func (m *Manager) AllHashes() map[cmrdt.Hash]bool {
	out := m.Hist.GetHashes()
	for _, obj := range m.Drivers {
		for h := range obj.Hist.GetHashes() {
			out[h] = true
		}
	}
	return out
}

func (m *Manager) listDir() ([]string, error) {
	var out []string
	err := filepath.Walk(m.WorkingDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(m.WorkingDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if m.Ignore.IsIgnored(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			panic("filetree: symlinks not supported")
		}
		if m.Ignore.IsIgnored(rel) {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	return out, err
}

// Prep scans the working directory and returns the single next operation
// needed to reconcile file-tree state with what is on disk, or
// (nil, false, nil) if nothing has changed.
func (m *Manager) Prep() (*FileOp, bool, error) {
	diskFiles, err := m.listDir()
	if err != nil {
		return nil, false, err
	}

	orphans := make(map[driverid.ID]bool)
	for id, fi := range m.State {
		if !fi.Deleted {
			orphans[id] = true
		}
	}

	var missing []string
	for _, f := range diskFiles {
		matchedID, ok := m.findByPath(f)
		if ok {
			delete(orphans, matchedID)
			continue
		}
		missing = append(missing, f)
	}

	for _, newPath := range missing {
		if subject, ok := m.renameDetection(newPath); ok {
			fi := m.State[subject]
			id, ins := fi.Paths.GetInsertion(fi.Paths.LenUndel(), newPath, m.ReplicaID)
			return &FileOp{Kind: OpMoveFile, Subject: subject, ListIns: ins, ListID: id}, true, nil
		}

		kind, ok := DriverKindForPath(newPath)
		if !ok {
			continue
		}
		return &FileOp{
			Kind: OpNewFile, Subject: newDriverID(), DriverKind: kind,
			Path: newPath, Creator: m.ReplicaID,
		}, true, nil
	}

	for id := range orphans {
		return &FileOp{Kind: OpDelFile, Subject: id}, true, nil
	}

	return nil, false, nil
}

func (m *Manager) findByPath(path string) (driverid.ID, bool) {
	for id, fi := range m.State {
		if !fi.Deleted && fi.CurrentPath() == path {
			return id, true
		}
	}
	return driverid.ID{}, false
}

// renameDetection looks for a content-similarity match between newPath
// and an orphaned driver's last known content. Always reports no match:
// the reference implementation leaves this unimplemented too (its own
// rename_detection is a stub returning None), so an edited-and-moved file
// is observed as a delete plus a new file rather than a move.
func (m *Manager) renameDetection(newPath string) (driverid.ID, bool) {
	return driverid.ID{}, false
}

// ApplyOp applies op, performing any required filesystem side effects
// (rename, trash), and on success advances history. Returns false if
// op's target driver already exists (NewFile) or does not exist
// (MoveFile/DelFile), or if a required filesystem operation failed.
func (m *Manager) ApplyOp(op *FileOp) bool {
	switch op.Kind {
	case OpNewFile:
		if _, exists := m.State[op.Subject]; exists {
			return false
		}
		m.State[op.Subject] = &FileInfo{Paths: yata.FromSlice([]string{op.Path}, op.Creator)}
		m.Drivers[op.Subject] = docdoc.NewObject(op.Subject)

	case OpMoveFile:
		fi, ok := m.State[op.Subject]
		if !ok {
			return false
		}
		oldPath := fi.CurrentPath()
		fi.Paths.Insert(op.ListIns, op.ListID)
		newPath := fi.CurrentPath()
		if oldPath != newPath && !fi.Deleted {
			if err := m.renameOnDisk(oldPath, newPath); err != nil {
				return false
			}
		}

	case OpDelFile:
		fi, ok := m.State[op.Subject]
		if !ok {
			return false
		}
		if !fi.Deleted {
			if err := m.trashFile(fi.CurrentPath()); err != nil {
				return false
			}
		}
		fi.Deleted = true

	default:
		return false
	}

	h := op.Hash()
	m.Hist.Add(&h)
	return true
}

func (m *Manager) absPath(rel string) string {
	return filepath.Join(m.WorkingDir, filepath.FromSlash(rel))
}

func (m *Manager) renameOnDisk(oldPath, newPath string) error {
	oldAbs, newAbs := m.absPath(oldPath), m.absPath(newPath)
	if _, err := os.Stat(oldAbs); os.IsNotExist(err) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(newAbs), 0o755); err != nil {
		return err
	}
	return os.Rename(oldAbs, newAbs)
}

func (m *Manager) trashFile(path string) error {
	abs := m.absPath(path)
	if _, err := os.Stat(abs); os.IsNotExist(err) {
		return nil
	}
	trashDir := filepath.Join(m.WorkingDir, ".crfs", "trash")
	if err := os.MkdirAll(trashDir, 0o755); err != nil {
		return err
	}
	dest := filepath.Join(trashDir, fmt.Sprintf("%d-%s", time.Now().UnixNano(), filepath.Base(abs)))
	return os.Rename(abs, dest)
}

// ApplyMany attempts every op in ops against whichever component claims
// it (the tree itself, via FileOp.Driver, or one of its live drivers, via
// DocOp.Driver), repeating passes until one makes no further progress.
// Returns the hashes successfully applied; the caller is responsible for
// retrying anything left over against other components.
func (m *Manager) ApplyMany(ops []cmrdt.Op) map[cmrdt.Hash]bool {
	applied := make(map[cmrdt.Hash]bool)

	for {
		progress := false
		for _, op := range ops {
			h := op.Hash()
			if applied[h] {
				continue
			}
			if m.applyOne(op) {
				applied[h] = true
				progress = true
			}
		}
		if !progress {
			break
		}
	}

	return applied
}

func (m *Manager) applyOne(op cmrdt.Op) bool {
	switch o := op.(type) {
	case *FileOp:
		if o.Driver() != driverid.FileTree {
			return false
		}
		return m.ApplyOp(o)
	case *docdoc.DocOp:
		obj, ok := m.Drivers[o.Driver()]
		if !ok {
			return false
		}
		return obj.ApplyOp(o, false)
	default:
		return false
	}
}

// Update runs the file-tree prep/apply loop to a fixed point, then for
// each live driver runs its own Markdown prep/apply loop and writes the
// merged document back to disk. emit is called with every operation
// produced (tree or driver) so the caller can persist it to the object
// store as it's created.
func (m *Manager) Update(emit func(op cmrdt.Op)) error {
	for {
		op, ok, err := m.Prep()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if !m.ApplyOp(op) {
			return fmt.Errorf("filetree: failed to apply locally-prepared op")
		}
		emit(op)
	}

	for _, id := range m.ActiveDrivers() {
		if err := m.updateDriver(id, emit); err != nil {
			return err
		}
	}

	return nil
}

func (m *Manager) updateDriver(id driverid.ID, emit func(op cmrdt.Op)) error {
	fi := m.State[id]
	obj := m.Drivers[id]
	path := m.absPath(fi.CurrentPath())

	src, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	target := mdbridge.GenerateAgainst(obj.Query(), mdast.Parse(string(src)), m.ReplicaID)

	for {
		op, ok := obj.Prep(target, m.ReplicaID)
		if !ok {
			break
		}
		if !obj.ApplyOp(op, true) {
			return fmt.Errorf("filetree: failed to apply locally-prepared document op for driver %s", id)
		}
		emit(op)
	}

	return m.WriteCanonical(id)
}

// snapshot is the JSON-serializable form of a Manager, persisted to
// .crfs/meta/filetree.json between CLI invocations. Without it, every run
// would start from empty state and re-derive every tracked file as brand
// new via Prep, assigning fresh driver IDs that would never converge with
// what earlier runs (or other replicas) already recorded.
type snapshot struct {
	ReplicaID uuid.UUID                    `json:"replica_id"`
	State     map[driverid.ID]*FileInfo    `json:"state"`
	Hist      *cmrdt.History               `json:"hist"`
	Drivers   map[driverid.ID]*docdoc.Object `json:"drivers"`
}

// MetaStore is the subset of internal/objectstore's Store that Manager
// needs to persist and reload its own snapshot, kept minimal so this
// package doesn't need to import objectstore directly.
type MetaStore interface {
	WriteMeta(name string, v any) error
	ReadMeta(name string, v any) error
	HasMeta(name string) bool
}

const metaName = "filetree"

// WriteOut persists the manager's full state -- file-tree entries, causal
// history, and every driver's document state and history -- to the given
// meta store, so a later run of Load can resume exactly where this one
// left off.
func (m *Manager) WriteOut(store MetaStore) error {
	return store.WriteMeta(metaName, &snapshot{
		ReplicaID: m.ReplicaID,
		State:     m.State,
		Hist:      m.Hist,
		Drivers:   m.Drivers,
	})
}

// Load reads a previously-written snapshot from store into a fresh Manager
// rooted at workingDir. If no snapshot exists yet, it returns an empty
// Manager exactly like New -- the first Update call will then populate it
// by scanning the working directory from scratch.
func Load(store MetaStore, workingDir string, ig *ignore.IgnoreList, replicaID uuid.UUID) (*Manager, error) {
	if !store.HasMeta(metaName) {
		return New(workingDir, ig, replicaID), nil
	}

	var snap snapshot
	if err := store.ReadMeta(metaName, &snap); err != nil {
		return nil, err
	}

	m := &Manager{
		State:      snap.State,
		Hist:       snap.Hist,
		Drivers:    snap.Drivers,
		WorkingDir: workingDir,
		Ignore:     ig,
		ReplicaID:  snap.ReplicaID,
	}
	if m.State == nil {
		m.State = make(map[driverid.ID]*FileInfo)
	}
	if m.Drivers == nil {
		m.Drivers = make(map[driverid.ID]*docdoc.Object)
	}
	if m.Hist == nil {
		m.Hist = cmrdt.NewHistory()
	}
	return m, nil
}

// DecodeOp deserializes a raw operation blob (as read from the object
// store) into its concrete type. Since Go has no serde-style internally
// tagged enum, this tries each known variant's distinguishing field --
// "Path" only appears on FileOp, "W" only on docdoc.DocOp -- and reports
// ok=false for anything matching neither, which callers should treat the
// same way as spec.md §7's "deserializes to a wrong variant": the op is
// non-applicable, not a fatal error.
func DecodeOp(data []byte) (op cmrdt.Op, ok bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, false
	}

	if _, has := probe["Path"]; has {
		var fo FileOp
		if err := json.Unmarshal(data, &fo); err != nil {
			return nil, false
		}
		return &fo, true
	}
	if _, has := probe["W"]; has {
		var do docdoc.DocOp
		if err := json.Unmarshal(data, &do); err != nil {
			return nil, false
		}
		return &do, true
	}
	return nil, false
}

// WriteCanonical regenerates Markdown text from a driver's current
// document state and writes it back to the file's current path. Called
// after a driver's local prep/apply loop, and again by the sync driver
// after ingesting remote operations.
func (m *Manager) WriteCanonical(id driverid.ID) error {
	fi, ok := m.State[id]
	if !ok || fi.Deleted {
		return nil
	}
	obj, ok := m.Drivers[id]
	if !ok {
		return nil
	}

	text := mdast.Render(mdbridge.ToBlocks(obj.Query()))
	abs := m.absPath(fi.CurrentPath())
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	return os.WriteFile(abs, []byte(text), 0o644)
}
