// Package yata implements the YATA list CRDT: a convergent ordered
// sequence used for sibling order in the document CRDT and for a file's
// history of paths in the file-tree CRDT.
//
// Both production instantiations key elements by a content type T and tag
// every insertion with a uuid.UUID creator, so the creator type is fixed
// rather than left generic; this mirrors how the reference implementation
// is actually used (Array<ID, Uuid> and Array<PathBuf, Uuid>), not a
// simplification of the algorithm itself.
package yata

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// ID names a single element in the list. IDs are generated once at
// insertion time and then carried verbatim inside the operation that
// creates the element, so every replica assigns the identical ID.
type ID uint64

// NewID draws a fresh random element ID. Called exactly once per local
// insertion; the resulting ID is embedded in the emitted operation and
// never regenerated on apply.
func NewID() ID {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("yata: failed to read randomness: %v", err))
	}
	return ID(binary.BigEndian.Uint64(buf[:]))
}

// RefKind distinguishes a reference to a concrete element from the two
// sentinel positions at either end of the list.
type RefKind int

const (
	RefItem RefKind = iota
	RefLeft
	RefRight
)

// Ref is a reference to an element's neighbour: either a concrete element
// ID, or one of the sentinels Left/Right marking the ends of the list.
type Ref struct {
	Kind RefKind
	ID   ID
}

// ItemRef builds a reference to a concrete element.
func ItemRef(id ID) Ref { return Ref{Kind: RefItem, ID: id} }

// Left and Right are the sentinel references for the ends of the list.
var (
	Left  = Ref{Kind: RefLeft}
	Right = Ref{Kind: RefRight}
)

func (r Ref) String() string {
	switch r.Kind {
	case RefItem:
		return fmt.Sprintf("Item(%d)", r.ID)
	case RefLeft:
		return "Left"
	default:
		return "Right"
	}
}

// Insertion is the payload of a single list element.
type Insertion[T comparable] struct {
	Origin  Ref
	Left    Ref
	Right   Ref
	Content T
	Creator uuid.UUID
	Deleted bool
}

// OpKind distinguishes the two operation variants the list CRDT emits.
type OpKind int

const (
	OpInsertion OpKind = iota
	OpDeletion
)

// Op is either an Insertion (with the ID it should be stored under) or a
// Deletion of an existing ID.
type Op[T comparable] struct {
	Kind OpKind
	ID   ID
	Ins  Insertion[T]
}

// Array is the YATA sequence itself: a doubly-linked chain of elements
// keyed by opaque IDs, including tombstoned (deleted) elements.
type Array[T comparable] struct {
	Items map[ID]*Insertion[T]
	Head  *ID
	Tail  *ID
}

// Empty returns a new, empty list.
func Empty[T comparable]() *Array[T] {
	return &Array[T]{Items: make(map[ID]*Insertion[T])}
}

// FromSlice builds a list containing exactly the given content, in order,
// all attributed to creator. Used to seed a child list or path history
// from a freshly-generated document.
func FromSlice[T comparable](content []T, creator uuid.UUID) *Array[T] {
	result := Empty[T]()
	left := Left
	for _, c := range content {
		id := NewID()
		result.insertSimple(Insertion[T]{
			Origin: left, Left: left, Right: Right,
			Content: c, Creator: creator,
		}, id)
		left = ItemRef(id)
	}
	return result
}

// InOrder walks the list from head to tail, returning every element
// (including tombstones) in sequence order.
func (a *Array[T]) InOrder() []ID {
	a.Verify()

	var result []ID
	var next *ID = a.Head
	for next != nil {
		result = append(result, *next)
		r := a.Items[*next].Right
		if r.Kind == RefItem {
			id := r.ID
			next = &id
		} else {
			next = nil
		}
	}
	return result
}

// Verify panics if the linked list is malformed: a cycle, or a broken
// reciprocal left/right link. This is a fatal-bug detector, not a
// recoverable error path, matching the source's own invariant check.
func (a *Array[T]) Verify() {
	visited := make(map[ID]bool)
	var next *ID = a.Head
	for next != nil {
		n := *next
		if visited[n] {
			panic("yata: Array.Verify - cycle detected")
		}
		cur := a.Items[n]
		if cur == nil {
			panic(fmt.Sprintf("yata: Array.Verify - dangling reference to %d", n))
		}
		if cur.Left.Kind == RefItem {
			l := a.Items[cur.Left.ID]
			if l == nil || l.Right.Kind != RefItem || l.Right.ID != n {
				panic(fmt.Sprintf("yata: Array.Verify - broken link at %d (left side)", n))
			}
		}
		if cur.Right.Kind == RefItem {
			r := a.Items[cur.Right.ID]
			if r == nil || r.Left.Kind != RefItem || r.Left.ID != n {
				panic(fmt.Sprintf("yata: Array.Verify - broken link at %d (right side)", n))
			}
		}
		visited[n] = true
		if cur.Right.Kind == RefItem {
			id := cur.Right.ID
			next = &id
		} else {
			next = nil
		}
	}
}

// InOrderUndel is InOrder with tombstoned elements filtered out.
func (a *Array[T]) InOrderUndel() []ID {
	all := a.InOrder()
	result := all[:0:0]
	for _, id := range all {
		if !a.Items[id].Deleted {
			result = append(result, id)
		}
	}
	return result
}

// Len returns the number of elements, including tombstones.
func (a *Array[T]) Len() int { return len(a.InOrder()) }

// LenUndel returns the number of non-tombstoned elements.
func (a *Array[T]) LenUndel() int { return len(a.InOrderUndel()) }

// GetIndexRef resolves a reference to its position in the in-order
// sequence; Left is position -1, Right is position len(items). Returns
// ok=false if r references an ID not present in the list.
func (a *Array[T]) GetIndexRef(r Ref) (int, bool) {
	switch r.Kind {
	case RefLeft:
		return -1, true
	case RefRight:
		return len(a.Items), true
	default:
		inOrder := a.InOrder()
		for i, id := range inOrder {
			if id == r.ID {
				return i, true
			}
		}
		return 0, false
	}
}

// Origin returns the origin reference recorded for id, if present.
func (a *Array[T]) Origin(id ID) (Ref, bool) {
	ins, ok := a.Items[id]
	if !ok {
		return Ref{}, false
	}
	return ins.Origin, true
}

// insertSimple links ins directly between its left and right neighbours,
// assuming they are already adjacent. This is the base case of Insert.
func (a *Array[T]) insertSimple(ins Insertion[T], id ID) ID {
	if ins.Left.Kind == RefItem {
		a.Items[ins.Left.ID].Right = ItemRef(id)
	} else if ins.Left.Kind == RefLeft {
		h := id
		a.Head = &h
	}

	if ins.Right.Kind == RefItem {
		a.Items[ins.Right.ID].Left = ItemRef(id)
	} else if ins.Right.Kind == RefRight {
		t := id
		a.Tail = &t
	}

	insCopy := ins
	a.Items[id] = &insCopy
	a.Verify()
	return id
}

// GetInsertion builds the Insertion that would place item at position ind
// in the current in-order sequence, attributed to creator. Panics if ind
// is greater than len; ind == len is the valid append position.
func (a *Array[T]) GetInsertion(ind int, item T, creator uuid.UUID) (ID, Insertion[T]) {
	inOrder := a.InOrder()
	length := len(a.Items)

	if ind > length {
		panic(fmt.Sprintf("yata: index %d greater than length %d", ind, length))
	}

	var left, right Ref
	switch {
	case length == 0:
		left, right = Left, Right
	case ind == 0:
		left, right = Left, ItemRef(inOrder[ind])
	case ind == length:
		left, right = ItemRef(inOrder[ind-1]), Right
	default:
		left, right = ItemRef(inOrder[ind-1]), ItemRef(inOrder[ind])
	}

	return NewID(), Insertion[T]{
		Origin: left, Left: left, Right: right,
		Content: item, Creator: creator,
	}
}

// Delete tombstones id. Panics if id is absent (precondition is the
// caller's responsibility, matching the source).
func (a *Array[T]) Delete(id ID) {
	ins, ok := a.Items[id]
	if !ok {
		panic(fmt.Sprintf("yata: Delete - no item with ID %d", id))
	}
	ins.Deleted = true
}

func creatorLess(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Insert runs the YATA integration algorithm, resolving concurrent
// insertions into the same gap deterministically by creator ID, and
// stores ins under id. Returns false if ins.Left/Right reference an
// element absent from the list.
func (a *Array[T]) Insert(ins Insertion[T], id ID) bool {
	l, lok := a.GetIndexRef(ins.Left)
	r, rok := a.GetIndexRef(ins.Right)
	if !lok || !rok {
		return false
	}
	nConflicting := r - l - 1

	if nConflicting == 0 {
		a.insertSimple(ins, id)
		return true
	}

	inOrder := a.InOrder()
	originIdx, _ := a.GetIndexRef(ins.Origin)

	newLeft := ins.Left
	for ind := l + 1; ind < r; ind++ {
		idO := inOrder[ind]
		oIns := a.Items[idO]
		originOIdx, _ := a.GetIndexRef(oIns.Origin)

		if (originIdx > ind || originIdx <= originOIdx) &&
			(originIdx != originOIdx || creatorLess(oIns.Creator, ins.Creator)) {
			newLeft = ItemRef(idO)
		} else if originIdx >= originOIdx {
			break
		}
	}

	newIns := ins
	newIns.Left = newLeft
	switch newLeft.Kind {
	case RefItem:
		newIns.Right = a.Items[newLeft.ID].Right
	case RefRight:
		newIns.Right = Right
	case RefLeft:
		newIns.Right = ItemRef(inOrder[0])
	}

	a.insertSimple(newIns, id)
	return true
}

// Apply replays a single operation against this list.
func (a *Array[T]) Apply(op Op[T]) {
	switch op.Kind {
	case OpInsertion:
		a.Insert(op.Ins, op.ID)
	case OpDeletion:
		a.Delete(op.ID)
	}
}

// InOrderContent returns the payload of every element (including
// tombstones) in sequence order.
func (a *Array[T]) InOrderContent() []T {
	ids := a.InOrder()
	result := make([]T, len(ids))
	for i, id := range ids {
		result[i] = a.Items[id].Content
	}
	return result
}

// InOrderContentUndel is InOrderContent with tombstones excluded.
func (a *Array[T]) InOrderContentUndel() []T {
	ids := a.InOrderUndel()
	result := make([]T, len(ids))
	for i, id := range ids {
		result[i] = a.Items[id].Content
	}
	return result
}

// InsertAt computes and applies the insertion that places item at
// position ind, attributed to creator. Returns the applied insertion and
// the new element's ID.
func (a *Array[T]) InsertAt(ind int, item T, creator uuid.UUID) (Insertion[T], ID) {
	id, ins := a.GetInsertion(ind, item, creator)
	a.Insert(ins, id)
	return ins, id
}

func contains(ids []ID, id ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// GetOp computes the single next operation that would move a -> other,
// comparing their undeleted sequences by the longest common subsequence
// of element IDs. This only produces meaningful results once element IDs
// have been aligned by content (see RenameAgainst) -- two lists with
// different IDs for the same logical content will appear to have no
// overlap at all.
//
// Priority: first element of a missing from the LCS becomes a Deletion;
// failing that, the first element of other missing from the LCS becomes
// an Insertion; failing that, the lists already match and (Op{}, false)
// is returned.
func (a *Array[T]) GetOp(other *Array[T], creator uuid.UUID) (Op[T], bool) {
	aIDs := a.InOrderUndel()
	bIDs := other.InOrderUndel()
	lcs := lcsSet(aIDs, bIDs)

	for _, aid := range aIDs {
		if !lcs[aid] {
			return Op[T]{Kind: OpDeletion, ID: aid}, true
		}
	}

	for _, bid := range bIDs {
		if lcs[bid] {
			continue
		}
		right := other.Items[bid].Right
		for right.Kind == RefItem {
			if contains(aIDs, right.ID) {
				break
			}
			right = other.Items[right.ID].Right
		}
		ins := Insertion[T]{
			Origin:  other.Items[bid].Left,
			Left:    other.Items[bid].Left,
			Right:   right,
			Content: other.Items[bid].Content,
			Creator: creator,
		}
		return Op[T]{Kind: OpInsertion, ID: bid, Ins: ins}, true
	}

	return Op[T]{}, false
}

// lcsSet computes the longest common subsequence of two ID slices and
// returns it as a membership set (sufficient for the containment checks
// GetOp needs).
func lcsSet(a, b []ID) map[ID]bool {
	m, n := len(a), len(b)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			switch {
			case a[i-1] == b[j-1]:
				dp[i][j] = dp[i-1][j-1] + 1
			case dp[i-1][j] >= dp[i][j-1]:
				dp[i][j] = dp[i-1][j]
			default:
				dp[i][j] = dp[i][j-1]
			}
		}
	}

	set := make(map[ID]bool)
	i, j := m, n
	for i > 0 && j > 0 {
		switch {
		case a[i-1] == b[j-1]:
			set[a[i-1]] = true
			i--
			j--
		case dp[i-1][j] >= dp[i][j-1]:
			i--
		default:
			j--
		}
	}
	return set
}

// RenameAgainst re-keys each element of a to the ID of the
// content-matching element in other, rewriting every left/right/origin
// reference (and head/tail) consistently. Assumes no duplicate content
// within either list.
func (a *Array[T]) RenameAgainst(other *Array[T]) {
	renames := make(map[ID]ID)
	used := make(map[ID]bool)

	for id, ins := range a.Items {
		for otherID, otherIns := range other.Items {
			if used[otherID] {
				continue
			}
			if otherIns.Content == ins.Content {
				renames[id] = otherID
				used[otherID] = true
				break
			}
		}
	}

	for old, new := range renames {
		ins := a.Items[old]
		delete(a.Items, old)
		a.Items[new] = ins
	}

	remap := func(r Ref) Ref {
		if r.Kind == RefItem {
			if newID, ok := renames[r.ID]; ok {
				return ItemRef(newID)
			}
		}
		return r
	}

	for _, ins := range a.Items {
		ins.Left = remap(ins.Left)
		ins.Right = remap(ins.Right)
		ins.Origin = remap(ins.Origin)
	}

	if a.Head != nil {
		if newID, ok := renames[*a.Head]; ok {
			a.Head = &newID
		}
	}
	if a.Tail != nil {
		if newID, ok := renames[*a.Tail]; ok {
			a.Tail = &newID
		}
	}
}

// Clone returns a deep copy of the list.
func (a *Array[T]) Clone() *Array[T] {
	out := &Array[T]{Items: make(map[ID]*Insertion[T], len(a.Items))}
	for id, ins := range a.Items {
		cp := *ins
		out.Items[id] = &cp
	}
	if a.Head != nil {
		h := *a.Head
		out.Head = &h
	}
	if a.Tail != nil {
		t := *a.Tail
		out.Tail = &t
	}
	return out
}

// GetOps computes the full ordered sequence of operations that would
// move a -> other, aligning other's IDs to a's by content first so that
// GetOp's LCS comparison is meaningful. Each produced operation is also
// mirrored into other, so other ends up structurally identical to the
// new state of a.
func (a *Array[T]) GetOps(other *Array[T], creator uuid.UUID) []Op[T] {
	working := a.Clone()
	other.RenameAgainst(a)

	var ops []Op[T]
	for {
		op, ok := working.GetOp(other, creator)
		if !ok {
			break
		}
		ops = append(ops, op)

		switch op.Kind {
		case OpInsertion:
			working.Insert(op.Ins, op.ID)
		case OpDeletion:
			working.Delete(op.ID)
			toInsert := *working.Items[op.ID]

			if toInsert.Right.Kind == RefItem {
				right := toInsert.Right.ID
				for {
					if _, ok := other.Items[right]; ok {
						break
					}
					next := working.Items[right]
					if next.Right.Kind == RefItem {
						right = next.Right.ID
					} else {
						toInsert.Right = Right
						break
					}
				}
				if toInsert.Right != Right {
					toInsert.Right = ItemRef(right)
				}
			}

			other.Insert(toInsert, op.ID)
		}
	}

	return ops
}

// RenameCreators copies the recorded creator for each element present in
// other onto the matching element of a. Used after RenameAgainst to make
// sure re-keyed elements also carry their original creator attribution.
func (a *Array[T]) RenameCreators(other *Array[T]) {
	for id, ins := range a.Items {
		if otherIns, ok := other.Items[id]; ok {
			ins.Creator = otherIns.Creator
		}
	}
}

// EqContent reports whether a and other hold the same undeleted content
// in the same order, ignoring element IDs.
func (a *Array[T]) EqContent(other *Array[T]) bool {
	ac := a.InOrderContentUndel()
	bc := other.InOrderContentUndel()
	if len(ac) != len(bc) {
		return false
	}
	for i := range ac {
		if ac[i] != bc[i] {
			return false
		}
	}
	return true
}
