// Package docdoc implements the document CRDT (C3): a tree of tagged
// parent nodes and content-leaf nodes whose sibling order is delegated to
// the YATA list CRDT (internal/yata).
package docdoc

import (
	"github.com/google/uuid"

	"crfs/internal/cmrdt"
	"crfs/internal/driverid"
	"crfs/internal/yata"
)

// ID names a node in the document tree. The reference implementation uses
// a 128-bit integer; a uuid.UUID is exactly 128 bits and already carries
// the "generate randomly, record in the operation" discipline the rest of
// this module relies on, so it is reused here instead of introducing a
// bespoke u128 type.
type ID = uuid.UUID

// RootID is the fixed, well-known ID of every document's root node.
var RootID = ID{}

// Tag labels a parent node. The root tag is the single sentinel every Doc
// is guaranteed to contain; all other tags are defined by the bridge that
// produces the tree (internal/mdbridge for Markdown).
type Tag string

// TagRoot is the tag of the distinguished root node.
const TagRoot Tag = "Root"

// LeafKind distinguishes the handful of leaf content shapes a bridge can
// produce.
type LeafKind int

const (
	LeafText LeafKind = iota
	LeafCode
	LeafRule
	LeafSoftBreak
	LeafHardBreak
)

// LeafContent is the payload of a Leaf node. Text carries the literal
// string for LeafText/LeafCode; it is empty and ignored for the other
// kinds.
type LeafContent struct {
	Kind LeafKind
	Text string
}

// NodeKind distinguishes the two node variants.
type NodeKind int

const (
	NodeParent NodeKind = iota
	NodeLeaf
)

// Node is a single entry in the document tree: either a Parent carrying a
// tag and an ordered child list, or a Leaf carrying content.
type Node struct {
	Kind     NodeKind
	ID       ID
	Tag      Tag
	Children *yata.Array[ID]
	Content  LeafContent
}

func newRoot() *Node {
	return &Node{Kind: NodeParent, ID: RootID, Tag: TagRoot, Children: yata.Empty[ID]()}
}

// EqContent reports whether n and other would be considered the same
// node for alignment purposes, ignoring ID: parent tags must match;
// leaves must have identical content.
func (n *Node) EqContent(other *Node) bool {
	if n.Kind != other.Kind {
		return false
	}
	if n.Kind == NodeParent {
		return n.Tag == other.Tag
	}
	return n.Content == other.Content
}

// Rename rewrites n's own ID if it matches wOld, and rewrites any
// occurrence of wOld among n's children's content to wNew.
func (n *Node) Rename(wOld, wNew ID) {
	if n.ID == wOld {
		n.ID = wNew
	}
	if n.Kind == NodeParent {
		for _, ins := range n.Children.Items {
			if ins.Content == wOld {
				ins.Content = wNew
			}
		}
	}
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	cp := *n
	if n.Kind == NodeParent {
		cp.Children = n.Children.Clone()
	}
	return &cp
}

// Doc is a tree-like document: every node in the tree, keyed by ID, plus
// the ID of the distinguished root.
type Doc struct {
	Items map[ID]*Node
	Root  ID
}

// New returns a document containing only the empty root.
func New() *Doc {
	root := newRoot()
	return &Doc{Items: map[ID]*Node{root.ID: root}, Root: root.ID}
}

// Clone returns a deep copy of d.
func (d *Doc) Clone() *Doc {
	out := &Doc{Items: make(map[ID]*Node, len(d.Items)), Root: d.Root}
	for id, n := range d.Items {
		out.Items[id] = n.Clone()
	}
	return out
}

// RootNode returns the distinguished root node.
func (d *Doc) RootNode() *Node { return d.Items[d.Root] }

// AddNode inserts n into the document, keyed by its own ID.
func (d *Doc) AddNode(n *Node) { d.Items[n.ID] = n }

// RenameNode re-keys every reference to wOld (the node's own entry, and
// every child-list content referencing it) to wNew.
func (d *Doc) RenameNode(wOld, wNew ID) {
	for _, n := range d.Items {
		n.Rename(wOld, wNew)
	}
	if n, ok := d.Items[wOld]; ok {
		delete(d.Items, wOld)
		d.Items[wNew] = n
	}
}

// MatchNode finds a node whose content matches node's, skipping any ID in
// exclude, preferring the bottom-up (leaves-first) order so callers that
// re-key repeatedly always find the "next" unclaimed match deterministically.
func (d *Doc) MatchNode(node *Node, exclude map[ID]bool) (ID, bool) {
	order := d.BottomUp()
	seen := make(map[ID]bool, len(order))
	for _, id := range order {
		seen[id] = true
	}
	for id := range d.Items {
		if !seen[id] {
			order = append(order, id)
		}
	}

	for _, id := range order {
		if exclude[id] {
			continue
		}
		if d.Items[id].EqContent(node) {
			return id, true
		}
	}
	return ID{}, false
}

// BottomUp returns every ID in the tree ordered so that every node
// appears after all of its children, and siblings appear in child-list
// order.
func (d *Doc) BottomUp() []ID {
	var result []ID
	seen := make(map[ID]bool)
	stack := []ID{d.Root}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		node := d.Items[top]

		pushed := false
		if node.Kind == NodeParent {
			for _, cid := range node.Children.InOrderContent() {
				if !seen[cid] {
					stack = append(stack, cid)
					pushed = true
					break
				}
			}
		}
		if pushed {
			continue
		}

		stack = stack[:len(stack)-1]
		if !seen[top] {
			result = append(result, top)
			seen[top] = true
		}
	}
	return result
}

// BottomUpRefs is BottomUp paired with each ID's node.
func (d *Doc) BottomUpRefs() []struct {
	ID   ID
	Node *Node
} {
	order := d.BottomUp()
	result := make([]struct {
		ID   ID
		Node *Node
	}, len(order))
	for i, id := range order {
		result[i] = struct {
			ID   ID
			Node *Node
		}{ID: id, Node: d.Items[id]}
	}
	return result
}

// DocOpKind distinguishes the four document operation variants.
type DocOpKind int

const (
	OpAddParent DocOpKind = iota
	OpAddLeaf
	OpInsChild
	OpDelChild
)

// DocOp is an operation against a document CRDT. ListID/ListIns describe
// the mutation to WParent's children list; W/Tag/Content describe the
// node being created (AddParent/AddLeaf only). Dep, when non-nil, is the
// hash of the last locally-created operation on this object.
type DocOp struct {
	Kind        DocOpKind
	W           ID
	Tag         Tag
	Content     LeafContent
	WParent     ID
	ListID      yata.ID
	ListIns     yata.Insertion[ID]
	Dep         *cmrdt.Hash
	DriverIDVal driverid.ID
}

// Hash satisfies cmrdt.Op.
func (op DocOp) Hash() cmrdt.Hash { return cmrdt.HashOf(op) }

// Driver satisfies cmrdt.Op.
func (op DocOp) Driver() driverid.ID { return op.DriverIDVal }

// Object is the CmRDT object wrapping a Doc: current state, causal
// history, and the hash of the last locally-created op (this object's
// dep chain).
type Object struct {
	State       *Doc
	Hist        *cmrdt.History
	LastOp      *cmrdt.Hash
	DriverIDVal driverid.ID
}

// NewObject returns an Object in its canonical empty state for driver.
func NewObject(driver driverid.ID) *Object {
	return &Object{State: New(), Hist: cmrdt.NewHistory(), DriverIDVal: driver}
}

// Query returns the externally-visible current state.
func (o *Object) Query() *Doc { return o.State.Clone() }

// Precond reports whether op's dependency (if any) is present in history.
func (o *Object) Precond(op *DocOp) bool {
	if op.Dep == nil {
		return true
	}
	return o.Hist.Contains(*op.Dep)
}

// Apply mutates a clone of the current state per op's variant and returns
// it, or (nil, false) if Precond fails.
func (o *Object) Apply(op *DocOp) (*Doc, bool) {
	if !o.Precond(op) {
		return nil, false
	}

	next := o.State.Clone()
	switch op.Kind {
	case OpAddParent:
		next.AddNode(&Node{Kind: NodeParent, ID: op.W, Tag: op.Tag, Children: yata.Empty[ID]()})
		next.Items[op.WParent].Children.Insert(op.ListIns, op.ListID)
	case OpAddLeaf:
		next.AddNode(&Node{Kind: NodeLeaf, ID: op.W, Content: op.Content})
		next.Items[op.WParent].Children.Insert(op.ListIns, op.ListID)
	case OpInsChild:
		next.Items[op.WParent].Children.Insert(op.ListIns, op.ListID)
	case OpDelChild:
		next.Items[op.WParent].Children.Delete(op.ListID)
	}
	return next, true
}

// ApplyOp applies op, and on success advances history and current state.
// local must be true only for operations this replica itself created via
// Prep; it controls whether LastOp (this object's local dep chain) advances.
func (o *Object) ApplyOp(op *DocOp, local bool) bool {
	next, ok := o.Apply(op)
	if !ok {
		return false
	}
	h := op.Hash()
	o.Hist.Add(&h)
	o.State = next
	if local {
		o.LastOp = &h
	}
	return true
}

// Prep compares target (an externally-produced tree with IDs aligned to
// this object's current state by the bridge) against the current state
// and returns the single next operation needed to move toward it, or
// (nil, false) if they already match.
//
// The breadth-first walk guarantees parents are compared before their
// children, so a child referenced by a new AddParent/AddLeaf always has
// its own parent already resolved.
func (o *Object) Prep(target *Doc, replicaID uuid.UUID) (*DocOp, bool) {
	queue := []ID{o.State.Root}
	visited := make(map[ID]bool)

	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]
		if visited[pid] {
			continue
		}
		visited[pid] = true

		sNode, sOK := o.State.Items[pid]
		tNode, tOK := target.Items[pid]
		if !sOK || !tOK || sNode.Kind != NodeParent || tNode.Kind != NodeParent {
			continue
		}

		if op, ok := sNode.Children.GetOp(tNode.Children, replicaID); ok {
			return o.docOpFromListOp(pid, op, target), true
		}

		queue = append(queue, sNode.Children.InOrderUndel()...)
	}

	return nil, false
}

func (o *Object) dep() *cmrdt.Hash { return o.LastOp }

func (o *Object) docOpFromListOp(parent ID, op yata.Op[ID], target *Doc) *DocOp {
	base := DocOp{WParent: parent, ListID: op.ID, Dep: o.dep(), DriverIDVal: o.DriverIDVal}

	if op.Kind == yata.OpDeletion {
		base.Kind = OpDelChild
		return &base
	}

	base.ListIns = op.Ins
	childID := op.Ins.Content

	if _, exists := o.State.Items[childID]; exists {
		base.Kind = OpInsChild
		return &base
	}

	tNode := target.Items[childID]
	base.W = childID
	if tNode.Kind == NodeParent {
		base.Kind = OpAddParent
		base.Tag = tNode.Tag
	} else {
		base.Kind = OpAddLeaf
		base.Content = tNode.Content
	}
	return &base
}
