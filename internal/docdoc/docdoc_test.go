package docdoc

import (
	"testing"

	"github.com/google/uuid"

	"crfs/internal/cmrdt"
	"crfs/internal/driverid"
	"crfs/internal/yata"
)

func TestNewDocHasOnlyRoot(t *testing.T) {
	d := New()
	if len(d.Items) != 1 {
		t.Fatalf("expected a fresh doc to contain only the root, got %d items", len(d.Items))
	}
	if d.Root != RootID {
		t.Fatalf("expected root id %v, got %v", RootID, d.Root)
	}
}

func TestPrepAndApplyAddLeafConverges(t *testing.T) {
	replica := uuid.New()
	obj := NewObject(driverid.Driver(1))

	target := New()
	leaf := &Node{Kind: NodeLeaf, ID: uuid.New(), Content: LeafContent{Kind: LeafText, Text: "hello"}}
	target.AddNode(leaf)
	target.RootNode().Children.InsertAt(0, leaf.ID, replica)

	for i := 0; i < 10; i++ {
		op, ok := obj.Prep(target, replica)
		if !ok {
			break
		}
		if !obj.ApplyOp(op, true) {
			t.Fatalf("expected ApplyOp to succeed for op %+v", op)
		}
	}

	if _, ok := obj.Prep(target, replica); ok {
		t.Fatal("expected Prep to report convergence after applying every op")
	}

	got, ok := obj.State.Items[leaf.ID]
	if !ok {
		t.Fatal("expected the leaf to exist in the converged state")
	}
	if got.Content.Text != "hello" {
		t.Fatalf("expected leaf content %q, got %q", "hello", got.Content.Text)
	}
}

func TestPrepAddParentThenLeafUnderIt(t *testing.T) {
	replica := uuid.New()
	obj := NewObject(driverid.Driver(1))

	target := New()
	parent := &Node{Kind: NodeParent, ID: uuid.New(), Tag: Tag("Paragraph"), Children: yata.Empty[ID]()}
	target.AddNode(parent)
	target.RootNode().Children.InsertAt(0, parent.ID, replica)

	leaf := &Node{Kind: NodeLeaf, ID: uuid.New(), Content: LeafContent{Kind: LeafText, Text: "inner"}}
	target.AddNode(leaf)
	parent.Children.InsertAt(0, leaf.ID, replica)

	for i := 0; i < 10; i++ {
		op, ok := obj.Prep(target, replica)
		if !ok {
			break
		}
		if !obj.ApplyOp(op, true) {
			t.Fatalf("expected ApplyOp to succeed for op %+v", op)
		}
	}

	if _, ok := obj.Prep(target, replica); ok {
		t.Fatal("expected convergence")
	}

	gotParent, ok := obj.State.Items[parent.ID]
	if !ok || gotParent.Tag != Tag("Paragraph") {
		t.Fatalf("expected converged parent with tag Paragraph, got %+v (ok=%v)", gotParent, ok)
	}
	gotLeaf, ok := obj.State.Items[leaf.ID]
	if !ok || gotLeaf.Content.Text != "inner" {
		t.Fatalf("expected converged leaf with text 'inner', got %+v (ok=%v)", gotLeaf, ok)
	}
}

func TestApplyOpFailsWhenDependencyMissing(t *testing.T) {
	obj := NewObject(driverid.Driver(1))
	var missing cmrdt.Hash
	missing[0] = 0xff

	op := &DocOp{
		Kind: OpAddLeaf, W: uuid.New(), WParent: RootID,
		Content: LeafContent{Kind: LeafText, Text: "x"},
		ListID:  yata.NewID(),
		ListIns: yata.Insertion[ID]{Origin: yata.Left, Left: yata.Left, Right: yata.Right, Content: uuid.New(), Creator: uuid.New()},
		Dep:     &missing,
	}
	if obj.ApplyOp(op, false) {
		t.Fatal("expected ApplyOp to fail when its dependency is absent from history")
	}
}

func TestRenameNodeReKeysReferences(t *testing.T) {
	d := New()
	leaf := &Node{Kind: NodeLeaf, ID: uuid.New(), Content: LeafContent{Kind: LeafText, Text: "x"}}
	d.AddNode(leaf)
	d.RootNode().Children.InsertAt(0, leaf.ID, uuid.New())

	newID := uuid.New()
	d.RenameNode(leaf.ID, newID)

	if _, stillThere := d.Items[leaf.ID]; stillThere {
		t.Fatal("expected the old ID to be gone after rename")
	}
	if _, ok := d.Items[newID]; !ok {
		t.Fatal("expected the new ID to be present after rename")
	}
	content := d.RootNode().Children.InOrderContent()
	if len(content) != 1 || content[0] != newID {
		t.Fatalf("expected the root's child reference to be re-keyed, got %v", content)
	}
}

func TestBottomUpOrdersChildrenBeforeParent(t *testing.T) {
	d := New()
	parent := &Node{Kind: NodeParent, ID: uuid.New(), Tag: Tag("Section"), Children: yata.Empty[ID]()}
	d.AddNode(parent)
	d.RootNode().Children.InsertAt(0, parent.ID, uuid.New())

	leaf := &Node{Kind: NodeLeaf, ID: uuid.New(), Content: LeafContent{Kind: LeafText, Text: "x"}}
	d.AddNode(leaf)
	parent.Children.InsertAt(0, leaf.ID, uuid.New())

	order := d.BottomUp()
	pos := make(map[ID]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	if pos[leaf.ID] >= pos[parent.ID] {
		t.Fatalf("expected leaf to precede its parent in bottom-up order, got %v", order)
	}
	if pos[parent.ID] >= pos[d.Root] {
		t.Fatalf("expected parent to precede the root, got %v", order)
	}
}
