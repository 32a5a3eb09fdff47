package mdbridge

import (
	"testing"

	"github.com/google/uuid"

	"crfs/internal/mdast"
)

func TestGenerateAndToBlocksRoundTrips(t *testing.T) {
	src := "# Title\n\nHello *world* and **strong** and `code`.\n\n- one\n- two\n"
	creator := uuid.New()

	doc := Generate(mdast.Parse(src), creator)
	out := mdast.Render(ToBlocks(doc))

	if out != src {
		t.Fatalf("round trip mismatch:\n got: %q\nwant: %q", out, src)
	}
}

func TestGenerateAndToBlocksRoundTripsTable(t *testing.T) {
	src := "| A | B |\n| --- | --- |\n| 1 | 2 |\n"
	creator := uuid.New()

	doc := Generate(mdast.Parse(src), creator)
	out := mdast.Render(ToBlocks(doc))

	if out != src {
		t.Fatalf("round trip mismatch:\n got: %q\nwant: %q", out, src)
	}
}

func TestGenerateAgainstPreservesUnchangedIDs(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()

	src := "# Title\n\nFirst paragraph.\n\nSecond paragraph.\n"
	reference := Generate(mdast.Parse(src), alice)

	edited := "# Title\n\nFirst paragraph.\n\nSecond paragraph, edited.\n"
	next := GenerateAgainst(reference, mdast.Parse(edited), bob)

	headingID := reference.RootNode().Children.InOrderContentUndel()[0]
	firstParaID := reference.RootNode().Children.InOrderContentUndel()[1]

	nextChildren := next.RootNode().Children.InOrderContentUndel()
	if len(nextChildren) != 3 {
		t.Fatalf("expected heading + 2 paragraphs, got %d children", len(nextChildren))
	}
	if nextChildren[0] != headingID {
		t.Errorf("expected heading ID to survive unchanged, got new ID")
	}
	if nextChildren[1] != firstParaID {
		t.Errorf("expected untouched first paragraph ID to survive unchanged, got new ID")
	}

	if _, ok := next.Items[headingID]; !ok {
		t.Fatal("heading node missing from generated-against doc")
	}
	if next.Items[headingID].Children.InOrderContentUndel()[0] != reference.Items[headingID].Children.InOrderContentUndel()[0] {
		t.Error("expected heading's text leaf ID to also survive unchanged")
	}
}

func TestGenerateAgainstRoundTripsThroughToBlocks(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()

	src := "# Title\n\nOriginal body text.\n"
	reference := Generate(mdast.Parse(src), alice)

	edited := "# Title\n\nOriginal body text, with more.\n"
	next := GenerateAgainst(reference, mdast.Parse(edited), bob)

	out := mdast.Render(ToBlocks(next))
	if out != edited {
		t.Fatalf("round trip mismatch:\n got: %q\nwant: %q", out, edited)
	}
}
