package mdast

import (
	"strings"
	"testing"
)

func TestParseHeadingAndParagraph(t *testing.T) {
	doc := Parse("# Title\n\nSome *em* and **strong** text.\n")
	if len(doc.Children) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(doc.Children))
	}
	if doc.Children[0].Kind != Heading || doc.Children[0].Level != 1 {
		t.Fatalf("expected level-1 heading, got %+v", doc.Children[0])
	}
	if doc.Children[1].Kind != Paragraph {
		t.Fatalf("expected paragraph, got %+v", doc.Children[1])
	}
}

func TestParseCodeBlock(t *testing.T) {
	doc := Parse("```go\nfmt.Println(\"hi\")\n```\n")
	if len(doc.Children) != 1 || doc.Children[0].Kind != CodeBlock {
		t.Fatalf("expected single code block, got %+v", doc.Children)
	}
	if doc.Children[0].Lang != "go" {
		t.Errorf("expected lang go, got %q", doc.Children[0].Lang)
	}
	if doc.Children[0].Text != `fmt.Println("hi")` {
		t.Errorf("unexpected code text %q", doc.Children[0].Text)
	}
}

func TestParseList(t *testing.T) {
	doc := Parse("- one\n- two\n- three\n")
	if len(doc.Children) != 1 || doc.Children[0].Kind != List {
		t.Fatalf("expected single list, got %+v", doc.Children)
	}
	if doc.Children[0].Ordered {
		t.Error("expected unordered list")
	}
	if len(doc.Children[0].Children) != 3 {
		t.Fatalf("expected 3 items, got %d", len(doc.Children[0].Children))
	}
}

func TestParseOrderedList(t *testing.T) {
	doc := Parse("1. one\n2. two\n")
	if !doc.Children[0].Ordered {
		t.Error("expected ordered list")
	}
}

func TestParseTable(t *testing.T) {
	src := "| A | B |\n| --- | --- |\n| 1 | 2 |\n"
	doc := Parse(src)
	if len(doc.Children) != 1 || doc.Children[0].Kind != Table {
		t.Fatalf("expected single table, got %+v", doc.Children)
	}
	if len(doc.Children[0].Children) != 2 {
		t.Fatalf("expected header + 1 row, got %d", len(doc.Children[0].Children))
	}
	header := doc.Children[0].Children[0]
	if !header.Children[0].Header {
		t.Error("expected first cell of first row flagged as header")
	}
}

func TestParseBlockQuote(t *testing.T) {
	doc := Parse("> quoted line\n> more\n")
	if len(doc.Children) != 1 || doc.Children[0].Kind != BlockQuote {
		t.Fatalf("expected block quote, got %+v", doc.Children)
	}
}

func TestParseThematicBreak(t *testing.T) {
	doc := Parse("text\n\n---\n\nmore\n")
	found := false
	for _, b := range doc.Children {
		if b.Kind == ThematicBreak {
			found = true
		}
	}
	if !found {
		t.Error("expected a thematic break block")
	}
}

func TestParseInlinesLink(t *testing.T) {
	inlines := ParseInlines("see [docs](https://example.com) now")
	var link *Inline
	for _, in := range inlines {
		if in.Kind == Link {
			link = in
		}
	}
	if link == nil {
		t.Fatal("expected a link inline")
	}
	if link.Dest != "https://example.com" {
		t.Errorf("unexpected dest %q", link.Dest)
	}
}

func TestRenderRoundTripsParagraphAndHeading(t *testing.T) {
	src := "# Title\n\nHello *world* and `code`.\n"
	doc := Parse(src)
	out := Render(doc)
	if !strings.Contains(out, "# Title") {
		t.Errorf("rendered output missing heading: %q", out)
	}
	if !strings.Contains(out, "*world*") {
		t.Errorf("rendered output missing emphasis: %q", out)
	}
	if !strings.Contains(out, "`code`") {
		t.Errorf("rendered output missing code span: %q", out)
	}
}

func TestRenderCodeBlockRoundTrip(t *testing.T) {
	src := "```go\nx := 1\n```\n"
	doc := Parse(src)
	out := Render(doc)
	if out != src {
		t.Errorf("expected exact round trip, got %q", out)
	}
}
