// Package mdbridge implements the Markdown bridge (C4): lossless
// translation between a parsed Markdown AST (internal/mdast) and the
// document CRDT's tree shape (internal/docdoc).
package mdbridge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"crfs/internal/docdoc"
	"crfs/internal/mdast"
	"crfs/internal/yata"
)

// Parent tags used for Markdown's block and inline constructs. Heading
// levels and list ordering and link destinations are folded into the tag
// string itself rather than given their own struct fields on Node, since
// docdoc.Tag is already the generalized "what kind of parent is this"
// slot and these are the only constructs that need a parameter.
const (
	TagParagraph       docdoc.Tag = "Paragraph"
	TagBlockQuote      docdoc.Tag = "BlockQuote"
	TagList            docdoc.Tag = "List"
	TagOrderedList     docdoc.Tag = "OrderedList"
	TagListItem        docdoc.Tag = "ListItem"
	TagTable           docdoc.Tag = "Table"
	TagTableRow        docdoc.Tag = "TableRow"
	TagTableCell       docdoc.Tag = "TableCell"
	TagTableHeaderCell docdoc.Tag = "TableHeaderCell"
	TagEmphasis        docdoc.Tag = "Emphasis"
	TagStrong          docdoc.Tag = "Strong"
	headingPrefix                 = "Heading"
	linkPrefix                    = "Link:"
)

func headingTag(level int) docdoc.Tag { return docdoc.Tag(fmt.Sprintf("%s%d", headingPrefix, level)) }

func linkTag(dest string) docdoc.Tag { return docdoc.Tag(linkPrefix + dest) }

// Generate produces a fresh document CRDT state from a parsed Markdown
// tree, assigning every node a new random ID and attributing every list
// insertion to creator.
func Generate(doc *mdast.Block, creator uuid.UUID) *docdoc.Doc {
	out := docdoc.New()
	childIDs := genBlocks(out, doc.Children, creator)
	out.Items[out.Root].Children = yata.FromSlice(childIDs, creator)
	return out
}

// GenerateAgainst is like Generate, but re-keys nodes of the fresh tree to
// match content-equal nodes already present in reference, and aligns each
// surviving parent's children list against its counterpart in reference.
// This keeps a minor text edit from churning every node's identity.
func GenerateAgainst(reference *docdoc.Doc, doc *mdast.Block, creator uuid.UUID) *docdoc.Doc {
	fresh := Generate(doc, creator)

	order := fresh.BottomUp()
	claimed := make(map[docdoc.ID]bool)
	for _, id := range order {
		if id == fresh.Root {
			continue
		}
		node := fresh.Items[id]
		matchID, ok := reference.MatchNode(node, claimed)
		if !ok {
			continue
		}
		claimed[matchID] = true
		if matchID != id {
			fresh.RenameNode(id, matchID)
		}
	}

	for id, node := range fresh.Items {
		if node.Kind != docdoc.NodeParent {
			continue
		}
		refNode, ok := reference.Items[id]
		if !ok || refNode.Kind != docdoc.NodeParent {
			continue
		}
		node.Children.RenameAgainst(refNode.Children)
		node.Children.RenameCreators(refNode.Children)
	}

	return fresh
}

func genBlocks(doc *docdoc.Doc, blocks []*mdast.Block, creator uuid.UUID) []docdoc.ID {
	ids := make([]docdoc.ID, 0, len(blocks))
	for _, b := range blocks {
		ids = append(ids, genBlock(doc, b, creator))
	}
	return ids
}

func genBlock(doc *docdoc.Doc, b *mdast.Block, creator uuid.UUID) docdoc.ID {
	id := uuid.New()

	switch b.Kind {
	case mdast.ThematicBreak:
		doc.AddNode(&docdoc.Node{Kind: docdoc.NodeLeaf, ID: id, Content: docdoc.LeafContent{Kind: docdoc.LeafRule}})
		return id

	case mdast.CodeBlock:
		content := docdoc.LeafContent{Kind: docdoc.LeafCode, Text: b.Lang + "\n" + b.Text}
		doc.AddNode(&docdoc.Node{Kind: docdoc.NodeLeaf, ID: id, Content: content})
		return id

	case mdast.Heading:
		children := genInlines(doc, b.Inlines, creator)
		doc.AddNode(&docdoc.Node{Kind: docdoc.NodeParent, ID: id, Tag: headingTag(b.Level), Children: yata.FromSlice(children, creator)})
		return id

	case mdast.Paragraph:
		children := genInlines(doc, b.Inlines, creator)
		doc.AddNode(&docdoc.Node{Kind: docdoc.NodeParent, ID: id, Tag: TagParagraph, Children: yata.FromSlice(children, creator)})
		return id

	case mdast.BlockQuote:
		children := genBlocks(doc, b.Children, creator)
		doc.AddNode(&docdoc.Node{Kind: docdoc.NodeParent, ID: id, Tag: TagBlockQuote, Children: yata.FromSlice(children, creator)})
		return id

	case mdast.List:
		tag := TagList
		if b.Ordered {
			tag = TagOrderedList
		}
		children := genBlocks(doc, b.Children, creator)
		doc.AddNode(&docdoc.Node{Kind: docdoc.NodeParent, ID: id, Tag: tag, Children: yata.FromSlice(children, creator)})
		return id

	case mdast.ListItem:
		children := genBlocks(doc, b.Children, creator)
		doc.AddNode(&docdoc.Node{Kind: docdoc.NodeParent, ID: id, Tag: TagListItem, Children: yata.FromSlice(children, creator)})
		return id

	case mdast.Table:
		children := genBlocks(doc, b.Children, creator)
		doc.AddNode(&docdoc.Node{Kind: docdoc.NodeParent, ID: id, Tag: TagTable, Children: yata.FromSlice(children, creator)})
		return id

	case mdast.TableRow:
		children := genBlocks(doc, b.Children, creator)
		doc.AddNode(&docdoc.Node{Kind: docdoc.NodeParent, ID: id, Tag: TagTableRow, Children: yata.FromSlice(children, creator)})
		return id

	case mdast.TableCell:
		tag := TagTableCell
		if b.Header {
			tag = TagTableHeaderCell
		}
		children := genInlines(doc, b.Inlines, creator)
		doc.AddNode(&docdoc.Node{Kind: docdoc.NodeParent, ID: id, Tag: tag, Children: yata.FromSlice(children, creator)})
		return id
	}

	panic(fmt.Sprintf("mdbridge: unhandled block kind %v", b.Kind))
}

func genInlines(doc *docdoc.Doc, inlines []*mdast.Inline, creator uuid.UUID) []docdoc.ID {
	ids := make([]docdoc.ID, 0, len(inlines))
	for _, in := range inlines {
		ids = append(ids, genInline(doc, in, creator))
	}
	return ids
}

func genInline(doc *docdoc.Doc, in *mdast.Inline, creator uuid.UUID) docdoc.ID {
	id := uuid.New()

	switch in.Kind {
	case mdast.Text:
		doc.AddNode(&docdoc.Node{Kind: docdoc.NodeLeaf, ID: id, Content: docdoc.LeafContent{Kind: docdoc.LeafText, Text: in.Text}})
	case mdast.Code:
		doc.AddNode(&docdoc.Node{Kind: docdoc.NodeLeaf, ID: id, Content: docdoc.LeafContent{Kind: docdoc.LeafCode, Text: in.Text}})
	case mdast.SoftBreak:
		doc.AddNode(&docdoc.Node{Kind: docdoc.NodeLeaf, ID: id, Content: docdoc.LeafContent{Kind: docdoc.LeafSoftBreak}})
	case mdast.HardBreak:
		doc.AddNode(&docdoc.Node{Kind: docdoc.NodeLeaf, ID: id, Content: docdoc.LeafContent{Kind: docdoc.LeafHardBreak}})
	case mdast.Emphasis:
		children := genInlines(doc, in.Children, creator)
		doc.AddNode(&docdoc.Node{Kind: docdoc.NodeParent, ID: id, Tag: TagEmphasis, Children: yata.FromSlice(children, creator)})
	case mdast.Strong:
		children := genInlines(doc, in.Children, creator)
		doc.AddNode(&docdoc.Node{Kind: docdoc.NodeParent, ID: id, Tag: TagStrong, Children: yata.FromSlice(children, creator)})
	case mdast.Link:
		children := genInlines(doc, in.Children, creator)
		doc.AddNode(&docdoc.Node{Kind: docdoc.NodeParent, ID: id, Tag: linkTag(in.Dest), Children: yata.FromSlice(children, creator)})
	default:
		panic(fmt.Sprintf("mdbridge: unhandled inline kind %v", in.Kind))
	}
	return id
}

// ToBlocks reads doc's children in undeleted document order and maps
// node IDs back to a Markdown AST. A leaf or tag that cannot legally
// appear in its position is a programming error (a driver or bridge bug,
// not user input) and panics, matching spec.md §4.4.
func ToBlocks(doc *docdoc.Doc) *mdast.Block {
	root := &mdast.Block{Kind: mdast.Document}
	for _, id := range doc.RootNode().Children.InOrderContentUndel() {
		root.Children = append(root.Children, blockFromNode(doc, id))
	}
	return root
}

func blocksFromChildren(doc *docdoc.Doc, node *docdoc.Node) []*mdast.Block {
	var out []*mdast.Block
	for _, id := range node.Children.InOrderContentUndel() {
		out = append(out, blockFromNode(doc, id))
	}
	return out
}

func inlinesFromChildren(doc *docdoc.Doc, node *docdoc.Node) []*mdast.Inline {
	var out []*mdast.Inline
	for _, id := range node.Children.InOrderContentUndel() {
		out = append(out, inlineFromNode(doc, id))
	}
	return out
}

func blockFromNode(doc *docdoc.Doc, id docdoc.ID) *mdast.Block {
	node := doc.Items[id]

	if node.Kind == docdoc.NodeLeaf {
		switch node.Content.Kind {
		case docdoc.LeafRule:
			return &mdast.Block{Kind: mdast.ThematicBreak}
		case docdoc.LeafCode:
			lang, text := splitCodeContent(node.Content.Text)
			return &mdast.Block{Kind: mdast.CodeBlock, Lang: lang, Text: text}
		}
		panic(fmt.Sprintf("mdbridge: leaf kind %v not valid at block level", node.Content.Kind))
	}

	tag := string(node.Tag)
	switch {
	case strings.HasPrefix(tag, headingPrefix):
		level, err := strconv.Atoi(strings.TrimPrefix(tag, headingPrefix))
		if err != nil {
			panic(fmt.Sprintf("mdbridge: malformed heading tag %q", tag))
		}
		return &mdast.Block{Kind: mdast.Heading, Level: level, Inlines: inlinesFromChildren(doc, node)}
	case node.Tag == TagParagraph:
		return &mdast.Block{Kind: mdast.Paragraph, Inlines: inlinesFromChildren(doc, node)}
	case node.Tag == TagBlockQuote:
		return &mdast.Block{Kind: mdast.BlockQuote, Children: blocksFromChildren(doc, node)}
	case node.Tag == TagList, node.Tag == TagOrderedList:
		return &mdast.Block{Kind: mdast.List, Ordered: node.Tag == TagOrderedList, Children: blocksFromChildren(doc, node)}
	case node.Tag == TagListItem:
		return &mdast.Block{Kind: mdast.ListItem, Children: blocksFromChildren(doc, node)}
	case node.Tag == TagTable:
		return &mdast.Block{Kind: mdast.Table, Children: blocksFromChildren(doc, node)}
	case node.Tag == TagTableRow:
		return &mdast.Block{Kind: mdast.TableRow, Children: blocksFromChildren(doc, node)}
	case node.Tag == TagTableCell, node.Tag == TagTableHeaderCell:
		return &mdast.Block{Kind: mdast.TableCell, Header: node.Tag == TagTableHeaderCell, Inlines: inlinesFromChildren(doc, node)}
	}

	panic(fmt.Sprintf("mdbridge: unknown block tag %q", tag))
}

func inlineFromNode(doc *docdoc.Doc, id docdoc.ID) *mdast.Inline {
	node := doc.Items[id]

	if node.Kind == docdoc.NodeLeaf {
		switch node.Content.Kind {
		case docdoc.LeafText:
			return &mdast.Inline{Kind: mdast.Text, Text: node.Content.Text}
		case docdoc.LeafCode:
			return &mdast.Inline{Kind: mdast.Code, Text: node.Content.Text}
		case docdoc.LeafSoftBreak:
			return &mdast.Inline{Kind: mdast.SoftBreak}
		case docdoc.LeafHardBreak:
			return &mdast.Inline{Kind: mdast.HardBreak}
		}
		panic(fmt.Sprintf("mdbridge: leaf kind %v not valid at inline level", node.Content.Kind))
	}

	tag := string(node.Tag)
	switch {
	case node.Tag == TagEmphasis:
		return &mdast.Inline{Kind: mdast.Emphasis, Children: inlinesFromChildren(doc, node)}
	case node.Tag == TagStrong:
		return &mdast.Inline{Kind: mdast.Strong, Children: inlinesFromChildren(doc, node)}
	case strings.HasPrefix(tag, linkPrefix):
		dest := strings.TrimPrefix(tag, linkPrefix)
		return &mdast.Inline{Kind: mdast.Link, Dest: dest, Children: inlinesFromChildren(doc, node)}
	}

	panic(fmt.Sprintf("mdbridge: unknown inline tag %q", tag))
}

func splitCodeContent(text string) (lang, body string) {
	parts := strings.SplitN(text, "\n", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}
