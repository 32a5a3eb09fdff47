// Package mdast is a minimal Markdown AST plus a tokenizer/parser and a
// canonical serializer. It stands in for "the external Markdown parser"
// spec.md treats as an out-of-scope collaborator (internal/mdbridge does
// the actual in-scope translation to and from the document CRDT).
//
// It supports the common-enough subset exercised by this engine: ATX
// headings, paragraphs, block quotes, fenced code blocks, thematic
// breaks, bullet/ordered lists, pipe tables, and the inline constructs
// text, code spans, emphasis, strong emphasis, links, and soft/hard
// breaks. It is not a CommonMark-conformant implementation.
package mdast

import (
	"strconv"
	"strings"
)

// BlockKind enumerates the block-level node variants.
type BlockKind int

const (
	Document BlockKind = iota
	Heading
	Paragraph
	BlockQuote
	List
	ListItem
	CodeBlock
	ThematicBreak
	Table
	TableRow
	TableCell
)

// InlineKind enumerates the inline node variants.
type InlineKind int

const (
	Text InlineKind = iota
	Code
	Emphasis
	Strong
	Link
	SoftBreak
	HardBreak
)

// Inline is a single inline node. Children holds nested inlines for
// Emphasis/Strong/Link; Text holds literal content for Text/Code; Dest
// holds the URL for Link.
type Inline struct {
	Kind     InlineKind
	Text     string
	Dest     string
	Children []*Inline
}

// Block is a single block-level node. Children holds nested blocks for
// container kinds (Document/BlockQuote/List/ListItem/Table/TableRow);
// Inlines holds inline content for leaf kinds (Heading/Paragraph/TableCell).
type Block struct {
	Kind     BlockKind
	Level    int
	Ordered  bool
	Lang     string
	Text     string
	Header   bool
	Inlines  []*Inline
	Children []*Block
}

// Parse tokenizes src into a Document block.
func Parse(src string) *Block {
	lines := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")
	doc := &Block{Kind: Document}
	doc.Children = parseBlocks(lines)
	return doc
}

func parseBlocks(lines []string) []*Block {
	var blocks []*Block
	i := 0
	for i < len(lines) {
		line := lines[i]

		switch {
		case strings.TrimSpace(line) == "":
			i++

		case isThematicBreak(line):
			blocks = append(blocks, &Block{Kind: ThematicBreak})
			i++

		case strings.HasPrefix(strings.TrimLeft(line, " "), "#"):
			level, text := parseHeadingLine(line)
			blocks = append(blocks, &Block{Kind: Heading, Level: level, Inlines: ParseInlines(text)})
			i++

		case strings.HasPrefix(strings.TrimLeft(line, " "), "```"):
			lang, text, consumed := parseFencedCode(lines[i:])
			blocks = append(blocks, &Block{Kind: CodeBlock, Lang: lang, Text: text})
			i += consumed

		case strings.HasPrefix(strings.TrimLeft(line, " "), ">"):
			quoteLines, consumed := collectQuoted(lines[i:])
			blocks = append(blocks, &Block{Kind: BlockQuote, Children: parseBlocks(quoteLines)})
			i += consumed

		case isTableHeader(lines, i):
			table, consumed := parseTable(lines[i:])
			blocks = append(blocks, table)
			i += consumed

		case isListItemLine(line):
			list, consumed := parseList(lines[i:])
			blocks = append(blocks, list)
			i += consumed

		default:
			paraLines, consumed := collectParagraph(lines[i:])
			blocks = append(blocks, &Block{Kind: Paragraph, Inlines: ParseInlines(strings.Join(paraLines, "\n"))})
			i += consumed
		}
	}
	return blocks
}

func isThematicBreak(line string) bool {
	t := strings.ReplaceAll(strings.TrimSpace(line), " ", "")
	if len(t) < 3 {
		return false
	}
	for _, r := range []byte{'-', '*', '_'} {
		if strings.Count(t, string(r)) == len(t) {
			return true
		}
	}
	return false
}

func parseHeadingLine(line string) (int, string) {
	trimmed := strings.TrimLeft(line, " ")
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	text := strings.TrimSpace(trimmed[level:])
	return level, text
}

func parseFencedCode(lines []string) (lang, text string, consumed int) {
	fenceLine := strings.TrimLeft(lines[0], " ")
	lang = strings.TrimSpace(strings.TrimPrefix(fenceLine, "```"))
	var body []string
	i := 1
	for i < len(lines) {
		if strings.TrimSpace(lines[i]) == "```" {
			i++
			break
		}
		body = append(body, lines[i])
		i++
	}
	return lang, strings.Join(body, "\n"), i
}

func collectQuoted(lines []string) (inner []string, consumed int) {
	for consumed < len(lines) {
		line := lines[consumed]
		trimmed := strings.TrimLeft(line, " ")
		if !strings.HasPrefix(trimmed, ">") {
			break
		}
		inner = append(inner, strings.TrimPrefix(strings.TrimPrefix(trimmed, ">"), " "))
		consumed++
	}
	return inner, consumed
}

func collectParagraph(lines []string) (para []string, consumed int) {
	for consumed < len(lines) {
		line := lines[consumed]
		if strings.TrimSpace(line) == "" {
			break
		}
		if isThematicBreak(line) || strings.HasPrefix(strings.TrimLeft(line, " "), "#") ||
			strings.HasPrefix(strings.TrimLeft(line, " "), "```") ||
			strings.HasPrefix(strings.TrimLeft(line, " "), ">") ||
			isListItemLine(line) {
			break
		}
		para = append(para, line)
		consumed++
	}
	return para, consumed
}

func isListItemLine(line string) bool {
	t := strings.TrimLeft(line, " ")
	if strings.HasPrefix(t, "- ") || strings.HasPrefix(t, "* ") || strings.HasPrefix(t, "+ ") {
		return true
	}
	if i := strings.IndexByte(t, '.'); i > 0 && i < 10 {
		if _, err := strconv.Atoi(t[:i]); err == nil && strings.HasPrefix(t[i+1:], " ") {
			return true
		}
	}
	return false
}

func parseList(lines []string) (*Block, int) {
	list := &Block{Kind: List}
	ordered := false
	i := 0
	for i < len(lines) && isListItemLine(lines[i]) {
		t := strings.TrimLeft(lines[i], " ")
		var itemText string
		if strings.HasPrefix(t, "- ") || strings.HasPrefix(t, "* ") || strings.HasPrefix(t, "+ ") {
			itemText = t[2:]
		} else {
			ordered = true
			dot := strings.IndexByte(t, '.')
			itemText = strings.TrimPrefix(t[dot+1:], " ")
		}
		item := &Block{Kind: ListItem, Children: []*Block{{Kind: Paragraph, Inlines: ParseInlines(itemText)}}}
		list.Children = append(list.Children, item)
		i++
	}
	list.Ordered = ordered
	return list, i
}

func isTableHeader(lines []string, i int) bool {
	if i+1 >= len(lines) {
		return false
	}
	if !strings.Contains(lines[i], "|") {
		return false
	}
	sep := strings.TrimSpace(lines[i+1])
	if sep == "" {
		return false
	}
	for _, r := range sep {
		if r != '|' && r != '-' && r != ':' && r != ' ' {
			return false
		}
	}
	return strings.Contains(sep, "-")
}

func parseTable(lines []string) (*Block, int) {
	table := &Block{Kind: Table}
	header := splitTableRow(lines[0])
	headerRow := &Block{Kind: TableRow}
	for _, cell := range header {
		headerRow.Children = append(headerRow.Children, &Block{Kind: TableCell, Header: true, Inlines: ParseInlines(cell)})
	}
	table.Children = append(table.Children, headerRow)

	i := 2
	for i < len(lines) {
		line := lines[i]
		if strings.TrimSpace(line) == "" || !strings.Contains(line, "|") {
			break
		}
		row := &Block{Kind: TableRow}
		for _, cell := range splitTableRow(line) {
			row.Children = append(row.Children, &Block{Kind: TableCell, Inlines: ParseInlines(cell)})
		}
		table.Children = append(table.Children, row)
		i++
	}
	return table, i
}

func splitTableRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.Trim(line, "|")
	parts := strings.Split(line, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// ParseInlines tokenizes a run of text into inline nodes, handling
// **strong**, *emphasis*, `code`, [text](dest), and soft/hard breaks.
func ParseInlines(text string) []*Inline {
	var out []*Inline
	lines := strings.Split(text, "\n")
	for li, line := range lines {
		out = append(out, parseInlineLine(line)...)
		if li < len(lines)-1 {
			if strings.HasSuffix(line, "  ") {
				out = append(out, &Inline{Kind: HardBreak})
			} else {
				out = append(out, &Inline{Kind: SoftBreak})
			}
		}
	}
	return out
}

func parseInlineLine(line string) []*Inline {
	var out []*Inline
	runes := []rune(strings.TrimRight(line, " "))
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, &Inline{Kind: Text, Text: buf.String()})
			buf.Reset()
		}
	}

	for i := 0; i < len(runes); i++ {
		switch {
		case i+1 < len(runes) && runes[i] == '*' && runes[i+1] == '*':
			if end := findClose(runes, i+2, "**"); end >= 0 {
				flush()
				out = append(out, &Inline{Kind: Strong, Children: ParseInlines(string(runes[i+2 : end]))})
				i = end + 1
				continue
			}
			buf.WriteRune(runes[i])

		case runes[i] == '*':
			if end := findClose(runes, i+1, "*"); end >= 0 {
				flush()
				out = append(out, &Inline{Kind: Emphasis, Children: ParseInlines(string(runes[i+1 : end]))})
				i = end
				continue
			}
			buf.WriteRune(runes[i])

		case runes[i] == '`':
			if end := findClose(runes, i+1, "`"); end >= 0 {
				flush()
				out = append(out, &Inline{Kind: Code, Text: string(runes[i+1 : end])})
				i = end
				continue
			}
			buf.WriteRune(runes[i])

		case runes[i] == '[':
			if textEnd := indexRune(runes, i+1, ']'); textEnd >= 0 && textEnd+1 < len(runes) && runes[textEnd+1] == '(' {
				if destEnd := indexRune(runes, textEnd+2, ')'); destEnd >= 0 {
					flush()
					linkText := string(runes[i+1 : textEnd])
					dest := string(runes[textEnd+2 : destEnd])
					out = append(out, &Inline{Kind: Link, Dest: dest, Children: ParseInlines(linkText)})
					i = destEnd
					continue
				}
			}
			buf.WriteRune(runes[i])

		default:
			buf.WriteRune(runes[i])
		}
	}
	flush()
	return out
}

func findClose(runes []rune, from int, marker string) int {
	m := []rune(marker)
	for i := from; i+len(m) <= len(runes); i++ {
		match := true
		for j, r := range m {
			if runes[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func indexRune(runes []rune, from int, r rune) int {
	for i := from; i < len(runes); i++ {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

// Render serializes doc back into canonical Markdown text.
func Render(doc *Block) string {
	var sb strings.Builder
	renderBlocks(&sb, doc.Children)
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func renderBlocks(sb *strings.Builder, blocks []*Block) {
	for i, b := range blocks {
		if i > 0 {
			sb.WriteString("\n")
		}
		renderBlock(sb, b)
	}
}

func renderBlock(sb *strings.Builder, b *Block) {
	switch b.Kind {
	case Heading:
		sb.WriteString(strings.Repeat("#", b.Level))
		sb.WriteString(" ")
		renderInlines(sb, b.Inlines)
		sb.WriteString("\n")
	case Paragraph:
		renderInlines(sb, b.Inlines)
		sb.WriteString("\n")
	case ThematicBreak:
		sb.WriteString("---\n")
	case CodeBlock:
		sb.WriteString("```")
		sb.WriteString(b.Lang)
		sb.WriteString("\n")
		sb.WriteString(b.Text)
		sb.WriteString("\n```\n")
	case BlockQuote:
		var inner strings.Builder
		renderBlocks(&inner, b.Children)
		for _, line := range strings.Split(strings.TrimRight(inner.String(), "\n"), "\n") {
			sb.WriteString("> ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	case List:
		for i, item := range b.Children {
			marker := "- "
			if b.Ordered {
				marker = strconv.Itoa(i+1) + ". "
			}
			sb.WriteString(marker)
			var inner strings.Builder
			renderBlocks(&inner, item.Children)
			sb.WriteString(strings.TrimRight(inner.String(), "\n"))
			sb.WriteString("\n")
		}
	case Table:
		for ri, row := range b.Children {
			sb.WriteString("|")
			for _, cell := range row.Children {
				sb.WriteString(" ")
				renderInlines(sb, cell.Inlines)
				sb.WriteString(" |")
			}
			sb.WriteString("\n")
			if ri == 0 {
				sb.WriteString("|")
				for range row.Children {
					sb.WriteString(" --- |")
				}
				sb.WriteString("\n")
			}
		}
	}
}

func renderInlines(sb *strings.Builder, inlines []*Inline) {
	for _, in := range inlines {
		renderInline(sb, in)
	}
}

func renderInline(sb *strings.Builder, in *Inline) {
	switch in.Kind {
	case Text:
		sb.WriteString(in.Text)
	case Code:
		sb.WriteString("`")
		sb.WriteString(in.Text)
		sb.WriteString("`")
	case Emphasis:
		sb.WriteString("*")
		renderInlines(sb, in.Children)
		sb.WriteString("*")
	case Strong:
		sb.WriteString("**")
		renderInlines(sb, in.Children)
		sb.WriteString("**")
	case Link:
		sb.WriteString("[")
		renderInlines(sb, in.Children)
		sb.WriteString("](")
		sb.WriteString(in.Dest)
		sb.WriteString(")")
	case SoftBreak:
		sb.WriteString("\n")
	case HardBreak:
		sb.WriteString("  \n")
	}
}
