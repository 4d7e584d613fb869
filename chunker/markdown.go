package chunker

import (
	"strings"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

type section struct {
	heading string
	body    []string
}

// StructureChunks splits markdown along its headings, keeping each
// section together and token-chunking sections that exceed the budget.
// Content before the first heading becomes its own section.
func (c *Chunker) StructureChunks(md string, base map[string]string) []Chunk {
	md = strings.TrimSpace(md)
	if md == "" {
		return nil
	}

	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := p.Parse([]byte(md))

	var sections []section
	current := section{}
	for _, node := range doc.GetChildren() {
		if h, ok := node.(*ast.Heading); ok && h.Level <= 3 {
			if current.heading != "" || len(current.body) > 0 {
				sections = append(sections, current)
			}
			current = section{heading: nodeText(h)}
			continue
		}
		if text := nodeText(node); text != "" {
			current.body = append(current.body, text)
		}
	}
	if current.heading != "" || len(current.body) > 0 {
		sections = append(sections, current)
	}

	var chunks []Chunk
	for _, sec := range sections {
		text := strings.TrimSpace(sec.heading + "\n\n" + strings.Join(sec.body, "\n\n"))
		if text == "" {
			continue
		}
		meta := cloneMeta(base)
		meta["chunk_type"] = "structure"
		if sec.heading != "" {
			meta["section"] = Truncate50(sec.heading)
		}
		if estimateTokens(text) <= c.TokenSize {
			chunks = append(chunks, Chunk{Content: c.Truncate(text), Metadata: meta})
			continue
		}
		for _, sub := range c.TokenChunks(text, meta) {
			sub.Metadata["chunk_type"] = "structure"
			chunks = append(chunks, sub)
		}
	}
	return chunks
}

// Truncate50 caps short descriptive metadata values.
func Truncate50(s string) string {
	if len(s) > 50 {
		return s[:50]
	}
	return s
}

// nodeText flattens a markdown node to plain text.
func nodeText(node ast.Node) string {
	var b strings.Builder
	ast.WalkFunc(node, func(n ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		switch v := n.(type) {
		case *ast.Text:
			b.Write(v.Literal)
		case *ast.Code:
			b.Write(v.Literal)
		case *ast.CodeBlock:
			b.Write(v.Literal)
			b.WriteByte('\n')
		case *ast.Softbreak, *ast.Hardbreak:
			b.WriteByte(' ')
		case *ast.Paragraph, *ast.ListItem, *ast.TableCell:
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
		}
		return ast.GoToNext
	})
	return strings.TrimSpace(b.String())
}
