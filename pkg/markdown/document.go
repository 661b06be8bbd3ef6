// Package markdown turns model answers into a document tree the client renders
// node by node, so no generated text is ever injected as raw markup.
package markdown

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

type BlockKind string

const (
	KindHeading   BlockKind = "heading"
	KindParagraph BlockKind = "paragraph"
	KindList      BlockKind = "list"
	KindCode      BlockKind = "code"
	KindQuote     BlockKind = "quote"
	KindRule      BlockKind = "rule"
)

type Document struct {
	Blocks []Block `json:"blocks"`
}

type Block struct {
	Kind     BlockKind  `json:"kind"`
	Level    int        `json:"level,omitempty"`
	Ordered  bool       `json:"ordered,omitempty"`
	Language string     `json:"language,omitempty"`
	Code     string     `json:"code,omitempty"`
	Inlines  []Inline   `json:"inlines,omitempty"`
	Items    []ListItem `json:"items,omitempty"`
	Children []Block    `json:"children,omitempty"`
}

type ListItem struct {
	Blocks []Block `json:"blocks"`
}

// Inline is a run of text sharing one style.
type Inline struct {
	Text     string `json:"text"`
	Strong   bool   `json:"strong,omitempty"`
	Emphasis bool   `json:"emphasis,omitempty"`
	Code     bool   `json:"code,omitempty"`
	Link     string `json:"link,omitempty"`
}

var parser = goldmark.New().Parser()

func Parse(src string) *Document {
	source := []byte(src)
	root := parser.Parse(text.NewReader(source))
	return &Document{Blocks: collectBlocks(root, source)}
}

func collectBlocks(parent ast.Node, src []byte) []Block {
	blocks := []Block{}
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		switch v := n.(type) {
		case *ast.Heading:
			blocks = append(blocks, Block{Kind: KindHeading, Level: v.Level, Inlines: collectInlines(v, src, Inline{}, nil)})
		case *ast.Paragraph, *ast.TextBlock:
			blocks = append(blocks, Block{Kind: KindParagraph, Inlines: collectInlines(v, src, Inline{}, nil)})
		case *ast.List:
			block := Block{Kind: KindList, Ordered: v.IsOrdered()}
			for item := v.FirstChild(); item != nil; item = item.NextSibling() {
				block.Items = append(block.Items, ListItem{Blocks: collectBlocks(item, src)})
			}
			blocks = append(blocks, block)
		case *ast.FencedCodeBlock:
			blocks = append(blocks, Block{Kind: KindCode, Language: string(v.Language(src)), Code: lineText(v, src)})
		case *ast.CodeBlock:
			blocks = append(blocks, Block{Kind: KindCode, Code: lineText(v, src)})
		case *ast.Blockquote:
			blocks = append(blocks, Block{Kind: KindQuote, Children: collectBlocks(v, src)})
		case *ast.ThematicBreak:
			blocks = append(blocks, Block{Kind: KindRule})
		case *ast.HTMLBlock:
			// kept as literal text
			blocks = append(blocks, Block{Kind: KindParagraph, Inlines: []Inline{{Text: lineText(v, src)}}})
		default:
			blocks = append(blocks, collectBlocks(n, src)...)
		}
	}
	return blocks
}

func collectInlines(parent ast.Node, src []byte, style Inline, out []Inline) []Inline {
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		switch v := n.(type) {
		case *ast.Text:
			run := style
			run.Text = textValue(v, src)
			if v.HardLineBreak() {
				run.Text += "\n"
			} else if v.SoftLineBreak() {
				run.Text += " "
			}
			out = appendRun(out, run)
		case *ast.String:
			run := style
			run.Text = string(v.Value)
			out = appendRun(out, run)
		case *ast.CodeSpan:
			run := style
			run.Code = true
			run.Text = plainText(v, src)
			out = appendRun(out, run)
		case *ast.Emphasis:
			inner := style
			if v.Level >= 2 {
				inner.Strong = true
			} else {
				inner.Emphasis = true
			}
			out = collectInlines(v, src, inner, out)
		case *ast.Link:
			inner := style
			inner.Link = string(v.Destination)
			out = collectInlines(v, src, inner, out)
		case *ast.AutoLink:
			run := style
			run.Link = string(v.URL(src))
			run.Text = string(v.Label(src))
			out = appendRun(out, run)
		case *ast.Image:
			// images are delivered separately
		case *ast.RawHTML:
			run := style
			var b strings.Builder
			for i := 0; i < v.Segments.Len(); i++ {
				seg := v.Segments.At(i)
				b.Write(seg.Value(src))
			}
			run.Text = b.String()
			out = appendRun(out, run)
		default:
			out = collectInlines(n, src, style, out)
		}
	}
	return out
}

// textValue decodes backslash escapes and character references the way goldmark's
// HTML renderer does. Raw text is taken as is.
func textValue(t *ast.Text, src []byte) string {
	value := t.Segment.Value(src)
	if t.IsRaw() {
		return string(value)
	}
	value = util.UnescapePunctuations(value)
	value = util.ResolveNumericReferences(value)
	value = util.ResolveEntityNames(value)
	return string(value)
}

// appendRun merges a run into the previous one when both share a style.
func appendRun(out []Inline, run Inline) []Inline {
	if run.Text == "" {
		return out
	}
	if last := len(out) - 1; last >= 0 {
		prev := out[last]
		if prev.Strong == run.Strong && prev.Emphasis == run.Emphasis && prev.Code == run.Code && prev.Link == run.Link {
			out[last].Text += run.Text
			return out
		}
	}
	return append(out, run)
}

func lineText(n ast.Node, src []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	return strings.TrimRight(b.String(), "\n")
}

func plainText(n ast.Node, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			b.WriteString(textValue(t, src))
			continue
		}
		b.WriteString(plainText(c, src))
	}
	return b.String()
}

// PlainText flattens a document into readable text, one block per line.
func (d *Document) PlainText() string {
	var lines []string
	var walk func(blocks []Block, prefix string)
	walk = func(blocks []Block, prefix string) {
		for _, b := range blocks {
			switch b.Kind {
			case KindList:
				for _, item := range b.Items {
					walk(item.Blocks, prefix+"- ")
				}
			case KindQuote:
				walk(b.Children, prefix)
			case KindCode:
				lines = append(lines, b.Code)
			case KindRule:
			default:
				var s strings.Builder
				for _, in := range b.Inlines {
					s.WriteString(in.Text)
				}
				lines = append(lines, prefix+s.String())
			}
		}
	}
	walk(d.Blocks, "")
	return strings.Join(lines, "\n")
}
