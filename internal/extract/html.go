package extract

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	mdtable "github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
)

var (
	mdConverter = sync.OnceValue(func() *converter.Converter {
		return converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				mdtable.NewTablePlugin(),
			),
		)
	})
	sanitizer = sync.OnceValue(bluemonday.UGCPolicy)
)

// Source line breaks are not rendered; only <br> and block boundaries are.
var htmlSpace = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ")

// Removed before any strategy runs; none of it is reader-visible text.
const htmlNoise = "script, style, noscript, template, iframe, object, svg, canvas, [hidden], [aria-hidden=true]"

func extractHTML(ctx context.Context, data []byte, cfg Config, _ budget) (*Document, error) {
	r, err := charset.NewReader(bytes.NewReader(data), "text/html")
	if err != nil {
		return nil, fmt.Errorf("html charset: %w", err)
	}
	gq, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	gq.Find(htmlNoise).Remove()
	gq.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		if isHiddenStyle(s.AttrOr("style", "")) {
			s.Remove()
		}
	})

	doc := &Document{Metadata: Metadata{Title: strings.TrimSpace(gq.Find("title").First().Text())}}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Strategy == StrategyMarkdown {
		body := gq.Find("body")
		if body.Length() == 0 {
			body = gq.Selection
		}
		raw, err := body.Html()
		if err != nil {
			return nil, fmt.Errorf("render html: %w", err)
		}
		md, err := mdConverter().ConvertString(sanitizer().Sanitize(raw))
		if err != nil {
			return nil, fmt.Errorf("html to markdown: %w", err)
		}
		doc.Text = strings.TrimSpace(md)
		return doc, nil
	}

	w := &htmlWalker{cfg: cfg, out: newBuilder(cfg)}
	roots := gq.Find("body").Nodes
	if len(roots) == 0 {
		roots = gq.Nodes
	}
	for _, n := range roots {
		w.walk(n)
	}
	w.flush()
	doc.Text = w.out.String()
	return doc, nil
}

func isHiddenStyle(style string) bool {
	s := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	return strings.Contains(s, "display:none") || strings.Contains(s, "visibility:hidden")
}

type htmlWalker struct {
	cfg       Config
	out       *builder
	inline    strings.Builder
	listDepth int
	prevList  bool
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Header, atom.Footer,
		atom.Main, atom.Nav, atom.Aside, atom.Blockquote, atom.Figure, atom.Figcaption,
		atom.Address, atom.Form, atom.Fieldset, atom.Dl, atom.Dt, atom.Dd, atom.Hr,
		atom.Details, atom.Summary, atom.Caption:
		return true
	}
	return false
}

func headingLevel(a atom.Atom) int {
	switch a {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}

func (w *htmlWalker) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.inline.WriteString(htmlSpace.Replace(n.Data))
		return
	case html.ElementNode:
	case html.DocumentNode:
		w.children(n)
		return
	default:
		return
	}

	switch {
	case n.DataAtom == atom.Head:
		return
	case n.DataAtom == atom.Br:
		w.inline.WriteByte('\n')
	case headingLevel(n.DataAtom) > 0:
		w.flush()
		w.emit(heading(w.cfg, headingLevel(n.DataAtom), inlineText(n)), false)
	case n.DataAtom == atom.Ul || n.DataAtom == atom.Ol:
		w.flush()
		w.listDepth++
		w.children(n)
		w.listDepth--
	case n.DataAtom == atom.Li:
		w.flush()
		w.listItem(n)
	case n.DataAtom == atom.Table:
		w.flush()
		if w.cfg.ExtractTables {
			w.emit(table(w.cfg, tableRows(n)), false)
		}
	case n.DataAtom == atom.Pre:
		w.flush()
		w.pre(n)
	case isBlock(n.DataAtom):
		w.flush()
		w.children(n)
		w.flush()
	default:
		w.children(n)
	}
}

func (w *htmlWalker) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

// listItem emits the item's own text, then descends into nested lists.
func (w *htmlWalker) listItem(n *html.Node) {
	var own strings.Builder
	var nested []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Ul || c.DataAtom == atom.Ol) {
			nested = append(nested, c)
			continue
		}
		own.WriteString(inlineText(c))
		own.WriteByte(' ')
	}
	text := normalizeInline(own.String())
	if text != "" {
		w.emit(listItem(w.cfg, max(w.listDepth-1, 0), text), true)
	}
	for _, c := range nested {
		w.walk(c)
	}
}

func (w *htmlWalker) pre(n *html.Node) {
	code := strings.Trim(rawText(n), "\n")
	if strings.TrimSpace(code) == "" {
		return
	}
	if w.cfg.structured() && w.cfg.PreserveCodeBlocks {
		code = "```\n" + code + "\n```"
	}
	w.prevList = false
	w.out.verbatim(code, "\n\n")
}

func (w *htmlWalker) flush() {
	text := normalizeInline(w.inline.String())
	w.inline.Reset()
	if text != "" {
		w.emit(text, false)
	}
}

func (w *htmlWalker) emit(text string, list bool) {
	if text == "" {
		return
	}
	if list && w.prevList {
		w.out.block(text, "\n")
	} else {
		w.out.para(text)
	}
	w.prevList = list
}

func tableRows(n *html.Node) [][]string {
	var rows [][]string
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Tr:
				var row []string
				for cell := c.FirstChild; cell != nil; cell = cell.NextSibling {
					if cell.Type == html.ElementNode && (cell.DataAtom == atom.Td || cell.DataAtom == atom.Th) {
						text := normalizeInline(inlineText(cell))
						span, _ := strconv.Atoi(attrOf(cell, "colspan"))
						row = append(row, text)
						for i := 1; i < min(span, 100); i++ {
							row = append(row, "")
						}
					}
				}
				rows = append(rows, row)
			case atom.Table:
				// nested tables are flattened into their cell text
			default:
				visit(c)
			}
		}
	}
	visit(n)
	return rows
}

func attrOf(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// inlineText is the collapsed text content of n, with <br> as a newline.
func inlineText(n *html.Node) string {
	var sb strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			sb.WriteString(htmlSpace.Replace(n.Data))
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			sb.WriteByte('\n')
		case n.Type == html.ElementNode && (isBlock(n.DataAtom) || n.DataAtom == atom.Li || n.DataAtom == atom.Tr):
			sb.WriteByte(' ')
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				visit(c)
			}
			sb.WriteByte(' ')
		default:
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				visit(c)
			}
		}
	}
	visit(n)
	return normalizeInline(sb.String())
}

func rawText(n *html.Node) string {
	var sb strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Br {
			sb.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return sb.String()
}

// normalizeInline collapses HTML whitespace within each explicit line break.
func normalizeInline(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
