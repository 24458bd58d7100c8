package extract

import (
	"context"
	"encoding/xml"
	"strconv"
	"strings"
)

// maxRepeat caps table:number-*-repeated expansion for non-empty content.
const maxRepeat = 1000

func extractODT(ctx context.Context, data []byte, cfg Config, b budget) (*Document, error) {
	return extractODF(ctx, data, cfg, b, false)
}

func extractODS(ctx context.Context, data []byte, cfg Config, b budget) (*Document, error) {
	return extractODF(ctx, data, cfg, b, true)
}

func extractODF(ctx context.Context, data []byte, cfg Config, b budget, spreadsheet bool) (*Document, error) {
	zr, err := openZip(data)
	if err != nil {
		return nil, err
	}
	f := findZipFile(zr, "content.xml")
	if f == nil {
		return nil, corrupt("content.xml not found in archive")
	}
	body, err := readZipFile(f, b)
	if err != nil {
		return nil, err
	}

	w := &odfWalker{cfg: cfg, out: newBuilder(cfg), doc: &Document{}, spreadsheet: spreadsheet}
	if err := walkXML(ctx, body, w.token); err != nil {
		return nil, err
	}
	doc := w.doc
	doc.Text = w.out.String()
	doc.Spans = w.out.spans
	if title := zipTitle(ctx, zr, b, "meta.xml"); title != "" {
		doc.Metadata.Title = title
	}
	return doc, nil
}

type odfWalker struct {
	cfg         Config
	out         *builder
	doc         *Document
	spreadsheet bool

	para         strings.Builder
	paraDepth    int
	headingLevel int
	listDepth    int
	prevList     bool
	annotation   int

	tableDepth int
	tableName  string
	rows       [][]string
	row        []string
	cell       []string
	colRepeat  int
	rowRepeat  int
}

func repeatAttr(se xml.StartElement, name string) int {
	n, err := strconv.Atoi(attr(se, name))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func (w *odfWalker) token(tok xml.Token) error {
	switch t := tok.(type) {
	case xml.StartElement:
		w.start(t)
	case xml.CharData:
		if w.paraDepth > 0 && w.annotation == 0 {
			w.para.Write(t)
		}
	case xml.EndElement:
		w.end(t)
	}
	return nil
}

func (w *odfWalker) start(t xml.StartElement) {
	if t.Name.Local == "annotation" {
		w.annotation++
	}
	if w.annotation > 0 {
		return
	}
	switch t.Name.Local {
	case "h":
		w.paraDepth++
		if w.paraDepth == 1 {
			w.para.Reset()
			w.headingLevel = 1
			if n, err := strconv.Atoi(attr(t, "outline-level")); err == nil && n > 0 {
				w.headingLevel = n
			}
		}
	case "p":
		w.paraDepth++
		if w.paraDepth == 1 {
			w.para.Reset()
			w.headingLevel = 0
		}
	case "s":
		if w.paraDepth > 0 {
			w.para.WriteString(strings.Repeat(" ", min(repeatAttr(t, "c"), 100)))
		}
	case "tab":
		if w.paraDepth > 0 {
			w.para.WriteByte('\t')
		}
	case "line-break":
		if w.paraDepth > 0 {
			w.para.WriteByte('\n')
		}
	case "list":
		w.listDepth++
	case "table":
		w.tableDepth++
		if w.tableDepth == 1 {
			w.rows = nil
			w.tableName = attr(t, "name")
		}
	case "table-row":
		if w.tableDepth == 1 {
			w.row = nil
			w.rowRepeat = repeatAttr(t, "number-rows-repeated")
		}
	case "table-cell", "covered-table-cell":
		if w.tableDepth == 1 {
			w.cell = nil
			w.colRepeat = repeatAttr(t, "number-columns-repeated")
		}
	}
}

func (w *odfWalker) end(t xml.EndElement) {
	if t.Name.Local == "annotation" {
		w.annotation--
		return
	}
	if w.annotation > 0 {
		return
	}
	switch t.Name.Local {
	case "h", "p":
		w.paraDepth--
		if w.paraDepth == 0 {
			w.paragraph(strings.TrimSpace(w.para.String()))
		}
	case "list":
		w.listDepth--
	case "table-cell", "covered-table-cell":
		if w.tableDepth != 1 {
			return
		}
		v := strings.Join(w.cell, " ")
		n := w.colRepeat
		if v != "" {
			n = min(n, maxRepeat)
		}
		for i := 0; i < n && len(w.row) < maxSheetColumns; i++ {
			w.row = append(w.row, v)
		}
	case "table-row":
		if w.tableDepth != 1 {
			return
		}
		n := 1
		if strings.TrimSpace(strings.Join(w.row, "")) != "" {
			n = min(w.rowRepeat, maxRepeat)
		}
		for i := 0; i < n; i++ {
			w.rows = append(w.rows, w.row)
		}
	case "table":
		w.tableDepth--
		if w.tableDepth == 0 {
			w.flushTable()
		}
	}
}

func (w *odfWalker) paragraph(text string) {
	if text == "" {
		return
	}
	if w.tableDepth > 0 {
		w.cell = append(w.cell, text)
		return
	}
	switch {
	case w.headingLevel > 0:
		if w.doc.Metadata.Title == "" {
			w.doc.Metadata.Title = text
		}
		w.out.para(heading(w.cfg, w.headingLevel, text))
	case w.listDepth > 0 && w.prevList:
		w.out.block(listItem(w.cfg, w.listDepth-1, text), "\n")
	case w.listDepth > 0:
		w.out.para(listItem(w.cfg, w.listDepth-1, text))
	default:
		w.out.para(text)
	}
	w.prevList = w.headingLevel == 0 && w.listDepth > 0
}

func (w *odfWalker) flushTable() {
	w.prevList = false
	if w.spreadsheet {
		w.doc.Metadata.SheetNames = append(w.doc.Metadata.SheetNames, w.tableName)
		text := table(w.cfg, w.rows)
		if text == "" {
			return
		}
		if w.cfg.structured() {
			text = heading(w.cfg, 2, w.tableName) + "\n\n" + text
		}
		w.out.located(text, Span{Sheet: w.tableName})
		return
	}
	if w.cfg.ExtractTables {
		w.out.para(table(w.cfg, w.rows))
	}
}
