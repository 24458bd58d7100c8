package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

func extractDOCX(ctx context.Context, data []byte, cfg Config, b budget) (*Document, error) {
	zr, err := openZip(data)
	if err != nil {
		return nil, err
	}
	f := findZipFile(zr, "word/document.xml")
	if f == nil {
		return nil, corrupt("word/document.xml not found in archive")
	}
	body, err := readZipFile(f, b)
	if err != nil {
		return nil, err
	}

	out := newBuilder(cfg)
	doc := &Document{}

	var (
		para        strings.Builder
		inText      bool
		inRun       bool
		prevList    bool
		style       string
		listLevel   = -1
		tableDepth  int
		rows        [][]string
		row         []string
		cell        []string
		firstHeader string
	)

	err = walkXML(ctx, body, func(tok xml.Token) error {
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				para.Reset()
				style = ""
				listLevel = -1
			case "pStyle":
				style = attr(t, "val")
			case "ilvl":
				if n, err := strconv.Atoi(attr(t, "val")); err == nil {
					listLevel = n
				}
			case "numPr":
				if listLevel < 0 {
					listLevel = 0
				}
			case "r":
				inRun = true
			case "t":
				inText = true
			case "tab":
				if inRun {
					para.WriteByte('\t')
				}
			case "br", "cr":
				if inRun {
					para.WriteByte('\n')
				}
			case "tbl":
				tableDepth++
				if tableDepth == 1 {
					rows = nil
				}
			case "tr":
				if tableDepth == 1 {
					row = nil
				}
			case "tc":
				if tableDepth == 1 {
					cell = nil
				}
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "r":
				inRun = false
			case "t":
				inText = false
			case "p":
				text := strings.TrimSpace(para.String())
				if text == "" {
					return nil
				}
				if tableDepth > 0 {
					cell = append(cell, text)
					return nil
				}
				level := docxHeadingLevel(style)
				switch {
				case level > 0:
					if firstHeader == "" {
						firstHeader = text
					}
					out.para(heading(cfg, level, text))
				case listLevel >= 0 && prevList:
					out.block(listItem(cfg, listLevel, text), "\n")
				case listLevel >= 0:
					out.para(listItem(cfg, listLevel, text))
				default:
					out.para(text)
				}
				prevList = level == 0 && listLevel >= 0
			case "tc":
				if tableDepth == 1 {
					row = append(row, strings.Join(cell, " "))
				}
			case "tr":
				if tableDepth == 1 {
					rows = append(rows, row)
				}
			case "tbl":
				tableDepth--
				if tableDepth == 0 && cfg.ExtractTables {
					out.para(table(cfg, rows))
					prevList = false
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	doc.Text = out.String()
	doc.Metadata.Title = zipTitle(ctx, zr, b, "docProps/core.xml")
	if doc.Metadata.Title == "" {
		doc.Metadata.Title = firstHeader
	}
	return doc, nil
}

// docxHeadingLevel maps paragraph style ids such as "Heading2" or "Title" to a level.
func docxHeadingLevel(style string) int {
	lower := strings.ToLower(style)
	switch lower {
	case "title":
		return 1
	case "subtitle":
		return 2
	}
	for _, prefix := range []string{"heading", "titre", "überschrift"} {
		if rest, ok := strings.CutPrefix(lower, prefix); ok {
			rest = strings.TrimSpace(rest)
			if len(rest) == 1 && rest[0] >= '1' && rest[0] <= '9' {
				return int(rest[0] - '0')
			}
		}
	}
	return 0
}

// zipTitle reads the dc:title element of a package metadata part when present.
func zipTitle(ctx context.Context, zr *zip.Reader, b budget, part string) string {
	f := findZipFile(zr, part)
	if f == nil {
		return ""
	}
	data, err := readZipFile(f, b)
	if err != nil {
		return ""
	}
	var title strings.Builder
	in := false
	_ = walkXML(ctx, data, func(tok xml.Token) error {
		switch t := tok.(type) {
		case xml.StartElement:
			in = t.Name.Local == "title"
		case xml.CharData:
			if in {
				title.Write(t)
			}
		case xml.EndElement:
			in = false
		}
		return nil
	})
	return strings.TrimSpace(title.String())
}

type xlsxSheet struct {
	name   string
	target string
}

func extractXLSX(ctx context.Context, data []byte, cfg Config, b budget) (*Document, error) {
	zr, err := openZip(data)
	if err != nil {
		return nil, err
	}
	wb := findZipFile(zr, "xl/workbook.xml")
	if wb == nil {
		return nil, corrupt("xl/workbook.xml not found in archive")
	}
	sheets, err := xlsxSheets(ctx, zr, wb, b)
	if err != nil {
		return nil, err
	}
	shared, err := xlsxSharedStrings(ctx, zr, b)
	if err != nil {
		return nil, err
	}

	out := newBuilder(cfg)
	doc := &Document{}
	for _, sh := range sheets {
		doc.Metadata.SheetNames = append(doc.Metadata.SheetNames, sh.name)
		f := findZipFile(zr, sh.target)
		if f == nil {
			doc.Warnings = append(doc.Warnings, sh.name+": worksheet part "+sh.target+" missing")
			continue
		}
		body, err := readZipFile(f, b)
		if err != nil {
			return nil, err
		}
		rows, err := xlsxRows(ctx, body, shared)
		if err != nil {
			return nil, err
		}
		text := table(cfg, rows)
		if text == "" {
			continue
		}
		if cfg.structured() {
			text = heading(cfg, 2, sh.name) + "\n\n" + text
		}
		out.located(text, Span{Sheet: sh.name})
	}
	doc.Text = out.String()
	doc.Spans = out.spans
	doc.Metadata.Title = zipTitle(ctx, zr, b, "docProps/core.xml")
	return doc, nil
}

func xlsxSheets(ctx context.Context, zr *zip.Reader, wb *zip.File, b budget) ([]xlsxSheet, error) {
	body, err := readZipFile(wb, b)
	if err != nil {
		return nil, err
	}
	type ref struct{ name, rid string }
	var refs []ref
	err = walkXML(ctx, body, func(tok xml.Token) error {
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "sheet" {
			refs = append(refs, ref{name: attr(se, "name"), rid: attr(se, "id")})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	targets := map[string]string{}
	if rels := findZipFile(zr, "xl/_rels/workbook.xml.rels"); rels != nil {
		data, err := readZipFile(rels, b)
		if err != nil {
			return nil, err
		}
		err = walkXML(ctx, data, func(tok xml.Token) error {
			if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "Relationship" {
				targets[attr(se, "Id")] = attr(se, "Target")
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sheets := make([]xlsxSheet, 0, len(refs))
	for i, r := range refs {
		target, ok := targets[r.rid]
		switch {
		case !ok:
			target = "xl/worksheets/sheet" + strconv.Itoa(i+1) + ".xml"
		case strings.HasPrefix(target, "/"):
			target = strings.TrimPrefix(target, "/")
		default:
			target = path.Join("xl", target)
		}
		sheets = append(sheets, xlsxSheet{name: r.name, target: target})
	}
	return sheets, nil
}

func xlsxSharedStrings(ctx context.Context, zr *zip.Reader, b budget) ([]string, error) {
	f := findZipFile(zr, "xl/sharedStrings.xml")
	if f == nil {
		return nil, nil
	}
	body, err := readZipFile(f, b)
	if err != nil {
		return nil, err
	}
	var (
		out      []string
		cur      strings.Builder
		inT      bool
		phonetic bool
	)
	err = walkXML(ctx, body, func(tok xml.Token) error {
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "si":
				cur.Reset()
			case "t":
				inT = true
			case "rPh":
				phonetic = true
			}
		case xml.CharData:
			if inT && !phonetic {
				cur.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "si":
				out = append(out, cur.String())
			case "t":
				inT = false
			case "rPh":
				phonetic = false
			}
		}
		return nil
	})
	return out, err
}

// xlsxRows decodes a worksheet into a dense row-major grid.
func xlsxRows(ctx context.Context, body []byte, shared []string) ([][]string, error) {
	var (
		rows    [][]string
		row     []string
		cellRef string
		cellTyp string
		value   strings.Builder
		inValue bool
	)
	err := walkXML(ctx, body, func(tok xml.Token) error {
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "row":
				row = nil
			case "c":
				cellRef = attr(t, "r")
				cellTyp = attr(t, "t")
				value.Reset()
			case "v", "t":
				inValue = true
			}
		case xml.CharData:
			if inValue {
				value.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "v", "t":
				inValue = false
			case "c":
				text := xlsxCellText(cellTyp, value.String(), shared)
				col := columnIndex(cellRef)
				if col < 0 {
					col = len(row)
				}
				if col >= maxSheetColumns {
					return nil
				}
				for len(row) <= col {
					row = append(row, "")
				}
				row[col] = text
			case "row":
				rows = append(rows, row)
			}
		}
		return nil
	})
	return rows, err
}

// maxSheetColumns is the widest sheet Excel can produce (XFD).
const maxSheetColumns = 16384

func xlsxCellText(typ, raw string, shared []string) string {
	switch typ {
	case "s":
		i, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || i < 0 || i >= len(shared) {
			return ""
		}
		return shared[i]
	case "b":
		if strings.TrimSpace(raw) == "1" {
			return "TRUE"
		}
		return "FALSE"
	default:
		return raw
	}
}

var cellRefRe = regexp.MustCompile(`^([A-Za-z]+)\d*$`)

// columnIndex converts the letters of an A1-style reference to a zero-based column.
func columnIndex(ref string) int {
	m := cellRefRe.FindStringSubmatch(ref)
	if m == nil {
		return -1
	}
	n := 0
	for _, c := range strings.ToUpper(m[1]) {
		n = n*26 + int(c-'A'+1)
		if n > maxSheetColumns {
			return maxSheetColumns
		}
	}
	return n - 1
}

var slideRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func extractPPTX(ctx context.Context, data []byte, cfg Config, b budget) (*Document, error) {
	zr, err := openZip(data)
	if err != nil {
		return nil, err
	}
	if findZipFile(zr, "ppt/presentation.xml") == nil {
		return nil, corrupt("ppt/presentation.xml not found in archive")
	}

	type slide struct {
		n int
		f *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		if m := slideRe.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slide{n: n, f: f})
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	out := newBuilder(cfg)
	doc := &Document{Metadata: Metadata{SlideCount: len(slides)}}
	for _, s := range slides {
		body, err := readZipFile(s.f, b)
		if err != nil {
			return nil, err
		}
		var (
			lines []string
			para  strings.Builder
			inT   bool
		)
		err = walkXML(ctx, body, func(tok xml.Token) error {
			switch t := tok.(type) {
			case xml.StartElement:
				switch t.Name.Local {
				case "p":
					para.Reset()
				case "t":
					inT = true
				case "br":
					para.WriteByte('\n')
				}
			case xml.CharData:
				if inT {
					para.Write(t)
				}
			case xml.EndElement:
				switch t.Name.Local {
				case "t":
					inT = false
				case "p":
					if line := strings.TrimSpace(para.String()); line != "" {
						lines = append(lines, line)
					}
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		text := strings.Join(lines, "\n")
		if cfg.structured() && len(lines) > 0 {
			text = heading(cfg, 2, lines[0]) + "\n" + strings.Join(lines[1:], "\n")
		}
		if doc.Metadata.Title == "" && len(lines) > 0 {
			doc.Metadata.Title = lines[0]
		}
		out.located(text, Span{Page: s.n})
	}
	doc.Text = out.String()
	doc.Spans = out.spans
	return doc, nil
}
