package extract

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strconv"
	"strings"
	"testing"
)

type member struct {
	name string
	body string
}

func buildZip(t *testing.T, members ...member) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		w, err := zw.Create(m.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(m.body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func buildTar(t *testing.T, gz bool, members ...member) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.Writer = &buf
	var gzw *gzip.Writer
	if gz {
		gzw = gzip.NewWriter(&buf)
		w = gzw
	}
	tw := tar.NewWriter(w)
	for _, m := range members {
		hdr := &tar.Header{Name: m.name, Mode: 0o644, Size: int64(len(m.body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(m.body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if gzw != nil {
		if err := gzw.Close(); err != nil {
			t.Fatal(err)
		}
	}
	return buf.Bytes()
}

const wNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

func docxPara(style, text string) string {
	ppr := ""
	if style != "" {
		ppr = `<w:pPr><w:pStyle w:val="` + style + `"/></w:pPr>`
	}
	return `<w:p>` + ppr + `<w:r><w:t>` + text + `</w:t></w:r></w:p>`
}

func docxListItem(level int, text string) string {
	return `<w:p><w:pPr><w:numPr><w:ilvl w:val="` + strconv.Itoa(level) + `"/><w:numId w:val="1"/></w:numPr></w:pPr><w:r><w:t>` + text + `</w:t></w:r></w:p>`
}

func docxTable(rows ...[]string) string {
	var sb strings.Builder
	sb.WriteString("<w:tbl>")
	for _, r := range rows {
		sb.WriteString("<w:tr>")
		for _, c := range r {
			sb.WriteString("<w:tc>" + docxPara("", c) + "</w:tc>")
		}
		sb.WriteString("</w:tr>")
	}
	sb.WriteString("</w:tbl>")
	return sb.String()
}

func buildDOCX(t *testing.T, body ...string) []byte {
	t.Helper()
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?><w:document ` + wNS + `><w:body>` +
		strings.Join(body, "") + `</w:body></w:document>`
	return buildZip(t,
		member{"[Content_Types].xml", `<Types/>`},
		member{"word/document.xml", doc},
	)
}

// buildXLSX writes sheets in the given order; each sheet is rows of cells.
// String cells go through the shared string table, numeric-looking ones inline.
func buildXLSX(t *testing.T, names []string, sheets ...[][]string) []byte {
	t.Helper()
	var shared []string
	index := map[string]int{}
	var wb, rels strings.Builder
	wb.WriteString(`<workbook xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><sheets>`)
	rels.WriteString(`<Relationships>`)
	members := []member{}
	for i, rows := range sheets {
		rid := fmt.Sprintf("rId%d", i+1)
		wb.WriteString(fmt.Sprintf(`<sheet name="%s" sheetId="%d" r:id="%s"/>`, names[i], i+1, rid))
		rels.WriteString(fmt.Sprintf(`<Relationship Id="%s" Target="worksheets/sheet%d.xml"/>`, rid, i+1))
		var sh strings.Builder
		sh.WriteString(`<worksheet><sheetData>`)
		for r, row := range rows {
			sh.WriteString(fmt.Sprintf(`<row r="%d">`, r+1))
			for c, v := range row {
				if v == "" {
					continue
				}
				ref := fmt.Sprintf("%c%d", 'A'+c, r+1)
				if _, err := strconv.ParseFloat(v, 64); err == nil {
					sh.WriteString(fmt.Sprintf(`<c r="%s"><v>%s</v></c>`, ref, v))
					continue
				}
				idx, ok := index[v]
				if !ok {
					idx = len(shared)
					index[v] = idx
					shared = append(shared, v)
				}
				sh.WriteString(fmt.Sprintf(`<c r="%s" t="s"><v>%d</v></c>`, ref, idx))
			}
			sh.WriteString(`</row>`)
		}
		sh.WriteString(`</sheetData></worksheet>`)
		members = append(members, member{fmt.Sprintf("xl/worksheets/sheet%d.xml", i+1), sh.String()})
	}
	wb.WriteString(`</sheets></workbook>`)
	rels.WriteString(`</Relationships>`)
	var sst strings.Builder
	sst.WriteString(`<sst>`)
	for _, s := range shared {
		sst.WriteString(`<si><t>` + s + `</t></si>`)
	}
	sst.WriteString(`</sst>`)
	members = append([]member{
		{"xl/workbook.xml", wb.String()},
		{"xl/_rels/workbook.xml.rels", rels.String()},
		{"xl/sharedStrings.xml", sst.String()},
	}, members...)
	return buildZip(t, members...)
}

func buildPPTX(t *testing.T, slides map[int][]string) []byte {
	t.Helper()
	members := []member{{"ppt/presentation.xml", `<p:presentation xmlns:p="p"/>`}}
	for n, lines := range slides {
		var sb strings.Builder
		sb.WriteString(`<p:sld xmlns:p="p" xmlns:a="a"><p:cSld><p:spTree><p:sp><p:txBody>`)
		for _, l := range lines {
			sb.WriteString(`<a:p><a:r><a:t>` + l + `</a:t></a:r></a:p>`)
		}
		sb.WriteString(`</p:txBody></p:sp></p:spTree></p:cSld></p:sld>`)
		members = append(members, member{fmt.Sprintf("ppt/slides/slide%d.xml", n), sb.String()})
	}
	return buildZip(t, members...)
}

const odfNS = `xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" ` +
	`xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0" ` +
	`xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0"`

func buildODF(t *testing.T, mimeType, body string) []byte {
	t.Helper()
	content := `<?xml version="1.0" encoding="UTF-8"?><office:document-content ` + odfNS +
		`><office:body>` + body + `</office:body></office:document-content>`
	return buildZip(t,
		member{"mimetype", mimeType},
		member{"content.xml", content},
	)
}

// buildTextPDF produces a minimal PDF with one content stream per page.
// An empty string yields a page without a text layer.
func buildTextPDF(pages ...string) []byte {
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")

	n := len(pages)
	// objects: 1 catalog, 2 pages, 3 font, then (page, content) pairs
	total := 3 + 2*n
	offsets := make([]int, total+1)

	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	offsets[2] = b.Len()
	fmt.Fprintf(&b, "2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", strings.Join(kids, " "), n)

	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	for i, text := range pages {
		pageObj, contentObj := 4+2*i, 5+2*i
		stream := ""
		if text != "" {
			escaped := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`).Replace(text)
			stream = "BT\n/F1 12 Tf\n72 720 Td\n(" + escaped + ") Tj\nET"
		}
		offsets[pageObj] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 3 0 R >> >> >>\nendobj\n", pageObj, contentObj)
		offsets[contentObj] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", contentObj, len(stream), stream)
	}

	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", total+1)
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i <= total; i++ {
		fmt.Fprintf(&b, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", total+1, xref)
	return []byte(b.String())
}

func testLimits() Limits {
	return Limits{MaxDecompressedBytes: 10 << 20, MaxArchiveDepth: 2}
}

func plainConfig() Config {
	return DefaultConfig()
}

func structuredConfig() Config {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyStructurePreserving
	cfg.TableFormat = TableMarkdown
	return cfg
}

// locate returns the innermost span of doc containing the byte offset off.
// Later spans win ties, so a nested archive member beats its enclosing entry.
func locate(doc *Document, off int) (Span, bool) {
	var best Span
	found := false
	for _, s := range doc.Spans {
		if off < s.Start || off >= s.End {
			continue
		}
		if !found || s.End-s.Start <= best.End-best.Start {
			best = s
			found = true
		}
	}
	return best, found
}
