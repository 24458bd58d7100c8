package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// extractPDF reads the text layer page by page. Pages without a text layer
// (scans) contribute nothing; OCR is out of scope.
func extractPDF(ctx context.Context, data []byte, cfg Config, b budget) (*Document, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	out := newBuilder(cfg)
	doc := &Document{Metadata: Metadata{PageCount: pdfCtx.PageCount}}
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
		if err != nil || r == nil {
			continue
		}
		content, err := b.readAll(r)
		if err != nil {
			if errors.Is(err, ErrLimitExceeded) {
				return nil, err
			}
			continue
		}
		pageText := pdfContentText(content)
		if pageText == "" {
			continue
		}
		if doc.Metadata.Title == "" {
			doc.Metadata.Title = firstLine(pageText, 200)
		}
		out.located(pageText, Span{Page: pageNr})
	}

	doc.Text = out.String()
	doc.Spans = out.spans
	return doc, nil
}

// pdfContentText interprets the text-showing operators of a page content
// stream in stream order.
func pdfContentText(stream []byte) string {
	lx := &pdfLexer{data: stream}
	var sb strings.Builder
	var operands []pdfToken
	lastY, haveY := 0.0, false

	newline := func() {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}
	space := func() {
		if s := sb.String(); s != "" && !strings.HasSuffix(s, " ") && !strings.HasSuffix(s, "\n") {
			sb.WriteByte(' ')
		}
	}

	for {
		tok, ok := lx.next()
		if !ok {
			break
		}
		if tok.kind != tokOperator {
			operands = append(operands, tok)
			continue
		}
		switch tok.text {
		case "Tj":
			if s, ok := lastString(operands); ok {
				sb.WriteString(s)
			}
		case "'", "\"":
			newline()
			if s, ok := lastString(operands); ok {
				sb.WriteString(s)
			}
		case "TJ":
			for _, op := range operands {
				switch op.kind {
				case tokString:
					sb.WriteString(op.text)
				case tokNumber:
					// Large negative adjustments are inter-word gaps.
					if op.num < -200 {
						space()
					}
				}
			}
		case "Td", "TD":
			if len(operands) >= 2 {
				tx, ty := operands[len(operands)-2].num, operands[len(operands)-1].num
				if ty != 0 {
					newline()
				} else if tx > 0 {
					space()
				}
			}
		case "T*":
			newline()
		case "Tm":
			if len(operands) >= 6 {
				y := operands[len(operands)-1].num
				if haveY && y != lastY {
					newline()
				}
				lastY, haveY = y, true
			}
		case "ET":
			space()
		case "ID":
			lx.skipInlineImage()
		}
		operands = operands[:0]
	}
	return cleanPDFLines(sb.String())
}

func lastString(ops []pdfToken) (string, bool) {
	for i := len(ops) - 1; i >= 0; i-- {
		if ops[i].kind == tokString {
			return ops[i].text, true
		}
	}
	return "", false
}

func cleanPDFLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return ' '
			}
			if !unicode.IsPrint(r) {
				return -1
			}
			return r
		}, l)
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func firstLine(s string, limit int) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	r := []rune(strings.TrimSpace(line))
	if len(r) > limit {
		r = r[:limit]
	}
	return string(r)
}

type pdfTokenKind int

const (
	tokOperator pdfTokenKind = iota
	tokString
	tokNumber
	tokOther
)

type pdfToken struct {
	kind pdfTokenKind
	text string
	num  float64
}

type pdfLexer struct {
	data []byte
	pos  int
}

func isPDFDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isPDFSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

func (lx *pdfLexer) next() (pdfToken, bool) {
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		switch {
		case isPDFSpace(c):
			lx.pos++
		case c == '%':
			for lx.pos < len(lx.data) && lx.data[lx.pos] != '\n' && lx.data[lx.pos] != '\r' {
				lx.pos++
			}
		case c == '(':
			lx.pos++
			return pdfToken{kind: tokString, text: decodePDFBytes(lx.literal())}, true
		case c == '<' && lx.pos+1 < len(lx.data) && lx.data[lx.pos+1] == '<':
			lx.pos += 2
			return pdfToken{kind: tokOther, text: "<<"}, true
		case c == '>' && lx.pos+1 < len(lx.data) && lx.data[lx.pos+1] == '>':
			lx.pos += 2
			return pdfToken{kind: tokOther, text: ">>"}, true
		case c == '<':
			lx.pos++
			return pdfToken{kind: tokString, text: decodePDFBytes(lx.hex())}, true
		case c == '[' || c == ']' || c == '{' || c == '}' || c == '>' || c == ')':
			lx.pos++
			return pdfToken{kind: tokOther, text: string(c)}, true
		case c == '/':
			start := lx.pos
			lx.pos++
			lx.word()
			return pdfToken{kind: tokOther, text: string(lx.data[start:lx.pos])}, true
		default:
			start := lx.pos
			lx.word()
			w := string(lx.data[start:lx.pos])
			if n, err := strconv.ParseFloat(w, 64); err == nil {
				return pdfToken{kind: tokNumber, text: w, num: n}, true
			}
			return pdfToken{kind: tokOperator, text: w}, true
		}
	}
	return pdfToken{}, false
}

func (lx *pdfLexer) word() {
	for lx.pos < len(lx.data) && !isPDFSpace(lx.data[lx.pos]) && !isPDFDelim(lx.data[lx.pos]) {
		lx.pos++
	}
}

// literal consumes a (...) string body, honouring nesting and escapes.
func (lx *pdfLexer) literal() []byte {
	var out []byte
	depth := 1
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		lx.pos++
		switch c {
		case '\\':
			if lx.pos >= len(lx.data) {
				return out
			}
			e := lx.data[lx.pos]
			lx.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if lx.pos < len(lx.data) && lx.data[lx.pos] == '\n' {
					lx.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && lx.pos < len(lx.data) && lx.data[lx.pos] >= '0' && lx.data[lx.pos] <= '7'; i++ {
						v = v*8 + int(lx.data[lx.pos]-'0')
						lx.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return out
}

func (lx *pdfLexer) hex() []byte {
	var digits []byte
	for lx.pos < len(lx.data) && lx.data[lx.pos] != '>' {
		c := lx.data[lx.pos]
		if !isPDFSpace(c) {
			digits = append(digits, c)
		}
		lx.pos++
	}
	lx.pos++ // '>'
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i+1 < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			continue
		}
		out = append(out, byte(v))
	}
	return out
}

// skipInlineImage jumps over binary inline image data up to the EI operator.
func (lx *pdfLexer) skipInlineImage() {
	if i := bytes.Index(lx.data[lx.pos:], []byte("EI")); i >= 0 {
		lx.pos += i + 2
		return
	}
	lx.pos = len(lx.data)
}

// decodePDFBytes interprets a string operand: UTF-16BE when it carries a BOM,
// otherwise one rune per byte.
func decodePDFBytes(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xfe && raw[1] == 0xff {
		u := make([]uint16, 0, (len(raw)-2)/2)
		for i := 2; i+1 < len(raw); i += 2 {
			u = append(u, uint16(raw[i])<<8|uint16(raw[i+1]))
		}
		return string(utf16.Decode(u))
	}
	rs := make([]rune, len(raw))
	for i, c := range raw {
		rs[i] = rune(c)
	}
	return string(rs)
}
