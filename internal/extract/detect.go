package extract

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"io"
	"mime"
	"path"
	"strings"
	"unicode/utf8"
)

var mimeFormats = map[string]Format{
	"application/pdf": FormatPDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   FormatDOCX,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         FormatXLSX,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": FormatPPTX,
	"application/vnd.oasis.opendocument.text":                                   FormatODT,
	"application/vnd.oasis.opendocument.spreadsheet":                            FormatODS,
	"text/html":             FormatHTML,
	"application/xhtml+xml": FormatHTML,
	"application/xml":       FormatXML,
	"text/xml":              FormatXML,
	"text/plain":            FormatText,
	"text/csv":              FormatText,
	"text/markdown":         FormatMarkdown,
	"text/x-markdown":       FormatMarkdown,
	"application/rtf":       FormatRTF,
	"text/rtf":              FormatRTF,
	"application/msword":    FormatDOC,
	"application/x-tar":     FormatTar,
	"application/x-gtar":    FormatTarGz,
	"application/x-tgz":     FormatTarGz,
}

// Generic container types say nothing about what is inside.
var ambiguousMIME = map[string]bool{
	"application/octet-stream":     true,
	"binary/octet-stream":          true,
	"application/zip":              true,
	"application/x-zip-compressed": true,
	"application/gzip":             true,
	"application/x-gzip":           true,
}

var extFormats = map[string]Format{
	".pdf":      FormatPDF,
	".docx":     FormatDOCX,
	".xlsx":     FormatXLSX,
	".pptx":     FormatPPTX,
	".odt":      FormatODT,
	".ods":      FormatODS,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".xhtml":    FormatHTML,
	".xml":      FormatXML,
	".txt":      FormatText,
	".text":     FormatText,
	".csv":      FormatText,
	".log":      FormatText,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".rtf":      FormatRTF,
	".doc":      FormatDOC,
	".zip":      FormatZIP,
	".tar":      FormatTar,
	".tgz":      FormatTarGz,
}

// Detect resolves the document format from the MIME hint, then the file
// extension, then the leading bytes of data.
func Detect(fileName, mimeType string, data []byte) Format {
	if f := fromMIME(mimeType); f != FormatUnknown {
		return f
	}
	if f := fromExtension(fileName); f != FormatUnknown {
		return f
	}
	return Sniff(data)
}

func fromMIME(mimeType string) Format {
	if mimeType == "" {
		return FormatUnknown
	}
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return FormatUnknown
	}
	if ambiguousMIME[mt] {
		return FormatUnknown
	}
	if f, ok := mimeFormats[mt]; ok {
		return f
	}
	if strings.HasSuffix(mt, "+xml") {
		return FormatXML
	}
	return FormatUnknown
}

func fromExtension(fileName string) Format {
	name := strings.ToLower(path.Base(fileName))
	if strings.HasSuffix(name, ".tar.gz") {
		return FormatTarGz
	}
	return extFormats[path.Ext(name)]
}

var (
	magicZip  = []byte("PK\x03\x04")
	magicPDF  = []byte("%PDF-")
	magicGzip = []byte{0x1f, 0x8b}
	magicOLE2 = []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}
	magicRTF  = []byte(`{\rtf`)
	utf8BOM   = []byte{0xef, 0xbb, 0xbf}
)

// Sniff guesses the format from content alone.
func Sniff(data []byte) Format {
	switch {
	case len(data) == 0:
		return FormatText
	case bytes.HasPrefix(data, magicPDF):
		return FormatPDF
	case bytes.HasPrefix(data, magicZip):
		return sniffZip(data)
	case bytes.HasPrefix(data, magicOLE2):
		return FormatDOC
	case bytes.HasPrefix(data, magicRTF):
		return FormatRTF
	case bytes.HasPrefix(data, magicGzip):
		return sniffGzip(data)
	case isTar(data):
		return FormatTar
	}
	return sniffText(data)
}

func sniffZip(data []byte) Format {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return FormatZIP
	}
	for _, f := range zr.File {
		switch f.Name {
		case "word/document.xml":
			return FormatDOCX
		case "xl/workbook.xml":
			return FormatXLSX
		case "ppt/presentation.xml":
			return FormatPPTX
		case "mimetype":
			rc, err := f.Open()
			if err != nil {
				continue
			}
			mt, _ := io.ReadAll(io.LimitReader(rc, 128))
			rc.Close()
			switch strings.TrimSpace(string(mt)) {
			case "application/vnd.oasis.opendocument.text":
				return FormatODT
			case "application/vnd.oasis.opendocument.spreadsheet":
				return FormatODS
			}
		}
	}
	return FormatZIP
}

func sniffGzip(data []byte) Format {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return FormatUnknown
	}
	defer gz.Close()
	head := make([]byte, 512)
	n, _ := io.ReadFull(gz, head)
	if isTar(head[:n]) {
		return FormatTarGz
	}
	return FormatUnknown
}

func isTar(data []byte) bool {
	if len(data) < 512 {
		return false
	}
	if bytes.Equal(data[257:262], []byte("ustar")) {
		return true
	}
	// Old-style v7 headers carry no magic; fall back to the header checksum.
	_, err := tar.NewReader(bytes.NewReader(data)).Next()
	return err == nil
}

func sniffText(data []byte) Format {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	head = bytes.TrimPrefix(head, utf8BOM)
	if bytes.IndexByte(head, 0) >= 0 {
		return FormatUnknown
	}
	lower := bytes.ToLower(bytes.TrimSpace(head))
	switch {
	case bytes.HasPrefix(lower, []byte("<!doctype html")), bytes.HasPrefix(lower, []byte("<html")):
		return FormatHTML
	case bytes.HasPrefix(lower, []byte("<?xml")):
		if bytes.Contains(lower, []byte("<html")) {
			return FormatHTML
		}
		return FormatXML
	}
	// A multi-byte rune may be cut at the 1024 boundary.
	for i := 0; i < utf8.UTFMax && len(head) > 0; i++ {
		if utf8.Valid(head) {
			return FormatText
		}
		head = head[:len(head)-1]
	}
	return FormatUnknown
}
