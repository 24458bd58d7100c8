package extract

// Format is the closed set of document formats the extraction service understands.
type Format int

const (
	FormatUnknown Format = iota
	FormatPDF
	FormatDOCX
	FormatXLSX
	FormatPPTX
	FormatODT
	FormatODS
	FormatHTML
	FormatXML
	FormatText
	FormatMarkdown
	FormatRTF
	FormatDOC
	FormatZIP
	FormatTar
	FormatTarGz
)

var formatNames = [...]string{
	FormatUnknown:  "unknown",
	FormatPDF:      "pdf",
	FormatDOCX:     "docx",
	FormatXLSX:     "xlsx",
	FormatPPTX:     "pptx",
	FormatODT:      "odt",
	FormatODS:      "ods",
	FormatHTML:     "html",
	FormatXML:      "xml",
	FormatText:     "text",
	FormatMarkdown: "markdown",
	FormatRTF:      "rtf",
	FormatDOC:      "doc",
	FormatZIP:      "zip",
	FormatTar:      "tar",
	FormatTarGz:    "tar.gz",
}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return formatNames[FormatUnknown]
	}
	return formatNames[f]
}

// IsArchive reports whether f is a container of other documents.
func (f Format) IsArchive() bool {
	return f == FormatZIP || f == FormatTar || f == FormatTarGz
}

// MarshalText lets formats appear by name in JSON results and logs.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}
