package extract

// Document is the normalized output of an extraction.
type Document struct {
	Text     string
	Format   Format
	Metadata Metadata
	// Spans tag byte ranges of Text with their physical origin (page, sheet, archive entry).
	Spans    []Span
	Warnings []string
}

type Metadata struct {
	Title       string   `json:"title,omitempty"`
	PageCount   int      `json:"page_count,omitempty"`
	SlideCount  int      `json:"slide_count,omitempty"`
	SheetNames  []string `json:"sheet_names,omitempty"`
	ElementPath string   `json:"element_path,omitempty"`
	Entries     []string `json:"entries,omitempty"`
}

type Span struct {
	Start int
	End   int
	Page  int
	Sheet string
	Entry string
}
