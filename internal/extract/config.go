package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Strategy selects how much document structure survives extraction.
type Strategy string

const (
	StrategyPlainText           Strategy = "plain_text"
	StrategyStructurePreserving Strategy = "structure_preserving"
	StrategyMarkdown            Strategy = "markdown"
)

type TableFormat string

const (
	TablePlain    TableFormat = "plain"
	TableMarkdown TableFormat = "markdown"
	TableCSV      TableFormat = "csv"
)

// Config is the per-job extraction configuration carried in the task payload.
type Config struct {
	Strategy           Strategy    `json:"strategy"`
	PreserveFormatting bool        `json:"preserve_formatting"`
	ExtractTables      bool        `json:"extract_tables"`
	TableFormat        TableFormat `json:"table_format"`
	PreserveHeadings   bool        `json:"preserve_headings"`
	PreserveLists      bool        `json:"preserve_lists"`
	PreserveCodeBlocks bool        `json:"preserve_code_blocks"`
	IncludeMetadata    bool        `json:"include_metadata"`

	// XMLElementPath restricts XML extraction to matching elements.
	// "/a/b" matches from the root, "b/c" matches any element path ending in b/c.
	XMLElementPath string `json:"xml_element_path,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Strategy:           StrategyPlainText,
		ExtractTables:      true,
		TableFormat:        TablePlain,
		PreserveHeadings:   true,
		PreserveLists:      true,
		PreserveCodeBlocks: true,
		IncludeMetadata:    true,
	}
}

// ParseConfig decodes raw over the defaults. An absent or null config yields the defaults.
func ParseConfig(raw json.RawMessage) (Config, error) {
	cfg := DefaultConfig()
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return cfg, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode extraction config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Strategy {
	case StrategyPlainText, StrategyStructurePreserving, StrategyMarkdown:
	default:
		return fmt.Errorf("unknown extraction strategy %q", c.Strategy)
	}
	switch c.TableFormat {
	case TablePlain, TableMarkdown, TableCSV:
	default:
		return fmt.Errorf("unknown table format %q", c.TableFormat)
	}
	return nil
}

// structured reports whether headings and list markers should be emitted.
func (c Config) structured() bool {
	return c.Strategy != StrategyPlainText
}

func (c Config) tableFormat() TableFormat {
	if c.Strategy == StrategyMarkdown {
		return TableMarkdown
	}
	return c.TableFormat
}
