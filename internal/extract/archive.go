package extract

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
)

// archiveAssembler concatenates the extracted text of archive members.
// Member failures become warnings; budget exhaustion and cancellation abort.
type archiveAssembler struct {
	s   *Service
	cfg Config
	b   budget
	doc *Document
	sb  strings.Builder
}

func (s *Service) newAssembler(cfg Config, b budget) (*archiveAssembler, error) {
	child, err := b.nested()
	if err != nil {
		return nil, err
	}
	return &archiveAssembler{s: s, cfg: cfg, b: child, doc: &Document{}}, nil
}

func fatal(err error) bool {
	return errors.Is(err, ErrLimitExceeded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

func (a *archiveAssembler) warn(name string, err error) {
	a.doc.Warnings = append(a.doc.Warnings, fmt.Sprintf("%s: %v", name, err))
}

func (a *archiveAssembler) add(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	format := Detect(name, "", data)
	if format.IsArchive() {
		if _, err := a.b.nested(); err != nil {
			a.warn(name, err)
			return nil
		}
	}
	inner, err := a.s.extractAs(ctx, format, data, name, a.cfg, a.b)
	if err != nil {
		if fatal(err) {
			return err
		}
		a.warn(name, err)
		return nil
	}
	for _, w := range inner.Warnings {
		a.doc.Warnings = append(a.doc.Warnings, name+"/"+w)
	}
	a.doc.Metadata.Entries = append(a.doc.Metadata.Entries, name)
	if strings.TrimSpace(inner.Text) == "" {
		return nil
	}

	if a.sb.Len() > 0 {
		a.sb.WriteString("\n\n")
	}
	start := a.sb.Len()
	a.sb.WriteString(inner.Text)
	a.doc.Spans = append(a.doc.Spans, Span{Start: start, End: a.sb.Len(), Entry: name})
	for _, sp := range inner.Spans {
		sp.Start += start
		sp.End += start
		if sp.Entry == "" {
			sp.Entry = name
		} else {
			sp.Entry = name + "/" + sp.Entry
		}
		a.doc.Spans = append(a.doc.Spans, sp)
	}
	return nil
}

func (a *archiveAssembler) finish() *Document {
	a.doc.Text = a.sb.String()
	return a.doc
}

// skipMember filters OS metadata that never carries document text.
func skipMember(name string) bool {
	base := path.Base(name)
	return strings.HasPrefix(name, "__MACOSX/") || base == ".DS_Store" || base == "Thumbs.db"
}

func (s *Service) extractZip(ctx context.Context, data []byte, cfg Config, b budget) (*Document, error) {
	zr, err := openZip(data)
	if err != nil {
		return nil, err
	}
	a, err := s.newAssembler(cfg, b)
	if err != nil {
		return nil, err
	}
	for _, f := range zr.File {
		mode := f.Mode()
		switch {
		case mode.IsDir() || skipMember(f.Name):
			continue
		case mode&fs.ModeSymlink != 0:
			a.warn(f.Name, errors.New("symlink skipped"))
			continue
		case !mode.IsRegular():
			continue
		}
		body, err := readZipFile(f, a.b)
		if err != nil {
			if fatal(err) {
				return nil, err
			}
			a.warn(f.Name, err)
			continue
		}
		if err := a.add(ctx, f.Name, body); err != nil {
			return nil, err
		}
	}
	return a.finish(), nil
}

func (s *Service) extractTar(ctx context.Context, data []byte, cfg Config, b budget) (*Document, error) {
	return s.readTar(ctx, bytes.NewReader(data), cfg, b)
}

func (s *Service) extractTarGz(ctx context.Context, data []byte, cfg Config, b budget) (*Document, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()
	return s.readTar(ctx, gz, cfg, b)
}

func (s *Service) readTar(ctx context.Context, r io.Reader, cfg Config, b budget) (*Document, error) {
	a, err := s.newAssembler(cfg, b)
	if err != nil {
		return nil, err
	}
	tr := tar.NewReader(r)
	members := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if members == 0 {
				return nil, fmt.Errorf("read tar: %w", err)
			}
			a.warn("tar", err)
			break
		}
		members++
		switch hdr.Typeflag {
		case tar.TypeReg:
		case tar.TypeSymlink, tar.TypeLink:
			a.warn(hdr.Name, errors.New("link skipped"))
			continue
		default:
			continue
		}
		if skipMember(hdr.Name) {
			continue
		}
		body, err := a.b.readAll(tr)
		if err != nil {
			if fatal(err) {
				return nil, err
			}
			a.warn(hdr.Name, err)
			continue
		}
		if err := a.add(ctx, hdr.Name, body); err != nil {
			return nil, err
		}
	}
	return a.finish(), nil
}
