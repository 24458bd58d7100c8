package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractZip_MemberFailureIsWarning(t *testing.T) {
	data := buildZip(t,
		member{"bad.docx", "not a zip at all"},
		member{"notes.txt", "hello"},
		member{"__MACOSX/._notes.txt", "junk"},
	)
	svc := NewService(testLimits())
	doc, err := svc.Extract(context.Background(), data, "bundle.zip", "", plainConfig())
	require.NoError(t, err)

	assert.Equal(t, "hello", doc.Text)
	require.Len(t, doc.Warnings, 1)
	assert.Contains(t, doc.Warnings[0], "bad.docx: ")
	assert.Equal(t, []string{"notes.txt"}, doc.Metadata.Entries)

	span, ok := locate(doc, 0)
	require.True(t, ok)
	assert.Equal(t, "notes.txt", span.Entry)
}

func TestExtractZip_NestingBeyondDepthIsWarning(t *testing.T) {
	innermost := buildZip(t, member{"deep.txt", "too deep"})
	middle := buildZip(t, member{"l3.zip", string(innermost)})
	outer := buildZip(t,
		member{"top.txt", "top"},
		member{"l2.zip", string(middle)},
	)

	svc := NewService(testLimits())
	doc, err := svc.Extract(context.Background(), outer, "outer.zip", "", plainConfig())
	require.NoError(t, err)

	assert.Equal(t, "top", doc.Text)
	require.Len(t, doc.Warnings, 1)
	assert.Contains(t, doc.Warnings[0], "l2.zip/l3.zip")
	assert.Contains(t, doc.Warnings[0], "nesting")
}

func TestExtractZip_NestedSpansArePrefixed(t *testing.T) {
	inner := buildZip(t, member{"a.txt", "alpha"})
	outer := buildZip(t,
		member{"first.txt", "first"},
		member{"inner.zip", string(inner)},
	)
	svc := NewService(testLimits())
	doc, err := svc.Extract(context.Background(), outer, "outer.zip", "", plainConfig())
	require.NoError(t, err)

	assert.Equal(t, "first\n\nalpha", doc.Text)
	span, ok := locate(doc, len(doc.Text)-1)
	require.True(t, ok)
	assert.Equal(t, "inner.zip/a.txt", span.Entry)
}

func TestExtractZip_SymlinkSkipped(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	hdr := &zip.FileHeader{Name: "link"}
	hdr.SetMode(fs.ModeSymlink | 0o777)
	w, err := zw.CreateHeader(hdr)
	require.NoError(t, err)
	_, err = w.Write([]byte("/etc/passwd"))
	require.NoError(t, err)
	w, err = zw.Create("real.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("real"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	svc := NewService(testLimits())
	doc, err := svc.Extract(context.Background(), buf.Bytes(), "links.zip", "", plainConfig())
	require.NoError(t, err)
	assert.Equal(t, "real", doc.Text)
	require.Len(t, doc.Warnings, 1)
	assert.Contains(t, doc.Warnings[0], "symlink")
}

func TestExtractTarGz(t *testing.T) {
	data := buildTar(t, true,
		member{"a.txt", "alpha"},
		member{"dir/b.md", "# beta"},
	)
	svc := NewService(testLimits())
	doc, err := svc.Extract(context.Background(), data, "bundle.tar.gz", "", plainConfig())
	require.NoError(t, err)
	assert.Equal(t, FormatTarGz, doc.Format)
	assert.Equal(t, "alpha\n\n# beta", doc.Text)
	assert.Equal(t, []string{"a.txt", "dir/b.md"}, doc.Metadata.Entries)
}

func TestExtractTar_Sniffed(t *testing.T) {
	data := buildTar(t, false, member{"a.txt", "alpha"})
	svc := NewService(testLimits())
	doc, err := svc.Extract(context.Background(), data, "upload", "application/octet-stream", plainConfig())
	require.NoError(t, err)
	assert.Equal(t, FormatTar, doc.Format)
	assert.Equal(t, "alpha", doc.Text)
}
