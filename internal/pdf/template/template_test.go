package template

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBundled_IsStable(t *testing.T) {
	first, err := Bundled()
	require.NoError(t, err)
	second, err := Bundled()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, bytes.HasPrefix(first, []byte("%PDF-1.7\n")))
	assert.True(t, bytes.HasSuffix(first, []byte("%%EOF\n")))
}

func TestBundled_XRefOffsetsPointAtObjects(t *testing.T) {
	content, err := Bundled()
	require.NoError(t, err)

	startxref := regexp.MustCompile(`startxref\n(\d+)\n`).FindSubmatch(content)
	require.NotNil(t, startxref)
	offset, err := strconv.Atoi(string(startxref[1]))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(content[offset:], []byte("xref\n")))

	entries := regexp.MustCompile(`(\d{10}) 00000 n `).FindAllSubmatch(content, -1)
	require.NotEmpty(t, entries)
	for i, entry := range entries {
		off, err := strconv.Atoi(string(entry[1]))
		require.NoError(t, err)
		want := strconv.Itoa(i+1) + " 0 obj\n"
		assert.True(t, bytes.HasPrefix(content[off:], []byte(want)), "object %d at offset %d", i+1, off)
	}
}

func TestBundled_ContainsAllFields(t *testing.T) {
	content, err := Bundled()
	require.NoError(t, err)

	for _, name := range FieldNames {
		assert.Contains(t, string(content), "/T ("+name+")")
	}
	assert.Len(t, bundledFields, len(FieldNames))
}

func TestBundled_ReadableByPDFCPU(t *testing.T) {
	content, err := Bundled()
	require.NoError(t, err)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(content), conf)
	require.NoError(t, err)
	require.NoError(t, ctx.EnsurePageCount())
	assert.Equal(t, 1, ctx.PageCount)
}

func TestLoad(t *testing.T) {
	bundled, err := Bundled()
	require.NoError(t, err)

	got, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, bundled, got)

	dir := t.TempDir()
	path := filepath.Join(dir, "form.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 custom"), 0o600))

	got, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 custom"), got)

	empty := filepath.Join(dir, "empty.pdf")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	_, err = Load(empty)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.pdf"))
	assert.Error(t, err)
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, `(plain)`, literal("plain"))
	assert.Equal(t, `(a\(b\)c\\d)`, literal(`a(b)c\d`))
}
