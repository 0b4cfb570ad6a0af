package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/BUNny0021/PDF-Ofice/internal/testutils"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func newTestEngine() *Engine {
	return NewEngine(testutils.CreateTestLogger())
}

func extract(t *testing.T, e *Engine, data []byte) []string {
	t.Helper()
	path := writeTemp(t, "doc.pdf", data)
	lines, err := e.ExtractText(path, t.TempDir())
	require.NoError(t, err)
	return lines
}

func TestMerge_PreservesOrderAndPageCount(t *testing.T) {
	e := newTestEngine()

	a := writeTemp(t, "a.pdf", testutils.BuildPDF([]string{"page from A"}))
	b := writeTemp(t, "b.pdf", testutils.BuildPDF([]string{"page from B"}))

	var out bytes.Buffer
	require.NoError(t, e.Merge([]string{a, b}, &out))

	merged := writeTemp(t, "merged.pdf", out.Bytes())
	count, err := e.PageCount(merged)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.Equal(t, []string{"page from A", "page from B"}, extract(t, e, out.Bytes()))
}

func TestMerge_PageCountIsSumOfInputs(t *testing.T) {
	e := newTestEngine()

	two := writeTemp(t, "two.pdf", testutils.BuildPDF([]string{"1"}, []string{"2"}))
	three := writeTemp(t, "three.pdf", testutils.BuildPDF([]string{"3"}, []string{"4"}, []string{"5"}))

	var out bytes.Buffer
	require.NoError(t, e.Merge([]string{two, three}, &out))

	count, err := e.PageCount(writeTemp(t, "merged.pdf", out.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestMerge_SingleInput(t *testing.T) {
	e := newTestEngine()
	only := writeTemp(t, "only.pdf", testutils.BuildPDF([]string{"alone"}, []string{"still alone"}))

	var out bytes.Buffer
	require.NoError(t, e.Merge([]string{only}, &out))
	assert.Equal(t, []string{"alone", "still alone"}, extract(t, e, out.Bytes()))
}

func TestMerge_Errors(t *testing.T) {
	e := newTestEngine()

	assert.ErrorIs(t, e.Merge(nil, io.Discard), ErrNoInput)

	bogus := writeTemp(t, "bogus.pdf", []byte("not a pdf at all"))
	good := writeTemp(t, "good.pdf", testutils.BuildPDF([]string{"ok"}))
	assert.Error(t, e.Merge([]string{good, bogus}, io.Discard))

	assert.Error(t, e.Merge([]string{filepath.Join(t.TempDir(), "missing.pdf")}, io.Discard))
}

func TestRotate_FourTimesRestoresOrientation(t *testing.T) {
	e := newTestEngine()
	path := writeTemp(t, "doc.pdf", testutils.BuildPDF([]string{"one"}, []string{"two"}))

	for i := 1; i <= 4; i++ {
		var out bytes.Buffer
		require.NoError(t, e.Rotate(path, 90, &out))
		path = writeTemp(t, "rotated.pdf", out.Bytes())

		info, err := e.Info(path)
		require.NoError(t, err)
		require.Len(t, info.Pages, 2)
		for _, page := range info.Pages {
			assert.Equal(t, (i*90)%360, page.Rotation, "after %d rotations", i)
		}
	}
}

func TestRotate_RejectsOddAngles(t *testing.T) {
	e := newTestEngine()
	path := writeTemp(t, "doc.pdf", testutils.BuildPDF([]string{"one"}))
	assert.Error(t, e.Rotate(path, 45, io.Discard))
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	e := newTestEngine()
	original := testutils.BuildPDF([]string{"secret line one", "secret line two"}, []string{"page two"})
	path := writeTemp(t, "doc.pdf", original)

	var protected bytes.Buffer
	require.NoError(t, e.Encrypt(path, "s3cret", &protected))
	protectedPath := writeTemp(t, "protected.pdf", protected.Bytes())

	var unlocked bytes.Buffer
	require.NoError(t, e.Decrypt(protectedPath, "s3cret", &unlocked))

	unlockedPath := writeTemp(t, "unlocked.pdf", unlocked.Bytes())
	count, err := e.PageCount(unlockedPath)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	info, err := e.Info(unlockedPath)
	require.NoError(t, err)
	assert.False(t, info.Encrypted)

	assert.Equal(t, extract(t, e, original), extract(t, e, unlocked.Bytes()))
}

func TestDecrypt_WrongPassword(t *testing.T) {
	e := newTestEngine()
	path := writeTemp(t, "doc.pdf", testutils.BuildPDF([]string{"text"}))

	var protected bytes.Buffer
	require.NoError(t, e.Encrypt(path, "right", &protected))
	protectedPath := writeTemp(t, "protected.pdf", protected.Bytes())

	err := e.Decrypt(protectedPath, "wrong", io.Discard)
	assert.ErrorIs(t, err, ErrIncorrectPassword)
}

func TestClassifyDecryptError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantAuth  bool
		wantPlain bool
	}{
		{"wrong password", fmt.Errorf("read: %w", pdfcpu.ErrWrongPassword), true, false},
		{"unsupported handler mentioning password", errors.New("unsupported encryption: password algorithm revision 7"), false, false},
		{"not encrypted", errors.New("this file is not encrypted"), false, true},
		{"other", errors.New("corrupt xref"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyDecryptError(tt.err)
			assert.Equal(t, tt.wantAuth, errors.Is(got, ErrIncorrectPassword))
			assert.Equal(t, tt.wantPlain, errors.Is(got, ErrNotEncrypted))
		})
	}
}

func TestDecrypt_NotEncrypted(t *testing.T) {
	e := newTestEngine()
	path := writeTemp(t, "doc.pdf", testutils.BuildPDF([]string{"plain"}))

	err := e.Decrypt(path, "anything", io.Discard)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotEncrypted)
	assert.NotErrorIs(t, err, ErrIncorrectPassword)
}

func TestEncryptDecrypt_RequirePassword(t *testing.T) {
	e := newTestEngine()
	path := writeTemp(t, "doc.pdf", testutils.BuildPDF([]string{"plain"}))

	assert.ErrorIs(t, e.Encrypt(path, "", io.Discard), ErrPasswordRequired)
	assert.ErrorIs(t, e.Decrypt(path, "", io.Discard), ErrPasswordRequired)
}

func TestImagesToPDF_OnePagePerImage(t *testing.T) {
	e := newTestEngine()

	images := []io.Reader{
		bytes.NewReader(testutils.PNG(t, 40, 20)),
		bytes.NewReader(testutils.PNG(t, 10, 30)),
		bytes.NewReader(testutils.PNG(t, 25, 25)),
	}

	var out bytes.Buffer
	require.NoError(t, e.ImagesToPDF(images, &out))

	info, err := e.Info(writeTemp(t, "images.pdf", out.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 3, info.PageCount)

	// Pages keep the aspect of their image
	require.Len(t, info.Pages, 3)
	assert.Greater(t, info.Pages[0].Width, info.Pages[0].Height)
	assert.Less(t, info.Pages[1].Width, info.Pages[1].Height)
	assert.InDelta(t, info.Pages[2].Width, info.Pages[2].Height, 0.01)
}

func TestImagesToPDF_NoImages(t *testing.T) {
	assert.ErrorIs(t, newTestEngine().ImagesToPDF(nil, io.Discard), ErrNoInput)
}

func TestPageCountAndInfo_InvalidDocument(t *testing.T) {
	e := newTestEngine()
	path := writeTemp(t, "bad.pdf", []byte("%PDF-1.4\ngarbage"))

	_, err := e.PageCount(path)
	assert.Error(t, err)

	_, err = e.Info(path)
	assert.Error(t, err)
}

func TestExtractText_MultiplePagesInOrder(t *testing.T) {
	e := newTestEngine()
	data := testutils.BuildPDF(
		[]string{"line 1", "line 2"},
		[]string{"line 3"},
		[]string{"(parenthesised) line 4"},
	)

	assert.Equal(t, []string{"line 1", "line 2", "line 3", "(parenthesised) line 4"}, extract(t, e, data))
}

func TestContentFiles_OrderedByPage(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"doc_Content_page_10.txt",
		"doc_Content_page_2.txt",
		"doc_Content_page_1.txt",
		"doc_Content_page_2_1.txt",
		"unrelated.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0600))
	}

	files, err := contentFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"doc_Content_page_1.txt",
		"doc_Content_page_2.txt",
		"doc_Content_page_2_1.txt",
		"doc_Content_page_10.txt",
	}, files)
}
