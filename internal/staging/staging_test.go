package staging

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BUNny0021/PDF-Ofice/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArea(t *testing.T, opts ...Option) *Area {
	t.Helper()
	area, err := NewArea(t.TempDir(), testutils.CreateTestLogger(), opts...)
	require.NoError(t, err)
	return area
}

func TestStage_WritesFileWithMetadata(t *testing.T) {
	area := newTestArea(t)
	content := testutils.BuildPDF([]string{"hello"})

	headers := testutils.FileHeaders(t, testutils.Upload{Field: "file", Filename: "Report Q1.PDF", Content: content})
	require.Len(t, headers, 1)

	f, err := area.Stage(headers[0])
	require.NoError(t, err)

	assert.Equal(t, "Report Q1.PDF", f.OriginalName)
	assert.Equal(t, ".pdf", f.Ext)
	assert.Equal(t, "Report Q1", f.BaseName())
	assert.Equal(t, int64(len(content)), f.Size)
	assert.Equal(t, "application/pdf", f.MIME)
	assert.True(t, area.Contains(f.Path))
	assert.True(t, strings.HasSuffix(f.Path, "-Report_Q1.PDF"), f.Path)

	data, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestStage_StripsClientDirectories(t *testing.T) {
	area := newTestArea(t)

	f, err := area.StageReader(`..\..\evil/../../etc/passwd`, strings.NewReader("x"))
	require.NoError(t, err)

	assert.Equal(t, "passwd", f.OriginalName)
	assert.Equal(t, area.Dir(), filepath.Dir(f.Path))
}

func TestStage_UniqueNamesForIdenticalUploads(t *testing.T) {
	fixed := time.UnixMilli(1700000000000)
	area := newTestArea(t, WithClock(func() time.Time { return fixed }))

	const n = 50
	var wg sync.WaitGroup
	paths := make([]string, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := area.StageReader("same.pdf", strings.NewReader("content"))
			errs[i] = err
			if f != nil {
				paths[i] = f.Path
			}
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := range n {
		require.NoError(t, errs[i])
		assert.False(t, seen[paths[i]], "duplicate staged path %s", paths[i])
		seen[paths[i]] = true
		assert.True(t, strings.HasPrefix(filepath.Base(paths[i]), "1700000000000-"))
	}
}

func TestStage_Limits(t *testing.T) {
	area := newTestArea(t, WithMaxFileSize(10))

	_, err := area.StageReader("big.bin", bytes.NewReader(make([]byte, 11)))
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = area.StageReader("empty.bin", bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrFileIsEmpty)

	assert.Empty(t, testutils.DirEntries(t, area.Dir()), "rejected uploads must not leave files behind")
}

func TestStageAll_CleansUpOnPartialFailure(t *testing.T) {
	area := newTestArea(t, WithMaxFileSize(8))

	headers := testutils.FileHeaders(t,
		testutils.Upload{Field: "files", Filename: "a.pdf", Content: []byte("small")},
		testutils.Upload{Field: "files", Filename: "b.pdf", Content: []byte("much too large")},
	)
	require.Len(t, headers, 2)

	files, err := area.StageAll(headers)
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Nil(t, files)
	assert.Empty(t, testutils.DirEntries(t, area.Dir()))
}

func TestStageAll_NoFiles(t *testing.T) {
	area := newTestArea(t)
	_, err := area.StageAll(nil)
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestStageAll_PreservesOrder(t *testing.T) {
	area := newTestArea(t)

	headers := testutils.FileHeaders(t,
		testutils.Upload{Field: "files", Filename: "first.pdf", Content: []byte("1")},
		testutils.Upload{Field: "files", Filename: "second.pdf", Content: []byte("2")},
		testutils.Upload{Field: "files", Filename: "third.pdf", Content: []byte("3")},
	)

	files, err := area.StageAll(headers)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "first.pdf", files[0].OriginalName)
	assert.Equal(t, "second.pdf", files[1].OriginalName)
	assert.Equal(t, "third.pdf", files[2].OriginalName)
}

func TestCleanup_ToleratesJunkAndMissingFiles(t *testing.T) {
	var failures []string
	area := newTestArea(t, WithCleanupFailureHook(func(path string, err error) {
		failures = append(failures, path)
	}))

	f, err := area.StageReader("a.txt", strings.NewReader("a"))
	require.NoError(t, err)
	g, err := area.StageReader("b.txt", strings.NewReader("b"))
	require.NoError(t, err)
	dir, err := area.TempDir("work")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested.txt"), []byte("n"), 0600))

	missing := filepath.Join(area.Dir(), "never-created.pdf")

	assert.NotPanics(t, func() {
		area.Cleanup(nil, "", f, []*File{g, nil}, []string{dir}, missing, 42, struct{}{})
	})

	assert.Empty(t, testutils.DirEntries(t, area.Dir()))
	assert.Empty(t, failures, "missing files are not counted as failures")

	// A second pass over the same items is harmless
	assert.NotPanics(t, func() {
		area.Cleanup(f, g, dir)
	})
}

func TestCleanup_RefusesPathsOutsideStaging(t *testing.T) {
	var failures []error
	area := newTestArea(t, WithCleanupFailureHook(func(path string, err error) {
		failures = append(failures, err)
	}))

	outside := filepath.Join(t.TempDir(), "keep.txt")
	require.NoError(t, os.WriteFile(outside, []byte("keep"), 0600))

	area.Cleanup(outside, area.Dir())

	_, err := os.Stat(outside)
	assert.NoError(t, err)
	_, err = os.Stat(area.Dir())
	assert.NoError(t, err)
	require.Len(t, failures, 2)
	assert.True(t, errors.Is(failures[0], ErrOutsideStaging))
}

func TestTempDir(t *testing.T) {
	area := newTestArea(t)

	dir, err := area.TempDir("office profile")
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, strings.HasSuffix(dir, "-office_profile"))
	assert.True(t, area.Contains(dir))

	other, err := area.TempDir("office profile")
	require.NoError(t, err)
	assert.NotEqual(t, dir, other)
}

// orphan writes an entry the area does not own, as left behind by a crashed process
func orphan(t *testing.T, area *Area, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(area.Dir(), name)
	require.NoError(t, os.WriteFile(path, []byte(name), 0600))
	past := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, past, past))
	return path
}

func TestSweep_RemovesOnlyOldEntries(t *testing.T) {
	area := newTestArea(t)

	old := orphan(t, area, "old.pdf", 2*time.Hour)
	fresh := orphan(t, area, "fresh.pdf", time.Minute)

	removed, err := area.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}

func TestSweep_SkipsEntriesOfRunningRequests(t *testing.T) {
	var failures []string
	area := newTestArea(t, WithCleanupFailureHook(func(path string, err error) {
		failures = append(failures, path)
	}))

	upload, err := area.StageReader("slow.docx", strings.NewReader("still converting"))
	require.NoError(t, err)
	work, err := area.TempDir("wordtopdf")
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(work, "out"), 0700))
	stale := orphan(t, area, "crashed.pdf", 2*time.Hour)

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(upload.Path, past, past))
	require.NoError(t, os.Chtimes(work, past, past))

	removed, err := area.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "only the orphan may go")

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(upload.Path)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(work, "out"))
	require.NoError(t, err)

	// The request removes its own entries exactly once, after which they are no longer protected
	area.Cleanup(upload, work)
	assert.Empty(t, failures)
	assert.Empty(t, testutils.DirEntries(t, area.Dir()))
	assert.False(t, area.inFlight(upload.Path))
	assert.False(t, area.inFlight(work))
}

func TestRunJanitor_SweepsAndReports(t *testing.T) {
	swept := make(chan int, 1)
	area := newTestArea(t, WithSweepHook(func(removed int) {
		select {
		case swept <- removed:
		default:
		}
	}))

	orphan(t, area, "orphan.pdf", 2*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		area.RunJanitor(ctx, 10*time.Millisecond, time.Hour)
		close(done)
	}()

	select {
	case removed := <-swept:
		assert.Equal(t, 1, removed)
	case <-time.After(5 * time.Second):
		t.Fatal("janitor did not sweep the orphan")
	}

	cancel()
	<-done
	assert.Empty(t, testutils.DirEntries(t, area.Dir()))
}

func TestRunJanitor_DisabledReturnsImmediately(t *testing.T) {
	area := newTestArea(t)

	done := make(chan struct{})
	go func() {
		area.RunJanitor(context.Background(), 0, time.Hour)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled janitor should return at once")
	}
}

func TestSanitiseName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"my report (final).docx", "my_report__final_.docx"},
		{"...", "upload"},
		{"", "upload"},
		{"résumé.pdf", "r_sum_.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitiseName(tt.in))
		})
	}

	long := strings.Repeat("a", 300) + ".pdf"
	got := sanitiseName(long)
	assert.Len(t, got, maxNameLength)
	assert.True(t, strings.HasSuffix(got, ".pdf"))
}
