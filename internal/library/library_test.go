package library_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/wsdl/internal/common"
	"github.com/NamanBalaji/wsdl/internal/library"
)

func writeFile(t *testing.T, path string, size int, mod time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestList(t *testing.T) {
	root := t.TempDir()
	movies := filepath.Join(root, "movies")
	series := filepath.Join(root, "series")
	now := time.Now()

	writeFile(t, filepath.Join(movies, "old.mkv"), 10, now.Add(-2*time.Hour))
	writeFile(t, filepath.Join(series, "new.mkv"), 2048, now)
	writeFile(t, filepath.Join(movies, "mid.mkv"), 0, now.Add(-time.Hour))
	writeFile(t, filepath.Join(movies, "busy.mkv.abc.part"), 5, now)
	require.NoError(t, os.MkdirAll(filepath.Join(movies, "subdir"), 0o755))

	files, err := library.List(
		library.Dir{Path: movies, Type: common.ContentMovie},
		library.Dir{Path: series, Type: common.ContentSeries},
	)
	require.NoError(t, err)
	require.Len(t, files, 3)

	assert.Equal(t, "new.mkv", files[0].Name)
	assert.Equal(t, common.ContentSeries, files[0].Type)
	assert.Equal(t, "📺 Series", files[0].TypeLabel)
	assert.Equal(t, "2.0 KiB", files[0].SizeFormatted)

	assert.Equal(t, "mid.mkv", files[1].Name)
	assert.Equal(t, "0 B", files[1].SizeFormatted)

	assert.Equal(t, "old.mkv", files[2].Name)
	assert.Equal(t, "🎬 Movie", files[2].TypeLabel)
	assert.InDelta(t, float64(now.Add(-2*time.Hour).Unix()), files[2].Modified, 1)
}

func TestListMissingDirectories(t *testing.T) {
	files, err := library.List(library.Dir{Path: filepath.Join(t.TempDir(), "nope"), Type: common.ContentMovie})
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.NotNil(t, files)
}
