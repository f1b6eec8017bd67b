package videoFs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPlayableFiltersByContainer(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.mp4", "b.mkv", "notes.txt", "c.webm", ".hidden"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.mp4"), 0o755))

	files, err := ListPlayable(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a.mp4"),
		filepath.Join(dir, "b.mkv"),
		filepath.Join(dir, "c.webm"),
	}, files)
}

func TestListPlayableEmptyDir(t *testing.T) {
	files, err := ListPlayable(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestListPlayableMissingDir(t *testing.T) {
	_, err := ListPlayable(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestSyncFromS3RequiresCredentials(t *testing.T) {
	t.Setenv("AWS_DEFAULT_REGION", "")
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")

	_, err := SyncFromS3("bucket", "videos/", t.TempDir())
	assert.Error(t, err)
}

func TestUpToDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video.mp4")
	require.NoError(t, os.WriteFile(path, []byte("12345"), 0o644))

	size := int64(5)
	wrong := int64(9)
	assert.True(t, upToDate(path, &size))
	assert.False(t, upToDate(path, &wrong))
	assert.False(t, upToDate(path, nil))
	assert.False(t, upToDate(path+".missing", &size))
}
