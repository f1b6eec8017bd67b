package video

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectContainer(t *testing.T) {
	assert.Equal(t, ContainerMP4, DetectContainer("movie.mp4"))
	assert.Equal(t, ContainerMP4, DetectContainer("MOVIE.M4V"))
	assert.Equal(t, ContainerMKV, DetectContainer("/media/show.mkv"))
	assert.Equal(t, ContainerTS, DetectContainer("broadcast.ts"))
	assert.Equal(t, ContainerWebM, DetectContainer("clip.webm"))
	assert.Equal(t, ContainerUnknown, DetectContainer("notes.txt"))
	assert.Equal(t, ContainerUnknown, DetectContainer("noextension"))
}

func TestNewDemuxerOpensKnownContainer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.mp4")
	require.NoError(t, os.WriteFile(path, []byte("not real video"), 0o644))

	d, err := NewDemuxer(path)
	require.NoError(t, err)
	assert.Equal(t, ContainerMP4, d.Container())

	_, err = d.Next()
	assert.ErrorIs(t, err, ErrNoDecoder)
	assert.NoError(t, d.Close())
}

func TestNewDemuxerRejectsMissingFile(t *testing.T) {
	_, err := NewDemuxer(filepath.Join(t.TempDir(), "absent.mp4"))
	assert.Error(t, err)
}

func TestNewDemuxerRejectsUnknownContainer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.txt")
	require.NoError(t, os.WriteFile(path, []byte("text"), 0o644))

	_, err := NewDemuxer(path)
	assert.Error(t, err)
}

func TestNewDemuxerRejectsDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "folder.mp4")
	require.NoError(t, os.Mkdir(dir, 0o755))

	_, err := NewDemuxer(dir)
	assert.Error(t, err)
}
