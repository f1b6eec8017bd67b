package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjdilworth/pickle-sub002/pkg/keystone"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	s := Load(filepath.Join(t.TempDir(), "absent.json"), 1920, 1080)

	assert.True(t, s.Loop)
	assert.Equal(t, 1.0, s.PlaybackSpeed)
	assert.Equal(t, [2]float32{0, 0}, s.Keystone.TopLeft)
	assert.Equal(t, [2]float32{1920, 0}, s.Keystone.TopRight)
	assert.Equal(t, [2]float32{1920, 1080}, s.Keystone.BottomRight)
	assert.Equal(t, [2]float32{0, 1080}, s.Keystone.BottomLeft)
}

func TestLoadMalformedFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0o644))

	s := Load(path, 1280, 720)
	assert.Equal(t, Default(1280, 720), s)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	saved := Default(1920, 1080)
	saved.VideoFile = "videos/loop.mp4"
	saved.Loop = false
	saved.PlaybackSpeed = 1.5
	params := keystone.Identity(1920, 1080).Nudge(1, -30, 12)
	params.Enabled = true
	saved.SetParams(params)

	require.NoError(t, Save(path, saved))
	loaded := Load(path, 1920, 1080)

	assert.Equal(t, saved, loaded)
	assert.Equal(t, params, loaded.Keystone.Params())
}

func TestLoadZeroQuadFallsBackToIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"loop":true,"playbackSpeed":1.0}`), 0o644))

	s := Load(path, 800, 600)
	assert.Equal(t, Default(800, 600).Keystone, s.Keystone)
}

func TestParamsConversionRoundTrip(t *testing.T) {
	p := keystone.Params{
		Enabled:     true,
		TopLeft:     keystone.Corner{X: 4, Y: 2},
		TopRight:    keystone.Corner{X: 630, Y: 6},
		BottomRight: keystone.Corner{X: 636, Y: 470},
		BottomLeft:  keystone.Corner{X: 2, Y: 474},
	}

	var s Settings
	s.SetParams(p)
	assert.Equal(t, p, s.Keystone.Params())
}
