// Package settings persists user-tunable state across restarts and reads
// the deployment tuning knobs from the environment.
package settings

import (
	"encoding/json"
	"os"

	"github.com/mjdilworth/pickle-sub002/pkg/keystone"
)

// Settings is the configuration a projector installer changes and expects
// to survive a power cycle, most importantly the keystone alignment.
type Settings struct {
	VideoFile     string  `json:"videoFile"`
	Loop          bool    `json:"loop"`
	PlaybackSpeed float64 `json:"playbackSpeed"`

	Keystone KeystoneSettings `json:"keystone"`
}

// KeystoneSettings mirrors keystone.Params in a stable JSON shape.
type KeystoneSettings struct {
	Enabled     bool       `json:"enabled"`
	TopLeft     [2]float32 `json:"topLeft"`
	TopRight    [2]float32 `json:"topRight"`
	BottomRight [2]float32 `json:"bottomRight"`
	BottomLeft  [2]float32 `json:"bottomLeft"`
}

// Default returns the settings used when nothing has been saved yet. The
// keystone quad covers the given frame exactly, so correction starts as a
// no-op even when enabled.
func Default(width, height uint32) Settings {
	return Settings{
		Loop:          true,
		PlaybackSpeed: 1.0,
		Keystone:      fromParams(keystone.Identity(width, height)),
	}
}

// Load reads settings from path. A missing or malformed file yields the
// defaults so the player always comes up.
func Load(path string, width, height uint32) Settings {
	defaults := Default(width, height)

	f, err := os.Open(path)
	if err != nil {
		return defaults
	}
	defer f.Close()

	var s Settings
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return defaults
	}

	if s.PlaybackSpeed == 0 {
		s.PlaybackSpeed = defaults.PlaybackSpeed
	}
	// A partially written file can hold an all-zero quad, which is not a
	// usable alignment. Replace it with the identity quad.
	if s.Keystone.TopRight == ([2]float32{}) && s.Keystone.BottomRight == ([2]float32{}) {
		s.Keystone = defaults.Keystone
	}
	return s
}

// Save writes settings to path with indentation so an installer can read
// and hand-edit the file over ssh.
func Save(path string, s Settings) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// Params converts the persisted quad back into dispatch parameters.
func (k KeystoneSettings) Params() keystone.Params {
	return keystone.Params{
		Enabled:     k.Enabled,
		TopLeft:     keystone.Corner{X: k.TopLeft[0], Y: k.TopLeft[1]},
		TopRight:    keystone.Corner{X: k.TopRight[0], Y: k.TopRight[1]},
		BottomRight: keystone.Corner{X: k.BottomRight[0], Y: k.BottomRight[1]},
		BottomLeft:  keystone.Corner{X: k.BottomLeft[0], Y: k.BottomLeft[1]},
	}
}

// SetParams stores dispatch parameters for persistence.
func (s *Settings) SetParams(p keystone.Params) {
	s.Keystone = fromParams(p)
}

func fromParams(p keystone.Params) KeystoneSettings {
	return KeystoneSettings{
		Enabled:     p.Enabled,
		TopLeft:     [2]float32{p.TopLeft.X, p.TopLeft.Y},
		TopRight:    [2]float32{p.TopRight.X, p.TopRight.Y},
		BottomRight: [2]float32{p.BottomRight.X, p.BottomRight.Y},
		BottomLeft:  [2]float32{p.BottomLeft.X, p.BottomLeft.Y},
	}
}
