// Package input turns raw SDL keyboard state into player commands, chiefly
// the keystone corner-alignment controls.
package input

import "github.com/veandco/go-sdl2/sdl"

// KeyPressTracker reports a key press exactly once per physical press,
// filtering out the held-key repeats SDL's state array would otherwise
// produce every frame.
type KeyPressTracker struct {
	pressed map[sdl.Scancode]bool
}

// NewKeyPressTracker creates an empty tracker.
func NewKeyPressTracker() KeyPressTracker {
	return KeyPressTracker{pressed: make(map[sdl.Scancode]bool)}
}

// JustPressed is true on the first frame a key is down.
func (t *KeyPressTracker) JustPressed(keyState []uint8, scancode sdl.Scancode) bool {
	down := keyState[scancode] != 0
	was := t.pressed[scancode]
	t.pressed[scancode] = down
	return down && !was
}

// Held is true for as long as the key stays down. Corner nudging uses this
// so an installer can hold an arrow key to slew a corner.
func (t *KeyPressTracker) Held(keyState []uint8, scancode sdl.Scancode) bool {
	down := keyState[scancode] != 0
	t.pressed[scancode] = down
	return down
}
