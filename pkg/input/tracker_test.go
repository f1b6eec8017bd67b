package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/veandco/go-sdl2/sdl"
)

func keyState(down ...sdl.Scancode) []uint8 {
	state := make([]uint8, sdl.NUM_SCANCODES)
	for _, sc := range down {
		state[sc] = 1
	}
	return state
}

func TestJustPressedFiresOncePerPress(t *testing.T) {
	tr := NewKeyPressTracker()

	assert.True(t, tr.JustPressed(keyState(sdl.SCANCODE_K), sdl.SCANCODE_K))
	assert.False(t, tr.JustPressed(keyState(sdl.SCANCODE_K), sdl.SCANCODE_K))
	assert.False(t, tr.JustPressed(keyState(), sdl.SCANCODE_K))
	assert.True(t, tr.JustPressed(keyState(sdl.SCANCODE_K), sdl.SCANCODE_K))
}

func TestJustPressedTracksKeysIndependently(t *testing.T) {
	tr := NewKeyPressTracker()
	both := keyState(sdl.SCANCODE_1, sdl.SCANCODE_2)

	assert.True(t, tr.JustPressed(both, sdl.SCANCODE_1))
	assert.True(t, tr.JustPressed(both, sdl.SCANCODE_2))
	assert.False(t, tr.JustPressed(both, sdl.SCANCODE_1))
}

func TestHeldFiresEveryFrame(t *testing.T) {
	tr := NewKeyPressTracker()

	assert.True(t, tr.Held(keyState(sdl.SCANCODE_LEFT), sdl.SCANCODE_LEFT))
	assert.True(t, tr.Held(keyState(sdl.SCANCODE_LEFT), sdl.SCANCODE_LEFT))
	assert.False(t, tr.Held(keyState(), sdl.SCANCODE_LEFT))
}
