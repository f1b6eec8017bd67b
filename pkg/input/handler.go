package input

import (
	"log"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/mjdilworth/pickle-sub002/pkg/keystone"
)

// Fine and coarse nudge steps in pixels per frame while an arrow key is
// held. Shift selects the coarse step.
const (
	nudgeStep       = 0.5
	nudgeStepCoarse = 4.0
)

// Handler maps the alignment keys onto keystone parameters:
//
//	1-4         select corner (TL, TR, BR, BL)
//	arrows      nudge the selected corner
//	k           toggle correction on/off
//	r           reset to the identity quad
//	s           save alignment
//	q / escape  quit
type Handler struct {
	tracker KeyPressTracker

	params keystone.Params
	corner int
	width  uint32
	height uint32

	saveRequested bool
	quitRequested bool
}

// NewHandler starts with the given parameters, usually loaded from the
// settings file.
func NewHandler(params keystone.Params, width, height uint32) *Handler {
	return &Handler{
		tracker: NewKeyPressTracker(),
		params:  params,
		width:   width,
		height:  height,
	}
}

// Params returns the current keystone parameters.
func (h *Handler) Params() keystone.Params { return h.params }

// QuitRequested reports whether the user asked to exit.
func (h *Handler) QuitRequested() bool { return h.quitRequested }

// ConsumeSaveRequest reports one pending save request and clears it.
func (h *Handler) ConsumeSaveRequest() bool {
	requested := h.saveRequested
	h.saveRequested = false
	return requested
}

// HandleEvent processes one SDL event from the poll loop.
func (h *Handler) HandleEvent(event sdl.Event) {
	if _, ok := event.(*sdl.QuitEvent); ok {
		h.quitRequested = true
	}
}

// Update reads the keyboard state once per frame and applies the
// alignment controls.
func (h *Handler) Update() {
	keys := sdl.GetKeyboardState()

	if h.tracker.JustPressed(keys, sdl.SCANCODE_Q) ||
		h.tracker.JustPressed(keys, sdl.SCANCODE_ESCAPE) {
		h.quitRequested = true
	}

	for i, sc := range []sdl.Scancode{
		sdl.SCANCODE_1, sdl.SCANCODE_2, sdl.SCANCODE_3, sdl.SCANCODE_4,
	} {
		if h.tracker.JustPressed(keys, sc) {
			h.corner = i
			log.Printf("input: selected corner %d", i+1)
		}
	}

	if h.tracker.JustPressed(keys, sdl.SCANCODE_K) {
		h.params.Enabled = !h.params.Enabled
		log.Printf("input: keystone correction enabled=%v", h.params.Enabled)
	}

	if h.tracker.JustPressed(keys, sdl.SCANCODE_R) {
		enabled := h.params.Enabled
		h.params = keystone.Identity(h.width, h.height)
		h.params.Enabled = enabled
		log.Printf("input: keystone quad reset")
	}

	if h.tracker.JustPressed(keys, sdl.SCANCODE_S) {
		h.saveRequested = true
	}

	step := float32(nudgeStep)
	if keys[sdl.SCANCODE_LSHIFT] != 0 || keys[sdl.SCANCODE_RSHIFT] != 0 {
		step = nudgeStepCoarse
	}

	var dx, dy float32
	if h.tracker.Held(keys, sdl.SCANCODE_LEFT) {
		dx -= step
	}
	if h.tracker.Held(keys, sdl.SCANCODE_RIGHT) {
		dx += step
	}
	if h.tracker.Held(keys, sdl.SCANCODE_UP) {
		dy -= step
	}
	if h.tracker.Held(keys, sdl.SCANCODE_DOWN) {
		dy += step
	}
	if dx != 0 || dy != 0 {
		h.params = h.params.Nudge(h.corner, dx, dy)
	}
}
