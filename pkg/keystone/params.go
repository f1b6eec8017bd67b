package keystone

import (
	"encoding/binary"
	"math"
)

// Corner is a single quad corner in pixel coordinates of the video frame.
type Corner struct {
	X float32
	Y float32
}

// Params describes the projective correction applied to each frame.
//
// Corners are in pixel space of the frame the ResourceSet was built for,
// clockwise from the top left: TopLeft, TopRight, BottomRight, BottomLeft.
// They mark where the four corners of the source rectangle land in the
// output; the identity configuration maps (0,0) (W,0) (W,H) (0,H) onto
// themselves and leaves the frame untouched.
//
// Params is a value type. The control surface (keyboard, settings file)
// produces new snapshots and the dispatcher reads one per frame, so there is
// no shared-mutation hazard beyond single-writer/single-reader discipline.
type Params struct {
	Enabled     bool
	TopLeft     Corner
	TopRight    Corner
	BottomRight Corner
	BottomLeft  Corner
}

// Identity returns the pass-through corner configuration for a frame of the
// given dimensions, with correction enabled.
func Identity(width, height uint32) Params {
	w, h := float32(width), float32(height)
	return Params{
		Enabled:     true,
		TopLeft:     Corner{0, 0},
		TopRight:    Corner{w, 0},
		BottomRight: Corner{w, h},
		BottomLeft:  Corner{0, h},
	}
}

// Nudge moves one corner (0=TL, 1=TR, 2=BR, 3=BL) by (dx, dy) pixels and
// returns the updated snapshot.
func (p Params) Nudge(corner int, dx, dy float32) Params {
	switch corner {
	case 0:
		p.TopLeft.X += dx
		p.TopLeft.Y += dy
	case 1:
		p.TopRight.X += dx
		p.TopRight.Y += dy
	case 2:
		p.BottomRight.X += dx
		p.BottomRight.Y += dy
	case 3:
		p.BottomLeft.X += dx
		p.BottomLeft.Y += dy
	}
	return p
}

// uniformSize is the byte size of the packed uniform block: four vec2
// corners plus a vec2 frame size, tightly packed as std140 lays out
// consecutive vec2 members.
const uniformSize = 10 * 4

// pack serializes the corners and frame dimensions into the uniform block
// layout the shader expects. Field order must match shaders/keystone.comp.
func (p Params) pack(width, height uint32) []byte {
	buf := make([]byte, uniformSize)
	floats := []float32{
		p.TopLeft.X, p.TopLeft.Y,
		p.TopRight.X, p.TopRight.Y,
		p.BottomRight.X, p.BottomRight.Y,
		p.BottomLeft.X, p.BottomLeft.Y,
		float32(width), float32(height),
	}
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
