package video

import (
	"time"

	"github.com/pkg/errors"
)

// PatternSource generates an animated gradient with a white border. It
// stands in when no playable media is available and gives the keystone
// controls something visible to warp while aligning a projector.
type PatternSource struct {
	width  uint32
	height uint32
	index  uint64
	buf    []byte
	closed bool
}

// NewPatternSource creates a generator at the given dimensions.
func NewPatternSource(width, height uint32) (*PatternSource, error) {
	if width == 0 || height == 0 {
		return nil, errors.New("pattern dimensions must be non-zero")
	}
	return &PatternSource{
		width:  width,
		height: height,
		buf:    make([]byte, int(width)*int(height)*4),
	}, nil
}

// Next renders the next frame into an internal buffer. The buffer is
// reused across calls; callers must consume it before asking for another.
func (p *PatternSource) Next() (*Frame, error) {
	if p.closed {
		return nil, errors.New("pattern source is closed")
	}

	phase := uint8(p.index * 2)
	w, h := int(p.width), int(p.height)
	for y := 0; y < h; y++ {
		row := y * w * 4
		for x := 0; x < w; x++ {
			o := row + x*4
			p.buf[o+0] = uint8(x*255/w) + phase
			p.buf[o+1] = uint8(y * 255 / h)
			p.buf[o+2] = 255 - phase
			p.buf[o+3] = 255
		}
	}
	p.drawBorder()

	frame := &Frame{
		Pixels: p.buf,
		Width:  p.width,
		Height: p.height,
		Index:  p.index,
		PTS:    time.Duration(p.index) * time.Second / 60,
	}
	p.index++
	return frame, nil
}

// drawBorder paints a 2px white frame so the quad edges are visible
// during corner alignment.
func (p *PatternSource) drawBorder() {
	w, h := int(p.width), int(p.height)
	set := func(x, y int) {
		o := (y*w + x) * 4
		p.buf[o+0], p.buf[o+1], p.buf[o+2], p.buf[o+3] = 255, 255, 255, 255
	}
	for x := 0; x < w; x++ {
		for _, y := range []int{0, 1, h - 2, h - 1} {
			if y >= 0 && y < h {
				set(x, y)
			}
		}
	}
	for y := 0; y < h; y++ {
		for _, x := range []int{0, 1, w - 2, w - 1} {
			if x >= 0 && x < w {
				set(x, y)
			}
		}
	}
}

// Size returns the generator dimensions.
func (p *PatternSource) Size() (uint32, uint32) { return p.width, p.height }

// Rewind restarts the animation.
func (p *PatternSource) Rewind() error {
	p.index = 0
	return nil
}

// Close stops the generator. Further Next calls fail.
func (p *PatternSource) Close() error {
	p.closed = true
	return nil
}
