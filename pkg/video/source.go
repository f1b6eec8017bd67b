// Package video supplies decoded frames to the display loop and decides,
// under load, which frames are worth decoding at all.
package video

import (
	"time"
)

// Frame is one decoded image in tightly packed RGBA order.
type Frame struct {
	Pixels []byte
	Width  uint32
	Height uint32
	Index  uint64
	PTS    time.Duration
}

// FrameSource produces frames for the display loop. Next returns io.EOF
// when the source is exhausted; Rewind restarts it for looped playback.
type FrameSource interface {
	Next() (*Frame, error)
	Size() (width, height uint32)
	Rewind() error
	Close() error
}
