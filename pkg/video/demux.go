package video

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Container identifies the file format wrapping the video stream.
type Container int

const (
	ContainerUnknown Container = iota
	ContainerMP4
	ContainerMKV
	ContainerTS
	ContainerWebM
)

func (c Container) String() string {
	switch c {
	case ContainerMP4:
		return "mp4"
	case ContainerMKV:
		return "mkv"
	case ContainerTS:
		return "mpeg-ts"
	case ContainerWebM:
		return "webm"
	default:
		return "unknown"
	}
}

// ErrNoDecoder is returned by Demuxer.Next until a decode backend is
// integrated. The player treats it like an empty source and falls back to
// the generated test pattern.
var ErrNoDecoder = errors.New("video: no decode backend available")

// DetectContainer classifies a media file by extension.
func DetectContainer(path string) Container {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".m4v", ".mov":
		return ContainerMP4
	case ".mkv":
		return ContainerMKV
	case ".ts", ".mts", ".m2ts":
		return ContainerTS
	case ".webm":
		return ContainerWebM
	default:
		return ContainerUnknown
	}
}

// Demuxer opens a media file and identifies its container. Frame decode is
// not wired up yet; Next always reports ErrNoDecoder.
//
// TODO: hook up a hardware decode path once the V4L2 stateful decoder on
// the target board is exposed to this process.
type Demuxer struct {
	path      string
	container Container
	size      int64
}

// NewDemuxer validates that the file exists and is a recognizable
// container.
func NewDemuxer(path string) (*Demuxer, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open media file %s", path)
	}
	if info.IsDir() {
		return nil, errors.Errorf("%s is a directory, not a media file", path)
	}

	container := DetectContainer(path)
	if container == ContainerUnknown {
		return nil, errors.Errorf("unrecognized media container: %s", filepath.Base(path))
	}

	log.Printf("video: opened %s (%s, %d bytes)", filepath.Base(path), container, info.Size())
	return &Demuxer{path: path, container: container, size: info.Size()}, nil
}

// Container returns the detected container format.
func (d *Demuxer) Container() Container { return d.container }

// Next always fails until a decoder is integrated.
func (d *Demuxer) Next() (*Frame, error) { return nil, ErrNoDecoder }

// Size is unknown without a decoder.
func (d *Demuxer) Size() (uint32, uint32) { return 0, 0 }

// Rewind is a no-op for an undecodable stream.
func (d *Demuxer) Rewind() error { return nil }

// Close releases the demuxer. Nothing is held open between calls today.
func (d *Demuxer) Close() error { return nil }
