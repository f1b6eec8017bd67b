package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternSourceProducesFrames(t *testing.T) {
	p, err := NewPatternSource(64, 32)
	require.NoError(t, err)

	frame, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, uint32(64), frame.Width)
	assert.Equal(t, uint32(32), frame.Height)
	assert.Len(t, frame.Pixels, 64*32*4)
	assert.Equal(t, uint64(0), frame.Index)

	frame, err = p.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), frame.Index)
}

func TestPatternSourceRejectsZeroDimensions(t *testing.T) {
	_, err := NewPatternSource(0, 32)
	assert.Error(t, err)
	_, err = NewPatternSource(64, 0)
	assert.Error(t, err)
}

func TestPatternSourceBorderIsWhite(t *testing.T) {
	p, err := NewPatternSource(16, 16)
	require.NoError(t, err)

	frame, err := p.Next()
	require.NoError(t, err)

	for _, o := range []int{0, (15*16 + 15) * 4, (0*16 + 8) * 4, (15*16 + 8) * 4} {
		assert.Equal(t, []byte{255, 255, 255, 255}, frame.Pixels[o:o+4])
	}
}

func TestPatternSourceOpaqueAlpha(t *testing.T) {
	p, err := NewPatternSource(8, 8)
	require.NoError(t, err)

	frame, err := p.Next()
	require.NoError(t, err)
	for i := 3; i < len(frame.Pixels); i += 4 {
		require.Equal(t, uint8(255), frame.Pixels[i])
	}
}

func TestPatternSourceRewind(t *testing.T) {
	p, err := NewPatternSource(8, 8)
	require.NoError(t, err)

	p.Next()
	p.Next()
	require.NoError(t, p.Rewind())

	frame, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), frame.Index)
}

func TestPatternSourceClosedFails(t *testing.T) {
	p, err := NewPatternSource(8, 8)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = p.Next()
	assert.Error(t, err)
}
