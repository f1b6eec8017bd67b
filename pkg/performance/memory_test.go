package performance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLowMemoryNeverTripsOnZeroThreshold(t *testing.T) {
	assert.False(t, LowMemory(0))
}
