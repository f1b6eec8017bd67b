package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailureGateTripsOnlyAfterConsecutiveFailures(t *testing.T) {
	g := failureGate{limit: 3}

	assert.False(t, g.fail())
	assert.False(t, g.fail())
	assert.True(t, g.fail())
}

func TestFailureGateResetsOnSuccess(t *testing.T) {
	g := failureGate{limit: 3}

	g.fail()
	g.fail()
	g.ok()

	// An isolated failure after recovery starts the count over.
	assert.False(t, g.fail())
	assert.False(t, g.fail())
	assert.True(t, g.fail())
}

func TestFailureGateStaysTrippedWhileFailing(t *testing.T) {
	g := failureGate{limit: 2}

	g.fail()
	assert.True(t, g.fail())
	assert.True(t, g.fail())
}
