package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPulse(t *testing.T) {
	c := pulse([4]float32{0, 0.5, 0.95, 0.5}, 0)
	assert.InDelta(t, 0.1, c[0], 1e-6)
	assert.InDelta(t, 0.6, c[1], 1e-6)
	assert.Equal(t, float32(1), c[2])
	assert.Equal(t, float32(0.5), c[3])
}
