package vkframe

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lin "github.com/xlab/linmath"
)

func TestPackMat4(t *testing.T) {
	var m lin.Mat4x4
	m.Identity()
	m[3][0] = 5 // translation x

	out := PackMat4(nil, &m)
	require.Len(t, out, Mat4Size)
	at := func(i int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(out[i*4:]))
	}
	assert.Equal(t, float32(1), at(0))
	assert.Equal(t, float32(1), at(5))
	assert.Equal(t, float32(5), at(12))
	assert.Equal(t, float32(1), at(15))

	out = PackMat4(out, &m)
	assert.Len(t, out, 2*Mat4Size)
}

func TestVulkanProjectionFlipsY(t *testing.T) {
	var id, m lin.Mat4x4
	id.Identity()
	VulkanProjectionMat(&m, &id)

	assert.Equal(t, float32(1), m[0][0])
	assert.Equal(t, float32(-1), m[1][1])
	assert.Equal(t, float32(0.5), m[2][2])
	assert.Equal(t, float32(0.5), m[3][2])
}

func TestCameraMVP(t *testing.T) {
	cam := DefaultCamera()
	var model lin.Mat4x4
	model.Identity()

	mvp := cam.MVP(&model, 16.0/9.0)
	vp := cam.ViewProjection(16.0 / 9.0)
	assert.Equal(t, vp, mvp)
	// Vulkan clip space has Y pointing down.
	assert.Less(t, mvp[1][1], float32(0))
}
