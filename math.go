package vkframe

import (
	"encoding/binary"
	"math"

	lin "github.com/xlab/linmath"
)

// VulkanProjectionMat converts an OpenGL style projection matrix to Vulkan style projection matrix.
// Vulkan has a topLeft clipSpace with [0, 1] depth range instead of [-1, 1].
//
// linmath outputs projection matrices in GL style clipSpace,
// perform a simple fixup step to change the projection to Vulkan style.
func VulkanProjectionMat(m *lin.Mat4x4, proj *lin.Mat4x4) {
	var clip lin.Mat4x4
	clip.Identity()
	// Flip Y in clipspace. X = -1, Y = -1 is topLeft in Vulkan.
	clip[1][1] = -1
	// Z depth is [0, 1] range instead of [-1, 1].
	clip[2][2] = 0.5
	clip[3][2] = 0.5
	m.Mult(&clip, proj)
}

// Camera is a perspective camera looking at a target.
type Camera struct {
	Eye    lin.Vec3
	Target lin.Vec3
	Up     lin.Vec3
	// FovY is the vertical field of view in degrees.
	FovY float32
	Near float32
	Far  float32
}

func DefaultCamera() Camera {
	return Camera{
		Eye:  lin.Vec3{0, 3, 5},
		Up:   lin.Vec3{0, 1, 0},
		FovY: 45,
		Near: 0.1,
		Far:  100,
	}
}

// ViewProjection returns the Vulkan clip-space view-projection matrix for a
// viewport of the given aspect ratio.
func (c Camera) ViewProjection(aspect float32) lin.Mat4x4 {
	var proj, vkProj, view, vp lin.Mat4x4
	proj.Perspective(lin.DegreesToRadians(c.FovY), aspect, c.Near, c.Far)
	VulkanProjectionMat(&vkProj, &proj)
	view.LookAt(&c.Eye, &c.Target, &c.Up)
	vp.Mult(&vkProj, &view)
	return vp
}

// MVP returns the model-view-projection matrix of model seen through c.
func (c Camera) MVP(model *lin.Mat4x4, aspect float32) lin.Mat4x4 {
	vp := c.ViewProjection(aspect)
	var mvp lin.Mat4x4
	mvp.Mult(&vp, model)
	return mvp
}

// Mat4Size is the size in bytes of a packed 4x4 float matrix.
const Mat4Size = 64

// PackMat4 appends m to dst in column-major order as little-endian floats,
// the layout a std140 or std430 mat4 expects.
func PackMat4(dst []byte, m *lin.Mat4x4) []byte {
	var buf [4]byte
	for _, v := range m.Slice() {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		dst = append(dst, buf[:]...)
	}
	return dst
}
