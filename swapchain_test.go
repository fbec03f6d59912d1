package vkframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andewx/vkframe/driver"
	"github.com/andewx/vkframe/internal/fakegpu"
)

func TestChooseExtent(t *testing.T) {
	caps := driver.SurfaceCapabilities{
		CurrentExtent:  driver.Extent2D{Width: 800, Height: 600},
		MinImageExtent: driver.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: driver.Extent2D{Width: 4096, Height: 4096},
	}
	assert.Equal(t, driver.Extent2D{Width: 800, Height: 600}, ChooseExtent(caps, 10, 10))

	caps.CurrentExtent = driver.Extent2D{Width: driver.UndefinedExtent, Height: driver.UndefinedExtent}
	assert.Equal(t, driver.Extent2D{Width: 1280, Height: 720}, ChooseExtent(caps, 1280, 720))
	assert.Equal(t, driver.Extent2D{Width: 4096, Height: 1}, ChooseExtent(caps, 9000, 0))
	assert.Equal(t, driver.Extent2D{Width: 1, Height: 1}, ChooseExtent(caps, -5, -5))

	caps.CurrentExtent = driver.Extent2D{}
	assert.True(t, ChooseExtent(caps, 800, 600).Empty())
}

func TestChooseSurfaceFormat(t *testing.T) {
	_, err := ChooseSurfaceFormat(nil)
	assert.Error(t, err)

	f, err := ChooseSurfaceFormat([]driver.SurfaceFormat{
		{Format: driver.FormatA2B10G10R10Unorm},
		{Format: driver.FormatR8G8B8A8Unorm, ColorSpace: driver.ColorSpaceSrgbNonlinear},
	})
	require.NoError(t, err)
	assert.Equal(t, driver.FormatR8G8B8A8Unorm, f.Format)

	f, err = ChooseSurfaceFormat([]driver.SurfaceFormat{{Format: driver.FormatR16G16B16A16Sfloat, ColorSpace: 1000104002}})
	require.NoError(t, err)
	assert.Equal(t, driver.FormatR16G16B16A16Sfloat, f.Format)

	f, err = ChooseSurfaceFormat([]driver.SurfaceFormat{{Format: driver.FormatUndefined}})
	require.NoError(t, err)
	assert.Equal(t, driver.FormatB8G8R8A8Unorm, f.Format)
}

func TestChoosePresentMode(t *testing.T) {
	tests := []struct {
		modes []driver.PresentMode
		want  driver.PresentMode
	}{
		{nil, driver.PresentModeFifo},
		{[]driver.PresentMode{driver.PresentModeFifo}, driver.PresentModeFifo},
		{[]driver.PresentMode{driver.PresentModeFifo, driver.PresentModeImmediate}, driver.PresentModeImmediate},
		{[]driver.PresentMode{driver.PresentModeImmediate, driver.PresentModeMailbox}, driver.PresentModeMailbox},
		{[]driver.PresentMode{driver.PresentModeFifoRelaxed}, driver.PresentModeFifo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ChoosePresentMode(tt.modes), "%v", tt.modes)
	}
}

func TestChooseImageCount(t *testing.T) {
	assert.Equal(t, uint32(3), ChooseImageCount(driver.SurfaceCapabilities{MinImageCount: 2}, 3))
	assert.Equal(t, uint32(2), ChooseImageCount(driver.SurfaceCapabilities{MinImageCount: 1, MaxImageCount: 2}, 3))
	assert.Equal(t, uint32(4), ChooseImageCount(driver.SurfaceCapabilities{MinImageCount: 4, MaxImageCount: 8}, 3))
}

func TestRecreateIsIdempotent(t *testing.T) {
	env := newTestEnv(t, fakegpu.Config{})
	defer env.destroy(t)

	sc := env.r.Swapchain()
	before := sc.State()
	live := env.dev().Live()
	gen := sc.Generation()

	require.NoError(t, sc.Recreate())
	require.NoError(t, sc.Recreate())

	assert.Equal(t, before, sc.State())
	assert.Equal(t, live, env.dev().Live())
	assert.Equal(t, gen+2, sc.Generation())
	assert.Len(t, sc.Images(), int(before.ImageCount))
	assert.Empty(t, env.dev().Violations())

	// Each recreation hands the previous swapchain over.
	descs := env.dev().Swapchains
	require.Len(t, descs, 3)
	assert.Zero(t, descs[0].Old)
	assert.NotZero(t, descs[1].Old)
	assert.NotZero(t, descs[2].Old)
}

func TestRecreateZeroExtentKeepsResources(t *testing.T) {
	env := newTestEnv(t, fakegpu.Config{})
	defer env.destroy(t)

	sc := env.r.Swapchain()
	handle := sc.Swapchain()
	live := env.dev().Live()

	env.win.SetSize(0, 300)
	assert.Equal(t, ErrZeroExtent, sc.Recreate())
	assert.Equal(t, handle, sc.Swapchain())
	assert.Equal(t, live, env.dev().Live())
	assert.Len(t, env.dev().Swapchains, 1)
	env.win.SetSize(640, 480)
}

func TestSurfaceStateFollowsPolicy(t *testing.T) {
	env := newTestEnv(t, fakegpu.Config{
		Formats: []driver.SurfaceFormat{
			{Format: driver.FormatA2B10G10R10Unorm},
			{Format: driver.FormatB8G8R8A8Srgb, ColorSpace: driver.ColorSpaceSrgbNonlinear},
		},
		PresentModes:    []driver.PresentMode{driver.PresentModeFifo, driver.PresentModeImmediate},
		MinImageCount:   2,
		MaxImageCount:   2,
		UndefinedExtent: true,
		MinExtent:       driver.Extent2D{Width: 1, Height: 1},
		MaxExtent:       driver.Extent2D{Width: 600, Height: 600},
	})
	defer env.destroy(t)

	st := env.r.Surface()
	assert.Equal(t, driver.FormatB8G8R8A8Srgb, st.Format)
	assert.Equal(t, driver.PresentModeImmediate, st.PresentMode)
	assert.Equal(t, uint32(2), st.ImageCount)
	assert.Equal(t, driver.Extent2D{Width: 600, Height: 480}, st.Extent)
}

func TestUnifiedQueuesHaveNoOwnershipTransfer(t *testing.T) {
	env := newTestEnv(t, fakegpu.Config{})
	defer env.destroy(t)

	require.True(t, env.r.Context().Unified())
	for i := 0; i < 4; i++ {
		_, err := env.runFrame(t)
		require.NoError(t, err)
	}
	for _, img := range env.r.Swapchain().Images() {
		assert.Zero(t, img.PresentPool)
		assert.Zero(t, img.OwnershipCommands)
	}
	for _, rb := range env.dev().Barriers() {
		assert.False(t, rb.Barrier.TransfersOwnership(), "unexpected ownership transfer %+v", rb.Barrier)
	}
	for _, s := range env.r.Synchronizer().Slots() {
		assert.Zero(t, s.PresentReady)
	}
	assert.Equal(t, 4, env.dev().Submits)
}

func TestSeparatePresentFamilyTransfersOwnership(t *testing.T) {
	env := newTestEnv(t, fakegpu.Config{SeparatePresent: true})
	defer env.destroy(t)

	ctx := env.r.Context()
	require.False(t, ctx.Unified())
	assert.Equal(t, uint32(0), ctx.Plan.GraphicsFamily)
	assert.Equal(t, uint32(1), ctx.Plan.PresentFamily)
	assert.Equal(t, uint32(1), env.dev().QueueFamily(ctx.PresentQueue))

	const frames = 4
	for i := 0; i < frames; i++ {
		_, err := env.runFrame(t)
		require.NoError(t, err)
	}

	images := env.r.Swapchain().Images()
	for _, img := range images {
		require.NotZero(t, img.OwnershipCommands)
		acq := env.dev().CommandBarriers(img.OwnershipCommands)
		require.Len(t, acq, 1)
		assert.Equal(t, img.Image, acq[0].Image)
		assert.Equal(t, driver.LayoutColorAttachmentOptimal, acq[0].OldLayout)
		assert.Equal(t, driver.LayoutPresentSrc, acq[0].NewLayout)
	}

	releases, acquires := 0, 0
	for _, rb := range env.dev().Barriers() {
		b := rb.Barrier
		if !b.TransfersOwnership() {
			continue
		}
		assert.Equal(t, uint32(0), b.SrcFamily)
		assert.Equal(t, uint32(1), b.DstFamily)
		switch rb.Family {
		case 0:
			releases++
		case 1:
			acquires++
		}
	}
	assert.Equal(t, frames, releases)
	// The acquire half is recorded once per image, not per frame.
	assert.Equal(t, len(images), acquires)
	// One graphics and one present submission per frame.
	assert.Equal(t, 2*frames, env.dev().Submits)
	assert.Equal(t, frames, env.dev().Presents)
	for _, s := range env.r.Synchronizer().Slots() {
		assert.NotZero(t, s.PresentReady)
	}
	assert.Empty(t, env.dev().Violations())
}

func TestSeparatePresentSurvivesResize(t *testing.T) {
	env := newTestEnv(t, fakegpu.Config{SeparatePresent: true})
	defer env.destroy(t)

	_, err := env.runFrame(t)
	require.NoError(t, err)
	env.win.SetSize(300, 300)
	_, err = env.runFrame(t)
	require.Error(t, err)
	for i := 0; i < 3; i++ {
		_, err := env.runFrame(t)
		require.NoError(t, err)
	}
	assert.Empty(t, env.dev().Violations())
}
