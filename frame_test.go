package vkframe

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andewx/vkframe/driver"
	"github.com/andewx/vkframe/internal/fakegpu"
)

func TestSlotsAlternate(t *testing.T) {
	env := newTestEnv(t, fakegpu.Config{})
	defer env.destroy(t)

	var slots, parities []int
	for i := 0; i < 5; i++ {
		f, err := env.runFrame(t)
		require.NoError(t, err)
		slots = append(slots, f.Slot)
		parities = append(parities, f.Parity)
		assert.Equal(t, uint64(i), f.Number)
	}
	assert.Equal(t, []int{0, 1, 0, 1, 0}, slots)
	assert.Equal(t, []int{0, 1, 0, 1, 0}, parities)
	assert.Equal(t, uint64(5), env.r.Synchronizer().FrameCount())
	assert.Equal(t, 5, env.dev().Presents)
	assert.Empty(t, env.dev().Violations())
}

func TestFenceWaitedBeforeCommandBufferReset(t *testing.T) {
	env := newTestEnv(t, fakegpu.Config{})
	defer env.destroy(t)

	for i := 0; i < 8; i++ {
		_, err := env.runFrame(t)
		require.NoError(t, err)
	}
	require.Empty(t, env.dev().Violations())

	// Between two command buffer resets there is a wait on the slot fence,
	// then the acquire, then the fence reset.
	events := env.dev().Events()
	want := []string{"reset-fence", "acquire", "wait-fence"}
	resets, prev := 0, -1
	for i, ev := range events {
		if ev.Op != "reset-cb" {
			continue
		}
		resets++
		k := 0
		for j := i - 1; j > prev && k < len(want); j-- {
			if events[j].Op == want[k] {
				k++
			}
		}
		assert.Equal(t, len(want), k, "reset %d not preceded by fence wait, acquire and fence reset", resets)
		prev = i
	}
	assert.Equal(t, 8, resets)
}

func TestImageInFlightWaitsOtherSlot(t *testing.T) {
	// Three images over two slots: the fourth frame reuses image 0 from
	// slot 1 and must wait for slot 0's fence first.
	env := newTestEnv(t, fakegpu.Config{MinImageCount: 3})
	defer env.destroy(t)

	for i := 0; i < 4; i++ {
		_, err := env.runFrame(t)
		require.NoError(t, err)
	}
	slot0 := env.r.Synchronizer().Slots()[0].Fence
	waits := 0
	for _, ev := range env.dev().Events() {
		if ev.Op == "wait-fence" && ev.Handle == driver.Handle(slot0) {
			waits++
		}
	}
	// Slot 0's own acquires (frames 0 and 2) plus the image wait in frame 3.
	assert.Equal(t, 3, waits)
	assert.Empty(t, env.dev().Violations())
}

func TestResizeDuringLoop(t *testing.T) {
	env := newTestEnv(t, fakegpu.Config{})
	defer env.destroy(t)

	_, err := env.runFrame(t)
	require.NoError(t, err)
	gen := env.r.Swapchain().Generation()

	env.win.SetSize(800, 600)
	f, err := env.runFrame(t)
	assert.Nil(t, f)
	assert.True(t, errors.Is(err, ErrNoFrame))
	assert.Equal(t, gen+1, env.r.Swapchain().Generation())

	f, err = env.runFrame(t)
	require.NoError(t, err)
	assert.Equal(t, driver.Extent2D{Width: 800, Height: 600}, f.Extent)
	assert.Equal(t, driver.Extent2D{Width: 800, Height: 600}, env.r.Surface().Extent)
	assert.Empty(t, env.dev().Violations())
}

func TestResizeBetweenSubmitAndPresent(t *testing.T) {
	env := newTestEnv(t, fakegpu.Config{})
	defer env.destroy(t)

	f, err := env.r.BeginFrame()
	require.NoError(t, err)
	require.NoError(t, f.Recorder().Begin(0))
	require.NoError(t, clearFrame(f))
	require.NoError(t, f.Recorder().End())

	env.win.SetSize(320, 200)
	err = env.r.EndFrame(f)
	assert.True(t, errors.Is(err, ErrNoFrame))
	// The slot moved on because its fence is in flight; nothing was
	// shown, so the parity did not.
	sync := env.r.Synchronizer()
	assert.Equal(t, 1, sync.Slot())
	assert.Equal(t, 0, sync.Parity())
	assert.Equal(t, uint64(1), sync.FrameCount())
	assert.Zero(t, sync.PresentCount())

	f, err = env.runFrame(t)
	require.NoError(t, err)
	assert.Equal(t, 1, f.Slot)
	assert.Equal(t, 0, f.Parity)
	assert.Equal(t, 1, sync.Parity())
	assert.Equal(t, driver.Extent2D{Width: 320, Height: 200}, f.Extent)
	assert.Empty(t, env.dev().Violations())
}

func TestMinimizeAndRestore(t *testing.T) {
	env := newTestEnv(t, fakegpu.Config{})
	defer env.destroy(t)

	_, err := env.runFrame(t)
	require.NoError(t, err)

	env.win.SetSize(0, 0)
	env.win.OnWait = func(w *fakegpu.Window) {
		if w.Waits == 3 {
			w.SetSize(1024, 768)
		}
	}
	_, err = env.runFrame(t)
	assert.True(t, errors.Is(err, ErrNoFrame))
	assert.Equal(t, 3, env.win.Waits)

	for _, desc := range env.dev().Swapchains {
		assert.False(t, desc.Extent.Empty(), "zero-area swapchain created")
	}

	f, err := env.runFrame(t)
	require.NoError(t, err)
	assert.Equal(t, driver.Extent2D{Width: 1024, Height: 768}, f.Extent)
	assert.Empty(t, env.dev().Violations())
}

func TestWindowClosedWhileMinimized(t *testing.T) {
	env := newTestEnv(t, fakegpu.Config{})
	defer env.destroy(t)

	env.win.SetSize(0, 0)
	// OnWait is nil, so the first wait closes the window.
	_, err := env.r.BeginFrame()
	assert.True(t, errors.Is(err, ErrWindowClosed))
	assert.Nil(t, env.r.Failed())
}

func TestSuboptimalAcquireRecreatesAfterPresent(t *testing.T) {
	env := newTestEnv(t, fakegpu.Config{})
	defer env.destroy(t)

	gen := env.r.Swapchain().Generation()
	env.dev().FailNext("AcquireNextImage", fakegpu.Suboptimal("vkAcquireNextImageKHR"))
	f, err := env.runFrame(t)
	require.NoError(t, err)
	assert.NotNil(t, f)
	assert.Equal(t, gen+1, env.r.Swapchain().Generation())
	assert.Equal(t, 1, env.dev().Presents)
	assert.Empty(t, env.dev().Violations())
}

func TestSuboptimalPresentRecreates(t *testing.T) {
	env := newTestEnv(t, fakegpu.Config{})
	defer env.destroy(t)

	gen := env.r.Swapchain().Generation()
	env.dev().FailNext("Present", fakegpu.Suboptimal("vkQueuePresentKHR"))
	_, err := env.runFrame(t)
	require.NoError(t, err)
	assert.Equal(t, gen+1, env.r.Swapchain().Generation())
}

func TestOutOfOrderFrameUse(t *testing.T) {
	env := newTestEnv(t, fakegpu.Config{})
	defer env.destroy(t)

	sync := env.r.Synchronizer()
	f, err := sync.Acquire()
	require.NoError(t, err)

	_, err = sync.Acquire()
	assert.True(t, errors.Is(err, ErrFrameState))

	err = sync.Present(f)
	assert.True(t, errors.Is(err, ErrFrameState))
	assert.Equal(t, SlotRecording, sync.State(f.Slot))

	require.NoError(t, f.Recorder().Begin(0))
	require.NoError(t, clearFrame(f))
	require.NoError(t, f.Recorder().End())
	require.NoError(t, sync.Submit(f))
	assert.Equal(t, SlotSubmitted, sync.State(f.Slot))
	require.NoError(t, sync.Present(f))
	assert.Equal(t, SlotIdle, sync.State(f.Slot))

	err = sync.Submit(f)
	assert.True(t, errors.Is(err, ErrFrameState))
}

func TestDeviceLostIsFatal(t *testing.T) {
	var reports []error
	env := newTestEnv(t, fakegpu.Config{}, WithReporter(ReporterFunc(func(err error) {
		reports = append(reports, err)
	})))
	defer env.destroy(t)

	env.dev().FailNext("AcquireNextImage", fakegpu.DeviceLost("vkAcquireNextImageKHR"))
	_, err := env.r.BeginFrame()
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.True(t, errors.Is(err, driver.ErrDeviceLost))

	_, err = env.r.BeginFrame()
	assert.Equal(t, ErrFailed, err)
	_, err = env.r.CreateDoubleBuffered(64, driver.BufferUsageStorage)
	assert.Equal(t, ErrFailed, err)

	require.Len(t, reports, 1)
	name, ok := driver.ResultName(reports[0])
	assert.True(t, ok)
	assert.Equal(t, "VK_ERROR_DEVICE_LOST", name)
}

func TestSlotStateString(t *testing.T) {
	assert.Equal(t, "recording", SlotRecording.String())
	assert.Equal(t, "SlotState(9)", SlotState(9).String())
}
