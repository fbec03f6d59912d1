package vkframe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andewx/vkframe/driver"
	"github.com/andewx/vkframe/internal/fakegpu"
)

func TestRendererLifecycle(t *testing.T) {
	env := newTestEnv(t, fakegpu.Config{SeparatePresent: true})

	_, err := env.r.CreateStaticBuffer([]byte{1, 2, 3, 4}, driver.BufferUsageStorage)
	require.NoError(t, err)
	_, err = env.r.CreateDoubleBuffered(64, driver.BufferUsageUniform)
	require.NoError(t, err)
	mod, err := env.r.CreateShaderModule(make([]byte, 16))
	require.NoError(t, err)
	assert.NotZero(t, mod)
	_, err = env.r.CreateShaderModule(make([]byte, 3))
	assert.Error(t, err)

	for i := 0; i < 6; i++ {
		require.NoError(t, env.r.Frame(clearFrame))
	}
	assert.Equal(t, uint64(6), env.r.Synchronizer().FrameCount())
	assert.Contains(t, env.logs.String(), "vulkan: using fakegpu")
	assert.Contains(t, env.logs.String(), "ownership transfer enabled")

	env.destroy(t)
	assert.Empty(t, env.dev().Live())
	assert.Zero(t, env.dev().Pending())
}

func TestRendererDestroyTwice(t *testing.T) {
	env := newTestEnv(t, fakegpu.Config{SeparatePresent: true})
	require.NoError(t, env.r.Frame(clearFrame))

	env.destroy(t)
	assert.NotPanics(t, env.r.Destroy)
	assert.True(t, env.dev().Destroyed())

	_, err := env.r.BeginFrame()
	assert.True(t, errors.Is(err, ErrFailed))
	_, err = env.r.CreateDoubleBuffered(16, driver.BufferUsageUniform)
	assert.True(t, errors.Is(err, ErrFailed))
	assert.Equal(t, SurfaceState{}, env.r.Surface())
}

func TestRendererDestroyShaderModuleEarly(t *testing.T) {
	env := newTestEnv(t, fakegpu.Config{})
	defer env.destroy(t)

	mod, err := env.r.CreateShaderModule(make([]byte, 8))
	require.NoError(t, err)
	env.r.DestroyShaderModule(mod)
	assert.Zero(t, env.dev().Live()["shader-module"])
}

func TestRendererLoadShaderModule(t *testing.T) {
	env := newTestEnv(t, fakegpu.Config{})
	defer env.destroy(t)

	path := filepath.Join(t.TempDir(), "clear.spv")
	require.NoError(t, os.WriteFile(path, []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 1, 0}, 0o644))
	mod, err := env.r.LoadShaderModule(path)
	require.NoError(t, err)
	assert.NotZero(t, mod)
	assert.Equal(t, 1, env.dev().Live()["shader-module"])

	_, err = env.r.LoadShaderModule(filepath.Join(t.TempDir(), "missing.spv"))
	assert.Error(t, err)
}

func TestRendererFrameSkipsRecreation(t *testing.T) {
	env := newTestEnv(t, fakegpu.Config{})
	defer env.destroy(t)

	calls := 0
	record := func(f *Frame) error {
		calls++
		return clearFrame(f)
	}
	require.NoError(t, env.r.Frame(record))
	env.win.SetSize(200, 100)
	require.NoError(t, env.r.Frame(record))
	assert.Equal(t, 1, calls)
	require.NoError(t, env.r.Frame(record))
	assert.Equal(t, 2, calls)
}

func TestRendererFrameRecordError(t *testing.T) {
	env := newTestEnv(t, fakegpu.Config{})
	defer env.destroy(t)

	boom := errors.New("record failed")
	var failed *Frame
	err := env.r.Frame(func(f *Frame) error {
		failed = f
		f.BeginRendering([4]float32{1, 0, 0, 1})
		return boom
	})
	assert.Equal(t, boom, err)
	assert.Nil(t, env.r.Failed())
	assert.Equal(t, 1, env.dev().Presents)

	// The partial recording was replaced by a transition to present.
	barriers := env.dev().CommandBarriers(failed.CommandBuffer())
	require.Len(t, barriers, 2)
	assert.Equal(t, driver.LayoutColorAttachmentOptimal, barriers[0].NewLayout)
	assert.Equal(t, driver.LayoutPresentSrc, barriers[1].NewLayout)
	assert.NotContains(t, env.dev().CommandLog(failed.CommandBuffer()), "begin-rendering")

	// Both slots stay usable.
	for i := 0; i < 3; i++ {
		require.NoError(t, env.r.Frame(clearFrame))
	}
	assert.Empty(t, env.dev().Violations())
}

func TestRendererInitFailureIsReportedOnce(t *testing.T) {
	win := fakegpu.NewWindow(640, 480)
	inst := fakegpu.New(win, fakegpu.Config{})
	inst.FailCreateDevice = fakegpu.DeviceLost("vkCreateDevice")

	var reports []error
	_, err := New(inst, win, testConfig(), WithReporter(ReporterFunc(func(err error) {
		reports = append(reports, err)
	})))
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.True(t, errors.Is(err, driver.ErrDeviceLost))
	assert.Len(t, reports, 1)
	assert.True(t, inst.Closed())
}

func TestRendererNoSuitableDevice(t *testing.T) {
	win := fakegpu.NewWindow(640, 480)
	dev := fakegpu.DefaultDevice(fakegpu.Config{})
	dev.Features.Synchronization2 = false
	inst := fakegpu.New(win, fakegpu.Config{Devices: []driver.PhysicalDeviceInfo{dev}})

	var reports []error
	_, err := New(inst, win, testConfig(), WithReporter(ReporterFunc(func(err error) {
		reports = append(reports, err)
	})))
	assert.True(t, errors.Is(err, ErrNoSuitableDevice))
	require.Len(t, reports, 1)
	assert.Contains(t, reports[0].Error(), "synchronization2")
}

func TestRendererStartsMinimized(t *testing.T) {
	win := fakegpu.NewWindow(0, 0)
	win.OnWait = func(w *fakegpu.Window) { w.SetSize(320, 240) }
	inst := fakegpu.New(win, fakegpu.Config{})

	r, err := New(inst, win, testConfig(), WithReporter(ReporterFunc(func(error) {})))
	require.NoError(t, err)
	assert.Equal(t, 1, win.Waits)
	assert.Equal(t, driver.Extent2D{Width: 320, Height: 240}, r.Surface().Extent)
	r.Destroy()
	assert.Empty(t, inst.Device().Violations())
}

func TestRendererRequirementsFromConfig(t *testing.T) {
	win := fakegpu.NewWindow(64, 64)
	inst := fakegpu.New(win, fakegpu.Config{})
	cfg := testConfig()
	cfg.DeviceExtensions = []string{"VK_KHR_swapchain", "VK_EXT_memory_budget"}
	r, err := New(inst, win, cfg)
	require.NoError(t, err)
	defer r.Destroy()

	req, err := r.requirements()
	require.NoError(t, err)
	assert.Equal(t, []string{"VK_KHR_swapchain", "VK_EXT_memory_budget"}, req.Extensions)

	custom := DefaultRequirements()
	custom.Preferred = driver.Features{}
	r2 := &Renderer{req: &custom}
	req, err = r2.requirements()
	require.NoError(t, err)
	assert.Equal(t, custom, req)
}

func TestFileReporterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fatal.log")
	win := fakegpu.NewWindow(640, 480)
	inst := fakegpu.New(win, fakegpu.Config{})
	inst.FailCreateDevice = fakegpu.DeviceLost("vkCreateDevice")
	cfg := testConfig()
	cfg.FatalLog = path

	_, err := New(inst, win, cfg)
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "FATAL: ")
	assert.Contains(t, string(data), "vulkan error: VK_ERROR_DEVICE_LOST")
}
