package vulkan_test

import (
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lin "github.com/xlab/linmath"

	"github.com/andewx/vkframe"
	"github.com/andewx/vkframe/driver"
	"github.com/andewx/vkframe/vulkan"
	"github.com/andewx/vkframe/window"
)

// TestRender drives the frame loop on a real device. It needs a display
// and a Vulkan 1.3 driver, so it only runs with VKFRAME_INTEGRATION=1.
func TestRender(t *testing.T) {
	if os.Getenv("VKFRAME_INTEGRATION") != "1" {
		t.Skip("set VKFRAME_INTEGRATION=1 to run against a real device")
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	require.NoError(t, window.Init())
	defer window.Terminate()

	cfg := vkframe.DefaultConfig()
	cfg.Window.Width, cfg.Window.Height = 500, 500
	win, err := window.New(cfg.Window)
	require.NoError(t, err)
	defer win.Destroy()

	version, err := cfg.Version()
	require.NoError(t, err)
	inst, err := vulkan.NewInstance(win, vulkan.InstanceConfig{
		AppName:    cfg.AppName,
		APIVersion: version,
		Debug:      cfg.Validation,
		Layers:     cfg.Layers,
	})
	require.NoError(t, err)

	r, err := vkframe.New(inst, win, cfg)
	require.NoError(t, err)
	defer r.Destroy()

	mvp, err := r.CreateDoubleBuffered(vkframe.Mat4Size, driver.BufferUsageUniform)
	require.NoError(t, err)
	_, err = r.CreateStaticBuffer(make([]byte, 256), driver.BufferUsageStorage)
	require.NoError(t, err)

	cam := vkframe.DefaultCamera()
	var model lin.Mat4x4
	model.Identity()
	for i := 0; i < 60 && win.IsRunning(); i++ {
		win.PollEvents()
		err := r.Frame(func(f *vkframe.Frame) error {
			m := cam.MVP(&model, float32(f.Extent.Width)/float32(f.Extent.Height))
			if err := mvp.WriteFrame(f, vkframe.PackMat4(nil, &m), 0); err != nil {
				return err
			}
			f.BeginRendering([4]float32{0, 0, float32(i) / 60, 1})
			f.EndRendering()
			return nil
		})
		require.NoError(t, err)
	}
	assert.Nil(t, r.Failed())
	assert.NotZero(t, r.Synchronizer().FrameCount())
}
