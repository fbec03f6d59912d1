// Command vkframe-demo opens a window and runs the frame loop: it clears
// every swapchain image and streams a model-view-projection matrix through
// a double-buffered uniform buffer.
package main

import (
	"log"
	"math"
	"os"
	"runtime"
	"time"

	flag "github.com/spf13/pflag"
	lin "github.com/xlab/linmath"

	"github.com/andewx/vkframe"
	"github.com/andewx/vkframe/driver"
	"github.com/andewx/vkframe/vulkan"
	"github.com/andewx/vkframe/window"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	var (
		configPath = flag.StringP("config", "c", "", "TOML config file")
		frames     = flag.Uint64("frames", 0, "stop after this many frames, 0 runs until the window closes")
		validation = flag.Bool("validation", false, "enable validation layers")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)
	cfg := vkframe.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = vkframe.LoadConfig(*configPath); err != nil {
			logger.Fatal(err)
		}
	}
	if *validation {
		cfg.Validation = true
	}
	if err := run(cfg, *frames, logger); err != nil {
		logger.Fatal(err)
	}
}

func run(cfg vkframe.Config, frames uint64, logger *log.Logger) error {
	if err := window.Init(); err != nil {
		return err
	}
	defer window.Terminate()

	win, err := window.New(cfg.Window)
	if err != nil {
		return err
	}
	defer win.Destroy()

	version, err := cfg.Version()
	if err != nil {
		return err
	}
	inst, err := vulkan.NewInstance(win, vulkan.InstanceConfig{
		AppName:    cfg.AppName,
		APIVersion: version,
		Debug:      cfg.Validation,
		Layers:     cfg.Layers,
		Extensions: cfg.InstanceExtensions,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	r, err := vkframe.New(inst, win, cfg, vkframe.WithLogger(logger))
	if err != nil {
		return err
	}
	defer r.Destroy()

	// The demo has no pipeline, so nothing on the GPU reads the matrix. It
	// streams through the double buffer to exercise per-frame writes; a
	// pipeline registered with vulkan.Device.RegisterPipelineLayout would
	// receive it with Recorder.PushAddress(layout, 0, f.Address(mvp)).
	mvp, err := r.CreateDoubleBuffered(vkframe.Mat4Size, driver.BufferUsageUniform)
	if err != nil {
		return err
	}

	cam := vkframe.DefaultCamera()
	start := time.Now()
	var buf []byte
	for win.IsRunning() && (frames == 0 || r.Synchronizer().FrameCount() < frames) {
		win.PollEvents()
		t := float32(time.Since(start).Seconds())

		var id, model lin.Mat4x4
		id.Identity()
		model.Rotate(&id, 0, 1, 0, t)

		err := r.Frame(func(f *vkframe.Frame) error {
			aspect := float32(f.Extent.Width) / float32(f.Extent.Height)
			m := cam.MVP(&model, aspect)
			buf = vkframe.PackMat4(buf[:0], &m)
			if err := mvp.WriteFrame(f, buf, 0); err != nil {
				return err
			}
			f.BeginRendering(pulse(cfg.ClearColor, t))
			f.EndRendering()
			return nil
		})
		if err != nil {
			return err
		}
	}
	logger.Printf("vulkan: %d frames in %s", r.Synchronizer().FrameCount(), time.Since(start).Round(time.Millisecond))
	return nil
}

// pulse brightens the clear color periodically.
func pulse(c [4]float32, t float32) [4]float32 {
	k := 0.1 + 0.1*float32(math.Sin(float64(t)))
	out := c
	for i := 0; i < 3; i++ {
		out[i] = float32(math.Min(1, float64(c[i]+k)))
	}
	return out
}
