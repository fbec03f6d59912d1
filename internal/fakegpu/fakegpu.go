// Package fakegpu is an in-memory implementation of the driver interfaces.
//
// It executes nothing but keeps enough state to catch synchronization
// mistakes: submitted work stays pending until a fence wait or a wait-idle
// retires it, and touching a command buffer, fence or semaphore in a state
// the real API forbids is recorded as a violation.
package fakegpu

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/andewx/vkframe/driver"
)

// Config shapes the simulated device and surface.
type Config struct {
	// SeparatePresent exposes a present-only queue family next to the
	// graphics family.
	SeparatePresent bool
	// GraphicsQueues is the queue count of the graphics family (default 1).
	GraphicsQueues uint32
	// Devices overrides the reported physical devices.
	Devices []driver.PhysicalDeviceInfo

	Formats      []driver.SurfaceFormat
	PresentModes []driver.PresentMode

	MinImageCount uint32
	MaxImageCount uint32
	// UndefinedExtent makes the surface report UndefinedExtent, so the
	// swapchain size follows the framebuffer size.
	UndefinedExtent bool
	MinExtent       driver.Extent2D
	MaxExtent       driver.Extent2D

	// UnifiedMemory makes device-local allocations host visible.
	UnifiedMemory bool
	// NonCoherent makes host-visible memory non-coherent.
	NonCoherent bool
}

// DefaultDevice is the physical device reported when Config.Devices is empty.
func DefaultDevice(cfg Config) driver.PhysicalDeviceInfo {
	gq := cfg.GraphicsQueues
	if gq == 0 {
		gq = 1
	}
	families := []driver.QueueFamily{{
		Index:      0,
		QueueCount: gq,
		Graphics:   true,
		Compute:    true,
		Transfer:   true,
		Present:    !cfg.SeparatePresent,
	}}
	if cfg.SeparatePresent {
		families = append(families, driver.QueueFamily{
			Index:      1,
			QueueCount: 1,
			Transfer:   true,
			Present:    true,
		})
	}
	return driver.PhysicalDeviceInfo{
		Device:     1,
		Name:       "fakegpu",
		Type:       driver.DeviceDiscrete,
		APIVersion: driver.MakeVersion(1, 3, 0),
		Features: driver.Features{
			Synchronization2:    true,
			DynamicRendering:    true,
			BufferDeviceAddress: true,
			DescriptorIndexing:  true,
			MultiDrawIndirect:   true,
			FillModeNonSolid:    true,
			SamplerAnisotropy:   true,
		},
		QueueFamilies: families,
	}
}

// Instance implements driver.Instance.
type Instance struct {
	cfg    Config
	win    *Window
	dev    *Device
	closed bool

	// FailCreateDevice, when set, is returned by CreateDevice.
	FailCreateDevice error
}

// Closed reports whether Destroy was called.
func (inst *Instance) Closed() bool { return inst.closed }

var _ driver.Instance = (*Instance)(nil)

// New creates a fake instance presenting to win.
func New(win *Window, cfg Config) *Instance {
	if len(cfg.Formats) == 0 {
		cfg.Formats = []driver.SurfaceFormat{
			{Format: driver.FormatB8G8R8A8Srgb, ColorSpace: driver.ColorSpaceSrgbNonlinear},
			{Format: driver.FormatB8G8R8A8Unorm, ColorSpace: driver.ColorSpaceSrgbNonlinear},
		}
	}
	if len(cfg.PresentModes) == 0 {
		cfg.PresentModes = []driver.PresentMode{driver.PresentModeFifo, driver.PresentModeMailbox}
	}
	if cfg.MinImageCount == 0 {
		cfg.MinImageCount = 2
	}
	if cfg.MaxExtent.Empty() {
		cfg.MaxExtent = driver.Extent2D{Width: 8192, Height: 8192}
	}
	return &Instance{cfg: cfg, win: win}
}

func (inst *Instance) PhysicalDevices() ([]driver.PhysicalDeviceInfo, error) {
	if len(inst.cfg.Devices) > 0 {
		return inst.cfg.Devices, nil
	}
	return []driver.PhysicalDeviceInfo{DefaultDevice(inst.cfg)}, nil
}

func (inst *Instance) CreateDevice(req driver.DeviceRequest) (driver.Device, error) {
	if inst.FailCreateDevice != nil {
		return nil, inst.FailCreateDevice
	}
	if inst.dev != nil && !inst.dev.Destroyed() {
		return nil, errors.Errorf("fakegpu: device already created")
	}
	d := newDevice(inst, req)
	inst.dev = d
	return d, nil
}

func (inst *Instance) Surface() driver.Surface { return 1 }

func (inst *Instance) Destroy() {
	if d := inst.dev; d != nil {
		d.mu.Lock()
		if !d.destroyed {
			d.violate("instance destroyed before device")
		}
		d.mu.Unlock()
	}
	inst.closed = true
}

// Device returns the last device created from the instance.
func (inst *Instance) Device() *Device { return inst.dev }

// Window is a scriptable driver-side window.
type Window struct {
	mu      sync.Mutex
	width   int
	height  int
	running bool

	// OnWait runs inside WaitEvents. When nil, WaitEvents closes the
	// window so a blocked caller cannot spin forever.
	OnWait func(w *Window)
	Waits  int
	Polls  int
}

func NewWindow(width, height int) *Window {
	return &Window{width: width, height: height, running: true}
}

func (w *Window) FramebufferSize() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width, w.height
}

func (w *Window) SetSize(width, height int) {
	w.mu.Lock()
	w.width, w.height = width, height
	w.mu.Unlock()
}

func (w *Window) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Window) Close() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

func (w *Window) PollEvents() { w.Polls++ }

func (w *Window) WaitEvents() {
	w.Waits++
	if w.OnWait == nil {
		w.Close()
		return
	}
	w.OnWait(w)
}

func (w *Window) extent() driver.Extent2D {
	wd, ht := w.FramebufferSize()
	if wd < 0 {
		wd = 0
	}
	if ht < 0 {
		ht = 0
	}
	return driver.Extent2D{Width: uint32(wd), Height: uint32(ht)}
}
