package vkframe

import (
	"log"

	"github.com/pkg/errors"

	"github.com/andewx/vkframe/driver"
)

// QueuePlan says which queue families and queue indices graphics and
// presentation use.
type QueuePlan struct {
	GraphicsFamily uint32
	GraphicsIndex  uint32
	PresentFamily  uint32
	PresentIndex   uint32
}

// Unified is true when graphics and presentation share a queue family, in
// which case no ownership transfer is needed before present.
func (p QueuePlan) Unified() bool { return p.GraphicsFamily == p.PresentFamily }

// Requests lists the queues the logical device must be created with.
func (p QueuePlan) Requests() []driver.QueueRequest {
	if p.Unified() {
		n := p.GraphicsIndex
		if p.PresentIndex > n {
			n = p.PresentIndex
		}
		return []driver.QueueRequest{{Family: p.GraphicsFamily, Count: n + 1}}
	}
	return []driver.QueueRequest{
		{Family: p.GraphicsFamily, Count: p.GraphicsIndex + 1},
		{Family: p.PresentFamily, Count: p.PresentIndex + 1},
	}
}

// ResolveQueues picks the graphics family and a present family, preferring
// a present-capable family distinct from the graphics one. Without such a
// family the graphics family presents, from its second queue when it has
// two or more.
func ResolveQueues(info driver.PhysicalDeviceInfo) (QueuePlan, error) {
	var (
		graphics    driver.QueueFamily
		hasGraphics bool
	)
	for _, f := range info.QueueFamilies {
		if f.Graphics && f.QueueCount > 0 {
			graphics, hasGraphics = f, true
			break
		}
	}
	if !hasGraphics {
		return QueuePlan{}, errors.Wrapf(ErrNoQueueFamily, "%s has no graphics family", info.Name)
	}
	for _, f := range info.QueueFamilies {
		if f.Present && f.QueueCount > 0 && f.Index != graphics.Index {
			return QueuePlan{
				GraphicsFamily: graphics.Index,
				PresentFamily:  f.Index,
			}, nil
		}
	}
	if !graphics.Present {
		return QueuePlan{}, errors.Wrapf(ErrNoQueueFamily, "%s has no present capable family", info.Name)
	}
	plan := QueuePlan{
		GraphicsFamily: graphics.Index,
		PresentFamily:  graphics.Index,
	}
	if graphics.QueueCount >= 2 {
		plan.PresentIndex = 1
	}
	return plan, nil
}

// DeviceContext owns the logical device and its queues. It is created once
// and passed explicitly to every component that needs the device.
type DeviceContext struct {
	Info          driver.PhysicalDeviceInfo
	Device        driver.Device
	Plan          QueuePlan
	GraphicsQueue driver.Queue
	PresentQueue  driver.Queue
	// Enabled is the feature set the device was created with.
	Enabled   driver.Features
	Allocator *Allocator

	log *log.Logger
}

// NewDeviceContext selects a physical device, resolves its queues and opens
// the logical device. Failures are not retried.
func NewDeviceContext(inst driver.Instance, req Requirements, logger *log.Logger) (*DeviceContext, error) {
	if logger == nil {
		logger = log.Default()
	}
	devs, err := inst.PhysicalDevices()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate physical devices")
	}
	if len(devs) == 0 {
		return nil, errors.Wrap(ErrNoSuitableDevice, "no GPU devices found")
	}
	info, err := SelectPhysicalDevice(devs, req)
	if err != nil {
		return nil, err
	}
	plan, err := ResolveQueues(info)
	if err != nil {
		return nil, err
	}
	enabled := Union(req.Required, Intersect(req.Preferred, info.Features))
	dev, err := inst.CreateDevice(driver.DeviceRequest{
		PhysicalDevice: info.Device,
		Queues:         plan.Requests(),
		Features:       enabled,
		Extensions:     req.Extensions,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create device on %s", info.Name)
	}
	logger.Printf("vulkan: using %s (api %s), graphics family %d, present family %d/%d",
		info.Name, info.APIVersion, plan.GraphicsFamily, plan.PresentFamily, plan.PresentIndex)
	if !plan.Unified() {
		logger.Println("vulkan: separate present queue, ownership transfer enabled")
	}
	return &DeviceContext{
		Info:          info,
		Device:        dev,
		Plan:          plan,
		GraphicsQueue: dev.Queue(plan.GraphicsFamily, plan.GraphicsIndex),
		PresentQueue:  dev.Queue(plan.PresentFamily, plan.PresentIndex),
		Enabled:       enabled,
		Allocator:     NewAllocator(dev),
		log:           logger,
	}, nil
}

// Unified reports whether graphics and presentation share a queue family.
func (c *DeviceContext) Unified() bool { return c.Plan.Unified() }

// Logger returns the logger the context was created with.
func (c *DeviceContext) Logger() *log.Logger { return c.log }

// Destroy waits for the device to go idle and destroys it. Everything created
// from the device must have been destroyed already.
func (c *DeviceContext) Destroy() {
	if c.Device == nil {
		return
	}
	if err := c.Device.WaitIdle(); err != nil {
		c.log.Printf("vulkan warning: wait idle before destroy: %v", err)
	}
	if n, size := c.Allocator.Live(); n > 0 {
		c.log.Printf("vulkan warning: %d allocations (%d bytes) still live at shutdown", n, size)
	}
	c.Device.Destroy()
	c.Device = nil
}
