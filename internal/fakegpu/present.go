package fakegpu

import (
	"github.com/pkg/errors"

	"github.com/andewx/vkframe/driver"
)

func (d *Device) SurfaceCapabilities() (driver.SurfaceCapabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg := d.inst.cfg
	caps := driver.SurfaceCapabilities{
		MinImageCount:  cfg.MinImageCount,
		MaxImageCount:  cfg.MaxImageCount,
		CurrentExtent:  d.inst.win.extent(),
		MinImageExtent: cfg.MinExtent,
		MaxImageExtent: cfg.MaxExtent,
	}
	if cfg.UndefinedExtent {
		caps.CurrentExtent = driver.Extent2D{Width: driver.UndefinedExtent, Height: driver.UndefinedExtent}
	}
	return caps, nil
}

func (d *Device) SurfaceFormats() ([]driver.SurfaceFormat, error) {
	return append([]driver.SurfaceFormat(nil), d.inst.cfg.Formats...), nil
}

func (d *Device) SurfacePresentModes() ([]driver.PresentMode, error) {
	return append([]driver.PresentMode(nil), d.inst.cfg.PresentModes...), nil
}

func (d *Device) CreateSwapchain(desc driver.SwapchainDesc) (driver.Swapchain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.event("create-swapchain", 0)
	if err := d.injected("CreateSwapchain"); err != nil {
		return 0, err
	}
	cfg := d.inst.cfg
	if desc.Extent.Empty() {
		d.violate("zero-area swapchain %dx%d", desc.Extent.Width, desc.Extent.Height)
		return 0, errors.Errorf("fakegpu: zero-area swapchain")
	}
	if desc.MinImageCount < cfg.MinImageCount || (cfg.MaxImageCount > 0 && desc.MinImageCount > cfg.MaxImageCount) {
		d.violate("swapchain image count %d outside [%d, %d]", desc.MinImageCount, cfg.MinImageCount, cfg.MaxImageCount)
	}
	if desc.Old != 0 {
		old, ok := d.swapchains[desc.Old]
		if !ok {
			d.violate("old swapchain %#x is unknown", uint64(desc.Old))
		} else {
			old.retired = true
		}
	}
	sc := driver.Swapchain(d.alloc("swapchain"))
	s := &swapchain{desc: desc}
	for i := uint32(0); i < desc.MinImageCount; i++ {
		d.next++
		img := driver.Image(d.next)
		d.images[img] = &image{
			desc: driver.ImageDesc{
				Width:  desc.Extent.Width,
				Height: desc.Extent.Height,
				Format: desc.Format,
			},
			swapchain: sc,
		}
		s.images = append(s.images, img)
	}
	d.swapchains[sc] = s
	d.Swapchains = append(d.Swapchains, desc)
	return sc, nil
}

func (d *Device) DestroySwapchain(sc driver.Swapchain) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.swapchains[sc]
	if !d.release(driver.Handle(sc), "swapchain") || !ok {
		return
	}
	for _, img := range s.images {
		for v, target := range d.views {
			if target == img {
				d.violate("swapchain %#x destroyed before view %#x of its image", uint64(sc), uint64(v))
			}
		}
		delete(d.images, img)
	}
	delete(d.swapchains, sc)
}

func (d *Device) SwapchainImages(sc driver.Swapchain) ([]driver.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.swapchains[sc]
	if !ok {
		return nil, errors.Errorf("fakegpu: unknown swapchain")
	}
	return append([]driver.Image(nil), s.images...), nil
}

func (d *Device) AcquireNextImage(sc driver.Swapchain, signal driver.Semaphore, timeout uint64) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.event("acquire", driver.Handle(sc))
	s, ok := d.swapchains[sc]
	if !ok {
		d.violate("acquire from unknown swapchain %#x", uint64(sc))
		return 0, errors.Errorf("fakegpu: unknown swapchain")
	}
	var status error
	if err := d.injected("AcquireNextImage"); err != nil {
		if !isSuboptimal(err) {
			return 0, err
		}
		status = err
	}
	if s.retired || s.desc.Extent != d.inst.win.extent() {
		return 0, OutOfDate("vkAcquireNextImageKHR")
	}
	idx := s.next
	s.next = (s.next + 1) % len(s.images)
	d.signal(signal, "acquire")
	return uint32(idx), status
}

func (d *Device) Present(q driver.Queue, info driver.PresentInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.event("present", driver.Handle(info.Swapchain))
	family, ok := d.queues[q]
	if !ok {
		d.violate("present on unknown queue %#x", uint64(q))
		return errors.Errorf("fakegpu: unknown queue")
	}
	if !d.presentCapable(family) {
		d.violate("present on family %d that cannot present", family)
	}
	for _, w := range info.WaitSemaphores {
		d.wait(w, "present")
	}
	s, ok := d.swapchains[info.Swapchain]
	if !ok {
		d.violate("present to unknown swapchain %#x", uint64(info.Swapchain))
		return errors.Errorf("fakegpu: unknown swapchain")
	}
	if int(info.ImageIndex) >= len(s.images) {
		d.violate("present of image index %d out of range", info.ImageIndex)
	}
	var status error
	if err := d.injected("Present"); err != nil {
		if !isSuboptimal(err) {
			return err
		}
		status = err
	}
	if s.retired || s.desc.Extent != d.inst.win.extent() {
		return OutOfDate("vkQueuePresentKHR")
	}
	d.Presents++
	return status
}

func (d *Device) presentCapable(family uint32) bool {
	infos, _ := d.inst.PhysicalDevices()
	for _, info := range infos {
		if info.Device != d.req.PhysicalDevice {
			continue
		}
		for _, f := range info.QueueFamilies {
			if f.Index == family {
				return f.Present
			}
		}
	}
	return false
}

func isSuboptimal(err error) bool {
	e, ok := err.(*driver.Error)
	return ok && e.Kind == driver.ErrSuboptimal
}

func (d *Device) CreateImageView(img driver.Image, format driver.Format, aspect driver.Aspect) (driver.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("CreateImageView"); err != nil {
		return 0, err
	}
	if _, ok := d.images[img]; !ok {
		d.violate("view of unknown image %#x", uint64(img))
		return 0, errors.Errorf("fakegpu: unknown image")
	}
	v := driver.ImageView(d.alloc("image-view"))
	d.views[v] = img
	return v, nil
}

func (d *Device) DestroyImageView(v driver.ImageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.release(driver.Handle(v), "image-view") {
		delete(d.views, v)
	}
}

func (d *Device) CreateShaderModule(code []byte) (driver.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(code) == 0 || len(code)%4 != 0 {
		return 0, errors.Errorf("fakegpu: SPIR-V size %d is not a multiple of 4", len(code))
	}
	return driver.ShaderModule(d.alloc("shader-module")), nil
}

func (d *Device) DestroyShaderModule(m driver.ShaderModule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(driver.Handle(m), "shader-module")
}
