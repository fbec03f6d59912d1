package fakegpu

import (
	"github.com/pkg/errors"

	"github.com/andewx/vkframe/driver"
)

func bytesPerPixel(f driver.Format) uint64 {
	if n := f.Size(); n != 0 {
		return uint64(n)
	}
	return 4
}

func (d *Device) CreateBuffer(desc driver.BufferDesc) (driver.Buffer, driver.MemoryInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("CreateBuffer"); err != nil {
		return 0, driver.MemoryInfo{}, err
	}
	if desc.Size == 0 {
		return 0, driver.MemoryInfo{}, errors.Errorf("fakegpu: zero-sized buffer")
	}
	cfg := d.inst.cfg
	info := driver.MemoryInfo{Size: desc.Size}
	switch desc.Memory {
	case driver.MemoryDeviceLocal:
		info.DeviceLocal = true
		info.HostVisible = cfg.UnifiedMemory
		info.HostCoherent = cfg.UnifiedMemory && !cfg.NonCoherent
	case driver.MemoryHostVisible:
		info.DeviceLocal = cfg.UnifiedMemory
		info.HostVisible = true
		info.HostCoherent = !cfg.NonCoherent
	case driver.MemoryStaging:
		info.HostVisible = true
		info.HostCoherent = !cfg.NonCoherent
	}
	b := driver.Buffer(d.alloc("buffer"))
	buf := &buffer{desc: desc, info: info, data: make([]byte, desc.Size)}
	if desc.Usage&driver.BufferUsageDeviceAddress != 0 {
		buf.addr = d.nextAddr
		d.nextAddr += driver.DeviceAddress((desc.Size + 0xff) &^ 0xff)
	}
	d.buffers[b] = buf
	return b, info, nil
}

func (d *Device) DestroyBuffer(b driver.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.pending {
		for _, h := range s.cbs {
			if cb := d.cbs[h]; cb != nil && cb.uses(b) {
				d.violate("buffer %#x destroyed while copies are pending", uint64(b))
			}
		}
	}
	if d.release(driver.Handle(b), "buffer") {
		delete(d.buffers, b)
	}
}

func (d *Device) MapBuffer(b driver.Buffer) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[b]
	if !ok {
		return nil, errors.Errorf("fakegpu: unknown buffer")
	}
	if !buf.info.HostVisible {
		return nil, errors.Errorf("fakegpu: buffer %#x is not host visible", uint64(b))
	}
	return buf.data, nil
}

func (d *Device) FlushBuffer(b driver.Buffer, offset, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[b]
	if !ok {
		return errors.Errorf("fakegpu: unknown buffer")
	}
	if offset+size > uint64(len(buf.data)) {
		d.violate("flush [%d, %d) beyond buffer size %d", offset, offset+size, len(buf.data))
	}
	d.flushes = append(d.flushes, Flush{Buffer: b, Offset: offset, Size: size})
	return nil
}

func (d *Device) BufferAddress(b driver.Buffer) (driver.DeviceAddress, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[b]
	if !ok {
		return 0, errors.Errorf("fakegpu: unknown buffer")
	}
	if buf.addr == 0 {
		return 0, errors.Errorf("fakegpu: buffer %#x lacks device address usage", uint64(b))
	}
	return buf.addr, nil
}

func (d *Device) CreateImage(desc driver.ImageDesc) (driver.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("CreateImage"); err != nil {
		return 0, err
	}
	if desc.Width == 0 || desc.Height == 0 {
		return 0, errors.Errorf("fakegpu: zero-sized image")
	}
	img := driver.Image(d.alloc("image"))
	d.images[img] = &image{
		desc: desc,
		data: make([]byte, uint64(desc.Width)*uint64(desc.Height)*bytesPerPixel(desc.Format)),
	}
	return img, nil
}

func (d *Device) DestroyImage(img driver.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if im, ok := d.images[img]; ok && im.swapchain != 0 {
		d.violate("destroy of swapchain-owned image %#x", uint64(img))
		return
	}
	if d.release(driver.Handle(img), "image") {
		delete(d.images, img)
	}
}
