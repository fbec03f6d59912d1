package vkframe

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/andewx/vkframe/driver"
)

// Allocator creates buffers and images and keeps count of what is live.
// Its methods are safe for concurrent use.
type Allocator struct {
	dev driver.Device

	mu      sync.Mutex
	buffers map[driver.Buffer]uint64
	images  map[driver.Image]uint64
	bytes   uint64
}

func NewAllocator(dev driver.Device) *Allocator {
	return &Allocator{
		dev:     dev,
		buffers: make(map[driver.Buffer]uint64),
		images:  make(map[driver.Image]uint64),
	}
}

func (a *Allocator) CreateBuffer(desc driver.BufferDesc) (driver.Buffer, driver.MemoryInfo, error) {
	buf, info, err := a.dev.CreateBuffer(desc)
	if err != nil {
		return 0, info, err
	}
	a.mu.Lock()
	a.buffers[buf] = info.Size
	a.bytes += info.Size
	a.mu.Unlock()
	return buf, info, nil
}

func (a *Allocator) DestroyBuffer(buf driver.Buffer) {
	a.mu.Lock()
	size, ok := a.buffers[buf]
	delete(a.buffers, buf)
	a.bytes -= size
	a.mu.Unlock()
	if ok {
		a.dev.DestroyBuffer(buf)
	}
}

func (a *Allocator) CreateImage(desc driver.ImageDesc) (driver.Image, error) {
	img, err := a.dev.CreateImage(desc)
	if err != nil {
		return 0, err
	}
	size := uint64(desc.Width) * uint64(desc.Height) * 4
	a.mu.Lock()
	a.images[img] = size
	a.bytes += size
	a.mu.Unlock()
	return img, nil
}

func (a *Allocator) DestroyImage(img driver.Image) {
	a.mu.Lock()
	size, ok := a.images[img]
	delete(a.images, img)
	a.bytes -= size
	a.mu.Unlock()
	if ok {
		a.dev.DestroyImage(img)
	}
}

// Live returns the number of live allocations and their approximate size.
func (a *Allocator) Live() (count int, bytes uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffers) + len(a.images), a.bytes
}

// writeMapped copies data into a host-visible buffer at offset and flushes
// the range when the memory is not coherent.
func writeMapped(dev driver.MemoryDevice, buf driver.Buffer, info driver.MemoryInfo, offset uint64, data []byte) error {
	mapped, err := dev.MapBuffer(buf)
	if err != nil {
		return errors.Wrap(err, "map buffer")
	}
	if offset+uint64(len(data)) > uint64(len(mapped)) {
		return errors.Wrapf(ErrOutOfRange, "write [%d, %d) into %d bytes", offset, offset+uint64(len(data)), len(mapped))
	}
	copy(mapped[offset:], data)
	if !info.HostCoherent {
		return errors.Wrap(dev.FlushBuffer(buf, offset, uint64(len(data))), "flush buffer")
	}
	return nil
}

// StaticBuffer is a buffer written once at creation time.
type StaticBuffer struct {
	alloc *Allocator
	buf   driver.Buffer
	info  driver.MemoryInfo
	addr  driver.DeviceAddress
	size  uint64
}

// NewStaticBuffer creates a device-local buffer holding data. When the
// memory came back host visible the data is written directly, otherwise it
// goes through tc.
func NewStaticBuffer(ctx *DeviceContext, tc *TransferChannel, data []byte, usage driver.BufferUsage) (*StaticBuffer, error) {
	if len(data) == 0 {
		return nil, errors.New("vkframe: empty static buffer")
	}
	buf, info, err := ctx.Allocator.CreateBuffer(driver.BufferDesc{
		Size:   uint64(len(data)),
		Usage:  usage | driver.BufferUsageTransferDst | driver.BufferUsageDeviceAddress,
		Memory: driver.MemoryDeviceLocal,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create static buffer")
	}
	sb := &StaticBuffer{alloc: ctx.Allocator, buf: buf, info: info, size: uint64(len(data))}
	if info.HostVisible {
		err = writeMapped(ctx.Device, buf, info, 0, data)
	} else {
		err = tc.UploadBuffer(buf, 0, data)
	}
	if err == nil {
		sb.addr, err = ctx.Device.BufferAddress(buf)
	}
	if err != nil {
		sb.Destroy()
		return nil, errors.Wrap(err, "fill static buffer")
	}
	return sb, nil
}

func (b *StaticBuffer) Buffer() driver.Buffer { return b.buf }
func (b *StaticBuffer) Address() driver.DeviceAddress { return b.addr }
func (b *StaticBuffer) Size() uint64 { return b.size }
func (b *StaticBuffer) Memory() driver.MemoryInfo { return b.info }

// Destroy releases the buffer. Calling it more than once is a no-op.
func (b *StaticBuffer) Destroy() {
	if b.buf == 0 {
		return
	}
	b.alloc.DestroyBuffer(b.buf)
	b.buf = 0
}

// StaticImage is a sampled image uploaded once.
type StaticImage struct {
	ctx  *DeviceContext
	img  driver.Image
	view driver.ImageView
	desc driver.ImageDesc
}

// NewStaticImage creates an image and, when pixels is not nil, uploads them
// and leaves the image in the shader read layout.
func NewStaticImage(ctx *DeviceContext, tc *TransferChannel, desc driver.ImageDesc, pixels []byte) (*StaticImage, error) {
	desc.Usage |= driver.ImageUsageSampled | driver.ImageUsageTransferDst
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	img, err := ctx.Allocator.CreateImage(desc)
	if err != nil {
		return nil, errors.Wrap(err, "create static image")
	}
	si := &StaticImage{ctx: ctx, img: img, desc: desc}
	if si.view, err = ctx.Device.CreateImageView(img, desc.Format, driver.AspectColor); err != nil {
		si.Destroy()
		return nil, errors.Wrap(err, "create static image view")
	}
	if pixels != nil {
		if err := tc.UploadImage(img, desc.Format, desc.Width, desc.Height, pixels); err != nil {
			si.Destroy()
			return nil, errors.Wrap(err, "upload static image")
		}
	}
	return si, nil
}

func (i *StaticImage) Image() driver.Image { return i.img }
func (i *StaticImage) View() driver.ImageView { return i.view }
func (i *StaticImage) Desc() driver.ImageDesc { return i.desc }

func (i *StaticImage) Destroy() {
	if i.view != 0 {
		i.ctx.Device.DestroyImageView(i.view)
		i.view = 0
	}
	if i.img != 0 {
		i.ctx.Allocator.DestroyImage(i.img)
		i.img = 0
	}
}

// ParitySource reports the double-buffer parity of the current frame.
type ParitySource interface {
	Parity() int
}

// DoubleBuffered is a CPU-writable resource with one persistently mapped
// copy per parity. The CPU writes the current parity's copy while the GPU
// may still read the other one. Shaders find the right copy through the
// device address pushed for the frame.
type DoubleBuffered struct {
	dev    driver.MemoryDevice
	alloc  *Allocator
	parity ParitySource

	bufs     [2]driver.Buffer
	info     [2]driver.MemoryInfo
	mapped   [2][]byte
	addr     [2]driver.DeviceAddress
	capacity uint64
}

// NewDoubleBuffered creates two host-visible buffers of capacity bytes.
func NewDoubleBuffered(ctx *DeviceContext, parity ParitySource, capacity uint64, usage driver.BufferUsage) (*DoubleBuffered, error) {
	if capacity == 0 {
		return nil, errors.New("vkframe: zero capacity double-buffered resource")
	}
	r := &DoubleBuffered{
		dev:      ctx.Device,
		alloc:    ctx.Allocator,
		parity:   parity,
		capacity: capacity,
	}
	for i := range r.bufs {
		buf, info, err := ctx.Allocator.CreateBuffer(driver.BufferDesc{
			Size:   capacity,
			Usage:  usage | driver.BufferUsageDeviceAddress,
			Memory: driver.MemoryHostVisible,
		})
		if err != nil {
			r.Destroy()
			return nil, errors.Wrap(err, "create double-buffered copy")
		}
		r.bufs[i], r.info[i] = buf, info
		if r.mapped[i], err = ctx.Device.MapBuffer(buf); err != nil {
			r.Destroy()
			return nil, errors.Wrap(err, "map double-buffered copy")
		}
		if r.addr[i], err = ctx.Device.BufferAddress(buf); err != nil {
			r.Destroy()
			return nil, errors.Wrap(err, "double-buffered address")
		}
	}
	return r, nil
}

// Write copies data at offset into the copy of the current parity.
func (r *DoubleBuffered) Write(data []byte, offset uint64) error {
	return r.write(r.parity.Parity(), data, offset)
}

// WriteFrame is Write checked against f: it fails with ErrStaleFrame when f
// is no longer the frame being recorded.
func (r *DoubleBuffered) WriteFrame(f *Frame, data []byte, offset uint64) error {
	if f == nil || f.done || f.Parity != r.parity.Parity() {
		return ErrStaleFrame
	}
	return r.write(f.Parity, data, offset)
}

func (r *DoubleBuffered) write(p int, data []byte, offset uint64) error {
	if r.bufs[p] == 0 {
		return errors.New("vkframe: write to destroyed resource")
	}
	end := offset + uint64(len(data))
	if end > r.capacity || end < offset {
		return errors.Wrapf(ErrOutOfRange, "write [%d, %d) into %d bytes", offset, end, r.capacity)
	}
	copy(r.mapped[p][offset:end], data)
	if !r.info[p].HostCoherent {
		if err := r.dev.FlushBuffer(r.bufs[p], offset, uint64(len(data))); err != nil {
			return errors.Wrap(err, "flush double-buffered copy")
		}
	}
	return nil
}

func (r *DoubleBuffered) Address(parity int) driver.DeviceAddress { return r.addr[parity&1] }

func (r *DoubleBuffered) Buffer(parity int) driver.Buffer { return r.bufs[parity&1] }

// Bytes returns the mapped memory of a copy. Writes through it bypass the
// flush that Write performs.
func (r *DoubleBuffered) Bytes(parity int) []byte { return r.mapped[parity&1] }

func (r *DoubleBuffered) Capacity() uint64 { return r.capacity }

// Destroy releases both copies. Calling it more than once is a no-op.
func (r *DoubleBuffered) Destroy() {
	for i, buf := range r.bufs {
		if buf != 0 {
			r.alloc.DestroyBuffer(buf)
		}
		r.bufs[i] = 0
		r.mapped[i] = nil
	}
}
