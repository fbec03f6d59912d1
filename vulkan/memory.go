package vulkan

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/vkframe/driver"
)

var (
	memDeviceLocal  = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	memHostVisible  = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)
	memHostCoherent = vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
)

// memoryPreferences lists, best first, the property sets acceptable for
// each kind of allocation.
var memoryPreferences = map[driver.MemoryKind][]vk.MemoryPropertyFlags{
	driver.MemoryDeviceLocal: {
		memDeviceLocal,
		0,
	},
	driver.MemoryHostVisible: {
		memDeviceLocal | memHostVisible | memHostCoherent,
		memHostVisible | memHostCoherent,
		memHostVisible,
	},
	driver.MemoryStaging: {
		memHostVisible | memHostCoherent,
		memHostVisible,
	},
}

// findMemoryType returns the first memory type allowed by typeBits whose
// properties include one of the preferred sets for kind.
func findMemoryType(types []vk.MemoryPropertyFlags, typeBits uint32, kind driver.MemoryKind) (uint32, bool) {
	for _, want := range memoryPreferences[kind] {
		for i, flags := range types {
			if typeBits&(1<<uint(i)) == 0 {
				continue
			}
			if flags&want == want {
				return uint32(i), true
			}
		}
	}
	return 0, false
}

func memoryInfo(flags vk.MemoryPropertyFlags, size uint64) driver.MemoryInfo {
	return driver.MemoryInfo{
		Size:         size,
		DeviceLocal:  flags&memDeviceLocal != 0,
		HostVisible:  flags&memHostVisible != 0,
		HostCoherent: flags&memHostCoherent != 0,
	}
}

// flushRange widens [offset, offset+size) to whole non-coherent atoms,
// clamped to the allocation.
func flushRange(offset, size, atom, allocSize uint64) (uint64, uint64) {
	start := offset - offset%atom
	end := offset + size
	if r := end % atom; r != 0 {
		end += atom - r
	}
	if end > allocSize {
		end = allocSize
	}
	return start, end - start
}

type buffer struct {
	buf       vk.Buffer
	mem       vk.DeviceMemory
	size      uint64
	allocSize uint64
	usage     driver.BufferUsage
	info      driver.MemoryInfo
	mapped    []byte
}

func (b *buffer) handle() vk.Buffer {
	if b == nil {
		return nil
	}
	return b.buf
}

type image struct {
	img vk.Image
	mem vk.DeviceMemory
	// owned is false for swapchain images.
	owned bool
}

func (i *image) handle() vk.Image {
	if i == nil {
		return nil
	}
	return i.img
}

func (d *Device) allocate(reqs vk.MemoryRequirements, kind driver.MemoryKind, deviceAddress bool) (vk.DeviceMemory, vk.MemoryPropertyFlags, error) {
	memType, ok := findMemoryType(d.memTypes, reqs.MemoryTypeBits, kind)
	if !ok {
		return nil, 0, errors.New("vulkan error: failed to find required memory type")
	}
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: memType,
	}
	if deviceAddress {
		info.PNext = deviceAddressFlags()
	}
	var memory vk.DeviceMemory
	ret := vk.AllocateMemory(d.device, &info, nil, &memory)
	if isError(ret) {
		return nil, 0, newError("vkAllocateMemory", ret)
	}
	return memory, d.memTypes[memType], nil
}

// CreateBuffer implements driver.MemoryDevice.
func (d *Device) CreateBuffer(desc driver.BufferDesc) (driver.Buffer, driver.MemoryInfo, error) {
	if desc.Size == 0 {
		return 0, driver.MemoryInfo{}, errors.New("vulkan: zero sized buffer")
	}
	var buf vk.Buffer
	ret := vk.CreateBuffer(d.device, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Usage:       vk.BufferUsageFlags(desc.Usage),
		Size:        vk.DeviceSize(desc.Size),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &buf)
	if isError(ret) {
		return 0, driver.MemoryInfo{}, newError("vkCreateBuffer", ret)
	}

	// Ask device about its memory requirements.
	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, buf, &memReqs)
	memReqs.Deref()

	memory, flags, err := d.allocate(memReqs, desc.Memory, desc.Usage&driver.BufferUsageDeviceAddress != 0)
	if err != nil {
		vk.DestroyBuffer(d.device, buf, nil)
		return 0, driver.MemoryInfo{}, err
	}
	if ret := vk.BindBufferMemory(d.device, buf, memory, 0); isError(ret) {
		vk.FreeMemory(d.device, memory, nil)
		vk.DestroyBuffer(d.device, buf, nil)
		return 0, driver.MemoryInfo{}, newError("vkBindBufferMemory", ret)
	}
	b := &buffer{
		buf:       buf,
		mem:       memory,
		size:      desc.Size,
		allocSize: uint64(memReqs.Size),
		usage:     desc.Usage,
		info:      memoryInfo(flags, desc.Size),
	}
	return d.buffers.add(b), b.info, nil
}

func (d *Device) DestroyBuffer(h driver.Buffer) {
	b, ok := d.buffers.remove(h)
	if !ok {
		return
	}
	if b.mapped != nil {
		vk.UnmapMemory(d.device, b.mem)
		b.mapped = nil
	}
	vk.DestroyBuffer(d.device, b.buf, nil)
	vk.FreeMemory(d.device, b.mem, nil)
}

// MapBuffer implements driver.MemoryDevice. Buffers stay mapped until
// destroyed.
func (d *Device) MapBuffer(h driver.Buffer) ([]byte, error) {
	b, ok := d.buffers.get(h)
	if !ok {
		return nil, errors.Errorf("vulkan: unknown buffer %d", h)
	}
	if !b.info.HostVisible {
		return nil, errors.New("vulkan: buffer memory is not host visible")
	}
	if b.mapped == nil {
		var pData unsafe.Pointer
		ret := vk.MapMemory(d.device, b.mem, 0, vk.DeviceSize(b.allocSize), 0, &pData)
		if isError(ret) {
			return nil, newError("vkMapMemory", ret)
		}
		b.mapped = unsafe.Slice((*byte)(pData), b.size)
	}
	return b.mapped, nil
}

func (d *Device) FlushBuffer(h driver.Buffer, offset, size uint64) error {
	b, ok := d.buffers.get(h)
	if !ok {
		return errors.Errorf("vulkan: unknown buffer %d", h)
	}
	if b.info.HostCoherent || size == 0 {
		return nil
	}
	start, n := flushRange(offset, size, d.atomSize, b.allocSize)
	ret := vk.FlushMappedMemoryRanges(d.device, 1, []vk.MappedMemoryRange{{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: b.mem,
		Offset: vk.DeviceSize(start),
		Size:   vk.DeviceSize(n),
	}})
	return newError("vkFlushMappedMemoryRanges", ret)
}

func (d *Device) BufferAddress(h driver.Buffer) (driver.DeviceAddress, error) {
	b, ok := d.buffers.get(h)
	if !ok {
		return 0, errors.Errorf("vulkan: unknown buffer %d", h)
	}
	if b.usage&driver.BufferUsageDeviceAddress == 0 {
		return 0, errors.New("vulkan: buffer was created without device address usage")
	}
	addr := d.funcs.bufferAddress(d.device, b.buf)
	if addr == 0 {
		return 0, errors.New("vulkan: vkGetBufferDeviceAddress not available")
	}
	return addr, nil
}

// CreateImage implements driver.MemoryDevice. Images are 2D, optimally
// tiled and device local.
func (d *Device) CreateImage(desc driver.ImageDesc) (driver.Image, error) {
	mips := desc.MipLevels
	if mips == 0 {
		mips = 1
	}
	var img vk.Image
	ret := vk.CreateImage(d.device, &vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vk.Format(desc.Format),
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     mips,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &img)
	if isError(ret) {
		return 0, newError("vkCreateImage", ret)
	}
	var memReqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, img, &memReqs)
	memReqs.Deref()

	memory, _, err := d.allocate(memReqs, driver.MemoryDeviceLocal, false)
	if err != nil {
		vk.DestroyImage(d.device, img, nil)
		return 0, err
	}
	if ret := vk.BindImageMemory(d.device, img, memory, 0); isError(ret) {
		vk.FreeMemory(d.device, memory, nil)
		vk.DestroyImage(d.device, img, nil)
		return 0, newError("vkBindImageMemory", ret)
	}
	return d.images.add(&image{img: img, mem: memory, owned: true}), nil
}

// DestroyImage implements driver.MemoryDevice. Swapchain images are left
// to their swapchain.
func (d *Device) DestroyImage(h driver.Image) {
	im, ok := d.images.get(h)
	if !ok || !im.owned {
		return
	}
	d.images.remove(h)
	vk.DestroyImage(d.device, im.img, nil)
	vk.FreeMemory(d.device, im.mem, nil)
}
