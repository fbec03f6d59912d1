package vulkan

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/vkframe/driver"
)

// Device is a driver.Device over a vulkan-go logical device. Native
// objects are kept in per-kind tables and handed out as driver handles.
type Device struct {
	inst     *Instance
	gpu      vk.PhysicalDevice
	device   vk.Device
	funcs    deviceFuncs
	memTypes []vk.MemoryPropertyFlags
	atomSize uint64

	queueHandles map[[2]uint32]driver.Queue
	queues       table[driver.Queue, vk.Queue]
	fences       table[driver.Fence, vk.Fence]
	semaphores   table[driver.Semaphore, vk.Semaphore]
	pools        table[driver.CommandPool, *commandPool]
	commands     table[driver.CommandBuffer, vk.CommandBuffer]
	buffers      table[driver.Buffer, *buffer]
	images       table[driver.Image, *image]
	views        table[driver.ImageView, vk.ImageView]
	swapchains   table[driver.Swapchain, *swapchain]
	shaders      table[driver.ShaderModule, vk.ShaderModule]
	pipelines    table[driver.Pipeline, vk.Pipeline]
	layouts      table[driver.PipelineLayout, pipelineLayout]
}

type pipelineLayout struct {
	layout vk.PipelineLayout
	stages vk.ShaderStageFlags
}

func newDevice(inst *Instance, gpu vk.PhysicalDevice, device vk.Device, atomSize uint64) *Device {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(gpu, &memoryProperties)
	memoryProperties.Deref()
	types := make([]vk.MemoryPropertyFlags, memoryProperties.MemoryTypeCount)
	for i := range types {
		memoryProperties.MemoryTypes[i].Deref()
		types[i] = memoryProperties.MemoryTypes[i].PropertyFlags
	}
	if atomSize == 0 {
		atomSize = 1
	}
	return &Device{
		inst:         inst,
		gpu:          gpu,
		device:       device,
		funcs:        loadDeviceFuncs(device),
		memTypes:     types,
		atomSize:     atomSize,
		queueHandles: make(map[[2]uint32]driver.Queue),
	}
}

// Handle returns the native device.
func (d *Device) Handle() vk.Device { return d.device }

// Queue implements driver.Device. It returns the zero handle for queues not
// requested at creation.
func (d *Device) Queue(family, index uint32) driver.Queue {
	return d.queueHandles[[2]uint32{family, index}]
}

func (d *Device) WaitIdle() error {
	return newError("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.device))
}

// RegisterPipeline makes a pipeline built directly with vulkan-go usable
// with CmdBindPipeline. The caller keeps ownership of p.
func (d *Device) RegisterPipeline(p vk.Pipeline) driver.Pipeline {
	return d.pipelines.add(p)
}

// RegisterPipelineLayout makes a layout usable with CmdPushConstants.
// stages are the shader stages of its push constant range.
func (d *Device) RegisterPipelineLayout(l vk.PipelineLayout, stages vk.ShaderStageFlags) driver.PipelineLayout {
	return d.layouts.add(pipelineLayout{layout: l, stages: stages})
}

// CreateShaderModule implements driver.Device.
func (d *Device) CreateShaderModule(code []byte) (driver.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return 0, errors.Errorf("vulkan: SPIR-V size %d is not a multiple of 4", len(code))
	}
	var module vk.ShaderModule
	ret := vk.CreateShaderModule(d.device, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    sliceUint32(code),
	}, nil, &module)
	if isError(ret) {
		return 0, newError("vkCreateShaderModule", ret)
	}
	return d.shaders.add(module), nil
}

func (d *Device) DestroyShaderModule(m driver.ShaderModule) {
	if module, ok := d.shaders.remove(m); ok {
		vk.DestroyShaderModule(d.device, module, nil)
	}
}

// sliceUint32 copies a SPIR-V blob into words.
func sliceUint32(data []byte) []uint32 {
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = uint32(data[4*i]) | uint32(data[4*i+1])<<8 |
			uint32(data[4*i+2])<<16 | uint32(data[4*i+3])<<24
	}
	return words
}

// Destroy implements driver.Device. Objects still alive are released
// with a warning.
func (d *Device) Destroy() {
	if d.device == nil {
		return
	}
	vk.DeviceWaitIdle(d.device)
	if n := d.live(); n > 0 {
		d.inst.log.Printf("vulkan warning: destroying device with %d live objects", n)
	}
	for h := range d.swapchains.m {
		d.DestroySwapchain(h)
	}
	for h := range d.views.m {
		d.DestroyImageView(h)
	}
	for h := range d.images.m {
		d.DestroyImage(h)
	}
	for h := range d.buffers.m {
		d.DestroyBuffer(h)
	}
	for h := range d.pools.m {
		d.DestroyCommandPool(h)
	}
	for h := range d.fences.m {
		d.DestroyFence(h)
	}
	for h := range d.semaphores.m {
		d.DestroySemaphore(h)
	}
	for h := range d.shaders.m {
		d.DestroyShaderModule(h)
	}
	d.funcs.free()
	d.funcs = deviceFuncs{}
	vk.DestroyDevice(d.device, nil)
	d.device = nil
}

func (d *Device) live() int {
	return d.swapchains.len() + d.views.len() + d.images.len() + d.buffers.len() +
		d.pools.len() + d.fences.len() + d.semaphores.len() + d.shaders.len()
}

var _ driver.Device = (*Device)(nil)
var _ driver.Instance = (*Instance)(nil)
