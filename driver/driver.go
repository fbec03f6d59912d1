// Package driver defines the small GPU surface the frame loop is written
// against. The vulkan package implements it on top of vulkan-go; tests use an
// in-memory implementation.
//
// Enumerated values (formats, layouts, stages, access masks) carry the same
// numeric values as their Vulkan counterparts, so a backend converts them with
// a plain type conversion.
package driver

// Instance is the API-level object: it owns the presentation surface and is
// able to enumerate physical devices and open a logical Device on one of them.
type Instance interface {
	// PhysicalDevices reports every device the instance can see. The
	// QueueFamily.Present flags are computed against Surface().
	PhysicalDevices() ([]PhysicalDeviceInfo, error)

	// CreateDevice opens a logical device.
	CreateDevice(req DeviceRequest) (Device, error)

	// Surface returns the presentation surface bound to the instance.
	Surface() Surface

	// Destroy releases the surface and the instance. Every Device created
	// from the instance must be destroyed first.
	Destroy()
}

// Device is a logical device. Methods are not safe for concurrent use unless
// noted otherwise; the frame loop drives a Device from a single goroutine.
type Device interface {
	// Queue returns a queue fetched at device creation.
	Queue(family, index uint32) Queue

	// WaitIdle blocks until every queue of the device is idle.
	WaitIdle() error

	// Destroy destroys the device. Objects created from it must be
	// destroyed first.
	Destroy()

	SyncDevice
	CommandDevice
	SwapchainDevice
	MemoryDevice

	// CreateShaderModule creates a shader module from a SPIR-V blob.
	CreateShaderModule(code []byte) (ShaderModule, error)
	DestroyShaderModule(m ShaderModule)
}

// SyncDevice creates and drives fences and semaphores.
type SyncDevice interface {
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)

	// WaitFences blocks until all fences are signaled or timeout
	// nanoseconds elapsed. Infinite waits forever.
	WaitFences(fences []Fence, timeout uint64) error

	ResetFences(fences ...Fence) error

	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)
}

// CommandDevice manages command pools, command buffers, recording and
// queue submission.
type CommandDevice interface {
	CreateCommandPool(family uint32, flags PoolFlags) (CommandPool, error)
	DestroyCommandPool(p CommandPool)

	// ResetCommandPool resets every command buffer allocated from p.
	ResetCommandPool(p CommandPool) error

	AllocateCommandBuffers(p CommandPool, n int) ([]CommandBuffer, error)

	ResetCommandBuffer(cb CommandBuffer) error
	BeginCommandBuffer(cb CommandBuffer, usage CommandUsage) error
	EndCommandBuffer(cb CommandBuffer) error

	CmdImageBarrier(cb CommandBuffer, barriers ...ImageBarrier)
	CmdCopyBuffer(cb CommandBuffer, src, dst Buffer, regions ...BufferCopy)
	CmdCopyBufferToImage(cb CommandBuffer, src Buffer, dst Image, region BufferImageCopy)
	CmdBeginRendering(cb CommandBuffer, info RenderingInfo)
	CmdEndRendering(cb CommandBuffer)
	CmdBindPipeline(cb CommandBuffer, p Pipeline)
	CmdPushConstants(cb CommandBuffer, layout PipelineLayout, offset uint32, data []byte)
	CmdDraw(cb CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32)

	// Submit submits batches to q. fence may be zero.
	Submit(q Queue, batches []SubmitInfo, fence Fence) error
}

// SwapchainDevice covers the presentation engine.
type SwapchainDevice interface {
	SurfaceCapabilities() (SurfaceCapabilities, error)
	SurfaceFormats() ([]SurfaceFormat, error)
	SurfacePresentModes() ([]PresentMode, error)

	CreateSwapchain(desc SwapchainDesc) (Swapchain, error)
	DestroySwapchain(sc Swapchain)
	SwapchainImages(sc Swapchain) ([]Image, error)

	// AcquireNextImage returns the index of the next presentable image.
	// It may return a valid index together with ErrSuboptimal.
	// ErrOutOfDate means that no image was acquired.
	AcquireNextImage(sc Swapchain, signal Semaphore, timeout uint64) (uint32, error)

	// Present queues an image for presentation. ErrSuboptimal and
	// ErrOutOfDate are reported as for AcquireNextImage.
	Present(q Queue, info PresentInfo) error

	CreateImageView(img Image, format Format, aspect Aspect) (ImageView, error)
	DestroyImageView(v ImageView)
}

// MemoryDevice creates buffers and images together with their backing memory.
type MemoryDevice interface {
	CreateBuffer(desc BufferDesc) (Buffer, MemoryInfo, error)
	DestroyBuffer(b Buffer)

	// MapBuffer maps the whole buffer persistently. It fails for
	// buffers whose MemoryInfo is not HostVisible. The slice stays
	// valid until DestroyBuffer.
	MapBuffer(b Buffer) ([]byte, error)

	// FlushBuffer makes host writes in [offset, offset+size) visible
	// to the device. Required when MemoryInfo.HostCoherent is false.
	FlushBuffer(b Buffer, offset, size uint64) error

	// BufferAddress returns the device address of b. The buffer must
	// have been created with BufferUsageDeviceAddress.
	BufferAddress(b Buffer) (DeviceAddress, error)

	CreateImage(desc ImageDesc) (Image, error)
	DestroyImage(img Image)
}
