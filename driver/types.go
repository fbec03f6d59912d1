package driver

import "fmt"

// Handle is the representation shared by every object kind. Each kind has
// its own named type so handles of different kinds cannot be mixed up.
// The zero value is the null handle.
type Handle uint64

type (
	PhysicalDevice Handle
	Surface        Handle
	Queue          Handle
	Fence          Handle
	Semaphore      Handle
	CommandPool    Handle
	CommandBuffer  Handle
	Buffer         Handle
	Image          Handle
	ImageView      Handle
	Swapchain      Handle
	ShaderModule   Handle
	Pipeline       Handle
	PipelineLayout Handle
)

// DeviceAddress is a GPU virtual address of a buffer.
type DeviceAddress uint64

// Infinite is the timeout value that never expires.
const Infinite = ^uint64(0)

// QueueFamilyIgnored is used in barriers that do not transfer ownership.
const QueueFamilyIgnored = ^uint32(0)

// Version is a packed API version, same layout as VK_MAKE_VERSION.
type Version uint32

func MakeVersion(major, minor, patch uint32) Version {
	return Version(major<<22 | minor<<12 | patch)
}

func (v Version) Major() uint32 { return uint32(v) >> 22 }
func (v Version) Minor() uint32 { return uint32(v) >> 12 & 0x3ff }
func (v Version) Patch() uint32 { return uint32(v) & 0xfff }

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Patch())
}

// DeviceType classifies a physical device.
type DeviceType int

const (
	DeviceOther DeviceType = iota
	DeviceIntegrated
	DeviceDiscrete
	DeviceVirtual
	DeviceCPU
)

// Features is the set of optional capabilities the frame loop cares about.
type Features struct {
	Synchronization2    bool
	DynamicRendering    bool
	BufferDeviceAddress bool
	// DescriptorIndexing covers non-uniform indexing of sampled image
	// arrays, runtime arrays and partially bound bindings.
	DescriptorIndexing bool
	MultiDrawIndirect  bool
	FillModeNonSolid   bool
	SamplerAnisotropy  bool
	MeshShader         bool
}

// QueueFamily describes one queue family of a physical device.
type QueueFamily struct {
	Index      uint32
	QueueCount uint32
	Graphics   bool
	Compute    bool
	Transfer   bool
	// Present is true when the family can present to the instance's surface.
	Present bool
}

// PhysicalDeviceInfo is what an Instance reports for one device.
type PhysicalDeviceInfo struct {
	Device        PhysicalDevice
	Name          string
	Type          DeviceType
	APIVersion    Version
	Features      Features
	QueueFamilies []QueueFamily
}

// QueueRequest asks for Count queues of a family at device creation.
type QueueRequest struct {
	Family uint32
	Count  uint32
}

// DeviceRequest parameterizes Instance.CreateDevice.
type DeviceRequest struct {
	PhysicalDevice PhysicalDevice
	Queues         []QueueRequest
	Features       Features
	Extensions     []string
}

// Extent2D is a size in pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

func (e Extent2D) Empty() bool { return e.Width == 0 || e.Height == 0 }

// Format is a pixel format. Values match VkFormat.
type Format uint32

const (
	FormatUndefined          Format = 0
	FormatR8G8B8A8Unorm      Format = 37
	FormatR8G8B8A8Srgb       Format = 43
	FormatB8G8R8A8Unorm      Format = 44
	FormatB8G8R8A8Srgb       Format = 50
	FormatA2B10G10R10Unorm   Format = 64
	FormatR16G16B16A16Sfloat Format = 97
	FormatD32Sfloat          Format = 126
)

// Size returns the number of bytes of one texel, or 0 for formats the
// module does not upload.
func (f Format) Size() uint32 {
	switch f {
	case FormatR8G8B8A8Unorm, FormatR8G8B8A8Srgb, FormatB8G8R8A8Unorm, FormatB8G8R8A8Srgb,
		FormatA2B10G10R10Unorm, FormatD32Sfloat:
		return 4
	case FormatR16G16B16A16Sfloat:
		return 8
	}
	return 0
}

// Is4x8 reports whether f is a four-channel, eight-bit-per-channel color
// format in RGBA or BGRA order.
func (f Format) Is4x8() bool {
	switch f {
	case FormatR8G8B8A8Unorm, FormatR8G8B8A8Srgb, FormatB8G8R8A8Unorm, FormatB8G8R8A8Srgb:
		return true
	}
	return false
}

// ColorSpace values match VkColorSpaceKHR.
type ColorSpace uint32

const ColorSpaceSrgbNonlinear ColorSpace = 0

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

// PresentMode values match VkPresentModeKHR.
type PresentMode uint32

const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFifo        PresentMode = 2
	PresentModeFifoRelaxed PresentMode = 3
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFifo:
		return "fifo"
	case PresentModeFifoRelaxed:
		return "fifo-relaxed"
	}
	return fmt.Sprintf("PresentMode(%d)", uint32(m))
}

// UndefinedExtent is the CurrentExtent value meaning that the window size
// determines the swapchain extent.
const UndefinedExtent = ^uint32(0)

// SurfaceCapabilities is the subset of VkSurfaceCapabilitiesKHR used here.
type SurfaceCapabilities struct {
	MinImageCount uint32
	// MaxImageCount of 0 means no upper bound.
	MaxImageCount  uint32
	CurrentExtent  Extent2D
	MinImageExtent Extent2D
	MaxImageExtent Extent2D
}

// SwapchainDesc parameterizes CreateSwapchain.
type SwapchainDesc struct {
	Format        Format
	ColorSpace    ColorSpace
	Extent        Extent2D
	PresentMode   PresentMode
	MinImageCount uint32
	// Old is handed to the presentation engine for resource reuse.
	// The caller still destroys it.
	Old Swapchain
}

// Layout values match VkImageLayout.
type Layout uint32

const (
	LayoutUndefined              Layout = 0
	LayoutGeneral                Layout = 1
	LayoutColorAttachmentOptimal Layout = 2
	LayoutShaderReadOnlyOptimal  Layout = 5
	LayoutTransferSrcOptimal     Layout = 6
	LayoutTransferDstOptimal     Layout = 7
	LayoutPresentSrc             Layout = 1000001002
)

// PipelineStage values match VkPipelineStageFlagBits.
type PipelineStage uint32

const (
	StageTopOfPipe             PipelineStage = 0x00000001
	StageFragmentShader        PipelineStage = 0x00000080
	StageColorAttachmentOutput PipelineStage = 0x00000400
	StageTransfer              PipelineStage = 0x00001000
	StageBottomOfPipe          PipelineStage = 0x00002000
	StageAllCommands           PipelineStage = 0x00010000
)

// Access values match VkAccessFlagBits.
type Access uint32

const (
	AccessNone                 Access = 0
	AccessShaderRead           Access = 0x00000020
	AccessColorAttachmentRead  Access = 0x00000080
	AccessColorAttachmentWrite Access = 0x00000100
	AccessTransferRead         Access = 0x00000800
	AccessTransferWrite        Access = 0x00001000
	AccessMemoryRead           Access = 0x00008000
)

// Aspect values match VkImageAspectFlagBits.
type Aspect uint32

const (
	AspectColor Aspect = 0x1
	AspectDepth Aspect = 0x2
)

// ImageBarrier is an image memory barrier, optionally transferring queue
// family ownership when SrcFamily != DstFamily.
type ImageBarrier struct {
	Image     Image
	Aspect    Aspect
	OldLayout Layout
	NewLayout Layout
	SrcStage  PipelineStage
	DstStage  PipelineStage
	SrcAccess Access
	DstAccess Access
	SrcFamily uint32
	DstFamily uint32
}

// TransfersOwnership reports whether b moves the image between queue families.
func (b ImageBarrier) TransfersOwnership() bool {
	return b.SrcFamily != b.DstFamily &&
		b.SrcFamily != QueueFamilyIgnored && b.DstFamily != QueueFamilyIgnored
}

type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

type BufferImageCopy struct {
	BufferOffset uint64
	Aspect       Aspect
	Width        uint32
	Height       uint32
}

// RenderingInfo describes a single-color-attachment dynamic rendering scope.
type RenderingInfo struct {
	View   ImageView
	Extent Extent2D
	// Clear clears the attachment to ClearColor on load; otherwise the
	// previous content is loaded.
	Clear      bool
	ClearColor [4]float32
}

type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	WaitStages       []PipelineStage
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
}

type PresentInfo struct {
	WaitSemaphores []Semaphore
	Swapchain      Swapchain
	ImageIndex     uint32
}

// PoolFlags values match VkCommandPoolCreateFlagBits.
type PoolFlags uint32

const (
	PoolTransient          PoolFlags = 0x1
	PoolResetCommandBuffer PoolFlags = 0x2
)

// CommandUsage values match VkCommandBufferUsageFlagBits.
type CommandUsage uint32

const (
	UsageOneTimeSubmit CommandUsage = 0x1
	UsageSimultaneous  CommandUsage = 0x4
)

// BufferUsage values match VkBufferUsageFlagBits.
type BufferUsage uint32

const (
	BufferUsageTransferSrc   BufferUsage = 0x00000001
	BufferUsageTransferDst   BufferUsage = 0x00000002
	BufferUsageUniform       BufferUsage = 0x00000010
	BufferUsageStorage       BufferUsage = 0x00000020
	BufferUsageIndex         BufferUsage = 0x00000040
	BufferUsageVertex        BufferUsage = 0x00000080
	BufferUsageIndirect      BufferUsage = 0x00000100
	BufferUsageDeviceAddress BufferUsage = 0x00020000
)

// ImageUsage values match VkImageUsageFlagBits.
type ImageUsage uint32

const (
	ImageUsageTransferSrc     ImageUsage = 0x01
	ImageUsageTransferDst     ImageUsage = 0x02
	ImageUsageSampled         ImageUsage = 0x04
	ImageUsageStorage         ImageUsage = 0x08
	ImageUsageColorAttachment ImageUsage = 0x10
)

// MemoryKind selects where a resource lives.
type MemoryKind int

const (
	// MemoryDeviceLocal prefers device-local memory. On unified-memory
	// devices the result may also be host visible.
	MemoryDeviceLocal MemoryKind = iota
	// MemoryHostVisible requires host-visible memory, preferably
	// device local as well.
	MemoryHostVisible
	// MemoryStaging requires host-visible memory for one-off uploads.
	MemoryStaging
)

// MemoryInfo reports the properties of the memory actually bound.
type MemoryInfo struct {
	Size         uint64
	DeviceLocal  bool
	HostVisible  bool
	HostCoherent bool
}

type BufferDesc struct {
	Size   uint64
	Usage  BufferUsage
	Memory MemoryKind
}

type ImageDesc struct {
	Width     uint32
	Height    uint32
	Format    Format
	Usage     ImageUsage
	MipLevels uint32
}
