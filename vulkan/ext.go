package vulkan

/*
#cgo linux LDFLAGS: -lvulkan
#cgo windows LDFLAGS: -lvulkan-1
#cgo darwin LDFLAGS: -lvulkan
#include <stdlib.h>
#include <string.h>
#include <vulkan/vulkan.h>

typedef struct {
	VkBool32 synchronization2;
	VkBool32 dynamicRendering;
	VkBool32 bufferDeviceAddress;
	VkBool32 descriptorIndexing;
	VkBool32 multiDrawIndirect;
	VkBool32 fillModeNonSolid;
	VkBool32 samplerAnisotropy;
	VkBool32 meshShader;
} vkfFeatures;

static void vkfQueryFeatures(VkPhysicalDevice gpu, uint32_t api, int withMesh, vkfFeatures* out) {
	VkPhysicalDeviceMeshShaderFeaturesEXT mesh;
	VkPhysicalDeviceVulkan13Features f13;
	VkPhysicalDeviceVulkan12Features f12;
	VkPhysicalDeviceFeatures2 f2;
	void* next = NULL;

	memset(out, 0, sizeof(*out));
	if (api < VK_API_VERSION_1_1) {
		VkPhysicalDeviceFeatures f;
		vkGetPhysicalDeviceFeatures(gpu, &f);
		out->multiDrawIndirect = f.multiDrawIndirect;
		out->fillModeNonSolid = f.fillModeNonSolid;
		out->samplerAnisotropy = f.samplerAnisotropy;
		return;
	}
	memset(&mesh, 0, sizeof(mesh));
	memset(&f13, 0, sizeof(f13));
	memset(&f12, 0, sizeof(f12));
	memset(&f2, 0, sizeof(f2));
	mesh.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_MESH_SHADER_FEATURES_EXT;
	f13.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_VULKAN_1_3_FEATURES;
	f12.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_VULKAN_1_2_FEATURES;
	f2.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_FEATURES_2;
	if (withMesh) {
		mesh.pNext = next;
		next = &mesh;
	}
	if (api >= VK_API_VERSION_1_3) {
		f13.pNext = next;
		next = &f13;
	}
	if (api >= VK_API_VERSION_1_2) {
		f12.pNext = next;
		next = &f12;
	}
	f2.pNext = next;
	vkGetPhysicalDeviceFeatures2(gpu, &f2);

	out->multiDrawIndirect = f2.features.multiDrawIndirect;
	out->fillModeNonSolid = f2.features.fillModeNonSolid;
	out->samplerAnisotropy = f2.features.samplerAnisotropy;
	out->bufferDeviceAddress = f12.bufferDeviceAddress;
	out->descriptorIndexing = f12.descriptorIndexing &&
		f12.shaderSampledImageArrayNonUniformIndexing &&
		f12.runtimeDescriptorArray &&
		f12.descriptorBindingPartiallyBound;
	out->synchronization2 = f13.synchronization2;
	out->dynamicRendering = f13.dynamicRendering;
	out->meshShader = mesh.meshShader;
}

// vkfFeatureChain is the pNext chain handed to vkCreateDevice.
typedef struct {
	VkPhysicalDeviceVulkan12Features f12;
	VkPhysicalDeviceVulkan13Features f13;
	VkPhysicalDeviceMeshShaderFeaturesEXT mesh;
	void* head;
} vkfFeatureChain;

static vkfFeatureChain* vkfNewFeatureChain(const vkfFeatures* want, uint32_t api) {
	vkfFeatureChain* c = calloc(1, sizeof(vkfFeatureChain));
	void* next = NULL;
	if (c == NULL) {
		return NULL;
	}
	c->mesh.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_MESH_SHADER_FEATURES_EXT;
	c->f13.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_VULKAN_1_3_FEATURES;
	c->f12.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_VULKAN_1_2_FEATURES;
	if (want->meshShader) {
		c->mesh.meshShader = VK_TRUE;
		c->mesh.taskShader = VK_TRUE;
		next = &c->mesh;
	}
	if (api >= VK_API_VERSION_1_3) {
		c->f13.synchronization2 = want->synchronization2;
		c->f13.dynamicRendering = want->dynamicRendering;
		c->f13.pNext = next;
		next = &c->f13;
	}
	if (api >= VK_API_VERSION_1_2) {
		c->f12.bufferDeviceAddress = want->bufferDeviceAddress;
		if (want->descriptorIndexing) {
			c->f12.descriptorIndexing = VK_TRUE;
			c->f12.shaderSampledImageArrayNonUniformIndexing = VK_TRUE;
			c->f12.runtimeDescriptorArray = VK_TRUE;
			c->f12.descriptorBindingPartiallyBound = VK_TRUE;
		}
		c->f12.pNext = next;
		next = &c->f12;
	}
	c->head = next;
	return c;
}

static VkMemoryAllocateFlagsInfo vkfDeviceAddressFlags = {
	VK_STRUCTURE_TYPE_MEMORY_ALLOCATE_FLAGS_INFO,
	NULL,
	VK_MEMORY_ALLOCATE_DEVICE_ADDRESS_BIT,
	0,
};

static void* vkfDeviceAddressFlagsPtr(void) {
	return &vkfDeviceAddressFlags;
}

typedef struct {
	PFN_vkCmdBeginRendering beginRendering;
	PFN_vkCmdEndRendering endRendering;
	PFN_vkGetBufferDeviceAddress bufferAddress;
} vkfDeviceFuncs;

static void vkfLoadDeviceFuncs(VkDevice dev, vkfDeviceFuncs* f) {
	f->beginRendering = (PFN_vkCmdBeginRendering)vkGetDeviceProcAddr(dev, "vkCmdBeginRendering");
	if (f->beginRendering == NULL) {
		f->beginRendering = (PFN_vkCmdBeginRendering)vkGetDeviceProcAddr(dev, "vkCmdBeginRenderingKHR");
	}
	f->endRendering = (PFN_vkCmdEndRendering)vkGetDeviceProcAddr(dev, "vkCmdEndRendering");
	if (f->endRendering == NULL) {
		f->endRendering = (PFN_vkCmdEndRendering)vkGetDeviceProcAddr(dev, "vkCmdEndRenderingKHR");
	}
	f->bufferAddress = (PFN_vkGetBufferDeviceAddress)vkGetDeviceProcAddr(dev, "vkGetBufferDeviceAddress");
	if (f->bufferAddress == NULL) {
		f->bufferAddress = (PFN_vkGetBufferDeviceAddress)vkGetDeviceProcAddr(dev, "vkGetBufferDeviceAddressKHR");
	}
}

static int vkfCmdBeginRendering(const vkfDeviceFuncs* f, VkCommandBuffer cb, VkImageView view,
	uint32_t width, uint32_t height, int clear, float r, float g, float b, float a) {
	VkRenderingAttachmentInfo color;
	VkRenderingInfo info;

	if (f->beginRendering == NULL) {
		return 0;
	}
	memset(&color, 0, sizeof(color));
	color.sType = VK_STRUCTURE_TYPE_RENDERING_ATTACHMENT_INFO;
	color.imageView = view;
	color.imageLayout = VK_IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL;
	color.loadOp = clear ? VK_ATTACHMENT_LOAD_OP_CLEAR : VK_ATTACHMENT_LOAD_OP_LOAD;
	color.storeOp = VK_ATTACHMENT_STORE_OP_STORE;
	color.clearValue.color.float32[0] = r;
	color.clearValue.color.float32[1] = g;
	color.clearValue.color.float32[2] = b;
	color.clearValue.color.float32[3] = a;

	memset(&info, 0, sizeof(info));
	info.sType = VK_STRUCTURE_TYPE_RENDERING_INFO;
	info.renderArea.extent.width = width;
	info.renderArea.extent.height = height;
	info.layerCount = 1;
	info.colorAttachmentCount = 1;
	info.pColorAttachments = &color;
	f->beginRendering(cb, &info);
	return 1;
}

static int vkfCmdEndRendering(const vkfDeviceFuncs* f, VkCommandBuffer cb) {
	if (f->endRendering == NULL) {
		return 0;
	}
	f->endRendering(cb);
	return 1;
}

static VkDeviceAddress vkfBufferAddress(const vkfDeviceFuncs* f, VkDevice dev, VkBuffer buf) {
	VkBufferDeviceAddressInfo info;
	if (f->bufferAddress == NULL) {
		return 0;
	}
	memset(&info, 0, sizeof(info));
	info.sType = VK_STRUCTURE_TYPE_BUFFER_DEVICE_ADDRESS_INFO;
	info.buffer = buf;
	return f->bufferAddress(dev, &info);
}
*/
import "C"

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/vkframe/driver"
)

func bool32(b bool) C.VkBool32 {
	if b {
		return C.VK_TRUE
	}
	return C.VK_FALSE
}

func toCFeatures(f driver.Features) C.vkfFeatures {
	return C.vkfFeatures{
		synchronization2:    bool32(f.Synchronization2),
		dynamicRendering:    bool32(f.DynamicRendering),
		bufferDeviceAddress: bool32(f.BufferDeviceAddress),
		descriptorIndexing:  bool32(f.DescriptorIndexing),
		multiDrawIndirect:   bool32(f.MultiDrawIndirect),
		fillModeNonSolid:    bool32(f.FillModeNonSolid),
		samplerAnisotropy:   bool32(f.SamplerAnisotropy),
		meshShader:          bool32(f.MeshShader),
	}
}

func fromCFeatures(c *C.vkfFeatures) driver.Features {
	return driver.Features{
		Synchronization2:    c.synchronization2 != C.VK_FALSE,
		DynamicRendering:    c.dynamicRendering != C.VK_FALSE,
		BufferDeviceAddress: c.bufferDeviceAddress != C.VK_FALSE,
		DescriptorIndexing:  c.descriptorIndexing != C.VK_FALSE,
		MultiDrawIndirect:   c.multiDrawIndirect != C.VK_FALSE,
		FillModeNonSolid:    c.fillModeNonSolid != C.VK_FALSE,
		SamplerAnisotropy:   c.samplerAnisotropy != C.VK_FALSE,
		MeshShader:          c.meshShader != C.VK_FALSE,
	}
}

// queryFeatures reads the optional features of gpu. Structures newer than
// the device's API version, and the mesh shader structure when the
// extension is absent, are left out of the query chain.
func queryFeatures(gpu vk.PhysicalDevice, api driver.Version, withMesh bool) driver.Features {
	var out C.vkfFeatures
	mesh := C.int(0)
	if withMesh {
		mesh = 1
	}
	C.vkfQueryFeatures(C.VkPhysicalDevice(unsafe.Pointer(gpu)), C.uint32_t(api), mesh, &out)
	return fromCFeatures(&out)
}

// featureChain is a C allocated pNext chain enabling the requested 1.2 and
// 1.3 features at device creation. It must be freed after vkCreateDevice.
type featureChain struct {
	c *C.vkfFeatureChain
}

func newFeatureChain(want driver.Features, api driver.Version) featureChain {
	cf := toCFeatures(want)
	return featureChain{c: C.vkfNewFeatureChain(&cf, C.uint32_t(api))}
}

// next returns the value for DeviceCreateInfo.PNext.
func (fc featureChain) next() unsafe.Pointer {
	if fc.c == nil {
		return nil
	}
	return fc.c.head
}

func (fc featureChain) free() {
	if fc.c != nil {
		C.free(unsafe.Pointer(fc.c))
	}
}

// deviceAddressFlags is the pNext for allocations backing buffers created
// with BufferUsageDeviceAddress.
func deviceAddressFlags() unsafe.Pointer {
	return C.vkfDeviceAddressFlagsPtr()
}

// deviceFuncs holds the device level entry points vulkan-go does not bind.
type deviceFuncs struct {
	f *C.vkfDeviceFuncs
}

func loadDeviceFuncs(dev vk.Device) deviceFuncs {
	f := (*C.vkfDeviceFuncs)(C.calloc(1, C.sizeof_vkfDeviceFuncs))
	C.vkfLoadDeviceFuncs(C.VkDevice(unsafe.Pointer(dev)), f)
	return deviceFuncs{f: f}
}

func (d deviceFuncs) hasRendering() bool {
	return d.f != nil && d.f.beginRendering != nil && d.f.endRendering != nil
}

func (d deviceFuncs) beginRendering(cb vk.CommandBuffer, view vk.ImageView, info driver.RenderingInfo) bool {
	if d.f == nil {
		return false
	}
	clear := C.int(0)
	if info.Clear {
		clear = 1
	}
	c := info.ClearColor
	return C.vkfCmdBeginRendering(d.f, C.VkCommandBuffer(unsafe.Pointer(cb)), C.VkImageView(unsafe.Pointer(view)),
		C.uint32_t(info.Extent.Width), C.uint32_t(info.Extent.Height), clear,
		C.float(c[0]), C.float(c[1]), C.float(c[2]), C.float(c[3])) != 0
}

func (d deviceFuncs) endRendering(cb vk.CommandBuffer) bool {
	if d.f == nil {
		return false
	}
	return C.vkfCmdEndRendering(d.f, C.VkCommandBuffer(unsafe.Pointer(cb))) != 0
}

func (d deviceFuncs) bufferAddress(dev vk.Device, buf vk.Buffer) driver.DeviceAddress {
	if d.f == nil {
		return 0
	}
	return driver.DeviceAddress(C.vkfBufferAddress(d.f, C.VkDevice(unsafe.Pointer(dev)), C.VkBuffer(unsafe.Pointer(buf))))
}

func (d deviceFuncs) free() {
	if d.f != nil {
		C.free(unsafe.Pointer(d.f))
	}
}
