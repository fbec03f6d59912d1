package vulkan

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/vkframe/driver"
)

type swapchain struct {
	sc     vk.Swapchain
	images []driver.Image
}

func (d *Device) SurfaceCapabilities() (driver.SurfaceCapabilities, error) {
	caps, err := d.surfaceCapabilities()
	if err != nil {
		return driver.SurfaceCapabilities{}, err
	}
	return driver.SurfaceCapabilities{
		MinImageCount:  caps.MinImageCount,
		MaxImageCount:  caps.MaxImageCount,
		CurrentExtent:  extent(caps.CurrentExtent),
		MinImageExtent: extent(caps.MinImageExtent),
		MaxImageExtent: extent(caps.MaxImageExtent),
	}, nil
}

func (d *Device) surfaceCapabilities() (vk.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	ret := vk.GetPhysicalDeviceSurfaceCapabilities(d.gpu, d.inst.surface, &caps)
	if isError(ret) {
		return caps, newError("vkGetPhysicalDeviceSurfaceCapabilitiesKHR", ret)
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return caps, nil
}

func extent(e vk.Extent2D) driver.Extent2D {
	return driver.Extent2D{Width: e.Width, Height: e.Height}
}

func (d *Device) SurfaceFormats() ([]driver.SurfaceFormat, error) {
	var formatCount uint32
	ret := vk.GetPhysicalDeviceSurfaceFormats(d.gpu, d.inst.surface, &formatCount, nil)
	if isError(ret) {
		return nil, newError("vkGetPhysicalDeviceSurfaceFormatsKHR", ret)
	}
	formats := make([]vk.SurfaceFormat, formatCount)
	ret = vk.GetPhysicalDeviceSurfaceFormats(d.gpu, d.inst.surface, &formatCount, formats)
	if isError(ret) {
		return nil, newError("vkGetPhysicalDeviceSurfaceFormatsKHR", ret)
	}
	out := make([]driver.SurfaceFormat, 0, formatCount)
	for _, f := range formats[:formatCount] {
		f.Deref()
		out = append(out, driver.SurfaceFormat{
			Format:     driver.Format(f.Format),
			ColorSpace: driver.ColorSpace(f.ColorSpace),
		})
	}
	return out, nil
}

func (d *Device) SurfacePresentModes() ([]driver.PresentMode, error) {
	var count uint32
	ret := vk.GetPhysicalDeviceSurfacePresentModes(d.gpu, d.inst.surface, &count, nil)
	if isError(ret) {
		return nil, newError("vkGetPhysicalDeviceSurfacePresentModesKHR", ret)
	}
	modes := make([]vk.PresentMode, count)
	ret = vk.GetPhysicalDeviceSurfacePresentModes(d.gpu, d.inst.surface, &count, modes)
	if isError(ret) {
		return nil, newError("vkGetPhysicalDeviceSurfacePresentModesKHR", ret)
	}
	out := make([]driver.PresentMode, count)
	for i, m := range modes[:count] {
		out[i] = driver.PresentMode(m)
	}
	return out, nil
}

// compositeAlpha picks the first supported mode, opaque preferred.
func compositeAlpha(supported vk.CompositeAlphaFlags) vk.CompositeAlphaFlagBits {
	for _, bit := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if supported&vk.CompositeAlphaFlags(bit) != 0 {
			return bit
		}
	}
	return vk.CompositeAlphaOpaqueBit
}

func preTransform(caps vk.SurfaceCapabilities) vk.SurfaceTransformFlagBits {
	if vk.SurfaceTransformFlagBits(caps.SupportedTransforms)&vk.SurfaceTransformIdentityBit != 0 {
		return vk.SurfaceTransformIdentityBit
	}
	return caps.CurrentTransform
}

// CreateSwapchain implements driver.SwapchainDevice. Images are created for
// exclusive use; moving them between queue families is up to the caller.
func (d *Device) CreateSwapchain(desc driver.SwapchainDesc) (driver.Swapchain, error) {
	caps, err := d.surfaceCapabilities()
	if err != nil {
		return 0, err
	}
	var old vk.Swapchain
	if prev, ok := d.swapchains.get(desc.Old); ok {
		old = prev.sc
	}
	var sc vk.Swapchain
	ret := vk.CreateSwapchain(d.device, &vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         d.inst.surface,
		MinImageCount:   desc.MinImageCount,
		ImageFormat:     vk.Format(desc.Format),
		ImageColorSpace: vk.ColorSpace(desc.ColorSpace),
		ImageExtent: vk.Extent2D{
			Width:  desc.Extent.Width,
			Height: desc.Extent.Height,
		},
		ImageUsage: vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit |
			vk.ImageUsageTransferDstBit),
		PreTransform:     preTransform(caps),
		CompositeAlpha:   compositeAlpha(caps.SupportedCompositeAlpha),
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
		PresentMode:      vk.PresentMode(desc.PresentMode),
		OldSwapchain:     old,
		Clipped:          vk.True,
	}, nil, &sc)
	if isError(ret) {
		return 0, newError("vkCreateSwapchainKHR", ret)
	}
	return d.swapchains.add(&swapchain{sc: sc}), nil
}

func (d *Device) DestroySwapchain(h driver.Swapchain) {
	s, ok := d.swapchains.remove(h)
	if !ok {
		return
	}
	for _, img := range s.images {
		d.images.remove(img)
	}
	vk.DestroySwapchain(d.device, s.sc, nil)
}

// SwapchainImages implements driver.SwapchainDevice. Repeated calls
// return the same handles.
func (d *Device) SwapchainImages(h driver.Swapchain) ([]driver.Image, error) {
	s, ok := d.swapchains.get(h)
	if !ok {
		return nil, errors.Errorf("vulkan: unknown swapchain %d", h)
	}
	if s.images != nil {
		return s.images, nil
	}
	var imageCount uint32
	ret := vk.GetSwapchainImages(d.device, s.sc, &imageCount, nil)
	if isError(ret) {
		return nil, newError("vkGetSwapchainImagesKHR", ret)
	}
	images := make([]vk.Image, imageCount)
	ret = vk.GetSwapchainImages(d.device, s.sc, &imageCount, images)
	if isError(ret) {
		return nil, newError("vkGetSwapchainImagesKHR", ret)
	}
	s.images = make([]driver.Image, imageCount)
	for i, img := range images[:imageCount] {
		s.images[i] = d.images.add(&image{img: img})
	}
	return s.images, nil
}

// AcquireNextImage implements driver.SwapchainDevice.
func (d *Device) AcquireNextImage(h driver.Swapchain, signal driver.Semaphore, timeout uint64) (uint32, error) {
	s, ok := d.swapchains.get(h)
	if !ok {
		return 0, errors.Errorf("vulkan: unknown swapchain %d", h)
	}
	var idx uint32
	var fence vk.Fence
	ret := vk.AcquireNextImage(d.device, s.sc, timeout, d.semaphores.lookup(signal), fence, &idx)
	switch int32(ret) {
	case resultSuccess:
		return idx, nil
	case resultSuboptimal:
		return idx, resultError("vkAcquireNextImageKHR", resultSuboptimal)
	}
	return 0, newError("vkAcquireNextImageKHR", ret)
}

// Present implements driver.SwapchainDevice.
func (d *Device) Present(q driver.Queue, info driver.PresentInfo) error {
	queue, ok := d.queues.get(q)
	if !ok {
		return errors.Errorf("vulkan: unknown queue %d", q)
	}
	s, ok := d.swapchains.get(info.Swapchain)
	if !ok {
		return errors.Errorf("vulkan: unknown swapchain %d", info.Swapchain)
	}
	ret := vk.QueuePresent(queue, &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(info.WaitSemaphores)),
		PWaitSemaphores:    d.semaphoreList(info.WaitSemaphores),
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.sc},
		PImageIndices:      []uint32{info.ImageIndex},
	})
	return newError("vkQueuePresentKHR", ret)
}

func (d *Device) CreateImageView(h driver.Image, format driver.Format, aspect driver.Aspect) (driver.ImageView, error) {
	im, ok := d.images.get(h)
	if !ok {
		return 0, errors.Errorf("vulkan: unknown image %d", h)
	}
	var view vk.ImageView
	ret := vk.CreateImageView(d.device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    im.img,
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleR,
			G: vk.ComponentSwizzleG,
			B: vk.ComponentSwizzleB,
			A: vk.ComponentSwizzleA,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(aspect),
			LevelCount: 1,
			LayerCount: 1,
		},
	}, nil, &view)
	if isError(ret) {
		return 0, newError("vkCreateImageView", ret)
	}
	return d.views.add(view), nil
}

func (d *Device) DestroyImageView(v driver.ImageView) {
	if view, ok := d.views.remove(v); ok {
		vk.DestroyImageView(d.device, view, nil)
	}
}
