package vulkan

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/vkframe/driver"
)

type commandPool struct {
	pool    vk.CommandPool
	buffers []driver.CommandBuffer
}

func (d *Device) CreateCommandPool(family uint32, flags driver.PoolFlags) (driver.CommandPool, error) {
	var pool vk.CommandPool
	ret := vk.CreateCommandPool(d.device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(flags),
		QueueFamilyIndex: family,
	}, nil, &pool)
	if isError(ret) {
		return 0, newError("vkCreateCommandPool", ret)
	}
	return d.pools.add(&commandPool{pool: pool}), nil
}

// DestroyCommandPool frees the pool together with its command buffers.
func (d *Device) DestroyCommandPool(p driver.CommandPool) {
	cp, ok := d.pools.remove(p)
	if !ok {
		return
	}
	for _, cb := range cp.buffers {
		d.commands.remove(cb)
	}
	vk.DestroyCommandPool(d.device, cp.pool, nil)
}

func (d *Device) ResetCommandPool(p driver.CommandPool) error {
	cp, ok := d.pools.get(p)
	if !ok {
		return errors.Errorf("vulkan: unknown command pool %d", p)
	}
	return newError("vkResetCommandPool", vk.ResetCommandPool(d.device, cp.pool, 0))
}

func (d *Device) AllocateCommandBuffers(p driver.CommandPool, n int) ([]driver.CommandBuffer, error) {
	cp, ok := d.pools.get(p)
	if !ok {
		return nil, errors.Errorf("vulkan: unknown command pool %d", p)
	}
	native := make([]vk.CommandBuffer, n)
	ret := vk.AllocateCommandBuffers(d.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        cp.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(n),
	}, native)
	if isError(ret) {
		return nil, newError("vkAllocateCommandBuffers", ret)
	}
	out := make([]driver.CommandBuffer, n)
	for i, cb := range native {
		out[i] = d.commands.add(cb)
	}
	cp.buffers = append(cp.buffers, out...)
	return out, nil
}

func (d *Device) ResetCommandBuffer(cb driver.CommandBuffer) error {
	return newError("vkResetCommandBuffer", vk.ResetCommandBuffer(d.commands.lookup(cb), 0))
}

func (d *Device) BeginCommandBuffer(cb driver.CommandBuffer, usage driver.CommandUsage) error {
	ret := vk.BeginCommandBuffer(d.commands.lookup(cb), &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(usage),
	})
	return newError("vkBeginCommandBuffer", ret)
}

func (d *Device) EndCommandBuffer(cb driver.CommandBuffer) error {
	return newError("vkEndCommandBuffer", vk.EndCommandBuffer(d.commands.lookup(cb)))
}

func (d *Device) imageBarrier(b driver.ImageBarrier) vk.ImageMemoryBarrier {
	var img vk.Image
	if im, ok := d.images.get(b.Image); ok {
		img = im.img
	}
	aspect := b.Aspect
	if aspect == 0 {
		aspect = driver.AspectColor
	}
	return vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(b.SrcAccess),
		DstAccessMask:       vk.AccessFlags(b.DstAccess),
		OldLayout:           vk.ImageLayout(b.OldLayout),
		NewLayout:           vk.ImageLayout(b.NewLayout),
		SrcQueueFamilyIndex: b.SrcFamily,
		DstQueueFamilyIndex: b.DstFamily,
		Image:               img,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(aspect),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
}

// CmdImageBarrier records one pipeline barrier per image barrier, since
// stage masks are per call.
func (d *Device) CmdImageBarrier(cb driver.CommandBuffer, barriers ...driver.ImageBarrier) {
	cmd := d.commands.lookup(cb)
	for _, b := range barriers {
		vk.CmdPipelineBarrier(cmd,
			vk.PipelineStageFlags(b.SrcStage),
			vk.PipelineStageFlags(b.DstStage),
			0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{d.imageBarrier(b)})
	}
}

func (d *Device) CmdCopyBuffer(cb driver.CommandBuffer, src, dst driver.Buffer, regions ...driver.BufferCopy) {
	if len(regions) == 0 {
		return
	}
	copies := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(d.commands.lookup(cb), d.buffers.lookup(src).handle(), d.buffers.lookup(dst).handle(),
		uint32(len(copies)), copies)
}

func (d *Device) CmdCopyBufferToImage(cb driver.CommandBuffer, src driver.Buffer, dst driver.Image, region driver.BufferImageCopy) {
	aspect := region.Aspect
	if aspect == 0 {
		aspect = driver.AspectColor
	}
	vk.CmdCopyBufferToImage(d.commands.lookup(cb), d.buffers.lookup(src).handle(), d.images.lookup(dst).handle(),
		vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
			BufferOffset: vk.DeviceSize(region.BufferOffset),
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(aspect),
				LayerCount: 1,
			},
			ImageExtent: vk.Extent3D{
				Width:  region.Width,
				Height: region.Height,
				Depth:  1,
			},
		}})
}

func (d *Device) CmdBeginRendering(cb driver.CommandBuffer, info driver.RenderingInfo) {
	if !d.funcs.beginRendering(d.commands.lookup(cb), d.views.lookup(info.View), info) {
		d.inst.log.Println("vulkan warning: vkCmdBeginRendering not available")
	}
}

func (d *Device) CmdEndRendering(cb driver.CommandBuffer) {
	if !d.funcs.endRendering(d.commands.lookup(cb)) {
		d.inst.log.Println("vulkan warning: vkCmdEndRendering not available")
	}
}

func (d *Device) CmdBindPipeline(cb driver.CommandBuffer, p driver.Pipeline) {
	vk.CmdBindPipeline(d.commands.lookup(cb), vk.PipelineBindPointGraphics, d.pipelines.lookup(p))
}

func (d *Device) CmdPushConstants(cb driver.CommandBuffer, layout driver.PipelineLayout, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	l := d.layouts.lookup(layout)
	vk.CmdPushConstants(d.commands.lookup(cb), l.layout, l.stages, offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (d *Device) CmdDraw(cb driver.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(d.commands.lookup(cb), vertexCount, instanceCount, firstVertex, firstInstance)
}

// Submit implements driver.CommandDevice.
func (d *Device) Submit(q driver.Queue, batches []driver.SubmitInfo, fence driver.Fence) error {
	queue, ok := d.queues.get(q)
	if !ok {
		return errors.Errorf("vulkan: unknown queue %d", q)
	}
	submitInfos := make([]vk.SubmitInfo, len(batches))
	for i, b := range batches {
		cmds := make([]vk.CommandBuffer, len(b.CommandBuffers))
		for j, cb := range b.CommandBuffers {
			cmds[j] = d.commands.lookup(cb)
		}
		var stages []vk.PipelineStageFlags
		for _, s := range b.WaitStages {
			stages = append(stages, vk.PipelineStageFlags(s))
		}
		submitInfos[i] = vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   uint32(len(b.WaitSemaphores)),
			PWaitSemaphores:      d.semaphoreList(b.WaitSemaphores),
			PWaitDstStageMask:    stages,
			CommandBufferCount:   uint32(len(cmds)),
			PCommandBuffers:      cmds,
			SignalSemaphoreCount: uint32(len(b.SignalSemaphores)),
			PSignalSemaphores:    d.semaphoreList(b.SignalSemaphores),
		}
	}
	var nativeFence vk.Fence
	if fence != 0 {
		nativeFence = d.fences.lookup(fence)
	}
	ret := vk.QueueSubmit(queue, uint32(len(submitInfos)), submitInfos, nativeFence)
	return newError("vkQueueSubmit", ret)
}
