package vkframe

import (
	"github.com/pkg/errors"

	"github.com/andewx/vkframe/driver"
)

// TransferChannel is a blocking one-shot submission path on the graphics
// queue, meant for resource creation outside the frame loop.
type TransferChannel struct {
	ctx   *DeviceContext
	pool  driver.CommandPool
	cb    driver.CommandBuffer
	fence driver.Fence
}

func NewTransferChannel(ctx *DeviceContext) (*TransferChannel, error) {
	dev := ctx.Device
	tc := &TransferChannel{ctx: ctx}
	var err error
	if tc.pool, err = dev.CreateCommandPool(ctx.Plan.GraphicsFamily, driver.PoolTransient); err != nil {
		return nil, errors.Wrap(err, "create transfer command pool")
	}
	cbs, err := dev.AllocateCommandBuffers(tc.pool, 1)
	if err != nil {
		tc.Destroy()
		return nil, errors.Wrap(err, "allocate transfer command buffer")
	}
	tc.cb = cbs[0]
	if tc.fence, err = dev.CreateFence(false); err != nil {
		tc.Destroy()
		return nil, errors.Wrap(err, "create transfer fence")
	}
	return tc, nil
}

// Submit records fn into the channel's command buffer, submits it and blocks
// until the device finished executing it. Staging buffers used by fn may
// be destroyed once Submit returns.
func (tc *TransferChannel) Submit(fn func(r *Recorder) error) error {
	dev := tc.ctx.Device
	if err := dev.ResetCommandPool(tc.pool); err != nil {
		return errors.Wrap(err, "reset transfer pool")
	}
	rec := &Recorder{dev: dev, cb: tc.cb, plan: tc.ctx.Plan}
	if err := rec.Begin(driver.UsageOneTimeSubmit); err != nil {
		return err
	}
	if err := fn(rec); err != nil {
		// Close the buffer so the next reset finds it in a valid state.
		_ = rec.End()
		return err
	}
	if err := rec.End(); err != nil {
		return err
	}
	err := dev.Submit(tc.ctx.GraphicsQueue, []driver.SubmitInfo{{
		CommandBuffers: []driver.CommandBuffer{tc.cb},
	}}, tc.fence)
	if err != nil {
		return errors.Wrap(err, "submit transfer")
	}
	if err := dev.WaitFences([]driver.Fence{tc.fence}, driver.Infinite); err != nil {
		return errors.Wrap(err, "wait transfer fence")
	}
	return errors.Wrap(dev.ResetFences(tc.fence), "reset transfer fence")
}

// staging creates a host-visible buffer holding data.
func (tc *TransferChannel) staging(data []byte) (driver.Buffer, error) {
	alloc := tc.ctx.Allocator
	buf, info, err := alloc.CreateBuffer(driver.BufferDesc{
		Size:   uint64(len(data)),
		Usage:  driver.BufferUsageTransferSrc,
		Memory: driver.MemoryStaging,
	})
	if err != nil {
		return 0, errors.Wrap(err, "create staging buffer")
	}
	if err := writeMapped(tc.ctx.Device, buf, info, 0, data); err != nil {
		alloc.DestroyBuffer(buf)
		return 0, err
	}
	return buf, nil
}

// UploadBuffer copies data into dst at offset through a staging buffer.
func (tc *TransferChannel) UploadBuffer(dst driver.Buffer, offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	src, err := tc.staging(data)
	if err != nil {
		return err
	}
	defer tc.ctx.Allocator.DestroyBuffer(src)
	return tc.Submit(func(r *Recorder) error {
		r.CopyBuffer(src, dst, driver.BufferCopy{DstOffset: offset, Size: uint64(len(data))})
		return nil
	})
}

// UploadImage fills a width x height image of the given format from tightly
// packed pixels and leaves it ready for sampling. pixels must hold exactly
// one full image.
func (tc *TransferChannel) UploadImage(dst driver.Image, format driver.Format, width, height uint32, pixels []byte) error {
	texel := uint64(format.Size())
	if texel == 0 {
		return errors.Errorf("upload image: unsupported format %d", format)
	}
	want := uint64(width) * uint64(height) * texel
	if want == 0 || uint64(len(pixels)) != want {
		return errors.Wrapf(ErrOutOfRange, "upload image: %d bytes for %dx%d, want %d", len(pixels), width, height, want)
	}
	src, err := tc.staging(pixels)
	if err != nil {
		return err
	}
	defer tc.ctx.Allocator.DestroyBuffer(src)
	return tc.Submit(func(r *Recorder) error {
		r.Barrier(driver.ImageBarrier{
			Image:     dst,
			Aspect:    driver.AspectColor,
			OldLayout: driver.LayoutUndefined,
			NewLayout: driver.LayoutTransferDstOptimal,
			SrcStage:  driver.StageTopOfPipe,
			DstStage:  driver.StageTransfer,
			DstAccess: driver.AccessTransferWrite,
			SrcFamily: driver.QueueFamilyIgnored,
			DstFamily: driver.QueueFamilyIgnored,
		})
		r.CopyBufferToImage(src, dst, driver.BufferImageCopy{
			Aspect: driver.AspectColor,
			Width:  width,
			Height: height,
		})
		r.Barrier(driver.ImageBarrier{
			Image:     dst,
			Aspect:    driver.AspectColor,
			OldLayout: driver.LayoutTransferDstOptimal,
			NewLayout: driver.LayoutShaderReadOnlyOptimal,
			SrcStage:  driver.StageTransfer,
			SrcAccess: driver.AccessTransferWrite,
			DstStage:  driver.StageFragmentShader,
			DstAccess: driver.AccessShaderRead,
			SrcFamily: driver.QueueFamilyIgnored,
			DstFamily: driver.QueueFamilyIgnored,
		})
		return nil
	})
}

func (tc *TransferChannel) Destroy() {
	dev := tc.ctx.Device
	if tc.fence != 0 {
		dev.DestroyFence(tc.fence)
		tc.fence = 0
	}
	if tc.pool != 0 {
		dev.DestroyCommandPool(tc.pool)
		tc.pool = 0
	}
}
