package vkframe

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/andewx/vkframe/driver"
)

// Recorder records commands into one command buffer.
type Recorder struct {
	dev  driver.CommandDevice
	cb   driver.CommandBuffer
	plan QueuePlan
}

// CommandBuffer returns the command buffer being recorded.
func (r *Recorder) CommandBuffer() driver.CommandBuffer { return r.cb }

func (r *Recorder) Begin(usage driver.CommandUsage) error {
	return errors.Wrap(r.dev.BeginCommandBuffer(r.cb, usage), "begin command buffer")
}

func (r *Recorder) End() error {
	return errors.Wrap(r.dev.EndCommandBuffer(r.cb), "end command buffer")
}

// Reset discards everything recorded so far. The command buffer must come
// from a pool created with PoolResetCommandBuffer.
func (r *Recorder) Reset() error {
	return errors.Wrap(r.dev.ResetCommandBuffer(r.cb), "reset command buffer")
}

func (r *Recorder) Barrier(barriers ...driver.ImageBarrier) {
	r.dev.CmdImageBarrier(r.cb, barriers...)
}

// TransitionToRender discards the image's content and makes it a color
// attachment.
func (r *Recorder) TransitionToRender(img driver.Image) {
	r.Barrier(driver.ImageBarrier{
		Image:     img,
		Aspect:    driver.AspectColor,
		OldLayout: driver.LayoutUndefined,
		NewLayout: driver.LayoutColorAttachmentOptimal,
		SrcStage:  driver.StageColorAttachmentOutput,
		SrcAccess: driver.AccessNone,
		DstStage:  driver.StageColorAttachmentOutput,
		DstAccess: driver.AccessColorAttachmentWrite,
		SrcFamily: driver.QueueFamilyIgnored,
		DstFamily: driver.QueueFamilyIgnored,
	})
}

// TransitionToPresent moves a rendered image to the present layout. With
// separate queue families this is the release half of the ownership
// transfer; the present queue performs the matching acquire.
func (r *Recorder) TransitionToPresent(img driver.Image) {
	r.Barrier(releaseForPresent(img, r.plan))
}

func (r *Recorder) BeginRendering(info driver.RenderingInfo) {
	r.dev.CmdBeginRendering(r.cb, info)
}

func (r *Recorder) EndRendering() {
	r.dev.CmdEndRendering(r.cb)
}

func (r *Recorder) BindPipeline(p driver.Pipeline) {
	r.dev.CmdBindPipeline(r.cb, p)
}

func (r *Recorder) PushConstants(layout driver.PipelineLayout, offset uint32, data []byte) {
	r.dev.CmdPushConstants(r.cb, layout, offset, data)
}

// PushAddress hands a device address to shaders as a 64-bit push constant.
func (r *Recorder) PushAddress(layout driver.PipelineLayout, offset uint32, addr driver.DeviceAddress) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(addr))
	r.PushConstants(layout, offset, buf[:])
}

func (r *Recorder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	r.dev.CmdDraw(r.cb, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (r *Recorder) CopyBuffer(src, dst driver.Buffer, regions ...driver.BufferCopy) {
	r.dev.CmdCopyBuffer(r.cb, src, dst, regions...)
}

func (r *Recorder) CopyBufferToImage(src driver.Buffer, dst driver.Image, region driver.BufferImageCopy) {
	r.dev.CmdCopyBufferToImage(r.cb, src, dst, region)
}

// BeginRendering transitions the frame's image to a color attachment and
// opens a rendering scope over the whole image cleared to clear.
func (f *Frame) BeginRendering(clear [4]float32) {
	f.rec.TransitionToRender(f.Image)
	f.rec.BeginRendering(driver.RenderingInfo{
		View:       f.View,
		Extent:     f.Extent,
		Clear:      true,
		ClearColor: clear,
	})
}

// EndRendering closes the rendering scope and readies the image for
// presentation.
func (f *Frame) EndRendering() {
	f.rec.EndRendering()
	f.rec.TransitionToPresent(f.Image)
}

// recordBlank replaces the frame's commands with a bare transition of the
// image to the present layout, so the frame can still be submitted and
// presented after a failed recording.
func (f *Frame) recordBlank() error {
	rec := f.rec
	if err := rec.Reset(); err != nil {
		return err
	}
	if err := rec.Begin(driver.UsageOneTimeSubmit); err != nil {
		return err
	}
	rec.TransitionToRender(f.Image)
	rec.TransitionToPresent(f.Image)
	return rec.End()
}
