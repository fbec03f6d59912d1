package vkframe

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/andewx/vkframe/driver"
)

// FramesInFlight is the number of frame slots. The CPU never gets more than
// this many frames ahead of the GPU.
const FramesInFlight = 2

// SlotState is the position of a frame slot in the frame cycle.
type SlotState int

const (
	SlotIdle SlotState = iota
	SlotAcquiring
	SlotRecording
	SlotSubmitted
	SlotPresenting
)

func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "idle"
	case SlotAcquiring:
		return "acquiring"
	case SlotRecording:
		return "recording"
	case SlotSubmitted:
		return "submitted"
	case SlotPresenting:
		return "presenting"
	}
	return fmt.Sprintf("SlotState(%d)", int(s))
}

// FrameSlot holds the synchronization objects of one frame in flight.
type FrameSlot struct {
	ImageAvailable driver.Semaphore
	RenderFinished driver.Semaphore
	// PresentReady is signaled by the ownership transfer on the present
	// queue. Zero when graphics and present share a family.
	PresentReady driver.Semaphore
	// Fence is signaled when the slot's graphics submission completed.
	Fence driver.Fence

	state SlotState
}

// Frame is one acquired swapchain image being recorded.
type Frame struct {
	// Slot is the frame slot index in [0, FramesInFlight).
	Slot int
	// ImageIndex is the swapchain image index. It differs from Slot
	// whenever the swapchain does not have exactly FramesInFlight images.
	ImageIndex uint32
	// Parity selects the copy of double-buffered resources this frame
	// reads and writes.
	Parity int
	// Number is the count of frames submitted before this one.
	Number uint64
	Extent driver.Extent2D
	Format driver.Format
	Image  driver.Image
	View   driver.ImageView

	rec        *Recorder
	generation int
	done       bool
}

// CommandBuffer returns the command buffer recorded for this frame.
func (f *Frame) CommandBuffer() driver.CommandBuffer { return f.rec.cb }

// Recorder returns a recorder bound to the frame's command buffer.
func (f *Frame) Recorder() *Recorder { return f.rec }

// Address returns the device address of r's copy for this frame.
func (f *Frame) Address(r *DoubleBuffered) driver.DeviceAddress {
	return r.Address(f.Parity)
}

// FrameSynchronizer runs the acquire, submit and present cycle over
// FramesInFlight slots.
type FrameSynchronizer struct {
	ctx *DeviceContext
	sc  *SwapchainManager

	slots     [FramesInFlight]FrameSlot
	slot      int
	submitted uint64
	presented uint64
	recreate  bool
	current   *Frame
}

func NewFrameSynchronizer(ctx *DeviceContext, sc *SwapchainManager) (*FrameSynchronizer, error) {
	fs := &FrameSynchronizer{ctx: ctx, sc: sc}
	dev := ctx.Device
	for i := range fs.slots {
		s := &fs.slots[i]
		var err error
		if s.ImageAvailable, err = dev.CreateSemaphore(); err != nil {
			fs.Destroy()
			return nil, errors.Wrap(err, "create image available semaphore")
		}
		if s.RenderFinished, err = dev.CreateSemaphore(); err != nil {
			fs.Destroy()
			return nil, errors.Wrap(err, "create render finished semaphore")
		}
		if !ctx.Unified() {
			if s.PresentReady, err = dev.CreateSemaphore(); err != nil {
				fs.Destroy()
				return nil, errors.Wrap(err, "create present ready semaphore")
			}
		}
		// Created signaled so the first wait on each slot returns.
		if s.Fence, err = dev.CreateFence(true); err != nil {
			fs.Destroy()
			return nil, errors.Wrap(err, "create frame fence")
		}
	}
	return fs, nil
}

// Acquire waits for the current slot to retire and acquires the next
// swapchain image. It returns ErrNoFrame when the swapchain was out of date
// and had to be recreated.
func (fs *FrameSynchronizer) Acquire() (*Frame, error) {
	s := &fs.slots[fs.slot]
	if s.state != SlotIdle {
		return nil, errors.Wrapf(ErrFrameState, "acquire on slot %d in state %s", fs.slot, s.state)
	}
	dev := fs.ctx.Device
	s.state = SlotAcquiring

	if err := dev.WaitFences([]driver.Fence{s.Fence}, driver.Infinite); err != nil {
		s.state = SlotIdle
		return nil, errors.Wrap(err, "wait frame fence")
	}

	idx, err := dev.AcquireNextImage(fs.sc.Swapchain(), s.ImageAvailable, driver.Infinite)
	switch {
	case err == nil:
	case errors.Is(err, driver.ErrSuboptimal):
		fs.recreate = true
	case errors.Is(err, driver.ErrOutOfDate):
		s.state = SlotIdle
		if err := fs.sc.RecreateBlocking(); err != nil {
			return nil, errors.Wrap(err, "recreate swapchain after acquire")
		}
		return nil, ErrNoFrame
	default:
		s.state = SlotIdle
		return nil, errors.Wrap(err, "acquire swapchain image")
	}

	images := fs.sc.Images()
	if int(idx) >= len(images) {
		s.state = SlotIdle
		return nil, errors.Errorf("vkframe: acquired image index %d of %d", idx, len(images))
	}
	img := &images[idx]
	// The image may still be in use by the other slot's frame.
	if img.inFlight != 0 && img.inFlight != s.Fence {
		if err := dev.WaitFences([]driver.Fence{img.inFlight}, driver.Infinite); err != nil {
			s.state = SlotIdle
			return nil, errors.Wrap(err, "wait image fence")
		}
	}
	img.inFlight = s.Fence

	// The fence is reset only once an image is in hand, so an out of date
	// acquire leaves it signaled for the next attempt.
	if err := dev.ResetFences(s.Fence); err != nil {
		s.state = SlotIdle
		return nil, errors.Wrap(err, "reset frame fence")
	}
	if err := dev.ResetCommandBuffer(img.Commands); err != nil {
		s.state = SlotIdle
		return nil, errors.Wrap(err, "reset frame command buffer")
	}

	state := fs.sc.State()
	s.state = SlotRecording
	f := &Frame{
		Slot:       fs.slot,
		ImageIndex: idx,
		Parity:     fs.Parity(),
		Number:     fs.submitted,
		Extent:     state.Extent,
		Format:     state.Format,
		Image:      img.Image,
		View:       img.View,
		rec:        &Recorder{dev: dev, cb: img.Commands, plan: fs.ctx.Plan},
		generation: fs.sc.Generation(),
	}
	fs.current = f
	return f, nil
}

// Submit submits the frame's command buffer. With separate queue families
// it also submits the ownership transfer on the present queue.
func (fs *FrameSynchronizer) Submit(f *Frame) error {
	if f == nil || f != fs.current {
		return errors.Wrap(ErrFrameState, "submit of a frame that is not current")
	}
	s := &fs.slots[f.Slot]
	if s.state != SlotRecording {
		return errors.Wrapf(ErrFrameState, "submit on slot %d in state %s", f.Slot, s.state)
	}
	dev := fs.ctx.Device
	err := dev.Submit(fs.ctx.GraphicsQueue, []driver.SubmitInfo{{
		WaitSemaphores:   []driver.Semaphore{s.ImageAvailable},
		WaitStages:       []driver.PipelineStage{driver.StageColorAttachmentOutput},
		CommandBuffers:   []driver.CommandBuffer{f.rec.cb},
		SignalSemaphores: []driver.Semaphore{s.RenderFinished},
	}}, s.Fence)
	if err != nil {
		return errors.Wrap(err, "submit frame")
	}
	if !fs.ctx.Unified() {
		img := fs.sc.Images()[f.ImageIndex]
		err := dev.Submit(fs.ctx.PresentQueue, []driver.SubmitInfo{{
			WaitSemaphores:   []driver.Semaphore{s.RenderFinished},
			WaitStages:       []driver.PipelineStage{driver.StageAllCommands},
			CommandBuffers:   []driver.CommandBuffer{img.OwnershipCommands},
			SignalSemaphores: []driver.Semaphore{s.PresentReady},
		}}, 0)
		if err != nil {
			return errors.Wrap(err, "submit ownership transfer")
		}
	}
	s.state = SlotSubmitted
	return nil
}

// Present queues the frame's image for presentation and moves on to the
// next slot. It returns ErrNoFrame when the swapchain was out of date. Only
// a successful or suboptimal present advances the parity, so writes made for
// a frame that was never shown land in the same copy next time.
func (fs *FrameSynchronizer) Present(f *Frame) error {
	if f == nil || f != fs.current {
		return errors.Wrap(ErrFrameState, "present of a frame that is not current")
	}
	s := &fs.slots[f.Slot]
	if s.state != SlotSubmitted {
		return errors.Wrapf(ErrFrameState, "present on slot %d in state %s", f.Slot, s.state)
	}
	s.state = SlotPresenting
	wait := s.RenderFinished
	if !fs.ctx.Unified() {
		wait = s.PresentReady
	}
	err := fs.ctx.Device.Present(fs.ctx.PresentQueue, driver.PresentInfo{
		WaitSemaphores: []driver.Semaphore{wait},
		Swapchain:      fs.sc.Swapchain(),
		ImageIndex:     f.ImageIndex,
	})

	s.state = SlotIdle
	f.done = true
	fs.current = nil
	fs.slot = (fs.slot + 1) % FramesInFlight
	fs.submitted++

	outOfDate := errors.Is(err, driver.ErrOutOfDate)
	switch {
	case err == nil, errors.Is(err, driver.ErrSuboptimal):
		fs.presented++
	case outOfDate:
	default:
		return errors.Wrap(err, "present")
	}
	if outOfDate || err != nil || fs.recreate {
		fs.recreate = false
		if rerr := fs.sc.RecreateBlocking(); rerr != nil {
			return errors.Wrap(rerr, "recreate swapchain after present")
		}
	}
	if outOfDate {
		return ErrNoFrame
	}
	return nil
}

// Slot returns the index of the slot the next Acquire uses.
func (fs *FrameSynchronizer) Slot() int { return fs.slot }

// Parity returns the double-buffer parity of the frame being recorded, or of
// the next frame when none is.
func (fs *FrameSynchronizer) Parity() int { return int(fs.presented % 2) }

// FrameCount returns the number of frames submitted.
func (fs *FrameSynchronizer) FrameCount() uint64 { return fs.submitted }

// PresentCount returns the number of frames presented successfully.
func (fs *FrameSynchronizer) PresentCount() uint64 { return fs.presented }

// State returns the state of slot i.
func (fs *FrameSynchronizer) State(i int) SlotState { return fs.slots[i].state }

// Slots returns the frame slots.
func (fs *FrameSynchronizer) Slots() []FrameSlot { return fs.slots[:] }

// Current returns the frame being recorded, or nil.
func (fs *FrameSynchronizer) Current() *Frame { return fs.current }

// Destroy waits for the device to go idle and destroys the slot objects.
func (fs *FrameSynchronizer) Destroy() {
	dev := fs.ctx.Device
	if err := dev.WaitIdle(); err != nil {
		fs.ctx.log.Printf("vulkan warning: wait idle before frame sync destroy: %v", err)
	}
	for i := range fs.slots {
		s := &fs.slots[i]
		if s.ImageAvailable != 0 {
			dev.DestroySemaphore(s.ImageAvailable)
		}
		if s.RenderFinished != 0 {
			dev.DestroySemaphore(s.RenderFinished)
		}
		if s.PresentReady != 0 {
			dev.DestroySemaphore(s.PresentReady)
		}
		if s.Fence != 0 {
			dev.DestroyFence(s.Fence)
		}
		*s = FrameSlot{}
	}
	fs.current = nil
}
