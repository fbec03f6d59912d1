package fakegpu

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/andewx/vkframe/driver"
)

func (d *Device) CreateCommandPool(family uint32, flags driver.PoolFlags) (driver.CommandPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("CreateCommandPool"); err != nil {
		return 0, err
	}
	p := driver.CommandPool(d.alloc("command-pool"))
	d.pools[p] = &commandPool{family: family, flags: flags}
	return p, nil
}

func (d *Device) DestroyCommandPool(p driver.CommandPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pool, ok := d.pools[p]
	if !d.release(driver.Handle(p), "command-pool") || !ok {
		return
	}
	for _, h := range pool.buffers {
		if cb := d.cbs[h]; cb != nil && cb.state == cbPending {
			d.violate("command pool %#x destroyed with pending command buffer %#x", uint64(p), uint64(h))
		}
		delete(d.cbs, h)
	}
	delete(d.pools, p)
}

func (d *Device) ResetCommandPool(p driver.CommandPool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	pool, ok := d.pools[p]
	if !ok {
		d.violate("reset of unknown command pool %#x", uint64(p))
		return errors.Errorf("fakegpu: unknown command pool")
	}
	d.event("reset-pool", driver.Handle(p))
	for _, h := range pool.buffers {
		cb := d.cbs[h]
		if cb.state == cbPending {
			d.violate("command pool %#x reset with pending command buffer %#x", uint64(p), uint64(h))
		}
		cb.reset()
	}
	return nil
}

func (cb *commandBuffer) reset() {
	cb.state = cbInitial
	cb.barriers = nil
	cb.ops = nil
	cb.log = nil
	cb.refs = nil
}

func (cb *commandBuffer) uses(b driver.Buffer) bool {
	for _, r := range cb.refs {
		if r == b {
			return true
		}
	}
	return false
}

func (d *Device) AllocateCommandBuffers(p driver.CommandPool, n int) ([]driver.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pool, ok := d.pools[p]
	if !ok {
		return nil, errors.Errorf("fakegpu: unknown command pool")
	}
	out := make([]driver.CommandBuffer, n)
	for i := range out {
		// Command buffers are freed with their pool, so they are not
		// tracked as live objects on their own.
		d.next++
		h := driver.CommandBuffer(d.next)
		d.cbs[h] = &commandBuffer{pool: p, family: pool.family}
		pool.buffers = append(pool.buffers, h)
		out[i] = h
	}
	return out, nil
}

func (d *Device) ResetCommandBuffer(h driver.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.event("reset-cb", driver.Handle(h))
	cb, ok := d.cbs[h]
	if !ok {
		d.violate("reset of unknown command buffer %#x", uint64(h))
		return errors.Errorf("fakegpu: unknown command buffer")
	}
	if cb.state == cbPending {
		d.violate("reset of command buffer %#x still in use by the device", uint64(h))
	}
	if d.pools[cb.pool].flags&driver.PoolResetCommandBuffer == 0 {
		d.violate("individual reset of command buffer %#x from a pool without reset flag", uint64(h))
	}
	cb.reset()
	return nil
}

func (d *Device) BeginCommandBuffer(h driver.CommandBuffer, usage driver.CommandUsage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := d.cbs[h]
	if !ok {
		return errors.Errorf("fakegpu: unknown command buffer")
	}
	switch cb.state {
	case cbPending:
		d.violate("begin of command buffer %#x still in use by the device", uint64(h))
	case cbRecording:
		d.violate("begin of command buffer %#x already recording", uint64(h))
	}
	cb.reset()
	cb.state = cbRecording
	cb.usage = usage
	return nil
}

func (d *Device) EndCommandBuffer(h driver.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := d.cbs[h]
	if !ok {
		return errors.Errorf("fakegpu: unknown command buffer")
	}
	if cb.state != cbRecording {
		d.violate("end of command buffer %#x that is not recording", uint64(h))
		return errors.Errorf("fakegpu: command buffer not recording")
	}
	cb.state = cbExecutable
	return nil
}

func (d *Device) recording(h driver.CommandBuffer, op string) *commandBuffer {
	cb, ok := d.cbs[h]
	if !ok {
		d.violate("%s on unknown command buffer %#x", op, uint64(h))
		return nil
	}
	if cb.state != cbRecording {
		d.violate("%s on command buffer %#x that is not recording", op, uint64(h))
		return nil
	}
	cb.log = append(cb.log, op)
	return cb
}

func (d *Device) CmdImageBarrier(h driver.CommandBuffer, barriers ...driver.ImageBarrier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb := d.recording(h, "barrier")
	if cb == nil {
		return
	}
	for _, b := range barriers {
		if _, ok := d.images[b.Image]; !ok {
			d.violate("barrier on unknown image %#x", uint64(b.Image))
		}
		cb.barriers = append(cb.barriers, b)
		d.barriers = append(d.barriers, RecordedBarrier{CommandBuffer: h, Family: cb.family, Barrier: b})
	}
}

func (d *Device) CmdCopyBuffer(h driver.CommandBuffer, src, dst driver.Buffer, regions ...driver.BufferCopy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb := d.recording(h, "copy-buffer")
	if cb == nil {
		return
	}
	s, d2 := d.buffers[src], d.buffers[dst]
	if s == nil || d2 == nil {
		d.violate("copy between unknown buffers")
		return
	}
	for _, r := range regions {
		if r.SrcOffset+r.Size > uint64(len(s.data)) || r.DstOffset+r.Size > uint64(len(d2.data)) {
			d.violate("copy region out of range")
			continue
		}
		r := r
		cb.refs = append(cb.refs, src, dst)
		cb.ops = append(cb.ops, func() {
			copy(d2.data[r.DstOffset:r.DstOffset+r.Size], s.data[r.SrcOffset:r.SrcOffset+r.Size])
		})
	}
}

func (d *Device) CmdCopyBufferToImage(h driver.CommandBuffer, src driver.Buffer, dst driver.Image, region driver.BufferImageCopy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb := d.recording(h, "copy-buffer-to-image")
	if cb == nil {
		return
	}
	s, img := d.buffers[src], d.images[dst]
	if s == nil || img == nil {
		d.violate("copy between unknown buffer and image")
		return
	}
	n := uint64(region.Width) * uint64(region.Height) * bytesPerPixel(img.desc.Format)
	if region.BufferOffset+n > uint64(len(s.data)) || n > uint64(len(img.data)) {
		d.violate("buffer to image copy out of range")
		return
	}
	off := region.BufferOffset
	cb.refs = append(cb.refs, src)
	cb.ops = append(cb.ops, func() {
		copy(img.data[:n], s.data[off:off+n])
	})
}

func (d *Device) CmdBeginRendering(h driver.CommandBuffer, info driver.RenderingInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.views[info.View]; !ok {
		d.violate("rendering to unknown view %#x", uint64(info.View))
	}
	if info.Extent.Empty() {
		d.violate("rendering with an empty render area")
	}
	d.recording(h, "begin-rendering")
}

func (d *Device) CmdEndRendering(h driver.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recording(h, "end-rendering")
}

func (d *Device) CmdBindPipeline(h driver.CommandBuffer, p driver.Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recording(h, "bind-pipeline")
}

func (d *Device) CmdPushConstants(h driver.CommandBuffer, layout driver.PipelineLayout, offset uint32, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if offset+uint32(len(data)) > 128 {
		d.violate("push constant range exceeds 128 bytes")
	}
	d.recording(h, fmt.Sprintf("push-constants:%x", data))
}

func (d *Device) CmdDraw(h driver.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recording(h, "draw")
}

func (d *Device) Submit(q driver.Queue, batches []driver.SubmitInfo, f driver.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.event("submit", driver.Handle(q))
	if err := d.injected("Submit"); err != nil {
		return err
	}
	family, ok := d.queues[q]
	if !ok {
		d.violate("submit to unknown queue %#x", uint64(q))
		return errors.Errorf("fakegpu: unknown queue")
	}
	var all []driver.CommandBuffer
	for _, b := range batches {
		if len(b.WaitStages) != len(b.WaitSemaphores) {
			d.violate("submit: %d wait stages for %d wait semaphores", len(b.WaitStages), len(b.WaitSemaphores))
		}
		for _, s := range b.WaitSemaphores {
			d.wait(s, "submit")
		}
		for _, h := range b.CommandBuffers {
			cb, ok := d.cbs[h]
			if !ok {
				d.violate("submit of unknown command buffer %#x", uint64(h))
				continue
			}
			if cb.family != family {
				d.violate("command buffer %#x from family %d submitted to family %d", uint64(h), cb.family, family)
			}
			switch {
			case cb.state == cbExecutable:
			case cb.state == cbPending && cb.usage&driver.UsageSimultaneous != 0:
			default:
				d.violate("submit of command buffer %#x in state %d", uint64(h), cb.state)
			}
			cb.state = cbPending
			cb.pending++
			all = append(all, h)
		}
		for _, s := range b.SignalSemaphores {
			d.signal(s, "submit")
		}
	}
	if f != 0 {
		fc, ok := d.fences[f]
		if !ok {
			d.violate("submit with unknown fence %#x", uint64(f))
		} else {
			if fc.signaled || fc.pending > 0 {
				d.violate("submit with fence %#x that is not reset", uint64(f))
			}
			fc.pending++
		}
	}
	d.Submits++
	d.pending = append(d.pending, submission{cbs: all, fence: f})
	return nil
}
