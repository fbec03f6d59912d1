package fakegpu

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/andewx/vkframe/driver"
)

type cbState int

const (
	cbInitial cbState = iota
	cbRecording
	cbExecutable
	cbPending
	cbInvalid
)

type commandBuffer struct {
	pool     driver.CommandPool
	family   uint32
	state    cbState
	usage    driver.CommandUsage
	pending  int
	barriers []driver.ImageBarrier
	ops      []func()
	log      []string
	refs     []driver.Buffer
}

type commandPool struct {
	family  uint32
	flags   driver.PoolFlags
	buffers []driver.CommandBuffer
}

type fence struct {
	signaled bool
	pending  int
}

type buffer struct {
	desc driver.BufferDesc
	info driver.MemoryInfo
	data []byte
	addr driver.DeviceAddress
}

type image struct {
	desc      driver.ImageDesc
	data      []byte
	swapchain driver.Swapchain
}

type swapchain struct {
	desc    driver.SwapchainDesc
	images  []driver.Image
	next    int
	retired bool
}

type submission struct {
	cbs   []driver.CommandBuffer
	fence driver.Fence
}

// Event is one entry of the device's call log.
type Event struct {
	Op     string
	Handle driver.Handle
}

// RecordedBarrier is an image barrier together with the command buffer
// and the queue family of the pool it was recorded into.
type RecordedBarrier struct {
	CommandBuffer driver.CommandBuffer
	Family        uint32
	Barrier       driver.ImageBarrier
}

// Flush is one FlushBuffer call.
type Flush struct {
	Buffer driver.Buffer
	Offset uint64
	Size   uint64
}

// Device implements driver.Device.
type Device struct {
	mu        sync.Mutex
	inst      *Instance
	req       driver.DeviceRequest
	next      driver.Handle
	nextAddr  driver.DeviceAddress
	destroyed bool

	live       map[driver.Handle]string
	queues     map[driver.Queue]uint32
	fences     map[driver.Fence]*fence
	semaphores map[driver.Semaphore]bool
	pools      map[driver.CommandPool]*commandPool
	cbs        map[driver.CommandBuffer]*commandBuffer
	buffers    map[driver.Buffer]*buffer
	images     map[driver.Image]*image
	views      map[driver.ImageView]driver.Image
	swapchains map[driver.Swapchain]*swapchain
	pending    []submission
	inject     map[string][]error

	violations []string
	events     []Event
	barriers   []RecordedBarrier
	flushes    []Flush

	Submits    int
	Presents   int
	WaitIdles  int
	Swapchains []driver.SwapchainDesc
}

var _ driver.Device = (*Device)(nil)

func newDevice(inst *Instance, req driver.DeviceRequest) *Device {
	d := &Device{
		inst:       inst,
		req:        req,
		next:       0x100,
		nextAddr:   0x10000,
		live:       make(map[driver.Handle]string),
		queues:     make(map[driver.Queue]uint32),
		fences:     make(map[driver.Fence]*fence),
		semaphores: make(map[driver.Semaphore]bool),
		pools:      make(map[driver.CommandPool]*commandPool),
		cbs:        make(map[driver.CommandBuffer]*commandBuffer),
		buffers:    make(map[driver.Buffer]*buffer),
		images:     make(map[driver.Image]*image),
		views:      make(map[driver.ImageView]driver.Image),
		swapchains: make(map[driver.Swapchain]*swapchain),
		inject:     make(map[string][]error),
	}
	return d
}

func (d *Device) violate(format string, args ...interface{}) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

func (d *Device) event(op string, h driver.Handle) {
	d.events = append(d.events, Event{Op: op, Handle: h})
}

func (d *Device) alloc(kind string) driver.Handle {
	d.next++
	d.live[d.next] = kind
	return d.next
}

func (d *Device) release(h driver.Handle, kind string) bool {
	if k, ok := d.live[h]; !ok || k != kind {
		d.violate("destroy of unknown %s %#x", kind, uint64(h))
		return false
	}
	delete(d.live, h)
	return true
}

// FailNext makes the next call of op return err. op is the method name,
// e.g. "AcquireNextImage" or "CreateSwapchain". For AcquireNextImage and
// Present an ErrSuboptimal error still performs the operation.
func (d *Device) FailNext(op string, err error) {
	d.mu.Lock()
	d.inject[op] = append(d.inject[op], err)
	d.mu.Unlock()
}

func (d *Device) injected(op string) error {
	errs := d.inject[op]
	if len(errs) == 0 {
		return nil
	}
	d.inject[op] = errs[1:]
	return errs[0]
}

// OutOfDate returns the error a real driver reports for a stale swapchain.
func OutOfDate(op string) error {
	return &driver.Error{Op: op, Code: -1000001004, Name: "VK_ERROR_OUT_OF_DATE_KHR", Kind: driver.ErrOutOfDate}
}

// Suboptimal returns the status a real driver reports for a swapchain that
// no longer matches its surface exactly.
func Suboptimal(op string) error {
	return &driver.Error{Op: op, Code: 1000001003, Name: "VK_SUBOPTIMAL_KHR", Kind: driver.ErrSuboptimal}
}

// DeviceLost returns the device-lost error.
func DeviceLost(op string) error {
	return &driver.Error{Op: op, Code: -4, Name: "VK_ERROR_DEVICE_LOST", Kind: driver.ErrDeviceLost}
}

// Violations returns every protocol violation observed so far.
func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

// Events returns the call log.
func (d *Device) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.events...)
}

// Barriers returns every image barrier recorded on the device.
func (d *Device) Barriers() []RecordedBarrier {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]RecordedBarrier(nil), d.barriers...)
}

// CommandBarriers returns the barriers currently recorded in cb.
func (d *Device) CommandBarriers(cb driver.CommandBuffer) []driver.ImageBarrier {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.cbs[cb]
	if !ok {
		return nil
	}
	return append([]driver.ImageBarrier(nil), c.barriers...)
}

// CommandLog returns the names of the commands currently recorded in cb.
func (d *Device) CommandLog(cb driver.CommandBuffer) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.cbs[cb]
	if !ok {
		return nil
	}
	return append([]string(nil), c.log...)
}

func (d *Device) Flushes() []Flush {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Flush(nil), d.flushes...)
}

// BufferData returns the contents of b as the device sees them.
func (d *Device) BufferData(b driver.Buffer) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if buf, ok := d.buffers[b]; ok {
		return append([]byte(nil), buf.data...)
	}
	return nil
}

// ImageData returns the contents of img.
func (d *Device) ImageData(img driver.Image) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if im, ok := d.images[img]; ok {
		return append([]byte(nil), im.data...)
	}
	return nil
}

// Pending reports the number of submissions not yet retired.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Live reports the live objects by kind.
func (d *Device) Live() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := make(map[string]int)
	for _, k := range d.live {
		m[k]++
	}
	return m
}

func (d *Device) Destroyed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

func (d *Device) Queue(family, index uint32) driver.Queue {
	d.mu.Lock()
	defer d.mu.Unlock()
	found := false
	for _, q := range d.req.Queues {
		if q.Family == family && index < q.Count {
			found = true
		}
	}
	if !found {
		d.violate("queue %d/%d was not requested at device creation", family, index)
	}
	q := driver.Queue(0x10000 + uint64(family)<<8 + uint64(index))
	d.queues[q] = family
	return q
}

// QueueFamily returns the family of a queue handed out by Queue.
func (d *Device) QueueFamily(q driver.Queue) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queues[q]
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.WaitIdles++
	d.event("wait-idle", 0)
	d.retire(len(d.pending))
	return nil
}

func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) > 0 {
		d.violate("device destroyed with %d pending submissions", len(d.pending))
	}
	if len(d.live) > 0 {
		kinds := make([]string, 0, len(d.live))
		for _, k := range d.live {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		d.violate("device destroyed with live objects: %s", strings.Join(kinds, ","))
	}
	d.destroyed = true
}

// retire completes the first n pending submissions in submission order.
func (d *Device) retire(n int) {
	for _, s := range d.pending[:n] {
		for _, h := range s.cbs {
			cb, ok := d.cbs[h]
			if !ok {
				continue
			}
			for _, op := range cb.ops {
				op()
			}
			cb.pending--
			if cb.pending == 0 && cb.state == cbPending {
				if cb.usage&driver.UsageOneTimeSubmit != 0 {
					cb.state = cbInvalid
				} else {
					cb.state = cbExecutable
				}
			}
		}
		if f, ok := d.fences[s.fence]; ok {
			f.pending--
			f.signaled = true
		}
	}
	d.pending = d.pending[n:]
}

func (d *Device) CreateFence(signaled bool) (driver.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("CreateFence"); err != nil {
		return 0, err
	}
	f := driver.Fence(d.alloc("fence"))
	d.fences[f] = &fence{signaled: signaled}
	return f, nil
}

func (d *Device) DestroyFence(f driver.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fc, ok := d.fences[f]; ok && fc.pending > 0 {
		d.violate("fence %#x destroyed while in use", uint64(f))
	}
	if d.release(driver.Handle(f), "fence") {
		delete(d.fences, f)
	}
}

func (d *Device) WaitFences(fences []driver.Fence, timeout uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	upTo := 0
	for _, h := range fences {
		d.event("wait-fence", driver.Handle(h))
		f, ok := d.fences[h]
		if !ok {
			d.violate("wait on unknown fence %#x", uint64(h))
			return errors.Errorf("fakegpu: unknown fence")
		}
		if f.signaled {
			continue
		}
		last := -1
		for i, s := range d.pending {
			if s.fence == h {
				last = i
			}
		}
		if last < 0 {
			if timeout == driver.Infinite {
				d.violate("wait on fence %#x that can never signal", uint64(h))
			}
			return driver.ErrTimeout
		}
		if last+1 > upTo {
			upTo = last + 1
		}
	}
	d.retire(upTo)
	return nil
}

func (d *Device) ResetFences(fences ...driver.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range fences {
		d.event("reset-fence", driver.Handle(h))
		f, ok := d.fences[h]
		if !ok {
			d.violate("reset of unknown fence %#x", uint64(h))
			continue
		}
		if f.pending > 0 {
			d.violate("reset of fence %#x with pending work", uint64(h))
		}
		f.signaled = false
	}
	return nil
}

// FenceSignaled reports whether f is signaled.
func (d *Device) FenceSignaled(f driver.Fence) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	fc, ok := d.fences[f]
	return ok && fc.signaled
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("CreateSemaphore"); err != nil {
		return 0, err
	}
	s := driver.Semaphore(d.alloc("semaphore"))
	d.semaphores[s] = false
	return s, nil
}

func (d *Device) DestroySemaphore(s driver.Semaphore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.release(driver.Handle(s), "semaphore") {
		delete(d.semaphores, s)
	}
}

func (d *Device) signal(s driver.Semaphore, op string) {
	signaled, ok := d.semaphores[s]
	if !ok {
		d.violate("%s: unknown semaphore %#x", op, uint64(s))
		return
	}
	if signaled {
		d.violate("%s: semaphore %#x signaled twice without a wait", op, uint64(s))
	}
	d.semaphores[s] = true
}

func (d *Device) wait(s driver.Semaphore, op string) {
	signaled, ok := d.semaphores[s]
	if !ok {
		d.violate("%s: unknown semaphore %#x", op, uint64(s))
		return
	}
	if !signaled {
		d.violate("%s: wait on semaphore %#x that has no pending signal", op, uint64(s))
	}
	d.semaphores[s] = false
}
