package vkframe

import (
	"io"
	"log"
	"os"

	"github.com/pkg/errors"

	"github.com/andewx/vkframe/driver"
)

// Renderer ties the device context, the swapchain, the frame synchronizer
// and the transfer channel together behind a small frame API. It is driven
// from a single goroutine.
type Renderer struct {
	cfg      Config
	inst     driver.Instance
	win      Window
	log      *log.Logger
	reporter Reporter
	req      *Requirements
	closers  []io.Closer

	ctx  *DeviceContext
	sc   *SwapchainManager
	sync *FrameSynchronizer
	tc   *TransferChannel

	// resources are destroyed in reverse creation order on Destroy.
	resources []destroyer
	failed    error
	destroyed bool
}

type destroyer interface {
	Destroy()
}

type shaderModule struct {
	dev driver.Device
	m   driver.ShaderModule
}

func (s *shaderModule) Destroy() {
	if s.m != 0 {
		s.dev.DestroyShaderModule(s.m)
		s.m = 0
	}
}

// Option configures a Renderer.
type Option func(r *Renderer)

// WithLogger sets the logger for informational and warning messages.
func WithLogger(l *log.Logger) Option {
	return func(r *Renderer) { r.log = l }
}

// WithReporter sets where fatal errors go. It overrides Config.FatalLog.
func WithReporter(rep Reporter) Option {
	return func(r *Renderer) { r.reporter = rep }
}

// WithRequirements replaces the device requirements derived from the config.
func WithRequirements(req Requirements) Option {
	return func(r *Renderer) { r.req = &req }
}

// New opens a device on inst, builds the first swapchain for win and
// prepares the frame loop. The renderer takes ownership of inst. When the
// window starts minimized New blocks until it has a usable size.
//
// Initialization failures are reported once and returned wrapped so that
// IsFatal is true.
func New(inst driver.Instance, win Window, cfg Config, opts ...Option) (*Renderer, error) {
	r := &Renderer{cfg: cfg, inst: inst, win: win}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = log.Default()
	}
	if r.reporter == nil {
		r.reporter = LogReporter{Logger: r.log}
		if cfg.FatalLog != "" {
			fr, err := NewFileReporter(cfg.FatalLog)
			if err != nil {
				r.log.Printf("vulkan warning: %v, reporting to the log instead", err)
			} else {
				r.reporter = fr
				r.closers = append(r.closers, fr)
			}
		}
	}
	if err := r.init(); err != nil {
		ferr := r.fail(err)
		r.Destroy()
		return nil, ferr
	}
	return r, nil
}

func (r *Renderer) requirements() (Requirements, error) {
	if r.req != nil {
		return *r.req, nil
	}
	req := DefaultRequirements()
	v, err := r.cfg.Version()
	if err != nil {
		return req, err
	}
	if v > req.APIVersion {
		req.APIVersion = v
	}
	req.Extensions = appendMissing(req.Extensions, r.cfg.DeviceExtensions...)
	return req, nil
}

func appendMissing(list []string, names ...string) []string {
	out := append([]string(nil), list...)
	for _, n := range names {
		if !contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (r *Renderer) init() error {
	req, err := r.requirements()
	if err != nil {
		return err
	}
	if r.ctx, err = NewDeviceContext(r.inst, req, r.log); err != nil {
		return err
	}
	r.sc = NewSwapchainManager(r.ctx, r.win, r.cfg.ImageCount)
	if err := r.sc.RecreateBlocking(); err != nil {
		return errors.Wrap(err, "create swapchain")
	}
	if r.sync, err = NewFrameSynchronizer(r.ctx, r.sc); err != nil {
		return err
	}
	if r.tc, err = NewTransferChannel(r.ctx); err != nil {
		return err
	}
	return nil
}

// fail marks the renderer failed and reports err the first time.
func (r *Renderer) fail(err error) error {
	if r.failed != nil {
		return r.failed
	}
	r.failed = &fatalError{err: err}
	r.reporter.Report(err)
	return r.failed
}

func (r *Renderer) check() error {
	if r.failed != nil {
		return ErrFailed
	}
	if r.destroyed {
		return errors.Wrap(ErrFailed, "renderer destroyed")
	}
	return nil
}

// BeginFrame acquires the next image and returns the frame to record. It
// returns ErrNoFrame when the swapchain had to be recreated; the caller
// skips the iteration. The frame's command buffer is not begun.
func (r *Renderer) BeginFrame() (*Frame, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	f, err := r.sync.Acquire()
	switch {
	case err == nil:
		return f, nil
	case errors.Is(err, ErrNoFrame), errors.Is(err, ErrWindowClosed):
		return nil, err
	}
	return nil, r.fail(err)
}

// EndFrame submits the frame and presents it. ErrNoFrame means the
// swapchain was out of date at present time; the frame still counted.
func (r *Renderer) EndFrame(f *Frame) error {
	if err := r.check(); err != nil {
		return err
	}
	if err := r.sync.Submit(f); err != nil {
		if errors.Is(err, ErrFrameState) {
			return err
		}
		return r.fail(err)
	}
	err := r.sync.Present(f)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNoFrame), errors.Is(err, ErrWindowClosed):
		return err
	}
	return r.fail(err)
}

// Frame records one frame: it acquires an image, begins the command
// buffer, calls record, ends and submits the buffer and presents the image.
// ErrNoFrame is swallowed; it returns nil without calling record.
func (r *Renderer) Frame(record func(f *Frame) error) error {
	f, err := r.BeginFrame()
	if errors.Is(err, ErrNoFrame) {
		return nil
	}
	if err != nil {
		return err
	}
	rec := f.Recorder()
	if err := rec.Begin(driver.UsageOneTimeSubmit); err != nil {
		return r.fail(err)
	}
	if err := record(f); err != nil {
		// The slot fence is already reset and the image acquired, so a
		// blank frame is submitted and presented in place of the partial
		// recording.
		if berr := f.recordBlank(); berr != nil {
			return r.fail(berr)
		}
		if serr := r.EndFrame(f); serr != nil && !errors.Is(serr, ErrNoFrame) {
			return serr
		}
		return err
	}
	if err := rec.End(); err != nil {
		return r.fail(err)
	}
	if err := r.EndFrame(f); err != nil && !errors.Is(err, ErrNoFrame) {
		return err
	}
	return nil
}

// CreateStaticBuffer creates a device-local buffer holding data.
func (r *Renderer) CreateStaticBuffer(data []byte, usage driver.BufferUsage) (*StaticBuffer, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	b, err := NewStaticBuffer(r.ctx, r.tc, data, usage)
	if err != nil {
		return nil, err
	}
	r.resources = append(r.resources, b)
	return b, nil
}

// CreateStaticImage creates a sampled image filled with pixels.
func (r *Renderer) CreateStaticImage(desc driver.ImageDesc, pixels []byte) (*StaticImage, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	img, err := NewStaticImage(r.ctx, r.tc, desc, pixels)
	if err != nil {
		return nil, err
	}
	r.resources = append(r.resources, img)
	return img, nil
}

// CreateDoubleBuffered creates a per-frame writable resource whose copies
// follow the renderer's frame parity.
func (r *Renderer) CreateDoubleBuffered(capacity uint64, usage driver.BufferUsage) (*DoubleBuffered, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	res, err := NewDoubleBuffered(r.ctx, r.sync, capacity, usage)
	if err != nil {
		return nil, err
	}
	r.resources = append(r.resources, res)
	return res, nil
}

// TransferSubmit records fn on the transfer channel and waits for it.
func (r *Renderer) TransferSubmit(fn func(rec *Recorder) error) error {
	if err := r.check(); err != nil {
		return err
	}
	return r.tc.Submit(fn)
}

// CreateShaderModule creates a shader module from SPIR-V. It is destroyed
// with the renderer unless DestroyShaderModule is called first.
func (r *Renderer) CreateShaderModule(code []byte) (driver.ShaderModule, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	m, err := r.ctx.Device.CreateShaderModule(code)
	if err != nil {
		return 0, errors.Wrap(err, "create shader module")
	}
	r.resources = append(r.resources, &shaderModule{dev: r.ctx.Device, m: m})
	return m, nil
}

// LoadShaderModule reads a compiled SPIR-V file and creates a module from it.
func (r *Renderer) LoadShaderModule(path string) (driver.ShaderModule, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrap(err, "read shader")
	}
	m, err := r.CreateShaderModule(code)
	if err != nil {
		return 0, errors.Wrapf(err, "shader %s", path)
	}
	return m, nil
}

func (r *Renderer) DestroyShaderModule(m driver.ShaderModule) {
	for _, res := range r.resources {
		if sm, ok := res.(*shaderModule); ok && sm.m == m {
			sm.Destroy()
			return
		}
	}
}

// Surface returns the current swapchain state.
func (r *Renderer) Surface() SurfaceState {
	if r.sc == nil {
		return SurfaceState{}
	}
	return r.sc.State()
}

func (r *Renderer) Context() *DeviceContext { return r.ctx }

func (r *Renderer) Synchronizer() *FrameSynchronizer { return r.sync }

func (r *Renderer) Swapchain() *SwapchainManager { return r.sc }

// Failed returns the fatal error that stopped the renderer, or nil.
func (r *Renderer) Failed() error { return r.failed }

// Destroy waits for the device to go idle and releases everything the
// renderer created, most recent first, then the device and the instance.
// Calling it again does nothing.
func (r *Renderer) Destroy() {
	r.destroyed = true
	r.teardown()
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			r.log.Printf("vulkan warning: %v", err)
		}
	}
	r.closers = nil
}

func (r *Renderer) teardown() {
	if r.ctx != nil && r.ctx.Device != nil {
		if err := r.ctx.Device.WaitIdle(); err != nil {
			r.log.Printf("vulkan warning: wait idle at shutdown: %v", err)
		}
	}
	for i := len(r.resources) - 1; i >= 0; i-- {
		r.resources[i].Destroy()
	}
	r.resources = nil
	if r.tc != nil {
		r.tc.Destroy()
		r.tc = nil
	}
	if r.sync != nil {
		r.sync.Destroy()
		r.sync = nil
	}
	if r.sc != nil {
		r.sc.Destroy()
		r.sc = nil
	}
	if r.ctx != nil {
		r.ctx.Destroy()
		r.ctx = nil
	}
	if r.inst != nil {
		r.inst.Destroy()
		r.inst = nil
	}
}
