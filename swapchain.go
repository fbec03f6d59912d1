package vkframe

import (
	"github.com/pkg/errors"

	"github.com/andewx/vkframe/driver"
)

// Window is what the frame loop needs from the windowing system.
type Window interface {
	FramebufferSize() (width, height int)
	IsRunning() bool
	PollEvents()
	// WaitEvents blocks until at least one event arrived.
	WaitEvents()
}

// SurfaceState is what the last swapchain (re)creation settled on.
type SurfaceState struct {
	Format      driver.Format
	ColorSpace  driver.ColorSpace
	Extent      driver.Extent2D
	PresentMode driver.PresentMode
	ImageCount  uint32
}

// PresentableImage is one swapchain image with its per-image recording
// resources. The image belongs to the swapchain; everything else is
// destroyed on the next recreation.
type PresentableImage struct {
	Image    driver.Image
	View     driver.ImageView
	Pool     driver.CommandPool
	Commands driver.CommandBuffer

	// Present-family pool and the pre-recorded ownership acquire, only
	// set when graphics and present families differ.
	PresentPool       driver.CommandPool
	OwnershipCommands driver.CommandBuffer

	// inFlight is the fence of the last frame that rendered to the image.
	inFlight driver.Fence
}

// ChooseExtent returns the swapchain extent for the given capabilities and
// framebuffer size. A defined current extent is taken as is.
func ChooseExtent(caps driver.SurfaceCapabilities, fbWidth, fbHeight int) driver.Extent2D {
	if caps.CurrentExtent.Width != driver.UndefinedExtent {
		return caps.CurrentExtent
	}
	if fbWidth < 0 {
		fbWidth = 0
	}
	if fbHeight < 0 {
		fbHeight = 0
	}
	return driver.Extent2D{
		Width:  clamp(uint32(fbWidth), caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(uint32(fbHeight), caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}

// ChooseSurfaceFormat prefers an 8-bit RGBA or BGRA format in the sRGB
// non-linear color space and falls back to the first reported format.
func ChooseSurfaceFormat(formats []driver.SurfaceFormat) (driver.SurfaceFormat, error) {
	if len(formats) == 0 {
		return driver.SurfaceFormat{}, errors.New("vkframe: surface reports no formats")
	}
	for _, f := range formats {
		if f.Format.Is4x8() && f.ColorSpace == driver.ColorSpaceSrgbNonlinear {
			return f, nil
		}
	}
	f := formats[0]
	if f.Format == driver.FormatUndefined {
		// The surface has no preference.
		f.Format = driver.FormatB8G8R8A8Unorm
	}
	return f, nil
}

// ChoosePresentMode prefers mailbox, then immediate, then FIFO which every
// surface supports.
func ChoosePresentMode(modes []driver.PresentMode) driver.PresentMode {
	best := driver.PresentModeFifo
	for _, m := range modes {
		switch m {
		case driver.PresentModeMailbox:
			return m
		case driver.PresentModeImmediate:
			best = m
		}
	}
	return best
}

// ChooseImageCount clamps desired into the surface's image count range. A
// MaxImageCount of 0 means no upper bound.
func ChooseImageCount(caps driver.SurfaceCapabilities, desired uint32) uint32 {
	n := desired
	if n < caps.MinImageCount {
		n = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && n > caps.MaxImageCount {
		n = caps.MaxImageCount
	}
	return n
}

// SwapchainManager owns the swapchain and the per-image resources.
type SwapchainManager struct {
	ctx     *DeviceContext
	win     Window
	desired uint32

	swapchain  driver.Swapchain
	state      SurfaceState
	images     []PresentableImage
	generation int
}

func NewSwapchainManager(ctx *DeviceContext, win Window, desiredImages uint32) *SwapchainManager {
	if desiredImages == 0 {
		desiredImages = DefaultImageCount
	}
	return &SwapchainManager{ctx: ctx, win: win, desired: desiredImages}
}

// Recreate builds a swapchain that matches the surface, replacing the
// current one. It can be called when no swapchain exists yet. While the
// surface has a zero dimension it returns ErrZeroExtent and leaves every
// existing resource alone.
func (m *SwapchainManager) Recreate() error {
	dev := m.ctx.Device
	caps, err := dev.SurfaceCapabilities()
	if err != nil {
		return errors.Wrap(err, "query surface capabilities")
	}
	w, h := m.win.FramebufferSize()
	extent := ChooseExtent(caps, w, h)
	if extent.Empty() {
		return ErrZeroExtent
	}
	formats, err := dev.SurfaceFormats()
	if err != nil {
		return errors.Wrap(err, "query surface formats")
	}
	format, err := ChooseSurfaceFormat(formats)
	if err != nil {
		return err
	}
	modes, err := dev.SurfacePresentModes()
	if err != nil {
		return errors.Wrap(err, "query present modes")
	}
	state := SurfaceState{
		Format:      format.Format,
		ColorSpace:  format.ColorSpace,
		Extent:      extent,
		PresentMode: ChoosePresentMode(modes),
		ImageCount:  ChooseImageCount(caps, m.desired),
	}

	if err := dev.WaitIdle(); err != nil {
		return errors.Wrap(err, "wait idle before swapchain recreation")
	}
	m.destroyImages()

	old := m.swapchain
	sc, err := dev.CreateSwapchain(driver.SwapchainDesc{
		Format:        state.Format,
		ColorSpace:    state.ColorSpace,
		Extent:        state.Extent,
		PresentMode:   state.PresentMode,
		MinImageCount: state.ImageCount,
		Old:           old,
	})
	if old != 0 {
		dev.DestroySwapchain(old)
		m.swapchain = 0
	}
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}
	m.swapchain = sc

	images, err := dev.SwapchainImages(sc)
	if err != nil {
		return errors.Wrap(err, "get swapchain images")
	}
	state.ImageCount = uint32(len(images))
	m.state = state
	m.images = make([]PresentableImage, 0, len(images))
	for _, img := range images {
		pi, err := m.createImage(img)
		m.images = append(m.images, pi)
		if err != nil {
			return err
		}
	}
	m.generation++
	m.ctx.log.Printf("vulkan: swapchain %dx%d, %d images, format %d, present mode %s",
		extent.Width, extent.Height, len(images), state.Format, state.PresentMode)
	return nil
}

func (m *SwapchainManager) createImage(img driver.Image) (PresentableImage, error) {
	dev := m.ctx.Device
	plan := m.ctx.Plan
	pi := PresentableImage{Image: img}
	var err error
	if pi.View, err = dev.CreateImageView(img, m.state.Format, driver.AspectColor); err != nil {
		return pi, errors.Wrap(err, "create swapchain image view")
	}
	if pi.Pool, err = dev.CreateCommandPool(plan.GraphicsFamily, driver.PoolResetCommandBuffer); err != nil {
		return pi, errors.Wrap(err, "create graphics command pool")
	}
	cbs, err := dev.AllocateCommandBuffers(pi.Pool, 1)
	if err != nil {
		return pi, errors.Wrap(err, "allocate graphics command buffer")
	}
	pi.Commands = cbs[0]
	if plan.Unified() {
		return pi, nil
	}

	if pi.PresentPool, err = dev.CreateCommandPool(plan.PresentFamily, 0); err != nil {
		return pi, errors.Wrap(err, "create present command pool")
	}
	if cbs, err = dev.AllocateCommandBuffers(pi.PresentPool, 1); err != nil {
		return pi, errors.Wrap(err, "allocate ownership command buffer")
	}
	pi.OwnershipCommands = cbs[0]
	// The acquire half of the ownership transfer never changes, so it is
	// recorded once per generation and resubmitted every frame.
	rec := &Recorder{dev: dev, cb: pi.OwnershipCommands, plan: plan}
	if err := rec.Begin(driver.UsageSimultaneous); err != nil {
		return pi, err
	}
	rec.Barrier(acquireForPresent(img, plan))
	if err := rec.End(); err != nil {
		return pi, err
	}
	return pi, nil
}

// destroyImages releases views and pools of the current generation. The
// caller waits for the device to go idle first.
func (m *SwapchainManager) destroyImages() {
	dev := m.ctx.Device
	for _, pi := range m.images {
		if pi.View != 0 {
			dev.DestroyImageView(pi.View)
		}
		if pi.Pool != 0 {
			dev.DestroyCommandPool(pi.Pool)
		}
		if pi.PresentPool != 0 {
			dev.DestroyCommandPool(pi.PresentPool)
		}
	}
	m.images = nil
}

// RecreateBlocking retries Recreate, waiting for window events while the
// surface has a zero dimension. It gives up with ErrWindowClosed when the
// window stops running.
func (m *SwapchainManager) RecreateBlocking() error {
	for {
		err := m.Recreate()
		if !errors.Is(err, ErrZeroExtent) {
			return err
		}
		if !m.win.IsRunning() {
			return ErrWindowClosed
		}
		m.win.WaitEvents()
	}
}

// State returns the surface state of the current generation.
func (m *SwapchainManager) State() SurfaceState { return m.state }

// Generation counts successful recreations.
func (m *SwapchainManager) Generation() int { return m.generation }

// Images returns the presentable images of the current generation.
func (m *SwapchainManager) Images() []PresentableImage { return m.images }

// Swapchain returns the current swapchain handle.
func (m *SwapchainManager) Swapchain() driver.Swapchain { return m.swapchain }

// Destroy releases the swapchain and its per-image resources.
func (m *SwapchainManager) Destroy() {
	if m.ctx.Device == nil {
		return
	}
	if err := m.ctx.Device.WaitIdle(); err != nil {
		m.ctx.log.Printf("vulkan warning: wait idle before swapchain destroy: %v", err)
	}
	m.destroyImages()
	if m.swapchain != 0 {
		m.ctx.Device.DestroySwapchain(m.swapchain)
		m.swapchain = 0
	}
}

// releaseForPresent is the graphics-side half of the transition to present.
// With separate families it releases ownership to the present family.
func releaseForPresent(img driver.Image, plan QueuePlan) driver.ImageBarrier {
	b := driver.ImageBarrier{
		Image:     img,
		Aspect:    driver.AspectColor,
		OldLayout: driver.LayoutColorAttachmentOptimal,
		NewLayout: driver.LayoutPresentSrc,
		SrcStage:  driver.StageColorAttachmentOutput,
		SrcAccess: driver.AccessColorAttachmentWrite,
		DstStage:  driver.StageBottomOfPipe,
		DstAccess: driver.AccessNone,
		SrcFamily: driver.QueueFamilyIgnored,
		DstFamily: driver.QueueFamilyIgnored,
	}
	if !plan.Unified() {
		b.SrcFamily = plan.GraphicsFamily
		b.DstFamily = plan.PresentFamily
	}
	return b
}

// acquireForPresent is the present-side half of the ownership transfer. It
// must name the same layouts and families as the release.
func acquireForPresent(img driver.Image, plan QueuePlan) driver.ImageBarrier {
	return driver.ImageBarrier{
		Image:     img,
		Aspect:    driver.AspectColor,
		OldLayout: driver.LayoutColorAttachmentOptimal,
		NewLayout: driver.LayoutPresentSrc,
		SrcStage:  driver.StageTopOfPipe,
		SrcAccess: driver.AccessNone,
		DstStage:  driver.StageBottomOfPipe,
		DstAccess: driver.AccessNone,
		SrcFamily: plan.GraphicsFamily,
		DstFamily: plan.PresentFamily,
	}
}
