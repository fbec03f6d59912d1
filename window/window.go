// Package window provides the GLFW window the renderer presents to.
//
// GLFW must be driven from the main OS thread: call runtime.LockOSThread
// in an init function of package main, then Init before New.
package window

import (
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/vkframe"
)

// Init initializes GLFW and checks that a Vulkan loader is available.
func Init() error {
	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "glfw init")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return errors.New("glfw: vulkan is not supported")
	}
	return nil
}

// Terminate shuts GLFW down. Every window must be destroyed first.
func Terminate() {
	glfw.Terminate()
}

// Window is a GLFW window without a client API. It satisfies
// vkframe.Window and vulkan.SurfaceSource.
type Window struct {
	win *glfw.Window
}

// New opens a window sized and titled after cfg.
func New(cfg vkframe.WindowConfig) (*Window, error) {
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Visible, glfw.True)
	if cfg.Resizable {
		glfw.WindowHint(glfw.Resizable, glfw.True)
	} else {
		glfw.WindowHint(glfw.Resizable, glfw.False)
	}
	win, err := glfw.CreateWindow(cfg.Width, cfg.Height, cfg.Title, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "glfw create window")
	}
	w := &Window{win: win}
	win.SetKeyCallback(func(win *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			win.SetShouldClose(true)
		}
	})
	return w, nil
}

func (w *Window) FramebufferSize() (int, int) {
	return w.win.GetFramebufferSize()
}

func (w *Window) IsRunning() bool {
	return !w.win.ShouldClose()
}

func (w *Window) PollEvents() { glfw.PollEvents() }

func (w *Window) WaitEvents() { glfw.WaitEvents() }

// Close asks the window to close; IsRunning turns false.
func (w *Window) Close() { w.win.SetShouldClose(true) }

func (w *Window) SetTitle(title string) { w.win.SetTitle(title) }

// RequiredInstanceExtensions lists the surface extensions GLFW needs.
func (w *Window) RequiredInstanceExtensions() []string {
	return w.win.GetRequiredInstanceExtensions()
}

// CreateSurface creates the window surface on inst.
func (w *Window) CreateSurface(inst vk.Instance) (vk.Surface, error) {
	surfPtr, err := w.win.CreateWindowSurface(inst, nil)
	if err != nil {
		return vk.NullSurface, errors.Wrap(err, "glfw create window surface")
	}
	return vk.SurfaceFromPointer(surfPtr), nil
}

// ProcAddr returns the loader entry point GLFW resolved.
func (w *Window) ProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

func (w *Window) Destroy() {
	if w.win != nil {
		w.win.Destroy()
		w.win = nil
	}
}

var _ vkframe.Window = (*Window)(nil)
