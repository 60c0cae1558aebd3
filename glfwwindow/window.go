// Package glfwwindow provides the GLFW window the frame scheduler drives.
package glfwwindow

import (
	"runtime"
	"sync/atomic"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pkg/errors"
)

type options struct {
	width, height int
	title         string
	resizable     bool
}

type Option func(*options)

func WithSize(width, height int) Option {
	return func(o *options) { o.width, o.height = width, height }
}

func WithTitle(title string) Option {
	return func(o *options) { o.title = title }
}

func WithResizable(resizable bool) Option {
	return func(o *options) { o.resizable = resizable }
}

// Window is a GLFW window without a client API, ready for a Vulkan surface.
// All methods must be called from the thread that called New.
type Window struct {
	win     *glfw.Window
	resized atomic.Bool
}

// New initializes GLFW, locks the calling goroutine to its OS thread and
// opens a window. Close terminates GLFW.
func New(opts ...Option) (*Window, error) {
	o := options{width: 800, height: 600, title: "vkframe", resizable: true}
	for _, opt := range opts {
		opt(&o)
	}

	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return nil, errors.Wrap(err, "initialize glfw")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return nil, errors.New("glfw: vulkan loader not found")
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Visible, glfw.True)
	resizable := glfw.False
	if o.resizable {
		resizable = glfw.True
	}
	glfw.WindowHint(glfw.Resizable, resizable)

	win, err := glfw.CreateWindow(o.width, o.height, o.title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, errors.Wrap(err, "create glfw window")
	}
	w := &Window{win: win}
	// Framebuffer size, not window size: they differ on high-DPI displays.
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.resized.Store(true)
	})
	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			win.SetShouldClose(true)
		}
	})
	return w, nil
}

// GLFW returns the underlying window for surface creation.
func (w *Window) GLFW() *glfw.Window { return w.win }

// RequiredInstanceExtensions lists the Vulkan instance extensions needed to
// present to this window.
func (w *Window) RequiredInstanceExtensions() []string {
	return w.win.GetRequiredInstanceExtensions()
}

func (w *Window) FramebufferSize() (int, int) { return w.win.GetFramebufferSize() }

// Resized reports whether the framebuffer changed size since the last call.
func (w *Window) Resized() bool { return w.resized.Swap(false) }

func (w *Window) PollEvents() { glfw.PollEvents() }

func (w *Window) WaitEvents() { glfw.WaitEvents() }

func (w *Window) ShouldClose() bool { return w.win.ShouldClose() }

func (w *Window) SetTitle(title string) { w.win.SetTitle(title) }

func (w *Window) Close() {
	if w.win == nil {
		return
	}
	w.win.Destroy()
	w.win = nil
	glfw.Terminate()
}
