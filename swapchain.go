package vkframe

import (
	"fmt"

	"github.com/andewx/vkframe/hal"
	"github.com/pkg/errors"
)

type SwapchainState int

const (
	SwapchainUninitialized SwapchainState = iota
	SwapchainActive
	SwapchainRebuilding
	SwapchainDestroyed
)

func (s SwapchainState) String() string {
	switch s {
	case SwapchainUninitialized:
		return "uninitialized"
	case SwapchainActive:
		return "active"
	case SwapchainRebuilding:
		return "rebuilding"
	case SwapchainDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("SwapchainState(%d)", int(s))
}

// DepthFormat is the depth attachment format.
const DepthFormat = hal.FormatD32Sfloat

// PreferredSurfaceFormat is used whenever the surface offers it.
var PreferredSurfaceFormat = hal.SurfaceFormat{Format: hal.FormatB8G8R8A8Srgb, ColorSpace: hal.ColorSpaceSrgbNonlinear}

type SwapchainOptions struct {
	// PresentMode is used when the surface offers it, otherwise FIFO.
	PresentMode hal.PresentMode
	Depth       bool
}

type depthTarget struct {
	image  hal.Image
	memory hal.Memory
	view   hal.ImageView
}

func (d *depthTarget) destroy() {
	if d.view != nil {
		d.view.Destroy()
	}
	if d.image != nil {
		d.image.Destroy()
	}
	if d.memory != nil {
		d.memory.Free()
	}
}

// Swapchain owns every object whose validity depends on the surface size
// and format: the image chain and its views, the depth target, the render
// pass, the framebuffers and the graphics pipeline. The group is always
// destroyed and rebuilt as a whole.
type Swapchain struct {
	ctx      *DeviceContext
	surface  hal.Surface
	opts     SwapchainOptions
	pipeline *PipelineBuilder

	state    SwapchainState
	rebuilds int

	format      hal.SurfaceFormat
	extent      hal.Extent2D
	presentMode hal.PresentMode

	chain          hal.Swapchain
	images         []hal.Image
	views          []hal.ImageView
	depth          *depthTarget
	renderPass     hal.RenderPass
	framebuffers   []hal.Framebuffer
	pipelineLayout hal.PipelineLayout
	graphics       hal.Pipeline
}

func NewSwapchain(ctx *DeviceContext, surface hal.Surface, pipeline *PipelineBuilder, opts SwapchainOptions) *Swapchain {
	return &Swapchain{ctx: ctx, surface: surface, pipeline: pipeline, opts: opts}
}

func (s *Swapchain) State() SwapchainState                { return s.state }
func (s *Swapchain) Rebuilds() int                        { return s.rebuilds }
func (s *Swapchain) Format() hal.SurfaceFormat            { return s.format }
func (s *Swapchain) Extent() hal.Extent2D                 { return s.extent }
func (s *Swapchain) PresentMode() hal.PresentMode         { return s.presentMode }
func (s *Swapchain) ImageCount() int                      { return len(s.images) }
func (s *Swapchain) Chain() hal.Swapchain                 { return s.chain }
func (s *Swapchain) RenderPass() hal.RenderPass           { return s.renderPass }
func (s *Swapchain) Framebuffer(i uint32) hal.Framebuffer { return s.framebuffers[i] }
func (s *Swapchain) Pipeline() hal.Pipeline               { return s.graphics }
func (s *Swapchain) PipelineLayout() hal.PipelineLayout   { return s.pipelineLayout }
func (s *Swapchain) Pipelines() *PipelineBuilder          { return s.pipeline }
func (s *Swapchain) HasDepth() bool                       { return s.opts.Depth }

// SetShaders swaps the shader pair. The pipeline is rebuilt with it on the
// next Recreate; the caller keeps ownership of both shaders.
func (s *Swapchain) SetShaders(vertex, fragment *Shader) {
	s.pipeline.SetShaders(vertex, fragment)
}

// Create builds the swapchain group for a surface of the given size. The
// size is only used when the surface lets the swapchain pick its extent.
func (s *Swapchain) Create(size hal.Extent2D) error {
	if s.state == SwapchainActive || s.state == SwapchainDestroyed {
		return errors.Errorf("create swapchain in state %s", s.state)
	}
	if err := s.build(size); err != nil {
		s.teardown()
		s.state = SwapchainUninitialized
		return err
	}
	s.state = SwapchainActive
	Logger().Info("swapchain created",
		"width", s.extent.Width, "height", s.extent.Height,
		"images", len(s.images), "format", s.format.Format, "present_mode", s.presentMode)
	return nil
}

// Recreate waits for the device to go idle, destroys the group and builds
// it again for size.
func (s *Swapchain) Recreate(size hal.Extent2D) error {
	if s.state != SwapchainActive {
		return errors.Errorf("recreate swapchain in state %s", s.state)
	}
	s.state = SwapchainRebuilding
	if err := s.ctx.WaitIdle(); err != nil {
		// Nothing was torn down; the old group is still whole.
		s.state = SwapchainActive
		return err
	}
	s.teardown()
	s.rebuilds++
	Logger().Debug("swapchain rebuilding", "rebuild", s.rebuilds, "width", size.Width, "height", size.Height)
	return s.Create(size)
}

// Destroy waits for the device to go idle and destroys the group. It is
// safe to call in any state.
func (s *Swapchain) Destroy() error {
	if s.state == SwapchainDestroyed {
		return nil
	}
	var err error
	if s.state != SwapchainUninitialized {
		err = s.ctx.WaitIdle()
	}
	s.teardown()
	s.state = SwapchainDestroyed
	return err
}

// teardown destroys the group in dependency order. Fields are nil'd so a
// partially built group can be torn down as well.
func (s *Swapchain) teardown() {
	for _, fb := range s.framebuffers {
		fb.Destroy()
	}
	s.framebuffers = nil
	if s.graphics != nil {
		s.graphics.Destroy()
		s.graphics = nil
	}
	if s.pipelineLayout != nil {
		s.pipelineLayout.Destroy()
		s.pipelineLayout = nil
	}
	if s.renderPass != nil {
		s.renderPass.Destroy()
		s.renderPass = nil
	}
	if s.depth != nil {
		s.depth.destroy()
		s.depth = nil
	}
	for _, v := range s.views {
		v.Destroy()
	}
	s.views = nil
	s.images = nil
	if s.chain != nil {
		s.chain.Destroy()
		s.chain = nil
	}
}

func (s *Swapchain) build(size hal.Extent2D) error {
	adapter, dev := s.ctx.Adapter(), s.ctx.Device()
	caps, err := adapter.SurfaceCapabilities(s.surface)
	if err != nil {
		return resourceError("surface capabilities", err)
	}
	formats, err := adapter.SurfaceFormats(s.surface)
	if err != nil {
		return resourceError("surface formats", err)
	}
	modes, err := adapter.PresentModes(s.surface)
	if err != nil {
		return resourceError("present modes", err)
	}

	s.extent = ChooseExtent(caps, size)
	if s.extent.Area() == 0 {
		return errors.WithStack(ErrZeroExtent)
	}
	if s.format, err = ChooseSurfaceFormat(formats); err != nil {
		return err
	}
	s.presentMode = ChoosePresentMode(modes, s.opts.PresentMode)

	desc := &hal.SwapchainDescriptor{
		Surface:        s.surface,
		MinImageCount:  ChooseImageCount(caps),
		Format:         s.format.Format,
		ColorSpace:     s.format.ColorSpace,
		Extent:         s.extent,
		Usage:          hal.ImageUsageColorAttachment,
		PreTransform:   chooseTransform(caps),
		CompositeAlpha: chooseCompositeAlpha(caps),
		PresentMode:    s.presentMode,
	}
	fam := s.ctx.Families()
	if fam.SharedGraphicsPresent() {
		desc.Sharing = hal.SharingExclusive
	} else {
		desc.Sharing = hal.SharingConcurrent
		desc.QueueFamilies = []uint32{fam.Graphics.Index(), fam.Present.Index()}
	}
	if s.chain, err = dev.CreateSwapchain(desc); err != nil {
		return resourceError("swapchain", err)
	}
	if s.images, err = dev.SwapchainImages(s.chain); err != nil {
		return resourceError("swapchain images", err)
	}
	for _, img := range s.images {
		view, err := dev.CreateImageView(&hal.ImageViewDescriptor{Image: img, Format: s.format.Format, Aspect: hal.AspectColor})
		if err != nil {
			return resourceError("swapchain image view", err)
		}
		s.views = append(s.views, view)
	}
	if s.opts.Depth {
		if err := s.buildDepth(); err != nil {
			return err
		}
	}

	rp := &hal.RenderPassDescriptor{ColorFormat: s.format.Format, FinalLayout: hal.LayoutPresentSrc}
	if s.opts.Depth {
		rp.DepthFormat = DepthFormat
	}
	if s.renderPass, err = dev.CreateRenderPass(rp); err != nil {
		return resourceError("render pass", err)
	}
	for _, view := range s.views {
		attachments := []hal.ImageView{view}
		if s.depth != nil {
			attachments = append(attachments, s.depth.view)
		}
		fb, err := dev.CreateFramebuffer(&hal.FramebufferDescriptor{RenderPass: s.renderPass, Attachments: attachments, Extent: s.extent})
		if err != nil {
			return resourceError("framebuffer", err)
		}
		s.framebuffers = append(s.framebuffers, fb)
	}
	s.pipelineLayout, s.graphics, err = s.pipeline.Build(dev, s.renderPass, s.extent, s.opts.Depth)
	return err
}

func (s *Swapchain) buildDepth() error {
	dev := s.ctx.Device()
	d := &depthTarget{}
	s.depth = d
	var err error
	d.image, err = dev.CreateImage(&hal.ImageDescriptor{Extent: s.extent, Format: DepthFormat, Usage: hal.ImageUsageDepthStencil})
	if err != nil {
		return resourceError("depth image", err)
	}
	if d.memory, err = dev.AllocateMemory(d.image.MemoryRequirements(), hal.MemoryDeviceLocal); err != nil {
		return resourceError("depth memory", err)
	}
	if err = dev.BindImageMemory(d.image, d.memory); err != nil {
		return resourceError("bind depth memory", err)
	}
	d.view, err = dev.CreateImageView(&hal.ImageViewDescriptor{Image: d.image, Format: DepthFormat, Aspect: hal.AspectDepth})
	if err != nil {
		return resourceError("depth view", err)
	}
	return nil
}

// ChooseExtent returns the surface's current extent, or size clamped to the
// supported range when the surface reports the undefined-extent sentinel.
func ChooseExtent(caps hal.SurfaceCapabilities, size hal.Extent2D) hal.Extent2D {
	if caps.CurrentExtent.Width != hal.UndefinedExtent {
		return caps.CurrentExtent
	}
	return hal.Extent2D{
		Width:  clamp(size.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(size.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
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

// ChooseImageCount requests one image more than the minimum, bounded by the
// maximum when the surface has one.
func ChooseImageCount(caps hal.SurfaceCapabilities) uint32 {
	n := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && n > caps.MaxImageCount {
		n = caps.MaxImageCount
	}
	return n
}

// ChooseSurfaceFormat picks PreferredSurfaceFormat when offered. A single
// undefined entry means any format is allowed.
func ChooseSurfaceFormat(formats []hal.SurfaceFormat) (hal.SurfaceFormat, error) {
	if len(formats) == 0 {
		return hal.SurfaceFormat{}, resourceError("swapchain", errors.New("surface offers no formats"))
	}
	if len(formats) == 1 && formats[0].Format == hal.FormatUndefined {
		return PreferredSurfaceFormat, nil
	}
	for _, f := range formats {
		if f == PreferredSurfaceFormat {
			return f, nil
		}
	}
	return formats[0], nil
}

// ChoosePresentMode returns preferred when offered. FIFO is always available.
func ChoosePresentMode(modes []hal.PresentMode, preferred hal.PresentMode) hal.PresentMode {
	for _, m := range modes {
		if m == preferred {
			return m
		}
	}
	return hal.PresentModeFifo
}

func chooseTransform(caps hal.SurfaceCapabilities) uint32 {
	if caps.SupportedTransforms&hal.SurfaceTransformIdentity != 0 {
		return hal.SurfaceTransformIdentity
	}
	return caps.CurrentTransform
}

func chooseCompositeAlpha(caps hal.SurfaceCapabilities) uint32 {
	if caps.SupportedCompositeAlpha&hal.CompositeAlphaOpaque != 0 || caps.SupportedCompositeAlpha == 0 {
		return hal.CompositeAlphaOpaque
	}
	// lowest supported bit
	return caps.SupportedCompositeAlpha & -caps.SupportedCompositeAlpha
}
