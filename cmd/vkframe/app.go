package main

import (
	"encoding/binary"
	"fmt"

	"github.com/andewx/vkframe"
	"github.com/andewx/vkframe/glfwwindow"
	"github.com/andewx/vkframe/hal"
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

const (
	vertexStride = 5 * 4
	uniformSize  = 64
)

// x, y, z, u, v
var quadVertices = []float32{
	-0.5, -0.5, 0, 0, 1,
	0.5, -0.5, 0, 1, 1,
	0.5, 0.5, 0, 1, 0,
	-0.5, 0.5, 0, 0, 0,
}

var quadIndices = []uint32{0, 1, 2, 2, 3, 0}

var (
	quadBindings   = []hal.VertexBinding{{Binding: 0, Stride: vertexStride}}
	quadAttributes = []hal.VertexAttribute{
		{Location: 0, Binding: 0, Format: hal.FormatR32G32B32Sfloat, Offset: 0},
		{Location: 1, Binding: 0, Format: hal.FormatR32G32Sfloat, Offset: 12},
	}
)

// app records the quad and owns everything the pipeline binds.
type app struct {
	dc  *vkframe.DeviceContext
	cfg vkframe.Config

	texture   *vkframe.DeviceImage
	sampler   hal.Sampler
	vertices  *vkframe.DeviceBuffer
	indices   *vkframe.DeviceBuffer
	uniforms  [vkframe.MaxFramesInFlight]*vkframe.HostBuffer
	setLayout hal.DescriptorSetLayout
	pool      hal.DescriptorPool
	sets      [vkframe.MaxFramesInFlight]hal.DescriptorSet

	vertex, fragment *vkframe.Shader
	watcher          *vkframe.ShaderWatcher
	window           *glfwwindow.Window
}

func newApp(dc *vkframe.DeviceContext, uploader *vkframe.StagedUploader, cfg vkframe.Config) (a *app, err error) {
	a = &app{dc: dc, cfg: cfg}
	defer func() {
		if err != nil {
			a.destroy()
			a = nil
		}
	}()
	dev := dc.Device()

	tex := vkframe.Checkerboard(256, 32)
	if cfg.Texture.Path != "" {
		if tex, err = vkframe.LoadTexture(cfg.Texture.Path); err != nil {
			return a, err
		}
		tex = vkframe.FitTexture(tex, cfg.Texture.MaxSize)
	}
	if a.texture, err = uploader.UploadTexture(tex); err != nil {
		return a, err
	}
	a.sampler, err = dev.CreateSampler(&hal.SamplerDescriptor{
		MagFilter:   hal.FilterLinear,
		MinFilter:   hal.FilterLinear,
		AddressMode: hal.AddressRepeat,
	})
	if err != nil {
		return a, errors.Wrap(err, "create sampler")
	}

	if a.vertices, err = uploader.UploadToBuffer(float32Bytes(quadVertices), hal.BufferUsageVertex); err != nil {
		return a, err
	}
	if a.indices, err = uploader.UploadToBuffer(uint32Bytes(quadIndices), hal.BufferUsageIndex); err != nil {
		return a, err
	}

	// The WGSL front end keeps textures and samplers in separate bindings.
	a.setLayout, err = dev.CreateDescriptorSetLayout([]hal.DescriptorBinding{
		{Binding: 0, Type: hal.DescriptorUniformBuffer, Stages: hal.ShaderStageVertex},
		{Binding: 1, Type: hal.DescriptorSampledImage, Stages: hal.ShaderStageFragment},
		{Binding: 2, Type: hal.DescriptorSampler, Stages: hal.ShaderStageFragment},
	})
	if err != nil {
		return a, errors.Wrap(err, "create descriptor set layout")
	}
	a.pool, err = dev.CreateDescriptorPool([]hal.DescriptorPoolSize{
		{Type: hal.DescriptorUniformBuffer, Count: vkframe.MaxFramesInFlight},
		{Type: hal.DescriptorSampledImage, Count: vkframe.MaxFramesInFlight},
		{Type: hal.DescriptorSampler, Count: vkframe.MaxFramesInFlight},
	}, vkframe.MaxFramesInFlight)
	if err != nil {
		return a, errors.Wrap(err, "create descriptor pool")
	}

	// One uniform buffer and set per frame slot: a slot's buffer is only
	// rewritten after its fence wait.
	for i := range a.sets {
		if a.uniforms[i], err = uploader.CreateHostBuffer(uniformSize, hal.BufferUsageUniform); err != nil {
			return a, err
		}
		if a.sets[i], err = a.pool.Allocate(a.setLayout); err != nil {
			return a, errors.Wrap(err, "allocate descriptor set")
		}
		dev.UpdateDescriptorSets([]hal.DescriptorWrite{
			{Set: a.sets[i], Binding: 0, Type: hal.DescriptorUniformBuffer, Buffer: a.uniforms[i].Buffer, Range: uniformSize},
			{Set: a.sets[i], Binding: 1, Type: hal.DescriptorSampledImage, View: a.texture.View, Layout: hal.LayoutShaderReadOnly},
			{Set: a.sets[i], Binding: 2, Type: hal.DescriptorSampler, Sampler: a.sampler},
		})
	}
	return a, nil
}

func (a *app) RecordFrame(cmd hal.CommandBuffer, fc vkframe.FrameContext) error {
	sc := fc.Swapchain
	extent := sc.Extent()
	copy(a.uniforms[fc.Slot].Mapped, a.mvp(fc.Frame, extent).Bytes())

	clears := []hal.ClearValue{{Color: [4]float32{0.05, 0.05, 0.08, 1}}}
	if sc.HasDepth() {
		clears = append(clears, hal.ClearValue{Depth: 1, IsDepth: true})
	}
	cmd.BeginRenderPass(sc.RenderPass(), fc.Framebuffer, extent, clears)
	cmd.BindPipeline(sc.Pipeline())
	cmd.BindVertexBuffers(0, []hal.Buffer{a.vertices.Buffer}, []uint64{0})
	cmd.BindIndexBuffer(a.indices.Buffer, 0, hal.IndexUint32)
	cmd.BindDescriptorSets(sc.PipelineLayout(), 0, []hal.DescriptorSet{a.sets[fc.Slot]})
	cmd.DrawIndexed(uint32(len(quadIndices)), 1, 0, 0, 0)
	cmd.EndRenderPass()
	return nil
}

func (a *app) mvp(frame uint64, extent hal.Extent2D) vkframe.Mat4 {
	aspect := float32(extent.Width) / float32(extent.Height)
	model := vkframe.RotateY(float32(frame) * 0.01)
	view := vkframe.LookAt(vkframe.Vec3{0, 0, 2}, vkframe.Vec3{}, vkframe.Vec3{0, 1, 0})
	proj := vkframe.VulkanProjection(vkframe.Perspective(math32.Pi/4, aspect, 0.1, 10))
	return proj.Mul(view).Mul(model)
}

func (a *app) SwapchainRecreated(sc *vkframe.Swapchain) error {
	ext := sc.Extent()
	vkframe.Logger().Info("swapchain recreated", "extent", ext, "rebuilds", sc.Rebuilds())
	if a.window != nil {
		a.window.SetTitle(fmt.Sprintf("%s (%dx%d)", a.cfg.Window.Title, ext.Width, ext.Height))
	}
	return nil
}

// PrepareFrame reloads the shaders when the watcher saw them change. A
// shader that fails to compile is logged and the running pair is kept.
func (a *app) PrepareFrame(s *vkframe.FrameScheduler) error {
	if a.watcher == nil || !a.watcher.Changed() {
		return nil
	}
	dev := a.dc.Device()
	vertex, err := vkframe.LoadShader(dev, vkframe.DefaultCompiler, hal.ShaderStageVertex, a.cfg.Shaders.Vertex)
	if err != nil {
		vkframe.Logger().Warn("shader reload", "stage", hal.ShaderStageVertex, "err", err)
		return nil
	}
	fragment, err := vkframe.LoadShader(dev, vkframe.DefaultCompiler, hal.ShaderStageFragment, a.cfg.Shaders.Fragment)
	if err != nil {
		vertex.Close()
		vkframe.Logger().Warn("shader reload", "stage", hal.ShaderStageFragment, "err", err)
		return nil
	}

	s.Swapchain().SetShaders(vertex, fragment)
	if err := s.Rebuild(); err != nil {
		return err
	}
	// The rebuild waited for the device, so nothing uses the old modules.
	a.closeShaders()
	a.vertex, a.fragment = vertex, fragment
	vkframe.Logger().Info("shaders reloaded")
	return nil
}

func (a *app) closeShaders() {
	for _, sh := range []*vkframe.Shader{a.vertex, a.fragment} {
		if sh == nil {
			continue
		}
		if err := sh.Close(); err != nil {
			vkframe.Logger().Warn("close shader", "stage", sh.Stage(), "err", err)
		}
	}
	a.vertex, a.fragment = nil, nil
}

func (a *app) destroy() {
	a.closeShaders()
	for i, u := range a.uniforms {
		u.Destroy()
		a.uniforms[i] = nil
	}
	if a.pool != nil {
		a.pool.Destroy()
	}
	if a.setLayout != nil {
		a.setLayout.Destroy()
	}
	a.indices.Destroy()
	a.vertices.Destroy()
	if a.sampler != nil {
		a.sampler.Destroy()
	}
	a.texture.Destroy()
}

func float32Bytes(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math32.Float32bits(f))
	}
	return out
}

func uint32Bytes(v []uint32) []byte {
	out := make([]byte, 4*len(v))
	for i, u := range v {
		binary.LittleEndian.PutUint32(out[i*4:], u)
	}
	return out
}
