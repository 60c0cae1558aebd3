package vkframe

import (
	"github.com/andewx/vkframe/hal"
	"github.com/pkg/errors"
)

// PipelineBuilder describes the graphics pipeline rebuilt with every
// swapchain. Everything except the render pass and extent is fixed here.
type PipelineBuilder struct {
	vertex     *Shader
	fragment   *Shader
	setLayouts []hal.DescriptorSetLayout
	bindings   []hal.VertexBinding
	attributes []hal.VertexAttribute
	cullMode   hal.CullMode
	frontFace  hal.FrontFace
}

func NewPipelineBuilder(vertex, fragment *Shader) *PipelineBuilder {
	return &PipelineBuilder{
		vertex:    vertex,
		fragment:  fragment,
		cullMode:  hal.CullBack,
		frontFace: hal.FrontFaceCounterClockwise,
	}
}

func (p *PipelineBuilder) WithSetLayouts(layouts ...hal.DescriptorSetLayout) *PipelineBuilder {
	p.setLayouts = layouts
	return p
}

func (p *PipelineBuilder) WithVertexLayout(bindings []hal.VertexBinding, attributes []hal.VertexAttribute) *PipelineBuilder {
	p.bindings, p.attributes = bindings, attributes
	return p
}

func (p *PipelineBuilder) WithRasterizer(cull hal.CullMode, front hal.FrontFace) *PipelineBuilder {
	p.cullMode, p.frontFace = cull, front
	return p
}

// SetShaders swaps the shader pair used by the next Build.
func (p *PipelineBuilder) SetShaders(vertex, fragment *Shader) {
	p.vertex, p.fragment = vertex, fragment
}

func (p *PipelineBuilder) Shaders() (vertex, fragment *Shader) {
	return p.vertex, p.fragment
}

// Build creates the pipeline layout and a pipeline whose viewport and
// scissor cover extent.
func (p *PipelineBuilder) Build(dev hal.Device, pass hal.RenderPass, extent hal.Extent2D, depth bool) (hal.PipelineLayout, hal.Pipeline, error) {
	if p.vertex == nil || p.fragment == nil || p.vertex.Module() == nil || p.fragment.Module() == nil {
		return nil, nil, resourceError("pipeline", errors.New("vertex and fragment shaders are required"))
	}
	layout, err := dev.CreatePipelineLayout(p.setLayouts)
	if err != nil {
		return nil, nil, resourceError("pipeline layout", err)
	}
	pipeline, err := dev.CreateGraphicsPipeline(&hal.GraphicsPipelineDescriptor{
		Layout:         layout,
		RenderPass:     pass,
		VertexShader:   p.vertex.Module(),
		FragmentShader: p.fragment.Module(),
		VertexEntry:    p.vertex.Entry(),
		FragmentEntry:  p.fragment.Entry(),
		Bindings:       p.bindings,
		Attributes:     p.attributes,
		Extent:         extent,
		CullMode:       p.cullMode,
		FrontFace:      p.frontFace,
		DepthTest:      depth,
	})
	if err != nil {
		layout.Destroy()
		return nil, nil, resourceError("graphics pipeline", err)
	}
	return layout, pipeline, nil
}
