package vulkan

import (
	"github.com/andewx/vkframe/hal"
	vk "github.com/vulkan-go/vulkan"
)

type (
	RenderPass          = handle[vk.RenderPass]
	Framebuffer         = handle[vk.Framebuffer]
	ShaderModule        = handle[vk.ShaderModule]
	DescriptorSetLayout = handle[vk.DescriptorSetLayout]
	PipelineLayout      = handle[vk.PipelineLayout]
	Pipeline            = handle[vk.Pipeline]
)

// externalDependency orders the pass's first attachment writes after the
// acquire semaphore wait at color attachment output. The depth image is
// shared by every frame in flight, so its writes also wait for the previous
// frame's late fragment tests.
func externalDependency(depth bool) vk.SubpassDependency {
	stage := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	access := vk.AccessFlags(vk.AccessColorAttachmentWriteBit)
	dep := vk.SubpassDependency{
		SrcSubpass:    vk.MaxUint32,
		DstSubpass:    0,
		SrcStageMask:  stage,
		DstStageMask:  stage,
		DstAccessMask: access,
	}
	if depth {
		dep.SrcStageMask |= vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit)
		dep.SrcAccessMask |= vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
		dep.DstStageMask |= vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)
		dep.DstAccessMask |= vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
	}
	return dep
}

// CreateRenderPass creates a single-subpass pass with a cleared color
// attachment and, when DepthFormat is set, a cleared depth attachment.
func (d *Device) CreateRenderPass(desc *hal.RenderPassDescriptor) (hal.RenderPass, error) {
	attachments := []vk.AttachmentDescription{{
		Format:         vk.Format(desc.ColorFormat),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayout(desc.FinalLayout),
	}}
	colorRefs := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    colorRefs,
	}
	depth := desc.DepthFormat != hal.FormatUndefined
	if depth {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         vk.Format(desc.DepthFormat),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}
	dependencies := []vk.SubpassDependency{externalDependency(depth)}

	var h vk.RenderPass
	ret := vk.CreateRenderPass(d.handle, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}, nil, &h)
	if isError(ret) {
		return nil, newError(ret)
	}
	return newHandle(d, h, vk.DestroyRenderPass), nil
}

func (d *Device) CreateFramebuffer(desc *hal.FramebufferDescriptor) (hal.Framebuffer, error) {
	views := make([]vk.ImageView, len(desc.Attachments))
	for i, v := range desc.Attachments {
		views[i] = v.(*handle[vk.ImageView]).h
	}
	var h vk.Framebuffer
	ret := vk.CreateFramebuffer(d.handle, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      desc.RenderPass.(*RenderPass).h,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           desc.Extent.Width,
		Height:          desc.Extent.Height,
		Layers:          1,
	}, nil, &h)
	if isError(ret) {
		return nil, newError(ret)
	}
	return newHandle(d, h, vk.DestroyFramebuffer), nil
}

func (d *Device) CreateShaderModule(code []uint32) (hal.ShaderModule, error) {
	var h vk.ShaderModule
	ret := vk.CreateShaderModule(d.handle, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}, nil, &h)
	if isError(ret) {
		return nil, newError(ret)
	}
	return newHandle(d, h, vk.DestroyShaderModule), nil
}

func (d *Device) CreateDescriptorSetLayout(bindings []hal.DescriptorBinding) (hal.DescriptorSetLayout, error) {
	list := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		count := b.Count
		if count == 0 {
			count = 1
		}
		list[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorType(b.Type),
			DescriptorCount: count,
			StageFlags:      vk.ShaderStageFlags(b.Stages),
		}
	}
	var h vk.DescriptorSetLayout
	ret := vk.CreateDescriptorSetLayout(d.handle, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(list)),
		PBindings:    list,
	}, nil, &h)
	if isError(ret) {
		return nil, newError(ret)
	}
	return newHandle(d, h, vk.DestroyDescriptorSetLayout), nil
}

type DescriptorPool struct {
	*handle[vk.DescriptorPool]
}

func (d *Device) CreateDescriptorPool(sizes []hal.DescriptorPoolSize, maxSets uint32) (hal.DescriptorPool, error) {
	list := make([]vk.DescriptorPoolSize, len(sizes))
	for i, s := range sizes {
		list[i] = vk.DescriptorPoolSize{Type: vk.DescriptorType(s.Type), DescriptorCount: s.Count}
	}
	var h vk.DescriptorPool
	ret := vk.CreateDescriptorPool(d.handle, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(list)),
		PPoolSizes:    list,
	}, nil, &h)
	if isError(ret) {
		return nil, newError(ret)
	}
	return &DescriptorPool{newHandle(d, h, vk.DestroyDescriptorPool)}, nil
}

func (p *DescriptorPool) Allocate(layout hal.DescriptorSetLayout) (hal.DescriptorSet, error) {
	var h vk.DescriptorSet
	ret := vk.AllocateDescriptorSets(p.dev.handle, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.h,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout.(*DescriptorSetLayout).h},
	}, &h)
	if isError(ret) {
		return nil, newError(ret)
	}
	return &DescriptorSet{handle: h, layout: layout}, nil
}

// DescriptorSet is freed with its pool.
type DescriptorSet struct {
	handle vk.DescriptorSet
	layout hal.DescriptorSetLayout
}

func (s *DescriptorSet) Layout() hal.DescriptorSetLayout { return s.layout }

func (d *Device) UpdateDescriptorSets(writes []hal.DescriptorWrite) {
	list := make([]vk.WriteDescriptorSet, len(writes))
	for i, w := range writes {
		ws := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          w.Set.(*DescriptorSet).handle,
			DstBinding:      w.Binding,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorType(w.Type),
		}
		if w.Buffer != nil {
			ws.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: w.Buffer.(*Buffer).h,
				Offset: vk.DeviceSize(w.Offset),
				Range:  vk.DeviceSize(w.Range),
			}}
		} else {
			info := vk.DescriptorImageInfo{ImageLayout: vk.ImageLayout(w.Layout)}
			if w.View != nil {
				info.ImageView = w.View.(*handle[vk.ImageView]).h
			}
			if w.Sampler != nil {
				info.Sampler = w.Sampler.(*handle[vk.Sampler]).h
			}
			ws.PImageInfo = []vk.DescriptorImageInfo{info}
		}
		list[i] = ws
	}
	vk.UpdateDescriptorSets(d.handle, uint32(len(list)), list, 0, nil)
}

func (d *Device) CreatePipelineLayout(setLayouts []hal.DescriptorSetLayout) (hal.PipelineLayout, error) {
	layouts := make([]vk.DescriptorSetLayout, len(setLayouts))
	for i, l := range setLayouts {
		layouts[i] = l.(*DescriptorSetLayout).h
	}
	var h vk.PipelineLayout
	ret := vk.CreatePipelineLayout(d.handle, &vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(layouts)),
		PSetLayouts:    layouts,
	}, nil, &h)
	if isError(ret) {
		return nil, newError(ret)
	}
	return newHandle(d, h, vk.DestroyPipelineLayout), nil
}

// CreateGraphicsPipeline builds a triangle-list pipeline with a fixed
// viewport covering desc.Extent and no blending.
func (d *Device) CreateGraphicsPipeline(desc *hal.GraphicsPipelineDescriptor) (hal.Pipeline, error) {
	stages := []vk.PipelineShaderStageCreateInfo{{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageVertexBit,
		Module: desc.VertexShader.(*ShaderModule).h,
		PName:  safeString(desc.VertexEntry),
	}, {
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFragmentBit,
		Module: desc.FragmentShader.(*ShaderModule).h,
		PName:  safeString(desc.FragmentEntry),
	}}

	bindings := make([]vk.VertexInputBindingDescription, len(desc.Bindings))
	for i, b := range desc.Bindings {
		bindings[i] = vk.VertexInputBindingDescription{Binding: b.Binding, Stride: b.Stride, InputRate: vk.VertexInputRateVertex}
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(desc.Attributes))
	for i, a := range desc.Attributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  a.Binding,
			Format:   vk.Format(a.Format),
			Offset:   a.Offset,
		}
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}
	assembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}
	viewport := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports: []vk.Viewport{{
			Width:    float32(desc.Extent.Width),
			Height:   float32(desc.Extent.Height),
			MinDepth: 0,
			MaxDepth: 1,
		}},
		ScissorCount: 1,
		PScissors:    []vk.Rect2D{{Extent: vkExtent(desc.Extent)}},
	}
	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		CullMode:    vk.CullModeFlags(desc.CullMode),
		FrontFace:   vk.FrontFace(desc.FrontFace),
		LineWidth:   1.0,
	}
	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}
	blend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments: []vk.PipelineColorBlendAttachmentState{{
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
				vk.ColorComponentBBit | vk.ColorComponentABit),
		}},
	}
	depth := vk.PipelineDepthStencilStateCreateInfo{
		SType: vk.StructureTypePipelineDepthStencilStateCreateInfo,
	}
	if desc.DepthTest {
		depth.DepthTestEnable = vk.True
		depth.DepthWriteEnable = vk.True
		depth.DepthCompareOp = vk.CompareOpLessOrEqual
		depth.MaxDepthBounds = 1
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &assembly,
		PViewportState:      &viewport,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisample,
		PDepthStencilState:  &depth,
		PColorBlendState:    &blend,
		Layout:              desc.Layout.(*PipelineLayout).h,
		RenderPass:          desc.RenderPass.(*RenderPass).h,
		Subpass:             0,
	}
	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateGraphicsPipelines(d.handle, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines)
	if isError(ret) {
		return nil, newError(ret)
	}
	return newHandle(d, pipelines[0], vk.DestroyPipeline), nil
}
