package hal

// The numeric values of every enum and flag type in this file match their
// Vulkan counterparts.

type AdapterType uint32

const (
	AdapterTypeOther AdapterType = iota
	AdapterTypeIntegratedGPU
	AdapterTypeDiscreteGPU
	AdapterTypeVirtualGPU
	AdapterTypeCPU
)

func (t AdapterType) String() string {
	switch t {
	case AdapterTypeIntegratedGPU:
		return "integrated"
	case AdapterTypeDiscreteGPU:
		return "discrete"
	case AdapterTypeVirtualGPU:
		return "virtual"
	case AdapterTypeCPU:
		return "cpu"
	}
	return "other"
}

type QueueFlags uint32

const (
	QueueGraphics QueueFlags = 0x1
	QueueCompute  QueueFlags = 0x2
	QueueTransfer QueueFlags = 0x4
)

type Format uint32

const (
	FormatUndefined          Format = 0
	FormatR8G8B8A8Unorm      Format = 37
	FormatR8G8B8A8Srgb       Format = 43
	FormatB8G8R8A8Unorm      Format = 44
	FormatB8G8R8A8Srgb       Format = 50
	FormatR32G32Sfloat       Format = 103
	FormatR32G32B32Sfloat    Format = 106
	FormatR32G32B32A32Sfloat Format = 109
	FormatD32Sfloat          Format = 126
)

// BytesPerPixel returns the texel size of color and depth formats used by
// this package, or 0 for formats it does not know.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatR8G8B8A8Unorm, FormatR8G8B8A8Srgb, FormatB8G8R8A8Unorm, FormatB8G8R8A8Srgb, FormatD32Sfloat:
		return 4
	case FormatR32G32Sfloat:
		return 8
	case FormatR32G32B32Sfloat:
		return 12
	case FormatR32G32B32A32Sfloat:
		return 16
	}
	return 0
}

type ColorSpace uint32

const ColorSpaceSrgbNonlinear ColorSpace = 0

type PresentMode uint32

const (
	PresentModeImmediate PresentMode = iota
	PresentModeMailbox
	PresentModeFifo
	PresentModeFifoRelaxed
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFifo:
		return "fifo"
	case PresentModeFifoRelaxed:
		return "fifo-relaxed"
	}
	return "unknown"
}

type SharingMode uint32

const (
	SharingExclusive SharingMode = iota
	SharingConcurrent
)

type ImageLayout uint32

const (
	LayoutUndefined              ImageLayout = 0
	LayoutGeneral                ImageLayout = 1
	LayoutColorAttachment        ImageLayout = 2
	LayoutDepthStencilAttachment ImageLayout = 3
	LayoutShaderReadOnly         ImageLayout = 5
	LayoutTransferSrc            ImageLayout = 6
	LayoutTransferDst            ImageLayout = 7
	LayoutPresentSrc             ImageLayout = 1000001002
)

type PipelineStage uint32

const (
	StageTopOfPipe             PipelineStage = 0x1
	StageVertexInput           PipelineStage = 0x4
	StageVertexShader          PipelineStage = 0x8
	StageFragmentShader        PipelineStage = 0x80
	StageEarlyFragmentTests    PipelineStage = 0x100
	StageLateFragmentTests     PipelineStage = 0x200
	StageColorAttachmentOutput PipelineStage = 0x400
	StageTransfer              PipelineStage = 0x1000
	StageBottomOfPipe          PipelineStage = 0x2000
	StageAllCommands           PipelineStage = 0x10000
)

type Access uint32

const (
	AccessNone                        Access = 0
	AccessUniformRead                 Access = 0x8
	AccessShaderRead                  Access = 0x20
	AccessColorAttachmentRead         Access = 0x80
	AccessColorAttachmentWrite        Access = 0x100
	AccessDepthStencilAttachmentRead  Access = 0x200
	AccessDepthStencilAttachmentWrite Access = 0x400
	AccessTransferRead                Access = 0x800
	AccessTransferWrite               Access = 0x1000
)

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 0x1
	BufferUsageTransferDst BufferUsage = 0x2
	BufferUsageUniform     BufferUsage = 0x10
	BufferUsageStorage     BufferUsage = 0x20
	BufferUsageIndex       BufferUsage = 0x40
	BufferUsageVertex      BufferUsage = 0x80
)

type ImageUsage uint32

const (
	ImageUsageTransferSrc     ImageUsage = 0x1
	ImageUsageTransferDst     ImageUsage = 0x2
	ImageUsageSampled         ImageUsage = 0x4
	ImageUsageColorAttachment ImageUsage = 0x10
	ImageUsageDepthStencil    ImageUsage = 0x20
)

type MemoryProperty uint32

const (
	MemoryDeviceLocal  MemoryProperty = 0x1
	MemoryHostVisible  MemoryProperty = 0x2
	MemoryHostCoherent MemoryProperty = 0x4
)

type ImageAspect uint32

const (
	AspectColor ImageAspect = 0x1
	AspectDepth ImageAspect = 0x2
)

type IndexType uint32

const (
	IndexUint16 IndexType = iota
	IndexUint32
)

type DescriptorType uint32

const (
	DescriptorSampler              DescriptorType = 0
	DescriptorCombinedImageSampler DescriptorType = 1
	DescriptorSampledImage         DescriptorType = 2
	DescriptorUniformBuffer        DescriptorType = 6
)

type ShaderStage uint32

const (
	ShaderStageVertex   ShaderStage = 0x1
	ShaderStageFragment ShaderStage = 0x10
	ShaderStageCompute  ShaderStage = 0x20
)

func (s ShaderStage) String() string {
	switch s {
	case ShaderStageVertex:
		return "vertex"
	case ShaderStageFragment:
		return "fragment"
	case ShaderStageCompute:
		return "compute"
	}
	return "unknown"
}

type CullMode uint32

const (
	CullNone  CullMode = 0
	CullFront CullMode = 1
	CullBack  CullMode = 2
)

type FrontFace uint32

const (
	FrontFaceCounterClockwise FrontFace = iota
	FrontFaceClockwise
)

type Filter uint32

const (
	FilterNearest Filter = iota
	FilterLinear
)

type AddressMode uint32

const (
	AddressRepeat AddressMode = iota
	AddressMirroredRepeat
	AddressClampToEdge
)

const (
	SurfaceTransformIdentity uint32 = 0x1
	CompositeAlphaOpaque     uint32 = 0x1
)

// Infinite is the unbounded timeout for fence waits and image acquisition.
const Infinite = ^uint64(0)

// UndefinedExtent is the surface extent sentinel meaning the swapchain
// decides its own size.
const UndefinedExtent = ^uint32(0)
