package hal

type Extent2D struct {
	Width, Height uint32
}

// Area returns the pixel count; zero for a minimized surface.
func (e Extent2D) Area() uint64 { return uint64(e.Width) * uint64(e.Height) }

type AdapterInfo struct {
	Name          string
	Type          AdapterType
	APIVersion    uint32
	DriverVersion uint32
}

type QueueFamily struct {
	Flags QueueFlags
	Count uint32
}

type SurfaceCapabilities struct {
	MinImageCount           uint32
	MaxImageCount           uint32 // 0 means unbounded
	CurrentExtent           Extent2D
	MinImageExtent          Extent2D
	MaxImageExtent          Extent2D
	CurrentTransform        uint32
	SupportedTransforms     uint32
	SupportedCompositeAlpha uint32
}

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

type DeviceDescriptor struct {
	// QueueFamilies lists each distinct family once; one queue is created per entry.
	QueueFamilies []uint32
	Extensions    []string
	Layers        []string
}

type BufferDescriptor struct {
	Size          uint64
	Usage         BufferUsage
	Sharing       SharingMode
	QueueFamilies []uint32
}

type ImageDescriptor struct {
	Extent        Extent2D
	Format        Format
	Usage         ImageUsage
	Sharing       SharingMode
	QueueFamilies []uint32
}

type MemoryRequirements struct {
	Size      uint64
	Alignment uint64
	TypeBits  uint32
}

type ImageViewDescriptor struct {
	Image  Image
	Format Format
	Aspect ImageAspect
}

type SamplerDescriptor struct {
	MagFilter     Filter
	MinFilter     Filter
	AddressMode   AddressMode
	MaxAnisotropy float32
}

type SwapchainDescriptor struct {
	Surface        Surface
	MinImageCount  uint32
	Format         Format
	ColorSpace     ColorSpace
	Extent         Extent2D
	Usage          ImageUsage
	Sharing        SharingMode
	QueueFamilies  []uint32
	PreTransform   uint32
	CompositeAlpha uint32
	PresentMode    PresentMode
	Old            Swapchain
}

type RenderPassDescriptor struct {
	ColorFormat Format
	// DepthFormat is FormatUndefined when the pass has no depth attachment.
	DepthFormat Format
	FinalLayout ImageLayout
}

type FramebufferDescriptor struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      Extent2D
}

type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

// DescriptorWrite points one binding of a set at either a buffer range or an
// image view and sampler.
type DescriptorWrite struct {
	Set     DescriptorSet
	Binding uint32
	Type    DescriptorType

	Buffer Buffer
	Offset uint64
	Range  uint64

	View    ImageView
	Sampler Sampler
	Layout  ImageLayout
}

type VertexBinding struct {
	Binding uint32
	Stride  uint32
}

type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   Format
	Offset   uint32
}

type GraphicsPipelineDescriptor struct {
	Layout         PipelineLayout
	RenderPass     RenderPass
	VertexShader   ShaderModule
	FragmentShader ShaderModule
	VertexEntry    string
	FragmentEntry  string
	Bindings       []VertexBinding
	Attributes     []VertexAttribute
	// Extent fixes the viewport and scissor.
	Extent    Extent2D
	CullMode  CullMode
	FrontFace FrontFace
	DepthTest bool
}

type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	WaitStages       []PipelineStage
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
}

type PresentInfo struct {
	WaitSemaphores []Semaphore
	Swapchain      Swapchain
	ImageIndex     uint32
}

type BufferCopy struct {
	SrcOffset, DstOffset, Size uint64
}

type ImageBarrier struct {
	Image     Image
	Aspect    ImageAspect
	OldLayout ImageLayout
	NewLayout ImageLayout
	SrcAccess Access
	DstAccess Access
}

// ClearValue is either a color or a depth clear.
type ClearValue struct {
	Color [4]float32
	Depth float32
	// IsDepth selects Depth over Color.
	IsDepth bool
}
