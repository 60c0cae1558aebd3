// Package hal is the GPU driver boundary. Every object the renderer creates
// is an opaque handle behind one of these interfaces; the Vulkan backend lives
// in hal/vulkan and a recording driver for tests in hal/haltest.
package hal

// Instance is the driver entry point.
type Instance interface {
	EnumerateAdapters() ([]Adapter, error)
	Destroy()
}

// Adapter is a physical device.
type Adapter interface {
	Info() AdapterInfo
	QueueFamilies() []QueueFamily
	SurfaceSupport(family uint32, surface Surface) (bool, error)
	SurfaceCapabilities(surface Surface) (SurfaceCapabilities, error)
	SurfaceFormats(surface Surface) ([]SurfaceFormat, error)
	PresentModes(surface Surface) ([]PresentMode, error)
	Open(desc *DeviceDescriptor) (Device, error)
}

type Surface interface {
	Destroy()
}

// Device is a logical device. Queue handles are owned by the device.
type Device interface {
	Queue(family uint32) Queue
	WaitIdle() error
	Destroy()

	CreateBuffer(desc *BufferDescriptor) (Buffer, error)
	CreateImage(desc *ImageDescriptor) (Image, error)
	AllocateMemory(req MemoryRequirements, props MemoryProperty) (Memory, error)
	BindBufferMemory(b Buffer, m Memory) error
	BindImageMemory(img Image, m Memory) error
	MapMemory(m Memory, offset, size uint64) ([]byte, error)
	UnmapMemory(m Memory)
	CreateImageView(desc *ImageViewDescriptor) (ImageView, error)
	CreateSampler(desc *SamplerDescriptor) (Sampler, error)

	CreateFence(signaled bool) (Fence, error)
	WaitForFence(f Fence, timeout uint64) error
	ResetFence(f Fence) error
	CreateSemaphore() (Semaphore, error)
	CreateCommandPool(family uint32, resettable bool) (CommandPool, error)

	CreateSwapchain(desc *SwapchainDescriptor) (Swapchain, error)
	SwapchainImages(sc Swapchain) ([]Image, error)
	// AcquireNextImage returns ErrorOutOfDate and Suboptimal as results
	// rather than errors; the caller decides how to react.
	AcquireNextImage(sc Swapchain, timeout uint64, signal Semaphore) (uint32, Result)

	CreateRenderPass(desc *RenderPassDescriptor) (RenderPass, error)
	CreateFramebuffer(desc *FramebufferDescriptor) (Framebuffer, error)
	CreateShaderModule(code []uint32) (ShaderModule, error)
	CreateDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorSetLayout, error)
	CreateDescriptorPool(sizes []DescriptorPoolSize, maxSets uint32) (DescriptorPool, error)
	UpdateDescriptorSets(writes []DescriptorWrite)
	CreatePipelineLayout(setLayouts []DescriptorSetLayout) (PipelineLayout, error)
	CreateGraphicsPipeline(desc *GraphicsPipelineDescriptor) (Pipeline, error)
}

type Queue interface {
	Family() uint32
	Submit(submits []SubmitInfo, fence Fence) error
	WaitIdle() error
	Present(info *PresentInfo) Result
}

type CommandPool interface {
	Allocate() (CommandBuffer, error)
	Destroy()
}

// CommandBuffer records work for a single queue submission. Destroy returns
// it to its pool.
type CommandBuffer interface {
	Begin(oneTime bool) error
	End() error
	Reset() error
	Destroy()

	CopyBuffer(src, dst Buffer, regions []BufferCopy)
	CopyBufferToImage(src Buffer, dst Image, layout ImageLayout, width, height uint32)
	PipelineBarrier(src, dst PipelineStage, barriers []ImageBarrier)

	BeginRenderPass(rp RenderPass, fb Framebuffer, area Extent2D, clear []ClearValue)
	EndRenderPass()
	BindPipeline(p Pipeline)
	BindVertexBuffers(first uint32, buffers []Buffer, offsets []uint64)
	BindIndexBuffer(b Buffer, offset uint64, t IndexType)
	BindDescriptorSets(layout PipelineLayout, first uint32, sets []DescriptorSet)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
}

type Buffer interface {
	Size() uint64
	MemoryRequirements() MemoryRequirements
	Destroy()
}

type Image interface {
	Extent() Extent2D
	Format() Format
	MemoryRequirements() MemoryRequirements
	Destroy()
}

type Memory interface {
	Free()
}

type ImageView interface{ Destroy() }
type Sampler interface{ Destroy() }
type Fence interface{ Destroy() }
type Semaphore interface{ Destroy() }
type Swapchain interface{ Destroy() }
type RenderPass interface{ Destroy() }
type Framebuffer interface{ Destroy() }
type ShaderModule interface{ Destroy() }
type DescriptorSetLayout interface{ Destroy() }
type PipelineLayout interface{ Destroy() }
type Pipeline interface{ Destroy() }

// DescriptorPool owns the sets it allocates; they are freed with the pool.
type DescriptorPool interface {
	Allocate(layout DescriptorSetLayout) (DescriptorSet, error)
	Destroy()
}

type DescriptorSet interface {
	Layout() DescriptorSetLayout
}
