package vulkan

import (
	"github.com/andewx/vkframe/hal"
	vk "github.com/vulkan-go/vulkan"
)

type CommandPool struct {
	dev    *Device
	handle vk.CommandPool
}

func (d *Device) CreateCommandPool(family uint32, resettable bool) (hal.CommandPool, error) {
	var flags vk.CommandPoolCreateFlags
	if resettable {
		// ResetCommandBufferBit allows command buffers to be reset individually.
		flags = vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit)
	}
	var h vk.CommandPool
	ret := vk.CreateCommandPool(d.handle, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: family,
		Flags:            flags,
	}, nil, &h)
	if isError(ret) {
		return nil, newError(ret)
	}
	return &CommandPool{dev: d, handle: h}, nil
}

func (p *CommandPool) Allocate() (hal.CommandBuffer, error) {
	buffers := make([]vk.CommandBuffer, 1)
	ret := vk.AllocateCommandBuffers(p.dev.handle, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.handle,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, buffers)
	if isError(ret) {
		return nil, newError(ret)
	}
	return &CommandBuffer{pool: p, handle: buffers[0]}, nil
}

// Destroy destroys the pool, freeing every buffer allocated from it.
func (p *CommandPool) Destroy() {
	if p.dev == nil {
		return
	}
	vk.DestroyCommandPool(p.dev.handle, p.handle, nil)
	p.dev = nil
}

type CommandBuffer struct {
	pool   *CommandPool
	handle vk.CommandBuffer
}

func (c *CommandBuffer) Begin(oneTime bool) error {
	var flags vk.CommandBufferUsageFlags
	if oneTime {
		flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	return newError(vk.BeginCommandBuffer(c.handle, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: flags,
	}))
}

func (c *CommandBuffer) End() error {
	return newError(vk.EndCommandBuffer(c.handle))
}

func (c *CommandBuffer) Reset() error {
	return newError(vk.ResetCommandBuffer(c.handle, 0))
}

func (c *CommandBuffer) Destroy() {
	if c.pool == nil {
		return
	}
	if c.pool.dev != nil {
		vk.FreeCommandBuffers(c.pool.dev.handle, c.pool.handle, 1, []vk.CommandBuffer{c.handle})
	}
	c.pool = nil
}

func (c *CommandBuffer) CopyBuffer(src, dst hal.Buffer, regions []hal.BufferCopy) {
	copies := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(c.handle, src.(*Buffer).h, dst.(*Buffer).h, uint32(len(copies)), copies)
}

func (c *CommandBuffer) CopyBufferToImage(src hal.Buffer, dst hal.Image, layout hal.ImageLayout, width, height uint32) {
	vk.CmdCopyBufferToImage(c.handle, src.(*Buffer).h, dst.(*Image).h, vk.ImageLayout(layout), 1, []vk.BufferImageCopy{{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{Width: width, Height: height, Depth: 1},
	}})
}

func (c *CommandBuffer) PipelineBarrier(src, dst hal.PipelineStage, barriers []hal.ImageBarrier) {
	list := make([]vk.ImageMemoryBarrier, len(barriers))
	for i, b := range barriers {
		list[i] = vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(b.SrcAccess),
			DstAccessMask:       vk.AccessFlags(b.DstAccess),
			OldLayout:           vk.ImageLayout(b.OldLayout),
			NewLayout:           vk.ImageLayout(b.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               b.Image.(*Image).h,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(b.Aspect),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
	}
	vk.CmdPipelineBarrier(c.handle, vk.PipelineStageFlags(src), vk.PipelineStageFlags(dst), 0,
		0, nil, 0, nil, uint32(len(list)), list)
}

func (c *CommandBuffer) BeginRenderPass(rp hal.RenderPass, fb hal.Framebuffer, area hal.Extent2D, clear []hal.ClearValue) {
	values := make([]vk.ClearValue, len(clear))
	for i, cv := range clear {
		if cv.IsDepth {
			values[i] = vk.NewClearDepthStencil(cv.Depth, 0)
		} else {
			values[i] = vk.NewClearValue(cv.Color[:])
		}
	}
	vk.CmdBeginRenderPass(c.handle, &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.(*RenderPass).h,
		Framebuffer: fb.(*Framebuffer).h,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{},
			Extent: vkExtent(area),
		},
		ClearValueCount: uint32(len(values)),
		PClearValues:    values,
	}, vk.SubpassContentsInline)
}

func (c *CommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(c.handle)
}

func (c *CommandBuffer) BindPipeline(p hal.Pipeline) {
	vk.CmdBindPipeline(c.handle, vk.PipelineBindPointGraphics, p.(*Pipeline).h)
}

func (c *CommandBuffer) BindVertexBuffers(first uint32, buffers []hal.Buffer, offsets []uint64) {
	handles := make([]vk.Buffer, len(buffers))
	offs := make([]vk.DeviceSize, len(buffers))
	for i, b := range buffers {
		handles[i] = b.(*Buffer).h
		if i < len(offsets) {
			offs[i] = vk.DeviceSize(offsets[i])
		}
	}
	vk.CmdBindVertexBuffers(c.handle, first, uint32(len(handles)), handles, offs)
}

func (c *CommandBuffer) BindIndexBuffer(b hal.Buffer, offset uint64, t hal.IndexType) {
	vk.CmdBindIndexBuffer(c.handle, b.(*Buffer).h, vk.DeviceSize(offset), vk.IndexType(t))
}

func (c *CommandBuffer) BindDescriptorSets(layout hal.PipelineLayout, first uint32, sets []hal.DescriptorSet) {
	handles := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		handles[i] = s.(*DescriptorSet).handle
	}
	vk.CmdBindDescriptorSets(c.handle, vk.PipelineBindPointGraphics, layout.(*PipelineLayout).h,
		first, uint32(len(handles)), handles, 0, nil)
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(c.handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(c.handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

// Queue is a device queue. It is not safe for concurrent submission.
type Queue struct {
	dev    *Device
	handle vk.Queue
	family uint32
}

func (q *Queue) Family() uint32 { return q.family }

func (q *Queue) Submit(submits []hal.SubmitInfo, fence hal.Fence) error {
	infos := make([]vk.SubmitInfo, len(submits))
	for i, s := range submits {
		info := vk.SubmitInfo{SType: vk.StructureTypeSubmitInfo}
		if n := len(s.WaitSemaphores); n > 0 {
			info.WaitSemaphoreCount = uint32(n)
			info.PWaitSemaphores = semaphores(s.WaitSemaphores)
			// PWaitDstStageMask holds the stage at which each wait occurs.
			stages := make([]vk.PipelineStageFlags, n)
			for j := range stages {
				stages[j] = vk.PipelineStageFlags(hal.StageAllCommands)
				if j < len(s.WaitStages) {
					stages[j] = vk.PipelineStageFlags(s.WaitStages[j])
				}
			}
			info.PWaitDstStageMask = stages
		}
		cmds := make([]vk.CommandBuffer, len(s.CommandBuffers))
		for j, c := range s.CommandBuffers {
			cmds[j] = c.(*CommandBuffer).handle
		}
		info.CommandBufferCount = uint32(len(cmds))
		info.PCommandBuffers = cmds
		if n := len(s.SignalSemaphores); n > 0 {
			info.SignalSemaphoreCount = uint32(n)
			info.PSignalSemaphores = semaphores(s.SignalSemaphores)
		}
		infos[i] = info
	}
	f := vk.NullFence
	if fence != nil {
		f = fence.(*Fence).h
	}
	return newError(vk.QueueSubmit(q.handle, uint32(len(infos)), infos, f))
}

func (q *Queue) WaitIdle() error {
	return newError(vk.QueueWaitIdle(q.handle))
}

func (q *Queue) Present(info *hal.PresentInfo) hal.Result {
	ret := vk.QueuePresent(q.handle, &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(info.WaitSemaphores)),
		PWaitSemaphores:    semaphores(info.WaitSemaphores),
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{info.Swapchain.(*Swapchain).h},
		PImageIndices:      []uint32{info.ImageIndex},
	})
	return hal.Result(ret)
}

func semaphores(list []hal.Semaphore) []vk.Semaphore {
	out := make([]vk.Semaphore, len(list))
	for i, s := range list {
		out[i] = s.(*Semaphore).h
	}
	return out
}
