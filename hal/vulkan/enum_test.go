package vulkan

import (
	"testing"

	"github.com/andewx/vkframe/hal"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestEnumValuesMatchVulkan(t *testing.T) {
	assert.EqualValues(t, vk.Success, hal.Success)
	assert.EqualValues(t, vk.Suboptimal, hal.Suboptimal)
	assert.EqualValues(t, vk.ErrorOutOfDate, hal.ErrorOutOfDate)
	assert.EqualValues(t, vk.ErrorSurfaceLost, hal.ErrorSurfaceLost)
	assert.EqualValues(t, vk.ErrorDeviceLost, hal.ErrorDeviceLost)
	assert.EqualValues(t, vk.Timeout, hal.Timeout)

	assert.EqualValues(t, vk.FormatB8g8r8a8Srgb, hal.FormatB8G8R8A8Srgb)
	assert.EqualValues(t, vk.FormatB8g8r8a8Unorm, hal.FormatB8G8R8A8Unorm)
	assert.EqualValues(t, vk.FormatR8g8b8a8Srgb, hal.FormatR8G8B8A8Srgb)
	assert.EqualValues(t, vk.FormatR32g32b32Sfloat, hal.FormatR32G32B32Sfloat)
	assert.EqualValues(t, vk.FormatR32g32Sfloat, hal.FormatR32G32Sfloat)
	assert.EqualValues(t, vk.FormatD32Sfloat, hal.FormatD32Sfloat)

	assert.EqualValues(t, vk.PresentModeFifo, hal.PresentModeFifo)
	assert.EqualValues(t, vk.PresentModeMailbox, hal.PresentModeMailbox)
	assert.EqualValues(t, vk.PresentModeImmediate, hal.PresentModeImmediate)

	assert.EqualValues(t, vk.ImageLayoutTransferDstOptimal, hal.LayoutTransferDst)
	assert.EqualValues(t, vk.ImageLayoutShaderReadOnlyOptimal, hal.LayoutShaderReadOnly)
	assert.EqualValues(t, vk.ImageLayoutPresentSrc, hal.LayoutPresentSrc)

	assert.EqualValues(t, vk.PipelineStageColorAttachmentOutputBit, hal.StageColorAttachmentOutput)
	assert.EqualValues(t, vk.PipelineStageTransferBit, hal.StageTransfer)
	assert.EqualValues(t, vk.PipelineStageFragmentShaderBit, hal.StageFragmentShader)
	assert.EqualValues(t, vk.AccessTransferWriteBit, hal.AccessTransferWrite)
	assert.EqualValues(t, vk.AccessShaderReadBit, hal.AccessShaderRead)

	assert.EqualValues(t, vk.BufferUsageVertexBufferBit, hal.BufferUsageVertex)
	assert.EqualValues(t, vk.BufferUsageIndexBufferBit, hal.BufferUsageIndex)
	assert.EqualValues(t, vk.BufferUsageUniformBufferBit, hal.BufferUsageUniform)
	assert.EqualValues(t, vk.BufferUsageTransferDstBit, hal.BufferUsageTransferDst)
	assert.EqualValues(t, vk.ImageUsageSampledBit, hal.ImageUsageSampled)
	assert.EqualValues(t, vk.ImageUsageDepthStencilAttachmentBit, hal.ImageUsageDepthStencil)
	assert.EqualValues(t, vk.MemoryPropertyHostCoherentBit, hal.MemoryHostCoherent)

	assert.EqualValues(t, vk.DescriptorTypeCombinedImageSampler, hal.DescriptorCombinedImageSampler)
	assert.EqualValues(t, vk.DescriptorTypeUniformBuffer, hal.DescriptorUniformBuffer)
	assert.EqualValues(t, vk.ShaderStageFragmentBit, hal.ShaderStageFragment)
	assert.EqualValues(t, vk.CullModeBackBit, hal.CullBack)
	assert.EqualValues(t, vk.FrontFaceClockwise, hal.FrontFaceClockwise)
	assert.EqualValues(t, vk.SamplerAddressModeClampToEdge, hal.AddressClampToEdge)
	assert.EqualValues(t, vk.FilterLinear, hal.FilterLinear)
	assert.EqualValues(t, vk.PhysicalDeviceTypeDiscreteGpu, hal.AdapterTypeDiscreteGPU)
	assert.EqualValues(t, vk.QueueTransferBit, hal.QueueTransfer)
	assert.EqualValues(t, vk.IndexTypeUint32, hal.IndexUint32)
}

func TestCheckExisting(t *testing.T) {
	existing, missing := checkExisting(
		[]string{"VK_KHR_surface", "VK_KHR_swapchain"},
		[]string{"VK_KHR_swapchain", "VK_EXT_debug_report"},
	)
	assert.Equal(t, []string{"VK_KHR_swapchain\x00"}, existing)
	assert.Equal(t, []string{"VK_EXT_debug_report"}, missing)
}

func TestRequireExtensions(t *testing.T) {
	available := []string{"VK_KHR_surface", "VK_KHR_swapchain"}

	got, err := requireExtensions(available, []string{"VK_KHR_swapchain"})
	require.NoError(t, err)
	assert.Equal(t, []string{"VK_KHR_swapchain\x00"}, got)

	_, err = requireExtensions(available, []string{"VK_KHR_swapchain", "VK_KHR_ray_query"})
	var r hal.Result
	require.True(t, errors.As(err, &r))
	assert.Equal(t, hal.ErrorExtensionNotPresent, r)
	assert.Contains(t, err.Error(), "VK_KHR_ray_query")
}

func TestSafeString(t *testing.T) {
	assert.Equal(t, "main\x00", safeString("main"))
	assert.Equal(t, "main\x00", safeString("main\x00"))
	assert.Equal(t, "\x00", safeString(""))
}

func TestExternalDependency(t *testing.T) {
	color := externalDependency(false)
	assert.EqualValues(t, vk.MaxUint32, color.SrcSubpass)
	assert.EqualValues(t, vk.PipelineStageColorAttachmentOutputBit, color.SrcStageMask)
	assert.Zero(t, color.SrcAccessMask)
	assert.EqualValues(t, vk.AccessColorAttachmentWriteBit, color.DstAccessMask)

	depth := externalDependency(true)
	late := vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit)
	write := vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
	assert.Equal(t, late, depth.SrcStageMask&late)
	assert.Equal(t, write, depth.SrcAccessMask)
	assert.NotZero(t, depth.DstStageMask&vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit))
	assert.Equal(t, write, depth.DstAccessMask&write)
}
