package vulkan

import (
	"github.com/andewx/vkframe/hal"
	vk "github.com/vulkan-go/vulkan"
)

type Swapchain struct {
	*handle[vk.Swapchain]
	extent hal.Extent2D
	format hal.Format
}

func (d *Device) CreateSwapchain(desc *hal.SwapchainDescriptor) (hal.Swapchain, error) {
	old := vk.NullSwapchain
	if desc.Old != nil {
		old = desc.Old.(*Swapchain).h
	}
	var h vk.Swapchain
	ret := vk.CreateSwapchain(d.handle, &vk.SwapchainCreateInfo{
		SType:                 vk.StructureTypeSwapchainCreateInfo,
		Surface:               desc.Surface.(*Surface).handle,
		MinImageCount:         desc.MinImageCount,
		ImageFormat:           vk.Format(desc.Format),
		ImageColorSpace:       vk.ColorSpace(desc.ColorSpace),
		ImageExtent:           vkExtent(desc.Extent),
		ImageArrayLayers:      1,
		ImageUsage:            vk.ImageUsageFlags(desc.Usage),
		ImageSharingMode:      vk.SharingMode(desc.Sharing),
		QueueFamilyIndexCount: uint32(len(desc.QueueFamilies)),
		PQueueFamilyIndices:   desc.QueueFamilies,
		PreTransform:          vk.SurfaceTransformFlagBits(desc.PreTransform),
		CompositeAlpha:        vk.CompositeAlphaFlagBits(desc.CompositeAlpha),
		PresentMode:           vk.PresentMode(desc.PresentMode),
		Clipped:               vk.True,
		OldSwapchain:          old,
	}, nil, &h)
	if isError(ret) {
		return nil, newError(ret)
	}
	return &Swapchain{handle: newHandle(d, h, vk.DestroySwapchain), extent: desc.Extent, format: desc.Format}, nil
}

// SwapchainImages returns the chain's images. They are owned by the chain:
// their Destroy does nothing.
func (d *Device) SwapchainImages(sc hal.Swapchain) ([]hal.Image, error) {
	chain := sc.(*Swapchain)
	var count uint32
	if ret := vk.GetSwapchainImages(d.handle, chain.h, &count, nil); isError(ret) {
		return nil, newError(ret)
	}
	list := make([]vk.Image, count)
	if ret := vk.GetSwapchainImages(d.handle, chain.h, &count, list); isError(ret) {
		return nil, newError(ret)
	}
	images := make([]hal.Image, 0, count)
	for _, h := range list[:count] {
		images = append(images, &Image{
			handle: newHandle(d, h, func(vk.Device, vk.Image, *vk.AllocationCallbacks) {}),
			extent: chain.extent,
			format: chain.format,
		})
	}
	return images, nil
}

func (d *Device) AcquireNextImage(sc hal.Swapchain, timeout uint64, signal hal.Semaphore) (uint32, hal.Result) {
	var idx uint32
	ret := vk.AcquireNextImage(d.handle, sc.(*Swapchain).h, timeout, signal.(*Semaphore).h, vk.NullFence, &idx)
	return idx, hal.Result(ret)
}
