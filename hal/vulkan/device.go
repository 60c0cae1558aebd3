package vulkan

import (
	"log/slog"
	"unsafe"

	"github.com/andewx/vkframe/hal"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

type Device struct {
	adapter *Adapter
	handle  vk.Device
	queues  map[uint32]*Queue
	log     *slog.Logger
}

// Queue returns the queue created for family, or nil when the device was not
// opened with it.
func (d *Device) Queue(family uint32) hal.Queue {
	q, ok := d.queues[family]
	if !ok {
		return nil
	}
	return q
}

func (d *Device) WaitIdle() error {
	return newError(vk.DeviceWaitIdle(d.handle))
}

func (d *Device) Destroy() {
	if d.handle == nil {
		return
	}
	vk.DeviceWaitIdle(d.handle)
	vk.DestroyDevice(d.handle, nil)
	d.handle = nil
}

type Buffer struct {
	*handle[vk.Buffer]
	size uint64
}

func (b *Buffer) Size() uint64 { return b.size }

func (b *Buffer) MemoryRequirements() hal.MemoryRequirements {
	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.dev.handle, b.h, &req)
	req.Deref()
	return memoryRequirements(req)
}

func (d *Device) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	var h vk.Buffer
	ret := vk.CreateBuffer(d.handle, &vk.BufferCreateInfo{
		SType:                 vk.StructureTypeBufferCreateInfo,
		Size:                  vk.DeviceSize(desc.Size),
		Usage:                 vk.BufferUsageFlags(desc.Usage),
		SharingMode:           vk.SharingMode(desc.Sharing),
		QueueFamilyIndexCount: uint32(len(desc.QueueFamilies)),
		PQueueFamilyIndices:   desc.QueueFamilies,
	}, nil, &h)
	if isError(ret) {
		return nil, newError(ret)
	}
	return &Buffer{handle: newHandle(d, h, vk.DestroyBuffer), size: desc.Size}, nil
}

type Image struct {
	*handle[vk.Image]
	extent hal.Extent2D
	format hal.Format
}

func (i *Image) Extent() hal.Extent2D { return i.extent }
func (i *Image) Format() hal.Format   { return i.format }

func (i *Image) MemoryRequirements() hal.MemoryRequirements {
	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(i.dev.handle, i.h, &req)
	req.Deref()
	return memoryRequirements(req)
}

func (d *Device) CreateImage(desc *hal.ImageDescriptor) (hal.Image, error) {
	var h vk.Image
	ret := vk.CreateImage(d.handle, &vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vk.Format(desc.Format),
		Extent: vk.Extent3D{
			Width:  desc.Extent.Width,
			Height: desc.Extent.Height,
			Depth:  1,
		},
		MipLevels:             1,
		ArrayLayers:           1,
		Samples:               vk.SampleCount1Bit,
		Tiling:                vk.ImageTilingOptimal,
		Usage:                 vk.ImageUsageFlags(desc.Usage),
		SharingMode:           vk.SharingMode(desc.Sharing),
		QueueFamilyIndexCount: uint32(len(desc.QueueFamilies)),
		PQueueFamilyIndices:   desc.QueueFamilies,
		InitialLayout:         vk.ImageLayoutUndefined,
	}, nil, &h)
	if isError(ret) {
		return nil, newError(ret)
	}
	return &Image{handle: newHandle(d, h, vk.DestroyImage), extent: desc.Extent, format: desc.Format}, nil
}

func memoryRequirements(req vk.MemoryRequirements) hal.MemoryRequirements {
	return hal.MemoryRequirements{
		Size:      uint64(req.Size),
		Alignment: uint64(req.Alignment),
		TypeBits:  req.MemoryTypeBits,
	}
}

type Memory struct {
	dev    *Device
	handle vk.DeviceMemory
}

func (m *Memory) Free() {
	if m.dev == nil {
		return
	}
	vk.FreeMemory(m.dev.handle, m.handle, nil)
	m.dev = nil
}

func (d *Device) AllocateMemory(req hal.MemoryRequirements, props hal.MemoryProperty) (hal.Memory, error) {
	typeIndex, ok := findMemoryType(d.adapter.memory, req.TypeBits, props)
	if !ok {
		return nil, errors.Errorf("no memory type with properties %#x in type bits %#x", uint32(props), req.TypeBits)
	}
	var h vk.DeviceMemory
	ret := vk.AllocateMemory(d.handle, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(req.Size),
		MemoryTypeIndex: typeIndex,
	}, nil, &h)
	if isError(ret) {
		return nil, newError(ret)
	}
	return &Memory{dev: d, handle: h}, nil
}

func (d *Device) BindBufferMemory(b hal.Buffer, m hal.Memory) error {
	return newError(vk.BindBufferMemory(d.handle, b.(*Buffer).h, m.(*Memory).handle, 0))
}

func (d *Device) BindImageMemory(img hal.Image, m hal.Memory) error {
	return newError(vk.BindImageMemory(d.handle, img.(*Image).h, m.(*Memory).handle, 0))
}

// MapMemory maps size bytes at offset. The slice aliases device memory and
// is valid until UnmapMemory.
func (d *Device) MapMemory(m hal.Memory, offset, size uint64) ([]byte, error) {
	var p unsafe.Pointer
	ret := vk.MapMemory(d.handle, m.(*Memory).handle, vk.DeviceSize(offset), vk.DeviceSize(size), 0, &p)
	if isError(ret) {
		return nil, newError(ret)
	}
	return bytesAt(p, size), nil
}

func (d *Device) UnmapMemory(m hal.Memory) {
	vk.UnmapMemory(d.handle, m.(*Memory).handle)
}

func (d *Device) CreateImageView(desc *hal.ImageViewDescriptor) (hal.ImageView, error) {
	var h vk.ImageView
	ret := vk.CreateImageView(d.handle, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    desc.Image.(*Image).h,
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(desc.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(desc.Aspect),
			LevelCount: 1,
			LayerCount: 1,
		},
	}, nil, &h)
	if isError(ret) {
		return nil, newError(ret)
	}
	return newHandle(d, h, vk.DestroyImageView), nil
}

func (d *Device) CreateSampler(desc *hal.SamplerDescriptor) (hal.Sampler, error) {
	anisotropy := vk.Bool32(vk.False)
	if desc.MaxAnisotropy > 1 {
		anisotropy = vk.True
	}
	address := vk.SamplerAddressMode(desc.AddressMode)
	var h vk.Sampler
	ret := vk.CreateSampler(d.handle, &vk.SamplerCreateInfo{
		SType:            vk.StructureTypeSamplerCreateInfo,
		MagFilter:        vk.Filter(desc.MagFilter),
		MinFilter:        vk.Filter(desc.MinFilter),
		MipmapMode:       vk.SamplerMipmapModeLinear,
		AddressModeU:     address,
		AddressModeV:     address,
		AddressModeW:     address,
		AnisotropyEnable: anisotropy,
		MaxAnisotropy:    desc.MaxAnisotropy,
		CompareOp:        vk.CompareOpAlways,
		BorderColor:      vk.BorderColorIntOpaqueBlack,
	}, nil, &h)
	if isError(ret) {
		return nil, newError(ret)
	}
	return newHandle(d, h, vk.DestroySampler), nil
}

type Fence = handle[vk.Fence]

func (d *Device) CreateFence(signaled bool) (hal.Fence, error) {
	var flags vk.FenceCreateFlags
	if signaled {
		flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var h vk.Fence
	ret := vk.CreateFence(d.handle, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: flags,
	}, nil, &h)
	if isError(ret) {
		return nil, newError(ret)
	}
	return newHandle(d, h, vk.DestroyFence), nil
}

func (d *Device) WaitForFence(f hal.Fence, timeout uint64) error {
	ret := vk.WaitForFences(d.handle, 1, []vk.Fence{f.(*Fence).h}, vk.True, timeout)
	if ret == vk.Timeout {
		return errors.WithStack(hal.Timeout)
	}
	return newError(ret)
}

func (d *Device) ResetFence(f hal.Fence) error {
	return newError(vk.ResetFences(d.handle, 1, []vk.Fence{f.(*Fence).h}))
}

type Semaphore = handle[vk.Semaphore]

func (d *Device) CreateSemaphore() (hal.Semaphore, error) {
	var h vk.Semaphore
	ret := vk.CreateSemaphore(d.handle, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &h)
	if isError(ret) {
		return nil, newError(ret)
	}
	return newHandle(d, h, vk.DestroySemaphore), nil
}
