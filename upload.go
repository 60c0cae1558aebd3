package vkframe

import (
	"github.com/andewx/vkframe/hal"
	"github.com/pkg/errors"
)

// DeviceBuffer is a buffer with its own memory allocation.
type DeviceBuffer struct {
	Buffer hal.Buffer
	Memory hal.Memory
	Size   uint64
	Usage  hal.BufferUsage
	dev    hal.Device
}

// Destroy destroys the buffer and frees its memory.
func (b *DeviceBuffer) Destroy() {
	if b == nil || b.Buffer == nil {
		return
	}
	b.Buffer.Destroy()
	b.Memory.Free()
	b.Buffer, b.Memory = nil, nil
}

// HostBuffer is a persistently mapped host-visible buffer, used for data
// rewritten every frame such as uniforms.
type HostBuffer struct {
	DeviceBuffer
	Mapped []byte
}

func (b *HostBuffer) Destroy() {
	if b == nil || b.Buffer == nil {
		return
	}
	b.dev.UnmapMemory(b.Memory)
	b.Mapped = nil
	b.DeviceBuffer.Destroy()
}

// DeviceImage is a sampled image with its memory and a color view.
type DeviceImage struct {
	Image  hal.Image
	Memory hal.Memory
	View   hal.ImageView
	Extent hal.Extent2D
	Format hal.Format
}

func (i *DeviceImage) Destroy() {
	if i == nil || i.Image == nil {
		return
	}
	if i.View != nil {
		i.View.Destroy()
	}
	i.Image.Destroy()
	i.Memory.Free()
	i.Image, i.Memory, i.View = nil, nil, nil
}

type UploaderOption func(*StagedUploader)

// WithReadback adds transfer-source usage to every destination so its
// contents can be copied back with ReadBuffer.
func WithReadback() UploaderOption {
	return func(u *StagedUploader) { u.readback = true }
}

// StagedUploader moves host data into device-local memory through a
// temporary host-visible staging buffer. Every call blocks until the copy
// has completed and the staging resources are gone.
type StagedUploader struct {
	ctx      *DeviceContext
	transfer *CorePool
	graphics *CorePool
	readback bool
}

func NewStagedUploader(ctx *DeviceContext, opts ...UploaderOption) (*StagedUploader, error) {
	u := &StagedUploader{ctx: ctx}
	for _, opt := range opts {
		opt(u)
	}
	var err error
	if u.transfer, err = NewCorePool(ctx.Device(), ctx.TransferQueue(), false); err != nil {
		return nil, err
	}
	if u.graphics, err = NewCorePool(ctx.Device(), ctx.GraphicsQueue(), false); err != nil {
		u.transfer.Destroy()
		return nil, err
	}
	return u, nil
}

func (u *StagedUploader) Close() {
	u.graphics.Destroy()
	u.transfer.Destroy()
}

// sharing returns the sharing mode for destinations written on the transfer
// queue and read on the graphics queue.
func (u *StagedUploader) sharing() (hal.SharingMode, []uint32) {
	f := u.ctx.Families()
	if f.Transfer == f.Graphics {
		return hal.SharingExclusive, nil
	}
	return hal.SharingConcurrent, []uint32{f.Graphics.Index(), f.Transfer.Index()}
}

func (u *StagedUploader) createBuffer(size uint64, usage hal.BufferUsage, props hal.MemoryProperty, concurrent bool) (*DeviceBuffer, error) {
	dev := u.ctx.Device()
	desc := &hal.BufferDescriptor{Size: size, Usage: usage}
	if concurrent {
		desc.Sharing, desc.QueueFamilies = u.sharing()
	}
	buf, err := dev.CreateBuffer(desc)
	if err != nil {
		return nil, resourceError("buffer", err)
	}
	mem, err := dev.AllocateMemory(buf.MemoryRequirements(), props)
	if err != nil {
		buf.Destroy()
		return nil, resourceError("buffer memory", err)
	}
	if err := dev.BindBufferMemory(buf, mem); err != nil {
		buf.Destroy()
		mem.Free()
		return nil, resourceError("bind buffer memory", err)
	}
	return &DeviceBuffer{Buffer: buf, Memory: mem, Size: size, Usage: usage, dev: dev}, nil
}

// stage creates a host-visible, host-coherent buffer of exactly len(data)
// bytes holding data.
func (u *StagedUploader) stage(data []byte) (*DeviceBuffer, error) {
	staging, err := u.createBuffer(uint64(len(data)), hal.BufferUsageTransferSrc,
		hal.MemoryHostVisible|hal.MemoryHostCoherent, false)
	if err != nil {
		return nil, err
	}
	dev := u.ctx.Device()
	mapped, err := dev.MapMemory(staging.Memory, 0, staging.Size)
	if err != nil {
		staging.Destroy()
		return nil, resourceError("map staging memory", err)
	}
	copy(mapped, data)
	dev.UnmapMemory(staging.Memory)
	return staging, nil
}

func (u *StagedUploader) destinationUsage(usage hal.BufferUsage) hal.BufferUsage {
	usage |= hal.BufferUsageTransferDst
	if u.readback {
		usage |= hal.BufferUsageTransferSrc
	}
	return usage
}

// UploadToBuffer returns a device-local buffer with usage|transfer-dst
// holding a copy of data.
func (u *StagedUploader) UploadToBuffer(data []byte, usage hal.BufferUsage) (*DeviceBuffer, error) {
	if len(data) == 0 {
		return nil, resourceError("buffer", errors.New("empty upload"))
	}
	dst, err := u.createBuffer(uint64(len(data)), u.destinationUsage(usage), hal.MemoryDeviceLocal, true)
	if err != nil {
		return nil, err
	}
	if err := u.Rewrite(dst, data); err != nil {
		dst.Destroy()
		return nil, err
	}
	Logger().Debug("uploaded buffer", "bytes", len(data), "usage", usage)
	return dst, nil
}

// Rewrite replaces the leading len(data) bytes of dst through a fresh
// staging buffer.
func (u *StagedUploader) Rewrite(dst *DeviceBuffer, data []byte) error {
	if uint64(len(data)) > dst.Size {
		return resourceError("buffer", errors.Errorf("%d bytes do not fit a %d byte buffer", len(data), dst.Size))
	}
	staging, err := u.stage(data)
	if err != nil {
		return err
	}
	defer staging.Destroy()
	return u.transfer.SubmitOnce("upload buffer", func(cmd hal.CommandBuffer) {
		cmd.CopyBuffer(staging.Buffer, dst.Buffer, []hal.BufferCopy{{Size: staging.Size}})
	})
}

// UploadToImage returns a sampled device-local image holding pixels, in
// shader-read-only layout. sampledAt is the first stage that samples it.
func (u *StagedUploader) UploadToImage(pixels []byte, width, height uint32, format hal.Format, sampledAt hal.PipelineStage) (*DeviceImage, error) {
	extent := hal.Extent2D{Width: width, Height: height}
	want := extent.Area() * uint64(format.BytesPerPixel())
	if want == 0 || uint64(len(pixels)) != want {
		return nil, resourceError("image", errors.Errorf("%d bytes for a %dx%d image of format %d", len(pixels), width, height, format))
	}
	dev := u.ctx.Device()
	staging, err := u.stage(pixels)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	usage := hal.ImageUsageTransferDst | hal.ImageUsageSampled
	if u.readback {
		usage |= hal.ImageUsageTransferSrc
	}
	desc := &hal.ImageDescriptor{Extent: extent, Format: format, Usage: usage}
	desc.Sharing, desc.QueueFamilies = u.sharing()
	img, err := dev.CreateImage(desc)
	if err != nil {
		return nil, resourceError("image", err)
	}
	out := &DeviceImage{Image: img, Extent: extent, Format: format}
	out.Memory, err = dev.AllocateMemory(img.MemoryRequirements(), hal.MemoryDeviceLocal)
	if err != nil {
		img.Destroy()
		return nil, resourceError("image memory", err)
	}
	if err := dev.BindImageMemory(img, out.Memory); err != nil {
		out.Destroy()
		return nil, resourceError("bind image memory", err)
	}

	err = u.transfer.SubmitOnce("upload image", func(cmd hal.CommandBuffer) {
		cmd.PipelineBarrier(hal.StageTopOfPipe, hal.StageTransfer, []hal.ImageBarrier{{
			Image:     img,
			Aspect:    hal.AspectColor,
			OldLayout: hal.LayoutUndefined,
			NewLayout: hal.LayoutTransferDst,
			SrcAccess: hal.AccessNone,
			DstAccess: hal.AccessTransferWrite,
		}})
		cmd.CopyBufferToImage(staging.Buffer, img, hal.LayoutTransferDst, width, height)
	})
	if err != nil {
		out.Destroy()
		return nil, err
	}
	err = u.graphics.SubmitOnce("transition image", func(cmd hal.CommandBuffer) {
		cmd.PipelineBarrier(hal.StageTransfer, sampledAt, []hal.ImageBarrier{{
			Image:     img,
			Aspect:    hal.AspectColor,
			OldLayout: hal.LayoutTransferDst,
			NewLayout: hal.LayoutShaderReadOnly,
			SrcAccess: hal.AccessTransferWrite,
			DstAccess: hal.AccessShaderRead,
		}})
	})
	if err != nil {
		out.Destroy()
		return nil, err
	}

	out.View, err = dev.CreateImageView(&hal.ImageViewDescriptor{Image: img, Format: format, Aspect: hal.AspectColor})
	if err != nil {
		out.Destroy()
		return nil, resourceError("image view", err)
	}
	Logger().Debug("uploaded image", "width", width, "height", height, "format", format)
	return out, nil
}

// ReadBuffer copies src back to host memory through a staging buffer. src
// needs transfer-source usage, see WithReadback.
func (u *StagedUploader) ReadBuffer(src *DeviceBuffer) ([]byte, error) {
	if src.Usage&hal.BufferUsageTransferSrc == 0 {
		return nil, errors.New("read back a buffer without transfer-src usage")
	}
	staging, err := u.createBuffer(src.Size, hal.BufferUsageTransferDst,
		hal.MemoryHostVisible|hal.MemoryHostCoherent, false)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()
	err = u.transfer.SubmitOnce("read back buffer", func(cmd hal.CommandBuffer) {
		cmd.CopyBuffer(src.Buffer, staging.Buffer, []hal.BufferCopy{{Size: src.Size}})
	})
	if err != nil {
		return nil, err
	}
	dev := u.ctx.Device()
	mapped, err := dev.MapMemory(staging.Memory, 0, staging.Size)
	if err != nil {
		return nil, resourceError("map staging memory", err)
	}
	out := append([]byte(nil), mapped...)
	dev.UnmapMemory(staging.Memory)
	return out, nil
}

// CreateHostBuffer returns a mapped host-visible, host-coherent buffer.
func (u *StagedUploader) CreateHostBuffer(size uint64, usage hal.BufferUsage) (*HostBuffer, error) {
	buf, err := u.createBuffer(size, usage, hal.MemoryHostVisible|hal.MemoryHostCoherent, false)
	if err != nil {
		return nil, err
	}
	mapped, err := u.ctx.Device().MapMemory(buf.Memory, 0, size)
	if err != nil {
		buf.Destroy()
		return nil, resourceError("map host buffer", err)
	}
	return &HostBuffer{DeviceBuffer: *buf, Mapped: mapped}, nil
}
