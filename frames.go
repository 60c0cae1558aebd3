package vkframe

import (
	"github.com/andewx/vkframe/hal"
)

// MaxFramesInFlight bounds how many frames the CPU may record ahead of the GPU.
const MaxFramesInFlight = 2

// FrameSlot holds the per-frame synchronization objects and command buffer.
// Slots live for the whole program; swapchain rebuilds do not touch them.
type FrameSlot struct {
	Index          int
	Cmd            hal.CommandBuffer
	ImageAvailable hal.Semaphore
	RenderFinished hal.Semaphore
	// InFlight is created signaled so the first wait on each slot returns
	// immediately.
	InFlight hal.Fence
}

func (s *FrameSlot) destroy() {
	if s.InFlight != nil {
		s.InFlight.Destroy()
	}
	if s.RenderFinished != nil {
		s.RenderFinished.Destroy()
	}
	if s.ImageAvailable != nil {
		s.ImageAvailable.Destroy()
	}
	if s.Cmd != nil {
		s.Cmd.Destroy()
	}
}

type frameRing struct {
	pool  *CorePool
	slots [MaxFramesInFlight]*FrameSlot
}

func newFrameRing(ctx *DeviceContext) (r *frameRing, err error) {
	dev := ctx.Device()
	pool, err := NewCorePool(dev, ctx.GraphicsQueue(), true)
	if err != nil {
		return nil, err
	}
	r = &frameRing{pool: pool}
	defer func() {
		if err != nil {
			r.destroy()
			r = nil
		}
	}()
	for i := range r.slots {
		slot := &FrameSlot{Index: i}
		r.slots[i] = slot
		if slot.Cmd, err = pool.Allocate(); err != nil {
			return r, err
		}
		if slot.ImageAvailable, err = dev.CreateSemaphore(); err != nil {
			return r, resourceError("semaphore", err)
		}
		if slot.RenderFinished, err = dev.CreateSemaphore(); err != nil {
			return r, resourceError("semaphore", err)
		}
		if slot.InFlight, err = dev.CreateFence(true); err != nil {
			return r, resourceError("fence", err)
		}
	}
	return r, nil
}

func (r *frameRing) destroy() {
	for i, s := range r.slots {
		if s != nil {
			s.destroy()
			r.slots[i] = nil
		}
	}
	r.pool.Destroy()
}
