package vkframe

import (
	"context"

	"github.com/andewx/vkframe/hal"
	"github.com/pkg/errors"
)

// FrameContext describes the frame being recorded.
type FrameContext struct {
	Frame       uint64
	Slot        int
	ImageIndex  uint32
	Framebuffer hal.Framebuffer
	Swapchain   *Swapchain
}

// Recorder records one frame's commands. The command buffer is already in
// the recording state. RecordFrame runs after the slot's fence wait, so
// per-slot resources may be rewritten.
type Recorder interface {
	RecordFrame(cmd hal.CommandBuffer, fc FrameContext) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(cmd hal.CommandBuffer, fc FrameContext) error

func (f RecorderFunc) RecordFrame(cmd hal.CommandBuffer, fc FrameContext) error { return f(cmd, fc) }

// DECORATORS a Recorder may implement:

// SwapchainObserver is notified after every swapchain rebuild.
type SwapchainObserver interface {
	SwapchainRecreated(sc *Swapchain) error
}

// FramePreparer runs before every frame in Run, after events are pumped.
type FramePreparer interface {
	PrepareFrame(s *FrameScheduler) error
}

// FrameStatus reports what RenderFrame did.
type FrameStatus struct {
	Frame      uint64
	Slot       int
	ImageIndex uint32
	// Presented is false when acquisition found the surface out of date.
	Presented bool
	Rebuilt   bool
}

// FrameScheduler drives acquire, record, submit and present over a ring of
// MaxFramesInFlight frame slots.
type FrameScheduler struct {
	ctx       *DeviceContext
	swapchain *Swapchain
	window    Window
	recorder  Recorder
	ring      *frameRing
	frame     uint64
}

func NewFrameScheduler(ctx *DeviceContext, swapchain *Swapchain, window Window, recorder Recorder) (*FrameScheduler, error) {
	ring, err := newFrameRing(ctx)
	if err != nil {
		return nil, err
	}
	return &FrameScheduler{ctx: ctx, swapchain: swapchain, window: window, recorder: recorder, ring: ring}, nil
}

// Frame returns the number of frames submitted so far.
func (s *FrameScheduler) Frame() uint64 { return s.frame }

func (s *FrameScheduler) Slot(i int) *FrameSlot { return s.ring.slots[i] }

func (s *FrameScheduler) Swapchain() *Swapchain { return s.swapchain }

// RenderFrame runs one iteration of the frame protocol on slot
// frame % MaxFramesInFlight. When acquisition reports the surface out of
// date the swapchain is rebuilt and the frame counter is left unchanged, so
// the next call retries the same slot.
func (s *FrameScheduler) RenderFrame() (FrameStatus, error) {
	i := int(s.frame % MaxFramesInFlight)
	slot := s.ring.slots[i]
	st := FrameStatus{Frame: s.frame, Slot: i}
	dev := s.ctx.Device()

	if err := dev.WaitForFence(slot.InFlight, hal.Infinite); err != nil {
		return st, submissionError("wait for frame fence", err)
	}

	idx, suboptimal, err := s.acquire(slot)
	if errors.Is(err, ErrSurfaceInvalidated) {
		if err := s.Rebuild(); err != nil {
			return st, err
		}
		st.Rebuilt = true
		return st, nil
	}
	if err != nil {
		return st, err
	}
	st.ImageIndex = idx

	if err := s.record(slot, idx); err != nil {
		return st, err
	}
	// Only reset once work that signals the fence is certain to be submitted.
	if err := dev.ResetFence(slot.InFlight); err != nil {
		return st, submissionError("reset frame fence", err)
	}
	err = s.ctx.GraphicsQueue().Submit([]hal.SubmitInfo{{
		WaitSemaphores:   []hal.Semaphore{slot.ImageAvailable},
		WaitStages:       []hal.PipelineStage{hal.StageColorAttachmentOutput},
		CommandBuffers:   []hal.CommandBuffer{slot.Cmd},
		SignalSemaphores: []hal.Semaphore{slot.RenderFinished},
	}}, slot.InFlight)
	if err != nil {
		return st, submissionError("submit frame", err)
	}

	err = s.present(slot, idx)
	st.Presented = true
	resized := s.window.Resized()
	if err != nil && !errors.Is(err, ErrSurfaceInvalidated) {
		return st, err
	}
	if err != nil || suboptimal || resized {
		Logger().Debug("rebuilding after present", "frame", s.frame, "invalidated", err != nil, "suboptimal", suboptimal, "resized", resized)
		if err := s.Rebuild(); err != nil {
			return st, err
		}
		st.Rebuilt = true
	}
	s.frame++
	return st, nil
}

func (s *FrameScheduler) acquire(slot *FrameSlot) (idx uint32, suboptimal bool, err error) {
	idx, r := s.ctx.Device().AcquireNextImage(s.swapchain.Chain(), hal.Infinite, slot.ImageAvailable)
	switch {
	case r == hal.ErrorOutOfDate:
		return 0, false, ErrSurfaceInvalidated
	case r.IsError():
		return 0, false, submissionError("acquire next image", r)
	}
	return idx, r == hal.Suboptimal, nil
}

func (s *FrameScheduler) record(slot *FrameSlot, idx uint32) error {
	cmd := slot.Cmd
	if err := cmd.Reset(); err != nil {
		return submissionError("reset command buffer", err)
	}
	if err := cmd.Begin(false); err != nil {
		return submissionError("begin command buffer", err)
	}
	err := s.recorder.RecordFrame(cmd, FrameContext{
		Frame:       s.frame,
		Slot:        slot.Index,
		ImageIndex:  idx,
		Framebuffer: s.swapchain.Framebuffer(idx),
		Swapchain:   s.swapchain,
	})
	if err != nil {
		return errors.Wrap(err, "record frame")
	}
	if err := cmd.End(); err != nil {
		return submissionError("end command buffer", err)
	}
	return nil
}

func (s *FrameScheduler) present(slot *FrameSlot, idx uint32) error {
	r := s.ctx.PresentQueue().Present(&hal.PresentInfo{
		WaitSemaphores: []hal.Semaphore{slot.RenderFinished},
		Swapchain:      s.swapchain.Chain(),
		ImageIndex:     idx,
	})
	switch {
	case IsSurfaceInvalidated(r):
		return ErrSurfaceInvalidated
	case r.IsError():
		return submissionError("present", r)
	}
	return nil
}

// Rebuild blocks until the window has a non-zero size, then recreates the
// swapchain and notifies a SwapchainObserver recorder.
func (s *FrameScheduler) Rebuild() error {
	err := s.swapchain.Recreate(s.waitForSize())
	for errors.Is(err, ErrZeroExtent) {
		// The surface can report zero area after the window did not.
		s.window.WaitEvents()
		err = s.swapchain.Create(s.waitForSize())
	}
	if err != nil {
		return err
	}
	if obs, ok := s.recorder.(SwapchainObserver); ok {
		if err := obs.SwapchainRecreated(s.swapchain); err != nil {
			return errors.Wrap(err, "swapchain observer")
		}
	}
	return nil
}

func (s *FrameScheduler) waitForSize() hal.Extent2D {
	w, h := s.window.FramebufferSize()
	for w <= 0 || h <= 0 {
		s.window.WaitEvents()
		w, h = s.window.FramebufferSize()
	}
	return hal.Extent2D{Width: uint32(w), Height: uint32(h)}
}

// Run renders frames until the window closes or ctx is done, then waits
// for the device to go idle.
func (s *FrameScheduler) Run(ctx context.Context) error {
	preparer, _ := s.recorder.(FramePreparer)
	for !s.window.ShouldClose() {
		if ctx.Err() != nil {
			break
		}
		s.window.PollEvents()
		if preparer != nil {
			if err := preparer.PrepareFrame(s); err != nil {
				return err
			}
		}
		if _, err := s.RenderFrame(); err != nil {
			return err
		}
	}
	return s.ctx.WaitIdle()
}

// Close waits for the device to go idle and destroys the frame slots.
func (s *FrameScheduler) Close() {
	if s.ring == nil {
		return
	}
	if err := s.ctx.WaitIdle(); err != nil {
		Logger().Warn("device wait idle on scheduler close", "err", err)
	}
	s.ring.destroy()
	s.ring = nil
}
