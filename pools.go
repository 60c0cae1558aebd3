package vkframe

import (
	"github.com/andewx/vkframe/hal"
)

// CorePool is a command pool bound to the queue its buffers are submitted to.
type CorePool struct {
	dev   hal.Device
	pool  hal.CommandPool
	queue hal.Queue
}

// NewCorePool creates a pool for queue's family. Resettable pools allow
// buffers to be reset and re-recorded individually.
func NewCorePool(dev hal.Device, queue hal.Queue, resettable bool) (*CorePool, error) {
	pool, err := dev.CreateCommandPool(queue.Family(), resettable)
	if err != nil {
		return nil, resourceError("command pool", err)
	}
	return &CorePool{dev: dev, pool: pool, queue: queue}, nil
}

func (p *CorePool) Queue() hal.Queue { return p.queue }

func (p *CorePool) Allocate() (hal.CommandBuffer, error) {
	cmd, err := p.pool.Allocate()
	if err != nil {
		return nil, resourceError("command buffer", err)
	}
	return cmd, nil
}

// SubmitOnce records a one-time command buffer with record, submits it and
// blocks until the pool's queue is idle. The buffer is freed before return.
// When the queue wait fails the whole device is drained before returning, so
// callers may free whatever the recorded commands read or wrote.
func (p *CorePool) SubmitOnce(op string, record func(cmd hal.CommandBuffer)) error {
	cmd, err := p.Allocate()
	if err != nil {
		return err
	}
	if err := cmd.Begin(true); err != nil {
		cmd.Destroy()
		return submissionError(op+": begin", err)
	}
	record(cmd)
	if err := cmd.End(); err != nil {
		cmd.Destroy()
		return submissionError(op+": end", err)
	}
	if err := p.queue.Submit([]hal.SubmitInfo{{CommandBuffers: []hal.CommandBuffer{cmd}}}, nil); err != nil {
		cmd.Destroy()
		return submissionError(op+": submit", err)
	}
	if err := p.queue.WaitIdle(); err != nil {
		if derr := p.dev.WaitIdle(); derr != nil {
			Logger().Warn("device wait idle after failed queue wait", "op", op, "err", derr)
		}
		cmd.Destroy()
		return submissionError(op+": queue wait idle", err)
	}
	cmd.Destroy()
	return nil
}

func (p *CorePool) Destroy() {
	if p.pool != nil {
		p.pool.Destroy()
		p.pool = nil
	}
}
