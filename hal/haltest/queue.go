package haltest

import (
	"github.com/andewx/vkframe/hal"
)

// Fence implements hal.Fence.
type Fence struct {
	object
	signaled bool
	pending  *submission
}

func (f *Fence) Destroy() {
	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	if f.pending != nil {
		f.rec.violate("fence#%d destroyed while its submission is pending", f.id)
	}
	f.destroyLocked()
}

// Signaled reports the host-visible fence state.
func (f *Fence) Signaled() bool {
	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	return f.signaled
}

func (d *Device) CreateFence(signaled bool) (hal.Fence, error) {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	if r := d.fail("CreateFence"); r.IsError() {
		return nil, r
	}
	return &Fence{object: d.rec.newObject(KindFence), signaled: signaled}, nil
}

func (d *Device) WaitForFence(hf hal.Fence, timeout uint64) error {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	f := hf.(*Fence)
	d.rec.record(Event{Op: OpWaitFence, Fence: f.id})
	if r := d.fail("WaitForFence"); r.IsError() {
		return r
	}
	f.checkAlive("WaitForFence")
	if f.signaled {
		return nil
	}
	if f.pending == nil {
		d.rec.violate("wait on unsignaled fence#%d that no submission will signal", f.id)
		return hal.Timeout
	}
	// Queues execute in submission order; everything before the fence's
	// submission on the same queue completes first.
	q := f.pending.queue
	for {
		var head *submission
		for _, s := range d.pending {
			if s.queue == q {
				head = s
				break
			}
		}
		d.complete(head)
		if head.fence == f {
			return nil
		}
	}
}

func (d *Device) ResetFence(hf hal.Fence) error {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	f := hf.(*Fence)
	d.rec.record(Event{Op: OpResetFence, Fence: f.id})
	if r := d.fail("ResetFence"); r.IsError() {
		return r
	}
	if f.pending != nil {
		d.rec.violate("fence#%d reset while its submission is pending", f.id)
	}
	f.signaled = false
	return nil
}

// Semaphore implements hal.Semaphore.
type Semaphore struct {
	object
	signaled bool
}

func (s *Semaphore) Destroy() { s.destroy() }

func (d *Device) CreateSemaphore() (hal.Semaphore, error) {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	if r := d.fail("CreateSemaphore"); r.IsError() {
		return nil, r
	}
	return &Semaphore{object: d.rec.newObject(KindSemaphore)}, nil
}

type submission struct {
	queue *Queue
	fence *Fence
	cmds  []*CommandBuffer
	refs  map[*object]struct{}
}

// complete retires s: its fence signals and its command buffers leave the
// pending state. The caller holds the recorder lock.
func (d *Device) complete(s *submission) {
	for i, p := range d.pending {
		if p == s {
			d.pending = append(d.pending[:i], d.pending[i+1:]...)
			break
		}
	}
	if s.fence != nil {
		s.fence.signaled = true
		s.fence.pending = nil
	}
	for _, c := range s.cmds {
		c.inFlight--
		if c.inFlight == 0 && c.state == cmdPending {
			if c.oneTime {
				c.state = cmdInvalid
			} else {
				c.state = cmdExecutable
			}
		}
	}
}

// Queue implements hal.Queue.
type Queue struct {
	dev    *Device
	family uint32
}

func (q *Queue) Family() uint32 { return q.family }

// Pending returns the number of submissions on q that have not completed.
func (q *Queue) Pending() int {
	q.dev.rec.mu.Lock()
	defer q.dev.rec.mu.Unlock()
	n := 0
	for _, s := range q.dev.pending {
		if s.queue == q {
			n++
		}
	}
	return n
}

func (q *Queue) Submit(submits []hal.SubmitInfo, hf hal.Fence) error {
	d := q.dev
	rec := d.rec
	rec.mu.Lock()
	defer rec.mu.Unlock()
	ev := Event{Op: OpSubmit, Queue: q.family}
	var fence *Fence
	if hf != nil {
		fence = hf.(*Fence)
		ev.Fence = fence.id
	}
	rec.record(ev)
	if r := d.fail("Submit"); r.IsError() {
		return r
	}
	if fence != nil {
		fence.checkAlive("Submit")
		if fence.signaled {
			rec.violate("fence#%d submitted while signaled", fence.id)
		}
		if fence.pending != nil {
			rec.violate("fence#%d submitted while already pending", fence.id)
		}
	}
	s := &submission{queue: q, fence: fence, refs: map[*object]struct{}{}}
	for _, info := range submits {
		if len(info.WaitStages) != len(info.WaitSemaphores) {
			rec.violate("submit with %d wait semaphores and %d wait stages", len(info.WaitSemaphores), len(info.WaitStages))
		}
		for _, hs := range info.WaitSemaphores {
			sem := hs.(*Semaphore)
			if !sem.signaled {
				rec.violate("submit waits on semaphore#%d that nothing signaled", sem.id)
			}
			sem.signaled = false
			s.refs[&sem.object] = struct{}{}
		}
		for _, hc := range info.CommandBuffers {
			cmd := hc.(*CommandBuffer)
			if cmd.state != cmdExecutable {
				rec.violate("command-buffer#%d submitted in state %s", cmd.id, cmd.state)
			}
			if cmd.pool.family != q.family {
				rec.violate("command-buffer#%d from family %d submitted to family %d", cmd.id, cmd.pool.family, q.family)
			}
			s.refs[&cmd.object] = struct{}{}
			for _, o := range cmd.refs {
				s.refs[o] = struct{}{}
			}
			for _, c := range cmd.commands {
				c(q)
			}
			cmd.state = cmdPending
			cmd.inFlight++
			s.cmds = append(s.cmds, cmd)
		}
		for _, hs := range info.SignalSemaphores {
			sem := hs.(*Semaphore)
			if sem.signaled {
				rec.violate("submit signals semaphore#%d that is already signaled", sem.id)
			}
			sem.signaled = true
			s.refs[&sem.object] = struct{}{}
		}
	}
	if fence != nil {
		fence.pending = s
	}
	d.pending = append(d.pending, s)
	return nil
}

func (q *Queue) WaitIdle() error {
	d := q.dev
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	d.rec.record(Event{Op: OpQueueWaitIdle, Queue: q.family})
	if r := d.fail("QueueWaitIdle"); r.IsError() {
		return r
	}
	for i := 0; i < len(d.pending); {
		if d.pending[i].queue == q {
			d.complete(d.pending[i])
			continue
		}
		i++
	}
	return nil
}

func (q *Queue) Present(info *hal.PresentInfo) hal.Result {
	d := q.dev
	rec := d.rec
	rec.mu.Lock()
	defer rec.mu.Unlock()
	r := hal.Success
	if len(d.presentResults) > 0 {
		r, d.presentResults = d.presentResults[0], d.presentResults[1:]
	}
	rec.record(Event{Op: OpPresent, Queue: q.family, Image: info.ImageIndex, Result: r})
	sc := info.Swapchain.(*Swapchain)
	sc.checkAlive("Present")
	for _, hs := range info.WaitSemaphores {
		sem := hs.(*Semaphore)
		if !sem.signaled {
			rec.violate("present waits on semaphore#%d that nothing signaled", sem.id)
		}
		sem.signaled = false
	}
	if int(info.ImageIndex) >= len(sc.images) {
		rec.violate("present of image %d out of range", info.ImageIndex)
		return hal.ErrorOutOfDate
	}
	if !sc.acquired[info.ImageIndex] {
		rec.violate("present of image %d that was not acquired", info.ImageIndex)
	}
	delete(sc.acquired, info.ImageIndex)
	if l := sc.images[info.ImageIndex].layout; l != hal.LayoutPresentSrc {
		rec.violate("present of image %d in layout %d", info.ImageIndex, l)
	}
	return r
}
