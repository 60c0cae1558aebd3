// Package haltest is an in-memory hal driver for tests. It executes copies and
// layout transitions on host memory, tracks fence and semaphore state, counts
// live objects and records every synchronization call in order. Misuse of the
// driver contract is not fatal; it is collected as a violation so tests can
// assert that none happened.
package haltest

import (
	"fmt"
	"sync"

	"github.com/andewx/vkframe/hal"
)

type Kind string

const (
	KindSurface             Kind = "surface"
	KindDevice              Kind = "device"
	KindBuffer              Kind = "buffer"
	KindMemory              Kind = "memory"
	KindImage               Kind = "image"
	KindImageView           Kind = "image-view"
	KindSampler             Kind = "sampler"
	KindFence               Kind = "fence"
	KindSemaphore           Kind = "semaphore"
	KindCommandPool         Kind = "command-pool"
	KindCommandBuffer       Kind = "command-buffer"
	KindSwapchain           Kind = "swapchain"
	KindRenderPass          Kind = "render-pass"
	KindFramebuffer         Kind = "framebuffer"
	KindShaderModule        Kind = "shader-module"
	KindDescriptorSetLayout Kind = "descriptor-set-layout"
	KindDescriptorPool      Kind = "descriptor-pool"
	KindPipelineLayout      Kind = "pipeline-layout"
	KindPipeline            Kind = "pipeline"
)

type Op string

const (
	OpCreate          Op = "create"
	OpDestroy         Op = "destroy"
	OpWaitFence       Op = "wait-fence"
	OpResetFence      Op = "reset-fence"
	OpSubmit          Op = "submit"
	OpAcquire         Op = "acquire"
	OpPresent         Op = "present"
	OpQueueWaitIdle   Op = "queue-wait-idle"
	OpDeviceWaitIdle  Op = "device-wait-idle"
	OpBarrier         Op = "barrier"
	OpCopyBuffer      Op = "copy-buffer"
	OpCopyBufferImage Op = "copy-buffer-to-image"
	OpDraw            Op = "draw"
)

// Event is one recorded driver call. Only the fields relevant to Op are set.
type Event struct {
	Op     Op
	Kind   Kind
	ID     int
	Queue  uint32
	Fence  int
	Result hal.Result
	Image  uint32

	SrcStage  hal.PipelineStage
	DstStage  hal.PipelineStage
	OldLayout hal.ImageLayout
	NewLayout hal.ImageLayout
}

func (e Event) String() string {
	switch e.Op {
	case OpCreate, OpDestroy:
		return fmt.Sprintf("%s %s#%d", e.Op, e.Kind, e.ID)
	case OpWaitFence, OpResetFence:
		return fmt.Sprintf("%s fence#%d", e.Op, e.Fence)
	case OpSubmit:
		return fmt.Sprintf("submit q%d fence#%d", e.Queue, e.Fence)
	case OpAcquire, OpPresent:
		return fmt.Sprintf("%s image %d (%d)", e.Op, e.Image, e.Result)
	}
	return string(e.Op)
}

// Recorder is shared by every object created from one Instance.
type Recorder struct {
	mu         sync.Mutex
	nextID     int
	events     []Event
	violations []string
	live       map[Kind]int
	devices    []*Device
	recycled   [][]byte
}

func newRecorder() *Recorder {
	return &Recorder{live: make(map[Kind]int)}
}

// Events returns a copy of every recorded event.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// EventsOf returns the recorded events with the given op.
func (r *Recorder) EventsOf(op Op) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Op == op {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many events with op were recorded.
func (r *Recorder) Count(op Op) int {
	return len(r.EventsOf(op))
}

// Destroyed returns how many objects of kind were destroyed.
func (r *Recorder) Destroyed(kind Kind) int {
	n := 0
	for _, e := range r.EventsOf(OpDestroy) {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Created returns how many objects of kind were created.
func (r *Recorder) Created(kind Kind) int {
	n := 0
	for _, e := range r.EventsOf(OpCreate) {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Violations returns every contract violation observed so far.
func (r *Recorder) Violations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.violations...)
}

// Live returns the number of objects of kind that were created and not yet destroyed.
func (r *Recorder) Live(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live[kind]
}

// LiveTotal returns the number of live objects of every kind.
func (r *Recorder) LiveTotal() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.live {
		n += c
	}
	return n
}

// Mark inserts a caller-named event, useful to split an event stream by frame.
func (r *Recorder) Mark(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Op: Op(name)})
}

func (r *Recorder) record(e Event) {
	r.events = append(r.events, e)
}

func (r *Recorder) violate(format string, args ...any) {
	r.violations = append(r.violations, fmt.Sprintf(format, args...))
}

// object is embedded by every fake handle.
type object struct {
	rec       *Recorder
	kind      Kind
	id        int
	destroyed bool
}

func (r *Recorder) newObject(kind Kind) object {
	r.nextID++
	r.live[kind]++
	r.record(Event{Op: OpCreate, Kind: kind, ID: r.nextID})
	return object{rec: r, kind: kind, id: r.nextID}
}

// ID returns the handle's unique id within its Recorder.
func (o *object) ID() int { return o.id }

// Destroyed reports whether the handle has been destroyed.
func (o *object) Destroyed() bool {
	o.rec.mu.Lock()
	defer o.rec.mu.Unlock()
	return o.destroyed
}

func (o *object) destroyLocked() bool {
	r := o.rec
	if o.destroyed {
		r.violate("%s#%d destroyed twice", o.kind, o.id)
		return false
	}
	if r.inUse(o) {
		r.violate("%s#%d destroyed while referenced by pending work", o.kind, o.id)
	}
	o.destroyed = true
	r.live[o.kind]--
	r.record(Event{Op: OpDestroy, Kind: o.kind, ID: o.id})
	return true
}

func (o *object) destroy() {
	o.rec.mu.Lock()
	defer o.rec.mu.Unlock()
	o.destroyLocked()
}

func (o *object) checkAlive(what string) {
	if o.destroyed {
		o.rec.violate("%s used destroyed %s#%d", what, o.kind, o.id)
	}
}

func (r *Recorder) inUse(o *object) bool {
	for _, d := range r.devices {
		for _, s := range d.pending {
			if _, ok := s.refs[o]; ok {
				return true
			}
		}
	}
	return false
}

// allocate returns a byte slice of size n. Freed allocations are reused
// without clearing, like device memory.
func (r *Recorder) allocate(n uint64) []byte {
	for i, b := range r.recycled {
		if uint64(cap(b)) >= n {
			r.recycled = append(r.recycled[:i], r.recycled[i+1:]...)
			return b[:n]
		}
	}
	return make([]byte, n)
}
