package haltest

import (
	"github.com/andewx/vkframe/hal"
)

type cmdState int

const (
	cmdInitial cmdState = iota
	cmdRecording
	cmdExecutable
	cmdPending
	cmdInvalid
)

func (s cmdState) String() string {
	return [...]string{"initial", "recording", "executable", "pending", "invalid"}[s]
}

// CommandPool implements hal.CommandPool.
type CommandPool struct {
	object
	family     uint32
	resettable bool
	buffers    []*CommandBuffer
}

func (p *CommandPool) Destroy() {
	p.rec.mu.Lock()
	defer p.rec.mu.Unlock()
	if !p.destroyLocked() {
		return
	}
	for _, c := range p.buffers {
		if !c.destroyed {
			c.destroyLocked()
		}
	}
}

func (p *CommandPool) Allocate() (hal.CommandBuffer, error) {
	p.rec.mu.Lock()
	defer p.rec.mu.Unlock()
	p.checkAlive("Allocate")
	c := &CommandBuffer{object: p.rec.newObject(KindCommandBuffer), pool: p}
	p.buffers = append(p.buffers, c)
	return c, nil
}

func (d *Device) CreateCommandPool(family uint32, resettable bool) (hal.CommandPool, error) {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	if r := d.fail("CreateCommandPool"); r.IsError() {
		return nil, r
	}
	if _, ok := d.queues[family]; !ok {
		d.rec.violate("command pool for family %d that has no queue", family)
	}
	return &CommandPool{object: d.rec.newObject(KindCommandPool), family: family, resettable: resettable}, nil
}

// CommandBuffer implements hal.CommandBuffer. Recorded commands run on host
// memory when the buffer is submitted.
type CommandBuffer struct {
	object
	pool     *CommandPool
	state    cmdState
	oneTime  bool
	inFlight int
	commands []func(q *Queue)
	refs     []*object
	draws    int
}

// Draws returns the number of draw calls in the current recording.
func (c *CommandBuffer) Draws() int {
	c.rec.mu.Lock()
	defer c.rec.mu.Unlock()
	return c.draws
}

func (c *CommandBuffer) Destroy() { c.destroy() }

func (c *CommandBuffer) Begin(oneTime bool) error {
	c.rec.mu.Lock()
	defer c.rec.mu.Unlock()
	c.checkAlive("Begin")
	switch c.state {
	case cmdPending:
		c.rec.violate("command-buffer#%d re-recorded while pending", c.id)
	case cmdExecutable, cmdInvalid:
		if !c.pool.resettable {
			c.rec.violate("command-buffer#%d re-recorded without a resettable pool", c.id)
		}
	case cmdRecording:
		c.rec.violate("command-buffer#%d begun twice", c.id)
	}
	c.state = cmdRecording
	c.oneTime = oneTime
	c.commands, c.refs, c.draws = nil, nil, 0
	return nil
}

func (c *CommandBuffer) End() error {
	c.rec.mu.Lock()
	defer c.rec.mu.Unlock()
	if c.state != cmdRecording {
		c.rec.violate("command-buffer#%d ended in state %s", c.id, c.state)
	}
	c.state = cmdExecutable
	return nil
}

func (c *CommandBuffer) Reset() error {
	c.rec.mu.Lock()
	defer c.rec.mu.Unlock()
	if c.state == cmdPending {
		c.rec.violate("command-buffer#%d reset while pending", c.id)
	}
	if !c.pool.resettable {
		c.rec.violate("command-buffer#%d reset without a resettable pool", c.id)
	}
	c.state = cmdInitial
	c.commands, c.refs, c.draws = nil, nil, 0
	return nil
}

func (c *CommandBuffer) add(fn func(q *Queue), refs ...*object) {
	c.rec.mu.Lock()
	defer c.rec.mu.Unlock()
	if c.state != cmdRecording {
		c.rec.violate("command-buffer#%d recorded outside Begin/End", c.id)
	}
	for _, o := range refs {
		o.checkAlive("record")
	}
	c.commands = append(c.commands, fn)
	c.refs = append(c.refs, refs...)
}

func (c *CommandBuffer) CopyBuffer(hs, hd hal.Buffer, regions []hal.BufferCopy) {
	src, dst := hs.(*Buffer), hd.(*Buffer)
	c.add(func(q *Queue) {
		r := q.dev.rec
		r.record(Event{Op: OpCopyBuffer, Queue: q.family})
		if src.desc.Usage&hal.BufferUsageTransferSrc == 0 {
			r.violate("copy from buffer#%d without transfer-src usage", src.id)
		}
		if dst.desc.Usage&hal.BufferUsageTransferDst == 0 {
			r.violate("copy to buffer#%d without transfer-dst usage", dst.id)
		}
		if src.mem == nil || dst.mem == nil {
			r.violate("copy between buffers without bound memory")
			return
		}
		for _, reg := range regions {
			if reg.SrcOffset+reg.Size > src.desc.Size || reg.DstOffset+reg.Size > dst.desc.Size {
				r.violate("copy region out of bounds")
				continue
			}
			copy(dst.mem.data[reg.DstOffset:reg.DstOffset+reg.Size], src.mem.data[reg.SrcOffset:reg.SrcOffset+reg.Size])
		}
	}, &src.object, &dst.object)
}

func (c *CommandBuffer) CopyBufferToImage(hs hal.Buffer, hd hal.Image, layout hal.ImageLayout, width, height uint32) {
	src, dst := hs.(*Buffer), hd.(*Image)
	c.add(func(q *Queue) {
		r := q.dev.rec
		r.record(Event{Op: OpCopyBufferImage, Queue: q.family, NewLayout: layout})
		if layout != hal.LayoutTransferDst || dst.layout != hal.LayoutTransferDst {
			r.violate("copy to image#%d in layout %d (declared %d)", dst.id, dst.layout, layout)
		}
		if src.desc.Usage&hal.BufferUsageTransferSrc == 0 {
			r.violate("copy from buffer#%d without transfer-src usage", src.id)
		}
		if dst.desc.Usage&hal.ImageUsageTransferDst == 0 {
			r.violate("copy to image#%d without transfer-dst usage", dst.id)
		}
		if src.mem == nil || dst.mem == nil {
			r.violate("copy to image without bound memory")
			return
		}
		n := uint64(width) * uint64(height) * uint64(dst.desc.Format.BytesPerPixel())
		if n > src.desc.Size {
			r.violate("copy to image#%d reads past buffer#%d", dst.id, src.id)
			n = src.desc.Size
		}
		copy(dst.mem.data[:n], src.mem.data[:n])
	}, &src.object, &dst.object)
}

func (c *CommandBuffer) PipelineBarrier(srcStage, dstStage hal.PipelineStage, barriers []hal.ImageBarrier) {
	refs := make([]*object, 0, len(barriers))
	imgs := make([]*Image, len(barriers))
	for i, b := range barriers {
		imgs[i] = b.Image.(*Image)
		refs = append(refs, &imgs[i].object)
	}
	c.add(func(q *Queue) {
		r := q.dev.rec
		for i, b := range barriers {
			img := imgs[i]
			r.record(Event{Op: OpBarrier, Queue: q.family, ID: img.id, SrcStage: srcStage, DstStage: dstStage, OldLayout: b.OldLayout, NewLayout: b.NewLayout})
			if b.OldLayout != hal.LayoutUndefined && b.OldLayout != img.layout {
				r.violate("barrier on image#%d from layout %d but image is in %d", img.id, b.OldLayout, img.layout)
			}
			img.layout = b.NewLayout
		}
	}, refs...)
}

func (c *CommandBuffer) BeginRenderPass(hrp hal.RenderPass, hfb hal.Framebuffer, area hal.Extent2D, clear []hal.ClearValue) {
	rp, fb := hrp.(*RenderPass), hfb.(*Framebuffer)
	refs := []*object{&rp.object, &fb.object}
	for _, v := range fb.views {
		refs = append(refs, &v.object)
	}
	c.add(func(q *Queue) {
		if area != fb.extent {
			q.dev.rec.violate("render area %v does not match framebuffer#%d extent %v", area, fb.id, fb.extent)
		}
		for _, v := range fb.views {
			if v.image.chain != nil {
				v.image.layout = rp.desc.FinalLayout
			}
		}
	}, refs...)
}

func (c *CommandBuffer) EndRenderPass() {
	c.add(func(q *Queue) {})
}

func (c *CommandBuffer) BindPipeline(hp hal.Pipeline) {
	p := hp.(*Pipeline)
	c.add(func(q *Queue) {}, &p.object)
}

func (c *CommandBuffer) BindVertexBuffers(first uint32, buffers []hal.Buffer, offsets []uint64) {
	refs := make([]*object, len(buffers))
	for i, b := range buffers {
		refs[i] = &b.(*Buffer).object
	}
	c.add(func(q *Queue) {}, refs...)
}

func (c *CommandBuffer) BindIndexBuffer(hb hal.Buffer, offset uint64, t hal.IndexType) {
	b := hb.(*Buffer)
	c.add(func(q *Queue) {
		if b.desc.Usage&hal.BufferUsageIndex == 0 {
			q.dev.rec.violate("buffer#%d bound as index buffer without index usage", b.id)
		}
	}, &b.object)
}

func (c *CommandBuffer) BindDescriptorSets(hl hal.PipelineLayout, first uint32, sets []hal.DescriptorSet) {
	l := hl.(*PipelineLayout)
	refs := []*object{&l.object}
	for _, hs := range sets {
		s := hs.(*DescriptorSet)
		refs = append(refs, &s.pool.object)
		for _, w := range s.writes {
			if w.Buffer != nil {
				refs = append(refs, &w.Buffer.(*Buffer).object)
			}
			if w.View != nil {
				refs = append(refs, &w.View.(*ImageView).object)
			}
		}
	}
	c.add(func(q *Queue) {}, refs...)
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	c.add(func(q *Queue) { q.dev.rec.record(Event{Op: OpDraw, Queue: q.family}) })
	c.rec.mu.Lock()
	c.draws++
	c.rec.mu.Unlock()
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	c.Draw(indexCount, instanceCount, firstIndex, firstInstance)
}
