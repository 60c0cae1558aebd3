package haltest

import (
	"github.com/andewx/vkframe/hal"
)

type failure struct {
	after  int
	result hal.Result
}

// Device implements hal.Device.
type Device struct {
	object
	adapter *Adapter
	queues  map[uint32]*Queue
	pending []*submission

	failures       map[string][]failure
	acquireResults []hal.Result
	presentResults []hal.Result
}

var _ hal.Device = (*Device)(nil)

// FailNext makes the next call to op fail with r. Op is the hal.Device or
// hal.Queue method name, e.g. "CreateBuffer" or "Submit". The two WaitIdle
// methods are "DeviceWaitIdle" and "QueueWaitIdle".
func (d *Device) FailNext(op string, r hal.Result) {
	d.FailNth(op, 1, r)
}

// FailNth makes the nth call to op, counted from now, fail with r.
func (d *Device) FailNth(op string, n int, r hal.Result) {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	d.failures[op] = append(d.failures[op], failure{after: n, result: r})
}

// PushAcquireResult queues a result for an upcoming AcquireNextImage call.
func (d *Device) PushAcquireResult(r ...hal.Result) {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	d.acquireResults = append(d.acquireResults, r...)
}

// PushPresentResult queues a result for an upcoming Present call.
func (d *Device) PushPresentResult(r ...hal.Result) {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	d.presentResults = append(d.presentResults, r...)
}

func (d *Device) fail(op string) hal.Result {
	rules := d.failures[op]
	hit := -1
	for i := range rules {
		rules[i].after--
		if rules[i].after == 0 && hit < 0 {
			hit = i
		}
	}
	if hit < 0 {
		return hal.Success
	}
	r := rules[hit].result
	d.failures[op] = append(rules[:hit], rules[hit+1:]...)
	return r
}

func (d *Device) Queue(family uint32) hal.Queue {
	q, ok := d.queues[family]
	if !ok {
		d.rec.mu.Lock()
		d.rec.violate("queue family %d was not requested at device creation", family)
		d.rec.mu.Unlock()
		q = &Queue{dev: d, family: family}
		d.queues[family] = q
	}
	return q
}

func (d *Device) WaitIdle() error {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	d.rec.record(Event{Op: OpDeviceWaitIdle})
	if r := d.fail("DeviceWaitIdle"); r.IsError() {
		return r
	}
	for len(d.pending) > 0 {
		d.complete(d.pending[0])
	}
	return nil
}

func (d *Device) Destroy() {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	if len(d.pending) > 0 {
		d.rec.violate("device destroyed with %d pending submissions", len(d.pending))
	}
	d.destroyLocked()
}

// Buffer implements hal.Buffer.
type Buffer struct {
	object
	desc hal.BufferDescriptor
	mem  *Memory
}

func (b *Buffer) Size() uint64 { return b.desc.Size }

func (b *Buffer) Usage() hal.BufferUsage { return b.desc.Usage }

func (b *Buffer) Sharing() hal.SharingMode { return b.desc.Sharing }

func (b *Buffer) MemoryRequirements() hal.MemoryRequirements {
	return hal.MemoryRequirements{Size: b.desc.Size, Alignment: 256, TypeBits: 0xF}
}

func (b *Buffer) Destroy() { b.destroy() }

// Contents returns a copy of the bytes in the buffer's bound memory.
func (b *Buffer) Contents() []byte {
	b.rec.mu.Lock()
	defer b.rec.mu.Unlock()
	if b.mem == nil {
		return nil
	}
	return append([]byte(nil), b.mem.data[:b.desc.Size]...)
}

func (d *Device) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	if r := d.fail("CreateBuffer"); r.IsError() {
		return nil, r
	}
	if desc.Size == 0 {
		d.rec.violate("buffer created with size 0")
	}
	if desc.Sharing == hal.SharingConcurrent && len(desc.QueueFamilies) < 2 {
		d.rec.violate("concurrent buffer with %d queue families", len(desc.QueueFamilies))
	}
	return &Buffer{object: d.rec.newObject(KindBuffer), desc: *desc}, nil
}

// Image implements hal.Image.
type Image struct {
	object
	desc   hal.ImageDescriptor
	mem    *Memory
	layout hal.ImageLayout
	// owned by a swapchain
	chain *Swapchain
}

func (img *Image) Extent() hal.Extent2D { return img.desc.Extent }

func (img *Image) Format() hal.Format { return img.desc.Format }

func (img *Image) Usage() hal.ImageUsage { return img.desc.Usage }

func (img *Image) MemoryRequirements() hal.MemoryRequirements {
	size := img.desc.Extent.Area() * uint64(img.desc.Format.BytesPerPixel())
	return hal.MemoryRequirements{Size: size, Alignment: 4096, TypeBits: 0xF}
}

func (img *Image) Destroy() {
	img.rec.mu.Lock()
	defer img.rec.mu.Unlock()
	if img.chain != nil {
		img.rec.violate("swapchain image %d destroyed directly", img.id)
		return
	}
	img.destroyLocked()
}

// Layout returns the layout the image is in after all executed work.
func (img *Image) Layout() hal.ImageLayout {
	img.rec.mu.Lock()
	defer img.rec.mu.Unlock()
	return img.layout
}

// Contents returns a copy of the image's texels.
func (img *Image) Contents() []byte {
	img.rec.mu.Lock()
	defer img.rec.mu.Unlock()
	if img.mem == nil {
		return nil
	}
	return append([]byte(nil), img.mem.data[:img.MemoryRequirements().Size]...)
}

func (d *Device) CreateImage(desc *hal.ImageDescriptor) (hal.Image, error) {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	if r := d.fail("CreateImage"); r.IsError() {
		return nil, r
	}
	if desc.Extent.Area() == 0 {
		d.rec.violate("image created with zero extent")
	}
	return &Image{object: d.rec.newObject(KindImage), desc: *desc}, nil
}

// Memory implements hal.Memory.
type Memory struct {
	object
	props  hal.MemoryProperty
	data   []byte
	mapped bool
}

func (m *Memory) Properties() hal.MemoryProperty { return m.props }

func (m *Memory) Free() {
	m.rec.mu.Lock()
	defer m.rec.mu.Unlock()
	if m.destroyLocked() {
		m.rec.recycled = append(m.rec.recycled, m.data)
	}
}

func (d *Device) AllocateMemory(req hal.MemoryRequirements, props hal.MemoryProperty) (hal.Memory, error) {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	if r := d.fail("AllocateMemory"); r.IsError() {
		return nil, r
	}
	return &Memory{object: d.rec.newObject(KindMemory), props: props, data: d.rec.allocate(req.Size)}, nil
}

func (d *Device) BindBufferMemory(b hal.Buffer, m hal.Memory) error {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	if r := d.fail("BindBufferMemory"); r.IsError() {
		return r
	}
	buf, mem := b.(*Buffer), m.(*Memory)
	if uint64(len(mem.data)) < buf.desc.Size {
		d.rec.violate("buffer#%d bound to memory#%d smaller than the buffer", buf.id, mem.id)
	}
	buf.mem = mem
	return nil
}

func (d *Device) BindImageMemory(i hal.Image, m hal.Memory) error {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	if r := d.fail("BindImageMemory"); r.IsError() {
		return r
	}
	img, mem := i.(*Image), m.(*Memory)
	if uint64(len(mem.data)) < img.MemoryRequirements().Size {
		d.rec.violate("image#%d bound to memory#%d smaller than the image", img.id, mem.id)
	}
	img.mem = mem
	return nil
}

func (d *Device) MapMemory(m hal.Memory, offset, size uint64) ([]byte, error) {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	if r := d.fail("MapMemory"); r.IsError() {
		return nil, r
	}
	mem := m.(*Memory)
	if mem.props&hal.MemoryHostVisible == 0 {
		d.rec.violate("memory#%d mapped without host visibility", mem.id)
		return nil, hal.ErrorMemoryMapFailed
	}
	if mem.mapped {
		d.rec.violate("memory#%d mapped twice", mem.id)
	}
	mem.mapped = true
	return mem.data[offset : offset+size], nil
}

func (d *Device) UnmapMemory(m hal.Memory) {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	m.(*Memory).mapped = false
}

// ImageView implements hal.ImageView.
type ImageView struct {
	object
	image *Image
}

func (v *ImageView) Destroy() { v.destroy() }

func (d *Device) CreateImageView(desc *hal.ImageViewDescriptor) (hal.ImageView, error) {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	if r := d.fail("CreateImageView"); r.IsError() {
		return nil, r
	}
	img := desc.Image.(*Image)
	img.checkAlive("CreateImageView")
	return &ImageView{object: d.rec.newObject(KindImageView), image: img}, nil
}

type Sampler struct{ object }

func (s *Sampler) Destroy() { s.destroy() }

func (d *Device) CreateSampler(desc *hal.SamplerDescriptor) (hal.Sampler, error) {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	if r := d.fail("CreateSampler"); r.IsError() {
		return nil, r
	}
	return &Sampler{object: d.rec.newObject(KindSampler)}, nil
}

type RenderPass struct {
	object
	desc hal.RenderPassDescriptor
}

func (rp *RenderPass) Destroy() { rp.destroy() }

func (d *Device) CreateRenderPass(desc *hal.RenderPassDescriptor) (hal.RenderPass, error) {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	if r := d.fail("CreateRenderPass"); r.IsError() {
		return nil, r
	}
	return &RenderPass{object: d.rec.newObject(KindRenderPass), desc: *desc}, nil
}

type Framebuffer struct {
	object
	pass   *RenderPass
	views  []*ImageView
	extent hal.Extent2D
}

func (fb *Framebuffer) Destroy() { fb.destroy() }

func (fb *Framebuffer) Extent() hal.Extent2D { return fb.extent }

func (d *Device) CreateFramebuffer(desc *hal.FramebufferDescriptor) (hal.Framebuffer, error) {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	if r := d.fail("CreateFramebuffer"); r.IsError() {
		return nil, r
	}
	fb := &Framebuffer{object: d.rec.newObject(KindFramebuffer), pass: desc.RenderPass.(*RenderPass), extent: desc.Extent}
	for _, v := range desc.Attachments {
		view := v.(*ImageView)
		view.checkAlive("CreateFramebuffer")
		if view.image.desc.Extent != desc.Extent {
			d.rec.violate("framebuffer#%d extent %v does not match attachment %v", fb.id, desc.Extent, view.image.desc.Extent)
		}
		fb.views = append(fb.views, view)
	}
	return fb, nil
}

type ShaderModule struct {
	object
	code []uint32
}

func (s *ShaderModule) Destroy() { s.destroy() }

func (d *Device) CreateShaderModule(code []uint32) (hal.ShaderModule, error) {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	if r := d.fail("CreateShaderModule"); r.IsError() {
		return nil, r
	}
	if len(code) == 0 {
		d.rec.violate("shader module created from empty code")
	}
	return &ShaderModule{object: d.rec.newObject(KindShaderModule), code: append([]uint32(nil), code...)}, nil
}

type DescriptorSetLayout struct {
	object
	bindings []hal.DescriptorBinding
}

func (l *DescriptorSetLayout) Destroy() { l.destroy() }

func (d *Device) CreateDescriptorSetLayout(bindings []hal.DescriptorBinding) (hal.DescriptorSetLayout, error) {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	if r := d.fail("CreateDescriptorSetLayout"); r.IsError() {
		return nil, r
	}
	return &DescriptorSetLayout{object: d.rec.newObject(KindDescriptorSetLayout), bindings: bindings}, nil
}

type DescriptorPool struct {
	object
	maxSets uint32
	sets    []*DescriptorSet
}

func (p *DescriptorPool) Destroy() { p.destroy() }

func (p *DescriptorPool) Allocate(layout hal.DescriptorSetLayout) (hal.DescriptorSet, error) {
	p.rec.mu.Lock()
	defer p.rec.mu.Unlock()
	if uint32(len(p.sets)) >= p.maxSets {
		return nil, hal.ErrorOutOfDeviceMemory
	}
	s := &DescriptorSet{pool: p, layout: layout.(*DescriptorSetLayout), writes: map[uint32]hal.DescriptorWrite{}}
	p.sets = append(p.sets, s)
	return s, nil
}

func (d *Device) CreateDescriptorPool(sizes []hal.DescriptorPoolSize, maxSets uint32) (hal.DescriptorPool, error) {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	if r := d.fail("CreateDescriptorPool"); r.IsError() {
		return nil, r
	}
	return &DescriptorPool{object: d.rec.newObject(KindDescriptorPool), maxSets: maxSets}, nil
}

type DescriptorSet struct {
	pool   *DescriptorPool
	layout *DescriptorSetLayout
	writes map[uint32]hal.DescriptorWrite
}

func (s *DescriptorSet) Layout() hal.DescriptorSetLayout { return s.layout }

// Write returns the last write to binding.
func (s *DescriptorSet) Write(binding uint32) (hal.DescriptorWrite, bool) {
	w, ok := s.writes[binding]
	return w, ok
}

func (d *Device) UpdateDescriptorSets(writes []hal.DescriptorWrite) {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	for _, w := range writes {
		set := w.Set.(*DescriptorSet)
		set.pool.checkAlive("UpdateDescriptorSets")
		set.writes[w.Binding] = w
	}
}

type PipelineLayout struct {
	object
	sets []*DescriptorSetLayout
}

func (l *PipelineLayout) Destroy() { l.destroy() }

func (d *Device) CreatePipelineLayout(setLayouts []hal.DescriptorSetLayout) (hal.PipelineLayout, error) {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	if r := d.fail("CreatePipelineLayout"); r.IsError() {
		return nil, r
	}
	l := &PipelineLayout{object: d.rec.newObject(KindPipelineLayout)}
	for _, s := range setLayouts {
		l.sets = append(l.sets, s.(*DescriptorSetLayout))
	}
	return l, nil
}

// Pipeline implements hal.Pipeline and keeps its descriptor for inspection.
type Pipeline struct {
	object
	Desc hal.GraphicsPipelineDescriptor
}

func (p *Pipeline) Destroy() { p.destroy() }

func (d *Device) CreateGraphicsPipeline(desc *hal.GraphicsPipelineDescriptor) (hal.Pipeline, error) {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	if r := d.fail("CreateGraphicsPipeline"); r.IsError() {
		return nil, r
	}
	desc.Layout.(*PipelineLayout).checkAlive("CreateGraphicsPipeline")
	desc.RenderPass.(*RenderPass).checkAlive("CreateGraphicsPipeline")
	return &Pipeline{object: d.rec.newObject(KindPipeline), Desc: *desc}, nil
}

// Swapchain implements hal.Swapchain.
type Swapchain struct {
	object
	Desc     hal.SwapchainDescriptor
	images   []*Image
	next     uint32
	acquired map[uint32]bool
}

func (sc *Swapchain) Destroy() {
	sc.rec.mu.Lock()
	defer sc.rec.mu.Unlock()
	if sc.destroyLocked() {
		for _, img := range sc.images {
			img.destroyed = true
		}
	}
}

func (d *Device) CreateSwapchain(desc *hal.SwapchainDescriptor) (hal.Swapchain, error) {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	if r := d.fail("CreateSwapchain"); r.IsError() {
		return nil, r
	}
	if desc.Extent.Area() == 0 {
		d.rec.violate("swapchain created with zero extent")
	}
	if desc.Old != nil && desc.Old.(*Swapchain).destroyed {
		d.rec.violate("swapchain created with a destroyed old swapchain")
	}
	sc := &Swapchain{object: d.rec.newObject(KindSwapchain), Desc: *desc, acquired: map[uint32]bool{}}
	for i := uint32(0); i < desc.MinImageCount; i++ {
		d.rec.nextID++
		sc.images = append(sc.images, &Image{
			object: object{rec: d.rec, kind: KindImage, id: d.rec.nextID},
			desc:   hal.ImageDescriptor{Extent: desc.Extent, Format: desc.Format, Usage: desc.Usage},
			chain:  sc,
		})
	}
	return sc, nil
}

func (d *Device) SwapchainImages(s hal.Swapchain) ([]hal.Image, error) {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	sc := s.(*Swapchain)
	out := make([]hal.Image, len(sc.images))
	for i, img := range sc.images {
		out[i] = img
	}
	return out, nil
}

func (d *Device) AcquireNextImage(s hal.Swapchain, timeout uint64, signal hal.Semaphore) (uint32, hal.Result) {
	d.rec.mu.Lock()
	defer d.rec.mu.Unlock()
	sc := s.(*Swapchain)
	sc.checkAlive("AcquireNextImage")
	r := hal.Success
	if len(d.acquireResults) > 0 {
		r, d.acquireResults = d.acquireResults[0], d.acquireResults[1:]
	}
	if r.IsError() {
		d.rec.record(Event{Op: OpAcquire, Result: r})
		return 0, r
	}
	sem := signal.(*Semaphore)
	if sem.signaled {
		d.rec.violate("acquire signals semaphore#%d that is already signaled", sem.id)
	}
	sem.signaled = true
	idx := sc.next
	sc.next = (sc.next + 1) % uint32(len(sc.images))
	sc.acquired[idx] = true
	d.rec.record(Event{Op: OpAcquire, Result: r, Image: idx})
	return idx, r
}
