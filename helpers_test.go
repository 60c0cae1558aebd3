package vkframe

import (
	"sync"
	"testing"

	"github.com/andewx/vkframe/hal"
	"github.com/andewx/vkframe/hal/haltest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const (
	vertexSource   = "@vertex fn vs_main() -> @builtin(position) vec4<f32> { return vec4<f32>(0.0, 0.0, 0.0, 1.0); }"
	fragmentSource = "@fragment fn fs_main() -> @location(0) vec4<f32> { return vec4<f32>(1.0, 1.0, 1.0, 1.0); }"
)

// fakeBackend stands in for naga. It counts lifecycle calls and returns a
// fixed SPIR-V header.
type fakeBackend struct {
	mu        sync.Mutex
	inits     int
	finalizes int
	fail      error
	panicMsg  string
}

func (b *fakeBackend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inits++
	return nil
}

func (b *fakeBackend) Finalize() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finalizes++
}

func (b *fakeBackend) Compile(stage hal.ShaderStage, source string) ([]uint32, error) {
	if b.panicMsg != "" {
		panic(b.panicMsg)
	}
	if b.fail != nil {
		return nil, b.fail
	}
	return []uint32{0x07230203, 0x00010000, 0, 1, 0}, nil
}

func (b *fakeBackend) counts() (inits, finalizes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inits, b.finalizes
}

// fakeWindow is a scripted Window. WaitEvents pops the next size.
type fakeWindow struct {
	width, height int
	resized       bool
	closeAfter    int
	polls         int
	waits         int
	sizes         [][2]int
	onWait        func()
}

func (w *fakeWindow) FramebufferSize() (int, int) { return w.width, w.height }

func (w *fakeWindow) Resized() bool {
	r := w.resized
	w.resized = false
	return r
}

func (w *fakeWindow) PollEvents() { w.polls++ }

func (w *fakeWindow) WaitEvents() {
	w.waits++
	if w.onWait != nil {
		w.onWait()
	}
	if len(w.sizes) > 0 {
		w.width, w.height = w.sizes[0][0], w.sizes[0][1]
		w.sizes = w.sizes[1:]
	}
}

func (w *fakeWindow) ShouldClose() bool { return w.closeAfter >= 0 && w.polls >= w.closeAfter }

type fixture struct {
	t        *testing.T
	inst     *haltest.Instance
	rec      *haltest.Recorder
	surface  *haltest.Surface
	ctx      *DeviceContext
	dev      *haltest.Device
	compiler *ShaderCompiler
	backend  *fakeBackend
}

func newFixture(t *testing.T, specs ...haltest.AdapterSpec) *fixture {
	t.Helper()
	if len(specs) == 0 {
		specs = []haltest.AdapterSpec{haltest.DefaultAdapter()}
	}
	inst := haltest.NewInstance(specs...)
	f := &fixture{t: t, inst: inst, rec: inst.Recorder(), surface: inst.NewSurface(800, 600)}
	ctx, err := NewDeviceContext(inst, f.surface, []string{"VK_KHR_swapchain"})
	require.NoError(t, err)
	f.ctx = ctx
	f.dev = ctx.Device().(*haltest.Device)
	f.backend = &fakeBackend{}
	f.compiler = NewShaderCompiler(f.backend)
	return f
}

func (f *fixture) shaders() (*Shader, *Shader) {
	f.t.Helper()
	v, err := NewShader(f.ctx.Device(), f.compiler, hal.ShaderStageVertex, vertexSource)
	require.NoError(f.t, err)
	fr, err := NewShader(f.ctx.Device(), f.compiler, hal.ShaderStageFragment, fragmentSource)
	require.NoError(f.t, err)
	f.t.Cleanup(func() {
		v.Close()
		fr.Close()
	})
	return v, fr
}

func (f *fixture) swapchain(opts SwapchainOptions) *Swapchain {
	f.t.Helper()
	v, fr := f.shaders()
	sc := NewSwapchain(f.ctx, f.surface, NewPipelineBuilder(v, fr), opts)
	ext := f.surface.Extent()
	require.NoError(f.t, sc.Create(ext))
	return sc
}

func (f *fixture) noViolations() {
	f.t.Helper()
	require.Empty(f.t, f.rec.Violations())
}

func resultOf(err error) hal.Result {
	var r hal.Result
	if errors.As(err, &r) {
		return r
	}
	return hal.Success
}
