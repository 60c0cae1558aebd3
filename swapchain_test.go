package vkframe

import (
	"testing"

	"github.com/andewx/vkframe/hal"
	"github.com/andewx/vkframe/hal/haltest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChooseExtent(t *testing.T) {
	caps := hal.SurfaceCapabilities{
		CurrentExtent:  hal.Extent2D{Width: 640, Height: 480},
		MinImageExtent: hal.Extent2D{Width: 16, Height: 16},
		MaxImageExtent: hal.Extent2D{Width: 2048, Height: 2048},
	}
	assert.Equal(t, hal.Extent2D{Width: 640, Height: 480}, ChooseExtent(caps, hal.Extent2D{Width: 1, Height: 1}))

	caps.CurrentExtent = hal.Extent2D{Width: hal.UndefinedExtent, Height: hal.UndefinedExtent}
	assert.Equal(t, hal.Extent2D{Width: 1024, Height: 768}, ChooseExtent(caps, hal.Extent2D{Width: 1024, Height: 768}))
	assert.Equal(t, hal.Extent2D{Width: 2048, Height: 16}, ChooseExtent(caps, hal.Extent2D{Width: 9000, Height: 2}))
}

func TestChooseImageCount(t *testing.T) {
	assert.Equal(t, uint32(3), ChooseImageCount(hal.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 8}))
	assert.Equal(t, uint32(2), ChooseImageCount(hal.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 2}))
	assert.Equal(t, uint32(4), ChooseImageCount(hal.SurfaceCapabilities{MinImageCount: 3}))
}

func TestChooseSurfaceFormat(t *testing.T) {
	unorm := hal.SurfaceFormat{Format: hal.FormatB8G8R8A8Unorm, ColorSpace: hal.ColorSpaceSrgbNonlinear}
	rgba := hal.SurfaceFormat{Format: hal.FormatR8G8B8A8Unorm, ColorSpace: hal.ColorSpaceSrgbNonlinear}

	got, err := ChooseSurfaceFormat([]hal.SurfaceFormat{unorm, PreferredSurfaceFormat})
	require.NoError(t, err)
	assert.Equal(t, PreferredSurfaceFormat, got)

	got, err = ChooseSurfaceFormat([]hal.SurfaceFormat{{Format: hal.FormatUndefined}})
	require.NoError(t, err)
	assert.Equal(t, PreferredSurfaceFormat, got)

	got, err = ChooseSurfaceFormat([]hal.SurfaceFormat{rgba, unorm})
	require.NoError(t, err)
	assert.Equal(t, rgba, got)

	_, err = ChooseSurfaceFormat(nil)
	assert.Error(t, err)
}

func TestChoosePresentMode(t *testing.T) {
	modes := []hal.PresentMode{hal.PresentModeFifo, hal.PresentModeMailbox}
	assert.Equal(t, hal.PresentModeMailbox, ChoosePresentMode(modes, hal.PresentModeMailbox))
	assert.Equal(t, hal.PresentModeFifo, ChoosePresentMode(modes, hal.PresentModeImmediate))
	assert.Equal(t, hal.PresentModeFifo, ChoosePresentMode(nil, hal.PresentModeMailbox))
}

func TestSwapchainCreate(t *testing.T) {
	f := newFixture(t)
	sc := f.swapchain(SwapchainOptions{PresentMode: hal.PresentModeMailbox, Depth: true})

	assert.Equal(t, SwapchainActive, sc.State())
	assert.Equal(t, hal.Extent2D{Width: 800, Height: 600}, sc.Extent())
	assert.Equal(t, PreferredSurfaceFormat, sc.Format())
	assert.Equal(t, hal.PresentModeMailbox, sc.PresentMode())
	assert.Equal(t, 3, sc.ImageCount())
	assert.True(t, sc.HasDepth())

	assert.Equal(t, 1, f.rec.Live(haltest.KindSwapchain))
	assert.Equal(t, 3, f.rec.Live(haltest.KindFramebuffer))
	assert.Equal(t, 4, f.rec.Live(haltest.KindImageView))
	assert.Equal(t, 1, f.rec.Live(haltest.KindImage))
	assert.Equal(t, 1, f.rec.Live(haltest.KindRenderPass))
	assert.Equal(t, 1, f.rec.Live(haltest.KindPipeline))

	chain := sc.Chain().(*haltest.Swapchain)
	assert.Equal(t, hal.SharingExclusive, chain.Desc.Sharing)
	assert.Equal(t, hal.SurfaceTransformIdentity, chain.Desc.PreTransform)
	assert.Equal(t, hal.CompositeAlphaOpaque, chain.Desc.CompositeAlpha)

	pipeline := sc.Pipeline().(*haltest.Pipeline)
	assert.True(t, pipeline.Desc.DepthTest)
	assert.Equal(t, sc.Extent(), pipeline.Desc.Extent)
	assert.Equal(t, "vs_main", pipeline.Desc.VertexEntry)
	assert.Equal(t, "fs_main", pipeline.Desc.FragmentEntry)

	require.NoError(t, sc.Destroy())
	assert.Error(t, sc.Create(hal.Extent2D{Width: 800, Height: 600}))
	f.noViolations()
}

func TestSwapchainWithoutDepth(t *testing.T) {
	f := newFixture(t)
	sc := f.swapchain(SwapchainOptions{})

	assert.Equal(t, 0, f.rec.Live(haltest.KindImage))
	assert.Equal(t, 3, f.rec.Live(haltest.KindImageView))
	assert.False(t, sc.Pipeline().(*haltest.Pipeline).Desc.DepthTest)
	require.NoError(t, sc.Destroy())
	f.noViolations()
}

func TestSwapchainSeparatePresentFamily(t *testing.T) {
	spec := haltest.DefaultAdapter()
	spec.Families = []hal.QueueFamily{
		{Flags: hal.QueueGraphics | hal.QueueTransfer, Count: 1},
		{Flags: hal.QueueCompute, Count: 1},
	}
	spec.PresentFamilies = []uint32{1}
	f := newFixture(t, spec)
	sc := f.swapchain(SwapchainOptions{})

	chain := sc.Chain().(*haltest.Swapchain)
	assert.Equal(t, hal.SharingConcurrent, chain.Desc.Sharing)
	assert.Equal(t, []uint32{0, 1}, chain.Desc.QueueFamilies)
	require.NoError(t, sc.Destroy())
	f.noViolations()
}

func TestSwapchainUndefinedExtentUsesWindowSize(t *testing.T) {
	spec := haltest.DefaultAdapter()
	spec.UndefinedExtent = true
	f := newFixture(t, spec)
	v, fr := f.shaders()
	sc := NewSwapchain(f.ctx, f.surface, NewPipelineBuilder(v, fr), SwapchainOptions{})

	require.NoError(t, sc.Create(hal.Extent2D{Width: 5000, Height: 300}))
	assert.Equal(t, hal.Extent2D{Width: 4096, Height: 300}, sc.Extent())
	require.NoError(t, sc.Destroy())
	f.noViolations()
}

func TestSwapchainRecreateIsDeterministic(t *testing.T) {
	f := newFixture(t)
	sc := f.swapchain(SwapchainOptions{Depth: true})
	size := f.surface.Extent()
	live := func() map[haltest.Kind]int {
		out := map[haltest.Kind]int{}
		for _, k := range []haltest.Kind{
			haltest.KindSwapchain, haltest.KindImageView, haltest.KindImage, haltest.KindMemory,
			haltest.KindRenderPass, haltest.KindFramebuffer, haltest.KindPipelineLayout, haltest.KindPipeline,
		} {
			out[k] = f.rec.Live(k)
		}
		return out
	}
	before := live()

	for i := 0; i < 3; i++ {
		require.NoError(t, sc.Recreate(size))
		assert.Equal(t, before, live())
	}
	assert.Equal(t, 3, sc.Rebuilds())
	assert.Equal(t, SwapchainActive, sc.State())
	f.noViolations()
}

func TestSwapchainRecreateWaitFailureKeepsGroup(t *testing.T) {
	f := newFixture(t)
	sc := f.swapchain(SwapchainOptions{Depth: true})
	t.Cleanup(func() { sc.Destroy() })
	views := f.rec.Live(haltest.KindImageView)

	f.dev.FailNext("DeviceWaitIdle", hal.ErrorDeviceLost)
	err := sc.Recreate(f.surface.Extent())
	assert.Equal(t, hal.ErrorDeviceLost, resultOf(err))
	assert.Equal(t, SwapchainActive, sc.State())
	assert.Equal(t, 0, sc.Rebuilds())
	assert.Equal(t, views, f.rec.Live(haltest.KindImageView), "nothing torn down")

	require.NoError(t, sc.Recreate(f.surface.Extent()))
	assert.Equal(t, 1, sc.Rebuilds())
	f.noViolations()
}

func TestSwapchainRecreateTeardownOrder(t *testing.T) {
	f := newFixture(t)
	sc := f.swapchain(SwapchainOptions{Depth: true})
	f.rec.Mark("recreate")
	require.NoError(t, sc.Recreate(hal.Extent2D{Width: 800, Height: 600}))

	var after []haltest.Event
	seen := false
	for _, e := range f.rec.Events() {
		if e.Op == "recreate" {
			seen = true
			continue
		}
		if seen {
			after = append(after, e)
		}
	}
	require.NotEmpty(t, after)
	assert.Equal(t, haltest.OpDeviceWaitIdle, after[0].Op, "device must be idle before anything is destroyed")

	first := map[haltest.Kind]int{}
	for i, e := range after {
		if e.Op != haltest.OpDestroy {
			continue
		}
		if _, ok := first[e.Kind]; !ok {
			first[e.Kind] = i
		}
	}
	order := []haltest.Kind{
		haltest.KindFramebuffer,
		haltest.KindPipeline,
		haltest.KindPipelineLayout,
		haltest.KindRenderPass,
		haltest.KindImageView,
		haltest.KindSwapchain,
	}
	for i := 1; i < len(order); i++ {
		assert.Less(t, first[order[i-1]], first[order[i]], "%s destroyed before %s", order[i], order[i-1])
	}
	f.noViolations()
}

func TestSwapchainZeroExtent(t *testing.T) {
	f := newFixture(t)
	sc := f.swapchain(SwapchainOptions{Depth: true})

	f.surface.Resize(0, 0)
	err := sc.Recreate(hal.Extent2D{})
	assert.True(t, errors.Is(err, ErrZeroExtent))
	assert.Equal(t, SwapchainUninitialized, sc.State())
	assert.Equal(t, 0, f.rec.Live(haltest.KindSwapchain))
	assert.Equal(t, 0, f.rec.Live(haltest.KindFramebuffer))

	f.surface.Resize(320, 200)
	require.NoError(t, sc.Create(hal.Extent2D{Width: 320, Height: 200}))
	assert.Equal(t, hal.Extent2D{Width: 320, Height: 200}, sc.Extent())
	require.NoError(t, sc.Destroy())
	f.noViolations()
}

func TestSwapchainDestroyReleasesEverything(t *testing.T) {
	f := newFixture(t)
	sc := f.swapchain(SwapchainOptions{Depth: true})
	views := f.rec.Live(haltest.KindImageView)
	require.Positive(t, views)

	require.NoError(t, sc.Destroy())
	require.NoError(t, sc.Destroy())
	assert.Equal(t, SwapchainDestroyed, sc.State())
	for _, k := range []haltest.Kind{
		haltest.KindSwapchain, haltest.KindImageView, haltest.KindImage, haltest.KindRenderPass,
		haltest.KindFramebuffer, haltest.KindPipelineLayout, haltest.KindPipeline,
	} {
		assert.Zero(t, f.rec.Live(k), k)
	}
	assert.Equal(t, 1, f.rec.Count(haltest.OpDeviceWaitIdle))
	f.noViolations()
}

func TestSwapchainFailedBuildLeavesNothing(t *testing.T) {
	f := newFixture(t)
	v, fr := f.shaders()
	sc := NewSwapchain(f.ctx, f.surface, NewPipelineBuilder(v, fr), SwapchainOptions{Depth: true})
	f.dev.FailNext("CreateGraphicsPipeline", hal.ErrorOutOfDeviceMemory)

	err := sc.Create(f.surface.Extent())
	var rerr *ResourceCreationError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, SwapchainUninitialized, sc.State())
	assert.Zero(t, f.rec.Live(haltest.KindFramebuffer))
	assert.Zero(t, f.rec.Live(haltest.KindPipelineLayout))
	assert.Zero(t, f.rec.Live(haltest.KindSwapchain))

	require.NoError(t, sc.Create(f.surface.Extent()))
	require.NoError(t, sc.Destroy())
	f.noViolations()
}

func TestSwapchainSetShaders(t *testing.T) {
	f := newFixture(t)
	sc := f.swapchain(SwapchainOptions{})
	v, fr := f.shaders()

	sc.SetShaders(v, fr)
	require.NoError(t, sc.Recreate(f.surface.Extent()))
	desc := sc.Pipeline().(*haltest.Pipeline).Desc
	assert.Same(t, v.Module(), desc.VertexShader)
	assert.Same(t, fr.Module(), desc.FragmentShader)
	require.NoError(t, sc.Destroy())
	f.noViolations()
}
