// Command vkframe opens a window and renders a spinning textured quad with
// the vkframe frame scheduler.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"runtime"

	"github.com/andewx/vkframe"
	"github.com/andewx/vkframe/glfwwindow"
	"github.com/andewx/vkframe/hal"
	"github.com/andewx/vkframe/hal/vulkan"
	"github.com/pkg/errors"
)

func init() {
	// GLFW must run on the main thread.
	runtime.LockOSThread()
}

func main() {
	var (
		configPath = flag.String("config", "", "TOML configuration file")
		validation = flag.Bool("validation", false, "enable the Vulkan validation layers")
	)
	flag.Parse()

	cfg := vkframe.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = vkframe.LoadConfig(*configPath)
		vkframe.Fatal(err)
	}
	if *validation {
		cfg.Vulkan.Validation = true
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	vkframe.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	vkframe.Fatal(run(ctx, cfg, logger), stop)
}

func run(ctx context.Context, cfg vkframe.Config, logger *slog.Logger) error {
	win, err := glfwwindow.New(
		glfwwindow.WithSize(int(cfg.Window.Width), int(cfg.Window.Height)),
		glfwwindow.WithTitle(cfg.Window.Title),
	)
	if err != nil {
		return err
	}
	defer win.Close()

	instance, err := vulkan.NewInstance(vulkan.InstanceOptions{
		AppName:    cfg.Window.Title,
		Extensions: win.RequiredInstanceExtensions(),
		Layers:     cfg.Vulkan.Layers,
		Validation: cfg.Vulkan.Validation,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer instance.Destroy()

	surface, err := instance.CreateSurface(win.GLFW())
	if err != nil {
		return err
	}
	defer surface.Destroy()

	dc, err := vkframe.NewDeviceContext(instance, surface, cfg.Vulkan.DeviceExtensions)
	if err != nil {
		return err
	}
	defer dc.Close()

	uploader, err := vkframe.NewStagedUploader(dc)
	if err != nil {
		return err
	}
	defer uploader.Close()

	app, err := newApp(dc, uploader, cfg)
	if err != nil {
		return err
	}
	defer app.destroy()

	vertex, err := vkframe.LoadShader(dc.Device(), vkframe.DefaultCompiler, hal.ShaderStageVertex, cfg.Shaders.Vertex)
	if err != nil {
		return err
	}
	fragment, err := vkframe.LoadShader(dc.Device(), vkframe.DefaultCompiler, hal.ShaderStageFragment, cfg.Shaders.Fragment)
	if err != nil {
		vertex.Close()
		return err
	}
	app.vertex, app.fragment = vertex, fragment

	builder := vkframe.NewPipelineBuilder(vertex, fragment).
		WithSetLayouts(app.setLayout).
		WithVertexLayout(quadBindings, quadAttributes).
		// Both faces of the spinning quad are drawn.
		WithRasterizer(hal.CullNone, hal.FrontFaceCounterClockwise)

	sc := vkframe.NewSwapchain(dc, surface, builder, vkframe.SwapchainOptions{
		PresentMode: cfg.PresentMode(),
		Depth:       cfg.Swapchain.Depth,
	})
	defer func() {
		if err := sc.Destroy(); err != nil {
			logger.Warn("destroy swapchain", "err", err)
		}
	}()
	w, h := win.FramebufferSize()
	if err := sc.Create(hal.Extent2D{Width: uint32(w), Height: uint32(h)}); err != nil {
		return errors.Wrap(err, "create swapchain")
	}

	if cfg.Shaders.Watch {
		watcher, err := vkframe.WatchShaders(cfg.Shaders.Vertex, cfg.Shaders.Fragment)
		if err != nil {
			return err
		}
		defer watcher.Close()
		app.watcher = watcher
	}
	app.window = win

	scheduler, err := vkframe.NewFrameScheduler(dc, sc, win, app)
	if err != nil {
		return err
	}
	defer scheduler.Close()

	logger.Info("rendering",
		"extent", sc.Extent(),
		"present_mode", sc.PresentMode(),
		"images", sc.ImageCount(),
		"frames_in_flight", vkframe.MaxFramesInFlight)
	if err := scheduler.Run(ctx); err != nil {
		return err
	}
	logger.Info("stopped", "frames", scheduler.Frame(), "rebuilds", sc.Rebuilds())
	return nil
}
