package vkframe

import (
	"log/slog"
	"os"
	"strings"

	"github.com/andewx/vkframe/hal"
	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// Config is the application configuration, read from TOML.
type Config struct {
	Window    WindowConfig    `toml:"window"`
	Vulkan    VulkanConfig    `toml:"vulkan"`
	Swapchain SwapchainConfig `toml:"swapchain"`
	Shaders   ShaderConfig    `toml:"shaders"`
	Texture   TextureConfig   `toml:"texture"`
	Log       LogConfig       `toml:"log"`
}

type WindowConfig struct {
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	Title  string `toml:"title"`
}

type VulkanConfig struct {
	Validation       bool     `toml:"validation"`
	Layers           []string `toml:"layers"`
	DeviceExtensions []string `toml:"device_extensions"`
}

type SwapchainConfig struct {
	// PresentMode is one of fifo, mailbox, immediate or fifo-relaxed. Fifo is
	// used when the preferred mode is not offered.
	PresentMode string `toml:"present_mode"`
	Depth       bool   `toml:"depth"`
}

type ShaderConfig struct {
	Vertex   string `toml:"vertex"`
	Fragment string `toml:"fragment"`
	Watch    bool   `toml:"watch"`
}

type TextureConfig struct {
	Path string `toml:"path"`
	// MaxSize bounds the larger texture side; bigger images are downscaled.
	// Zero disables the limit.
	MaxSize uint32 `toml:"max_size"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// DefaultConfig returns the configuration used for keys missing from a file.
func DefaultConfig() Config {
	return Config{
		Window: WindowConfig{Width: 800, Height: 600, Title: "vkframe"},
		Vulkan: VulkanConfig{
			Layers:           []string{"VK_LAYER_KHRONOS_validation"},
			DeviceExtensions: []string{"VK_KHR_swapchain"},
		},
		Swapchain: SwapchainConfig{PresentMode: "fifo", Depth: true},
		Shaders:   ShaderConfig{Vertex: "shaders/quad.vert.wgsl", Fragment: "shaders/quad.frag.wgsl"},
		Texture:   TextureConfig{MaxSize: 2048},
		Log:       LogConfig{Level: "info"},
	}
}

// LoadConfig reads a TOML file over the defaults. A missing file is an error.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	if err := cfg.expandPaths(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// expandPaths resolves a leading ~ in asset paths.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Shaders.Vertex, &c.Shaders.Fragment, &c.Texture.Path} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return errors.Wrapf(err, "expand %q", *p)
		}
		*p = expanded
	}
	return nil
}

func (c Config) Validate() error {
	if c.Window.Width == 0 || c.Window.Height == 0 {
		return errors.Errorf("window size %dx%d must be non-zero", c.Window.Width, c.Window.Height)
	}
	if _, ok := parsePresentMode(c.Swapchain.PresentMode); !ok {
		return errors.Errorf("unknown present mode %q", c.Swapchain.PresentMode)
	}
	if _, ok := parseLevel(c.Log.Level); !ok {
		return errors.Errorf("unknown log level %q", c.Log.Level)
	}
	if c.Shaders.Vertex == "" || c.Shaders.Fragment == "" {
		return errors.New("vertex and fragment shader paths are required")
	}
	return nil
}

// PresentMode returns the configured preferred present mode.
func (c Config) PresentMode() hal.PresentMode {
	m, _ := parsePresentMode(c.Swapchain.PresentMode)
	return m
}

// LogLevel returns the configured slog level.
func (c Config) LogLevel() slog.Level {
	l, _ := parseLevel(c.Log.Level)
	return l
}

func parsePresentMode(s string) (hal.PresentMode, bool) {
	switch strings.ToLower(s) {
	case "", "fifo":
		return hal.PresentModeFifo, true
	case "mailbox":
		return hal.PresentModeMailbox, true
	case "immediate":
		return hal.PresentModeImmediate, true
	case "fifo-relaxed", "fifo_relaxed":
		return hal.PresentModeFifoRelaxed, true
	}
	return 0, false
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return 0, false
}
