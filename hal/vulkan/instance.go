package vulkan

import (
	"context"
	"log/slog"
	"runtime"
	"unsafe"

	"github.com/andewx/vkframe/hal"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

const (
	portabilityEnumeration = "VK_KHR_portability_enumeration"
	debugReportExtension   = "VK_EXT_debug_report"
)

type InstanceOptions struct {
	AppName string
	// Extensions are the instance extensions the window system requires.
	// NewInstance fails when one is missing.
	Extensions []string
	// Layers are enabled when present; missing ones are logged and skipped.
	Layers []string
	// Validation installs a debug report callback that forwards validation
	// messages to Logger. It is skipped with a warning when the driver lacks
	// VK_EXT_debug_report.
	Validation bool
	Logger     *slog.Logger
}

// Instance owns the Vulkan instance and the optional debug callback.
type Instance struct {
	handle vk.Instance
	debug  vk.DebugReportCallback
	layers []string
	log    *slog.Logger
}

// NewInstance loads the Vulkan loader through glfw and creates an instance.
// glfw must already be initialized.
func NewInstance(opts InstanceOptions) (*Instance, error) {
	log := opts.Logger
	if log == nil {
		log = discardLogger()
	}
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "vulkan loader")
	}

	available, err := InstanceExtensions()
	if err != nil {
		return nil, err
	}
	required := append([]string(nil), opts.Extensions...)
	var flags vk.InstanceCreateFlags
	if runtime.GOOS == "darwin" {
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		flags = vk.InstanceCreateFlags(0x00000001)
		required = append(required, portabilityEnumeration)
	}
	extensions, err := requireExtensions(available, required)
	if err != nil {
		return nil, err
	}
	debugReport := false
	if opts.Validation {
		found, _ := checkExisting(available, []string{debugReportExtension})
		if debugReport = len(found) > 0; debugReport {
			extensions = append(extensions, found...)
		} else {
			log.Warn("validation requested without " + debugReportExtension)
		}
	}

	var layers []string
	if len(opts.Layers) > 0 {
		availableLayers, err := ValidationLayers()
		if err != nil {
			return nil, err
		}
		var missing []string
		layers, missing = checkExisting(availableLayers, opts.Layers)
		if len(missing) > 0 {
			log.Warn("missing validation layers", "layers", missing)
		}
	}

	var handle vk.Instance
	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
			ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
			PApplicationName:   safeString(opts.AppName),
			PEngineName:        "vkframe\x00",
		},
		Flags:                   flags,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}, nil, &handle)
	if isError(ret) {
		return nil, newError(ret)
	}
	if err := vk.InitInstance(handle); err != nil {
		vk.DestroyInstance(handle, nil)
		return nil, errors.Wrap(err, "init instance")
	}
	inst := &Instance{handle: handle, layers: layers, log: log}
	log.Info("vulkan instance created", "extensions", len(extensions), "layers", len(layers))

	if debugReport {
		ret := vk.CreateDebugReportCallback(handle, &vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: inst.debugReport,
		}, nil, &inst.debug)
		if isError(ret) {
			log.Warn("debug report callback unavailable", "err", newError(ret))
		}
	}
	return inst, nil
}

func (i *Instance) debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	level := slog.LevelDebug
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		level = slog.LevelError
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		level = slog.LevelWarn
	case flags&vk.DebugReportFlags(vk.DebugReportInformationBit) != 0:
		level = slog.LevelInfo
	}
	i.log.Log(context.Background(), level, pMessage, "layer", pLayerPrefix, "code", messageCode)
	return vk.Bool32(vk.False)
}

// EnumerateAdapters lists the physical devices in driver order.
func (i *Instance) EnumerateAdapters() ([]hal.Adapter, error) {
	var count uint32
	if ret := vk.EnumeratePhysicalDevices(i.handle, &count, nil); isError(ret) {
		return nil, newError(ret)
	}
	gpus := make([]vk.PhysicalDevice, count)
	if ret := vk.EnumeratePhysicalDevices(i.handle, &count, gpus); isError(ret) {
		return nil, newError(ret)
	}
	adapters := make([]hal.Adapter, 0, count)
	for _, gpu := range gpus[:count] {
		adapters = append(adapters, newAdapter(i, gpu))
	}
	return adapters, nil
}

// CreateSurface creates a presentation surface for a glfw window.
func (i *Instance) CreateSurface(window *glfw.Window) (hal.Surface, error) {
	ptr, err := window.CreateWindowSurface(i.handle, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create window surface")
	}
	return &Surface{inst: i, handle: vk.SurfaceFromPointer(ptr)}, nil
}

func (i *Instance) Destroy() {
	if i.handle == nil {
		return
	}
	if i.debug != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(i.handle, i.debug, nil)
		i.debug = vk.NullDebugReportCallback
	}
	vk.DestroyInstance(i.handle, nil)
	i.handle = nil
}

type Surface struct {
	inst   *Instance
	handle vk.Surface
}

func (s *Surface) Destroy() {
	if s.handle == vk.NullSurface {
		return
	}
	vk.DestroySurface(s.inst.handle, s.handle, nil)
	s.handle = vk.NullSurface
}
