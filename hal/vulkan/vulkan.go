// Package vulkan implements the hal interfaces on github.com/vulkan-go/vulkan.
//
// Every hal enum and flag value equals its Vulkan counterpart, so conversions
// here are plain casts. Objects are thin wrappers around a vk handle and the
// device that owns it.
package vulkan

import (
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/andewx/vkframe/hal"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

func newError(ret vk.Result) error {
	if ret == vk.Success {
		return nil
	}
	return errors.WithStack(hal.Result(ret))
}

func isError(ret vk.Result) bool {
	return ret < 0
}

func safeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != 0 {
		return s + "\x00"
	}
	return s
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = safeString(s)
	}
	return out
}

// checkExisting returns the entries of required found in actual, and the
// ones that are not.
func checkExisting(actual, required []string) (existing, missing []string) {
	have := make(map[string]bool, len(actual))
	for _, name := range actual {
		have[name] = true
	}
	for _, name := range required {
		if have[name] {
			existing = append(existing, safeString(name))
		} else {
			missing = append(missing, name)
		}
	}
	return existing, missing
}

// InstanceExtensions lists the instance extensions available on the platform.
func InstanceExtensions() ([]string, error) {
	var count uint32
	if ret := vk.EnumerateInstanceExtensionProperties("", &count, nil); isError(ret) {
		return nil, newError(ret)
	}
	list := make([]vk.ExtensionProperties, count)
	if ret := vk.EnumerateInstanceExtensionProperties("", &count, list); isError(ret) {
		return nil, newError(ret)
	}
	names := make([]string, 0, count)
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

// DeviceExtensions lists the extensions available on gpu.
func DeviceExtensions(gpu vk.PhysicalDevice) ([]string, error) {
	var count uint32
	if ret := vk.EnumerateDeviceExtensionProperties(gpu, "", &count, nil); isError(ret) {
		return nil, newError(ret)
	}
	list := make([]vk.ExtensionProperties, count)
	if ret := vk.EnumerateDeviceExtensionProperties(gpu, "", &count, list); isError(ret) {
		return nil, newError(ret)
	}
	names := make([]string, 0, count)
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

// ValidationLayers lists the instance layers available on the platform.
func ValidationLayers() ([]string, error) {
	var count uint32
	if ret := vk.EnumerateInstanceLayerProperties(&count, nil); isError(ret) {
		return nil, newError(ret)
	}
	list := make([]vk.LayerProperties, count)
	if ret := vk.EnumerateInstanceLayerProperties(&count, list); isError(ret) {
		return nil, newError(ret)
	}
	names := make([]string, 0, count)
	for _, layer := range list {
		layer.Deref()
		names = append(names, vk.ToString(layer.LayerName[:]))
	}
	return names, nil
}

// findMemoryType returns the first memory type allowed by typeBits that has
// every flag in props.
func findMemoryType(mp vk.PhysicalDeviceMemoryProperties, typeBits uint32, props hal.MemoryProperty) (uint32, bool) {
	want := vk.MemoryPropertyFlags(props)
	for i := uint32(0); i < mp.MemoryTypeCount; i++ {
		if typeBits&(1<<i) == 0 {
			continue
		}
		mp.MemoryTypes[i].Deref()
		if mp.MemoryTypes[i].PropertyFlags&want == want {
			return i, true
		}
	}
	return 0, false
}

// handle is a non-dispatchable Vulkan object destroyed through its device.
type handle[H comparable] struct {
	dev     *Device
	h       H
	destroy func(vk.Device, H, *vk.AllocationCallbacks)
}

func (o *handle[H]) Destroy() {
	if o.dev == nil {
		return
	}
	o.destroy(o.dev.handle, o.h, nil)
	o.dev.log.Debug("destroyed", "type", fmt.Sprintf("%T", o.h))
	o.dev = nil
}

func newHandle[H comparable](dev *Device, h H, destroy func(vk.Device, H, *vk.AllocationCallbacks)) *handle[H] {
	return &handle[H]{dev: dev, h: h, destroy: destroy}
}

func bytesAt(p unsafe.Pointer, n uint64) []byte {
	return unsafe.Slice((*byte)(p), n)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

var (
	_ hal.Instance       = (*Instance)(nil)
	_ hal.Adapter        = (*Adapter)(nil)
	_ hal.Device         = (*Device)(nil)
	_ hal.Queue          = (*Queue)(nil)
	_ hal.CommandPool    = (*CommandPool)(nil)
	_ hal.CommandBuffer  = (*CommandBuffer)(nil)
	_ hal.Buffer         = (*Buffer)(nil)
	_ hal.Image          = (*Image)(nil)
	_ hal.DescriptorPool = (*DescriptorPool)(nil)
	_ hal.DescriptorSet  = (*DescriptorSet)(nil)
)

// requireExtensions is checkExisting for extensions that cannot be done
// without. Any missing entry fails with ErrorExtensionNotPresent.
func requireExtensions(actual, required []string) ([]string, error) {
	existing, missing := checkExisting(actual, required)
	if len(missing) > 0 {
		return nil, errors.Wrapf(hal.Result(vk.ErrorExtensionNotPresent), "missing extensions %v", missing)
	}
	return existing, nil
}
