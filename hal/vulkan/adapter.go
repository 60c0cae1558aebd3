package vulkan

import (
	"github.com/andewx/vkframe/hal"
	vk "github.com/vulkan-go/vulkan"
)

// Adapter is a physical device and its cached properties.
type Adapter struct {
	inst     *Instance
	gpu      vk.PhysicalDevice
	info     hal.AdapterInfo
	families []hal.QueueFamily
	memory   vk.PhysicalDeviceMemoryProperties
}

func newAdapter(inst *Instance, gpu vk.PhysicalDevice) *Adapter {
	a := &Adapter{inst: inst, gpu: gpu}

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(gpu, &props)
	props.Deref()
	a.info = hal.AdapterInfo{
		Name:          vk.ToString(props.DeviceName[:]),
		Type:          hal.AdapterType(props.DeviceType),
		APIVersion:    props.ApiVersion,
		DriverVersion: props.DriverVersion,
	}

	vk.GetPhysicalDeviceMemoryProperties(gpu, &a.memory)
	a.memory.Deref()

	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)
	list := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, list)
	for _, qf := range list {
		qf.Deref()
		a.families = append(a.families, hal.QueueFamily{Flags: hal.QueueFlags(qf.QueueFlags), Count: qf.QueueCount})
	}
	return a
}

func (a *Adapter) Info() hal.AdapterInfo { return a.info }

func (a *Adapter) QueueFamilies() []hal.QueueFamily { return a.families }

func (a *Adapter) SurfaceSupport(family uint32, surface hal.Surface) (bool, error) {
	var supported vk.Bool32
	ret := vk.GetPhysicalDeviceSurfaceSupport(a.gpu, family, surface.(*Surface).handle, &supported)
	if isError(ret) {
		return false, newError(ret)
	}
	return supported.B(), nil
}

func (a *Adapter) SurfaceCapabilities(surface hal.Surface) (hal.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	ret := vk.GetPhysicalDeviceSurfaceCapabilities(a.gpu, surface.(*Surface).handle, &caps)
	if isError(ret) {
		return hal.SurfaceCapabilities{}, newError(ret)
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return hal.SurfaceCapabilities{
		MinImageCount:           caps.MinImageCount,
		MaxImageCount:           caps.MaxImageCount,
		CurrentExtent:           extent(caps.CurrentExtent),
		MinImageExtent:          extent(caps.MinImageExtent),
		MaxImageExtent:          extent(caps.MaxImageExtent),
		CurrentTransform:        uint32(caps.CurrentTransform),
		SupportedTransforms:     uint32(caps.SupportedTransforms),
		SupportedCompositeAlpha: uint32(caps.SupportedCompositeAlpha),
	}, nil
}

func (a *Adapter) SurfaceFormats(surface hal.Surface) ([]hal.SurfaceFormat, error) {
	h := surface.(*Surface).handle
	var count uint32
	if ret := vk.GetPhysicalDeviceSurfaceFormats(a.gpu, h, &count, nil); isError(ret) {
		return nil, newError(ret)
	}
	list := make([]vk.SurfaceFormat, count)
	if ret := vk.GetPhysicalDeviceSurfaceFormats(a.gpu, h, &count, list); isError(ret) {
		return nil, newError(ret)
	}
	formats := make([]hal.SurfaceFormat, 0, count)
	for _, f := range list[:count] {
		f.Deref()
		formats = append(formats, hal.SurfaceFormat{Format: hal.Format(f.Format), ColorSpace: hal.ColorSpace(f.ColorSpace)})
	}
	return formats, nil
}

func (a *Adapter) PresentModes(surface hal.Surface) ([]hal.PresentMode, error) {
	h := surface.(*Surface).handle
	var count uint32
	if ret := vk.GetPhysicalDeviceSurfacePresentModes(a.gpu, h, &count, nil); isError(ret) {
		return nil, newError(ret)
	}
	list := make([]vk.PresentMode, count)
	if ret := vk.GetPhysicalDeviceSurfacePresentModes(a.gpu, h, &count, list); isError(ret) {
		return nil, newError(ret)
	}
	modes := make([]hal.PresentMode, 0, count)
	for _, m := range list[:count] {
		modes = append(modes, hal.PresentMode(m))
	}
	return modes, nil
}

// Open creates a logical device with one queue per requested family. Every
// requested extension must be supported. When desc names no layers the
// instance layers are reused.
func (a *Adapter) Open(desc *hal.DeviceDescriptor) (hal.Device, error) {
	available, err := DeviceExtensions(a.gpu)
	if err != nil {
		return nil, err
	}
	extensions, err := requireExtensions(available, desc.Extensions)
	if err != nil {
		return nil, err
	}
	layers := a.inst.layers
	if len(desc.Layers) > 0 {
		layers = safeStrings(desc.Layers)
	}

	queueInfos := make([]vk.DeviceQueueCreateInfo, 0, len(desc.QueueFamilies))
	for _, family := range desc.QueueFamilies {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}

	var handle vk.Device
	ret := vk.CreateDevice(a.gpu, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}, nil, &handle)
	if isError(ret) {
		// Returned bare so callers can match the driver result.
		return nil, hal.Result(ret)
	}

	dev := &Device{adapter: a, handle: handle, queues: map[uint32]*Queue{}, log: a.inst.log}
	for _, family := range desc.QueueFamilies {
		var q vk.Queue
		vk.GetDeviceQueue(handle, family, 0, &q)
		dev.queues[family] = &Queue{dev: dev, handle: q, family: family}
	}
	a.inst.log.Info("logical device created", "adapter", a.info.Name, "queues", len(queueInfos), "extensions", len(extensions))
	return dev, nil
}

func extent(e vk.Extent2D) hal.Extent2D {
	return hal.Extent2D{Width: e.Width, Height: e.Height}
}

func vkExtent(e hal.Extent2D) vk.Extent2D {
	return vk.Extent2D{Width: e.Width, Height: e.Height}
}
