package haltest

import (
	"github.com/andewx/vkframe/hal"
)

// AdapterSpec describes a fake physical device.
type AdapterSpec struct {
	Name     string
	Type     hal.AdapterType
	Families []hal.QueueFamily
	// PresentFamilies lists the families that can present; nil means all.
	PresentFamilies []uint32
	Capabilities    hal.SurfaceCapabilities
	// UndefinedExtent makes the surface report the 0xFFFFFFFF extent sentinel.
	UndefinedExtent bool
	Formats         []hal.SurfaceFormat
	PresentModes    []hal.PresentMode
	// OpenResult, when an error code, fails device creation.
	OpenResult hal.Result
	// Extensions lists the supported device extensions; nil supports all.
	Extensions []string
}

// DefaultAdapter is a discrete GPU with a graphics family and a dedicated
// transfer family, both able to present.
func DefaultAdapter() AdapterSpec {
	return AdapterSpec{
		Name: "fake discrete",
		Type: hal.AdapterTypeDiscreteGPU,
		Families: []hal.QueueFamily{
			{Flags: hal.QueueGraphics | hal.QueueCompute | hal.QueueTransfer, Count: 16},
			{Flags: hal.QueueTransfer, Count: 2},
		},
		Capabilities: hal.SurfaceCapabilities{
			MinImageCount:           2,
			MaxImageCount:           8,
			MinImageExtent:          hal.Extent2D{Width: 1, Height: 1},
			MaxImageExtent:          hal.Extent2D{Width: 4096, Height: 4096},
			CurrentTransform:        hal.SurfaceTransformIdentity,
			SupportedTransforms:     hal.SurfaceTransformIdentity,
			SupportedCompositeAlpha: hal.CompositeAlphaOpaque,
		},
		Formats: []hal.SurfaceFormat{
			{Format: hal.FormatB8G8R8A8Unorm, ColorSpace: hal.ColorSpaceSrgbNonlinear},
			{Format: hal.FormatB8G8R8A8Srgb, ColorSpace: hal.ColorSpaceSrgbNonlinear},
		},
		PresentModes: []hal.PresentMode{hal.PresentModeFifo, hal.PresentModeMailbox},
	}
}

// Instance implements hal.Instance.
type Instance struct {
	rec      *Recorder
	adapters []*Adapter
}

var _ hal.Instance = (*Instance)(nil)

func NewInstance(specs ...AdapterSpec) *Instance {
	inst := &Instance{rec: newRecorder()}
	for _, s := range specs {
		inst.adapters = append(inst.adapters, &Adapter{rec: inst.rec, spec: s})
	}
	return inst
}

func (i *Instance) Recorder() *Recorder { return i.rec }

func (i *Instance) EnumerateAdapters() ([]hal.Adapter, error) {
	out := make([]hal.Adapter, 0, len(i.adapters))
	for _, a := range i.adapters {
		out = append(out, a)
	}
	return out, nil
}

func (i *Instance) Destroy() {}

// NewSurface creates a presentation surface of the given size.
func (i *Instance) NewSurface(width, height uint32) *Surface {
	i.rec.mu.Lock()
	defer i.rec.mu.Unlock()
	return &Surface{object: i.rec.newObject(KindSurface), extent: hal.Extent2D{Width: width, Height: height}}
}

// Surface implements hal.Surface with a mutable extent.
type Surface struct {
	object
	extent hal.Extent2D
}

func (s *Surface) Destroy() { s.destroy() }

// Resize changes the extent reported by subsequent capability queries.
func (s *Surface) Resize(width, height uint32) {
	s.rec.mu.Lock()
	defer s.rec.mu.Unlock()
	s.extent = hal.Extent2D{Width: width, Height: height}
}

func (s *Surface) Extent() hal.Extent2D {
	s.rec.mu.Lock()
	defer s.rec.mu.Unlock()
	return s.extent
}

// Adapter implements hal.Adapter.
type Adapter struct {
	rec    *Recorder
	spec   AdapterSpec
	device *Device
	// Opened is the descriptor of the last Open call.
	Opened *hal.DeviceDescriptor
}

func (a *Adapter) Info() hal.AdapterInfo {
	return hal.AdapterInfo{Name: a.spec.Name, Type: a.spec.Type, APIVersion: 1<<22 | 3<<12}
}

func (a *Adapter) QueueFamilies() []hal.QueueFamily {
	return append([]hal.QueueFamily(nil), a.spec.Families...)
}

func (a *Adapter) SurfaceSupport(family uint32, surface hal.Surface) (bool, error) {
	if int(family) >= len(a.spec.Families) {
		return false, hal.ErrorFeatureNotPresent
	}
	if a.spec.PresentFamilies == nil {
		return true, nil
	}
	for _, f := range a.spec.PresentFamilies {
		if f == family {
			return true, nil
		}
	}
	return false, nil
}

func (a *Adapter) SurfaceCapabilities(surface hal.Surface) (hal.SurfaceCapabilities, error) {
	caps := a.spec.Capabilities
	if a.spec.UndefinedExtent {
		caps.CurrentExtent = hal.Extent2D{Width: hal.UndefinedExtent, Height: hal.UndefinedExtent}
	} else {
		caps.CurrentExtent = surface.(*Surface).Extent()
	}
	return caps, nil
}

func (a *Adapter) SurfaceFormats(surface hal.Surface) ([]hal.SurfaceFormat, error) {
	return append([]hal.SurfaceFormat(nil), a.spec.Formats...), nil
}

func (a *Adapter) PresentModes(surface hal.Surface) ([]hal.PresentMode, error) {
	return append([]hal.PresentMode(nil), a.spec.PresentModes...), nil
}

func (a *Adapter) Open(desc *hal.DeviceDescriptor) (hal.Device, error) {
	a.rec.mu.Lock()
	defer a.rec.mu.Unlock()
	d := *desc
	d.QueueFamilies = append([]uint32(nil), desc.QueueFamilies...)
	a.Opened = &d
	if a.spec.OpenResult.IsError() {
		return nil, a.spec.OpenResult
	}
	if a.spec.Extensions != nil {
		supported := map[string]bool{}
		for _, name := range a.spec.Extensions {
			supported[name] = true
		}
		for _, name := range desc.Extensions {
			if !supported[name] {
				return nil, hal.ErrorExtensionNotPresent
			}
		}
	}
	seen := map[uint32]bool{}
	for _, f := range desc.QueueFamilies {
		if seen[f] {
			a.rec.violate("queue family %d requested twice at device creation", f)
		}
		seen[f] = true
		if int(f) >= len(a.spec.Families) {
			a.rec.violate("queue family %d does not exist", f)
		}
	}
	dev := &Device{
		object:   a.rec.newObject(KindDevice),
		adapter:  a,
		queues:   map[uint32]*Queue{},
		failures: map[string][]failure{},
	}
	for _, f := range desc.QueueFamilies {
		dev.queues[f] = &Queue{dev: dev, family: f}
	}
	a.rec.devices = append(a.rec.devices, dev)
	a.device = dev
	return dev, nil
}

// Device returns the device created by the last Open call.
func (a *Adapter) Device() *Device { return a.device }
