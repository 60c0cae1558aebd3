package vkframe

import (
	"github.com/andewx/vkframe/hal"
	"github.com/pkg/errors"
)

// DeviceContext owns the logical device and the queues used by the rest of
// the package.
type DeviceContext struct {
	adapter  hal.Adapter
	device   hal.Device
	families QueueFamilySelection

	graphics hal.Queue
	present  hal.Queue
	transfer hal.Queue
}

// SelectDevice returns the first discrete adapter, or the first adapter
// when none is discrete.
func SelectDevice(instance hal.Instance) (hal.Adapter, error) {
	adapters, err := instance.EnumerateAdapters()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate adapters")
	}
	if len(adapters) == 0 {
		return nil, errors.WithStack(ErrNoDevice)
	}
	for _, a := range adapters {
		if a.Info().Type == hal.AdapterTypeDiscreteGPU {
			return a, nil
		}
	}
	return adapters[0], nil
}

// CreateLogicalDevice opens adapter with one queue per distinct family of sel.
func CreateLogicalDevice(adapter hal.Adapter, sel QueueFamilySelection, extensions []string) (hal.Device, error) {
	if !sel.Complete() {
		return nil, errors.WithStack(&NoQueueFamilyError{Missing: missingRoles(sel)})
	}
	dev, err := adapter.Open(&hal.DeviceDescriptor{
		QueueFamilies: sel.Distinct(),
		Extensions:    extensions,
	})
	if err != nil {
		var r hal.Result
		if !errors.As(err, &r) {
			r = hal.ErrorInitializationFailed
		}
		return nil, errors.WithStack(&DeviceCreationError{Result: r})
	}
	return dev, nil
}

func missingRoles(sel QueueFamilySelection) []string {
	var missing []string
	if !sel.Graphics.Found() {
		missing = append(missing, "graphics")
	}
	if !sel.Present.Found() {
		missing = append(missing, "present")
	}
	return missing
}

// NewDeviceContext selects an adapter, resolves its queue families against
// surface and creates the logical device.
func NewDeviceContext(instance hal.Instance, surface hal.Surface, extensions []string) (*DeviceContext, error) {
	adapter, err := SelectDevice(instance)
	if err != nil {
		return nil, err
	}
	info := adapter.Info()
	Logger().Info("selected adapter", "name", info.Name, "type", info.Type)

	sel, err := ResolveQueueFamilies(adapter, surface)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	Logger().Debug("queue families",
		"graphics", sel.Graphics, "present", sel.Present, "transfer", sel.Transfer,
		"dedicated_transfer", sel.DedicatedTransfer)

	dev, err := CreateLogicalDevice(adapter, sel, extensions)
	if err != nil {
		return nil, err
	}
	return &DeviceContext{
		adapter:  adapter,
		device:   dev,
		families: sel,
		graphics: dev.Queue(sel.Graphics.Index()),
		present:  dev.Queue(sel.Present.Index()),
		transfer: dev.Queue(sel.Transfer.Index()),
	}, nil
}

func (c *DeviceContext) Adapter() hal.Adapter           { return c.adapter }
func (c *DeviceContext) Device() hal.Device             { return c.device }
func (c *DeviceContext) Families() QueueFamilySelection { return c.families }
func (c *DeviceContext) GraphicsQueue() hal.Queue       { return c.graphics }
func (c *DeviceContext) PresentQueue() hal.Queue        { return c.present }
func (c *DeviceContext) TransferQueue() hal.Queue       { return c.transfer }

// WaitIdle blocks until every queue of the device is idle.
func (c *DeviceContext) WaitIdle() error {
	if err := c.device.WaitIdle(); err != nil {
		return submissionError("device wait idle", err)
	}
	return nil
}

// Close drains the device and destroys it. Everything created from the
// device must already be destroyed.
func (c *DeviceContext) Close() {
	if c.device == nil {
		return
	}
	if err := c.device.WaitIdle(); err != nil {
		Logger().Warn("device wait idle on close", "err", err)
	}
	c.device.Destroy()
	c.device = nil
}
