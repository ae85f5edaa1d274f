package core

import "github.com/23skdu/longbow-bodkin/internal/device"

// DispatchContext bundles the device state for a single dispatch call.
// It is constructed fresh for every invocation so in-flight dispatch
// always observes the handler's current device binding, and holds a
// non-owning reference to the handler's device. Dispatch functions use
// it to issue device work; it does not enqueue scheduler tasks itself.
type DispatchContext struct {
	dev *device.Device
}

// Device returns the device bound to this dispatch call.
func (c *DispatchContext) Device() *device.Device { return c.dev }

// Stream is shorthand for Device().Stream().
func (c *DispatchContext) Stream() *device.Stream { return c.dev.Stream() }
