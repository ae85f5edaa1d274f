package core

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/23skdu/longbow-bodkin/internal/device"
	"github.com/23skdu/longbow-bodkin/internal/future"
	"github.com/23skdu/longbow-bodkin/internal/sched"
	"github.com/23skdu/longbow-bodkin/internal/tensor"
)

// DeviceHandler services operations registered for one device. The host
// handler is a DeviceHandler over the host device; its conversions are
// host-to-host clones.
type DeviceHandler struct {
	name   string
	reg    *Registry
	dev    *device.Device
	pool   *sched.Pool
	tracer trace.Tracer
}

var _ Handler = (*DeviceHandler)(nil)

// NewDeviceHandler binds a frozen registry to a device. The registry
// must not change afterwards.
func NewDeviceHandler(name string, reg *Registry, dev *device.Device, pool *sched.Pool) *DeviceHandler {
	return &DeviceHandler{
		name:   name,
		reg:    reg,
		dev:    dev,
		pool:   pool,
		tracer: otel.Tracer("bodkin/core"),
	}
}

func (h *DeviceHandler) Name() string { return h.name }

// Device returns the handler's device handle.
func (h *DeviceHandler) Device() *device.Device { return h.dev }

// MakeOp resolves name in this handler's registry. The returned Op is
// reusable across many invocations; the lookup is not repeated per call.
func (h *DeviceHandler) MakeOp(name string) (*Op, error) {
	entry, ok := h.reg.Lookup(name)
	if !ok {
		return nil, notFound(name)
	}
	opsResolved.WithLabelValues(h.name).Inc()
	return &Op{name: name, entry: entry, handler: h}, nil
}

// newDispatchContext builds a fresh per-call context, never cached.
func (h *DeviceHandler) newDispatchContext() *DispatchContext {
	return &DispatchContext{dev: h.dev}
}

// CopyDeviceToHost schedules an asynchronous conversion when the
// tensor's tag matches this handler's device kind. Conversion reads the
// source through the device stream and never mutates it.
func (h *DeviceHandler) CopyDeviceToHost(src tensor.Tensor) (*future.Future[*tensor.Host], error) {
	switch t := src.(type) {
	case *tensor.Host:
		if h.dev.IsHost() {
			return future.Resolved(t.Clone()), nil
		}
	case *tensor.Device:
		if t.Kind() == h.dev.Kind() {
			fut := future.New[*tensor.Host]()
			md := t.Metadata()
			h.dev.Stream().Enqueue(func() {
				host := tensor.NewHost(md.Shape, t.Buffer().Data())
				transferBytes.WithLabelValues("device_to_host").Add(float64(md.Shape.NumElements() * 4))
				fut.Resolve(host)
			})
			return fut, nil
		}
	}
	return nil, fmt.Errorf("%w: handler %q does not own %v", ErrUnsupportedTensor, h.name, src.Metadata())
}

// CopyHostToDevice schedules an asynchronous upload producing a tensor
// tagged with this handler's device kind.
func (h *DeviceHandler) CopyHostToDevice(src *tensor.Host) (*future.Future[tensor.Tensor], error) {
	if h.dev.IsHost() {
		return future.Resolved[tensor.Tensor](src.Clone()), nil
	}
	fut := future.New[tensor.Tensor]()
	md := src.Metadata()
	h.dev.Stream().Enqueue(func() {
		buf := h.dev.Alloc(md.Shape.NumElements())
		copy(buf.Data(), src.Data())
		transferBytes.WithLabelValues("host_to_device").Add(float64(md.Shape.NumElements() * 4))
		fut.Resolve(tensor.NewDevice(md.Shape, buf))
	})
	return fut, nil
}
