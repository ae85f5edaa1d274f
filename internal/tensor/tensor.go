// Package tensor defines the tensor representations moved through the
// execution core: dense host-resident tensors and device-resident
// tensors tagged with the kind of device that owns their storage.
// Tensors are immutable once constructed; conversions always produce a
// new tensor and never touch the source.
package tensor

import (
	"fmt"

	"github.com/23skdu/longbow-bodkin/internal/device"
)

// DType enumerates element types.
type DType int

const (
	Float32 DType = iota
	Float64
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	}
	return fmt.Sprintf("dtype(%d)", int(d))
}

// Shape holds tensor dimensions, outermost first.
type Shape []int

// NumElements returns the product of all dimensions.
func (s Shape) NumElements() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Equal reports whether two shapes are identical.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	out := "["
	for i, d := range s {
		if i > 0 {
			out += "x"
		}
		out += fmt.Sprint(d)
	}
	return out + "]"
}

// Metadata describes a tensor without its payload: shape and dtype.
// Dispatch functions receive the expected metadata of their outputs.
type Metadata struct {
	Shape Shape
	DType DType
}

// Equal reports whether two metadata values match exactly.
func (m Metadata) Equal(o Metadata) bool {
	return m.DType == o.DType && m.Shape.Equal(o.Shape)
}

func (m Metadata) String() string {
	return fmt.Sprintf("%s%s", m.DType, m.Shape)
}

// Tensor is the tagged variant over host and device residency.
type Tensor interface {
	Metadata() Metadata

	// residency restricts implementations to this package.
	residency() string
}

// Host is a dense tensor resident in host memory.
type Host struct {
	md   Metadata
	data []float32
}

// NewHost builds a host tensor over a copy of data. Pass nil data for a
// zero-filled tensor.
func NewHost(shape Shape, data []float32) *Host {
	n := shape.NumElements()
	buf := make([]float32, n)
	if data != nil {
		if len(data) != n {
			panic(fmt.Sprintf("tensor: data length %d does not match shape %s", len(data), shape))
		}
		copy(buf, data)
	}
	return &Host{md: Metadata{Shape: append(Shape(nil), shape...), DType: Float32}, data: buf}
}

func (h *Host) Metadata() Metadata { return h.md }
func (h *Host) residency() string  { return "host" }

// Data exposes the element storage. Callers must treat it as read-only.
func (h *Host) Data() []float32 { return h.data }

// At returns the element at the given indices.
func (h *Host) At(idx ...int) float32 {
	return h.data[h.offset(idx)]
}

func (h *Host) offset(idx []int) int {
	if len(idx) != len(h.md.Shape) {
		panic(fmt.Sprintf("tensor: %d indices for shape %s", len(idx), h.md.Shape))
	}
	off := 0
	for i, x := range idx {
		if x < 0 || x >= h.md.Shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range for shape %s", x, h.md.Shape))
		}
		off = off*h.md.Shape[i] + x
	}
	return off
}

// Clone returns an independent copy.
func (h *Host) Clone() *Host {
	return NewHost(h.md.Shape, h.data)
}

func (h *Host) String() string {
	return fmt.Sprintf("HostTensor %s", h.md)
}

// Device is a dense tensor whose storage lives in a device buffer. The
// kind tag is the owning device's kind; the dispatch chain routes
// transfers by it.
type Device struct {
	md  Metadata
	buf *device.Buffer
}

// NewDevice wraps a device buffer as a tensor. The buffer must hold
// exactly shape.NumElements() elements.
func NewDevice(shape Shape, buf *device.Buffer) *Device {
	if buf.Len() != shape.NumElements() {
		panic(fmt.Sprintf("tensor: buffer length %d does not match shape %s", buf.Len(), shape))
	}
	return &Device{md: Metadata{Shape: append(Shape(nil), shape...), DType: Float32}, buf: buf}
}

func (d *Device) Metadata() Metadata { return d.md }
func (d *Device) residency() string  { return "device" }

// Kind returns the owning device's kind tag.
func (d *Device) Kind() device.Kind { return d.buf.Device().Kind() }

// Buffer returns the device-resident storage.
func (d *Device) Buffer() *device.Buffer { return d.buf }

func (d *Device) String() string {
	return fmt.Sprintf("DeviceTensor(%s) %s", d.Kind(), d.md)
}
