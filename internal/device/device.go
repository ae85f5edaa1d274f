// Package device models compute devices and their execution streams.
// A Device pairs an identity (kind + ordinal) with a Stream that
// serializes all work issued to the device, the way a driver stream
// would. The dispatch chain and in-flight tasks share Device values;
// the garbage collector provides the shared-ownership lifetime.
package device

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Kind identifies a class of device ("cpu", "accel", ...).
type Kind string

// KindHost is the kind of the host (CPU) device every runtime owns.
const KindHost Kind = "cpu"

// Device identifies a compute device and owns its execution stream.
type Device struct {
	id     int
	kind   Kind
	name   string
	stream *Stream

	mu        sync.Mutex
	allocated int64
}

// New creates a device of the given kind and starts its stream.
func New(id int, kind Kind) *Device {
	d := &Device{
		id:     id,
		kind:   kind,
		name:   fmt.Sprintf("%s:%d", kind, id),
		stream: newStream(),
	}
	log.Debug().Str("device", d.name).Msg("Device stream started")
	return d
}

// NewHost creates the host device.
func NewHost() *Device {
	return New(0, KindHost)
}

func (d *Device) ID() int         { return d.id }
func (d *Device) Kind() Kind      { return d.kind }
func (d *Device) Name() string    { return d.name }
func (d *Device) Stream() *Stream { return d.stream }

// IsHost reports whether this is the host device.
func (d *Device) IsHost() bool { return d.kind == KindHost }

// Alloc reserves device memory for n float32 elements and returns the
// backing buffer. Buffers are owned by the tensors constructed over
// them and are never reused while referenced.
func (d *Device) Alloc(n int) *Buffer {
	d.mu.Lock()
	d.allocated += int64(n) * 4
	d.mu.Unlock()
	return &Buffer{dev: d, data: make([]float32, n)}
}

// AllocatedBytes returns the total bytes handed out by Alloc.
func (d *Device) AllocatedBytes() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocated
}

// Close shuts down the device stream after draining queued work.
func (d *Device) Close() {
	d.stream.Close()
	log.Debug().Str("device", d.name).Msg("Device stream closed")
}

// Buffer is a block of device-resident memory.
type Buffer struct {
	dev  *Device
	data []float32
}

// Device returns the owning device.
func (b *Buffer) Device() *Device { return b.dev }

// Len returns the element count.
func (b *Buffer) Len() int { return len(b.data) }

// Data exposes the raw storage. Callers must only touch it from work
// enqueued on the owning device's stream.
func (b *Buffer) Data() []float32 { return b.data }
