package core

import (
	"fmt"

	"github.com/23skdu/longbow-bodkin/internal/future"
	"github.com/23skdu/longbow-bodkin/internal/tensor"
)

// DispatchFn is the device-bound implementation of one operation. It
// runs on a scheduler worker after every input future has resolved, and
// is responsible for settling every output future exactly once. outMD
// holds the expected metadata of each output when the entry declares a
// metadata function, nil otherwise.
type DispatchFn func(dctx *DispatchContext, inputs []tensor.Tensor, attrs OpAttrs,
	outMD []tensor.Metadata, outputs []*future.Future[tensor.Tensor])

// MetadataFn computes expected output metadata from input metadata and
// attributes, before the compute body runs.
type MetadataFn func(inputs []tensor.Metadata, attrs OpAttrs) ([]tensor.Metadata, error)

// OpEntry describes one registered operation. Entries are immutable
// once registered.
type OpEntry struct {
	Name string

	// NumInputs is the expected input arity; -1 accepts any.
	NumInputs  int
	NumOutputs int

	// OutputMetadata is optional; when set, dispatch computes expected
	// output metadata before invoking Fn.
	OutputMetadata MetadataFn

	Fn DispatchFn
}

// SyncKernel adapts a synchronous kernel to a DispatchFn: the kernel
// returns its results and the adapter settles the output futures.
func SyncKernel(kernel func(dctx *DispatchContext, inputs []tensor.Tensor, attrs OpAttrs) ([]tensor.Tensor, error)) DispatchFn {
	return func(dctx *DispatchContext, inputs []tensor.Tensor, attrs OpAttrs,
		outMD []tensor.Metadata, outputs []*future.Future[tensor.Tensor]) {
		results, err := kernel(dctx, inputs, attrs)
		if err != nil {
			for _, out := range outputs {
				out.Fail(err)
			}
			return
		}
		if len(results) != len(outputs) {
			err := fmt.Errorf("kernel produced %d results, expected %d", len(results), len(outputs))
			for _, out := range outputs {
				out.Fail(err)
			}
			return
		}
		for i, out := range outputs {
			out.Resolve(results[i])
		}
	}
}

// Registry is the immutable per-handler operation table. It is built
// once during setup, before the scheduler starts, and only read
// afterwards, so lookups need no locking.
type Registry struct {
	entries map[string]*OpEntry
}

// Lookup returns the entry for name.
func (r *Registry) Lookup(name string) (*OpEntry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Names returns the registered operation names, for logging.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	return names
}

// RegistryBuilder accumulates entries during the single initialization
// phase.
type RegistryBuilder struct {
	entries map[string]*OpEntry
}

func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{entries: make(map[string]*OpEntry)}
}

// Register adds an entry. Registering a duplicate name or an entry
// without a dispatch function panics: the registry is populated by
// static setup code, so a bad entry is a programming error.
func (b *RegistryBuilder) Register(e OpEntry) *RegistryBuilder {
	if e.Name == "" || e.Fn == nil {
		panic(fmt.Sprintf("core: invalid op entry %+v", e))
	}
	if _, dup := b.entries[e.Name]; dup {
		panic(fmt.Sprintf("core: duplicate op entry %q", e.Name))
	}
	entry := e
	b.entries[e.Name] = &entry
	return b
}

// Build freezes the registry.
func (b *RegistryBuilder) Build() *Registry {
	entries := make(map[string]*OpEntry, len(b.entries))
	for k, v := range b.entries {
		entries[k] = v
	}
	return &Registry{entries: entries}
}
