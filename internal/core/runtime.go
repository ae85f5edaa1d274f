package core

import (
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-bodkin/internal/cache"
	"github.com/23skdu/longbow-bodkin/internal/device"
	"github.com/23skdu/longbow-bodkin/internal/future"
	"github.com/23skdu/longbow-bodkin/internal/sched"
	"github.com/23skdu/longbow-bodkin/internal/tensor"
)

// Runtime owns the scheduler, the host device, and the handler chain.
// Handlers are added during a single setup phase before any dispatch;
// after that the chain is read-only.
type Runtime struct {
	pool    *sched.Pool
	hostDev *device.Device
	chain   *Chain

	opCache *cache.Cache[*Op]
}

// NewRuntime starts a scheduler pool and the host device. Zero worker
// or capacity values select the scheduler defaults.
func NewRuntime(workers, queueCapacity int) *Runtime {
	r := &Runtime{
		pool:    sched.NewPool(workers, queueCapacity),
		hostDev: device.NewHost(),
		chain:   NewChain(),
		opCache: cache.New[*Op](),
	}
	log.Info().Int("workers", r.pool.Workers()).Msg("Runtime initialized")
	return r
}

// GetHostDevice returns the host device handle.
func (r *Runtime) GetHostDevice() *device.Device { return r.hostDev }

// Scheduler returns the task pool handlers dispatch onto.
func (r *Runtime) Scheduler() *sched.Pool { return r.pool }

// AddHandler appends a handler to the chain; earlier handlers are
// consulted first, the last one is the final fallback. Setup phase only.
// Cached resolutions are invalidated so names resolve against the
// current chain.
func (r *Runtime) AddHandler(h Handler) {
	r.chain.Append(h)
	r.opCache.Clear()
	log.Debug().Str("handler", h.Name()).Msg("Handler registered")
}

// Chain exposes the handler chain.
func (r *Runtime) Chain() *Chain { return r.chain }

// MakeOp resolves an operation name through the chain. Resolution
// happens once per name; the executable is cached and reused.
func (r *Runtime) MakeOp(name string) (*Op, error) {
	return r.opCache.GetOrCompute(name, func() (*Op, error) {
		return r.chain.MakeOp(name)
	})
}

// CopyDeviceToHost converts a tensor to the host representation through
// the chain.
func (r *Runtime) CopyDeviceToHost(src tensor.Tensor) *future.Future[*tensor.Host] {
	return r.chain.CopyDeviceToHost(src)
}

// CopyHostToDevice converts a host tensor through the chain.
func (r *Runtime) CopyHostToDevice(src *tensor.Host) *future.Future[tensor.Tensor] {
	return r.chain.CopyHostToDevice(src)
}

// Shutdown stops the scheduler (draining queued tasks when drain is
// true) and closes every handler device stream. Handler devices stay
// valid until all in-flight tasks have run, which the drain guarantees.
func (r *Runtime) Shutdown(drain bool) {
	r.pool.Shutdown(drain)

	closed := map[*device.Device]bool{r.hostDev: true}
	r.hostDev.Close()
	for _, h := range r.chain.Handlers() {
		type deviceOwner interface{ Device() *device.Device }
		if owner, ok := h.(deviceOwner); ok {
			if d := owner.Device(); d != nil && !closed[d] {
				closed[d] = true
				d.Close()
			}
		}
	}
	log.Info().Msg("Runtime shut down")
}
