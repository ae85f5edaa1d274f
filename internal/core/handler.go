package core

import (
	"errors"
	"fmt"

	"github.com/23skdu/longbow-bodkin/internal/future"
	"github.com/23skdu/longbow-bodkin/internal/tensor"
)

// Handler is the capability surface of one operation handler. Handlers
// are assembled into a Chain; a handler that cannot service a request
// signals it with ErrOpNotFound or ErrUnsupportedTensor and the chain
// moves on to the next one.
type Handler interface {
	Name() string

	// MakeOp resolves an operation name into a reusable executable.
	// Returns an error wrapping ErrOpNotFound when the name is not in
	// this handler's registry.
	MakeOp(name string) (*Op, error)

	// CopyDeviceToHost converts a tensor this handler's device owns into
	// a host tensor, asynchronously. Returns an error wrapping
	// ErrUnsupportedTensor when the tensor belongs to a different device
	// kind.
	CopyDeviceToHost(src tensor.Tensor) (*future.Future[*tensor.Host], error)

	// CopyHostToDevice converts a host tensor into this handler's device
	// representation, asynchronously.
	CopyHostToDevice(src *tensor.Host) (*future.Future[tensor.Tensor], error)
}

// Chain is an ordered list of handlers walked until one succeeds. The
// walk is transparent: a caller cannot tell whether the first handler or
// a later one serviced the request.
type Chain struct {
	handlers []Handler
}

// NewChain builds a chain over the given handlers, first consulted
// first.
func NewChain(handlers ...Handler) *Chain {
	return &Chain{handlers: append([]Handler(nil), handlers...)}
}

// Append adds a handler at the end of the chain (the final fallback
// position). Setup-phase only.
func (c *Chain) Append(h Handler) {
	c.handlers = append(c.handlers, h)
}

// Handlers returns the walk order.
func (c *Chain) Handlers() []Handler {
	return c.handlers
}

// MakeOp resolves name against each handler in order. When no handler
// has an entry, the resolution failure identifies the unknown operation.
func (c *Chain) MakeOp(name string) (*Op, error) {
	for _, h := range c.handlers {
		op, err := h.MakeOp(name)
		if err == nil {
			return op, nil
		}
		if !errors.Is(err, ErrOpNotFound) {
			return nil, err
		}
	}
	return nil, notFound(name)
}

// CopyDeviceToHost walks the chain until a handler claims the tensor.
// Exhaustion surfaces as a Failed future, never a crash.
func (c *Chain) CopyDeviceToHost(src tensor.Tensor) *future.Future[*tensor.Host] {
	for _, h := range c.handlers {
		fut, err := h.CopyDeviceToHost(src)
		if err == nil {
			return fut
		}
		if !errors.Is(err, ErrUnsupportedTensor) {
			return future.Failed[*tensor.Host](err)
		}
	}
	return future.Failed[*tensor.Host](fmt.Errorf("%w: no handler converts %v to host", ErrUnsupportedTensor, src.Metadata()))
}

// CopyHostToDevice walks the chain until a handler claims the tensor.
func (c *Chain) CopyHostToDevice(src *tensor.Host) *future.Future[tensor.Tensor] {
	for _, h := range c.handlers {
		fut, err := h.CopyHostToDevice(src)
		if err == nil {
			return fut
		}
		if !errors.Is(err, ErrUnsupportedTensor) {
			return future.Failed[tensor.Tensor](err)
		}
	}
	return future.Failed[tensor.Tensor](fmt.Errorf("%w: no handler accepts %v", ErrUnsupportedTensor, src.Metadata()))
}
