package core

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/23skdu/longbow-bodkin/internal/future"
	"github.com/23skdu/longbow-bodkin/internal/tensor"
)

// Op is a resolved, reusable executable for one operation name, bound
// to the handler that resolved it. Invoking it N times schedules N
// independent tasks.
type Op struct {
	name    string
	entry   *OpEntry
	handler *DeviceHandler
}

// Name returns the operation name this executable was resolved from.
func (op *Op) Name() string { return op.name }

// Invoke schedules one execution of the operation and immediately
// returns its unresolved output futures; it never blocks on compute.
// Callers may register continuations on the outputs right away.
//
// The compute task runs only after every input future has resolved. If
// any input failed, the failure propagates to all outputs and the
// dispatch body never runs.
func (op *Op) Invoke(ctx context.Context, inputs []*future.Future[tensor.Tensor], attrs OpAttrs) []*future.Future[tensor.Tensor] {
	h := op.handler
	if h.dev == nil {
		// A handler without a device is misconstructed; this is not a
		// recoverable input error.
		panic(fmt.Sprintf("core: handler %q dispatching %q with no device", h.name, op.name))
	}

	dctx := h.newDispatchContext()
	outputs := make([]*future.Future[tensor.Tensor], op.entry.NumOutputs)
	for i := range outputs {
		outputs[i] = future.New[tensor.Tensor]()
	}

	if op.entry.NumInputs >= 0 && len(inputs) != op.entry.NumInputs {
		failAll(outputs, fmt.Errorf("op %q expects %d inputs, got %d", op.name, op.entry.NumInputs, len(inputs)))
		return outputs
	}

	opsDispatched.WithLabelValues(h.name).Inc()

	future.WhenAll(inputs, func(depErr error) {
		if depErr != nil {
			dependencyFailures.Inc()
			failAll(outputs, depErr)
			return
		}
		task := func() {
			_, span := h.tracer.Start(ctx, "dispatch."+op.name)
			span.SetAttributes(
				attribute.String("op", op.name),
				attribute.String("device", h.dev.Name()),
			)
			defer span.End()

			ins := make([]tensor.Tensor, len(inputs))
			for i, f := range inputs {
				ins[i], _, _ = f.Peek()
			}

			var outMD []tensor.Metadata
			if op.entry.OutputMetadata != nil {
				inMD := make([]tensor.Metadata, len(ins))
				for i, t := range ins {
					inMD[i] = t.Metadata()
				}
				var err error
				outMD, err = op.entry.OutputMetadata(inMD, attrs)
				if err != nil {
					span.SetStatus(codes.Error, err.Error())
					failAll(outputs, fmt.Errorf("op %q: %w", op.name, err))
					return
				}
			}

			op.entry.Fn(dctx, ins, attrs, outMD, outputs)
		}
		if err := h.pool.Submit(task); err != nil {
			failAll(outputs, fmt.Errorf("op %q: %w", op.name, err))
		}
	})

	return outputs
}

func failAll(outputs []*future.Future[tensor.Tensor], err error) {
	for _, out := range outputs {
		out.Fail(err)
	}
}
