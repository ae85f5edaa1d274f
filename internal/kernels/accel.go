package kernels

import (
	"fmt"

	"github.com/23skdu/longbow-bodkin/internal/core"
	"github.com/23skdu/longbow-bodkin/internal/future"
	"github.com/23skdu/longbow-bodkin/internal/tensor"
)

// RegisterAccelOps populates a registry with kernels that run on an
// accelerator device's stream. The output futures resolve when the
// stream reaches the enqueued work, not when the dispatch function
// returns: dispatch only issues the work.
func RegisterAccelOps(b *core.RegistryBuilder) {
	b.Register(core.OpEntry{
		Name: "Relu", NumInputs: 1, NumOutputs: 1,
		OutputMetadata: sameAsFirstInput,
		Fn:             streamKernel("Relu", reluInPlace),
	})
	b.Register(core.OpEntry{
		Name: "Scale", NumInputs: 1, NumOutputs: 1,
		OutputMetadata: sameAsFirstInput,
		Fn:             streamKernel("Scale", scaleInPlace),
	})
}

func reluInPlace(data []float32, _ core.OpAttrs) error {
	for i, v := range data {
		if v < 0 {
			data[i] = 0
		}
	}
	return nil
}

func scaleInPlace(data []float32, attrs core.OpAttrs) error {
	factor, ok := attrs.Float("factor")
	if !ok {
		return fmt.Errorf("Scale requires a %q attribute", "factor")
	}
	for i := range data {
		data[i] *= float32(factor)
	}
	return nil
}

// streamKernel lifts a unary elementwise kernel onto the device stream.
// It checks that the input belongs to the dispatching device, allocates
// the output buffer on that device, and enqueues the element loop.
func streamKernel(name string, fn func(data []float32, attrs core.OpAttrs) error) core.DispatchFn {
	return func(dctx *core.DispatchContext, inputs []tensor.Tensor, attrs core.OpAttrs,
		_ []tensor.Metadata, outputs []*future.Future[tensor.Tensor]) {
		src, ok := inputs[0].(*tensor.Device)
		if !ok || src.Kind() != dctx.Device().Kind() {
			outputs[0].Fail(fmt.Errorf("op %q: input is not resident on %s", name, dctx.Device().Name()))
			return
		}

		dctx.Stream().Enqueue(func() {
			md := src.Metadata()
			buf := dctx.Device().Alloc(md.Shape.NumElements())
			copy(buf.Data(), src.Buffer().Data())
			if err := fn(buf.Data(), attrs); err != nil {
				outputs[0].Fail(fmt.Errorf("op %q: %w", name, err))
				return
			}
			outputs[0].Resolve(tensor.NewDevice(md.Shape, buf))
		})
	}
}
