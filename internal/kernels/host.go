// Package kernels provides the built-in operation implementations
// registered with the dispatch chain: dense host kernels backed by
// gonum BLAS, and stream-scheduled variants for accelerator devices.
package kernels

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/23skdu/longbow-bodkin/internal/core"
	"github.com/23skdu/longbow-bodkin/internal/tensor"
)

// RegisterHostOps populates a registry with the dense host kernels.
func RegisterHostOps(b *core.RegistryBuilder) {
	b.Register(core.OpEntry{
		Name: "MatMul", NumInputs: 2, NumOutputs: 1,
		OutputMetadata: matMulMetadata,
		Fn:             core.SyncKernel(matMul),
	})
	b.Register(core.OpEntry{
		Name: "Add", NumInputs: 2, NumOutputs: 1,
		OutputMetadata: sameAsFirstInput,
		Fn:             core.SyncKernel(add),
	})
	b.Register(core.OpEntry{
		Name: "Scale", NumInputs: 1, NumOutputs: 1,
		OutputMetadata: sameAsFirstInput,
		Fn:             core.SyncKernel(scale),
	})
	b.Register(core.OpEntry{
		Name: "Relu", NumInputs: 1, NumOutputs: 1,
		OutputMetadata: sameAsFirstInput,
		Fn:             core.SyncKernel(relu),
	})
}

// hostInputs asserts that every input is host-resident.
func hostInputs(name string, inputs []tensor.Tensor) ([]*tensor.Host, error) {
	hosts := make([]*tensor.Host, len(inputs))
	for i, t := range inputs {
		h, ok := t.(*tensor.Host)
		if !ok {
			return nil, fmt.Errorf("op %q: input %d is not host-resident (%v)", name, i, t)
		}
		hosts[i] = h
	}
	return hosts, nil
}

func matMulMetadata(inputs []tensor.Metadata, _ core.OpAttrs) ([]tensor.Metadata, error) {
	a, b := inputs[0], inputs[1]
	if len(a.Shape) != 2 || len(b.Shape) != 2 {
		return nil, fmt.Errorf("MatMul expects 2-D inputs, got %v and %v", a.Shape, b.Shape)
	}
	if a.Shape[1] != b.Shape[0] {
		return nil, fmt.Errorf("MatMul inner dimensions differ: %v vs %v", a.Shape, b.Shape)
	}
	return []tensor.Metadata{{Shape: tensor.Shape{a.Shape[0], b.Shape[1]}, DType: a.DType}}, nil
}

func sameAsFirstInput(inputs []tensor.Metadata, _ core.OpAttrs) ([]tensor.Metadata, error) {
	return []tensor.Metadata{inputs[0]}, nil
}

func matMul(_ *core.DispatchContext, inputs []tensor.Tensor, _ core.OpAttrs) ([]tensor.Tensor, error) {
	hs, err := hostInputs("MatMul", inputs)
	if err != nil {
		return nil, err
	}
	a, b := hs[0], hs[1]
	m, k := a.Metadata().Shape[0], a.Metadata().Shape[1]
	n := b.Metadata().Shape[1]

	out := tensor.NewHost(tensor.Shape{m, n}, nil)
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: m, Cols: k, Stride: k, Data: a.Data()},
		blas32.General{Rows: k, Cols: n, Stride: n, Data: b.Data()},
		0,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: out.Data()},
	)
	return []tensor.Tensor{out}, nil
}

func add(_ *core.DispatchContext, inputs []tensor.Tensor, _ core.OpAttrs) ([]tensor.Tensor, error) {
	hs, err := hostInputs("Add", inputs)
	if err != nil {
		return nil, err
	}
	a, b := hs[0], hs[1]
	if !a.Metadata().Shape.Equal(b.Metadata().Shape) {
		return nil, fmt.Errorf("Add shape mismatch: %v vs %v", a.Metadata().Shape, b.Metadata().Shape)
	}

	out := a.Clone()
	n := out.Metadata().Shape.NumElements()
	blas32.Axpy(1,
		blas32.Vector{N: n, Inc: 1, Data: b.Data()},
		blas32.Vector{N: n, Inc: 1, Data: out.Data()},
	)
	return []tensor.Tensor{out}, nil
}

func scale(_ *core.DispatchContext, inputs []tensor.Tensor, attrs core.OpAttrs) ([]tensor.Tensor, error) {
	hs, err := hostInputs("Scale", inputs)
	if err != nil {
		return nil, err
	}
	factor, ok := attrs.Float("factor")
	if !ok {
		return nil, fmt.Errorf("Scale requires a %q attribute", "factor")
	}

	out := hs[0].Clone()
	n := out.Metadata().Shape.NumElements()
	blas32.Scal(float32(factor), blas32.Vector{N: n, Inc: 1, Data: out.Data()})
	return []tensor.Tensor{out}, nil
}

func relu(_ *core.DispatchContext, inputs []tensor.Tensor, _ core.OpAttrs) ([]tensor.Tensor, error) {
	hs, err := hostInputs("Relu", inputs)
	if err != nil {
		return nil, err
	}

	out := hs[0].Clone()
	data := out.Data()
	for i, v := range data {
		if v < 0 {
			data[i] = 0
		}
	}
	return []tensor.Tensor{out}, nil
}
