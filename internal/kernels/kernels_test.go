package kernels

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/23skdu/longbow-bodkin/internal/core"
	"github.com/23skdu/longbow-bodkin/internal/future"
	"github.com/23skdu/longbow-bodkin/internal/tensor"
)

func newHostRuntime(t *testing.T) *core.Runtime {
	t.Helper()
	rt := core.NewRuntime(2, 64)
	t.Cleanup(func() { rt.Shutdown(true) })

	b := core.NewRegistryBuilder()
	RegisterHostOps(b)
	rt.AddHandler(core.NewDeviceHandler("cpu", b.Build(), rt.GetHostDevice(), rt.Scheduler()))
	return rt
}

func run(t *testing.T, rt *core.Runtime, name string, attrs core.OpAttrs, inputs ...*tensor.Host) *tensor.Host {
	t.Helper()
	op, err := rt.MakeOp(name)
	if err != nil {
		t.Fatalf("MakeOp(%q): %v", name, err)
	}

	ins := make([]*future.Future[tensor.Tensor], len(inputs))
	for i, h := range inputs {
		ins[i] = future.Resolved[tensor.Tensor](h)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	outs := op.Invoke(ctx, ins, attrs)
	if len(outs) != 1 {
		t.Fatalf("op %q produced %d outputs", name, len(outs))
	}
	res, err := outs[0].Await(ctx)
	if err != nil {
		t.Fatalf("op %q failed: %v", name, err)
	}
	host, ok := res.(*tensor.Host)
	if !ok {
		t.Fatalf("op %q result is not host-resident: %v", name, res)
	}
	return host
}

func expectElements(t *testing.T, got *tensor.Host, want []float32) {
	t.Helper()
	data := got.Data()
	if len(data) != len(want) {
		t.Fatalf("element count %d, want %d", len(data), len(want))
	}
	for i, v := range want {
		if math.Abs(float64(data[i]-v)) > 1e-6 {
			t.Errorf("element %d: got %f, want %f", i, data[i], v)
		}
	}
}

func TestHostOps(t *testing.T) {
	rt := newHostRuntime(t)

	t.Run("MatMul", func(t *testing.T) {
		a := tensor.NewHost(tensor.Shape{2, 3}, []float32{
			1, 2, 3,
			4, 5, 6,
		})
		b := tensor.NewHost(tensor.Shape{3, 2}, []float32{
			7, 8,
			9, 10,
			11, 12,
		})

		// 1*7+2*9+3*11 = 58, 1*8+2*10+3*12 = 64
		// 4*7+5*9+6*11 = 139, 4*8+5*10+6*12 = 154
		out := run(t, rt, "MatMul", nil, a, b)
		if !out.Metadata().Shape.Equal(tensor.Shape{2, 2}) {
			t.Fatalf("shape = %v, want [2x2]", out.Metadata().Shape)
		}
		expectElements(t, out, []float32{58, 64, 139, 154})
	})

	t.Run("MatMul dimension mismatch", func(t *testing.T) {
		a := tensor.NewHost(tensor.Shape{2, 3}, nil)
		b := tensor.NewHost(tensor.Shape{2, 2}, nil)

		op, err := rt.MakeOp("MatMul")
		if err != nil {
			t.Fatal(err)
		}
		outs := op.Invoke(context.Background(), []*future.Future[tensor.Tensor]{
			future.Resolved[tensor.Tensor](a),
			future.Resolved[tensor.Tensor](b),
		}, nil)

		if _, err := outs[0].Await(context.Background()); err == nil {
			t.Error("mismatched inner dimensions should fail the output future")
		}
	})

	t.Run("Add", func(t *testing.T) {
		a := tensor.NewHost(tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
		b := tensor.NewHost(tensor.Shape{2, 2}, []float32{10, 20, 30, 40})

		out := run(t, rt, "Add", nil, a, b)
		expectElements(t, out, []float32{11, 22, 33, 44})

		// Inputs stay untouched.
		expectElements(t, a, []float32{1, 2, 3, 4})
	})

	t.Run("Scale", func(t *testing.T) {
		a := tensor.NewHost(tensor.Shape{4}, []float32{1, -2, 3, -4})
		out := run(t, rt, "Scale", core.OpAttrs{"factor": 2.5}, a)
		expectElements(t, out, []float32{2.5, -5, 7.5, -10})
	})

	t.Run("Scale missing attribute", func(t *testing.T) {
		op, _ := rt.MakeOp("Scale")
		outs := op.Invoke(context.Background(), []*future.Future[tensor.Tensor]{
			future.Resolved[tensor.Tensor](tensor.NewHost(tensor.Shape{1}, nil)),
		}, nil)
		if _, err := outs[0].Await(context.Background()); err == nil {
			t.Error("Scale without factor attribute should fail")
		}
	})

	t.Run("Relu", func(t *testing.T) {
		a := tensor.NewHost(tensor.Shape{5}, []float32{-1, 0, 1, -2.5, 3})
		out := run(t, rt, "Relu", nil, a)
		expectElements(t, out, []float32{0, 0, 1, 0, 3})
	})
}

func TestHostOps_RejectDeviceTensor(t *testing.T) {
	rt := newHostRuntime(t)

	op, err := rt.MakeOp("Relu")
	if err != nil {
		t.Fatal(err)
	}

	// Pipe a host tensor through an input future, but typed as a device
	// tensor would be at runtime: here we just check arity enforcement.
	outs := op.Invoke(context.Background(), nil, nil)
	if _, err := outs[0].Await(context.Background()); err == nil {
		t.Error("Relu with no inputs should fail with an arity error")
	}
}
