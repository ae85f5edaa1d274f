package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-bodkin/internal/future"
	"github.com/23skdu/longbow-bodkin/internal/tensor"
)

func newTestRuntime(t *testing.T, entries ...OpEntry) *Runtime {
	t.Helper()
	rt := NewRuntime(2, 64)
	t.Cleanup(func() { rt.Shutdown(true) })

	b := NewRegistryBuilder()
	for _, e := range entries {
		b.Register(e)
	}
	rt.AddHandler(NewDeviceHandler("cpu", b.Build(), rt.GetHostDevice(), rt.Scheduler()))
	return rt
}

func TestOp_ExactlyOnceDispatch(t *testing.T) {
	var calls atomic.Int64
	rt := newTestRuntime(t, OpEntry{
		Name: "Count", NumInputs: 0, NumOutputs: 1,
		Fn: SyncKernel(func(_ *DispatchContext, _ []tensor.Tensor, _ OpAttrs) ([]tensor.Tensor, error) {
			calls.Add(1)
			return []tensor.Tensor{tensor.NewHost(tensor.Shape{1}, nil)}, nil
		}),
	})

	// Resolving twice yields executables with identical semantics; the
	// runtime caches the resolution so lookups are not repeated per call.
	op1, err := rt.MakeOp("Count")
	require.NoError(t, err)
	op2, err := rt.MakeOp("Count")
	require.NoError(t, err)
	assert.Same(t, op1, op2)

	const n = 50
	outs := make([]*future.Future[tensor.Tensor], 0, n)
	for i := 0; i < n; i++ {
		outs = append(outs, op1.Invoke(context.Background(), nil, nil)[0])
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, f := range outs {
		_, err := f.Await(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(n), calls.Load(), "N invocations must schedule exactly N tasks")
}

func TestOp_ReturnsUnresolvedImmediately(t *testing.T) {
	gate := make(chan struct{})
	rt := newTestRuntime(t, OpEntry{
		Name: "Slow", NumInputs: 0, NumOutputs: 1,
		Fn: SyncKernel(func(_ *DispatchContext, _ []tensor.Tensor, _ OpAttrs) ([]tensor.Tensor, error) {
			<-gate
			return []tensor.Tensor{tensor.NewHost(tensor.Shape{1}, nil)}, nil
		}),
	})

	op, err := rt.MakeOp("Slow")
	require.NoError(t, err)

	out := op.Invoke(context.Background(), nil, nil)[0]
	assert.False(t, out.Settled(), "Invoke must not block on compute")

	// Continuations can be registered before the task runs.
	done := make(chan struct{})
	out.OnResolve(func(tensor.Tensor, error) { close(done) })

	close(gate)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("continuation never fired")
	}
}

func TestOp_ErrorShortCircuit(t *testing.T) {
	var bodyRuns atomic.Int64
	rt := newTestRuntime(t, OpEntry{
		Name: "Consume", NumInputs: 1, NumOutputs: 1,
		Fn: SyncKernel(func(_ *DispatchContext, inputs []tensor.Tensor, _ OpAttrs) ([]tensor.Tensor, error) {
			bodyRuns.Add(1)
			return []tensor.Tensor{inputs[0]}, nil
		}),
	})

	op, err := rt.MakeOp("Consume")
	require.NoError(t, err)

	sentinel := errors.New("upstream failed")
	out := op.Invoke(context.Background(), []*future.Future[tensor.Tensor]{
		future.Failed[tensor.Tensor](sentinel),
	}, nil)[0]

	_, err = out.Await(context.Background())
	assert.ErrorIs(t, err, sentinel, "input failure must propagate to the output")
	assert.Equal(t, int64(0), bodyRuns.Load(), "compute body must not run on failed inputs")
}

func TestOp_DataDependentScheduling(t *testing.T) {
	rt := newTestRuntime(t, OpEntry{
		Name: "Double", NumInputs: 1, NumOutputs: 1,
		Fn: SyncKernel(func(_ *DispatchContext, inputs []tensor.Tensor, _ OpAttrs) ([]tensor.Tensor, error) {
			in := inputs[0].(*tensor.Host)
			out := in.Clone()
			for i := range out.Data() {
				out.Data()[i] *= 2
			}
			return []tensor.Tensor{out}, nil
		}),
	})

	op, err := rt.MakeOp("Double")
	require.NoError(t, err)

	// Chain two invocations through an unresolved input; nothing runs
	// until the head future resolves.
	head := future.New[tensor.Tensor]()
	mid := op.Invoke(context.Background(), []*future.Future[tensor.Tensor]{head}, nil)[0]
	tail := op.Invoke(context.Background(), []*future.Future[tensor.Tensor]{mid}, nil)[0]

	assert.False(t, mid.Settled())
	assert.False(t, tail.Settled())

	head.Resolve(tensor.NewHost(tensor.Shape{2}, []float32{3, 5}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := tail.Await(ctx)
	require.NoError(t, err)
	got := v.(*tensor.Host)
	assert.Equal(t, []float32{12, 20}, got.Data())
}

func TestOp_ArityMismatch(t *testing.T) {
	rt := newTestRuntime(t, OpEntry{
		Name: "Unary", NumInputs: 1, NumOutputs: 1,
		Fn: SyncKernel(func(_ *DispatchContext, inputs []tensor.Tensor, _ OpAttrs) ([]tensor.Tensor, error) {
			return []tensor.Tensor{inputs[0]}, nil
		}),
	})

	op, err := rt.MakeOp("Unary")
	require.NoError(t, err)

	out := op.Invoke(context.Background(), nil, nil)[0]
	_, err = out.Await(context.Background())
	assert.Error(t, err, "wrong input arity must fail the outputs, not panic")
}

func TestOp_NilDevicePanics(t *testing.T) {
	pool := newTestRuntime(t).Scheduler()

	reg := NewRegistryBuilder().Register(OpEntry{
		Name: "Broken", NumInputs: 0, NumOutputs: 1,
		Fn: SyncKernel(func(_ *DispatchContext, _ []tensor.Tensor, _ OpAttrs) ([]tensor.Tensor, error) {
			return []tensor.Tensor{tensor.NewHost(tensor.Shape{1}, nil)}, nil
		}),
	}).Build()

	// A handler with no device is misconstructed; dispatching through it
	// is a fatal invariant violation.
	broken := NewDeviceHandler("broken", reg, nil, pool)
	op, err := broken.MakeOp("Broken")
	require.NoError(t, err)

	assert.Panics(t, func() { op.Invoke(context.Background(), nil, nil) })
}

func TestOpAttrs(t *testing.T) {
	attrs := OpAttrs{"factor": 2.0, "axis": 1, "name": "x", "fused": true}

	f, ok := attrs.Float("factor")
	assert.True(t, ok)
	assert.Equal(t, 2.0, f)

	i, ok := attrs.Int("axis")
	assert.True(t, ok)
	assert.Equal(t, int64(1), i)

	s, ok := attrs.String("name")
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	bv, ok := attrs.Bool("fused")
	assert.True(t, ok)
	assert.True(t, bv)

	_, ok = attrs.Float("missing")
	assert.False(t, ok)

	t.Run("Fingerprint is order-independent", func(t *testing.T) {
		a := OpAttrs{"alpha": 1.5, "beta": int64(3)}
		b := OpAttrs{"beta": int64(3), "alpha": 1.5}

		fa, err := a.Fingerprint()
		require.NoError(t, err)
		fb, err := b.Fingerprint()
		require.NoError(t, err)
		assert.Equal(t, fa, fb)

		fc, err := OpAttrs{"alpha": 1.5, "beta": int64(4)}.Fingerprint()
		require.NoError(t, err)
		assert.NotEqual(t, fa, fc)
	})
}
