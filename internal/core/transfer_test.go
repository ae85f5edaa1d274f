package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-bodkin/internal/device"
	"github.com/23skdu/longbow-bodkin/internal/tensor"
)

// newTransferRuntime builds a chain of [accel, cpu] handlers, the way a
// runtime with one accelerator is assembled.
func newTransferRuntime(t *testing.T) (*Runtime, *device.Device) {
	t.Helper()
	rt := NewRuntime(2, 64)
	accelDev := device.New(0, "accel")
	rt.AddHandler(NewDeviceHandler("accel", NewRegistryBuilder().Build(), accelDev, rt.Scheduler()))
	rt.AddHandler(NewDeviceHandler("cpu", NewRegistryBuilder().Build(), rt.GetHostDevice(), rt.Scheduler()))
	t.Cleanup(func() { rt.Shutdown(true) })
	return rt, accelDev
}

func TestTransfer_RoundTrip(t *testing.T) {
	rt, _ := newTransferRuntime(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	src := tensor.NewHost(tensor.Shape{2, 3}, []float32{1, -2, 3.5, 0, 42, -0.25})

	up, err := rt.CopyHostToDevice(src).Await(ctx)
	require.NoError(t, err)
	dev, ok := up.(*tensor.Device)
	require.True(t, ok, "upload should produce a device tensor")
	assert.Equal(t, device.Kind("accel"), dev.Kind())
	assert.True(t, dev.Metadata().Equal(src.Metadata()), "conversion preserves shape and dtype")

	down, err := rt.CopyDeviceToHost(dev).Await(ctx)
	require.NoError(t, err)
	assert.True(t, down.Metadata().Equal(src.Metadata()))
	assert.Equal(t, src.Data(), down.Data(), "round trip preserves element values exactly")

	// The source is untouched by either conversion.
	assert.Equal(t, []float32{1, -2, 3.5, 0, 42, -0.25}, src.Data())
}

func TestTransfer_HostTensorDelegatesToHostHandler(t *testing.T) {
	rt, _ := newTransferRuntime(t)
	ctx := context.Background()

	// The accel handler does not own a host tensor; the chain delegates
	// to the cpu handler, which clones it.
	src := tensor.NewHost(tensor.Shape{3}, []float32{1, 2, 3})
	got, err := rt.CopyDeviceToHost(src).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, src.Data(), got.Data())
	assert.NotSame(t, src, got, "conversion produces a new tensor")
}

func TestTransfer_UnsupportedKindFails(t *testing.T) {
	rt, _ := newTransferRuntime(t)

	// A tensor owned by a device kind absent from the chain.
	foreign := device.New(0, "fpga")
	defer foreign.Close()
	ft := tensor.NewDevice(tensor.Shape{2}, foreign.Alloc(2))

	_, err := rt.CopyDeviceToHost(ft).Await(context.Background())
	assert.ErrorIs(t, err, ErrUnsupportedTensor,
		"conversion failure surfaces as a failed future, never a crash")
}
