package tensor

import (
	"testing"

	"github.com/23skdu/longbow-bodkin/internal/device"
)

func TestShape(t *testing.T) {
	s := Shape{2, 3, 4}
	if s.NumElements() != 24 {
		t.Errorf("NumElements = %d, want 24", s.NumElements())
	}
	if !s.Equal(Shape{2, 3, 4}) {
		t.Error("identical shapes must compare equal")
	}
	if s.Equal(Shape{2, 3}) || s.Equal(Shape{2, 3, 5}) {
		t.Error("different shapes must not compare equal")
	}
	if s.String() != "[2x3x4]" {
		t.Errorf("String = %q", s.String())
	}
}

func TestHost_Construction(t *testing.T) {
	h := NewHost(Shape{2, 2}, []float32{1, 2, 3, 4})

	if h.Metadata().DType != Float32 {
		t.Errorf("dtype = %v", h.Metadata().DType)
	}
	if h.At(0, 1) != 2 || h.At(1, 0) != 3 {
		t.Errorf("At: got %v, %v", h.At(0, 1), h.At(1, 0))
	}

	t.Run("Zero fill", func(t *testing.T) {
		z := NewHost(Shape{3}, nil)
		for i := 0; i < 3; i++ {
			if z.At(i) != 0 {
				t.Errorf("At(%d) = %v, want 0", i, z.At(i))
			}
		}
	})

	t.Run("Length mismatch panics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic on length mismatch")
			}
		}()
		NewHost(Shape{2, 2}, []float32{1})
	})
}

func TestHost_Immutability(t *testing.T) {
	src := []float32{1, 2, 3}
	h := NewHost(Shape{3}, src)

	// Construction copies: mutating the source slice must not show through.
	src[0] = 99
	if h.At(0) != 1 {
		t.Error("NewHost must copy its input data")
	}

	c := h.Clone()
	if &c.Data()[0] == &h.Data()[0] {
		t.Error("Clone must not share storage")
	}
	if c.At(2) != 3 {
		t.Errorf("clone At(2) = %v", c.At(2))
	}
}

func TestDevice_Tag(t *testing.T) {
	dev := device.New(0, "accel")
	defer dev.Close()

	buf := dev.Alloc(6)
	dt := NewDevice(Shape{2, 3}, buf)

	if dt.Kind() != "accel" {
		t.Errorf("Kind = %q, want accel", dt.Kind())
	}
	if !dt.Metadata().Equal(Metadata{Shape: Shape{2, 3}, DType: Float32}) {
		t.Errorf("metadata = %v", dt.Metadata())
	}

	t.Run("Buffer size mismatch panics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic on buffer size mismatch")
			}
		}()
		NewDevice(Shape{4}, buf)
	})
}
