// Package export ships computed host tensors to a longbow store as
// Arrow record batches over Flight, guarded by a circuit breaker.
package export

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/longbow-bodkin/internal/tensor"
)

// RecordBuilder converts host tensors into Arrow records. Each row is
// one tensor: its shape as a list of int64 and its elements as a flat
// list of float32.
type RecordBuilder struct {
	mem memory.Allocator
}

// NewRecordBuilder creates a builder over the given allocator.
func NewRecordBuilder(mem memory.Allocator) *RecordBuilder {
	return &RecordBuilder{mem: mem}
}

// Schema returns the record schema used for tensor export.
func (b *RecordBuilder) Schema() *arrow.Schema {
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: "shape", Type: arrow.ListOf(arrow.PrimitiveTypes.Int64)},
			{Name: "values", Type: arrow.ListOf(arrow.PrimitiveTypes.Float32)},
		},
		nil,
	)
}

// Build converts a batch of tensors into one record. Returns nil for an
// empty batch.
func (b *RecordBuilder) Build(tensors []*tensor.Host) (arrow.Record, error) {
	if len(tensors) == 0 {
		return nil, nil
	}

	shapeBuilder := array.NewListBuilder(b.mem, arrow.PrimitiveTypes.Int64)
	defer shapeBuilder.Release()
	dimBuilder := shapeBuilder.ValueBuilder().(*array.Int64Builder)

	valuesBuilder := array.NewListBuilder(b.mem, arrow.PrimitiveTypes.Float32)
	defer valuesBuilder.Release()
	elemBuilder := valuesBuilder.ValueBuilder().(*array.Float32Builder)

	for _, t := range tensors {
		shapeBuilder.Append(true)
		for _, d := range t.Metadata().Shape {
			dimBuilder.Append(int64(d))
		}

		valuesBuilder.Append(true)
		elemBuilder.AppendValues(t.Data(), nil)
	}

	cols := []arrow.Array{shapeBuilder.NewArray(), valuesBuilder.NewArray()}
	defer cols[0].Release()
	defer cols[1].Release()

	return array.NewRecord(b.Schema(), cols, int64(len(tensors))), nil
}
