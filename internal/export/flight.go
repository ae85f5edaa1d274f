package export

import (
	"context"
	"errors"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/23skdu/longbow-bodkin/internal/tensor"
)

// ErrCircuitOpen is returned when the breaker is rejecting exports.
var ErrCircuitOpen = errors.New("export: circuit open")

// FlightClient handles communication with a longbow store via Arrow
// Flight.
type FlightClient struct {
	client flight.Client
	conn   *grpc.ClientConn
}

// NewFlightClient connects to the store at addr.
func NewFlightClient(addr string) (*FlightClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &FlightClient{
		client: flight.NewClientFromConn(conn, nil),
		conn:   conn,
	}, nil
}

// DoPut streams a record to the named dataset.
func (c *FlightClient) DoPut(ctx context.Context, dataset string, record arrow.Record) error {
	desc := &flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{dataset},
	}

	stream, err := c.client.DoPut(ctx)
	if err != nil {
		return err
	}

	writer := flight.NewRecordWriter(stream)
	writer.SetFlightDescriptor(desc)

	if err := writer.Write(record); err != nil {
		return err
	}
	return writer.Close()
}

// Close closes the underlying connection.
func (c *FlightClient) Close() error {
	return c.conn.Close()
}

// Putter is the slice of the Flight client the exporter needs.
type Putter interface {
	DoPut(ctx context.Context, dataset string, record arrow.Record) error
}

// Exporter batches host tensors into Arrow records and ships them to a
// dataset, refusing to call through an open circuit.
type Exporter struct {
	builder *RecordBuilder
	client  Putter
	breaker *CircuitBreaker
	dataset string
}

// NewExporter wires a builder, client and breaker together.
func NewExporter(client Putter, dataset string) *Exporter {
	return &Exporter{
		builder: NewRecordBuilder(memory.NewGoAllocator()),
		client:  client,
		breaker: NewCircuitBreaker(5, 10*time.Second),
		dataset: dataset,
	}
}

// Export ships one batch. Empty batches are a no-op.
func (e *Exporter) Export(ctx context.Context, tensors []*tensor.Host) error {
	if len(tensors) == 0 {
		return nil
	}
	if !e.breaker.Allow() {
		return ErrCircuitOpen
	}

	record, err := e.builder.Build(tensors)
	if err != nil {
		return err
	}
	defer record.Release()

	if err := e.client.DoPut(ctx, e.dataset, record); err != nil {
		e.breaker.Failure()
		log.Warn().Err(err).Str("dataset", e.dataset).Msg("Flight export failed")
		return err
	}
	e.breaker.Success()
	recordsExported.Inc()
	tensorsExported.Add(float64(len(tensors)))
	return nil
}
