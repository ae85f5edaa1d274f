package main

import (
	"context"
	"flag"
	"math/rand"
	"net/http"
	"os"
	"runtime/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/23skdu/longbow-bodkin/internal/core"
	"github.com/23skdu/longbow-bodkin/internal/device"
	"github.com/23skdu/longbow-bodkin/internal/export"
	"github.com/23skdu/longbow-bodkin/internal/future"
	"github.com/23skdu/longbow-bodkin/internal/kernels"
	"github.com/23skdu/longbow-bodkin/internal/tensor"
)

var (
	workers       = flag.Int("workers", 0, "Scheduler worker count (0 = NumCPU)")
	queueCap      = flag.Int("queue-cap", 1024, "Per-worker task queue capacity (power of two)")
	matrixSize    = flag.Int("size", 128, "Square matrix dimension for the demo pipeline")
	batchSize     = flag.Int("batch", 64, "Pipelines per iteration")
	duration      = flag.Duration("duration", 0, "Run soak test for specified duration (e.g. 10s, 20m)")
	maxConcurrent = flag.Int("max-concurrent", 256, "Maximum number of concurrent pipelines")
	listenAddr    = flag.String("listen", "", "Address to serve Prometheus metrics on (e.g. :8080)")
	serverAddr    = flag.String("server", "", "Longbow store address for result export (e.g. localhost:3000)")
	datasetName   = flag.String("dataset", "bodkin_results", "Target dataset name on the store")
	enableOTel    = flag.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")
	cpuProfile    = flag.String("cpuprofile", "", "Write cpu profile to file")
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	flag.Parse()

	if *enableOTel {
		shutdown, err := initTracer()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer shutdown(context.Background())
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create CPU profile file")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("Could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
	}

	if *listenAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Info().Str("addr", *listenAddr).Msg("Serving metrics")
			if err := http.ListenAndServe(*listenAddr, mux); err != nil {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	rt := buildRuntime(*workers, *queueCap)
	defer rt.Shutdown(true)

	var exporter *export.Exporter
	if *serverAddr != "" {
		fc, err := export.NewFlightClient(*serverAddr)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to store")
		}
		defer func() {
			if err := fc.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close flight client")
			}
		}()
		exporter = export.NewExporter(fc, *datasetName)
		log.Info().Str("addr", *serverAddr).Str("dataset", *datasetName).Msg("Connected to store")
	}

	endTime := time.Now().Add(*duration)
	start := time.Now()
	var totalPipelines int64
	iter := 0

	for {
		iterStart := time.Now()
		results := runBatch(rt, *batchSize, *matrixSize)
		totalPipelines += int64(len(results))
		iter++

		if exporter != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			if err := exporter.Export(ctx, results); err != nil {
				log.Warn().Err(err).Msg("Result export failed")
			}
			cancel()
		}

		if *duration == 0 {
			elapsed := time.Since(iterStart)
			log.Info().
				Int("pipelines", len(results)).
				Int("size", *matrixSize).
				Dur("elapsed", elapsed).
				Float64("pps", float64(len(results))/elapsed.Seconds()).
				Msg("Batch complete")
			return
		}

		if iter%10 == 0 {
			elapsed := time.Since(start)
			log.Info().
				Str("elapsed", elapsed.Round(time.Second).String()).
				Int("iter", iter).
				Int64("total_pipelines", totalPipelines).
				Float64("pps", float64(totalPipelines)/elapsed.Seconds()).
				Msg("Soak test progress")
		}
		if time.Now().After(endTime) {
			totalElapsed := time.Since(start)
			log.Info().
				Int64("total_pipelines", totalPipelines).
				Dur("total_time", totalElapsed).
				Float64("avg_pps", float64(totalPipelines)/totalElapsed.Seconds()).
				Msg("Soak test complete")
			return
		}
	}
}

// buildRuntime assembles the handler chain: the accelerator handler in
// front, the host handler as the final fallback.
func buildRuntime(workers, queueCap int) *core.Runtime {
	rt := core.NewRuntime(workers, queueCap)

	accelReg := core.NewRegistryBuilder()
	kernels.RegisterAccelOps(accelReg)
	accelDev := device.New(0, "accel")
	rt.AddHandler(core.NewDeviceHandler("accel", accelReg.Build(), accelDev, rt.Scheduler()))

	hostReg := core.NewRegistryBuilder()
	kernels.RegisterHostOps(hostReg)
	rt.AddHandler(core.NewDeviceHandler("cpu", hostReg.Build(), rt.GetHostDevice(), rt.Scheduler()))

	return rt
}

// runBatch issues batch pipelines through the chain with bounded
// concurrency and blocks for their results.
func runBatch(rt *core.Runtime, batch, size int) []*tensor.Host {
	ctx := context.Background()
	sem := semaphore.NewWeighted(int64(*maxConcurrent))
	results := make([]*tensor.Host, 0, batch)
	futs := make([]*future.Future[*tensor.Host], 0, batch)

	for i := 0; i < batch; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Error().Err(err).Msg("Failed to acquire semaphore")
			break
		}
		f := runPipeline(ctx, rt, size)
		f.OnResolve(func(*tensor.Host, error) { sem.Release(1) })
		futs = append(futs, f)
	}

	for _, f := range futs {
		h, err := f.Await(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Pipeline failed")
			continue
		}
		results = append(results, h)
	}
	return results
}

// runPipeline chains MatMul and Add on the host, moves the result to
// the accelerator for Scale, and brings it back. Returns immediately
// with an unresolved future.
func runPipeline(ctx context.Context, rt *core.Runtime, size int) *future.Future[*tensor.Host] {
	final := future.New[*tensor.Host]()

	matMul, err := rt.MakeOp("MatMul")
	if err != nil {
		final.Fail(err)
		return final
	}
	add, err := rt.MakeOp("Add")
	if err != nil {
		final.Fail(err)
		return final
	}
	scale, err := rt.MakeOp("Scale")
	if err != nil {
		final.Fail(err)
		return final
	}

	a := future.Resolved[tensor.Tensor](randomTensor(size))
	b := future.Resolved[tensor.Tensor](randomTensor(size))
	bias := future.Resolved[tensor.Tensor](randomTensor(size))

	product := matMul.Invoke(ctx, []*future.Future[tensor.Tensor]{a, b}, nil)[0]
	sum := add.Invoke(ctx, []*future.Future[tensor.Tensor]{product, bias}, nil)[0]

	sum.OnResolve(func(v tensor.Tensor, err error) {
		if err != nil {
			final.Fail(err)
			return
		}
		up := rt.CopyHostToDevice(v.(*tensor.Host))
		scaled := scale.Invoke(ctx, []*future.Future[tensor.Tensor]{up}, core.OpAttrs{"factor": 0.5})[0]
		scaled.OnResolve(func(v tensor.Tensor, err error) {
			if err != nil {
				final.Fail(err)
				return
			}
			rt.CopyDeviceToHost(v).OnResolve(func(h *tensor.Host, err error) {
				if err != nil {
					final.Fail(err)
					return
				}
				final.Resolve(h)
			})
		})
	})
	return final
}

func randomTensor(size int) *tensor.Host {
	data := make([]float32, size*size)
	for i := range data {
		data[i] = rand.Float32()*2 - 1
	}
	return tensor.NewHost(tensor.Shape{size, size}, data)
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("bodkin"),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}
