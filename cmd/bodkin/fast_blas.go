//go:build cgo

package main

// Only included when cgo is enabled. Registers the netlib BLAS
// implementation, which binds to the system BLAS (Accelerate on macOS,
// OpenBLAS on Linux). The host kernels go through blas32, so the
// override takes effect for every dispatched MatMul/Add/Scale.

import (
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/netlib/blas/netlib"
)

func init() {
	blas32.Use(netlib.Implementation{})
	log.Debug().Msg("CGO/BLAS acceleration enabled (netlib)")
}
