package config

import (
	"fmt"
	"strings"
)

const (
	BackendAuto   = "auto"
	BackendScalar = "scalar"
	BackendSIMD   = "simd"
	BackendBLAS   = "blas"
)

// NormalizeBackend validates and canonicalizes a requested kernel backend
// name. The value is validated and reported by the doctor command only; it
// is not passed to the tensor package, which picks its dot-product kernel
// by a CPU-feature probe at process start and takes the BLAS GEMM path per
// call above a size threshold, whatever backend name is configured.
func NormalizeBackend(raw string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(raw))
	if backend == "" {
		backend = BackendAuto
	}

	switch backend {
	case BackendAuto, BackendScalar, BackendSIMD, BackendBLAS:
		return backend, nil
	default:
		return "", fmt.Errorf("config: invalid backend %q (expected %s|%s|%s|%s)", raw, BackendAuto, BackendScalar, BackendSIMD, BackendBLAS)
	}
}
