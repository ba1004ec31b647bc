package tensor

import (
	"sync"
	"sync/atomic"
)

// workers controls goroutine parallelism for kernels such as Linear and
// MatMul. Values <= 1 disable parallel execution. Process-wide: it is shared
// by every context, and each SetWorkers call (made by every
// asr.Context.SetThreads) replaces the value for all of them.
var workers atomic.Int32

func init() {
	workers.Store(1)
}

// SetWorkers sets the maximum number of goroutines used by tensor kernels.
// n <= 1 disables kernel parallelism. Must be called before the first
// inference call to take effect reliably; changing it mid-inference is
// undefined behavior, matching the spec's concurrency model.
func SetWorkers(n int) {
	const maxInt32 = int(^uint32(0) >> 1)

	if n < 1 {
		n = 1
	}

	if n > maxInt32 {
		n = maxInt32
	}

	workers.Store(int32(n))
}

// Workers returns the current worker count.
func Workers() int {
	n := int(workers.Load())
	if n < 1 {
		return 1
	}

	return n
}

// parallelFor splits [0,n) into at most maxWorkers contiguous chunks and
// runs fn on each concurrently, joining before returning.
func parallelFor(n, maxWorkers int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}

	if maxWorkers <= 1 || n == 1 {
		fn(0, n)
		return
	}

	if maxWorkers > n {
		maxWorkers = n
	}

	chunk := (n + maxWorkers - 1) / maxWorkers

	var wg sync.WaitGroup

	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}

		wg.Add(1)

		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(lo, hi)
	}

	wg.Wait()
}

// ParallelFor is the exported form used by the engine and ops packages to
// partition work across the same process-wide pool the kernels use.
func ParallelFor(n int, fn func(lo, hi int)) {
	parallelFor(n, Workers(), fn)
}

// scratchPool holds reusable float32 scratch buffers keyed by a size class
// (the next power of two at or above the requested length) to avoid
// per-request heap churn in steady-state decoding.
var scratchPool sync.Map // map[int]*sync.Pool

func scratchClass(n int) int {
	c := 64
	for c < n {
		c <<= 1
	}

	return c
}

func getScratch(n int) []float32 {
	class := scratchClass(n)

	poolAny, _ := scratchPool.LoadOrStore(class, &sync.Pool{
		New: func() any { return make([]float32, class) },
	})

	buf := poolAny.(*sync.Pool).Get().([]float32)

	return buf[:n]
}

func putScratch(buf []float32) {
	class := scratchClass(cap(buf))

	poolAny, ok := scratchPool.Load(class)
	if !ok {
		return
	}

	poolAny.(*sync.Pool).Put(buf[:cap(buf)]) //nolint:staticcheck // reuse full capacity
}
