package membank

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/hupe1980/membank/resource"
	"golang.org/x/sys/cpu"
)

// defaultBlockBytes bounds a single similarity block when no chunk size
// or memory limit is configured.
const defaultBlockBytes = 64 << 20

// ComputeContext describes where and how similarity work runs.
// It replaces process-global device state: every bank carries its own.
type ComputeContext struct {
	// Workers is the number of similarity blocks processed concurrently.
	// <= 0 means runtime.GOMAXPROCS(0).
	Workers int

	// ChunkSize is the number of query rows per similarity block.
	// <= 0 derives it from the memory limit (or 64 MiB per block).
	ChunkSize int

	// Resources optionally bounds memory, worker slots and IO across every
	// bank sharing the controller.
	Resources *resource.Controller
}

// DefaultComputeContext returns a context using all available CPUs.
func DefaultComputeContext() ComputeContext {
	return ComputeContext{Workers: runtime.GOMAXPROCS(0)}
}

func (c ComputeContext) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// chunkRows returns the number of query rows per block for a bank of n
// rows. The result is always in [1, max(queries, 1)].
func (c ComputeContext) chunkRows(queries, n int) int {
	if queries <= 0 {
		return 1
	}
	rows := c.ChunkSize
	if rows <= 0 {
		budget := int64(defaultBlockBytes)
		if limit := c.Resources.Config().MemoryLimitBytes; limit > 0 {
			budget = limit / int64(max(c.workers(), 1))
		}
		rows = int(budget / (int64(max(n, 1)) * 4))
	}
	if limit := c.Resources.Config().MemoryLimitBytes; limit > 0 {
		rows = min(rows, int(limit/(int64(max(n, 1))*4)))
	}
	return max(1, min(rows, queries))
}

// String describes the context for logs.
func (c ComputeContext) String() string {
	return fmt.Sprintf("workers=%d chunk=%d cpu=[%s]", c.workers(), c.ChunkSize, strings.Join(CPUFeatures(), ","))
}

// CPUFeatures lists the vector extensions reported by the host CPU.
func CPUFeatures() []string {
	var f []string
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasAVX {
			f = append(f, "avx")
		}
		if cpu.X86.HasAVX2 {
			f = append(f, "avx2")
		}
		if cpu.X86.HasFMA {
			f = append(f, "fma")
		}
		if cpu.X86.HasAVX512F {
			f = append(f, "avx512f")
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			f = append(f, "neon")
		}
		if cpu.ARM64.HasSVE {
			f = append(f, "sve")
		}
	}
	return f
}
