package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// TempFilesystemCheck probes the working filesystem with a write, read-back
// and delete. A failed write is Unhealthy; a failed cleanup only Degraded.
func TempFilesystemCheck(dir string) Check {
	return NewCheck("temp_filesystem", func(context.Context) (Status, string) {
		if dir == "" {
			dir = os.TempDir()
		}
		path := filepath.Join(dir, fmt.Sprintf(".probe-%d", os.Getpid()))
		if err := os.WriteFile(path, []byte("probe"), 0o600); err != nil {
			return StatusUnhealthy, fmt.Sprintf("temp write failed: %v", err)
		}
		if _, err := os.ReadFile(path); err != nil {
			os.Remove(path)
			return StatusUnhealthy, fmt.Sprintf("temp read failed: %v", err)
		}
		if err := os.Remove(path); err != nil {
			return StatusDegraded, fmt.Sprintf("temp delete failed: %v", err)
		}
		return StatusHealthy, dir
	})
}

// RuntimeResourcesCheck watches heap usage and goroutine count against
// soft ceilings. Zero ceilings disable the respective comparison.
func RuntimeResourcesCheck(maxHeapBytes uint64, maxGoroutines int) Check {
	return NewCheck("runtime_resources", func(context.Context) (Status, string) {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		goroutines := runtime.NumGoroutine()
		detail := fmt.Sprintf("heap=%dMiB goroutines=%d", ms.HeapAlloc/(1<<20), goroutines)

		if maxHeapBytes > 0 && ms.HeapAlloc > maxHeapBytes {
			return StatusDegraded, detail + " (heap over ceiling)"
		}
		if maxGoroutines > 0 && goroutines > maxGoroutines {
			return StatusDegraded, detail + " (goroutines over ceiling)"
		}
		return StatusHealthy, detail
	})
}

// OCRRuntimeCheck verifies the OCR binary is reachable on PATH. Absence is
// Degraded, not Unhealthy: text-layer extraction still works, scanned
// documents fall back to low-confidence paths.
func OCRRuntimeCheck(binary string) Check {
	if binary == "" {
		binary = "tesseract"
	}
	return NewCheck("ocr_runtime", func(context.Context) (Status, string) {
		path, err := exec.LookPath(binary)
		if err != nil {
			return StatusDegraded, fmt.Sprintf("ocr runtime %q not found", binary)
		}
		return StatusHealthy, path
	})
}

// DependencyCheck wraps an external dependency's ping. A failed ping is
// Unhealthy.
func DependencyCheck(name string, ping func(ctx context.Context) error) Check {
	return NewCheck(name, func(ctx context.Context) (Status, string) {
		if err := ping(ctx); err != nil {
			return StatusUnhealthy, err.Error()
		}
		return StatusHealthy, ""
	})
}
