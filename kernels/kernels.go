// Package kernels embeds the WGSL compute kernels shipped with lumen.
package kernels

import (
	_ "embed"
	"fmt"
	"os"
)

//go:embed raytrace.wgsl
var rayTraceWGSL string

// WorkgroupSize must match @workgroup_size in the embedded kernels.
const WorkgroupSize = 64

// RayTrace returns the reference progressive ray-tracing kernel.
func RayTrace() string { return rayTraceWGSL }

// Source returns the kernel at path, or the embedded ray tracer when path
// is empty.
func Source(path string) (string, error) {
	if path == "" {
		return rayTraceWGSL, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read kernel: %w", err)
	}
	return string(b), nil
}
