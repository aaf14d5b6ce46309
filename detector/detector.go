package detector

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/openfluke/webgpu/wgpu"
)

/* ---------- public API ---------- */

// Report is a portable summary of one adapter's caps.
type Report struct {
	Index       int               `json:"index"`
	WhenISO     string            `json:"when_iso"`
	Runtime     string            `json:"runtime"` // host GOOS/GOARCH
	Backend     string            `json:"backend"`
	AdapterType string            `json:"adapter_type"`
	VendorID    string            `json:"vendor_id_hex"`
	DeviceID    string            `json:"device_id_hex"`
	Name        string            `json:"name"`
	Driver      string            `json:"driver"`
	Recommended Recommendations   `json:"recommended"`
	Limits      Limits            `json:"limits"`
	Features    []string          `json:"features"`
	Env         map[string]string `json:"env,omitempty"`
}

type Limits struct {
	MaxComputeInvocationsPerWorkgroup uint32 `json:"max_compute_invocations_per_workgroup"`
	MaxComputeWorkgroupSizeX          uint32 `json:"max_compute_workgroup_size_x"`
	MaxComputeWorkgroupSizeY          uint32 `json:"max_compute_workgroup_size_y"`
	MaxComputeWorkgroupSizeZ          uint32 `json:"max_compute_workgroup_size_z"`
	MaxComputeWorkgroupsPerDimension  uint32 `json:"max_compute_workgroups_per_dimension"`
	MaxComputeWorkgroupStorageSize    uint32 `json:"max_compute_workgroup_storage_size"`
	MaxStorageBufferBindingSize       uint64 `json:"max_storage_buffer_binding_size"`
	MaxBufferSize                     uint64 `json:"max_buffer_size"`
}

type Recommendations struct {
	// Conservative 1D workgroup that should run everywhere.
	WorkgroupX uint32 `json:"workgroup_x"`
	WorkgroupY uint32 `json:"workgroup_y"`
	WorkgroupZ uint32 `json:"workgroup_z"`

	// Largest square image one 1D dispatch of WorkgroupX can cover.
	MaxSquareImage uint32 `json:"max_square_image"`

	// Soft VRAM/heap budget in bytes for staging + temps.
	BudgetBytes uint64 `json:"budget_bytes"`
}

// Summary is a one-line description for listings.
func (r Report) Summary() string {
	return fmt.Sprintf("%s [%s/%s, vendor %s]", r.Name, r.Backend, r.AdapterType, r.VendorID)
}

// DetectJSON queries every adapter and returns the reports as JSON.
func DetectJSON() (string, error) {
	reps, err := Detect()
	if err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(reps, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Detect enumerates the adapters of a fresh instance and describes each.
func Detect() ([]Report, error) {
	inst := wgpu.CreateInstance(nil)
	if inst == nil {
		return nil, fmt.Errorf("wgpu.CreateInstance returned nil")
	}
	defer inst.Release()

	adapters := inst.EnumerateAdapters(nil)
	reps := make([]Report, 0, len(adapters))
	for i, a := range adapters {
		rep := Describe(a)
		rep.Index = i
		reps = append(reps, rep)
		a.Release()
	}
	return reps, nil
}

// Describe synthesizes a report for one adapter without opening a device.
func Describe(adapter *wgpu.Adapter) Report {
	// ✅ Most forks expose GetInfo(), not GetAdapterInfo()/GetProperties()
	info := adapter.GetInfo()
	supported := adapter.GetLimits()

	var feats []string
	for _, f := range adapter.EnumerateFeatures() {
		feats = append(feats, featureName(f))
	}

	limits := Limits{
		MaxComputeInvocationsPerWorkgroup: supported.Limits.MaxComputeInvocationsPerWorkgroup,
		MaxComputeWorkgroupSizeX:          supported.Limits.MaxComputeWorkgroupSizeX,
		MaxComputeWorkgroupSizeY:          supported.Limits.MaxComputeWorkgroupSizeY,
		MaxComputeWorkgroupSizeZ:          supported.Limits.MaxComputeWorkgroupSizeZ,
		MaxComputeWorkgroupsPerDimension:  supported.Limits.MaxComputeWorkgroupsPerDimension,
		MaxComputeWorkgroupStorageSize:    supported.Limits.MaxComputeWorkgroupStorageSize,
		MaxStorageBufferBindingSize:       supported.Limits.MaxStorageBufferBindingSize,
		MaxBufferSize:                     supported.Limits.MaxBufferSize,
	}

	return Report{
		WhenISO:     time.Now().UTC().Format(time.RFC3339),
		Runtime:     detectRuntime(),
		Backend:     backendName(info.BackendType),
		AdapterType: adapterTypeName(info.AdapterType),
		VendorID:    fmt.Sprintf("0x%04x", info.VendorId),
		DeviceID:    fmt.Sprintf("0x%04x", info.DeviceId),
		Name:        strings.TrimSpace(info.Name),
		Driver:      strings.TrimSpace(info.DriverDescription),
		Limits:      limits,
		Features:    feats,
		Recommended: Recommend(limits),
		Env:         pickEnv([]string{"LUMEN_BUDGET_MB"}),
	}
}

// Recommend derives dispatch hints from the limits.
func Recommend(l Limits) Recommendations {
	wgX, wgY, wgZ := chooseWorkgroup(l)

	budget := uint64(128 * 1024 * 1024)
	if mbStr := os.Getenv("LUMEN_BUDGET_MB"); mbStr != "" {
		if mb, err := strconv.Atoi(mbStr); err == nil && mb > 0 {
			budget = uint64(mb) * 1024 * 1024
		}
	}

	return Recommendations{
		WorkgroupX: wgX, WorkgroupY: wgY, WorkgroupZ: wgZ,
		MaxSquareImage: MaxSquareImage(l, wgX),
		BudgetBytes:    budget,
	}
}

/* ---------- helpers ---------- */

func chooseWorkgroup(l Limits) (uint32, uint32, uint32) {
	maxX := l.MaxComputeWorkgroupSizeX
	maxTot := l.MaxComputeInvocationsPerWorkgroup

	candidates := []uint32{256, 128, 64, 32, 16, 8, 4, 1}
	for _, c := range candidates {
		if c <= maxX && c <= maxTot {
			return c, 1, 1
		}
	}
	// absolute portability fallback
	return 1, 1, 1
}

// MaxSquareImage is the side of the largest square image whose pixel count
// fits one dimension of workgroups of wgX invocations.
func MaxSquareImage(l Limits, wgX uint32) uint32 {
	total := uint64(l.MaxComputeWorkgroupsPerDimension) * uint64(wgX)
	if total == 0 {
		return 0
	}
	side := uint64(math.Sqrt(float64(total)))
	for side*side > total {
		side--
	}
	return uint32(side)
}

func featureName(f wgpu.FeatureName) string     { return f.String() }
func backendName(b wgpu.BackendType) string     { return b.String() }
func adapterTypeName(t wgpu.AdapterType) string { return t.String() }

func detectRuntime() string { return runtime.GOOS + "/" + runtime.GOARCH }

func pickEnv(keys []string) map[string]string {
	out := map[string]string{}
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
