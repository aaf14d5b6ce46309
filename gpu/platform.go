package gpu

import (
	"context"

	"github.com/openfluke/lumen/detector"
)

// Platform is a vendor compute runtime handed in by the caller. The context
// never searches for or chooses between platforms.
type Platform interface {
	Name() string
	// Devices enumerates every device of the platform, of any type.
	Devices() ([]Device, error)
	// CreateRuntime associates the device set with a command-submission
	// channel. All later objects are scoped to the returned Runtime.
	CreateRuntime(devices []Device) (Runtime, error)
}

// Device is one physical or virtual compute unit of a platform.
type Device interface {
	Info() detector.Report
}

// Runtime is the execution context over a device set.
type Runtime interface {
	// BuildProgram compiles source for the device set. The returned log is
	// the build log of the first device and may be non-empty on success.
	BuildProgram(source string, devices []Device) (Module, string, error)
	// CreateQueue opens an in-order queue on one device of the set.
	CreateQueue(device Device) (Queue, error)
	CreateMemory(desc MemoryDescriptor) (Memory, error)
	Release()
}

// Module is a compiled program.
type Module interface {
	// EntryPoint extracts a named kernel whose bindings follow layout,
	// indexed by slot.
	EntryPoint(name string, layout []BindingType) (Pipeline, error)
	Release()
}

// Pipeline is a kernel ready for dispatch.
type Pipeline interface {
	Release()
}

// MemoryDescriptor describes a device allocation.
type MemoryDescriptor struct {
	Label    string
	Size     uint64
	Binding  BindingType
	Mappable bool   // host may map it for reading
	Contents []byte // copied in at creation when non-nil; may be shorter than Size
}

// Memory is a region of device memory.
type Memory interface {
	Size() uint64
	Release()
}

// Binding pairs a slot with the memory bound to it for one dispatch.
type Binding struct {
	Slot   Slot
	Memory Memory
}

// Queue is an in-order submission channel to one device. Every call blocks
// until the submitted work has completed.
type Queue interface {
	Write(ctx context.Context, m Memory, data []byte) error
	Dispatch(ctx context.Context, p Pipeline, bindings []Binding, invocations, workgroupSize uint32) error
	// Map returns a read-only host view of m that stays valid until Unmap.
	// A Map that fails, cancellation included, leaves nothing mapped or
	// pending on m.
	Map(ctx context.Context, m Memory) ([]byte, error)
	Unmap(m Memory) error
	Release()
}
