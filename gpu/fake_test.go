package gpu

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"strings"

	"github.com/openfluke/lumen/detector"
)

// fakePlatform stands in for a driver. It counts every device-touching call
// and runs a trivial kernel that writes (gid, 0, 0, 1) into the pixel slot.
type fakePlatform struct {
	devices []Device
	calls   map[string]int

	devicesErr  error
	runtimeErr  error
	buildErr    error
	buildLog    string
	entryErr    error
	queueErr    error
	dispatchErr error
	unmapErr    error
	memErr      func(MemoryDescriptor) error

	memories  []*fakeMemory
	pipelines []*fakePipeline
	last      []Binding // bindings of the most recent dispatch
	workgroup uint32    // workgroup size of the most recent dispatch
	invoked   int       // kernel invocations that passed the bounds check
}

func newFakePlatform(n int) *fakePlatform {
	p := &fakePlatform{calls: map[string]int{}}
	for i := range n {
		p.devices = append(p.devices, &fakeDevice{report: detector.Report{
			Index:   i,
			Name:    "fake-" + string(rune('a'+i)),
			Backend: "Null",
			Limits: detector.Limits{
				MaxComputeWorkgroupSizeX:         256,
				MaxComputeWorkgroupsPerDimension: 65535,
				MaxStorageBufferBindingSize:      1 << 27,
			},
		}})
	}
	return p
}

func (p *fakePlatform) Name() string { return "fake" }

func (p *fakePlatform) Devices() ([]Device, error) {
	p.calls["Devices"]++
	if p.devicesErr != nil {
		return nil, p.devicesErr
	}
	return p.devices, nil
}

func (p *fakePlatform) CreateRuntime(devices []Device) (Runtime, error) {
	p.calls["CreateRuntime"]++
	if p.runtimeErr != nil {
		return nil, p.runtimeErr
	}
	return &fakeRuntime{p: p}, nil
}

// live returns the memories that have not been released.
func (p *fakePlatform) live() int {
	n := 0
	for _, m := range p.memories {
		if !m.released {
			n++
		}
	}
	return n
}

type fakeDevice struct{ report detector.Report }

func (d *fakeDevice) Info() detector.Report { return d.report }

type fakeRuntime struct{ p *fakePlatform }

func (r *fakeRuntime) BuildProgram(source string, devices []Device) (Module, string, error) {
	r.p.calls["BuildProgram"]++
	if r.p.buildErr != nil {
		return nil, r.p.buildLog, r.p.buildErr
	}
	return &fakeModule{p: r.p}, r.p.buildLog, nil
}

func (r *fakeRuntime) CreateQueue(device Device) (Queue, error) {
	r.p.calls["CreateQueue"]++
	if r.p.queueErr != nil {
		return nil, r.p.queueErr
	}
	return &fakeQueue{p: r.p}, nil
}

func (r *fakeRuntime) CreateMemory(desc MemoryDescriptor) (Memory, error) {
	r.p.calls["CreateMemory"]++
	if r.p.memErr != nil {
		if err := r.p.memErr(desc); err != nil {
			return nil, err
		}
	}
	m := &fakeMemory{desc: desc, data: make([]byte, desc.Size)}
	copy(m.data, desc.Contents)
	r.p.memories = append(r.p.memories, m)
	return m, nil
}

func (r *fakeRuntime) Release() { r.p.calls["ReleaseRuntime"]++ }

type fakeModule struct{ p *fakePlatform }

func (m *fakeModule) EntryPoint(name string, layout []BindingType) (Pipeline, error) {
	m.p.calls["EntryPoint"]++
	if m.p.entryErr != nil {
		return nil, m.p.entryErr
	}
	if name != EntryPoint || len(layout) != int(NumSlots) {
		return nil, errors.New("unexpected entry point or layout")
	}
	fp := &fakePipeline{}
	m.p.pipelines = append(m.p.pipelines, fp)
	return fp, nil
}

func (m *fakeModule) Release() {}

type fakePipeline struct{ released bool }

func (p *fakePipeline) Release() { p.released = true }

type fakeMemory struct {
	desc     MemoryDescriptor
	data     []byte
	mapped   bool
	released bool
}

func (m *fakeMemory) Size() uint64 { return uint64(len(m.data)) }
func (m *fakeMemory) Release()     { m.released = true }

// uint32At decodes the little-endian u32 at the start of a uniform.
func (m *fakeMemory) uint32At() uint32 { return binary.LittleEndian.Uint32(m.data) }

type fakeQueue struct{ p *fakePlatform }

func (q *fakeQueue) Write(ctx context.Context, m Memory, data []byte) error {
	q.p.calls["Write"]++
	fm := m.(*fakeMemory)
	if fm.released {
		return errors.New("write to released memory")
	}
	copy(fm.data, data)
	return nil
}

func (q *fakeQueue) Dispatch(ctx context.Context, p Pipeline, bindings []Binding, invocations, workgroupSize uint32) error {
	q.p.calls["Dispatch"]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if q.p.dispatchErr != nil {
		return q.p.dispatchErr
	}
	q.p.last = bindings
	q.p.workgroup = workgroupSize

	var pixels *fakeMemory
	for _, b := range bindings {
		fm := b.Memory.(*fakeMemory)
		if fm.released {
			return errors.New("dispatch with released memory in slot " + b.Slot.String())
		}
		if b.Slot == SlotPixels {
			pixels = fm
		}
	}
	total := Workgroups(invocations, workgroupSize) * workgroupSize
	for gid := range total {
		if gid >= invocations {
			continue
		}
		q.p.invoked++
		o := int(gid) * PixelSize
		binary.LittleEndian.PutUint32(pixels.data[o:], math.Float32bits(float32(gid)))
		binary.LittleEndian.PutUint32(pixels.data[o+12:], math.Float32bits(1))
	}
	return nil
}

func (q *fakeQueue) Map(ctx context.Context, m Memory) ([]byte, error) {
	q.p.calls["Map"]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fm := m.(*fakeMemory)
	if fm.mapped {
		return nil, errors.New("memory already mapped")
	}
	fm.mapped = true
	return fm.data, nil
}

func (q *fakeQueue) Unmap(m Memory) error {
	q.p.calls["Unmap"]++
	if q.p.unmapErr != nil {
		return q.p.unmapErr
	}
	fm := m.(*fakeMemory)
	if !fm.mapped {
		return errors.New("memory not mapped")
	}
	fm.mapped = false
	return nil
}

func (q *fakeQueue) Release() {}

// testSource declares the entry point; the fake runtime never compiles it.
const testSource = "@compute @workgroup_size(64) fn main() {}"

func memoryLabelled(label string) func(MemoryDescriptor) error {
	return func(d MemoryDescriptor) error {
		if strings.HasSuffix(d.Label, label) {
			return errors.New("out of device memory")
		}
		return nil
	}
}
