package gpu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openfluke/webgpu/wgpu"

	"github.com/openfluke/lumen/detector"
)

// WebGPUPlatform exposes the adapters of one WebGPU instance.
type WebGPUPlatform struct {
	instance *wgpu.Instance
	adapters []*wgpu.Adapter
}

// NewWebGPUPlatform creates a WebGPU instance. Release it after every
// context built on it has been closed.
func NewWebGPUPlatform() (*WebGPUPlatform, error) {
	inst := wgpu.CreateInstance(nil)
	if inst == nil {
		return nil, errors.New("wgpu.CreateInstance returned nil")
	}
	return &WebGPUPlatform{instance: inst}, nil
}

func (p *WebGPUPlatform) Name() string { return "WebGPU" }

func (p *WebGPUPlatform) Devices() ([]Device, error) {
	if p.adapters == nil {
		p.adapters = p.instance.EnumerateAdapters(nil)
	}
	devices := make([]Device, 0, len(p.adapters))
	for i, a := range p.adapters {
		rep := detector.Describe(a)
		rep.Index = i
		devices = append(devices, &webgpuDevice{adapter: a, report: rep})
	}
	return devices, nil
}

// CreateRuntime opens a logical device on the first adapter of the set.
// WebGPU devices belong to a single adapter, so the rest of the set is
// only reported.
func (p *WebGPUPlatform) CreateRuntime(devices []Device) (Runtime, error) {
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}
	first, ok := devices[0].(*webgpuDevice)
	if !ok {
		return nil, fmt.Errorf("device %T does not belong to this platform", devices[0])
	}
	dev, err := first.adapter.RequestDevice(nil)
	if err != nil {
		return nil, fmt.Errorf("request device on %s: %w", first.report.Name, err)
	}
	return &webgpuRuntime{adapter: first, device: dev, queue: dev.GetQueue()}, nil
}

// Release frees the adapters and the instance.
func (p *WebGPUPlatform) Release() {
	for _, a := range p.adapters {
		a.Release()
	}
	p.adapters = nil
	if p.instance != nil {
		p.instance.Release()
		p.instance = nil
	}
}

type webgpuDevice struct {
	adapter *wgpu.Adapter
	report  detector.Report
}

func (d *webgpuDevice) Info() detector.Report { return d.report }

type webgpuRuntime struct {
	adapter *webgpuDevice
	device  *wgpu.Device
	queue   *wgpu.Queue
}

func (r *webgpuRuntime) BuildProgram(source string, devices []Device) (Module, string, error) {
	module, err := r.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "lumen_Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: source},
	})
	if err != nil {
		return nil, err.Error(), err
	}
	return &webgpuModule{device: r.device, module: module}, "", nil
}

func (r *webgpuRuntime) CreateQueue(device Device) (Queue, error) {
	if device != Device(r.adapter) {
		return nil, errors.New("queue requested on a device outside the runtime")
	}
	return &webgpuQueue{runtime: r}, nil
}

func (r *webgpuRuntime) CreateMemory(desc MemoryDescriptor) (Memory, error) {
	usage := wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst
	if desc.Binding == BindingUniform {
		usage = wgpu.BufferUsageUniform | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst
	}

	var (
		buf *wgpu.Buffer
		err error
	)
	if len(desc.Contents) > 0 {
		contents := desc.Contents
		if uint64(len(contents)) < desc.Size {
			contents = make([]byte, desc.Size)
			copy(contents, desc.Contents)
		}
		buf, err = r.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Label:    desc.Label,
			Contents: contents,
			Usage:    usage,
		})
	} else {
		buf, err = r.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: desc.Label,
			Size:  desc.Size,
			Usage: usage,
		})
	}
	if err != nil {
		return nil, err
	}

	m := &webgpuMemory{buf: buf}
	if desc.Mappable {
		m.staging, err = r.createStaging(desc.Label, buf.GetSize())
		if err != nil {
			buf.Destroy()
			return nil, err
		}
	}
	return m, nil
}

func (r *webgpuRuntime) createStaging(label string, size uint64) (*wgpu.Buffer, error) {
	return r.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label + "_Staging",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
}

func (r *webgpuRuntime) Release() {
	if r.device != nil {
		r.device.Release()
		r.device = nil
	}
}

// waitIdle polls until every submitted command buffer has completed.
func (r *webgpuRuntime) waitIdle(ctx context.Context) error {
	for {
		if r.device.Poll(true, nil) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			time.Sleep(100 * time.Microsecond)
		}
	}
}

type webgpuModule struct {
	device *wgpu.Device
	module *wgpu.ShaderModule
}

func (m *webgpuModule) EntryPoint(name string, layout []BindingType) (Pipeline, error) {
	entries := make([]wgpu.BindGroupLayoutEntry, len(layout))
	for i, b := range layout {
		entries[i] = wgpu.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: wgpu.ShaderStageCompute,
			Buffer:     wgpu.BufferBindingLayout{Type: bufferBindingType(b)},
		}
	}

	// Explicit layout: the slot table is the contract, not what the
	// shader happens to reference.
	bgl, err := m.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   "lumen_BGL",
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create bgl: %w", err)
	}
	pipelineLayout, err := m.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "lumen_Layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{bgl},
	})
	if err != nil {
		bgl.Release()
		return nil, fmt.Errorf("create pipeline layout: %w", err)
	}
	pipeline, err := m.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  "lumen_Pipe",
		Layout: pipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     m.module,
			EntryPoint: name,
		},
	})
	if err != nil {
		pipelineLayout.Release()
		bgl.Release()
		return nil, fmt.Errorf("pipeline create: %w", err)
	}
	return &webgpuPipeline{pipeline: pipeline, pipelineLayout: pipelineLayout, layout: bgl}, nil
}

func (m *webgpuModule) Release() {
	if m.module != nil {
		m.module.Release()
		m.module = nil
	}
}

func bufferBindingType(b BindingType) wgpu.BufferBindingType {
	switch b {
	case BindingReadOnlyStorage:
		return wgpu.BufferBindingTypeReadOnlyStorage
	case BindingUniform:
		return wgpu.BufferBindingTypeUniform
	default:
		return wgpu.BufferBindingTypeStorage
	}
}

// webgpuPipeline owns both layouts; bind groups are created against layout
// on every dispatch, so they live as long as the pipeline.
type webgpuPipeline struct {
	pipeline       *wgpu.ComputePipeline
	pipelineLayout *wgpu.PipelineLayout
	layout         *wgpu.BindGroupLayout
}

func (p *webgpuPipeline) Release() {
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
	if p.pipelineLayout != nil {
		p.pipelineLayout.Release()
		p.pipelineLayout = nil
	}
	if p.layout != nil {
		p.layout.Release()
		p.layout = nil
	}
}

type webgpuMemory struct {
	buf     *wgpu.Buffer
	staging *wgpu.Buffer // persistent map target for Mappable memory
	temp    *wgpu.Buffer // map target of an outstanding Map on other memory
}

func (m *webgpuMemory) Size() uint64 { return m.buf.GetSize() }

func (m *webgpuMemory) Release() {
	for _, b := range []*wgpu.Buffer{m.buf, m.staging, m.temp} {
		if b != nil {
			b.Destroy()
		}
	}
	m.buf, m.staging, m.temp = nil, nil, nil
}

// abandonTimeout bounds the wait for an aborted map callback.
const abandonTimeout = 2 * time.Second

type webgpuQueue struct {
	runtime *webgpuRuntime
}

func asWebGPU(m Memory) (*webgpuMemory, error) {
	wm, ok := m.(*webgpuMemory)
	if !ok || wm.buf == nil {
		return nil, fmt.Errorf("memory %T is not a live WebGPU buffer", m)
	}
	return wm, nil
}

func (q *webgpuQueue) Write(ctx context.Context, m Memory, data []byte) error {
	wm, err := asWebGPU(m)
	if err != nil {
		return err
	}
	if pad := len(data) % 4; pad != 0 {
		data = append(append([]byte(nil), data...), make([]byte, 4-pad)...)
	}
	q.runtime.queue.WriteBuffer(wm.buf, 0, data)
	return q.runtime.waitIdle(ctx)
}

func (q *webgpuQueue) Dispatch(ctx context.Context, p Pipeline, bindings []Binding, invocations, workgroupSize uint32) error {
	wp, ok := p.(*webgpuPipeline)
	if !ok || wp.pipeline == nil {
		return fmt.Errorf("pipeline %T is not a live WebGPU pipeline", p)
	}
	dev := q.runtime.device

	entries := make([]wgpu.BindGroupEntry, 0, len(bindings))
	for _, b := range bindings {
		wm, err := asWebGPU(b.Memory)
		if err != nil {
			return fmt.Errorf("slot %s: %w", b.Slot, err)
		}
		entries = append(entries, wgpu.BindGroupEntry{Binding: uint32(b.Slot), Buffer: wm.buf, Size: wm.buf.GetSize()})
	}
	bindGroup, err := dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   "lumen_Bind",
		Layout:  wp.layout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create bind group: %w", err)
	}
	defer bindGroup.Release()

	enc, err := dev.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	pass := enc.BeginComputePass(nil)
	pass.SetPipeline(wp.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(Workgroups(invocations, workgroupSize), 1, 1)
	pass.End()

	cmd, err := enc.Finish(nil)
	if err != nil {
		return fmt.Errorf("finish command: %w", err)
	}
	q.runtime.queue.Submit(cmd)
	return q.runtime.waitIdle(ctx)
}

// Map copies the storage buffer into its map-readable mirror and maps the
// mirror. Memory without a persistent mirror gets a temporary one that
// Unmap destroys.
func (q *webgpuQueue) Map(ctx context.Context, m Memory) ([]byte, error) {
	wm, err := asWebGPU(m)
	if err != nil {
		return nil, err
	}
	if wm.temp != nil {
		return nil, errors.New("buffer already mapped")
	}
	dev := q.runtime.device
	size := wm.buf.GetSize()

	target := wm.staging
	if target == nil {
		target, err = q.runtime.createStaging("lumen_Read", size)
		if err != nil {
			return nil, fmt.Errorf("failed to create staging buffer: %w", err)
		}
		wm.temp = target
	}

	enc, err := dev.CreateCommandEncoder(nil)
	if err != nil {
		q.dropTemp(wm)
		return nil, fmt.Errorf("failed to create command encoder: %w", err)
	}
	enc.CopyBufferToBuffer(wm.buf, 0, target, 0, size)
	cmd, err := enc.Finish(nil)
	if err != nil {
		q.dropTemp(wm)
		return nil, fmt.Errorf("failed to finish command: %w", err)
	}
	q.runtime.queue.Submit(cmd)

	done := make(chan struct{})
	var mapErr error
	err = target.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("map failed: %v", status)
		}
		close(done)
	})
	if err != nil {
		q.dropTemp(wm)
		return nil, fmt.Errorf("MapAsync failed: %w", err)
	}

Loop:
	for {
		dev.Poll(false, nil)
		select {
		case <-done:
			break Loop
		case <-ctx.Done():
			q.abandonMap(wm, target, done)
			return nil, ctx.Err()
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if mapErr != nil {
		q.dropTemp(wm)
		return nil, mapErr
	}

	data := target.GetMappedRange(0, uint(size))
	if data == nil {
		target.Unmap()
		q.dropTemp(wm)
		return nil, errors.New("failed to get mapped range")
	}
	return data, nil
}

// abandonMap cancels a pending MapAsync on target and waits for its
// callback, so the buffer can be mapped again.
func (q *webgpuQueue) abandonMap(wm *webgpuMemory, target *wgpu.Buffer, done <-chan struct{}) {
	target.Unmap()
	deadline := time.Now().Add(abandonTimeout)
	for time.Now().Before(deadline) {
		q.runtime.device.Poll(false, nil)
		select {
		case <-done:
			q.dropTemp(wm)
			return
		default:
			time.Sleep(time.Millisecond)
		}
	}
	// Destroying the temporary buffer also aborts its map.
	q.dropTemp(wm)
}

func (q *webgpuQueue) Unmap(m Memory) error {
	wm, err := asWebGPU(m)
	if err != nil {
		return err
	}
	switch {
	case wm.temp != nil:
		wm.temp.Unmap()
		q.dropTemp(wm)
	case wm.staging != nil:
		wm.staging.Unmap()
	default:
		return errors.New("buffer is not mapped")
	}
	return nil
}

func (q *webgpuQueue) dropTemp(wm *webgpuMemory) {
	if wm.temp != nil {
		wm.temp.Destroy()
		wm.temp = nil
	}
}

// Release is a no-op: the queue belongs to the device and goes with it.
func (q *webgpuQueue) Release() {}
