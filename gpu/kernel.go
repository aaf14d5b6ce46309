package gpu

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// minUniformSize pads uniform allocations to one 16-byte row.
const minUniformSize = 16

// Arg is a value bound to a kernel slot: a device buffer or uniform bytes.
type Arg struct {
	buffer  *Buffer
	uniform []byte
}

// BufferArg binds a device buffer.
func BufferArg(b *Buffer) Arg { return Arg{buffer: b} }

// UniformArg binds raw uniform bytes. The bytes are copied to the device
// when the argument is set.
func UniformArg(data []byte) Arg {
	return Arg{uniform: append([]byte(nil), data...)}
}

// Uint32Arg binds a single u32 uniform.
func Uint32Arg(v uint32) Arg {
	return Arg{uniform: binary.LittleEndian.AppendUint32(nil, v)}
}

// Buffer returns the bound buffer, or nil for uniform arguments.
func (a Arg) Buffer() *Buffer { return a.buffer }

// Uniform returns the uniform bytes, or nil for buffer arguments.
func (a Arg) Uniform() []byte { return a.uniform }

func (a Arg) String() string {
	if a.buffer != nil {
		return "buffer(" + a.buffer.role.String() + ")"
	}
	return fmt.Sprintf("uniform(%d bytes)", len(a.uniform))
}

type boundArg struct {
	arg   Arg
	mem   Memory
	owned bool // uniform memory created for this binding
}

// Kernel is the handle to one entry point of the program with its
// positional argument table.
type Kernel struct {
	name      string
	pipeline  Pipeline
	workgroup uint32
	args      [NumSlots]*boundArg
}

func newKernel(name string, p Pipeline, workgroup uint32) *Kernel {
	return &Kernel{name: name, pipeline: p, workgroup: workgroup}
}

// Name returns the entry point name.
func (k *Kernel) Name() string { return k.name }

// WorkgroupSize returns the @workgroup_size the entry point declares.
func (k *Kernel) WorkgroupSize() uint32 { return k.workgroup }

// Arg returns the argument currently bound to slot.
func (k *Kernel) Arg(slot Slot) (Arg, bool) {
	if !slot.Valid() || k.args[slot] == nil {
		return Arg{}, false
	}
	return k.args[slot].arg, true
}

// Unbound lists the slots without an argument.
func (k *Kernel) Unbound() []Slot {
	var out []Slot
	for s := Slot(0); s < NumSlots; s++ {
		if k.args[s] == nil {
			out = append(out, s)
		}
	}
	return out
}

func (k *Kernel) bindings() ([]Binding, error) {
	if missing := k.Unbound(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, s := range missing {
			names[i] = fmt.Sprintf("%d:%s", s, s)
		}
		return nil, fmt.Errorf("unbound kernel slots %s", strings.Join(names, ", "))
	}
	out := make([]Binding, 0, NumSlots)
	for s := Slot(0); s < NumSlots; s++ {
		out = append(out, Binding{Slot: s, Memory: k.args[s].mem})
	}
	return out, nil
}

// set replaces the binding of slot, releasing memory the previous
// binding owned.
func (k *Kernel) set(slot Slot, b *boundArg) {
	k.clear(slot)
	k.args[slot] = b
}

func (k *Kernel) clear(slot Slot) {
	if prev := k.args[slot]; prev != nil && prev.owned {
		prev.mem.Release()
	}
	k.args[slot] = nil
}

func (k *Kernel) release() {
	for s := Slot(0); s < NumSlots; s++ {
		k.clear(s)
	}
	if k.pipeline != nil {
		k.pipeline.Release()
		k.pipeline = nil
	}
}

// SetArgument binds arg to slot. Rebinding a slot replaces the previous
// argument. Buffers must match the access mode the slot is declared with;
// uniform slots take uniform bytes.
func (c *Context) SetArgument(slot Slot, arg Arg) error {
	if err := c.usable(); err != nil {
		return err
	}
	if !slot.Valid() {
		return fmt.Errorf("%w: slot %d outside 0-%d", ErrInvalidArgument, slot, NumSlots-1)
	}

	want := slot.Binding()
	switch {
	case arg.buffer != nil:
		if arg.buffer.mem == nil {
			return fmt.Errorf("%w: %s buffer is released", ErrInvalidArgument, arg.buffer.role)
		}
		if got := arg.buffer.access.binding(); got != want {
			return fmt.Errorf("%w: slot %s expects %s, got %s buffer", ErrInvalidArgument, slot, want, got)
		}
		c.kernel.set(slot, &boundArg{arg: arg, mem: arg.buffer.mem})
	case arg.uniform != nil:
		if want != BindingUniform {
			return fmt.Errorf("%w: slot %s expects %s, got uniform bytes", ErrInvalidArgument, slot, want)
		}
		mem, err := c.runtime.CreateMemory(MemoryDescriptor{
			Label:    "lumen_" + slot.String(),
			Size:     uniformSize(len(arg.uniform)),
			Binding:  BindingUniform,
			Contents: arg.uniform,
		})
		if err != nil {
			return fmt.Errorf("slot %s uniform: %w", slot, err)
		}
		c.kernel.set(slot, &boundArg{arg: arg, mem: mem, owned: true})
	default:
		return fmt.Errorf("%w: empty argument for slot %s", ErrInvalidArgument, slot)
	}

	c.log.WithField("slot", int(slot)).Debugf("bound %s to %s", arg, slot)
	return nil
}

// Argument returns the argument bound to slot.
func (c *Context) Argument(slot Slot) (Arg, bool) {
	if c.kernel == nil {
		return Arg{}, false
	}
	return c.kernel.Arg(slot)
}

func uniformSize(n int) uint64 {
	size := uint64(n+15) &^ 15
	if size < minUniformSize {
		size = minUniformSize
	}
	return size
}
