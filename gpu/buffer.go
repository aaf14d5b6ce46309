package gpu

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/openfluke/lumen/scene"
)

// Element sizes of the per-pixel buffers.
const (
	PixelSize = 16 // vec4<f32>
	SeedSize  = 4  // i32
)

// minStorageSize is the smallest device allocation for a storage buffer:
// one triangle record, so an empty scene still binds a whole element.
const minStorageSize = scene.TriangleSize

// Role names one of the five device buffers owned by the context.
type Role uint8

const (
	RolePixels Role = iota
	RoleRandom
	RoleScene
	RoleIndices
	RoleCells

	numRoles
)

func (r Role) String() string {
	switch r {
	case RolePixels:
		return "pixel"
	case RoleRandom:
		return "random"
	case RoleScene:
		return "scene"
	case RoleIndices:
		return "index"
	case RoleCells:
		return "cell"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// Slot returns the kernel slot the buffer is bound to by SetupBuffers.
func (r Role) Slot() Slot {
	switch r {
	case RolePixels:
		return SlotPixels
	case RoleRandom:
		return SlotRandom
	case RoleScene:
		return SlotScene
	case RoleIndices:
		return SlotIndices
	default:
		return SlotCells
	}
}

// Access is the kernel-side access mode of a buffer.
type Access uint8

const (
	ReadWrite Access = iota
	ReadOnly
)

func (a Access) String() string {
	if a == ReadWrite {
		return "read-write"
	}
	return "read-only"
}

func (a Access) binding() BindingType {
	if a == ReadWrite {
		return BindingStorage
	}
	return BindingReadOnlyStorage
}

// Buffer is a device allocation with a fixed size and access mode.
type Buffer struct {
	role   Role
	access Access
	size   uint64
	mem    Memory
}

func (b *Buffer) Role() Role     { return b.role }
func (b *Buffer) Access() Access { return b.access }

// Size is the logical size in bytes derived from host data. The device
// allocation may be larger, see DeviceSize.
func (b *Buffer) Size() uint64 { return b.size }

// DeviceSize is the size of the underlying allocation.
func (b *Buffer) DeviceSize() uint64 {
	if b.mem == nil {
		return 0
	}
	return b.mem.Size()
}

// Buffer returns the buffer allocated for role, or nil.
func (c *Context) Buffer(role Role) *Buffer {
	if role >= numRoles {
		return nil
	}
	return c.buffers[role]
}

// SetupBuffers allocates the five device buffers for s and binds the core
// kernel slots. Previously allocated buffers are released first. Every
// allocation and binding is attempted even when an earlier one fails; the
// returned error joins the failures of this call.
func (c *Context) SetupBuffers(s *scene.Scene) error {
	if err := c.usable(); err != nil {
		return err
	}
	if c.mapped != nil {
		return fmt.Errorf("%w: unmap pixels before replacing buffers", ErrMapping)
	}
	if s == nil {
		s = &scene.Scene{}
	}

	c.releaseBuffers()
	before := len(c.failures)
	n := uint64(c.PixelCount())

	c.allocate(RolePixels, ReadWrite, n*PixelSize, nil)
	c.allocate(RoleRandom, ReadOnly, n*SeedSize, c.seeds(int(n)))
	c.allocate(RoleScene, ReadOnly, uint64(len(s.Triangles))*scene.TriangleSize, s.TriangleBytes())
	c.allocate(RoleIndices, ReadOnly, uint64(len(s.Indices))*scene.IndexSize, s.IndexBytes())
	c.allocate(RoleCells, ReadOnly, uint64(len(s.Cells))*scene.CellSize, s.CellBytes())

	c.bindBuffer(RolePixels)
	c.bindBuffer(RoleRandom)
	c.bindValue(SlotWidth, Uint32Arg(uint32(c.width)))
	c.bindValue(SlotHeight, Uint32Arg(uint32(c.height)))
	c.bindBuffer(RoleScene)
	c.bindBuffer(RoleIndices)
	c.bindBuffer(RoleCells)

	if len(c.failures) == before {
		c.log.WithField("triangles", len(s.Triangles)).
			WithField("indices", len(s.Indices)).
			WithField("cells", len(s.Cells)).
			Debug("buffers ready")
		return nil
	}
	errs := make([]error, 0, len(c.failures)-before)
	for _, f := range c.failures[before:] {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// seeds returns one pseudo-random non-negative integer per pixel. The slice
// lives only until the random buffer has copied it.
func (c *Context) seeds(n int) []byte {
	var rng *rand.Rand
	if c.opts.seeded {
		rng = rand.New(rand.NewPCG(c.opts.seed, c.opts.seed^0x9e3779b97f4a7c15))
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	out := make([]byte, 0, n*SeedSize)
	for i := 0; i < n; i++ {
		out = binary.LittleEndian.AppendUint32(out, uint32(rng.Int32()))
	}
	return out
}

func (c *Context) allocate(role Role, access Access, size uint64, contents []byte) {
	step := "buffer:" + role.String()
	if limit := c.devices[0].Info().Limits.MaxStorageBufferBindingSize; limit != 0 && size > limit {
		c.fail(step, KindAllocation, fmt.Sprintf("Cannot create %s buffer: %d bytes exceeds binding limit %d", role, size, limit), nil)
		return
	}

	mem, err := c.runtime.CreateMemory(MemoryDescriptor{
		Label:    "lumen_" + role.String(),
		Size:     deviceSize(size),
		Binding:  access.binding(),
		Mappable: role == RolePixels,
		Contents: contents,
	})
	if err != nil {
		c.fail(step, KindAllocation, fmt.Sprintf("Cannot create %s buffer (%d bytes)", role, size), err)
		return
	}
	c.buffers[role] = &Buffer{role: role, access: access, size: size, mem: mem}
}

func (c *Context) bindBuffer(role Role) {
	slot := role.Slot()
	b := c.buffers[role]
	if b == nil {
		c.fail("bind:"+slot.String(), KindBinding, role.String()+" buffer was not allocated", nil)
		return
	}
	c.kernel.set(slot, &boundArg{arg: BufferArg(b), mem: b.mem})
}

func (c *Context) bindValue(slot Slot, arg Arg) {
	mem, err := c.runtime.CreateMemory(MemoryDescriptor{
		Label:    "lumen_" + slot.String(),
		Size:     uniformSize(len(arg.uniform)),
		Binding:  BindingUniform,
		Contents: arg.uniform,
	})
	if err != nil {
		c.fail("bind:"+slot.String(), KindBinding, "cannot upload uniform", err)
		return
	}
	c.kernel.set(slot, &boundArg{arg: arg, mem: mem, owned: true})
}

func deviceSize(size uint64) uint64 {
	size = (size + 3) &^ 3
	if size < minStorageSize {
		size = minStorageSize
	}
	return size
}

// releaseBuffers unbinds the core slots and frees the five buffers.
// Collaborator slots keep their arguments.
func (c *Context) releaseBuffers() {
	if c.kernel != nil {
		for _, s := range CoreSlots() {
			c.kernel.clear(s)
		}
	}
	for i, b := range c.buffers {
		if b == nil {
			continue
		}
		b.mem.Release()
		b.mem = nil
		c.buffers[i] = nil
	}
}

// WriteBuffer copies data into the start of the buffer for role and waits
// for the transfer to finish.
func (c *Context) WriteBuffer(ctx context.Context, role Role, data []byte) error {
	if err := c.usable(); err != nil {
		return err
	}
	b := c.Buffer(role)
	if b == nil {
		return fmt.Errorf("%w: no %s buffer allocated", ErrInvalidArgument, role)
	}
	if uint64(len(data)) > b.size {
		return fmt.Errorf("%w: %d bytes do not fit the %d byte %s buffer", ErrInvalidArgument, len(data), b.size, role)
	}
	if role == RolePixels && c.mapped != nil {
		return ErrAlreadyMapped
	}
	if len(data) == 0 {
		return nil
	}
	if err := c.queue.Write(ctx, b.mem, data); err != nil {
		return fmt.Errorf("write %s buffer: %w", role, err)
	}
	return nil
}

// ReadBuffer copies the logical contents of the buffer for role back to
// the host.
func (c *Context) ReadBuffer(ctx context.Context, role Role) ([]byte, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	b := c.Buffer(role)
	if b == nil {
		return nil, fmt.Errorf("%w: no %s buffer allocated", ErrInvalidArgument, role)
	}
	if role == RolePixels && c.mapped != nil {
		return nil, ErrAlreadyMapped
	}

	data, err := c.queue.Map(ctx, b.mem)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s buffer: %w", ErrMapping, role, err)
	}
	if uint64(len(data)) < b.size {
		_ = c.queue.Unmap(b.mem)
		return nil, fmt.Errorf("%w: mapped %d bytes of the %d byte %s buffer", ErrMapping, len(data), b.size, role)
	}
	out := make([]byte, b.size)
	copy(out, data)
	if err := c.queue.Unmap(b.mem); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMapping, err)
	}
	return out, nil
}
