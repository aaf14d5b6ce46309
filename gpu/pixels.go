package gpu

import (
	"context"
	"fmt"
	"unsafe"
)

// Pixel is one RGBA sample of the output image, laid out as vec4<f32>.
type Pixel struct {
	R, G, B, A float32
}

// PixelMap is an outstanding read-only host view of the pixel buffer.
// The view is valid until it is passed to UnmapPixels.
type PixelMap struct {
	pixels []Pixel
	width  int
	height int
}

// Pixels returns the mapped pixels, row-major. It returns nil once the
// map has been released.
func (m *PixelMap) Pixels() []Pixel { return m.pixels }

func (m *PixelMap) Len() int    { return len(m.pixels) }
func (m *PixelMap) Width() int  { return m.width }
func (m *PixelMap) Height() int { return m.height }

// At returns the pixel at column x, row y.
func (m *PixelMap) At(x, y int) Pixel { return m.pixels[y*m.width+x] }

// MapPixels maps the pixel buffer for reading and blocks until the view is
// available. Only one map may be outstanding.
func (c *Context) MapPixels(ctx context.Context) (*PixelMap, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	if c.mapped != nil {
		return nil, ErrAlreadyMapped
	}
	b := c.buffers[RolePixels]
	if b == nil {
		return nil, fmt.Errorf("%w: no pixel buffer allocated", ErrMapping)
	}

	data, err := c.queue.Map(ctx, b.mem)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMapping, err)
	}
	if uint64(len(data)) < b.size {
		_ = c.queue.Unmap(b.mem)
		return nil, fmt.Errorf("%w: mapped %d bytes, want %d", ErrMapping, len(data), b.size)
	}

	m := &PixelMap{
		pixels: bytesToPixels(data[:b.size]),
		width:  c.width,
		height: c.height,
	}
	c.mapped = m
	return m, nil
}

// UnmapPixels releases m, which must be the handle returned by the
// outstanding MapPixels call. If the device refuses the unmap, m stays
// outstanding and the call may be repeated.
func (c *Context) UnmapPixels(m *PixelMap) error {
	if c.mapped == nil {
		return ErrNotMapped
	}
	if m != c.mapped {
		return ErrMapMismatch
	}
	if err := c.queue.Unmap(c.buffers[RolePixels].mem); err != nil {
		return fmt.Errorf("%w: %w", ErrMapping, err)
	}
	m.pixels = nil
	c.mapped = nil
	return nil
}

// WithPixels maps the pixel buffer, calls fn with the view and unmaps it
// again, also when fn fails. fn must not retain the slice.
func (c *Context) WithPixels(ctx context.Context, fn func([]Pixel) error) (err error) {
	m, err := c.MapPixels(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if uerr := c.UnmapPixels(m); uerr != nil && err == nil {
			err = uerr
		}
	}()
	return fn(m.Pixels())
}

// Mapped reports whether a pixel map is outstanding.
func (c *Context) Mapped() bool { return c.mapped != nil }

func bytesToPixels(b []byte) []Pixel {
	if len(b) < PixelSize {
		return []Pixel{}
	}
	return unsafe.Slice((*Pixel)(unsafe.Pointer(unsafe.SliceData(b))), len(b)/PixelSize)
}
