// Package scene holds the host-side scene containers the render kernel
// reads: triangles, the triangle index list and the grid cells that range
// into it. All byte encodings match the WGSL storage layouts exactly.
package scene

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Record sizes in bytes, as laid out in device memory.
const (
	TriangleSize = 64 // v0, v1, v2, albedo: four vec4<f32>
	IndexSize    = 4  // u32
	CellSize     = 8  // start u32, count u32
)

// Triangle is one surface. The fourth component of each vertex is padding;
// Albedo[3] is unused by the reference kernel.
type Triangle struct {
	V0     [4]float32
	V1     [4]float32
	V2     [4]float32
	Albedo [4]float32
}

// NewTriangle builds a triangle from three points and an RGB albedo.
func NewTriangle(v0, v1, v2, albedo Vec3) Triangle {
	return Triangle{
		V0:     v0.vec4(1),
		V1:     v1.vec4(1),
		V2:     v2.vec4(1),
		Albedo: albedo.vec4(1),
	}
}

func (t Triangle) vertices() [3]Vec3 {
	return [3]Vec3{vec3(t.V0), vec3(t.V1), vec3(t.V2)}
}

// Cell is a contiguous range of the index list.
type Cell struct {
	Start uint32
	Count uint32
}

// Scene is everything the kernel's read-only storage slots are filled from.
// Any of the slices may be empty.
type Scene struct {
	Triangles []Triangle
	Indices   []uint32
	Cells     []Cell

	// Camera is not uploaded by the compute context; the caller binds its
	// uniform to the camera slot.
	Camera Camera
}

// TriangleBytes encodes the triangles little-endian, or returns nil when
// there are none.
func (s *Scene) TriangleBytes() []byte { return encode(s.Triangles) }

// IndexBytes encodes the index list.
func (s *Scene) IndexBytes() []byte { return encode(s.Indices) }

// CellBytes encodes the cells.
func (s *Scene) CellBytes() []byte { return encode(s.Cells) }

func encode[T Triangle | uint32 | Cell](v []T) []byte {
	if len(v) == 0 {
		return nil
	}
	b, err := binary.Append(nil, binary.LittleEndian, v)
	if err != nil {
		// Only fixed-size types reach here.
		panic(err)
	}
	return b
}

var (
	ErrIndexRange = errors.New("index out of range")
	ErrCellRange  = errors.New("cell out of range")
)

// Validate checks that every index names a triangle and every cell stays
// inside the index list.
func (s *Scene) Validate() error {
	var errs []error
	for i, idx := range s.Indices {
		if int(idx) >= len(s.Triangles) {
			errs = append(errs, fmt.Errorf("%w: index %d = %d, %d triangles", ErrIndexRange, i, idx, len(s.Triangles)))
		}
	}
	for i, c := range s.Cells {
		if uint64(c.Start)+uint64(c.Count) > uint64(len(s.Indices)) {
			errs = append(errs, fmt.Errorf("%w: cell %d = [%d,+%d), %d indices", ErrCellRange, i, c.Start, c.Count, len(s.Indices)))
		}
	}
	return errors.Join(errs...)
}
