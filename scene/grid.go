package scene

import "fmt"

// Bounds is an axis-aligned box.
type Bounds struct {
	Min, Max Vec3
}

// TriangleBounds returns the box around every triangle. ok is false for an
// empty list.
func TriangleBounds(tris []Triangle) (b Bounds, ok bool) {
	for i, t := range tris {
		for j, v := range t.vertices() {
			if i == 0 && j == 0 {
				b = Bounds{Min: v, Max: v}
				continue
			}
			b.Min = minVec(b.Min, v)
			b.Max = maxVec(b.Max, v)
		}
	}
	return b, len(tris) > 0
}

// MaxGridResolution bounds BuildGrid: 128³ cells is a 16 MiB cell buffer.
const MaxGridResolution = 128

// BuildGrid partitions the scene bounds into resolution³ cells and fills
// Indices and Cells so that each cell lists the triangles whose bounding
// box touches it. Cells are ordered x fastest, then y, then z. A triangle
// spanning several cells is listed once per cell.
func (s *Scene) BuildGrid(resolution int) error {
	if resolution <= 0 {
		return fmt.Errorf("grid resolution must be positive, got %d", resolution)
	}
	if resolution > MaxGridResolution {
		return fmt.Errorf("grid resolution %d above %d", resolution, MaxGridResolution)
	}
	s.Indices = s.Indices[:0]
	s.Cells = s.Cells[:0]

	bounds, ok := TriangleBounds(s.Triangles)
	if !ok {
		return nil
	}

	r := resolution
	buckets := make([][]uint32, r*r*r)
	for ti := range s.Triangles {
		tb, _ := TriangleBounds(s.Triangles[ti : ti+1])
		lo := cellCoord(bounds, tb.Min, r)
		hi := cellCoord(bounds, tb.Max, r)
		for z := lo[2]; z <= hi[2]; z++ {
			for y := lo[1]; y <= hi[1]; y++ {
				for x := lo[0]; x <= hi[0]; x++ {
					k := x + y*r + z*r*r
					buckets[k] = append(buckets[k], uint32(ti))
				}
			}
		}
	}

	s.Cells = make([]Cell, len(buckets))
	for k, bucket := range buckets {
		s.Cells[k] = Cell{Start: uint32(len(s.Indices)), Count: uint32(len(bucket))}
		s.Indices = append(s.Indices, bucket...)
	}
	return nil
}

// cellCoord maps p to integer cell coordinates, clamped into the grid.
func cellCoord(b Bounds, p Vec3, r int) [3]int {
	var c [3]int
	for a := range 3 {
		extent := b.Max[a] - b.Min[a]
		if extent <= 0 {
			continue
		}
		i := int((p[a] - b.Min[a]) / extent * float32(r))
		c[a] = min(max(i, 0), r-1)
	}
	return c
}
