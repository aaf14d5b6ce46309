package scene

// Plane is the half-space N·p + D >= 0.
type Plane struct {
	N Vec3
	D float32
}

// Frustum is the set of points a camera's primary rays can reach: one near
// plane through the eye and four side planes through the image corners.
// It is open at the far end.
type Frustum struct {
	Planes [5]Plane
}

// Frustum returns the view volume of c for a width×height image.
func (c Camera) Frustum(width, height int) Frustum {
	ll, h, v := c.Frame(width, height)
	o := c.Origin
	corners := [4]Vec3{ll, ll.Add(h), ll.Add(h).Add(v), ll.Add(v)}
	center := ll.Add(h.Scale(0.5)).Add(v.Scale(0.5))
	inward := center.Sub(o)

	var f Frustum
	fwd := c.LookAt.Sub(o).Unit()
	f.Planes[0] = Plane{N: fwd, D: -dot(fwd, o)}
	for i := range 4 {
		a := corners[i].Sub(o)
		b := corners[(i+1)%4].Sub(o)
		n := a.Cross(b)
		if dot(n, inward) < 0 {
			n = n.Scale(-1)
		}
		f.Planes[i+1] = Plane{N: n, D: -dot(n, o)}
	}
	return f
}

// Contains reports whether the box touches the frustum. The test is
// conservative: boxes near an edge may be reported visible.
func (f Frustum) Contains(b Bounds) bool {
	for _, p := range f.Planes {
		// Most positive corner along the plane normal.
		var pv Vec3
		for a := range 3 {
			if p.N[a] < 0 {
				pv[a] = b.Min[a]
			} else {
				pv[a] = b.Max[a]
			}
		}
		if dot(p.N, pv)+p.D < 0 {
			return false
		}
	}
	return true
}

// Cull drops every triangle whose bounding box lies outside f and returns
// how many were dropped. Indices and cells are cleared, so BuildGrid must
// run afterwards. Only valid for kernels that trace primary rays alone.
func (s *Scene) Cull(f Frustum) int {
	kept := s.Triangles[:0]
	for i := range s.Triangles {
		b, _ := TriangleBounds(s.Triangles[i : i+1])
		if f.Contains(b) {
			kept = append(kept, s.Triangles[i])
		}
	}
	dropped := len(s.Triangles) - len(kept)
	s.Triangles = kept
	s.Indices, s.Cells = nil, nil
	return dropped
}

func dot(a, b Vec3) float32 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }
