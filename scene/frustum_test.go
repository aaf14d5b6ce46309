package scene

import "testing"

func box(min, max Vec3) Bounds { return Bounds{Min: min, Max: max} }

func TestFrustumContains(t *testing.T) {
	f := DefaultCamera().Frustum(64, 64)
	tests := []struct {
		name string
		b    Bounds
		want bool
	}{
		{"origin", box(Vec3{-0.1, -0.1, -0.1}, Vec3{0.1, 0.1, 0.1}), true},
		{"far ahead", box(Vec3{0, 0, -500}, Vec3{1, 1, -499}), true},
		{"behind", box(Vec3{-1, -1, 10}, Vec3{1, 1, 11}), false},
		{"right", box(Vec3{100, 0, 0}, Vec3{101, 1, 0}), false},
		{"left", box(Vec3{-101, 0, 0}, Vec3{-100, 1, 0}), false},
		{"above", box(Vec3{0, 100, 0}, Vec3{1, 101, 0}), false},
		{"below", box(Vec3{0, -101, 0}, Vec3{1, -100, 0}), false},
		{"straddles the eye", box(Vec3{-1, -1, 2}, Vec3{1, 1, 4}), true},
		{"straddles an edge", box(Vec3{0, 0, 0}, Vec3{100, 0.1, 0.1}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Contains(tt.b); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.b, got, tt.want)
			}
		})
	}
}

func TestCull(t *testing.T) {
	white := Vec3{1, 1, 1}
	s := &Scene{
		Triangles: []Triangle{
			NewTriangle(Vec3{-1, -1, 0}, Vec3{1, -1, 0}, Vec3{0, 1, 0}, white),
			NewTriangle(Vec3{-1, -1, 10}, Vec3{1, -1, 10}, Vec3{0, 1, 10}, white),
			NewTriangle(Vec3{50, 0, 0}, Vec3{51, 0, 0}, Vec3{50, 1, 0}, white),
			NewTriangle(Vec3{0, 0, -5}, Vec3{1, 0, -5}, Vec3{0, 1, -5}, Vec3{0.5, 0.5, 0.5}),
		},
		Indices: []uint32{0},
		Cells:   []Cell{{Start: 0, Count: 1}},
	}
	first, last := s.Triangles[0], s.Triangles[3]

	if n := s.Cull(DefaultCamera().Frustum(32, 32)); n != 2 {
		t.Fatalf("Cull dropped %d triangles, want 2", n)
	}
	if len(s.Triangles) != 2 || s.Triangles[0] != first || s.Triangles[1] != last {
		t.Errorf("kept triangles = %v", s.Triangles)
	}
	if s.Indices != nil || s.Cells != nil {
		t.Error("Cull should clear the grid")
	}
}

func TestCullKeepsDemo(t *testing.T) {
	s := Demo()
	if n := s.Cull(s.Camera.Frustum(640, 480)); n != 0 {
		t.Errorf("Cull dropped %d demo triangles", n)
	}
}
