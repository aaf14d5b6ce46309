package scene

// Demo returns a small built-in scene: a ground quad under a four-sided
// pyramid. Indices and cells are left empty.
func Demo() *Scene {
	grey := Vec3{0.75, 0.75, 0.75}
	red := Vec3{0.85, 0.25, 0.2}
	blue := Vec3{0.2, 0.35, 0.85}

	g0, g1, g2, g3 := Vec3{-4, -1, -4}, Vec3{4, -1, -4}, Vec3{4, -1, 4}, Vec3{-4, -1, 4}
	apex := Vec3{0, 0.8, 0}
	b0, b1, b2, b3 := Vec3{-1, -1, -1}, Vec3{1, -1, -1}, Vec3{1, -1, 1}, Vec3{-1, -1, 1}

	return &Scene{
		Triangles: []Triangle{
			NewTriangle(g0, g1, g2, grey),
			NewTriangle(g0, g2, g3, grey),
			NewTriangle(b0, b1, apex, red),
			NewTriangle(b1, b2, apex, blue),
			NewTriangle(b2, b3, apex, red),
			NewTriangle(b3, b0, apex, blue),
		},
		Camera: Camera{
			Origin: Vec3{2.5, 1.5, 4},
			LookAt: Vec3{0, -0.2, 0},
			Up:     Vec3{0, 1, 0},
			FOV:    40,
		},
	}
}
