package scene

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// File is the on-disk scene description.
type File struct {
	Camera    *Camera        `json:"camera,omitempty"`
	Triangles []TriangleJSON `json:"triangles"`
}

type TriangleJSON struct {
	V0     Vec3 `json:"v0"`
	V1     Vec3 `json:"v1"`
	V2     Vec3 `json:"v2"`
	Albedo Vec3 `json:"albedo"`
}

// Decode reads a scene description. Indices and cells are left empty; call
// BuildGrid to fill them.
func Decode(r io.Reader) (*Scene, error) {
	var f File
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode scene: %w", err)
	}

	s := &Scene{
		Triangles: make([]Triangle, 0, len(f.Triangles)),
		Camera:    DefaultCamera(),
	}
	if f.Camera != nil {
		s.Camera = *f.Camera
	}
	for _, t := range f.Triangles {
		s.Triangles = append(s.Triangles, NewTriangle(t.V0, t.V1, t.V2, t.Albedo))
	}
	return s, nil
}

// Load reads the scene file at path. Like Decode it leaves the grid empty.
func Load(path string) (*Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}
