package scene

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestByteLayouts(t *testing.T) {
	s := &Scene{
		Triangles: []Triangle{{V0: [4]float32{1, 2, 3, 4}}},
		Indices:   []uint32{7, 0x01020304},
		Cells:     []Cell{{Start: 1, Count: 2}},
	}

	tri := s.TriangleBytes()
	if len(tri) != TriangleSize {
		t.Fatalf("triangle bytes = %d, want %d", len(tri), TriangleSize)
	}
	if diff := cmp.Diff([]byte{0x00, 0x00, 0x80, 0x3f}, tri[:4]); diff != "" {
		t.Errorf("v0.x encoding mismatch (-want +got):\n%s", diff)
	}

	want := []byte{7, 0, 0, 0, 4, 3, 2, 1}
	if diff := cmp.Diff(want, s.IndexBytes()); diff != "" {
		t.Errorf("index bytes mismatch (-want +got):\n%s", diff)
	}
	want = []byte{1, 0, 0, 0, 2, 0, 0, 0}
	if diff := cmp.Diff(want, s.CellBytes()); diff != "" {
		t.Errorf("cell bytes mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptySceneEncodesNil(t *testing.T) {
	var s Scene
	if s.TriangleBytes() != nil || s.IndexBytes() != nil || s.CellBytes() != nil {
		t.Error("empty containers should encode to nil")
	}
	if err := s.Validate(); err != nil {
		t.Errorf("empty scene: %v", err)
	}
}

func TestValidate(t *testing.T) {
	s := &Scene{
		Triangles: make([]Triangle, 2),
		Indices:   []uint32{0, 1, 2},
		Cells:     []Cell{{Start: 0, Count: 3}, {Start: 2, Count: 2}},
	}
	err := s.Validate()
	if !errors.Is(err, ErrIndexRange) {
		t.Errorf("want ErrIndexRange, got %v", err)
	}
	if !errors.Is(err, ErrCellRange) {
		t.Errorf("want ErrCellRange, got %v", err)
	}
}

func TestBuildGrid(t *testing.T) {
	s := &Scene{Triangles: []Triangle{
		NewTriangle(Vec3{0, 0, 0}, Vec3{1, 0, 0}, Vec3{0, 1, 0}, Vec3{1, 1, 1}),
		NewTriangle(Vec3{3, 0, 0}, Vec3{4, 0, 0}, Vec3{4, 1, 0}, Vec3{1, 1, 1}),
	}}
	if err := s.BuildGrid(2); err != nil {
		t.Fatal(err)
	}

	wantCells := []Cell{
		{0, 1}, {1, 1}, {2, 1}, {3, 1},
		{4, 0}, {4, 0}, {4, 0}, {4, 0},
	}
	if diff := cmp.Diff(wantCells, s.Cells); diff != "" {
		t.Errorf("cells mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint32{0, 1, 0, 1}, s.Indices); diff != "" {
		t.Errorf("indices mismatch (-want +got):\n%s", diff)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("grid output invalid: %v", err)
	}
}

func TestBuildGridRejectsBadResolution(t *testing.T) {
	var s Scene
	for _, r := range []int{0, -1, MaxGridResolution + 1, 1024} {
		if err := s.BuildGrid(r); err == nil {
			t.Errorf("resolution %d accepted", r)
		}
	}
}

func TestBuildGridLimitLeavesSceneUntouched(t *testing.T) {
	s := &Scene{
		Triangles: []Triangle{NewTriangle(Vec3{0, 0, 0}, Vec3{1, 0, 0}, Vec3{0, 1, 0}, Vec3{1, 1, 1})},
		Indices:   []uint32{0},
		Cells:     []Cell{{Start: 0, Count: 1}},
	}
	if err := s.BuildGrid(1024); err == nil {
		t.Fatal("resolution 1024 accepted")
	}
	if len(s.Cells) != 1 || len(s.Indices) != 1 {
		t.Errorf("rejected build changed the grid: %d cells, %d indices", len(s.Cells), len(s.Indices))
	}

	if err := s.BuildGrid(MaxGridResolution); err != nil {
		t.Fatal(err)
	}
	if got, want := len(s.Cells), MaxGridResolution*MaxGridResolution*MaxGridResolution; got != want {
		t.Errorf("cells = %d, want %d", got, want)
	}
}

func TestBuildGridEmpty(t *testing.T) {
	s := &Scene{Indices: []uint32{3}, Cells: []Cell{{0, 1}}}
	if err := s.BuildGrid(4); err != nil {
		t.Fatal(err)
	}
	if len(s.Indices) != 0 || len(s.Cells) != 0 {
		t.Errorf("empty scene grid = %d indices, %d cells", len(s.Indices), len(s.Cells))
	}
}

func TestCameraFrame(t *testing.T) {
	ll, h, v := DefaultCamera().Frame(8, 8)

	const half = 0.41421357 // tan(22.5°)
	approx := cmpopts.EquateApprox(0, 1e-5)
	if diff := cmp.Diff(Vec3{-half, -half, 2}, ll, approx); diff != "" {
		t.Errorf("lower left (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Vec3{2 * half, 0, 0}, h, approx); diff != "" {
		t.Errorf("horizontal (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Vec3{0, 2 * half, 0}, v, approx); diff != "" {
		t.Errorf("vertical (-want +got):\n%s", diff)
	}

	if n := len(DefaultCamera().Uniform(8, 8)); n != CameraUniformSize {
		t.Errorf("uniform = %d bytes, want %d", n, CameraUniformSize)
	}
}

func TestDecode(t *testing.T) {
	const doc = `{
		"camera": {"origin": [0, 1, 5], "look_at": [0, 0, 0], "up": [0, 1, 0], "fov": 60},
		"triangles": [
			{"v0": [0, 0, 0], "v1": [1, 0, 0], "v2": [0, 1, 0], "albedo": [0.8, 0.2, 0.2]}
		]
	}`
	s, err := Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Triangles) != 1 {
		t.Fatalf("got %d triangles", len(s.Triangles))
	}
	want := Triangle{
		V0:     [4]float32{0, 0, 0, 1},
		V1:     [4]float32{1, 0, 0, 1},
		V2:     [4]float32{0, 1, 0, 1},
		Albedo: [4]float32{0.8, 0.2, 0.2, 1},
	}
	if diff := cmp.Diff(want, s.Triangles[0]); diff != "" {
		t.Errorf("triangle mismatch (-want +got):\n%s", diff)
	}
	if s.Camera.FOV != 60 || s.Camera.Origin != (Vec3{0, 1, 5}) {
		t.Errorf("camera = %+v", s.Camera)
	}
}

func TestDecodeDefaultsCamera(t *testing.T) {
	s, err := Decode(strings.NewReader(`{"triangles": []}`))
	if err != nil {
		t.Fatal(err)
	}
	if s.Camera != DefaultCamera() {
		t.Errorf("camera = %+v, want default", s.Camera)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	if _, err := Decode(strings.NewReader(`{"spheres": []}`)); err == nil {
		t.Error("unknown field accepted")
	}
}
