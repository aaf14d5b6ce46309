package scene

import "math"

// Vec3 is a point, direction or colour.
type Vec3 [3]float32

func vec3(v [4]float32) Vec3 { return Vec3{v[0], v[1], v[2]} }

func (a Vec3) vec4(w float32) [4]float32 { return [4]float32{a[0], a[1], a[2], w} }

func (a Vec3) Add(b Vec3) Vec3 { return Vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func (a Vec3) Sub(b Vec3) Vec3 { return Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func (a Vec3) Scale(s float32) Vec3 {
	return Vec3{a[0] * s, a[1] * s, a[2] * s}
}

func (a Vec3) Cross(b Vec3) Vec3 {
	return Vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func (a Vec3) Len() float32 {
	return float32(math.Sqrt(float64(a[0]*a[0] + a[1]*a[1] + a[2]*a[2])))
}

// Unit returns a scaled to length 1, or a itself if it has zero length.
func (a Vec3) Unit() Vec3 {
	l := a.Len()
	if l == 0 {
		return a
	}
	return a.Scale(1 / l)
}

func minVec(a, b Vec3) Vec3 {
	return Vec3{min(a[0], b[0]), min(a[1], b[1]), min(a[2], b[2])}
}

func maxVec(a, b Vec3) Vec3 {
	return Vec3{max(a[0], b[0]), max(a[1], b[1]), max(a[2], b[2])}
}
