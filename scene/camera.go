package scene

import (
	"encoding/binary"
	"math"
)

// CameraUniformSize is the size of the camera uniform in bytes.
const CameraUniformSize = 64

// Camera is a pinhole camera. FOV is the vertical field of view in degrees.
type Camera struct {
	Origin Vec3    `json:"origin"`
	LookAt Vec3    `json:"look_at"`
	Up     Vec3    `json:"up"`
	FOV    float32 `json:"fov"`
}

// DefaultCamera looks down -Z from (0, 0, 3).
func DefaultCamera() Camera {
	return Camera{
		Origin: Vec3{0, 0, 3},
		LookAt: Vec3{0, 0, 0},
		Up:     Vec3{0, 1, 0},
		FOV:    45,
	}
}

// IsZero reports whether c was never set.
func (c Camera) IsZero() bool { return c == Camera{} }

// Frame returns the image plane one unit in front of the origin: the
// lower-left corner and the two spanning edges. A primary ray for pixel
// (u, v) in [0,1]² points at lowerLeft + u*horizontal + v*vertical.
func (c Camera) Frame(width, height int) (lowerLeft, horizontal, vertical Vec3) {
	aspect := float32(1)
	if height > 0 {
		aspect = float32(width) / float32(height)
	}
	halfH := float32(math.Tan(float64(c.FOV) * math.Pi / 360))
	halfW := aspect * halfH

	w := c.Origin.Sub(c.LookAt).Unit()
	u := c.Up.Cross(w).Unit()
	v := w.Cross(u)

	horizontal = u.Scale(2 * halfW)
	vertical = v.Scale(2 * halfH)
	lowerLeft = c.Origin.Sub(u.Scale(halfW)).Sub(v.Scale(halfH)).Sub(w)
	return lowerLeft, horizontal, vertical
}

// Uniform encodes the camera for the kernel: origin, lower_left,
// horizontal, vertical as four vec4<f32>.
func (c Camera) Uniform(width, height int) []byte {
	ll, h, v := c.Frame(width, height)
	buf := make([]byte, 0, CameraUniformSize)
	for _, x := range []Vec3{c.Origin, ll, h, v} {
		for _, f := range x.vec4(0) {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
		}
	}
	return buf
}
