package vkframe

import "github.com/chewxy/math32"

// Vec3 is a 3-component float32 vector.
type Vec3 [3]float32

func (v Vec3) Sub(u Vec3) Vec3 { return Vec3{v[0] - u[0], v[1] - u[1], v[2] - u[2]} }

func (v Vec3) Dot(u Vec3) float32 { return v[0]*u[0] + v[1]*u[1] + v[2]*u[2] }

func (v Vec3) Cross(u Vec3) Vec3 {
	return Vec3{
		v[1]*u[2] - v[2]*u[1],
		v[2]*u[0] - v[0]*u[2],
		v[0]*u[1] - v[1]*u[0],
	}
}

func (v Vec3) Len() float32 { return math32.Sqrt(v.Dot(v)) }

func (v Vec3) Norm() Vec3 {
	l := v.Len()
	if l == 0 {
		return v
	}
	return Vec3{v[0] / l, v[1] / l, v[2] / l}
}

// Mat4 is a column-major 4x4 matrix, laid out the way shaders read it.
// m[c][r] is column c, row r.
type Mat4 [4][4]float32

func Identity() Mat4 {
	var m Mat4
	for i := range m {
		m[i][i] = 1
	}
	return m
}

// Mul returns m*n.
func (m Mat4) Mul(n Mat4) Mat4 {
	var out Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += m[k][r] * n[c][k]
			}
			out[c][r] = sum
		}
	}
	return out
}

// Translate returns a translation by v.
func Translate(v Vec3) Mat4 {
	m := Identity()
	m[3][0], m[3][1], m[3][2] = v[0], v[1], v[2]
	return m
}

func Scale(x, y, z float32) Mat4 {
	m := Identity()
	m[0][0], m[1][1], m[2][2] = x, y, z
	return m
}

// RotateZ rotates by angle radians about +Z.
func RotateZ(angle float32) Mat4 {
	s, c := math32.Sincos(angle)
	m := Identity()
	m[0][0], m[0][1] = c, s
	m[1][0], m[1][1] = -s, c
	return m
}

// RotateY rotates by angle radians about +Y.
func RotateY(angle float32) Mat4 {
	s, c := math32.Sincos(angle)
	m := Identity()
	m[0][0], m[0][2] = c, -s
	m[2][0], m[2][2] = s, c
	return m
}

// LookAt builds a right-handed view matrix.
func LookAt(eye, center, up Vec3) Mat4 {
	f := center.Sub(eye).Norm()
	s := f.Cross(up).Norm()
	u := s.Cross(f)
	m := Identity()
	m[0][0], m[1][0], m[2][0] = s[0], s[1], s[2]
	m[0][1], m[1][1], m[2][1] = u[0], u[1], u[2]
	m[0][2], m[1][2], m[2][2] = -f[0], -f[1], -f[2]
	m[3][0] = -s.Dot(eye)
	m[3][1] = -u.Dot(eye)
	m[3][2] = f.Dot(eye)
	return m
}

// Perspective builds a GL style projection with clip depth in [-1, 1].
// fovy is in radians.
func Perspective(fovy, aspect, near, far float32) Mat4 {
	t := 1 / math32.Tan(fovy/2)
	var m Mat4
	m[0][0] = t / aspect
	m[1][1] = t
	m[2][2] = -(far + near) / (far - near)
	m[2][3] = -1
	m[3][2] = -2 * far * near / (far - near)
	return m
}

// VulkanProjection converts a GL style projection to Vulkan clip space:
// Y points down and depth is in [0, 1].
func VulkanProjection(proj Mat4) Mat4 {
	fix := Identity()
	fix[1][1] = -1
	fix[2][2] = 0.5
	fix[3][2] = 0.5
	return fix.Mul(proj)
}

// Bytes returns the matrix as 64 bytes in column-major order.
func (m Mat4) Bytes() []byte {
	out := make([]byte, 0, 64)
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			b := math32.Float32bits(m[c][r])
			out = append(out, byte(b), byte(b>>8), byte(b>>16), byte(b>>24))
		}
	}
	return out
}
