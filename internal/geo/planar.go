package geo

import (
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
)

// Segment is a directed planar segment from A to B.
type Segment struct {
	A, B geom.XY
}

// Len returns the segment length.
func (s Segment) Len() float64 {
	return math.Hypot(s.B.X-s.A.X, s.B.Y-s.A.Y)
}

// Closest returns the point of s nearest to p and its parameter t in [0,1].
func (s Segment) Closest(p geom.XY) (geom.XY, float64) {
	dx, dy := s.B.X-s.A.X, s.B.Y-s.A.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return s.A, 0
	}
	t := ((p.X-s.A.X)*dx + (p.Y-s.A.Y)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return geom.XY{X: s.A.X + t*dx, Y: s.A.Y + t*dy}, t
}

// RayHit returns the distance along the unit direction dir from origin to
// s, if the ray crosses it.
func RayHit(origin, dir geom.XY, s Segment) (float64, bool) {
	ex, ey := s.B.X-s.A.X, s.B.Y-s.A.Y
	den := cross(dir.X, dir.Y, ex, ey)
	if math.Abs(den) < 1e-12 {
		return 0, false
	}
	wx, wy := s.A.X-origin.X, s.A.Y-origin.Y
	t := cross(wx, wy, ex, ey) / den
	u := cross(wx, wy, dir.X, dir.Y) / den
	if t < 0 || u < 0 || u > 1 {
		return 0, false
	}
	return t, true
}

// Offset returns a copy of pts displaced sideways by d. Positive d moves
// to the counterclockwise side of the direction of travel.
func Offset(pts []geom.XY, d float64, closed bool) []geom.XY {
	n := len(pts)
	out := make([]geom.XY, n)
	for i := range pts {
		prev, next := i-1, i+1
		if prev < 0 {
			prev = 0
			if closed {
				prev = n - 1
			}
		}
		if next >= n {
			next = n - 1
			if closed {
				next = 0
			}
		}
		tx, ty := pts[next].X-pts[prev].X, pts[next].Y-pts[prev].Y
		l := math.Hypot(tx, ty)
		if l == 0 {
			out[i] = pts[i]
			continue
		}
		out[i] = geom.XY{X: pts[i].X - ty/l*d, Y: pts[i].Y + tx/l*d}
	}
	return out
}

func cross(ax, ay, bx, by float64) float64 {
	return ax*by - ay*bx
}
