// Package track answers centerline queries for the reward model and for
// spawning: nearest direction, lateral offset and progress index.
//
// Track coordinates are planar (x, y). In the world frame x maps to X and
// y maps to Z; Y is up.
package track

import (
	"errors"
	"fmt"
	"math"

	"github.com/racedqn/autopilot/internal/geo"
	"github.com/racedqn/autopilot/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrTooShort is returned for centerlines with fewer than two distinct points.
var ErrTooShort = errors.New("track needs at least two distinct points")

// Track is a centerline with a constant road width.
type Track struct {
	line   geom.LineString
	points []geom.XY
	segs   []geo.Segment
	width  float64
	length float64
	closed bool
}

// Query is the result of projecting a point onto the centerline.
type Query struct {
	Distance  float64 // from the centerline, always >= 0
	Direction geom.XY // unit tangent of the nearest segment
	Index     int     // nearest segment, also its start vertex
	Side      float64 // +1 on the counterclockwise side, -1 otherwise
}

// New builds a track from a centerline. A closing vertex equal to the first
// one is dropped; closed controls whether the last vertex links back.
func New(line geom.LineString, width float64, closed bool) (*Track, error) {
	if width <= 0 {
		return nil, fmt.Errorf("track width must be positive, got %g", width)
	}
	pts := geo.Points(line)
	if n := len(pts); n > 2 && pts[0] == pts[n-1] {
		pts = pts[:n-1]
		closed = true
	}
	t := &Track{line: line, points: pts, width: width, closed: closed}
	for i := 0; i+1 < len(pts); i++ {
		t.segs = append(t.segs, geo.Segment{A: pts[i], B: pts[i+1]})
	}
	if closed && len(pts) > 2 {
		t.segs = append(t.segs, geo.Segment{A: pts[len(pts)-1], B: pts[0]})
	}
	for _, s := range t.segs {
		t.length += s.Len()
	}
	if t.length == 0 {
		return nil, ErrTooShort
	}
	return t, nil
}

// FromPoints builds a track from planar vertices.
func FromPoints(pts []geom.XY, width float64, closed bool) (*Track, error) {
	if len(lo.Uniq(pts)) < 2 {
		return nil, ErrTooShort
	}
	flat := make([]float64, 0, len(pts)*2)
	for _, p := range pts {
		flat = append(flat, p.X, p.Y)
	}
	line, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	if err != nil {
		return nil, fmt.Errorf("invalid centerline: %w", err)
	}
	return New(line, width, closed)
}

// Oval returns n vertices of an ellipse with semi-axes a (x) and b (y),
// counterclockwise from (a, 0).
func Oval(a, b float64, n int) []geom.XY {
	pts := make([]geom.XY, n)
	for i := range pts {
		th := 2 * math.Pi * float64(i) / float64(n)
		pts[i] = geom.XY{X: a * math.Cos(th), Y: b * math.Sin(th)}
	}
	return pts
}

// Width returns the road width.
func (t *Track) Width() float64 { return t.width }

// Closed reports whether the centerline loops.
func (t *Track) Closed() bool { return t.closed }

// Len returns the number of progress indices (vertices).
func (t *Track) Len() int { return len(t.points) }

// Length returns the centerline length in metres.
func (t *Track) Length() float64 { return t.length }

// Line returns the centerline as parsed.
func (t *Track) Line() geom.LineString { return t.line }

// Points returns the centerline vertices.
func (t *Track) Points() []geom.XY { return t.points }

// Segments returns the centerline segments in travel order.
func (t *Track) Segments() []geo.Segment { return t.segs }

// Query projects p onto the nearest centerline segment.
func (t *Track) Query(p geom.XY) Query {
	best := Query{Distance: math.Inf(1)}
	for i, s := range t.segs {
		c, _ := s.Closest(p)
		d := math.Hypot(p.X-c.X, p.Y-c.Y)
		if d >= best.Distance {
			continue
		}
		l := s.Len()
		if l == 0 {
			continue
		}
		dir := geom.XY{X: (s.B.X - s.A.X) / l, Y: (s.B.Y - s.A.Y) / l}
		side := 1.0
		if dir.X*(p.Y-s.A.Y)-dir.Y*(p.X-s.A.X) < 0 {
			side = -1
		}
		best = Query{Distance: d, Direction: dir, Index: i, Side: side}
	}
	return best
}

// OnRoad reports whether p lies within half the road width of the centerline.
func (t *Track) OnRoad(p geom.XY) bool {
	return t.Query(p).Distance <= t.width/2
}

// SpawnPose returns a pose on the centerline at progress index i, facing
// the next vertex.
func (t *Track) SpawnPose(i int) core.Pose {
	n := len(t.points)
	i = ((i % n) + n) % n
	seg := t.segs[min(i, len(t.segs)-1)]
	heading := math.Atan2(seg.B.X-seg.A.X, seg.B.Y-seg.A.Y)
	return core.Pose{
		Position: ToWorld(t.points[i]),
		Rotation: r3.NewRotation(heading, core.Up),
	}
}

// ToWorld lifts a track point into the world frame at ground level.
func ToWorld(p geom.XY) r3.Vec {
	return r3.Vec{X: p.X, Z: p.Y}
}

// FromWorld drops a world position onto the track plane.
func FromWorld(v r3.Vec) geom.XY {
	return geom.XY{X: v.X, Y: v.Z}
}

// DirectionWorld lifts a planar direction into the world frame.
func DirectionWorld(d geom.XY) r3.Vec {
	return r3.Vec{X: d.X, Z: d.Y}
}
