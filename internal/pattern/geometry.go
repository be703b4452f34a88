package pattern

import (
	"iter"
	"math"
	"time"
)

// Step is one relative HID movement.
type Step struct {
	DX int
	DY int
}

type point struct {
	x float64
	y float64
}

// Plan is a single traversal of a pattern at a given pixel size.
type Plan struct {
	Pattern   Pattern
	Size      int
	StepCount int
	// StepDelay is the pause the caller inserts after every emitted step.
	StepDelay time.Duration
}

// NewPlan builds the traversal of p with the given size in pixels, spreading
// budget evenly over the pattern's steps (rounded down to whole milliseconds).
func NewPlan(p Pattern, size int, budget time.Duration) Plan {
	if size < 1 {
		size = 1
	}
	count := StepCount(p)
	perStep := budget.Milliseconds() / int64(count)
	if perStep < 0 {
		perStep = 0
	}
	return Plan{
		Pattern:   p,
		Size:      size,
		StepCount: count,
		StepDelay: time.Duration(perStep) * time.Millisecond,
	}
}

// Steps yields the non-zero deltas of the traversal. The sequence is lazy
// and can be ranged over any number of times; each run nets to (0, 0).
func (pl Plan) Steps() iter.Seq[Step] {
	return func(yield func(Step) bool) {
		position := positionFunc(pl.Pattern, float64(pl.Size))
		var curX, curY int
		for i := 1; i <= pl.StepCount; i++ {
			target := position(float64(i) / float64(pl.StepCount))
			x := int(math.Round(target.x))
			y := int(math.Round(target.y))
			if x == curX && y == curY {
				continue
			}
			if !yield(Step{DX: x - curX, DY: y - curY}) {
				return
			}
			curX, curY = x, y
		}
		// compensate for any residual left by rounding
		if curX != 0 || curY != 0 {
			yield(Step{DX: -curX, DY: -curY})
		}
	}
}

// Generate is a shorthand for NewPlan(p, size, budget).Steps().
func Generate(p Pattern, size int, budget time.Duration) iter.Seq[Step] {
	return NewPlan(p, size, budget).Steps()
}

// positionFunc returns the absolute offset from the start at progress t in [0, 1].
func positionFunc(p Pattern, size float64) func(t float64) point {
	switch p {
	case Circular:
		r := size / 2
		return func(t float64) point {
			angle := 2 * math.Pi * t
			// start on the circumference so t=0 and t=1 are both the origin
			return point{x: r*math.Cos(angle) - r, y: r * math.Sin(angle)}
		}
	case Rectangle:
		h := size * rectangleAspect
		return polyline(point{0, 0}, point{size, 0}, point{size, h}, point{0, h}, point{0, 0})
	case Triangle:
		return polyline(point{0, 0}, point{size, 0}, point{size / 2, -size * equilateralHeight}, point{0, 0})
	case Zigzag:
		a := size * zigzagAmplitude
		return polyline(
			point{0, 0},
			point{size / 3, -a},
			point{2 * size / 3, a},
			point{size, 0},
			point{2 * size / 3, -a},
			point{size / 3, a},
			point{0, 0},
		)
	default:
		return polyline(point{0, 0}, point{size, size}, point{0, 0})
	}
}

// polyline walks the vertices with equal time spent on every segment.
func polyline(vertices ...point) func(t float64) point {
	segments := len(vertices) - 1
	return func(t float64) point {
		if t <= 0 {
			return vertices[0]
		}
		if t >= 1 {
			return vertices[segments]
		}
		pos := t * float64(segments)
		seg := int(pos)
		local := pos - float64(seg)
		from, to := vertices[seg], vertices[seg+1]
		return point{
			x: from.x + (to.x-from.x)*local,
			y: from.y + (to.y-from.y)*local,
		}
	}
}
