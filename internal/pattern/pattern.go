// Package pattern computes the relative mouse steps that trace a jiggle shape.
//
// Every shape is sampled at a fixed number of steps. Absolute positions are
// rounded to whole pixels and differenced, so a traversal always sums to zero.
package pattern

import (
	"strings"
)

type Pattern int

const (
	Linear Pattern = iota
	Circular
	Rectangle
	Triangle
	Zigzag
)

var patternNames = map[Pattern]string{
	Linear:    "linear",
	Circular:  "circular",
	Rectangle: "rectangle",
	Triangle:  "triangle",
	Zigzag:    "zigzag",
}

func (p Pattern) String() string {
	if name, ok := patternNames[p]; ok {
		return name
	}
	return patternNames[Linear]
}

// Parse maps a wire name to a pattern. ok is false for unknown names, in
// which case Linear is returned.
func Parse(name string) (p Pattern, ok bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "linear":
		return Linear, true
	case "circular", "circle":
		return Circular, true
	case "rectangle":
		return Rectangle, true
	case "triangle":
		return Triangle, true
	case "zigzag", "zig-zag":
		return Zigzag, true
	default:
		return Linear, false
	}
}

func (p Pattern) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Pattern) UnmarshalText(text []byte) error {
	*p, _ = Parse(string(text))
	return nil
}

// All lists the patterns in declaration order.
func All() []Pattern {
	return []Pattern{Linear, Circular, Rectangle, Triangle, Zigzag}
}

const (
	stepsPerLeg       = 50
	circleSteps       = 100
	rectangleSteps    = 200
	zigzagSteps       = 150
	linearLegs        = 2
	triangleLegs      = 3
	rectangleLegs     = 4
	zigzagLegs        = 6
	rectangleAspect   = 0.5
	zigzagAmplitude   = 0.25
	equilateralHeight = 0.8660254037844386 // sin(60deg)
)

// StepCount is the number of samples a traversal of p is divided into. It
// does not depend on size or speed.
func StepCount(p Pattern) int {
	switch p {
	case Circular:
		return circleSteps
	case Rectangle:
		return rectangleSteps
	case Triangle:
		return triangleLegs * stepsPerLeg
	case Zigzag:
		return zigzagSteps
	case Linear:
		return linearLegs * stepsPerLeg
	default:
		return linearLegs * stepsPerLeg
	}
}
