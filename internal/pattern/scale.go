package pattern

import (
	"math/rand/v2"
	"time"
)

const (
	MinRawSize = 1
	MaxRawSize = 200
)

// ScaleSize maps the raw slider value (1..200) to a pixel magnitude:
// 1..33 -> 20..50, 34..66 -> 100..200, 67..200 -> 250..500.
func ScaleSize(raw int) int {
	switch {
	case raw < MinRawSize:
		raw = MinRawSize
	case raw > MaxRawSize:
		raw = MaxRawSize
	}

	switch {
	case raw <= 33:
		return mapRange(raw, 1, 33, 20, 50)
	case raw <= 66:
		return mapRange(raw, 34, 66, 100, 200)
	default:
		return mapRange(raw, 67, 200, 250, 500)
	}
}

func mapRange(v, inMin, inMax, outMin, outMax int) int {
	return outMin + (v-inMin)*(outMax-outMin)/(inMax-inMin)
}

// intervalVariation is the +-30% spread applied by RandomizeInterval.
const intervalVariation = 0.3

// RandomizeInterval scales interval by a factor drawn from [0.7, 1.3).
func RandomizeInterval(interval time.Duration, rnd *rand.Rand) time.Duration {
	factor := 1.0 - intervalVariation + float64(rnd.IntN(1000))/1000.0*intervalVariation*2
	return time.Duration(float64(interval) * factor)
}
