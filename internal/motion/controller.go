// Package motion drives pattern traversals through a HID sink while keeping
// track of the cursor displacement so every jiggle ends where it started.
package motion

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jetkvm/jiggler/internal/config"
	"github.com/jetkvm/jiggler/internal/pattern"
	"github.com/rs/zerolog"
)

const (
	// TrailRepeats is how often a trailed pattern is drawn.
	TrailRepeats = 3
	// TrailPause separates consecutive trail repeats.
	TrailPause = 100 * time.Millisecond
)

// State is the displacement bookkeeping of the controller.
type State struct {
	TotalDisplacementX int
	TotalDisplacementY int
	LastMove           time.Time
	NextMove           time.Time
}

type Options struct {
	Sink   HIDSink
	Logger *zerolog.Logger
	// Sleep and Now default to time.Sleep and time.Now.
	Sleep func(time.Duration)
	Now   func() time.Time
}

type Controller struct {
	sink  HIDSink
	l     *zerolog.Logger
	sleep func(time.Duration)
	now   func() time.Time

	state State
}

func NewController(opts Options) *Controller {
	if opts.Logger == nil {
		l := zerolog.Nop()
		opts.Logger = &l
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		sink:  opts.Sink,
		l:     opts.Logger,
		sleep: opts.Sleep,
		now:   opts.Now,
	}
}

func (c *Controller) State() State {
	return c.state
}

// Schedule records when the next scheduled movement is due.
func (c *Controller) Schedule(last, next time.Time) {
	c.state.LastMove = last
	c.state.NextMove = next
}

// Perform runs one jiggle for cfg and blocks until it is complete, including
// the settle delay. The cursor is back at its starting point afterwards. HID
// errors are logged and returned joined; the movement still runs to the end.
func (c *Controller) Perform(cfg config.MovementConfig) (time.Duration, error) {
	start := c.now()
	var errs []error

	if err := c.ResetToOrigin(); err != nil {
		errs = append(errs, err)
	}

	speed := time.Duration(cfg.SpeedMs) * time.Millisecond

	if cfg.TrailEnabled {
		// every repeat uses half of the configured size, not a compounding half
		size := pattern.ScaleSize(max(cfg.Size/2, pattern.MinRawSize))
		for i := 0; i < TrailRepeats; i++ {
			errs = append(errs, c.traverse(pattern.NewPlan(cfg.Pattern, size, speed))...)
			c.sleep(TrailPause)
			if err := c.ResetToOrigin(); err != nil {
				errs = append(errs, err)
			}
		}
	} else {
		size := pattern.ScaleSize(cfg.Size)
		errs = append(errs, c.traverse(pattern.NewPlan(cfg.Pattern, size, speed))...)
		if err := c.ResetToOrigin(); err != nil {
			errs = append(errs, err)
		}
	}

	// the speed value doubles as the settle delay after the whole movement
	c.sleep(speed)

	c.state.LastMove = c.now()
	return c.state.LastMove.Sub(start), errors.Join(errs...)
}

func (c *Controller) traverse(plan pattern.Plan) []error {
	c.l.Trace().
		Str("pattern", plan.Pattern.String()).
		Int("size", plan.Size).
		Dur("step_delay", plan.StepDelay).
		Msg("drawing pattern")

	var errs []error
	for step := range plan.Steps() {
		if err := c.emit(step.DX, step.DY); err != nil {
			c.l.Warn().Err(err).Msg("failed to send movement step")
			errs = append(errs, err)
		}
		c.sleep(plan.StepDelay)
	}
	return errs
}

func (c *Controller) emit(dx, dy int) error {
	if err := c.sink.Move(Clamp16(dx), Clamp16(dy), 0); err != nil {
		return err
	}
	c.state.TotalDisplacementX += int(Clamp16(dx))
	c.state.TotalDisplacementY += int(Clamp16(dy))
	return nil
}

// ResetToOrigin sends one report cancelling the accumulated displacement and
// zeroes the accumulator.
func (c *Controller) ResetToOrigin() error {
	dx, dy := c.state.TotalDisplacementX, c.state.TotalDisplacementY
	if dx == 0 && dy == 0 {
		return nil
	}
	if err := c.sink.Move(Clamp16(-dx), Clamp16(-dy), 0); err != nil {
		return fmt.Errorf("failed to return cursor to origin: %w", err)
	}
	c.state.TotalDisplacementX = 0
	c.state.TotalDisplacementY = 0
	return nil
}

// Clamp16 saturates v to the int16 range of a HID delta.
func Clamp16(v int) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
