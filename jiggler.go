package jiggler

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jetkvm/jiggler/internal/pattern"
	"github.com/jetkvm/jiggler/internal/session"
)

const (
	tickInterval       = time.Second
	apWatchdogInterval = 10 * time.Second
)

func (d *Device) newScheduler() (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	jobs := []struct {
		name     string
		interval time.Duration
		task     func()
	}{
		{"jiggle", tickInterval, d.tick},
		{"session-sweep", session.SweepInterval, d.sweepSessions},
		{"ap-watchdog", apWatchdogInterval, d.checkAPTimeout},
	}
	for _, job := range jobs {
		_, err := s.NewJob(
			gocron.DurationJob(job.interval),
			gocron.NewTask(job.task),
			gocron.WithName(job.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// nextInterval is the configured interval, varied by +-30% when
// randomization is enabled.
func (d *Device) nextInterval() time.Duration {
	interval := d.movement.Interval()
	if d.movement.RandomizeInterval {
		interval = pattern.RandomizeInterval(interval, d.rnd)
	}
	return interval
}

// resetSchedule restarts the countdown to the next scheduled movement.
func (d *Device) resetSchedule(last time.Time) {
	d.motion.Schedule(last, last.Add(d.nextInterval()))
}

// tick runs a scheduled movement when one is due.
func (d *Device) tick() {
	d.lock.Lock()
	defer d.lock.Unlock()

	if !d.movement.JigglerEnabled {
		return
	}
	if d.now().Before(d.motion.State().NextMove) {
		return
	}
	d.performMovement(triggerScheduled)
}

// performMovement blocks until the movement is complete and starts a new
// countdown afterwards. Callers hold d.lock.
func (d *Device) performMovement(trigger string) error {
	elapsed, err := d.motion.Perform(d.movement)
	if err != nil {
		motionLogger.Warn().Err(err).Str("trigger", trigger).Msg("movement finished with errors")
	}
	d.resetSchedule(d.now())
	d.metrics.movements.WithLabelValues(trigger).Inc()

	next := d.motion.State().NextMove
	motionLogger.Debug().
		Str("trigger", trigger).
		Str("pattern", d.movement.Pattern.String()).
		Dur("elapsed", elapsed).
		Time("next_move", next).
		Msg("mouse moved")
	return err
}

func (d *Device) sweepSessions() {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.sessions.SweepExpired()
}

func (d *Device) checkAPTimeout() {
	if d.network == nil {
		return
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	d.network.CheckAPTimeout()
}
