package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jetkvm/jiggler/internal/pattern"
)

const (
	MinSpeedMs = 1
	MaxSpeedMs = 3000
)

type MovementConfig struct {
	Pattern           pattern.Pattern
	Size              int // raw slider value, scaled to pixels per movement
	SpeedMs           int
	IntervalMs        int
	JigglerEnabled    bool
	RandomizeInterval bool
	TrailEnabled      bool
}

func DefaultMovementConfig() MovementConfig {
	return MovementConfig{
		Pattern:        pattern.Linear,
		Size:           10,
		SpeedMs:        500,
		IntervalMs:     int((4 * time.Minute).Milliseconds()),
		JigglerEnabled: true,
	}
}

func (c MovementConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

func (c MovementConfig) Speed() time.Duration {
	return time.Duration(c.SpeedMs) * time.Millisecond
}

// movementDocument is every key the movement document has ever carried.
// Pointers distinguish absent keys from zero values.
type movementDocument struct {
	MoveInterval   *int    `json:"move_interval,omitempty"`
	Pattern        *string `json:"movement_pattern,omitempty"`
	Size           *int    `json:"movement_size,omitempty"`
	Speed          *int    `json:"movement_speed,omitempty"`
	JigglerEnabled *bool   `json:"jiggler_enabled,omitempty"`
	RandomDelay    *bool   `json:"random_delay,omitempty"`
	Trail          *bool   `json:"movement_trail,omitempty"`

	// legacy keys, still written for older companion clients
	MovementX        *int  `json:"movement_x,omitempty"`
	MovementY        *int  `json:"movement_y,omitempty"`
	CircularMovement *bool `json:"circular_movement,omitempty"`
}

// intervalUnit is what move_interval is counted in: milliseconds on disk,
// seconds over the API.
type intervalUnit time.Duration

const (
	unitStorage intervalUnit = intervalUnit(time.Millisecond)
	unitWire    intervalUnit = intervalUnit(time.Second)
)

// migrate applies doc on top of base. Current keys win over legacy ones:
// movement_x/movement_y only set the size when movement_size is absent, and
// circular_movement only sets the pattern when movement_pattern is absent.
func (doc movementDocument) migrate(base MovementConfig, unit intervalUnit) MovementConfig {
	cfg := base

	if doc.MoveInterval != nil && *doc.MoveInterval > 0 {
		cfg.IntervalMs = int((time.Duration(*doc.MoveInterval) * time.Duration(unit)).Milliseconds())
	}

	switch {
	case doc.Pattern != nil:
		// unknown names fall back to linear
		cfg.Pattern, _ = pattern.Parse(*doc.Pattern)
	case doc.CircularMovement != nil:
		if *doc.CircularMovement {
			cfg.Pattern = pattern.Circular
		} else {
			cfg.Pattern = pattern.Linear
		}
	}

	switch {
	case doc.Size != nil:
		cfg.Size = *doc.Size
	case doc.MovementX != nil || doc.MovementY != nil:
		cfg.Size = max(abs(deref(doc.MovementX)), abs(deref(doc.MovementY)))
	}

	if doc.Speed != nil {
		cfg.SpeedMs = *doc.Speed
	}
	if doc.JigglerEnabled != nil {
		cfg.JigglerEnabled = *doc.JigglerEnabled
	}
	if doc.RandomDelay != nil {
		cfg.RandomizeInterval = *doc.RandomDelay
	}
	if doc.Trail != nil {
		cfg.TrailEnabled = *doc.Trail
	}

	return cfg.sanitized(base)
}

// sanitized keeps size and speed positive and within range, falling back to
// fallback's values (and then the defaults) when they are not.
func (c MovementConfig) sanitized(fallback MovementConfig) MovementConfig {
	def := DefaultMovementConfig()
	if c.Size < pattern.MinRawSize {
		c.Size = fallback.Size
		if c.Size < pattern.MinRawSize {
			c.Size = def.Size
		}
	}
	if c.Size > pattern.MaxRawSize {
		c.Size = pattern.MaxRawSize
	}
	if c.SpeedMs < MinSpeedMs {
		c.SpeedMs = fallback.SpeedMs
		if c.SpeedMs < MinSpeedMs {
			c.SpeedMs = def.SpeedMs
		}
	}
	if c.SpeedMs > MaxSpeedMs {
		c.SpeedMs = MaxSpeedMs
	}
	if c.IntervalMs <= 0 {
		c.IntervalMs = def.IntervalMs
	}
	return c
}

func (c MovementConfig) document(unit intervalUnit) movementDocument {
	interval := int(time.Duration(c.IntervalMs) * time.Millisecond / time.Duration(unit))
	name := c.Pattern.String()
	circular := c.Pattern == pattern.Circular
	return movementDocument{
		MoveInterval:     &interval,
		Pattern:          &name,
		Size:             &c.Size,
		Speed:            &c.SpeedMs,
		JigglerEnabled:   &c.JigglerEnabled,
		RandomDelay:      &c.RandomizeInterval,
		Trail:            &c.TrailEnabled,
		MovementX:        &c.Size,
		MovementY:        &c.Size,
		CircularMovement: &circular,
	}
}

// MigrateMovement parses a stored movement document on top of the defaults.
func MigrateMovement(data []byte) (MovementConfig, error) {
	var doc movementDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return DefaultMovementConfig(), fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return doc.migrate(DefaultMovementConfig(), unitStorage), nil
}

// ApplyMovementUpdate merges a partial API update (interval in seconds) into
// current. Keys absent from the body keep their current values.
func ApplyMovementUpdate(current MovementConfig, body []byte) (MovementConfig, error) {
	var doc movementDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return current, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := doc.validate(); err != nil {
		return current, err
	}
	return doc.migrate(current, unitWire), nil
}

func (doc movementDocument) validate() error {
	if doc.Size != nil && (*doc.Size < pattern.MinRawSize || *doc.Size > pattern.MaxRawSize) {
		return fmt.Errorf("%w: movement size must be between %d and %d", ErrInvalidInput, pattern.MinRawSize, pattern.MaxRawSize)
	}
	if doc.Speed != nil && (*doc.Speed < MinSpeedMs || *doc.Speed > MaxSpeedMs) {
		return fmt.Errorf("%w: movement speed must be between %d and %d milliseconds", ErrInvalidInput, MinSpeedMs, MaxSpeedMs)
	}
	if doc.MoveInterval != nil && *doc.MoveInterval < 1 {
		return fmt.Errorf("%w: movement interval must be a positive number", ErrInvalidInput)
	}
	return nil
}

// MarshalMovement renders the stored form of cfg, legacy keys included.
func MarshalMovement(cfg MovementConfig) ([]byte, error) {
	return json.MarshalIndent(cfg.document(unitStorage), "", "  ")
}

// MovementWire is the GET /api/config body.
func MovementWire(cfg MovementConfig) any {
	return cfg.document(unitWire)
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
