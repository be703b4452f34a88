// Package config holds the persisted movement configuration and device
// settings: defaults, legacy-field migration and the JSON documents.
package config

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jetkvm/jiggler/internal/logging"
	"github.com/jetkvm/jiggler/internal/storage"
	"github.com/rs/zerolog"
)

const (
	MovementConfigPath = "/config.json"
	SettingsPath       = "/settings.json"
)

var ErrInvalidInput = errors.New("invalid input")

var defaultLogger = logging.GetSubsystemLogger("config")

// Store reads and writes the configuration documents.
type Store struct {
	docs storage.DocumentStore
	l    *zerolog.Logger
}

func NewStore(docs storage.DocumentStore, logger *zerolog.Logger) *Store {
	if logger == nil {
		logger = defaultLogger
	}
	return &Store{docs: docs, l: logger}
}

// LoadMovement never fails: a missing document is created with defaults, an
// unreadable or malformed one is logged and replaced by defaults in memory.
func (s *Store) LoadMovement() MovementConfig {
	data, err := s.docs.Read(MovementConfigPath)
	if errors.Is(err, storage.ErrNotFound) {
		s.l.Info().Msg("movement config doesn't exist, using defaults")
		cfg := DefaultMovementConfig()
		if err := s.SaveMovement(cfg); err != nil {
			s.l.Warn().Err(err).Msg("failed to persist default movement config")
		}
		return cfg
	}
	if err != nil {
		s.l.Error().Err(err).Msg("failed to read movement config, using defaults")
		return DefaultMovementConfig()
	}

	cfg, err := MigrateMovement(data)
	if err != nil {
		s.l.Error().Err(err).Msg("movement config JSON parsing failed, using defaults")
		return DefaultMovementConfig()
	}

	s.l.Debug().
		Str("pattern", cfg.Pattern.String()).
		Int("size", cfg.Size).
		Int("interval_ms", cfg.IntervalMs).
		Msg("movement config loaded")
	return cfg
}

func (s *Store) SaveMovement(cfg MovementConfig) error {
	data, err := MarshalMovement(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode movement config: %w", err)
	}
	if err := s.docs.Write(MovementConfigPath, data); err != nil {
		return fmt.Errorf("failed to save movement config: %w", err)
	}
	return nil
}

// LoadSettings follows the same rules as LoadMovement.
func (s *Store) LoadSettings() DeviceSettings {
	data, err := s.docs.Read(SettingsPath)
	if errors.Is(err, storage.ErrNotFound) {
		s.l.Info().Msg("device settings don't exist, using defaults")
		settings := DefaultDeviceSettings()
		if err := s.SaveSettings(settings); err != nil {
			s.l.Warn().Err(err).Msg("failed to persist default device settings")
		}
		return settings
	}
	if err != nil {
		s.l.Error().Err(err).Msg("failed to read device settings, using defaults")
		return DefaultDeviceSettings()
	}

	settings, err := ParseSettings(data)
	if err != nil {
		s.l.Error().Err(err).Msg("device settings JSON parsing failed, using defaults")
		return DefaultDeviceSettings()
	}
	return settings
}

func (s *Store) SaveSettings(settings DeviceSettings) error {
	data, err := json.MarshalIndent(settings.document(true), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode device settings: %w", err)
	}
	if err := s.docs.Write(SettingsPath, data); err != nil {
		return fmt.Errorf("failed to save device settings: %w", err)
	}
	return nil
}
