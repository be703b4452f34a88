package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jetkvm/jiggler/internal/pattern"
	"github.com/jetkvm/jiggler/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateLegacyOnlyDocument(t *testing.T) {
	cfg, err := MigrateMovement([]byte(`{"movement_x":8,"movement_y":3,"circular_movement":true}`))
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Size)
	assert.Equal(t, pattern.Circular, cfg.Pattern)

	def := DefaultMovementConfig()
	assert.Equal(t, def.SpeedMs, cfg.SpeedMs)
	assert.Equal(t, def.IntervalMs, cfg.IntervalMs)
}

func TestMigrateLegacyNegativeAxis(t *testing.T) {
	cfg, err := MigrateMovement([]byte(`{"movement_x":-4,"movement_y":-12,"circular_movement":false}`))
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Size)
	assert.Equal(t, pattern.Linear, cfg.Pattern)
}

func TestMigrateCurrentKeysWin(t *testing.T) {
	cfg, err := MigrateMovement([]byte(`{
		"movement_pattern":"zigzag","movement_size":42,
		"movement_x":8,"movement_y":8,"circular_movement":true,
		"move_interval":60000,"movement_speed":250,"random_delay":true,"movement_trail":true
	}`))
	require.NoError(t, err)
	assert.Equal(t, pattern.Zigzag, cfg.Pattern)
	assert.Equal(t, 42, cfg.Size)
	assert.Equal(t, time.Minute, cfg.Interval())
	assert.Equal(t, 250*time.Millisecond, cfg.Speed())
	assert.True(t, cfg.RandomizeInterval)
	assert.True(t, cfg.TrailEnabled)
}

func TestMigrateUnknownPatternFallsBackToLinear(t *testing.T) {
	cfg, err := MigrateMovement([]byte(`{"movement_pattern":"spiral"}`))
	require.NoError(t, err)
	assert.Equal(t, pattern.Linear, cfg.Pattern)
}

func TestMigrateKeepsSizeAndSpeedPositive(t *testing.T) {
	cfg, err := MigrateMovement([]byte(`{"movement_size":0,"movement_speed":-5,"move_interval":0}`))
	require.NoError(t, err)
	def := DefaultMovementConfig()
	assert.Equal(t, def.Size, cfg.Size)
	assert.Equal(t, def.SpeedMs, cfg.SpeedMs)
	assert.Equal(t, def.IntervalMs, cfg.IntervalMs)
}

func TestMigrateMalformed(t *testing.T) {
	cfg, err := MigrateMovement([]byte(`{"movement_size":`))
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, DefaultMovementConfig(), cfg)
}

func TestMarshalMovementWritesLegacyKeys(t *testing.T) {
	cfg := DefaultMovementConfig()
	cfg.Pattern = pattern.Circular
	cfg.Size = 17

	data, err := MarshalMovement(cfg)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, float64(17), doc["movement_x"])
	assert.Equal(t, float64(17), doc["movement_y"])
	assert.Equal(t, true, doc["circular_movement"])
	assert.Equal(t, "circular", doc["movement_pattern"])
	assert.Equal(t, float64(cfg.IntervalMs), doc["move_interval"])

	back, err := MigrateMovement(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestApplyMovementUpdate(t *testing.T) {
	current := DefaultMovementConfig()

	updated, err := ApplyMovementUpdate(current, []byte(`{"move_interval":30,"movement_pattern":"triangle","jiggler_enabled":false}`))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, updated.Interval())
	assert.Equal(t, pattern.Triangle, updated.Pattern)
	assert.False(t, updated.JigglerEnabled)
	assert.Equal(t, current.Size, updated.Size)
	assert.Equal(t, current.SpeedMs, updated.SpeedMs)

	// old clients only know the legacy keys
	updated, err = ApplyMovementUpdate(updated, []byte(`{"circular_movement":true,"movement_x":9,"movement_y":2}`))
	require.NoError(t, err)
	assert.Equal(t, pattern.Circular, updated.Pattern)
	assert.Equal(t, 9, updated.Size)
}

func TestApplyMovementUpdateRejectsOutOfRange(t *testing.T) {
	current := DefaultMovementConfig()
	for _, body := range []string{
		`{"movement_size":0}`,
		`{"movement_size":201}`,
		`{"movement_speed":0}`,
		`{"movement_speed":3001}`,
		`{"move_interval":0}`,
		`not json`,
	} {
		got, err := ApplyMovementUpdate(current, []byte(body))
		assert.ErrorIs(t, err, ErrInvalidInput, body)
		assert.Equal(t, current, got, body)
	}
}

func TestMovementWireUsesSeconds(t *testing.T) {
	cfg := DefaultMovementConfig()
	data, err := json.Marshal(MovementWire(cfg))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, float64(240), doc["move_interval"])
}

func TestStoreCreatesDefaultsOnFirstBoot(t *testing.T) {
	docs := storage.NewMemoryStore()
	s := NewStore(docs, nil)

	cfg := s.LoadMovement()
	assert.Equal(t, DefaultMovementConfig(), cfg)
	assert.True(t, docs.Exists(MovementConfigPath))

	settings := s.LoadSettings()
	assert.Equal(t, DefaultDeviceSettings(), settings)
	assert.True(t, docs.Exists(SettingsPath))
}

func TestStoreFallsBackOnCorruptDocuments(t *testing.T) {
	docs := storage.NewMemoryStore()
	require.NoError(t, docs.Write(MovementConfigPath, []byte("{{{")))
	require.NoError(t, docs.Write(SettingsPath, []byte("[]")))
	s := NewStore(docs, nil)

	assert.Equal(t, DefaultMovementConfig(), s.LoadMovement())
	assert.Equal(t, DefaultDeviceSettings(), s.LoadSettings())
}

func TestStoreSurvivesWriteFailure(t *testing.T) {
	docs := storage.NewMemoryStore()
	docs.FailWrites = true
	s := NewStore(docs, nil)

	assert.Equal(t, DefaultMovementConfig(), s.LoadMovement())
	assert.Error(t, s.SaveMovement(DefaultMovementConfig()))
}

func TestSettingsRoundTrip(t *testing.T) {
	docs := storage.NewMemoryStore()
	s := NewStore(docs, nil)

	settings := DefaultDeviceSettings()
	settings.WifiMode = WifiModeAPSTA
	settings.STASSID = "office"
	settings.STAPassword = "hunter22"
	settings.APAvailability = APTimeout
	settings.APTimeoutMinutes = 15
	settings.WebPort = 8787
	require.NoError(t, s.SaveSettings(settings))

	assert.Equal(t, settings, s.LoadSettings())
}

func TestParseSettingsNormalizesUnknownValues(t *testing.T) {
	settings, err := ParseSettings([]byte(`{"wifi_mode":"mesh","ap_availability":"sometimes","ap_timeout":0,"hostname":"bad host"}`))
	require.NoError(t, err)
	def := DefaultDeviceSettings()
	assert.Equal(t, def.WifiMode, settings.WifiMode)
	assert.Equal(t, def.APAvailability, settings.APAvailability)
	assert.Equal(t, def.APTimeoutMinutes, settings.APTimeoutMinutes)
	assert.Equal(t, def.Hostname, settings.Hostname)
}

func TestApplySettingsUpdate(t *testing.T) {
	current := DefaultDeviceSettings()

	updated, err := ApplySettingsUpdate(current, []byte(`{
		"auth":{"enabled":true,"username":"ops","password":""},
		"ap":{"ssid":"desk","password":"longenough","hidden":true},
		"hostname":"desk-mouse",
		"sta":{"ssid":"corp","password":"secret99"},
		"wifi_mode":"apsta","ap_availability":"timeout","ap_timeout":10,"web_port":8080
	}`))
	require.NoError(t, err)
	assert.Equal(t, "ops", updated.Username)
	assert.Equal(t, current.AuthPassword, updated.AuthPassword)
	assert.True(t, updated.APHidden)
	assert.Equal(t, WifiModeAPSTA, updated.WifiMode)
	assert.Equal(t, 8080, updated.WebPort)
}

func TestApplySettingsUpdateValidation(t *testing.T) {
	current := DefaultDeviceSettings()
	for _, body := range []string{
		`{"web_port":0}`,
		`{"web_port":70000}`,
		`{"ap":{"password":"short"}}`,
		`{"wifi_mode":"apsta"}`,
		`{"hostname":"-nope-"}`,
		`{"auth":{"enabled":true,"username":""}}`,
		`{"ap_timeout":0}`,
		`nope`,
	} {
		got, err := ApplySettingsUpdate(current, []byte(body))
		assert.ErrorIs(t, err, ErrInvalidInput, body)
		assert.Equal(t, current, got, body)
	}
}

func TestSettingsWireOmitsAuthPassword(t *testing.T) {
	data, err := json.Marshal(SettingsWire(DefaultDeviceSettings()))
	require.NoError(t, err)

	var doc struct {
		Auth map[string]any `json:"auth"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "admin", doc.Auth["username"])
	assert.NotContains(t, doc.Auth, "password")
}

func TestValidHostname(t *testing.T) {
	for name, want := range map[string]bool{
		"jiggler":      true,
		"Jiggler-2":    true,
		"":             false,
		"-jiggler":     false,
		"jiggler.home": false,
		"jigglér":      false,
		"under_score":  false,
	} {
		assert.Equal(t, want, ValidHostname(name), name)
	}
}
