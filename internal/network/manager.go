// Package network decides which WiFi roles the device takes at boot and
// retires the access point once its availability window has passed.
package network

import (
	"context"
	"sync"
	"time"

	"github.com/jetkvm/jiggler/internal/config"
	"github.com/jetkvm/jiggler/internal/logging"
	"github.com/rs/zerolog"
)

const (
	StationConnectTimeout = 10 * time.Second
	stationPollInterval   = 500 * time.Millisecond
)

var defaultLogger = logging.GetSubsystemLogger("network")

// Radio is the WiFi hardware as the manager needs it.
type Radio interface {
	ConnectStation(ctx context.Context, ssid, password string) error
	StationConnected() bool
	DisconnectStation() error
	StartAccessPoint(ssid, password string, hidden bool) error
	StopAccessPoint() error
	// Address is the IPv4 address clients reach the device on.
	Address() string
}

type Status struct {
	InAPMode         bool   `json:"in_ap_mode"`
	StationConnected bool   `json:"station_connected"`
	Address          string `json:"ip_address"`
}

type ManagerOptions struct {
	Radio    Radio
	Settings config.DeviceSettings
	Logger   *zerolog.Logger
	Now      func() time.Time
	Sleep    func(time.Duration)
}

type Manager struct {
	lock sync.Mutex

	radio    Radio
	settings config.DeviceSettings
	l        *zerolog.Logger
	now      func() time.Time
	sleep    func(time.Duration)

	apActive         bool
	apStartedAt      time.Time
	stationConnected bool
	fellBack         bool
}

func NewManager(opts ManagerOptions) *Manager {
	if opts.Logger == nil {
		opts.Logger = defaultLogger
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &Manager{
		radio:    opts.Radio,
		settings: opts.Settings,
		l:        opts.Logger,
		now:      opts.Now,
		sleep:    opts.Sleep,
	}
}

// Start brings up the WiFi roles. It runs once at boot; settings changed
// later only apply after a restart. A station that fails to associate
// within StationConnectTimeout leaves the device in AP-only mode.
func (m *Manager) Start(ctx context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	s := m.settings
	if s.WifiMode == config.WifiModeAPSTA && s.STASSID != "" {
		m.stationConnected = m.connectStation(ctx, s.STASSID, s.STAPassword)
		if !m.stationConnected {
			m.l.Warn().Str("ssid", s.STASSID).Msg("failed to join network, falling back to AP mode")
			m.fellBack = true
			if err := m.radio.DisconnectStation(); err != nil {
				m.l.Warn().Err(err).Msg("failed to stop station")
			}
		}
	}

	if err := m.radio.StartAccessPoint(s.APSSID, s.APPassword, s.APHidden); err != nil {
		m.l.Error().Err(err).Str("ssid", s.APSSID).Msg("failed to start access point")
		return err
	}
	m.apActive = true
	m.apStartedAt = m.now()
	m.l.Info().
		Str("ssid", s.APSSID).
		Bool("hidden", s.APHidden).
		Bool("station_connected", m.stationConnected).
		Msg("access point started")
	return nil
}

func (m *Manager) connectStation(ctx context.Context, ssid, password string) bool {
	scopedLogger := m.l.With().Str("ssid", ssid).Logger()
	scopedLogger.Info().Msg("connecting to WiFi network")

	if err := m.radio.ConnectStation(ctx, ssid, password); err != nil {
		scopedLogger.Warn().Err(err).Msg("failed to start station")
		return false
	}

	deadline := m.now().Add(StationConnectTimeout)
	for !m.radio.StationConnected() {
		if !m.now().Before(deadline) || ctx.Err() != nil {
			return false
		}
		m.sleep(stationPollInterval)
	}

	scopedLogger.Info().Str("ip", m.radio.Address()).Msg("connected to WiFi network")
	return true
}

// CheckAPTimeout stops the access point when availability is limited, the
// station is connected and the timeout has passed. It reports whether the
// AP was stopped by this call. A fallback AP is never stopped.
func (m *Manager) CheckAPTimeout() bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	if !m.apActive || m.fellBack || !m.stationConnected {
		return false
	}
	if m.settings.APAvailability != config.APTimeout {
		return false
	}
	timeout := time.Duration(m.settings.APTimeoutMinutes) * time.Minute
	if m.now().Sub(m.apStartedAt) < timeout {
		return false
	}

	if err := m.radio.StopAccessPoint(); err != nil {
		m.l.Warn().Err(err).Msg("failed to stop access point")
		return false
	}
	m.apActive = false
	m.l.Info().Dur("after", timeout).Msg("access point timeout reached, AP stopped")
	return true
}

func (m *Manager) Status() Status {
	m.lock.Lock()
	defer m.lock.Unlock()

	return Status{
		InAPMode:         m.apActive,
		StationConnected: m.stationConnected,
		Address:          m.radio.Address(),
	}
}
