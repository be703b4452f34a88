package jiggler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jetkvm/jiggler/internal/config"
)

type statusResponse struct {
	JigglerEnabled   bool   `json:"jiggler_enabled"`
	LastMoveTime     int64  `json:"last_move_time"`
	NextMoveTime     int64  `json:"next_move_time"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	InAPMode         bool   `json:"in_ap_mode"`
	StationConnected bool   `json:"station_connected"`
	IPAddress        string `json:"ip_address"`
	Hostname         string `json:"hostname"`
	Version          string `json:"version"`
	ActiveSessions   int    `json:"active_sessions"`
}

// sinceBoot renders t as milliseconds since boot, 0 for the zero time.
func (d *Device) sinceBoot(t time.Time) int64 {
	if t.IsZero() || t.Before(d.bootTime) {
		return 0
	}
	return t.Sub(d.bootTime).Milliseconds()
}

func invalidInput(err error) result {
	if errors.Is(err, config.ErrInvalidInput) {
		return errorResult(http.StatusBadRequest, err.Error())
	}
	return errorResult(http.StatusBadRequest, "Invalid JSON")
}

func (d *Device) handleGetConfig(c *gin.Context) result {
	return jsonResult(http.StatusOK, config.MovementWire(d.movement))
}

func (d *Device) handleSetConfig(c *gin.Context) result {
	body, err := c.GetRawData()
	if err != nil {
		return errorResult(http.StatusBadRequest, "Invalid JSON")
	}

	updated, err := config.ApplyMovementUpdate(d.movement, body)
	if err != nil {
		return invalidInput(err)
	}

	d.movement = updated
	if err := d.configs.SaveMovement(updated); err != nil {
		configLogger.Error().Err(err).Msg("failed to persist movement config, keeping it in memory")
	}
	d.resetSchedule(d.now())

	configLogger.Info().
		Str("pattern", updated.Pattern.String()).
		Int("size", updated.Size).
		Int("speed_ms", updated.SpeedMs).
		Dur("interval", updated.Interval()).
		Bool("enabled", updated.JigglerEnabled).
		Msg("configuration updated")
	return statusResult(http.StatusOK, "success")
}

func (d *Device) handleStatus(c *gin.Context) result {
	state := d.motion.State()
	resp := statusResponse{
		JigglerEnabled: d.movement.JigglerEnabled,
		LastMoveTime:   d.sinceBoot(state.LastMove),
		NextMoveTime:   d.sinceBoot(state.NextMove),
		UptimeSeconds:  int64(d.now().Sub(d.bootTime) / time.Second),
		Hostname:       d.settings.Hostname,
		Version:        d.version.String(),
		ActiveSessions: d.sessions.ActiveCount(),
	}
	if d.network != nil {
		st := d.network.Status()
		resp.InAPMode = st.InAPMode
		resp.StationConnected = st.StationConnected
		resp.IPAddress = st.Address
	}
	return jsonResult(http.StatusOK, resp)
}

// handleMove runs a movement inline, blocking like a scheduled one.
func (d *Device) handleMove(c *gin.Context) result {
	if err := d.performMovement(triggerManual); err != nil {
		return errorResult(http.StatusInternalServerError, "Movement failed: "+err.Error())
	}
	return statusResult(http.StatusOK, "success")
}

func (d *Device) handleGetSettings(c *gin.Context) result {
	return jsonResult(http.StatusOK, config.SettingsWire(d.settings))
}

// handleSetSettings persists new settings. Credentials apply right away,
// network settings on the next boot.
func (d *Device) handleSetSettings(c *gin.Context) result {
	body, err := c.GetRawData()
	if err != nil {
		return errorResult(http.StatusBadRequest, "Invalid JSON")
	}

	updated, err := config.ApplySettingsUpdate(d.settings, body)
	if err != nil {
		return invalidInput(err)
	}

	d.settings = updated
	if err := d.configs.SaveSettings(updated); err != nil {
		configLogger.Error().Err(err).Msg("failed to persist device settings, keeping them in memory")
	}

	configLogger.Info().
		Str("hostname", updated.Hostname).
		Str("wifi_mode", string(updated.WifiMode)).
		Bool("auth_enabled", updated.AuthEnabled).
		Msg("device settings updated")
	return jsonResult(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Settings saved. Reboot to apply network changes.",
	})
}

func (d *Device) handleReboot(c *gin.Context) result {
	d.scheduleReboot()
	return statusResult(http.StatusOK, "success")
}
