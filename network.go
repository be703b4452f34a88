package jiggler

import (
	"os"
	"path/filepath"

	"github.com/jetkvm/jiggler/internal/config"
	"github.com/jetkvm/jiggler/internal/network"
)

// NewWifiRoles returns a network role factory for the given WiFi interface.
// Runtime files for hostapd and wpa_supplicant are kept below runDir.
func NewWifiRoles(iface, runDir string) func(config.DeviceSettings) NetworkRoles {
	return func(settings config.DeviceSettings) NetworkRoles {
		runtimeDir := filepath.Join(runDir, "network")
		if err := os.MkdirAll(runtimeDir, 0700); err != nil {
			networkLogger.Warn().Err(err).Str("dir", runtimeDir).Msg("failed to create network runtime directory")
		}

		radio := network.NewWifiRadio(network.WifiRadioOptions{
			Interface:  iface,
			RuntimeDir: runtimeDir,
			Logger:     networkLogger,
		})
		return network.NewManager(network.ManagerOptions{
			Radio:    radio,
			Settings: settings,
			Logger:   networkLogger,
		})
	}
}
