package jiggler

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Options are the runtime options read from the environment at startup.
type Options struct {
	DataDir       string `env:"JIGGLER_DATA_DIR" envDefault:"/userdata/jiggler"`
	StaticDir     string `env:"JIGGLER_STATIC_DIR" envDefault:"/userdata/jiggler/www"`
	HidDevice     string `env:"JIGGLER_HID_DEVICE" envDefault:"/dev/hidg0"`
	ConfigfsPath  string `env:"JIGGLER_CONFIGFS" envDefault:"/sys/kernel/config/usb_gadget"`
	UDC           string `env:"JIGGLER_UDC"`
	WifiInterface string `env:"JIGGLER_WIFI_INTERFACE" envDefault:"wlan0"`
	// ListenPort overrides the persisted web port when set.
	ListenPort int    `env:"JIGGLER_LISTEN_PORT"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
}

func LoadOptions() (Options, error) {
	var opts Options
	if err := env.Parse(&opts); err != nil {
		return opts, fmt.Errorf("parse env: %w", err)
	}
	if opts.ListenPort < 0 || opts.ListenPort > 65535 {
		return opts, fmt.Errorf("JIGGLER_LISTEN_PORT %d is out of range", opts.ListenPort)
	}
	return opts, nil
}
