// Package usbgadget configures a configfs USB gadget that presents a
// relative mouse and writes HID reports to it.
package usbgadget

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jetkvm/jiggler/internal/logging"
	"github.com/jetkvm/jiggler/internal/motion"
	"github.com/rs/zerolog"
)

const (
	DefaultConfigPath  = "/sys/kernel/config/usb_gadget"
	DefaultHidDevice   = "/dev/hidg0"
	defaultUdcClassDir = "/sys/class/udc"
)

var defaultLogger = logging.GetSubsystemLogger("usb")

type UsbGadget struct {
	name          string
	kvmGadgetPath string
	configC1Path  string
	udcClassDir   string

	config  *Config
	devices *Devices

	relMouseDevicePath string
	relMouseHidFile    *os.File
	relMouseLock       sync.Mutex
	relMouseButtons    byte

	log        *zerolog.Logger
	strictMode bool
}

type Options struct {
	// ConfigfsPath defaults to DefaultConfigPath.
	ConfigfsPath string
	// HidDevice defaults to DefaultHidDevice.
	HidDevice   string
	UdcClassDir string
}

func NewUsbGadget(name string, devices *Devices, config *Config, logger *zerolog.Logger) *UsbGadget {
	return NewUsbGadgetWithOptions(name, devices, config, logger, Options{})
}

func NewUsbGadgetWithOptions(name string, devices *Devices, config *Config, logger *zerolog.Logger, opts Options) *UsbGadget {
	if logger == nil {
		logger = defaultLogger
	}
	if opts.ConfigfsPath == "" {
		opts.ConfigfsPath = DefaultConfigPath
	}
	if opts.HidDevice == "" {
		opts.HidDevice = DefaultHidDevice
	}
	if opts.UdcClassDir == "" {
		opts.UdcClassDir = defaultUdcClassDir
	}

	gadgetPath := filepath.Join(opts.ConfigfsPath, name)
	return &UsbGadget{
		name:               name,
		kvmGadgetPath:      gadgetPath,
		configC1Path:       filepath.Join(gadgetPath, "configs", "c.1"),
		udcClassDir:        opts.UdcClassDir,
		config:             config,
		devices:            devices,
		relMouseDevicePath: opts.HidDevice,
		log:                logger,
		strictMode:         config.strictMode,
	}
}

// Init writes the gadget tree and binds it to a UDC. Problems are logged
// unless the gadget runs in strict mode.
func (u *UsbGadget) Init() error {
	for _, item := range u.enabledItems() {
		if err := u.writeItem(item); err != nil {
			return u.logError("failed to configure gadget", err)
		}
	}
	return u.BindUDC()
}

func (u *UsbGadget) udcName() (string, error) {
	if u.config.UDC != "" {
		return u.config.UDC, nil
	}
	entries, err := os.ReadDir(u.udcClassDir)
	if err != nil {
		return "", err
	}
	if len(entries) > 0 {
		return entries[0].Name(), nil
	}
	return "", fmt.Errorf("no USB device controller in %s", u.udcClassDir)
}

func (u *UsbGadget) BindUDC() error {
	udc, err := u.udcName()
	if err != nil {
		return u.logWarn("no UDC to bind the gadget to", err)
	}

	udcFile := filepath.Join(u.kvmGadgetPath, "UDC")
	if current, err := os.ReadFile(udcFile); err == nil && strings.TrimSpace(string(current)) == udc {
		return nil
	}
	if err := os.WriteFile(udcFile, []byte(udc), 0644); err != nil {
		return u.logError("failed to bind gadget to UDC", err)
	}
	u.log.Info().Str("udc", udc).Msg("USB gadget bound")
	return nil
}

func (u *UsbGadget) Press(button motion.Button) error {
	return u.setButtons(func(buttons byte) byte { return buttons | byte(button) })
}

func (u *UsbGadget) Release(button motion.Button) error {
	return u.setButtons(func(buttons byte) byte { return buttons &^ byte(button) })
}

func (u *UsbGadget) Close() error {
	u.relMouseLock.Lock()
	defer u.relMouseLock.Unlock()

	if u.relMouseHidFile == nil {
		return nil
	}
	err := u.relMouseHidFile.Close()
	u.relMouseHidFile = nil
	return err
}
