package jiggler

import (
	"fmt"
	"os"
	"regexp"

	"github.com/jetkvm/jiggler/internal/usbgadget"
)

const gadgetName = "jiggler"

var gadgetConfig = usbgadget.Config{
	VendorId:     "0x046d",
	ProductId:    "0xc077",
	Manufacturer: "Logitech",
	Product:      "USB Optical Mouse",
}

const fallbackSerialNumber = "jiggler0001"

var cpuSerialPattern = regexp.MustCompile(`Serial\s*:\s*(\S+)`)

func extractSerialNumber() (string, error) {
	content, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return "", err
	}

	matches := cpuSerialPattern.FindStringSubmatch(string(content))
	if len(matches) < 2 {
		return "", fmt.Errorf("no serial found")
	}

	return matches[1], nil
}

// NewMouseGadget sets up the configfs gadget and returns it as the HID sink.
func NewMouseGadget(opts Options) (*usbgadget.UsbGadget, error) {
	cfg := gadgetConfig
	cfg.UDC = opts.UDC
	if serial, err := extractSerialNumber(); err == nil {
		cfg.SerialNumber = serial
	} else {
		usbLogger.Warn().Err(err).Msg("unknown serial number, using fallback")
		cfg.SerialNumber = fallbackSerialNumber
	}

	gadget := usbgadget.NewUsbGadgetWithOptions(
		gadgetName,
		&usbgadget.Devices{RelativeMouse: true},
		&cfg,
		usbLogger,
		usbgadget.Options{
			ConfigfsPath: opts.ConfigfsPath,
			HidDevice:    opts.HidDevice,
		},
	)
	if err := gadget.Init(); err != nil {
		return nil, err
	}
	return gadget, nil
}
