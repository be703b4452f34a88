package usbgadget

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Config describes how the gadget presents itself to the host.
type Config struct {
	VendorId     string
	ProductId    string
	SerialNumber string
	Manufacturer string
	Product      string

	// UDC is the controller to bind to; empty picks the first one found.
	UDC string

	strictMode bool
}

// Devices selects the functions the gadget exposes.
type Devices struct {
	RelativeMouse bool
}

type gadgetAttributes map[string]string

type gadgetConfigItem struct {
	order       uint
	device      string
	path        []string
	attrs       gadgetAttributes
	configAttrs gadgetAttributes
	configPath  []string
	reportDesc  []byte
}

func (u *UsbGadget) defaultGadgetConfig() []gadgetConfigItem {
	return []gadgetConfigItem{
		{
			order: 0,
			attrs: gadgetAttributes{
				"bcdUSB":    "0x0200",
				"idVendor":  u.config.VendorId,
				"idProduct": u.config.ProductId,
				"bcdDevice": "0x0100",
			},
		},
		{
			order: 1,
			path:  []string{"strings", "0x409"},
			attrs: gadgetAttributes{
				"serialnumber": u.config.SerialNumber,
				"manufacturer": u.config.Manufacturer,
				"product":      u.config.Product,
			},
		},
		{
			order: 2,
			path:  []string{"configs", "c.1"},
			attrs: gadgetAttributes{
				"MaxPower": "100",
			},
		},
		{
			order: 3,
			path:  []string{"configs", "c.1", "strings", "0x409"},
			attrs: gadgetAttributes{
				"configuration": "Config 1: HID",
			},
		},
		relativeMouseConfig,
	}
}

func (u *UsbGadget) enabledItems() []gadgetConfigItem {
	items := make([]gadgetConfigItem, 0)
	for _, item := range u.defaultGadgetConfig() {
		if item.device == "relative_mouse" && !u.devices.RelativeMouse {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].order < items[j].order })
	return items
}

func (u *UsbGadget) writeItem(item gadgetConfigItem) error {
	dir := filepath.Join(append([]string{u.kvmGadgetPath}, item.path...)...)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	for name, value := range item.attrs {
		if err := writeIfDifferent(filepath.Join(dir, name), []byte(value)); err != nil {
			return err
		}
	}
	if item.reportDesc != nil {
		if err := writeIfDifferent(filepath.Join(dir, "report_desc"), item.reportDesc); err != nil {
			return err
		}
	}

	if item.configPath == nil {
		return nil
	}

	link := filepath.Join(append([]string{u.configC1Path}, item.configPath...)...)
	if _, err := os.Lstat(link); err == nil {
		return nil
	}
	if err := os.Symlink(dir, link); err != nil {
		return fmt.Errorf("failed to link %s: %w", link, err)
	}
	return nil
}

func writeIfDifferent(path string, content []byte) error {
	if existing, err := os.ReadFile(path); err == nil && string(existing) == string(content) {
		return nil
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
