package usbgadget

import (
	"fmt"
	"os"
	"time"
)

// relativeMouseReportDesc is a boot-compatible mouse: three buttons plus
// relative X, Y and wheel, one signed byte each.
var relativeMouseReportDesc = []byte{
	0x05, 0x01, // USAGE_PAGE (Generic Desktop)
	0x09, 0x02, // USAGE (Mouse)
	0xa1, 0x01, // COLLECTION (Application)
	0x09, 0x01, //   USAGE (Pointer)
	0xa1, 0x00, //   COLLECTION (Physical)
	0x05, 0x09, //     USAGE_PAGE (Button)
	0x19, 0x01, //     USAGE_MINIMUM (Button 1)
	0x29, 0x03, //     USAGE_MAXIMUM (Button 3)
	0x15, 0x00, //     LOGICAL_MINIMUM (0)
	0x25, 0x01, //     LOGICAL_MAXIMUM (1)
	0x95, 0x03, //     REPORT_COUNT (3)
	0x75, 0x01, //     REPORT_SIZE (1)
	0x81, 0x02, //     INPUT (Data,Var,Abs)
	0x95, 0x01, //     REPORT_COUNT (1)
	0x75, 0x05, //     REPORT_SIZE (5)
	0x81, 0x03, //     INPUT (Cnst,Var,Abs)
	0x05, 0x01, //     USAGE_PAGE (Generic Desktop)
	0x09, 0x30, //     USAGE (X)
	0x09, 0x31, //     USAGE (Y)
	0x09, 0x38, //     USAGE (Wheel)
	0x15, 0x81, //     LOGICAL_MINIMUM (-127)
	0x25, 0x7f, //     LOGICAL_MAXIMUM (127)
	0x75, 0x08, //     REPORT_SIZE (8)
	0x95, 0x03, //     REPORT_COUNT (3)
	0x81, 0x06, //     INPUT (Data,Var,Rel)
	0xc0, //   END_COLLECTION
	0xc0, // END_COLLECTION
}

var relativeMouseConfig = gadgetConfigItem{
	order:      1002,
	device:     "relative_mouse",
	path:       []string{"functions", "hid.usb0"},
	configPath: []string{"hid.usb0"},
	attrs: gadgetAttributes{
		"protocol":      "2",
		"subclass":      "1",
		"report_length": "4",
	},
	reportDesc: relativeMouseReportDesc,
}

const (
	maxReportDelta   = 127
	hidWriteDeadline = 100 * time.Millisecond
)

func (u *UsbGadget) openRelMouseHidFile() error {
	if u.relMouseHidFile != nil {
		return nil
	}
	file, err := os.OpenFile(u.relMouseDevicePath, os.O_RDWR, 0666)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", u.relMouseDevicePath, err)
	}
	u.relMouseHidFile = file
	return nil
}

func (u *UsbGadget) writeRelMouseReport(report []byte) error {
	if err := u.openRelMouseHidFile(); err != nil {
		return err
	}

	// not every file supports deadlines; a failure here only means no timeout
	_ = u.relMouseHidFile.SetWriteDeadline(time.Now().Add(hidWriteDeadline))

	if _, err := u.relMouseHidFile.Write(report); err != nil {
		// reopen on the next report, the host may have re-enumerated
		u.relMouseHidFile.Close()
		u.relMouseHidFile = nil
		return fmt.Errorf("failed to write relative mouse report: %w", err)
	}
	return nil
}

// RelMouseReport sends one raw report with the current button state.
func (u *UsbGadget) RelMouseReport(dx, dy, wheel int8) error {
	u.relMouseLock.Lock()
	defer u.relMouseLock.Unlock()

	return u.writeRelMouseReport([]byte{u.relMouseButtons, byte(dx), byte(dy), byte(wheel)})
}

// Move sends a relative movement, splitting deltas that exceed what one
// report can carry into several reports.
func (u *UsbGadget) Move(dx, dy, wheel int16) error {
	x, y, w := int(dx), int(dy), int(wheel)
	for x != 0 || y != 0 || w != 0 {
		sx, sy, sw := clampReport(x), clampReport(y), clampReport(w)
		if err := u.RelMouseReport(int8(sx), int8(sy), int8(sw)); err != nil {
			return err
		}
		x, y, w = x-sx, y-sy, w-sw
	}
	return nil
}

func (u *UsbGadget) setButtons(update func(buttons byte) byte) error {
	u.relMouseLock.Lock()
	defer u.relMouseLock.Unlock()

	u.relMouseButtons = update(u.relMouseButtons)
	return u.writeRelMouseReport([]byte{u.relMouseButtons, 0, 0, 0})
}

func clampReport(v int) int {
	switch {
	case v > maxReportDelta:
		return maxReportDelta
	case v < -maxReportDelta:
		return -maxReportDelta
	}
	return v
}
