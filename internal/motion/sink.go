package motion

// Button is a mouse button as understood by the HID sink.
type Button uint8

const (
	ButtonLeft   Button = 1 << 0
	ButtonRight  Button = 1 << 1
	ButtonMiddle Button = 1 << 2
)

// ParseButton maps the touchpad wire names to buttons.
func ParseButton(name string) (Button, bool) {
	switch name {
	case "left":
		return ButtonLeft, true
	case "right":
		return ButtonRight, true
	case "middle":
		return ButtonMiddle, true
	}
	return 0, false
}

// HIDSink emits relative mouse reports. Every call is one discrete report
// (or, for deltas beyond what a report can carry, a short burst of them).
type HIDSink interface {
	Move(dx, dy, wheel int16) error
	Press(button Button) error
	Release(button Button) error
}
