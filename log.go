package jiggler

import "github.com/jetkvm/jiggler/internal/logging"

var (
	logger        = logging.GetSubsystemLogger("jiggler")
	webLogger     = logging.GetSubsystemLogger("web")
	sessionLogger = logging.GetSubsystemLogger("session")
	configLogger  = logging.GetSubsystemLogger("config")
	motionLogger  = logging.GetSubsystemLogger("motion")
	usbLogger     = logging.GetSubsystemLogger("usb")
	networkLogger = logging.GetSubsystemLogger("network")
	otaLogger     = logging.GetSubsystemLogger("ota")
)
