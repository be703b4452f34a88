package usbgadget

import (
	"errors"
	"fmt"
)

// logWarn reports a recoverable gadget problem. In strict mode it is
// returned to the caller instead of being logged.
func (u *UsbGadget) logWarn(msg string, err error) error {
	if err == nil {
		err = errors.New(msg)
	} else {
		err = fmt.Errorf("%s: %w", msg, err)
	}
	if u.strictMode {
		return err
	}
	u.log.Warn().Err(err).Msg(msg)
	return nil
}

func (u *UsbGadget) logError(msg string, err error) error {
	if err == nil {
		err = errors.New(msg)
	} else {
		err = fmt.Errorf("%s: %w", msg, err)
	}
	if u.strictMode {
		return err
	}
	u.log.Error().Err(err).Msg(msg)
	return nil
}
