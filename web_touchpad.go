package jiggler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/jetkvm/jiggler/internal/motion"
)

const doubleClickGap = 50 * time.Millisecond

var errInvalidTouchpadInput = errors.New("invalid touchpad input")

// touchpadMessage is one touchpad action. The HTTP endpoints take the fields
// of one action each; the websocket carries them tagged with Type.
type touchpadMessage struct {
	Type      string `json:"type,omitempty"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Button    string `json:"button"`
	ClickType string `json:"clickType"`
	State     string `json:"state"`
	Amount    int    `json:"amount"`
}

func (d *Device) touchpadMove(msg touchpadMessage) error {
	return d.sink.Move(motion.Clamp16(msg.X), motion.Clamp16(msg.Y), 0)
}

func (d *Device) touchpadClick(msg touchpadMessage) error {
	button, ok := motion.ParseButton(msg.Button)
	if !ok {
		return fmt.Errorf("%w: unknown button %q", errInvalidTouchpadInput, msg.Button)
	}

	clicks := 1
	switch msg.ClickType {
	case "", "single":
	case "double":
		clicks = 2
	default:
		return fmt.Errorf("%w: unknown click type %q", errInvalidTouchpadInput, msg.ClickType)
	}

	for i := 0; i < clicks; i++ {
		if i > 0 {
			d.sleep(doubleClickGap)
		}
		if err := d.sink.Press(button); err != nil {
			return err
		}
		if err := d.sink.Release(button); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) touchpadButton(msg touchpadMessage) error {
	button, ok := motion.ParseButton(msg.Button)
	if !ok {
		return fmt.Errorf("%w: unknown button %q", errInvalidTouchpadInput, msg.Button)
	}

	switch msg.State {
	case "press":
		return d.sink.Press(button)
	case "release":
		return d.sink.Release(button)
	}
	return fmt.Errorf("%w: unknown button state %q", errInvalidTouchpadInput, msg.State)
}

func (d *Device) touchpadScroll(msg touchpadMessage) error {
	return d.sink.Move(0, 0, motion.Clamp16(msg.Amount))
}

// dispatchTouchpad runs a tagged websocket message. Callers hold d.lock.
func (d *Device) dispatchTouchpad(msg touchpadMessage) error {
	switch msg.Type {
	case "move":
		return d.touchpadMove(msg)
	case "click":
		return d.touchpadClick(msg)
	case "button":
		return d.touchpadButton(msg)
	case "scroll":
		return d.touchpadScroll(msg)
	}
	return fmt.Errorf("%w: unknown message type %q", errInvalidTouchpadInput, msg.Type)
}

func touchpadResult(err error) result {
	switch {
	case err == nil:
		return statusResult(http.StatusOK, "success")
	case errors.Is(err, errInvalidTouchpadInput):
		return errorResult(http.StatusBadRequest, err.Error())
	}
	webLogger.Warn().Err(err).Msg("touchpad action failed")
	return errorResult(http.StatusInternalServerError, err.Error())
}

func (d *Device) touchpadHandler(action func(touchpadMessage) error) handlerFunc {
	return func(c *gin.Context) result {
		var msg touchpadMessage
		if err := c.ShouldBindJSON(&msg); err != nil {
			return errorResult(http.StatusBadRequest, "Invalid JSON")
		}
		return touchpadResult(action(msg))
	}
}

func (d *Device) handleTouchpadMove(c *gin.Context) result {
	return d.touchpadHandler(d.touchpadMove)(c)
}

func (d *Device) handleTouchpadClick(c *gin.Context) result {
	return d.touchpadHandler(d.touchpadClick)(c)
}

func (d *Device) handleTouchpadButton(c *gin.Context) result {
	return d.touchpadHandler(d.touchpadButton)(c)
}

func (d *Device) handleTouchpadScroll(c *gin.Context) result {
	return d.touchpadHandler(d.touchpadScroll)(c)
}

// handleTouchpadSocket upgrades to a websocket once the session is checked.
// Every message takes the device lock on its own.
func (d *Device) handleTouchpadSocket(c *gin.Context) result {
	return result{after: func(c *gin.Context) {
		conn, err := websocket.Accept(c.Writer, c.Request, nil)
		if err != nil {
			webLogger.Warn().Err(err).Msg("failed to accept touchpad websocket")
			return
		}
		defer conn.CloseNow()

		if err := d.serveTouchpad(c.Request.Context(), conn); err != nil {
			webLogger.Debug().Err(err).Msg("touchpad websocket closed")
			return
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}}
}

func (d *Device) serveTouchpad(ctx context.Context, conn *websocket.Conn) error {
	webLogger.Info().Msg("touchpad websocket connected")
	for {
		var msg touchpadMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return err
		}

		d.lock.Lock()
		err := d.dispatchTouchpad(msg)
		d.lock.Unlock()

		if err != nil {
			webLogger.Warn().Err(err).Str("type", msg.Type).Msg("touchpad action failed")
			reply := map[string]string{"status": "error", "message": err.Error()}
			if err := wsjson.Write(ctx, conn, reply); err != nil {
				return err
			}
		}
	}
}
