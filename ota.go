package jiggler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jetkvm/jiggler/internal/ota"
)

const updateFormField = "update"

// handleUpdate checks the request under the device lock, then streams the
// image to the stager without holding it. A staged image reboots the device.
func (d *Device) handleUpdate(c *gin.Context) result {
	if d.stager == nil {
		return errorResult(http.StatusNotImplemented, "Updates are not supported on this device")
	}

	target, err := ota.ParseTarget(c.Query("target"))
	if err != nil {
		return errorResult(http.StatusBadRequest, err.Error())
	}

	force := c.Query("force") == "true"
	if err := d.stager.CheckVersion(c.Query("version"), force); err != nil {
		if errors.Is(err, ota.ErrDowngrade) {
			return errorResult(http.StatusConflict, err.Error())
		}
		return errorResult(http.StatusBadRequest, err.Error())
	}

	return result{after: func(c *gin.Context) {
		d.receiveUpdate(c, target)
	}}
}

// receiveUpdate streams the multipart field straight to disk. The size is
// not known up front, so the stager only rejects empty images.
func (d *Device) receiveUpdate(c *gin.Context, target ota.Target) {
	reader, err := c.Request.MultipartReader()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Expected a multipart upload"})
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Malformed multipart upload"})
			return
		}
		if part.FormName() != updateFormField {
			_ = part.Close()
			continue
		}

		path, err := d.stager.Stage(target, part, 0)
		_ = part.Close()
		if err != nil {
			otaLogger.Error().Err(err).Str("target", string(target)).Msg("update failed")
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
			return
		}

		otaLogger.Info().Str("target", string(target)).Str("path", path).Msg("update staged, rebooting")
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Update staged. Rebooting."})
		d.scheduleReboot()
		return
	}

	c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Missing update file"})
}
