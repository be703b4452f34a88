package jiggler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jetkvm/jiggler/internal/session"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (d *Device) handleAuthCheck(c *gin.Context) result {
	if !d.authenticated(c) {
		return unauthorized
	}
	return statusResult(http.StatusOK, "authenticated")
}

func (d *Device) handleLogin(c *gin.Context) result {
	client := c.ClientIP()
	scopedLogger := sessionLogger.With().Str("client", client).Logger()

	if d.limiter.Blocked(client) {
		d.metrics.loginFailures.WithLabelValues(failureRateLimited).Inc()
		scopedLogger.Warn().Msg("login rejected, too many failed attempts")
		return errorResult(http.StatusTooManyRequests, "Too many failed login attempts")
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return errorResult(http.StatusBadRequest, "Invalid JSON")
	}

	id, err := d.sessions.Create(req.Username, req.Password)
	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		d.limiter.Fail(client)
		d.metrics.loginFailures.WithLabelValues(failureInvalidCredentials).Inc()
		scopedLogger.Info().Msg("login failed: invalid credentials")
		return errorResult(http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, session.ErrNoCapacity):
		d.metrics.loginFailures.WithLabelValues(failureNoCapacity).Inc()
		scopedLogger.Warn().Msg("login failed: session table full")
		return errorResult(http.StatusInternalServerError, "No session slots available")
	case err != nil:
		scopedLogger.Error().Err(err).Msg("login failed")
		return errorResult(http.StatusInternalServerError, err.Error())
	}

	d.limiter.Reset(client)
	scopedLogger.Info().Str("username", req.Username).Msg("login successful")
	return statusResult(http.StatusOK, "success").withCookie(sessionCookie(id, session.Timeout))
}

func (d *Device) handleLogout(c *gin.Context) result {
	id := sessionID(c)
	res := jsonResult(http.StatusOK, gin.H{"status": "warning", "message": "No valid session found"})
	if id != "" && d.sessions.Invalidate(id) {
		res = jsonResult(http.StatusOK, gin.H{"status": "success", "message": "Logged out successfully"})
	}
	return res.withCookie(expiredSessionCookie())
}
