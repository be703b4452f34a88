package jiggler

import (
	"errors"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const sessionCookieName = "session"

// result is what a handler answers with. The zero value writes nothing.
type result struct {
	status   int
	body     any
	redirect string
	page     string
	cookie   *http.Cookie

	// after runs once the device lock is released; it owns the response.
	after func(c *gin.Context)
}

func jsonResult(status int, body any) result {
	return result{status: status, body: body}
}

func statusResult(status int, state string) result {
	return jsonResult(status, gin.H{"status": state})
}

func errorResult(status int, message string) result {
	return jsonResult(status, gin.H{"status": "error", "message": message})
}

func redirectTo(location string) result {
	return result{status: http.StatusFound, redirect: location}
}

func pageResult(name string) result {
	return result{status: http.StatusOK, page: name}
}

func (r result) withCookie(cookie *http.Cookie) result {
	r.cookie = cookie
	return r
}

type handlerFunc func(c *gin.Context) result

type access int

const (
	accessPublic access = iota
	// accessAPI answers unauthenticated requests with 401.
	accessAPI
	// accessPage redirects unauthenticated requests to /login.
	accessPage
)

var unauthorized = statusResult(http.StatusUnauthorized, "unauthorized")

// route adapts h to gin, holding the device lock while it runs.
func (d *Device) route(a access, h handlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		d.lock.Lock()
		var res result
		switch {
		case a == accessAPI && !d.authenticated(c):
			res = unauthorized
		case a == accessPage && !d.authenticated(c):
			res = redirectTo("/login")
		default:
			res = h(c)
		}
		d.lock.Unlock()

		d.write(c, res)
	}
}

func (d *Device) write(c *gin.Context, res result) {
	if res.cookie != nil {
		http.SetCookie(c.Writer, res.cookie)
	}

	switch {
	case res.after != nil:
		res.after(c)
	case res.redirect != "":
		c.Redirect(res.status, res.redirect)
	case res.page != "":
		d.servePage(c, res.page)
	case res.body != nil:
		c.JSON(res.status, res.body)
	case res.status != 0:
		c.Status(res.status)
	}
}

func (d *Device) servePage(c *gin.Context, name string) {
	if d.static == nil {
		c.String(http.StatusNotFound, "Not Found")
		return
	}
	data, err := fs.ReadFile(d.static, name)
	if err != nil {
		webLogger.Warn().Err(err).Str("page", name).Msg("failed to read page")
		c.String(http.StatusNotFound, "Not Found")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", data)
}

func sessionID(c *gin.Context) string {
	id, err := c.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return id
}

// authenticated validates and refreshes the request's session. Callers hold
// d.lock.
func (d *Device) authenticated(c *gin.Context) bool {
	return d.sessions.Validate(sessionID(c))
}

func sessionCookie(id string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func expiredSessionCookie() *http.Cookie {
	c := sessionCookie("", 0)
	c.MaxAge = -1
	return c
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		webLogger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func (d *Device) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/", d.route(accessPage, d.handleIndex))
	r.GET("/settings", d.route(accessPage, d.handlePage("settings.html")))
	r.GET("/touchpad", d.route(accessPage, d.handlePage("touchpad.html")))
	r.GET("/login", d.route(accessPublic, d.handleLoginPage))
	r.GET("/index.html", func(c *gin.Context) { c.Redirect(http.StatusFound, "/") })
	r.GET("/login.html", func(c *gin.Context) { c.Redirect(http.StatusFound, "/login") })

	api := r.Group("/api")
	{
		api.GET("/auth/check", d.route(accessPublic, d.handleAuthCheck))
		api.POST("/auth/login", d.route(accessPublic, d.handleLogin))
		api.POST("/auth/logout", d.route(accessPublic, d.handleLogout))

		api.GET("/config", d.route(accessAPI, d.handleGetConfig))
		api.POST("/config", d.route(accessAPI, d.handleSetConfig))
		api.GET("/status", d.route(accessAPI, d.handleStatus))
		api.POST("/move", d.route(accessAPI, d.handleMove))
		api.GET("/settings", d.route(accessAPI, d.handleGetSettings))
		api.POST("/settings", d.route(accessAPI, d.handleSetSettings))
		api.POST("/reboot", d.route(accessAPI, d.handleReboot))

		api.POST("/touchpad/move", d.route(accessAPI, d.handleTouchpadMove))
		api.POST("/touchpad/click", d.route(accessAPI, d.handleTouchpadClick))
		api.POST("/touchpad/button", d.route(accessAPI, d.handleTouchpadButton))
		api.POST("/touchpad/scroll", d.route(accessAPI, d.handleTouchpadScroll))
		api.GET("/touchpad/ws", d.route(accessAPI, d.handleTouchpadSocket))
	}

	r.POST("/update", d.route(accessAPI, d.handleUpdate))
	r.GET("/metrics", d.route(accessAPI, d.handleMetrics))

	r.NoRoute(d.handleNoRoute)

	return r
}

func (d *Device) handleIndex(c *gin.Context) result {
	return pageResult("index.html")
}

func (d *Device) handlePage(name string) handlerFunc {
	return func(c *gin.Context) result {
		return pageResult(name)
	}
}

func (d *Device) handleLoginPage(c *gin.Context) result {
	if d.authenticated(c) {
		return redirectTo("/")
	}
	return pageResult("login.html")
}

func (d *Device) handleMetrics(c *gin.Context) result {
	return result{after: func(c *gin.Context) {
		d.metrics.handler.ServeHTTP(c.Writer, c.Request)
	}}
}

// handleNoRoute serves static assets without authentication. Anything else
// is a 404 for signed-in users and a redirect to the login page otherwise.
func (d *Device) handleNoRoute(c *gin.Context) {
	if c.Request.Method == http.MethodGet && d.serveAsset(c) {
		return
	}
	d.route(accessPage, func(c *gin.Context) result {
		return result{after: func(c *gin.Context) {
			c.String(http.StatusNotFound, "Not Found")
		}}
	})(c)
}

func (d *Device) serveAsset(c *gin.Context) bool {
	if d.static == nil {
		return false
	}
	name := strings.TrimPrefix(path.Clean(c.Request.URL.Path), "/")
	if name == "" || strings.HasSuffix(name, ".html") {
		return false
	}
	info, err := fs.Stat(d.static, name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			webLogger.Warn().Err(err).Str("asset", name).Msg("failed to stat asset")
		}
		return false
	}
	if info.IsDir() {
		return false
	}
	c.FileFromFS(name, http.FS(d.static))
	return true
}
