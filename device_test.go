package jiggler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gin-gonic/gin"
	"github.com/jetkvm/jiggler/internal/config"
	"github.com/jetkvm/jiggler/internal/motion"
	"github.com/jetkvm/jiggler/internal/network"
	"github.com/jetkvm/jiggler/internal/session"
	"github.com/jetkvm/jiggler/internal/storage"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type hidCall struct {
	dx, dy, wheel int16
}

type recordingSink struct {
	lock     sync.Mutex
	moves    []hidCall
	presses  []motion.Button
	releases []motion.Button
	fail     error
}

func (s *recordingSink) Move(dx, dy, wheel int16) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.moves = append(s.moves, hidCall{dx, dy, wheel})
	return nil
}

func (s *recordingSink) Press(b motion.Button) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.presses = append(s.presses, b)
	return nil
}

func (s *recordingSink) Release(b motion.Button) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.releases = append(s.releases, b)
	return nil
}

func (s *recordingSink) calls() []hidCall {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]hidCall(nil), s.moves...)
}

func (s *recordingSink) buttons() (presses, releases []motion.Button) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]motion.Button(nil), s.presses...), append([]motion.Button(nil), s.releases...)
}

func (s *recordingSink) net() (int, int) {
	x, y := 0, 0
	for _, m := range s.calls() {
		x += int(m.dx)
		y += int(m.dy)
	}
	return x, y
}

type testClock struct {
	lock sync.Mutex
	now  time.Time
}

func (c *testClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *testClock) Sleep(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(d)
}

func (c *testClock) Advance(d time.Duration) { c.Sleep(d) }

type fakeNetwork struct {
	lock          sync.Mutex
	settings      config.DeviceSettings
	status        network.Status
	started       bool
	timeoutChecks int
}

func (n *fakeNetwork) Start(ctx context.Context) error {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.started = true
	return nil
}

func (n *fakeNetwork) CheckAPTimeout() bool {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.timeoutChecks++
	return false
}

func (n *fakeNetwork) Status() network.Status {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.status
}

var testStatic = fstest.MapFS{
	"index.html":    {Data: []byte("<html>index</html>")},
	"login.html":    {Data: []byte("<html>login</html>")},
	"settings.html": {Data: []byte("<html>settings</html>")},
	"touchpad.html": {Data: []byte("<html>touchpad</html>")},
	"main.js":       {Data: []byte("console.log('jiggler')")},
}

type testDevice struct {
	*Device
	t        *testing.T
	docs     *storage.MemoryStore
	sink     *recordingSink
	clock    *testClock
	network  *fakeNetwork
	router   *gin.Engine
	rebootCh chan struct{}
}

type deviceOption func(*DeviceOptions)

func newTestDevice(t *testing.T, docs *storage.MemoryStore, opts ...deviceOption) *testDevice {
	t.Helper()
	if docs == nil {
		docs = storage.NewMemoryStore()
	}
	td := &testDevice{
		t:        t,
		docs:     docs,
		sink:     &recordingSink{},
		clock:    &testClock{now: time.Unix(1_700_000_000, 0)},
		network:  &fakeNetwork{status: network.Status{InAPMode: true, Address: "192.168.4.1"}},
		rebootCh: make(chan struct{}, 4),
	}

	do := DeviceOptions{
		Docs: docs,
		Sink: td.sink,
		Network: func(settings config.DeviceSettings) NetworkRoles {
			td.network.settings = settings
			return td.network
		},
		Reboot: func() error {
			td.rebootCh <- struct{}{}
			return nil
		},
		Static:  testStatic,
		Version: semver.MustParse("1.4.2"),
		Now:     td.clock.Now,
		Sleep:   td.clock.Sleep,
		Rand:    rand.New(rand.NewPCG(3, 4)),
	}
	for _, opt := range opts {
		opt(&do)
	}

	td.Device = NewDevice(do)
	td.router = td.Router()
	return td
}

func (td *testDevice) request(method, path, body, cookie string) *httptest.ResponseRecorder {
	td.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: cookie})
	}
	rec := httptest.NewRecorder()
	td.router.ServeHTTP(rec, req)
	return rec
}

func (td *testDevice) login() string {
	td.t.Helper()
	rec := td.request(http.MethodPost, "/api/auth/login", `{"username":"admin","password":"jiggler"}`, "")
	require.Equal(td.t, http.StatusOK, rec.Code, rec.Body.String())
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c.Value
		}
	}
	td.t.Fatal("login did not set a session cookie")
	return ""
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestNewDeviceCreatesDefaultDocuments(t *testing.T) {
	td := newTestDevice(t, nil)

	assert.True(t, td.docs.Exists(config.MovementConfigPath))
	assert.True(t, td.docs.Exists(config.SettingsPath))
	assert.Equal(t, config.DefaultMovementConfig(), td.movement)
	assert.Equal(t, ":80", td.ListenAddr())
	assert.Equal(t, "jiggler", td.network.settings.Hostname)
}

func TestNewDeviceCorrectsInvalidPort(t *testing.T) {
	docs := storage.NewMemoryStore()
	require.NoError(t, docs.Write(config.SettingsPath, []byte(`{"hostname":"desk","web_port":70000}`)))

	td := newTestDevice(t, docs)
	assert.Equal(t, ":80", td.ListenAddr())

	data, err := docs.Read(config.SettingsPath)
	require.NoError(t, err)
	settings, err := config.ParseSettings(data)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultWebPort, settings.WebPort)
	assert.Equal(t, "desk", settings.Hostname)
}

func TestListenPortOverride(t *testing.T) {
	td := newTestDevice(t, nil, func(o *DeviceOptions) { o.ListenPort = 8080 })
	assert.Equal(t, ":8080", td.ListenAddr())
	assert.Equal(t, config.DefaultWebPort, td.settings.WebPort)
}

func TestTickWaitsForSchedule(t *testing.T) {
	td := newTestDevice(t, nil)

	td.clock.Advance(time.Minute)
	td.tick()
	assert.Empty(t, td.sink.calls())

	td.clock.Advance(3 * time.Minute)
	td.tick()
	require.NotEmpty(t, td.sink.calls())
	x, y := td.sink.net()
	assert.Zero(t, x)
	assert.Zero(t, y)
	assert.Equal(t, 1.0, testutil.ToFloat64(td.metrics.movements.WithLabelValues(triggerScheduled)))

	state := td.motion.State()
	assert.Equal(t, td.clock.Now(), state.LastMove)
	assert.Equal(t, state.LastMove.Add(4*time.Minute), state.NextMove)

	moves := len(td.sink.calls())
	td.tick()
	assert.Len(t, td.sink.calls(), moves)
}

func TestTickSkipsWhenDisabled(t *testing.T) {
	td := newTestDevice(t, nil)
	td.movement.JigglerEnabled = false

	td.clock.Advance(time.Hour)
	td.tick()
	assert.Empty(t, td.sink.calls())
}

func TestRandomizedScheduleStaysInRange(t *testing.T) {
	td := newTestDevice(t, nil)
	td.movement.RandomizeInterval = true

	for i := 0; i < 100; i++ {
		now := td.clock.Now()
		td.resetSchedule(now)
		delay := td.motion.State().NextMove.Sub(now)
		assert.GreaterOrEqual(t, delay, 168*time.Second)
		assert.Less(t, delay, 312*time.Second)
	}
}

func TestHIDReportsAreCounted(t *testing.T) {
	td := newTestDevice(t, nil)
	require.NoError(t, td.performMovement(triggerManual))
	assert.Equal(t, float64(len(td.sink.calls())), testutil.ToFloat64(td.metrics.hidReports))
}

func TestSweepSessions(t *testing.T) {
	td := newTestDevice(t, nil)
	td.login()
	td.login()
	assert.Equal(t, 2, td.sessions.ActiveCount())

	td.clock.Advance(session.Timeout + time.Second)
	td.sweepSessions()
	assert.Zero(t, td.sessions.ActiveCount())
}

func TestCheckAPTimeoutJob(t *testing.T) {
	td := newTestDevice(t, nil)
	td.checkAPTimeout()
	td.checkAPTimeout()
	assert.Equal(t, 2, td.network.timeoutChecks)

	noRadio := newTestDevice(t, nil, func(o *DeviceOptions) { o.Network = nil })
	noRadio.checkAPTimeout()
}

func TestSchedulerRegistersJobs(t *testing.T) {
	td := newTestDevice(t, nil)
	s, err := td.newScheduler()
	require.NoError(t, err)

	var names []string
	for _, job := range s.Jobs() {
		names = append(names, job.Name())
	}
	assert.ElementsMatch(t, []string{"jiggle", "session-sweep", "ap-watchdog"}, names)
	require.NoError(t, s.Shutdown())
}

func TestReloadMovement(t *testing.T) {
	td := newTestDevice(t, nil)
	require.NoError(t, td.docs.Write(config.MovementConfigPath, []byte(`{"movement_pattern":"zigzag","movement_size":77}`)))

	td.reloadMovement()

	rec := td.request(http.MethodGet, "/api/config", "", td.login())
	body := decodeBody(t, rec)
	assert.Equal(t, "zigzag", body["movement_pattern"])
	assert.EqualValues(t, 77, body["movement_size"])
}

func TestSessionsSurviveRestart(t *testing.T) {
	docs := storage.NewMemoryStore()
	first := newTestDevice(t, docs)
	cookie := first.login()

	second := newTestDevice(t, docs)
	rec := second.request(http.MethodGet, "/api/auth/check", "", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMovementFailureStillReschedules(t *testing.T) {
	td := newTestDevice(t, nil)
	td.sink.fail = errors.New("hid gone")

	td.clock.Advance(5 * time.Minute)
	td.tick()

	state := td.motion.State()
	assert.Equal(t, td.clock.Now(), state.LastMove)
	assert.True(t, state.NextMove.After(td.clock.Now()))
}
