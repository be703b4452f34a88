// Package jiggler wires the movement engine, session store and device
// configuration behind the HTTP control surface of the mouse jiggler.
package jiggler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/jetkvm/jiggler/internal/config"
	"github.com/jetkvm/jiggler/internal/mdns"
	"github.com/jetkvm/jiggler/internal/motion"
	"github.com/jetkvm/jiggler/internal/network"
	"github.com/jetkvm/jiggler/internal/ota"
	"github.com/jetkvm/jiggler/internal/session"
	"github.com/jetkvm/jiggler/internal/storage"
	"golang.org/x/sync/errgroup"
)

const (
	rebootDelay     = time.Second
	shutdownTimeout = 5 * time.Second
)

// NetworkRoles is the WiFi role manager as seen by the device.
type NetworkRoles interface {
	Start(ctx context.Context) error
	CheckAPTimeout() bool
	Status() network.Status
}

type DeviceOptions struct {
	Docs storage.DocumentStore
	Sink motion.HIDSink
	// Network may be nil when the device has no WiFi radio to manage.
	Network func(config.DeviceSettings) NetworkRoles
	Stager  *ota.Stager
	Reboot  func() error
	Static  fs.FS
	Version *semver.Version
	// ListenPort overrides the persisted web port when non-zero.
	ListenPort int

	Now   func() time.Time
	Sleep func(time.Duration)
	Rand  *rand.Rand
}

// Device owns every piece of mutable state. lock serializes the scheduler
// jobs and the HTTP handlers.
type Device struct {
	lock sync.Mutex

	docs     storage.DocumentStore
	configs  *config.Store
	movement config.MovementConfig
	settings config.DeviceSettings

	sessions *session.Store
	limiter  *session.LoginLimiter
	sink     motion.HIDSink
	motion   *motion.Controller
	network  NetworkRoles
	stager   *ota.Stager
	reboot   func() error
	mdns     *mdns.MDNS
	metrics  *deviceMetrics
	static   fs.FS
	version  *semver.Version

	listenPort int
	bootTime   time.Time
	now        func() time.Time
	sleep      func(time.Duration)
	rnd        *rand.Rand
}

func NewDevice(opts DeviceOptions) *Device {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.Version == nil {
		opts.Version = semver.MustParse(builtAppVersion)
	}
	if opts.Reboot == nil {
		opts.Reboot = func() error { return errors.New("reboot is not supported") }
	}

	d := &Device{
		docs:     opts.Docs,
		configs:  config.NewStore(opts.Docs, configLogger),
		limiter:  session.NewLoginLimiter(),
		stager:   opts.Stager,
		reboot:   opts.Reboot,
		static:   opts.Static,
		version:  opts.Version,
		bootTime: opts.Now(),
		now:      opts.Now,
		sleep:    opts.Sleep,
		rnd:      opts.Rand,
	}

	d.movement = d.configs.LoadMovement()
	d.settings = d.configs.LoadSettings()
	if !d.settings.PortValid() {
		logger.Warn().Int("port", d.settings.WebPort).Msg("invalid web port, resetting to default")
		d.settings.WebPort = config.DefaultWebPort
		if err := d.configs.SaveSettings(d.settings); err != nil {
			logger.Warn().Err(err).Msg("failed to persist corrected web port")
		}
	}
	d.listenPort = d.settings.WebPort
	if opts.ListenPort != 0 {
		d.listenPort = opts.ListenPort
	}

	d.sessions = session.NewStore(session.Options{
		Docs:        opts.Docs,
		Credentials: d.credentials,
		Logger:      sessionLogger,
		Now:         opts.Now,
		Rand:        opts.Rand,
	})
	if err := d.sessions.Load(); err != nil {
		sessionLogger.Warn().Err(err).Msg("failed to restore sessions")
	}

	d.metrics = newDeviceMetrics(func() float64 { return float64(d.sessions.ActiveCount()) })
	d.sink = countingSink{HIDSink: opts.Sink, reports: d.metrics.hidReports}
	d.motion = motion.NewController(motion.Options{
		Sink:   d.sink,
		Logger: motionLogger,
		Sleep:  opts.Sleep,
		Now:    opts.Now,
	})
	d.resetSchedule(d.bootTime)

	if opts.Network != nil {
		d.network = opts.Network(d.settings)
	}
	d.mdns = mdns.NewMDNS(&mdns.MDNSOptions{LocalNames: []string{d.settings.Hostname}})

	return d
}

// credentials is read by the session store while the device lock is held.
func (d *Device) credentials() session.Credentials {
	return session.Credentials{
		AuthEnabled: d.settings.AuthEnabled,
		Username:    d.settings.Username,
		Password:    d.settings.AuthPassword,
	}
}

func (d *Device) ListenAddr() string {
	return net.JoinHostPort("", strconv.Itoa(d.listenPort))
}

// Run brings up the network roles and serves until ctx is cancelled.
func (d *Device) Run(ctx context.Context) error {
	if d.network != nil {
		if err := d.network.Start(ctx); err != nil {
			networkLogger.Error().Err(err).Msg("failed to start network")
		}
	}

	if err := d.mdns.Start(); err != nil {
		logger.Warn().Err(err).Msg("failed to start mDNS")
	}
	defer d.mdns.Stop()

	d.limiter.Start()
	defer d.limiter.Stop()

	scheduler, err := d.newScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			logger.Warn().Err(err).Msg("failed to stop scheduler")
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	if fileStore, ok := d.docs.(*storage.FileStore); ok {
		g.Go(func() error {
			return fileStore.Watch(ctx, config.MovementConfigPath, configLogger, d.reloadMovement)
		})
	}
	g.Go(func() error {
		return d.serve(ctx)
	})
	return g.Wait()
}

func (d *Device) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              d.ListenAddr(),
		Handler:           d.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		webLogger.Info().Str("addr", srv.Addr).Msg("starting web server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// reloadMovement picks up edits to the movement document made outside the
// web interface.
func (d *Device) reloadMovement() {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.movement = d.configs.LoadMovement()
	configLogger.Info().Msg("movement config reloaded")
}

func (d *Device) scheduleReboot() {
	go func() {
		d.sleep(rebootDelay)
		logger.Info().Msg("rebooting")
		if err := d.reboot(); err != nil {
			logger.Error().Err(err).Msg("failed to reboot")
		}
	}()
}
