// Package mdns answers <hostname>.local queries so the web interface is
// reachable without knowing the device address.
package mdns

import (
	"errors"
	"net"
	"slices"
	"strings"
	"sync"

	"github.com/jetkvm/jiggler/internal/logging"
	pion_mdns "github.com/pion/mdns/v2"
	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

var ErrAlreadyRunning = errors.New("mDNS server already running")

type MDNS struct {
	conn *pion_mdns.Conn
	lock sync.Mutex
	l    *zerolog.Logger

	localNames    []string
	listenOptions *MDNSListenOptions
}

type MDNSListenOptions struct {
	IPv4 bool
	IPv6 bool
}

type MDNSOptions struct {
	Logger        *zerolog.Logger
	LocalNames    []string
	ListenOptions *MDNSListenOptions
}

const (
	DefaultAddressIPv4 = pion_mdns.DefaultAddressIPv4
	DefaultAddressIPv6 = pion_mdns.DefaultAddressIPv6
)

func NewMDNS(opts *MDNSOptions) *MDNS {
	if opts.Logger == nil {
		opts.Logger = logging.GetSubsystemLogger("mdns")
	}
	if opts.ListenOptions == nil {
		opts.ListenOptions = &MDNSListenOptions{IPv4: true}
	}

	return &MDNS{
		l:             opts.Logger,
		localNames:    NormalizeLocalNames(opts.LocalNames),
		listenOptions: opts.ListenOptions,
	}
}

// NormalizeLocalNames lowercases names and makes sure each ends in ".local".
// Empty names are dropped.
func NormalizeLocalNames(names []string) []string {
	normalized := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimRight(strings.ToLower(strings.TrimSpace(name)), ".")
		if name == "" {
			continue
		}
		if !strings.HasSuffix(name, ".local") {
			name += ".local"
		}
		normalized = append(normalized, name)
	}
	return normalized
}

func (m *MDNS) LocalNames() []string {
	m.lock.Lock()
	defer m.lock.Unlock()

	return slices.Clone(m.localNames)
}

func (m *MDNS) Start() error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.conn != nil {
		return ErrAlreadyRunning
	}

	var (
		p4 *ipv4.PacketConn
		p6 *ipv6.PacketConn
	)

	if m.listenOptions.IPv4 {
		addr4, err := net.ResolveUDPAddr("udp4", DefaultAddressIPv4)
		if err != nil {
			return err
		}
		l4, err := net.ListenUDP("udp4", addr4)
		if err != nil {
			return err
		}
		p4 = ipv4.NewPacketConn(l4)
	}

	if m.listenOptions.IPv6 {
		addr6, err := net.ResolveUDPAddr("udp6", DefaultAddressIPv6)
		if err != nil {
			return err
		}
		l6, err := net.ListenUDP("udp6", addr6)
		if err != nil {
			return err
		}
		p6 = ipv6.NewPacketConn(l6)
	}

	scopeLogger := m.l.With().Strs("local_names", m.localNames).Logger()

	mDNSConn, err := pion_mdns.Server(p4, p6, &pion_mdns.Config{
		LocalNames:    m.localNames,
		LoggerFactory: logging.GetPionDefaultLoggerFactory(),
	})
	if err != nil {
		scopeLogger.Warn().Err(err).Msg("failed to start mDNS server")
		return err
	}

	m.conn = mDNSConn
	scopeLogger.Info().Msg("mDNS server started")

	return nil
}

func (m *MDNS) Stop() error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.conn == nil {
		return nil
	}

	err := m.conn.Close()
	m.conn = nil
	return err
}
