package network

import (
	"net"
	"sync"

	"github.com/rs/zerolog"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netlink/nl"
)

// InterfaceState tracks link state and addresses of one interface.
type InterfaceState struct {
	interfaceName string
	interfaceUp   bool
	ipv4Addr      *net.IP
	macAddr       *net.HardwareAddr

	l         *zerolog.Logger
	stateLock sync.Mutex
}

func NewInterfaceState(ifname string, logger *zerolog.Logger) *InterfaceState {
	l := logger.With().Str("interface", ifname).Logger()
	return &InterfaceState{interfaceName: ifname, l: &l}
}

func (s *InterfaceState) IsUp() bool {
	return s.interfaceUp
}

func (s *InterfaceState) HasIPAssigned() bool {
	return s.ipv4Addr != nil
}

func (s *InterfaceState) IsOnline() bool {
	return s.IsUp() && s.HasIPAssigned()
}

func (s *InterfaceState) IPv4String() string {
	if s.ipv4Addr == nil {
		return ""
	}
	return s.ipv4Addr.String()
}

func (s *InterfaceState) MACString() string {
	if s.macAddr == nil {
		return ""
	}
	return s.macAddr.String()
}

// Update refreshes the state from the kernel and reports whether it changed.
func (s *InterfaceState) Update() (bool, error) {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	iface, err := netlink.LinkByName(s.interfaceName)
	if err != nil {
		return false, err
	}

	attrs := iface.Attrs()
	up := attrs.OperState == netlink.OperUp || attrs.Flags&net.FlagUp != 0 && attrs.OperState == netlink.OperUnknown
	changed := up != s.interfaceUp
	if changed {
		if up {
			s.l.Info().Msg("interface state transitioned to up")
		} else {
			s.l.Info().Msg("interface state transitioned to down")
		}
	}
	s.interfaceUp = up
	s.macAddr = &attrs.HardwareAddr

	addrs, err := netlink.AddrList(iface, nl.FAMILY_V4)
	if err != nil {
		return changed, err
	}

	var ipv4 *net.IP
	for _, addr := range addrs {
		if addr.IP.To4() != nil {
			ip := addr.IP
			ipv4 = &ip
			break
		}
	}

	if (ipv4 == nil) != (s.ipv4Addr == nil) || (ipv4 != nil && !ipv4.Equal(*s.ipv4Addr)) {
		if ipv4 != nil {
			s.l.Info().Str("ipv4", ipv4.String()).Msg("IPv4 address found")
		}
		changed = true
	}
	s.ipv4Addr = ipv4

	return changed, nil
}
