package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

const DefaultAPAddress = "192.168.4.1/24"

type WifiRadioOptions struct {
	Interface  string
	RuntimeDir string
	APAddress  string
	Logger     *zerolog.Logger
}

// WifiRadio drives wpa_supplicant and hostapd on a single interface and
// reads link state over netlink.
type WifiRadio struct {
	iface      string
	runtimeDir string
	apAddress  string
	state      *InterfaceState
	l          *zerolog.Logger
}

func NewWifiRadio(opts WifiRadioOptions) *WifiRadio {
	if opts.Logger == nil {
		opts.Logger = defaultLogger
	}
	if opts.APAddress == "" {
		opts.APAddress = DefaultAPAddress
	}
	return &WifiRadio{
		iface:      opts.Interface,
		runtimeDir: opts.RuntimeDir,
		apAddress:  opts.APAddress,
		state:      NewInterfaceState(opts.Interface, opts.Logger),
		l:          opts.Logger,
	}
}

func (r *WifiRadio) path(name string) string {
	return filepath.Join(r.runtimeDir, name)
}

func (r *WifiRadio) linkUp() error {
	link, err := netlink.LinkByName(r.iface)
	if err != nil {
		return fmt.Errorf("failed to find interface %s: %w", r.iface, err)
	}
	return netlink.LinkSetUp(link)
}

func (r *WifiRadio) ConnectStation(ctx context.Context, ssid, password string) error {
	if err := r.linkUp(); err != nil {
		return err
	}

	conf := wpaSupplicantConfig(ssid, password)
	confPath := r.path("wpa_supplicant.conf")
	if err := os.WriteFile(confPath, []byte(conf), 0600); err != nil {
		return fmt.Errorf("failed to write wpa_supplicant config: %w", err)
	}

	cmd := exec.CommandContext(ctx, "wpa_supplicant", "-B",
		"-i", r.iface,
		"-c", confPath,
		"-P", r.path("wpa_supplicant.pid"),
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("wpa_supplicant failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	dhcp := exec.CommandContext(ctx, "udhcpc", "-i", r.iface, "-b", "-p", r.path("udhcpc.pid"))
	if output, err := dhcp.CombinedOutput(); err != nil {
		return fmt.Errorf("udhcpc failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (r *WifiRadio) StationConnected() bool {
	if _, err := r.state.Update(); err != nil {
		r.l.Warn().Err(err).Msg("failed to update interface state")
		return false
	}
	return r.state.IsOnline()
}

func (r *WifiRadio) DisconnectStation() error {
	return errors.Join(
		killPidFile(r.path("udhcpc.pid")),
		killPidFile(r.path("wpa_supplicant.pid")),
	)
}

func (r *WifiRadio) StartAccessPoint(ssid, password string, hidden bool) error {
	if err := r.linkUp(); err != nil {
		return err
	}
	if err := r.assignAPAddress(); err != nil {
		return err
	}

	confPath := r.path("hostapd.conf")
	if err := os.WriteFile(confPath, []byte(hostapdConfig(r.iface, ssid, password, hidden)), 0600); err != nil {
		return fmt.Errorf("failed to write hostapd config: %w", err)
	}

	cmd := exec.Command("hostapd", "-B", "-P", r.path("hostapd.pid"), confPath)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("hostapd failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (r *WifiRadio) assignAPAddress() error {
	link, err := netlink.LinkByName(r.iface)
	if err != nil {
		return err
	}
	addr, err := netlink.ParseAddr(r.apAddress)
	if err != nil {
		return fmt.Errorf("invalid AP address %q: %w", r.apAddress, err)
	}
	if err := netlink.AddrReplace(link, addr); err != nil {
		return fmt.Errorf("failed to assign AP address: %w", err)
	}
	return nil
}

func (r *WifiRadio) StopAccessPoint() error {
	return killPidFile(r.path("hostapd.pid"))
}

func (r *WifiRadio) Address() string {
	if _, err := r.state.Update(); err != nil {
		r.l.Trace().Err(err).Msg("failed to update interface state")
	}
	if ip := r.state.IPv4String(); ip != "" {
		return ip
	}
	if ip, _, err := net.ParseCIDR(r.apAddress); err == nil {
		return ip.String()
	}
	return ""
}

func killPidFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("invalid pid file %s: %w", path, err)
	}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return os.Remove(path)
}

func quoteConf(s string) string {
	return strconv.Quote(s)
}

func wpaSupplicantConfig(ssid, password string) string {
	var b strings.Builder
	b.WriteString("ctrl_interface=/var/run/wpa_supplicant\n")
	b.WriteString("network={\n")
	fmt.Fprintf(&b, "\tssid=%s\n", quoteConf(ssid))
	if password == "" {
		b.WriteString("\tkey_mgmt=NONE\n")
	} else {
		fmt.Fprintf(&b, "\tpsk=%s\n", quoteConf(password))
	}
	b.WriteString("}\n")
	return b.String()
}

func hostapdConfig(iface, ssid, password string, hidden bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "interface=%s\n", iface)
	b.WriteString("driver=nl80211\n")
	fmt.Fprintf(&b, "ssid=%s\n", ssid)
	b.WriteString("hw_mode=g\n")
	b.WriteString("channel=6\n")
	if hidden {
		b.WriteString("ignore_broadcast_ssid=1\n")
	} else {
		b.WriteString("ignore_broadcast_ssid=0\n")
	}
	if password != "" {
		b.WriteString("wpa=2\n")
		b.WriteString("wpa_key_mgmt=WPA-PSK\n")
		b.WriteString("rsn_pairwise=CCMP\n")
		fmt.Fprintf(&b, "wpa_passphrase=%s\n", password)
	}
	return b.String()
}
