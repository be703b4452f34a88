package config

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

type WifiMode string

const (
	WifiModeAP    WifiMode = "ap"
	WifiModeAPSTA WifiMode = "apsta"
)

const DefaultWebPort = 80

type APAvailability string

const (
	APAlways  APAvailability = "always"
	APTimeout APAvailability = "timeout"
)

type DeviceSettings struct {
	APSSID           string
	APPassword       string
	APHidden         bool
	Hostname         string
	WifiMode         WifiMode
	APAvailability   APAvailability
	APTimeoutMinutes int
	STASSID          string
	STAPassword      string
	AuthEnabled      bool
	Username         string
	AuthPassword     string
	WebPort          int
}

func DefaultDeviceSettings() DeviceSettings {
	return DeviceSettings{
		APSSID:           "jiggler",
		APPassword:       "jiggler-setup",
		Hostname:         "jiggler",
		WifiMode:         WifiModeAP,
		APAvailability:   APAlways,
		APTimeoutMinutes: 5,
		AuthEnabled:      true,
		Username:         "admin",
		AuthPassword:     "jiggler",
		WebPort:          DefaultWebPort,
	}
}

type authSection struct {
	Enabled  *bool   `json:"enabled,omitempty"`
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
}

type apSection struct {
	SSID     *string `json:"ssid,omitempty"`
	Password *string `json:"password,omitempty"`
	Hidden   *bool   `json:"hidden,omitempty"`
}

type staSection struct {
	SSID     *string `json:"ssid,omitempty"`
	Password *string `json:"password,omitempty"`
}

type settingsDocument struct {
	Auth           *authSection `json:"auth,omitempty"`
	AP             *apSection   `json:"ap,omitempty"`
	Hostname       *string      `json:"hostname,omitempty"`
	STA            *staSection  `json:"sta,omitempty"`
	WifiMode       *string      `json:"wifi_mode,omitempty"`
	APAvailability *string      `json:"ap_availability,omitempty"`
	APTimeout      *int         `json:"ap_timeout,omitempty"`
	WebPort        *int         `json:"web_port,omitempty"`
}

func (s DeviceSettings) document(withAuthPassword bool) settingsDocument {
	mode := string(s.WifiMode)
	availability := string(s.APAvailability)
	doc := settingsDocument{
		Auth: &authSection{Enabled: &s.AuthEnabled, Username: &s.Username},
		AP:   &apSection{SSID: &s.APSSID, Password: &s.APPassword, Hidden: &s.APHidden},
		STA:  &staSection{SSID: &s.STASSID, Password: &s.STAPassword},

		Hostname:       &s.Hostname,
		WifiMode:       &mode,
		APAvailability: &availability,
		APTimeout:      &s.APTimeoutMinutes,
		WebPort:        &s.WebPort,
	}
	if withAuthPassword {
		doc.Auth.Password = &s.AuthPassword
	}
	return doc
}

// SettingsWire is the GET /api/settings body; the auth password is never sent.
func SettingsWire(s DeviceSettings) any {
	return s.document(false)
}

// merge applies the keys present in doc. An empty auth password keeps the
// existing one, so the settings form can be saved without retyping it.
func (doc settingsDocument) merge(base DeviceSettings) DeviceSettings {
	s := base
	if a := doc.Auth; a != nil {
		setBool(&s.AuthEnabled, a.Enabled)
		setString(&s.Username, a.Username)
		if a.Password != nil && *a.Password != "" {
			s.AuthPassword = *a.Password
		}
	}
	if ap := doc.AP; ap != nil {
		setString(&s.APSSID, ap.SSID)
		setString(&s.APPassword, ap.Password)
		setBool(&s.APHidden, ap.Hidden)
	}
	if sta := doc.STA; sta != nil {
		setString(&s.STASSID, sta.SSID)
		setString(&s.STAPassword, sta.Password)
	}
	setString(&s.Hostname, doc.Hostname)
	if doc.WifiMode != nil {
		s.WifiMode = WifiMode(*doc.WifiMode)
	}
	if doc.APAvailability != nil {
		s.APAvailability = APAvailability(*doc.APAvailability)
	}
	if doc.APTimeout != nil {
		s.APTimeoutMinutes = *doc.APTimeout
	}
	if doc.WebPort != nil {
		s.WebPort = *doc.WebPort
	}
	return s
}

// ParseSettings reads a stored settings document. Unknown enum values and
// out-of-range numbers fall back to the defaults rather than failing.
func ParseSettings(data []byte) (DeviceSettings, error) {
	var doc settingsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return DefaultDeviceSettings(), fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return doc.merge(DefaultDeviceSettings()).normalized(), nil
}

// ApplySettingsUpdate merges a POST /api/settings body into current and
// validates the result.
func ApplySettingsUpdate(current DeviceSettings, body []byte) (DeviceSettings, error) {
	var doc settingsDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return current, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	updated := doc.merge(current)
	if err := updated.Validate(); err != nil {
		return current, err
	}
	return updated, nil
}

func (s DeviceSettings) normalized() DeviceSettings {
	def := DefaultDeviceSettings()
	if s.WifiMode != WifiModeAP && s.WifiMode != WifiModeAPSTA {
		s.WifiMode = def.WifiMode
	}
	if s.APAvailability != APAlways && s.APAvailability != APTimeout {
		s.APAvailability = def.APAvailability
	}
	if s.APTimeoutMinutes < 1 {
		s.APTimeoutMinutes = def.APTimeoutMinutes
	}
	if !ValidHostname(s.Hostname) {
		s.Hostname = def.Hostname
	}
	if s.APSSID == "" {
		s.APSSID = def.APSSID
	}
	return s
}

// PortValid reports whether the web port can be bound.
func (s DeviceSettings) PortValid() bool {
	return s.WebPort >= 1 && s.WebPort <= 65535
}

var hostnameLabel = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// ValidHostname reports whether name is a single DNS label that mDNS can
// announce as-is.
func ValidHostname(name string) bool {
	ascii, err := idna.Lookup.ToASCII(name)
	if err != nil || ascii != strings.ToLower(name) {
		return false
	}
	return hostnameLabel.MatchString(ascii)
}

func (s DeviceSettings) Validate() error {
	var problems []string
	if !ValidHostname(s.Hostname) {
		problems = append(problems, "hostname must be a valid DNS label")
	}
	if s.APSSID == "" || len(s.APSSID) > 32 {
		problems = append(problems, "AP SSID must be 1 to 32 characters")
	}
	if s.APPassword != "" && (len(s.APPassword) < 8 || len(s.APPassword) > 63) {
		problems = append(problems, "AP password must be empty or 8 to 63 characters")
	}
	if s.WifiMode != WifiModeAP && s.WifiMode != WifiModeAPSTA {
		problems = append(problems, "wifi_mode must be ap or apsta")
	}
	if s.WifiMode == WifiModeAPSTA && s.STASSID == "" {
		problems = append(problems, "station SSID is required in AP+STA mode")
	}
	if s.APAvailability != APAlways && s.APAvailability != APTimeout {
		problems = append(problems, "ap_availability must be always or timeout")
	}
	if s.APTimeoutMinutes < 1 {
		problems = append(problems, "ap_timeout must be at least 1 minute")
	}
	if s.AuthEnabled && (s.Username == "" || s.AuthPassword == "") {
		problems = append(problems, "username and password are required when authentication is enabled")
	}
	if !s.PortValid() {
		problems = append(problems, "web_port must be between 1 and 65535")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
