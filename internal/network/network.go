// Package network watches link information published by pi-helper and the
// broker connection, reporting when either changes.
package network

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/sweeney/energy-monitor/internal/mqtt"
)

// DefaultEnvFile is where pi-helper writes the link state.
const DefaultEnvFile = "/run/pi-helper.env"

// pi-helper env var names.
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

// Info is the link state.
type Info struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Up reports whether the link is usable.
func (i Info) Up() bool {
	return strings.EqualFold(i.Status, "connected") || strings.EqualFold(i.Status, "up")
}

// Source returns the current link state; ok is false when unknown.
type Source func() (info Info, ok bool)

// FromLookup builds Info from a variable lookup such as os.Getenv.
func FromLookup(get func(string) string) (Info, bool) {
	s := get(envNetworkStatus)
	if s == "" {
		return Info{}, false
	}
	return Info{
		Type:       get(envNetworkType),
		IP:         get(envNetworkIP),
		Status:     s,
		Gateway:    get(envNetworkGateway),
		WifiStatus: get(envNetworkWifiStatus),
		SSID:       get(envNetworkWifiSSID),
	}, true
}

// EnvSource reads the process environment.
func EnvSource() Source {
	return func() (Info, bool) { return FromLookup(os.Getenv) }
}

// FileSource re-reads a pi-helper env file on every call, falling back to
// the process environment when the file is missing.
func FileSource(path string) Source {
	return func() (Info, bool) {
		vars, err := readEnvFile(path)
		if err != nil {
			return FromLookup(os.Getenv)
		}
		return FromLookup(func(k string) string { return vars[k] })
	}
}

var interfaceAddrs = net.InterfaceAddrs

// HostAddress reports the device address: the IP from source when known,
// otherwise the first non-loopback IPv4 interface address. It returns ""
// when neither is available.
func HostAddress(source Source) func() string {
	return func() string {
		if source != nil {
			if info, ok := source(); ok && info.IP != "" {
				return info.IP
			}
		}
		addrs, err := interfaceAddrs()
		if err != nil {
			return ""
		}
		for _, a := range addrs {
			n, ok := a.(*net.IPNet)
			if !ok || n.IP.IsLoopback() {
				continue
			}
			if v4 := n.IP.To4(); v4 != nil {
				return v4.String()
			}
		}
		return ""
	}
}

func readEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open env file: %w", err)
	}
	defer f.Close()
	return parseEnv(f)
}

// parseEnv reads KEY=VALUE lines. Blank lines and # comments are skipped,
// surrounding quotes are removed.
func parseEnv(r io.Reader) (map[string]string, error) {
	vars := make(map[string]string)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
			v = v[1 : len(v)-1]
		}
		vars[strings.TrimSpace(k)] = v
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	return vars, nil
}

// State is what the watcher compares between checks.
type State struct {
	Info    Info
	HasInfo bool
	MQTT    bool
}

// Up reports whether the link is known and usable.
func (s State) Up() bool {
	return s.HasInfo && s.Info.Up()
}

// Watcher detects changes in link state or broker connectivity.
type Watcher struct {
	source Source
	broker mqtt.ConnectionStatus
	last   State
	seen   bool
}

// NewWatcher creates a watcher. broker may be nil.
func NewWatcher(source Source, broker mqtt.ConnectionStatus) *Watcher {
	return &Watcher{source: source, broker: broker}
}

// Check reads the current state. changed is true on the first call and
// whenever the state differs from the previous call.
func (w *Watcher) Check() (State, bool) {
	var s State
	if w.source != nil {
		s.Info, s.HasInfo = w.source()
	}
	if w.broker != nil {
		s.MQTT = w.broker.IsConnected()
	}
	changed := !w.seen || s != w.last
	w.last = s
	w.seen = true
	return s, changed
}

// Last returns the state from the previous Check.
func (w *Watcher) Last() State {
	return w.last
}
