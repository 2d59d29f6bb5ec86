package network

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/energy-monitor/internal/mqtt"
)

func TestFromLookup(t *testing.T) {
	vars := map[string]string{
		"NETWORK_TYPE":        "wifi",
		"NETWORK_IP":          "192.168.1.42",
		"NETWORK_STATUS":      "connected",
		"NETWORK_GATEWAY":     "192.168.1.1",
		"NETWORK_WIFI_STATUS": "associated",
		"NETWORK_WIFI_SSID":   "MyNet",
	}
	info, ok := FromLookup(func(k string) string { return vars[k] })
	require.True(t, ok)
	assert.Equal(t, Info{
		Type: "wifi", IP: "192.168.1.42", Status: "connected",
		Gateway: "192.168.1.1", WifiStatus: "associated", SSID: "MyNet",
	}, info)
	assert.True(t, info.Up())
}

func TestFromLookupNoStatus(t *testing.T) {
	_, ok := FromLookup(func(string) string { return "" })
	assert.False(t, ok)
}

func TestInfoUp(t *testing.T) {
	assert.True(t, Info{Status: "UP"}.Up())
	assert.False(t, Info{Status: "disconnected"}.Up())
	assert.False(t, State{Info: Info{Status: "up"}}.Up(), "unknown info is down")
}

func TestParseEnv(t *testing.T) {
	in := `# written by pi-helper
NETWORK_STATUS=connected
export NETWORK_IP="10.0.0.7"
NETWORK_WIFI_SSID='Home Net'

garbage
`
	vars, err := parseEnv(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, "connected", vars["NETWORK_STATUS"])
	assert.Equal(t, "10.0.0.7", vars["NETWORK_IP"])
	assert.Equal(t, "Home Net", vars["NETWORK_WIFI_SSID"])
	assert.Len(t, vars, 3)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pi-helper.env")
	require.NoError(t, os.WriteFile(path, []byte("NETWORK_STATUS=connected\nNETWORK_IP=10.0.0.7\n"), 0o644))

	info, ok := FileSource(path)()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.7", info.IP)
}

func TestFileSourceFallsBackToEnv(t *testing.T) {
	t.Setenv("NETWORK_STATUS", "up")
	t.Setenv("NETWORK_IP", "172.16.0.2")

	info, ok := FileSource(filepath.Join(t.TempDir(), "missing.env"))()
	require.True(t, ok)
	assert.Equal(t, "172.16.0.2", info.IP)
}

func TestWatcherReportsChanges(t *testing.T) {
	info := Info{Status: "connected", IP: "10.0.0.7"}
	known := true
	broker := mqtt.NewFakePublisher()
	w := NewWatcher(func() (Info, bool) { return info, known }, broker)

	s, changed := w.Check()
	assert.True(t, changed, "first check always reports")
	assert.True(t, s.Up())
	assert.False(t, s.MQTT)

	_, changed = w.Check()
	assert.False(t, changed)

	broker.Connected = true
	s, changed = w.Check()
	assert.True(t, changed, "broker came up")
	assert.True(t, s.MQTT)

	info.IP = "10.0.0.8"
	_, changed = w.Check()
	assert.True(t, changed, "address changed")

	known = false
	s, changed = w.Check()
	assert.True(t, changed)
	assert.False(t, s.Up())
	assert.Equal(t, s, w.Last())
}

func TestWatcherNilSources(t *testing.T) {
	w := NewWatcher(nil, nil)
	s, changed := w.Check()
	assert.True(t, changed)
	assert.Equal(t, State{}, s)
}

func stubInterfaces(t *testing.T, addrs []net.Addr, err error) {
	t.Helper()
	orig := interfaceAddrs
	interfaceAddrs = func() ([]net.Addr, error) { return addrs, err }
	t.Cleanup(func() { interfaceAddrs = orig })
}

func TestHostAddressPrefersSource(t *testing.T) {
	stubInterfaces(t, []net.Addr{&net.IPNet{IP: net.ParseIP("10.9.9.9"), Mask: net.CIDRMask(24, 32)}}, nil)
	host := HostAddress(func() (Info, bool) { return Info{Status: "connected", IP: "192.168.1.42"}, true })
	assert.Equal(t, "192.168.1.42", host())
}

func TestHostAddressFallsBackToInterfaces(t *testing.T) {
	stubInterfaces(t, []net.Addr{
		&net.IPNet{IP: net.ParseIP("127.0.0.1"), Mask: net.CIDRMask(8, 32)},
		&net.IPNet{IP: net.ParseIP("fe80::1"), Mask: net.CIDRMask(64, 128)},
		&net.IPNet{IP: net.ParseIP("192.168.1.50"), Mask: net.CIDRMask(24, 32)},
	}, nil)
	host := HostAddress(func() (Info, bool) { return Info{}, false })
	assert.Equal(t, "192.168.1.50", host())
}

func TestHostAddressUnknown(t *testing.T) {
	stubInterfaces(t, nil, errors.New("no interfaces"))
	assert.Equal(t, "", HostAddress(nil)())
}
