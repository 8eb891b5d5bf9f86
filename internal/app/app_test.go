package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"padcast/internal/plugin"
	logx "padcast/pkg/logx"
)

func listenUDP(t *testing.T) (*net.UDPConn, int) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, conn.LocalAddr().(*net.UDPAddr).Port
}

func readDatagram(t *testing.T, conn *net.UDPConn) string {
	t.Helper()
	buf := make([]byte, 2048)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func writeFiles(t *testing.T, port int, source string) (dir, cfgPath string) {
	t.Helper()
	dir = t.TempDir()
	argPath := filepath.Join(dir, "ando.conf")
	require.NoError(t, os.WriteFile(argPath, []byte(fmt.Sprintf(
		"[System1]\nIpAddress=127.0.0.1\nUdpPort=%d\nArtist=%%a\nTitle=%%t\nAlbum=%%l\nMasterLog=Yes\n", port)), 0o600))
	if source == "" {
		source = "none"
	}
	cfgPath = filepath.Join(dir, "padcast.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
logging: {level: error, console: false}
watch: false
ingest: {source: %q}
plugins:
  - name: ando
    enabled: true
    argument: %q
  - name: unused
    enabled: false
`, source, argPath)), 0o600))
	return dir, cfgPath
}

func TestAppDispatchesPadToDestination(t *testing.T) {
	conn, port := listenUDP(t)
	_, cfgPath := writeFiles(t, port, "")

	a, err := New(cfgPath, Options{Version: "test"})
	require.NoError(t, err)
	assert.Same(t, a.cfgm.Get(), a.cfg, "host config parsed once and shared with the watcher")
	require.NoError(t, a.Start(context.Background()))
	defer func() { assert.NoError(t, a.Stop(context.Background())) }()

	ok := a.Plugins().PadDataSent(plugin.PadEvent{
		Log:  plugin.LogInfo{Machine: plugin.LogMachineMain, OnAir: true},
		Now:  &plugin.Pad{CartNumber: 100001, Group: "MUSIC", Title: "Song", Artist: "Band", Album: "LP", Length: 125000},
		Next: &plugin.Pad{CartNumber: 100002},
	})
	require.True(t, ok)
	assert.Equal(t, "^Band~Song~02:05~MUSIC~LP~100001|", readDatagram(t, conn))

	snap := a.Plugins().Snapshot()
	require.Len(t, snap.Plugins, 1)
	assert.Equal(t, "ando", snap.Plugins[0].Name)
	assert.Equal(t, plugin.StateStarted, snap.Plugins[0].State)
	assert.Equal(t, 1, snap.Plugins[0].Timers)
}

func TestAppIngestsEventFile(t *testing.T) {
	conn, port := listenUDP(t)
	dir := t.TempDir()
	events := filepath.Join(dir, "events.jsonl")
	require.NoError(t, os.WriteFile(events, []byte(
		"# captured from the air chain\n"+
			`{"log":{"machine":0,"onair":false},"now":{"cart_number":7,"title":"T","artist":"A","length":61000}}`+"\n"+
			"not json\n"), 0o600))
	_, cfgPath := writeFiles(t, port, events)

	a, err := New(cfgPath, Options{})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	defer func() { _ = a.Stop(context.Background()) }()

	assert.Equal(t, "^A~T~01:01~~~7|", readDatagram(t, conn))
	require.Eventually(t, func() bool {
		st := a.Ingest().Stats()
		return st.Accepted == 1 && st.Rejected == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestNewRejectsUnknownPlugin(t *testing.T) {
	_, cfgPath := writeFiles(t, 9, "")
	_, err := New(cfgPath, Options{Registry: Registry{}})
	assert.ErrorContains(t, err, `unknown plugin "ando"`)
}

func TestCheck(t *testing.T) {
	_, port := listenUDP(t)
	dir, cfgPath := writeFiles(t, port, "")
	assert.NoError(t, Check(context.Background(), cfgPath, nil, logx.Nop()))

	require.NoError(t, os.Remove(filepath.Join(dir, "ando.conf")))
	assert.ErrorContains(t, Check(context.Background(), cfgPath, nil, logx.Nop()), "plugin ando")
}

func TestRegistryNames(t *testing.T) {
	t.Parallel()
	reg := DefaultRegistry()
	assert.Equal(t, []string{"ando"}, reg.Names())
	p, err := reg.New("ando")
	require.NoError(t, err)
	assert.Equal(t, "ando", p.Name())
}
