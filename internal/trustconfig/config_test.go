package trustconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "trustrun.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
[Runtime]
WatchdogEnabled = true
WatchdogTimeout = "25ms"
WatchdogPolicy = "restart"
FaultPolicy = "continue"
RetainSaveInterval = "1s"
CycleInterval = "5ms"

[IO]
Drivers = ["modbus-tcp"]

[[IO.SafeState]]
Address = "%QD0"
Kind = "DINT"
Value = -1

[Control]
TCPAddress = "0.0.0.0:9100"
AuthToken = "secret"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "restart", cfg.Runtime.WatchdogPolicy)
	assert.Equal(t, 25*time.Millisecond, cfg.Runtime.WatchdogTimeout)
	assert.Equal(t, "continue", cfg.Runtime.FaultPolicy)
	assert.Equal(t, []string{"modbus-tcp"}, cfg.IO.Drivers)
	assert.Equal(t, "0.0.0.0:9100", cfg.Control.TCPAddress)
	assert.Equal(t, "secret", cfg.Control.AuthToken)

	entries, err := cfg.IO.Resolve()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "%QD0", entries[0].Addr.String())
	assert.Equal(t, int64(-1), entries[0].Value.AsInt())
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeTempConfig(t, `
[Runtime]
NotARealField = true
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestWatchdogAndFaultPolicyTranslation(t *testing.T) {
	rc := RuntimeConfig{WatchdogPolicy: "restart", FaultPolicy: "restart"}
	wp, err := rc.WatchdogPolicyValue()
	require.NoError(t, err)
	assert.EqualValues(t, 1, wp)

	fp, err := rc.FaultPolicyValue()
	require.NoError(t, err)
	assert.EqualValues(t, 2, fp)

	_, err = RuntimeConfig{WatchdogPolicy: "bogus"}.WatchdogPolicyValue()
	assert.Error(t, err)
}

func TestDumpRoundTrips(t *testing.T) {
	cfg := Default()
	cfg.Control.TCPAddress = "127.0.0.1:9100"

	out, err := Dump(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "127.0.0.1:9100")
}
