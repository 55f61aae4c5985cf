// Package trustconfig loads and validates the TOML configuration a
// trustrun instance boots from, in the teacher's exact custom-codec idiom:
// a toml.Config with NormFieldName/FieldToKey left as identity functions
// (so TOML keys match Go struct field names verbatim) and a MissingField
// hook that turns an unknown key into an error instead of silently
// ignoring it.
package trustconfig

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"time"
	"unicode"

	"github.com/naoina/toml"

	"github.com/trustplatform/trustrun/internal/ioimage"
	"github.com/trustplatform/trustrun/internal/runtime"
)

// tomlSettings mirrors cmd/gprobe/config.go's tomlSettings exactly: field
// names pass through unnormalized, and an unknown field is an error rather
// than silently dropped (except for fields explicitly marked deprecated).
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		id := fmt.Sprintf("%s.%s", rt.String(), field)
		if deprecated(id) {
			return nil
		}
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see godoc %s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

func deprecated(field string) bool { return false }

// Config is the top-level TOML document a trustrun instance loads.
type Config struct {
	Runtime RuntimeConfig
	IO      IOConfig
	Control ControlConfig
	Metrics MetricsConfig
}

// RuntimeConfig is `[Runtime]`: watchdog, fault policy, retain cadence, and
// the scheduler's cooperative cycle interval.
type RuntimeConfig struct {
	WatchdogEnabled bool
	WatchdogTimeout time.Duration
	WatchdogPolicy  string // "fault" | "restart"

	FaultPolicy string // "fault" | "continue" | "restart"

	RetainSaveInterval time.Duration
	RetainStore        string // "file" | "leveldb" | "" (disabled)
	RetainPath         string

	CycleInterval time.Duration

	BytecodePath  string
	WatchBytecode bool
}

// IOConfig is `[IO]`: which drivers to load by name, and the declared
// safe-state table applied on fault per spec.md §4.5.
type IOConfig struct {
	Drivers   []string
	SafeState []SafeStateEntry
}

// SafeStateEntry is one TOML-level (address, kind, literal) triple; Resolve
// turns it into an ioimage.SafeStateEntry once the type registry is known.
type SafeStateEntry struct {
	Address string
	Kind    string
	Value   int64
}

// ControlConfig is `[Control]`: listen addresses and the auth-token rule of
// spec.md §6 (TCP requires a token; a unix socket may omit one).
type ControlConfig struct {
	TCPAddress  string
	UnixSocket  string
	HTTPAddress string
	AuthToken   string
	RateLimit   float64 // requests/sec per remote address, 0 disables throttling
	RateBurst   int
}

// MetricsConfig mirrors cmd/gprobe/config.go's metrics.Config /
// applyMetricConfig almost verbatim, substituting an InfluxDB forwarding
// target for the teacher's own metrics backend selection.
type MetricsConfig struct {
	Enabled          bool
	HTTP             string
	Port             int
	EnableInfluxDB   bool
	InfluxDBEndpoint string
	InfluxDBDatabase string
	InfluxDBUsername string
	InfluxDBPassword string
	InfluxDBTags     string
}

// Default returns the configuration a trustrun instance boots with absent
// a config file: watchdog on at 50ms, fault-on-error, no retain store, a
// 10ms cycle interval, no control listeners.
func Default() Config {
	return Config{
		Runtime: RuntimeConfig{
			WatchdogEnabled:    true,
			WatchdogTimeout:    50 * time.Millisecond,
			WatchdogPolicy:     "fault",
			FaultPolicy:        "fault",
			RetainSaveInterval: time.Second,
			CycleInterval:      10 * time.Millisecond,
		},
		Control: ControlConfig{
			RateLimit: 20,
			RateBurst: 40,
		},
	}
}

// Load reads and decodes file into cfg, starting from Default(). Parse
// errors carrying a line number are rewrapped with the file name, matching
// cmd/gprobe/config.go's loadConfig.
func Load(file string) (Config, error) {
	cfg := Default()
	f, err := os.Open(file)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return cfg, err
}

// Dump marshals cfg back to TOML, for the dumpconfig CLI subcommand.
func Dump(cfg Config) ([]byte, error) {
	return tomlSettings.Marshal(&cfg)
}

// WatchdogPolicy translates the config string into runtime.WatchdogPolicy.
func (r RuntimeConfig) WatchdogPolicyValue() (runtime.WatchdogPolicy, error) {
	switch r.WatchdogPolicy {
	case "", "fault":
		return runtime.WatchdogPolicyFault, nil
	case "restart":
		return runtime.WatchdogPolicyRestart, nil
	default:
		return 0, fmt.Errorf("trustconfig: unknown watchdog policy %q", r.WatchdogPolicy)
	}
}

// FaultPolicyValue translates the config string into runtime.FaultPolicy.
func (r RuntimeConfig) FaultPolicyValue() (runtime.FaultPolicy, error) {
	switch r.FaultPolicy {
	case "", "fault":
		return runtime.FaultPolicyFault, nil
	case "continue":
		return runtime.FaultPolicyContinue, nil
	case "restart":
		return runtime.FaultPolicyRestart, nil
	default:
		return 0, fmt.Errorf("trustconfig: unknown fault policy %q", r.FaultPolicy)
	}
}

// Resolve parses an IOConfig's declared safe-state table against addr
// grammar, producing the []ioimage.SafeStateEntry internal/runtime.Config
// expects. Value kinds beyond BOOL and the plain integer/bit-string families
// are out of scope for a config-file literal; a declared REAL safe-state value is
// still expressible by its struct/array binding default at bytecode load
// time instead.
func (io IOConfig) Resolve() ([]ioimage.SafeStateEntry, error) {
	out := make([]ioimage.SafeStateEntry, 0, len(io.SafeState))
	for _, e := range io.SafeState {
		addr, err := ioimage.ParseIoAddress(e.Address)
		if err != nil {
			return nil, fmt.Errorf("trustconfig: safe-state address %q: %w", e.Address, err)
		}
		v, err := e.resolveValue()
		if err != nil {
			return nil, err
		}
		out = append(out, ioimage.SafeStateEntry{Addr: addr, Value: v})
	}
	return out, nil
}
