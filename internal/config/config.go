// Package config loads rcrelay settings: defaults, then a YAML file, then
// RCRELAY_* environment variables. Command-line flags are applied by the
// binaries on top.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rcrelay/rcrelay/internal/ble"
	"github.com/rcrelay/rcrelay/internal/control"
	"github.com/rcrelay/rcrelay/internal/input"
	"github.com/rcrelay/rcrelay/internal/netlink"
	"github.com/rcrelay/rcrelay/internal/relay"
	"github.com/rcrelay/rcrelay/internal/supervisor"
)

// EnvFile names the variable consulted when no -c flag is given.
const EnvFile = "RCRELAY_CONFIG"

var ErrInvalid = errors.New("invalid config")

type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("config.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Config is the full settings tree.
type Config struct {
	Network  NetworkConfig  `yaml:"network"`
	BLE      BLEConfig      `yaml:"ble"`
	Input    InputConfig    `yaml:"input"`
	Relay    RelayConfig    `yaml:"relay"`
	Log      LogConfig      `yaml:"log"`
	Operator OperatorConfig `yaml:"operator"`
}

// NetworkConfig locates the operator websocket.
type NetworkConfig struct {
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	Path         string   `yaml:"path"`
	PingInterval Duration `yaml:"pingInterval"`
	PongTimeout  Duration `yaml:"pongTimeout"`
}

// BLEConfig identifies the vehicle and its control characteristic.
type BLEConfig struct {
	Name           string   `yaml:"name"`
	Service        string   `yaml:"service"`
	Characteristic string   `yaml:"characteristic"`
	FrameFormat    string   `yaml:"frameFormat"`
	ScanTimeout    Duration `yaml:"scanTimeout"`
}

type AxisMapConfig struct {
	Roll     string `yaml:"roll"`
	Pitch    string `yaml:"pitch"`
	Yaw      string `yaml:"yaw"`
	Throttle string `yaml:"throttle"`
}

type NeutralBandConfig struct {
	Low  int64 `yaml:"low"`
	High int64 `yaml:"high"`
}

// InputConfig drives the local joystick sampler.
type InputConfig struct {
	Backend        string            `yaml:"backend"`
	Device         string            `yaml:"device"`
	PollInterval   Duration          `yaml:"pollInterval"`
	RescanInterval Duration          `yaml:"rescanInterval"`
	Deadzone       int               `yaml:"deadzone"`
	HalfRange      int               `yaml:"halfRange"`
	AxisMap        AxisMapConfig     `yaml:"axisMap"`
	NeutralBand    NeutralBandConfig `yaml:"neutralBand"`
}

type RelayConfig struct {
	QueueSize      int      `yaml:"queueSize"`
	ReconnectDelay Duration `yaml:"reconnectDelay"`
	StatsInterval  Duration `yaml:"statsInterval"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
}

type OperatorConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Network: NetworkConfig{
			Host:         "localhost",
			Port:         5000,
			Path:         netlink.DefaultPath,
			PingInterval: Duration(netlink.DefaultPingInterval),
			PongTimeout:  Duration(netlink.DefaultPongTimeout),
		},
		BLE: BLEConfig{
			Name:           "DJI_REMOTE_TRPY",
			Service:        "1fbcdfb1-8e73-4296-9057-a6ee3133902a",
			Characteristic: "d97e4ec1-d3c4-4952-a421-884719fe35f7",
			FrameFormat:    control.FrameInt16LE.String(),
			ScanTimeout:    Duration(ble.DefaultScanTimeout),
		},
		Input: InputConfig{
			Backend:        input.BackendAuto,
			PollInterval:   Duration(relay.DefaultPollInterval),
			RescanInterval: Duration(relay.DefaultRescanInterval),
			Deadzone:       control.DefaultDeadzone,
			HalfRange:      control.DefaultHalfRange,
			AxisMap: AxisMapConfig{
				Roll:     control.Mode2.Roll.String(),
				Pitch:    control.Mode2.Pitch.String(),
				Yaw:      control.Mode2.Yaw.String(),
				Throttle: control.Mode2.Throttle.String(),
			},
			NeutralBand: NeutralBandConfig{
				Low:  control.DefaultNeutralBand.Low,
				High: control.DefaultNeutralBand.High,
			},
		},
		Relay: RelayConfig{
			QueueSize:      relay.DefaultQueueSize,
			ReconnectDelay: Duration(supervisor.DefaultDelay),
			StatsInterval:  Duration(relay.DefaultStatsInterval),
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Operator: OperatorConfig{
			Addr: ":5000",
		},
	}
}

// Load reads path (or $RCRELAY_CONFIG when path is empty) over the defaults
// and applies environment overrides. A missing path is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvFile)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Network.Host = getenvDefault("RCRELAY_HOST", c.Network.Host)
	c.Network.Port = getenvIntDefault("RCRELAY_PORT", c.Network.Port)
	c.Network.Path = getenvDefault("RCRELAY_WS_PATH", c.Network.Path)
	c.Network.PingInterval = getenvDurationDefault("RCRELAY_PING_INTERVAL", c.Network.PingInterval)
	c.Network.PongTimeout = getenvDurationDefault("RCRELAY_PONG_TIMEOUT", c.Network.PongTimeout)

	c.BLE.Name = getenvDefault("RCRELAY_BLE_NAME", c.BLE.Name)
	c.BLE.Service = getenvDefault("RCRELAY_BLE_SERVICE", c.BLE.Service)
	c.BLE.Characteristic = getenvDefault("RCRELAY_BLE_CHARACTERISTIC", c.BLE.Characteristic)
	c.BLE.FrameFormat = getenvDefault("RCRELAY_FRAME_FORMAT", c.BLE.FrameFormat)
	c.BLE.ScanTimeout = getenvDurationDefault("RCRELAY_SCAN_TIMEOUT", c.BLE.ScanTimeout)

	c.Input.Backend = getenvDefault("RCRELAY_INPUT_BACKEND", c.Input.Backend)
	c.Input.Device = getenvDefault("RCRELAY_INPUT_DEVICE", c.Input.Device)
	c.Input.PollInterval = getenvDurationDefault("RCRELAY_POLL_INTERVAL", c.Input.PollInterval)
	c.Input.RescanInterval = getenvDurationDefault("RCRELAY_RESCAN_INTERVAL", c.Input.RescanInterval)
	c.Input.Deadzone = getenvIntDefault("RCRELAY_DEADZONE", c.Input.Deadzone)
	c.Input.HalfRange = getenvIntDefault("RCRELAY_HALF_RANGE", c.Input.HalfRange)
	c.Input.NeutralBand.Low = getenvInt64Default("RCRELAY_NEUTRAL_LOW", c.Input.NeutralBand.Low)
	c.Input.NeutralBand.High = getenvInt64Default("RCRELAY_NEUTRAL_HIGH", c.Input.NeutralBand.High)
	if getenvBoolDefault("RCRELAY_NO_JOYSTICK", false) {
		c.Input.Backend = input.BackendNone
	}

	c.Relay.QueueSize = getenvIntDefault("RCRELAY_QUEUE_SIZE", c.Relay.QueueSize)
	c.Relay.ReconnectDelay = getenvDurationDefault("RCRELAY_RECONNECT_DELAY", c.Relay.ReconnectDelay)
	c.Relay.StatsInterval = getenvDurationDefault("RCRELAY_STATS_INTERVAL", c.Relay.StatsInterval)

	c.Log.Level = getenvDefault("RCRELAY_LOG_LEVEL", c.Log.Level)
	c.Log.File = getenvDefault("RCRELAY_LOG_FILE", c.Log.File)

	c.Operator.Addr = getenvDefault("RCRELAY_OPERATOR_ADDR", c.Operator.Addr)
}

var validBackends = map[string]struct{}{
	input.BackendAuto:     {},
	input.BackendEvdev:    {},
	input.BackendWinmm:    {},
	input.BackendJoystick: {},
	input.BackendNone:     {},
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if c.Network.Host == "" {
		return fmt.Errorf("%w: network.host is empty", ErrInvalid)
	}
	if c.Network.Port < 1 || c.Network.Port > 65535 {
		return fmt.Errorf("%w: network.port %d out of range", ErrInvalid, c.Network.Port)
	}
	if c.Network.PingInterval <= 0 || c.Network.PongTimeout <= c.Network.PingInterval {
		return fmt.Errorf("%w: network.pongTimeout must exceed a positive pingInterval", ErrInvalid)
	}

	if _, err := c.Target(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := c.FrameFormat(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if _, ok := validBackends[c.Input.Backend]; !ok {
		return fmt.Errorf("%w: input.backend %q", ErrInvalid, c.Input.Backend)
	}
	if c.Input.PollInterval <= 0 || c.Input.RescanInterval <= 0 {
		return fmt.Errorf("%w: input intervals must be positive", ErrInvalid)
	}
	if c.Input.HalfRange <= 0 || c.Input.HalfRange > 32767 {
		return fmt.Errorf("%w: input.halfRange %d", ErrInvalid, c.Input.HalfRange)
	}
	if c.Input.Deadzone < 0 || c.Input.Deadzone >= c.Input.HalfRange {
		return fmt.Errorf("%w: input.deadzone %d must be in [0, halfRange)", ErrInvalid, c.Input.Deadzone)
	}
	if _, err := c.AxisMap(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Input.NeutralBand.Low >= c.Input.NeutralBand.High {
		return fmt.Errorf("%w: input.neutralBand low must be below high", ErrInvalid)
	}

	if c.Relay.QueueSize <= 0 {
		return fmt.Errorf("%w: relay.queueSize %d", ErrInvalid, c.Relay.QueueSize)
	}
	if c.Relay.ReconnectDelay <= 0 || c.Relay.StatsInterval <= 0 {
		return fmt.Errorf("%w: relay intervals must be positive", ErrInvalid)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level)
	}
	return nil
}

// URL is the websocket endpoint the relay dials.
func (c *Config) URL() string {
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(c.Network.Host, strconv.Itoa(c.Network.Port)),
		Path:   c.Network.Path,
	}
	return u.String()
}

func (c *Config) Target() (ble.Target, error) {
	return ble.ParseTarget(c.BLE.Name, c.BLE.Service, c.BLE.Characteristic, c.BLE.ScanTimeout.Duration())
}

func (c *Config) FrameFormat() (control.FrameFormat, error) {
	return control.ParseFrameFormat(c.BLE.FrameFormat)
}

func (c *Config) AxisMap() (control.AxisMap, error) {
	var m control.AxisMap
	for _, f := range []struct {
		name string
		dst  *control.Axis
	}{
		{c.Input.AxisMap.Roll, &m.Roll},
		{c.Input.AxisMap.Pitch, &m.Pitch},
		{c.Input.AxisMap.Yaw, &m.Yaw},
		{c.Input.AxisMap.Throttle, &m.Throttle},
	} {
		a, err := control.ParseAxis(f.name)
		if err != nil {
			return control.AxisMap{}, err
		}
		*f.dst = a
	}
	return m, nil
}

func (c *Config) Normalizer() control.Normalizer {
	return control.Normalizer{HalfRange: c.Input.HalfRange, Deadzone: c.Input.Deadzone}
}

func (c *Config) NeutralBand() control.NeutralBand {
	return control.NeutralBand{Low: c.Input.NeutralBand.Low, High: c.Input.NeutralBand.High}
}

// Engine returns the relay engine tunables.
func (c *Config) Engine() (relay.Config, error) {
	m, err := c.AxisMap()
	if err != nil {
		return relay.Config{}, err
	}
	f, err := c.FrameFormat()
	if err != nil {
		return relay.Config{}, err
	}
	return relay.Config{
		PollInterval:   c.Input.PollInterval.Duration(),
		RescanInterval: c.Input.RescanInterval.Duration(),
		StatsInterval:  c.Relay.StatsInterval.Duration(),
		AxisMap:        m,
		Frame:          f,
	}, nil
}
