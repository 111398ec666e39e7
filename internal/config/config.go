// Package config loads plutoctl settings from an HCL file and PLUTO_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/hcl"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/rjboer/GoPluto/iiod"
	"github.com/rjboer/GoPluto/internal/logging"
	"github.com/rjboer/GoPluto/internal/sysfs"
	"github.com/rjboer/GoPluto/pluto"
	"github.com/rjboer/GoPluto/stream"
)

// EnvPrefix prefixes every environment override, e.g. PLUTO_RX_LO.
const EnvPrefix = "PLUTO_"

type RXConf struct {
	BufferSize      int      `koanf:"buffer_size"`
	EnabledChannels []int    `koanf:"enabled_channels"`
	LO              int64    `koanf:"lo"`
	Gain            *float64 `koanf:"gain"`
	GainControlMode string   `koanf:"gain_control_mode"`
}

type TXConf struct {
	Cyclic          bool     `koanf:"cyclic"`
	EnabledChannels []int    `koanf:"enabled_channels"`
	LO              int64    `koanf:"lo"`
	Gain            *float64 `koanf:"gain"`
	// OutputFile diverts transmitted samples to a file.
	OutputFile string `koanf:"output_file"`
}

type LogConf struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// SSHConf enables the sysfs write fallback when Host is set.
type SSHConf struct {
	Host     string        `koanf:"host"`
	User     string        `koanf:"user"`
	Password string        `koanf:"password"`
	KeyPath  string        `koanf:"key_path"`
	Port     int           `koanf:"port"`
	Root     string        `koanf:"root"`
	Timeout  time.Duration `koanf:"timeout"`
}

type DiscoveryConf struct {
	Timeout time.Duration `koanf:"timeout"`
}

type Config struct {
	URI        string        `koanf:"uri"`
	Name       string        `koanf:"name"`
	Timeout    time.Duration `koanf:"timeout"`
	Retries    uint64        `koanf:"retries"`
	Complex    bool          `koanf:"complex"`
	SampleRate int64         `koanf:"sample_rate"`

	RX        RXConf        `koanf:"rx"`
	TX        TXConf        `koanf:"tx"`
	Log       LogConf       `koanf:"log"`
	SSH       SSHConf       `koanf:"ssh"`
	Discovery DiscoveryConf `koanf:"discovery"`
}

// Default returns the settings used for keys absent from every source.
func Default() Config {
	return Config{
		Name:    pluto.DeviceName,
		Timeout: 5 * time.Second,
		Retries: 3,
		Complex: true,
		RX: RXConf{
			BufferSize:      stream.DefaultBufferSize,
			EnabledChannels: []int{0},
		},
		TX: TXConf{
			EnabledChannels: []int{0},
		},
		Log:       LogConf{Level: "info", Format: "text"},
		Discovery: DiscoveryConf{Timeout: 2 * time.Second},
	}
}

// SearchPaths lists the config files tried by FindFile, in order.
func SearchPaths() []string {
	paths := []string{"/etc/plutoctl/config.hcl"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "plutoctl", "config.hcl"))
	}
	return append(paths, "./config.hcl")
}

// FindFile returns the last existing file of SearchPaths, so a local file
// wins over the system one. It returns "" when none exists.
func FindFile() string {
	found := ""
	for _, p := range SearchPaths() {
		if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
			found = p
		}
	}
	return found
}

// sections are the nested blocks. An environment key is split after its
// first word only when that word names one of them.
var sections = map[string]bool{"rx": true, "tx": true, "log": true, "ssh": true, "discovery": true}

func envKey(k string) string {
	key := strings.ToLower(strings.TrimPrefix(k, EnvPrefix))
	if head, _, ok := strings.Cut(key, "_"); ok && sections[head] {
		return strings.Replace(key, "_", ".", 1)
	}
	return key
}

// Load reads path (skipped when empty), then the environment, over the
// defaults, and validates the result.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), hcl.Parser(true)); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(k, v string) (string, any) {
			return envKey(k), v
		},
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.URI != "" {
		if _, err := iiod.ParseURI(c.URI); err != nil {
			errs = append(errs, fmt.Errorf("uri: %w", err))
		}
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout %s is negative", c.Timeout))
	}
	if c.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("sample_rate %d is negative", c.SampleRate))
	}
	if c.RX.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("rx.buffer_size %d must be positive", c.RX.BufferSize))
	}
	for _, dir := range []struct {
		name string
		idx  []int
	}{{"rx", c.RX.EnabledChannels}, {"tx", c.TX.EnabledChannels}} {
		for _, i := range dir.idx {
			if i < 0 {
				errs = append(errs, fmt.Errorf("%s.enabled_channels: index %d", dir.name, i))
			}
		}
	}
	if c.RX.LO < 0 || c.TX.LO < 0 {
		errs = append(errs, errors.New("lo frequencies must not be negative"))
	}
	switch c.RX.GainControlMode {
	case "", "manual", "slow_attack", "fast_attack", "hybrid":
	default:
		errs = append(errs, fmt.Errorf("rx.gain_control_mode %q", c.RX.GainControlMode))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		errs = append(errs, fmt.Errorf("log.format: %w", err))
	}
	if c.SSH.Host != "" && c.SSH.Password == "" && c.SSH.KeyPath == "" {
		errs = append(errs, errors.New("ssh: password or key_path is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Logger builds the logger described by the log section.
func (c Config) Logger(out io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Log.Format)
	if err != nil {
		return nil, err
	}
	return logging.New(level, format, out), nil
}

// SSHConfig returns the sysfs fallback login; ok is false when no host is
// configured.
func (c Config) SSHConfig() (cfg sysfs.Config, ok bool) {
	if c.SSH.Host == "" {
		return sysfs.Config{}, false
	}
	return sysfs.Config{
		Host:     c.SSH.Host,
		User:     c.SSH.User,
		Password: c.SSH.Password,
		KeyPath:  c.SSH.KeyPath,
		Port:     c.SSH.Port,
		Root:     c.SSH.Root,
		Timeout:  c.SSH.Timeout,
	}, true
}

func (c Config) OpenerOptions(fallback iiod.FileWriter, log logging.Logger) iiod.Options {
	return iiod.Options{
		Timeout:   c.Timeout,
		Retries:   c.Retries,
		Discovery: c.Discovery.Timeout,
		Fallback:  fallback,
		Logger:    log,
	}
}

func (c Config) PlutoOptions(log logging.Logger) pluto.Options {
	opts := pluto.DefaultOptions()
	opts.URI = c.URI
	opts.Name = c.Name
	opts.Timeout = c.Timeout
	opts.Complex = c.Complex
	opts.RXEnabled = append([]int(nil), c.RX.EnabledChannels...)
	opts.TXEnabled = append([]int(nil), c.TX.EnabledChannels...)
	opts.BufferSize = c.RX.BufferSize
	opts.TXCyclic = c.TX.Cyclic
	opts.TXFile = c.TX.OutputFile
	opts.Logger = log
	return opts
}

// Apply pushes the configured RF settings to p. Zero values are left alone.
func (c Config) Apply(p *pluto.Pluto) error {
	if c.SampleRate > 0 {
		if err := p.SetSampleRate(c.SampleRate); err != nil {
			return err
		}
	}
	if c.RX.LO > 0 {
		if err := p.SetRXLO(c.RX.LO); err != nil {
			return err
		}
	}
	if c.TX.LO > 0 {
		if err := p.SetTXLO(c.TX.LO); err != nil {
			return err
		}
	}
	if c.RX.GainControlMode != "" {
		if err := p.SetGainControlMode(c.RX.GainControlMode); err != nil {
			return err
		}
	}
	if c.RX.Gain != nil {
		if err := p.SetRXHardwareGain(*c.RX.Gain); err != nil {
			return err
		}
	}
	if c.TX.Gain != nil {
		if err := p.SetTXHardwareGain(*c.TX.Gain); err != nil {
			return err
		}
	}
	return nil
}
