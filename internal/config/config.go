// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ffutop/modbus-rtu-slave/internal/model"
)

// Config defines the global configuration structure
type Config struct {
	Slave       SlaveConfig       `mapstructure:"slave"`
	Transport   TransportConfig   `mapstructure:"transport"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Registers   RegistersConfig   `mapstructure:"registers"`
	Log         LogConfig         `mapstructure:"log"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// SlaveConfig defines the identity and shape of the served device
type SlaveConfig struct {
	ID    int         `mapstructure:"id"` // 1..247
	Sizes model.Sizes `mapstructure:"sizes"`
}

// TransportConfig defines how frames reach the slave
type TransportConfig struct {
	Type   string       `mapstructure:"type"`   // "rtu", "rtu-over-tcp"
	Serial SerialConfig `mapstructure:"serial"` // Used if Type is "rtu"
	Tcp    TcpConfig    `mapstructure:"tcp"`    // Used if Type is "rtu-over-tcp"
}

// PersistenceConfig defines data storage settings
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap"
	Path string `mapstructure:"path"` // File path for "file/mmap" type
}

// RegistersConfig holds values written into every snapshot the daemon
// publishes, on top of the persisted state.
type RegistersConfig struct {
	Coils            []BitPreset  `mapstructure:"coils"`
	DiscreteInputs   []BitPreset  `mapstructure:"discrete_inputs"`
	HoldingRegisters []WordPreset `mapstructure:"holding_registers"`
	InputRegisters   []WordPreset `mapstructure:"input_registers"`
}

// BitPreset sets consecutive bits starting at Address.
type BitPreset struct {
	Address uint16 `mapstructure:"address"`
	Values  []bool `mapstructure:"values"`
}

// WordPreset sets consecutive registers starting at Address.
type WordPreset struct {
	Address uint16   `mapstructure:"address"`
	Values  []uint16 `mapstructure:"values"`
}

// TcpConfig defines TCP settings
type TcpConfig struct {
	Address string `mapstructure:"address"` // e.g. "0.0.0.0:502" or "192.168.1.100:502"
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device   string        `mapstructure:"device"`
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	Parity   string        `mapstructure:"parity"`
	StopBits int           `mapstructure:"stop_bits"`
	Timeout  time.Duration `mapstructure:"timeout"`

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// EnvPrefix prefixes environment overrides, e.g. RTUSLAVE_SLAVE_ID.
const EnvPrefix = "RTUSLAVE"

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"slave-id":    "slave.id",
	"transport":   "transport.type",
	"device":      "transport.serial.device",
	"baud-rate":   "transport.serial.baud_rate",
	"parity":      "transport.serial.parity",
	"tcp-address": "transport.tcp.address",
	"persistence": "persistence.type",
	"data-file":   "persistence.path",
	"log-level":   "log.level",
	"log-file":    "log.file",
}

// Loader reads the configuration and keeps the viper instance around so the
// file can be watched afterwards.
type Loader struct {
	v *viper.Viper
}

// NewLoader reads configFile, or searches the default locations when it is
// empty. Flags present in flags override file and environment values. A
// missing config file is only an error when configFile was given.
func NewLoader(configFile string, flags *pflag.FlagSet) (*Loader, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/modbus-rtu-slave/")
		v.AddConfigPath("$HOME/.modbus-rtu-slave")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		slog.Debug("No config file found, using defaults and environment")
	}

	return &Loader{v: v}, nil
}

// LoadConfig loads configuration from file
func LoadConfig(configFile string) (*Config, error) {
	l, err := NewLoader(configFile, nil)
	if err != nil {
		return nil, err
	}
	return l.Config()
}

// File returns the config file in use, or "" when none was found.
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// Config decodes, fixes up and validates the current configuration.
func (l *Loader) Config() (*Config, error) {
	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	fixupSerial(&config.Transport.Serial)
	config.Transport.Type = strings.ToLower(config.Transport.Type)
	config.Persistence.Type = strings.ToLower(config.Persistence.Type)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Watch calls onChange with the new configuration every time the config
// file changes. Invalid configurations are logged and skipped.
func (l *Loader) Watch(onChange func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		slog.Info("Config file changed", "file", e.Name, "op", e.Op.String())
		cfg, err := l.Config()
		if err != nil {
			slog.Error("Ignoring invalid config change", "err", err)
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("slave.id", 1)
	v.SetDefault("slave.sizes.coils", 64)
	v.SetDefault("slave.sizes.discrete_inputs", 64)
	v.SetDefault("slave.sizes.holding_registers", 64)
	v.SetDefault("slave.sizes.input_registers", 64)

	v.SetDefault("transport.type", "rtu")
	v.SetDefault("transport.serial.device", "")
	v.SetDefault("transport.tcp.address", "")
	v.SetDefault("transport.serial.baud_rate", 19200)
	v.SetDefault("transport.serial.data_bits", 8)
	v.SetDefault("transport.serial.parity", "N")
	v.SetDefault("transport.serial.stop_bits", 1)
	v.SetDefault("transport.serial.timeout", 500*time.Millisecond)

	v.SetDefault("persistence.type", "memory")
	v.SetDefault("persistence.path", "")
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Timeout == 0 {
		s.Timeout = 500 * time.Millisecond
	}
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Slave.ID < 1 || c.Slave.ID > 247 {
		return fmt.Errorf("config: slave id %d out of range [1, 247]", c.Slave.ID)
	}
	if err := c.Slave.Sizes.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	switch c.Transport.Type {
	case "rtu":
		if c.Transport.Serial.Device == "" {
			return errors.New("config: transport.serial.device is required for rtu")
		}
		switch c.Transport.Serial.Parity {
		case "N", "E", "O":
		default:
			return fmt.Errorf("config: unknown parity %q", c.Transport.Serial.Parity)
		}
	case "rtu-over-tcp":
		if c.Transport.Tcp.Address == "" {
			return errors.New("config: transport.tcp.address is required for rtu-over-tcp")
		}
	default:
		return fmt.Errorf("config: unknown transport type %q", c.Transport.Type)
	}

	switch c.Persistence.Type {
	case "", "memory":
	case "file", "mmap":
		if c.Persistence.Path == "" {
			return fmt.Errorf("config: persistence.path is required for %s", c.Persistence.Type)
		}
	default:
		return fmt.Errorf("config: unknown persistence type %q", c.Persistence.Type)
	}

	return c.Registers.validate(c.Slave.Sizes)
}

func (r RegistersConfig) validate(sizes model.Sizes) error {
	check := func(name string, address uint16, n, size int) error {
		if int(address)+n > size {
			return fmt.Errorf("config: %s preset at %d with %d values exceeds table size %d", name, address, n, size)
		}
		return nil
	}
	for _, p := range r.Coils {
		if err := check("coils", p.Address, len(p.Values), sizes.Coils); err != nil {
			return err
		}
	}
	for _, p := range r.DiscreteInputs {
		if err := check("discrete_inputs", p.Address, len(p.Values), sizes.DiscreteInputs); err != nil {
			return err
		}
	}
	for _, p := range r.HoldingRegisters {
		if err := check("holding_registers", p.Address, len(p.Values), sizes.HoldingRegisters); err != nil {
			return err
		}
	}
	for _, p := range r.InputRegisters {
		if err := check("input_registers", p.Address, len(p.Values), sizes.InputRegisters); err != nil {
			return err
		}
	}
	return nil
}
