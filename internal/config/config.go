package config

import "time"

// Config holds client configuration values.
type Config struct {
	Profile      string        `mapstructure:"profile" yaml:"profile"`
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	BridgeAddr   string        `mapstructure:"bridge_addr" yaml:"bridge_addr"`
	SettingsPath string        `mapstructure:"settings_path" yaml:"settings_path"`
	LogLevel     string        `mapstructure:"log_level" yaml:"log_level"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	LoginTimeout time.Duration `mapstructure:"login_timeout" yaml:"login_timeout"`
}

// Default returns configuration with reasonable starter defaults.
// Addr is empty by default; the endpoint then comes from the settings
// store profile named by Profile.
func Default() Config {
	return Config{
		Profile:      "production",
		BridgeAddr:   "127.0.0.1:8200",
		SettingsPath: "lobbyctl.db",
		LogLevel:     "info",
		DialTimeout:  10 * time.Second,
		LoginTimeout: 10 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Profile != "" {
		c.Profile = other.Profile
	}
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.BridgeAddr != "" {
		c.BridgeAddr = other.BridgeAddr
	}
	if other.SettingsPath != "" {
		c.SettingsPath = other.SettingsPath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DialTimeout != 0 {
		c.DialTimeout = other.DialTimeout
	}
	if other.LoginTimeout != 0 {
		c.LoginTimeout = other.LoginTimeout
	}
}
