// Package config resolves the agent configuration from defaults, an optional
// YAML file and NETWATCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Capture file formats.
const (
	FormatText = "text"
	FormatPcap = "pcap"
)

// DefaultFile is the config file read when no path is given.
const DefaultFile = "netwatch.yaml"

type Config struct {
	DBPath            string        `yaml:"db_path"`
	LogPath           string        `yaml:"log_path"`
	LogLevel          string        `yaml:"log_level"`
	LogFormat         string        `yaml:"log_format"`
	CaptureDir        string        `yaml:"capture_dir"`
	CaptureFormat     string        `yaml:"capture_format"`
	AddressRange      string        `yaml:"address_range"`
	APIPort           int           `yaml:"api_port"`
	APIUsername       string        `yaml:"api_username"`
	APIPassword       string        `yaml:"api_password"`
	CaptureDuration   time.Duration `yaml:"-"`
	DiscoveryInterval time.Duration `yaml:"-"`
	DiscoveryTimeout  time.Duration `yaml:"-"`
	MaxPackets        int           `yaml:"max_packets"`
	DNSServer         string        `yaml:"dns_server"`
	Interfaces        []string      `yaml:"interfaces"`
}

func Default() *Config {
	return &Config{
		DBPath:            "netwatch.db",
		LogPath:           "netwatch.log",
		LogLevel:          "info",
		LogFormat:         "json",
		CaptureDir:        "captures",
		CaptureFormat:     FormatText,
		AddressRange:      "192.168.1.0/24",
		APIPort:           8081,
		APIUsername:       "admin",
		CaptureDuration:   60 * time.Second,
		DiscoveryInterval: 60 * time.Second,
		MaxPackets:        1000,
	}
}

// Load returns the defaults overlaid with the file at path and then the
// environment. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultFile
	}
	if err := cfg.LoadFile(path); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays values from a YAML file. Keys absent from the file keep
// their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	var durs fileDurations
	if err := yaml.Unmarshal(data, &durs); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	for _, d := range []struct {
		src *fileDuration
		dst *time.Duration
	}{
		{durs.CaptureDuration, &c.CaptureDuration},
		{durs.DiscoveryInterval, &c.DiscoveryInterval},
		{durs.DiscoveryTimeout, &c.DiscoveryTimeout},
	} {
		if d.src != nil {
			*d.dst = time.Duration(*d.src)
		}
	}
	return nil
}

// fileDurations holds the duration keys of the config file. They are decoded
// with ParseDuration so "60" means the same in the file as in the environment.
type fileDurations struct {
	CaptureDuration   *fileDuration `yaml:"capture_duration"`
	DiscoveryInterval *fileDuration `yaml:"discovery_interval"`
	DiscoveryTimeout  *fileDuration `yaml:"discovery_timeout"`
}

type fileDuration time.Duration

func (d *fileDuration) UnmarshalYAML(value *yaml.Node) error {
	v, err := ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = fileDuration(v)
	return nil
}

// ApplyEnv overlays NETWATCH_* variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"NETWATCH_DB":             &c.DBPath,
		"NETWATCH_LOG":            &c.LogPath,
		"NETWATCH_LOG_LEVEL":      &c.LogLevel,
		"NETWATCH_LOG_FORMAT":     &c.LogFormat,
		"NETWATCH_CAPTURE_DIR":    &c.CaptureDir,
		"NETWATCH_CAPTURE_FORMAT": &c.CaptureFormat,
		"NETWATCH_RANGE":          &c.AddressRange,
		"NETWATCH_API_USERNAME":   &c.APIUsername,
		"NETWATCH_API_PASSWORD":   &c.APIPassword,
		"NETWATCH_DNS_SERVER":     &c.DNSServer,
	}
	for key, dst := range strs {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"NETWATCH_API_PORT":    &c.APIPort,
		"NETWATCH_MAX_PACKETS": &c.MaxPackets,
	}
	for key, dst := range ints {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: invalid integer %q", key, v)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"NETWATCH_CAPTURE_DURATION":   &c.CaptureDuration,
		"NETWATCH_DISCOVERY_INTERVAL": &c.DiscoveryInterval,
		"NETWATCH_DISCOVERY_TIMEOUT":  &c.DiscoveryTimeout,
	}
	for key, dst := range durations {
		if v := getenv(key); v != "" {
			d, err := ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	if v := getenv("NETWATCH_INTERFACES"); v != "" {
		c.Interfaces = SplitList(v)
	}
	return nil
}

// ParseDuration accepts Go duration strings and bare integers as seconds.
func ParseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// SplitList splits a comma separated list, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// nmap octet ranges such as 10.0.0.1-50 or 10.0.1,2.0-255.
var octetRange = regexp.MustCompile(`^[0-9]{1,3}(\.[0-9,\-]{1,15}){3}$`)

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.DBPath == "":
		return errors.New("db_path must not be empty")
	case c.CaptureDir == "":
		return errors.New("capture_dir must not be empty")
	case c.APIPort < 1 || c.APIPort > 65535:
		return fmt.Errorf("api_port %d out of range", c.APIPort)
	case c.APIUsername == "":
		return errors.New("api_username must not be empty")
	case c.CaptureDuration <= 0:
		return errors.New("capture_duration must be positive")
	case c.DiscoveryInterval <= 0:
		return errors.New("discovery_interval must be positive")
	case c.DiscoveryTimeout < 0:
		return errors.New("discovery_timeout must not be negative")
	case c.MaxPackets <= 0:
		return errors.New("max_packets must be positive")
	}
	if c.CaptureFormat != FormatText && c.CaptureFormat != FormatPcap {
		return fmt.Errorf("capture_format %q must be %q or %q", c.CaptureFormat, FormatText, FormatPcap)
	}
	if !validRange(c.AddressRange) {
		return fmt.Errorf("address_range %q is not a CIDR, address or octet range", c.AddressRange)
	}
	if c.DNSServer != "" {
		if _, _, err := net.SplitHostPort(c.DNSServer); err != nil && net.ParseIP(c.DNSServer) == nil {
			return fmt.Errorf("dns_server %q is not an address", c.DNSServer)
		}
	}
	return nil
}

func validRange(r string) bool {
	if _, _, err := net.ParseCIDR(r); err == nil {
		return true
	}
	if net.ParseIP(r) != nil {
		return true
	}
	return octetRange.MatchString(r)
}

// SweepTimeout bounds one discovery sweep. It defaults to the discovery interval.
func (c *Config) SweepTimeout() time.Duration {
	if c.DiscoveryTimeout > 0 {
		return c.DiscoveryTimeout
	}
	return c.DiscoveryInterval
}

// APIAddr is the listen address of the query server.
func (c *Config) APIAddr() string {
	return fmt.Sprintf(":%d", c.APIPort)
}
