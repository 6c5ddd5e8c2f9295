package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dalnet/ircore/internal/packet"
	"github.com/dalnet/ircore/internal/transport"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds the client identity and the servers to connect to
type Config struct {
	Nick      string `yaml:"nick"`
	Alternate string `yaml:"alternate,omitempty"`
	Username  string `yaml:"username,omitempty"`
	IRCName   string `yaml:"irc_name,omitempty"`
	DataDir   string `yaml:"data_dir,omitempty"`

	// Owners are hostmasks allowed to run privileged bot commands. Empty
	// allows everyone.
	Owners []string `yaml:"owners,omitempty"`

	SendDelay     time.Duration `yaml:"send_delay,omitempty"`
	ProbeInterval time.Duration `yaml:"probe_interval,omitempty"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout,omitempty"`

	Servers []Server `yaml:"servers"`
}

// Server is one network entry. Empty identity fields fall back to the
// global ones.
type Server struct {
	Name       string   `yaml:"name"`
	URL        string   `yaml:"url"`
	Port       int      `yaml:"port,omitempty"`
	TLS        string   `yaml:"tls,omitempty"`
	Proxy      string   `yaml:"proxy,omitempty"`
	Channels   []string `yaml:"channels,omitempty"`
	Nick       string   `yaml:"nick,omitempty"`
	Alternate  string   `yaml:"alternate,omitempty"`
	ServerPass string   `yaml:"server_pass,omitempty"`

	// Ignore lists hostmasks whose messages the bot disregards.
	Ignore []string `yaml:"ignore,omitempty"`
}

// TLSMode returns the parsed tls setting.
func (s Server) TLSMode() transport.TLSMode {
	mode, _ := transport.ParseTLSMode(s.TLS)
	return mode
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	return &cfg, nil
}

// Save writes cfg to path, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the fields that have no sensible default.
func (c *Config) Validate() error {
	if c.Nick == "" {
		return fmt.Errorf("%w: nick is required", ErrInvalidConfig)
	}
	if len(c.Servers) == 0 {
		return fmt.Errorf("%w: no servers configured", ErrInvalidConfig)
	}

	for _, mask := range c.Owners {
		if err := packet.ValidMask(mask); err != nil {
			return fmt.Errorf("%w: owners: %v", ErrInvalidConfig, err)
		}
	}

	seen := make(map[string]bool)
	for i, s := range c.Servers {
		if s.Name == "" {
			return fmt.Errorf("%w: server %d has no name", ErrInvalidConfig, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate server name %q", ErrInvalidConfig, s.Name)
		}
		seen[s.Name] = true

		if s.URL == "" {
			return fmt.Errorf("%w: server %q has no url", ErrInvalidConfig, s.Name)
		}
		if s.Port < 0 || s.Port > 65535 {
			return fmt.Errorf("%w: server %q has invalid port %d", ErrInvalidConfig, s.Name, s.Port)
		}
		if _, err := transport.ParseTLSMode(s.TLS); err != nil {
			return fmt.Errorf("%w: server %q: %v", ErrInvalidConfig, s.Name, err)
		}
		for _, mask := range s.Ignore {
			if err := packet.ValidMask(mask); err != nil {
				return fmt.Errorf("%w: server %q: ignore: %v", ErrInvalidConfig, s.Name, err)
			}
		}
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Username == "" {
		c.Username = c.Nick
	}
	if c.IRCName == "" {
		c.IRCName = c.Nick
	}
	for i := range c.Servers {
		s := &c.Servers[i]
		if s.Port == 0 {
			s.Port = 6667
			if s.TLSMode() != transport.TLSNone {
				s.Port = 6697
			}
		}
		if s.Nick == "" {
			s.Nick = c.Nick
		}
		if s.Alternate == "" {
			s.Alternate = c.Alternate
		}
	}
}
