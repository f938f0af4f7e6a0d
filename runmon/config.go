package runmon

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultSamplerCommand samples CPU and advanced memory statistics once per
// second. dstat's own pacing is left alone; runmon only bounds its lifetime.
var DefaultSamplerCommand = []string{"dstat", "-c", "--mem-adv"}

// Config is runmon's optional configuration file.
type Config struct {
	Sampler         SamplerSection `toml:"sampler" yaml:"sampler"`
	Interpreters    Interpreters   `toml:"interpreters" yaml:"interpreters"`
	Journal         string         `toml:"journal" yaml:"journal"`
	MetricsTextfile string         `toml:"metrics_textfile" yaml:"metrics_textfile"`
}

// SamplerSection configures the sampling tool.
type SamplerSection struct {
	Command []string `toml:"command" yaml:"command"`
}

// Interpreters configures how each workload kind is launched.
type Interpreters struct {
	Script []string `toml:"script" yaml:"script"`
	Shell  []string `toml:"shell" yaml:"shell"`

	// ForwardNamedToShell also passes named arguments to shell workloads.
	// Shell workloads historically only receive positional arguments, so this
	// is off unless asked for.
	ForwardNamedToShell bool `toml:"forward_named_to_shell" yaml:"forward_named_to_shell"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// LoadConfig loads a .toml, .yaml or .yml configuration file. Unset values
// fall back to the defaults.
func LoadConfig(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("config path is empty")
	}

	var cfg Config

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, errors.Wrap(err, "failed to decode config")
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, errors.Errorf("unknown keys in config: %v", undecoded)
		}

	case ".yaml", ".yml":
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config")
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to decode config")
		}

	default:
		return nil, errors.Errorf("unsupported config format %q", ext)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.Sampler.Command) == 0 {
		c.Sampler.Command = append([]string(nil), DefaultSamplerCommand...)
	}
	if len(c.Interpreters.Script) == 0 {
		c.Interpreters.Script = []string{"python3"}
	}
	if len(c.Interpreters.Shell) == 0 {
		c.Interpreters.Shell = []string{"bash"}
	}
}

func (c *Config) validate() error {
	if c.Sampler.Command[0] == "" {
		return errors.New("sampler.command must name a program")
	}
	if c.Interpreters.Script[0] == "" {
		return errors.New("interpreters.script must name a program")
	}
	if c.Interpreters.Shell[0] == "" {
		return errors.New("interpreters.shell must name a program")
	}
	return nil
}
