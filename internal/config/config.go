// Package config loads and validates the moor configuration file. All key
// references are resolved at load time; a resolution failure aborts startup.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/atikulmunna/moor/internal/access"
	"github.com/atikulmunna/moor/internal/service"
)

// Defaults applied when the config file leaves a field unset.
const (
	DefaultListen      = ":8520"
	DefaultComposeFile = "docker-compose.yml"
	DefaultLogBuffer   = service.DefaultBufferSize
	DefaultReplay      = 100
)

// Config is the top-level configuration.
type Config struct {
	Listen     string                   `yaml:"listen"`
	CacheDir   string                   `yaml:"cache_dir"`
	LogBuffer  int                      `yaml:"log_buffer"`
	Replay     int                      `yaml:"replay"`
	Include    []string                 `yaml:"include"`
	AccessKeys map[string]string        `yaml:"access_keys"`
	Services   map[string]ServiceConfig `yaml:"services"`
}

// ServiceConfig describes one service group.
type ServiceConfig struct {
	Dir         string         `yaml:"dir"`
	ComposeFile string         `yaml:"compose_file"`
	AccessKeys  []KeyConfig    `yaml:"access_keys"`
	Commands    CommandsConfig `yaml:"commands"`
}

// KeyConfig is either a bare key literal (all scopes) or a key with an
// explicit scope list.
type KeyConfig struct {
	Key    string
	Scopes []string
}

// UnmarshalYAML accepts both the scalar and the mapping form.
func (k *KeyConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&k.Key)
	}
	var raw struct {
		Key    string   `yaml:"key"`
		Scopes []string `yaml:"scopes"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	k.Key = raw.Key
	k.Scopes = raw.Scopes
	return nil
}

// CommandsConfig is the configuration form of the service.Commands variant:
// absent or "none" disables execution, "any" allows free-form execution, a
// sequence defines an explicit command list.
type CommandsConfig struct {
	Mode string // "", "none", "any", "list"
	List []CommandConfig
}

// CommandConfig is one entry of an explicit command list.
type CommandConfig struct {
	ID         string   `yaml:"id"`
	SubService string   `yaml:"sub_service"`
	Argv       []string `yaml:"argv"`
	Label      string   `yaml:"label"`
}

// UnmarshalYAML accepts the scalar and the sequence form.
func (c *CommandsConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var mode string
		if err := value.Decode(&mode); err != nil {
			return err
		}
		switch mode {
		case "none", "any":
			c.Mode = mode
			return nil
		default:
			return fmt.Errorf("unknown commands mode %q", mode)
		}
	}
	if err := value.Decode(&c.List); err != nil {
		return err
	}
	c.Mode = "list"
	return nil
}

// Load reads the config file, merges include fragments, applies defaults,
// and validates everything that can fail at startup (key references, scope
// names, command definitions). A missing file is a fatal error.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.mergeIncludes(filepath.Dir(path)); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeIncludes expands the include globs (relative to the main config file)
// and merges the service definitions from each matched fragment.
func (c *Config) mergeIncludes(baseDir string) error {
	if c.Services == nil {
		c.Services = make(map[string]ServiceConfig)
	}

	for _, pattern := range c.Include {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return fmt.Errorf("expand include %q: %w", pattern, err)
		}

		for _, match := range matches {
			raw, err := os.ReadFile(match)
			if err != nil {
				return fmt.Errorf("read include %s: %w", match, err)
			}
			var frag struct {
				Services map[string]ServiceConfig `yaml:"services"`
			}
			if err := yaml.Unmarshal(raw, &frag); err != nil {
				return fmt.Errorf("parse include %s: %w", match, err)
			}
			for name, sc := range frag.Services {
				if _, exists := c.Services[name]; exists {
					return fmt.Errorf("include %s: duplicate service %q", match, name)
				}
				c.Services[name] = sc
			}
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.LogBuffer <= 0 {
		c.LogBuffer = DefaultLogBuffer
	}
	if c.Replay <= 0 {
		c.Replay = DefaultReplay
	}
	for name, sc := range c.Services {
		if sc.ComposeFile == "" {
			sc.ComposeFile = DefaultComposeFile
			c.Services[name] = sc
		}
	}
}

// validate runs every build step that can fail so misconfiguration surfaces
// at startup rather than on first use.
func (c *Config) validate() error {
	for name, sc := range c.Services {
		if sc.Dir == "" {
			return fmt.Errorf("service %q: dir is required", name)
		}
		if _, err := c.BuildKeys(name); err != nil {
			return err
		}
		if _, err := BuildCommands(sc.Commands); err != nil {
			return fmt.Errorf("service %q: %w", name, err)
		}
	}
	return nil
}

// BuildKeys resolves a service's configured keys into access keys: `$name`
// references are resolved against the top-level key table, scope strings are
// parsed, and a key without scopes gets all of them.
func (c *Config) BuildKeys(name string) ([]access.Key, error) {
	sc, ok := c.Services[name]
	if !ok {
		return nil, fmt.Errorf("unknown service %q", name)
	}

	var keys []access.Key
	for _, kc := range sc.AccessKeys {
		value, err := access.ResolveKeyRef(kc.Key, c.AccessKeys)
		if err != nil {
			return nil, fmt.Errorf("service %q: %w", name, err)
		}
		if value == "" {
			return nil, fmt.Errorf("service %q: empty access key", name)
		}

		scopes := access.AllScopes()
		if len(kc.Scopes) > 0 {
			scopes = nil
			for _, s := range kc.Scopes {
				scope, err := access.ParseScope(s)
				if err != nil {
					return nil, fmt.Errorf("service %q: %w", name, err)
				}
				scopes = append(scopes, scope)
			}
		}
		keys = append(keys, access.Key{Value: value, Scopes: scopes})
	}
	return keys, nil
}

// BuildCommands converts the configuration form into the service.Commands
// variant.
func BuildCommands(cc CommandsConfig) (service.Commands, error) {
	switch cc.Mode {
	case "", "none":
		return service.Commands{Mode: service.CommandsDisabled}, nil
	case "any":
		return service.Commands{Mode: service.CommandsAny}, nil
	case "list":
		seen := make(map[string]bool)
		list := make([]service.Command, 0, len(cc.List))
		for _, command := range cc.List {
			if command.ID == "" {
				return service.Commands{}, fmt.Errorf("command without id")
			}
			if seen[command.ID] {
				return service.Commands{}, fmt.Errorf("duplicate command id %q", command.ID)
			}
			seen[command.ID] = true
			if command.SubService == "" {
				return service.Commands{}, fmt.Errorf("command %q: sub_service is required", command.ID)
			}
			if len(command.Argv) == 0 {
				return service.Commands{}, fmt.Errorf("command %q: argv is required", command.ID)
			}
			list = append(list, service.NewCommand(command.ID, command.SubService, command.Argv, command.Label))
		}
		return service.Commands{Mode: service.CommandsList, List: list}, nil
	default:
		return service.Commands{}, fmt.Errorf("unknown commands mode %q", cc.Mode)
	}
}
