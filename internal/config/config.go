package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/litterbox-sh/litterbox/internal/errors"
	"github.com/litterbox-sh/litterbox/internal/name"
)

const (
	// ProjectConfigFile is the checked-in configuration file.
	ProjectConfigFile = ".litterbox.toml"

	// LocalConfigFile overlays ProjectConfigFile and is expected to be
	// gitignored.
	LocalConfigFile = ".litterbox.local.toml"
)

// Config is the merged litterbox configuration for a repository.
type Config struct {
	Project ProjectConfig   `toml:"project"`
	Docker  DockerConfig    `toml:"docker"`
	Ports   []ForwardedPort `toml:"ports"`
}

// ProjectConfig carries project-level overrides.
type ProjectConfig struct {
	// Slug overrides the repository-basename slug used in container names.
	Slug string `toml:"slug"`
}

// DockerConfig describes the sandbox container.
type DockerConfig struct {
	Image        string `toml:"image"`
	SetupCommand string `toml:"setup-command"`
}

// ForwardedPort declares a service port forwarded from the container to a
// dynamically allocated host port.
type ForwardedPort struct {
	Name   string `toml:"name"`
	Target int    `toml:"target"`
}

// LoadFile parses a single TOML configuration file. Unknown keys are
// tolerated so older binaries keep working against newer config files.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("file not found: %s", path), err)
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("parse error in %s", path), err)
	}

	return &cfg, nil
}

// Merge overlays local onto base; set values in local win. Ports replace
// wholesale rather than appending, so a local file can redefine the
// forwarded set.
func Merge(base, local *Config) *Config {
	merged := *base

	if local.Project.Slug != "" {
		merged.Project.Slug = local.Project.Slug
	}
	if local.Docker.Image != "" {
		merged.Docker.Image = local.Docker.Image
	}
	if local.Docker.SetupCommand != "" {
		merged.Docker.SetupCommand = local.Docker.SetupCommand
	}
	if len(local.Ports) > 0 {
		merged.Ports = local.Ports
	}

	return &merged
}

// defaultConfig derives defaults from dir: the project slug falls back to
// the slugified basename of dir as given, which is empty for ".".
func defaultConfig(dir string) *Config {
	return &Config{
		Project: ProjectConfig{
			Slug: name.Slugify(filepath.Base(dir)),
		},
	}
}

// Load reads and merges the configuration for the repository rooted at
// dir: defaults <- .litterbox.toml <- .litterbox.local.toml. The project
// file is required; the local overlay is optional.
func Load(dir string) (*Config, error) {
	merged := defaultConfig(dir)

	base, err := LoadFile(filepath.Join(dir, ProjectConfigFile))
	if err != nil {
		return nil, err
	}
	merged = Merge(merged, base)

	localPath := filepath.Join(dir, LocalConfigFile)
	if _, statErr := os.Stat(localPath); statErr == nil {
		local, err := LoadFile(localPath)
		if err != nil {
			return nil, err
		}
		merged = Merge(merged, local)
	}

	if err := merged.Validate(); err != nil {
		return nil, err
	}

	return merged, nil
}

// Validate checks required keys and the forwarded-port declarations.
func (c *Config) Validate() error {
	if c.Docker.Image == "" {
		return errors.ConfigError("missing required key: docker.image", nil)
	}
	if c.Docker.SetupCommand == "" {
		return errors.ConfigError("missing required key: docker.setup-command", nil)
	}

	seen := make(map[string]bool, len(c.Ports))
	for _, port := range c.Ports {
		if port.Target <= 0 || port.Target > 65535 {
			return errors.ConfigError(fmt.Sprintf("invalid forwarded port target: %d", port.Target), nil)
		}
		slug, err := name.SlugifyName(port.Name)
		if err != nil {
			return errors.ConfigError(fmt.Sprintf("invalid forwarded port name %q", port.Name), err)
		}
		if seen[slug] {
			return errors.ConfigError(fmt.Sprintf("duplicate forwarded port name after slugify: %q", slug), nil)
		}
		seen[slug] = true
	}

	return nil
}
