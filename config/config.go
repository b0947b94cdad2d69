package config

import (
	"os"
	"path/filepath"

	"github.com/dkozel/graphchat/errors"
	"gopkg.in/yaml.v3"
)

type FilesystemAccess struct {
	Hidden   []string `yaml:"hidden"`
	ReadOnly []string `yaml:"read_only"`
}

type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type Toolset struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

// StyleSpec overrides the presentation of one named style role.
type StyleSpec struct {
	Color  string `yaml:"color"`
	Bold   bool   `yaml:"bold"`
	Italic bool   `yaml:"italic"`
}

type Config struct {
	Engine               string               `yaml:"engine"`
	Model                string               `yaml:"model"`
	LogFile              string               `yaml:"log_file"`
	Toolsets             []Toolset            `yaml:"toolsets"`
	AdditionalMCPServers []MCPServer          `yaml:"additional_mcp_servers"`
	AllowedCommands      []string             `yaml:"allowed_commands"`
	FilesystemAccess     FilesystemAccess     `yaml:"filesystem_access"`
	Styles               map[string]StyleSpec `yaml:"styles"`
}

// Load reads configuration from the user's home directory and the current
// working directory, with the latter taking precedence.
func Load() (*Config, error) {
	cfg := &Config{}

	// The .graphchat directory is never exposed to tools.
	cfg.FilesystemAccess.Hidden = append(cfg.FilesystemAccess.Hidden, ".graphchat", ".graphchat/**")

	home, err := os.UserHomeDir()
	if err == nil {
		userPath := filepath.Join(home, ".graphchat", "config.yaml")
		if _, err := os.Stat(userPath); err == nil {
			if err := loadFromFile(userPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectPath := filepath.Join(wd, ".graphchat", "config.yaml")
	if _, err := os.Stat(projectPath); err == nil {
		if err := loadFromFile(projectPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites fields present in the YAML, so project-level
	// config replaces user-level values field by field.
	return yaml.Unmarshal(data, cfg)
}

// GetToolset finds a toolset by name. Returns the "default" toolset if the
// named one is not found or if an empty name is provided.
func (c *Config) GetToolset(name string) (*Toolset, error) {
	if name == "" {
		name = "default"
	}
	for i := range c.Toolsets {
		if c.Toolsets[i].Name == name {
			return &c.Toolsets[i], nil
		}
	}
	if name == "default" {
		return nil, errors.New("mandatory 'default' toolset not found in configuration")
	}
	return c.GetToolset("default")
}
