package app

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/indoor-localization/internal/localization"
	"github.com/roman-kulish/indoor-localization/internal/render"
)

// ConfigError reports a configuration problem
type ConfigError struct {
	msg string
}

func NewConfigError(msg string) *ConfigError {
	return &ConfigError{msg}
}

func (e *ConfigError) Error() string {
	return e.msg
}

// Config represents the main application configuration
type Config struct {
	Settings Settings            `yaml:"settings"`
	Engine   localization.Config `yaml:"engine"`
	Model    ModelConfig         `yaml:"model"`
	Storage  StorageConfig       `yaml:"storage"`
	Render   RenderConfig        `yaml:"render"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// ModelConfig points at the reference model. CSV files take precedence over
// the model stored for the device.
type ModelConfig struct {
	DeviceID     string `yaml:"deviceID"`
	Heatmap      string `yaml:"heatmap"`
	AccessPoints string `yaml:"accessPoints"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DBPath         string `yaml:"dbPath"`
	StoreEstimates bool   `yaml:"storeEstimates"`
}

// RenderConfig represents geometry plot settings
type RenderConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Directory string `yaml:"directory"`

	render.Config `yaml:",inline"`
}

func NewConfig() *Config {
	return &Config{
		Settings: Settings{LogLevel: "info"},
		Engine:   localization.DefaultConfig(),
		Render:   RenderConfig{Directory: "plots", Config: render.Config{Theme: render.ClassicTheme}},
	}
}

// LoadConfig reads a YAML configuration file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c := NewConfig()
	if err = yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	if err = c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if err := c.Engine.Validate(); err != nil {
		errs = append(errs, NewConfigError(err.Error()))
	}
	if c.Model.Heatmap != "" && c.Model.AccessPoints != "" {
		errs = append(errs, NewConfigError("model: heatmap and accessPoints are mutually exclusive"))
	}
	if c.Model.Heatmap == "" && c.Model.AccessPoints == "" && c.Storage.DBPath == "" {
		errs = append(errs, NewConfigError("model: a CSV file or storage.dbPath is required"))
	}
	if c.Storage.StoreEstimates && c.Storage.DBPath == "" {
		errs = append(errs, NewConfigError("storage: storeEstimates requires dbPath"))
	}
	if c.Render.Enabled {
		if c.Render.Directory == "" {
			errs = append(errs, NewConfigError("render: directory is required"))
		}
		if err := c.Render.Theme.Validate(); err != nil {
			errs = append(errs, NewConfigError(err.Error()))
		}
	}

	return errors.Join(errs...)
}
