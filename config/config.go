// Package config loads and validates the application configuration from
// YAML. Environment references of the form ${VAR} are expanded before
// parsing so secrets stay out of the file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oneshot2001/axion/errors"
)

// Duration decodes YAML duration strings such as "200ms" or "5s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"200ms\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the complete application configuration.
type Config struct {
	Camera    CameraConfig              `yaml:"camera"`
	Pipeline  PipelineConfig            `yaml:"pipeline"`
	Source    SourceConfig              `yaml:"source"`
	Inference InferenceConfig           `yaml:"inference"`
	NATS      NATSConfig                `yaml:"nats"`
	HTTP      HTTPConfig                `yaml:"http"`
	Logging   LoggingConfig             `yaml:"logging"`
	Modules   map[string]map[string]any `yaml:"modules"`
}

// CameraConfig identifies this pipeline instance among the sharers of
// one accelerator.
type CameraConfig struct {
	ID    string `yaml:"id"`
	Index int    `yaml:"index"`
}

// PipelineConfig controls the tick loop.
type PipelineConfig struct {
	TargetFPS    int           `yaml:"target_fps"`
	SlotDuration Duration      `yaml:"slot_duration"`
	CycleLength  Duration      `yaml:"cycle_length"`
	StopTimeout  Duration      `yaml:"stop_timeout"`
}

// SourceConfig selects and sizes the frame source.
type SourceConfig struct {
	Type      string `yaml:"type"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	MaxFrames int64  `yaml:"max_frames"`
}

// InferenceConfig describes the loaded model.
type InferenceConfig struct {
	InputWidth  int     `yaml:"input_width"`
	InputHeight int     `yaml:"input_height"`
	NumClasses  int     `yaml:"num_classes"`
	Threshold   float64 `yaml:"threshold"`
}

// NATSConfig controls the broker connection and subject layout.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	Name          string        `yaml:"name"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait Duration      `yaml:"reconnect_wait"`
	Timeout       Duration      `yaml:"timeout"`
}

// HTTPConfig controls the local status and metrics endpoint.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads, expands, parses and validates the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapFatal(errors.ErrConfigNotFound, "Config", "Load", "config file read")
		}
		return nil, errors.WrapFatal(err, "Config", "Load", "config file read")
	}
	return Parse(data)
}

// Parse parses configuration bytes, applying env expansion, defaults and
// validation.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, errors.WrapFatal(err, "Config", "Parse", "yaml decode")
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Camera.ID == "" {
		c.Camera.ID = "camera0"
	}
	if c.Pipeline.TargetFPS == 0 {
		c.Pipeline.TargetFPS = 10
	}
	if c.Pipeline.SlotDuration == 0 {
		c.Pipeline.SlotDuration = Duration(200 * time.Millisecond)
	}
	if c.Pipeline.CycleLength == 0 {
		c.Pipeline.CycleLength = Duration(1000 * time.Millisecond)
	}
	if c.Pipeline.StopTimeout == 0 {
		c.Pipeline.StopTimeout = Duration(5 * time.Second)
	}
	if c.Source.Type == "" {
		c.Source.Type = "sim"
	}
	if c.Source.Width == 0 {
		c.Source.Width = 640
	}
	if c.Source.Height == 0 {
		c.Source.Height = 640
	}
	if c.Inference.InputWidth == 0 {
		c.Inference.InputWidth = 640
	}
	if c.Inference.InputHeight == 0 {
		c.Inference.InputHeight = 640
	}
	if c.Inference.NumClasses == 0 {
		c.Inference.NumClasses = 80
	}
	if c.Inference.Threshold == 0 {
		c.Inference.Threshold = 0.25
	}
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.NATS.Name == "" {
		c.NATS.Name = c.Camera.ID
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "axion"
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = -1
	}
	if c.NATS.ReconnectWait == 0 {
		c.NATS.ReconnectWait = Duration(2 * time.Second)
	}
	if c.NATS.Timeout == 0 {
		c.NATS.Timeout = Duration(5 * time.Second)
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":8080"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Modules == nil {
		c.Modules = make(map[string]map[string]any)
	}
}

// Validate checks cross-field consistency. Defaults must be applied
// first.
func (c *Config) Validate() error {
	var problems []string

	if c.Camera.Index < 0 {
		problems = append(problems, "camera.index must be >= 0")
	}
	if maxSharers := int(c.Pipeline.CycleLength / c.Pipeline.SlotDuration); c.Camera.Index >= maxSharers {
		problems = append(problems,
			fmt.Sprintf("camera.index %d exceeds the %d slots in the cycle", c.Camera.Index, maxSharers))
	}
	if c.Pipeline.TargetFPS < 1 || c.Pipeline.TargetFPS > 60 {
		problems = append(problems, "pipeline.target_fps must be in 1..60")
	}
	if c.Pipeline.CycleLength%c.Pipeline.SlotDuration != 0 {
		problems = append(problems, "pipeline.cycle_length must be a multiple of pipeline.slot_duration")
	}
	if c.Source.Type != "sim" {
		problems = append(problems, fmt.Sprintf("source.type %q is not supported", c.Source.Type))
	}
	if c.Inference.Threshold < 0 || c.Inference.Threshold > 1 {
		problems = append(problems, "inference.threshold must be in [0,1]")
	}

	if len(problems) > 0 {
		return errors.WrapFatal(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
			"Config", "Validate", "configuration validation")
	}
	return nil
}

// ModuleConfig returns the settings block for a module, or an empty map
// when the module has no block.
func (c *Config) ModuleConfig(name string) map[string]any {
	if block, ok := c.Modules[name]; ok && block != nil {
		return block
	}
	return map[string]any{}
}

// EnabledModules returns the names of modules that are present in the
// configuration and not explicitly disabled, in no particular order.
func (c *Config) EnabledModules() []string {
	names := make([]string, 0, len(c.Modules))
	for name, block := range c.Modules {
		if v, ok := block["enabled"].(bool); ok && !v {
			continue
		}
		names = append(names, name)
	}
	return names
}
