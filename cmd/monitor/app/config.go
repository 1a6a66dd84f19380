package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/fsm-monitor/internal/export"
	"github.com/roman-kulish/fsm-monitor/internal/fsm"
	"github.com/roman-kulish/fsm-monitor/internal/link"
	"github.com/roman-kulish/fsm-monitor/internal/render"
	"github.com/roman-kulish/fsm-monitor/internal/session"
	"github.com/roman-kulish/fsm-monitor/internal/storage"
)

const (
	TransportWebsocket TransportType = "websocket"
	TransportExec      TransportType = "exec"
	TransportReplay    TransportType = "replay"
)

const (
	defaultLogFile       = "monitor.log"
	defaultDataDirectory = "data"
	defaultDivisor       = fsm.DefaultDivisor
)

type TransportType string

// Duration is a time.Duration read from "100ms" style strings.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration '%s': %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config represents the main application configuration
type Config struct {
	Settings  Settings        `yaml:"settings" json:"settings"`
	Device    DeviceConfig    `yaml:"device" json:"device"`
	Frame     FrameConfig     `yaml:"frame" json:"frame"`
	Consumer  ConsumerConfig  `yaml:"consumer" json:"consumer"`
	Transport TransportConfig `yaml:"transport" json:"transport"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Export    ExportConfig    `yaml:"export" json:"export"`
	Render    RenderConfig    `yaml:"render" json:"render"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel slog.Level `yaml:"logLevel" json:"logLevel"`
	LogFile  string     `yaml:"logFile" json:"logFile"`
}

// DeviceConfig identifies the monitored device
type DeviceConfig struct {
	Address        string `yaml:"address" json:"address,omitempty"`
	Characteristic string `yaml:"characteristic" json:"characteristic"`
}

// FrameConfig describes the notification frames of the device
type FrameConfig struct {
	Channels    int      `yaml:"channels" json:"channels"`
	Divisor     float64  `yaml:"divisor" json:"divisor"`
	Wavelengths []string `yaml:"wavelengths" json:"wavelengths,omitempty"`
}

// ConsumerConfig represents consumer loop settings
type ConsumerConfig struct {
	TickPeriod Duration `yaml:"tickPeriod" json:"tickPeriod"`
}

// TransportConfig selects where frames come from
type TransportConfig struct {
	Type     TransportType `yaml:"type" json:"type"`
	URL      string        `yaml:"url" json:"url,omitempty"`
	Command  string        `yaml:"command" json:"command,omitempty"`
	Args     []string      `yaml:"args" json:"args,omitempty"`
	File     string        `yaml:"file" json:"file,omitempty"`
	Interval Duration      `yaml:"interval" json:"interval"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory" json:"dataDirectory"`
	MaxBatchSize  int    `yaml:"maxBatchSize" json:"maxBatchSize"`
}

// ExportConfig represents export settings
type ExportConfig struct {
	Directory     string        `yaml:"directory" json:"directory"`
	Format        export.Format `yaml:"format" json:"format"`
	RemoveJournal bool          `yaml:"removeJournal" json:"removeJournal"`
}

// RenderConfig represents the live view settings
type RenderConfig struct {
	PlotStyle  render.Scale      `yaml:"plotStyle" json:"plotStyle"`
	ColorTheme render.ColorTheme `yaml:"colorTheme" json:"colorTheme"`
	Snapshot   string            `yaml:"snapshot" json:"snapshot,omitempty"`
	Dashboard  bool              `yaml:"dashboard" json:"dashboard"`
}

// NewConfig returns the configuration with every default applied.
func NewConfig() *Config {
	return &Config{
		Settings: Settings{
			LogLevel: slog.LevelInfo,
			LogFile:  defaultLogFile,
		},
		Device: DeviceConfig{
			Characteristic: link.DefaultCharacteristic,
		},
		Frame: FrameConfig{
			Channels: fsm.Channels21,
			Divisor:  defaultDivisor,
		},
		Consumer: ConsumerConfig{
			TickPeriod: Duration(session.DefaultTickPeriod),
		},
		Transport: TransportConfig{
			Type:     TransportWebsocket,
			Interval: Duration(link.DefaultReplayInterval),
		},
		Storage: StorageConfig{
			DataDirectory: defaultDataDirectory,
			MaxBatchSize:  storage.DefaultMaxBatchSize,
		},
		Export: ExportConfig{
			Directory: ".",
			Format:    export.FormatXLSX,
		},
		Render: RenderConfig{
			PlotStyle:  render.ScaleLinear,
			ColorTheme: render.ClassicTheme,
			Dashboard:  true,
		},
	}
}

// LoadConfig reads the configuration file at path over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML configuration over the defaults and validates it.
func ParseConfig(data []byte) (*Config, error) {
	config := NewConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	return errors.Join(
		c.Frame.Validate(),
		c.Consumer.Validate(),
		c.Transport.Validate(c.Device),
		c.Storage.Validate(),
		c.Export.Validate(),
		c.Render.Validate(),
	)
}

func (c *FrameConfig) Validate() error {
	if !fsm.ValidChannels(c.Channels) {
		return fmt.Errorf("app.FrameConfig: channels must be %d or %d, got %d", fsm.Channels21, fsm.Channels28, c.Channels)
	}
	if c.Divisor <= 0 {
		return fmt.Errorf("app.FrameConfig: divisor must be positive, got %g", c.Divisor)
	}
	if len(c.Wavelengths) > 0 {
		if _, err := fsm.NewLayout(c.Channels, c.Wavelengths...); err != nil {
			return fmt.Errorf("app.FrameConfig: %w", err)
		}
	}
	return nil
}

func (c *ConsumerConfig) Validate() error {
	if c.TickPeriod <= 0 {
		return fmt.Errorf("app.ConsumerConfig: tick period must be positive, got %s", time.Duration(c.TickPeriod))
	}
	return nil
}

func (c *TransportConfig) Validate(device DeviceConfig) error {
	switch c.Type {
	case TransportWebsocket:
		if c.URL == "" {
			return errors.New("app.TransportConfig: url is required for websocket transport")
		}
		if device.Address == "" {
			return errors.New("app.TransportConfig: device address is required for websocket transport")
		}
	case TransportExec:
		if c.Command == "" {
			return errors.New("app.TransportConfig: command is required for exec transport")
		}
	case TransportReplay:
		if c.File == "" {
			return errors.New("app.TransportConfig: file is required for replay transport")
		}
		if c.Interval <= 0 {
			return fmt.Errorf("app.TransportConfig: interval must be positive, got %s", time.Duration(c.Interval))
		}
	default:
		return fmt.Errorf("app.TransportConfig: unknown transport type '%s'", c.Type)
	}
	return nil
}

func (c *StorageConfig) Validate() error {
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("app.StorageConfig: max batch size must be positive, got %d", c.MaxBatchSize)
	}
	if c.MaxBatchSize > storage.MaxBatchSize {
		return fmt.Errorf("app.StorageConfig: max batch size must not exceed %d, got %d", storage.MaxBatchSize, c.MaxBatchSize)
	}
	return nil
}

func (c *ExportConfig) Validate() error {
	format, err := export.ParseFormat(string(c.Format))
	if err != nil {
		return fmt.Errorf("app.ExportConfig: %w", err)
	}
	c.Format = format
	return nil
}

func (c *RenderConfig) Validate() error {
	if _, err := render.ParseScale(string(c.PlotStyle)); err != nil {
		return fmt.Errorf("app.RenderConfig: %w", err)
	}
	if _, err := render.ParseColorTheme(string(c.ColorTheme)); err != nil {
		return fmt.Errorf("app.RenderConfig: %w", err)
	}
	return nil
}
