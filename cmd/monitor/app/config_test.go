package app

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/fsm-monitor/internal/export"
	"github.com/roman-kulish/fsm-monitor/internal/fsm"
	"github.com/roman-kulish/fsm-monitor/internal/link"
	"github.com/roman-kulish/fsm-monitor/internal/render"
)

const replayConfig = `
transport:
  type: replay
  file: session.hex
`

func TestParseConfig_Defaults(t *testing.T) {
	config, err := ParseConfig([]byte(replayConfig))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	if config.Settings.LogLevel != slog.LevelInfo {
		t.Errorf("Expected log level info, got %s", config.Settings.LogLevel)
	}
	if config.Settings.LogFile != defaultLogFile {
		t.Errorf("Expected log file %s, got %s", defaultLogFile, config.Settings.LogFile)
	}
	if config.Device.Characteristic != link.DefaultCharacteristic {
		t.Errorf("Expected default characteristic, got %s", config.Device.Characteristic)
	}
	if config.Frame.Channels != fsm.Channels21 || config.Frame.Divisor != fsm.DefaultDivisor {
		t.Errorf("Expected 21 channels and divisor %g, got %d and %g", fsm.DefaultDivisor, config.Frame.Channels, config.Frame.Divisor)
	}
	if time.Duration(config.Consumer.TickPeriod) != 100*time.Millisecond {
		t.Errorf("Expected tick period 100ms, got %s", time.Duration(config.Consumer.TickPeriod))
	}
	if time.Duration(config.Transport.Interval) != link.DefaultReplayInterval {
		t.Errorf("Expected replay interval %s, got %s", link.DefaultReplayInterval, time.Duration(config.Transport.Interval))
	}
	if config.Storage.DataDirectory != "data" || config.Storage.MaxBatchSize != 100 {
		t.Errorf("Unexpected storage defaults: %+v", config.Storage)
	}
	if config.Export.Format != export.FormatXLSX || config.Export.RemoveJournal {
		t.Errorf("Unexpected export defaults: %+v", config.Export)
	}
	if config.Render.PlotStyle != render.ScaleLinear || !config.Render.Dashboard {
		t.Errorf("Unexpected render defaults: %+v", config.Render)
	}
}

func TestParseConfig(t *testing.T) {
	data := `
settings:
  logLevel: debug
  logFile: /tmp/fsm.log
device:
  address: "E4:5F:01:AA:BB:CC"
frame:
  channels: 28
  divisor: 1000000
consumer:
  tickPeriod: 250ms
transport:
  type: websocket
  url: ws://localhost:8080/ble
storage:
  maxBatchSize: 500
export:
  directory: exports
  format: CSV
  removeJournal: true
render:
  plotStyle: log
  snapshot: live.png
  dashboard: false
`

	config, err := ParseConfig([]byte(data))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	if config.Settings.LogLevel != slog.LevelDebug {
		t.Errorf("Expected log level debug, got %s", config.Settings.LogLevel)
	}
	if config.Frame.Channels != fsm.Channels28 || config.Frame.Divisor != 1e6 {
		t.Errorf("Unexpected frame config: %+v", config.Frame)
	}
	if time.Duration(config.Consumer.TickPeriod) != 250*time.Millisecond {
		t.Errorf("Expected tick period 250ms, got %s", time.Duration(config.Consumer.TickPeriod))
	}
	if config.Transport.Type != TransportWebsocket || config.Transport.URL != "ws://localhost:8080/ble" {
		t.Errorf("Unexpected transport config: %+v", config.Transport)
	}
	if config.Storage.MaxBatchSize != 500 {
		t.Errorf("Expected max batch size 500, got %d", config.Storage.MaxBatchSize)
	}
	if config.Export.Format != export.FormatCSV || !config.Export.RemoveJournal {
		t.Errorf("Unexpected export config: %+v", config.Export)
	}
	if config.Render.PlotStyle != render.ScaleLog || config.Render.Snapshot != "live.png" || config.Render.Dashboard {
		t.Errorf("Unexpected render config: %+v", config.Render)
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		expected string
	}{
		{
			name:     "channels",
			data:     replayConfig + "frame:\n  channels: 24\n",
			expected: "channels must be 21 or 28",
		},
		{
			name:     "divisor",
			data:     replayConfig + "frame:\n  divisor: 0\n",
			expected: "divisor must be positive",
		},
		{
			name:     "wavelengths",
			data:     replayConfig + "frame:\n  wavelengths: [\"784 nm\"]\n",
			expected: "wavelength labels",
		},
		{
			name:     "tick period",
			data:     replayConfig + "consumer:\n  tickPeriod: 0s\n",
			expected: "tick period must be positive",
		},
		{
			name:     "duration",
			data:     replayConfig + "consumer:\n  tickPeriod: soon\n",
			expected: "invalid duration",
		},
		{
			name:     "websocket url",
			data:     "device:\n  address: AA\n",
			expected: "url is required",
		},
		{
			name:     "websocket address",
			data:     "transport:\n  url: ws://localhost\n",
			expected: "device address is required",
		},
		{
			name:     "exec command",
			data:     "transport:\n  type: exec\n",
			expected: "command is required",
		},
		{
			name:     "transport type",
			data:     "transport:\n  type: serial\n",
			expected: "unknown transport type",
		},
		{
			name:     "max batch size",
			data:     replayConfig + "storage:\n  maxBatchSize: 5000\n",
			expected: "max batch size must not exceed 4680",
		},
		{
			name:     "export format",
			data:     replayConfig + "export:\n  format: json\n",
			expected: "unsupported export format",
		},
		{
			name:     "plot style",
			data:     replayConfig + "render:\n  plotStyle: cubic\n",
			expected: "unsupported plot style",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.data))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.expected) {
				t.Errorf("Expected error containing %q, got %v", tt.expected, err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.yaml")
	if err := os.WriteFile(path, []byte(replayConfig), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.Transport.File != "session.hex" {
		t.Errorf("Expected replay file session.hex, got %s", config.Transport.File)
	}

	if _, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestDuration_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(ConsumerConfig{TickPeriod: Duration(150 * time.Millisecond)})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"tickPeriod":"150ms"}` {
		t.Errorf("Expected {\"tickPeriod\":\"150ms\"}, got %s", data)
	}
}
