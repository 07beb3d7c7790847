package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Expected default level to be Info, got %s", cfg.Level)
	}
	if cfg.Pretty {
		t.Error("Expected default pretty to be false")
	}
	if cfg.Service != "asset-proxy" {
		t.Errorf("Expected default service asset-proxy, got %q", cfg.Service)
	}
}

func TestSetup(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		emit    zerolog.Level
		want    []string
		notWant []string
	}{
		{
			name:   "service_tagged",
			config: Config{Level: LevelInfo, Service: "asset-proxy"},
			emit:   zerolog.InfoLevel,
			want:   []string{`"service":"asset-proxy"`, `"message":"Variant resolved"`},
		},
		{
			name:    "no_service",
			config:  Config{Level: LevelInfo},
			emit:    zerolog.InfoLevel,
			want:    []string{`"message":"Variant resolved"`},
			notWant: []string{`"service"`},
		},
		{
			name:   "debug_level",
			config: Config{Level: LevelDebug, Service: "warmer"},
			emit:   zerolog.DebugLevel,
			want:   []string{`"service":"warmer"`, `"level":"debug"`},
		},
		{
			name:    "warn_drops_info",
			config:  Config{Level: LevelWarn, Service: "asset-proxy"},
			emit:    zerolog.InfoLevel,
			notWant: []string{"Variant resolved"},
		},
		{
			name:    "disabled_drops_error",
			config:  Config{Level: LevelDisabled, Service: "asset-proxy"},
			emit:    zerolog.ErrorLevel,
			notWant: []string{"Variant resolved", "asset-proxy"},
		},
		{
			name:    "off_alias",
			config:  Config{Level: "off"},
			emit:    zerolog.ErrorLevel,
			notWant: []string{"Variant resolved"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

			buf := &bytes.Buffer{}
			tt.config.Output = buf
			logger := Setup(tt.config)

			logger.WithLevel(tt.emit).Str("asset", "products/shoe.png").Msg("Variant resolved")

			output := buf.String()
			for _, s := range tt.want {
				if !strings.Contains(output, s) {
					t.Errorf("Expected output to contain %q, got %q", s, output)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(output, s) {
					t.Errorf("Expected output without %q, got %q", s, output)
				}
			}
			if len(tt.want) == 0 && buf.Len() != 0 {
				t.Errorf("Expected no output, got %q", output)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{"WARNING", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{LevelDisabled, zerolog.Disabled},
		{"off", zerolog.Disabled},
		{"invalid", zerolog.InfoLevel}, // Should default to Info
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			result := parseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{
		Level:   LevelInfo,
		Service: "asset-proxy",
		Output:  buf,
	})

	logger := NewLogger("pipeline")
	logger.Info().Msg("derived")

	output := buf.String()
	if !strings.Contains(output, `"component":"pipeline"`) {
		t.Errorf("Expected component field, got %q", output)
	}
	if !strings.Contains(output, `"service":"asset-proxy"`) {
		t.Errorf("Expected component logger to inherit service field, got %q", output)
	}
}

func TestNewLogger_Disabled(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelDisabled, Service: "asset-proxy", Output: buf})
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger := NewLogger("cache")
	logger.Warn().Msg("cache get failed")
	logger.Error().Msg("transform failed")

	if buf.Len() != 0 {
		t.Errorf("Expected no output, got %q", buf.String())
	}
}

func TestValidLevel(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  bool
	}{
		{LevelDebug, true},
		{"WARNING", true},
		{"", true},
		{"off", true},
		{"verbose", false},
	}

	for _, tt := range tests {
		if got := ValidLevel(tt.level); got != tt.want {
			t.Errorf("ValidLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
