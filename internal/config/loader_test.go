package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDurationString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{name: "empty", input: "", expected: 0},
		{name: "seconds", input: "30s", expected: 30 * time.Second},
		{name: "minutes", input: "2m", expected: 2 * time.Minute},
		{name: "compound", input: "1h30m", expected: 90 * time.Minute},
		{name: "milliseconds", input: "500ms", expected: 500 * time.Millisecond},
		{name: "integer seconds", input: "45", expected: 45 * time.Second},
		{name: "invalid", input: "soon", wantErr: true},
		{name: "trailing garbage", input: "10x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDurationString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDurationString() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.expected {
				t.Errorf("ParseDurationString() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseConfig_YAML(t *testing.T) {
	yamlConfig := `
name: Nightly workbook soak
host: https://excel.example.com
users: 50
spawnRate: 5
runTime: 10m
waitTime:
  min: 500ms
  max: 2s
seed: 99
credentials:
  username: loadbot
  password: s3cret
behavior:
  worksheet: Data
  adoptCreatedWorkbook: true
tasks:
  edit_cell: 10
  create_chart: 0
headers:
  X-Tenant: perf
logging:
  level: debug
  format: json
prometheus:
  listen: ":9646"
`
	config, err := ParseConfig([]byte(yamlConfig), "soak.yaml")
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}

	if config.Name != "Nightly workbook soak" {
		t.Errorf("Name = %v, want %v", config.Name, "Nightly workbook soak")
	}
	if config.Host != "https://excel.example.com" {
		t.Errorf("Host = %v", config.Host)
	}
	if config.Users != 50 || config.SpawnRate != 5 {
		t.Errorf("Users/SpawnRate = %v/%v, want 50/5", config.Users, config.SpawnRate)
	}
	if config.RunTime.Duration() != 10*time.Minute {
		t.Errorf("RunTime = %v, want 10m", config.RunTime)
	}
	if config.WaitTime.Min.Duration() != 500*time.Millisecond || config.WaitTime.Max.Duration() != 2*time.Second {
		t.Errorf("WaitTime = %v..%v", config.WaitTime.Min, config.WaitTime.Max)
	}
	if config.Seed != 99 {
		t.Errorf("Seed = %v, want 99", config.Seed)
	}
	if config.Credentials.Username != "loadbot" || config.Credentials.Password != "s3cret" {
		t.Errorf("Credentials = %+v", config.Credentials)
	}
	if config.Behavior.Worksheet != "Data" || !config.Behavior.AdoptCreatedWorkbook {
		t.Errorf("Behavior = %+v", config.Behavior)
	}
	if config.Headers["X-Tenant"] != "perf" {
		t.Errorf("Headers = %v", config.Headers)
	}
	if config.Logging.Level != "debug" || config.Logging.Format != "json" {
		t.Errorf("Logging = %+v", config.Logging)
	}
	if config.Prometheus.Listen != ":9646" {
		t.Errorf("Prometheus.Listen = %v", config.Prometheus.Listen)
	}

	// Unset fields keep their defaults.
	if config.Behavior.InitialWorkbook != "TestWorkbook" {
		t.Errorf("InitialWorkbook = %v, want TestWorkbook", config.Behavior.InitialWorkbook)
	}
	if !config.Behavior.CheckResponses {
		t.Error("CheckResponses should default to true")
	}
	if config.StopTimeout.Duration() != 10*time.Second {
		t.Errorf("StopTimeout = %v, want 10s", config.StopTimeout)
	}
	if config.Prometheus.Path != "/metrics" {
		t.Errorf("Prometheus.Path = %v, want /metrics", config.Prometheus.Path)
	}

	weights := config.Weights()
	if weights["edit_cell"] != 10 || weights["create_chart"] != 0 || weights["open_workbook"] != 3 {
		t.Errorf("Weights() = %v", weights)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestParseConfig_JSON(t *testing.T) {
	jsonConfig := `{
		"host": "http://127.0.0.1:3000",
		"users": 3,
		"spawnRate": 1.5,
		"runTime": "30",
		"waitTime": {"min": "1s", "max": "1s"}
	}`

	config, err := ParseConfig([]byte(jsonConfig), "test.json")
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}

	if config.Users != 3 || config.SpawnRate != 1.5 {
		t.Errorf("Users/SpawnRate = %v/%v", config.Users, config.SpawnRate)
	}
	if config.RunTime.Duration() != 30*time.Second {
		t.Errorf("RunTime = %v, want 30s", config.RunTime)
	}

	hc := config.HarnessConfig()
	if hc.Wait.Min != time.Second || hc.Wait.Max != time.Second {
		t.Errorf("HarnessConfig().Wait = %+v", hc.Wait)
	}
}

func TestParseConfig_Empty(t *testing.T) {
	for _, data := range []string{"", "  \n", "# only a comment\n"} {
		config, err := ParseConfig([]byte(data), "empty.yaml")
		if err != nil {
			t.Fatalf("ParseConfig(%q) error = %v", data, err)
		}
		if config.Users != Default().Users {
			t.Errorf("Users = %v, want default %v", config.Users, Default().Users)
		}
	}
}

func TestParseConfig_SchemaErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{name: "unknown key", input: "usres: 10\n", field: ""},
		{name: "wrong type", input: "users: many\n", field: "users"},
		{name: "nested unknown key", input: "waitTime:\n  avg: 1s\n", field: "waitTime"},
		{name: "bad duration", input: "runTime: forever\n", field: "runTime"},
		{name: "bad log format", input: "logging:\n  format: xml\n", field: "logging.format"},
		{name: "non-integer weight", input: "tasks:\n  edit_cell: high\n", field: "tasks.edit_cell"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.input), "bad.yaml")
			if err == nil {
				t.Fatal("ParseConfig() expected error")
			}

			var errs *ValidationErrors
			if !errors.As(err, &errs) {
				t.Fatalf("error type = %T, want *ValidationErrors", err)
			}

			found := false
			for _, e := range errs.Errors {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("no error on field %q in %v", tt.field, err)
			}
		})
	}
}

func TestParseConfig_InvalidYAML(t *testing.T) {
	_, err := ParseConfig([]byte("users: [1, 2"), "broken.yaml")
	if err == nil || !strings.Contains(err.Error(), "failed to parse YAML config") {
		t.Errorf("ParseConfig() error = %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "sheetload.yaml")
	if err := os.WriteFile(configPath, []byte("users: 4\nspawnRate: 4\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if config.Users != 4 {
		t.Errorf("Users = %v, want 4", config.Users)
	}
}

func TestLoadConfig_NotFound(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Error("LoadConfig() expected error for missing file")
	}
}
