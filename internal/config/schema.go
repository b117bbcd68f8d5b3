// Package config loads and validates sheetload test configurations.
//
// A configuration describes the target service, the user load and the task
// mix of the simulated users. Files are YAML (or JSON by extension); every
// field is optional and falls back to Default.
package config

import (
	"time"

	"github.com/wesleyorama2/sheetload/internal/harness"
	"github.com/wesleyorama2/sheetload/internal/metrics"
	"github.com/wesleyorama2/sheetload/internal/scenario"
	"github.com/wesleyorama2/sheetload/internal/workbook"
)

// TestConfig is the root of a configuration file.
type TestConfig struct {
	// Name is shown in the console header.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Host is the base URL of the workbook service.
	Host string `json:"host" yaml:"host"`

	// Users is the number of simulated users.
	Users int `json:"users" yaml:"users"`

	// SpawnRate is how many users start per second.
	SpawnRate float64 `json:"spawnRate" yaml:"spawnRate"`

	// RunTime bounds the test. Zero runs until interrupted.
	RunTime Duration `json:"runTime,omitempty" yaml:"runTime,omitempty"`

	// StopTimeout is how long running tasks may finish after the run ends.
	StopTimeout Duration `json:"stopTimeout,omitempty" yaml:"stopTimeout,omitempty"`

	WaitTime WaitTimeConfig `json:"waitTime" yaml:"waitTime"`

	// Timeout is the per-request timeout.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Seed makes the generated traffic reproducible. Zero is random.
	Seed uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	Credentials CredentialsConfig `json:"credentials" yaml:"credentials"`
	Behavior    BehaviorConfig    `json:"behavior" yaml:"behavior"`

	// Tasks override the default task weights by task name.
	Tasks map[string]int `json:"tasks,omitempty" yaml:"tasks,omitempty"`

	// Headers are sent on every request.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Prometheus PrometheusConfig `json:"prometheus" yaml:"prometheus"`
}

// WaitTimeConfig is the think time range between two tasks.
type WaitTimeConfig struct {
	Min Duration `json:"min" yaml:"min"`
	Max Duration `json:"max" yaml:"max"`
}

// CredentialsConfig is the login of every simulated user.
type CredentialsConfig struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

// BehaviorConfig tunes what the simulated users do.
type BehaviorConfig struct {
	Worksheet            string `json:"worksheet" yaml:"worksheet"`
	InitialWorkbook      string `json:"initialWorkbook" yaml:"initialWorkbook"`
	AdoptCreatedWorkbook bool   `json:"adoptCreatedWorkbook" yaml:"adoptCreatedWorkbook"`
	CheckResponses       bool   `json:"checkResponses" yaml:"checkResponses"`
}

// LoggingConfig selects the log level and format. An empty level is info,
// or warn while the live view redraws the terminal the logs are written to.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// PrometheusConfig enables the scrape endpoint when Listen is set.
type PrometheusConfig struct {
	Listen string `json:"listen,omitempty" yaml:"listen,omitempty"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Default returns the stock configuration: ten users against localhost
// with the original task mix.
func Default() *TestConfig {
	opts := scenario.DefaultOptions()
	return &TestConfig{
		Name:        "Excel API load test",
		Host:        "http://localhost:8080",
		Users:       10,
		SpawnRate:   2,
		RunTime:     Duration(time.Minute),
		StopTimeout: Duration(10 * time.Second),
		WaitTime: WaitTimeConfig{
			Min: Duration(time.Second),
			Max: Duration(5 * time.Second),
		},
		Timeout: Duration(30 * time.Second),
		Credentials: CredentialsConfig{
			Username: opts.Credentials.Username,
			Password: opts.Credentials.Password,
		},
		Behavior: BehaviorConfig{
			Worksheet:       opts.Worksheet,
			InitialWorkbook: opts.InitialWorkbook,
			CheckResponses:  true,
		},
		Logging: LoggingConfig{
			Format: "console",
		},
		Prometheus: PrometheusConfig{
			Path: "/metrics",
		},
	}
}

// HarnessConfig returns the runner settings.
func (c *TestConfig) HarnessConfig() harness.Config {
	return harness.Config{
		Users:       c.Users,
		SpawnRate:   c.SpawnRate,
		RunTime:     c.RunTime.Duration(),
		StopTimeout: c.StopTimeout.Duration(),
		Wait: harness.WaitTime{
			Min: c.WaitTime.Min.Duration(),
			Max: c.WaitTime.Max.Duration(),
		},
		Seed: c.Seed,
	}
}

// ScenarioOptions returns the simulated user settings.
func (c *TestConfig) ScenarioOptions() scenario.Options {
	return scenario.Options{
		Credentials: workbook.Credentials{
			Username: c.Credentials.Username,
			Password: c.Credentials.Password,
		},
		Worksheet:            c.Behavior.Worksheet,
		InitialWorkbook:      c.Behavior.InitialWorkbook,
		AdoptCreatedWorkbook: c.Behavior.AdoptCreatedWorkbook,
		Weights:              c.Tasks,
	}
}

// PrometheusExporterConfig returns the exporter settings.
func (c *TestConfig) PrometheusExporterConfig() metrics.PrometheusConfig {
	return metrics.PrometheusConfig{
		Listen: c.Prometheus.Listen,
		Path:   c.Prometheus.Path,
	}
}

// Weights returns the effective task weights: defaults merged with Tasks.
func (c *TestConfig) Weights() map[string]int {
	weights := scenario.DefaultWeights()
	for name, w := range c.Tasks {
		weights[name] = w
	}
	return weights
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// Duration returns d as a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return d.set(s)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.set(s)
}

func (d *Duration) set(s string) error {
	if s == "" || s == "null" {
		*d = 0
		return nil
	}
	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
