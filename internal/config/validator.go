package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/wesleyorama2/sheetload/internal/logging"
	"github.com/wesleyorama2/sheetload/internal/scenario"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate checks the configuration semantically.
//
// Returns nil if valid, or a ValidationErrors containing all validation errors.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	validateHost(c.Host, errs)

	if c.Users <= 0 {
		errs.Add("users", "users must be greater than 0")
	}
	if c.SpawnRate <= 0 {
		errs.Add("spawnRate", "spawnRate must be greater than 0")
	}
	if c.RunTime < 0 {
		errs.Add("runTime", "runTime cannot be negative")
	}
	if c.StopTimeout < 0 {
		errs.Add("stopTimeout", "stopTimeout cannot be negative")
	}
	if c.Timeout <= 0 {
		errs.Add("timeout", "timeout must be greater than 0")
	}

	if c.WaitTime.Min < 0 {
		errs.Add("waitTime.min", "min cannot be negative")
	}
	if c.WaitTime.Max < c.WaitTime.Min {
		errs.Add("waitTime.max", fmt.Sprintf("max (%s) cannot be less than min (%s)", c.WaitTime.Max, c.WaitTime.Min))
	}

	if c.Behavior.Worksheet == "" {
		errs.Add("behavior.worksheet", "worksheet is required")
	}
	if c.Behavior.InitialWorkbook == "" {
		errs.Add("behavior.initialWorkbook", "initialWorkbook is required")
	}

	validateTasks(c, errs)

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs.Add("logging.level", err.Error())
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "json":
	default:
		errs.Add("logging.format", fmt.Sprintf("unknown log format %q", c.Logging.Format))
	}

	if c.Prometheus.Path != "" && !strings.HasPrefix(c.Prometheus.Path, "/") {
		errs.Add("prometheus.path", "path must start with /")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateHost(host string, errs *ValidationErrors) {
	if host == "" {
		errs.Add("host", "host is required")
		return
	}
	u, err := url.Parse(host)
	if err != nil {
		errs.Add("host", fmt.Sprintf("invalid URL: %v", err))
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		errs.Add("host", fmt.Sprintf("scheme must be http or https, got %q", u.Scheme))
	}
	if u.Host == "" {
		errs.Add("host", "host name is missing")
	}
}

func validateTasks(c *TestConfig, errs *ValidationErrors) {
	names := make([]string, 0, len(c.Tasks))
	for name := range c.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := scenario.ValidateWeights(map[string]int{name: c.Tasks[name]}); err != nil {
			errs.Add("tasks."+name, err.Error())
		}
	}

	total := 0
	for _, w := range c.Weights() {
		if w > 0 {
			total += w
		}
	}
	if total == 0 {
		errs.Add("tasks", "at least one task must have a positive weight")
	}
}
