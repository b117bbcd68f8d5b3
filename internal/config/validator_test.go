package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidationErrors_Error(t *testing.T) {
	errs := &ValidationErrors{}
	if errs.Error() != "no validation errors" {
		t.Errorf("empty Error() = %q", errs.Error())
	}

	errs.Add("users", "users must be greater than 0")
	if got := errs.Error(); got != "validation error on field 'users': users must be greater than 0" {
		t.Errorf("single Error() = %q", got)
	}

	errs.Add("", "something else")
	got := errs.Error()
	if !strings.HasPrefix(got, "2 validation errors:\n") {
		t.Errorf("multi Error() = %q", got)
	}
	if !strings.Contains(got, "  2. validation error: something else") {
		t.Errorf("multi Error() = %q", got)
	}
}

func TestValidate_Default(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *TestConfig)
		field  string
	}{
		{name: "missing host", modify: func(c *TestConfig) { c.Host = "" }, field: "host"},
		{name: "host without scheme", modify: func(c *TestConfig) { c.Host = "localhost:8080" }, field: "host"},
		{name: "ftp host", modify: func(c *TestConfig) { c.Host = "ftp://files.example.com" }, field: "host"},
		{name: "zero users", modify: func(c *TestConfig) { c.Users = 0 }, field: "users"},
		{name: "zero spawn rate", modify: func(c *TestConfig) { c.SpawnRate = 0 }, field: "spawnRate"},
		{name: "negative run time", modify: func(c *TestConfig) { c.RunTime = Duration(-time.Second) }, field: "runTime"},
		{name: "zero timeout", modify: func(c *TestConfig) { c.Timeout = 0 }, field: "timeout"},
		{name: "max below min", modify: func(c *TestConfig) {
			c.WaitTime = WaitTimeConfig{Min: Duration(5 * time.Second), Max: Duration(time.Second)}
		}, field: "waitTime.max"},
		{name: "empty worksheet", modify: func(c *TestConfig) { c.Behavior.Worksheet = "" }, field: "behavior.worksheet"},
		{name: "unknown task", modify: func(c *TestConfig) { c.Tasks = map[string]int{"delete_workbook": 1} }, field: "tasks.delete_workbook"},
		{name: "negative weight", modify: func(c *TestConfig) { c.Tasks = map[string]int{"edit_cell": -2} }, field: "tasks.edit_cell"},
		{name: "all tasks disabled", modify: func(c *TestConfig) {
			c.Tasks = map[string]int{
				"create_workbook": 0, "open_workbook": 0, "edit_cell": 0,
				"add_formula": 0, "create_chart": 0, "save_workbook": 0,
			}
		}, field: "tasks"},
		{name: "bad log level", modify: func(c *TestConfig) { c.Logging.Level = "verbose" }, field: "logging.level"},
		{name: "bad log format", modify: func(c *TestConfig) { c.Logging.Format = "xml" }, field: "logging.format"},
		{name: "relative metrics path", modify: func(c *TestConfig) { c.Prometheus.Path = "metrics" }, field: "prometheus.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(c)

			err := c.Validate()
			if err == nil {
				t.Fatal("Validate() expected error")
			}

			var errs *ValidationErrors
			if !errors.As(err, &errs) {
				t.Fatalf("error type = %T, want *ValidationErrors", err)
			}
			for _, e := range errs.Errors {
				if e.Field == tt.field {
					return
				}
			}
			t.Errorf("no error on field %q in %v", tt.field, err)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	c := Default()
	c.Users = 0
	c.SpawnRate = -1
	c.Host = ""

	var errs *ValidationErrors
	if !errors.As(c.Validate(), &errs) {
		t.Fatal("Validate() expected *ValidationErrors")
	}
	if len(errs.Errors) != 3 {
		t.Errorf("len(Errors) = %d, want 3: %v", len(errs.Errors), errs)
	}
}

func TestValidate_UnboundedRunAllowed(t *testing.T) {
	c := Default()
	c.RunTime = 0
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestScenarioOptions(t *testing.T) {
	c := Default()
	c.Credentials = CredentialsConfig{Username: "alice", Password: "pw"}
	c.Behavior.AdoptCreatedWorkbook = true
	c.Tasks = map[string]int{"save_workbook": 7}

	opts := c.ScenarioOptions()
	if opts.Credentials.Username != "alice" || opts.Credentials.Password != "pw" {
		t.Errorf("Credentials = %+v", opts.Credentials)
	}
	if opts.Worksheet != "Sheet1" || opts.InitialWorkbook != "TestWorkbook" {
		t.Errorf("Worksheet/InitialWorkbook = %q/%q", opts.Worksheet, opts.InitialWorkbook)
	}
	if !opts.AdoptCreatedWorkbook {
		t.Error("AdoptCreatedWorkbook not carried over")
	}
	if opts.Weights["save_workbook"] != 7 {
		t.Errorf("Weights = %v", opts.Weights)
	}
}

func TestDefault_LogLevelUnset(t *testing.T) {
	c := Default()
	if c.Logging.Level != "" {
		t.Errorf("default Logging.Level = %q, want unset", c.Logging.Level)
	}
	if c.Logging.Format != "console" {
		t.Errorf("default Logging.Format = %q, want console", c.Logging.Format)
	}
}
