package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wesleyorama2/sheetload/internal/harness"
	"github.com/wesleyorama2/sheetload/internal/metrics"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{1 * time.Second, "1.0s"},
		{1*time.Minute + 30*time.Second, "1m 30s"},
		{1*time.Hour + 2*time.Minute + 3*time.Second, "1h 02m 03s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatDuration(tt.duration)
			if result != tt.expected {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.duration, result, tt.expected)
			}
		})
	}
}

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{0, "0ms"},
		{500 * time.Microsecond, "500µs"},
		{50 * time.Millisecond, "50ms"},
		{1500 * time.Millisecond, "1.50s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatDurationShort(tt.duration)
			if result != tt.expected {
				t.Errorf("formatDurationShort(%v) = %q, want %q", tt.duration, result, tt.expected)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		number   int64
		expected string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
	}

	for _, tt := range tests {
		if got := formatNumber(tt.number); got != tt.expected {
			t.Errorf("formatNumber(%d) = %q, want %q", tt.number, got, tt.expected)
		}
	}
}

func TestRenderProgressBar(t *testing.T) {
	for _, p := range []float64{-1, 0, 0.5, 1, 2} {
		bar := renderProgressBar(p, 20)
		if !strings.HasPrefix(bar, "[") || !strings.HasSuffix(bar, "]") {
			t.Errorf("progress bar should be wrapped in brackets: %q", bar)
		}
		if n := len([]rune(bar)); n != 22 {
			t.Errorf("progress bar rune count = %d, want 22", n)
		}
	}
}

func newTestConsole(buf *bytes.Buffer, quiet bool) *Console {
	return NewConsole(ConsoleConfig{
		TestName:  "Excel API load test",
		Host:      "http://localhost:8080",
		Users:     10,
		SpawnRate: 2,
		RunTime:   time.Minute,
		Writer:    buf,
		Quiet:     quiet,
	})
}

func testSnapshot() *metrics.Snapshot {
	return &metrics.Snapshot{
		TotalRequests:   1200,
		SuccessRequests: 1190,
		FailedRequests:  10,
		ErrorRate:       10.0 / 1200,
		RPS:             20,
		Latency:         metrics.LatencyStats{Min: 2 * time.Millisecond, Mean: 30 * time.Millisecond, P95: 80 * time.Millisecond, Max: 400 * time.Millisecond},
		Requests: []metrics.RequestBreakdown{
			{Name: "edit_cell", Method: "PATCH", Requests: 700, RPS: 11.7},
			{Name: "save_workbook", Method: "PUT", Requests: 500, Failures: 10, RPS: 8.3},
		},
		Failures: []metrics.FailureCount{
			{Name: "save_workbook", Reason: "unexpected status 500", Count: 10},
		},
	}
}

func TestConsole_NotTTYForBuffer(t *testing.T) {
	var buf bytes.Buffer
	c := newTestConsole(&buf, false)
	if c.IsTTY() {
		t.Error("expected non-TTY when writing to buffer")
	}
}

func TestConsole_PrintHeader(t *testing.T) {
	var buf bytes.Buffer
	newTestConsole(&buf, false).PrintHeader()

	out := buf.String()
	for _, want := range []string{"Excel API load test - Running", "http://localhost:8080", "10 (spawn rate 2/s)", "1m 00s"} {
		if !strings.Contains(out, want) {
			t.Errorf("header missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("header should not contain ANSI codes when writing to a buffer")
	}
}

func TestConsole_UpdateNonTTYAppendsLines(t *testing.T) {
	var buf bytes.Buffer
	c := newTestConsole(&buf, false)

	stats := StatsFromSnapshot(testSnapshot(), 0.5, time.Minute, 10)
	c.Update(stats)
	c.Update(stats)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "Reqs: 1200") || !strings.Contains(lines[0], "Failures: 10 (0.8%)") {
		t.Errorf("unexpected progress line %q", lines[0])
	}
}

func TestConsole_UpdateTTYRedraws(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{TestName: "t", Writer: &buf, ForceTTY: true, RunTime: time.Minute})

	stats := StatsFromSnapshot(testSnapshot(), 0.25, time.Minute, 10)
	c.Update(stats)
	first := buf.Len()
	if strings.Contains(buf.String(), "\033[5A") {
		t.Error("first update should not move the cursor")
	}

	c.Update(stats)
	if !strings.Contains(buf.String()[first:], "\033[5A") {
		t.Errorf("second update should move the cursor up over the 5 live lines")
	}
}

func TestConsole_PrintSummary(t *testing.T) {
	var buf bytes.Buffer
	c := newTestConsole(&buf, false)

	c.PrintSummary(&harness.Result{Duration: 30 * time.Second, UsersSpawned: 10, Iterations: 1200}, testSnapshot())

	out := buf.String()
	for _, want := range []string{
		"Completed ✓",
		"1,200",
		"Success Rate:  99.2%",
		"edit_cell",
		"save_workbook",
		"Aggregated",
		"Failures:",
		"unexpected status 500",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestConsole_QuietMode(t *testing.T) {
	var buf bytes.Buffer
	c := newTestConsole(&buf, true)

	c.PrintHeader()
	c.Update(&LiveStats{Progress: 0.5})
	if buf.Len() != 0 {
		t.Errorf("quiet console wrote %q", buf.String())
	}

	c.PrintSummary(&harness.Result{}, testSnapshot())
	if !strings.Contains(buf.String(), "FAILED (10 failures)") {
		t.Errorf("quiet summary = %q", buf.String())
	}

	buf.Reset()
	c.PrintSummary(&harness.Result{}, &metrics.Snapshot{TotalRequests: 5})
	if !strings.Contains(buf.String(), "PASSED") {
		t.Errorf("quiet summary = %q", buf.String())
	}
}

func TestConsole_ForceColors(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{TestName: "colored", Writer: &buf, ForceColors: true})
	c.PrintHeader()

	if !strings.Contains(buf.String(), "\033[") {
		t.Error("expected ANSI codes with ForceColors")
	}
}

func TestStatsFromSnapshot(t *testing.T) {
	snap := testSnapshot()
	snap.ActiveUsers = 7
	snap.Elapsed = 30 * time.Second

	stats := StatsFromSnapshot(snap, 0.5, time.Minute, 10)
	if stats.ActiveUsers != 7 || stats.TargetUsers != 10 {
		t.Errorf("users = %d/%d, want 7/10", stats.ActiveUsers, stats.TargetUsers)
	}
	if stats.Failures != 10 || stats.TotalRequests != 1200 {
		t.Errorf("requests = %d failures = %d", stats.TotalRequests, stats.Failures)
	}
	if stats.LatencyAvg != 30*time.Millisecond {
		t.Errorf("LatencyAvg = %v", stats.LatencyAvg)
	}

	empty := StatsFromSnapshot(nil, 0, 0, 3)
	if empty.TargetUsers != 3 {
		t.Errorf("TargetUsers = %d, want 3", empty.TargetUsers)
	}
}

func TestSummary_WriteJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	s := &Summary{
		Name:    "Excel API load test",
		Host:    "http://localhost:8080",
		Run:     &harness.Result{UsersSpawned: 10, Iterations: 1200},
		Metrics: testSnapshot(),
	}
	if err := s.WriteJSONFile(path); err != nil {
		t.Fatalf("WriteJSONFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("summary is not JSON: %v", err)
	}
	if decoded["host"] != "http://localhost:8080" {
		t.Errorf("host = %v", decoded["host"])
	}
	m := decoded["metrics"].(map[string]any)
	if m["failedRequests"].(float64) != 10 {
		t.Errorf("failedRequests = %v", m["failedRequests"])
	}
	run := decoded["run"].(map[string]any)
	if run["usersSpawned"].(float64) != 10 {
		t.Errorf("usersSpawned = %v", run["usersSpawned"])
	}
}

func TestSummary_WriteJSONFileBadPath(t *testing.T) {
	s := &Summary{}
	if err := s.WriteJSONFile(filepath.Join(t.TempDir(), "missing", "summary.json")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestSummary_HTML(t *testing.T) {
	s := &Summary{
		Name:    "Excel API <load> test",
		Host:    "http://localhost:8080",
		Run:     &harness.Result{UsersSpawned: 10, Duration: 30 * time.Second},
		Metrics: testSnapshot(),
	}
	page, err := s.HTML()
	if err != nil {
		t.Fatalf("HTML() error = %v", err)
	}

	out := string(page)
	for _, want := range []string{
		"Excel API &lt;load&gt; test",
		"FAILED",
		"edit_cell",
		"save_workbook",
		"Aggregated",
		"unexpected status 500",
		"1,200",
		"99.2%",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestSummary_HTMLPassed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.html")
	s := &Summary{Name: "ok", Metrics: &metrics.Snapshot{TotalRequests: 3, SuccessRequests: 3}}
	if err := s.WriteHTMLFile(path); err != nil {
		t.Fatalf("WriteHTMLFile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "PASSED") {
		t.Error("report without failures should be marked PASSED")
	}
}

func TestSummary_HTMLWithoutMetrics(t *testing.T) {
	if _, err := (&Summary{}).HTML(); err == nil {
		t.Error("expected error for summary without metrics")
	}
}
