// Package output renders load test progress and results: a live view on
// terminals, plain progress lines elsewhere, final summary tables and a JSON
// summary file.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/wesleyorama2/sheetload/internal/harness"
	"github.com/wesleyorama2/sheetload/internal/metrics"
)

// ANSI cursor control for the live view.
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"

	boxHorizontal = "━"
	boxVertical   = "│"

	progressFilled = "█"
	progressEmpty  = "░"
)

// LiveStats contains real-time statistics for display.
type LiveStats struct {
	Progress float64 // 0.0 to 1.0, 0 for unbounded runs
	Elapsed  time.Duration
	RunTime  time.Duration // 0 for unbounded runs

	ActiveUsers int
	TargetUsers int

	RPS           float64
	TotalRequests int64
	Failures      int64
	ErrorRate     float64

	LatencyP95 time.Duration
	LatencyAvg time.Duration
}

// StatsFromSnapshot creates LiveStats from a metrics snapshot.
func StatsFromSnapshot(snap *metrics.Snapshot, progress float64, runTime time.Duration, targetUsers int) *LiveStats {
	if snap == nil {
		return &LiveStats{Progress: progress, RunTime: runTime, TargetUsers: targetUsers}
	}
	return &LiveStats{
		Progress:      progress,
		Elapsed:       snap.Elapsed,
		RunTime:       runTime,
		ActiveUsers:   snap.ActiveUsers,
		TargetUsers:   targetUsers,
		RPS:           snap.RPS,
		TotalRequests: snap.TotalRequests,
		Failures:      snap.FailedRequests,
		ErrorRate:     snap.ErrorRate,
		LatencyP95:    snap.Latency.P95,
		LatencyAvg:    snap.Latency.Mean,
	}
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	TestName    string
	Host        string
	Users       int
	SpawnRate   float64
	RunTime     time.Duration
	Writer      io.Writer
	Quiet       bool
	ForceColors bool
	ForceTTY    bool
}

// Console writes test progress and results for humans.
type Console struct {
	config ConsoleConfig
	writer io.Writer
	isTTY  bool
	quiet  bool
	colors *ColorScheme

	mu          sync.Mutex
	linesOutput int
}

// NewConsole creates a console writer. Colors are used on terminals that
// support them unless NO_COLOR is set.
func NewConsole(config ConsoleConfig) *Console {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}

	isTTY := config.ForceTTY || IsTerminal(config.Writer)

	var colors *ColorScheme
	switch {
	case config.ForceColors:
		colors = DefaultColorScheme().forceColors()
	case isTTY && supportsColors():
		colors = DefaultColorScheme()
	default:
		colors = NoColorScheme()
	}

	return &Console{
		config: config,
		writer: config.Writer,
		isTTY:  isTTY,
		quiet:  config.Quiet,
		colors: colors,
	}
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the test header.
func (c *Console) PrintHeader() {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := c.colors.Rule.Sprint(strings.Repeat(boxHorizontal, 56))
	runTime := "until interrupted"
	if c.config.RunTime > 0 {
		runTime = formatDuration(c.config.RunTime)
	}

	c.writeln(line)
	c.writeln(c.colors.Title.Sprintf("%s - Running", c.config.TestName))
	c.writeln(line)
	c.writeln(fmt.Sprintf("Host:     %s", c.colors.Value.Sprint(c.config.Host)))
	c.writeln(fmt.Sprintf("Users:    %s (spawn rate %s/s)",
		c.colors.Value.Sprint(c.config.Users),
		c.colors.Value.Sprint(formatRate(c.config.SpawnRate))))
	c.writeln(fmt.Sprintf("Run time: %s", c.colors.Value.Sprint(runTime)))
	c.writeln("")
}

// Update shows stats: a redrawn live view on terminals, one appended line
// otherwise.
func (c *Console) Update(stats *LiveStats) {
	if c.quiet {
		return
	}
	if !c.isTTY {
		c.PrintProgressLine(stats)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()
	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

// PrintProgressLine prints a one-line status update.
func (c *Console) PrintProgressLine(stats *LiveStats) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("[%s] Users: %d/%d | Reqs: %d | RPS: %.1f | Failures: %d (%.1f%%) | P95: %s",
		formatDuration(stats.Elapsed),
		stats.ActiveUsers,
		stats.TargetUsers,
		stats.TotalRequests,
		stats.RPS,
		stats.Failures,
		stats.ErrorRate*100,
		formatDurationShort(stats.LatencyP95)))
}

func (c *Console) renderLiveStats(stats *LiveStats) []string {
	var lines []string

	if stats.RunTime > 0 {
		lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
			c.colors.Success.Sprint(renderProgressBar(stats.Progress, 40)),
			c.colors.Title.Sprintf("%.0f%%", stats.Progress*100),
			c.colors.Dim.Sprintf("%s / %s", formatDuration(stats.Elapsed), formatDuration(stats.RunTime))))
	} else {
		lines = append(lines, fmt.Sprintf("Elapsed:  %s", c.colors.Dim.Sprint(formatDuration(stats.Elapsed))))
	}

	rate := c.colors.rateColor(stats.ErrorRate)
	lines = append(lines,
		fmt.Sprintf("%s Users:    %s / %d", boxVertical, c.colors.Value.Sprint(stats.ActiveUsers), stats.TargetUsers),
		fmt.Sprintf("%s Requests: %s   RPS: %s", boxVertical,
			c.colors.Value.Sprint(formatNumber(stats.TotalRequests)),
			c.colors.Success.Sprintf("%.1f", stats.RPS)),
		fmt.Sprintf("%s Failures: %s (%s)", boxVertical,
			rate.Sprint(stats.Failures),
			rate.Sprintf("%.1f%%", stats.ErrorRate*100)),
		fmt.Sprintf("%s P95:      %s   Avg: %s", boxVertical,
			c.colors.Latency.Sprint(formatDurationShort(stats.LatencyP95)),
			c.colors.Latency.Sprint(formatDurationShort(stats.LatencyAvg))),
	)
	return lines
}

// clearLive erases the previous live view. Callers hold c.mu.
func (c *Console) clearLive() {
	if !c.isTTY || c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

// PrintSummary prints the final totals, the per-request table and the
// failure table.
func (c *Console) PrintSummary(result *harness.Result, snap *metrics.Snapshot) {
	if c.quiet {
		status := c.colors.Success.Sprint("PASSED")
		if snap != nil && snap.FailedRequests > 0 {
			status = c.colors.Error.Sprintf("FAILED (%d failures)", snap.FailedRequests)
		}
		c.writeln(status)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()

	line := c.colors.Rule.Sprint(strings.Repeat(boxHorizontal, 56))
	c.writeln("")
	c.writeln(line)
	c.writeln(fmt.Sprintf("%s - %s", c.colors.Title.Sprint(c.config.TestName), c.colors.Success.Sprint("Completed ✓")))
	c.writeln(line)
	c.writeln("")

	if result != nil {
		c.writeln(fmt.Sprintf("Duration:      %s", c.colors.Value.Sprint(formatDuration(result.Duration))))
		c.writeln(fmt.Sprintf("Users:         %s", c.colors.Value.Sprint(result.UsersSpawned)))
		c.writeln(fmt.Sprintf("Tasks:         %s", c.colors.Value.Sprint(formatNumber(result.Iterations))))
		if result.Aborted > 0 {
			c.writeln(fmt.Sprintf("Aborted users: %s", c.colors.Warning.Sprint(result.Aborted)))
		}
	}
	if snap == nil {
		c.writeln("")
		return
	}

	successRate := 1.0 - snap.ErrorRate
	c.writeln(fmt.Sprintf("Total Reqs:    %s", c.colors.Value.Sprint(formatNumber(snap.TotalRequests))))
	c.writeln(fmt.Sprintf("Success Rate:  %s", c.colors.rateColor(snap.ErrorRate).Sprintf("%.1f%%", successRate*100)))
	c.writeln(fmt.Sprintf("RPS:           %s", c.colors.Value.Sprintf("%.1f", snap.RPS)))
	c.writeln("")

	c.printRequestTable(snap)
	c.printFailureTable(snap)
}

// Column widths of the request table.
const (
	nameWidth   = 18
	numberWidth = 9
	timeWidth   = 9
)

func (c *Console) printRequestTable(snap *metrics.Snapshot) {
	c.writeln(c.colors.Label.Sprint("Requests:"))
	header := fmt.Sprintf("  %-*s %-6s %*s %*s %*s %*s %*s %*s %*s %*s",
		nameWidth, "Name", "Method",
		numberWidth, "# reqs", numberWidth, "# fails",
		timeWidth, "Avg", timeWidth, "Min", timeWidth, "Max",
		timeWidth, "P50", timeWidth, "P95", numberWidth, "req/s")
	c.writeln(c.colors.Dim.Sprint(header))

	for _, r := range snap.Requests {
		fails := fmt.Sprintf("%*d", numberWidth, r.Failures)
		if r.Failures > 0 {
			fails = c.colors.Error.Sprint(fails)
		}
		c.writeln(fmt.Sprintf("  %-*s %-6s %*d %s %*s %*s %*s %*s %*s %*.1f",
			nameWidth, r.Name, r.Method,
			numberWidth, r.Requests, fails,
			timeWidth, formatDurationShort(r.Latency.Mean),
			timeWidth, formatDurationShort(r.Latency.Min),
			timeWidth, formatDurationShort(r.Latency.Max),
			timeWidth, formatDurationShort(r.Latency.P50),
			timeWidth, formatDurationShort(r.Latency.P95),
			numberWidth, r.RPS))
	}

	l := snap.Latency
	c.writeln(c.colors.Title.Sprint(fmt.Sprintf("  %-*s %-6s %*d %*d %*s %*s %*s %*s %*s %*.1f",
		nameWidth, "Aggregated", "",
		numberWidth, snap.TotalRequests, numberWidth, snap.FailedRequests,
		timeWidth, formatDurationShort(l.Mean),
		timeWidth, formatDurationShort(l.Min),
		timeWidth, formatDurationShort(l.Max),
		timeWidth, formatDurationShort(l.P50),
		timeWidth, formatDurationShort(l.P95),
		numberWidth, snap.RPS)))
	c.writeln("")
}

func (c *Console) printFailureTable(snap *metrics.Snapshot) {
	if len(snap.Failures) == 0 {
		return
	}

	c.writeln(c.colors.Label.Sprint("Failures:"))
	for _, f := range snap.Failures {
		c.writeln(fmt.Sprintf("  %s %*d  %-*s %s",
			c.colors.Error.Sprint("✗"),
			numberWidth, f.Count,
			nameWidth, f.Name,
			f.Reason))
	}
	c.writeln("")
}

// write writes to the output without a newline.
func (c *Console) write(s string) {
	fmt.Fprint(c.writer, s)
}

// writeln writes to the output with a newline.
func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

func renderProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	filled := int(progress * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %02dm %02ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

// formatDurationShort formats a latency.
func formatDurationShort(d time.Duration) string {
	if d < time.Microsecond {
		return "0ms"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

func formatRate(r float64) string {
	if r == float64(int64(r)) {
		return fmt.Sprintf("%d", int64(r))
	}
	return fmt.Sprintf("%.2f", r)
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}
