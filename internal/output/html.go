package output

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"time"

	"github.com/wesleyorama2/sheetload/internal/metrics"
)

// WriteHTMLFile renders the summary as a standalone HTML page at path.
func (s *Summary) WriteHTMLFile(path string) error {
	page, err := s.HTML()
	if err != nil {
		return fmt.Errorf("failed to generate HTML: %w", err)
	}
	if err := os.WriteFile(path, page, 0644); err != nil {
		return fmt.Errorf("failed to write HTML file: %w", err)
	}
	return nil
}

// HTML renders the summary as a standalone HTML page.
func (s *Summary) HTML() ([]byte, error) {
	if s == nil || s.Metrics == nil {
		return nil, fmt.Errorf("summary has no metrics")
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"duration":    formatDuration,
		"latency":     formatDurationShort,
		"number":      formatNumber,
		"rate":        formatRate,
		"percent":     func(f float64) string { return fmt.Sprintf("%.2f%%", f*100) },
		"successRate": successRate,
		"failureRate": requestFailureRate,
		"timestamp":   func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
	}).Parse(reportTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, s); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.Bytes(), nil
}

func successRate(m *metrics.Snapshot) string {
	if m == nil || m.TotalRequests == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(m.SuccessRequests)/float64(m.TotalRequests)*100)
}

func requestFailureRate(r metrics.RequestBreakdown) string {
	if r.Requests == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(r.Failures)/float64(r.Requests)*100)
}

const reportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>{{.Name}} - Load Test Report</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; margin: 0; background: #f4f6f8; color: #1f2933; }
main { max-width: 1100px; margin: 0 auto; padding: 24px; }
header { display: flex; justify-content: space-between; align-items: center; }
h1 { margin: 0; font-size: 1.6rem; }
h2 { font-size: 1.1rem; margin-top: 32px; }
.meta { color: #616e7c; font-size: 0.9rem; }
.status { padding: 6px 14px; border-radius: 4px; font-weight: 600; color: #fff; }
.status.pass { background: #2f9e44; }
.status.fail { background: #c92a2a; }
.cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(160px, 1fr)); gap: 12px; margin-top: 20px; }
.card { background: #fff; border-radius: 6px; padding: 14px; box-shadow: 0 1px 2px rgba(0,0,0,0.08); }
.card .label { color: #616e7c; font-size: 0.8rem; text-transform: uppercase; }
.card .value { font-size: 1.4rem; font-weight: 600; margin-top: 4px; }
table { width: 100%; border-collapse: collapse; background: #fff; border-radius: 6px; overflow: hidden; }
th, td { padding: 8px 10px; text-align: right; border-bottom: 1px solid #e4e7eb; font-size: 0.9rem; }
th:first-child, td:first-child, th:nth-child(2), td:nth-child(2) { text-align: left; }
th { background: #e4e7eb; }
tr.total td { font-weight: 600; }
td.failures { color: #c92a2a; }
</style>
</head>
<body>
<main>
<header>
  <div>
    <h1>{{.Name}}</h1>
    <div class="meta">{{.Host}}{{if .Run}} &middot; {{timestamp .Run.StartTime}} &middot; {{duration .Run.Duration}}{{end}}</div>
  </div>
  {{if .Metrics.FailedRequests}}<span class="status fail">FAILED</span>{{else}}<span class="status pass">PASSED</span>{{end}}
</header>

<section class="cards">
  <div class="card"><div class="label">Requests</div><div class="value">{{number .Metrics.TotalRequests}}</div></div>
  <div class="card"><div class="label">Throughput</div><div class="value">{{rate .Metrics.RPS}} req/s</div></div>
  <div class="card"><div class="label">Success rate</div><div class="value">{{successRate .Metrics}}</div></div>
  <div class="card"><div class="label">Error rate</div><div class="value">{{percent .Metrics.ErrorRate}}</div></div>
  <div class="card"><div class="label">P95 latency</div><div class="value">{{latency .Metrics.Latency.P95}}</div></div>
  {{if .Run}}<div class="card"><div class="label">Users</div><div class="value">{{.Run.UsersSpawned}}</div></div>{{end}}
</section>

<h2>Requests</h2>
<table>
  <thead>
    <tr><th>Name</th><th>Method</th><th>Requests</th><th>Failures</th><th>Avg</th><th>Min</th><th>P50</th><th>P95</th><th>P99</th><th>Max</th><th>req/s</th></tr>
  </thead>
  <tbody>
  {{range .Metrics.Requests}}
    <tr>
      <td>{{.Name}}</td><td>{{.Method}}</td><td>{{number .Requests}}</td>
      <td class="{{if .Failures}}failures{{end}}">{{number .Failures}} ({{failureRate .}})</td>
      <td>{{latency .Latency.Mean}}</td><td>{{latency .Latency.Min}}</td><td>{{latency .Latency.P50}}</td>
      <td>{{latency .Latency.P95}}</td><td>{{latency .Latency.P99}}</td><td>{{latency .Latency.Max}}</td>
      <td>{{rate .RPS}}</td>
    </tr>
  {{end}}
    <tr class="total">
      <td>Aggregated</td><td></td><td>{{number .Metrics.TotalRequests}}</td>
      <td class="{{if .Metrics.FailedRequests}}failures{{end}}">{{number .Metrics.FailedRequests}} ({{percent .Metrics.ErrorRate}})</td>
      <td>{{latency .Metrics.Latency.Mean}}</td><td>{{latency .Metrics.Latency.Min}}</td><td>{{latency .Metrics.Latency.P50}}</td>
      <td>{{latency .Metrics.Latency.P95}}</td><td>{{latency .Metrics.Latency.P99}}</td><td>{{latency .Metrics.Latency.Max}}</td>
      <td>{{rate .Metrics.RPS}}</td>
    </tr>
  </tbody>
</table>

{{if .Metrics.Failures}}
<h2>Failures</h2>
<table>
  <thead><tr><th>Name</th><th>Reason</th><th>Count</th></tr></thead>
  <tbody>
  {{range .Metrics.Failures}}
    <tr><td>{{.Name}}</td><td>{{.Reason}}</td><td>{{number .Count}}</td></tr>
  {{end}}
  </tbody>
</table>
{{end}}
</main>
</body>
</html>
`
