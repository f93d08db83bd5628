package report

import (
	"fmt"
	"html/template"
	"io"

	"github.com/FranksOps/rankr/internal/storage"
)

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Rankr Report{{with .Summary.Domain}} for {{.}}{{end}}</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  .advisory { padding: 12px 16px; background: #fdecea; border-left: 4px solid #d93025; margin: 20px 0; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
  td.error { color: #d93025; }
</style>
</head>
<body>
  <h1>Rankr Report{{with .Summary.Domain}} for {{.}}{{end}}</h1>
  <p><strong>Time:</strong> {{.Summary.StartTime.Format "2006-01-02 15:04:05"}} to {{.Summary.EndTime.Format "2006-01-02 15:04:05"}} ({{.Summary.Duration}})</p>
  {{- if .Summary.Partial}}
  <p><strong>Cancelled:</strong> {{.Summary.Total}} of {{.Summary.Expected}} lookups completed.</p>
  {{- end}}
  {{- with .Advisory}}
  <div class="advisory">{{.}}</div>
  {{- end}}

  <div class="stat-card">
    <div>Lookups</div>
    <div class="stat-val">{{.Summary.Total}}</div>
  </div>
  <div class="stat-card">
    <div>Matched</div>
    <div class="stat-val">{{.Summary.Matched}}</div>
  </div>
  <div class="stat-card">
    <div>Top 10</div>
    <div class="stat-val">{{.Summary.Top10}}</div>
  </div>
  <div class="stat-card">
    <div>Best Rank</div>
    <div class="stat-val">{{if .Summary.BestRank}}{{.Summary.BestRank}}{{else}}-{{end}}</div>
  </div>
  <div class="stat-card">
    <div>Errors</div>
    <div class="stat-val" style="color: {{if gt .Summary.Errors 0}}red{{else}}green{{end}};">{{.Summary.Errors}}</div>
  </div>

  <h3>Results</h3>
  <table>
    <tr><th>Keyword</th><th>Location</th><th>Ranking</th><th>URL</th></tr>
    {{- range .Records}}
    <tr><td>{{.Keyword}}</td><td>{{.Location}}</td><td{{if .Status.IsError}} class="error"{{end}}>{{.Ranking}}</td><td>{{if .URL}}<a href="{{.URL}}">{{.URL}}</a>{{end}}</td></tr>
    {{- else}}
    <tr><td colspan="4">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`

var htmlTemplate = template.Must(template.New("htmlReport").Parse(htmlTmpl))

// WriteHTML writes a standalone HTML report.
func WriteHTML(w io.Writer, summary Summary, records []storage.RankRecord) error {
	data := struct {
		Summary  Summary
		Advisory string
		Records  []storage.RankRecord
	}{summary, AuthAdvisory(summary), records}

	if err := htmlTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}
