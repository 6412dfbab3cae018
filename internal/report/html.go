package report

import (
	"context"
	"html/template"
	"io"
)

// HTMLRenderer outputs a self-contained single-page report.
type HTMLRenderer struct{}

// Format returns "html".
func (r *HTMLRenderer) Format() string { return "html" }

// Render writes the report as HTML to w.
func (r *HTMLRenderer) Render(ctx context.Context, rep *Report, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return htmlTemplate.Execute(w, rep)
}

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"title": sectionTitle,
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>nethawk report - {{.SessionID}}</title>
<style>
body { font-family: monospace; margin: 2em; background: #fafafa; color: #222; }
h1 { border-bottom: 3px double #222; padding-bottom: .3em; }
h2 { border-bottom: 1px solid #888; padding-bottom: .2em; margin-top: 1.5em; }
table { border-collapse: collapse; width: 100%; }
td, th { text-align: left; padding: .25em .75em .25em 0; vertical-align: top; }
.sev-CRITICAL { color: #a00; font-weight: bold; }
.sev-HIGH { color: #c50; font-weight: bold; }
.sev-MEDIUM { color: #a80; }
.sev-LOW, .sev-INFO { color: #567; }
.meta { color: #555; }
</style>
</head>
<body>
<h1>nethawk - Reconnaissance Report</h1>
<p class="meta">
Session {{.SessionID}}{{if .LabMode}} (lab mode){{end}}<br>
{{- with .System}}{{if .Hostname}}
Host {{.Hostname}} &mdash; {{.Platform}}, {{.Arch}}{{if .Kernel}}, kernel {{.Kernel}}{{end}}<br>
{{- end}}{{end}}
{{.Summary.Total}} findings
</p>
{{if not .Sections}}<p>No findings recorded.</p>{{end}}
{{range .Sections}}
<h2>{{title .Kind}} ({{len .Findings}})</h2>
<table>
<tr><th>Severity</th><th>Finding</th><th>Tool</th><th>Source</th></tr>
{{range .Findings}}
<tr>
<td class="sev-{{.Severity}}">{{.Severity}}</td>
<td>{{.Title}}</td>
<td>{{.Tool}}</td>
<td class="meta">{{.Origin}}</td>
</tr>
{{end}}
</table>
{{end}}
</body>
</html>
`))
