// Package templates renders the HTML pages of the web server.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/spendcheck/internal/core"
)

const styles = `body{font-family:system-ui,sans-serif;margin:2rem;color:#1f2933}
table{border-collapse:collapse}td,th{border:1px solid #cbd2d9;padding:.3rem .6rem;text-align:left}
.status{font-weight:600}.status-FAILED{color:#b91c1c}.status-COMPLETED{color:#047857}
.alert{border:1px solid #b91c1c;background:#fef2f2;padding:1rem;border-radius:4px}`

// Layout wraps body in the page shell.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w,
			"<!DOCTYPE html><html lang=\"en\"><head><meta charset=\"utf-8\"><title>%s</title><style>%s</style></head><body>",
			templ.EscapeString(title), styles); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</body></html>")
		return err
	})
}

// RunsPage lists the live runs.
func RunsPage(runs []core.StateView) templ.Component {
	return Layout("Validation runs", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<h1>Validation runs</h1>")
		if len(runs) == 0 {
			b.WriteString("<p>No runs in progress.</p>")
		} else {
			b.WriteString("<table><thead><tr><th>Run</th><th>File</th><th>Status</th><th>Rows</th><th>Pending fixes</th></tr></thead><tbody>")
			for _, r := range runs {
				fmt.Fprintf(&b, "<tr><td><a href=\"/runs/%s\">%s</a></td><td>%s</td><td class=\"status status-%s\">%s</td><td>%d</td><td>%d</td></tr>",
					templ.EscapeString(r.RunID), templ.EscapeString(r.RunID),
					templ.EscapeString(r.FileName),
					templ.EscapeString(string(r.Status)), templ.EscapeString(string(r.Status)),
					r.RowCount, len(r.PendingFixes))
			}
			b.WriteString("</tbody></table>")
		}
		_, err := io.WriteString(w, b.String())
		return err
	}))
}

// RunPage shows the status card of one run.
func RunPage(v core.StateView) templ.Component {
	return Layout("Run "+v.RunID, RunCard(v))
}

// RunCard renders status, counts, open fix requests and artifacts.
func RunCard(v core.StateView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		fmt.Fprintf(&b, "<section class=\"run\"><h1>Run %s</h1>", templ.EscapeString(v.RunID))
		if v.FileName != "" {
			fmt.Fprintf(&b, "<p>File: %s</p>", templ.EscapeString(v.FileName))
		}
		fmt.Fprintf(&b, "<p>Status: <span class=\"status status-%s\">%s</span></p>",
			templ.EscapeString(string(v.Status)), templ.EscapeString(string(v.Status)))
		fmt.Fprintf(&b, "<p>%d rows, %d columns, %d rows with errors, %d skipped</p>",
			v.RowCount, v.ColumnCount, v.ErrorRowCount, len(v.SkippedRows))
		if v.Error != "" {
			fmt.Fprintf(&b, "<p class=\"alert\">%s</p>", templ.EscapeString(v.Error))
		}

		if len(v.PendingFixes) > 0 {
			fmt.Fprintf(&b, "<h2>Fix requests</h2><p>Auto-skip in %ds. %d more rows waiting.</p>", v.CountdownSeconds, v.BacklogRows)
			b.WriteString("<table><thead><tr><th>Row</th><th>Field</th><th>Value</th><th>Problem</th></tr></thead><tbody>")
			for _, f := range v.PendingFixes {
				fmt.Fprintf(&b, "<tr><td>%d</td><td>%s</td><td>%s</td><td>%s</td></tr>",
					f.RowIndex, templ.EscapeString(f.Field), templ.EscapeString(f.CurrentValue), templ.EscapeString(f.ErrorMessage))
			}
			b.WriteString("</tbody></table>")
		}

		if len(v.Artifacts) > 0 {
			b.WriteString("<h2>Artifacts</h2><ul>")
			for _, name := range v.Artifacts {
				href := "/api/runs/" + v.RunID + "/artifacts/" + name
				fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a></li>", templ.EscapeString(href), templ.EscapeString(name))
			}
			b.WriteString("</ul>")
		}
		b.WriteString("</section>")

		_, err := io.WriteString(w, b.String())
		return err
	})
}

// ErrorAlert renders a user-facing error with its support code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		fmt.Fprintf(&b, "<div class=\"alert\" role=\"alert\"><strong>%s</strong>", templ.EscapeString(message))
		if action != "" {
			fmt.Fprintf(&b, "<p>%s</p>", templ.EscapeString(action))
		}
		fmt.Fprintf(&b, "<small>Code: %s</small></div>", templ.EscapeString(code))
		_, err := io.WriteString(w, b.String())
		return err
	})
}
