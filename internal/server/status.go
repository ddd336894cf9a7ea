package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/dustin/go-humanize"

	"github.com/conneroisu/weave/internal/build"
	"github.com/conneroisu/weave/internal/version"
)

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status     string             `json:"status"`
	Version    string             `json:"version"`
	Build      *version.BuildInfo `json:"build"`
	Uptime     string             `json:"uptime"`
	Building   bool               `json:"building"`
	Clients    int                `json:"clients"`
	Components int                `json:"components"`
}

func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:     "healthy",
		Version:    version.GetShortVersion(),
		Build:      version.GetBuildInfo(),
		Uptime:     time.Since(s.startedAt).Round(time.Second).String(),
		Building:   s.builder.InProgress(),
		Clients:    s.hub.ClientCount(),
		Components: s.builder.Renderer().Registry().Count(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Warn(r.Context(), err, "encoding health response")
	}
}

func (s *PreviewServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page := statusPage(s.builder.LastResult(), s.builder.Renderer().Registry().Count(), s.hub.ClientCount())
	if err := page.Render(r.Context(), w); err != nil {
		s.logger.Warn(r.Context(), err, "rendering status page")
	}
}

// statusPage renders a summary of the last build.
func statusPage(result *build.BuildResult, components, clients int) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var err error
		write := func(format string, args ...interface{}) {
			if err == nil {
				_, err = fmt.Fprintf(w, format, args...)
			}
		}

		write(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>weave status</title></head><body>`)
		write(`<h1>weave %s</h1>`, templ.EscapeString(version.GetShortVersion()))
		write(`<p>%d components loaded, %d live-reload clients</p>`, components, clients)

		if result == nil {
			write(`<p>No build has completed yet.</p></body></html>`)

			return err
		}

		write(`<h2>Last build</h2><ul>`)
		write(`<li>Started %s</li>`, templ.EscapeString(humanize.Time(result.StartedAt)))
		write(`<li>Took %s</li>`, templ.EscapeString(result.Duration.Round(time.Millisecond).String()))
		write(`<li>%s documents expanded, %s files copied</li>`,
			humanize.Comma(int64(result.Documents)), humanize.Comma(int64(result.Copied)))
		write(`<li>%s written</li>`, templ.EscapeString(humanize.Bytes(uint64(result.BytesWritten))))
		write(`<li>Cache: %d hits, %d misses</li>`, result.CacheHits, result.CacheMisses)
		write(`</ul>`)

		if len(result.Failures) > 0 {
			write(`<h2>Unresolved components</h2><table><tr><th>Component</th><th>First seen in</th><th>Count</th><th>Files</th></tr>`)
			for _, f := range result.Failures {
				write(`<tr><td>%s</td><td>%s</td><td>%d</td><td>%d</td></tr>`,
					templ.EscapeString(f.Component), templ.EscapeString(f.FirstFile), f.Count, f.Files)
			}
			write(`</table>`)
		}

		if len(result.Errors) > 0 {
			write(`<h2>Errors</h2><ul>`)
			for _, e := range result.Errors {
				write(`<li>%s</li>`, templ.EscapeString(e.Error()))
			}
			write(`</ul>`)
		}

		write(`</body></html>`)

		return err
	})
}
