package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"

	"jobtrack/api/internal/jobs"
)

//go:embed templates/*.html
var templateFS embed.FS

var ticketTemplate = template.Must(template.New("ticket.html").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t time.Time, layout string) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(layout)
	},
	"deref": func(value *string) string {
		if value == nil {
			return ""
		}
		return *value
	},
}).ParseFS(templateFS, "templates/ticket.html"))

// TicketData is what the job ticket template renders.
type TicketData struct {
	Job         jobs.Job
	Activities  []jobs.Activity
	GeneratedAt time.Time
}

func RenderTicketHTML(data TicketData) (string, error) {
	var buf bytes.Buffer
	if err := ticketTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
