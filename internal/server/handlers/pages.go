package handlers

import (
	"bytes"
	"html/template"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/pysugar/outlook-relay/internal/apperrors"
	"github.com/pysugar/outlook-relay/internal/auth"
	"github.com/pysugar/outlook-relay/internal/auth/microsoft"
	"github.com/pysugar/outlook-relay/internal/auth/session"
	"github.com/pysugar/outlook-relay/internal/db"
	"github.com/pysugar/outlook-relay/internal/db/models"
	"github.com/pysugar/outlook-relay/internal/version"
)

var pageFuncs = template.FuncMap{
	"when": func(t *time.Time) string {
		if t == nil {
			return "never"
		}
		return t.UTC().Format("2006-01-02 15:04 UTC")
	},
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.AppName}}</title></head>
<body>
<h1>{{.AppName}}</h1>
{{- if .Email}}
<p>Signed in as {{.Email}}. <a href="/dashboard">Open dashboard</a> · <a href="/auth/logout">Sign out</a></p>
{{- else}}
<p>Relay your Outlook mail, summarized or translated, to any address.</p>
<p><a href="/auth/login">Sign in with Microsoft</a></p>
{{- end}}
</body>
</html>
`))

var dashboardTemplate = template.Must(template.New("dashboard").Funcs(pageFuncs).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.AppName}} · Dashboard</title></head>
<body>
<h1>{{.AppName}}</h1>
<p>{{.User.Name}} &lt;{{.User.Email}}&gt; · <a href="/auth/logout">Sign out</a></p>

<h2>Messages</h2>
<ul>
<li>Stored: {{.Counts.Total}}</li>
<li>Processed: {{.Counts.Processed}}</li>
<li>Relayed: {{.Counts.Sent}}</li>
</ul>

<h2>Settings</h2>
<ul>
<li>Folders: {{range $i, $f := .Config.Folders}}{{if $i}}, {{end}}{{$f}}{{end}}</li>
<li>Days to scrape: {{.Config.DaysToScrape}}</li>
<li>Recipient: {{if .Config.Recipient}}{{.Config.Recipient}}{{else}}not set{{end}}</li>
<li>Transform: {{if .Config.AIEnabled}}{{.Config.TransformMode}} ({{.Config.TargetLanguage}}){{else}}off{{end}}</li>
<li>Automatic relay: {{if .Config.AutoFetch}}every {{.Config.FetchIntervalHours}}h, last run {{when .Config.LastAutoRunAt}}{{else}}off{{end}}</li>
</ul>

<h2>Recent fetches</h2>
<table>
<tr><th>Finished</th><th>Trigger</th><th>Status</th><th>New</th><th>Total</th></tr>
{{- range .FetchLogs}}
<tr><td>{{when .FinishedAt}}</td><td>{{.Trigger}}</td><td>{{.Status}}</td><td>{{.NewEmails}}</td><td>{{.TotalEmails}}</td></tr>
{{- end}}
</table>
</body>
</html>
`))

func renderHTML(w http.ResponseWriter, r *http.Request, tmpl *template.Template, data interface{}) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		apperrors.Write(w, r, apperrors.NewInternal(apperrors.ErrCodeUnexpectedError, "Failed to render page", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// IndexHandler serves the landing page.
func IndexHandler(appName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromContext(r.Context())
		renderHTML(w, r, indexTemplate, map[string]string{
			"AppName": appName,
			"Email":   sess.Get(microsoft.SessionUserEmail),
		})
	}
}

// HealthHandler reports liveness.
func HealthHandler(appName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"app":     appName,
			"version": version.Version,
		})
	}
}

type dashboardData struct {
	AppName   string
	User      *models.User
	Config    *models.UserConfig
	Counts    db.MessageCounts
	FetchLogs []models.FetchLog
}

// DashboardHandler serves the signed-in summary page.
func DashboardHandler(database *gorm.DB, appName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := auth.UserFromContext(r.Context())

		cfg, err := db.GetOrCreateConfig(database, user.ID)
		if err != nil {
			apperrors.Write(w, r, apperrors.NewInternal(apperrors.ErrCodeDatabaseError, "Failed to load configuration", err))
			return
		}
		counts, err := db.CountMessages(database, user.ID)
		if err != nil {
			apperrors.Write(w, r, apperrors.NewInternal(apperrors.ErrCodeDatabaseError, "Failed to count messages", err))
			return
		}
		fetchLogs, err := db.RecentFetchLogs(database, user.ID, 10)
		if err != nil {
			apperrors.Write(w, r, apperrors.NewInternal(apperrors.ErrCodeDatabaseError, "Failed to load fetch logs", err))
			return
		}

		renderHTML(w, r, dashboardTemplate, dashboardData{
			AppName:   appName,
			User:      user,
			Config:    cfg,
			Counts:    counts,
			FetchLogs: fetchLogs,
		})
	}
}
