package utils

import (
	"bytes"
	"fmt"
	"html/template"

	"gopkg.in/gomail.v2"
	"leadpilot/config"
	"leadpilot/models"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"duration": FormatDuration,
}).Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        td { padding: 4px 12px 4px 0; }
        .errors { color: #c0392b; }
    </style>
</head>
<body>
    <div class="header">
        <h2>{{.Subject}}</h2>
        <p>{{.Report.StartedAt.Format "2006-01-02 15:04"}} ({{duration .Report.Duration}})</p>
    </div>
    <table>
    {{- with .Report.Target}}
        <tr><td>Niche</td><td>{{.Niche}}</td></tr>
        <tr><td>Zone</td><td>{{.ZoneName}}</td></tr>
    {{- end}}
    {{- if eq .Report.Kind "scrape"}}
        <tr><td>Zones tried</td><td>{{.Report.ZonesTried}}</td></tr>
        <tr><td>Leads scraped</td><td>{{.Report.Scraped}}</td></tr>
        <tr><td>New leads</td><td>{{.Report.NewLeads}}</td></tr>
        <tr><td>Already contacted</td><td>{{.Report.Duplicates}}</td></tr>
        <tr><td>Without phone</td><td>{{.Report.Dropped}}</td></tr>
        <tr><td>Sent to webhook</td><td>{{if .Report.Dispatched}}yes{{else}}no{{end}}</td></tr>
        {{- if .Report.ArchivedOld}}
        <tr><td>Archived records</td><td>{{.Report.ArchivedOld}}</td></tr>
        {{- end}}
    {{- else}}
        <tr><td>Policy</td><td>{{.Report.Policy}}</td></tr>
        <tr><td>Channel</td><td>{{.Report.Channel}}</td></tr>
        {{- range $stage, $n := .Report.SentBy}}
        <tr><td>Sent {{$stage}}</td><td>{{$n}}</td></tr>
        {{- end}}
        <tr><td>Failed</td><td>{{.Report.Failed}}</td></tr>
    {{- end}}
    </table>
    {{- if .Report.Errors}}
    <div class="errors">
        <h3>Errors</h3>
        <ul>{{range .Report.Errors}}<li>{{.}}</li>{{end}}</ul>
    </div>
    {{- end}}
</body>
</html>`))

// ReportSender delivers run reports.
type ReportSender interface {
	SendReport(report models.RunReport) error
}

// ReportMailer emails run reports over SMTP.
type ReportMailer struct {
	dialer *gomail.Dialer
	from   string
	to     string
}

// NewReportMailer returns nil when SMTP or the report address is not set.
func NewReportMailer(cfg config.Config) *ReportMailer {
	if !cfg.SMTPEnabled() {
		return nil
	}
	return &ReportMailer{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		from:   cfg.FromEmail,
		to:     cfg.ReportEmail,
	}
}

// RenderReport builds the subject and HTML body for a report.
func RenderReport(report models.RunReport) (string, string, error) {
	var subject string
	switch report.Kind {
	case models.ReportScrape:
		subject = fmt.Sprintf("Daily scrape: %d new leads", report.NewLeads)
		if report.Target != nil {
			subject += " (" + report.Target.Niche + ", " + report.Target.ZoneName + ")"
		}
	default:
		subject = fmt.Sprintf("Follow-ups: %d sent, %d failed", report.TotalSent(), report.Failed)
	}

	var body bytes.Buffer
	err := reportTemplate.Execute(&body, struct {
		Subject string
		Report  models.RunReport
	}{subject, report})
	if err != nil {
		return "", "", fmt.Errorf("error executing template: %w", err)
	}
	return subject, body.String(), nil
}

func (m *ReportMailer) SendReport(report models.RunReport) error {
	subject, body, err := RenderReport(report)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", fmt.Sprintf("%s <%s>", "leadpilot", m.from))
	msg.SetHeader("To", m.to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("error sending report: %w", err)
	}
	LogEvent("report_sent", map[string]interface{}{"kind": report.Kind, "to": m.to})
	return nil
}
