package utils

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"leadpilot/config"
	"leadpilot/models"
)

func TestWriteLeadsCSV(t *testing.T) {
	var buf bytes.Buffer
	leads := []models.Lead{
		{Name: "Clinica, Sol", Phone: "523312345678", Niche: "dentista", Message: "hola\nmundo"},
	}
	require.NoError(t, WriteLeadsCSV(&buf, leads))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, leadCSVHeader, rows[0])
	assert.Equal(t, "Clinica, Sol", rows[1][0])
	assert.Equal(t, "523312345678", rows[1][3])
	assert.Equal(t, "dentista", rows[1][8])
	assert.Equal(t, "hola\nmundo", rows[1][9])
}

func TestWriteLeadsJSONNeverNull(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLeadsJSON(&buf, nil))
	assert.JSONEq(t, "[]", buf.String())

	buf.Reset()
	require.NoError(t, WriteLeadsJSON(&buf, []models.Lead{{Name: "A", Niche: "spa"}}))
	var out []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "spa", out[0]["nicho"])
}

func TestRenderReport(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	subject, body, err := RenderReport(models.RunReport{
		Kind:       models.ReportScrape,
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Target:     &models.RotationTarget{Niche: "barberia", ZoneName: "Chapultepec"},
		ZonesTried: 2,
		NewLeads:   4,
		Dispatched: true,
		Errors:     []string{"zone 1: <timeout>"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Daily scrape: 4 new leads (barberia, Chapultepec)", subject)
	assert.Contains(t, body, "Chapultepec")
	assert.Contains(t, body, "1.5 minutes")
	assert.Contains(t, body, "&lt;timeout&gt;")

	subject, body, err = RenderReport(models.RunReport{
		Kind:    models.ReportFollowup,
		Policy:  "sequential",
		Channel: "direct",
		SentBy:  map[models.Stage]int{models.StageDay1: 3, models.StageDay2: 1},
		Failed:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, "Follow-ups: 4 sent, 2 failed", subject)
	assert.Contains(t, body, "Sent day1")
	assert.Contains(t, body, "sequential")
}

func TestNewReportMailerNeedsSMTP(t *testing.T) {
	assert.Nil(t, NewReportMailer(config.Config{SMTPHost: "smtp.example.com"}))

	cfg := config.Config{SMTPHost: "smtp.example.com", SMTPPort: 587}
	cfg.ReportEmail = "ops@example.com"
	assert.NotNil(t, NewReportMailer(cfg))
}
