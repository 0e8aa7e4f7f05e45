package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"leadpilot/config"
	"leadpilot/ledger"
	"leadpilot/models"
	"leadpilot/utils"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

type fakeWebhook struct {
	payloads []models.WebhookPayload
	err      error
}

func (w *fakeWebhook) Send(_ context.Context, p models.WebhookPayload) error {
	w.payloads = append(w.payloads, p)
	return w.err
}

type fakeSender struct {
	failPhones map[string]bool
	sent       []string
}

func (s *fakeSender) SendText(_ context.Context, phone, _ string) error {
	if s.failPhones[phone] {
		return errors.New("instance disconnected")
	}
	s.sent = append(s.sent, phone)
	return nil
}

type fakeReporter struct{ reports []models.RunReport }

func (r *fakeReporter) SendReport(report models.RunReport) error {
	r.reports = append(r.reports, report)
	return nil
}

// seededLedger holds the given phones contacted ageDays ago. The returned
// clock drives both the ledger and the worker.
func seededLedger(t *testing.T, ageDays int, phones ...string) (*ledger.Ledger, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	l := ledger.Open(nil, ledger.WithClock(clock.Now))

	leads := make([]models.Lead, 0, len(phones))
	for _, p := range phones {
		leads = append(leads, models.Lead{Phone: p, Name: "Negocio " + p, Niche: "spa"})
	}
	require.NoError(t, l.Commit(leads))
	clock.t = clock.t.Add(time.Duration(ageDays)*24*time.Hour + time.Hour)
	return l, clock
}

func newTestFollowupWorker(l *ledger.Ledger, clock *fakeClock, opts FollowupOptions) *FollowupWorker {
	fw := NewFollowupWorker(l, opts)
	fw.now = clock.Now
	fw.sleep = func(context.Context, time.Duration) error { return nil }
	fw.gap = func() time.Duration { return 0 }
	return fw
}

func TestFollowupRunSendsAllDueStagesOnce(t *testing.T) {
	l, clock := seededLedger(t, 6, "523311111111")
	hook := &fakeWebhook{}
	reporter := &fakeReporter{}
	fw := newTestFollowupWorker(l, clock, FollowupOptions{Webhook: hook, Reporter: reporter})

	report, err := fw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalSent())
	require.Len(t, hook.payloads, 3)
	for i, stage := range models.Stages {
		p := hook.payloads[i]
		assert.True(t, p.IsFollowup)
		assert.Equal(t, utils.SourceFollowupSender, p.Source)
		require.Len(t, p.Leads, 1)
		assert.Equal(t, string(stage), p.Leads[0].Stage)
		assert.Equal(t, 6, p.Leads[0].DaysSinceContact)
		assert.Contains(t, p.Leads[0].Message, "Negocio 523311111111")
	}

	rec, ok := l.Get("523311111111")
	require.True(t, ok)
	assert.True(t, rec.Day1Sent && rec.Day2Sent && rec.FollowupSent)
	require.Len(t, reporter.reports, 1)

	report, err = fw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalSent())
	assert.Len(t, hook.payloads, 3, "second run sends nothing")
	assert.Len(t, reporter.reports, 1, "empty runs are not reported")
}

func TestFollowupRespectsThresholds(t *testing.T) {
	l, clock := seededLedger(t, 1, "523311111111")
	hook := &fakeWebhook{}
	fw := newTestFollowupWorker(l, clock, FollowupOptions{Webhook: hook})

	report, err := fw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.SentBy[models.StageDay1])
	assert.Equal(t, 0, report.SentBy[models.StageDay2])
	require.Len(t, hook.payloads, 1)
}

func TestFollowupWebhookFailureMarksNothing(t *testing.T) {
	l, clock := seededLedger(t, 6, "523311111111", "523322222222")
	hook := &fakeWebhook{err: &utils.WebhookStatusError{Status: 500}}
	fw := newTestFollowupWorker(l, clock, FollowupOptions{Webhook: hook})

	report, err := fw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalSent())
	assert.Equal(t, 6, report.Failed)
	assert.Len(t, report.Errors, 3)

	for _, phone := range []string{"523311111111", "523322222222"} {
		rec, _ := l.Get(phone)
		assert.False(t, rec.Day1Sent || rec.Day2Sent || rec.FollowupSent)
	}
}

func TestFollowupDirectIsolatesFailures(t *testing.T) {
	l, clock := seededLedger(t, 1, "523311111111", "523322222222")
	sender := &fakeSender{failPhones: map[string]bool{"523311111111": true}}
	fw := newTestFollowupWorker(l, clock, FollowupOptions{Channel: config.ChannelDirect, Sender: sender})

	report, err := fw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.SentBy[models.StageDay1])
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []string{"523322222222"}, sender.sent)

	failed, _ := l.Get("523311111111")
	assert.False(t, failed.Day1Sent)
	ok, _ := l.Get("523322222222")
	assert.True(t, ok.Day1Sent)
}

func TestFollowupSequentialWaitsForPreviousStage(t *testing.T) {
	phone := "523311111111"

	sequential, clock := seededLedger(t, 2, phone)
	fw := newTestFollowupWorker(sequential, clock, FollowupOptions{
		Policy:  config.PolicySequential,
		Channel: config.ChannelDirect,
		Sender:  &fakeSender{failPhones: map[string]bool{phone: true}},
	})
	report, err := fw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed, "day2 is not attempted while day1 is unsent")

	independent, clock2 := seededLedger(t, 2, phone)
	fw = newTestFollowupWorker(independent, clock2, FollowupOptions{
		Policy:  config.PolicyIndependent,
		Channel: config.ChannelDirect,
		Sender:  &fakeSender{failPhones: map[string]bool{phone: true}},
	})
	report, err = fw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
}

func TestFollowupSequentialChainsWithinOneRun(t *testing.T) {
	l, clock := seededLedger(t, 2, "523311111111")
	hook := &fakeWebhook{}
	fw := newTestFollowupWorker(l, clock, FollowupOptions{Policy: config.PolicySequential, Webhook: hook})

	report, err := fw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.SentBy[models.StageDay1])
	assert.Equal(t, 1, report.SentBy[models.StageDay2])
	assert.Equal(t, 0, report.SentBy[models.StageDay5])
}

func TestFollowupChannelUnavailable(t *testing.T) {
	l, clock := seededLedger(t, 6, "523311111111")

	_, err := newTestFollowupWorker(l, clock, FollowupOptions{}).RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrChannelUnavailable)

	_, err = newTestFollowupWorker(l, clock, FollowupOptions{Channel: config.ChannelDirect, Webhook: &fakeWebhook{}}).RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrChannelUnavailable)

	rec, _ := l.Get("523311111111")
	assert.False(t, rec.Day1Sent)
}

func TestFollowupRejectsOverlappingRuns(t *testing.T) {
	l, clock := seededLedger(t, 6, "523311111111")
	fw := newTestFollowupWorker(l, clock, FollowupOptions{Webhook: &fakeWebhook{}})
	fw.running.Lock()
	defer fw.running.Unlock()

	_, err := fw.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
}
