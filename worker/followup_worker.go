package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"leadpilot/config"
	"leadpilot/ledger"
	"leadpilot/models"
	"leadpilot/utils"
)

const (
	directSendGapMin = 2 * time.Second
	directSendGapMax = 4 * time.Second
)

var (
	ErrChannelUnavailable = errors.New("follow-up channel is not configured")
	ErrRunInProgress      = errors.New("a follow-up run is already in progress")
)

// FollowupOptions selects how follow-ups are gated and delivered.
type FollowupOptions struct {
	Policy   string
	Channel  string
	Interval time.Duration
	Webhook  utils.WebhookSender
	Sender   utils.MessageSender
	Reporter utils.ReportSender
}

// FollowupWorker sends the day1/day2/day5 escalation messages for contacted
// leads. A stage is marked sent only for records it actually reached.
type FollowupWorker struct {
	ledger *ledger.Ledger
	opts   FollowupOptions
	logger *logrus.Entry

	// running keeps the ticker and the API from sending the same stage twice
	running sync.Mutex

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	gap   func() time.Duration
}

func NewFollowupWorker(l *ledger.Ledger, opts FollowupOptions) *FollowupWorker {
	if opts.Policy == "" {
		opts.Policy = config.PolicyIndependent
	}
	if opts.Channel == "" {
		opts.Channel = config.ChannelWebhook
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	return &FollowupWorker{
		ledger: l,
		opts:   opts,
		logger: utils.Logger("followup_worker"),
		now:    time.Now,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
		gap: func() time.Duration { return utils.RandomDuration(directSendGapMin, directSendGapMax) },
	}
}

func (fw *FollowupWorker) Start(ctx context.Context) {
	fw.logger.WithField("interval", fw.opts.Interval).Info("Starting follow-up worker...")
	ticker := time.NewTicker(fw.opts.Interval)

	for {
		select {
		case <-ticker.C:
			if _, err := fw.RunOnce(ctx); err != nil {
				fw.logger.WithError(err).Error("Follow-up run failed")
			}
		case <-ctx.Done():
			fw.logger.Info("Stopping follow-up worker...")
			ticker.Stop()
			return
		}
	}
}

// RunOnce evaluates the stages in order. Under the sequential policy a
// stage only reaches records whose previous stage is already sent, which
// includes stages sent earlier in the same run.
func (fw *FollowupWorker) RunOnce(ctx context.Context) (models.RunReport, error) {
	if !fw.running.TryLock() {
		return models.RunReport{Kind: models.ReportFollowup}, ErrRunInProgress
	}
	defer fw.running.Unlock()

	report := models.RunReport{
		Kind:      models.ReportFollowup,
		StartedAt: fw.now(),
		Policy:    fw.opts.Policy,
		Channel:   fw.opts.Channel,
		SentBy:    make(map[models.Stage]int, len(models.Stages)),
	}

	switch {
	case fw.opts.Channel == config.ChannelWebhook && fw.opts.Webhook == nil,
		fw.opts.Channel == config.ChannelDirect && fw.opts.Sender == nil:
		return report, fmt.Errorf("%w: %s", ErrChannelUnavailable, fw.opts.Channel)
	}

	for _, stage := range models.Stages {
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, err.Error())
			break
		}

		due := fw.eligible(stage)
		if len(due) == 0 {
			continue
		}
		fw.logger.WithFields(logrus.Fields{"stage": stage, "due": len(due)}).Info("Sending follow-ups")

		var sent, failed int
		var err error
		if fw.opts.Channel == config.ChannelDirect {
			sent, failed, err = fw.sendDirect(ctx, stage, due)
		} else {
			sent, failed, err = fw.sendWebhook(ctx, stage, due)
		}
		report.SentBy[stage] += sent
		report.Failed += failed
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", stage, err))
		}
	}

	report.FinishedAt = fw.now()
	utils.LogEvent("followups_completed", map[string]interface{}{
		"policy":  report.Policy,
		"channel": report.Channel,
		"sent":    report.TotalSent(),
		"failed":  report.Failed,
	})
	if fw.opts.Reporter != nil && (report.TotalSent() > 0 || report.Failed > 0) {
		if err := fw.opts.Reporter.SendReport(report); err != nil {
			utils.LogError("report_send_failed", err, map[string]interface{}{"kind": report.Kind})
		}
	}

	if report.TotalSent() == 0 && report.Failed == 0 {
		stats := fw.ledger.Stats()
		fw.logger.WithFields(logrus.Fields{
			"total_contacted":   stats.TotalContacted,
			"pending_followups": stats.PendingFollowups,
		}).Info("No follow-ups due")
	}
	return report, nil
}

func (fw *FollowupWorker) eligible(stage models.Stage) []models.ContactRecord {
	due := fw.ledger.RecordsDueForFollowup(stage, stage.ThresholdDays())
	if fw.opts.Policy != config.PolicySequential {
		return due
	}
	prev, ok := stage.Previous()
	if !ok {
		return due
	}
	out := due[:0]
	for _, rec := range due {
		if rec.StageSent(prev) {
			out = append(out, rec)
		}
	}
	return out
}

// sendWebhook posts the whole stage cohort in one batch. The automation
// either accepts the batch or not, so marking is all or nothing.
func (fw *FollowupWorker) sendWebhook(ctx context.Context, stage models.Stage, due []models.ContactRecord) (int, int, error) {
	now := fw.now()
	leads := make([]models.WebhookLead, 0, len(due))
	phones := make([]string, 0, len(due))
	for _, rec := range due {
		leads = append(leads, models.WebhookLead{
			Phone:            rec.Phone,
			Message:          utils.RenderStageMessage(stage, rec),
			FollowupMessage:  rec.FollowupMessage,
			LeadName:         rec.LeadName,
			Niche:            rec.Niche,
			Stage:            string(stage),
			DaysSinceContact: rec.DaysSinceContact(now),
		})
		phones = append(phones, rec.Phone)
	}

	payload := models.WebhookPayload{
		Leads:      leads,
		TotalCount: len(leads),
		Source:     utils.SourceFollowupSender,
		IsFollowup: true,
		Timestamp:  now.Format(time.RFC3339),
	}
	if err := fw.opts.Webhook.Send(ctx, payload); err != nil {
		utils.LogError("followup_webhook_failed", err, map[string]interface{}{
			"stage": string(stage),
			"leads": len(leads),
		})
		return 0, len(leads), err
	}

	if err := fw.ledger.MarkStageSent(phones, stage); err != nil {
		utils.LogError("ledger_mark_failed", err, map[string]interface{}{"stage": string(stage)})
	}
	return len(leads), 0, nil
}

// sendDirect messages each record on its own and marks it as soon as the
// send succeeds. One failed record does not stop the others.
func (fw *FollowupWorker) sendDirect(ctx context.Context, stage models.Stage, due []models.ContactRecord) (int, int, error) {
	var sent, failed int
	var lastErr error

	for i, rec := range due {
		if i > 0 {
			if err := fw.sleep(ctx, fw.gap()); err != nil {
				return sent, failed, err
			}
		}

		msg := utils.RenderStageMessage(stage, rec)
		if err := fw.opts.Sender.SendText(ctx, rec.Phone, msg); err != nil {
			failed++
			lastErr = err
			fw.logger.WithError(err).WithFields(logrus.Fields{
				"stage": stage,
				"phone": rec.Phone,
			}).Warn("Follow-up send failed")
			continue
		}
		sent++

		if err := fw.ledger.MarkStageSent([]string{rec.Phone}, stage); err != nil {
			utils.LogError("ledger_mark_failed", err, map[string]interface{}{
				"stage": string(stage),
				"phone": rec.Phone,
			})
		}
	}

	if failed > 0 {
		return sent, failed, fmt.Errorf("%d of %d sends failed, last: %w", failed, len(due), lastErr)
	}
	return sent, failed, nil
}
