package utils

import (
	"context"
	"fmt"
	"time"

	"leadpilot/ledger"
	"leadpilot/models"
)

// DispatchResult counts what happened to one batch.
type DispatchResult struct {
	Received   int  `json:"received"`
	Dropped    int  `json:"dropped"`
	New        int  `json:"new"`
	Duplicates int  `json:"duplicates"`
	Sent       bool `json:"sent"`
	Disabled   bool `json:"disabled,omitempty"`

	// SentLeads are the leads that reached the webhook, with normalized phones
	SentLeads []models.Lead `json:"-"`
}

// Dispatcher hands new leads to the outbound webhook and records them in the
// ledger once the webhook accepted the batch.
type Dispatcher struct {
	ledger *ledger.Ledger
	sender WebhookSender
	source string
	now    func() time.Time
}

// NewDispatcher accepts a nil sender, which disables sending. Leads are still
// normalized and partitioned so the run can report them.
func NewDispatcher(l *ledger.Ledger, sender WebhookSender, source string) *Dispatcher {
	return &Dispatcher{ledger: l, sender: sender, source: source, now: time.Now}
}

// Dispatch normalizes phones, drops already contacted leads and posts the
// rest as one batch. Nothing is committed unless the webhook answered 200.
func (d *Dispatcher) Dispatch(ctx context.Context, leads []models.Lead) (DispatchResult, error) {
	log := Logger("dispatcher")
	result := DispatchResult{Received: len(leads)}

	normalized := make([]models.Lead, 0, len(leads))
	for _, l := range leads {
		l.Phone = NormalizePhone(l.Phone)
		if l.Phone == "" {
			result.Dropped++
			continue
		}
		normalized = append(normalized, l)
	}

	fresh, dups := d.ledger.FilterNew(normalized)
	result.New = len(fresh)
	result.Duplicates = len(dups)
	if len(dups) > 0 {
		log.WithField("duplicates", len(dups)).Info("Skipping already contacted leads")
	}

	if len(fresh) == 0 {
		log.Info("No new leads to send")
		return result, nil
	}

	if d.sender == nil {
		result.Disabled = true
		log.WithField("new", len(fresh)).Warn("Webhook not configured, leads were not sent")
		return result, nil
	}

	payload := BuildOutreachPayload(fresh, d.source, d.now())
	if err := d.sender.Send(ctx, payload); err != nil {
		LogError("webhook_dispatch_failed", err, map[string]interface{}{
			"leads":  len(fresh),
			"source": d.source,
		})
		return result, fmt.Errorf("dispatching %d leads: %w", len(fresh), err)
	}
	result.Sent = true
	result.SentLeads = fresh

	if err := d.ledger.Commit(fresh); err != nil {
		// The batch went out; memory already holds it so this process
		// will not resend it
		LogError("ledger_commit_failed", err, map[string]interface{}{"leads": len(fresh)})
	}

	LogEvent("leads_dispatched", map[string]interface{}{
		"sent":       len(fresh),
		"duplicates": len(dups),
		"dropped":    result.Dropped,
		"source":     d.source,
	})
	return result, nil
}
