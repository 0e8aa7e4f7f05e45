// Package ledger keeps the persisted history of every phone number that has
// been messaged, together with its follow-up stage flags.
//
// The whole ledger lives in memory and is written back in full after each
// mutating call. A single process owns a ledger; running two processes on
// the same storage loses updates.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"leadpilot/models"
)

var ErrInvalidStage = errors.New("invalid follow-up stage")

// Document is the full persisted state. Phones is the membership set used
// for dedup; Records holds the detail of every record still in rotation.
// A phone can be in Phones without a record once that record is archived.
type Document struct {
	Phones      map[string]struct{}
	Records     map[string]*models.ContactRecord
	LastUpdated time.Time
}

// Backend loads and stores a whole Document. Load returns (nil, nil) when
// nothing has been stored yet.
type Backend interface {
	Load() (*Document, error)
	Save(doc *Document) error
}

type Option func(*Ledger)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

type Ledger struct {
	mu          sync.Mutex
	backend     Backend
	phones      map[string]struct{}
	records     map[string]*models.ContactRecord
	lastUpdated time.Time
	now         func() time.Time
	log         *logrus.Entry
}

// Open loads the ledger from backend. A load failure is logged and the
// ledger starts empty, so a missing or corrupt file never stops a run.
func Open(backend Backend, opts ...Option) *Ledger {
	l := &Ledger{
		backend: backend,
		phones:  make(map[string]struct{}),
		records: make(map[string]*models.ContactRecord),
		now:     time.Now,
		log:     logrus.WithField("component", "ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}

	if backend == nil {
		return l
	}

	doc, err := backend.Load()
	if err != nil {
		l.log.WithError(err).Warn("Could not load ledger, starting empty")
		return l
	}
	if doc == nil {
		l.log.Info("No ledger found, starting empty")
		return l
	}

	for phone := range doc.Phones {
		l.phones[phone] = struct{}{}
	}
	for phone, rec := range doc.Records {
		if phone == "" || rec == nil {
			continue
		}
		rec.Phone = phone
		l.records[phone] = rec
		l.phones[phone] = struct{}{}
	}
	l.lastUpdated = doc.LastUpdated
	l.log.WithFields(logrus.Fields{
		"phones":  len(l.phones),
		"records": len(l.records),
	}).Info("Ledger loaded")
	return l
}

// IsContacted reports whether phone has ever been messaged.
func (l *Ledger) IsContacted(phone string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.phones[phone]
	return ok
}

// FilterNew splits leads into those never contacted and the rest. Leads
// without a phone, and repeats of a phone within the same batch, count as
// duplicates.
func (l *Ledger) FilterNew(leads []models.Lead) (fresh, duplicates []models.Lead) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]struct{}, len(leads))
	for _, lead := range leads {
		if lead.Phone == "" {
			duplicates = append(duplicates, lead)
			continue
		}
		if _, ok := l.phones[lead.Phone]; ok {
			duplicates = append(duplicates, lead)
			continue
		}
		if _, ok := seen[lead.Phone]; ok {
			duplicates = append(duplicates, lead)
			continue
		}
		seen[lead.Phone] = struct{}{}
		fresh = append(fresh, lead)
	}
	return fresh, duplicates
}

// Commit records every lead with a phone as contacted now, resetting its
// stage flags, then persists the ledger once for the whole batch. The
// in-memory state is kept even when persisting fails.
func (l *Ledger) Commit(leads []models.Lead) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	committed := 0
	for _, lead := range leads {
		if lead.Phone == "" {
			continue
		}
		l.records[lead.Phone] = &models.ContactRecord{
			Phone:           lead.Phone,
			ContactDate:     now,
			LeadName:        lead.Name,
			Niche:           lead.Niche,
			FollowupMessage: lead.FollowupMessage,
			LeadMagnetText:  lead.LeadMagnet,
		}
		l.phones[lead.Phone] = struct{}{}
		committed++
	}
	if committed == 0 {
		return nil
	}
	l.lastUpdated = now
	return l.persistLocked()
}

// RecordsDueForFollowup returns copies of the records at least thresholdDays
// old whose flag for stage is still unset, oldest first.
func (l *Ledger) RecordsDueForFollowup(stage models.Stage, thresholdDays int) []models.ContactRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	threshold := time.Duration(thresholdDays) * 24 * time.Hour

	var due []models.ContactRecord
	for _, rec := range l.records {
		if rec.StageSent(stage) {
			continue
		}
		if now.Sub(rec.ContactDate) < threshold {
			continue
		}
		due = append(due, *rec)
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].ContactDate.Equal(due[j].ContactDate) {
			return due[i].ContactDate.Before(due[j].ContactDate)
		}
		return due[i].Phone < due[j].Phone
	})
	return due
}

// Get returns a copy of the record for phone.
func (l *Ledger) Get(phone string) (models.ContactRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[phone]
	if !ok {
		return models.ContactRecord{}, false
	}
	return *rec, true
}

// MarkStageSent flags stage as sent for each known phone and persists.
// Unknown phones are ignored.
func (l *Ledger) MarkStageSent(phones []string, stage models.Stage) error {
	if !stage.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStage, stage)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	changed := 0
	for _, phone := range phones {
		rec, ok := l.records[phone]
		if !ok || rec.StageSent(stage) {
			continue
		}
		rec.MarkStage(stage)
		changed++
	}
	if changed == 0 {
		return nil
	}
	l.lastUpdated = l.now()
	return l.persistLocked()
}

// Stats summarises the ledger.
func (l *Ledger) Stats() models.LedgerStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := models.LedgerStats{
		TotalContacted: len(l.phones),
		ActiveRecords:  len(l.records),
		SentByStage:    make(map[models.Stage]int, len(models.Stages)),
		ByNiche:        make(map[string]int),
	}
	for _, rec := range l.records {
		if !rec.FollowupSent {
			stats.PendingFollowups++
		}
		for _, stage := range models.Stages {
			if rec.StageSent(stage) {
				stats.SentByStage[stage]++
			}
		}
		stats.ByNiche[rec.Niche]++
	}
	if !l.lastUpdated.IsZero() {
		last := l.lastUpdated
		stats.LastUpdated = &last
	}
	return stats
}

// Archive moves records first contacted before cutoff into the archive file
// at archivePath. Their phones stay in the membership set, so they are still
// never messaged again.
func (l *Ledger) Archive(cutoff time.Time, archivePath string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var old []models.ContactRecord
	for _, rec := range l.records {
		if rec.ContactDate.Before(cutoff) {
			old = append(old, *rec)
		}
	}
	if len(old) == 0 {
		return 0, nil
	}
	sort.Slice(old, func(i, j int) bool { return old[i].Phone < old[j].Phone })

	if err := AppendArchive(archivePath, old); err != nil {
		return 0, fmt.Errorf("writing archive: %w", err)
	}
	for _, rec := range old {
		delete(l.records, rec.Phone)
	}
	l.lastUpdated = l.now()
	return len(old), l.persistLocked()
}

func (l *Ledger) persistLocked() error {
	if l.backend == nil {
		return nil
	}
	doc := &Document{
		Phones:      l.phones,
		Records:     l.records,
		LastUpdated: l.lastUpdated,
	}
	if err := l.backend.Save(doc); err != nil {
		return fmt.Errorf("persisting ledger: %w", err)
	}
	return nil
}
