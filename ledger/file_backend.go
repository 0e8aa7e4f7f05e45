package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"leadpilot/models"
)

// legacyTimeLayouts are the naive timestamps older tracker files contain.
var legacyTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

type fileRecord struct {
	Phone           string `json:"phone,omitempty"`
	ContactDate     string `json:"contact_date"`
	LeadName        string `json:"lead_name"`
	FollowupMessage string `json:"followup_message"`
	LeadMagnet      string `json:"lead_magnet,omitempty"`
	FollowupSent    bool   `json:"followup_sent"`
	Day1Sent        *bool  `json:"day1_sent,omitempty"`
	Day2Sent        *bool  `json:"day2_sent,omitempty"`
	Niche           string `json:"nicho"`
}

type fileDocument struct {
	Phones      []string              `json:"phones"`
	LeadsData   map[string]fileRecord `json:"leads_data"`
	TotalCount  int                   `json:"total_count"`
	LastUpdated string                `json:"last_updated"`
}

// FileBackend stores the ledger as one JSON document. Saves go to a temp
// file in the same directory which is then renamed over the target, so a
// crash mid-write leaves the previous document intact.
type FileBackend struct {
	Path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{Path: strings.TrimSpace(path)}
}

// NewFileLedger opens a ledger stored in a JSON file.
func NewFileLedger(path string, opts ...Option) *Ledger {
	return Open(NewFileBackend(path), opts...)
}

func (b *FileBackend) Load() (*Document, error) {
	data, err := os.ReadFile(b.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var fd fileDocument
	if err := json.Unmarshal(data, &fd); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", b.Path, err)
	}

	loadedAt := time.Now()
	doc := &Document{
		Phones:  make(map[string]struct{}, len(fd.Phones)),
		Records: make(map[string]*models.ContactRecord, len(fd.LeadsData)),
	}
	if t, ok := parseTime(fd.LastUpdated); ok {
		doc.LastUpdated = t
	}
	for _, phone := range fd.Phones {
		if phone != "" {
			doc.Phones[phone] = struct{}{}
		}
	}
	for phone, fr := range fd.LeadsData {
		if phone == "" {
			continue
		}
		doc.Phones[phone] = struct{}{}
		doc.Records[phone] = fr.toRecord(phone, loadedAt)
	}
	return doc, nil
}

func (b *FileBackend) Save(doc *Document) error {
	fd := fileDocument{
		Phones:    make([]string, 0, len(doc.Phones)),
		LeadsData: make(map[string]fileRecord, len(doc.Records)),
	}
	for phone := range doc.Phones {
		fd.Phones = append(fd.Phones, phone)
	}
	sort.Strings(fd.Phones)
	for phone, rec := range doc.Records {
		fd.LeadsData[phone] = newFileRecord(rec)
	}
	fd.TotalCount = len(fd.Phones)
	if !doc.LastUpdated.IsZero() {
		fd.LastUpdated = doc.LastUpdated.Format(time.RFC3339)
	}

	data, err := json.MarshalIndent(fd, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(b.Path, data)
}

func newFileRecord(rec *models.ContactRecord) fileRecord {
	day1, day2 := rec.Day1Sent, rec.Day2Sent
	return fileRecord{
		Phone:           rec.Phone,
		ContactDate:     rec.ContactDate.Format(time.RFC3339Nano),
		LeadName:        rec.LeadName,
		FollowupMessage: rec.FollowupMessage,
		LeadMagnet:      rec.LeadMagnetText,
		FollowupSent:    rec.FollowupSent,
		Day1Sent:        &day1,
		Day2Sent:        &day2,
		Niche:           rec.Niche,
	}
}

func (fr fileRecord) toRecord(phone string, fallback time.Time) *models.ContactRecord {
	contactDate, ok := parseTime(fr.ContactDate)
	if !ok {
		// An unreadable date must not make the record look overdue
		contactDate = fallback
	}
	rec := &models.ContactRecord{
		Phone:           phone,
		ContactDate:     contactDate,
		LeadName:        fr.LeadName,
		Niche:           fr.Niche,
		FollowupMessage: fr.FollowupMessage,
		LeadMagnetText:  fr.LeadMagnet,
		FollowupSent:    fr.FollowupSent,
	}
	if fr.Day1Sent != nil {
		rec.Day1Sent = *fr.Day1Sent
	}
	if fr.Day2Sent != nil {
		rec.Day2Sent = *fr.Day2Sent
	}
	// Single-follow-up files: a finished sequence means every stage went out
	if fr.Day1Sent == nil && fr.Day2Sent == nil && fr.FollowupSent {
		rec.Day1Sent = true
		rec.Day2Sent = true
	}
	return rec
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range legacyTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// AppendArchive adds records to the JSON array stored at path.
func AppendArchive(path string, records []models.ContactRecord) error {
	var existing []models.ContactRecord
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf("decoding archive %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return err
	}

	existing = append(existing, records...)
	out, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, out)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
