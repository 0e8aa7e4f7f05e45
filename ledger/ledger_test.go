package ledger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"leadpilot/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func lead(phone, name string) models.Lead {
	return models.Lead{Phone: phone, Name: name, Niche: "dentista", FollowupMessage: "hola " + name, LeadMagnet: "guia"}
}

func TestCommitMarksContactedAndSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.json")
	clock := newClock()

	l := NewFileLedger(path, WithClock(clock.Now))
	assert.False(t, l.IsContacted("523312345678"))

	require.NoError(t, l.Commit([]models.Lead{lead("523312345678", "Clinica Sol"), lead("523398765432", "Dental Luna")}))
	assert.True(t, l.IsContacted("523312345678"))
	assert.True(t, l.IsContacted("523398765432"))

	reloaded := NewFileLedger(path, WithClock(clock.Now))
	assert.True(t, reloaded.IsContacted("523312345678"))
	assert.True(t, reloaded.IsContacted("523398765432"))

	rec, ok := reloaded.Get("523312345678")
	require.True(t, ok)
	assert.Equal(t, "Clinica Sol", rec.LeadName)
	assert.Equal(t, "guia", rec.LeadMagnetText)
	assert.True(t, rec.ContactDate.Equal(clock.Now()))
	assert.False(t, rec.Day1Sent || rec.Day2Sent || rec.FollowupSent)
}

func TestCommitSkipsEmptyPhones(t *testing.T) {
	l := Open(nil)
	require.NoError(t, l.Commit([]models.Lead{lead("", "Sin telefono")}))
	assert.Equal(t, 0, l.Stats().TotalContacted)
}

func TestFilterNewIsPartition(t *testing.T) {
	l := Open(nil)
	require.NoError(t, l.Commit([]models.Lead{lead("523311111111", "A")}))

	input := []models.Lead{
		lead("523311111111", "A again"),
		lead("523322222222", "B"),
		lead("", "No phone"),
		lead("523322222222", "B twice"),
		lead("523333333333", "C"),
	}
	fresh, dups := l.FilterNew(input)

	assert.Len(t, fresh, 2)
	assert.Len(t, dups, 3)
	assert.Equal(t, len(input), len(fresh)+len(dups))

	freshPhones := map[string]bool{}
	for _, ld := range fresh {
		assert.NotEmpty(t, ld.Phone)
		assert.False(t, freshPhones[ld.Phone], "phone %s returned twice as new", ld.Phone)
		freshPhones[ld.Phone] = true
	}
	assert.Equal(t, "B", fresh[0].Name)
	assert.Equal(t, "C", fresh[1].Name)
}

func TestRecordsDueForFollowup(t *testing.T) {
	clock := newClock()
	l := Open(nil, WithClock(clock.Now))

	require.NoError(t, l.Commit([]models.Lead{lead("523311111111", "Old")}))
	clock.Advance(24 * time.Hour)
	require.NoError(t, l.Commit([]models.Lead{lead("523322222222", "New")}))

	due := l.RecordsDueForFollowup(models.StageDay1, 1)
	require.Len(t, due, 1)
	assert.Equal(t, "523311111111", due[0].Phone)

	clock.Advance(24 * time.Hour)
	due = l.RecordsDueForFollowup(models.StageDay1, 1)
	require.Len(t, due, 2)
	assert.Equal(t, "523311111111", due[0].Phone, "oldest first")

	assert.Empty(t, l.RecordsDueForFollowup(models.StageDay5, 5))
}

func TestMarkStageSentIsMonotonic(t *testing.T) {
	clock := newClock()
	l := Open(nil, WithClock(clock.Now))
	require.NoError(t, l.Commit([]models.Lead{lead("523311111111", "A")}))
	clock.Advance(3 * 24 * time.Hour)

	require.NoError(t, l.MarkStageSent([]string{"523311111111", "520000000000"}, models.StageDay2))
	assert.Empty(t, l.RecordsDueForFollowup(models.StageDay2, 2))

	require.NoError(t, l.MarkStageSent([]string{"523311111111"}, models.StageDay2))
	rec, _ := l.Get("523311111111")
	assert.True(t, rec.Day2Sent)
	assert.False(t, rec.Day1Sent)

	err := l.MarkStageSent([]string{"523311111111"}, models.Stage("day9"))
	assert.True(t, errors.Is(err, ErrInvalidStage))
}

func TestLoadMissingOrCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()

	missing := NewFileLedger(filepath.Join(dir, "nope.json"))
	assert.Equal(t, 0, missing.Stats().TotalContacted)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0o644))
	l := NewFileLedger(corrupt)
	assert.Equal(t, 0, l.Stats().TotalContacted)
}

func TestLoadLegacyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads_tracker.json")
	legacy := `{
  "phones": ["523311111111", "523322222222", "523399999999"],
  "leads_data": {
    "523311111111": {"contact_date": "2025-01-05T10:15:30.123456", "lead_name": "Spa Rosa", "followup_message": "hola", "followup_sent": false, "nicho": "salon de belleza"},
    "523322222222": {"contact_date": "2025-01-02T08:00:00", "lead_name": "Gym Max", "followup_message": "hey", "followup_sent": true, "nicho": "gimnasio"}
  },
  "total_count": 3,
  "last_updated": "2025-01-05T10:15:30.123456"
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	l := NewFileLedger(path)
	stats := l.Stats()
	assert.Equal(t, 3, stats.TotalContacted)
	assert.Equal(t, 2, stats.ActiveRecords)
	assert.True(t, l.IsContacted("523399999999"))

	spa, ok := l.Get("523311111111")
	require.True(t, ok)
	assert.Equal(t, 2025, spa.ContactDate.Year())
	assert.Equal(t, 15, spa.ContactDate.Minute())

	gym, _ := l.Get("523322222222")
	assert.True(t, gym.Day1Sent && gym.Day2Sent && gym.FollowupSent)
}

func TestSaveWritesDocumentSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.json")
	l := NewFileLedger(path)
	require.NoError(t, l.Commit([]models.Lead{lead("523311111111", "A")}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"phones", "leads_data", "total_count", "last_updated"} {
		assert.Contains(t, raw, key)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestArchiveKeepsPhonesContacted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tracker.json")
	archivePath := filepath.Join(dir, "archive.json")
	clock := newClock()

	l := NewFileLedger(path, WithClock(clock.Now))
	require.NoError(t, l.Commit([]models.Lead{lead("523311111111", "Old")}))
	clock.Advance(90 * 24 * time.Hour)
	require.NoError(t, l.Commit([]models.Lead{lead("523322222222", "Recent")}))

	moved, err := l.Archive(clock.Now().Add(-30*24*time.Hour), archivePath)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	assert.True(t, l.IsContacted("523311111111"))
	_, ok := l.Get("523311111111")
	assert.False(t, ok)
	assert.Empty(t, l.RecordsDueForFollowup(models.StageDay5, 5))

	var archived []models.ContactRecord
	data, err := os.ReadFile(archivePath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &archived))
	require.Len(t, archived, 1)
	assert.Equal(t, "Old", archived[0].LeadName)

	reloaded := NewFileLedger(path)
	assert.True(t, reloaded.IsContacted("523311111111"))
	assert.Equal(t, 1, reloaded.Stats().ActiveRecords)

	moved, err = l.Archive(clock.Now().Add(-30*24*time.Hour), archivePath)
	require.NoError(t, err)
	assert.Zero(t, moved)
}

type failingBackend struct{}

func (failingBackend) Load() (*Document, error) { return nil, errors.New("disk gone") }
func (failingBackend) Save(*Document) error     { return errors.New("disk gone") }

func TestPersistFailureKeepsMemoryState(t *testing.T) {
	l := Open(failingBackend{})
	err := l.Commit([]models.Lead{lead("523311111111", "A")})
	require.Error(t, err)
	assert.True(t, l.IsContacted("523311111111"))
}
