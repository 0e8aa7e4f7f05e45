package ledger

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"leadpilot/models"
)

const saveBatchSize = 200

// GormBackend keeps one contact_records row per phone. Rows of archived
// records stay in the table with archived=true so they still count for
// dedup.
type GormBackend struct {
	db *gorm.DB
}

func NewGormBackend(db *gorm.DB) *GormBackend {
	return &GormBackend{db: db}
}

func (b *GormBackend) Load() (*Document, error) {
	var rows []models.ContactRecord
	if err := b.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	doc := &Document{
		Phones:  make(map[string]struct{}, len(rows)),
		Records: make(map[string]*models.ContactRecord, len(rows)),
	}
	for i := range rows {
		row := rows[i]
		doc.Phones[row.Phone] = struct{}{}
		if row.Archived {
			continue
		}
		doc.Records[row.Phone] = &row
		if row.ContactDate.After(doc.LastUpdated) {
			doc.LastUpdated = row.ContactDate
		}
	}
	return doc, nil
}

func (b *GormBackend) Save(doc *Document) error {
	active := make([]models.ContactRecord, 0, len(doc.Records))
	for _, rec := range doc.Records {
		active = append(active, *rec)
	}

	stamp := doc.LastUpdated
	if stamp.IsZero() {
		stamp = time.Now()
	}
	var archived []models.ContactRecord
	for phone := range doc.Phones {
		if _, ok := doc.Records[phone]; !ok {
			archived = append(archived, models.ContactRecord{Phone: phone, ContactDate: stamp, Archived: true})
		}
	}

	return b.db.Transaction(func(tx *gorm.DB) error {
		if len(active) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).
				CreateInBatches(active, saveBatchSize).Error; err != nil {
				return err
			}
		}
		if len(archived) > 0 {
			// Only flip the flag on existing rows; keep their history
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "phone"}},
				DoUpdates: clause.AssignmentColumns([]string{"archived"}),
			}).CreateInBatches(archived, saveBatchSize).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
