package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"notify-mail-relay-go/internal/model"
)

// Repository persists settings and forward records
type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Ping checks that the database answers
func (r *Repository) Ping() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (r *Repository) LoadSettings() (map[string]string, error) {
	var settings []model.Setting
	if err := r.db.Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	values := make(map[string]string, len(settings))
	for _, s := range settings {
		values[s.Key] = s.Value
	}
	return values, nil
}

// PutSettings upserts all values in one transaction
func (r *Repository) PutSettings(values map[string]string) error {
	now := time.Now()
	rows := make([]model.Setting, 0, len(values))
	for k, v := range values {
		rows = append(rows, model.Setting{Key: k, Value: v, UpdatedAt: now})
	}
	if len(rows) == 0 {
		return nil
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// LoadRecords returns at most limit records, newest first
func (r *Repository) LoadRecords(limit int) ([]model.ForwardRecord, error) {
	var records []model.ForwardRecord
	if err := r.db.Order("seq DESC").Limit(limit).Find(&records).Error; err != nil {
		if isScanError(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrPersistenceCorrupt, err)
		}
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	for _, rec := range records {
		if rec.ID == "" || !rec.Status.Valid() {
			return nil, fmt.Errorf("%w: record %d has id %q and status %q",
				model.ErrPersistenceCorrupt, rec.Seq, rec.ID, rec.Status)
		}
	}
	return records, nil
}

// InsertRecord stores rec and deletes the evicted ids in the same transaction
func (r *Repository) InsertRecord(rec *model.ForwardRecord, evicted []string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}
		if len(evicted) > 0 {
			if err := tx.Where("id IN ?", evicted).Delete(&model.ForwardRecord{}).Error; err != nil {
				return fmt.Errorf("failed to evict records: %w", err)
			}
		}
		return nil
	})
}

func (r *Repository) UpdateRecordStatus(id string, status model.Status, errMsg *string) error {
	result := r.db.Model(&model.ForwardRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     status,
		"error_msg":  errMsg,
		"updated_at": time.Now(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update record status: %w", result.Error)
	}
	return nil
}

func (r *Repository) DeleteRecords(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.Where("id IN ?", ids).Delete(&model.ForwardRecord{}).Error; err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	return nil
}

func (r *Repository) ClearRecords() error {
	result := r.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.ForwardRecord{})
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to clear records: %w", result.Error)
	}
	return nil
}

// isScanError reports whether err came from decoding a row rather than from
// reaching the database. database/sql does not type these errors.
func isScanError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sql: Scan error") || strings.Contains(msg, "unsupported Scan")
}
