package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"notify-mail-relay-go/internal/model"
)

// DefaultHistoryCapacity is the number of records kept
const DefaultHistoryCapacity = 100

// RecordRepository is the persistence used by HistoryStore
type RecordRepository interface {
	LoadRecords(limit int) ([]model.ForwardRecord, error)
	InsertRecord(rec *model.ForwardRecord, evicted []string) error
	UpdateRecordStatus(id string, status model.Status, errMsg *string) error
	DeleteRecords(ids []string) error
	ClearRecords() error
}

// HistoryStore is the bounded newest-first log of forward records
type HistoryStore struct {
	mu       sync.RWMutex
	repo     RecordRepository
	capacity int
	records  []model.ForwardRecord
}

// NewHistoryStore loads the persisted history. Unreadable history is
// discarded and the store starts empty; any other load error is returned.
func NewHistoryStore(repo RecordRepository, capacity int) (*HistoryStore, error) {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	h := &HistoryStore{repo: repo, capacity: capacity}

	records, err := repo.LoadRecords(-1)
	if errors.Is(err, ErrPersistenceCorrupt) {
		logrus.WithError(err).Warn("History unreadable, resetting it")
		if err := repo.ClearRecords(); err != nil {
			return nil, err
		}
		return h, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	if len(records) > capacity {
		var extra []string
		for _, r := range records[capacity:] {
			extra = append(extra, r.ID)
		}
		if err := repo.DeleteRecords(extra); err != nil {
			logrus.WithError(err).Warn("Failed to trim history")
		}
		records = records[:capacity]
	}
	h.records = records
	return h, nil
}

// AddRecord inserts rec at the head and evicts the oldest records beyond
// capacity
func (h *HistoryStore) AddRecord(rec model.ForwardRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var evicted []string
	next := make([]model.ForwardRecord, 0, h.capacity)
	next = append(next, rec)
	for _, r := range h.records {
		if len(next) < h.capacity {
			next = append(next, r)
		} else {
			evicted = append(evicted, r.ID)
		}
	}
	h.records = next

	if err := h.repo.InsertRecord(&rec, evicted); err != nil {
		logrus.WithError(err).WithField("record_id", rec.ID).Error("Failed to persist record")
		return err
	}
	h.records[0].Seq = rec.Seq
	return nil
}

// UpdateStatus sets the status of the record with the given id. An unknown
// id is ignored.
func (h *HistoryStore) UpdateStatus(id string, status model.Status, errMsg *string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	i := h.indexOf(id)
	if i < 0 {
		logrus.WithField("record_id", id).Debug("Status update for unknown record ignored")
		return nil
	}
	h.records[i].Status = status
	h.records[i].Error = errMsg
	h.records[i].UpdatedAt = time.Now()

	if err := h.repo.UpdateRecordStatus(id, status, errMsg); err != nil {
		logrus.WithError(err).WithField("record_id", id).Error("Failed to persist record status")
		return err
	}
	return nil
}

func (h *HistoryStore) indexOf(id string) int {
	for i := range h.records {
		if h.records[i].ID == id {
			return i
		}
	}
	return -1
}

func (h *HistoryStore) Get(id string) (model.ForwardRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if i := h.indexOf(id); i >= 0 {
		return h.records[i], true
	}
	return model.ForwardRecord{}, false
}

// GetPage returns page (zero based) of the given size
func (h *HistoryStore) GetPage(page, size int) []model.ForwardRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if page < 0 || size <= 0 {
		return []model.ForwardRecord{}
	}
	start := page * size
	if start >= len(h.records) {
		return []model.ForwardRecord{}
	}
	end := start + size
	if end > len(h.records) {
		end = len(h.records)
	}
	out := make([]model.ForwardRecord, end-start)
	copy(out, h.records[start:end])
	return out
}

func (h *HistoryStore) HasMore(page, size int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return (page+1)*size < len(h.records)
}

// Records returns a copy of the whole history, newest first
func (h *HistoryStore) Records() []model.ForwardRecord {
	return h.Recent(-1)
}

// Recent returns at most limit records, newest first. A negative limit
// returns everything.
func (h *HistoryStore) Recent(limit int) []model.ForwardRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := len(h.records)
	if limit >= 0 && limit < n {
		n = limit
	}
	out := make([]model.ForwardRecord, n)
	copy(out, h.records[:n])
	return out
}

func (h *HistoryStore) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// ClearHistory empties the log and its persisted form
func (h *HistoryStore) ClearHistory() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = nil
	if err := h.repo.ClearRecords(); err != nil {
		logrus.WithError(err).Error("Failed to clear persisted history")
		return err
	}
	return nil
}

func (h *HistoryStore) CountByStatus(status model.Status) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, r := range h.records {
		if r.Status == status {
			n++
		}
	}
	return n
}

// RecordsSince returns the records captured at or after t
func (h *HistoryStore) RecordsSince(t time.Time) []model.ForwardRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := []model.ForwardRecord{}
	for _, r := range h.records {
		if !r.Timestamp.Before(t) {
			out = append(out, r)
		}
	}
	return out
}

// TodayRecords returns the records captured since local midnight of now
func (h *HistoryStore) TodayRecords(now time.Time) []model.ForwardRecord {
	y, m, d := now.Date()
	return h.RecordsSince(time.Date(y, m, d, 0, 0, 0, 0, now.Location()))
}

// StalePending returns PENDING records captured before the given time
func (h *HistoryStore) StalePending(before time.Time) []model.ForwardRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []model.ForwardRecord
	for _, r := range h.records {
		if r.Status == model.StatusPending && r.Timestamp.Before(before) {
			out = append(out, r)
		}
	}
	return out
}
