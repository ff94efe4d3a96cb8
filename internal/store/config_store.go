package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"notify-mail-relay-go/internal/model"
)

// ErrPersistenceCorrupt marks a stored value that could not be decoded
var ErrPersistenceCorrupt = model.ErrPersistenceCorrupt

// Settings keys
const (
	KeyEmailConfig         = "email_config"
	KeyEnabled             = "enabled"
	KeyTodayCount          = "today_count"
	KeyTotalCount          = "total_count"
	KeyLastActiveDate      = "last_active_date"
	KeyLastActiveTimestamp = "last_active_timestamp"
)

const dateLayout = "2006-01-02"

// SettingsRepository is the persistence used by ConfigStore
type SettingsRepository interface {
	LoadSettings() (map[string]string, error)
	PutSettings(values map[string]string) error
}

// ConfigStore keeps the email config, the enabled flag and the forward
// counters. Every mutation is written through before it returns.
type ConfigStore struct {
	mu     sync.Mutex
	repo   SettingsRepository
	cipher Cipher
	values map[string]string
	now    func() time.Time
}

func NewConfigStore(repo SettingsRepository, cipher Cipher) (*ConfigStore, error) {
	if cipher == nil {
		cipher = PlainCipher()
	}
	values, err := repo.LoadSettings()
	if err != nil {
		return nil, err
	}
	return &ConfigStore{
		repo:   repo,
		cipher: cipher,
		values: values,
		now:    time.Now,
	}, nil
}

// put updates the cache and persists the given keys together. The cache
// keeps the new values even when the write fails.
func (s *ConfigStore) put(values map[string]string) error {
	for k, v := range values {
		s.values[k] = v
	}
	if err := s.repo.PutSettings(values); err != nil {
		logrus.WithError(err).Error("Failed to persist settings")
		return err
	}
	return nil
}

// GetEmailConfig returns the saved configuration, or the defaults when
// nothing usable is stored
func (s *ConfigStore) GetEmailConfig() model.EmailConfig {
	s.mu.Lock()
	stored, ok := s.values[KeyEmailConfig]
	s.mu.Unlock()

	if !ok || stored == "" {
		return model.DefaultEmailConfig()
	}

	cfg, err := s.decodeEmailConfig(stored)
	if err != nil {
		logrus.WithError(err).Warn("Stored email config unreadable, using defaults")
		return model.DefaultEmailConfig()
	}
	return cfg
}

func (s *ConfigStore) decodeEmailConfig(stored string) (model.EmailConfig, error) {
	plain, err := s.cipher.Open(stored)
	if err != nil {
		return model.EmailConfig{}, err
	}
	var cfg model.EmailConfig
	if err := json.Unmarshal([]byte(plain), &cfg); err != nil {
		return model.EmailConfig{}, fmt.Errorf("%w: %v", ErrPersistenceCorrupt, err)
	}
	return cfg, nil
}

// SaveEmailConfig replaces the stored configuration
func (s *ConfigStore) SaveEmailConfig(cfg model.EmailConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode email config: %w", err)
	}
	sealed, err := s.cipher.Seal(string(data))
	if err != nil {
		return fmt.Errorf("failed to seal email config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(map[string]string{KeyEmailConfig: sealed})
}

func (s *ConfigStore) IsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	enabled, err := strconv.ParseBool(s.values[KeyEnabled])
	return err == nil && enabled
}

func (s *ConfigStore) SetEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(map[string]string{KeyEnabled: strconv.FormatBool(enabled)})
}

// GetLastActive returns the zero time when the relay never started
func (s *ConfigStore) GetLastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, err := strconv.ParseInt(s.values[KeyLastActiveTimestamp], 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (s *ConfigStore) TouchLastActive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(map[string]string{
		KeyLastActiveTimestamp: strconv.FormatInt(s.now().UnixMilli(), 10),
	})
}

// IncrementForwardCount counts one successful forward. The daily counter
// restarts when the last counted day is not today.
func (s *ConfigStore) IncrementForwardCount() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := s.now().Format(dateLayout)
	todayCount := s.intValue(KeyTodayCount)
	if s.values[KeyLastActiveDate] != today {
		todayCount = 0
	}

	return s.put(map[string]string{
		KeyTodayCount:     strconv.Itoa(todayCount + 1),
		KeyTotalCount:     strconv.Itoa(s.intValue(KeyTotalCount) + 1),
		KeyLastActiveDate: today,
	})
}

func (s *ConfigStore) TodayCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values[KeyLastActiveDate] != s.now().Format(dateLayout) {
		return 0
	}
	return s.intValue(KeyTodayCount)
}

func (s *ConfigStore) TotalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intValue(KeyTotalCount)
}

func (s *ConfigStore) intValue(key string) int {
	n, err := strconv.Atoi(s.values[key])
	if err != nil {
		return 0
	}
	return n
}
