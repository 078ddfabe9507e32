package store

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeye296/Xserver-VPS-Renew/internal/config"
	"github.com/yeye296/Xserver-VPS-Renew/internal/renew"
)

// RunEntry is one persisted run outcome. History is informational: the ops
// API serves it, the next run may read it, correctness never depends on it.
type RunEntry struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Status     string    `json:"status" gorm:"type:varchar(20);not null;index"`
	OldExpiry  string    `json:"old_expiry" gorm:"type:varchar(10)"`
	NewExpiry  string    `json:"new_expiry" gorm:"type:varchar(10)"`
	Detail     string    `json:"detail" gorm:"type:text"`
	ExitIP     string    `json:"exit_ip" gorm:"type:varchar(45)"`
	RunnerIP   string    `json:"runner_ip" gorm:"type:varchar(45)"`
	VPSID      string    `json:"vps_id" gorm:"type:varchar(32);index"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for RunEntry
func (RunEntry) TableName() string {
	return "run_records"
}

// Store is the sqlite-backed run history.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the history database and runs migrations.
func Open(cfg *config.DatabaseConfig) (*Store, error) {
	gormLogger := logger.New(
		logrus.StandardLogger(),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open run history database: %w", err)
	}

	if err := db.AutoMigrate(&RunEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate run history: %w", err)
	}

	return &Store{db: db}, nil
}

// Record appends one settled run to the history.
func (s *Store) Record(rec *renew.RunRecord) error {
	entry := RunEntry{
		Status:     string(rec.Status),
		OldExpiry:  rec.OldExpiry,
		NewExpiry:  rec.NewExpiry,
		Detail:     rec.Detail,
		ExitIP:     rec.ExitIP,
		RunnerIP:   rec.RunnerIP,
		VPSID:      rec.VPSID,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
	}
	if err := s.db.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Recent returns the newest runs, newest first.
func (s *Store) Recent(limit int) ([]RunEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	var entries []RunEntry
	if err := s.db.Order("id DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return entries, nil
}

// Latest returns the most recent run, or nil when the history is empty.
func (s *Store) Latest() (*RunEntry, error) {
	var entry RunEntry
	err := s.db.Order("id DESC").First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest run: %w", err)
	}
	return &entry, nil
}

// Ping verifies the database connection for health checks.
func (s *Store) Ping() error {
	return s.db.Raw("SELECT 1").Error
}
