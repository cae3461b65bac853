// Package store persists the rename records and run history in a sqlite
// database. A rename record is the idempotency cache: the last folder path
// this tool confirmed correct for a catalog item.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/charmbracelet/log"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const dbFileName = "tidyarr.db"

// RenameStatus is the recorded outcome of an item's last rename attempt.
type RenameStatus string

const (
	// RenameStatusDone means the folder was renamed and verified, or already
	// matched the template. Items with this status and an unchanged path are
	// skipped on later runs.
	RenameStatusDone RenameStatus = "done"
	// RenameStatusFailed means the rename was attempted but did not complete
	// or verify. The item is retried on the next run.
	RenameStatusFailed RenameStatus = "failed"
	// RenameStatusSkipped means the item was deliberately left alone.
	RenameStatusSkipped RenameStatus = "skipped"
)

// RenameRecord is the per-item idempotency record. The (service, item_id)
// pair is unique; a later write fully replaces the earlier entry.
type RenameRecord struct {
	gorm.Model
	Service string `gorm:"not null;uniqueIndex:idx_rename_service_item"`
	ItemID  int32  `gorm:"not null;uniqueIndex:idx_rename_service_item"`
	Title   string
	Path    string
	Status  RenameStatus `gorm:"not null"`
	RunID   string
}

// RunStatus represents the status of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunRecord is one run of the rename workflow.
type RunRecord struct {
	ID           string `gorm:"primaryKey"`
	StartedAt    time.Time
	CompletedAt  *time.Time
	DryRun       bool
	Status       RunStatus
	ErrorMessage *string
	Considered   int
	Planned      int
	Renamed      int
	Verified     int
	Failed       int
	Skipped      int
}

// Store wraps the gorm.DB instance.
type Store struct {
	db *gorm.DB
}

// New opens (or creates) the store in the given directory. An existing file
// that cannot be opened or migrated is moved aside and replaced by a fresh
// store, so a corrupt cache degrades to a full re-evaluation instead of
// aborting the run.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	dbPath := path.Join(dir, dbFileName)

	db, err := open(dbPath)
	if err != nil {
		quarantine := dbPath + ".corrupt"
		log.Warn("Rename store is unreadable, starting from an empty store", "path", dbPath, "moved_to", quarantine, "error", err)
		if mvErr := os.Rename(dbPath, quarantine); mvErr != nil {
			return nil, fmt.Errorf("failed to move corrupt store aside: %w", mvErr)
		}
		db, err = open(dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to recreate store: %w", err)
		}
	}

	return &Store{db: db}, nil
}

func open(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(
		&RenameRecord{},
		&RunRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertRename inserts or fully replaces the record for (service, item).
// The write is committed before the call returns, so a mid-run interruption
// never loses a previously recorded item.
func (s *Store) UpsertRename(ctx context.Context, rec RenameRecord) error {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "service"}, {Name: "item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "path", "status", "run_id", "updated_at"}),
	}).Create(&rec)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert rename record: %w", result.Error)
	}
	return nil
}

// GetRename returns the record for (service, item), or nil if none exists.
func (s *Store) GetRename(ctx context.Context, service string, itemID int32) (*RenameRecord, error) {
	var rec RenameRecord
	result := s.db.WithContext(ctx).Where("service = ? AND item_id = ?", service, itemID).First(&rec)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get rename record: %w", result.Error)
	}
	return &rec, nil
}

// IsUpToDate reports whether the item was already confirmed correct at its
// current path. Lookup failures count as not-up-to-date, so a flaky store
// causes re-processing, never skipped work.
func (s *Store) IsUpToDate(ctx context.Context, service string, itemID int32, currentPath string) bool {
	rec, err := s.GetRename(ctx, service, itemID)
	if err != nil {
		log.Warn("Failed to look up rename record", "service", service, "item_id", itemID, "error", err)
		return false
	}
	return rec != nil && rec.Status == RenameStatusDone && rec.Path == currentPath
}

// ResetRenames deletes all rename records, forcing a full re-evaluation on
// the next run.
func (s *Store) ResetRenames(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("1 = 1").Delete(&RenameRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset rename records: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CountRenames returns the number of rename records grouped by status.
func (s *Store) CountRenames(ctx context.Context) (map[RenameStatus]int64, error) {
	type row struct {
		Status RenameStatus
		Count  int64
	}
	var rows []row
	result := s.db.WithContext(ctx).Model(&RenameRecord{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to count rename records: %w", result.Error)
	}
	counts := make(map[RenameStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// StartRun records the beginning of a run.
func (s *Store) StartRun(ctx context.Context, id string, dryRun bool) error {
	rec := RunRecord{
		ID:        id,
		StartedAt: time.Now(),
		DryRun:    dryRun,
		Status:    RunStatusRunning,
	}
	if result := s.db.WithContext(ctx).Create(&rec); result.Error != nil {
		return fmt.Errorf("failed to record run start: %w", result.Error)
	}
	return nil
}

// CompleteRun stores the final state and counters of a run. StartedAt and
// DryRun keep the values written by StartRun.
func (s *Store) CompleteRun(ctx context.Context, rec RunRecord) error {
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&RunRecord{}).Where("id = ?", rec.ID).Updates(map[string]any{
		"completed_at":  &now,
		"status":        rec.Status,
		"error_message": rec.ErrorMessage,
		"considered":    rec.Considered,
		"planned":       rec.Planned,
		"renamed":       rec.Renamed,
		"verified":      rec.Verified,
		"failed":        rec.Failed,
		"skipped":       rec.Skipped,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to record run completion: %w", result.Error)
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	var runs []RunRecord
	result := s.db.WithContext(ctx).Order("started_at desc").Limit(limit).Find(&runs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list recent runs: %w", result.Error)
	}
	return runs, nil
}
