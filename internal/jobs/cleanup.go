package jobs

import (
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	csqlite "github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"sitepulse/internal/config"
	"sitepulse/internal/events"
	"sitepulse/internal/presence"
	"sitepulse/internal/sessions"
)

// presenceMaxAge is how long a stale presence row is kept before pruning.
// Well past the liveness window, so the realtime report is never affected.
const presenceMaxAge = 24 * time.Hour

const cleanupBatchSize = 1000

// CleanupJob prunes stale presence rows and, when a retention period is
// configured, deletes facts and session aggregates past it.
type CleanupJob struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewCleanupJob(dbManager cartridge.DBManager, logger *slog.Logger, cfg *config.Config) *CleanupJob {
	return &CleanupJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
	}
}

func (j *CleanupJob) Run() error {
	deleted, err := presence.Prune(j.dbManager, j.logger, presenceMaxAge)
	if err != nil {
		j.logger.Error("Failed to prune presence rows", slog.Any("error", err))
		return err
	}
	if deleted > 0 {
		j.logger.Info("Pruned stale presence rows", slog.Int64("deleted", deleted))
	}

	// RetentionDays of zero means keep everything.
	if j.cfg.RetentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -j.cfg.RetentionDays)
	j.logger.Info("Starting retention cleanup",
		slog.Int("retention_days", j.cfg.RetentionDays),
		slog.Time("cutoff", cutoff))

	if err := j.deleteInBatches(&events.PageView{}, "timestamp < ?", cutoff); err != nil {
		return err
	}
	if err := j.deleteInBatches(&events.CustomEvent{}, "timestamp < ?", cutoff); err != nil {
		return err
	}
	return j.deleteInBatches(&sessions.Session{}, "last_active_at < ?", cutoff)
}

// deleteInBatches removes matching rows in chunks so a large retention sweep
// does not hold the write lock for its whole duration.
func (j *CleanupJob) deleteInBatches(model any, condition string, cutoff time.Time) error {
	totalDeleted := int64(0)

	for {
		var affected int64
		err := csqlite.PerformWrite(j.logger, j.dbManager.GetConnection(), func(tx *gorm.DB) error {
			result := tx.Where(condition, cutoff).Limit(cleanupBatchSize).Delete(model)
			affected = result.RowsAffected
			return result.Error
		})
		if err != nil {
			j.logger.Error("Retention cleanup batch failed", slog.Any("error", err))
			return err
		}

		totalDeleted += affected
		if affected < cleanupBatchSize {
			break
		}
	}

	if totalDeleted > 0 {
		j.logger.Info("Retention cleanup removed rows",
			slog.Int64("deleted", totalDeleted),
			slog.Any("model", model))
	}
	return nil
}
