package dao

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sentra/internal/database"
	"sentra/internal/models"
	sentraerrors "sentra/pkg/errors"
	"sentra/pkg/ids"
	"sentra/pkg/logger"

	"github.com/sirupsen/logrus"
)

// Batch is the unit of knowledge mutation: entities plus the edges the
// parser declared between them. A batch commits atomically or not at all.
type Batch struct {
	Entities      []models.Entity
	Relationships []models.EntityRelationship
}

// KnowledgeDAO is the single mutation surface over the embedded store.
type KnowledgeDAO interface {
	UpsertEntities(batch Batch) (int, error)
	GetEntity(id string) (*models.Entity, error)
	EntitiesByKind(kind string) ([]models.Entity, error)
	Children(parentID, relationshipType string) ([]models.Entity, error)

	RecordExecution(record *models.ToolExecution) error
	HasToolExecuted(toolID, target string) (bool, error)
	LastExecution(toolID, target string) (*models.ToolExecution, error)
	HasSuccessfulParse(toolID, target string) (bool, error)
	ListExecutions(toolID string, limit int) ([]models.ToolExecution, error)

	Prune(ttl time.Duration) (int64, error)
	StartAutoPrune(ctx context.Context)
	Checkpoint(path string) error
	Restore(path string) error

	Stats() (map[string]int64, error)
}

// Options tune pruning cadence.
type Options struct {
	TTL           time.Duration // entity time-to-live, default 1h
	PruneEveryN   int64         // prune after this many inserts, default 1000
	PruneInterval time.Duration // periodic prune, default 600s
	StorePath     string        // backing file, used by checkpoint/restore
}

func (o *Options) withDefaults() {
	if o.TTL <= 0 {
		o.TTL = time.Hour
	}
	if o.PruneEveryN <= 0 {
		o.PruneEveryN = 1000
	}
	if o.PruneInterval <= 0 {
		o.PruneInterval = 600 * time.Second
	}
}

type knowledgeDAO struct {
	mu          sync.RWMutex
	db          *gorm.DB
	opts        Options
	insertCount int64
	logger      *logger.Logger
}

// NewKnowledgeDAO wraps an open store handle.
func NewKnowledgeDAO(db *gorm.DB, opts Options) KnowledgeDAO {
	opts.withDefaults()
	return &knowledgeDAO{
		db:     db,
		opts:   opts,
		logger: logger.NewLogger(logrus.InfoLevel),
	}
}

// UpsertEntities commits the batch in one transaction. Existing rows are
// merged: higher confidence wins scalar fields, newer updated_at wins
// status, set-valued fields (tags, hostnames, sans) are unioned.
// Relationships referencing entities absent from both the batch and the
// store roll the whole batch back.
func (d *knowledgeDAO) UpsertEntities(batch Batch) (int, error) {
	if len(batch.Entities) == 0 && len(batch.Relationships) == 0 {
		return 0, nil
	}

	d.mu.RLock()
	db := d.db
	d.mu.RUnlock()

	count := 0
	err := d.retryOnce(func() error {
		count = 0
		return db.Transaction(func(tx *gorm.DB) error {
			for i := range batch.Entities {
				entity := batch.Entities[i]
				if err := ids.Validate(entity.Kind, entity.ID); err != nil {
					return err
				}

				var existing models.Entity
				result := tx.Where("id = ?", entity.ID).First(&existing)
				switch {
				case errors.Is(result.Error, gorm.ErrRecordNotFound):
					if err := tx.Create(&entity).Error; err != nil {
						return fmt.Errorf("insert entity %s: %w", entity.ID, err)
					}
				case result.Error != nil:
					return result.Error
				default:
					merged, err := mergeEntities(&existing, &entity)
					if err != nil {
						return fmt.Errorf("merge entity %s: %w", entity.ID, err)
					}
					if err := tx.Save(merged).Error; err != nil {
						return fmt.Errorf("update entity %s: %w", entity.ID, err)
					}
				}
				count++
			}

			for i := range batch.Relationships {
				rel := batch.Relationships[i]
				for _, id := range []string{rel.ParentID, rel.ChildID} {
					var n int64
					if err := tx.Model(&models.Entity{}).Where("id = ?", id).Count(&n).Error; err != nil {
						return err
					}
					if n == 0 {
						return fmt.Errorf("%w: relationship references missing entity %s",
							sentraerrors.ErrConstraintViolation, id)
					}
				}
				if rel.CreatedAt == 0 {
					rel.CreatedAt = time.Now().UnixMilli()
				}
				if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rel).Error; err != nil {
					return fmt.Errorf("insert relationship %s->%s: %w", rel.ParentID, rel.ChildID, err)
				}
			}

			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	if atomic.AddInt64(&d.insertCount, int64(count))%d.opts.PruneEveryN < int64(count) && count > 0 {
		if pruned, perr := d.Prune(d.opts.TTL); perr == nil && pruned > 0 {
			d.logger.WithFields(logger.Fields{"pruned": pruned}).Info("Stale entities pruned")
		}
	}

	return count, nil
}

func (d *knowledgeDAO) GetEntity(id string) (*models.Entity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var entity models.Entity
	if err := d.db.Where("id = ?", id).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entity, nil
}

func (d *knowledgeDAO) EntitiesByKind(kind string) ([]models.Entity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var entities []models.Entity
	if err := d.db.Where("kind = ?", kind).Order("updated_at desc").Find(&entities).Error; err != nil {
		return nil, err
	}
	return entities, nil
}

func (d *knowledgeDAO) Children(parentID, relationshipType string) ([]models.Entity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var entities []models.Entity
	err := d.db.
		Joins("JOIN entity_relationships r ON r.child_id = entities.id").
		Where("r.parent_id = ? AND r.relationship_type = ?", parentID, relationshipType).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return entities, nil
}

// RecordExecution always commits, independent of parse outcome. History
// is the planner's source of truth; it must survive parse failures.
func (d *knowledgeDAO) RecordExecution(record *models.ToolExecution) error {
	d.mu.RLock()
	db := d.db
	d.mu.RUnlock()

	return d.retryOnce(func() error {
		return db.Create(record).Error
	})
}

func (d *knowledgeDAO) HasToolExecuted(toolID, target string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var n int64
	err := d.db.Model(&models.ToolExecution{}).
		Where("tool_id = ? AND target = ? AND status IN ?",
			toolID, target, []string{models.ExecutionSuccess, models.ExecutionPartial}).
		Count(&n).Error
	return n > 0, err
}

func (d *knowledgeDAO) LastExecution(toolID, target string) (*models.ToolExecution, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var record models.ToolExecution
	err := d.db.
		Where("tool_id = ? AND target = ?", toolID, target).
		Order("completed_at desc").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// HasSuccessfulParse reports whether the most recent run of the tool
// against the target succeeded and was fully parsed. The planner
// consults this, never entity counts.
func (d *knowledgeDAO) HasSuccessfulParse(toolID, target string) (bool, error) {
	last, err := d.LastExecution(toolID, target)
	if err != nil || last == nil {
		return false, err
	}
	return last.Status == models.ExecutionSuccess && last.ParseStatus == models.ParseParsed, nil
}

func (d *knowledgeDAO) ListExecutions(toolID string, limit int) ([]models.ToolExecution, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := d.db.Order("started_at desc").Limit(limit)
	if toolID != "" {
		query = query.Where("tool_id = ?", toolID)
	}

	var records []models.ToolExecution
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Prune deletes entities whose updated_at fell behind the TTL, together
// with every relationship touching them.
func (d *knowledgeDAO) Prune(ttl time.Duration) (int64, error) {
	d.mu.RLock()
	db := d.db
	d.mu.RUnlock()

	cutoff := time.Now().Add(-ttl).UnixMilli()

	var deleted int64
	err := db.Transaction(func(tx *gorm.DB) error {
		var stale []string
		if err := tx.Model(&models.Entity{}).Where("updated_at < ?", cutoff).Pluck("id", &stale).Error; err != nil {
			return err
		}
		if len(stale) == 0 {
			return nil
		}
		if err := tx.Where("parent_id IN ? OR child_id IN ?", stale, stale).
			Delete(&models.EntityRelationship{}).Error; err != nil {
			return err
		}
		result := tx.Where("id IN ?", stale).Delete(&models.Entity{})
		deleted = result.RowsAffected
		return result.Error
	})
	return deleted, err
}

// StartAutoPrune prunes on a fixed interval until ctx is cancelled.
func (d *knowledgeDAO) StartAutoPrune(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(d.opts.PruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if pruned, err := d.Prune(d.opts.TTL); err != nil {
					d.logger.WithError(err).Error("Periodic prune failed")
				} else if pruned > 0 {
					d.logger.WithFields(logger.Fields{"pruned": pruned}).Info("Periodic prune completed")
				}
			}
		}
	}()
}

// Checkpoint writes a byte-identical copy of the backing file to path.
// The writer is closed for the duration of the copy so the snapshot is
// consistent, then reopened.
func (d *knowledgeDAO) Checkpoint(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.opts.StorePath == "" {
		return fmt.Errorf("%w: store path not configured for checkpoint", sentraerrors.ErrStoreIO)
	}

	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", sentraerrors.ErrStoreIO, err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("%w: close before checkpoint: %v", sentraerrors.ErrStoreIO, err)
	}

	copyErr := copyFile(d.opts.StorePath, path)

	db, openErr := database.Open(d.opts.StorePath)
	if openErr != nil {
		return fmt.Errorf("%w: reopen after checkpoint: %v", sentraerrors.ErrStoreIO, openErr)
	}
	d.db = db

	if copyErr != nil {
		return fmt.Errorf("%w: checkpoint copy: %v", sentraerrors.ErrStoreIO, copyErr)
	}
	return nil
}

// Restore replaces the backing file with the checkpoint and reopens the
// store handle.
func (d *knowledgeDAO) Restore(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.opts.StorePath == "" {
		return fmt.Errorf("%w: store path not configured for restore", sentraerrors.ErrStoreIO)
	}

	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", sentraerrors.ErrStoreIO, err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("%w: close before restore: %v", sentraerrors.ErrStoreIO, err)
	}

	if err := copyFile(path, d.opts.StorePath); err != nil {
		return fmt.Errorf("%w: restore copy: %v", sentraerrors.ErrStoreIO, err)
	}

	db, err := database.Open(d.opts.StorePath)
	if err != nil {
		return fmt.Errorf("%w: reopen after restore: %v", sentraerrors.ErrStoreIO, err)
	}
	d.db = db
	return nil
}

func (d *knowledgeDAO) Stats() (map[string]int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := make(map[string]int64)

	rows, err := d.db.Model(&models.Entity{}).
		Select("kind, COUNT(*) as n").Group("kind").Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		stats["entities_"+kind] = n
	}

	var executions int64
	if err := d.db.Model(&models.ToolExecution{}).Count(&executions).Error; err != nil {
		return nil, err
	}
	stats["executions"] = executions
	return stats, nil
}

// retryOnce runs fn, retrying a single time on failure before surfacing
// the error as fatal store IO.
func (d *knowledgeDAO) retryOnce(fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if isConstraintError(err) {
		return err
	}
	d.logger.WithError(err).Warn("Store operation failed, retrying once")
	if err = fn(); err != nil {
		return fmt.Errorf("%w: %v", sentraerrors.ErrStoreIO, err)
	}
	return nil
}

func isConstraintError(err error) bool {
	return errors.Is(err, sentraerrors.ErrConstraintViolation) || errors.Is(err, sentraerrors.ErrInvalidID)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
