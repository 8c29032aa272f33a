package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signalexecutor/src/database"
	"signalexecutor/src/model"
)

// SignalFilter narrows worker selections to one signal.
type SignalFilter struct {
	SignalID uint
	SourceID string
}

// SignalRepository handles signals and their entry points and take-profits.
type SignalRepository struct {
	db *gorm.DB
}

// NewSignalRepository creates a new repository instance using the main read/write database.
func NewSignalRepository() *SignalRepository {
	return &SignalRepository{
		db: database.MainDB,
	}
}

func NewSignalRepositoryWithDB(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// WithDB allows overriding the underlying *gorm.DB instance, typically with a
// transaction.
func (r *SignalRepository) WithDB(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

func orderedLevels(db *gorm.DB) *gorm.DB {
	return db.Order("value ASC")
}

// Create inserts the signal together with its entry points and take-profits.
func (r *SignalRepository) Create(ctx context.Context, signal *model.Signal) error {
	logger.WithFields(map[string]interface{}{
		"repo":      "SignalRepository",
		"op":        "Create",
		"source_id": signal.SourceID,
		"symbol":    signal.Symbol,
	}).Debug("Creating signal")

	if err := r.db.WithContext(ctx).Create(signal).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "SignalRepository",
			"op":        "Create",
			"source_id": signal.SourceID,
		}).WithError(err).Error("Failed to create signal")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "SignalRepository",
		"op":        "Create",
		"signal_id": signal.ID,
	}).Info("Signal created")

	return nil
}

// FindByID fetches a signal with its levels. Returns (nil, nil) if not found.
func (r *SignalRepository) FindByID(ctx context.Context, id uint) (*model.Signal, error) {
	return r.find(ctx, "FindByID", false, "id = ?", id)
}

// FindByIDForUpdate is FindByID holding a row lock on the signal until the
// surrounding transaction ends.
func (r *SignalRepository) FindByIDForUpdate(ctx context.Context, id uint) (*model.Signal, error) {
	return r.find(ctx, "FindByIDForUpdate", true, "id = ?", id)
}

// FindBySourceID returns (nil, nil) if no signal came from sourceID.
func (r *SignalRepository) FindBySourceID(ctx context.Context, sourceID string) (*model.Signal, error) {
	return r.find(ctx, "FindBySourceID", false, "source_id = ?", sourceID)
}

func (r *SignalRepository) find(ctx context.Context, op string, lock bool, query string, args ...interface{}) (*model.Signal, error) {
	logger.WithFields(map[string]interface{}{
		"repo": "SignalRepository",
		"op":   op,
		"args": args,
	}).Debug("Fetching signal")

	q := r.db.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var signal model.Signal
	err := q.
		Preload("EntryPoints", orderedLevels).
		Preload("TakeProfits", orderedLevels).
		Where(query, args...).
		First(&signal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo": "SignalRepository",
			"op":   op,
			"args": args,
		}).WithError(err).Error("Failed to fetch signal")
		return nil, err
	}

	return &signal, nil
}

// ListIDsByStatus returns the ids of signals in any of statuses, oldest first.
func (r *SignalRepository) ListIDsByStatus(ctx context.Context, statuses []model.SignalStatus, filter SignalFilter) ([]uint, error) {
	logger.WithFields(map[string]interface{}{
		"repo":     "SignalRepository",
		"op":       "ListIDsByStatus",
		"statuses": statuses,
		"filter":   filter,
	}).Debug("Selecting signals")

	q := r.db.WithContext(ctx).
		Model(&model.Signal{}).
		Where("status IN ?", statuses)
	if filter.SignalID != 0 {
		q = q.Where("id = ?", filter.SignalID)
	}
	if filter.SourceID != "" {
		q = q.Where("source_id = ?", filter.SourceID)
	}

	var ids []uint
	if err := q.Order("id ASC").Pluck("id", &ids).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "SignalRepository",
			"op":   "ListIDsByStatus",
		}).WithError(err).Error("Failed to select signals")
		return nil, err
	}

	return ids, nil
}

// List returns signals newest first, optionally restricted to one status.
func (r *SignalRepository) List(ctx context.Context, status model.SignalStatus, limit int) ([]model.Signal, error) {
	if limit <= 0 {
		limit = 50
	}

	q := r.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var signals []model.Signal
	if err := q.Find(&signals).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "SignalRepository",
			"op":   "List",
		}).WithError(err).Error("Failed to list signals")
		return nil, err
	}
	return signals, nil
}

// UpdateState writes the mutable columns of a signal.
func (r *SignalRepository) UpdateState(ctx context.Context, signal *model.Signal) error {
	err := r.db.WithContext(ctx).
		Model(&model.Signal{ID: signal.ID}).
		Select("status", "income", "amount", "all_targets", "updated_at").
		Updates(signal).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "SignalRepository",
			"op":        "UpdateState",
			"signal_id": signal.ID,
		}).WithError(err).Error("Failed to update signal")
		return err
	}
	return nil
}

// SymbolsInUse lists the distinct symbols of signals that are not closed yet.
func (r *SignalRepository) SymbolsInUse(ctx context.Context) ([]string, error) {
	var symbols []string
	err := r.db.WithContext(ctx).
		Model(&model.Signal{}).
		Where("status NOT IN ?", []model.SignalStatus{model.SignalStatusClosed, model.SignalStatusError}).
		Distinct().
		Order("symbol").
		Pluck("symbol", &symbols).Error
	return symbols, err
}
