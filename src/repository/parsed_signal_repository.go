package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalexecutor/src/database"
	"signalexecutor/src/externalmodel"
)

// ParsedSignalRepository reads signals produced by the ingestion pipeline
// from the read-only database.
type ParsedSignalRepository struct {
	db *gorm.DB
}

// NewParsedSignalRepository uses the ReadOnlyDB connection.
func NewParsedSignalRepository() *ParsedSignalRepository {
	logger.WithField("component", "ParsedSignalRepository").
		Debug("Creating new ParsedSignalRepository with ReadOnlyDB")

	return &ParsedSignalRepository{
		db: database.ReadOnlyDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *ParsedSignalRepository) WithDB(db *gorm.DB) *ParsedSignalRepository {
	return &ParsedSignalRepository{db: db}
}

// FindByID returns (nil, nil) if not found.
func (r *ParsedSignalRepository) FindByID(
	ctx context.Context,
	id uint,
) (*externalmodel.ParsedSignal, error) {

	var signal externalmodel.ParsedSignal

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&signal).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "ParsedSignalRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch parsed signal by ID")

		return nil, err
	}

	return &signal, nil
}

// FindAfterID fetches parsed signals with ID greater than lastID, oldest
// first. It is the incremental read of the ingestion poller.
func (r *ParsedSignalRepository) FindAfterID(
	ctx context.Context,
	lastID uint,
	limit int,
) ([]externalmodel.ParsedSignal, error) {

	if limit <= 0 {
		limit = 100
	}

	logger.WithFields(map[string]interface{}{
		"repo":   "ParsedSignalRepository",
		"op":     "FindAfterID",
		"lastID": lastID,
		"limit":  limit,
	}).Debug("Fetching parsed signals after ID")

	var signals []externalmodel.ParsedSignal

	err := r.db.WithContext(ctx).
		Where("id > ?", lastID).
		Order("id ASC").
		Limit(limit).
		Find(&signals).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "ParsedSignalRepository",
			"op":     "FindAfterID",
			"lastID": lastID,
		}).WithError(err).Error("Failed to fetch parsed signals after ID")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "ParsedSignalRepository",
		"op":          "FindAfterID",
		"lastID":      lastID,
		"rows_return": len(signals),
	}).Info("Parsed signals after ID fetched")

	return signals, nil
}

// CountNewAfterID is a cheap check for new rows before a heavier fetch.
func (r *ParsedSignalRepository) CountNewAfterID(
	ctx context.Context,
	lastID uint,
) (int64, error) {

	var count int64

	err := r.db.WithContext(ctx).
		Model(&externalmodel.ParsedSignal{}).
		Where("id > ?", lastID).
		Count(&count).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "ParsedSignalRepository",
			"op":     "CountNewAfterID",
			"lastID": lastID,
		}).WithError(err).Error("Failed to count parsed signals after ID")

		return 0, err
	}

	return count, nil
}
