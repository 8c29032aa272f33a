package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalexecutor/src/database"
	"signalexecutor/src/model"
)

// ExceptionRepository handles persistence of operation failures.
type ExceptionRepository struct {
	db *gorm.DB
}

// NewExceptionRepository creates a new repository instance.
func NewExceptionRepository() *ExceptionRepository {
	return &ExceptionRepository{
		db: database.MainDB,
	}
}

func NewExceptionRepositoryWithDB(db *gorm.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

// Create persists a new exception in the database.
func (r *ExceptionRepository) Create(
	ctx context.Context,
	exc *model.Exception,
) error {

	logger.WithFields(map[string]interface{}{
		"service": exc.Service,
		"module":  exc.Module,
		"method":  exc.Method,
		"level":   exc.Level,
	}).Debug("Persisting system exception")

	return r.db.WithContext(ctx).Create(exc).Error
}

// ListForSignal returns the newest exceptions recorded for a signal.
func (r *ExceptionRepository) ListForSignal(ctx context.Context, signalID uint, limit int) ([]model.Exception, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []model.Exception
	err := r.db.WithContext(ctx).
		Where("signal_id = ?", signalID).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
