package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signalexecutor/src/database"
	"signalexecutor/src/model"
)

type IngestCursorRepository struct {
	db *gorm.DB
}

func NewIngestCursorRepository() *IngestCursorRepository {
	return &IngestCursorRepository{db: database.MainDB}
}

func NewIngestCursorRepositoryWithDB(db *gorm.DB) *IngestCursorRepository {
	return &IngestCursorRepository{db: db}
}

// Get returns the last ingested id, zero for a new cursor.
func (r *IngestCursorRepository) Get(ctx context.Context, name string) (uint, error) {
	var cursor model.IngestCursor
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&cursor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return cursor.LastID, nil
}

func (r *IngestCursorRepository) Save(ctx context.Context, name string, lastID uint) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_id", "updated_at"}),
	}).Create(&model.IngestCursor{Name: name, LastID: lastID, UpdatedAt: time.Now()}).Error
}
