package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalexecutor/src/externalmodel"
)

// ReadOnlyDB is the read-only database connection used to poll parsed signals
// written by the ingestion pipeline. Its user should have SELECT-only permissions.
var ReadOnlyDB *gorm.DB

// InitReadOnlyDB initializes the read-only database connection.
// It does not run any migrations and should only be used for reading data.
func InitReadOnlyDB() error {
	config := GetConfig()

	db, err := open(config.DatabaseURLReadOnly, config, true)
	if err != nil {
		return fmt.Errorf("ReadOnlyDB: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from ReadOnlyDB: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping ReadOnlyDB: %w", err)
	}

	var dbName, schema string
	if err := db.
		Raw("SELECT current_database(), current_schema()").
		Row().
		Scan(&dbName, &schema); err != nil {
		return fmt.Errorf("failed to query current db/schema on ReadOnlyDB: %w", err)
	}

	logrus.WithFields(map[string]interface{}{"dbName": dbName, "schema": schema}).Info("[ReadOnlyDB] connected")

	var count int64
	if err := db.
		Model(&externalmodel.ParsedSignal{}).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to access %s: %w", externalmodel.ParsedSignal{}.TableName(), err)
	}

	logrus.WithFields(map[string]interface{}{"count": count}).Info("[ReadOnlyDB] parsed signals reachable")

	ReadOnlyDB = db

	return nil
}
