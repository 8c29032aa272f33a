package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalexecutor/src/database/migrations"
	"signalexecutor/src/model"
)

// MainDB is the primary read/write database connection used by the application.
var MainDB *gorm.DB

// Models lists every table owned by the main database.
func Models() []interface{} {
	return []interface{}{
		&model.Signal{},
		&model.EntryPoint{},
		&model.TakeProfit{},
		&model.Order{},
		&model.OrderHistory{},
		&model.SignalHistory{},
		&model.Pair{},
		&model.Exception{},
		&model.IngestCursor{},
		&migrations.DataMigration{},
	}
}

// Migrate runs AutoMigrate followed by the data migrations.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to run schema migrations: %w", err)
	}
	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("failed to run data migrations: %w", err)
	}
	return nil
}

// InitMainDB initializes the main (read/write) database connection and runs migrations.
// This should be called once at application startup (e.g. in main()).
func InitMainDB() error {
	config := GetConfig()

	db, err := open(config.DatabaseURLMain, config, false)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	// Assign to the global variable only after a successful connection.
	MainDB = db

	logrus.Info("[database] MainDB connection established")

	if err := Migrate(MainDB); err != nil {
		return fmt.Errorf("MainDB: %w", err)
	}

	logrus.Info("[database] MainDB migrations completed")

	return nil
}
