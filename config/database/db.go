package database

import (
	"database/sql"
	_ "embed"
	"time"

	"meditrust/pkg/logger"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// Connect opens the Postgres pool and retries the first ping a few times.
func Connect(connStr string) *sql.DB {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		logger.Sugar.Fatalf("Failed to open database connection: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err = db.Ping(); err == nil {
			logger.Sugar.Info("Successfully connected to the database")
			return db
		}
		logger.Sugar.Infof("Database connection failed, retrying in 2s... (%v)", err)
		time.Sleep(2 * time.Second)
	}
	logger.Sugar.Fatal("Could not connect to database after retries.")
	return nil
}

// Migrate creates the tables the service needs. Statements are idempotent.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		logger.Sugar.Errorf("Failed to apply schema: %v", err)
		return err
	}
	logger.Sugar.Info("Database schema is up to date")
	return nil
}
