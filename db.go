package main

import (
	"database/sql"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

var db *sql.DB

func initDB(databaseURL string, logger *zap.Logger) {
	if databaseURL == "" {
		databaseURL = "user=admin password=password dbname=roomatchdb sslmode=disable"
		logger.Warn("DATABASE_URL not set, using default connection string")
	}

	var err error
	db, err = sql.Open("postgres", databaseURL)
	if err != nil {
		logger.Fatal("error connecting to the database", zap.Error(err))
	}
	if err = db.Ping(); err != nil {
		logger.Fatal("cannot reach the database", zap.Error(err))
	}
	logger.Info("database connection established")

	// Schema is applied out of band with schema.sql; no in-process
	// migrations here.
}
