// Package testing provides test utilities and database setup for testing the affiliate engine
package testing

import (
	"context"
	"fmt"
	"log"

	"github.com/amirphl/affiliate-engine/migrations"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB represents a test database instance
type TestDB struct {
	DB   *gorm.DB
	Name string
}

// SetupTestDB creates a new in-memory database with a unique name and runs migrations
func SetupTestDB() (*TestDB, error) {
	dbName := fmt.Sprintf("affiliate_test_%s", uuid.NewString())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", dbName)

	testDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open test database %s: %w", dbName, err)
	}

	// in-memory sqlite tolerates a single writer connection
	sqlDB, err := testDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB for %s: %w", dbName, err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := migrations.RunMigrations(testDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations on test database %s: %w", dbName, err)
	}

	return &TestDB{
		DB:   testDB,
		Name: dbName,
	}, nil
}

// TeardownTestDB closes the connection, which discards the in-memory database
func (tdb *TestDB) TeardownTestDB() error {
	if tdb.DB == nil {
		return nil
	}
	sqlDB, err := tdb.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ClearAllTables removes all data from tables while preserving structure
func (tdb *TestDB) ClearAllTables() error {
	tables := []string{
		"notifications",
		"reward_logs",
		"processed_goal_events",
		"user_tier_progresses",
		"levels",
		"tiers",
		"settlement_runs",
		"withdrawals",
		"wallet_transactions",
		"wallets",
		"daily_action_counters",
		"commission_records",
		"platform_configs",
		"campaigns",
		"affiliate_users",
	}

	for _, table := range tables {
		if err := tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table)).Error; err != nil {
			return fmt.Errorf("failed to clear table %s: %w", table, err)
		}
	}

	return nil
}

// TestWithDB is a helper function that sets up a test database, runs the test function, and cleans up
func TestWithDB(testFunc func(*TestDB) error) error {
	testDB, err := SetupTestDB()
	if err != nil {
		return fmt.Errorf("failed to setup test database: %w", err)
	}
	defer func() {
		if cleanupErr := testDB.TeardownTestDB(); cleanupErr != nil {
			log.Printf("Warning: failed to cleanup test database: %v", cleanupErr)
		}
	}()

	return testFunc(testDB)
}

// CreateTestContext creates a context for testing
func CreateTestContext() context.Context {
	return context.Background()
}
