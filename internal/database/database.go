package database

import (
	"fmt"

	"github.com/ksred/optionclear/internal/database/migrations"
	"github.com/ksred/optionclear/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase initializes and returns a new GORM DB connection. Every
// operation against the store runs in its own transaction, which is what
// serializes concurrent mutations of the same account record.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&types.UserRegistry{},
		&types.RegistryEntry{},
		&types.Escrow{},
		&types.Wallet{},
		&types.Transfer{},
		&types.OptionContract{},
	)
	if err != nil {
		return nil, err
	}

	if err := migrations.AddLedgerIndexes(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}
