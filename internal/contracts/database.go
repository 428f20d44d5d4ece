package contracts

import (
	"time"

	"github.com/ksred/optionclear/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// Transaction runs fn atomically against the store.
func (d *Database) Transaction(fn func(tx *gorm.DB) error) error {
	return d.db.Transaction(fn)
}

func (d *Database) GetContract(address string) (*types.OptionContract, error) {
	return contractForAddress(d.db, address)
}

func (d *Database) GetContractsForParty(owner string) ([]types.OptionContract, error) {
	var list []types.OptionContract
	if err := d.db.Where("buyer = ? OR seller = ?", owner, owner).
		Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// GetSettleableContracts returns exercised contracts carrying a pending
// balance, oldest first. Used by the settlement processor.
func (d *Database) GetSettleableContracts() ([]types.OptionContract, error) {
	var list []types.OptionContract
	if err := d.db.Where("status = ? AND (buyer_pending_balance > 0 OR seller_pending_balance > 0)",
		types.StatusExercised).
		Order("updated_at ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func contractForAddress(tx *gorm.DB, address string) (*types.OptionContract, error) {
	var contract types.OptionContract
	if err := tx.Where("address = ?", address).First(&contract).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

func saveContract(tx *gorm.DB, contract *types.OptionContract) error {
	contract.UpdatedAt = time.Now()
	return tx.Save(contract).Error
}
