package registry

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

func (d *Database) GetByOwner(owner string) (*types.UserRegistry, error) {
	var reg types.UserRegistry
	if err := d.db.Preload("Entries").Where("owner = ?", owner).First(&reg).Error; err != nil {
		return nil, err
	}
	return &reg, nil
}

func (d *Database) GetByAddress(address string) (*types.UserRegistry, error) {
	var reg types.UserRegistry
	if err := d.db.Preload("Entries").Where("address = ?", address).First(&reg).Error; err != nil {
		return nil, err
	}
	return &reg, nil
}

// The helpers below run inside a caller-owned transaction; the contract
// lifecycle mutates registries atomically with its own state changes.

// ForOwner fetches a registry inside tx, without its entries.
func ForOwner(tx *gorm.DB, owner string) (*types.UserRegistry, error) {
	var reg types.UserRegistry
	if err := tx.Where("owner = ?", owner).First(&reg).Error; err != nil {
		return nil, err
	}
	return &reg, nil
}

// EntryCount returns the number of participation entries on a registry.
func EntryCount(tx *gorm.DB, registryAddress string) (int64, error) {
	var count int64
	err := tx.Model(&types.RegistryEntry{}).
		Where("registry_address = ?", registryAddress).
		Count(&count).Error
	return count, err
}

// RecordContract appends a participation entry to a registry. Fails once
// the registry holds MaxContracts entries.
func RecordContract(tx *gorm.DB, reg *types.UserRegistry, contractAddress, role, status string) error {
	count, err := EntryCount(tx, reg.Address)
	if err != nil {
		return err
	}
	if count >= types.MaxContracts {
		return types.ErrMaxContractsReached
	}

	entry := &types.RegistryEntry{
		RegistryAddress: reg.Address,
		ContractAddress: contractAddress,
		Role:            role,
		Status:          status,
	}
	return tx.Create(entry).Error
}

// RefreshStatus updates the cached status snapshot for a contract entry
// so readers need not re-fetch the full contract.
func RefreshStatus(tx *gorm.DB, registryAddress, contractAddress, status string) error {
	return tx.Model(&types.RegistryEntry{}).
		Where("registry_address = ? AND contract_address = ?", registryAddress, contractAddress).
		Update("status", status).Error
}

// IncrementContractCount consumes the registry's nonce.
func IncrementContractCount(tx *gorm.DB, reg *types.UserRegistry) error {
	return tx.Model(&types.UserRegistry{}).
		Where("address = ?", reg.Address).
		Updates(map[string]interface{}{
			"contract_count": gorm.Expr("contract_count + 1"),
			"updated_at":     time.Now(),
		}).Error
}
