package migrations

import (
	"gorm.io/gorm"
)

// AddLedgerIndexes creates secondary indexes for the common lookup paths.
// Using raw SQL for index creation to have more control over index types
func AddLedgerIndexes(db *gorm.DB) error {
	indexes := []string{
		// Registry participation lookups by contract
		`CREATE INDEX IF NOT EXISTS idx_registry_entries_contract
		 ON registry_entries(registry_address, contract_address)`,

		// Contract scans by party
		`CREATE INDEX IF NOT EXISTS idx_option_contracts_parties
		 ON option_contracts(buyer, seller)`,

		// Settlement crank scans by status
		`CREATE INDEX IF NOT EXISTS idx_option_contracts_status
		 ON option_contracts(status)`,

		// Audit trail lookups by contract reference
		`CREATE INDEX IF NOT EXISTS idx_transfers_reference
		 ON transfers(reference)`,

		// Journal queries per account
		`CREATE INDEX IF NOT EXISTS idx_transfers_from_account
		 ON transfers(from_account)`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_to_account
		 ON transfers(to_account)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
