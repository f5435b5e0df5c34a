package migrations

import "github.com/amirphl/affiliate-engine/models"

func init() {
	migrationsList = append(migrationsList, autoMigration(
		"000002_create_ledger_tables",
		&models.Wallet{},
		&models.WalletTransaction{},
		&models.Withdrawal{},
		&models.SettlementRun{},
	))
}
