package migrations

import "github.com/amirphl/affiliate-engine/models"

func init() {
	migrationsList = append(migrationsList, autoMigration(
		"000001_create_affiliate_tables",
		&models.AffiliateUser{},
		&models.Campaign{},
		&models.PlatformConfig{},
		&models.CommissionRecord{},
		&models.DailyActionCounter{},
	))
}
