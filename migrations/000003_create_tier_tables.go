package migrations

import "github.com/amirphl/affiliate-engine/models"

func init() {
	migrationsList = append(migrationsList, autoMigration(
		"000003_create_tier_tables",
		&models.Tier{},
		&models.Level{},
		&models.UserTierProgress{},
		&models.ProcessedGoalEvent{},
		&models.RewardLog{},
	))
}
