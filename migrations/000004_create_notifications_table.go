package migrations

import "github.com/amirphl/affiliate-engine/models"

func init() {
	migrationsList = append(migrationsList, autoMigration(
		"000004_create_notifications_table",
		&models.Notification{},
	))
}
