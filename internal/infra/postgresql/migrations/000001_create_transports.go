package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/opsportal/notifier/internal/repository"
	"gorm.io/gorm"
)

func createTransportsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_transports",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.TransportModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_transports_tenant_channel ON transports (tenant_id, channel)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.TransportModel{})
		},
	}
}
