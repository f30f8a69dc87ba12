package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/opsportal/notifier/internal/repository"
	"gorm.io/gorm"
)

func createNotificationsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_notifications",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.NotificationModel{}); err != nil {
				return err
			}
			indexes := []string{
				// The pending scan reads (tenant, status) oldest first.
				`CREATE INDEX IF NOT EXISTS idx_notifications_tenant_status_created ON notifications (tenant_id, status, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_notifications_transport_id ON notifications (transport_id)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.NotificationModel{})
		},
	}
}
