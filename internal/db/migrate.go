package db

import (
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Account{},
		&AccountSquad{},
		&Squad{},
		&Transaction{},
		&ReferralEarning{},
		&PromoCodeUse{},
		&Admin{},
		&SystemSetting{},
		&SyncRun{},
	)
	if err != nil {
		return err
	}

	return ensureStatusConstraint(db)
}

// ensureStatusConstraint добавляет CHECK на статус аккаунта там, где диалект это умеет
func ensureStatusConstraint(db *gorm.DB) error {
	switch db.Dialector.Name() {
	case "sqlite":
		// SQLite не умеет ALTER TABLE ADD CONSTRAINT, статус проверяется в коде
		return nil
	case "mysql":
		var count int64
		err := db.Raw(`SELECT COUNT(*) FROM information_schema.table_constraints
			WHERE table_schema = DATABASE() AND table_name = 'accounts' AND constraint_name = 'chk_accounts_status'`).
			Scan(&count).Error
		if err != nil || count > 0 {
			return err
		}
		return db.Exec("ALTER TABLE accounts ADD CONSTRAINT chk_accounts_status CHECK (status IN ('active','disabled','expired'))").Error
	}
	return nil
}
