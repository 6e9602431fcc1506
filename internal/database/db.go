package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"roofpro-hub/internal/database/models"
)

func NewConnection(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("DSN is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	return db, nil
}

func migrate(db *gorm.DB, name string, dst ...interface{}) error {
	if err := db.AutoMigrate(dst...); err != nil {
		return fmt.Errorf("migrate %s: %w", name, err)
	}
	logrus.WithField("schema", name).Info("migrations applied")
	return nil
}

func MigrateUserDB(db *gorm.DB) error {
	return migrate(db, "user", &models.Profile{})
}

func MigrateCommissionDB(db *gorm.DB) error {
	return migrate(db, "commissions",
		&models.CommissionTier{},
		&models.CommissionDocument{},
		&models.CommissionSubmission{},
		&models.CommissionStatusEvent{},
		&models.Draw{},
		&models.DrawApplication{},
	)
}

func MigrateComplianceDB(db *gorm.DB) error {
	return migrate(db, "compliance",
		&models.SOPDocument{},
		&models.SOPAcknowledgment{},
		&models.ComplianceHold{},
		&models.ComplianceViolation{},
	)
}

func MigrateDirectoryDB(db *gorm.DB) error {
	return migrate(db, "directory",
		&models.Subcontractor{},
		&models.Vendor{},
		&models.Prospect{},
		&models.TrainingMaterial{},
	)
}

func MigrateIntegrationsDB(db *gorm.DB) error {
	return migrate(db, "integrations",
		&models.CRMJob{},
		&models.EmailLog{},
	)
}
