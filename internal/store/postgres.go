package store

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"vpntrack/internal/domain"
)

// PostgresStore is the database-backed record store, selected with
// STORE_BACKEND=postgres. Merge semantics are identical to the CSV store;
// only durability moves from flat files to tables.
type PostgresStore struct {
	db *gorm.DB
}

func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}

	if err := db.AutoMigrate(&domain.IPRecord{}, &domain.SubnetRecord{}); err != nil {
		return nil, fmt.Errorf("store: auto migrate: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStore wraps an already-open connection, skipping migration.
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) LoadIPs() ([]domain.IPRecord, error) {
	var records []domain.IPRecord
	if err := s.db.Order("first_seen").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("store: load ip records: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) SaveIPs(records []domain.IPRecord) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, rec := range records {
			rec.ID = 0 // let the ip key drive the upsert
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "ip"}},
				DoUpdates: clause.AssignmentColumns([]string{"last_seen", "country"}),
			}).Create(&rec).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: save ip records: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveSubnets(records []domain.SubnetRecord) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&domain.SubnetRecord{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		for i := range records {
			records[i].ID = 0
		}
		return tx.CreateInBatches(records, 200).Error
	})
	if err != nil {
		return fmt.Errorf("store: save subnet records: %w", err)
	}
	return nil
}
