package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tribune/internal/middleware"

	"gorm.io/gorm"
)

// appliedMigration is one row of schema_migrations.
type appliedMigration struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	Checksum  string    `gorm:"size:64;not null"`
	AppliedAt time.Time `gorm:"not null"`
}

func (appliedMigration) TableName() string { return "schema_migrations" }

// appliedMigrations lists recorded migrations by version; a database that
// never ran one has none.
func appliedMigrations(ctx context.Context, db *gorm.DB) ([]appliedMigration, error) {
	if !db.Migrator().HasTable(&appliedMigration{}) {
		return nil, nil
	}
	var rows []appliedMigration
	if err := db.WithContext(ctx).Order("version ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	return rows, nil
}

// RunMigrations applies every pending embedded migration, each in its own
// transaction.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	ms, err := Migrations()
	if err != nil {
		return err
	}
	return applyMigrations(ctx, db, ms)
}

func applyMigrations(ctx context.Context, db *gorm.DB, ms []Migration) error {
	if err := db.WithContext(ctx).AutoMigrate(&appliedMigration{}); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return err
	}
	if err := checkApplied(applied, ms); err != nil {
		return err
	}

	done := make(map[int]bool, len(applied))
	for _, a := range applied {
		done[a.Version] = true
	}
	for _, m := range ms {
		if done[m.Version] {
			continue
		}
		start := time.Now()
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(m.Up).Error; err != nil {
				return fmt.Errorf("apply %s: %w", m, err)
			}
			return tx.Create(&appliedMigration{
				Version:   m.Version,
				Name:      m.Name,
				Checksum:  m.Checksum(),
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return err
		}
		middleware.Logger.InfoContext(ctx, "migration applied",
			slog.String("migration", m.String()),
			slog.String("tables", strings.Join(m.Tables, ",")),
			slog.Duration("took", time.Since(start)))
	}
	return nil
}

// checkApplied rejects a database that recorded migrations this build does
// not ship, or whose scripts changed after they ran.
func checkApplied(applied []appliedMigration, ms []Migration) error {
	var problems []string
	for _, a := range applied {
		m, ok := migrationByVersion(ms, a.Version)
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("%06d_%s is applied but not embedded", a.Version, a.Name))
		case a.Checksum != m.Checksum():
			problems = append(problems, fmt.Sprintf("%s changed after it was applied", m))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("schema_migrations does not match this build: %s", strings.Join(problems, "; "))
}

// RollbackMigration runs the down script of version, which must be the most
// recently applied migration.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	ms, err := Migrations()
	if err != nil {
		return err
	}
	return rollbackMigration(ctx, db, ms, version)
}

// RollbackLatest undoes the most recently applied migration and returns it.
func RollbackLatest(ctx context.Context, db *gorm.DB) (Migration, error) {
	ms, err := Migrations()
	if err != nil {
		return Migration{}, err
	}
	return rollbackLatest(ctx, db, ms)
}

func rollbackLatest(ctx context.Context, db *gorm.DB, ms []Migration) (Migration, error) {
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return Migration{}, err
	}
	if len(applied) == 0 {
		return Migration{}, fmt.Errorf("no applied migrations to roll back")
	}
	version := applied[len(applied)-1].Version
	m, _ := migrationByVersion(ms, version)
	return m, rollbackMigration(ctx, db, ms, version)
}

func rollbackMigration(ctx context.Context, db *gorm.DB, ms []Migration, version int) error {
	m, ok := migrationByVersion(ms, version)
	if !ok {
		return fmt.Errorf("migration version %d is not embedded", version)
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return err
	}
	if len(applied) == 0 || applied[len(applied)-1].Version != version {
		return fmt.Errorf("%s is not the latest applied migration", m)
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.Down).Error; err != nil {
			return fmt.Errorf("roll back %s: %w", m, err)
		}
		return tx.Where("version = ?", version).Delete(&appliedMigration{}).Error
	})
	if err != nil {
		return err
	}
	middleware.Logger.InfoContext(ctx, "migration rolled back", slog.String("migration", m.String()))
	return nil
}
