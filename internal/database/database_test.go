package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"tribune/internal/config"
	"tribune/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestConfigurePool(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	cfg := &config.Config{
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           5,
		DBConnMaxLifetimeMinutes: 15,
	}
	require.NoError(t, configurePool(db, cfg))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)
}

func TestDialectorFor(t *testing.T) {
	d, err := dialectorFor(&config.Config{DBDriver: "postgres", DBHost: "db", DBPort: "5432"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	d, err = dialectorFor(&config.Config{DBDriver: "sqlite", DBSQLitePath: ":memory:"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())

	_, err = dialectorFor(&config.Config{DBDriver: "mysql"})
	assert.Error(t, err)
}

func TestApplySchema_SQLiteUsesAutoMigrate(t *testing.T) {
	cfg := &config.Config{
		DBDriver:       "sqlite",
		DBSQLitePath:   "file:schema_test?mode=memory&cache=shared",
		DBMaxOpenConns: 1,
		Env:            "test",
	}
	db, err := Connect(cfg)
	require.NoError(t, err)

	require.NoError(t, ApplySchema(context.Background(), db, cfg))
	for _, m := range PersistentModels() {
		assert.True(t, db.Migrator().HasTable(m))
	}
}

func TestSchemaPolicy(t *testing.T) {
	tests := []struct {
		name              string
		cfg               config.Config
		wantSQL, wantAuto bool
		wantErr           bool
	}{
		{"hybrid dev", config.Config{DBSchemaMode: "hybrid", Env: "development"}, true, true, false},
		{"hybrid prod", config.Config{DBSchemaMode: "hybrid", Env: "production"}, true, false, false},
		{"sql", config.Config{DBSchemaMode: "sql", Env: "development"}, true, false, false},
		{"auto prod refused", config.Config{DBSchemaMode: "auto", Env: "production"}, false, false, true},
		{"auto prod allowed", config.Config{DBSchemaMode: "auto", Env: "production", DBAutoMigrateAllowDestructive: true}, false, true, false},
		{"sqlite", config.Config{DBSchemaMode: "sql", DBDriver: "sqlite"}, false, true, false},
		{"unknown", config.Config{DBSchemaMode: "yolo"}, false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runSQL, runAuto, err := schemaPolicy(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, runSQL)
			assert.Equal(t, tt.wantAuto, runAuto)
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Subscriber{}))

	require.NoError(t, db.Create(&models.Subscriber{Email: "a@b.co"}).Error)
	dupErr := db.Create(&models.Subscriber{Email: "a@b.co"}).Error
	require.Error(t, dupErr)
	assert.True(t, IsUniqueViolation(dupErr))

	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsUniqueViolation(nil))
}
