package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"behavior-backend/internal/config"
	"behavior-backend/internal/models"
	"behavior-backend/internal/utils"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := &config.Config{DBDriver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "test.db")}
	db, err := Open(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	require.NoError(t, Migrate(db))
	return db
}

func TestPing_Postgres(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)

	mock.ExpectPing()
	assert.NoError(t, Ping(context.Background(), db))

	mock.ExpectPing().WillReturnError(errors.New("connection reset"))
	err = Ping(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_CreatesTables(t *testing.T) {
	db := openSQLite(t)
	for _, m := range models.All() {
		assert.True(t, db.Migrator().HasTable(m), "missing table for %T", m)
	}
	assert.NoError(t, Ping(context.Background(), db))
}

func TestSeedAdmin(t *testing.T) {
	db := openSQLite(t)

	created, err := SeedAdmin(db, "", "")
	require.NoError(t, err)
	assert.False(t, created)

	_, err = SeedAdmin(db, "admin", "")
	require.Error(t, err)

	created, err = SeedAdmin(db, "admin", "hunter2")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = SeedAdmin(db, "admin", "other")
	require.NoError(t, err)
	assert.False(t, created, "second seed must not overwrite")

	var admin models.User
	require.NoError(t, db.Where("username = ?", "admin").First(&admin).Error)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.True(t, admin.Active)
	assert.True(t, utils.CheckPassword("hunter2", admin.Password))
}
