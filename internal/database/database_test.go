package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"memtest-go/internal/config"
	"memtest-go/internal/models"
)

func TestInitSqliteMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "memtest.db")
	db, err := Init(config.DatabaseConfig{Driver: "sqlite", Path: path}, zap.NewNop())
	require.NoError(t, err)

	m := db.Migrator()
	assert.True(t, m.HasTable(models.TableTrialsColor))
	assert.True(t, m.HasTable(models.TableTrialsMonochrome))
	assert.True(t, m.HasTable(models.TableQuestionnaire))

	// Running migrations again is a no-op.
	assert.NoError(t, Migrate(db, zap.NewNop()))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "mysql"}, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported database driver")
}
