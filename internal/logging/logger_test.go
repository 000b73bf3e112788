package logger

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"memtest-go/internal/config"
)

func TestInitWritesLevelFiles(t *testing.T) {
	dir := t.TempDir()
	log, err := Init(config.LoggingConfig{Directory: dir, Level: "info", MaxSize: 1, MaxBackups: 1, MaxAge: 1})
	require.NoError(t, err)

	log.Debug("dropped")
	log.Info("kept")
	log.Warn("kept too")
	_ = log.Sync()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	today := time.Now().Format("2006-01-02")
	assert.Contains(t, names, today+"-info.log")
	assert.Contains(t, names, today+"-warn.log")
	assert.NotContains(t, names, today+"-debug.log")
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	_, err := Init(config.LoggingConfig{Directory: t.TempDir(), Level: "loud"})
	assert.Error(t, err)
}

func newObservedGorm(level logger.LogLevel) (*GormZapLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormZapLogger(zap.New(core))
	l.LogLevel = level
	return l, logs
}

func TestGormTrace(t *testing.T) {
	ctx := context.Background()
	query := func() (string, int64) { return "SELECT 1", 1 }

	l, logs := newObservedGorm(logger.Warn)
	l.Trace(ctx, time.Now(), query, nil)
	assert.Equal(t, 0, logs.Len())

	l.Trace(ctx, time.Now(), query, gorm.ErrRecordNotFound)
	assert.Equal(t, 0, logs.Len())

	l.Trace(ctx, time.Now(), query, errors.New("boom"))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[0].Level)

	l.Trace(ctx, time.Now().Add(-time.Second), query, nil)
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "Slow query", logs.All()[1].Message)

	verbose, vlogs := newObservedGorm(logger.Info)
	verbose.Trace(ctx, time.Now(), query, nil)
	require.Equal(t, 1, vlogs.Len())
	assert.Equal(t, "SELECT 1", vlogs.All()[0].ContextMap()["sql"])

	silent := l.LogMode(logger.Silent).(*GormZapLogger)
	silent.Trace(ctx, time.Now(), query, errors.New("boom"))
	assert.Equal(t, 2, logs.Len())
}
