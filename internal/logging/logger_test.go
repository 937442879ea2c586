package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"catalog-loader/internal/config"
	apperrors "catalog-loader/internal/errors"
)

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loader.log")
	cfg := config.Logging{Level: "info", Format: "json", Output: "file", File: path, MaxSize: 1}

	logger, closeFn, err := New(config.Production, cfg)
	require.NoError(t, err)

	logger.Info("load finished")
	logger.Debug("dropped")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"load finished"`)
	assert.Contains(t, string(data), `"environment":"production"`)
	assert.NotContains(t, string(data), "dropped")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, _, err := New(config.Development, config.Logging{Level: "loud", Output: "stderr"})
	assert.Error(t, err)
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want zapcore.Level
	}{
		{"decode failures are info", apperrors.Decode("X", "x").Build(), zapcore.InfoLevel},
		{"store writes are warnings", apperrors.StoreWrite("X", "x").Build(), zapcore.WarnLevel},
		{"io is an error", apperrors.IO("X", "x").Build(), zapcore.ErrorLevel},
		{"foreign errors are errors", os.ErrClosed, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LevelFor(tt.err))
		})
	}
}

func TestErrorFields(t *testing.T) {
	err := apperrors.StoreRead("QUERY_FAILED", "query failed").
		WithOperation("QueryItem").
		WithResource("catalog_items").
		Build()

	fields := ErrorFields(err)
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"error_type", "error_code", "error_message", "operation", "resource"}, keys)

	assert.Len(t, ErrorFields(os.ErrClosed), 1)
}
