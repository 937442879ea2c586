// Package logging builds the zap logger from configuration.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"catalog-loader/internal/config"
	apperrors "catalog-loader/internal/errors"
)

// New creates a logger for cfg. The returned close function flushes the
// logger and releases the rotating file, if any.
func New(env config.Environment, cfg config.Logging) (*zap.Logger, func() error, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var encCfg zapcore.EncoderConfig
	if env == config.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
	} else {
		encCfg = zap.NewProductionEncoderConfig()
	}
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	var (
		sink    zapcore.WriteSyncer
		closers []io.Closer
	)
	switch cfg.Output {
	case "stdout":
		sink = zapcore.Lock(os.Stdout)
	case "file":
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		sink = zapcore.AddSync(rotator)
		closers = append(closers, rotator)
	default:
		sink = zapcore.Lock(os.Stderr)
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if env == config.Development {
		opts = append(opts, zap.Development())
	}

	logger := zap.New(zapcore.NewCore(encoder, sink, zap.NewAtomicLevelAt(level)), opts...).
		With(zap.String("environment", string(env)))

	closeFn := func() error {
		_ = logger.Sync()
		for _, c := range closers {
			if err := c.Close(); err != nil {
				return err
			}
		}
		return nil
	}
	return logger, closeFn, nil
}

// LevelFor maps an error severity to the level it should be logged at.
func LevelFor(err error) zapcore.Level {
	var unified *apperrors.UnifiedError
	if !apperrors.As(err, &unified) {
		return zapcore.ErrorLevel
	}
	switch unified.Severity {
	case apperrors.SeverityCritical, apperrors.SeverityHigh:
		return zapcore.ErrorLevel
	case apperrors.SeverityMedium:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// ErrorFields flattens a UnifiedError into structured log fields.
func ErrorFields(err error) []zap.Field {
	var unified *apperrors.UnifiedError
	if !apperrors.As(err, &unified) {
		return []zap.Field{zap.Error(err)}
	}
	fields := []zap.Field{
		zap.String("error_type", string(unified.Type)),
		zap.String("error_code", unified.Code),
		zap.String("error_message", unified.Message),
	}
	if unified.Details != "" {
		fields = append(fields, zap.String("error_details", unified.Details))
	}
	if unified.Operation != "" {
		fields = append(fields, zap.String("operation", unified.Operation))
	}
	if unified.Resource != "" {
		fields = append(fields, zap.String("resource", unified.Resource))
	}
	if unified.Retryable {
		fields = append(fields, zap.Bool("retryable", true))
	}
	return fields
}
