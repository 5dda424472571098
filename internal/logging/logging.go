package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Xausdorf/votechain/internal/utils"
)

// New builds the process logger from LOG_LEVEL (debug, info, warn, error) and LOG_ENCODING (json, console).
func New() (*zap.Logger, error) {
	level := utils.Env("LOG_LEVEL", "info")
	cfg := zap.NewProductionConfig()
	cfg.Encoding = utils.Env("LOG_ENCODING", "json")
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Development = true
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
