package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var log = zap.NewNop()

type Options struct {
	// Env selects the encoder: "production" emits JSON, anything else a
	// colored console format.
	Env string
	// Level overrides the default level (info in production, debug otherwise).
	Level string
	// FilePath, when set, tees output into a size-rotated file.
	FilePath string
}

func New(opts Options) (*zap.Logger, error) {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	level := zap.NewAtomicLevelAt(zap.DebugLevel)
	encoder := zapcore.NewConsoleEncoder(encCfg)

	if opts.Env == "production" {
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "timestamp"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	if opts.Level != "" {
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(opts.Level)); err == nil {
			level.SetLevel(l)
		}
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level),
	}

	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o755); err != nil {
			return nil, err
		}

		fileEnc := zap.NewProductionEncoderConfig()
		fileEnc.TimeKey = "timestamp"
		fileEnc.EncodeTime = zapcore.ISO8601TimeEncoder

		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(fileEnc),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   opts.FilePath,
				MaxSize:    10, // MB
				MaxBackups: 7,
				MaxAge:     28, // days
				Compress:   true,
			}),
			level,
		))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func Get() *zap.Logger {
	return log
}

func Set(l *zap.Logger) {
	log = l
}

func Sync() error {
	return log.Sync()
}
