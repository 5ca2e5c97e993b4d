// Package log builds the pipeline's zap logger: console output for the
// operator running a forecast by hand, a rotating debug log on disk for
// post-mortems, and email delivery of warnings so data-quality problems
// surface without anyone tailing logs.
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/coastwatch/bloomcast/pkg/config"
)

// Init builds the logger from the logging configuration. The returned close
// function flushes buffered entries and should run at process exit.
func Init(cfg config.LoggingConfig) (*zap.SugaredLogger, func()) {
	consoleLevel := zapcore.InfoLevel
	if cfg.Debug {
		consoleLevel = zapcore.DebugLevel
	}
	consoleEncoder := zapcore.NewConsoleEncoder(consoleEncoderConfig())
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), consoleLevel),
	}

	if cfg.LogFilename != "" {
		file := &lumberjack.Logger{
			Filename: cfg.LogFilename,
			MaxSize:  cfg.LogMaxSizeMB,
		}
		fileEncoder := zapcore.NewConsoleEncoder(fileEncoderConfig())
		cores = append(cores, zapcore.NewCore(
			fileEncoder, zapcore.AddSync(file), zapcore.DebugLevel))
	}

	if cfg.Email.Host != "" {
		cores = append(cores, newEmailCore(cfg.Email))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	return logger.Sugar(), func() { logger.Sync() }
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	return enc
}

func fileEncoderConfig() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04")
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	return enc
}
