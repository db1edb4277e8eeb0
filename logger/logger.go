package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the application logger: JSON lines into a rotated file plus a
// console core. An empty logFilePath disables the file core.
func New(logFilePath string, isProd bool) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.LevelKey = "level"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	jsonEncoder := zapcore.NewJSONEncoder(encoderConfig)

	var consoleEncoder zapcore.Encoder
	if isProd {
		consoleEncoder = jsonEncoder
	} else {
		consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	consoleLevel := zap.DebugLevel
	if isProd {
		consoleLevel = zap.InfoLevel
	}

	// stderr keeps stdout free for command output
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), consoleLevel),
	}

	if logFilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   logFilePath,
			MaxSize:    10, // Megabytes
			MaxBackups: 5,
			MaxAge:     30, // Days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(jsonEncoder, zapcore.AddSync(rotator), zap.InfoLevel))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
