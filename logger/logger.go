package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Log       *zap.SugaredLogger
	ZapLogger *zap.Logger // Expose the raw zap Logger
)

func init() {
	// Commands that run before InitLogger still get a usable logger.
	ZapLogger = zap.NewNop()
	Log = ZapLogger.Sugar()
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "T",
		LevelKey:         "L",
		NameKey:          "N",
		CallerKey:        "",
		FunctionKey:      zapcore.OmitKey,
		MessageKey:       "M",
		StacktraceKey:    "S",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeTime:       zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration:   zapcore.SecondsDurationEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		ConsoleSeparator: "  ",
	}
}

// New builds a logger with the application's console encoding that writes
// INFO and above to w.
func New(w io.Writer) *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig()),
		zapcore.AddSync(w),
		zap.InfoLevel,
	)
	return zap.New(core)
}

// InitLogger points the global logger at the file at path.
func InitLogger(path string) error {
	logFile, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("can't open log file: %w", err)
	}
	ZapLogger = New(logFile)
	Log = ZapLogger.Sugar()
	Log.Infow("Logger initialized", "path", path)
	return nil
}

// InitStderrLogger is used by the worker process, whose stdout carries the
// protocol.
func InitStderrLogger() {
	ZapLogger = New(os.Stderr)
	Log = ZapLogger.Sugar()
}

func Sync() {
	if ZapLogger != nil {
		_ = ZapLogger.Sync() // flushes buffer, if any
	}
}
