package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide logger. It discards everything until Init is called,
// so library packages and their tests can log without setup.
var Log = zap.NewNop().Sugar()

var logFile *os.File

// Init replaces Log. Console output goes to stderr in color, leaving stdout
// to the documents commands print. With logPath set, entries are written to
// that file as JSON instead and the file is truncated first.
func Init(verbose bool, logPath string) error {
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}

	if logPath == "" {
		enc := zap.NewDevelopmentEncoderConfig()
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		enc.EncodeCaller = nil
		core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), level)
		Log = zap.New(core).Sugar()
		return nil
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	logFile = f

	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(f), level)
	Log = zap.New(core).Sugar()
	return nil
}

// Sync flushes buffered entries and closes the log file, if any.
func Sync() {
	_ = Log.Sync()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}
