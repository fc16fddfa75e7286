// Package logging builds the zap logger shared by docmirror commands.
//
// Every command writes JSON records to ~/.docmirror/docmirror.log so that a
// failed background sync or hook check can be diagnosed after the fact.
// With --verbose a human-readable debug core is added on stderr. User-facing
// progress messages are not log records; they go to stdout via the output
// package.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures New.
type Options struct {
	File    string // JSON log file; empty disables the file core
	Verbose bool   // add a debug-level console core on stderr
}

// New builds a logger. If the log file cannot be opened the logger still
// works; the error is returned alongside it so the caller can warn.
func New(opts Options) (*zap.Logger, error) {
	var cores []zapcore.Core
	var fileErr error

	if opts.File != "" {
		ws, err := openFile(opts.File)
		if err != nil {
			fileErr = err
		} else {
			enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
			cores = append(cores, zapcore.NewCore(enc, ws, zap.InfoLevel))
		}
	}

	if opts.Verbose {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(os.Stderr),
			zap.DebugLevel,
		))
	}

	if len(cores) == 0 {
		return zap.NewNop(), fileErr
	}
	return zap.New(zapcore.NewTee(cores...)), fileErr
}

func openFile(path string) (zapcore.WriteSyncer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return zapcore.AddSync(f), nil
}
