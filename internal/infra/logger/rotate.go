package logger

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RotatingFileOptions configures NewRotatingWriter. Zero values fall back to
// lumberjack's own defaults (100MB per file, no age/backup limit, no
// compression).
type RotatingFileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewRotatingWriter returns an io.Writer backed by a size/age-rotated log
// file, for use as the stdout argument to SetWriters when a run should log
// to disk instead of (or in addition to) the console.
func NewRotatingWriter(opts RotatingFileOptions) io.Writer {
	return &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
}
