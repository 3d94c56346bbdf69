package util

import (
	"bytes"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	loggerMu sync.RWMutex
	logger   *slog.Logger
)

// InitLogger initializes the global slog logger with appropriate level
func InitLogger(verbose bool) {
	InitLoggerWithWriter(os.Stdout, verbose)
}

// InitLoggerWithWriter is InitLogger with an explicit destination.
func InitLoggerWithWriter(w io.Writer, verbose bool) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo, // Default level
	}

	if verbose {
		opts.Level = slog.LevelDebug
	}

	l := slog.New(slog.NewTextHandler(w, opts))

	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()

	slog.SetDefault(l)
}

// GetLogger returns the configured logger instance
func GetLogger() *slog.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()

	if l == nil {
		// Fallback initialization with INFO level
		InitLogger(false)
		return GetLogger()
	}
	return l
}

// SetupGlobalLogger replaces the standard log package logger
func SetupGlobalLogger() {
	log.SetFlags(0)
	log.SetOutput(&logWriter{})
}

type logWriter struct{}

func (w *logWriter) Write(p []byte) (n int, err error) {
	GetLogger().Info(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// PrefixLogWriter turns a child process output stream into log records,
// one per line, tagged with a prefix.
type PrefixLogWriter struct {
	mu     sync.Mutex
	prefix string
	buf    bytes.Buffer
}

// NewPrefixLogWriter creates a writer that logs each complete line with prefix.
func NewPrefixLogWriter(prefix string) *PrefixLogWriter {
	return &PrefixLogWriter{prefix: prefix}
}

func (w *PrefixLogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Incomplete line, put it back for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.emit(line)
	}
	return len(p), nil
}

// Flush logs whatever partial line is still buffered.
func (w *PrefixLogWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *PrefixLogWriter) emit(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	GetLogger().Info(w.prefix + " " + line)
}
