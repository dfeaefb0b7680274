// Package logutil configures the standard logger, optionally writing to a
// size-rotated file.
package logutil

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

const (
	maxSizeBytes = 10 * 1024 * 1024
	maxArchives  = 3
)

var (
	closeMu sync.Mutex
	closer  = noClose
	osExit  = os.Exit
)

func noClose() error { return nil }

// Setup sends log output to stderr, or to path with rotation when path is set.
// The returned function closes the file.
func Setup(path string, verbose bool) (func() error, error) {
	flags := log.LstdFlags
	if verbose {
		flags |= log.Lshortfile
	}
	log.SetFlags(flags)

	if path == "" {
		log.SetOutput(os.Stderr)
		setCloser(noClose)
		return noClose, nil
	}

	w, err := NewRotatingWriter(path, maxSizeBytes, maxArchives)
	if err != nil {
		return nil, err
	}
	log.SetOutput(w)
	setCloser(w.Close)
	return w.Close, nil
}

func setCloser(c func() error) {
	closeMu.Lock()
	closer = c
	closeMu.Unlock()
}

// Fatal logs v, closes the log file opened by Setup and exits with status 1
func Fatal(v ...any) {
	log.Output(2, fmt.Sprint(v...))
	Exit(1)
}

// Exit closes the log file opened by Setup and exits with code
func Exit(code int) {
	closeMu.Lock()
	c := closer
	closer = noClose
	closeMu.Unlock()

	c()
	osExit(code)
}

// Quiet discards log output, for commands whose stdout is the product
func Quiet() {
	log.SetOutput(io.Discard)
}

// RotatingWriter appends to a file and rotates it to .1, .2, ... once it
// would grow past maxSize
type RotatingWriter struct {
	mu       sync.Mutex
	path     string
	maxSize  int64
	archives int
	f        *os.File
}

// NewRotatingWriter opens path for appending, rotating first if it is full
func NewRotatingWriter(path string, maxSize int64, archives int) (*RotatingWriter, error) {
	w := &RotatingWriter{path: path, maxSize: maxSize, archives: archives}
	w.rotateIfNeeded(0)
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	w.f = f
	return nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return 0, os.ErrClosed
	}
	if st, err := w.f.Stat(); err == nil && st.Size()+int64(len(p)) > w.maxSize {
		_ = w.f.Close()
		w.rotateIfNeeded(int64(len(p)))
		if err := w.open(); err != nil {
			w.f = nil
			return 0, err
		}
	}
	return w.f.Write(p)
}

// Close closes the current file
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// rotateIfNeeded shifts archives when the file plus pending bytes exceeds
// maxSize; the oldest archive is dropped
func (w *RotatingWriter) rotateIfNeeded(pending int64) {
	st, err := os.Stat(w.path)
	if err != nil || st.Size()+pending <= w.maxSize || st.Size() == 0 {
		return
	}
	_ = os.Remove(w.archiveName(w.archives))
	for i := w.archives - 1; i >= 1; i-- {
		_ = os.Rename(w.archiveName(i), w.archiveName(i+1))
	}
	_ = os.Rename(w.path, w.archiveName(1))
}

func (w *RotatingWriter) archiveName(n int) string {
	return fmt.Sprintf("%s.%d", w.path, n)
}
