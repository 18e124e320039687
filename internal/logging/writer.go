package logging

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
)

// LineWriter logs every complete line written to it as one record. It is
// used to stream the output of external programs into the run log.
type LineWriter struct {
	logger *slog.Logger
	level  slog.Level
	msg    string
	attr   string

	mu  sync.Mutex
	buf bytes.Buffer
}

// NewLineWriter logs lines at level with message msg, the line itself
// under the attr key.
func NewLineWriter(logger *slog.Logger, level slog.Level, msg, attr string) *LineWriter {
	if logger == nil {
		logger = Discard()
	}
	return &LineWriter{logger: logger, level: level, msg: msg, attr: attr}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(w.buf.Next(i+1), "\r\n"))
		w.emit(line)
	}
	return len(p), nil
}

// Flush logs a trailing line that was not terminated by a newline.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *LineWriter) emit(line string) {
	if line == "" {
		return
	}
	w.logger.Log(context.Background(), w.level, w.msg, w.attr, line)
}
