package ops

import (
	"bytes"
	"encoding/json"

	log "github.com/sirupsen/logrus"
)

// maxLogLine bounds a single buffered line before LineWriter discards it.
const maxLogLine = 1 << 16

// LineWriter is an io.Writer that splits arbitrary byte writes on '\n' and
// dispatches each complete, newline-delimited JSON log line to sink. It
// exists to adapt the stdout/stderr of an out-of-process helper (a
// kernel-probe subprocess, or a test fixture daemon) into this package's
// structured logging.
type LineWriter struct {
	sink  *log.Entry
	rem   []byte
}

// NewLineWriter returns a LineWriter that logs parsed lines through sink.
func NewLineWriter(sink *log.Entry) *LineWriter {
	return &LineWriter{sink: sink}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	var n = len(p)

	for {
		var i = bytes.IndexByte(p, '\n')
		if i < 0 {
			break
		}
		var line = p[:i]
		if len(w.rem) > 0 {
			line = append(w.rem, line...)
			w.rem = nil
		}
		w.logLine(line)
		p = p[i+1:]
	}

	if len(w.rem)+len(p) > maxLogLine {
		w.sink.WithField("length", len(w.rem)+len(p)).Error("ops: subprocess log line too long, discarding")
		w.rem = nil
	} else if len(p) > 0 {
		w.rem = append(w.rem, p...)
	}
	return n, nil
}

func (w *LineWriter) logLine(line []byte) {
	var fields log.Fields
	if err := json.Unmarshal(line, &fields); err != nil {
		// Not JSON: still surface the raw text rather than dropping it.
		w.sink.Info(string(line))
		return
	}
	w.sink.WithFields(fields).Info("subprocess log")
}
