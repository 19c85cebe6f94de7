// Package transcript appends call transcripts to a plain-text log file.
// One line per utterance, plus call start/end markers. Failed appends are
// logged and dropped; they never fail the call.
package transcript

import (
	"fmt"
	"os"
	"sync"
	"unicode"

	"github.com/insurly/go-insurly/internal/log"
)

// Writer appends transcript lines to a single file. Writes from concurrent
// calls interleave at line granularity.
type Writer struct {
	mu   sync.Mutex
	path string
}

// NewWriter creates a writer appending to the file at path.
// The file is created on first write.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// CallStarted appends the call-start marker for a stream.
func (w *Writer) CallStarted(streamSid string) {
	w.appendLine(fmt.Sprintf("\n--- New call started: streamSid=%s ---", streamSid))
}

// Line appends one role-tagged utterance, e.g. "User: my policy is POL123".
func (w *Writer) Line(role, text string) {
	w.appendLine(capitalize(role) + ": " + text)
}

// CallEnded appends the call-end marker for a stream.
func (w *Writer) CallEnded(streamSid string) {
	w.appendLine(fmt.Sprintf("--- Call ended: streamSid=%s ---\n", streamSid))
}

// appendLine writes one line to the log. Best-effort: errors are logged.
func (w *Writer) appendLine(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Warn("transcript: open failed", "path", w.path, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.WriteString(line + "\n"); err != nil {
		log.Warn("transcript: append failed", "path", w.path, "error", err)
	}
}

// capitalize upper-cases the first rune: "user" -> "User".
func capitalize(s string) string {
	for i, r := range s {
		return string(unicode.ToUpper(r)) + s[i+len(string(r)):]
	}
	return s
}
