// Package logbuffer collects the per-item report lines produced by a job run.
package logbuffer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jwalitptl/card-notifier/pkg/logger"
)

// Sink receives one human-readable line per processed item.
type Sink interface {
	Printf(format string, args ...interface{})
}

// Buffer is an append-only, goroutine-safe line buffer.
type Buffer struct {
	mu     sync.Mutex
	lines  []string
	mirror *logger.Logger
}

// New returns an empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// NewMirrored returns a buffer that also writes every line to l at info level.
func NewMirrored(l *logger.Logger) *Buffer {
	return &Buffer{mirror: l}
}

func (b *Buffer) Printf(format string, args ...interface{}) {
	line := strings.TrimRight(fmt.Sprintf(format, args...), "\n")

	b.mu.Lock()
	b.lines = append(b.lines, line)
	b.mu.Unlock()

	if b.mirror != nil {
		b.mirror.Info(line)
	}
}

// Lines returns a copy of the collected lines.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

func (b *Buffer) LineCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

func (b *Buffer) String() string {
	return strings.Join(b.Lines(), "\n")
}

type discard struct{}

func (discard) Printf(string, ...interface{}) {}

// Discard drops every line.
var Discard Sink = discard{}
