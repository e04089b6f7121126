// Package cursor persists the last-assigned tender identifier so ids stay
// unique and increasing across runs.
package cursor

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Cursor hands out the starting point for id assignment and records the
// highest id consumed. Callers serialize access; a single run owns the
// cursor for its duration.
type Cursor interface {
	Read() (int, error)
	Write(value int) error
}

// FileCursor stores the cursor as decimal text in a single file.
type FileCursor struct {
	path string
}

var _ Cursor = (*FileCursor)(nil)

// NewFileCursor points the cursor at path. The file is created on the first
// Write.
func NewFileCursor(path string) *FileCursor {
	return &FileCursor{path: path}
}

// Read returns the persisted value. A missing file means no run has happened
// yet and yields 0. An unparsable file also yields 0; that keeps a corrupted
// cursor from blocking a run, at the cost of possible id reuse against
// historical output, so it is logged loudly.
func (c *FileCursor) Read() (int, error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read cursor %s: %w", c.path, err)
	}

	value, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		slog.Warn("cursor file unparsable, restarting ids from zero",
			slog.String("path", c.path),
			slog.String("contents", strings.TrimSpace(string(raw))),
		)
		return 0, nil
	}
	return value, nil
}

// Write overwrites the persisted value. Good enough for single-process use;
// no crash-safety guarantee.
func (c *FileCursor) Write(value int) error {
	if err := os.WriteFile(c.path, []byte(strconv.Itoa(value)), 0o644); err != nil {
		return fmt.Errorf("write cursor %s: %w", c.path, err)
	}
	return nil
}

// MemoryCursor is an in-process stand-in for tests and embedded callers.
type MemoryCursor struct {
	mu    sync.Mutex
	value int
}

var _ Cursor = (*MemoryCursor)(nil)

// NewMemoryCursor seeds the cursor with value.
func NewMemoryCursor(value int) *MemoryCursor {
	return &MemoryCursor{value: value}
}

// Read returns the current value.
func (c *MemoryCursor) Read() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, nil
}

// Write replaces the current value.
func (c *MemoryCursor) Write(value int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
	return nil
}
