/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer keeps the most recent log lines in memory so a remote
// operator can read them from the status API without shell access.
package logbuffer

import (
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"
)

// LogEntry is one parsed zerolog line.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Buffer is a thread-safe ring of log entries.
type Buffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	head    int
	count   int
}

// New creates a buffer holding up to capacity entries.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 2000
	}
	return &Buffer{entries: make([]LogEntry, capacity)}
}

// Add stores an entry, evicting the oldest when full.
func (b *Buffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.head] = entry
	b.head = (b.head + 1) % len(b.entries)
	if b.count < len(b.entries) {
		b.count++
	}
}

// newestFirst returns the entries, newest first.
func (b *Buffer) newestFirst() []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]LogEntry, 0, b.count)
	for i := 1; i <= b.count; i++ {
		idx := (b.head - i + len(b.entries)) % len(b.entries)
		out = append(out, b.entries[idx])
	}
	return out
}

// Query filters the buffer. Zero values match everything.
type Query struct {
	Level     string
	Component string
	Search    string
	Since     time.Time
	Limit     int
}

// Find returns matching entries, newest first.
func (b *Buffer) Find(q Query) []LogEntry {
	search := strings.ToLower(q.Search)
	var out []LogEntry
	for _, e := range b.newestFirst() {
		if q.Level != "" && e.Level != q.Level {
			continue
		}
		if q.Component != "" && e.Component != q.Component {
			continue
		}
		if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(e.Message), search) &&
			!strings.Contains(strings.ToLower(e.Component), search) {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out
}

// Stats counts buffered entries per level.
type Stats struct {
	Capacity   int            `json:"capacity"`
	Count      int            `json:"count"`
	LevelCount map[string]int `json:"level_count"`
}

// Stats summarises the buffer.
func (b *Buffer) Stats() Stats {
	entries := b.newestFirst()
	stats := Stats{Capacity: len(b.entries), Count: len(entries), LevelCount: make(map[string]int)}
	for _, e := range entries {
		stats.LevelCount[e.Level]++
	}
	return stats
}

// Writer feeds zerolog JSON lines into a Buffer.
type Writer struct {
	buffer   *Buffer
	fallback io.Writer
}

// NewWriter returns a writer for buffer; lines are also copied to fallback
// when it is set.
func NewWriter(buffer *Buffer, fallback io.Writer) *Writer {
	return &Writer{buffer: buffer, fallback: fallback}
}

// Write implements io.Writer. Lines that are not JSON are not buffered.
func (w *Writer) Write(p []byte) (int, error) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err == nil {
		entry := LogEntry{Timestamp: time.Now(), Fields: make(map[string]any)}
		for k, v := range raw {
			s, _ := v.(string)
			switch k {
			case "level":
				entry.Level = s
			case "message":
				entry.Message = s
			case "component":
				entry.Component = s
			case "time":
				if f, ok := v.(float64); ok {
					entry.Timestamp = time.Unix(int64(f), 0)
				}
			default:
				entry.Fields[k] = v
			}
		}
		w.buffer.Add(entry)
	}
	if w.fallback != nil {
		return w.fallback.Write(p)
	}
	return len(p), nil
}
