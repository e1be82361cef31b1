// This file contains the read-side of the log: parsing, filtering and
// exporting entries for the logs command.
package logging

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"
)

// LogEntry is one parsed line of the JSON log. Fields the logger always
// writes get their own slot; everything else lands in Attrs.
type LogEntry struct {
	Timestamp time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	Component string         `json:"component,omitempty"`
	Request   string         `json:"request,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// LogFilter selects a subset of log entries. Zero-valued fields do not
// filter; set fields combine with AND.
type LogFilter struct {
	// Level keeps entries at or above this level (DEBUG < INFO < WARN < ERROR).
	Level string
	// StartTime and EndTime bound the entry timestamps, inclusive.
	StartTime time.Time
	EndTime   time.Time
	// Component keeps entries logged by exactly this component.
	Component string
	// MessageContains keeps entries whose message has this substring.
	MessageContains string
}

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// wellKnown are the top-level JSON keys that map to named LogEntry fields
// rather than Attrs.
var wellKnown = map[string]bool{
	"time":      true,
	"level":     true,
	"msg":       true,
	"component": true,
	"request":   true,
}

// ReadLog parses every line of the JSON log at logPath, in timestamp order.
// Lines that are not valid JSON are dropped rather than failing the whole
// read, so a truncated or partially corrupted log stays inspectable.
func ReadLog(logPath string) ([]LogEntry, error) {
	file, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no log file found: %w", err)
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// A single entry with a large attribute payload can exceed the default
	// scanner token size.
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var entries []LogEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := parseLogEntry(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading log file: %w", err)
	}

	// Stable, so entries sharing a timestamp keep their file order.
	slices.SortStableFunc(entries, func(a, b LogEntry) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return entries, nil
}

func parseLogEntry(line string) (LogEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEntry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	entry := LogEntry{
		Level:     stringField(raw, "level"),
		Message:   stringField(raw, "msg"),
		Component: stringField(raw, "component"),
		Request:   stringField(raw, "request"),
		Attrs:     make(map[string]any),
	}
	// A malformed timestamp leaves the zero value; the entry is still
	// worth keeping.
	if ts, err := time.Parse(time.RFC3339Nano, stringField(raw, "time")); err == nil {
		entry.Timestamp = ts
	}
	for k, v := range raw {
		if !wellKnown[k] {
			entry.Attrs[k] = v
		}
	}
	return entry, nil
}

func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}

// FilterLogs returns the entries matching every set criterion of filter.
func FilterLogs(entries []LogEntry, filter LogFilter) []LogEntry {
	if filter == (LogFilter{}) {
		return entries
	}

	var kept []LogEntry
	for _, entry := range entries {
		if filter.matches(entry) {
			kept = append(kept, entry)
		}
	}
	return kept
}

func (f LogFilter) matches(entry LogEntry) bool {
	if f.Level != "" && !levelAtLeast(entry.Level, f.Level) {
		return false
	}
	if !f.StartTime.IsZero() && entry.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && entry.Timestamp.After(f.EndTime) {
		return false
	}
	if f.Component != "" && entry.Component != f.Component {
		return false
	}
	if f.MessageContains != "" && !strings.Contains(entry.Message, f.MessageContains) {
		return false
	}
	return true
}

// levelAtLeast reports whether level sits at or above min in the severity
// ordering. Unknown levels on either side pass the check, so odd log lines
// are surfaced rather than silently hidden.
func levelAtLeast(level, min string) bool {
	lo, ok := levelOrder[strings.ToUpper(level)]
	if !ok {
		return true
	}
	mo, ok := levelOrder[strings.ToUpper(min)]
	if !ok {
		return true
	}
	return lo >= mo
}

// ExportLogEntries writes entries to w as "json", "text" or "csv".
func ExportLogEntries(w io.Writer, entries []LogEntry, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "text":
		return exportText(w, entries)
	case "csv":
		return exportCSV(w, entries)
	default:
		return fmt.Errorf("unsupported export format %q (want json, text or csv)", format)
	}
}

// exportText renders one line per entry:
//
//	[2026-02-15 10:00:00.000] INFO - batch folded (component=batch) {"entries":3}
func exportText(w io.Writer, entries []LogEntry) error {
	for _, entry := range entries {
		parts := []string{
			"[" + entry.Timestamp.Format("2006-01-02 15:04:05.000") + "]",
			entry.Level,
			"-",
			entry.Message,
		}

		var ctx []string
		if entry.Component != "" {
			ctx = append(ctx, "component="+entry.Component)
		}
		if entry.Request != "" {
			ctx = append(ctx, "request="+entry.Request)
		}
		if len(ctx) > 0 {
			parts = append(parts, "("+strings.Join(ctx, ", ")+")")
		}
		if len(entry.Attrs) > 0 {
			attrs, _ := json.Marshal(entry.Attrs)
			parts = append(parts, string(attrs))
		}

		if _, err := fmt.Fprintln(w, strings.Join(parts, " ")); err != nil {
			return fmt.Errorf("failed to write text entry: %w", err)
		}
	}
	return nil
}

func exportCSV(w io.Writer, entries []LogEntry) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"timestamp", "level", "message", "component", "request", "attrs"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, entry := range entries {
		var attrs string
		if len(entry.Attrs) > 0 {
			if b, err := json.Marshal(entry.Attrs); err == nil {
				attrs = string(b)
			}
		}
		row := []string{
			entry.Timestamp.Format(time.RFC3339Nano),
			entry.Level,
			entry.Message,
			entry.Component,
			entry.Request,
			attrs,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	return nil
}
