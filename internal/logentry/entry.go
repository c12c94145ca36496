// Package logentry defines the canonical log record GrepWise ingests,
// indexes, and returns from search: LogEntry. It also hosts the Field
// Registry, which lets operators declare additional fields extracted from
// message/raw_content via regex at ingest time.
package logentry

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Level is a normalized log severity.
type Level string

const (
	LevelTrace   Level = "TRACE"
	LevelDebug   Level = "DEBUG"
	LevelInfo    Level = "INFO"
	LevelWarn    Level = "WARN"
	LevelError   Level = "ERROR"
	LevelFatal   Level = "FATAL"
	LevelUnknown Level = "UNKNOWN"
)

var knownLevels = map[Level]struct{}{
	LevelTrace: {}, LevelDebug: {}, LevelInfo: {}, LevelWarn: {},
	LevelError: {}, LevelFatal: {}, LevelUnknown: {},
}

// NormalizeLevel uppercases s and maps it to a known Level, defaulting to
// LevelUnknown for anything not recognized (including empty string).
func NormalizeLevel(s string) Level {
	lvl := Level(strings.ToUpper(strings.TrimSpace(s)))
	switch lvl {
	case "WARNING":
		return LevelWarn
	case "ERR":
		return LevelError
	case "CRITICAL", "CRIT":
		return LevelError
	}
	if _, ok := knownLevels[lvl]; ok {
		return lvl
	}
	return LevelUnknown
}

// maxMessageBytes bounds Message length at ingest to keep a single noisy
// source from blowing up index memory; raw_content is preserved in full.
const maxMessageBytes = 64 << 10

// LogEntry is an immutable-once-committed log record. Entries are either
// fully committed to exactly one partition or not visible to search at all;
// there is no partially-visible state.
type LogEntry struct {
	// ID is an opaque, globally unique, time-sortable identifier assigned
	// at ingest (UUIDv7). Unique within the partition it is committed to.
	ID string

	// Timestamp is milliseconds since epoch used for partition routing and
	// default ordering. Parsed from the record when possible; falls back
	// to ingest time otherwise.
	Timestamp int64

	// RecordTime is the time the record itself carried (New's sourceTime)
	// when that differs from the ingest time; Timestamp then holds the same
	// instant. Zero means the record carried no time of its own, or one
	// equal to the ingest time.
	RecordTime int64

	Level   Level
	Message string

	// Source identifies where the entry came from: a file path, a
	// "host/app" syslog tag, or an HTTP source tag.
	Source string

	// Metadata is a small, finite set of key/value attributes: extracted
	// fields, syslog structured data, HTTP-supplied metadata, etc.
	Metadata map[string]string

	// RawContent is the original line, byte-for-byte, preserved regardless
	// of how Message was derived or truncated.
	RawContent string
}

// New builds a LogEntry, normalizing level and bounding message length.
// ingestTime is used for Timestamp when sourceTime is zero.
func New(sourceTime, ingestTime time.Time, level, message, source, raw string, metadata map[string]string) LogEntry {
	ts := sourceTime
	if ts.IsZero() {
		ts = ingestTime
	}
	msg := message
	if len(msg) > maxMessageBytes {
		msg = msg[:maxMessageBytes]
	}
	var recordTime int64
	if !sourceTime.IsZero() && !sourceTime.Equal(ingestTime) {
		recordTime = sourceTime.UnixMilli()
	}
	return LogEntry{
		ID:         uuid.Must(uuid.NewV7()).String(),
		Timestamp:  ts.UnixMilli(),
		RecordTime: recordTime,
		Level:      NormalizeLevel(level),
		Message:    msg,
		Source:     source,
		Metadata:   metadata,
		RawContent: raw,
	}
}

// Copy returns a deep copy, safe to retain after the caller's buffers are
// reused (e.g. a mmap'd or pooled []byte backing RawContent).
func (e LogEntry) Copy() LogEntry {
	cp := e
	if e.Metadata != nil {
		cp.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}

// Time returns Timestamp as a time.Time in UTC.
func (e LogEntry) Time() time.Time {
	return time.UnixMilli(e.Timestamp).UTC()
}
