package logentry

import (
	"fmt"
	"regexp"
	"sync"
)

// FieldKind tells the index engine how to store and compare an extracted
// field's values.
type FieldKind int

const (
	FieldString FieldKind = iota
	FieldLong
	FieldDouble
)

// FieldDef declares one extractable field. When Pattern is non-nil, the
// field's value is extracted by applying Pattern to Source (message or
// raw_content) and taking the first capture group; when Pattern is nil the
// field must be supplied directly via Metadata under Name.
type FieldDef struct {
	Name    string
	Kind    FieldKind
	Source  ExtractSource
	Pattern *regexp.Regexp
}

// ExtractSource is where a FieldDef's Pattern is applied.
type ExtractSource int

const (
	SourceMessage ExtractSource = iota
	SourceRawContent
)

// Registry holds the set of fields extracted at ingest time, beyond the
// engine's always-indexed fields (level, source, timestamp). It is owned
// by the caller that configures ingestion (the Partition Manager's owner)
// and passed by reference into the Index Engine.
type Registry struct {
	mu     sync.RWMutex
	fields map[string]FieldDef
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{fields: make(map[string]FieldDef)}
}

// Define adds or replaces a field definition. Returns an error if pattern
// compiles but declares zero capture groups, since there would be nothing
// to extract.
func (r *Registry) Define(name string, kind FieldKind, source ExtractSource, pattern string) error {
	var re *regexp.Regexp
	if pattern != "" {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("field %q: compile pattern: %w", name, err)
		}
		if compiled.NumSubexp() < 1 {
			return fmt.Errorf("field %q: pattern must have at least one capture group", name)
		}
		re = compiled
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields[name] = FieldDef{Name: name, Kind: kind, Source: source, Pattern: re}
	return nil
}

// Remove deletes a field definition. No-op if it doesn't exist.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.fields, name)
}

// Fields returns a snapshot of all defined fields.
func (r *Registry) Fields() []FieldDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]FieldDef, 0, len(r.fields))
	for _, f := range r.fields {
		out = append(out, f)
	}
	return out
}

// Extract runs every defined field's pattern against entry and returns the
// resulting key/value pairs, without mutating entry. Fields whose pattern
// does not match are omitted. Fields with a nil Pattern are skipped (they
// are expected to already be present in entry.Metadata).
func (r *Registry) Extract(entry LogEntry) map[string]string {
	r.mu.RLock()
	defs := make([]FieldDef, 0, len(r.fields))
	for _, f := range r.fields {
		defs = append(defs, f)
	}
	r.mu.RUnlock()

	if len(defs) == 0 {
		return nil
	}
	out := make(map[string]string, len(defs))
	for _, f := range defs {
		if f.Pattern == nil {
			continue
		}
		src := entry.Message
		if f.Source == SourceRawContent {
			src = entry.RawContent
		}
		m := f.Pattern.FindStringSubmatch(src)
		if len(m) < 2 {
			continue
		}
		out[f.Name] = m[1]
	}
	return out
}
