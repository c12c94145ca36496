// Package redact masks sensitive values in outgoing LogEntry records before
// they reach search results, exports, or alarm notifications.
package redact

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"grepwise/internal/errs"
	"grepwise/internal/logentry"
)

// Mask strings. Search/export results use the longer mask; alarm payloads
// (embedded in notification text, often space-constrained) use the shorter
// one. Both are fixed per the redaction design, not configurable.
const (
	MaskSearch = "*****"
	MaskAlarm  = "***"
)

// defaultKeys are always present in the flattened key set, even for a
// config that never mentions them.
var defaultKeys = []string{"password", "passwd"}

// GroupEntry is the value half of one RedactionConfig property.
type GroupEntry struct {
	Patterns []string `json:"patterns"`
}

// RedactionConfig is the grouped on-disk/API shape: each property name is
// either a single keyword ("password") or a JSON-encoded array of keywords
// (`["password","passwd"]`) sharing one pattern list. It marshals directly
// to/from the JSON object described by the redaction.json format.
type RedactionConfig map[string]GroupEntry

// DefaultConfig returns a config carrying only the always-present default
// keywords, paired with patterns that mask their value in a `key=value`
// message (e.g. "password=hunter2"). Without these, the default keys only
// ever mask a metadata field literally named "password"/"passwd"; messages
// and raw content would pass through unredacted.
func DefaultConfig() RedactionConfig {
	cfg := RedactionConfig{}
	key, _ := json.Marshal(defaultKeys)
	cfg[string(key)] = GroupEntry{Patterns: []string{
		`(?i)(password=)(\S+)`,
		`(?i)(passwd=)(\S+)`,
	}}
	return cfg
}

// groupKeywords parses one property name back into its keyword list: either
// a JSON array of strings, or a single bare keyword.
func groupKeywords(propertyName string) []string {
	var list []string
	if err := json.Unmarshal([]byte(propertyName), &list); err == nil {
		return list
	}
	return []string{propertyName}
}

// Flattened is the convenience view returned by GET /redaction/config: the
// union of every group's keywords, and every group's patterns in a stable
// order, both as strings and pre-compiled for matching.
type Flattened struct {
	Keys       []string
	PatternSrc []string
	compiled   []*regexp.Regexp
}

// Flatten derives the flattened view, compiling every pattern. Returns
// errs.ErrBadConfig-wrapped error on the first invalid pattern.
func (c RedactionConfig) Flatten() (Flattened, error) {
	keySet := make(map[string]struct{}, len(defaultKeys))
	for _, k := range defaultKeys {
		keySet[k] = struct{}{}
	}

	groupNames := make([]string, 0, len(c))
	for name := range c {
		groupNames = append(groupNames, name)
	}
	sort.Strings(groupNames)

	var patternSrc []string
	var compiled []*regexp.Regexp
	for _, name := range groupNames {
		for _, kw := range groupKeywords(name) {
			keySet[strings.ToLower(kw)] = struct{}{}
		}
		for _, p := range c[name].Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return Flattened{}, fmt.Errorf("redaction pattern %q: %w: %v", p, errs.ErrBadConfig, err)
			}
			patternSrc = append(patternSrc, p)
			compiled = append(compiled, re)
		}
	}

	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return Flattened{Keys: keys, PatternSrc: patternSrc, compiled: compiled}, nil
}

// Redactor masks LogEntry fields according to a loaded RedactionConfig. Safe
// for concurrent use; Reload swaps the active flattened view atomically.
type Redactor struct {
	mu   sync.RWMutex
	flat Flattened
}

// New builds a Redactor from cfg, compiling its patterns up front.
func New(cfg RedactionConfig) (*Redactor, error) {
	flat, err := cfg.Flatten()
	if err != nil {
		return nil, err
	}
	return &Redactor{flat: flat}, nil
}

// Reload recompiles cfg and swaps it in, affecting all subsequent Redact
// calls. Concurrent Redact calls in flight observe the previous config.
func (r *Redactor) Reload(cfg RedactionConfig) error {
	flat, err := cfg.Flatten()
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.flat = flat
	r.mu.Unlock()
	return nil
}

// Flattened returns the active flattened view, for GET /redaction/config.
func (r *Redactor) Flattened() Flattened {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flat
}

// Redact returns a redacted copy of entry using mask (MaskSearch or
// MaskAlarm). Patterns are applied to Message, RawContent, and every
// metadata value; metadata entries whose key is in the flattened key set
// (case-insensitive) are fully masked regardless of pattern matches.
func (r *Redactor) Redact(entry logentry.LogEntry, mask string) logentry.LogEntry {
	r.mu.RLock()
	flat := r.flat
	r.mu.RUnlock()

	out := entry.Copy()
	out.Message = redactPatterns(out.Message, flat.compiled, mask)
	out.RawContent = redactPatterns(out.RawContent, flat.compiled, mask)
	if len(out.Metadata) > 0 {
		for k, v := range out.Metadata {
			if isRedactedKey(flat.Keys, k) {
				out.Metadata[k] = mask
				continue
			}
			out.Metadata[k] = redactPatterns(v, flat.compiled, mask)
		}
	}
	return out
}

func isRedactedKey(keys []string, k string) bool {
	k = strings.ToLower(k)
	for _, key := range keys {
		if key == k {
			return true
		}
	}
	return false
}

func redactPatterns(s string, patterns []*regexp.Regexp, mask string) string {
	for _, re := range patterns {
		s = applyPattern(re, s, mask)
	}
	return s
}

// applyPattern replaces matches of re in s with mask. When re declares two
// or more capture groups, group 1 is preserved and group 2 replaced by the
// mask (e.g. to keep a field name while masking its value); otherwise the
// entire match is replaced.
func applyPattern(re *regexp.Regexp, s, mask string) string {
	if re.NumSubexp() < 2 {
		return re.ReplaceAllString(s, mask)
	}
	return re.ReplaceAllStringFunc(s, func(m string) string {
		sub := re.FindStringSubmatch(m)
		if len(sub) < 3 {
			return m
		}
		return sub[1] + mask
	})
}
