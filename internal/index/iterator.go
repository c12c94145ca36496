package index

import "grepwise/internal/logentry"

// ResultIterator yields Search results in order. It is finite and
// non-restartable: once exhausted, a new Search call is required.
type ResultIterator struct {
	entries []logentry.LogEntry
	pos     int
}

func newResultIterator(entries []logentry.LogEntry) *ResultIterator {
	return &ResultIterator{entries: entries}
}

// Next advances to the next result, returning false when exhausted.
func (it *ResultIterator) Next() bool {
	if it.pos >= len(it.entries) {
		return false
	}
	it.pos++
	return true
}

// Entry returns the result Next most recently advanced to.
func (it *ResultIterator) Entry() logentry.LogEntry {
	return it.entries[it.pos-1]
}

// Remaining returns every not-yet-consumed result without advancing, for
// callers that want to materialize the rest of the iterator at once (e.g.
// the Executor's head/tail stages).
func (it *ResultIterator) Remaining() []logentry.LogEntry {
	return it.entries[it.pos:]
}
