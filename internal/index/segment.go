package index

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"grepwise/internal/errs"
	"grepwise/internal/logentry"
)

// walRecord is one committed AddBatch call, framed with a length prefix so
// a crash mid-write leaves a truncated (recoverable) tail rather than a
// frame that decodes to garbage.
type walRecord struct {
	Entries []logentry.LogEntry
}

// appendRecord writes one length-prefixed msgpack frame and fsyncs it, so a
// reader that observes the frame after a crash sees either all of it or
// none of it.
func appendRecord(f *os.File, entries []logentry.LogEntry) error {
	payload, err := msgpack.Marshal(walRecord{Entries: entries})
	if err != nil {
		return fmt.Errorf("encode wal record: %w", errs.ErrIndexIO)
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := f.Write(header[:]); err != nil {
		return fmt.Errorf("write wal header: %w", errs.ErrIndexIO)
	}
	if _, err := f.Write(payload); err != nil {
		return fmt.Errorf("write wal payload: %w", errs.ErrIndexIO)
	}
	return f.Sync()
}

// replayWAL reads every complete frame from path in order. A truncated
// final frame (partial header or partial payload, as a crash mid-append
// would leave) is treated as the normal end of the log. A complete frame
// that fails to decode is corruption: the caller quarantines the partition.
func replayWAL(path string) ([]logentry.LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open wal: %w", errs.ErrIndexIO)
	}
	defer f.Close()

	var entries []logentry.LogEntry
	var header [4]byte
	for {
		if _, err := io.ReadFull(f, header[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, fmt.Errorf("read wal header: %w", errs.ErrIndexIO)
		}
		n := binary.BigEndian.Uint32(header[:])
		payload := make([]byte, n)
		if _, err := io.ReadFull(f, payload); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, fmt.Errorf("read wal payload: %w", errs.ErrIndexIO)
		}
		var rec walRecord
		if err := msgpack.NewDecoder(bytes.NewReader(payload)).Decode(&rec); err != nil {
			return entries, fmt.Errorf("decode wal record: %w", errs.ErrIndexCorrupt)
		}
		entries = append(entries, rec.Entries...)
	}
	return entries, nil
}
