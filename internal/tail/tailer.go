// Package tail implements the File Tailer intake path: it discovers log
// files by glob pattern, tails their growth between scan ticks, derives a
// LogEntry per line, and hands each to an Enqueuer (the ingestion Buffer).
// File positions survive restarts via a bookmark file keyed by path+inode.
package tail

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"grepwise/internal/logentry"
	"grepwise/internal/logging"
)

// Enqueuer is the ingestion buffer's write path, as the Tailer needs it.
type Enqueuer interface {
	Enqueue(ctx context.Context, e logentry.LogEntry, timeout time.Duration) error
}

// Config configures one Tailer instance, covering a single logical source
// (one or more glob patterns sharing a scan interval and bookmark file).
type Config struct {
	SourceName    string
	Patterns      []string
	ScanInterval  time.Duration
	StateFile     string
	EnqueueTimeout time.Duration
}

// fileState tracks a single tailed file's position and rotation identity.
type fileState struct {
	path    string
	inode   uint64
	offset  int64
	lineBuf []byte
	file    *os.File
}

// Tailer polls a set of glob patterns for new lines, between fsnotify-assisted
// wakeups, and forwards each line as a LogEntry to an Enqueuer.
type Tailer struct {
	cfg    Config
	out    Enqueuer
	logger *slog.Logger

	mu    sync.Mutex
	files map[string]*fileState
}

// New creates a Tailer. Run must be called to start tailing.
func New(cfg Config, out Enqueuer, logger *slog.Logger) *Tailer {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 5 * time.Second
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = 5 * time.Second
	}
	return &Tailer{
		cfg:    cfg,
		out:    out,
		logger: logging.Default(logger).With("component", "tail", "source", cfg.SourceName),
		files:  make(map[string]*fileState),
	}
}

// Run discovers matching files, tails them until ctx is canceled, and
// persists bookmarks on every poll tick and on shutdown. It blocks until ctx
// is done.
func (t *Tailer) Run(ctx context.Context) error {
	bm, err := loadBookmarks(t.cfg.StateFile)
	if err != nil {
		t.logger.Warn("failed to load bookmarks, starting fresh", "error", err)
		bm = bookmarks{Files: make(map[string]fileBookmark)}
	}

	paths, err := discoverFiles(t.cfg.Patterns)
	if err != nil {
		return err
	}
	for _, path := range paths {
		t.openFile(path, bm)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	for _, dir := range watchDirsForPatterns(t.cfg.Patterns) {
		if err := watcher.Add(dir); err != nil {
			t.logger.Warn("failed to watch directory", "dir", dir, "error", err)
		}
	}

	t.mu.Lock()
	for _, fs := range t.files {
		t.readNewLines(ctx, fs)
	}
	t.mu.Unlock()

	ticker := time.NewTicker(t.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.saveAndClose(bm)
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				t.saveAndClose(bm)
				return nil
			}
			t.handleFSEvent(ctx, event, bm)

		case err, ok := <-watcher.Errors:
			if !ok {
				t.saveAndClose(bm)
				return nil
			}
			t.logger.Warn("fsnotify error", "error", err)

		case <-ticker.C:
			t.scanOnce(ctx, bm)
		}
	}
}

// scanOnce re-evaluates the glob patterns, tails every known file, and
// persists bookmarks.
func (t *Tailer) scanOnce(ctx context.Context, bm bookmarks) {
	paths, err := discoverFiles(t.cfg.Patterns)
	if err != nil {
		t.logger.Warn("scan discovery failed", "error", err)
	} else {
		for _, path := range paths {
			t.openFile(path, bm)
		}
	}

	t.mu.Lock()
	for _, fs := range t.files {
		t.readNewLines(ctx, fs)
	}
	for path, fs := range t.files {
		bm.Files[path] = fileBookmark{Inode: fs.inode, Offset: fs.offset}
	}
	t.mu.Unlock()

	if err := saveBookmarks(t.cfg.StateFile, bm); err != nil {
		t.logger.Warn("failed to save bookmarks", "error", err)
	}
}

// openFile opens path if not already tracked, seeking to its bookmarked
// offset when the bookmarked inode still matches, or to EOF otherwise (to
// avoid flooding on first discovery of a pre-existing file).
func (t *Tailer) openFile(path string, bm bookmarks) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.files[path]; exists {
		return
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		t.logger.Warn("failed to open file", "path", path, "error", err)
		return
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		t.logger.Warn("failed to stat file", "path", path, "error", err)
		return
	}

	inode, _ := getInode(info)
	fs := &fileState{path: path, inode: inode, file: f}

	if b, ok := bm.Files[path]; ok && b.Inode == inode && b.Offset <= info.Size() {
		fs.offset = b.Offset
	} else {
		fs.offset = info.Size()
	}

	if _, err := f.Seek(fs.offset, io.SeekStart); err != nil {
		_ = f.Close()
		t.logger.Warn("failed to seek", "path", path, "error", err)
		return
	}

	t.files[path] = fs
	t.logger.Debug("tailing file", "path", path, "offset", fs.offset)
}

// readNewLines reads and emits complete lines appended since the last read.
// Caller must hold t.mu. A size shrink or an inode change is a rotation:
// the file is reopened (or reseeked) from offset 0.
func (t *Tailer) readNewLines(ctx context.Context, fs *fileState) {
	info, err := os.Stat(fs.path)
	if err != nil {
		t.logger.Warn("failed to stat file during read", "path", fs.path, "error", err)
		return
	}

	if newInode, ok := getInode(info); ok && fs.inode != 0 && newInode != fs.inode {
		t.logger.Info("inode change detected, reopening", "path", fs.path)
		_ = fs.file.Close()
		f, err := os.Open(fs.path)
		if err != nil {
			t.logger.Warn("failed to reopen after rotation", "path", fs.path, "error", err)
			return
		}
		newInfo, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return
		}
		fs.file = f
		fs.inode, _ = getInode(newInfo)
		fs.offset = 0
		fs.lineBuf = nil
	}

	if info.Size() < fs.offset {
		t.logger.Info("truncation detected, resetting", "path", fs.path)
		fs.offset = 0
		fs.lineBuf = nil
		if _, err := fs.file.Seek(0, io.SeekStart); err != nil {
			return
		}
	}

	if info.Size() == fs.offset {
		return
	}

	if _, err := fs.file.Seek(fs.offset, io.SeekStart); err != nil {
		return
	}

	now := time.Now()
	scanner := bufio.NewScanner(fs.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(fs.lineBuf) > 0 {
			line = append(fs.lineBuf, line...)
			fs.lineBuf = nil
		}
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		if len(line) == 0 {
			continue
		}

		raw := make([]byte, len(line))
		copy(raw, line)
		t.emit(ctx, fs.path, raw, now)
	}

	t.updateOffset(fs, info, scanner.Err())
}

// emit derives a timestamp and level from raw, builds a LogEntry, and hands
// it to the Enqueuer. A timeout or rejection is logged, never fatal to the
// tailing loop: a slow or full downstream must not stall file position
// tracking for every other tailed source.
func (t *Tailer) emit(ctx context.Context, path string, raw []byte, ingestTime time.Time) {
	sourceTime := logentry.DeriveTimestamp(raw)
	level := logentry.DeriveLevel(raw)
	e := logentry.New(sourceTime, ingestTime, level, string(raw), path, string(raw), nil)
	if err := t.out.Enqueue(ctx, e, t.cfg.EnqueueTimeout); err != nil {
		t.logger.Warn("enqueue failed", "path", path, "error", err)
	}
}

func (t *Tailer) updateOffset(fs *fileState, info os.FileInfo, scanErr error) {
	newOffset, err := fs.file.Seek(0, io.SeekCurrent)
	if err != nil || scanErr != nil {
		return
	}
	if newOffset < info.Size() {
		remaining := make([]byte, info.Size()-newOffset)
		if n, _ := fs.file.ReadAt(remaining, newOffset); n > 0 {
			fs.lineBuf = append(fs.lineBuf, remaining[:n]...)
		}
	}
	fs.offset = newOffset
}

func (t *Tailer) handleFSEvent(ctx context.Context, event fsnotify.Event, bm bookmarks) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case event.Has(fsnotify.Write):
		if fs, ok := t.files[event.Name]; ok {
			t.readNewLines(ctx, fs)
		}

	case event.Has(fsnotify.Create):
		if matchesAnyPattern(event.Name, t.cfg.Patterns) {
			t.mu.Unlock()
			t.openFile(event.Name, bm)
			t.mu.Lock()
			if fs, ok := t.files[event.Name]; ok {
				fs.offset = 0
				if _, err := fs.file.Seek(0, io.SeekStart); err == nil {
					t.readNewLines(ctx, fs)
				}
			}
		}

	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		if fs, ok := t.files[event.Name]; ok {
			_ = fs.file.Close()
			delete(t.files, event.Name)
			t.logger.Debug("file removed/renamed", "path", event.Name)
		}
	}
}

func (t *Tailer) saveAndClose(bm bookmarks) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for path, fs := range t.files {
		bm.Files[path] = fileBookmark{Inode: fs.inode, Offset: fs.offset}
		_ = fs.file.Close()
	}
	if err := saveBookmarks(t.cfg.StateFile, bm); err != nil {
		t.logger.Warn("failed to save bookmarks on shutdown", "error", err)
	}
}

// getInode extracts the inode number from file info. Linux-only: GrepWise
// targets Linux deployment, matching the rest of the corpus's syscall use.
func getInode(info os.FileInfo) (uint64, bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return stat.Ino, true
}
