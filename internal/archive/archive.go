// Package archive implements GrepWise's Archive Store (C12): it satisfies
// the Partition Manager's Archiver interface by compressing a closed
// partition's WAL into a durable blob on one of several backends (local
// filesystem, S3, Azure Blob, GCS) and restoring it back on demand.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"grepwise/internal/errs"
	"grepwise/internal/logging"
)

// Backend stores and retrieves opaque archive blobs by key. Each backend
// implementation owns its own naming/bucketing scheme beneath the key.
type Backend interface {
	// Name identifies the backend for logging ("local", "s3", "azblob", "gcs").
	Name() string
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Codec compresses/decompresses an archive blob's bytes.
type Codec interface {
	Name() string
	NewWriter(w io.Writer) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// sidecarMeta is stored alongside the compressed blob (same key + ".meta"
// suffix) so Restore can pick the matching codec without guessing from
// file contents.
type sidecarMeta struct {
	Codec       string    `json:"codec"`
	ArchivedAt  time.Time `json:"archived_at"`
	OriginalLen int64     `json:"original_len"`
}

// Store archives and restores partitions, implementing partition.Archiver.
type Store struct {
	backend Backend
	codec   Codec
	logger  *slog.Logger
}

// New returns a Store writing through backend, compressing with codec.
func New(backend Backend, codec Codec, logger *slog.Logger) *Store {
	return &Store{backend: backend, codec: codec, logger: logging.Default(logger).With("component", "archive")}
}

// walFileName is the single durable file a Partition persists (see
// index.Open); archiving a partition means archiving this one file plus a
// sidecar recording how it was compressed.
const walFileName = "wal.mpk"

// Archive compresses partitionDir's WAL and uploads it under key via the
// configured backend, satisfying partition.Archiver.
func (s *Store) Archive(ctx context.Context, key, partitionDir string) error {
	src, err := os.Open(filepath.Join(partitionDir, walFileName))
	if err != nil {
		return fmt.Errorf("open wal for archive: %w", errs.ErrArchiveUnavailable)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat wal for archive: %w", errs.ErrArchiveUnavailable)
	}

	pr, pw := io.Pipe()
	go func() {
		cw, err := s.codec.NewWriter(pw)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(cw, src); err != nil {
			cw.Close()
			pw.CloseWithError(err)
			return
		}
		if err := cw.Close(); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()

	if err := s.backend.Put(ctx, blobKey(key), pr); err != nil {
		return fmt.Errorf("upload archive %s: %w", key, errs.ErrArchiveUnavailable)
	}

	meta := sidecarMeta{Codec: s.codec.Name(), ArchivedAt: time.Now().UTC(), OriginalLen: info.Size()}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal archive sidecar: %w", errs.ErrArchiveUnavailable)
	}
	if err := s.backend.Put(ctx, metaKey(key), bytes.NewReader(metaBytes)); err != nil {
		return fmt.Errorf("upload archive sidecar %s: %w", key, errs.ErrArchiveUnavailable)
	}

	s.logger.Info("partition archived", "key", key, "backend", s.backend.Name(), "codec", s.codec.Name(), "bytes", info.Size())
	return nil
}

// Restore downloads and decompresses key's blob into destDir/wal.mpk,
// satisfying partition.Archiver. destDir must already exist.
func (s *Store) Restore(ctx context.Context, key, destDir string) error {
	rc, err := s.backend.Get(ctx, blobKey(key))
	if err != nil {
		return fmt.Errorf("download archive %s: %w", key, errs.ErrArchiveUnavailable)
	}
	defer rc.Close()

	dr, err := s.codec.NewReader(rc)
	if err != nil {
		return fmt.Errorf("decompress archive %s: %w", key, errs.ErrArchiveUnavailable)
	}
	defer dr.Close()

	dst, err := os.Create(filepath.Join(destDir, walFileName))
	if err != nil {
		return fmt.Errorf("create restored wal: %w", errs.ErrArchiveUnavailable)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, dr); err != nil {
		return fmt.Errorf("restore archive %s: %w", key, errs.ErrArchiveUnavailable)
	}

	s.logger.Info("partition restored", "key", key, "backend", s.backend.Name())
	return nil
}

func blobKey(key string) string { return key + ".archive" }
func metaKey(key string) string { return key + ".archive.meta" }
