package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeWAL(t *testing.T, dir string, content []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, walFileName), content, 0o644); err != nil {
		t.Fatalf("write wal: %v", err)
	}
}

func TestArchiveAndRestoreRoundTrip(t *testing.T) {
	codecs := map[string]Codec{"zstd": ZstdCodec{}, "brotli": BrotliCodec{}}
	for name, codec := range codecs {
		t.Run(name, func(t *testing.T) {
			partitionDir := t.TempDir()
			want := []byte("log entries encoded as msgpack records, repeated a bit to compress: aaaaaaaaaaaaaaaaaaaa")
			writeWAL(t, partitionDir, want)

			backend, err := NewLocalBackend(t.TempDir())
			if err != nil {
				t.Fatalf("new local backend: %v", err)
			}
			store := New(backend, codec, nil)

			ctx := context.Background()
			if err := store.Archive(ctx, "2026-07-30", partitionDir); err != nil {
				t.Fatalf("archive: %v", err)
			}

			destDir := t.TempDir()
			if err := store.Restore(ctx, "2026-07-30", destDir); err != nil {
				t.Fatalf("restore: %v", err)
			}

			got, err := os.ReadFile(filepath.Join(destDir, walFileName))
			if err != nil {
				t.Fatalf("read restored wal: %v", err)
			}
			if string(got) != string(want) {
				t.Fatalf("restored content mismatch: got %q want %q", got, want)
			}
		})
	}
}

func TestArchiveMissingPartitionFails(t *testing.T) {
	backend, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("new local backend: %v", err)
	}
	store := New(backend, ZstdCodec{}, nil)
	if err := store.Archive(context.Background(), "k", t.TempDir()); err == nil {
		t.Fatal("expected error archiving a partition with no wal file")
	}
}

func TestRestoreUnknownKeyFails(t *testing.T) {
	backend, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("new local backend: %v", err)
	}
	store := New(backend, ZstdCodec{}, nil)
	if err := store.Restore(context.Background(), "does-not-exist", t.TempDir()); err == nil {
		t.Fatal("expected error restoring an unknown key")
	}
}
