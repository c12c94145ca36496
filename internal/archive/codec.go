package archive

import (
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// ZstdCodec compresses with zstd at the given level (zstd.SpeedDefault if
// zero), the corpus's archive compression library of choice.
type ZstdCodec struct {
	Level zstd.EncoderLevel
}

func (ZstdCodec) Name() string { return "zstd" }

func (c ZstdCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	level := c.Level
	if level == 0 {
		level = zstd.SpeedDefault
	}
	return zstd.NewWriter(w, zstd.WithEncoderLevel(level))
}

type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

func (ZstdCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	d, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return zstdReadCloser{d}, nil
}

// BrotliCodec compresses with brotli at the given quality (default if
// zero); an alternative Codec to ZstdCodec.
type BrotliCodec struct {
	Quality int
}

func (BrotliCodec) Name() string { return "brotli" }

func (c BrotliCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	quality := c.Quality
	if quality == 0 {
		quality = brotli.DefaultCompression
	}
	return brotli.NewWriterLevel(w, quality), nil
}

type brotliReadCloser struct {
	io.Reader
}

func (brotliReadCloser) Close() error { return nil }

func (BrotliCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return brotliReadCloser{brotli.NewReader(r)}, nil
}
