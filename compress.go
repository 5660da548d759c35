package securestore

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

const (
	// defaultCompressThreshold is the minimum plaintext size before
	// compression is attempted.
	defaultCompressThreshold = 1024

	// minCompressSavings is the fraction of size that must be saved for
	// the compressed form to be kept.
	minCompressSavings = 0.10

	// maxDecompressedSize caps expansion to defuse zip bombs.
	maxDecompressedSize = 64 * 1024 * 1024
)

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdOnce    sync.Once
	zstdErr     error
)

// initZstd lazily builds the shared encoder/decoder pair. Both are
// stateless per EncodeAll/DecodeAll call and safe for concurrent use.
func initZstd() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
		if zstdErr != nil {
			zstdEncoder.Close()
			zstdEncoder = nil
		}
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

// maybeCompress compresses data when it exceeds threshold and compression
// actually pays for itself. Returns the payload and the envelope flag.
func maybeCompress(data []byte, threshold int) ([]byte, byte) {
	if threshold <= 0 {
		threshold = defaultCompressThreshold
	}
	if len(data) < threshold {
		return data, flagNoCompression
	}
	encoder, _, err := initZstd()
	if err != nil {
		return data, flagNoCompression
	}
	compressed := encoder.EncodeAll(data, nil)
	savings := float64(len(data)-len(compressed)) / float64(len(data))
	if savings < minCompressSavings {
		return data, flagNoCompression
	}
	return compressed, flagZstd
}

// decompress reverses maybeCompress based on the envelope flag.
func decompress(data []byte, flag byte) ([]byte, error) {
	switch flag {
	case flagNoCompression:
		return data, nil
	case flagZstd:
		_, decoder, err := initZstd()
		if err != nil {
			return nil, ErrDecompressionFailed
		}
		out, err := decoder.DecodeAll(data, nil)
		if err != nil || len(out) > maxDecompressedSize {
			return nil, ErrDecompressionFailed
		}
		return out, nil
	default:
		return nil, ErrInvalidFormat
	}
}
