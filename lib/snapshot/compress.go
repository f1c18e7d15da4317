// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the algorithm applied to a snapshot's document
// bytes. Values are stored in snapshot files; changing them breaks
// existing snapshots.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCompression parses a configuration value. Empty means zstd.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	case "none":
		return CompressionNone, nil
	default:
		return 0, fmt.Errorf("unknown snapshot compression %q", name)
	}
}

// errIncompressible reports that compression would not shrink the data.
// The caller stores the data uncompressed instead.
var errIncompressible = errors.New("data is incompressible")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("snapshot: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("snapshot: zstd decoder initialization failed: " + err.Error())
	}
}

// compress returns the compressed data and the algorithm actually used,
// which is CompressionNone when the requested algorithm does not help.
func compress(data []byte, requested Compression) ([]byte, Compression, error) {
	var (
		compressed []byte
		err        error
	)
	switch requested {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionLZ4:
		compressed, err = compressLZ4(data)
	case CompressionZstd:
		compressed, err = compressZstd(data)
	default:
		return nil, 0, fmt.Errorf("unsupported compression %s", requested)
	}
	if errors.Is(err, errIncompressible) {
		return data, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return compressed, requested, nil
}

func decompress(data []byte, algorithm Compression, uncompressedSize int) ([]byte, error) {
	switch algorithm {
	case CompressionNone:
		if len(data) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed payload: size %d does not match expected %d", len(data), uncompressedSize)
		}
		return data, nil
	case CompressionLZ4:
		destination := make([]byte, uncompressedSize)
		read, err := lz4.UncompressBlock(data, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != uncompressedSize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
		}
		return destination, nil
	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(data, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != uncompressedSize {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported compression %s", algorithm)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}
