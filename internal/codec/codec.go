// Package codec implements the reversible text compression applied to tab
// lists and whole session snapshots before they hit the store. Data is JSON
// serialized, zstd compressed, and base64 encoded so the result is safe to
// embed in any string-valued storage slot.
package codec

import (
	"encoding/base64"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"

	"github.com/tabvault/tabvault/internal/types"
)

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

// CompressTabs encodes a tab list into a compact storage-safe string.
func CompressTabs(tabs []types.TabRecord) (string, error) {
	if tabs == nil {
		tabs = []types.TabRecord{}
	}
	data, err := sonic.Marshal(tabs)
	if err != nil {
		return "", err
	}
	return encode(data), nil
}

// DecompressTabs reverses CompressTabs. Corrupt or invalid input yields an
// empty list, never an error: a damaged blob must not take down a restore.
func DecompressTabs(blob string) []types.TabRecord {
	data, err := decode(blob)
	if err != nil {
		return []types.TabRecord{}
	}
	var tabs []types.TabRecord
	if err := sonic.Unmarshal(data, &tabs); err != nil {
		return []types.TabRecord{}
	}
	if tabs == nil {
		tabs = []types.TabRecord{}
	}
	return tabs
}

// CompressSession encodes a whole session snapshot.
func CompressSession(s *types.Session) (string, error) {
	data, err := sonic.Marshal(s)
	if err != nil {
		return "", err
	}
	return encode(data), nil
}

// DecompressSession reverses CompressSession, returning nil on corrupt input.
func DecompressSession(blob string) *types.Session {
	data, err := decode(blob)
	if err != nil {
		return nil
	}
	var s types.Session
	if err := sonic.Unmarshal(data, &s); err != nil {
		return nil
	}
	return &s
}

// ShouldCompress reports whether a tab list of this size should be stored
// compressed. A threshold of zero means always compress, including empty
// lists.
func ShouldCompress(tabs []types.TabRecord, threshold int) bool {
	return len(tabs) >= threshold
}

// Ratio returns the space saved as a percentage: 100*(1 - compressed/original).
// Zero when the original size is zero. Negative when compression expanded the
// data, which is telemetry, not an error.
func Ratio(originalSize, compressedSize int) float64 {
	if originalSize == 0 {
		return 0
	}
	return 100 * (1 - float64(compressedSize)/float64(originalSize))
}

func encode(data []byte) string {
	compressed := encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
	return base64.StdEncoding.EncodeToString(compressed)
}

func decode(blob string) ([]byte, error) {
	compressed, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, err
	}
	return decoder.DecodeAll(compressed, nil)
}
