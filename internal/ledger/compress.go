package ledger

import "github.com/klauspost/compress/zstd"

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

func compressLogs(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2))
}

func decompressLogs(data []byte) ([]byte, error) {
	return zstdDecoder.DecodeAll(data, nil)
}
