package segment

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"
)

// compressLn LZ4-compresses a forward-framed Ln segment body. Tail and L0
// segments are never compressed: they are read-modify-append in reverse
// framing and must support cheap suffix scans, which a compressed stream
// does not allow.
func compressLn(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressLn(compressed []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(compressed))
	return io.ReadAll(r)
}
