package segment

import (
	"encoding/binary"
	"fmt"
)

// EncodeForward serializes entries using forward framing:
// u16 key_len, key, u16 value_len, value — in entry order. Used for Ln
// segments, which are written whole and read forward.
func EncodeForward(entries []Entry) ([]byte, error) {
	var out []byte
	for _, e := range entries {
		if err := e.validate(); err != nil {
			return nil, err
		}
		out = appendU16(out, uint16(len(e.Key)))
		out = append(out, e.Key...)
		out = appendU16(out, uint16(len(e.Value)))
		out = append(out, e.Value...)
	}
	return out, nil
}

// DecodeForward parses a buffer written with forward framing, in the order
// the entries were written.
func DecodeForward(buf []byte) ([]Entry, error) {
	var entries []Entry
	for len(buf) > 0 {
		e, rest, err := decodeForwardOne(buf)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
		buf = rest
	}
	return entries, nil
}

func decodeForwardOne(buf []byte) (Entry, []byte, error) {
	keyLen, buf, err := readU16(buf)
	if err != nil {
		return Entry{}, nil, err
	}
	key, buf, err := readN(buf, int(keyLen))
	if err != nil {
		return Entry{}, nil, err
	}
	valLen, buf, err := readU16(buf)
	if err != nil {
		return Entry{}, nil, err
	}
	val, buf, err := readN(buf, int(valLen))
	if err != nil {
		return Entry{}, nil, err
	}
	return Entry{Key: key, Value: val}, buf, nil
}

// EncodeReverse serializes entries using reverse framing:
// value, u16 value_len, key, u16 key_len — each entry written forward into
// the buffer in append order, but structured so that a backward scan from
// the end of the buffer recovers entries newest-first without needing a
// separate index.
func EncodeReverse(entries []Entry) ([]byte, error) {
	var out []byte
	for _, e := range entries {
		if err := e.validate(); err != nil {
			return nil, err
		}
		out = append(out, e.Value...)
		out = appendU16(out, uint16(len(e.Value)))
		out = append(out, e.Key...)
		out = appendU16(out, uint16(len(e.Key)))
	}
	return out, nil
}

// DecodeReverseAll scans a reverse-framed buffer from its end backward,
// returning entries newest-first (i.e. in the reverse of their append
// order).
func DecodeReverseAll(buf []byte) ([]Entry, error) {
	var entries []Entry
	for len(buf) > 0 {
		e, rest, err := decodeReverseOne(buf)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
		buf = rest
	}
	return entries, nil
}

// decodeReverseOne peels the last entry off the tail of buf, returning it
// and the remaining prefix.
func decodeReverseOne(buf []byte) (Entry, []byte, error) {
	if len(buf) < 2 {
		return Entry{}, nil, fmt.Errorf("segment: truncated reverse frame, %d bytes left", len(buf))
	}
	keyLen := binary.BigEndian.Uint16(buf[len(buf)-2:])
	buf = buf[:len(buf)-2]
	if len(buf) < int(keyLen) {
		return Entry{}, nil, fmt.Errorf("segment: truncated key, want %d have %d", keyLen, len(buf))
	}
	key := buf[len(buf)-int(keyLen):]
	buf = buf[:len(buf)-int(keyLen)]

	if len(buf) < 2 {
		return Entry{}, nil, fmt.Errorf("segment: truncated reverse frame value length")
	}
	valLen := binary.BigEndian.Uint16(buf[len(buf)-2:])
	buf = buf[:len(buf)-2]
	if len(buf) < int(valLen) {
		return Entry{}, nil, fmt.Errorf("segment: truncated value, want %d have %d", valLen, len(buf))
	}
	val := buf[len(buf)-int(valLen):]
	buf = buf[:len(buf)-int(valLen)]

	return Entry{Key: cloneBytes(key), Value: cloneBytes(val)}, buf, nil
}

// SearchReverse scans a reverse-framed buffer newest-first and returns the
// first entry matching key, analogous to search_entry_in_range over the
// tail.
func SearchReverse(buf []byte, key []byte) (Entry, bool, error) {
	for len(buf) > 0 {
		e, rest, err := decodeReverseOne(buf)
		if err != nil {
			return Entry{}, false, err
		}
		if bytesEqual(e.Key, key) {
			return e, true, nil
		}
		buf = rest
	}
	return Entry{}, false, nil
}

// SearchForward scans a forward-framed buffer and returns the first entry
// matching key.
func SearchForward(buf []byte, key []byte) (Entry, bool, error) {
	for len(buf) > 0 {
		e, rest, err := decodeForwardOne(buf)
		if err != nil {
			return Entry{}, false, err
		}
		if bytesEqual(e.Key, key) {
			return e, true, nil
		}
		buf = rest
	}
	return Entry{}, false, nil
}

func appendU16(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

func readU16(buf []byte) (uint16, []byte, error) {
	if len(buf) < 2 {
		return 0, nil, fmt.Errorf("segment: truncated length field")
	}
	return binary.BigEndian.Uint16(buf[:2]), buf[2:], nil
}

func readN(buf []byte, n int) ([]byte, []byte, error) {
	if len(buf) < n {
		return nil, nil, fmt.Errorf("segment: truncated field, want %d have %d", n, len(buf))
	}
	return cloneBytes(buf[:n]), buf[n:], nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
