package segment

import "golang.org/x/crypto/blake2b"

// checksumSize is the length in bytes of the trailer every sealed Ln
// segment carries.
const checksumSize = 32

// appendChecksum returns body with a BLAKE2b-256 checksum of body appended,
// so a reader can detect truncation or corruption introduced below the
// storage adaptor (a concern spec.md's parse/corruption error kind does not
// itself compute, but that any real deployment over an eventually
// consistent or lossy store needs).
func appendChecksum(body []byte) []byte {
	sum := blake2b.Sum256(body)
	return append(append([]byte{}, body...), sum[:]...)
}

// splitChecksum separates a sealed segment's payload from its trailing
// checksum and verifies it, returning the payload alone.
func splitChecksum(raw []byte) ([]byte, error) {
	if len(raw) < checksumSize {
		return nil, errCorrupt("segment shorter than checksum trailer")
	}
	body := raw[:len(raw)-checksumSize]
	want := raw[len(raw)-checksumSize:]
	got := blake2b.Sum256(body)
	for i := range want {
		if want[i] != got[i] {
			return nil, errCorrupt("checksum mismatch")
		}
	}
	return body, nil
}

type corruptionError struct{ msg string }

func (e *corruptionError) Error() string { return "segment: corrupt: " + e.msg }

func errCorrupt(msg string) error { return &corruptionError{msg: msg} }

// IsCorruption reports whether err indicates segment data failed its
// integrity check.
func IsCorruption(err error) bool {
	_, ok := err.(*corruptionError)
	return ok
}
