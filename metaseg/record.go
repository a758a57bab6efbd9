// Package metaseg implements the meta segment: a single append-only log
// that serves as the system's total order. Every tail rotation and every
// compaction is recorded here, and the order records appear in this log
// IS the order those events are considered to have happened, regardless of
// wall-clock time.
package metaseg

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/airkv-project/airkv/consistency"
	"github.com/airkv-project/airkv/lsmtree"
	"github.com/airkv-project/airkv/segid"
)

// RecordKind tags which of the three record shapes follows.
type RecordKind uint8

const (
	KindLockRequest RecordKind = iota
	KindCommitInfo
	KindOptimisticCommitInfo
)

// Record is one parsed entry from the meta segment.
type Record struct {
	Kind RecordKind

	LockRequest consistency.AirLockRequest

	CommitClientID uint32
	CommitStartMs  int64
	CommitDelta    lsmtree.TreeDelta

	OptimisticClientID uint32
	OptimisticResources []segid.ID
	OptimisticDelta     lsmtree.TreeDelta
}

// EncodeLockRequest serializes a LockRequest record: u8 type, u8 n,
// u32 resource[n], u16 client_id, i64 timestamp_ms.
func EncodeLockRequest(req consistency.AirLockRequest) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(KindLockRequest))
	buf.WriteByte(byte(len(req.ResourceIDs)))
	for _, r := range req.ResourceIDs {
		writeU32(&buf, uint32(r.ResourceID()>>32))
	}
	writeU16(&buf, uint16(req.ClientID))
	writeI64(&buf, req.TimestampMs)
	return buf.Bytes()
}

// EncodeCommitInfo serializes a CommitInfo record: u8 type,
// (u16 client_id, i64 start_ms), TreeDelta.
func EncodeCommitInfo(clientID uint32, startMs int64, delta lsmtree.TreeDelta) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(KindCommitInfo))
	writeU16(&buf, uint16(clientID))
	writeI64(&buf, startMs)
	delta.Encode(&buf)
	return buf.Bytes()
}

// EncodeOptimisticCommitInfo serializes an OptimisticCommitInfo record:
// u8 type, (u16 client_id, u8 n, u64 resource[n]), TreeDelta.
func EncodeOptimisticCommitInfo(clientID uint32, resources []segid.ID, delta lsmtree.TreeDelta) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(KindOptimisticCommitInfo))
	writeU16(&buf, uint16(clientID))
	buf.WriteByte(byte(len(resources)))
	for _, r := range resources {
		writeU64(&buf, uint64(r.ResourceID()))
	}
	delta.Encode(&buf)
	return buf.Bytes()
}

// DecodeRecord parses one record from the front of buf, returning it and
// the number of bytes consumed.
func DecodeRecord(buf []byte) (Record, int, error) {
	if len(buf) < 1 {
		return Record{}, 0, fmt.Errorf("metaseg: empty record")
	}
	r := bytes.NewReader(buf[1:])
	switch RecordKind(buf[0]) {
	case KindLockRequest:
		n, err := r.ReadByte()
		if err != nil {
			return Record{}, 0, err
		}
		resources := make([]segid.ID, n)
		for i := range resources {
			v, err := readU32(r)
			if err != nil {
				return Record{}, 0, err
			}
			resources[i] = segid.ID(v) << 32
		}
		clientID, err := readU16(r)
		if err != nil {
			return Record{}, 0, err
		}
		ts, err := readI64(r)
		if err != nil {
			return Record{}, 0, err
		}
		consumed := len(buf) - r.Len()
		return Record{Kind: KindLockRequest, LockRequest: consistency.AirLockRequest{
			ResourceIDs: resources, ClientID: uint32(clientID), TimestampMs: ts,
		}}, consumed, nil

	case KindCommitInfo:
		clientID, err := readU16(r)
		if err != nil {
			return Record{}, 0, err
		}
		startMs, err := readI64(r)
		if err != nil {
			return Record{}, 0, err
		}
		delta, err := lsmtree.DecodeTreeDelta(r)
		if err != nil {
			return Record{}, 0, err
		}
		consumed := len(buf) - r.Len()
		return Record{Kind: KindCommitInfo, CommitClientID: uint32(clientID), CommitStartMs: startMs, CommitDelta: delta}, consumed, nil

	case KindOptimisticCommitInfo:
		clientID, err := readU16(r)
		if err != nil {
			return Record{}, 0, err
		}
		n, err := r.ReadByte()
		if err != nil {
			return Record{}, 0, err
		}
		resources := make([]segid.ID, n)
		for i := range resources {
			v, err := readU64(r)
			if err != nil {
				return Record{}, 0, err
			}
			resources[i] = segid.ID(v)
		}
		delta, err := lsmtree.DecodeTreeDelta(r)
		if err != nil {
			return Record{}, 0, err
		}
		consumed := len(buf) - r.Len()
		return Record{Kind: KindOptimisticCommitInfo, OptimisticClientID: uint32(clientID), OptimisticResources: resources, OptimisticDelta: delta}, consumed, nil

	default:
		return Record{}, 0, fmt.Errorf("metaseg: unknown record kind %d", buf[0])
	}
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}
func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}
func writeI64(buf *bytes.Buffer, v int64) { writeU64(buf, uint64(v)) }

func readU16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}
func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}
func readI64(r *bytes.Reader) (int64, error) {
	v, err := readU64(r)
	return int64(v), err
}
