// Package storage defines the capability set every backing object store
// must provide, and ships three implementations: a local filesystem
// adaptor, an in-memory fake for tests, and an S3-backed adaptor.
package storage

import (
	"context"
	"errors"
)

// Props describes the current state of a segment blob.
type Props struct {
	Length         int64
	CommittedBlocks uint16
	Sealed         bool
}

// IsActiveTail reports whether a segment with these props may still accept
// appends.
func (p Props) IsActiveTail() bool { return !p.Sealed }

// AppendOutcome is the fine-grained result of an Append call, mirroring the
// handful of failure modes an append-blob-style service can report.
type AppendOutcome int

const (
	AppendSuccess AppendOutcome = iota
	AppendBlockCountExceeded
	AppendSegmentLengthExceeded
	AppendToSealed
	AppendSegmentNotExist
	AppendUnknownFailure
)

func (o AppendOutcome) IsSuccess() bool { return o == AppendSuccess }

// AppendResult is returned by Adaptor.Append.
type AppendResult struct {
	Outcome         AppendOutcome
	CommittedBlocks uint16
}

var (
	// ErrSegmentNotExist is returned by read/props/seal operations against
	// a path that was never created.
	ErrSegmentNotExist = errors.New("storage: segment does not exist")
	// ErrAlreadySealed is returned when attempting to seal an
	// already-sealed segment.
	ErrAlreadySealed = errors.New("storage: segment already sealed")
	// ErrConfiguration is returned by Open when the supplied properties
	// cannot produce a usable adaptor (bad URL, missing credentials).
	ErrConfiguration = errors.New("storage: invalid adaptor configuration")
)

// Adaptor is the capability set the rest of the module relies on. A
// conforming implementation need not be backed by a literal append-blob
// service, only provide these exact semantics.
type Adaptor interface {
	// Open prepares the adaptor for use against the given home directory
	// (a local path, a fake in-memory namespace, or an s3:// URL) using
	// backend-specific properties (bucket, region, credentials profile).
	Open(ctx context.Context, home string, props map[string]string) error
	Close(ctx context.Context) error

	// Create makes an empty, unsealed segment at path. Creating a segment
	// that already exists is not an error: the fake and local adaptors
	// leave it untouched, the S3 adaptor replaces it with an empty object.
	Create(ctx context.Context, path string) error
	// Append appends buf to the segment at path, returning the precise
	// outcome rather than a generic error so callers can drive the
	// rotate/retry state machine spec.md describes.
	Append(ctx context.Context, path string, buf []byte) (AppendResult, error)
	// Seal freezes a segment so no further appends may succeed.
	Seal(ctx context.Context, path string) error
	// WriteAll writes buf as the complete, one-shot content of a new
	// segment (used for forward-framed Ln segments produced by
	// compaction, which are never appended to again).
	WriteAll(ctx context.Context, path string, buf []byte) error
	// ReadAll reads the full content of a segment.
	ReadAll(ctx context.Context, path string) ([]byte, error)
	// ReadRange reads [offset, offset+length) of a segment.
	ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, error)
	// GetProps returns the current size/commit/seal state of a segment.
	GetProps(ctx context.Context, path string) (Props, error)
	// Remove deletes a segment. Nothing else in this module calls it;
	// compaction leaves its source segments in place.
	Remove(ctx context.Context, path string) error
}
