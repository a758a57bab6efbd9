package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Adaptor implements Adaptor on top of Amazon S3. S3 has no native append
// primitive, so Append is implemented as a conditional read-modify-write
// keyed on the object's ETag: a concurrent writer that loses the race gets
// AppendUnknownFailure and must retry. This makes the adaptor safe within a
// single process (serialized by the caller's own lock) but NOT a substitute
// for a real append-blob service under true cross-host concurrent
// appenders — it exists to exercise the interface against a real cloud SDK,
// not to claim production parity with the Azure backend this module was
// designed against.
type S3Adaptor struct {
	mu     sync.Mutex
	client *s3.Client
	bucket string
	prefix string

	sealed map[string]bool
	etag   map[string]string
}

func NewS3Adaptor() *S3Adaptor {
	return &S3Adaptor{sealed: map[string]bool{}, etag: map[string]string{}}
}

func (a *S3Adaptor) Open(ctx context.Context, home string, props map[string]string) error {
	bucket := props["bucket"]
	if bucket == "" {
		return fmt.Errorf("%w: s3 adaptor requires a \"bucket\" property", ErrConfiguration)
	}
	var optFns []func(*config.LoadOptions) error
	if region := props["region"]; region != "" {
		optFns = append(optFns, config.WithRegion(region))
	}
	if ak, sk := props["access_key"], props["secret_key"]; ak != "" && sk != "" {
		optFns = append(optFns, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(ak, sk, props["session_token"])))
	}
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	a.client = s3.NewFromConfig(cfg)
	a.bucket = bucket
	a.prefix = home
	return nil
}

func (a *S3Adaptor) Close(ctx context.Context) error { return nil }

func (a *S3Adaptor) key(path string) string {
	if a.prefix == "" {
		return path
	}
	return a.prefix + "/" + path
}

func (a *S3Adaptor) Create(ctx context.Context, path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	out, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(path)),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return err
	}
	a.etag[path] = aws.ToString(out.ETag)
	return nil
}

func (a *S3Adaptor) Append(ctx context.Context, path string, buf []byte) (AppendResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sealed[path] {
		return AppendResult{Outcome: AppendToSealed}, nil
	}
	cur, err := a.getObject(ctx, path)
	if err != nil {
		var nf *types.NoSuchKey
		if errors.As(err, &nf) {
			return AppendResult{Outcome: AppendSegmentNotExist}, nil
		}
		return AppendResult{}, err
	}
	merged := append(cur, buf...)
	if int64(len(merged)) > MaxSegmentLength {
		return AppendResult{Outcome: AppendSegmentLengthExceeded}, nil
	}
	out, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:  aws.String(a.bucket),
		Key:     aws.String(a.key(path)),
		Body:    bytes.NewReader(merged),
		IfMatch: aws.String(a.etag[path]),
	})
	if err != nil {
		return AppendResult{Outcome: AppendUnknownFailure}, nil
	}
	a.etag[path] = aws.ToString(out.ETag)
	blocks := uint16((len(merged) + blockSize - 1) / blockSize)
	return AppendResult{Outcome: AppendSuccess, CommittedBlocks: blocks}, nil
}

func (a *S3Adaptor) Seal(ctx context.Context, path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sealed[path] {
		return ErrAlreadySealed
	}
	a.sealed[path] = true
	return nil
}

func (a *S3Adaptor) WriteAll(ctx context.Context, path string, buf []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	out, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(path)),
		Body:   bytes.NewReader(buf),
	})
	if err != nil {
		return err
	}
	a.etag[path] = aws.ToString(out.ETag)
	a.sealed[path] = true
	return nil
}

func (a *S3Adaptor) getObject(ctx context.Context, path string) ([]byte, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(path)),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	a.etag[path] = aws.ToString(out.ETag)
	return io.ReadAll(out.Body)
}

func (a *S3Adaptor) ReadAll(ctx context.Context, path string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, err := a.getObject(ctx, path)
	var nf *types.NoSuchKey
	if errors.As(err, &nf) {
		return nil, ErrSegmentNotExist
	}
	return b, err
}

func (a *S3Adaptor) ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rng := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(path)),
		Range:  aws.String(rng),
	})
	if err != nil {
		var nf *types.NoSuchKey
		if errors.As(err, &nf) {
			return nil, ErrSegmentNotExist
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (a *S3Adaptor) GetProps(ctx context.Context, path string) (Props, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(path)),
	})
	if err != nil {
		return Props{}, ErrSegmentNotExist
	}
	return Props{
		Length:          aws.ToInt64(out.ContentLength),
		CommittedBlocks: uint16((aws.ToInt64(out.ContentLength) + blockSize - 1) / blockSize),
		Sealed:          a.sealed[path],
	}, nil
}

func (a *S3Adaptor) Remove(ctx context.Context, path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(path)),
	})
	delete(a.sealed, path)
	delete(a.etag, path)
	return err
}
