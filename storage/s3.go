package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3API defines the S3 operations used by the snapshot backend.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store writes each snapshot as an object under prefix/trip/key. Writes
// are conditional on the object not existing.
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Store creates a store over bucket; prefix may be empty
func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

// Name identifies the backend in logs and metrics
func (s *S3Store) Name() string {
	return "s3"
}

func (s *S3Store) tripPrefix(tripID string) string {
	return s.prefix + tripID + "/"
}

// Create puts the object with If-None-Match so an existing key is never
// replaced
func (s *S3Store) Create(ctx context.Context, tripID, key string, data []byte) error {
	objectKey := s.tripPrefix(tripID) + key

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if isAPIError(err, "PreconditionFailed", "ConditionalRequestConflict") {
			return fmt.Errorf("%s/%s: %w", tripID, key, ErrKeyExists)
		}
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, objectKey, err)
	}
	return nil
}

// List pages through the trip prefix; S3 returns keys in ascending order
func (s *S3Store) List(ctx context.Context, tripID string) ([]Record, error) {
	prefix := s.tripPrefix(tripID)

	var records []Record
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, prefix, err)
		}

		for _, obj := range page.Contents {
			objectKey := aws.ToString(obj.Key)
			data, err := s.get(ctx, objectKey)
			if err != nil {
				return nil, err
			}
			records = append(records, Record{Key: strings.TrimPrefix(objectKey, prefix), Data: data})
		}
	}

	return records, nil
}

// Trips lists the common prefixes directly below the store prefix
func (s *S3Store) Trips(ctx context.Context) ([]string, error) {
	var trips []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(s.prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list trips in s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			trip := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), s.prefix), "/")
			trips = append(trips, trip)
		}
	}
	return trips, nil
}

func (s *S3Store) get(ctx context.Context, objectKey string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, objectKey, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", s.bucket, objectKey, err)
	}
	return data, nil
}

func isAPIError(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.ErrorCode() == code {
			return true
		}
	}
	return false
}
