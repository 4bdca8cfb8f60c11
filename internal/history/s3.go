package history

import (
	"bytes"
	"context"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"
)

// ObjectAPI is the subset of *s3.Client used by S3Store.
type ObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps one object per session in a bucket.
type S3Store struct {
	api    ObjectAPI
	bucket string
	prefix string
}

// NewS3Store returns a store writing to bucket. Keys are placed under prefix
// when it is not empty.
func NewS3Store(api ObjectAPI, bucket, prefix string) *S3Store {
	return &S3Store{api: api, bucket: bucket, prefix: prefix}
}

func (s *S3Store) Name() string { return "S3" }

func (s *S3Store) objectKey(sessionID string) (string, error) {
	key, err := Key(sessionID)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return key, nil
	}
	return path.Join(s.prefix, key), nil
}

func (s *S3Store) Load(ctx context.Context, sessionID string) ([]Message, error) {
	key, err := s.objectKey(sessionID)
	if err != nil {
		return nil, err
	}
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNoSuchKey(err) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, storageErr(s.Name(), "load", sessionID, errors.Wrapf(err, "get s3://%s/%s", s.bucket, key))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, storageErr(s.Name(), "load", sessionID, errors.Wrap(err, "read object body"))
	}
	msgs, err := Decode(data)
	if err != nil {
		return nil, storageErr(s.Name(), "load", sessionID, errors.Wrapf(err, "decode s3://%s/%s", s.bucket, key))
	}
	return msgs, nil
}

func (s *S3Store) Save(ctx context.Context, sessionID string, messages []Message) error {
	key, err := s.objectKey(sessionID)
	if err != nil {
		return err
	}
	data, err := Encode(messages)
	if err != nil {
		return storageErr(s.Name(), "save", sessionID, errors.Wrap(err, "encode"))
	}
	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return storageErr(s.Name(), "save", sessionID, errors.Wrapf(err, "put s3://%s/%s", s.bucket, key))
	}
	return nil
}

func isNoSuchKey(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
