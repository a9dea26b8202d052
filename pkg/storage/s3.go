package storage

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ethpandaops/snapshotoor/pkg/config"
	"github.com/sirupsen/logrus"
)

const (
	// cancelAttempts bounds the whole abort-and-sweep sequence.
	cancelAttempts = 5

	// cancelDelay is the fixed pause between cancellation steps, covering
	// eventual-consistency lag in the service's upload listing.
	cancelDelay = 2 * time.Second
)

// s3API is the subset of the S3 client this package uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput,
		optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput,
		optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput,
		optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput,
		optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput,
		optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	ListMultipartUploads(ctx context.Context, params *s3.ListMultipartUploadsInput,
		optFns ...func(*s3.Options)) (*s3.ListMultipartUploadsOutput, error)
}

// Ensure interface compliance.
var _ s3API = (*s3.Client)(nil)

// s3Store implements Store for S3-compatible storage.
type s3Store struct {
	log    logrus.FieldLogger
	cfg    *config.UploadConfig
	client s3API
	sleep  func(time.Duration)
}

// Ensure interface compliance.
var _ Store = (*s3Store)(nil)

// NewS3Store creates a new S3-backed Store from the given configuration.
func NewS3Store(log logrus.FieldLogger, cfg *config.UploadConfig) Store {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	return &s3Store{
		log:    log.WithField("component", "s3-store"),
		cfg:    cfg,
		client: s3.New(s3.Options{}, opts...),
		sleep:  time.Sleep,
	}
}

// Preflight verifies S3 connectivity by writing a small test object.
func (s *s3Store) Preflight(ctx context.Context) error {
	content := fmt.Sprintf("snapshotoor write test: %s", time.Now().UTC().Format(time.RFC3339))
	body := strings.NewReader(content)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(".snapshotoor-write-test"),
		Body:        body,
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("writing test object to s3://%s: %w", s.cfg.Bucket, err)
	}

	return nil
}

// Initiate registers a new multipart upload for key.
func (s *s3Store) Initiate(ctx context.Context, key string, encrypt bool) (Session, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String("application/octet-stream"),
	}

	if encrypt {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}

	output, err := s.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("initiating multipart upload for %q: %w", key, err)
	}

	s.log.WithFields(logrus.Fields{
		"key":       key,
		"upload_id": aws.ToString(output.UploadId),
	}).Debug("Initiated multipart upload")

	return &s3Session{
		store:    s,
		key:      key,
		uploadID: aws.ToString(output.UploadId),
		etags:    make(map[int32]string),
	}, nil
}

// Cancel aborts the session, waits out listing lag, and sweeps any
// in-progress uploads still listed for the same key. Failures are logged
// and swallowed; the caller is already unwinding a failed upload.
func (s *s3Store) Cancel(ctx context.Context, session Session) {
	sess, ok := session.(*s3Session)
	if !ok {
		return
	}

	log := s.log.WithField("key", sess.key)

	for attempt := 1; attempt <= cancelAttempts; attempt++ {
		if err := s.cancelOnce(ctx, sess); err != nil {
			log.WithError(err).WithField("attempt", attempt).
				Error("Error while cancelling multipart upload")

			continue
		}

		log.Debug("Cancelled multipart upload")

		return
	}

	log.Warn("Giving up cancelling multipart upload")
}

// cancelOnce runs one abort-and-sweep pass.
func (s *s3Store) cancelOnce(ctx context.Context, sess *s3Session) error {
	s.sleep(cancelDelay)

	if err := s.abort(ctx, sess.key, sess.uploadID); err != nil {
		return err
	}

	s.sleep(cancelDelay)

	output, err := s.client.ListMultipartUploads(ctx, &s3.ListMultipartUploadsInput{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(sess.key),
	})
	if err != nil {
		return fmt.Errorf("listing in-progress uploads: %w", err)
	}

	for _, upload := range output.Uploads {
		if aws.ToString(upload.Key) != sess.key {
			continue
		}

		if err := s.abort(ctx, sess.key, aws.ToString(upload.UploadId)); err != nil {
			return err
		}
	}

	return nil
}

// abort aborts one multipart upload by key and upload ID.
func (s *s3Store) abort(ctx context.Context, key, uploadID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.cfg.Bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return fmt.Errorf("aborting upload %s for %q: %w", uploadID, key, err)
	}

	return nil
}

// s3Session is a multipart upload in progress. It is owned by a single
// upload task and is not safe for concurrent use.
type s3Session struct {
	store    *s3Store
	key      string
	uploadID string
	etags    map[int32]string
}

// Ensure interface compliance.
var _ Session = (*s3Session)(nil)

// Key returns the destination key of the session.
func (s *s3Session) Key() string {
	return s.key
}

// UploadPart transmits one part. Retrying an index overwrites the part
// previously stored under it.
func (s *s3Session) UploadPart(ctx context.Context, index int32, data []byte) error {
	output, err := s.store.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(s.store.cfg.Bucket),
		Key:        aws.String(s.key),
		UploadId:   aws.String(s.uploadID),
		PartNumber: aws.Int32(index),
		Body:       bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("uploading part %d of %q: %w", index, s.key, err)
	}

	s.etags[index] = aws.ToString(output.ETag)

	return nil
}

// Complete concatenates all acknowledged parts into the final object.
func (s *s3Session) Complete(ctx context.Context) error {
	parts := make([]s3types.CompletedPart, 0, len(s.etags))
	for index, etag := range s.etags {
		parts = append(parts, s3types.CompletedPart{
			PartNumber: aws.Int32(index),
			ETag:       aws.String(etag),
		})
	}

	sort.Slice(parts, func(i, j int) bool {
		return aws.ToInt32(parts[i].PartNumber) < aws.ToInt32(parts[j].PartNumber)
	})

	_, err := s.store.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.store.cfg.Bucket),
		Key:      aws.String(s.key),
		UploadId: aws.String(s.uploadID),
		MultipartUpload: &s3types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		return fmt.Errorf("completing multipart upload for %q: %w", s.key, err)
	}

	return nil
}
