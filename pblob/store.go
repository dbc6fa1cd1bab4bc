package pblob

import (
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"gocloud.dev/blob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"github.com/luno/puma"
)

var _ puma.CheckpointStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix returns an option to store checkpoints under the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// Store is a checkpoint store over a blob bucket. Writes are synchronous
// so Flush is a no-op.
type Store struct {
	label  string
	bucket *blob.Bucket
	prefix string
}

// OpenStore opens and returns a store for the provided url.
//
// label defines the bucket label used for metrics.
//
// urlstr defines the url of the blob bucket. See the gocloud URLOpener
// documentation in driver subpackages for details on supported URL formats.
// Also see https://gocloud.dev/concepts/urls/.
func OpenStore(ctx context.Context, label, urlstr string, opts ...Option) (*Store, error) {
	bucket, err := blob.OpenBucket(ctx, urlstr)
	if err != nil {
		return nil, err
	}

	return NewStore(label, bucket, opts...), nil
}

// OpenS3Store opens and returns a store on the named s3 bucket. The AWS
// configuration is loaded from the environment.
func OpenS3Store(ctx context.Context, label, bucketName string, opts ...Option) (*Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}

	bucket, err := s3blob.OpenBucketV2(ctx, s3.NewFromConfig(cfg), bucketName, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open s3 bucket", j.KS("bucket", bucketName))
	}

	return NewStore(label, bucket, opts...), nil
}

// NewStore returns a store using the provided underlying bucket.
func NewStore(label string, bucket *blob.Bucket, opts ...Option) *Store {
	s := &Store{
		label:  label,
		bucket: bucket,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases any resources used by the underlying bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}

type checkpoint struct {
	BinlogInfo string    `json:"binlog_info"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (s *Store) key(consumerName string) string {
	return path.Join(s.prefix, consumerName+".json")
}

// GetCheckpoint returns the consumer's checkpoint or the zero position if
// none was stored.
func (s *Store) GetCheckpoint(ctx context.Context, consumerName string) (puma.BinlogInfo, error) {
	key := s.key(consumerName)

	b, err := s.bucket.ReadAll(ctx, key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return puma.BinlogInfo{}, nil
	} else if err != nil {
		return puma.BinlogInfo{}, errors.Wrap(err, "read checkpoint", j.KS("key", key))
	}
	readCounter.WithLabelValues(s.label).Inc()

	var c checkpoint
	if err := json.Unmarshal(b, &c); err != nil {
		return puma.BinlogInfo{}, errors.Wrap(err, "decode checkpoint", j.KS("key", key))
	}

	return puma.ParseBinlogInfo(c.BinlogInfo)
}

// SetCheckpoint overwrites the consumer's checkpoint.
func (s *Store) SetCheckpoint(ctx context.Context, consumerName string, info puma.BinlogInfo) error {
	if info.IsZero() {
		return errors.New("zero checkpoint")
	} else if err := info.Validate(); err != nil {
		return err
	}

	key := s.key(consumerName)

	b, err := json.Marshal(checkpoint{
		BinlogInfo: info.String(),
		UpdatedAt:  now().UTC(),
	})
	if err != nil {
		return err
	}

	err = s.bucket.WriteAll(ctx, key, b, &blob.WriterOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return errors.Wrap(err, "write checkpoint", j.KS("key", key))
	}
	writeCounter.WithLabelValues(s.label).Inc()

	return nil
}

func (s *Store) Flush(context.Context) error {
	return nil
}

var now = time.Now
