// Package s3store keeps blocks as objects in an S3 compatible bucket
package s3store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/nearfs/gateway/pkg/blockstore"
)

var log = logging.Logger("nearfs/s3store")

const (
	DefaultRegion   = "us-east-1"
	DefaultEndpoint = "http://localhost:9000"
	DefaultBucket   = "nearfs-storage"
)

type Config struct {
	Region    string
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string

	// EnvCredentials reads credentials from the AWS environment variables
	// instead of AccessKey and SecretKey
	EnvCredentials bool
}

func (c Config) withDefaults() Config {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Bucket == "" {
		c.Bucket = DefaultBucket
	}
	return c
}

// NewClient builds a minio client from an endpoint URL such as
// http://localhost:9000
func NewClient(cfg Config) (*minio.Client, error) {
	cfg = cfg.withDefaults()
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing s3 endpoint: %w", err)
	}
	if endpoint.Host == "" {
		return nil, fmt.Errorf("s3 endpoint %q has no host", cfg.Endpoint)
	}
	return minio.New(endpoint.Host, &minio.Options{
		Creds:  Credentials(cfg),
		Secure: endpoint.Scheme == "https",
		Region: cfg.Region,
	})
}

// Credentials uses the configured key pair and falls back to the standard AWS
// environment variables when none is set
func Credentials(cfg Config) *credentials.Credentials {
	if cfg.EnvCredentials {
		return credentials.NewEnvAWS()
	}
	return credentials.NewChainCredentials([]credentials.Provider{
		&credentials.Static{Value: credentials.Value{
			AccessKeyID:     cfg.AccessKey,
			SecretAccessKey: cfg.SecretKey,
			SignerType:      credentials.SignatureV4,
		}},
		&credentials.EnvAWS{},
	})
}

type Store struct {
	client *minio.Client
	bucket string
	region string
}

var _ blockstore.Store = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

// Init creates the bucket if it does not exist yet
func (s *Store) Init(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if exists {
		log.Infow("bucket already exists", "bucket", s.bucket)
		return nil
	}
	return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func (s *Store) read(ctx context.Context, name string) ([]byte, bool, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (s *Store) write(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

func (s *Store) Get(ctx context.Context, digest []byte) ([]byte, error) {
	if err := blockstore.CheckDigest(digest); err != nil {
		return nil, err
	}
	data, ok, err := s.read(ctx, blockstore.Key(digest))
	if err != nil {
		return nil, fmt.Errorf("s3 get: %w", err)
	}
	if !ok {
		return nil, blockstore.ErrNotFound
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, digest []byte, data []byte) error {
	if err := blockstore.VerifyDigest(digest, data); err != nil {
		return err
	}
	info, err := s.client.StatObject(ctx, s.bucket, blockstore.Key(digest), minio.StatObjectOptions{})
	switch {
	case err == nil:
		_, err := blockstore.CheckExisting(digest, info.Size, len(data))
		return err
	case !isNoSuchKey(err):
		return fmt.Errorf("s3 stat: %w", err)
	}
	if err := s.write(ctx, blockstore.Key(digest), data); err != nil {
		return fmt.Errorf("s3 put: %w", err)
	}
	return nil
}

func (s *Store) readScalar(ctx context.Context, name string) (string, bool, error) {
	data, ok, err := s.read(ctx, name)
	if err != nil {
		return "", false, fmt.Errorf("s3 get %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), ok, nil
}

func (s *Store) LatestHeight(ctx context.Context) (uint64, bool, error) {
	text, ok, err := s.readScalar(ctx, blockstore.LatestHeightKey)
	if !ok || err != nil {
		return 0, false, err
	}
	height, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parsing %s: %w", blockstore.LatestHeightKey, err)
	}
	return height, true, nil
}

func (s *Store) SetLatestHeight(ctx context.Context, height uint64) error {
	return s.write(ctx, blockstore.LatestHeightKey, []byte(strconv.FormatUint(height, 10)))
}

func (s *Store) LatestTimestamp(ctx context.Context) (int64, bool, error) {
	text, ok, err := s.readScalar(ctx, blockstore.LatestTimestampKey)
	if !ok || err != nil {
		return 0, false, err
	}
	timestamp, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parsing %s: %w", blockstore.LatestTimestampKey, err)
	}
	return timestamp, true, nil
}

func (s *Store) SetLatestTimestamp(ctx context.Context, timestamp int64) error {
	return s.write(ctx, blockstore.LatestTimestampKey, []byte(strconv.FormatInt(timestamp, 10)))
}

func (s *Store) Close() error {
	return nil
}
