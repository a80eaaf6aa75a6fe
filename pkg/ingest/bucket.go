package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/nearfs/gateway/pkg/blockstore/s3store"
)

// ErrNoSuchFile is returned by Fetch for a file missing from the lake
var ErrNoSuchFile = errors.New("ingest: no such lake file")

// S3Bucket reads NEAR Lake from S3. Credentials come from the standard AWS
// environment variables.
type S3Bucket struct {
	client *minio.Client
	bucket string
}

var _ Bucket = (*S3Bucket)(nil)

func NewS3Bucket(region, endpoint, bucket string) (*S3Bucket, error) {
	client, err := s3store.NewClient(s3store.Config{
		Region:         region,
		Endpoint:       endpoint,
		Bucket:         bucket,
		EnvCredentials: true,
	})
	if err != nil {
		return nil, err
	}
	return &S3Bucket{client: client, bucket: bucket}, nil
}

func (b *S3Bucket) ListHeights(ctx context.Context, from uint64, max int) ([]uint64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// "000000000042/" sorts after "000000000042", so from itself is included
	objects := b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		StartAfter: HeightPrefix(from),
		MaxKeys:    max,
	})
	heights := make([]uint64, 0, max)
	for object := range objects {
		if object.Err != nil {
			return nil, fmt.Errorf("s3 list: %w", object.Err)
		}
		height, ok := parseHeightPrefix(object.Key)
		if !ok {
			continue
		}
		heights = append(heights, height)
		if len(heights) == max {
			break
		}
	}
	return heights, nil
}

func (b *S3Bucket) Fetch(ctx context.Context, height uint64, name string) ([]byte, error) {
	key := HeightPrefix(height) + "/" + name
	object, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer object.Close()
	data, err := io.ReadAll(object)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrNoSuchFile, key)
		}
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	return data, nil
}

// DirBucket reads a NEAR Lake mirrored to a local directory
type DirBucket struct {
	root string
}

var _ Bucket = (*DirBucket)(nil)

func NewDirBucket(root string) *DirBucket {
	return &DirBucket{root: root}
}

func (b *DirBucket) ListHeights(_ context.Context, from uint64, max int) ([]uint64, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, err
	}
	var heights []uint64
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		height, ok := parseHeightPrefix(entry.Name())
		if ok && height >= from {
			heights = append(heights, height)
		}
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	if len(heights) > max {
		heights = heights[:max]
	}
	return heights, nil
}

func (b *DirBucket) Fetch(_ context.Context, height uint64, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(b.root, HeightPrefix(height), name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoSuchFile, HeightPrefix(height), name)
	}
	return data, err
}

func parseHeightPrefix(key string) (uint64, bool) {
	key = strings.TrimSuffix(key, "/")
	if len(key) != 12 {
		return 0, false
	}
	height, err := strconv.ParseUint(key, 10, 64)
	return height, err == nil
}
