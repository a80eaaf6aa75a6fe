package s3store_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/nearfs/gateway/pkg/blockstore"
	"github.com/nearfs/gateway/pkg/blockstore/s3store"
	"github.com/nearfs/gateway/pkg/blockstore/storetest"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	testCases := []struct {
		name     string
		endpoint string
		secure   bool
		host     string
		err      bool
	}{
		{name: "default", endpoint: "", host: "localhost:9000"},
		{name: "https", endpoint: "https://s3.example.com", secure: true, host: "s3.example.com"},
		{name: "no host", endpoint: "localhost", err: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			client, err := s3store.NewClient(s3store.Config{Endpoint: testCase.endpoint})
			if testCase.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, testCase.host, client.EndpointURL().Host)
			require.Equal(t, testCase.secure, client.EndpointURL().Scheme == "https")
		})
	}
}

func TestCredentials(t *testing.T) {
	for _, name := range []string{"AWS_ACCESS_KEY_ID", "AWS_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY", "AWS_SECRET_KEY", "AWS_SESSION_TOKEN"} {
		t.Setenv(name, "")
	}
	req := require.New(t)

	value, err := s3store.Credentials(s3store.Config{}).Get()
	req.NoError(err)
	req.Equal(credentials.SignatureAnonymous, value.SignerType)

	t.Setenv("AWS_ACCESS_KEY_ID", "env-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "env-secret")
	value, err = s3store.Credentials(s3store.Config{}).Get()
	req.NoError(err)
	req.Equal("env-key", value.AccessKeyID)
	req.Equal("env-secret", value.SecretAccessKey)

	value, err = s3store.Credentials(s3store.Config{AccessKey: "nearfs-key", SecretKey: "nearfs-secret"}).Get()
	req.NoError(err)
	req.Equal("nearfs-key", value.AccessKeyID)
	req.Equal("nearfs-secret", value.SecretAccessKey)
	req.Equal(credentials.SignatureV4, value.SignerType)

	value, err = s3store.Credentials(s3store.Config{AccessKey: "ignored", SecretKey: "ignored", EnvCredentials: true}).Get()
	req.NoError(err)
	req.Equal("env-key", value.AccessKeyID)
}

// TestConformance runs against a live S3 compatible server, for example
// NEARFS_TEST_S3_ENDPOINT=http://localhost:9000 with a local MinIO
func TestConformance(t *testing.T) {
	endpoint := os.Getenv("NEARFS_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("NEARFS_TEST_S3_ENDPOINT not set")
	}
	storetest.RunConformance(t, func(t *testing.T) blockstore.Store {
		store, err := s3store.New(s3store.Config{
			Endpoint:  endpoint,
			Bucket:    fmt.Sprintf("nearfs-test-%d", time.Now().UnixNano()),
			AccessKey: os.Getenv("NEARFS_TEST_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("NEARFS_TEST_S3_SECRET_KEY"),
		})
		require.NoError(t, err)
		require.NoError(t, store.Init(context.Background()))
		return store
	})
}
