package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gotus/internal/ids"
	"gotus/internal/worker/config"
)

func TestSplitEndpoint(t *testing.T) {
	cases := []struct {
		in     string
		ssl    bool
		host   string
		secure bool
	}{
		{"127.0.0.1:9000", false, "127.0.0.1:9000", false},
		{"s3.gotus.internal", true, "s3.gotus.internal", true},
		{"https://s3.gotus.internal", false, "s3.gotus.internal", true},
		{"http://minio:9000", true, "minio:9000", false},
	}
	for _, tc := range cases {
		host, secure, err := splitEndpoint(tc.in, tc.ssl)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.host, host, tc.in)
		assert.Equal(t, tc.secure, secure, tc.in)
	}

	_, _, err := splitEndpoint("https://", false)
	assert.Error(t, err)
}

func TestObjectStoreRoundTrip(t *testing.T) {
	endpoint := os.Getenv("GOTUS_TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("GOTUS_TEST_MINIO_ENDPOINT not set")
	}
	ctx := context.Background()

	store, err := NewObjectStore(config.ArchiveConfig{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("GOTUS_TEST_MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("GOTUS_TEST_MINIO_SECRET_KEY"),
		Region:    "us-east-1",
		Bucket:    "gotus-audit-test",
	})
	require.NoError(t, err)
	require.NoError(t, store.EnsureBuckets(ctx))
	require.NoError(t, store.EnsureBuckets(ctx), "existing bucket is fine")

	key := "audit/test/" + ids.New() + ".jsonl"
	body := []byte(`{"messageId":"1-0","type":"auth.signin"}` + "\n")
	require.NoError(t, store.Put(ctx, key, body))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}
