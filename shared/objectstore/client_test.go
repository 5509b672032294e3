package objectstore

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// testClient wires a Client against a stub S3 endpoint that reports the
// given bucket-exists state for HEAD bucket requests.
func testClient(t *testing.T, bucket string, bucketExists bool) *Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			if bucketExists {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusNotFound)
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	mc, err := minio.New(strings.TrimPrefix(srv.URL, "http://"), &minio.Options{
		Creds:  credentials.NewStaticV4("test", "test", ""),
		Secure: false,
		Region: "us-east-1",
	})
	require.NoError(t, err)

	return &Client{
		mc:     mc,
		bucket: bucket,
		logger: testLogger(),
	}
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy when the bucket exists", func(t *testing.T) {
		c := testClient(t, "video-pipeline", true)

		err := c.HealthCheck(context.Background())
		assert.NoError(t, err)
	})

	t.Run("unhealthy when the bucket is gone", func(t *testing.T) {
		c := testClient(t, "video-pipeline", false)

		err := c.HealthCheck(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
	})

	t.Run("unhealthy when the endpoint is unreachable", func(t *testing.T) {
		c := testClient(t, "video-pipeline", true)
		// Point the check at a closed port
		mc, err := minio.New("127.0.0.1:1", &minio.Options{
			Creds:  credentials.NewStaticV4("test", "test", ""),
			Secure: false,
		})
		require.NoError(t, err)
		c.mc = mc

		assert.Error(t, c.HealthCheck(context.Background()))
	})
}
