package executors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surajsub/deployassist/models"
)

// testS3Executor creates an S3Executor backed by a test HTTP server.
func testS3Executor(t *testing.T, region string, handler http.Handler) *S3Executor {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := s3.New(s3.Options{
		Region:       region,
		BaseEndpoint: aws.String(server.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("test-key", "test-secret", ""),
		HTTPClient:   &http.Client{Transport: &http.Transport{}},
	})
	return newS3Executor(client, testCreds, region, quietLogger())
}

func xmlResponse(w http.ResponseWriter, statusCode int, body string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(statusCode)
	_, _ = w.Write([]byte(body))
}

func isCreateBucket(r *http.Request) bool {
	for _, sub := range []string{"versioning", "cors", "encryption"} {
		if strings.Contains(r.URL.RawQuery, sub) {
			return false
		}
	}
	return r.Method == http.MethodPut
}

type s3Recorder struct {
	mu      sync.Mutex
	queries []string
}

func (r *s3Recorder) add(q string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, q)
}

func TestS3CreatesAndConfiguresBucket(t *testing.T) {
	rec := &s3Recorder{}
	e := testS3Executor(t, "eu-west-1", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.URL.RawQuery)
		if r.Method == http.MethodPut {
			xmlResponse(w, 200, "")
			return
		}
		xmlResponse(w, 404, "")
	}))

	res := e.Execute(context.Background(), models.ProviderRequest{
		Operation: CreateStorageBucket,
		Params:    map[string]any{"app_name": "shop", "environment": "production"},
	})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "shop-production-storage", res.Fields["bucket_name"])
	assert.Equal(t, false, res.Fields["existed"])
	require.Len(t, rec.queries, 4)
	assert.NotContains(t, rec.queries[0], "versioning")
	assert.NotContains(t, rec.queries[0], "cors")
	assert.Contains(t, rec.queries[1], "versioning")
	assert.Contains(t, rec.queries[2], "cors")
	assert.Contains(t, rec.queries[3], "encryption")
}

func TestS3AlreadyOwnedBucketIsReused(t *testing.T) {
	e := testS3Executor(t, "us-east-1", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isCreateBucket(r) {
			xmlResponse(w, 409, `<?xml version="1.0" encoding="UTF-8"?>
<Error>
  <Code>BucketAlreadyOwnedByYou</Code>
  <Message>Your previous request to create the named bucket succeeded and you already own it.</Message>
</Error>`)
			return
		}
		xmlResponse(w, 200, "")
	}))

	res := e.Execute(context.Background(), models.ProviderRequest{
		Operation: CreateStorageBucket,
		Params:    map[string]any{"bucket_name": "shop-assets"},
	})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "shop-assets", res.Fields["bucket_name"])
	assert.Equal(t, true, res.Fields["existed"])
}

func TestS3AccessDenied(t *testing.T) {
	e := testS3Executor(t, "eu-west-1", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		xmlResponse(w, 403, `<?xml version="1.0" encoding="UTF-8"?>
<Error>
  <Code>AccessDenied</Code>
  <Message>Access Denied</Message>
</Error>`)
	}))

	res := e.Execute(context.Background(), models.ProviderRequest{
		Operation: CreateStorageBucket,
		Params:    map[string]any{"bucket_name": "shop-assets"},
	})

	assert.False(t, res.Success)
	assert.Equal(t, "AccessDenied", res.ErrorCode)
	assert.Contains(t, res.Error, "create bucket shop-assets")
}
