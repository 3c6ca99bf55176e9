package blobstore

import (
	"bytes"
	"context"
	"os"
	"testing"
)

func TestKeyLayout(t *testing.T) {
	if got, want := SourceVideoKey("vid-1"), "videos/vid-1"; got != want {
		t.Errorf("SourceVideoKey: got %q want %q", got, want)
	}
	if got, want := UserScriptKey("job-1"), "videos/job-1/script.txt"; got != want {
		t.Errorf("UserScriptKey: got %q want %q", got, want)
	}
	if got, want := OutputVideoKey("job-1"), "output/job-1/final_recap.mp4"; got != want {
		t.Errorf("OutputVideoKey: got %q want %q", got, want)
	}
	if got, want := OutputScriptKey("job-1"), "output/job-1/script.txt"; got != want {
		t.Errorf("OutputScriptKey: got %q want %q", got, want)
	}
}

func TestRewriteToPublic(t *testing.T) {
	s := &Store{
		endpoint: "http://minio.internal:9000",
		public:   "https://cdn.example.com",
	}
	got := s.rewriteToPublic("http://minio.internal:9000/recap-media/output/job1/final_recap.mp4?X-Amz-Signature=abc")
	want := "https://cdn.example.com/recap-media/output/job1/final_recap.mp4?X-Amz-Signature=abc"
	if got != want {
		t.Errorf("got %q want %q", got, want)
	}

	passthrough := &Store{}
	if got := passthrough.rewriteToPublic("http://x/y"); got != "http://x/y" {
		t.Errorf("expected passthrough when no public endpoint configured, got %q", got)
	}
}

// newTestStore connects to a real S3-compatible endpoint when
// RECAP_TEST_S3_ENDPOINT is set (e.g. a local minio); otherwise the
// test is skipped. No S3 fake exists anywhere in the retrieval pack.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	endpoint := os.Getenv("RECAP_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("RECAP_TEST_S3_ENDPOINT not set, skipping S3-backed test")
	}
	bucket := os.Getenv("RECAP_TEST_S3_BUCKET")
	if bucket == "" {
		bucket = "recap-test"
	}

	s, err := New(context.Background(), Config{
		Region:          "us-east-1",
		Bucket:          bucket,
		Endpoint:        endpoint,
		AccessKeyID:     os.Getenv("RECAP_TEST_S3_ACCESS_KEY"),
		SecretAccessKey: os.Getenv("RECAP_TEST_S3_SECRET_KEY"),
		ForcePathStyle:  true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := "round-trip/" + t.Name() + ".txt"
	defer s.Delete(ctx, key)

	if _, err := s.Upload(ctx, key, bytes.NewReader([]byte("hello recap")), "text/plain"); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	got, err := s.ReadText(ctx, key)
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	if got != "hello recap" {
		t.Errorf("got %q want %q", got, "hello recap")
	}

	exists, err := s.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Error("expected object to exist after upload")
	}
}

func TestDownloadMissingObject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Download(ctx, "does-not-exist/"+t.Name())
	if err == nil {
		t.Fatal("expected error for missing object")
	}
}
