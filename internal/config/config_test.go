package config

import "testing"

func TestDefaultConfigApplied(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.State.MaxCASAttempts != 10 {
		t.Errorf("expected default MaxCASAttempts=10, got %d", cfg.State.MaxCASAttempts)
	}
	if cfg.Media.MaxTimeout.Seconds() != 7200 {
		t.Errorf("expected default media max timeout 7200s, got %v", cfg.Media.MaxTimeout)
	}
	if cfg.Clients.LLM.RPS != 150.0 {
		t.Errorf("expected default LLM rps 150, got %v", cfg.Clients.LLM.RPS)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Setenv("RECAP_TEST_KEY", "secret-value")

	got := ResolveEnvVars("${RECAP_TEST_KEY}")
	if got != "secret-value" {
		t.Errorf("expected secret-value, got %q", got)
	}

	if got := ResolveEnvVars(""); got != "" {
		t.Errorf("expected empty string passthrough, got %q", got)
	}
}

func TestBlobConfigRewriteToPublic(t *testing.T) {
	b := BlobConfig{
		Endpoint:       "http://minio.internal:9000",
		PublicEndpoint: "https://cdn.example.com",
	}

	got := b.RewriteToPublic("http://minio.internal:9000/recap-media/output/job1/final_recap.mp4")
	want := "https://cdn.example.com/recap-media/output/job1/final_recap.mp4"
	if got != want {
		t.Errorf("got %q want %q", got, want)
	}

	// No rewrite rule configured: URL passes through unchanged.
	empty := BlobConfig{}
	if got := empty.RewriteToPublic("http://x/y"); got != "http://x/y" {
		t.Errorf("expected passthrough, got %q", got)
	}
}
