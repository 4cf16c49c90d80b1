package transcription

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestOpenAIBackendVerboseSegments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Expected bearer auth, got %q", got)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
			return
		}
		if r.FormValue("response_format") != "verbose_json" {
			t.Errorf("Expected verbose_json, got %q", r.FormValue("response_format"))
		}
		if r.FormValue("model") != "whisper-1" {
			t.Errorf("Expected whisper-1, got %q", r.FormValue("model"))
		}

		writeJSON(w, map[string]any{
			"task":     "transcribe",
			"language": "english",
			"duration": 0.5,
			"text":     "first second",
			"segments": []map[string]any{
				{"id": 0, "text": " first"},
				{"id": 1, "text": " second"},
			},
		})
	}))
	defer server.Close()

	cfg := testConfig(server.URL + "/v1")
	cfg.Provider = ProviderOpenAI
	backend, err := NewOpenAIBackend(cfg, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewOpenAIBackend failed: %v", err)
	}

	fragments, err := backend.Transcribe(context.Background(), testSamples())
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if len(fragments) != 2 || fragments[0] != " first" || fragments[1] != " second" {
		t.Errorf("Unexpected fragments: %q", fragments)
	}
	if backend.Stats().SuccessRequests != 1 {
		t.Errorf("Expected 1 success, got %+v", backend.Stats())
	}
}

func TestOpenAIBackendRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		writeJSON(w, map[string]any{"text": "recovered"})
	}))
	defer server.Close()

	cfg := testConfig(server.URL + "/v1")
	backend, _ := NewOpenAIBackend(cfg, testLogger(), nil)

	fragments, err := backend.Transcribe(context.Background(), testSamples())
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if len(fragments) != 1 || fragments[0] != "recovered" {
		t.Errorf("Unexpected fragments: %q", fragments)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 calls, got %d", calls.Load())
	}
}

func TestOpenAIBackendRequiresCredentials(t *testing.T) {
	if _, err := NewOpenAIBackend(Config{}, testLogger(), nil); err == nil {
		t.Error("Expected error without API key or endpoint")
	}
}
