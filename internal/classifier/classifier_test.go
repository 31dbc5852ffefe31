package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeTestImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.png")
	if err := os.WriteFile(path, []byte("not-really-a-png"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestClassifyMatchesKeyword(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := visionResponse{Responses: []annotateImageResponse{{
			LabelAnnotations: []entityAnnotation{{Description: "Fire", Score: 0.95}},
		}}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c, err := New("test-key", []string{"fire", "smoke"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.BaseURL = server.URL

	isIncident, err := c.Classify(context.Background(), writeTestImage(t))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !isIncident {
		t.Fatal("expected incident verdict")
	}
}

func TestClassifyNoMatchingLabel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := visionResponse{Responses: []annotateImageResponse{{
			LabelAnnotations: []entityAnnotation{{Description: "Sky", Score: 0.9}},
		}}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c, err := New("test-key", []string{"fire", "smoke"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.BaseURL = server.URL

	isIncident, err := c.Classify(context.Background(), writeTestImage(t))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if isIncident {
		t.Fatal("expected non-incident verdict")
	}
}

func TestClassifyServerErrorReturnsClassifierError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c, err := New("test-key", []string{"fire"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.BaseURL = server.URL

	_, err = c.Classify(context.Background(), writeTestImage(t))
	if err == nil {
		t.Fatal("expected error")
	}
	var classifyErr *ClassifierError
	if !asClassifierError(err, &classifyErr) {
		t.Fatalf("expected *ClassifierError, got %T", err)
	}
}

func asClassifierError(err error, target **ClassifierError) bool {
	ce, ok := err.(*ClassifierError)
	if ok {
		*target = ce
	}
	return ok
}

func TestNewWithoutAPIKeyFails(t *testing.T) {
	if _, err := New("", nil); err == nil {
		t.Fatal("expected error for empty API key")
	}
}
