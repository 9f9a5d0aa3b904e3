package searchanime

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleResponse = `{
	"header": {"status": 0},
	"results": [
		{
			"header": {"similarity": "95.5"},
			"data": {"source": "Show A", "ext_urls": ["http://x"]}
		}
	]
}`

func TestRecognizeByURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("expected multipart form: %v", err)
		}
		if got := r.FormValue("url"); got != "http://example.com/pic.jpg" {
			t.Errorf("url field = %q", got)
		}
		if got := r.FormValue("api_key"); got != "testkey" {
			t.Errorf("api_key field = %q", got)
		}
		if r.FormValue("db") != "999" || r.FormValue("output_type") != "2" {
			t.Errorf("missing fixed service params: db=%q output_type=%q", r.FormValue("db"), r.FormValue("output_type"))
		}
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	res, err := newSaucenaoClient(srv.URL, "testkey").recognize(&acquiredImage{sourceURL: "http://example.com/pic.jpg"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Similarity != 95.5 {
		t.Fatalf("similarity = %v", res.Similarity)
	}
	if res.Source != "Show A" {
		t.Fatalf("source = %q", res.Source)
	}
	if res.Author != "未知作者" {
		t.Fatalf("author fallback = %q", res.Author)
	}
	text := res.resultText()
	for _, want := range []string{"Show A", "95.5", "未知作者", "http://x"} {
		if !strings.Contains(text, want) {
			t.Errorf("result text missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "相似度过低") {
		t.Error("high-similarity result must not carry the low-confidence caveat")
	}
}

func TestRecognizeByFile(t *testing.T) {
	local := filepath.Join(t.TempDir(), "img.jpg")
	if err := os.WriteFile(local, []byte("rawimagebytes"), 0644); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("expected multipart form: %v", err)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("expected file part, got %v", err)
		} else {
			_ = f.Close()
		}
		if r.FormValue("url") != "" {
			t.Error("constrained upload must not carry a url field")
		}
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	_, err := newSaucenaoClient(srv.URL, "testkey").recognize(&acquiredImage{
		sourceURL: "http://example.com/pic.jpg",
		localPath: local,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRecognizeServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newSaucenaoClient(srv.URL, "k").recognize(&acquiredImage{sourceURL: "http://x"})
	var serr serviceError
	if !errors.As(err, &serr) || int(serr) != http.StatusTooManyRequests {
		t.Fatalf("expected serviceError(429), got %v", err)
	}
	if !strings.Contains(classify(err), "429") {
		t.Fatalf("classified message should carry the status: %q", classify(err))
	}
}

func TestRecognizeMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>rate limited</html>"))
	}))
	defer srv.Close()

	_, err := newSaucenaoClient(srv.URL, "k").recognize(&acquiredImage{sourceURL: "http://x"})
	if !errors.Is(err, errMalformed) {
		t.Fatalf("expected errMalformed, got %v", err)
	}
}

func TestRecognizeEmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"header":{"status":0},"results":[]}`))
	}))
	defer srv.Close()

	_, err := newSaucenaoClient(srv.URL, "k").recognize(&acquiredImage{sourceURL: "http://x"})
	if !errors.Is(err, errNoMatch) {
		t.Fatalf("expected errNoMatch, got %v", err)
	}
}

func TestLowConfidenceBoundary(t *testing.T) {
	low := &recognition{Similarity: 79.9, Source: "S", Author: "A"}
	if !low.lowConfidence() {
		t.Error("79.9 must be low confidence")
	}
	if !strings.Contains(low.resultText(), "相似度过低") {
		t.Error("79.9 result must carry the caveat")
	}
	high := &recognition{Similarity: 80.0, Source: "S", Author: "A"}
	if high.lowConfidence() {
		t.Error("80.0 must not be low confidence")
	}
	if strings.Contains(high.resultText(), "相似度过低") {
		t.Error("80.0 result must not carry the caveat")
	}
}

func TestFieldFallbackChain(t *testing.T) {
	tests := []struct {
		name string
		body string
		src  string
		auth string
	}{
		{
			name: "title when source absent",
			body: `{"results":[{"header":{"similarity":"90"},"data":{"title":"T","author":"B"}}]}`,
			src:  "T",
			auth: "B",
		},
		{
			name: "member_name preferred over author",
			body: `{"results":[{"header":{"similarity":"90"},"data":{"source":"S","member_name":"M","author":"B"}}]}`,
			src:  "S",
			auth: "M",
		},
		{
			name: "all absent falls back to unknown",
			body: `{"results":[{"header":{"similarity":"90"},"data":{}}]}`,
			src:  "未知来源",
			auth: "未知作者",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			res, err := newSaucenaoClient(srv.URL, "k").recognize(&acquiredImage{sourceURL: "http://x"})
			if err != nil {
				t.Fatal(err)
			}
			if res.Source != tt.src || res.Author != tt.auth {
				t.Fatalf("got source=%q author=%q, want %q/%q", res.Source, res.Author, tt.src, tt.auth)
			}
		})
	}
}
