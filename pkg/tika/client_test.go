package tika

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"pdf-vectorize-go/internal/config"
)

func TestRecognize_SendsLanguagesAndTrims(t *testing.T) {
	var gotLang, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/tika" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotLang = r.Header.Get("X-Tika-OCRLanguage")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte("\n  سلام دنیا \n"))
	}))
	defer srv.Close()

	c := NewClient(config.TikaConfig{ServerURL: srv.URL + "/"}, []string{"fas", "eng"})
	text, err := c.Recognize(context.Background(), []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if text != "سلام دنیا" {
		t.Fatalf("text = %q", text)
	}
	if gotLang != "fas+eng" || gotType != "image/png" || string(gotBody) != "png-bytes" {
		t.Fatalf("headers/body not forwarded: %q %q %q", gotLang, gotType, gotBody)
	}
}

func TestRecognize_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no tesseract", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient(config.TikaConfig{ServerURL: srv.URL}, nil)
	if _, err := c.Recognize(context.Background(), []byte("x"), ""); err == nil {
		t.Fatal("expected error on non-200")
	}
}
