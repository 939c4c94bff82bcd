package image

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizrally/internal/config"
	"quizrally/internal/models"
)

func sdServer(t *testing.T, modelLoaded bool, imageB64 string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"model_loaded": %t}`, modelLoaded)
	})
	mux.HandleFunc("/generate", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"image_base64": %q}`, imageB64)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestEngine(url string) *Engine {
	cfg := &config.Config{SDAPIURL: url, MaxImageSizeBytes: 1024}
	return NewEngine(cfg)
}

func TestAvailable(t *testing.T) {
	srv := sdServer(t, true, "")
	assert.True(t, newTestEngine(srv.URL).Available())

	srv2 := sdServer(t, false, "")
	assert.False(t, newTestEngine(srv2.URL).Available())

	assert.False(t, newTestEngine("http://127.0.0.1:1").Available())
}

func TestGenerate(t *testing.T) {
	png := base64.StdEncoding.EncodeToString([]byte("fake png bytes"))
	srv := sdServer(t, true, png)

	img, err := newTestEngine(srv.URL).Generate("a red fox", "vibrant")
	require.NoError(t, err)
	assert.Equal(t, png, img)
}

func TestGenerateRejectsOversized(t *testing.T) {
	big := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 2048)))
	srv := sdServer(t, true, big)

	_, err := newTestEngine(srv.URL).Generate("too big", "vibrant")
	assert.ErrorContains(t, err, "too large")
}

func TestGenerateRejectsBadBase64(t *testing.T) {
	srv := sdServer(t, true, "not-base64!!!")
	_, err := newTestEngine(srv.URL).Generate("broken", "vibrant")
	assert.ErrorContains(t, err, "invalid base64")
}

func TestGenerateForQuiz(t *testing.T) {
	png := base64.StdEncoding.EncodeToString([]byte("fake"))
	srv := sdServer(t, true, png)

	questions := []models.Question{
		{ID: 0, ImagePrompt: "a castle"},
		{ID: 1}, // no prompt, skipped
		{ID: 2, ImagePrompt: "a dragon"},
	}
	images := newTestEngine(srv.URL).GenerateForQuiz(questions)
	assert.Len(t, images, 2)
	assert.Contains(t, images, 0)
	assert.Contains(t, images, 2)
	assert.NotContains(t, images, 1)
}
